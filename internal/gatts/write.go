package gatts

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

func (s *session) onWrite(ev Write) error {
	if !s.handleWrite(ev) {
		s.log.WithFields(logrus.Fields{
			"conn_id": ev.ConnID,
			"handle":  ev.Handle,
		}).Debug("[GATTS] write not handled")
		return nil
	}
	if !ev.NeedRsp {
		return nil
	}
	return s.respond(ev)
}

// handleWrite applies a write to the session and reports whether the target
// attribute belongs to this service.
func (s *session) handleWrite(ev Write) bool {
	c := s.conns.ByConnID(ev.ConnID)
	if c == nil {
		return false
	}

	switch {
	case s.cccd != 0 && ev.Handle == s.cccd:
		if ev.Offset != 0 || len(ev.Value) != 2 {
			s.log.WithFields(logrus.Fields{
				"peer":   c.Peer,
				"offset": ev.Offset,
				"len":    len(ev.Value),
			}).Debug("[GATTS] ignoring malformed cccd write")
			return true
		}
		subscribe := binary.LittleEndian.Uint16(ev.Value) == cccdIndicate
		if subscribe == c.Subscribed {
			return true
		}
		c.Subscribed = subscribe
		// the handler may not touch c, so copy the peer first
		peer := c.Peer
		if subscribe {
			s.opts.Handlers.Subscribed(peer)
		} else {
			s.opts.Handlers.Unsubscribed(peer)
		}
		return true

	case s.recv != 0 && ev.Handle == s.recv:
		s.opts.Handlers.Received(ev.Peer, ev.Value, ev.Offset, c.MTU)
		return true
	}
	return false
}

// respond acknowledges a handled write. Prepared writes echo the value back
// through the reusable response buffer.
func (s *session) respond(ev Write) error {
	var rsp *Response
	if ev.IsPrep {
		if err := s.rsp.Stage(ev.Handle, ev.Offset, ev.Value); err != nil {
			return fmt.Errorf("gatts: stage prepared write response: %w", err)
		}
		rsp = &s.rsp
	}
	if err := s.adapter.SendResponse(s.iface, ev.ConnID, ev.TransID, GATTOk, rsp); err != nil {
		return fmt.Errorf("gatts: send write response: %w", err)
	}
	return nil
}

func (s *session) onExecWrite(ev ExecWrite) error {
	if s.conns.ByConnID(ev.ConnID) == nil {
		return nil
	}
	s.log.WithFields(logrus.Fields{
		"conn_id": ev.ConnID,
		"execute": ev.Execute,
	}).Debug("[GATTS] exec write")
	if err := s.adapter.SendResponse(s.iface, ev.ConnID, ev.TransID, GATTOk, nil); err != nil {
		return fmt.Errorf("gatts: send exec write response: %w", err)
	}
	return nil
}
