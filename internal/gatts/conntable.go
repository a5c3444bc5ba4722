package gatts

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Connection is one admitted peer.
type Connection struct {
	Peer       Addr   `json:"peer"`
	ConnID     ConnID `json:"conn_id"`
	Subscribed bool   `json:"subscribed"`
	MTU        uint16 `json:"mtu,omitempty"` // zero until negotiated
}

// connTable is the bounded registry of connected peers. Entries are visited
// by position; removal swaps the last entry into the freed slot.
type connTable struct {
	conns    []Connection
	capacity int
}

func newConnTable(capacity int) *connTable {
	return &connTable{
		conns:    make([]Connection, 0, capacity),
		capacity: capacity,
	}
}

func (t *connTable) Len() int { return len(t.conns) }

// At returns the connection in slot i. The pointer is valid until the next
// Admit or Remove.
func (t *connTable) At(i int) *Connection { return &t.conns[i] }

// Admit inserts a new unsubscribed connection. It reports false, leaving the
// table unchanged, when the table is full.
func (t *connTable) Admit(peer Addr, id ConnID) bool {
	if len(t.conns) >= t.capacity {
		return false
	}
	t.conns = append(t.conns, Connection{Peer: peer, ConnID: id})
	return true
}

// Remove drops the connection of peer, if present.
func (t *connTable) Remove(peer Addr) bool {
	for i := range t.conns {
		if t.conns[i].Peer != peer {
			continue
		}
		last := len(t.conns) - 1
		t.conns[i] = t.conns[last]
		t.conns[last] = Connection{}
		t.conns = t.conns[:last]
		return true
	}
	return false
}

// ByConnID finds a connection by id, or returns nil.
func (t *connTable) ByConnID(id ConnID) *Connection {
	for i := range t.conns {
		if t.conns[i].ConnID == id {
			return &t.conns[i]
		}
	}
	return nil
}

// SetMTU records the negotiated MTU. The connection may already be gone.
func (t *connTable) SetMTU(id ConnID, mtu uint16) bool {
	c := t.ByConnID(id)
	if c == nil {
		return false
	}
	c.MTU = mtu
	return true
}

func (t *connTable) snapshot() []Connection {
	out := make([]Connection, len(t.conns))
	copy(out, t.conns)
	return out
}

func (s *session) onMTU(ev MTUChanged) {
	if !s.conns.SetMTU(ev.ConnID, ev.MTU) {
		s.log.WithField("conn_id", ev.ConnID).Debug("[GATTS] mtu for unknown connection")
		return
	}
	s.log.WithFields(logrus.Fields{"conn_id": ev.ConnID, "mtu": ev.MTU}).Info("[GATTS] mtu negotiated")
}

// onConnected admits the peer if there is room and negotiates its connection
// parameters. Declined peers are left alone.
func (s *session) onConnected(ev PeerConnected) error {
	if !s.conns.Admit(ev.Peer, ev.ConnID) {
		s.log.WithFields(logrus.Fields{
			"peer":     ev.Peer,
			"conn_id":  ev.ConnID,
			"capacity": s.opts.MaxConnections,
		}).Info("[GATTS] connection table full, peer not admitted")
		return nil
	}
	s.log.WithFields(logrus.Fields{"peer": ev.Peer, "conn_id": ev.ConnID}).Info("[GATTS] peer connected")

	if err := s.adapter.SetConnParams(ev.Peer, s.opts.ConnParams); err != nil {
		return fmt.Errorf("gatts: set connection params of %s: %w", ev.Peer, err)
	}
	return nil
}

func (s *session) onDisconnected(ev PeerDisconnected) {
	if !s.conns.Remove(ev.Peer) {
		return
	}
	s.log.WithFields(logrus.Fields{
		"peer":    ev.Peer,
		"conn_id": ev.ConnID,
		"reason":  ev.Reason,
	}).Info("[GATTS] peer disconnected")

	if s.pending != nil && s.pending.peer == ev.Peer {
		s.release()
	}
}
