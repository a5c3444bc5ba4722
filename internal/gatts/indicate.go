package gatts

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnexpectedConfirmation means a confirmation arrived while no
	// indication was outstanding. The session state can no longer be trusted
	// and Run stops with this error.
	ErrUnexpectedConfirmation = errors.New("gatts: confirmation without pending indication")

	// ErrValueTooLong is returned by Indicate for values that exceed the
	// characteristic max length.
	ErrValueTooLong = errors.New("gatts: indication value too long")
)

// broadcast is one Indicate call working its way through the table.
type broadcast struct {
	data     []byte
	next     int // next table slot to visit
	done     chan error
	canceled atomic.Bool
}

// pendingIndication is the single indication waiting for a confirmation.
type pendingIndication struct {
	peer   Addr
	connID ConnID
	b      *broadcast
}

// Indicate sends data to every subscribed peer, one peer at a time: the
// indication to the next peer is only sent once the previous one has been
// confirmed. It returns when the broadcast round is over, the first adapter
// failure, or ctx is done.
func (s *Server) Indicate(ctx context.Context, data []byte) error {
	if limit := int(s.sess.opts.MaxLen); len(data) > limit {
		return fmt.Errorf("%w: %d > %d bytes", ErrValueTooLong, len(data), limit)
	}
	b := &broadcast{
		data: append([]byte(nil), data...),
		done: make(chan error, 1),
	}

	select {
	case s.requests <- b:
	case <-s.closed:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-b.done:
		return err
	case <-s.closed:
		return ErrServerClosed
	case <-ctx.Done():
		b.canceled.Store(true)
		return ctx.Err()
	}
}

func (s *session) enqueue(b *broadcast) {
	s.queue = append(s.queue, b)
	s.pump()
}

// pump advances queued broadcasts until an indication is in flight or the
// queue is empty.
func (s *session) pump() {
	for s.pending == nil && len(s.queue) > 0 {
		b := s.queue[0]
		if b.canceled.Load() {
			s.finish(nil)
			continue
		}
		inFlight, err := s.step(b)
		if inFlight {
			return
		}
		s.finish(err)
	}
}

// step sends the next indication of b. It reports false once the round is
// over.
func (s *session) step(b *broadcast) (bool, error) {
	for b.next < s.opts.MaxConnections {
		i := b.next
		if s.conns.Len() < i+1 {
			return false, nil
		}
		if !s.ifaceOK || s.ind == 0 {
			s.log.Debug("[GATTS] indication characteristic not ready")
			return false, nil
		}

		c := s.conns.At(i)
		b.next++
		if !c.Subscribed {
			continue
		}
		if err := s.adapter.Indicate(s.iface, c.ConnID, s.ind, b.data); err != nil {
			return false, fmt.Errorf("gatts: indicate %s: %w", c.Peer, err)
		}
		s.pending = &pendingIndication{peer: c.Peer, connID: c.ConnID, b: b}
		s.sent++
		s.log.WithFields(logrus.Fields{
			"peer":    c.Peer,
			"conn_id": c.ConnID,
			"len":     len(b.data),
		}).Debug("[GATTS] indication sent")
		return true, nil
	}
	return false, nil
}

// finish completes the head of the queue with err.
func (s *session) finish(err error) {
	b := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	b.done <- err
}

func (s *session) onConfirm(ev Confirm) error {
	if s.pending == nil {
		return fmt.Errorf("%w: conn %d handle %d", ErrUnexpectedConfirmation, ev.ConnID, ev.Handle)
	}
	// The marker is cleared whatever conn id the stack reports.
	if ev.ConnID != s.pending.connID {
		s.log.WithFields(logrus.Fields{
			"conn_id":  ev.ConnID,
			"expected": s.pending.connID,
		}).Warn("[GATTS] confirmation from another connection")
	}

	p := s.pending
	s.pending = nil
	if err := CheckGATT("indicate", ev.Status); err != nil {
		if len(s.queue) > 0 && s.queue[0] == p.b {
			s.finish(err)
		}
		s.pump()
		return err
	}
	s.log.WithField("peer", p.peer).Debug("[GATTS] indication confirmed")
	s.pump()
	return nil
}

// release drops the pending marker without a confirmation, used when the
// peer it waits for is gone.
func (s *session) release() {
	s.log.WithField("peer", s.pending.peer).Info("[GATTS] pending peer gone, releasing indication")
	s.pending = nil
	s.pump()
}

// shutdown fails every queued broadcast.
func (s *session) shutdown() {
	for len(s.queue) > 0 {
		s.finish(ErrServerClosed)
	}
	s.pending = nil
}
