package gatts

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Phase is the bring-up progress of the service.
type Phase int

const (
	PhaseUnregistered Phase = iota
	PhaseAppRegistered
	PhaseServiceCreated
	PhaseCharacteristicsPending
	PhaseDescriptorPending
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseUnregistered:
		return "unregistered"
	case PhaseAppRegistered:
		return "app_registered"
	case PhaseServiceCreated:
		return "service_created"
	case PhaseCharacteristicsPending:
		return "characteristics_pending"
	case PhaseDescriptorPending:
		return "descriptor_pending"
	case PhaseReady:
		return "ready"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// session is the server state. It is only touched by the event loop.
type session struct {
	adapter Adapter
	opts    Options
	log     logrus.FieldLogger

	iface   Interface
	ifaceOK bool
	service Handle
	started bool
	recv    Handle
	ind     Handle
	cccd    Handle

	conns *connTable
	rsp   Response

	pending *pendingIndication
	queue   []*broadcast
	sent    uint64
}

func newSession(adapter Adapter, log logrus.FieldLogger, opts Options) *session {
	s := &session{
		adapter: adapter,
		opts:    opts,
		log:     log,
		conns:   newConnTable(opts.MaxConnections),
	}
	if s.opts.Handlers.Subscribed == nil {
		s.opts.Handlers.Subscribed = func(peer Addr) {
			log.WithField("peer", peer).Info("[GATTS] client subscribed")
		}
	}
	if s.opts.Handlers.Unsubscribed == nil {
		s.opts.Handlers.Unsubscribed = func(peer Addr) {
			log.WithField("peer", peer).Info("[GATTS] client unsubscribed")
		}
	}
	if s.opts.Handlers.Received == nil {
		s.opts.Handlers.Received = func(peer Addr, data []byte, offset uint16, mtu uint16) {
			log.WithFields(logrus.Fields{
				"peer":   peer,
				"data":   fmt.Sprintf("% x", data),
				"offset": offset,
				"mtu":    mtu,
			}).Info("[GATTS] received data")
		}
	}
	return s
}

// Phase derives the bring-up phase from the handles known so far.
func (s *session) Phase() Phase {
	switch {
	case !s.ifaceOK:
		return PhaseUnregistered
	case s.service == 0:
		return PhaseAppRegistered
	case !s.started:
		return PhaseServiceCreated
	case s.recv == 0 || s.ind == 0:
		return PhaseCharacteristicsPending
	case s.cccd == 0:
		return PhaseDescriptorPending
	}
	return PhaseReady
}

func (s *session) handle(ev Event) error {
	s.log.WithField("event", fmt.Sprintf("%+v", ev)).Debugf("[GATTS] got %s event", ev.eventName())

	switch ev := ev.(type) {
	case AdvertisingConfigured:
		return s.onAdvertisingConfigured(ev)
	case AdvertisingStarted:
		return CheckBT("start advertising", ev.Status)
	case ConnParamsUpdated:
		return CheckBT("update connection parameters", ev.Status)
	case AppRegistered:
		return s.onAppRegistered(ev)
	case ServiceCreated:
		return s.onServiceCreated(ev)
	case ServiceStarted:
		return s.onServiceStarted(ev)
	case CharacteristicAdded:
		return s.onCharacteristicAdded(ev)
	case DescriptorAdded:
		return s.onDescriptorAdded(ev)
	case ServiceDeleted:
		return s.onServiceDeleted(ev)
	case ServiceUnregistered:
		return s.onServiceUnregistered(ev)
	case MTUChanged:
		s.onMTU(ev)
	case PeerConnected:
		return s.onConnected(ev)
	case PeerDisconnected:
		s.onDisconnected(ev)
	case Write:
		return s.onWrite(ev)
	case ExecWrite:
		return s.onExecWrite(ev)
	case Confirm:
		return s.onConfirm(ev)
	}
	return nil
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		Phase:            s.Phase().String(),
		ServiceHandle:    s.service,
		RecvHandle:       s.recv,
		IndHandle:        s.ind,
		CCCDHandle:       s.cccd,
		Connections:      s.conns.snapshot(),
		QueuedBroadcasts: len(s.queue),
		IndicationsSent:  s.sent,
	}
	if s.pending != nil {
		snap.PendingPeer = s.pending.peer
	}
	return snap
}
