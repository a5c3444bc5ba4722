package gatts

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// Default identifiers of the Navelo service.
var (
	DefaultServiceUUID = mustParseUUID("ad91b201-7347-4047-9e17-3bed82d75f9d")
	DefaultRecvUUID    = mustParseUUID("b6fccb50-87be-44f3-ae22-f85485ea42c4")
	DefaultIndUUID     = mustParseUUID("503de214-8682-46c4-828f-d59144da41be")
)

// ErrServerClosed is returned by Indicate and Snapshot once Run has returned.
var ErrServerClosed = errors.New("gatts: server closed")

// Handlers are the application callbacks. They run on the event loop and
// must not call back into the Server.
type Handlers struct {
	Subscribed   func(peer Addr)
	Unsubscribed func(peer Addr)
	// Received is called for every write to the recv characteristic. mtu is
	// zero until one was negotiated.
	Received func(peer Addr, data []byte, offset uint16, mtu uint16)
}

// Options configures a Server.
type Options struct {
	AppID          uint16
	DeviceName     string
	ServiceUUID    bluetooth.UUID
	RecvUUID       bluetooth.UUID
	IndUUID        bluetooth.UUID
	MaxLen         uint16 // per characteristic
	NumHandles     uint16 // attribute budget of the service
	MaxConnections int
	ConnParams     ConnParams
	EventQueue     int // adapter event buffer
	Handlers       Handlers
}

// DefaultOptions returns the options of the reference firmware.
func DefaultOptions() Options {
	return Options{
		AppID:          0,
		DeviceName:     "Navelo",
		ServiceUUID:    DefaultServiceUUID,
		RecvUUID:       DefaultRecvUUID,
		IndUUID:        DefaultIndUUID,
		MaxLen:         200,
		NumHandles:     8,
		MaxConnections: 2,
		ConnParams:     ConnParams{MinInterval: 10, MaxInterval: 20, Latency: 0, Timeout: 400},
		EventQueue:     64,
	}
}

func (o *Options) validate() error {
	if o.MaxConnections <= 0 {
		return fmt.Errorf("gatts: max connections must be > 0, got %d", o.MaxConnections)
	}
	if o.MaxLen == 0 || o.MaxLen > MaxAttrLen {
		return fmt.Errorf("gatts: max length must be in 1..%d, got %d", MaxAttrLen, o.MaxLen)
	}
	// service declaration, two characteristic declarations and values, CCCD
	if o.NumHandles < 6 {
		return fmt.Errorf("gatts: attribute budget must be >= 6, got %d", o.NumHandles)
	}
	if o.RecvUUID == o.IndUUID || o.ServiceUUID == o.RecvUUID || o.ServiceUUID == o.IndUUID {
		return errors.New("gatts: service and characteristic UUIDs must be distinct")
	}
	return nil
}

// Server is a GATT server session. All session state is owned by the
// goroutine running Run; other goroutines talk to it through channels.
// Servers are single-shot: once Run has returned, create a new Server.
type Server struct {
	adapter Adapter
	log     logrus.FieldLogger
	sess    *session

	events    chan Event
	requests  chan *broadcast
	snapshots chan chan Snapshot
	closed    chan struct{}
	running   atomic.Bool
}

// NewServer creates a Server driving adapter.
func NewServer(adapter Adapter, log logrus.FieldLogger, opts Options) (*Server, error) {
	if adapter == nil {
		return nil, errors.New("gatts: nil adapter")
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = 64
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		adapter:   adapter,
		log:       log,
		sess:      newSession(adapter, log, opts),
		events:    make(chan Event, opts.EventQueue),
		requests:  make(chan *broadcast),
		snapshots: make(chan chan Snapshot),
		closed:    make(chan struct{}),
	}, nil
}

// Run subscribes to the adapter, registers the application and processes
// events until ctx is done or the session hits a fatal error. It returns nil
// on cancellation and ErrUnexpectedConfirmation (wrapped) on desync.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("gatts: server already started")
	}
	defer func() {
		close(s.closed)
		s.sess.shutdown()
	}()

	if err := s.adapter.SubscribeGAP(func(ev GAPEvent) { s.deliver(ev) }); err != nil {
		return fmt.Errorf("gatts: subscribe gap: %w", err)
	}
	if err := s.adapter.SubscribeGATTS(func(ev GATTSEvent) { s.deliver(ev) }); err != nil {
		return fmt.Errorf("gatts: subscribe gatts: %w", err)
	}
	s.log.Info("[GATTS] gap and gatts subscriptions initialized")

	if err := s.adapter.RegisterApp(s.sess.opts.AppID); err != nil {
		return fmt.Errorf("gatts: register app: %w", err)
	}
	s.log.WithField("app_id", s.sess.opts.AppID).Info("[GATTS] app registration requested")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("[GATTS] session stopped")
			return nil
		case ev := <-s.events:
			if err := s.dispatch(ev); err != nil {
				return err
			}
		case b := <-s.requests:
			if err := s.drain(); err != nil {
				b.done <- err
				return err
			}
			s.sess.enqueue(b)
		case reply := <-s.snapshots:
			if err := s.drain(); err != nil {
				return err
			}
			reply <- s.sess.snapshot()
		}
	}
}

// deliver hands an adapter event to the loop. It blocks while the queue is
// full and drops the event once the session is closed.
func (s *Server) deliver(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

// drain processes every event already queued, so that a request observes
// all events delivered before it.
func (s *Server) drain() error {
	for {
		select {
		case ev := <-s.events:
			if err := s.dispatch(ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Server) dispatch(ev Event) error {
	err := s.sess.handle(ev)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnexpectedConfirmation) {
		s.log.WithError(err).Error("[GATTS] session desynchronized, aborting")
		return err
	}
	s.log.WithError(err).WithField("event", ev.eventName()).Warn("[GATTS] event handling failed")
	return nil
}

// Snapshot returns a copy of the session state.
func (s *Server) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case s.snapshots <- reply:
	case <-s.closed:
		return Snapshot{}, ErrServerClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.closed:
		return Snapshot{}, ErrServerClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	Phase            string       `json:"phase"`
	ServiceHandle    Handle       `json:"service_handle"`
	RecvHandle       Handle       `json:"recv_handle"`
	IndHandle        Handle       `json:"ind_handle"`
	CCCDHandle       Handle       `json:"cccd_handle"`
	Connections      []Connection `json:"connections"`
	PendingPeer      Addr         `json:"pending_peer,omitempty"`
	QueuedBroadcasts int          `json:"queued_broadcasts"`
	IndicationsSent  uint64       `json:"indications_sent"`
}

func mustParseUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic("gatts: bad uuid " + s + ": " + err.Error())
	}
	return u
}
