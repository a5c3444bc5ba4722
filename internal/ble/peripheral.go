package ble

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/chaz8081/navelo-gatts/internal/gatts"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// HostInterface is the interface handle reported for the registered app.
const HostInterface gatts.Interface = 1

// reasonRemoteTerminated is the HCI reason reported for disconnects, since
// the host stack does not expose the real one.
const reasonRemoteTerminated = 0x13

var errNotRegistered = errors.New("ble: app not registered")

// pendingService is the service being declared. The host stack publishes a
// service in one call, so declarations are collected until the CCCD arrives.
type pendingService struct {
	id      gatts.ServiceID
	handle  gatts.Handle
	budget  uint16
	used    uint16
	chars   []pendingChar
	started bool
}

type pendingChar struct {
	cfg   gatts.CharacteristicConfig
	value gatts.Handle
}

// Peripheral implements gatts.Adapter on a Stack. Commands are acknowledged
// by synthetic events delivered in order on a dispatcher goroutine.
//
// The host stack keeps the CCCD itself and does not report per-central
// subscriptions, so every connected central is reported as subscribed right
// after it connects. Indications are pushed to all subscribed centrals by a
// single host write; Peripheral writes once per broadcast round and confirms
// each connection as soon as that write returns.
type Peripheral struct {
	stack Stack
	log   logrus.FieldLogger
	disp  *dispatcher

	mu         sync.Mutex
	onGAP      func(gatts.GAPEvent)
	onGATTS    func(gatts.GATTSEvent)
	registered bool
	appID      uint16
	name       string
	svc        *pendingService
	cccd       gatts.Handle
	chars      map[gatts.Handle]Characteristic // by value handle
	peers      map[string]gatts.ConnID
	order      []string        // connected peers, oldest first
	admitted   map[string]bool // peers the session took into its table
	nextConn   gatts.ConnID
	nextTrans  gatts.TransID

	// current indication round
	roundData  []byte
	roundSent  map[gatts.ConnID]bool
	roundConns map[gatts.ConnID]bool // connected at the last host write
}

// NewPeripheral creates a Peripheral on stack.
func NewPeripheral(stack Stack, log logrus.FieldLogger) *Peripheral {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Peripheral{
		stack:     stack,
		log:       log,
		disp:      newDispatcher(),
		chars:     make(map[gatts.Handle]Characteristic),
		peers:      make(map[string]gatts.ConnID),
		admitted:   make(map[string]bool),
		roundSent:  make(map[gatts.ConnID]bool),
		roundConns: make(map[gatts.ConnID]bool),
	}
}

// Close stops event delivery.
func (p *Peripheral) Close() error {
	p.disp.close()
	return nil
}

func (p *Peripheral) SubscribeGAP(handler func(gatts.GAPEvent)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onGAP = handler
	return nil
}

func (p *Peripheral) SubscribeGATTS(handler func(gatts.GATTSEvent)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onGATTS = handler
	return nil
}

// emitGAP and emitGATTS must be called with p.mu held.
func (p *Peripheral) emitGAP(ev gatts.GAPEvent) {
	if h := p.onGAP; h != nil {
		p.disp.post(func() { h(ev) })
	}
}

func (p *Peripheral) emitGATTS(ev gatts.GATTSEvent) {
	if h := p.onGATTS; h != nil {
		p.disp.post(func() { h(ev) })
	}
}

// RegisterApp enables the host adapter and hooks its connection callback.
func (p *Peripheral) RegisterApp(appID uint16) error {
	if err := p.stack.Enable(); err != nil {
		return err
	}
	p.stack.SetConnectHandler(p.onConnect)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = true
	p.appID = appID
	p.log.WithField("app_id", appID).Info("[BLE] host adapter enabled")
	p.emitGATTS(gatts.AppRegistered{Status: gatts.GATTOk, AppID: appID, Interface: HostInterface})
	return nil
}

func (p *Peripheral) SetDeviceName(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
	return nil
}

func (p *Peripheral) SetAdvConfig(cfg gatts.AdvConfig) error {
	p.mu.Lock()
	name := ""
	if cfg.IncludeName {
		name = p.name
	}
	p.mu.Unlock()

	status := gatts.BTSuccess
	if err := p.stack.ConfigureAdvertisement(name, []bluetooth.UUID{cfg.ServiceUUID}); err != nil {
		p.log.WithError(err).Warn("[BLE] advertisement configuration failed")
		status = gatts.BTFail
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitGAP(gatts.AdvertisingConfigured{Status: status})
	return nil
}

func (p *Peripheral) StartAdvertising() error {
	status := gatts.BTSuccess
	if err := p.stack.StartAdvertisement(); err != nil {
		p.log.WithError(err).Warn("[BLE] advertisement start failed")
		status = gatts.BTFail
	} else {
		p.log.Info("[BLE] advertising")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitGAP(gatts.AdvertisingStarted{Status: status})
	return nil
}

// CreateService opens a service declaration. Handles are assigned the way an
// attribute database lays them out: service, then declaration and value of
// each characteristic, then descriptors.
func (p *Peripheral) CreateService(iface gatts.Interface, id gatts.ServiceID, numHandles uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.registered || iface != HostInterface {
		return errNotRegistered
	}
	if p.svc != nil {
		p.emitGATTS(gatts.ServiceCreated{Status: gatts.GATTDuplicateReg, ServiceHandle: p.svc.handle, ServiceID: id})
		return nil
	}
	p.svc = &pendingService{id: id, handle: 0x0028, budget: numHandles, used: 1}
	p.emitGATTS(gatts.ServiceCreated{Status: gatts.GATTOk, ServiceHandle: p.svc.handle, ServiceID: id})
	return nil
}

func (p *Peripheral) StartService(service gatts.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := gatts.GATTOk
	if p.svc == nil || p.svc.handle != service {
		status = gatts.GATTInvalidHandle
	} else {
		p.svc.started = true
	}
	p.emitGATTS(gatts.ServiceStarted{Status: status, ServiceHandle: service})
	return nil
}

// allocate reserves n handles and returns the first one.
func (s *pendingService) allocate(n uint16) (gatts.Handle, bool) {
	if s.used+n > s.budget {
		return 0, false
	}
	h := s.handle + gatts.Handle(s.used)
	s.used += n
	return h, true
}

func (p *Peripheral) AddCharacteristic(service gatts.Handle, cfg gatts.CharacteristicConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev := gatts.CharacteristicAdded{ServiceHandle: service, UUID: cfg.UUID}
	if p.svc == nil || p.svc.handle != service {
		ev.Status = gatts.GATTInvalidHandle
	} else if decl, ok := p.svc.allocate(2); !ok {
		ev.Status = gatts.GATTNoResources
	} else {
		ev.AttrHandle = decl + 1
		p.svc.chars = append(p.svc.chars, pendingChar{cfg: cfg, value: ev.AttrHandle})
	}
	p.emitGATTS(ev)
	return nil
}

// AddDescriptor accepts the CCCD of the indicate characteristic and then
// publishes the whole service on the host stack.
func (p *Peripheral) AddDescriptor(service gatts.Handle, cfg gatts.DescriptorConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev := gatts.DescriptorAdded{ServiceHandle: service, UUID: cfg.UUID}
	switch {
	case p.svc == nil || p.svc.handle != service:
		ev.Status = gatts.GATTInvalidHandle
	case cfg.UUID != gatts.CCCDUUID:
		ev.Status = gatts.GATTRequestNotSupported
	default:
		h, ok := p.svc.allocate(1)
		if !ok {
			ev.Status = gatts.GATTNoResources
			break
		}
		if err := p.publish(); err != nil {
			p.log.WithError(err).Error("[BLE] service registration failed")
			ev.Status = gatts.GATTError
			break
		}
		p.cccd = h
		ev.AttrHandle = h
	}
	p.emitGATTS(ev)
	return nil
}

// publish commits the pending service. Called with p.mu held.
func (p *Peripheral) publish() error {
	spec := ServiceSpec{UUID: p.svc.id.UUID}
	for _, c := range p.svc.chars {
		cs := CharacteristicSpec{UUID: c.cfg.UUID, Flags: flagsOf(c.cfg.Properties)}
		if c.cfg.Properties&(gatts.PropWrite|gatts.PropWriteNoResponse) != 0 {
			handle := c.value
			cs.OnWrite = func(offset int, value []byte) { p.onWrite(handle, offset, value) }
		}
		spec.Characteristics = append(spec.Characteristics, cs)
	}

	chars, err := p.stack.AddService(spec)
	if err != nil {
		return err
	}
	for i, c := range p.svc.chars {
		p.chars[c.value] = chars[i]
	}
	p.log.WithFields(logrus.Fields{
		"uuid":            spec.UUID.String(),
		"characteristics": len(chars),
	}).Info("[BLE] service published")
	return nil
}

func flagsOf(props gatts.Property) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if props&gatts.PropRead != 0 {
		f |= bluetooth.CharacteristicReadPermission
	}
	if props&gatts.PropWrite != 0 {
		f |= bluetooth.CharacteristicWritePermission
	}
	if props&gatts.PropWriteNoResponse != 0 {
		f |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if props&gatts.PropNotify != 0 {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	if props&gatts.PropIndicate != 0 {
		f |= bluetooth.CharacteristicIndicatePermission
	}
	return f
}

// Indicate writes data through the host stack at most once per round and
// confirms conn when the write returns. A round ends when the data changes,
// a connection is indicated twice, or conn was not connected at the last
// host write.
func (p *Peripheral) Indicate(iface gatts.Interface, conn gatts.ConnID, char gatts.Handle, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.chars[char]
	if !ok {
		return fmt.Errorf("ble: indicate: unknown characteristic handle %d", char)
	}

	if p.roundSent[conn] || !p.roundConns[conn] || !bytes.Equal(p.roundData, data) {
		if _, err := c.Write(data); err != nil {
			return fmt.Errorf("ble: indicate: %w", err)
		}
		p.roundData = append(p.roundData[:0], data...)
		p.roundSent = make(map[gatts.ConnID]bool)
		p.roundConns = make(map[gatts.ConnID]bool, len(p.peers))
		for _, id := range p.peers {
			p.roundConns[id] = true
		}
	}
	p.roundSent[conn] = true
	p.emitGATTS(gatts.Confirm{Status: gatts.GATTOk, ConnID: conn, Handle: char})
	return nil
}

// SendResponse is a no-op: the host stack answers ATT requests itself.
func (p *Peripheral) SendResponse(iface gatts.Interface, conn gatts.ConnID, trans gatts.TransID, status gatts.GATTStatus, rsp *gatts.Response) error {
	p.log.WithFields(logrus.Fields{
		"conn_id": conn,
		"trans":   trans,
		"status":  status,
	}).Debug("[BLE] write response handled by host stack")
	return nil
}

// SetConnParams reports the requested parameters as applied. The host
// stack negotiates parameters on its own. The session only calls it for
// peers it admitted, so it also marks peer as admitted.
func (p *Peripheral) SetConnParams(peer gatts.Addr, params gatts.ConnParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.peers[string(peer)]; !ok {
		return fmt.Errorf("ble: set connection params: unknown peer %s", peer)
	}
	p.admitted[string(peer)] = true
	p.emitGAP(gatts.ConnParamsUpdated{
		Status:   gatts.BTSuccess,
		Peer:     peer,
		Interval: params.MaxInterval,
		Latency:  params.Latency,
		Timeout:  params.Timeout,
	})
	return nil
}

func (p *Peripheral) onConnect(peer string, connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !connected {
		id, ok := p.peers[peer]
		if !ok {
			return
		}
		delete(p.peers, peer)
		delete(p.admitted, peer)
		for i, o := range p.order {
			if o == peer {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
		p.log.WithField("peer", peer).Info("[BLE] central disconnected")
		p.emitGATTS(gatts.PeerDisconnected{ConnID: id, Peer: gatts.Addr(peer), Reason: reasonRemoteTerminated})
		return
	}

	if _, ok := p.peers[peer]; ok {
		return
	}
	id := p.nextConn
	p.nextConn++
	p.peers[peer] = id
	p.order = append(p.order, peer)
	p.log.WithFields(logrus.Fields{"peer": peer, "conn_id": id}).Info("[BLE] central connected")
	p.emitGATTS(gatts.PeerConnected{ConnID: id, Peer: gatts.Addr(peer)})

	if p.cccd != 0 {
		p.emitGATTS(gatts.Write{
			ConnID:  id,
			TransID: p.trans(),
			Peer:    gatts.Addr(peer),
			Handle:  p.cccd,
			Value:   []byte{0x02, 0x00},
		})
	}
}

// onWrite reports a central write. The host stack does not say which
// central wrote, so it is attributed to the most recent admitted connection.
func (p *Peripheral) onWrite(handle gatts.Handle, offset int, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	peer, ok := p.lastAdmitted()
	if !ok {
		p.log.WithField("handle", handle).Debug("[BLE] write without an admitted central")
		return
	}
	p.emitGATTS(gatts.Write{
		ConnID:  p.peers[peer],
		TransID: p.trans(),
		Peer:    gatts.Addr(peer),
		Handle:  handle,
		Offset:  uint16(offset),
		Value:   value,
	})
}

// lastAdmitted returns the most recently connected admitted peer. Called
// with p.mu held.
func (p *Peripheral) lastAdmitted() (string, bool) {
	for i := len(p.order) - 1; i >= 0; i-- {
		if p.admitted[p.order[i]] {
			return p.order[i], true
		}
	}
	return "", false
}

func (p *Peripheral) trans() gatts.TransID {
	t := p.nextTrans
	p.nextTrans++
	return t
}

// Compile-time check that Peripheral implements gatts.Adapter.
var _ gatts.Adapter = (*Peripheral)(nil)
