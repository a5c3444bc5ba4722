package gatts

import "tinygo.org/x/bluetooth"

// Event is any event delivered by the adapter.
type Event interface {
	eventName() string
}

// GAPEvent is an advertising or connection-parameter event.
type GAPEvent interface {
	Event
	gapEvent()
}

// GATTSEvent is a GATT server event.
type GATTSEvent interface {
	Event
	gattsEvent()
}

// AdvertisingConfigured acknowledges SetAdvConfig.
type AdvertisingConfigured struct {
	Status BTStatus
}

// AdvertisingStarted acknowledges StartAdvertising.
type AdvertisingStarted struct {
	Status BTStatus
}

// ConnParamsUpdated reports the parameters in effect for a peer.
type ConnParamsUpdated struct {
	Status   BTStatus
	Peer     Addr
	Interval uint16
	Latency  uint16
	Timeout  uint16
}

func (AdvertisingConfigured) gapEvent() {}
func (AdvertisingStarted) gapEvent()    {}
func (ConnParamsUpdated) gapEvent()     {}

func (AdvertisingConfigured) eventName() string { return "advertising_configured" }
func (AdvertisingStarted) eventName() string    { return "advertising_started" }
func (ConnParamsUpdated) eventName() string     { return "conn_params_updated" }

// AppRegistered acknowledges RegisterApp.
type AppRegistered struct {
	Status    GATTStatus
	AppID     uint16
	Interface Interface
}

// ServiceCreated acknowledges CreateService.
type ServiceCreated struct {
	Status        GATTStatus
	ServiceHandle Handle
	ServiceID     ServiceID
}

// ServiceStarted acknowledges StartService.
type ServiceStarted struct {
	Status        GATTStatus
	ServiceHandle Handle
}

// CharacteristicAdded acknowledges AddCharacteristic.
type CharacteristicAdded struct {
	Status        GATTStatus
	AttrHandle    Handle
	ServiceHandle Handle
	UUID          bluetooth.UUID
}

// DescriptorAdded acknowledges AddDescriptor.
type DescriptorAdded struct {
	Status        GATTStatus
	AttrHandle    Handle
	ServiceHandle Handle
	UUID          bluetooth.UUID
}

// ServiceDeleted reports that a service was removed from the database.
type ServiceDeleted struct {
	Status        GATTStatus
	ServiceHandle Handle
}

// ServiceUnregistered reports that the application was unregistered.
type ServiceUnregistered struct {
	Status        GATTStatus
	ServiceHandle Handle
}

// MTUChanged reports the MTU negotiated on a connection.
type MTUChanged struct {
	ConnID ConnID
	MTU    uint16
}

// PeerConnected reports a new connection.
type PeerConnected struct {
	ConnID ConnID
	Peer   Addr
}

// PeerDisconnected reports a dropped connection.
type PeerDisconnected struct {
	ConnID ConnID
	Peer   Addr
	Reason uint8
}

// Write is an inbound write request.
type Write struct {
	ConnID  ConnID
	TransID TransID
	Peer    Addr
	Handle  Handle
	Offset  uint16
	NeedRsp bool
	IsPrep  bool
	Value   []byte
}

// ExecWrite asks to execute (or cancel) the queued prepared writes.
type ExecWrite struct {
	ConnID  ConnID
	TransID TransID
	Peer    Addr
	Execute bool
}

// Confirm reports that a peer acknowledged an indication.
type Confirm struct {
	Status GATTStatus
	ConnID ConnID
	Handle Handle
}

func (AppRegistered) gattsEvent()       {}
func (ServiceCreated) gattsEvent()      {}
func (ServiceStarted) gattsEvent()      {}
func (CharacteristicAdded) gattsEvent() {}
func (DescriptorAdded) gattsEvent()     {}
func (ServiceDeleted) gattsEvent()      {}
func (ServiceUnregistered) gattsEvent() {}
func (MTUChanged) gattsEvent()          {}
func (PeerConnected) gattsEvent()       {}
func (PeerDisconnected) gattsEvent()    {}
func (Write) gattsEvent()               {}
func (ExecWrite) gattsEvent()           {}
func (Confirm) gattsEvent()             {}

func (AppRegistered) eventName() string       { return "app_registered" }
func (ServiceCreated) eventName() string      { return "service_created" }
func (ServiceStarted) eventName() string      { return "service_started" }
func (CharacteristicAdded) eventName() string { return "characteristic_added" }
func (DescriptorAdded) eventName() string     { return "descriptor_added" }
func (ServiceDeleted) eventName() string      { return "service_deleted" }
func (ServiceUnregistered) eventName() string { return "service_unregistered" }
func (MTUChanged) eventName() string          { return "mtu" }
func (PeerConnected) eventName() string       { return "peer_connected" }
func (PeerDisconnected) eventName() string    { return "peer_disconnected" }
func (Write) eventName() string               { return "write" }
func (ExecWrite) eventName() string           { return "exec_write" }
func (Confirm) eventName() string             { return "confirm" }
