// Package gatts implements the GATT server session manager for the Navelo
// peripheral: service bring-up, the connection table, write handling and the
// confirmed-indication broadcast loop. The radio stack is reached only
// through the Adapter interface.
package gatts

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// Interface identifies a registered GATT application on the stack.
type Interface uint8

// Handle is a stack-assigned attribute handle. ATT reserves 0x0000, so the
// zero Handle means "not known yet".
type Handle uint16

// ConnID identifies a connection on the stack.
type ConnID uint16

// TransID identifies a request/response transaction.
type TransID uint32

// Addr is a peer device address.
type Addr string

// Permission is an attribute access permission bit set.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
)

func (p Permission) String() string {
	switch p {
	case 0:
		return "none"
	case PermRead:
		return "read"
	case PermWrite:
		return "write"
	case PermRead | PermWrite:
		return "read|write"
	}
	return fmt.Sprintf("Permission(0x%02x)", uint8(p))
}

// Property is a characteristic property bit set.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropWriteNoResponse
	PropNotify
	PropIndicate
)

// AutoResponse selects who answers reads and writes of an attribute.
type AutoResponse uint8

const (
	// RspByApp means the application sends every response itself.
	RspByApp AutoResponse = iota
	RspByStack
)

// ServiceID names a service to create.
type ServiceID struct {
	UUID    bluetooth.UUID
	InstID  uint8
	Primary bool
}

// CharacteristicConfig describes a characteristic to add to a service.
type CharacteristicConfig struct {
	UUID        bluetooth.UUID
	Permissions Permission
	Properties  Property
	MaxLen      uint16
	AutoRsp     AutoResponse
}

// DescriptorConfig describes a descriptor to add to the last characteristic.
type DescriptorConfig struct {
	UUID        bluetooth.UUID
	Permissions Permission
}

// AdvConfig is the advertising payload configuration.
type AdvConfig struct {
	IncludeName    bool
	IncludeTxPower bool
	Flag           uint8
	ServiceUUID    bluetooth.UUID
}

// ConnParams are the preferred connection parameters requested for a peer.
// Intervals are in 1.25ms units, the supervision timeout in 10ms units.
type ConnParams struct {
	MinInterval uint16 `yaml:"min_interval"`
	MaxInterval uint16 `yaml:"max_interval"`
	Latency     uint16 `yaml:"latency"`
	Timeout     uint16 `yaml:"timeout"`
}

// CCCDUUID is the Client Characteristic Configuration Descriptor UUID.
var CCCDUUID = bluetooth.New16BitUUID(0x2902)

// cccdIndicate is the CCCD value enabling indications.
const cccdIndicate uint16 = 0x0002

// Adapter is the command side of the radio stack plus its two event
// subscriptions. Commands are acknowledged asynchronously by events.
type Adapter interface {
	// SubscribeGAP registers the handler for advertising and connection
	// parameter events.
	SubscribeGAP(handler func(GAPEvent)) error
	// SubscribeGATTS registers the handler for GATT server events.
	SubscribeGATTS(handler func(GATTSEvent)) error

	RegisterApp(appID uint16) error
	SetDeviceName(name string) error
	SetAdvConfig(cfg AdvConfig) error
	StartAdvertising() error
	CreateService(iface Interface, id ServiceID, numHandles uint16) error
	StartService(service Handle) error
	AddCharacteristic(service Handle, cfg CharacteristicConfig) error
	AddDescriptor(service Handle, cfg DescriptorConfig) error
	// Indicate sends a confirmed indication of data on char to one connection.
	Indicate(iface Interface, conn ConnID, char Handle, data []byte) error
	// SendResponse answers a request. rsp may be nil for a bare status.
	SendResponse(iface Interface, conn ConnID, trans TransID, status GATTStatus, rsp *Response) error
	SetConnParams(peer Addr, params ConnParams) error
}
