// Package ble runs the Navelo GATT server on a host Bluetooth stack through
// tinygo.org/x/bluetooth. Peripheral adapts the host stack to the
// confirmation-event protocol expected by the gatts session.
package ble

import "tinygo.org/x/bluetooth"

// Characteristic is a characteristic committed to the host stack.
type Characteristic interface {
	// Write updates the value and pushes it to every subscribed central.
	Write(p []byte) (int, error)
}

// CharacteristicSpec describes one characteristic of a ServiceSpec.
type CharacteristicSpec struct {
	UUID  bluetooth.UUID
	Flags bluetooth.CharacteristicPermissions
	Value []byte
	// OnWrite is called for every central write. May be nil.
	OnWrite func(offset int, value []byte)
}

// ServiceSpec is a primary service to publish.
type ServiceSpec struct {
	UUID            bluetooth.UUID
	Characteristics []CharacteristicSpec
}

// Stack abstracts the host BLE stack for testing.
type Stack interface {
	// Enable powers on the adapter.
	Enable() error
	// SetConnectHandler registers the callback for central connects and
	// disconnects. peer is the central's address.
	SetConnectHandler(handler func(peer string, connected bool))
	// ConfigureAdvertisement sets the advertising payload.
	ConfigureAdvertisement(localName string, serviceUUIDs []bluetooth.UUID) error
	// StartAdvertisement starts advertising with the configured payload.
	StartAdvertisement() error
	// AddService publishes a service. The returned characteristics are in
	// the order of spec.Characteristics.
	AddService(spec ServiceSpec) ([]Characteristic, error)
}
