//go:build linux

package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// hostStack wraps tinygo-org/bluetooth on BlueZ. Peer addresses are MAC
// addresses as reported by BlueZ.
type hostStack struct {
	adapter *bluetooth.Adapter
}

// OpenHostStack returns the default host adapter.
func OpenHostStack() (Stack, error) {
	return &hostStack{adapter: bluetooth.DefaultAdapter}, nil
}

func (h *hostStack) Enable() error {
	if err := h.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	return nil
}

func (h *hostStack) SetConnectHandler(handler func(peer string, connected bool)) {
	h.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		handler(device.Address.String(), connected)
	})
}

func (h *hostStack) ConfigureAdvertisement(localName string, serviceUUIDs []bluetooth.UUID) error {
	return h.adapter.DefaultAdvertisement().Configure(bluetooth.AdvertisementOptions{
		LocalName:    localName,
		ServiceUUIDs: serviceUUIDs,
	})
}

func (h *hostStack) StartAdvertisement() error {
	return h.adapter.DefaultAdvertisement().Start()
}

func (h *hostStack) AddService(spec ServiceSpec) ([]Characteristic, error) {
	handles := make([]bluetooth.Characteristic, len(spec.Characteristics))
	svc := &bluetooth.Service{UUID: spec.UUID}
	for i, c := range spec.Characteristics {
		cfg := bluetooth.CharacteristicConfig{
			Handle: &handles[i],
			UUID:   c.UUID,
			Flags:  c.Flags,
			Value:  c.Value,
		}
		if onWrite := c.OnWrite; onWrite != nil {
			// The stack may reuse value after the callback returns.
			cfg.WriteEvent = func(_ bluetooth.Connection, offset int, value []byte) {
				onWrite(offset, append([]byte(nil), value...))
			}
		}
		svc.Characteristics = append(svc.Characteristics, cfg)
	}
	if err := h.adapter.AddService(svc); err != nil {
		return nil, fmt.Errorf("ble: add service %s: %w", spec.UUID, err)
	}

	chars := make([]Characteristic, len(handles))
	for i := range handles {
		chars[i] = &handles[i]
	}
	return chars, nil
}
