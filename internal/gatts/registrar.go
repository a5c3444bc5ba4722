package gatts

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// advertising payload flag: LE general discoverable
const advFlagGeneralDiscoverable = 0x02

func (s *session) onAdvertisingConfigured(ev AdvertisingConfigured) error {
	if err := CheckBT("configure advertising", ev.Status); err != nil {
		return err
	}
	if err := s.adapter.StartAdvertising(); err != nil {
		return fmt.Errorf("gatts: start advertising: %w", err)
	}
	s.log.Info("[GATTS] advertising start requested")
	return nil
}

// onAppRegistered records the interface, configures advertising and asks for
// the service to be created.
func (s *session) onAppRegistered(ev AppRegistered) error {
	if err := CheckGATT("register app", ev.Status); err != nil {
		return err
	}
	if ev.AppID != s.opts.AppID {
		s.log.WithField("app_id", ev.AppID).Debug("[GATTS] ignoring registration of another app")
		return nil
	}

	s.iface = ev.Interface
	s.ifaceOK = true
	s.log.WithField("interface", ev.Interface).Info("[GATTS] app registered")

	if err := s.adapter.SetDeviceName(s.opts.DeviceName); err != nil {
		return fmt.Errorf("gatts: set device name: %w", err)
	}
	if err := s.adapter.SetAdvConfig(AdvConfig{
		IncludeName:    true,
		IncludeTxPower: true,
		Flag:           advFlagGeneralDiscoverable,
		ServiceUUID:    s.opts.ServiceUUID,
	}); err != nil {
		return fmt.Errorf("gatts: set advertising config: %w", err)
	}
	id := ServiceID{UUID: s.opts.ServiceUUID, InstID: 0, Primary: true}
	if err := s.adapter.CreateService(s.iface, id, s.opts.NumHandles); err != nil {
		return fmt.Errorf("gatts: create service: %w", err)
	}
	return nil
}

// onServiceCreated records the service handle, starts the service and adds
// both characteristics.
func (s *session) onServiceCreated(ev ServiceCreated) error {
	if err := CheckGATT("create service", ev.Status); err != nil {
		return err
	}
	if !s.ifaceOK || ev.ServiceID.UUID != s.opts.ServiceUUID {
		s.log.WithField("handle", ev.ServiceHandle).Debug("[GATTS] ignoring foreign service")
		return nil
	}
	if s.service != 0 && s.service != ev.ServiceHandle {
		s.log.WithFields(logrus.Fields{
			"handle":  ev.ServiceHandle,
			"tracked": s.service,
		}).Debug("[GATTS] ignoring stale service creation")
		return nil
	}

	s.service = ev.ServiceHandle
	s.log.WithField("handle", s.service).Info("[GATTS] service created")

	if err := s.adapter.StartService(s.service); err != nil {
		return fmt.Errorf("gatts: start service: %w", err)
	}
	s.started = true

	if err := s.adapter.AddCharacteristic(s.service, CharacteristicConfig{
		UUID:        s.opts.RecvUUID,
		Permissions: PermWrite,
		Properties:  PropWrite,
		MaxLen:      s.opts.MaxLen,
		AutoRsp:     RspByApp,
	}); err != nil {
		return fmt.Errorf("gatts: add recv characteristic: %w", err)
	}
	if err := s.adapter.AddCharacteristic(s.service, CharacteristicConfig{
		UUID:        s.opts.IndUUID,
		Permissions: PermRead | PermWrite,
		Properties:  PropIndicate,
		MaxLen:      s.opts.MaxLen,
		AutoRsp:     RspByApp,
	}); err != nil {
		return fmt.Errorf("gatts: add ind characteristic: %w", err)
	}
	return nil
}

func (s *session) onServiceStarted(ev ServiceStarted) error {
	if s.service == 0 || ev.ServiceHandle != s.service {
		return nil
	}
	if err := CheckGATT("start service", ev.Status); err != nil {
		s.started = false
		return err
	}
	s.log.WithField("handle", ev.ServiceHandle).Debug("[GATTS] service started")
	return nil
}

// onCharacteristicAdded records the handle of one of our characteristics and
// declares the CCCD once the indicate characteristic exists.
func (s *session) onCharacteristicAdded(ev CharacteristicAdded) error {
	if err := CheckGATT("add characteristic", ev.Status); err != nil {
		return err
	}
	if s.service == 0 || ev.ServiceHandle != s.service {
		s.log.WithField("service", ev.ServiceHandle).Debug("[GATTS] ignoring characteristic of stale service")
		return nil
	}

	switch ev.UUID {
	case s.opts.RecvUUID:
		s.recv = ev.AttrHandle
		s.log.WithField("handle", s.recv).Info("[GATTS] recv characteristic added")
	case s.opts.IndUUID:
		s.ind = ev.AttrHandle
		s.log.WithField("handle", s.ind).Info("[GATTS] ind characteristic added")
		if err := s.adapter.AddDescriptor(s.service, DescriptorConfig{
			UUID:        CCCDUUID,
			Permissions: PermRead | PermWrite,
		}); err != nil {
			return fmt.Errorf("gatts: add cccd: %w", err)
		}
	}
	return nil
}

func (s *session) onDescriptorAdded(ev DescriptorAdded) error {
	if err := CheckGATT("add descriptor", ev.Status); err != nil {
		return err
	}
	if ev.UUID != CCCDUUID || s.service == 0 || ev.ServiceHandle != s.service {
		return nil
	}
	s.cccd = ev.AttrHandle
	s.log.WithField("handle", s.cccd).Info("[GATTS] cccd added")
	if s.Phase() == PhaseReady {
		s.log.Info("[GATTS] service ready")
	}
	return nil
}

func (s *session) onServiceDeleted(ev ServiceDeleted) error {
	if err := CheckGATT("delete service", ev.Status); err != nil {
		return err
	}
	if s.service == 0 || ev.ServiceHandle != s.service {
		return nil
	}
	s.started = false
	s.recv, s.ind, s.cccd = 0, 0, 0
	s.log.WithField("handle", ev.ServiceHandle).Info("[GATTS] service deleted")
	return nil
}

func (s *session) onServiceUnregistered(ev ServiceUnregistered) error {
	if err := CheckGATT("unregister service", ev.Status); err != nil {
		return err
	}
	if s.service == 0 || ev.ServiceHandle != s.service {
		return nil
	}
	s.ifaceOK = false
	s.iface = 0
	s.service = 0
	s.started = false
	s.recv, s.ind, s.cccd = 0, 0, 0
	s.log.WithField("handle", ev.ServiceHandle).Info("[GATTS] service unregistered")
	return nil
}
