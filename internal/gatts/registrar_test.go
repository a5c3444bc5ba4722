package gatts

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistrarReachesReady(t *testing.T) {
	opts := DefaultOptions()
	s, m := readySession(t, opts)

	if s.iface != testIface {
		t.Errorf("iface = %d, want %d", s.iface, testIface)
	}
	got := [4]Handle{s.service, s.recv, s.ind, s.cccd}
	want := [4]Handle{testService, testRecv, testInd, testCCCD}
	if got != want {
		t.Errorf("handles = %v, want %v", got, want)
	}

	wantCalls := []string{
		"set_device_name",
		"set_adv_config",
		"create_service 3 8",
		"start_service 40",
		"add_characteristic 40",
		"add_characteristic 40",
		"add_descriptor 40",
	}
	if calls := m.Calls(); !reflect.DeepEqual(calls, wantCalls) {
		t.Errorf("calls = %v, want %v", calls, wantCalls)
	}
	if m.deviceName != "Navelo" {
		t.Errorf("device name = %q", m.deviceName)
	}
	if !m.advConfig.IncludeName || !m.advConfig.IncludeTxPower || m.advConfig.ServiceUUID != opts.ServiceUUID {
		t.Errorf("adv config = %+v", m.advConfig)
	}
}

func TestRegistrarCharacteristicConfigs(t *testing.T) {
	opts := DefaultOptions()
	_, m := readySession(t, opts)

	if len(m.chars) != 2 {
		t.Fatalf("characteristics = %d, want 2", len(m.chars))
	}
	recv, ind := m.chars[0], m.chars[1]
	if recv.UUID != opts.RecvUUID || recv.Properties != PropWrite || recv.Permissions != PermWrite {
		t.Errorf("recv = %+v", recv)
	}
	if ind.UUID != opts.IndUUID || ind.Properties != PropIndicate || ind.Permissions != PermRead|PermWrite {
		t.Errorf("ind = %+v", ind)
	}
	for _, c := range m.chars {
		if c.MaxLen != 200 || c.AutoRsp != RspByApp {
			t.Errorf("%s: max len %d, auto rsp %d", c.UUID, c.MaxLen, c.AutoRsp)
		}
	}
	if len(m.descriptors) != 1 || m.descriptors[0].UUID != CCCDUUID || m.descriptors[0].Permissions != PermRead|PermWrite {
		t.Errorf("descriptors = %+v", m.descriptors)
	}
}

func TestRegistrarIgnoresMismatchedServiceHandle(t *testing.T) {
	opts := DefaultOptions()
	s := newSession(newMockAdapter(), quietLogger(), opts)
	s.handle(AppRegistered{Status: GATTOk, AppID: opts.AppID, Interface: testIface})
	s.handle(ServiceCreated{Status: GATTOk, ServiceHandle: testService, ServiceID: ServiceID{UUID: opts.ServiceUUID}})

	stale := Handle(99)
	events := []GATTSEvent{
		ServiceCreated{Status: GATTOk, ServiceHandle: stale, ServiceID: ServiceID{UUID: opts.ServiceUUID}},
		CharacteristicAdded{Status: GATTOk, AttrHandle: 100, ServiceHandle: stale, UUID: opts.RecvUUID},
		CharacteristicAdded{Status: GATTOk, AttrHandle: 101, ServiceHandle: stale, UUID: opts.IndUUID},
		DescriptorAdded{Status: GATTOk, AttrHandle: 102, ServiceHandle: stale, UUID: CCCDUUID},
		ServiceDeleted{Status: GATTOk, ServiceHandle: stale},
		ServiceUnregistered{Status: GATTOk, ServiceHandle: stale},
	}
	before := s.snapshot()
	for _, ev := range events {
		if err := s.handle(ev); err != nil {
			t.Fatalf("%s: %v", ev.eventName(), err)
		}
		if after := s.snapshot(); !reflect.DeepEqual(after, before) {
			t.Fatalf("%s changed state: %+v -> %+v", ev.eventName(), before, after)
		}
	}
}

func TestRegistrarIgnoresOtherApp(t *testing.T) {
	m := newMockAdapter()
	s := newSession(m, quietLogger(), DefaultOptions())
	if err := s.handle(AppRegistered{Status: GATTOk, AppID: 7, Interface: 9}); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseUnregistered {
		t.Errorf("phase = %s, want unregistered", s.Phase())
	}
	if len(m.Calls()) != 0 {
		t.Errorf("calls = %v, want none", m.Calls())
	}
}

func TestRegistrarFailedStepAbortsBringUp(t *testing.T) {
	m := newMockAdapter()
	s := newSession(m, quietLogger(), DefaultOptions())

	err := s.handle(AppRegistered{Status: GATTInternalError, AppID: 0, Interface: testIface})
	var opErr *OperationFailedError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %v, want *OperationFailedError", err)
	}
	if s.Phase() != PhaseUnregistered {
		t.Errorf("phase = %s, want unregistered", s.Phase())
	}
	if len(m.Calls()) != 0 {
		t.Errorf("calls after failure = %v", m.Calls())
	}
}

func TestRegistrarPhases(t *testing.T) {
	opts := DefaultOptions()
	s := newSession(newMockAdapter(), quietLogger(), opts)
	steps := []struct {
		ev   GATTSEvent
		want Phase
	}{
		{AppRegistered{Status: GATTOk, AppID: 0, Interface: testIface}, PhaseAppRegistered},
		{ServiceCreated{Status: GATTOk, ServiceHandle: testService, ServiceID: ServiceID{UUID: opts.ServiceUUID}}, PhaseCharacteristicsPending},
		{CharacteristicAdded{Status: GATTOk, AttrHandle: testRecv, ServiceHandle: testService, UUID: opts.RecvUUID}, PhaseCharacteristicsPending},
		{CharacteristicAdded{Status: GATTOk, AttrHandle: testInd, ServiceHandle: testService, UUID: opts.IndUUID}, PhaseDescriptorPending},
		{DescriptorAdded{Status: GATTOk, AttrHandle: testCCCD, ServiceHandle: testService, UUID: CCCDUUID}, PhaseReady},
	}
	if s.Phase() != PhaseUnregistered {
		t.Fatalf("initial phase = %s", s.Phase())
	}
	for _, st := range steps {
		if err := s.handle(st.ev); err != nil {
			t.Fatalf("%s: %v", st.ev.eventName(), err)
		}
		if got := s.Phase(); got != st.want {
			t.Errorf("after %s: phase = %s, want %s", st.ev.eventName(), got, st.want)
		}
	}
}

func TestRegistrarServiceDeletedAndUnregistered(t *testing.T) {
	s, _ := readySession(t, DefaultOptions())

	if err := s.handle(ServiceDeleted{Status: GATTOk, ServiceHandle: testService}); err != nil {
		t.Fatal(err)
	}
	if s.recv != 0 || s.ind != 0 || s.cccd != 0 {
		t.Errorf("handles after delete: recv=%d ind=%d cccd=%d", s.recv, s.ind, s.cccd)
	}
	if s.service != testService {
		t.Errorf("service = %d, want %d", s.service, testService)
	}
	if s.Phase() != PhaseServiceCreated {
		t.Errorf("phase = %s, want service_created", s.Phase())
	}

	if err := s.handle(ServiceUnregistered{Status: GATTOk, ServiceHandle: testService}); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseUnregistered || s.service != 0 {
		t.Errorf("phase = %s service = %d after unregister", s.Phase(), s.service)
	}

	// Repeating on a cleared session is harmless.
	if err := s.handle(ServiceDeleted{Status: GATTOk, ServiceHandle: testService}); err != nil {
		t.Fatal(err)
	}
	if err := s.handle(ServiceUnregistered{Status: GATTOk, ServiceHandle: 0}); err != nil {
		t.Fatal(err)
	}
}

func TestAdvertisingConfiguredStartsAdvertising(t *testing.T) {
	m := newMockAdapter()
	s := newSession(m, quietLogger(), DefaultOptions())

	if err := s.handle(AdvertisingConfigured{Status: BTFail}); err == nil {
		t.Fatal("want error for failed advertising config")
	}
	if len(m.Calls()) != 0 {
		t.Fatalf("calls after failed config = %v", m.Calls())
	}

	if err := s.handle(AdvertisingConfigured{Status: BTSuccess}); err != nil {
		t.Fatal(err)
	}
	if calls := m.Calls(); len(calls) != 1 || calls[0] != "start_advertising" {
		t.Errorf("calls = %v, want [start_advertising]", calls)
	}
}
