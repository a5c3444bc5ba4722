package gatts

import (
	"bytes"
	"errors"
	"testing"
)

// callbackLog counts application callbacks.
type callbackLog struct {
	subscribed   []Addr
	unsubscribed []Addr
	received     [][]byte
	mtus         []uint16
}

func (c *callbackLog) handlers() Handlers {
	return Handlers{
		Subscribed:   func(peer Addr) { c.subscribed = append(c.subscribed, peer) },
		Unsubscribed: func(peer Addr) { c.unsubscribed = append(c.unsubscribed, peer) },
		Received: func(peer Addr, data []byte, offset uint16, mtu uint16) {
			c.received = append(c.received, append([]byte(nil), data...))
			c.mtus = append(c.mtus, mtu)
		},
	}
}

func connectedSession(t *testing.T, cb *callbackLog) (*session, *mockAdapter) {
	t.Helper()
	opts := DefaultOptions()
	opts.Handlers = cb.handlers()
	s, m := readySession(t, opts)
	if err := s.handle(PeerConnected{ConnID: 1, Peer: "aa"}); err != nil {
		t.Fatal(err)
	}
	return s, m
}

func TestWriteSubscribeIsIdempotent(t *testing.T) {
	cb := &callbackLog{}
	s, _ := connectedSession(t, cb)

	for i := 0; i < 3; i++ {
		if !s.handleWrite(subscribeWrite(1, "aa", 0x02, 0x00)) {
			t.Fatalf("write %d not handled", i)
		}
	}
	if !s.conns.ByConnID(1).Subscribed {
		t.Fatal("not subscribed")
	}
	if len(cb.subscribed) != 1 {
		t.Errorf("subscribed callbacks = %d, want 1", len(cb.subscribed))
	}
}

func TestWriteUnsubscribeAfterSubscribe(t *testing.T) {
	cb := &callbackLog{}
	s, _ := connectedSession(t, cb)

	s.handleWrite(subscribeWrite(1, "aa", 0x02, 0x00))
	s.handleWrite(subscribeWrite(1, "aa", 0x00, 0x00))
	s.handleWrite(subscribeWrite(1, "aa", 0x00, 0x00))

	if s.conns.ByConnID(1).Subscribed {
		t.Fatal("still subscribed")
	}
	if len(cb.subscribed) != 1 || len(cb.unsubscribed) != 1 {
		t.Errorf("callbacks: subscribed %d, unsubscribed %d, want 1 and 1", len(cb.subscribed), len(cb.unsubscribed))
	}
}

func TestWriteUnsubscribeWhileUnsubscribedIsSilent(t *testing.T) {
	cb := &callbackLog{}
	s, _ := connectedSession(t, cb)

	// notifications only (0x0001) counts as "not indicate"
	if !s.handleWrite(subscribeWrite(1, "aa", 0x01, 0x00)) {
		t.Fatal("not handled")
	}
	if len(cb.unsubscribed) != 0 {
		t.Errorf("unsubscribed callbacks = %d, want 0", len(cb.unsubscribed))
	}
}

func TestWriteMalformedCCCDIgnored(t *testing.T) {
	tests := []struct {
		name   string
		offset uint16
		value  []byte
	}{
		{"short", 0, []byte{0x02}},
		{"long", 0, []byte{0x02, 0x00, 0x00}},
		{"offset", 1, []byte{0x02, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := &callbackLog{}
			s, _ := connectedSession(t, cb)
			ev := subscribeWrite(1, "aa", tt.value...)
			ev.Offset = tt.offset
			if !s.handleWrite(ev) {
				t.Error("malformed cccd write reported unhandled")
			}
			if s.conns.ByConnID(1).Subscribed || len(cb.subscribed) != 0 {
				t.Error("malformed write changed subscription")
			}
		})
	}
}

func TestWriteRecvForwardsToHandler(t *testing.T) {
	cb := &callbackLog{}
	s, _ := connectedSession(t, cb)
	s.handle(MTUChanged{ConnID: 1, MTU: 185})

	ev := Write{ConnID: 1, Peer: "aa", Handle: testRecv, Value: []byte("hi")}
	if !s.handleWrite(ev) {
		t.Fatal("recv write not handled")
	}
	if len(cb.received) != 1 || !bytes.Equal(cb.received[0], []byte("hi")) {
		t.Errorf("received = %q", cb.received)
	}
	if cb.mtus[0] != 185 {
		t.Errorf("mtu = %d, want 185", cb.mtus[0])
	}
}

func TestWriteUnhandled(t *testing.T) {
	cb := &callbackLog{}
	s, m := connectedSession(t, cb)

	tests := []struct {
		name string
		ev   Write
	}{
		{"unknown connection", Write{ConnID: 9, Peer: "zz", Handle: testRecv, NeedRsp: true}},
		{"foreign handle", Write{ConnID: 1, Peer: "aa", Handle: 77, NeedRsp: true}},
		{"ind value handle", Write{ConnID: 1, Peer: "aa", Handle: testInd, NeedRsp: true}},
	}
	for _, tt := range tests {
		if s.handleWrite(tt.ev) {
			t.Errorf("%s: handled", tt.name)
		}
		if err := s.handle(tt.ev); err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
	}
	if n := len(m.Responses()); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
}

func TestWriteResponses(t *testing.T) {
	cb := &callbackLog{}
	s, m := connectedSession(t, cb)

	// no response requested
	s.handle(Write{ConnID: 1, TransID: 1, Peer: "aa", Handle: testRecv, Value: []byte{1}})
	// bare response
	s.handle(Write{ConnID: 1, TransID: 2, Peer: "aa", Handle: testRecv, NeedRsp: true, Value: []byte{2}})
	// prepared write echoes the value
	s.handle(Write{ConnID: 1, TransID: 3, Peer: "aa", Handle: testRecv, NeedRsp: true, IsPrep: true, Offset: 4, Value: []byte{3, 4}})

	rsps := m.Responses()
	if len(rsps) != 2 {
		t.Fatalf("responses = %d, want 2", len(rsps))
	}
	if rsps[0].trans != 2 || rsps[0].rsp != nil || rsps[0].status != GATTOk {
		t.Errorf("bare response = %+v", rsps[0])
	}
	prep := rsps[1]
	if prep.trans != 3 || prep.rsp == nil {
		t.Fatalf("prepared response = %+v", prep)
	}
	if prep.rsp.AttrHandle != testRecv || prep.rsp.Offset != 4 || prep.rsp.AuthReq != 0 {
		t.Errorf("prepared response header = %+v", prep.rsp)
	}
	if !bytes.Equal(prep.value, []byte{3, 4}) {
		t.Errorf("prepared response value = %v", prep.value)
	}
}

func TestWritePreparedResponseTooLong(t *testing.T) {
	cb := &callbackLog{}
	s, m := connectedSession(t, cb)

	ev := Write{ConnID: 1, Peer: "aa", Handle: testRecv, NeedRsp: true, IsPrep: true, Value: make([]byte, MaxAttrLen+1)}
	err := s.handle(ev)
	if !errors.Is(err, ErrResponseTooLong) {
		t.Fatalf("err = %v, want ErrResponseTooLong", err)
	}
	if n := len(m.Responses()); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
}

func TestExecWriteResponds(t *testing.T) {
	cb := &callbackLog{}
	s, m := connectedSession(t, cb)

	if err := s.handle(ExecWrite{ConnID: 1, TransID: 5, Peer: "aa", Execute: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.handle(ExecWrite{ConnID: 8, TransID: 6, Peer: "zz"}); err != nil {
		t.Fatal(err)
	}
	rsps := m.Responses()
	if len(rsps) != 1 || rsps[0].trans != 5 || rsps[0].rsp != nil {
		t.Errorf("responses = %+v", rsps)
	}
}

func TestResponseStage(t *testing.T) {
	var r Response
	if err := r.Stage(3, 2, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	if r.AttrHandle != 3 || r.Offset != 2 || string(r.Value()) != "abc" {
		t.Errorf("staged = %+v %q", r, r.Value())
	}
	if err := r.Stage(3, 0, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if string(r.Value()) != "x" {
		t.Errorf("restaged value = %q", r.Value())
	}
}
