package surface

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/midikiti/internal/device"
	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/protocol/frame"
	"github.com/danmuck/midikiti/internal/protocol/schema"
	"github.com/danmuck/midikiti/internal/protocol/session"
	"github.com/danmuck/midikiti/internal/testutil/fakeport"
	"github.com/danmuck/midikiti/internal/testutil/testlog"
	"github.com/danmuck/midikiti/internal/transport"
)

// two commanders: [Octave] and [Pot, Button]
var layoutResponse = []byte{0xFF, 0x01, 0x02, 0x01, schema.TypeOctave, 0x02, schema.TypePot, schema.TypeButton}

var potBytes = []byte{0x07, 0xFF, 0x03, 0x0C, 0x00, 0x7F, 0x00, 0x04, 0x00, 0x01}

func testConfig() session.Config {
	return session.Config{
		DiscoveryGrace: time.Millisecond,
		PollInterval:   time.Millisecond,
		Backoff: session.BackoffConfig{
			InitialDelay: time.Millisecond,
			Multiplier:   1,
			MaxDelay:     5 * time.Millisecond,
		},
	}
}

type portSet struct {
	mu     sync.Mutex
	ports  map[string][]*fakeport.Port
	opened []string
}

func newPortSet() *portSet {
	return &portSet{ports: make(map[string][]*fakeport.Port)}
}

func (ps *portSet) add(name string, p *fakeport.Port) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.ports[name] = append(ps.ports[name], p)
}

func (ps *portSet) open(name string, _ session.Config) (transport.Port, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	queue := ps.ports[name]
	if len(queue) == 0 {
		return nil, &transport.Error{Op: "open " + name, Err: io.ErrUnexpectedEOF}
	}
	ps.ports[name] = queue[1:]
	ps.opened = append(ps.opened, name)
	return queue[0], nil
}

func (ps *portSet) list() ([]string, error) {
	return []string{"/dev/ttyACM0", "/dev/ttyACM1"}, nil
}

func (ps *portSet) openCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.opened)
}

func newTestService(ps *portSet) *Service {
	return NewServiceWithPorts(testConfig(), ps.open, ps.list)
}

func waitLoaded(t *testing.T, ch <-chan *device.Interface) *device.Interface {
	t.Helper()
	select {
	case iface := <-ch:
		return iface
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for preferences")
		return nil
	}
}

func TestConnectDiscoversAndLoadsPreferences(t *testing.T) {
	testlog.Start(t)
	port := fakeport.NewDevice(layoutResponse, map[fakeport.Address][]byte{{1, 0}: potBytes})
	port.Queue([]byte{0xFF, 0x04, 0x05, 's', 't', 'a', 'l', 'e'})
	ps := newPortSet()
	ps.add("/dev/ttyACM0", port)

	svc := newTestService(ps)
	loaded := make(chan *device.Interface, 4)
	svc.OnPreferences(func(i *device.Interface) { loaded <- i })

	sess, err := svc.Connect(context.Background(), "/dev/ttyACM0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer svc.Close()

	if port.Resets() != 1 {
		t.Fatalf("stale input was not flushed before discovery")
	}
	if sess.ID() == "" || sess.Port() != "/dev/ttyACM0" || sess.DiscoveryErr() != nil {
		t.Fatalf("unexpected session: id=%q port=%q err=%v", sess.ID(), sess.Port(), sess.DiscoveryErr())
	}

	writes := port.Writes()
	want := [][]byte{
		{0xFF, 0x01, 0x01, 0x00},
		{0xFF, 0x02, 0x02, 0x00, 0x00},
		{0xFF, 0x02, 0x02, 0x01, 0x00},
		{0xFF, 0x02, 0x02, 0x01, 0x01},
	}
	if len(writes) != len(want) {
		t.Fatalf("expected %d writes, got %d: % X", len(want), len(writes), writes)
	}
	for i := range want {
		if !bytes.Equal(writes[i], want[i]) {
			t.Fatalf("write %d: got % X want % X", i, writes[i], want[i])
		}
	}

	iface := waitLoaded(t, loaded)
	if iface.Commander() != 1 || iface.Index() != 0 {
		t.Fatalf("unexpected interface loaded: %s", iface)
	}
	if got, _ := iface.Values()["high"].Uint16(); got != 1023 {
		t.Fatalf("unexpected high value: %d", got)
	}
}

func TestPushSendsCurrentValues(t *testing.T) {
	testlog.Start(t)
	port := fakeport.NewDevice(layoutResponse, map[fakeport.Address][]byte{{1, 0}: potBytes})
	ps := newPortSet()
	ps.add("p", port)
	svc := newTestService(ps)
	loaded := make(chan *device.Interface, 4)
	svc.OnPreferences(func(i *device.Interface) { loaded <- i })

	if _, err := svc.Connect(context.Background(), "p"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer svc.Close()
	waitLoaded(t, loaded)

	if _, err := svc.SetValue(1, 0, "midi_high", "100"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if _, err := svc.SetValue(1, 0, "invert", "off"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if err := svc.Push(1, 0); err != nil {
		t.Fatalf("push: %v", err)
	}
	writes := port.Writes()
	last := writes[len(writes)-1]
	f := frame.NewDecoder().Feed(last)
	if len(f) != 1 || f[0].ID != protocol.SetPreferences {
		t.Fatalf("expected one set_preferences frame, got % X", last)
	}
	payload := f[0].Payload
	if !bytes.Equal(payload[:4], []byte{1, 0, 10, schema.TypePot}) {
		t.Fatalf("unexpected sub-header: % X", payload[:4])
	}
	if payload[4+5] != 100 || payload[4+9] != 0 {
		t.Fatalf("edits not pushed: % X", payload[4:])
	}
}

func TestPushRequiresLoadedValues(t *testing.T) {
	testlog.Start(t)
	ps := newPortSet()
	ps.add("p", fakeport.NewDevice(layoutResponse, nil))
	svc := newTestService(ps)
	if _, err := svc.Connect(context.Background(), "p"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer svc.Close()

	if err := svc.Push(1, 0); !errors.Is(err, device.ErrNoValues) {
		t.Fatalf("expected ErrNoValues, got %v", err)
	}
	if err := svc.Push(0, 0); !errors.Is(err, device.ErrNoSchema) {
		t.Fatalf("expected ErrNoSchema, got %v", err)
	}
	if err := svc.Push(4, 0); !errors.Is(err, protocol.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := svc.SetValue(1, 0, "high", "not-a-number"); !errors.Is(err, schema.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestRefreshRequestsOneInterface(t *testing.T) {
	testlog.Start(t)
	port := fakeport.NewDevice(layoutResponse, nil)
	ps := newPortSet()
	ps.add("p", port)
	svc := newTestService(ps)
	if _, err := svc.Connect(context.Background(), "p"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer svc.Close()

	before := len(port.Writes())
	if err := svc.Refresh(1, 1); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	writes := port.Writes()
	if len(writes) != before+1 || !bytes.Equal(writes[before], []byte{0xFF, 0x02, 0x02, 0x01, 0x01}) {
		t.Fatalf("unexpected refresh write: % X", writes[before:])
	}
	if err := svc.RefreshAll(); err != nil {
		t.Fatalf("refresh all: %v", err)
	}
	if got := len(port.Writes()); got != before+4 {
		t.Fatalf("refresh all should request every interface, writes=%d", got-before)
	}
}

func TestMessagesReachHook(t *testing.T) {
	testlog.Start(t)
	port := fakeport.NewDevice(layoutResponse, nil)
	ps := newPortSet()
	ps.add("p", port)
	svc := newTestService(ps)
	got := make(chan string, 1)
	svc.OnMessage(func(id protocol.CommandID, payload []byte) {
		if id == protocol.Message {
			got <- string(payload)
		}
	})
	if _, err := svc.Connect(context.Background(), "p"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer svc.Close()

	out, _ := frame.Encode(frame.Frame{ID: protocol.Message, Payload: []byte("hello")})
	port.Queue(out[:2], out[2:])
	select {
	case text := <-got:
		if text != "hello" {
			t.Fatalf("unexpected message %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message not delivered")
	}
}

func TestConnectNewPortClosesPrevious(t *testing.T) {
	testlog.Start(t)
	first := fakeport.NewDevice(layoutResponse, nil)
	second := fakeport.NewDevice(layoutResponse, nil)
	ps := newPortSet()
	ps.add("a", first)
	ps.add("b", second)
	svc := newTestService(ps)

	old, err := svc.Connect(context.Background(), "a")
	if err != nil {
		t.Fatalf("connect a: %v", err)
	}
	next, err := svc.Connect(context.Background(), "b")
	if err != nil {
		t.Fatalf("connect b: %v", err)
	}
	defer svc.Close()

	select {
	case <-old.Done():
	default:
		t.Fatalf("previous session still running")
	}
	if !first.Closed() || second.Closed() {
		t.Fatalf("port state wrong: first=%v second=%v", first.Closed(), second.Closed())
	}
	if svc.Current() != next || next.ID() == old.ID() {
		t.Fatalf("current session not replaced")
	}
	if old.Layout() == next.Layout() {
		t.Fatalf("layout must be rebuilt per connection")
	}
}

func TestConnectWithoutDeviceYieldsEmptyLayout(t *testing.T) {
	testlog.Start(t)
	ps := newPortSet()
	ps.add("p", fakeport.NewDevice(nil, nil))
	svc := newTestService(ps)
	sess, err := svc.Connect(context.Background(), "p")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer svc.Close()
	if !errors.Is(sess.DiscoveryErr(), protocol.ErrMalformedLayout) {
		t.Fatalf("expected ErrMalformedLayout, got %v", sess.DiscoveryErr())
	}
	if !sess.Layout().Empty() {
		t.Fatalf("expected empty layout")
	}
}

func TestConnectOpenFailure(t *testing.T) {
	testlog.Start(t)
	svc := newTestService(newPortSet())
	_, err := svc.Connect(context.Background(), "missing")
	var terr *transport.Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if svc.Current() != nil {
		t.Fatalf("failed connect must not leave a session")
	}
}

func TestNotConnected(t *testing.T) {
	testlog.Start(t)
	svc := newTestService(newPortSet())
	if err := svc.Submit(protocol.Message, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := svc.Layout(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := svc.Refresh(0, 0); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := svc.Disconnect(); err != nil {
		t.Fatalf("disconnect without session: %v", err)
	}
}

func TestReadFailureEndsSession(t *testing.T) {
	testlog.Start(t)
	port := fakeport.NewDevice(layoutResponse, nil)
	ps := newPortSet()
	ps.add("p", port)
	svc := newTestService(ps)
	sess, err := svc.Connect(context.Background(), "p")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	port.FailReads(io.EOF)
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not end after read failure")
	}
	if !transport.IsDisconnect(sess.Err()) {
		t.Fatalf("expected disconnect error, got %v", sess.Err())
	}
	if !port.Closed() {
		t.Fatalf("port should be closed after the loop ends")
	}
	waitCurrent(t, svc, nil)
}

func TestConnectNewPortWhileHookReadsService(t *testing.T) {
	testlog.Start(t)
	first := fakeport.NewDevice(layoutResponse, nil)
	second := fakeport.NewDevice(layoutResponse, nil)
	ps := newPortSet()
	ps.add("a", first)
	ps.add("b", second)
	svc := newTestService(ps)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	svc.OnMessage(func(id protocol.CommandID, payload []byte) {
		close(entered)
		<-proceed
		_ = svc.Current()
		_, _ = svc.Layout()
	})
	if _, err := svc.Connect(context.Background(), "a"); err != nil {
		t.Fatalf("connect a: %v", err)
	}
	defer svc.Close()

	out, _ := frame.Encode(frame.Frame{ID: protocol.Message, Payload: []byte("busy")})
	first.Queue(out)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("message hook never ran")
	}

	connected := make(chan error, 1)
	go func() {
		_, err := svc.Connect(context.Background(), "b")
		connected <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(proceed)

	select {
	case err := <-connected:
		if err != nil {
			t.Fatalf("connect b: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("port change blocked while a hook read the service")
	}
	if sess := svc.Current(); sess == nil || sess.Port() != "b" {
		t.Fatalf("expected session on b, got %v", sess)
	}
}

func waitCurrent(t *testing.T, svc *Service, want *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for svc.Current() != want {
		if time.Now().After(deadline) {
			t.Fatalf("current session = %v, want %v", svc.Current(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestResolvePort(t *testing.T) {
	testlog.Start(t)
	svc := newTestService(newPortSet())
	name, err := svc.ResolvePort("")
	if err != nil || name != "/dev/ttyACM0" {
		t.Fatalf("expected first listed port, got %q %v", name, err)
	}
	if name, _ := svc.ResolvePort(" /dev/custom "); name != "/dev/custom" {
		t.Fatalf("explicit port not kept: %q", name)
	}
	empty := NewServiceWithPorts(testConfig(), nil, func() ([]string, error) { return nil, nil })
	if _, err := empty.ResolvePort(""); !errors.Is(err, ErrNoPort) {
		t.Fatalf("expected ErrNoPort, got %v", err)
	}
}

func TestSuperviseReconnectsAfterDisconnect(t *testing.T) {
	testlog.Start(t)
	flaky := fakeport.NewDevice(layoutResponse, nil)
	stable := fakeport.NewDevice(layoutResponse, map[fakeport.Address][]byte{{1, 0}: potBytes})
	ps := newPortSet()
	ps.add("p", flaky)
	ps.add("p", stable)
	svc := newTestService(ps)
	loaded := make(chan *device.Interface, 4)
	svc.OnPreferences(func(i *device.Interface) { loaded <- i })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Supervise(ctx, "p") }()

	deadline := time.Now().Add(2 * time.Second)
	for svc.Current() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("first session never connected")
		}
		time.Sleep(time.Millisecond)
	}
	flaky.FailReads(io.EOF)

	waitLoaded(t, loaded)
	if ps.openCount() != 2 {
		t.Fatalf("expected 2 opens, got %d", ps.openCount())
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("supervise: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("supervise did not stop")
	}
	if !stable.Closed() || svc.Current() != nil {
		t.Fatalf("supervise should close the session on cancel")
	}
}
