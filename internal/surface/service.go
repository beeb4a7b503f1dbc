package surface

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/midikiti/internal/device"
	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/protocol/schema"
	"github.com/danmuck/midikiti/internal/protocol/session"
	"github.com/danmuck/midikiti/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("surface: not connected")
	ErrNoPort       = errors.New("surface: no serial port")
)

// Opener opens a named port with the given link timing.
type Opener func(name string, cfg session.Config) (transport.Port, error)

// Lister enumerates candidate port names.
type Lister func() ([]string, error)

// Service owns at most one Session at a time.
type Service struct {
	cfg  session.Config
	open Opener
	list Lister

	connectMu sync.Mutex

	mu      sync.RWMutex
	current *Session

	hookMu    sync.RWMutex
	onPrefs   func(*device.Interface)
	onMessage func(protocol.CommandID, []byte)
}

// NewService builds a service backed by real serial ports.
func NewService(cfg session.Config) *Service {
	return NewServiceWithPorts(cfg, transport.OpenSerial, transport.ListPorts)
}

// NewServiceWithPorts builds a service with explicit port open and list functions.
func NewServiceWithPorts(cfg session.Config, open Opener, list Lister) *Service {
	return &Service{
		cfg:       cfg.WithDefaults(),
		open:      open,
		list:      list,
		onMessage: logMessage,
	}
}

func (s *Service) Config() session.Config {
	return s.cfg
}

// OnPreferences installs the hook run after any interface's values load.
func (s *Service) OnPreferences(fn func(*device.Interface)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onPrefs = fn
}

// OnMessage replaces the handler for frames the router does not interpret.
// A nil fn restores the default, which logs the payload as text.
func (s *Service) OnMessage(fn func(protocol.CommandID, []byte)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	if fn == nil {
		fn = logMessage
	}
	s.onMessage = fn
}

func logMessage(id protocol.CommandID, payload []byte) {
	log.Info().Str("command", id.String()).Msgf("[device] %s", strings.TrimRight(string(payload), "\r\n\x00"))
}

func (s *Service) handlePreferences(iface *device.Interface) {
	s.hookMu.RLock()
	fn := s.onPrefs
	s.hookMu.RUnlock()
	if fn != nil {
		fn(iface)
	}
}

func (s *Service) handleMessage(id protocol.CommandID, payload []byte) {
	s.hookMu.RLock()
	fn := s.onMessage
	s.hookMu.RUnlock()
	if fn != nil {
		fn(id, payload)
	}
}

// Ports lists candidate serial ports.
func (s *Service) Ports() ([]string, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list()
}

// ResolvePort returns name, or the first enumerated port when name is empty.
func (s *Service) ResolvePort(name string) (string, error) {
	if name = strings.TrimSpace(name); name != "" {
		return name, nil
	}
	ports, err := s.Ports()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", ErrNoPort
	}
	return ports[0], nil
}

// Connect tears down any active session, then opens port, flushes stale
// input, discovers the layout, starts the read loop and requests every
// interface's preferences.
//
// A discovery that finds no device still yields a session with an empty
// layout; the discovery error is available from Session.DiscoveryErr.
func (s *Service) Connect(ctx context.Context, port string) (*Session, error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	// Hooks on the previous read loop may call back into the service, so
	// the previous session is closed without holding mu.
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()
	if prev != nil {
		log.Info().Str("session", prev.id).Str("port", prev.port).Msg("surface.Service.Connect closing previous session")
		_ = prev.Close()
	}

	p, err := s.open(port, s.cfg)
	if err != nil {
		return nil, err
	}
	link := transport.NewLink(p)
	if err := link.Flush(); err != nil {
		_ = link.Close()
		return nil, err
	}

	layout, derr := device.Discover(ctx, link, s.cfg.DiscoveryGrace)
	if layout == nil {
		_ = link.Close()
		return nil, derr
	}
	if derr != nil {
		log.Warn().Err(derr).Str("port", port).Msg("surface.Service.Connect no device layout")
	}

	sess := newSession(port, link, layout, derr)
	router := device.NewRouter(layout)
	router.OnPreferences = s.handlePreferences
	router.OnMessage = s.handleMessage
	sess.start(router, s.cfg.PollInterval, s.release)

	for _, iface := range layout.Interfaces() {
		if err := link.Submit(protocol.GetPreferences, iface.Header()); err != nil {
			_ = sess.Close()
			return nil, fmt.Errorf("surface: request preferences %s: %w", iface, err)
		}
	}

	s.mu.Lock()
	select {
	case <-sess.Done():
	default:
		s.current = sess
	}
	s.mu.Unlock()
	log.Info().
		Str("session", sess.id).
		Str("port", port).
		Int("commanders", len(layout.Commanders())).
		Msg("surface.Service.Connect ready")
	return sess, nil
}

// Disconnect closes the active session, if any.
func (s *Service) Disconnect() error {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	log.Info().Str("session", sess.id).Msg("surface.Service.Disconnect")
	return sess.Close()
}

// Current returns the active session or nil.
func (s *Service) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Service) session() (*Session, error) {
	sess := s.Current()
	if sess == nil {
		return nil, ErrNotConnected
	}
	return sess, nil
}

// Layout returns the active session's layout.
func (s *Service) Layout() (*device.Layout, error) {
	sess, err := s.session()
	if err != nil {
		return nil, err
	}
	return sess.layout, nil
}

func (s *Service) Interface(c, i int) (*device.Interface, error) {
	layout, err := s.Layout()
	if err != nil {
		return nil, err
	}
	return layout.Interface(c, i)
}

// Submit sends one framed request on the active session.
func (s *Service) Submit(id protocol.CommandID, payload []byte) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	return sess.Submit(id, payload)
}

// Refresh re-requests one interface's preferences.
func (s *Service) Refresh(c, i int) error {
	iface, err := s.Interface(c, i)
	if err != nil {
		return err
	}
	return s.Submit(protocol.GetPreferences, iface.Header())
}

// RefreshAll re-requests every interface's preferences.
func (s *Service) RefreshAll() error {
	layout, err := s.Layout()
	if err != nil {
		return err
	}
	for _, iface := range layout.Interfaces() {
		if err := s.Submit(protocol.GetPreferences, iface.Header()); err != nil {
			return err
		}
	}
	return nil
}

// Push sends one interface's current values to the device.
func (s *Service) Push(c, i int) error {
	iface, err := s.Interface(c, i)
	if err != nil {
		return err
	}
	payload, err := iface.SetPreferencesPayload()
	if err != nil {
		return err
	}
	if payload == nil {
		return fmt.Errorf("%w: %s", device.ErrNoSchema, iface)
	}
	return s.Submit(protocol.SetPreferences, payload)
}

// SetValue parses raw per the field's kind and stores it on the interface.
// The device is not updated until Push.
func (s *Service) SetValue(c, i int, field, raw string) (schema.Value, error) {
	iface, err := s.Interface(c, i)
	if err != nil {
		return schema.Value{}, err
	}
	sc := iface.Schema()
	if sc == nil {
		return schema.Value{}, device.ErrNoSchema
	}
	f, ok := sc.Field(field)
	if !ok {
		return schema.Value{}, fmt.Errorf("%w: %s.%s", schema.ErrUnknownField, sc.Name, field)
	}
	v, err := schema.Parse(f.Kind, raw)
	if err != nil {
		return schema.Value{}, err
	}
	if err := iface.SetValue(field, v); err != nil {
		return schema.Value{}, err
	}
	return v, nil
}

// Close disconnects the active session.
func (s *Service) Close() error {
	return s.Disconnect()
}
