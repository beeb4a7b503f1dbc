package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/midikiti/internal/config"
	"github.com/danmuck/midikiti/internal/console"
	"github.com/danmuck/midikiti/internal/protocol/schema"
	"github.com/danmuck/midikiti/internal/protocol/session"
	"github.com/danmuck/midikiti/internal/surface"
	"github.com/danmuck/midikiti/internal/testutil/fakeport"
	"github.com/danmuck/midikiti/internal/testutil/testlog"
	"github.com/danmuck/midikiti/internal/transport"
)

func TestResolveConfigPortFlagWins(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "mkctl.toml")
	if err := os.WriteFile(path, []byte(`port = "/dev/ttyACM0"`+"\nreconnect = true\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := resolveConfig(path, "")
	if err != nil || cfg.Port != "/dev/ttyACM0" || !cfg.Reconnect {
		t.Fatalf("unexpected config: %+v err=%v", cfg, err)
	}
	cfg, err = resolveConfig(path, "/dev/ttyUSB9")
	if err != nil || cfg.Port != "/dev/ttyUSB9" {
		t.Fatalf("flag should override file port: %+v err=%v", cfg, err)
	}
	cfg, err = resolveConfig("", "")
	if err != nil || cfg.Port != "" || !cfg.Console {
		t.Fatalf("expected defaults without a file: %+v err=%v", cfg, err)
	}
}

func TestRunRefusesEmptySetup(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Console = false
	if err := run(context.Background(), cfg); !errors.Is(err, errNothingToRun) {
		t.Fatalf("expected errNothingToRun, got %v", err)
	}
}

func TestRunServiceConsoleQuitStopsEverything(t *testing.T) {
	testlog.Start(t)
	port := fakeport.NewDevice([]byte{0xFF, 0x01, 0x01, 0x01, schema.TypePot}, nil)
	open := func(string, session.Config) (transport.Port, error) { return port, nil }
	list := func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil }
	svc := surface.NewServiceWithPorts(session.Config{DiscoveryGrace: time.Millisecond, PollInterval: time.Millisecond}, open, list)
	defer svc.Close()

	out := &bytes.Buffer{}
	prev := consoleOut
	consoleOut = out
	defer func() { consoleOut = prev }()

	cfg := config.Default()
	lines := func() console.LineReader {
		return console.NewScannerReader(strings.NewReader("layout\nquit\n"), nil)
	}
	done := make(chan error, 1)
	go func() { done <- runService(context.Background(), cfg, svc, lines) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run service: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run service did not stop after quit")
	}
	if !strings.Contains(out.String(), "Pot") {
		t.Fatalf("console did not print layout:\n%s", out.String())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// quitWhenLoaded answers quit once out reports a preference load.
type quitWhenLoaded struct {
	out *syncBuffer
}

func (r quitWhenLoaded) ReadLine(string) (string, error) {
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(r.out.String(), "loaded ") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return "quit", nil
}

func (quitWhenLoaded) Close() error { return nil }

func TestRunServiceConsolePrintsLoadedPreferences(t *testing.T) {
	testlog.Start(t)
	pot := []byte{0x07, 0xFF, 0x03, 0x0C, 0x00, 0x7F, 0x00, 0x04, 0x00, 0x01}
	port := fakeport.NewDevice([]byte{0xFF, 0x01, 0x01, 0x01, schema.TypePot}, map[fakeport.Address][]byte{{0, 0}: pot})
	open := func(string, session.Config) (transport.Port, error) { return port, nil }
	list := func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil }
	svc := surface.NewServiceWithPorts(session.Config{DiscoveryGrace: time.Millisecond, PollInterval: time.Millisecond}, open, list)
	defer svc.Close()

	out := &syncBuffer{}
	prev := consoleOut
	consoleOut = out
	defer func() { consoleOut = prev }()

	cfg := config.Default()
	lines := func() console.LineReader { return quitWhenLoaded{out: out} }
	done := make(chan error, 1)
	go func() { done <- runService(context.Background(), cfg, svc, lines) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run service: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run service did not stop after quit")
	}
	if !strings.Contains(out.String(), "loaded 0.0(Pot) v1") {
		t.Fatalf("console did not report the preference load:\n%s", out.String())
	}
}
