// Package fakeport is a scripted in-memory serial port for tests.
package fakeport

import (
	"errors"
	"runtime"
	"sync"
)

var ErrClosed = errors.New("fakeport: closed")

// Port queues inbound chunks and records outbound writes. Writes land in
// the shared stream one byte at a time so unsynchronized writers would
// interleave.
type Port struct {
	mu       sync.Mutex
	reads    [][]byte
	writes   [][]byte
	stream   []byte
	readErr  error
	writeErr error
	closed   bool
	resets   int
	onWrite  func(p *Port, b []byte)
}

func New() *Port {
	return &Port{}
}

// Queue appends inbound chunks. Each Read returns at most one chunk.
func (p *Port) Queue(chunks ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range chunks {
		p.reads = append(p.reads, append([]byte(nil), c...))
	}
}

// OnWrite installs a hook invoked after every completed Write.
func (p *Port) OnWrite(fn func(p *Port, b []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onWrite = fn
}

func (p *Port) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.reads) == 0 {
		return 0, nil
	}
	n := copy(b, p.reads[0])
	if n < len(p.reads[0]) {
		p.reads[0] = p.reads[0][n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return 0, err
	}
	p.mu.Unlock()

	for _, c := range b {
		p.mu.Lock()
		p.stream = append(p.stream, c)
		p.mu.Unlock()
		runtime.Gosched()
	}

	p.mu.Lock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	hook := p.onWrite
	p.mu.Unlock()
	if hook != nil {
		hook(p, b)
	}
	return len(b), nil
}

func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.reads = nil
	p.resets++
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Writes returns a copy of each Write call's bytes.
func (p *Port) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	for i, w := range p.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Stream returns every written byte in the order it reached the port.
func (p *Port) Stream() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.stream...)
}

func (p *Port) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Pending reports how many inbound chunks are still queued.
func (p *Port) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reads)
}
