// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package k5link

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-k5link/internal/syncutil"
)

// Transport is the duplex byte stream a session runs over.
// Implementations exist for UART serial ports and arbitrary io.ReadWriters.
type Transport interface {
	// Read returns whatever bytes are available. It returns 0, nil once the
	// read timeout elapses with nothing received rather than blocking.
	Read(p []byte) (int, error)

	// Write queues bytes for transmission
	Write(p []byte) (int, error)

	// Drain blocks until every written byte has left the host
	Drain() error

	// SetReadTimeout sets the per-read poll timeout
	SetReadTimeout(timeout time.Duration) error

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// PortNamer is implemented by transports that know their device path.
type PortNamer interface {
	PortName() string
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportStream represents a generic io.ReadWriter, such as a TCP serial bridge.
	TransportStream TransportType = "stream"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// portName returns the device path of t, or its type when unknown.
func portName(t Transport) string {
	if pn, ok := t.(PortNamer); ok {
		return pn.PortName()
	}
	return string(t.Type())
}

// writeAll writes data until every byte is accepted, then drains.
func writeAll(t Transport, data []byte) error {
	for len(data) > 0 {
		n, err := t.Write(data)
		if err != nil {
			return NewTransportWriteError("write", portName(t), err)
		}
		if n == 0 {
			return NewTransportWriteError("write", portName(t), io.ErrShortWrite)
		}
		data = data[n:]
	}
	if err := t.Drain(); err != nil {
		return NewTransportWriteError("drain", portName(t), err)
	}
	return nil
}

// readSome performs one poll of t, honouring ctx.
func readSome(ctx context.Context, t Transport, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("read cancelled: %w", err)
	}
	n, err := t.Read(buf)
	if err != nil {
		return n, NewTransportReadError("read", portName(t), err)
	}
	return n, nil
}

// StreamTransport adapts an io.ReadWriter whose Read returns 0, nil when no
// data is pending. It polls the backend until the read timeout elapses.
type StreamTransport struct {
	backend     io.ReadWriter
	name        string
	readTimeout time.Duration
	pollEvery   time.Duration
	mu          syncutil.Mutex
	closed      bool
}

// NewStreamTransport wraps backend. The name is used in errors and traces.
func NewStreamTransport(backend io.ReadWriter, name string) *StreamTransport {
	return &StreamTransport{
		backend:     backend,
		name:        name,
		readTimeout: DefaultReadTimeout,
		pollEvery:   time.Millisecond,
	}
}

// Read polls the backend until data arrives or the read timeout elapses.
func (s *StreamTransport) Read(p []byte) (int, error) {
	s.mu.Lock()
	closed, timeout := s.closed, s.readTimeout
	s.mu.Unlock()
	if closed {
		return 0, ErrTransportClosed
	}

	deadline := time.Now().Add(timeout)
	for {
		n, err := s.backend.Read(p)
		if n > 0 || err != nil {
			return n, err //nolint:wrapcheck // wrapped by readSome
		}
		if !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(s.pollEvery)
	}
}

// Write passes data to the backend.
func (s *StreamTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, ErrTransportClosed
	}
	return s.backend.Write(p) //nolint:wrapcheck // wrapped by writeAll
}

// Drain is a no-op unless the backend can flush.
func (s *StreamTransport) Drain() error {
	if f, ok := s.backend.(interface{ Flush() error }); ok {
		return f.Flush() //nolint:wrapcheck // wrapped by writeAll
	}
	return nil
}

// SetReadTimeout sets the per-read poll timeout
func (s *StreamTransport) SetReadTimeout(timeout time.Duration) error {
	s.mu.Lock()
	s.readTimeout = timeout
	s.mu.Unlock()
	return nil
}

// Close marks the transport closed and closes the backend if it can be closed.
func (s *StreamTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.backend.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("stream close failed: %w", err)
		}
	}
	return nil
}

// Type returns the transport type
func (*StreamTransport) Type() TransportType {
	return TransportStream
}

// PortName returns the name given at construction
func (s *StreamTransport) PortName() string {
	return s.name
}

// MockTransport provides a scripted Transport for testing.
// Queued chunks are returned one Read at a time; OnWrite lets a test react
// to what the session sent.
type MockTransport struct {
	readErr     error
	writeErr    error
	onWrite     func(m *MockTransport, data []byte)
	reads       [][]byte
	written     []byte
	writes      int
	readTimeout time.Duration
	mu          syncutil.Mutex
	closed      bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{readTimeout: time.Millisecond}
}

// Read implements Transport
func (m *MockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrTransportClosed
	}
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	if len(m.reads) == 0 {
		timeout := m.readTimeout
		m.mu.Unlock()
		time.Sleep(timeout)
		return 0, nil
	}
	next := m.reads[0]
	n := copy(p, next)
	if n < len(next) {
		m.reads[0] = next[n:]
	} else {
		m.reads = m.reads[1:]
	}
	m.mu.Unlock()
	return n, nil
}

// Write implements Transport
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrTransportClosed
	}
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return 0, err
	}
	m.written = append(m.written, p...)
	m.writes++
	hook := m.onWrite
	m.mu.Unlock()

	if hook != nil {
		hook(m, append([]byte(nil), p...))
	}
	return len(p), nil
}

// Drain implements Transport
func (*MockTransport) Drain() error {
	return nil
}

// SetReadTimeout implements Transport
func (m *MockTransport) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.readTimeout = timeout
	m.mu.Unlock()
	return nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// QueueRead appends a chunk to be returned by a later Read
func (m *MockTransport) QueueRead(data []byte) {
	m.mu.Lock()
	m.reads = append(m.reads, append([]byte(nil), data...))
	m.mu.Unlock()
}

// SetReadError makes every Read fail with err
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// SetWriteError makes every Write fail with err
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// OnWrite installs a hook called after each successful Write
func (m *MockTransport) OnWrite(hook func(m *MockTransport, data []byte)) {
	m.mu.Lock()
	m.onWrite = hook
	m.mu.Unlock()
}

// Written returns a copy of every byte written so far
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

// WriteCount returns how many Write calls succeeded
func (m *MockTransport) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
