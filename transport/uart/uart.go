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

// Package uart provides the serial-port Transport used to reach the radio
// and its bootloader through a USB-UART bridge.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	k5link "github.com/ZaparooProject/go-k5link"
	"github.com/ZaparooProject/go-k5link/internal/syncutil"
	"go.bug.st/serial"
)

// Options configures how a port is opened.
type Options struct {
	// Baud is the line rate; 8N1 without flow control is always used
	Baud int
	// Settle is the pause after DTR/RTS are dropped, long enough for a
	// target reset by the bridge to boot
	Settle time.Duration
	// ReadTimeout bounds a single Read
	ReadTimeout time.Duration
}

// DefaultOptions returns options for the radio firmware's handshake rate.
func DefaultOptions() Options {
	return Options{
		Baud:        k5link.DefaultHandshakeBaud,
		Settle:      k5link.DefaultSettleDelay,
		ReadTimeout: getReadTimeout(),
	}
}

// Transport implements k5link.Transport over a serial port.
type Transport struct {
	port     serial.Port
	portName string
	baud     int
	mu       syncutil.Mutex
	closed   bool
}

// openPort is replaced in tests.
var openPort = serial.Open

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// getReadTimeout returns the platform read timeout. Windows drivers for
// CH340 and CP2102 bridges need longer than 50ms to report partial reads.
func getReadTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return k5link.DefaultReadTimeout
}

// Open opens portName at opts.Baud, 8N1, with DTR and RTS held low.
// It waits opts.Settle and then discards anything the target printed
// while the line came up.
func Open(portName string, opts Options) (*Transport, error) {
	if opts.Baud <= 0 {
		opts.Baud = k5link.DefaultHandshakeBaud
	}
	port, err := openPort(portName, &serial.Mode{
		BaudRate: opts.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := newTransport(port, portName, opts)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// newTransport prepares an already open port.
func newTransport(port serial.Port, portName string, opts Options) (*Transport, error) {
	// Many bridges wire DTR/RTS to the target's reset and boot pins
	if err := port.SetDTR(false); err != nil {
		k5link.Debugf("uart %s: SetDTR unsupported: %v", portName, err)
	}
	if err := port.SetRTS(false); err != nil {
		k5link.Debugf("uart %s: SetRTS unsupported: %v", portName, err)
	}

	if opts.Settle > 0 {
		time.Sleep(opts.Settle)
	}

	if err := port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("UART %s reset input failed: %w", portName, err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		return nil, fmt.Errorf("UART %s reset output failed: %w", portName, err)
	}

	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = getReadTimeout()
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	k5link.Debugf("uart %s: open at %d baud 8N1, read timeout %v", portName, opts.Baud, timeout)
	return &Transport{
		port:     port,
		portName: portName,
		baud:     opts.Baud,
	}, nil
}

// Read returns the bytes received within the read timeout, possibly none.
func (t *Transport) Read(p []byte) (int, error) {
	port, err := t.livePort()
	if err != nil {
		return 0, err
	}

	const maxRetries = 3
	for attempt := 0; ; attempt++ {
		n, err := port.Read(p)
		if err == nil || n > 0 {
			return n, nil
		}
		if !isInterruptedSystemCall(err) || attempt >= maxRetries-1 {
			return 0, fmt.Errorf("UART read failed: %w", err)
		}
	}
}

// Write queues p for transmission.
func (t *Transport) Write(p []byte) (int, error) {
	port, err := t.livePort()
	if err != nil {
		return 0, err
	}
	n, err := port.Write(p)
	if err != nil {
		return n, fmt.Errorf("UART write failed: %w", err)
	}
	return n, nil
}

// Drain waits until every written byte has been sent.
func (t *Transport) Drain() error {
	if _, err := t.livePort(); err != nil {
		return err
	}
	return t.drainWithRetry("write")
}

// SetReadTimeout sets the read timeout for the transport
func (t *Transport) SetReadTimeout(timeout time.Duration) error {
	port, err := t.livePort()
	if err != nil {
		return err
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.port == nil {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() k5link.TransportType {
	return k5link.TransportUART
}

// PortName returns the device path the transport was opened on
func (t *Transport) PortName() string {
	return t.portName
}

// Baud returns the line rate
func (t *Transport) Baud() int {
	return t.baud
}

func (t *Transport) livePort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.port == nil {
		return nil, k5link.ErrTransportClosed
	}
	return t.port, nil
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

var _ k5link.Transport = (*Transport)(nil)
