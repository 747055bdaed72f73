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

// Package testing provides wire-level device simulators for tests.
//
// VirtualRadio answers the K5 identification query the way the radio
// firmware does. VirtualBootloader runs the chunked upload protocol of the
// update bootloader, including its NAK codes and duplicate-sequence re-ACK.
// Both implement io.ReadWriter with a non-blocking Read that returns 0, nil
// when nothing is pending, and can be wrapped in BufferedJitteryConnection
// to fragment and delay delivery.
package testing

import (
	"bytes"
	"encoding/binary"

	"github.com/ZaparooProject/go-k5link/internal/frame"
	"github.com/ZaparooProject/go-k5link/internal/syncutil"
)

// RadioConfig controls how VirtualRadio answers.
type RadioConfig struct {
	// Version is written NUL-padded into the 16-byte version field
	Version string
	// BootNoise is emitted before anything else, like a boot log
	BootNoise []byte
	// NoiseBeforeReply is emitted ahead of every reply
	NoiseBeforeReply []byte
	// IgnoreQueries drops this many queries before answering
	IgnoreQueries int
	// ReplyPlain sends replies without the XOR layer
	ReplyPlain bool
	// ShortReply truncates the reply to the id and length fields
	ShortReply bool
	// CorruptFrameFirst sends a frame with a broken footer before each reply
	CorruptFrameFirst bool
}

// VirtualRadio simulates the radio's handshake responder.
type VirtualRadio struct {
	parser  *frame.Parser
	txBuf   bytes.Buffer
	config  RadioConfig
	queries int
	answers int
	mu      syncutil.Mutex
}

// NewVirtualRadio creates a radio that answers queries with config.
func NewVirtualRadio(config RadioConfig) *VirtualRadio {
	r := &VirtualRadio{
		parser: frame.NewParser(),
		config: config,
	}
	r.txBuf.Write(config.BootNoise)
	return r
}

// Write receives bytes from the host and queues any replies.
func (r *VirtualRadio) Write(data []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parser.Feed(data)
	for _, f := range r.parser.Frames() {
		_, mode := frame.Decode(f.Body, frame.QueryIDBytes())
		if mode == frame.ModeUncertain {
			continue
		}
		if ok, _ := f.VerifyChecksum(); !ok {
			continue
		}
		r.queries++
		if r.queries <= r.config.IgnoreQueries {
			continue
		}
		r.reply()
	}
	return len(data), nil
}

func (r *VirtualRadio) reply() {
	r.answers++
	r.txBuf.Write(r.config.NoiseBeforeReply)
	if r.config.CorruptFrameFirst {
		bad := frame.Packetize([]byte{0x15, 0x05, 0x00, 0x00}, !r.config.ReplyPlain)
		bad[len(bad)-1] ^= 0xFF
		r.txBuf.Write(bad)
	}
	r.txBuf.Write(frame.Packetize(r.replyPayload(), !r.config.ReplyPlain))
}

// replyPayload builds 15 05 | len u16LE | version[16].
func (r *VirtualRadio) replyPayload() []byte {
	id := frame.ReplyIDBytes()
	if r.config.ShortReply {
		return []byte{id[0], id[1], 0x00, 0x00}
	}
	payload := make([]byte, 4+16)
	payload[0], payload[1] = id[0], id[1]
	binary.LittleEndian.PutUint16(payload[2:], 16)
	copy(payload[4:], r.config.Version)
	return payload
}

// Read returns queued reply bytes, or 0, nil when none are pending.
func (r *VirtualRadio) Read(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.txBuf.Len() == 0 {
		return 0, nil
	}
	return r.txBuf.Read(buf) //nolint:wrapcheck // bytes.Buffer only returns io.EOF when empty
}

// Queries returns the number of valid queries received.
func (r *VirtualRadio) Queries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries
}

// Answers returns the number of replies sent.
func (r *VirtualRadio) Answers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answers
}
