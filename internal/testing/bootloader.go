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

package testing

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ZaparooProject/go-k5link/internal/chunk"
	"github.com/ZaparooProject/go-k5link/internal/syncutil"
	"github.com/kelindar/bitmap"
)

// BootloaderState is the simulated bootloader's position in the protocol.
type BootloaderState int

// Bootloader states
const (
	BootAwaitGo BootloaderState = iota
	BootAwaitHeader
	BootReceiving
	BootDone
	BootFailed
)

// BootloaderConfig controls banners and fault injection.
type BootloaderConfig struct {
	// NakSeq makes the device reject the given sequence number this many
	// times, with NakCode, before accepting it.
	NakSeq map[uint32]int
	// LoseAck makes the device write the chunk but lose its ACK this many
	// times. The host's resend then hits the duplicate path.
	LoseAck map[uint32]int
	// GarbageAck answers the given sequence number with '?' this many times
	// without writing it.
	GarbageAck map[uint32]int
	// FinalLine is printed once every byte is written. Empty prints nothing.
	FinalLine string
	// NakCode is the status byte sent with injected NAKs.
	NakCode chunk.NakCode
	// ReadyLines is the number of READY banners queued at start.
	ReadyLines int
	// SkipStart suppresses the START line.
	SkipStart bool
	// NakWithoutCode sends a bare 'E' for injected NAKs.
	NakWithoutCode bool
}

// DefaultBootloaderConfig returns a well-behaved bootloader.
func DefaultBootloaderConfig() BootloaderConfig {
	return BootloaderConfig{
		ReadyLines: 1,
		FinalLine:  chunk.OKSentinel,
		NakCode:    chunk.NakCRC,
	}
}

// VirtualBootloader simulates the update bootloader at the wire level.
type VirtualBootloader struct {
	sends     map[uint32]int
	faults    BootloaderConfig
	acked     bitmap.Bitmap
	rxBuf     []byte
	image     []byte
	txBuf     bytes.Buffer
	header    chunk.Header
	config    BootloaderConfig
	state     BootloaderState
	expectSeq uint32
	mu        syncutil.Mutex
}

// NewVirtualBootloader creates a bootloader that has already printed its
// READY banners.
func NewVirtualBootloader(config BootloaderConfig) *VirtualBootloader {
	b := &VirtualBootloader{
		config: config,
		faults: BootloaderConfig{
			NakSeq:     copyCounts(config.NakSeq),
			LoseAck:    copyCounts(config.LoseAck),
			GarbageAck: copyCounts(config.GarbageAck),
		},
		sends: make(map[uint32]int),
	}
	for range config.ReadyLines {
		b.println(chunk.ReadySentinel)
	}
	return b
}

func copyCounts(m map[uint32]int) map[uint32]int {
	out := make(map[uint32]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (b *VirtualBootloader) println(line string) {
	b.txBuf.WriteString(line)
	b.txBuf.WriteString("\r\n")
}

// Write receives host bytes and advances the protocol.
func (b *VirtualBootloader) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rxBuf = append(b.rxBuf, data...)
	for b.step() {
	}
	return len(data), nil
}

// step consumes one protocol unit from rxBuf. It returns false when more
// bytes are needed.
func (b *VirtualBootloader) step() bool {
	switch b.state {
	case BootAwaitGo:
		return b.stepGo()
	case BootAwaitHeader:
		return b.stepHeader()
	case BootReceiving:
		return b.stepPacket()
	default:
		b.rxBuf = b.rxBuf[:0]
		return false
	}
}

func (b *VirtualBootloader) stepGo() bool {
	i := bytes.IndexByte(b.rxBuf, '\n')
	if i < 0 {
		return false
	}
	line := strings.ToUpper(strings.TrimSpace(string(b.rxBuf[:i])))
	b.rxBuf = b.rxBuf[i+1:]
	if line == "GO" {
		b.state = BootAwaitHeader
	}
	return true
}

func (b *VirtualBootloader) stepHeader() bool {
	if len(b.rxBuf) < chunk.HeaderLength {
		return false
	}
	h, err := chunk.DecodeHeader(b.rxBuf)
	b.rxBuf = b.rxBuf[chunk.HeaderLength:]
	switch {
	case errors.Is(err, chunk.ErrBadMagic):
		b.fail("ERR: magic")
	case h.Total < chunk.MinFirmwareSize || h.Total > chunk.MaxFirmwareSize:
		b.fail("ERR: size")
	case h.Chunk == 0 || int(h.Chunk) > chunk.MaxChunk:
		b.fail("ERR: chunk")
	default:
		b.header = h
		b.image = make([]byte, 0, h.Total)
		b.state = BootReceiving
		if !b.config.SkipStart {
			b.println(chunk.StartSentinel)
		}
	}
	return true
}

func (b *VirtualBootloader) fail(line string) {
	b.println(line)
	b.state = BootFailed
}

func (b *VirtualBootloader) nak(code chunk.NakCode) {
	b.txBuf.WriteByte(chunk.Nak)
	b.txBuf.WriteByte(byte(code))
	// The device drains its input after every NAK
	b.rxBuf = b.rxBuf[:0]
}

func (b *VirtualBootloader) stepPacket() bool {
	if len(b.rxBuf) < 6 {
		return false
	}
	n := int(uint16(b.rxBuf[4]) | uint16(b.rxBuf[5])<<8)
	if n == 0 || n > int(b.header.Chunk) {
		b.nak(chunk.NakLength)
		return false
	}
	written := len(b.image)
	if n > int(b.header.Total)-written {
		b.nak(chunk.NakOverflow)
		return false
	}

	pkt, used, err := chunk.DecodePacket(b.rxBuf)
	if err != nil {
		return false
	}
	b.rxBuf = b.rxBuf[used:]
	b.sends[pkt.Seq]++

	switch {
	case pkt.Seq < b.expectSeq:
		b.txBuf.WriteByte(chunk.Ack)
		return true
	case pkt.Seq != b.expectSeq:
		b.nak(chunk.NakSeqHeader)
		return false
	case !pkt.Valid():
		b.nak(chunk.NakCRC)
		return false
	}

	if b.faults.NakSeq[pkt.Seq] > 0 {
		b.faults.NakSeq[pkt.Seq]--
		if b.config.NakWithoutCode {
			b.txBuf.WriteByte(chunk.Nak)
			b.rxBuf = b.rxBuf[:0]
		} else {
			b.nak(b.config.NakCode)
		}
		return false
	}
	if b.faults.GarbageAck[pkt.Seq] > 0 {
		b.faults.GarbageAck[pkt.Seq]--
		b.txBuf.WriteByte('?')
		return true
	}

	b.image = append(b.image, pkt.Data...)
	b.acked.Set(pkt.Seq)
	b.expectSeq++

	if b.faults.LoseAck[pkt.Seq] > 0 {
		b.faults.LoseAck[pkt.Seq]--
	} else {
		b.txBuf.WriteByte(chunk.Ack)
	}

	if len(b.image) >= int(b.header.Total) {
		b.state = BootDone
		if b.config.FinalLine != "" {
			b.println(b.config.FinalLine)
		}
	}
	return true
}

// Read returns queued device output, or 0, nil when none is pending.
func (b *VirtualBootloader) Read(buf []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.txBuf.Len() == 0 {
		return 0, nil
	}
	return b.txBuf.Read(buf) //nolint:wrapcheck // bytes.Buffer only returns io.EOF when empty
}

// State returns the bootloader's protocol state.
func (b *VirtualBootloader) State() BootloaderState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Header returns the header the host sent.
func (b *VirtualBootloader) Header() chunk.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.header
}

// Image returns a copy of the bytes written to flash so far.
func (b *VirtualBootloader) Image() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.image...)
}

// Written returns the sequence numbers written to flash, in order.
func (b *VirtualBootloader) Written() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var seqs []uint32
	b.acked.Range(func(x uint32) {
		seqs = append(seqs, x)
	})
	return seqs
}

// Sends returns how many complete packets carried seq.
func (b *VirtualBootloader) Sends(seq uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sends[seq]
}

// Received returns the number of bytes written to flash.
func (b *VirtualBootloader) Received() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.image)
}
