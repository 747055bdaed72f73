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
	"testing"

	"github.com/ZaparooProject/go-k5link/internal/frame"
)

func TestVirtualRadio_AnswersBothQueryEncodings(t *testing.T) {
	t.Parallel()

	for _, xor := range []bool{true, false} {
		radio := NewVirtualRadio(RadioConfig{Version: "K5-1.0"})
		if _, err := radio.Write(frame.Packetize(frame.QueryPayload(), xor)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if radio.Queries() != 1 || radio.Answers() != 1 {
			t.Fatalf("xor=%v: queries=%d answers=%d", xor, radio.Queries(), radio.Answers())
		}

		p := frame.NewParser()
		p.Feed(drain(t, radio, 2))
		frames := p.Frames()
		if len(frames) != 1 {
			t.Fatalf("xor=%v: got %d frames, want 1", xor, len(frames))
		}
		payload, mode := frame.DecodeReply(frames[0].Body)
		if mode != frame.ModeXOR {
			t.Errorf("xor=%v: reply mode = %s, want xor", xor, mode)
		}
		if !bytes.HasPrefix(payload[4:], []byte("K5-1.0\x00")) {
			t.Errorf("xor=%v: version field = %q", xor, payload[4:])
		}
	}
}

func TestVirtualRadio_PlainReply(t *testing.T) {
	t.Parallel()

	radio := NewVirtualRadio(RadioConfig{Version: "v", ReplyPlain: true})
	_, _ = radio.Write(frame.Packetize(frame.QueryPayload(), true))

	p := frame.NewParser()
	p.Feed(drain(t, radio, 2))
	frames := p.Frames()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if _, mode := frame.DecodeReply(frames[0].Body); mode != frame.ModePlain {
		t.Errorf("mode = %s, want plain", mode)
	}
}

func TestVirtualRadio_IgnoresQueriesAndBadChecksums(t *testing.T) {
	t.Parallel()

	radio := NewVirtualRadio(RadioConfig{Version: "v", IgnoreQueries: 2})
	query := frame.Packetize(frame.QueryPayload(), true)

	corrupt := append([]byte(nil), query...)
	corrupt[len(corrupt)-3] ^= 0x01 // CRC byte
	_, _ = radio.Write(corrupt)
	if radio.Queries() != 0 {
		t.Fatal("a query with a bad CRC must not count")
	}

	for range 3 {
		_, _ = radio.Write(query)
	}
	if radio.Queries() != 3 || radio.Answers() != 1 {
		t.Errorf("queries=%d answers=%d, want 3 and 1", radio.Queries(), radio.Answers())
	}
}

func TestVirtualRadio_NoiseAndCorruptFrame(t *testing.T) {
	t.Parallel()

	radio := NewVirtualRadio(RadioConfig{
		Version:           "K5",
		BootNoise:         []byte("ets Jun  8 2016\r\n"),
		NoiseBeforeReply:  []byte{0x00, 0xFF, 0x13},
		CorruptFrameFirst: true,
	})
	_, _ = radio.Write(frame.Packetize(frame.QueryPayload(), true))

	p := frame.NewParser()
	p.Feed(drain(t, radio, 2))
	frames := p.Frames()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want exactly the real reply", len(frames))
	}
	if payload, _ := frame.DecodeReply(frames[0].Body); len(payload) != 20 {
		t.Errorf("reply length = %d, want 20", len(payload))
	}
}
