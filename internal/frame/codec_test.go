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

package frame

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObfuscate(t *testing.T) {
	t.Parallel()

	t.Run("zeros yield the key", func(t *testing.T) {
		t.Parallel()
		key := Key()
		assert.Equal(t, key[:], Obfuscate(make([]byte, KeyLength)))
	})

	t.Run("key index wraps modulo 16", func(t *testing.T) {
		t.Parallel()
		out := Obfuscate(make([]byte, KeyLength*2+3))
		assert.Equal(t, out[:KeyLength], out[KeyLength:KeyLength*2])
		assert.Equal(t, out[:3], out[KeyLength*2:])
	})

	t.Run("involution", func(t *testing.T) {
		t.Parallel()
		data := []byte("the quick brown fox jumps over the lazy dog")
		assert.Equal(t, data, Obfuscate(Obfuscate(data)))
	})

	t.Run("input untouched", func(t *testing.T) {
		t.Parallel()
		data := []byte{0x01, 0x02, 0x03}
		_ = Obfuscate(data)
		assert.Equal(t, []byte{0x01, 0x02, 0x03}, data)
	})
}

func TestPacketize_Layout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		xor     bool
	}{
		{name: "query with xor", payload: QueryPayload(), xor: true},
		{name: "query plain", payload: QueryPayload(), xor: false},
		{name: "empty payload", payload: []byte{}, xor: true},
		{name: "longer than key", payload: make([]byte, 40), xor: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pkt := Packetize(tt.payload, tt.xor)
			require.Len(t, pkt, len(tt.payload)+Overhead)

			assert.Equal(t, []byte{0xAB, 0xCD}, pkt[:2])
			assert.Equal(t, []byte{0xDC, 0xBA}, pkt[len(pkt)-2:])
			assert.Equal(t, uint16(len(tt.payload)), binary.LittleEndian.Uint16(pkt[2:4]),
				"length field counts the payload only")

			body := pkt[4 : len(pkt)-2]
			if tt.xor {
				body = Obfuscate(body)
			}
			n := len(tt.payload)
			assert.Equal(t, tt.payload, body[:n])
			assert.Equal(t, CRC16(tt.payload), binary.LittleEndian.Uint16(body[n:]))
		})
	}
}

func TestPacketize_QueryPlainWire(t *testing.T) {
	t.Parallel()

	pkt := Packetize(QueryPayload(), false)
	crc := CRC16(QueryPayload())
	want := []byte{
		0xAB, 0xCD, 0x08, 0x00,
		0x14, 0x05, 0x04, 0x00, 0xFF, 0xFF, 0xFF, 0xFF,
		byte(crc), byte(crc >> 8),
		0xDC, 0xBA,
	}
	assert.Equal(t, want, pkt)
}

func TestPacketize_QueryObfuscatedWire(t *testing.T) {
	t.Parallel()

	want := []byte{
		0xAB, 0xCD, 0x08, 0x00,
		0x02, 0x69, 0x10, 0xE6, 0xD1, 0x6E, 0xF2, 0xBF, 0x31, 0xE1,
		0xDC, 0xBA,
	}
	assert.Equal(t, want, Packetize(QueryPayload(), true))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	reply := append([]byte{0x15, 0x05, 0x10, 0x00}, []byte("K5-1.0")...)

	tests := []struct {
		name     string
		body     []byte
		want     []byte
		wantMode Mode
	}{
		{
			name:     "obfuscated reply",
			body:     Obfuscate(reply),
			want:     reply,
			wantMode: ModeXOR,
		},
		{
			name:     "plain reply",
			body:     reply,
			want:     reply,
			wantMode: ModePlain,
		},
		{
			name:     "neither matches",
			body:     []byte{0x01, 0x02, 0x03},
			want:     Obfuscate([]byte{0x01, 0x02, 0x03}),
			wantMode: ModeUncertain,
		},
		{
			name:     "single byte",
			body:     []byte{0x15},
			want:     Obfuscate([]byte{0x15}),
			wantMode: ModeUncertain,
		},
		{
			name:     "empty",
			body:     []byte{},
			want:     []byte{},
			wantMode: ModeUncertain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, mode := DecodeReply(tt.body)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantMode, mode)
		})
	}
}

func TestDecode_PlainResultIsACopy(t *testing.T) {
	t.Parallel()

	body := []byte{0x15, 0x05, 0x00}
	got, mode := DecodeReply(body)
	require.Equal(t, ModePlain, mode)
	got[2] = 0xFF
	assert.Equal(t, byte(0x00), body[2])
}

func TestMode_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "xor", ModeXOR.String())
	assert.Equal(t, "plain", ModePlain.String())
	assert.Equal(t, "xor?", ModeUncertain.String())
	assert.Equal(t, "unknown", Mode(42).String())
}

func TestFrame_VerifyChecksum(t *testing.T) {
	t.Parallel()

	for _, xor := range []bool{true, false} {
		p := NewParser()
		p.Feed(Packetize(QueryPayload(), xor))
		f, status := p.Next()
		require.Equal(t, StatusFrame, status)

		ok, mode := f.VerifyChecksum()
		assert.True(t, ok)
		if xor {
			assert.Equal(t, ModeXOR, mode)
		} else {
			assert.Equal(t, ModePlain, mode)
		}
	}
}
