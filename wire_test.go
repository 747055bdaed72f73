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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(m *MockTransport) (*streamReader, *[]TraceEntry) {
	var seen []TraceEntry
	wire := newWireRecorder(m, func(e TraceEntry) { seen = append(seen, e) })
	return newStreamReader(m, wire), &seen
}

func TestStreamReader_ReadLineAcrossPolls(t *testing.T) {
	t.Parallel()

	m := NewMockTransport()
	m.QueueRead([]byte("REA"))
	m.QueueRead([]byte("DY\r\nST"))
	m.QueueRead([]byte("ART\r\n"))
	r, seen := newTestReader(m)

	deadline := time.Now().Add(time.Second)
	line, ok, err := r.readLine(context.Background(), deadline)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "READY", line)

	line, ok, err = r.readLine(context.Background(), deadline)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "START", line)

	require.Len(t, *seen, 3)
	assert.Equal(t, TraceRX, (*seen)[0].Direction)
}

func TestStreamReader_ReadLineTimeoutKeepsPartial(t *testing.T) {
	t.Parallel()

	m := NewMockTransport()
	m.QueueRead([]byte("O"))
	r, _ := newTestReader(m)

	_, ok, err := r.readLine(context.Background(), time.Now().Add(10*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok)

	m.QueueRead([]byte("K\n"))
	line, ok, err := r.readLine(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "OK", line)
}

func TestStreamReader_ReadByte(t *testing.T) {
	t.Parallel()

	m := NewMockTransport()
	m.QueueRead([]byte{'E', 5})
	r, _ := newTestReader(m)

	b, ok, err := r.readByte(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte('E'), b)

	b, ok, err = r.readByte(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(5), b)

	_, ok, err = r.readByte(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStreamReader_Cancelled(t *testing.T) {
	t.Parallel()

	r, _ := newTestReader(NewMockTransport())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.readByte(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStreamReader_AwaitSentinel(t *testing.T) {
	t.Parallel()

	m := NewMockTransport()
	m.QueueRead([]byte("boot v2\r\n\r\nsystem ready\r\n"))
	r, _ := newTestReader(m)

	var lines []string
	found, err := r.awaitSentinel(context.Background(), time.Second, "READY", func(l string) {
		lines = append(lines, l)
	})
	require.NoError(t, err)
	assert.True(t, found, "match is a case-insensitive substring")
	assert.Equal(t, []string{"boot v2", "system ready"}, lines, "empty lines are skipped")

	found, err = r.awaitSentinel(context.Background(), 10*time.Millisecond, "START", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWireRecorder_Send(t *testing.T) {
	t.Parallel()

	m := NewMockTransport()
	var seen []TraceEntry
	wire := newWireRecorder(m, func(e TraceEntry) { seen = append(seen, e) })

	require.NoError(t, wire.send(m, []byte("GO\n"), "go"))
	wire.timeout("START")

	assert.Equal(t, "GO\n", string(m.Written()))
	require.Len(t, seen, 2)
	assert.Equal(t, TraceTX, seen[0].Direction)
	assert.Equal(t, "go", seen[0].Note)
	assert.Equal(t, "TIMEOUT: START", seen[1].Note)
	assert.Equal(t, 2, wire.trace.Len())
}

func TestMatchFinal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line    string
		want    Outcome
		matched bool
	}{
		{line: "OK", want: OutcomeSuccess, matched: true},
		{line: "update ok", want: OutcomeSuccess, matched: true},
		{line: "ERR: crc", want: OutcomeDeviceError, matched: true},
		{line: "error", want: OutcomeDeviceError, matched: true},
		{line: "OK ERR", want: OutcomeSuccess, matched: true},
		{line: "rebooting", want: OutcomeAmbiguous, matched: false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			got, matched := matchFinal(tt.line)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestPercentOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, percentOf(0, 0))
	assert.Equal(t, 0, percentOf(1, 1000))
	assert.Equal(t, 33, percentOf(1, 3))
	assert.Equal(t, 99, percentOf(2047, 2048))
	assert.Equal(t, 100, percentOf(2048, 2048))
}
