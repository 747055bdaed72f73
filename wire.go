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
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/ZaparooProject/go-k5link/internal/chunk"
)

// WireObserver receives every byte sequence sent or received by a session.
// Used for the verbose hex trace.
type WireObserver func(TraceEntry)

// wireRecorder feeds the error trace buffer and an optional observer.
type wireRecorder struct {
	trace    *TraceBuffer
	observer WireObserver
}

func newWireRecorder(t Transport, observer WireObserver) *wireRecorder {
	return &wireRecorder{
		trace:    NewTraceBuffer(string(t.Type()), portName(t), 32),
		observer: observer,
	}
}

func (w *wireRecorder) tx(data []byte, note string) {
	w.trace.RecordTX(data, note)
	w.notify(TraceTX, data, note)
}

func (w *wireRecorder) rx(data []byte, note string) {
	w.trace.RecordRX(data, note)
	w.notify(TraceRX, data, note)
}

func (w *wireRecorder) timeout(note string) {
	w.trace.RecordTimeout(note)
	w.notify(TraceRX, nil, "TIMEOUT: "+note)
}

func (w *wireRecorder) notify(dir TraceDirection, data []byte, note string) {
	if w.observer == nil {
		return
	}
	w.observer(TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Data:      append([]byte(nil), data...),
		Note:      note,
	})
}

// send writes data fully and records it.
func (w *wireRecorder) send(t Transport, data []byte, note string) error {
	w.tx(data, note)
	return writeAll(t, data)
}

// streamReader serves both line-oriented text and single response bytes
// from one transport. Bytes read past a line end stay pending for the next
// call, so a partial line survives across polls.
type streamReader struct {
	t       Transport
	wire    *wireRecorder
	pending []byte
	scratch []byte
}

func newStreamReader(t Transport, wire *wireRecorder) *streamReader {
	return &streamReader{t: t, wire: wire, scratch: make([]byte, 256)}
}

// fill performs one poll and appends what arrived to pending.
func (r *streamReader) fill(ctx context.Context) error {
	n, err := readSome(ctx, r.t, r.scratch)
	if n > 0 {
		r.wire.rx(r.scratch[:n], "")
		r.pending = append(r.pending, r.scratch[:n]...)
	}
	return err
}

// readLine returns the next newline-terminated line with surrounding
// whitespace trimmed. ok is false when the deadline passes first; any
// partial line is kept.
func (r *streamReader) readLine(ctx context.Context, deadline time.Time) (line string, ok bool, err error) {
	for {
		if i := bytes.IndexByte(r.pending, '\n'); i >= 0 {
			line = strings.TrimSpace(string(r.pending[:i]))
			r.pending = r.pending[i+1:]
			return line, true, nil
		}
		if !time.Now().Before(deadline) {
			return "", false, nil
		}
		if err := r.fill(ctx); err != nil {
			return "", false, err
		}
	}
}

// readByte returns the next byte. ok is false on timeout.
func (r *streamReader) readByte(ctx context.Context, timeout time.Duration) (b byte, ok bool, err error) {
	deadline := time.Now().Add(timeout)
	for {
		if len(r.pending) > 0 {
			b = r.pending[0]
			r.pending = r.pending[1:]
			return b, true, nil
		}
		if !time.Now().Before(deadline) {
			return 0, false, nil
		}
		if err := r.fill(ctx); err != nil {
			return 0, false, err
		}
	}
}

// awaitSentinel reads lines until one contains want, case-insensitively.
// Every non-empty line is passed to onLine. found is false if the timeout
// elapses first; that is not an error.
func (r *streamReader) awaitSentinel(
	ctx context.Context, timeout time.Duration, want string, onLine func(string),
) (found bool, err error) {
	deadline := time.Now().Add(timeout)
	for {
		line, ok, err := r.readLine(ctx, deadline)
		if err != nil || !ok {
			return false, err
		}
		if line == "" {
			continue
		}
		if onLine != nil {
			onLine(line)
		}
		if containsFold(line, want) {
			return true, nil
		}
	}
}

// matchFinal classifies a line seen after the last chunk. OK is checked
// before ERR.
func matchFinal(line string) (Outcome, bool) {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, chunk.OKSentinel):
		return OutcomeSuccess, true
	case strings.Contains(upper, chunk.ErrSentinel):
		return OutcomeDeviceError, true
	default:
		return OutcomeAmbiguous, false
	}
}

// containsFold reports whether sub occurs in s, ignoring ASCII case.
func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(sub))
}
