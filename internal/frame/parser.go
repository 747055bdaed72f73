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

// Status is the outcome of one Parser.Next step.
type Status int

const (
	// StatusNeedMore means no complete frame is buffered yet.
	StatusNeedMore Status = iota
	// StatusFrame means a frame was returned and removed from the buffer.
	StatusFrame
	// StatusResync means a candidate frame was rejected and exactly one byte
	// was dropped from the front of the buffer. Calling Next again may make
	// further progress without new input.
	StatusResync
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusNeedMore:
		return "need-more"
	case StatusFrame:
		return "frame"
	case StatusResync:
		return "resync"
	default:
		return "unknown"
	}
}

// Parser recovers frames from a byte stream that may contain noise, partial
// frames or corrupted frames. It is not safe for concurrent use; each session
// owns its own Parser.
type Parser struct {
	buf        []byte
	maxPayload int
	discarded  int
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithMaxPayload rejects length fields above n with a one-byte resync instead
// of waiting for a frame that will never arrive. Zero disables the bound.
func WithMaxPayload(n int) ParserOption {
	return func(p *Parser) {
		if n >= 0 {
			p.maxPayload = n
		}
	}
}

// NewParser creates an empty parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed appends bytes read from the stream.
func (p *Parser) Feed(data []byte) {
	p.buf = append(p.buf, data...)
}

// Buffered returns the number of bytes waiting in the parser.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Discarded returns the total number of bytes thrown away as noise.
func (p *Parser) Discarded() int {
	return p.discarded
}

// Reset drops all buffered bytes.
func (p *Parser) Reset() {
	p.buf = nil
}

// Next runs one resynchronisation step:
//
//  1. Without a header in the buffer, everything is noise and is dropped
//     (a trailing 0xAB is kept, it may be half of a split header).
//  2. Bytes before the header are dropped.
//  3. Fewer than four bytes: wait.
//  4. The frame length is the payload length plus eight.
//  5. A short buffer: wait.
//  6. A wrong footer drops one byte and reports StatusResync; a good footer
//     removes the frame from the buffer and returns it.
func (p *Parser) Next() (Frame, Status) {
	idx := FindHeader(p.buf)
	if idx < 0 {
		keep := 0
		if n := len(p.buf); n > 0 && p.buf[n-1] == Header0 {
			keep = 1
		}
		p.discard(len(p.buf) - keep)
		return Frame{}, StatusNeedMore
	}
	p.discard(idx)

	if len(p.buf) < HeaderLength+LengthLength {
		return Frame{}, StatusNeedMore
	}

	payloadLen := PayloadLength(p.buf)
	if p.maxPayload > 0 && payloadLen > p.maxPayload {
		p.discard(1)
		return Frame{}, StatusResync
	}

	total := TotalLength(payloadLen)
	if len(p.buf) < total {
		return Frame{}, StatusNeedMore
	}

	if !ValidateFooter(p.buf[:total]) {
		p.discard(1)
		return Frame{}, StatusResync
	}

	f := extractFrame(p.buf[:total], payloadLen)
	p.buf = p.buf[total:]
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return f, StatusFrame
}

// Frames drains every frame currently recoverable from the buffer, following
// resyncs until the parser needs more input.
func (p *Parser) Frames() []Frame {
	var out []Frame
	for {
		f, status := p.Next()
		switch status {
		case StatusFrame:
			out = append(out, f)
		case StatusResync:
			continue
		default:
			return out
		}
	}
}

func (p *Parser) discard(n int) {
	if n <= 0 {
		return
	}
	p.discarded += n
	p.buf = p.buf[n:]
	if len(p.buf) == 0 {
		p.buf = nil
	}
}
