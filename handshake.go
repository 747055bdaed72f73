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
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ZaparooProject/go-k5link/internal/frame"
	"github.com/sirupsen/logrus"
)

// Reply layout: 2-byte id, 2-byte declared length, 16-byte version field.
const (
	versionOffset   = 4
	versionLength   = 16
	minReplyLength  = versionOffset + versionLength
	handshakeOpName = "handshake"
)

// DecodeMode reports which reading of a reply body matched the reply id.
type DecodeMode = frame.Mode

// Decode modes
const (
	DecodeXOR       = frame.ModeXOR
	DecodePlain     = frame.ModePlain
	DecodeUncertain = frame.ModeUncertain
)

// HandshakeState is a step of the handshake state machine.
type HandshakeState int

// Handshake states
const (
	HandshakeIdle HandshakeState = iota
	HandshakeSent
	HandshakeAcked
	HandshakeTimedOut
	HandshakeDone
	HandshakeFailed
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeIdle:
		return "idle"
	case HandshakeSent:
		return "sent"
	case HandshakeAcked:
		return "acked"
	case HandshakeTimedOut:
		return "timed out"
	case HandshakeDone:
		return "done"
	case HandshakeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HandshakeResult is the outcome of a successful handshake.
type HandshakeResult struct {
	// Version is the firmware version string, cut at the first NUL
	Version string
	// Reply is the decoded reply payload
	Reply []byte
	// Mode is how the reply body was decoded
	Mode DecodeMode
	// Attempts is the number of queries sent
	Attempts int
	// TxPlain is true when the query was sent without XOR
	TxPlain bool
}

// Handshaker queries the radio firmware for its version string.
type Handshaker struct {
	config HandshakeConfig
}

// NewHandshaker creates a Handshaker with the given options.
//
//	hs := k5link.NewHandshaker(k5link.WithTxPlain(true))
//	res, err := hs.PerformHandshake(ctx, transport)
func NewHandshaker(opts ...HandshakeOption) *Handshaker {
	cfg := DefaultHandshakeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handshaker{config: cfg}
}

// Config returns a copy of the handshaker's configuration.
func (h *Handshaker) Config() HandshakeConfig {
	return h.config
}

// handshakeRun holds the per-call state of one handshake.
type handshakeRun struct {
	t      Transport
	wire   *wireRecorder
	config *HandshakeConfig
	state  HandshakeState
}

func (r *handshakeRun) setState(s HandshakeState) {
	r.state = s
	debugFields(logrus.Fields{"port": portName(r.t)}, "handshake: %s", s)
	if r.config.OnState != nil {
		r.config.OnState(s)
	}
}

// PerformHandshake sends the version query and waits for the reply,
// retrying after a settle delay when no reply arrives in time.
//
// A reply shorter than the version field fails at once with a
// ShortResponseError. Running out of attempts returns an error matching
// ErrTimeout. Errors carry a wire trace (see GetTrace).
func (h *Handshaker) PerformHandshake(ctx context.Context, t Transport) (*HandshakeResult, error) {
	run := &handshakeRun{
		t:      t,
		wire:   newWireRecorder(t, h.config.Observer),
		config: &h.config,
	}
	run.setState(HandshakeIdle)

	query := frame.Packetize(frame.QueryPayload(), !h.config.TxPlain)
	retry := &RetryConfig{
		MaxAttempts:       h.config.Attempts,
		InitialBackoff:    h.config.Settle,
		MaxBackoff:        h.config.Settle,
		BackoffMultiplier: 1.0,
		RetryIf: func(err error) bool {
			return errors.Is(err, ErrTimeout)
		},
		OnRetry: func(attempt int, err error) {
			run.setState(HandshakeTimedOut)
			Debugf("handshake: no reply yet (attempt %d/%d): %v", attempt, h.config.Attempts, err)
		},
	}

	var (
		reply []byte
		mode  DecodeMode
	)
	attempts, err := retryCounted(ctx, retry, func(attempt int) error {
		if err := run.wire.send(t, query, fmt.Sprintf("query attempt %d", attempt)); err != nil {
			return err
		}
		run.setState(HandshakeSent)

		payload, m, err := run.awaitReply(ctx)
		if err != nil {
			return err
		}
		run.setState(HandshakeAcked)
		if len(payload) < minReplyLength {
			return &ShortResponseError{Reply: payload, Want: minReplyLength}
		}
		reply, mode = payload, m
		return nil
	})
	if err != nil {
		if exhausted(retry, attempts, err) {
			run.setState(HandshakeTimedOut)
			err = fmt.Errorf("no reply after %d attempts: %w", attempts, err)
		}
		run.setState(HandshakeFailed)
		return nil, run.wire.trace.WrapError(err)
	}

	run.setState(HandshakeDone)
	return &HandshakeResult{
		Version:  ParseVersion(reply),
		Reply:    reply,
		Mode:     mode,
		Attempts: attempts,
		TxPlain:  h.config.TxPlain,
	}, nil
}

// awaitReply feeds a fresh parser until a decoded frame starts with the
// reply id's first byte or the attempt timeout elapses.
func (r *handshakeRun) awaitReply(ctx context.Context) ([]byte, DecodeMode, error) {
	var opts []frame.ParserOption
	if r.config.MaxReplyPayload > 0 {
		opts = append(opts, frame.WithMaxPayload(r.config.MaxReplyPayload))
	}
	parser := frame.NewParser(opts...)
	buf := make([]byte, 256)
	deadline := time.Now().Add(r.config.Timeout)

	for time.Now().Before(deadline) {
		n, err := readSome(ctx, r.t, buf)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			continue
		}
		parser.Feed(buf[:n])

		for {
			f, status := parser.Next()
			if status == frame.StatusNeedMore {
				break
			}
			if status == frame.StatusResync {
				debugFields(logrus.Fields{"buffered": parser.Buffered()}, "handshake: %v, resyncing", ErrFrameCorrupted)
				continue
			}
			payload, mode := frame.DecodeReply(f.Body)
			r.wire.rx(f.Raw, fmt.Sprintf("frame decoded(%s)=%X", mode, payload))
			if len(payload) > 0 && payload[0] == frame.ReplyFirstByte {
				return payload, mode, nil
			}
		}
	}

	note := fmt.Sprintf("no reply within %v", r.config.Timeout)
	if d := parser.Discarded(); d > 0 {
		note += fmt.Sprintf(", %d bytes discarded as noise", d)
	}
	r.wire.timeout(note)
	return nil, 0, NewTimeoutError(handshakeOpName, portName(r.t))
}

// ParseVersion extracts the NUL-terminated version field from a reply.
// Bytes outside ASCII become U+FFFD.
func ParseVersion(reply []byte) string {
	if len(reply) <= versionOffset {
		return ""
	}
	field := reply[versionOffset:min(len(reply), minReplyLength)]

	var sb strings.Builder
	for _, b := range field {
		if b == 0x00 {
			break
		}
		if b < utf8.RuneSelf {
			_ = sb.WriteByte(b)
		} else {
			_, _ = sb.WriteRune(utf8.RuneError)
		}
	}
	return sb.String()
}
