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
	"time"

	"github.com/ZaparooProject/go-k5link/internal/chunk"
	"github.com/sirupsen/logrus"
)

// TransferState is a step of the upload state machine.
type TransferState int

// Transfer states
const (
	TransferAwaitReady TransferState = iota
	TransferSendGo
	TransferSendHeader
	TransferAwaitStart
	TransferChunks
	TransferAwaitFinal
	TransferDone
	TransferAborted
)

func (s TransferState) String() string {
	switch s {
	case TransferAwaitReady:
		return "await ready"
	case TransferSendGo:
		return "send go"
	case TransferSendHeader:
		return "send header"
	case TransferAwaitStart:
		return "await start"
	case TransferChunks:
		return "transfer"
	case TransferAwaitFinal:
		return "await final"
	case TransferDone:
		return "done"
	case TransferAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome is the device's verdict after the last chunk.
type Outcome int

// Upload outcomes
const (
	// OutcomeSuccess means the device printed OK
	OutcomeSuccess Outcome = iota
	// OutcomeDeviceError means the device printed ERR
	OutcomeDeviceError
	// OutcomeAmbiguous means neither line arrived; the image may still be good
	OutcomeAmbiguous
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDeviceError:
		return "device error"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// UploadResult summarizes a finished upload.
type UploadResult struct {
	// Warning is ErrAmbiguousOutcome when no final line was seen
	Warning error
	// FinalLine is the OK/ERR line, if one was seen
	FinalLine string
	// Outcome is the device's verdict
	Outcome Outcome
	// Chunks is the number of chunks acknowledged
	Chunks int
	// Bytes is the number of bytes acknowledged
	Bytes int
	// Retries is the number of resends across all chunks
	Retries int
	// ReadySeen and StartSeen record whether the banners were observed
	ReadySeen bool
	StartSeen bool
	// Elapsed is the wall time of the whole upload
	Elapsed time.Duration
}

// Uploader drives the bootloader's chunked upload protocol.
type Uploader struct {
	config UploadConfig
}

// NewUploader creates an Uploader with the given options.
//
//	up := k5link.NewUploader(k5link.WithChunkSize(2048))
//	res, err := up.Upload(ctx, transport, image)
func NewUploader(opts ...UploadOption) *Uploader {
	cfg := DefaultUploadConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Uploader{config: cfg}
}

// Config returns a copy of the uploader's configuration.
func (u *Uploader) Config() UploadConfig {
	return u.config
}

// uploadRun holds the per-call state of one upload.
type uploadRun struct {
	started time.Time
	t       Transport
	config  *UploadConfig
	wire    *wireRecorder
	reader  *streamReader
	session *TransferSession
	result  *UploadResult
	state   TransferState
}

func (r *uploadRun) setState(s TransferState) {
	r.state = s
	debugFields(logrus.Fields{"port": portName(r.t)}, "upload: %s", s)
	if r.config.OnState != nil {
		r.config.OnState(s)
	}
}

func (r *uploadRun) logLine(line string) {
	debugFields(logrus.Fields{"state": r.state.String()}, "< %s", line)
	if r.state != TransferAwaitFinal && containsFold(line, chunk.ErrSentinel) {
		warnFields(logrus.Fields{"state": r.state.String()}, "device reported: %s", line)
	}
}

// Upload sends image to the bootloader on t.
//
// Sizes are validated before any byte is written. A missing READY or START
// banner is logged and the upload proceeds. A chunk that fails every attempt
// aborts with a RetryExhaustedError. If neither OK nor ERR follows the last
// chunk, the result has OutcomeAmbiguous, Warning set, and a nil error.
func (u *Uploader) Upload(ctx context.Context, t Transport, image []byte) (*UploadResult, error) {
	session, err := NewTransferSession(len(image), u.config.ChunkSize)
	if err != nil {
		return nil, err
	}

	wire := newWireRecorder(t, u.config.Observer)
	run := &uploadRun{
		started: time.Now(),
		t:       t,
		config:  &u.config,
		wire:    wire,
		reader:  newStreamReader(t, wire),
		session: session,
		result:  &UploadResult{Outcome: OutcomeAmbiguous},
	}

	if err := run.execute(ctx, image); err != nil {
		run.setState(TransferAborted)
		run.result.Elapsed = time.Since(run.started)
		return run.result, wire.trace.WrapError(err)
	}
	run.setState(TransferDone)
	run.result.Elapsed = time.Since(run.started)
	return run.result, nil
}

func (r *uploadRun) execute(ctx context.Context, image []byte) error {
	if err := r.handshake(ctx); err != nil {
		return err
	}

	r.setState(TransferChunks)
	if err := r.transfer(ctx, image); err != nil {
		return err
	}

	return r.awaitFinal(ctx)
}

// handshake covers READY, GO, the header and START.
func (r *uploadRun) handshake(ctx context.Context) error {
	r.setState(TransferAwaitReady)
	seen, err := r.reader.awaitSentinel(ctx, r.config.ReadyTimeout, chunk.ReadySentinel, r.logLine)
	if err != nil {
		return fmt.Errorf("waiting for READY: %w", err)
	}
	r.result.ReadySeen = seen
	if !seen {
		Warnf("no READY within %v, sending GO anyway", r.config.ReadyTimeout)
	}

	r.setState(TransferSendGo)
	if err := r.wire.send(r.t, []byte(chunk.GoCommand), "GO"); err != nil {
		return fmt.Errorf("sending GO: %w", err)
	}

	r.setState(TransferSendHeader)
	header := chunk.EncodeHeader(
		uint32(r.session.Total()),     //nolint:gosec // validated against MaxFirmwareSize
		uint16(r.session.ChunkSize()), //nolint:gosec // validated against MaxChunk
	)
	if err := r.wire.send(r.t, header, "header"); err != nil {
		return fmt.Errorf("sending header: %w", err)
	}
	Infof("header sent: magic=0x%08X total=%d chunk=%d", chunk.Magic, r.session.Total(), r.session.ChunkSize())

	r.setState(TransferAwaitStart)
	seen, err = r.reader.awaitSentinel(ctx, r.config.StartTimeout, chunk.StartSentinel, r.logLine)
	if err != nil {
		return fmt.Errorf("waiting for START: %w", err)
	}
	r.result.StartSeen = seen
	if !seen {
		Warnf("no START within %v, sending chunks anyway", r.config.StartTimeout)
	}
	return nil
}

// transfer sends every chunk, retrying each up to MaxAttempts times.
func (r *uploadRun) transfer(ctx context.Context, image []byte) error {
	retry := &RetryConfig{
		MaxAttempts: r.config.MaxAttempts,
		OnRetry: func(attempt int, err error) {
			r.result.Retries++
			warnFields(logrus.Fields{
				"seq":     r.session.Seq(),
				"offset":  r.session.Offset(),
				"attempt": attempt,
			}, "chunk retry %d/%d: %v", attempt, r.config.MaxAttempts, err)
		},
	}

	buf := chunk.GetPacketBuffer(r.session.ChunkSize())
	defer func() { chunk.PutBuffer(buf) }()

	for {
		span, ok := r.session.Current()
		if !ok {
			return nil
		}
		buf = chunk.AppendPacket(buf[:0], span.Seq, image[span.Offset:span.Offset+span.Length])

		attempts, err := retryCounted(ctx, retry, func(int) error {
			r.session.Sent()
			return r.sendChunk(ctx, span, buf)
		})
		if err != nil {
			if exhausted(retry, attempts, err) {
				debugFields(logrus.Fields{
					"acked":   r.session.AckedCount(),
					"missing": r.session.Missing(),
				}, "chunk %d exhausted %d attempts", span.Seq, attempts)
				return &RetryExhaustedError{
					Seq:      span.Seq,
					Offset:   r.session.Offset(),
					Attempts: attempts,
					LastErr:  err,
				}
			}
			return fmt.Errorf("chunk %d: %w", span.Seq, err)
		}

		if err := r.session.Ack(); err != nil {
			return err
		}
		r.result.Chunks = r.session.AckedCount()
		r.result.Bytes = r.session.Offset()
		debugFields(logrus.Fields{
			"seq":    span.Seq,
			"offset": r.session.Offset(),
		}, "written %d/%d bytes (%d%%)", r.session.Offset(), r.session.Total(), r.session.Percent())
		r.reportProgress(span.Seq)
	}
}

// sendChunk performs one send/response exchange for a chunk.
func (r *uploadRun) sendChunk(ctx context.Context, span chunk.Span, packet []byte) error {
	if err := r.wire.send(r.t, packet, fmt.Sprintf("chunk %d", span.Seq)); err != nil {
		return err
	}

	rsp, ok, err := r.reader.readByte(ctx, r.config.ChunkTimeout)
	if err != nil {
		return err
	}
	if !ok {
		r.wire.timeout(fmt.Sprintf("chunk %d", span.Seq))
		return NewTimeoutError(fmt.Sprintf("chunk %d", span.Seq), portName(r.t))
	}

	switch rsp {
	case chunk.Ack:
		return nil
	case chunk.Nak:
		code, ok, err := r.reader.readByte(ctx, r.config.NakStatusTimeout)
		if err != nil {
			return err
		}
		return &NakError{Seq: span.Seq, Code: chunk.NakCode(code), HasCode: ok}
	default:
		return fmt.Errorf("chunk %d: %w 0x%02X", span.Seq, ErrUnexpectedResponse, rsp)
	}
}

func (r *uploadRun) reportProgress(seq uint32) {
	if r.config.Progress == nil {
		return
	}
	r.config.Progress(Progress{
		State:   r.state,
		Seq:     seq,
		Chunks:  r.session.Chunks(),
		Offset:  r.session.Offset(),
		Total:   r.session.Total(),
		Percent: r.session.Percent(),
		Elapsed: time.Since(r.started),
	})
}

// awaitFinal reads lines until OK or ERR, or the final timeout.
func (r *uploadRun) awaitFinal(ctx context.Context) error {
	r.setState(TransferAwaitFinal)
	deadline := time.Now().Add(r.config.FinalTimeout)
	for {
		line, ok, err := r.reader.readLine(ctx, deadline)
		if err != nil {
			return fmt.Errorf("waiting for final status: %w", err)
		}
		if !ok {
			r.result.Outcome = OutcomeAmbiguous
			r.result.Warning = ErrAmbiguousOutcome
			Warnf("no OK or ERR within %v; check the device to confirm the update", r.config.FinalTimeout)
			return nil
		}
		if line == "" {
			continue
		}
		r.logLine(line)

		outcome, matched := matchFinal(line)
		if !matched {
			continue
		}
		r.result.Outcome = outcome
		r.result.FinalLine = line
		if outcome == OutcomeDeviceError {
			return fmt.Errorf("%w: %s", ErrDeviceRejected, line)
		}
		return nil
	}
}

// IsAmbiguous reports whether res ended without a final verdict.
func IsAmbiguous(res *UploadResult) bool {
	return res != nil && errors.Is(res.Warning, ErrAmbiguousOutcome)
}
