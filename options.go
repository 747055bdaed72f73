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
	"time"

	"github.com/ZaparooProject/go-k5link/internal/chunk"
)

// HandshakeConfig holds the handshake configuration.
type HandshakeConfig struct {
	// Observer receives every wire event when set (the -v trace)
	Observer WireObserver

	// OnState is called on every state transition (optional)
	OnState func(HandshakeState)

	// Attempts is the number of query/reply exchanges before giving up
	Attempts int

	// Timeout bounds the wait for a reply to one query
	Timeout time.Duration

	// Settle is the pause between attempts, which outlasts a device reset
	Settle time.Duration

	// MaxReplyPayload bounds the length field accepted from the device
	MaxReplyPayload int

	// TxPlain sends the query without the XOR layer
	TxPlain bool
}

// DefaultHandshakeConfig returns the default configuration.
func DefaultHandshakeConfig() HandshakeConfig {
	return HandshakeConfig{
		Attempts:        DefaultHandshakeAttempts,
		Timeout:         DefaultHandshakeTimeout,
		Settle:          DefaultSettleDelay,
		MaxReplyPayload: DefaultMaxReplyPayload,
	}
}

// HandshakeOption is a functional option for configuring a Handshaker.
type HandshakeOption func(*HandshakeConfig)

// WithAttempts sets the number of query attempts.
func WithAttempts(n int) HandshakeOption {
	return func(c *HandshakeConfig) {
		if n > 0 {
			c.Attempts = n
		}
	}
}

// WithReplyTimeout sets the per-attempt reply timeout.
func WithReplyTimeout(d time.Duration) HandshakeOption {
	return func(c *HandshakeConfig) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithSettleDelay sets the pause between attempts. Zero disables it.
func WithSettleDelay(d time.Duration) HandshakeOption {
	return func(c *HandshakeConfig) {
		if d >= 0 {
			c.Settle = d
		}
	}
}

// WithTxPlain disables the XOR layer on the outgoing query.
// Replies are always decoded both ways.
func WithTxPlain(plain bool) HandshakeOption {
	return func(c *HandshakeConfig) {
		c.TxPlain = plain
	}
}

// WithMaxReplyPayload bounds the reply length field. Zero means unbounded.
func WithMaxReplyPayload(n int) HandshakeOption {
	return func(c *HandshakeConfig) {
		if n >= 0 {
			c.MaxReplyPayload = n
		}
	}
}

// WithHandshakeObserver installs a wire observer.
func WithHandshakeObserver(obs WireObserver) HandshakeOption {
	return func(c *HandshakeConfig) {
		c.Observer = obs
	}
}

// WithHandshakeStateHook installs a state transition callback.
func WithHandshakeStateHook(hook func(HandshakeState)) HandshakeOption {
	return func(c *HandshakeConfig) {
		c.OnState = hook
	}
}

// UploadConfig holds the uploader configuration.
type UploadConfig struct {
	// Progress is called after every acknowledged chunk (optional)
	Progress ProgressCallback

	// Observer receives every wire event when set
	Observer WireObserver

	// OnState is called on every state transition (optional)
	OnState func(TransferState)

	// ChunkSize is the data length of every chunk except possibly the last
	ChunkSize int

	// MaxAttempts is the number of sends per chunk before aborting
	MaxAttempts int

	// ReadyTimeout bounds the wait for READY
	ReadyTimeout time.Duration

	// StartTimeout bounds the wait for START
	StartTimeout time.Duration

	// ChunkTimeout bounds the wait for a chunk's ACK/NAK byte
	ChunkTimeout time.Duration

	// NakStatusTimeout bounds the wait for the status byte after a NAK
	NakStatusTimeout time.Duration

	// FinalTimeout bounds the wait for OK/ERR
	FinalTimeout time.Duration
}

// DefaultUploadConfig returns the default configuration.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		ChunkSize:        chunk.DefaultChunk,
		MaxAttempts:      DefaultChunkAttempts,
		ReadyTimeout:     DefaultReadyTimeout,
		StartTimeout:     DefaultStartTimeout,
		ChunkTimeout:     DefaultChunkTimeout,
		NakStatusTimeout: DefaultNakStatusTimeout,
		FinalTimeout:     DefaultFinalTimeout,
	}
}

// UploadOption is a functional option for configuring an Uploader.
type UploadOption func(*UploadConfig)

// WithChunkSize sets the chunk size. It is validated when Upload runs so an
// out-of-range value is reported rather than silently replaced.
func WithChunkSize(size int) UploadOption {
	return func(c *UploadConfig) {
		c.ChunkSize = size
	}
}

// WithMaxAttempts sets the number of sends per chunk.
func WithMaxAttempts(n int) UploadOption {
	return func(c *UploadConfig) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithProgressCallback sets a callback to track upload progress.
//
//	up := k5link.NewUploader(
//	    k5link.WithProgressCallback(func(p k5link.Progress) {
//	        fmt.Printf("%d/%d bytes (%d%%)\n", p.Offset, p.Total, p.Percent)
//	    }),
//	)
func WithProgressCallback(cb ProgressCallback) UploadOption {
	return func(c *UploadConfig) {
		c.Progress = cb
	}
}

// WithUploadObserver installs a wire observer.
func WithUploadObserver(obs WireObserver) UploadOption {
	return func(c *UploadConfig) {
		c.Observer = obs
	}
}

// WithTransferStateHook installs a state transition callback.
func WithTransferStateHook(hook func(TransferState)) UploadOption {
	return func(c *UploadConfig) {
		c.OnState = hook
	}
}

// WithUploadTimeouts overrides the per-phase deadlines. Zero values keep
// the current setting.
func WithUploadTimeouts(ready, start, perChunk, final time.Duration) UploadOption {
	return func(c *UploadConfig) {
		if ready > 0 {
			c.ReadyTimeout = ready
		}
		if start > 0 {
			c.StartTimeout = start
		}
		if perChunk > 0 {
			c.ChunkTimeout = perChunk
		}
		if final > 0 {
			c.FinalTimeout = final
		}
	}
}

// WithNakStatusTimeout sets the wait for the status byte after a NAK.
func WithNakStatusTimeout(d time.Duration) UploadOption {
	return func(c *UploadConfig) {
		if d > 0 {
			c.NakStatusTimeout = d
		}
	}
}
