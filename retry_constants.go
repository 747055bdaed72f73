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

import "time"

// Serial line defaults.
const (
	// DefaultHandshakeBaud is the rate the radio firmware listens on.
	DefaultHandshakeBaud = 38400
	// DefaultUploadBaud is the rate the bootloader listens on.
	DefaultUploadBaud = 115200
	// DefaultReadTimeout bounds a single poll of the transport.
	DefaultReadTimeout = 50 * time.Millisecond
	// DefaultSettleDelay is the pause after opening the port. Opening a
	// USB-UART bridge can reset the target through DTR/RTS.
	DefaultSettleDelay = time.Second
)

// Handshake retry constants.
const (
	// DefaultHandshakeAttempts is the number of query/reply exchanges tried.
	DefaultHandshakeAttempts = 3
	// DefaultHandshakeTimeout bounds the wait for a reply to one query.
	DefaultHandshakeTimeout = 1500 * time.Millisecond
	// DefaultMaxReplyPayload bounds the length field the handshake parser
	// will wait on before treating the header as noise.
	DefaultMaxReplyPayload = 1024
)

// Upload timing constants mirror the bootloader's own read timeouts.
const (
	// DefaultReadyTimeout bounds the wait for the READY banner.
	DefaultReadyTimeout = 60 * time.Second
	// DefaultStartTimeout bounds the wait for START while flash is erased.
	DefaultStartTimeout = 10 * time.Second
	// DefaultChunkTimeout bounds the wait for the ACK/NAK byte of one chunk.
	DefaultChunkTimeout = 20 * time.Second
	// DefaultNakStatusTimeout bounds the wait for the status byte after 'E'.
	DefaultNakStatusTimeout = time.Second
	// DefaultFinalTimeout bounds the wait for OK or ERR after the last chunk.
	DefaultFinalTimeout = 10 * time.Second
	// DefaultChunkAttempts is the number of sends per chunk before aborting.
	DefaultChunkAttempts = 5
)

// Monitor mode defaults.
const (
	// DefaultHoldDuration is how long listen mode keeps the port open.
	DefaultHoldDuration = 2 * time.Second
	// DefaultRawDuration is how long raw mode keeps sending.
	DefaultRawDuration = 2 * time.Second
	// DefaultRawInterval is the pause between raw sends.
	DefaultRawInterval = 50 * time.Millisecond
)
