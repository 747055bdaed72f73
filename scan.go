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
)

// scanBauds is the order rates are tried in: the firmware default first,
// then the common alternatives.
var scanBauds = [...]int{38400, 115200, 57600, 19200, 9600}

// DefaultScanBauds returns the rates tried by Scan when none are given.
func DefaultScanBauds() []int {
	out := make([]int, len(scanBauds))
	copy(out, scanBauds[:])
	return out
}

// Opener opens a transport at the given baud rate.
type Opener func(baud int) (Transport, error)

// ScanResult is the first handshake that succeeded during a scan.
type ScanResult struct {
	*HandshakeResult
	Baud int
}

// ErrScanFailed is returned when no baud rate produced a handshake.
var ErrScanFailed = errors.New("all baud rates failed")

// Scan tries a handshake at each baud rate in turn, reopening the port for
// each, and stops at the first success.
func Scan(ctx context.Context, open Opener, bauds []int, hs *Handshaker) (*ScanResult, error) {
	if len(bauds) == 0 {
		bauds = DefaultScanBauds()
	}
	if hs == nil {
		hs = NewHandshaker()
	}

	var lastErr error
	for _, baud := range bauds {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan cancelled: %w", err)
		}
		tx := "xor"
		if hs.config.TxPlain {
			tx = "plain"
		}
		Debugf("scan: trying baud=%d tx=%s", baud, tx)

		res, err := scanOne(ctx, open, baud, hs)
		if err == nil {
			return &ScanResult{HandshakeResult: res, Baud: baud}, nil
		}
		Debugf("scan: baud=%d failed: %v", baud, err)
		lastErr = err
		if IsFatal(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: last error: %w", ErrScanFailed, lastErr)
}

func scanOne(ctx context.Context, open Opener, baud int, hs *Handshaker) (*HandshakeResult, error) {
	t, err := open(baud)
	if err != nil {
		return nil, fmt.Errorf("open at %d baud: %w", baud, err)
	}
	defer func() {
		if closeErr := t.Close(); closeErr != nil {
			Debugf("scan: close at %d baud: %v", baud, closeErr)
		}
	}()
	return hs.PerformHandshake(ctx, t)
}
