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


// Package k5link talks to a K5 radio over a serial link. It covers two
// protocols: the framed query/response handshake spoken by the radio
// firmware, and the chunked upload spoken by its update bootloader.
//
//	t, err := uart.Open("/dev/ttyUSB0", uart.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	res, err := k5link.NewHandshaker().PerformHandshake(ctx, t)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Version)
//
// Uploads use NewUploader with a Transport opened at DefaultUploadBaud.
package k5link
