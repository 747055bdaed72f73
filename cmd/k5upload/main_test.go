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


//nolint:paralleltest // Tests replace package-level openTransport, listPorts and choosePort
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	k5link "github.com/ZaparooProject/go-k5link"
	"github.com/ZaparooProject/go-k5link/detection"
	"github.com/ZaparooProject/go-k5link/internal/chunk"
	ktesting "github.com/ZaparooProject/go-k5link/internal/testing"
	"github.com/ZaparooProject/go-k5link/transport/uart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, n int) string {
	t.Helper()
	image := make([]byte, n)
	for i := range image {
		image[i] = byte(i * 7)
	}
	path := filepath.Join(t.TempDir(), "app.bin")
	require.NoError(t, os.WriteFile(path, image, 0o600))
	return path
}

// withBootloader makes every open return the same simulated bootloader.
func withBootloader(t *testing.T, cfg ktesting.BootloaderConfig) (*ktesting.VirtualBootloader, *int) {
	t.Helper()
	boot := ktesting.NewVirtualBootloader(cfg)
	opens := 0
	orig := openTransport
	openTransport = func(_ string, opts uart.Options) (k5link.Transport, error) {
		opens++
		assert.Equal(t, k5link.DefaultUploadBaud, opts.Baud)
		st := k5link.NewStreamTransport(boot, "bootloader")
		_ = st.SetReadTimeout(5 * time.Millisecond)
		return st, nil
	}
	t.Cleanup(func() { openTransport = orig })
	return boot, &opens
}

func uploadConfig(file string) *config {
	return &config{
		file:  file,
		port:  "/dev/ttyFAKE",
		baud:  k5link.DefaultUploadBaud,
		chunk: 1024,
	}
}

func TestRun_Upload(t *testing.T) {
	boot, _ := withBootloader(t, ktesting.DefaultBootloaderConfig())
	path := writeImage(t, 3000)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), uploadConfig(path), &out))

	want, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, boot.Image())

	text := out.String()
	assert.Contains(t, text, "Opening /dev/ttyFAKE @ 115200...")
	assert.Contains(t, text, "Waiting for READY (up to 1m0s)...")
	assert.Contains(t, text, "> GO")
	assert.Contains(t, text, "Wrote 1024/3000 bytes (34%)")
	assert.Contains(t, text, "Wrote 3000/3000 bytes (100%)")
	assert.Contains(t, text, "upload succeeded (3 chunks, 0 retries")
}

func TestRun_InvalidInputNeverOpensPort(t *testing.T) {
	_, opens := withBootloader(t, ktesting.DefaultBootloaderConfig())

	tests := []struct {
		cfg  *config
		name string
	}{
		{name: "no file", cfg: uploadConfig("")},
		{name: "missing file", cfg: uploadConfig(filepath.Join(t.TempDir(), "nope.bin"))},
		{name: "chunk too large", cfg: &config{file: writeImage(t, 100), chunk: chunk.MaxChunk + 1}},
		{name: "image too small", cfg: uploadConfig(writeImage(t, chunk.MinFirmwareSize-1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.cfg, &bytes.Buffer{})
			require.ErrorIs(t, err, k5link.ErrValidation)
			assert.Equal(t, exitInvalid, exitCode(err))
		})
	}
	assert.Zero(t, *opens)
}

func TestRun_RetryExhausted(t *testing.T) {
	cfg := ktesting.DefaultBootloaderConfig()
	cfg.NakSeq = map[uint32]int{1: k5link.DefaultChunkAttempts}
	withBootloader(t, cfg)

	err := run(context.Background(), uploadConfig(writeImage(t, 3000)), &bytes.Buffer{})
	require.ErrorIs(t, err, k5link.ErrRetryExhausted)
	assert.Equal(t, exitExhausted, exitCode(err))
}

func TestRun_DeviceRejected(t *testing.T) {
	cfg := ktesting.DefaultBootloaderConfig()
	cfg.FinalLine = "ERR: flash write"
	withBootloader(t, cfg)

	err := run(context.Background(), uploadConfig(writeImage(t, 100)), &bytes.Buffer{})
	require.ErrorIs(t, err, k5link.ErrDeviceRejected)
	assert.Equal(t, exitError, exitCode(err))
}

func TestRun_PromptsForPort(t *testing.T) {
	withBootloader(t, ktesting.DefaultBootloaderConfig())

	origList, origChoose := listPorts, choosePort
	t.Cleanup(func() { listPorts, choosePort = origList, origChoose })
	listPorts = func(context.Context) ([]detection.DeviceInfo, error) {
		return []detection.DeviceInfo{{Path: "/dev/ttyUSB0"}, {Path: "/dev/ttyUSB1"}}, nil
	}
	var offered []string
	choosePort = func(labels []string) int {
		offered = labels
		return 1
	}

	cfg := uploadConfig(writeImage(t, 100))
	cfg.port = ""

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, offered)
	assert.Contains(t, out.String(), "Opening /dev/ttyUSB1 @ 115200...")
}

func TestSelectPort(t *testing.T) {
	origList, origChoose := listPorts, choosePort
	t.Cleanup(func() { listPorts, choosePort = origList, origChoose })

	choosePort = func([]string) int {
		t.Fatal("a single port must not prompt")
		return -1
	}
	listPorts = func(context.Context) ([]detection.DeviceInfo, error) {
		return []detection.DeviceInfo{{Path: "COM5"}}, nil
	}
	var out bytes.Buffer
	port, err := selectPort(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, "COM5", port)
	assert.Equal(t, "Using COM5\n", out.String())

	listPorts = func(context.Context) ([]detection.DeviceInfo, error) {
		return []detection.DeviceInfo{{Path: "COM5"}, {Path: "COM6"}}, nil
	}
	choosePort = func([]string) int { return -1 }
	_, err = selectPort(context.Background(), &bytes.Buffer{})
	require.ErrorIs(t, err, errNoPortSelected)

	listPorts = func(context.Context) ([]detection.DeviceInfo, error) {
		return nil, detection.ErrNoDevicesFound
	}
	_, err = selectPort(context.Background(), &bytes.Buffer{})
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	assert.Equal(t, exitError, exitCode(err))
}

func TestRun_CancelledMidTransferFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := k5link.NewMockTransport()
	m.QueueRead([]byte("READY\n"))
	m.OnWrite(func(m *k5link.MockTransport, _ []byte) {
		switch m.WriteCount() {
		case 2: // header
			m.QueueRead([]byte("START\n"))
		case 3: // first chunk, never answered
			cancel()
		}
	})
	orig := openTransport
	openTransport = func(string, uart.Options) (k5link.Transport, error) { return m, nil }
	t.Cleanup(func() { openTransport = orig })

	err := run(ctx, uploadConfig(writeImage(t, 3000)), &bytes.Buffer{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, exitError, exitCode(err), "an interrupted flash must not look like success")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{context.Canceled, exitError},
		{fmt.Errorf("chunk 0: read cancelled: %w", context.Canceled), exitError},
		{&k5link.ValidationError{Field: "chunk size", Value: 0, Min: 1, Max: 2048}, exitInvalid},
		{&k5link.RetryExhaustedError{}, exitExhausted},
		{k5link.ErrDeviceRejected, exitError},
		{errors.New("boom"), exitError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}
