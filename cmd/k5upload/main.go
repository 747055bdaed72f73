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


// Command k5upload sends a firmware image to the update bootloader over a
// serial port. Without -port it lists USB serial ports and asks which to use.
//
// Exit codes: 0 success or unconfirmed result, 1 other failures, 2 invalid
// input, 3 a chunk failed every attempt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abiosoft/ishell"

	k5link "github.com/ZaparooProject/go-k5link"
	"github.com/ZaparooProject/go-k5link/detection"
	_ "github.com/ZaparooProject/go-k5link/detection/uart"
	"github.com/ZaparooProject/go-k5link/internal/syncutil"
	"github.com/ZaparooProject/go-k5link/transport/uart"
)

const (
	exitError     = 1
	exitInvalid   = 2
	exitExhausted = 3
)

var errNoPortSelected = errors.New("no port selected")

type config struct {
	file  string
	port  string
	baud  int
	chunk int
	debug bool
}

// Package-level flag variables
var (
	flagFile  string
	flagPort  string
	flagBaud  int
	flagChunk int
	flagDebug bool
)

func init() {
	flag.StringVar(&flagFile, "file", "", "Firmware image to upload (required)")
	flag.StringVar(&flagPort, "port", "", "Serial port, e.g. /dev/ttyUSB0 (choose interactively if empty)")
	flag.IntVar(&flagBaud, "baud", k5link.DefaultUploadBaud, "Baud rate")
	flag.IntVar(&flagChunk, "chunk", k5link.DefaultUploadConfig().ChunkSize, "Chunk size in bytes")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output and write a session log")
}

func parseConfig() *config {
	cfg := &config{
		file:  flagFile,
		port:  flagPort,
		baud:  flagBaud,
		chunk: flagChunk,
		debug: flagDebug,
	}
	if cfg.debug {
		k5link.SetDebugEnabled(true)
	}
	return cfg
}

// openTransport is replaced in tests.
var openTransport = func(port string, opts uart.Options) (k5link.Transport, error) {
	t, err := uart.Open(port, opts)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// listPorts is replaced in tests.
var listPorts = func(ctx context.Context) ([]detection.DeviceInfo, error) {
	opts := detection.DefaultOptions()
	opts.EnableCache = false
	return detection.DetectAll(ctx, &opts)
}

// choosePort is replaced in tests. It returns -1 when nothing was chosen.
var choosePort = func(labels []string) int {
	shell := ishell.New()
	defer shell.Close()
	return shell.MultiChoice(labels, "Select the bootloader serial port:")
}

func selectPort(ctx context.Context, out io.Writer) (string, error) {
	devices, err := listPorts(ctx)
	if err != nil {
		return "", fmt.Errorf("no serial ports found: %w", err)
	}
	if len(devices) == 1 {
		_, _ = fmt.Fprintf(out, "Using %s\n", devices[0].Label())
		return devices[0].Path, nil
	}

	labels := make([]string, len(devices))
	for i, d := range devices {
		labels[i] = d.Label()
	}
	idx := choosePort(labels)
	if idx < 0 || idx >= len(devices) {
		return "", errNoPortSelected
	}
	return devices[idx].Path, nil
}

// progressPrinter prints one line per acknowledged chunk.
func progressPrinter(out io.Writer) k5link.ProgressCallback {
	return func(p k5link.Progress) {
		_, _ = fmt.Fprintf(out, "Wrote %d/%d bytes (%d%%)\n", p.Offset, p.Total, p.Percent)
	}
}

// statePrinter announces the phases that can take a while.
func statePrinter(out io.Writer, cfg k5link.UploadConfig) func(k5link.TransferState) {
	return func(s k5link.TransferState) {
		switch s {
		case k5link.TransferAwaitReady:
			_, _ = fmt.Fprintf(out, "Waiting for READY (up to %v)...\n", cfg.ReadyTimeout)
		case k5link.TransferSendGo:
			_, _ = fmt.Fprintln(out, "> GO")
		case k5link.TransferAwaitStart:
			_, _ = fmt.Fprintln(out, "Waiting for START...")
		case k5link.TransferAwaitFinal:
			_, _ = fmt.Fprintln(out, "All data sent, waiting for OK...")
		default:
		}
	}
}

func readImage(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: -file is required", k5link.ErrValidation)
	}
	image, err := os.ReadFile(path) //nolint:gosec // path is the user's own -file argument
	if err != nil {
		return nil, fmt.Errorf("%w: %w", k5link.ErrValidation, err)
	}
	return image, nil
}

func run(ctx context.Context, cfg *config, out io.Writer) error {
	image, err := readImage(cfg.file)
	if err != nil {
		return err
	}
	if err := k5link.ValidateUpload(len(image), cfg.chunk); err != nil {
		return err
	}

	port := cfg.port
	if port == "" {
		if port, err = selectPort(ctx, out); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintf(out, "Opening %s @ %d...\n", port, cfg.baud)
	opts := uart.DefaultOptions()
	opts.Baud = cfg.baud
	t, err := openTransport(port, opts)
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()

	defaults := k5link.DefaultUploadConfig()
	uploader := k5link.NewUploader(
		k5link.WithChunkSize(cfg.chunk),
		k5link.WithProgressCallback(progressPrinter(out)),
		k5link.WithTransferStateHook(statePrinter(out, defaults)),
	)
	res, err := uploader.Upload(ctx, t, image)
	if err != nil {
		return err
	}

	if k5link.IsAmbiguous(res) {
		_, _ = fmt.Fprintln(out, "No OK or ERR received; check the device to confirm the result.")
		return nil
	}
	_, _ = fmt.Fprintf(out, "Device returned OK, upload succeeded (%d chunks, %d retries, %v).\n",
		res.Chunks, res.Retries, res.Elapsed.Round(time.Millisecond))
	return nil
}

// exitCode maps an upload error to the process exit status. An aborted
// upload is a failure: the flash may hold a partial image.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, k5link.ErrValidation):
		return exitInvalid
	case errors.Is(err, k5link.ErrRetryExhausted):
		return exitExhausted
	default:
		return exitError
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

	if cfg.debug {
		path, err := k5link.InitSessionLog()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			_, _ = fmt.Printf("Session log: %s (deadlock detection: %v)\n", path, syncutil.DeadlockDetection)
			defer func() { _ = k5link.CloseSessionLog() }()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nAborting upload...\n")
		cancel()
	}()

	err := run(ctx, cfg, os.Stdout)
	if errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintln(os.Stderr, "Upload aborted; the image may be partially written.")
	} else if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var te *k5link.TraceableError
		if cfg.debug && errors.As(err, &te) {
			_, _ = fmt.Fprintf(os.Stderr, "Wire trace:\n%s", te.FormatTrace())
		}
	}
	return exitCode(err)
}
