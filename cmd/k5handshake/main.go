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


// Command k5handshake opens a serial port and asks the radio firmware for its
// version string. It can also hold the port open without transmitting, send
// raw bytes, or scan the common baud rates.
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

	k5link "github.com/ZaparooProject/go-k5link"
	"github.com/ZaparooProject/go-k5link/detection"
	_ "github.com/ZaparooProject/go-k5link/detection/uart"
	"github.com/ZaparooProject/go-k5link/transport/uart"
)

const exitFailure = 2

type config struct {
	port        string
	raw         string
	baud        int
	timeout     time.Duration
	settle      time.Duration
	hold        time.Duration
	rawSeconds  time.Duration
	rawInterval time.Duration
	scan        bool
	txPlain     bool
	noTx        bool
	verbose     bool
}

// Package-level flag variables
var (
	flagPort        string
	flagRaw         string
	flagBaud        int
	flagTimeout     time.Duration
	flagSettle      time.Duration
	flagHold        time.Duration
	flagRawSeconds  time.Duration
	flagRawInterval time.Duration
	flagScan        bool
	flagTxPlain     bool
	flagNoTx        bool
	flagVerbose     bool
)

func init() {
	flag.StringVar(&flagPort, "port", "", "Serial port, e.g. /dev/cu.usbserial-1130 (auto-detect if empty)")
	flag.IntVar(&flagBaud, "baud", k5link.DefaultHandshakeBaud, "Baud rate")
	flag.BoolVar(&flagScan, "scan", false, "Scan common baud rates (ignores -baud)")
	flag.BoolVar(&flagTxPlain, "tx-plain", false, "Send the query without the XOR layer")
	flag.DurationVar(&flagTimeout, "timeout", k5link.DefaultHandshakeTimeout, "Reply timeout per attempt")
	flag.DurationVar(&flagSettle, "settle", k5link.DefaultSettleDelay,
		"Wait after opening the port, for boards reset by DTR/RTS")
	flag.BoolVar(&flagNoTx, "no-tx", false, "Open the port and only listen, to see whether opening resets the target")
	flag.DurationVar(&flagHold, "hold", k5link.DefaultHoldDuration, "How long -no-tx keeps the port open")
	flag.StringVar(&flagRaw, "raw", "", "Send raw hex bytes with no framing, e.g. 55 or abcd")
	flag.DurationVar(&flagRawSeconds, "raw-seconds", k5link.DefaultRawDuration, "How long -raw keeps sending")
	flag.DurationVar(&flagRawInterval, "raw-interval", k5link.DefaultRawInterval, "Pause between -raw sends")
	flag.BoolVar(&flagVerbose, "v", false, "Print every byte sent and received")
}

func parseConfig() *config {
	return &config{
		port:        flagPort,
		raw:         flagRaw,
		baud:        flagBaud,
		timeout:     flagTimeout,
		settle:      flagSettle,
		hold:        flagHold,
		rawSeconds:  flagRawSeconds,
		rawInterval: flagRawInterval,
		scan:        flagScan,
		txPlain:     flagTxPlain,
		noTx:        flagNoTx,
		verbose:     flagVerbose,
	}
}

// openTransport is replaced in tests.
var openTransport = func(port string, opts uart.Options) (k5link.Transport, error) {
	t, err := uart.Open(port, opts)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// detectPorts is replaced in tests.
var detectPorts = func(ctx context.Context) ([]detection.DeviceInfo, error) {
	opts := detection.DefaultOptions()
	return detection.DetectAll(ctx, &opts)
}

func txName(plain bool) string {
	if plain {
		return "plain"
	}
	return "xor"
}

// wirePrinter prints wire events as [TX]/[RX] hex lines.
func wirePrinter(out io.Writer, rxOnly bool) k5link.WireObserver {
	return func(e k5link.TraceEntry) {
		if rxOnly && e.Direction != k5link.TraceRX {
			return
		}
		switch {
		case len(e.Data) == 0:
			_, _ = fmt.Fprintf(out, "[%s] %s\n", e.Direction, e.Note)
		case e.Note != "":
			_, _ = fmt.Fprintf(out, "[%s] %x (%s)\n", e.Direction, e.Data, e.Note)
		default:
			_, _ = fmt.Fprintf(out, "[%s] %x\n", e.Direction, e.Data)
		}
	}
}

func resolvePort(ctx context.Context, cfg *config, out io.Writer) (string, error) {
	if cfg.port != "" {
		return cfg.port, nil
	}
	devices, err := detectPorts(ctx)
	if err != nil {
		return "", fmt.Errorf("no -port given and detection failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "[PORT] using %s\n", devices[0].Label())
	return devices[0].Path, nil
}

func (cfg *config) uartOptions(baud int) uart.Options {
	opts := uart.DefaultOptions()
	opts.Baud = baud
	opts.Settle = cfg.settle
	return opts
}

func run(ctx context.Context, cfg *config, out io.Writer) error {
	port, err := resolvePort(ctx, cfg, out)
	if err != nil {
		return err
	}

	switch {
	case cfg.noTx:
		return runListen(ctx, cfg, port, out)
	case cfg.raw != "":
		return runRaw(ctx, cfg, port, out)
	case cfg.scan:
		return runScan(ctx, cfg, port, out)
	default:
		return runHandshake(ctx, cfg, port, out)
	}
}

func runListen(ctx context.Context, cfg *config, port string, out io.Writer) error {
	t, err := openTransport(port, cfg.uartOptions(cfg.baud))
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()

	_, _ = fmt.Fprintf(out, "[OPEN] opened %s baud=%d; no-tx mode; holding %v\n", port, cfg.baud, cfg.hold)
	stats, err := k5link.Listen(ctx, t, cfg.hold, wirePrinter(out, true))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "[DONE] received %d bytes\n", stats.Received)
	return nil
}

func runRaw(ctx context.Context, cfg *config, port string, out io.Writer) error {
	data, err := k5link.ParseHex(cfg.raw)
	if err != nil {
		return err
	}
	t, err := openTransport(port, cfg.uartOptions(cfg.baud))
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()

	_, _ = fmt.Fprintf(out, "[RAW] opened %s baud=%d; sending %x for %v every %v\n",
		port, cfg.baud, data, cfg.rawSeconds, cfg.rawInterval)
	stats, err := k5link.RawSend(ctx, t, data, cfg.rawSeconds, cfg.rawInterval, wirePrinter(out, !cfg.verbose))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "[DONE] sent %d times, received %d bytes\n", stats.Sends, stats.Received)
	return nil
}

func (cfg *config) handshaker(out io.Writer) *k5link.Handshaker {
	opts := []k5link.HandshakeOption{
		k5link.WithReplyTimeout(cfg.timeout),
		k5link.WithTxPlain(cfg.txPlain),
	}
	if cfg.verbose {
		opts = append(opts, k5link.WithHandshakeObserver(wirePrinter(out, false)))
	}

	attempt := 0
	opts = append(opts, k5link.WithHandshakeStateHook(func(s k5link.HandshakeState) {
		switch s {
		case k5link.HandshakeSent:
			attempt++
		case k5link.HandshakeTimedOut:
			_, _ = fmt.Fprintf(out, "[RETRY] no reply yet (attempt %d/%d)\n", attempt, k5link.DefaultHandshakeAttempts)
		default:
		}
	}))
	return k5link.NewHandshaker(opts...)
}

func runHandshake(ctx context.Context, cfg *config, port string, out io.Writer) error {
	t, err := openTransport(port, cfg.uartOptions(cfg.baud))
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()

	res, err := cfg.handshaker(out).PerformHandshake(ctx, t)
	if err != nil {
		return err
	}
	printOK(out, cfg.baud, res)
	return nil
}

func runScan(ctx context.Context, cfg *config, port string, out io.Writer) error {
	open := func(baud int) (k5link.Transport, error) {
		_, _ = fmt.Fprintf(out, "[SCAN] trying baud=%d tx=%s\n", baud, txName(cfg.txPlain))
		return openTransport(port, cfg.uartOptions(baud))
	}
	res, err := k5link.Scan(ctx, open, nil, cfg.handshaker(out))
	if err != nil {
		return err
	}
	printOK(out, res.Baud, res.HandshakeResult)
	return nil
}

func printOK(out io.Writer, baud int, res *k5link.HandshakeResult) {
	_, _ = fmt.Fprintf(out, "[OK] baud=%d tx=%s rx=auto version=%q\n", baud, txName(res.TxPlain), res.Version)
	k5link.Debugf("reply decoded as %s after %d attempts", res.Mode, res.Attempts)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "[FAIL] %v\n", err)
		return exitFailure
	}
	return 0
}
