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
	"testing"
	"time"

	"github.com/ZaparooProject/go-k5link/internal/chunk"
	ktesting "github.com/ZaparooProject/go-k5link/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firmware(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i*31 + 7)
	}
	return img
}

func bootTransport(cfg ktesting.BootloaderConfig) (*ktesting.VirtualBootloader, *StreamTransport) {
	boot := ktesting.NewVirtualBootloader(cfg)
	st := NewStreamTransport(boot, "bootloader")
	_ = st.SetReadTimeout(5 * time.Millisecond)
	return boot, st
}

// fastUploader shortens every deadline so failure paths finish quickly.
func fastUploader(opts ...UploadOption) *Uploader {
	base := []UploadOption{
		WithChunkSize(16),
		WithUploadTimeouts(200*time.Millisecond, 200*time.Millisecond, 100*time.Millisecond, 100*time.Millisecond),
		WithNakStatusTimeout(20 * time.Millisecond),
	}
	return NewUploader(append(base, opts...)...)
}

func TestUpload_Success(t *testing.T) {
	t.Parallel()

	boot, st := bootTransport(ktesting.DefaultBootloaderConfig())
	img := firmware(40)

	var states []TransferState
	res, err := fastUploader(WithTransferStateHook(func(s TransferState) { states = append(states, s) })).
		Upload(context.Background(), st, img)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "OK", res.FinalLine)
	assert.NoError(t, res.Warning)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 40, res.Bytes)
	assert.Zero(t, res.Retries)
	assert.True(t, res.ReadySeen)
	assert.True(t, res.StartSeen)
	assert.False(t, IsAmbiguous(res))

	assert.Equal(t, img, boot.Image())
	assert.Equal(t, []uint32{0, 1, 2}, boot.Written())
	assert.Equal(t, ktesting.BootDone, boot.State())
	assert.Equal(t, chunk.Header{Magic: chunk.Magic, Total: 40, Chunk: 16}, boot.Header())

	assert.Equal(t, []TransferState{
		TransferAwaitReady, TransferSendGo, TransferSendHeader, TransferAwaitStart,
		TransferChunks, TransferAwaitFinal, TransferDone,
	}, states)
}

func TestUpload_ValidationBeforeIO(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		imageSize int
		chunkSize int
	}{
		{name: "chunk zero", imageSize: 1024, chunkSize: 0},
		{name: "chunk above maximum", imageSize: 1024, chunkSize: 2049},
		{name: "image below minimum", imageSize: 15, chunkSize: 1024},
		{name: "image above maximum", imageSize: chunk.MaxFirmwareSize + 1, chunkSize: 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := NewMockTransport()
			res, err := NewUploader(WithChunkSize(tt.chunkSize)).
				Upload(context.Background(), m, make([]byte, tt.imageSize))

			require.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, res)
			assert.Zero(t, m.WriteCount(), "nothing may be written")
		})
	}
}

func TestUpload_NakRetriedThenAccepted(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.NakSeq = map[uint32]int{1: 4}
	boot, st := bootTransport(cfg)
	img := firmware(48)

	res, err := fastUploader().Upload(context.Background(), st, img)

	require.NoError(t, err, "an ACK on the last allowed attempt succeeds")
	assert.Equal(t, 4, res.Retries)
	assert.Equal(t, 5, boot.Sends(1))
	assert.Equal(t, img, boot.Image())
}

func TestUpload_RetryExhausted(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.NakSeq = map[uint32]int{1: 5}
	cfg.NakCode = chunk.NakWrite
	boot, st := bootTransport(cfg)

	var states []TransferState
	res, err := fastUploader(WithTransferStateHook(func(s TransferState) { states = append(states, s) })).
		Upload(context.Background(), st, firmware(48))

	require.ErrorIs(t, err, ErrRetryExhausted)
	var rex *RetryExhaustedError
	require.ErrorAs(t, err, &rex)
	assert.Equal(t, uint32(1), rex.Seq)
	assert.Equal(t, 16, rex.Offset, "offset stays at the failed chunk")
	assert.Equal(t, 5, rex.Attempts)

	var nak *NakError
	require.ErrorAs(t, err, &nak)
	assert.Equal(t, chunk.NakWrite, nak.Code)
	assert.True(t, nak.HasCode)

	assert.True(t, HasTrace(err))
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 16, res.Bytes)
	assert.Equal(t, 5, boot.Sends(1))
	assert.Zero(t, boot.Sends(2), "later chunks are never sent")
	assert.Equal(t, TransferAborted, states[len(states)-1])
}

func TestUpload_TimeoutsExhaust(t *testing.T) {
	t.Parallel()

	m := NewMockTransport()
	m.QueueRead([]byte("READY\n"))
	m.OnWrite(func(m *MockTransport, _ []byte) {
		if m.WriteCount() == 2 { // header; chunks are never answered
			m.QueueRead([]byte("START\n"))
		}
	})

	res, err := fastUploader(WithUploadTimeouts(0, 0, 20*time.Millisecond, 0)).
		Upload(context.Background(), m, firmware(48))

	require.ErrorIs(t, err, ErrRetryExhausted)
	require.ErrorIs(t, err, ErrTimeout)
	var rex *RetryExhaustedError
	require.ErrorAs(t, err, &rex)
	assert.Equal(t, uint32(0), rex.Seq)
	assert.Equal(t, 0, rex.Offset)
	assert.Equal(t, 5, rex.Attempts)

	require.NotNil(t, res)
	assert.Zero(t, res.Bytes)
	assert.Equal(t, 2+5, m.WriteCount(), "GO, header and five sends of chunk 0")
}

func TestUpload_CustomMaxAttempts(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.NakSeq = map[uint32]int{0: 10}
	boot, st := bootTransport(cfg)

	_, err := fastUploader(WithMaxAttempts(2)).Upload(context.Background(), st, firmware(16))

	require.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, 2, boot.Sends(0))
}

func TestUpload_BareNakWaitsForStatus(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.NakSeq = map[uint32]int{0: 1}
	cfg.NakWithoutCode = true
	_, st := bootTransport(cfg)

	var notes []string
	res, err := fastUploader(WithUploadObserver(func(e TraceEntry) {
		notes = append(notes, e.Note)
	})).Upload(context.Background(), st, firmware(16))

	require.NoError(t, err)
	assert.Equal(t, 1, res.Retries)
	assert.NotContains(t, notes, "TIMEOUT: chunk 0", "a missing status byte is not a chunk timeout")
}

func TestUpload_LostAckHitsDuplicatePath(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.LoseAck = map[uint32]int{0: 1}
	boot, st := bootTransport(cfg)
	img := firmware(32)

	res, err := fastUploader().Upload(context.Background(), st, img)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 2, boot.Sends(0))
	assert.Equal(t, img, boot.Image(), "the duplicate is not written twice")
}

func TestUpload_GarbageResponseRetried(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.GarbageAck = map[uint32]int{0: 2}
	boot, st := bootTransport(cfg)

	res, err := fastUploader().Upload(context.Background(), st, firmware(16))

	require.NoError(t, err)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 3, boot.Sends(0))
}

func TestUpload_DeviceReportsError(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.FinalLine = "ERR: verify"
	_, st := bootTransport(cfg)

	res, err := fastUploader().Upload(context.Background(), st, firmware(16))

	require.ErrorIs(t, err, ErrDeviceRejected)
	assert.Contains(t, err.Error(), "ERR: verify")
	require.NotNil(t, res)
	assert.Equal(t, OutcomeDeviceError, res.Outcome)
	assert.Equal(t, "ERR: verify", res.FinalLine)
}

func TestUpload_AmbiguousOutcome(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.FinalLine = ""
	boot, st := bootTransport(cfg)

	res, err := fastUploader().Upload(context.Background(), st, firmware(16))

	require.NoError(t, err, "an ambiguous outcome is a warning, not a failure")
	assert.Equal(t, OutcomeAmbiguous, res.Outcome)
	require.ErrorIs(t, res.Warning, ErrAmbiguousOutcome)
	assert.True(t, IsAmbiguous(res))
	assert.Empty(t, res.FinalLine)
	assert.Equal(t, ktesting.BootDone, boot.State())
}

func TestUpload_MissingBanners(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.ReadyLines = 0
	cfg.SkipStart = true
	boot, st := bootTransport(cfg)

	res, err := fastUploader(WithUploadTimeouts(20*time.Millisecond, 20*time.Millisecond, 0, 0)).
		Upload(context.Background(), st, firmware(16))

	require.NoError(t, err)
	assert.False(t, res.ReadySeen)
	assert.False(t, res.StartSeen)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 16, boot.Received())
}

func TestUpload_ProgressCallback(t *testing.T) {
	t.Parallel()

	_, st := bootTransport(ktesting.DefaultBootloaderConfig())

	var reports []Progress
	_, err := fastUploader(WithProgressCallback(func(p Progress) { reports = append(reports, p) })).
		Upload(context.Background(), st, firmware(40))
	require.NoError(t, err)

	require.Len(t, reports, 3)
	percents := make([]int, len(reports))
	for i, p := range reports {
		percents[i] = p.Percent
		assert.Equal(t, uint32(i), p.Seq)
		assert.Equal(t, 3, p.Chunks)
		assert.Equal(t, 40, p.Total)
		assert.Equal(t, TransferChunks, p.State)
	}
	assert.Equal(t, []int{40, 80, 100}, percents)
	assert.Equal(t, 40, reports[2].Offset)
}

func TestUpload_OverJitteryLink(t *testing.T) {
	t.Parallel()

	cfg := ktesting.DefaultBootloaderConfig()
	cfg.ReadyLines = 3
	boot := ktesting.NewVirtualBootloader(cfg)
	jitter := ktesting.NewBufferedJitteryConnection(boot, ktesting.JitterConfig{
		MaxLatencyMs:      1,
		FragmentReads:     true,
		FragmentMinBytes:  1,
		USBBoundaryStress: true,
		Seed:              4242,
	})
	st := NewStreamTransport(jitter, "jittery")
	_ = st.SetReadTimeout(5 * time.Millisecond)

	img := firmware(5000)
	res, err := NewUploader(
		WithChunkSize(chunk.MaxChunk),
		WithUploadTimeouts(time.Second, time.Second, time.Second, time.Second),
	).Upload(context.Background(), st, img)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, img, boot.Image())
}

func TestUpload_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMockTransport()
	res, err := fastUploader().Upload(ctx, m, firmware(16))

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, m.WriteCount())
}

func TestUploadOptions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultUploadConfig(), NewUploader().Config())

	cfg := NewUploader(
		WithMaxAttempts(0),
		WithUploadTimeouts(time.Second, 0, 2*time.Second, 0),
		WithNakStatusTimeout(-1),
	).Config()
	assert.Equal(t, DefaultChunkAttempts, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.ReadyTimeout)
	assert.Equal(t, DefaultStartTimeout, cfg.StartTimeout)
	assert.Equal(t, 2*time.Second, cfg.ChunkTimeout)
	assert.Equal(t, DefaultFinalTimeout, cfg.FinalTimeout)
	assert.Equal(t, DefaultNakStatusTimeout, cfg.NakStatusTimeout)
}

func TestTransferState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "await start", TransferAwaitStart.String())
	assert.Equal(t, "unknown", TransferState(42).String())
	assert.Equal(t, "ambiguous", OutcomeAmbiguous.String())
}
