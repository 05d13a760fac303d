package audio_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/book-expert/voiceclone/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineClip(seconds float64, rate, channels int, amplitude float64) *audio.Clip {
	frames := int(seconds * float64(rate))
	samples := make([]float64, frames*channels)

	for frame := range frames {
		value := amplitude * math.Sin(2*math.Pi*440*float64(frame)/float64(rate))
		for channel := range channels {
			samples[frame*channels+channel] = value
		}
	}

	return &audio.Clip{Samples: samples, SampleRate: rate, Channels: channels}
}

func TestClip_FramesAndDuration(t *testing.T) {
	t.Parallel()

	clip := sineClip(2.5, 8000, 2, 0.5)

	assert.Equal(t, 20000, clip.Frames())
	assert.Equal(t, 2500*time.Millisecond, clip.Duration())
}

func TestClip_Slice(t *testing.T) {
	t.Parallel()

	clip := &audio.Clip{Samples: []float64{0, 1, 2, 3, 4, 5, 6, 7}, SampleRate: 4, Channels: 2}

	part := clip.Slice(1, 2)
	assert.Equal(t, []float64{2, 3, 4, 5}, part.Samples)

	part.Samples[0] = 99
	assert.InDelta(t, 2.0, clip.Samples[2], 0, "slice must not alias the source")
}

func TestClip_NormalizePeak(t *testing.T) {
	t.Parallel()

	clip := sineClip(1, 8000, 1, 0.25)

	gain := clip.NormalizePeak(0.1)

	assert.InDelta(t, audio.DBToGain(-0.1), clip.Peak(), 1e-9)
	assert.InDelta(t, audio.GainToDB(audio.DBToGain(-0.1)/0.25), gain, 0.01)
}

func TestClip_NormalizePeak_Silence(t *testing.T) {
	t.Parallel()

	clip := &audio.Clip{Samples: make([]float64, 100), SampleRate: 8000, Channels: 1}

	gain := clip.NormalizePeak(0.1)

	assert.Zero(t, gain)
	assert.Zero(t, clip.Peak())
}

func TestClip_Mono(t *testing.T) {
	t.Parallel()

	clip := &audio.Clip{Samples: []float64{1, 0, 0.5, 0.5}, SampleRate: 10, Channels: 2}

	mono := clip.Mono()

	assert.Equal(t, 1, mono.Channels)
	assert.Equal(t, []float64{0.5, 0.5}, mono.Samples)
}

func TestClip_Resample(t *testing.T) {
	t.Parallel()

	clip := sineClip(1, 48000, 1, 0.5)

	resampled := clip.Resample(24000)

	assert.Equal(t, 24000, resampled.SampleRate)
	assert.Equal(t, 24000, resampled.Frames())
	assert.InDelta(t, clip.Samples[2], resampled.Samples[1], 1e-9)

	same := clip.Resample(48000)
	assert.Equal(t, clip.Samples, same.Samples)
}

func TestDurationToFrames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 480000, audio.DurationToFrames(20*time.Second, 24000))
	assert.Equal(t, 5*time.Second, audio.FramesToDuration(120000, 24000))
	assert.Zero(t, audio.FramesToDuration(100, 0))
}

func TestWAV_WriteRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	clip := sineClip(0.5, 24000, 2, 0.8)

	require.NoError(t, audio.WriteWAV(path, clip))

	decoded, err := audio.ReadWAV(path)
	require.NoError(t, err)

	assert.Equal(t, 24000, decoded.SampleRate)
	assert.Equal(t, 2, decoded.Channels)
	assert.Equal(t, clip.Frames(), decoded.Frames())
	assert.InDelta(t, clip.Peak(), decoded.Peak(), 1e-4)
}

func TestReadWAV_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff data"), 0o600))

	_, err := audio.ReadWAV(path)
	require.ErrorIs(t, err, audio.ErrDecode)
}

func TestWriteWAV_InvalidLayout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.wav")
	clip := &audio.Clip{Samples: []float64{0}, SampleRate: 0, Channels: 1}

	require.ErrorIs(t, audio.WriteWAV(path, clip), audio.ErrInvalidFormat)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := audio.Load(context.Background(), filepath.Join(dir, "missing.mp3"))
	require.ErrorIs(t, err, audio.ErrDecode)

	textPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(textPath, []byte("hello"), 0o600))

	_, err = audio.Load(context.Background(), textPath)
	require.ErrorIs(t, err, audio.ErrDecode)
}

func TestLoad_WAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.WAV")
	require.NoError(t, audio.WriteWAV(path, sineClip(1, 16000, 1, 0.3)))

	clip, err := audio.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 16000, clip.Frames())
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	testCases := map[string]audio.Format{
		"talk.mp3":       audio.FormatMP3,
		"a/b/sample.WAV": audio.FormatWAV,
		"x.flac":         audio.FormatFLAC,
	}

	for path, want := range testCases {
		got, ok := audio.DetectFormat(path)
		assert.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}

	_, ok := audio.DetectFormat("readme.md")
	assert.False(t, ok)
}

func TestPCM16(t *testing.T) {
	t.Parallel()

	out := audio.PCM16([]float32{0, 1, -1, 2})

	assert.Equal(t, []byte{0x00, 0x00, 0xff, 0x7f, 0x01, 0x80, 0xff, 0x7f}, out)
}

// writeFakeFFmpeg writes an executable standing in for ffmpeg. Callers must
// not run in parallel so no other test forks while the file is open.
func writeFakeFFmpeg(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}

	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o700)) // #nosec G306 -- test executable

	return path
}

func TestTranscode_StopsWhenContextEnds(t *testing.T) {
	ffmpegPath := writeFakeFFmpeg(t, "exec sleep 30\n")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := audio.TranscodeWith(ctx, ffmpegPath, "input.mp3", filepath.Join(t.TempDir(), "out.wav"))

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestTranscode_Failure(t *testing.T) {
	ffmpegPath := writeFakeFFmpeg(t, "echo 'input.mp3: Invalid data found when processing input' >&2\nexit 1\n")

	err := audio.TranscodeWith(context.Background(), ffmpegPath, "input.mp3", filepath.Join(t.TempDir(), "out.wav"))
	require.ErrorIs(t, err, audio.ErrDecode)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestTranscode_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := audio.Transcode(ctx, "input.mp3", filepath.Join(t.TempDir(), "out.wav"))
	require.ErrorIs(t, err, context.Canceled)
}
