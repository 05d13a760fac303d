package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	ffmpegBinary       = "ffmpeg"
	transcodeWaitDelay = 2 * time.Second
)

// Load decodes any audio file the segmenter accepts. PCM WAV is read directly;
// everything else, including non-PCM WAV, goes through ffmpeg first.
func Load(ctx context.Context, path string) (*Clip, error) {
	_, statErr := os.Stat(path)
	if statErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, statErr)
	}

	format, ok := DetectFormat(path)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file extension %q", ErrDecode, filepath.Ext(path))
	}

	if format == FormatWAV {
		clip, err := ReadWAV(path)
		if err == nil || !errors.Is(err, ErrUnsupportedEncoding) {
			return clip, err
		}
	}

	return transcodeAndRead(ctx, path)
}

func transcodeAndRead(ctx context.Context, path string) (*Clip, error) {
	scratchDir, err := os.MkdirTemp("", "voiceclone-transcode-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create transcode directory: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	wavPath := filepath.Join(scratchDir, "decoded.wav")

	transcodeErr := Transcode(ctx, path, wavPath)
	if transcodeErr != nil {
		return nil, transcodeErr
	}

	return ReadWAV(wavPath)
}

// Transcode converts src to a 16-bit PCM WAV file at dst using ffmpeg. The
// ffmpeg process is killed when ctx is done.
func Transcode(ctx context.Context, src, dst string) error {
	return transcodeWith(ctx, ffmpegBinary, src, dst)
}

func transcodeWith(ctx context.Context, ffmpegPath, src, dst string) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	var stderr bytes.Buffer

	cmd := ffmpeg.OutputContext(ctx, []*ffmpeg.Stream{ffmpeg.Input(src)}, dst, ffmpeg.KwArgs{
		"acodec": "pcm_s16le",
		"f":      "wav",
	}).
		SetFfmpegPath(ffmpegPath).
		OverWriteOutput().
		WithErrorOutput(&stderr).
		Silent(true).
		Compile()
	cmd.WaitDelay = transcodeWaitDelay

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("transcode of %s interrupted: %w", src, ctx.Err())
		}

		return fmt.Errorf("%w: ffmpeg could not decode %s: %w: %s", ErrDecode, src, err, lastLine(stderr.String()))
	}

	return nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")

	return lines[len(lines)-1]
}
