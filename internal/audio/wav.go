package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM    = 1
	filePermissions = 0o600
)

// Decode errors.
var (
	ErrDecode              = errors.New("audio decode failed")
	ErrUnsupportedEncoding = errors.New("unsupported wav encoding")
)

// ReadWAV decodes a PCM WAV file from disk.
func ReadWAV(path string) (*Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrDecode, path, err)
	}
	defer file.Close()

	clip, err := DecodeWAV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return clip, nil
}

// DecodeWAV decodes PCM WAV data from r.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav stream", ErrDecode)
	}

	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read pcm buffer: %w", ErrDecode, err)
	}

	layout := PCMFormat{
		SampleRate: buf.Format.SampleRate,
		BitDepth:   int(decoder.BitDepth),
		Channels:   buf.Format.NumChannels,
	}

	validateErr := layout.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, validateErr)
	}

	return &Clip{
		Samples:    intsToFloats(buf.Data, layout.BitDepth),
		SampleRate: layout.SampleRate,
		Channels:   layout.Channels,
	}, nil
}

// WriteWAV writes the clip as a 16-bit PCM WAV file, replacing any existing file.
func WriteWAV(path string, clip *Clip) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to create wav file %s: %w", path, err)
	}

	encodeErr := EncodeWAV(file, clip)
	closeErr := file.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode wav file %s: %w", path, encodeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close wav file %s: %w", path, closeErr)
	}

	return nil
}

// EncodeWAV writes the clip to w as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, clip *Clip) error {
	layout := PCMFormat{SampleRate: clip.SampleRate, BitDepth: DefaultBitDepth, Channels: clip.Channels}

	validateErr := layout.Validate()
	if validateErr != nil {
		return validateErr
	}

	encoder := wav.NewEncoder(w, clip.SampleRate, DefaultBitDepth, clip.Channels, wavFormatPCM)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: clip.Channels, SampleRate: clip.SampleRate},
		Data:           floatsToInts(clip.Samples),
		SourceBitDepth: DefaultBitDepth,
	}

	writeErr := encoder.Write(buf)
	if writeErr != nil {
		return fmt.Errorf("failed to write samples: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize wav header: %w", closeErr)
	}

	return nil
}

// PCM16 returns samples as little-endian signed 16-bit bytes.
func PCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)

	for i, sample := range samples {
		value := uint16(floatToInt16(float64(sample)))
		out[i*2] = byte(value)
		out[i*2+1] = byte(value >> 8)
	}

	return out
}

func intsToFloats(data []int, bitDepth int) []float64 {
	out := make([]float64, len(data))

	// 8-bit wav is unsigned with a 128 midpoint.
	if bitDepth == bitDepth8 {
		for i, value := range data {
			out[i] = float64(value-128) / 128
		}

		return out
	}

	scale := math.Pow(2, float64(bitDepth-1))
	for i, value := range data {
		out[i] = float64(value) / scale
	}

	return out
}

func floatsToInts(samples []float64) []int {
	out := make([]int, len(samples))
	for i, sample := range samples {
		out[i] = int(floatToInt16(sample))
	}

	return out
}

func floatToInt16(sample float64) int16 {
	clamped := math.Max(-1.0, math.Min(1.0, sample))

	return int16(math.Round(clamped * math.MaxInt16))
}
