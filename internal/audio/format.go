package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Constants for the PCM layout written by this package.
const (
	DefaultBitDepth = 16
	MaxSampleRate   = 192000
	MaxChannels     = 8
)

// Constants for supported bit depths.
const (
	bitDepth8  = 8
	bitDepth16 = 16
	bitDepth24 = 24
	bitDepth32 = 32
)

// Constants for error message formats.
const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtBitDepthValues  = "%w: bit depth must be 8, 16, 24, or 32, got %d"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d, got %d"
)

// ErrInvalidFormat is returned when a PCM layout is out of bounds.
var ErrInvalidFormat = errors.New("invalid pcm format")

// Format represents supported container formats.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
	FormatM4A  Format = "m4a"
	FormatAAC  Format = "aac"
)

// DetectFormat maps a file extension to a Format. The second result is false
// for extensions that are not audio.
func DetectFormat(path string) (Format, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	switch Format(ext) {
	case FormatWAV, FormatMP3, FormatFLAC, FormatOGG, FormatM4A, FormatAAC:
		return Format(ext), true
	default:
		return "", false
	}
}

// PCMFormat describes the sample layout of a clip on disk.
type PCMFormat struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// Validate checks that the layout is within reasonable bounds.
func (f PCMFormat) Validate() error {
	sampleRateErr := validateSampleRate(f.SampleRate)
	if sampleRateErr != nil {
		return sampleRateErr
	}

	bitDepthErr := validateBitDepth(f.BitDepth)
	if bitDepthErr != nil {
		return bitDepthErr
	}

	return validateChannels(f.Channels)
}

func validateSampleRate(sampleRate int) error {
	if sampleRate <= 0 || sampleRate > MaxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, MaxSampleRate, sampleRate)
	}

	return nil
}

func validateBitDepth(bitDepth int) error {
	switch bitDepth {
	case bitDepth8, bitDepth16, bitDepth24, bitDepth32:
		return nil
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidFormat, bitDepth)
	}
}

func validateChannels(channels int) error {
	if channels <= 0 || channels > MaxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidFormat, MaxChannels, channels)
	}

	return nil
}
