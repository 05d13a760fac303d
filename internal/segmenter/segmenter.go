package segmenter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/audio"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
	minIndexDigits  = 3
	stagingPattern  = ".staging-*"
	segmentExt      = ".wav"
)

// Log formats.
const (
	logFmtLoaded   = "Loaded %s: %s of audio (%d Hz, %d channel(s))"
	logFmtPlanned  = "Cutting %d segment(s) of up to %s (minimum %s)"
	logFmtSaved    = "Saved: %s (%.2f seconds, %+.2f dB)"
	logFmtRemoved  = "Removed stale segment %s"
	logFmtFinished = "Finished: %d voice samples saved to %s"
)

// Segmentation errors.
var (
	ErrInputPathEmpty  = errors.New("input path cannot be empty")
	ErrOutputDirEmpty  = errors.New("output directory cannot be empty")
	ErrNoSegments      = errors.New("recording is shorter than the minimum segment length")
	ErrFilePrefixEmpty = errors.New("file prefix cannot be empty")
)

// Options controls segmentation.
type Options struct {
	Window     time.Duration
	MinLength  time.Duration
	HeadroomDB float64
	// SampleRate resamples segments when non-zero; zero keeps the source rate.
	SampleRate int
	FilePrefix string
}

// Segmenter turns one recording into a directory of reference samples.
type Segmenter struct {
	options Options
	log     *logger.Logger
}

// New creates a Segmenter.
func New(options Options, log *logger.Logger) (*Segmenter, error) {
	if options.Window <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrWindowNotPositive, options.Window)
	}

	if options.MinLength < 0 || options.MinLength > options.Window {
		return nil, fmt.Errorf("%w: got %s for window %s", ErrMinLengthRange, options.MinLength, options.Window)
	}

	if options.FilePrefix == "" {
		return nil, ErrFilePrefixEmpty
	}

	return &Segmenter{options: options, log: log}, nil
}

// Run decodes inputPath, cuts it and writes the segments plus a manifest to
// outputDir. Either every segment is written or none is.
func (s *Segmenter) Run(ctx context.Context, inputPath, outputDir string) (*Manifest, error) {
	if inputPath == "" {
		return nil, ErrInputPathEmpty
	}

	if outputDir == "" {
		return nil, ErrOutputDirEmpty
	}

	recording, err := audio.Load(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load recording: %w", err)
	}

	s.log.Info(logFmtLoaded, inputPath, recording.Duration(), recording.SampleRate, recording.Channels)

	if s.options.SampleRate > 0 && s.options.SampleRate != recording.SampleRate {
		recording = recording.Resample(s.options.SampleRate)
	}

	spans, err := Plan(
		recording.Frames(),
		audio.DurationToFrames(s.options.Window, recording.SampleRate),
		audio.DurationToFrames(s.options.MinLength, recording.SampleRate),
	)
	if err != nil {
		return nil, err
	}

	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrNoSegments, recording.Duration(), s.options.MinLength)
	}

	s.log.Info(logFmtPlanned, len(spans), s.options.Window, s.options.MinLength)

	dirErr := os.MkdirAll(outputDir, dirPermissions)
	if dirErr != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", dirErr)
	}

	stagingDir, err := os.MkdirTemp(outputDir, stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	manifest, err := s.stage(ctx, recording, spans, inputPath, stagingDir)
	if err != nil {
		return nil, err
	}

	promoteErr := s.promote(manifest, stagingDir, outputDir)
	if promoteErr != nil {
		return nil, promoteErr
	}

	s.log.Info(logFmtFinished, len(manifest.Segments), outputDir)

	return manifest, nil
}

// SegmentFileName returns the zero-padded file name of segment index out of total.
func SegmentFileName(prefix string, index, total int) string {
	digits := max(minIndexDigits, len(strconv.Itoa(max(total-1, 0))))

	return fmt.Sprintf("%s%0*d%s", prefix, digits, index, segmentExt)
}

func (s *Segmenter) stage(
	ctx context.Context,
	recording *audio.Clip,
	spans []Span,
	inputPath, stagingDir string,
) (*Manifest, error) {
	manifest := &Manifest{
		Source:      inputPath,
		WindowMS:    s.options.Window.Milliseconds(),
		MinLengthMS: s.options.MinLength.Milliseconds(),
		SampleRate:  recording.SampleRate,
		Channels:    recording.Channels,
		Segments:    make([]SegmentRecord, 0, len(spans)),
	}

	for index, span := range spans {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, fmt.Errorf("segmentation interrupted: %w", ctxErr)
		}

		segment := recording.Slice(span.Start, span.Frames)
		gain := segment.NormalizePeak(s.options.HeadroomDB)

		name := SegmentFileName(s.options.FilePrefix, index, len(spans))

		writeErr := audio.WriteWAV(filepath.Join(stagingDir, name), segment)
		if writeErr != nil {
			return nil, fmt.Errorf("failed to write segment %d: %w", index, writeErr)
		}

		manifest.Segments = append(manifest.Segments, SegmentRecord{
			File:       name,
			StartMS:    audio.FramesToDuration(span.Start, recording.SampleRate).Milliseconds(),
			DurationMS: segment.Duration().Milliseconds(),
			GainDB:     gain,
		})

		s.log.Info(logFmtSaved, name, segment.Duration().Seconds(), gain)
	}

	manifestErr := WriteManifest(filepath.Join(stagingDir, ManifestFileName), manifest)
	if manifestErr != nil {
		return nil, manifestErr
	}

	return manifest, nil
}

// promote replaces the previous sample set in outputDir with the staged one.
func (s *Segmenter) promote(manifest *Manifest, stagingDir, outputDir string) error {
	staleErr := s.removeStale(outputDir)
	if staleErr != nil {
		return staleErr
	}

	names := make([]string, 0, len(manifest.Segments)+1)
	for _, record := range manifest.Segments {
		names = append(names, record.File)
	}

	names = append(names, ManifestFileName)

	promoted := make([]string, 0, len(names))

	for _, name := range names {
		target := filepath.Join(outputDir, name)

		renameErr := os.Rename(filepath.Join(stagingDir, name), target)
		if renameErr != nil {
			for _, done := range promoted {
				_ = os.Remove(done)
			}

			return fmt.Errorf("failed to promote %s: %w", name, renameErr)
		}

		promoted = append(promoted, target)
	}

	return nil
}

func (s *Segmenter) removeStale(outputDir string) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("failed to list output directory: %w", err)
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(s.options.FilePrefix) + `\d+\` + segmentExt + `$`)

	for _, entry := range entries {
		if entry.IsDir() || (!pattern.MatchString(entry.Name()) && entry.Name() != ManifestFileName) {
			continue
		}

		path := filepath.Join(outputDir, entry.Name())

		removeErr := os.Remove(path)
		if removeErr != nil {
			return fmt.Errorf("failed to remove stale segment %s: %w", path, removeErr)
		}

		s.log.Info(logFmtRemoved, entry.Name())
	}

	return nil
}
