package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/audio"
	"github.com/book-expert/voiceclone/internal/core"
	"github.com/book-expert/voiceclone/internal/fileutil"
	"github.com/book-expert/voiceclone/internal/textnorm"
)

const (
	textPreviewLen = 50
)

// State is a step of one synthesis invocation.
type State string

// States walked by Synthesize.
const (
	StateReady             State = "READY"
	StateLoadingReferences State = "LOADING_REFERENCES"
	StateReferencesEmpty   State = "REFERENCES_EMPTY"
	StateGenerating        State = "GENERATING"
	StateRungFailed        State = "RUNG_FAILED"
	StateSuccess           State = "SUCCESS"
	StateValidating        State = "VALIDATING"
	StateTooSmall          State = "TOO_SMALL"
	StateDone              State = "DONE"
	StateExhausted         State = "ALL_RUNGS_EXHAUSTED"
	StateFailed            State = "FAILED"
)

// Synthesis errors.
var (
	ErrTextEmpty       = errors.New("text cannot be empty")
	ErrOutputNameEmpty = errors.New("output name cannot be empty")
	ErrOutputTooSmall  = errors.New("generated audio file is below the minimum size")
	ErrEngineNil       = errors.New("engine cannot be nil")
)

// Settings are the per-process synthesizer parameters.
type Settings struct {
	SampleRate     int
	OutputDir      string
	MinOutputBytes int64
	// NormalizeText spells out numbers and abbreviations before generation.
	NormalizeText bool
}

// Request is one generation job.
type Request struct {
	Text       string
	VoiceDir   string
	OutputName string
	Quality    Quality
	Seed       *int
	Emotion    string
}

// Result describes a synthesis run. Synthesize returns it alongside any error
// so callers can report where the run stopped.
type Result struct {
	OutputPath string
	Rung       Rung
	Attempts   int
	Bytes      int64
	Duration   time.Duration
	References int
	State      State
	Trail      []State
}

// Synthesizer loads references, runs the ladder and verifies the written file.
type Synthesizer struct {
	engine     core.Engine
	settings   Settings
	normalizer *textnorm.Normalizer
	log        *logger.Logger
}

// New creates a Synthesizer.
func New(engine core.Engine, settings Settings, log *logger.Logger) (*Synthesizer, error) {
	if engine == nil {
		return nil, ErrEngineNil
	}

	synthesizer := &Synthesizer{engine: engine, settings: settings, log: log}
	if settings.NormalizeText {
		synthesizer.normalizer = textnorm.New()
	}

	return synthesizer, nil
}

// Synthesize generates speech for req and writes it as a WAV file.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*Result, error) {
	result := &Result{State: StateReady, Trail: []State{StateReady}}

	text := req.Text
	if s.normalizer != nil {
		text = s.normalizer.Normalize(text)
	}

	if text == "" {
		return s.fail(result, StateFailed, ErrTextEmpty)
	}

	if req.OutputName == "" {
		return s.fail(result, StateFailed, ErrOutputNameEmpty)
	}

	quality := req.Quality
	if quality == "" {
		quality = QualityHighQuality
	}

	s.log.Info("Text: %s", preview(text))
	s.transition(result, StateLoadingReferences)

	references, err := LoadReferences(req.VoiceDir, s.settings.SampleRate, s.log)
	if err != nil {
		if errors.Is(err, ErrNoReferences) {
			return s.fail(result, StateReferencesEmpty, err)
		}

		return s.fail(result, StateFailed, err)
	}

	result.References = len(references)
	s.transition(result, StateGenerating)

	ladder := BuildLadder(quality)
	generation := core.GenerationRequest{
		Text:       text,
		References: references,
		Params:     core.GenerationParams{Seed: req.Seed, Emotion: req.Emotion},
	}

	onFailed := func(index int, _ Rung, _ error) {
		result.Attempts = index + 1
		s.transition(result, StateRungFailed)

		if index < len(ladder)-1 {
			s.transition(result, StateGenerating)
		}
	}

	outcome, err := RunLadder(ctx, s.engine, generation, ladder, onFailed, s.log)
	if err != nil {
		if errors.Is(err, ErrLadderExhausted) {
			return s.fail(result, StateExhausted, err)
		}

		return s.fail(result, StateFailed, err)
	}

	result.Rung = outcome.Rung
	result.Attempts = outcome.Attempts
	s.transition(result, StateSuccess)

	return s.persist(result, outcome.Waveform, req.OutputName)
}

func (s *Synthesizer) persist(result *Result, waveform *core.Waveform, outputName string) (*Result, error) {
	clip, err := Flatten(waveform, s.settings.SampleRate)
	if err != nil {
		return s.fail(result, StateFailed, err)
	}

	s.log.Info("Generated audio shape %v flattened to %d frame(s) x %d channel(s)", waveform.Shape, clip.Frames(), clip.Channels)

	outputPath := s.resolveOutputPath(outputName)

	dirErr := fileutil.EnsureDir(filepath.Dir(outputPath))
	if dirErr != nil {
		return s.fail(result, StateFailed, dirErr)
	}

	writeErr := audio.WriteWAV(outputPath, clip)
	if writeErr != nil {
		return s.fail(result, StateFailed, writeErr)
	}

	s.transition(result, StateValidating)

	info, err := os.Stat(outputPath)
	if err != nil {
		return s.fail(result, StateFailed, fmt.Errorf("output file missing after write: %w", err))
	}

	result.OutputPath = outputPath
	result.Bytes = info.Size()
	result.Duration = clip.Duration()

	if info.Size() < s.settings.MinOutputBytes {
		_ = os.Remove(outputPath)

		return s.fail(result, StateTooSmall, fmt.Errorf("%w: %s is %s, need at least %s",
			ErrOutputTooSmall, outputPath, fileutil.FormatBytes(info.Size()), fileutil.FormatBytes(s.settings.MinOutputBytes)))
	}

	s.transition(result, StateDone)
	s.log.Info("Generated speech saved to %s (%s, %s, rung %s after %d attempt(s))",
		outputPath, fileutil.FormatBytes(result.Bytes), fileutil.FormatDuration(result.Duration), result.Rung.Name, result.Attempts)

	return result, nil
}

// resolveOutputPath places bare file names under the output directory.
func (s *Synthesizer) resolveOutputPath(name string) string {
	if filepath.Base(name) != name || s.settings.OutputDir == "" {
		return name
	}

	return filepath.Join(s.settings.OutputDir, name)
}

func (s *Synthesizer) transition(result *Result, next State) {
	s.log.Info("Synthesis state %s -> %s", result.State, next)
	result.State = next
	result.Trail = append(result.Trail, next)
}

func (s *Synthesizer) fail(result *Result, terminal State, err error) (*Result, error) {
	s.transition(result, terminal)
	s.log.Error("Synthesis failed in state %s: %v", terminal, err)

	return result, err
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= textPreviewLen {
		return text
	}

	return string(runes[:textPreviewLen]) + "..."
}
