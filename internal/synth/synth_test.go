package synth_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/audio"
	"github.com/book-expert/voiceclone/internal/core"
	"github.com/book-expert/voiceclone/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 24000

var errEngineFailed = errors.New("engine failed")

// fakeEngine fails the first failures calls and then returns waveform.
type fakeEngine struct {
	failures int
	waveform *core.Waveform
	requests []core.GenerationRequest
	onCall   func(call int)
}

func (f *fakeEngine) Generate(_ context.Context, req core.GenerationRequest) (*core.Waveform, error) {
	f.requests = append(f.requests, req)

	if f.onCall != nil {
		f.onCall(len(f.requests))
	}

	if len(f.requests) <= f.failures {
		return nil, errEngineFailed
	}

	return f.waveform, nil
}

func (f *fakeEngine) HealthCheck(context.Context) error {
	return nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "synth-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func monoWaveform(samples int) *core.Waveform {
	data := make([]float32, samples)
	for i := range data {
		data[i] = float32(i%100) / 200
	}

	return &core.Waveform{Shape: []int{1, samples}, Samples: data, SampleRate: testRate}
}

// writeVoiceDir creates a voice sample directory with the given WAV files.
func writeVoiceDir(t *testing.T, names ...string) string {
	t.Helper()

	dir := t.TempDir()

	for _, name := range names {
		clip := &audio.Clip{Samples: []float64{0.1, -0.1, 0.2, -0.2, 0.1, -0.1}, SampleRate: 48000, Channels: 2}
		require.NoError(t, audio.WriteWAV(filepath.Join(dir, name), clip))
	}

	return dir
}

func TestParseQuality(t *testing.T) {
	t.Parallel()

	testCases := map[string]synth.Quality{
		"high":         synth.QualityHighQuality,
		"HIGH":         synth.QualityHighQuality,
		"medium":       synth.QualityStandard,
		"low":          synth.QualityUltraFast,
		"fast":         synth.QualityFast,
		" standard ":   synth.QualityStandard,
		"ultra_fast":   synth.QualityUltraFast,
		"high_quality": synth.QualityHighQuality,
	}

	for input, want := range testCases {
		got, err := synth.ParseQuality(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := synth.ParseQuality("ultra")
	require.ErrorIs(t, err, synth.ErrUnknownQuality)
}

func TestBuildLadder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"preset:high_quality",
		"explicit:high_quality(k=6,ar=256,diffusion=200)",
		"explicit:standard(k=4,ar=128,diffusion=100)",
		"explicit:fast(k=2,ar=64,diffusion=50)",
		"explicit:ultra_fast(k=1,ar=16,diffusion=30)",
		"engine_defaults",
	}, synth.BuildLadder(synth.QualityHighQuality).Names())

	assert.Equal(t, []string{
		"preset:ultra_fast",
		"explicit:ultra_fast(k=1,ar=16,diffusion=30)",
		"engine_defaults",
	}, synth.BuildLadder(synth.QualityUltraFast).Names())

	for _, name := range []string{"ultra_fast", "fast", "standard", "high_quality"} {
		quality, err := synth.ParseQuality(name)
		require.NoError(t, err)

		ladder := synth.BuildLadder(quality)
		seen := make(map[string]bool, len(ladder))

		for _, rung := range ladder {
			assert.False(t, seen[rung.Name], "duplicate rung %s", rung.Name)
			seen[rung.Name] = true
		}

		last := ladder[len(ladder)-1]
		assert.Equal(t, core.GenerationParams{}, last.Params, "last rung is engine defaults")
		assert.Equal(t, name, ladder[0].Params.Preset)
	}
}

func TestBuildLadder_ExplicitParams(t *testing.T) {
	t.Parallel()

	ladder := synth.BuildLadder(synth.QualityFast)
	require.Len(t, ladder, 4)

	fast := ladder[1].Params
	assert.Empty(t, fast.Preset)
	assert.Equal(t, 2, fast.K)
	assert.Equal(t, 64, fast.AutoregressiveSamples)
	assert.Equal(t, 50, fast.DiffusionIterations)
	require.NotNil(t, fast.CondFree)
	assert.True(t, *fast.CondFree)

	ultra := ladder[2].Params
	require.NotNil(t, ultra.CondFree)
	assert.False(t, *ultra.CondFree)
}

func TestRunLadder_FirstSuccessWins(t *testing.T) {
	t.Parallel()

	ladder := synth.BuildLadder(synth.QualityHighQuality)

	for failures := range len(ladder) {
		engine := &fakeEngine{failures: failures, waveform: monoWaveform(10)}

		outcome, err := synth.RunLadder(context.Background(), engine, core.GenerationRequest{Text: "hi"}, ladder, nil, newTestLogger(t))
		require.NoError(t, err)

		assert.Equal(t, failures+1, outcome.Attempts)
		assert.Len(t, engine.requests, failures+1)
		assert.Equal(t, ladder[failures].Name, outcome.Rung.Name)
		assert.Same(t, engine.waveform, outcome.Waveform)
	}
}

func TestRunLadder_Exhausted(t *testing.T) {
	t.Parallel()

	ladder := synth.BuildLadder(synth.QualityStandard)
	engine := &fakeEngine{failures: len(ladder)}

	outcome, err := synth.RunLadder(context.Background(), engine, core.GenerationRequest{Text: "hi"}, ladder, nil, newTestLogger(t))
	require.ErrorIs(t, err, synth.ErrLadderExhausted)
	require.ErrorIs(t, err, errEngineFailed)
	assert.Nil(t, outcome)
	assert.Len(t, engine.requests, len(ladder), "each rung is tried exactly once")
}

func TestRunLadder_Empty(t *testing.T) {
	t.Parallel()

	_, err := synth.RunLadder(context.Background(), &fakeEngine{}, core.GenerationRequest{}, nil, nil, newTestLogger(t))
	require.ErrorIs(t, err, synth.ErrLadderEmpty)
}

func TestRunLadder_SeedAndEmotionOnEveryRung(t *testing.T) {
	t.Parallel()

	seed := 7
	ladder := synth.BuildLadder(synth.QualityFast)
	engine := &fakeEngine{failures: len(ladder)}

	req := core.GenerationRequest{
		Text:   "hi",
		Params: core.GenerationParams{Seed: &seed, Emotion: "calm"},
	}

	_, err := synth.RunLadder(context.Background(), engine, req, ladder, nil, newTestLogger(t))
	require.ErrorIs(t, err, synth.ErrLadderExhausted)

	for i, sent := range engine.requests {
		require.NotNil(t, sent.Params.Seed, "rung %d", i)
		assert.Equal(t, 7, *sent.Params.Seed)
		assert.Equal(t, "calm", sent.Params.Emotion)
		assert.Equal(t, ladder[i].Params.Preset, sent.Params.Preset)
		assert.Equal(t, ladder[i].Params.K, sent.Params.K)
	}
}

func TestRunLadder_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	engine := &fakeEngine{failures: 100, onCall: func(int) { cancel() }}

	_, err := synth.RunLadder(ctx, engine, core.GenerationRequest{Text: "hi"}, synth.BuildLadder(synth.QualityHighQuality), nil, newTestLogger(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, synth.ErrLadderExhausted)
	assert.Len(t, engine.requests, 1)
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		shape    []int
		channels int
		frames   int
	}{
		{name: "rank 1", shape: []int{6}, channels: 1, frames: 6},
		{name: "rank 2 mono", shape: []int{1, 6}, channels: 1, frames: 6},
		{name: "rank 3 mono", shape: []int{1, 1, 6}, channels: 1, frames: 6},
		{name: "rank 2 stereo", shape: []int{2, 3}, channels: 2, frames: 3},
		{name: "rank 3 stereo", shape: []int{1, 2, 3}, channels: 2, frames: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			waveform := &core.Waveform{Shape: tc.shape, Samples: []float32{1, 2, 3, 4, 5, 6}}

			clip, err := synth.Flatten(waveform, testRate)
			require.NoError(t, err)
			assert.Equal(t, tc.channels, clip.Channels)
			assert.Equal(t, tc.frames, clip.Frames())
			assert.Equal(t, testRate, clip.SampleRate)
		})
	}
}

func TestFlatten_InterleavesChannels(t *testing.T) {
	t.Parallel()

	clip, err := synth.Flatten(&core.Waveform{
		Shape:      []int{2, 3},
		Samples:    []float32{1, 2, 3, -1, -2, -3},
		SampleRate: 16000,
	}, testRate)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, -1, 2, -2, 3, -3}, clip.Samples)
	assert.Equal(t, 16000, clip.SampleRate)
}

func TestFlatten_Unsupported(t *testing.T) {
	t.Parallel()

	testCases := map[string]*core.Waveform{
		"nil":             nil,
		"empty shape":     {Shape: []int{}, Samples: []float32{1}},
		"rank 4":          {Shape: []int{1, 1, 1, 2}, Samples: []float32{1, 2}},
		"count mismatch":  {Shape: []int{4}, Samples: []float32{1, 2}},
		"zero dimension":  {Shape: []int{0}, Samples: []float32{}},
		"batch of two":    {Shape: []int{2, 1, 2}, Samples: []float32{1, 2, 3, 4}},
		"too many chans":  {Shape: []int{9, 1}, Samples: make([]float32, 9)},
		"negative extent": {Shape: []int{-1, 2}, Samples: []float32{1, 2}},
	}

	for name, waveform := range testCases {
		_, err := synth.Flatten(waveform, testRate)
		require.ErrorIs(t, err, synth.ErrUnsupportedShape, name)
	}
}

func TestLoadReferences(t *testing.T) {
	t.Parallel()

	dir := writeVoiceDir(t, "segment_001.wav", "segment_000.wav")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.wav"), []byte("not a wav"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))

	references, err := synth.LoadReferences(dir, testRate, newTestLogger(t))
	require.NoError(t, err)
	require.Len(t, references, 2)

	assert.Equal(t, "segment_000.wav", references[0].Name)
	assert.Equal(t, "segment_001.wav", references[1].Name)

	for _, reference := range references {
		assert.Equal(t, testRate, reference.SampleRate)
		assert.NotEmpty(t, reference.Samples)
	}
}

func TestLoadReferences_Errors(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)

	_, err := synth.LoadReferences(filepath.Join(t.TempDir(), "missing"), testRate, log)
	require.ErrorIs(t, err, synth.ErrVoiceDirNotFound)

	_, err = synth.LoadReferences(t.TempDir(), testRate, log)
	require.ErrorIs(t, err, synth.ErrNoReferences)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.wav"), []byte("not a wav"), 0o600))

	_, err = synth.LoadReferences(dir, testRate, log)
	require.ErrorIs(t, err, synth.ErrNoReferences)
}

func newSynthesizer(t *testing.T, engine core.Engine, outputDir string) *synth.Synthesizer {
	t.Helper()

	synthesizer, err := synth.New(engine, synth.Settings{
		SampleRate:     testRate,
		OutputDir:      outputDir,
		MinOutputBytes: 1024,
	}, newTestLogger(t))
	require.NoError(t, err)

	return synthesizer
}

func TestNew_NilEngine(t *testing.T) {
	t.Parallel()

	_, err := synth.New(nil, synth.Settings{}, newTestLogger(t))
	require.ErrorIs(t, err, synth.ErrEngineNil)
}

func TestSynthesize_Success(t *testing.T) {
	t.Parallel()

	outputDir := filepath.Join(t.TempDir(), "nested", "output")
	engine := &fakeEngine{failures: 2, waveform: monoWaveform(testRate)}
	synthesizer := newSynthesizer(t, engine, outputDir)

	result, err := synthesizer.Synthesize(context.Background(), synth.Request{
		Text:       "Hello world",
		VoiceDir:   writeVoiceDir(t, "segment_000.wav"),
		OutputName: "speech_output.wav",
		Quality:    synth.QualityHighQuality,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outputDir, "speech_output.wav"), result.OutputPath)
	assert.FileExists(t, result.OutputPath)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "explicit:standard(k=4,ar=128,diffusion=100)", result.Rung.Name)
	assert.Equal(t, 1, result.References)
	assert.GreaterOrEqual(t, result.Bytes, int64(1024))
	assert.Equal(t, synth.StateDone, result.State)
	assert.Equal(t, []synth.State{
		synth.StateReady,
		synth.StateLoadingReferences,
		synth.StateGenerating,
		synth.StateRungFailed,
		synth.StateGenerating,
		synth.StateRungFailed,
		synth.StateGenerating,
		synth.StateSuccess,
		synth.StateValidating,
		synth.StateDone,
	}, result.Trail)

	clip, err := audio.ReadWAV(result.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, testRate, clip.Frames())
	assert.Equal(t, 1, clip.Channels)
}

func TestSynthesize_OutputPathWithDirectory(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{waveform: monoWaveform(testRate)}
	synthesizer := newSynthesizer(t, engine, t.TempDir())

	target := filepath.Join(t.TempDir(), "custom", "take.wav")

	result, err := synthesizer.Synthesize(context.Background(), synth.Request{
		Text:       "Hello world",
		VoiceDir:   writeVoiceDir(t, "a.wav"),
		OutputName: target,
	})
	require.NoError(t, err)
	assert.Equal(t, target, result.OutputPath)
	assert.Equal(t, "preset:high_quality", result.Rung.Name, "empty quality defaults to high_quality")
}

func TestSynthesize_TooSmall(t *testing.T) {
	t.Parallel()

	outputDir := t.TempDir()
	engine := &fakeEngine{waveform: monoWaveform(10)}
	synthesizer := newSynthesizer(t, engine, outputDir)

	result, err := synthesizer.Synthesize(context.Background(), synth.Request{
		Text:       "Hello world",
		VoiceDir:   writeVoiceDir(t, "a.wav"),
		OutputName: "tiny.wav",
		Quality:    synth.QualityFast,
	})
	require.ErrorIs(t, err, synth.ErrOutputTooSmall)
	assert.Equal(t, synth.StateTooSmall, result.State)
	assert.NoFileExists(t, filepath.Join(outputDir, "tiny.wav"))
	assert.Len(t, engine.requests, 1, "an undersized artifact is not retried")
}

func TestSynthesize_Exhausted(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{failures: 100}
	synthesizer := newSynthesizer(t, engine, t.TempDir())

	result, err := synthesizer.Synthesize(context.Background(), synth.Request{
		Text:       "Hello world",
		VoiceDir:   writeVoiceDir(t, "a.wav"),
		OutputName: "out.wav",
		Quality:    synth.QualityUltraFast,
	})
	require.ErrorIs(t, err, synth.ErrLadderExhausted)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, []synth.State{
		synth.StateReady,
		synth.StateLoadingReferences,
		synth.StateGenerating,
		synth.StateRungFailed,
		synth.StateGenerating,
		synth.StateRungFailed,
		synth.StateGenerating,
		synth.StateRungFailed,
		synth.StateExhausted,
	}, result.Trail)
}

func TestSynthesize_ReferencesEmpty(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{waveform: monoWaveform(testRate)}
	synthesizer := newSynthesizer(t, engine, t.TempDir())

	result, err := synthesizer.Synthesize(context.Background(), synth.Request{
		Text:       "Hello world",
		VoiceDir:   t.TempDir(),
		OutputName: "out.wav",
	})
	require.ErrorIs(t, err, synth.ErrNoReferences)
	assert.Equal(t, synth.StateReferencesEmpty, result.State)
	assert.Empty(t, engine.requests, "the engine is never called without references")
}

func TestSynthesize_InvalidRequest(t *testing.T) {
	t.Parallel()

	synthesizer := newSynthesizer(t, &fakeEngine{}, t.TempDir())

	_, err := synthesizer.Synthesize(context.Background(), synth.Request{OutputName: "out.wav"})
	require.ErrorIs(t, err, synth.ErrTextEmpty)

	_, err = synthesizer.Synthesize(context.Background(), synth.Request{Text: "hi"})
	require.ErrorIs(t, err, synth.ErrOutputNameEmpty)
}

func TestSynthesize_NormalizeText(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{waveform: monoWaveform(testRate)}

	synthesizer, err := synth.New(engine, synth.Settings{
		SampleRate:     testRate,
		OutputDir:      t.TempDir(),
		MinOutputBytes: 1024,
		NormalizeText:  true,
	}, newTestLogger(t))
	require.NoError(t, err)

	_, err = synthesizer.Synthesize(context.Background(), synth.Request{
		Text:       "Dr. Lee read 21 pages",
		VoiceDir:   writeVoiceDir(t, "a.wav"),
		OutputName: "out.wav",
	})
	require.NoError(t, err)
	require.Len(t, engine.requests, 1)
	assert.Equal(t, "Doctor Lee read twenty-one pages.", engine.requests[0].Text)

	_, err = synthesizer.Synthesize(context.Background(), synth.Request{Text: " \n ", OutputName: "out.wav"})
	require.ErrorIs(t, err, synth.ErrTextEmpty)
}

func TestRunLadder_ReportsFailuresAsTheyHappen(t *testing.T) {
	t.Parallel()

	var events []string

	ladder := synth.BuildLadder(synth.QualityFast)
	engine := &fakeEngine{
		failures: 2,
		waveform: monoWaveform(10),
		onCall:   func(call int) { events = append(events, fmt.Sprintf("generate %d", call)) },
	}

	onFailed := func(index int, rung synth.Rung, err error) {
		require.ErrorIs(t, err, errEngineFailed)
		events = append(events, fmt.Sprintf("failed %d %s", index, rung.Name))
	}

	outcome, err := synth.RunLadder(context.Background(), engine, core.GenerationRequest{Text: "hi"}, ladder, onFailed, newTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, []string{
		"generate 1",
		"failed 0 " + ladder[0].Name,
		"generate 2",
		"failed 1 " + ladder[1].Name,
		"generate 3",
	}, events)
}

func TestSynthesize_VoiceDirMissing(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{waveform: monoWaveform(testRate)}
	synthesizer := newSynthesizer(t, engine, t.TempDir())

	result, err := synthesizer.Synthesize(context.Background(), synth.Request{
		Text:       "Hello world",
		VoiceDir:   filepath.Join(t.TempDir(), "missing"),
		OutputName: "out.wav",
	})
	require.ErrorIs(t, err, synth.ErrVoiceDirNotFound)
	assert.Equal(t, synth.StateFailed, result.State)
	assert.Empty(t, engine.requests)
}
