// Package core defines the types and interfaces shared by the segmenter, the
// synthesizer and the worker service.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Reference is one decoded voice sample handed to the engine.
// Samples are mono and already at SampleRate.
type Reference struct {
	Name       string
	Path       string
	Samples    []float32
	SampleRate int
}

// GenerationParams is the parameter bundle of one ladder rung plus the
// pass-through seed and emotion. Zero values mean "engine default".
type GenerationParams struct {
	Preset                string
	K                     int
	AutoregressiveSamples int
	DiffusionIterations   int
	CondFree              *bool
	Seed                  *int
	Emotion               string
}

// GenerationRequest is what the synthesizer submits to an engine.
type GenerationRequest struct {
	Text       string
	References []Reference
	Params     GenerationParams
}

// Waveform is the raw engine output. Shape has rank 1 to 3 and its product
// equals len(Samples).
type Waveform struct {
	Shape      []int
	Samples    []float32
	SampleRate int
}

// Engine is the external text-to-speech collaborator.
type Engine interface {
	Generate(ctx context.Context, req GenerationRequest) (*Waveform, error)
	HealthCheck(ctx context.Context) error
}
