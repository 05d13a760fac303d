package synth

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/core"
)

const engineDefaultsRung = "engine_defaults"

// Ladder errors.
var (
	ErrLadderExhausted = errors.New("all generation rungs failed")
	ErrLadderEmpty     = errors.New("ladder has no rungs")
)

// Rung is one configuration tried against the engine.
type Rung struct {
	Name   string
	Params core.GenerationParams
}

// Ladder is an ordered list of rungs, most expensive first.
type Ladder []Rung

// BuildLadder returns the fallback ladder for q: the named preset, then the
// explicit parameters of q and every cheaper tier, then the engine defaults.
func BuildLadder(q Quality) Ladder {
	cheaper := q.cheaperOrEqual()
	ladder := make(Ladder, 0, len(cheaper)+2)

	ladder = append(ladder, Rung{
		Name:   "preset:" + string(q),
		Params: core.GenerationParams{Preset: string(q)},
	})

	for _, tier := range cheaper {
		params := tier.Params()
		condFree := params.CondFree

		ladder = append(ladder, Rung{
			Name: fmt.Sprintf("explicit:%s(k=%d,ar=%d,diffusion=%d)",
				tier, params.K, params.AutoregressiveSamples, params.DiffusionIterations),
			Params: core.GenerationParams{
				K:                     params.K,
				AutoregressiveSamples: params.AutoregressiveSamples,
				DiffusionIterations:   params.DiffusionIterations,
				CondFree:              &condFree,
			},
		})
	}

	return append(ladder, Rung{Name: engineDefaultsRung})
}

// Names returns the rung names in order.
func (l Ladder) Names() []string {
	names := make([]string, len(l))
	for i, rung := range l {
		names[i] = rung.Name
	}

	return names
}

// Outcome is the result of a successful ladder run.
type Outcome struct {
	Waveform *core.Waveform
	Rung     Rung
	Attempts int
}

// RungFailedFunc is called after rung index of a ladder fails and before the
// next rung is tried.
type RungFailedFunc func(index int, rung Rung, err error)

// RunLadder submits req once per rung, top-down, and returns the first
// success. Seed and emotion from req are applied to every rung. A cancelled
// context stops the run without trying further rungs. onFailed may be nil.
func RunLadder(
	ctx context.Context,
	engine core.Engine,
	req core.GenerationRequest,
	ladder Ladder,
	onFailed RungFailedFunc,
	log *logger.Logger,
) (*Outcome, error) {
	if len(ladder) == 0 {
		return nil, ErrLadderEmpty
	}

	rungErrs := make([]error, 0, len(ladder))

	for i, rung := range ladder {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, fmt.Errorf("generation interrupted before rung %s: %w", rung.Name, ctxErr)
		}

		attempt := req
		attempt.Params = rung.Params
		attempt.Params.Seed = req.Params.Seed
		attempt.Params.Emotion = req.Params.Emotion

		log.Info("Generating with rung %d/%d: %s", i+1, len(ladder), rung.Name)

		waveform, err := engine.Generate(ctx, attempt)
		if err == nil {
			return &Outcome{Waveform: waveform, Rung: rung, Attempts: i + 1}, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("generation interrupted during rung %s: %w", rung.Name, ctx.Err())
		}

		log.Warn("Rung %s failed: %v", rung.Name, err)
		rungErrs = append(rungErrs, fmt.Errorf("rung %s: %w", rung.Name, err))

		if onFailed != nil {
			onFailed(i, rung, err)
		}
	}

	return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrLadderExhausted, len(ladder), errors.Join(rungErrs...))
}
