// Package segmenter cuts a long recording into fixed-length, peak-normalized
// voice reference samples.
package segmenter

import (
	"errors"
	"fmt"
)

// Plan errors.
var (
	ErrWindowNotPositive = errors.New("window must be positive")
	ErrMinLengthRange    = errors.New("minimum length must be between 0 and the window")
	ErrNegativeLength    = errors.New("recording length cannot be negative")
)

// Span is a contiguous run of frames within a recording.
type Span struct {
	Start  int
	Frames int
}

// End returns the frame just past the span.
func (s Span) End() int {
	return s.Start + s.Frames
}

// Plan splits totalFrames into windows of windowFrames starting at multiples
// of the window. The trailing partial window is kept only when it holds at
// least minFrames frames.
func Plan(totalFrames, windowFrames, minFrames int) ([]Span, error) {
	if windowFrames <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrWindowNotPositive, windowFrames)
	}

	if minFrames < 0 || minFrames > windowFrames {
		return nil, fmt.Errorf("%w: got %d for window %d", ErrMinLengthRange, minFrames, windowFrames)
	}

	if totalFrames < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeLength, totalFrames)
	}

	spans := make([]Span, 0, totalFrames/windowFrames+1)

	for start := 0; start < totalFrames; start += windowFrames {
		frames := min(windowFrames, totalFrames-start)
		if frames < minFrames {
			continue
		}

		spans = append(spans, Span{Start: start, Frames: frames})
	}

	return spans, nil
}
