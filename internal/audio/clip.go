// Package audio provides PCM clips, WAV encoding and decoding, and the small
// amount of signal processing the segmenter and synthesizer need.
package audio

import (
	"math"
	"time"
)

// Clip is decoded PCM audio. Samples are interleaved by channel and scaled to
// [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}

	return len(c.Samples) / c.Channels
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	return FramesToDuration(c.Frames(), c.SampleRate)
}

// Slice copies frames [start, start+frames) into a new clip.
func (c *Clip) Slice(start, frames int) *Clip {
	from := start * c.Channels
	to := (start + frames) * c.Channels

	samples := make([]float64, to-from)
	copy(samples, c.Samples[from:to])

	return &Clip{Samples: samples, SampleRate: c.SampleRate, Channels: c.Channels}
}

// Peak returns the largest absolute sample value.
func (c *Clip) Peak() float64 {
	peak := 0.0

	for _, sample := range c.Samples {
		abs := math.Abs(sample)
		if abs > peak {
			peak = abs
		}
	}

	return peak
}

// NormalizePeak scales the clip in place so its peak sits headroomDB below
// full scale and returns the applied gain in dB. Silent clips are left as is.
func (c *Clip) NormalizePeak(headroomDB float64) float64 {
	peak := c.Peak()
	if peak == 0 {
		return 0
	}

	target := DBToGain(-headroomDB)
	gain := target / peak

	for i := range c.Samples {
		c.Samples[i] *= gain
	}

	return GainToDB(gain)
}

// Mono returns a copy of the clip with all channels averaged.
func (c *Clip) Mono() *Clip {
	if c.Channels == 1 {
		samples := make([]float64, len(c.Samples))
		copy(samples, c.Samples)

		return &Clip{Samples: samples, SampleRate: c.SampleRate, Channels: 1}
	}

	frames := c.Frames()
	samples := make([]float64, frames)

	for frame := range frames {
		sum := 0.0
		for channel := range c.Channels {
			sum += c.Samples[frame*c.Channels+channel]
		}

		samples[frame] = sum / float64(c.Channels)
	}

	return &Clip{Samples: samples, SampleRate: c.SampleRate, Channels: 1}
}

// Resample converts the clip to rate using linear interpolation.
func (c *Clip) Resample(rate int) *Clip {
	if rate == c.SampleRate || c.Frames() == 0 {
		samples := make([]float64, len(c.Samples))
		copy(samples, c.Samples)

		return &Clip{Samples: samples, SampleRate: rate, Channels: c.Channels}
	}

	inFrames := c.Frames()
	outFrames := int(math.Round(float64(inFrames) * float64(rate) / float64(c.SampleRate)))
	step := float64(c.SampleRate) / float64(rate)
	samples := make([]float64, outFrames*c.Channels)

	for frame := range outFrames {
		position := float64(frame) * step
		left := int(position)
		right := min(left+1, inFrames-1)
		left = min(left, inFrames-1)
		fraction := position - float64(left)

		for channel := range c.Channels {
			a := c.Samples[left*c.Channels+channel]
			b := c.Samples[right*c.Channels+channel]
			samples[frame*c.Channels+channel] = a + (b-a)*fraction
		}
	}

	return &Clip{Samples: samples, SampleRate: rate, Channels: c.Channels}
}

// Float32 returns the samples narrowed to float32.
func (c *Clip) Float32() []float32 {
	out := make([]float32, len(c.Samples))
	for i, sample := range c.Samples {
		out[i] = float32(sample)
	}

	return out
}

// DurationToFrames converts a duration to a whole number of frames at rate.
func DurationToFrames(d time.Duration, rate int) int {
	return int(math.Round(d.Seconds() * float64(rate)))
}

// FramesToDuration converts a frame count at rate to a duration.
func FramesToDuration(frames, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}

	return time.Duration(float64(frames) / float64(rate) * float64(time.Second))
}

// DBToGain converts decibels to a linear amplitude ratio.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// GainToDB converts a linear amplitude ratio to decibels.
func GainToDB(gain float64) float64 {
	return 20 * math.Log10(gain)
}
