// Package synth runs text-to-speech generation against an external engine
// through a descending ladder of quality rungs and persists the result.
package synth

import (
	"errors"
	"fmt"
	"strings"
)

// Quality is a named cost/quality tier understood by the engine as a preset.
type Quality string

// Tiers from cheapest to most expensive.
const (
	QualityUltraFast   Quality = "ultra_fast"
	QualityFast        Quality = "fast"
	QualityStandard    Quality = "standard"
	QualityHighQuality Quality = "high_quality"
)

// ErrUnknownQuality is returned by ParseQuality for unrecognized names.
var ErrUnknownQuality = errors.New("unknown quality tier")

// tiers lists every tier in descending cost order.
var tiers = []Quality{QualityHighQuality, QualityStandard, QualityFast, QualityUltraFast}

// aliases maps the short selector names to canonical tiers.
var aliases = map[string]Quality{
	"high":   QualityHighQuality,
	"medium": QualityStandard,
	"low":    QualityUltraFast,
}

// TierParams is the explicit parameter bundle of a tier.
type TierParams struct {
	K                     int
	AutoregressiveSamples int
	DiffusionIterations   int
	CondFree              bool
}

var tierParams = map[Quality]TierParams{
	QualityHighQuality: {K: 6, AutoregressiveSamples: 256, DiffusionIterations: 200, CondFree: true},
	QualityStandard:    {K: 4, AutoregressiveSamples: 128, DiffusionIterations: 100, CondFree: true},
	QualityFast:        {K: 2, AutoregressiveSamples: 64, DiffusionIterations: 50, CondFree: true},
	QualityUltraFast:   {K: 1, AutoregressiveSamples: 16, DiffusionIterations: 30, CondFree: false},
}

// ParseQuality resolves a tier name or alias, case-insensitively.
func ParseQuality(name string) (Quality, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))

	if alias, ok := aliases[normalized]; ok {
		return alias, nil
	}

	for _, tier := range tiers {
		if string(tier) == normalized {
			return tier, nil
		}
	}

	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownQuality, name, strings.Join(QualityNames(), ", "))
}

// QualityNames lists the accepted selector values, canonical names first.
func QualityNames() []string {
	names := make([]string, 0, len(tiers)+len(aliases))
	for _, tier := range tiers {
		names = append(names, string(tier))
	}

	return append(names, "high", "medium", "low")
}

// Params returns the explicit parameter bundle of the tier.
func (q Quality) Params() TierParams {
	return tierParams[q]
}

// cheaperOrEqual returns q followed by every cheaper tier.
func (q Quality) cheaperOrEqual() []Quality {
	for i, tier := range tiers {
		if tier == q {
			return tiers[i:]
		}
	}

	return nil
}
