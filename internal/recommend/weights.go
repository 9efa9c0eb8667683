// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"math"

	"github.com/tomtom215/marquee/internal/config"
)

// Weights blend the three candidate score components.
type Weights struct {
	Similarity float64 `json:"similarity"`
	Novelty    float64 `json:"novelty"`
	Rating     float64 `json:"rating"`
}

// WeightsFrom converts configured weights.
func WeightsFrom(w config.WeightsConfig) Weights {
	return Weights{Similarity: w.Similarity, Novelty: w.Novelty, Rating: w.Rating}
}

// Normalize returns a copy with weights normalized to sum to 1.0. Negative
// and non-finite weights count as zero.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w Weights) Normalize() Weights {
	sim, nov, rat := clean(w.Similarity), clean(w.Novelty), clean(w.Rating)
	sum := sim + nov + rat

	if sum == 0 {
		const equalWeight = 1.0 / 3.0
		return Weights{Similarity: equalWeight, Novelty: equalWeight, Rating: equalWeight}
	}

	return Weights{
		Similarity: sim / sum,
		Novelty:    nov / sum,
		Rating:     rat / sum,
	}
}

func clean(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
