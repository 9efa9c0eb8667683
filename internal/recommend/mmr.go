// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"math"
	"strings"
)

// MMR implements Maximal Marginal Relevance reranking over genre overlap.
//
// The MMR formula is:
//
//	MMR = argmax[lambda * score(i) - (1-lambda) * max(sim(i, s)) for s in selected]
//
// Where:
//   - lambda: balance parameter (1.0 = pure relevance, 0.0 = pure diversity)
//   - score(i): final score of candidate i
//   - sim(i, s): genre Jaccard similarity between i and a selected item
//
// Reference:
// Carbonell, J., & Goldstein, J. (1998). "The Use of MMR, Diversity-Based
// Reranking for Reordering Documents and Producing Summaries." SIGIR 1998.
type MMR struct {
	lambda float64
}

// NewMMR creates a reranker. lambda is clamped to [0, 1].
func NewMMR(lambda float64) *MMR {
	if math.IsNaN(lambda) || lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	return &MMR{lambda: lambda}
}

// Select returns the indexes of up to k items of ranked, in selection order.
// ranked must be sorted by descending score; with lambda 1 the result is
// simply its first k positions. Ties go to the earlier item.
func (m *MMR) Select(ranked []Candidate, k int) []int {
	if k > len(ranked) {
		k = len(ranked)
	}
	if k <= 0 {
		return nil
	}

	out := make([]int, 0, k)
	if m.lambda >= 1.0 {
		for i := 0; i < k; i++ {
			out = append(out, i)
		}
		return out
	}

	genres := make([]map[string]struct{}, len(ranked))
	for i := range ranked {
		set := make(map[string]struct{}, len(ranked[i].Item.Genres))
		for _, g := range uniqueGenres(ranked[i].Item.Genres) {
			set[g] = struct{}{}
		}
		genres[i] = set
	}

	// maxSim[i] is item i's highest similarity to anything selected so far.
	maxSim := make([]float64, len(ranked))
	taken := make([]bool, len(ranked))

	for len(out) < k {
		bestIdx := -1
		bestMMR := math.Inf(-1)
		for i := range ranked {
			if taken[i] {
				continue
			}
			score := m.lambda*ranked[i].FinalScore - (1-m.lambda)*maxSim[i]
			if score > bestMMR {
				bestMMR = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}

		taken[bestIdx] = true
		out = append(out, bestIdx)
		for i := range ranked {
			if taken[i] {
				continue
			}
			if sim := jaccard(genres[i], genres[bestIdx]); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}
	return out
}

// jaccard computes Jaccard similarity between genre sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for g := range a {
		if _, ok := b[g]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// genreKey is the case-folded genre used for comparisons.
func genreKey(g string) string { return strings.ToLower(strings.TrimSpace(g)) }
