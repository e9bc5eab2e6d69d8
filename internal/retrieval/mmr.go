package retrieval

import (
	"math"

	"genie/internal/domain"
	"genie/internal/embedding"
)

// SelectMMR picks up to k candidates by maximal marginal relevance. The first
// pick is the candidate most similar to the query; each following pick
// maximizes lambda*sim(query) - (1-lambda)*max sim(already selected).
// Lambda 1 ranks by relevance alone, 0 by diversity alone. The result is in
// selection order.
func SelectMMR(query []float32, candidates []domain.Candidate, k int, lambda float64) []domain.Candidate {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	lambda = math.Max(0, math.Min(1, lambda))

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = embedding.Cosine(query, c.Embedding)
	}
	// maxSim[i] is the highest similarity of candidate i to any selected one.
	maxSim := make([]float64, len(candidates))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}
	used := make([]bool, len(candidates))
	selected := make([]domain.Candidate, 0, k)

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			score := relevance[i]
			if len(selected) > 0 {
				score = lambda*relevance[i] - (1-lambda)*maxSim[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		selected = append(selected, candidates[best])
		for i := range candidates {
			if used[i] {
				continue
			}
			if s := embedding.Cosine(candidates[best].Embedding, candidates[i].Embedding); s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}
	return selected
}
