// Package hashing provides an offline embedder based on feature hashing.
// Vectors are stable across processes, so a persisted index stays valid
// without a corpus preparation step.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"genie/internal/embedding"
)

// DefaultDimension is used when no dimension is configured.
const DefaultDimension = 512

// Embedder hashes word unigrams and bigrams into a fixed number of buckets.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder producing vectors of the given size.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed bag-of-words embedding for text. Text without any
// usable token yields a zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := e.tokenize(text)
	tf := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			tf[tokens[i-1]+" "+tok]++
		}
	}
	vec := make([]float32, e.dimension)
	for feature, count := range tf {
		idx, sign := e.bucket(feature)
		// Sublinear term frequency
		w := 1 + math.Log(float64(count))
		if strings.Contains(feature, " ") {
			w *= 0.5
		}
		vec[idx] += float32(sign * w)
	}
	embedding.Normalize(vec)
	return vec, nil
}

func (e *Embedder) bucket(feature string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1
	}
	return int(sum % uint64(e.dimension)), sign
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"restaurant", "review", "what", "which", "who", "how", "do", "does", "did", "i", "you", "we", "they", "my", "your", "our",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
