// Package summarizer condenses the review corpus for the inspect command.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"genie/internal/domain"
)

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered).
type FrequencySummarizer struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

// TermCount is a word and how many reviews use it.
type TermCount struct {
	Term  string
	Count int
}

// Digest is an overview of a set of reviews.
type Digest struct {
	Reviews    int
	Restaurant int
	// AverageRating covers numeric ratings only; Rated is how many there were.
	AverageRating float64
	Rated         int
	TopTerms      []TermCount
	Highlights    string
}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		tokenPattern:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentencePattern: regexp.MustCompile(`[^.!?\n]+[.!?]*`),
		stopwords:       defaultStopwords(),
	}
}

// Digest summarizes units: counts, average rating, the most used terms and
// the maxSentences highest-ranked review sentences.
func (s *FrequencySummarizer) Digest(units []domain.TextUnit, maxSentences, topTerms int) Digest {
	d := Digest{Reviews: len(units)}
	titles := make(map[string]struct{})
	reviews := make([]string, 0, len(units))
	docFreq := make(map[string]int)
	sum := 0.0
	for _, u := range units {
		titles[u.Metadata.Title] = struct{}{}
		if r, ok := u.Metadata.Rating.Float(); ok {
			sum += r
			d.Rated++
		}
		review := reviewText(u.Content)
		reviews = append(reviews, review)
		seen := make(map[string]struct{})
		for _, tok := range s.tokens(review) {
			if _, stop := s.stopwords[tok]; stop {
				continue
			}
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			docFreq[tok]++
		}
	}
	d.Restaurant = len(titles)
	if d.Rated > 0 {
		d.AverageRating = sum / float64(d.Rated)
	}
	d.TopTerms = topN(docFreq, topTerms)
	d.Highlights = s.Summarize(strings.Join(reviews, "\n"), maxSentences)
	return d
}

// Summarize returns a short summary by ranking sentences using token frequency.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	var sentences []string
	for _, sent := range s.sentencePattern.FindAllString(text, -1) {
		if sent = strings.TrimSpace(sent); sent != "" {
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	// Compute word frequencies
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			if _, ok := s.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	// Normalize frequencies
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	maxSentences = min(maxSentences, len(scores))
	// Keep original order among selected
	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " ")
}

func (s *FrequencySummarizer) tokens(text string) []string {
	return s.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// reviewText strips the "Restaurant: ...\nReview: " header from unit content.
func reviewText(content string) string {
	if _, after, ok := strings.Cut(content, "\nReview: "); ok {
		return after
	}
	return content
}

func topN(counts map[string]int, n int) []TermCount {
	out := make([]TermCount, 0, len(counts))
	for term, c := range counts {
		out = append(out, TermCount{Term: term, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"i", "we", "my", "our", "they", "their", "had", "have", "has", "not", "all", "here", "there",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
