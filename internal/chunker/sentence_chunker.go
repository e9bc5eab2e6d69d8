package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SentenceChunker splits long text into sentence windows of bounded size,
// repeating trailing sentences of each window at the start of the next.
type SentenceChunker struct {
	maxChars     int
	overlapChars int
	splitter     *regexp.Regexp
}

func NewSentenceChunker(maxChars, overlapChars int) *SentenceChunker {
	if maxChars <= 0 {
		maxChars = 500
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}
	return &SentenceChunker{
		maxChars:     maxChars,
		overlapChars: overlapChars,
		splitter:     regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Split returns text unchanged (as a single piece) when it fits in one window.
// A single sentence longer than the window becomes a window of its own.
func (c *SentenceChunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.maxChars {
		return []string{text}
	}
	sentences := c.sentences(text)
	var pieces []string
	i := 0
	for i < len(sentences) {
		end := i
		size := 0
		for end < len(sentences) {
			n := utf8.RuneCountInString(sentences[end])
			if end > i {
				n++ // joining space
			}
			if end > i && size+n > c.maxChars {
				break
			}
			size += n
			end++
		}
		pieces = append(pieces, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		// Step back over trailing sentences that fit in the overlap budget.
		next := end
		overlap := 0
		for next-1 > i {
			n := utf8.RuneCountInString(sentences[next-1]) + 1
			if overlap+n > c.overlapChars {
				break
			}
			overlap += n
			next--
		}
		i = next
	}
	return pieces
}

func (c *SentenceChunker) sentences(text string) []string {
	spans := c.splitter.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(spans)+1)
	end := 0
	for _, span := range spans {
		if t := strings.TrimSpace(text[end:span[1]]); t != "" {
			out = append(out, t)
		}
		end = span[1]
	}
	// Trailing text without terminal punctuation.
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
