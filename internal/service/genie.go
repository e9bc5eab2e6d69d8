// Package service answers restaurant questions: it retrieves reviews, packs
// them into a bounded context and asks the generation chain.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"genie/internal/domain"
)

// Fixed replies.
const (
	PromptForInput = "Kindly ask me your query!"
	Farewell       = "Farewell, mortal. \nMay you feast on perfect pizza dishes."
	NoReviews      = "No relevant reviews found."
	ErrorPrefix    = "Sorry, I encountered an error: "
)

const (
	DefaultContextBudget     = 1500
	DefaultGenerationTimeout = 120 * time.Second

	ellipsis      = "..."
	separator     = "\n\n"
	minTruncation = 100
)

var farewells = map[string]struct{}{"bye": {}, "exit": {}, "quit": {}}

// IsFarewell reports whether question is one of the exit keywords.
func IsFarewell(question string) bool {
	_, ok := farewells[strings.ToLower(strings.TrimSpace(question))]
	return ok
}

// Config configures the orchestrator.
type Config struct {
	// ContextBudget is the maximum context length in characters.
	ContextBudget     int
	GenerationTimeout time.Duration
}

// Trace records how one question was handled.
type Trace struct {
	Retrieval     time.Duration
	Context       time.Duration
	Generation    time.Duration
	Total         time.Duration
	Documents     int
	ContextLength int
	Err           error
}

// Genie is the question-answering orchestrator. It holds no per-question
// state and may be shared between goroutines.
type Genie struct {
	cfg    Config
	logger arbor.ILogger
}

func New(cfg Config, logger arbor.ILogger) *Genie {
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = DefaultContextBudget
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	return &Genie{cfg: cfg, logger: logger}
}

// Handle answers question. It always returns displayable text: failures
// are reported as an apology carrying the error message.
func (g *Genie) Handle(ctx context.Context, chain domain.Chain, retriever domain.Retriever, question string) string {
	answer, _ := g.HandleTraced(ctx, chain, retriever, question)
	return answer
}

// HandleTraced is Handle plus per-phase timings.
func (g *Genie) HandleTraced(ctx context.Context, chain domain.Chain, retriever domain.Retriever, question string) (answer string, tr Trace) {
	q := strings.TrimSpace(question)
	if q == "" {
		return PromptForInput, tr
	}
	if IsFarewell(q) {
		return Farewell, tr
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			tr.Err = fmt.Errorf("%v", r)
			answer = g.fail(q, tr)
		}
		tr.Total = time.Since(start)
	}()

	units, err := retriever.Retrieve(ctx, q)
	tr.Retrieval = time.Since(start)
	if err != nil {
		tr.Err = err
		return g.fail(q, tr), tr
	}
	tr.Documents = len(units)

	mark := time.Now()
	reviews := AssembleContext(units, g.cfg.ContextBudget)
	tr.Context = time.Since(mark)
	tr.ContextLength = utf8.RuneCountInString(reviews)

	mark = time.Now()
	genCtx, cancel := context.WithTimeout(ctx, g.cfg.GenerationTimeout)
	defer cancel()
	answer, err = chain.Invoke(genCtx, map[string]string{"reviews": reviews, "question": q})
	tr.Generation = time.Since(mark)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: no answer within %s", domain.ErrGeneration, g.cfg.GenerationTimeout)
		}
		tr.Err = err
		return g.fail(q, tr), tr
	}

	g.logger.Info().
		Dur("retrieval", tr.Retrieval).
		Dur("context", tr.Context).
		Dur("generation", tr.Generation).
		Dur("total", time.Since(start)).
		Int("documents", tr.Documents).
		Int("context_length", tr.ContextLength).
		Msg("Answered question")
	return answer, tr
}

func (g *Genie) fail(question string, tr Trace) string {
	g.logger.Error().Err(tr.Err).Str("question", question).Dur("retrieval", tr.Retrieval).Msg("Failed to answer question")
	return ErrorPrefix + tr.Err.Error()
}

// AssembleContext joins units as "[Rating: R] content" blocks separated by
// blank lines, keeping the total within budget characters. When the next
// block does not fit but more than 100 characters of budget remain, a
// truncated slice of it ending in "..." is included. The result is never
// longer than budget+3. No units yield NoReviews.
func AssembleContext(units []domain.TextUnit, budget int) string {
	if len(units) == 0 {
		return NoReviews
	}
	var b strings.Builder
	used := 0
	for i, u := range units {
		sep := 0
		if i > 0 {
			sep = len(separator)
		}
		entry := "[Rating: " + u.Metadata.Rating.String() + "] " + u.Content
		n := utf8.RuneCountInString(entry)
		if used+sep+n <= budget {
			if sep > 0 {
				b.WriteString(separator)
			}
			b.WriteString(entry)
			used += sep + n
			continue
		}
		if remaining := budget - used - sep; remaining > minTruncation {
			if sep > 0 {
				b.WriteString(separator)
			}
			b.WriteString(string([]rune(entry)[:remaining]))
			b.WriteString(ellipsis)
		}
		break
	}
	if b.Len() == 0 {
		return NoReviews
	}
	return b.String()
}
