package web

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Entry is one answered question.
type Entry struct {
	ID       string        `json:"id"`
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	At       time.Time     `json:"at"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// History keeps the most recent entries in memory only.
type History struct {
	mu      sync.Mutex
	size    int
	entries []Entry
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 10
	}
	return &History{size: size}
}

// Add records an exchange, evicting the oldest entry when full.
func (h *History) Add(question, answer string, elapsed time.Duration) Entry {
	e := Entry{ID: uuid.NewString(), Question: question, Answer: answer, At: time.Now(), Elapsed: elapsed}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.size; over > 0 {
		h.entries = append([]Entry(nil), h.entries[over:]...)
	}
	return e
}

// Recent returns up to n of the newest entries, oldest first.
func (h *History) Recent(n int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	return append([]Entry(nil), h.entries[len(h.entries)-n:]...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// Summary renders the newest n entries as text, questions cut to 100
// characters and answers to 200.
func (h *History) Summary(n int) string {
	recent := h.Recent(n)
	if len(recent) == 0 {
		return "No conversation history yet."
	}
	var b strings.Builder
	b.WriteString("*****Recent Conversations:*****\n\n")
	for i, e := range recent {
		fmt.Fprintf(&b, "**%d. [%s] (%.2fs)**\n", i+1, e.At.Format("15:04:05"), e.Elapsed.Seconds())
		fmt.Fprintf(&b, "Q: %s...\n", cut(e.Question, 100))
		fmt.Fprintf(&b, "A: %s...\n\n", cut(e.Answer, 200))
	}
	return b.String()
}

func cut(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
