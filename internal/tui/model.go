package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"genie/internal/service"
)

// Answerer is the TUI-facing subset of the question-answering service.
type Answerer interface {
	Answer(ctx context.Context, question string) string
}

// exchange is one question with its answer.
type exchange struct {
	question string
	answer   string
	elapsed  time.Duration
}

// answerMsg carries a finished answer back into the update loop.
type answerMsg struct {
	exchange
}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	genie    Answerer
	title    string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []exchange
	status   string
	cursor   int
	brewing  bool
	ready    bool
}

// New creates a new TUI model instance. title is shown in the header.
func New(genie Answerer, title string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about restaurants and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	vp := viewport.New(0, 0)
	return Model{
		genie:    genie,
		title:    title,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		status:   "Ask me anything about the restaurants. Type bye to leave.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around answer and question boxes
		_, ah := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-ah)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answerMsg:
		m.brewing = false
		m.history = append(m.history, msg.exchange)
		m.cursor = len(m.history) - 1
		m.status = fmt.Sprintf("Answered in %s", msg.elapsed.Round(time.Millisecond))
		m.viewport.SetContent(m.renderCurrent())
		m.viewport.GotoTop()
		return m, nil
	case spinner.TickMsg:
		if !m.brewing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if m.brewing {
				return m, nil
			}
			q := strings.TrimSpace(m.input.Value())
			if service.IsFarewell(q) {
				m.status = service.Farewell
				return m, tea.Quit
			}
			if q == "" {
				m.status = service.PromptForInput
				return m, nil
			}
			m.input.SetValue("")
			m.brewing = true
			m.status = "Brewing up an answer..."
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		case "down":
			if len(m.history) > 0 {
				m.cursor = (m.cursor + 1) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if len(m.history) > 0 {
				m.cursor = (m.cursor - 1 + len(m.history)) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	genie := m.genie
	return func() tea.Msg {
		start := time.Now()
		answer := genie.Answer(context.Background(), question)
		return answerMsg{exchange{question: question, answer: answer, elapsed: time.Since(start)}}
	}
}

// View renders the TUI layout and the selected answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.brewing {
		status = m.spinner.View() + " " + status
	}
	status = statusStyle.Render(status)
	answer := answerBoxStyle.Render(m.viewport.View())
	return header + "\n" + answer + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.history) == 0 {
		return "No answers yet."
	}
	ex := m.history[m.cursor]
	title := fmt.Sprintf("Answer %d/%d  (%s)", m.cursor+1, len(m.history), ex.elapsed.Round(time.Millisecond))
	question := questionStyle.Render("Q: " + ex.question)
	return title + "\n" + question + "\n\n" + highlightBestSentence(ex.answer, ex.question)
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
)

// highlightBestSentence emphasizes the answer sentence sharing the most
// words with the question.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.TrimSpace(text)
	}
	bestIdx := 0
	bestScore := 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx && bestScore > 0 {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
