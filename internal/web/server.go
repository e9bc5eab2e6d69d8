// Package web serves the chat page, a JSON API and a websocket endpoint over
// the question-answering service.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"golang.org/x/time/rate"

	"genie/internal/service"
)

//go:embed templates/index.html
var templateFS embed.FS

// Examples are the sample questions shown on the page.
var Examples = []string{
	"What are the highest rated restaurants?",
	"Show me restaurants with poor service",
	"Which places have the best pizza?",
	"Tell me about Italian restaurants",
	"What do people complain about most?",
}

// Asker answers one question and reports how it went.
type Asker interface {
	Ask(ctx context.Context, question string) (string, service.Trace)
}

// Config configures the server.
type Config struct {
	Addr           string
	Title          string
	Model          string
	EmbeddingModel string
	HistorySize    int
	HistoryView    int
	RatePerSec     float64
	Burst          int
}

// AskRequest is the body of POST /api/ask and of websocket messages.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is returned by POST /api/ask and sent over the websocket.
type AskResponse struct {
	Type        string  `json:"type,omitempty"`
	Answer      string  `json:"answer"`
	AnswerHTML  string  `json:"answer_html"`
	Seconds     float64 `json:"seconds"`
	Documents   int     `json:"documents"`
	Model       string  `json:"model"`
	Embedding   string  `json:"embedding_model"`
	Performance string  `json:"performance"`
	History     string  `json:"history"`
}

type pageData struct {
	Title       string
	Model       string
	Question    string
	AnswerHTML  template.HTML
	Performance string
	History     string
	Examples    []string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server is the HTTP front end.
type Server struct {
	cfg     Config
	asker   Asker
	history *History
	limiter *rate.Limiter
	md      goldmark.Markdown
	page    *template.Template
	logger  arbor.ILogger
}

func NewServer(cfg Config, asker Asker, logger arbor.ILogger) (*Server, error) {
	if cfg.Title == "" {
		cfg.Title = "Restaurant Genie"
	}
	if cfg.HistoryView <= 0 {
		cfg.HistoryView = 5
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Server{
		cfg:     cfg,
		asker:   asker,
		history: NewHistory(cfg.HistorySize),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		md:      goldmark.New(),
		page:    page,
		logger:  logger,
	}, nil
}

// History exposes the server's chat history.
func (s *Server) History() *History { return s.history }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("POST /{$}", s.handleForm)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Serving web chat")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down web chat")
		return srv.Shutdown(shutdownCtx)
	}
}

// ask answers question and records it unless it is empty or a farewell.
func (s *Server) ask(ctx context.Context, question string) AskResponse {
	start := time.Now()
	answer, tr := s.asker.Ask(ctx, question)
	elapsed := time.Since(start)
	q := strings.TrimSpace(question)
	if q != "" && !service.IsFarewell(q) {
		s.history.Add(q, answer, elapsed)
	}
	return AskResponse{
		Answer:      answer,
		AnswerHTML:  string(s.renderMarkdown(answer)),
		Seconds:     elapsed.Seconds(),
		Documents:   tr.Documents,
		Model:       s.cfg.Model,
		Embedding:   s.cfg.EmbeddingModel,
		Performance: s.performance(elapsed),
		History:     s.history.Summary(s.cfg.HistoryView),
	}
}

func (s *Server) performance(elapsed time.Duration) string {
	return fmt.Sprintf("Response Time: %.2fs\nModel: %s\nEmbedding: %s", elapsed.Seconds(), s.cfg.Model, s.cfg.EmbeddingModel)
}

func (s *Server) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	// goldmark omits raw HTML unless configured otherwise, so the output is safe.
	return template.HTML(buf.String())
}

func (s *Server) render(w http.ResponseWriter, data pageData) {
	data.Title = s.cfg.Title
	data.Model = s.cfg.Model
	data.Examples = Examples
	if data.Performance == "" {
		data.Performance = "Ready to serve!"
	}
	if data.History == "" {
		data.History = s.history.Summary(s.cfg.HistoryView)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render page")
	}
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, pageData{})
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostFormValue("action") == "clear" {
		s.history.Clear()
		s.render(w, pageData{History: "Chat history cleared!"})
		return
	}
	if !s.limiter.Allow() {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}
	question := r.PostFormValue("question")
	resp := s.ask(r.Context(), question)
	s.render(w, pageData{
		Question:    question,
		AnswerHTML:  template.HTML(resp.AnswerHTML),
		Performance: resp.Performance,
		History:     resp.History,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		_ = writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !s.limiter.Allow() {
		_ = writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	_ = writeJSON(w, http.StatusOK, s.ask(r.Context(), req.Question))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.history.Recent(0),
		"summary": s.history.Summary(s.cfg.HistoryView),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.history.Clear()
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Chat history cleared!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"model":           s.cfg.Model,
		"embedding_model": s.cfg.EmbeddingModel,
		"history":         s.history.Len(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	for {
		var req AskRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("WebSocket closed")
			}
			return
		}
		if err := s.limiter.Wait(r.Context()); err != nil {
			return
		}
		if err := conn.WriteJSON(AskResponse{Type: "brewing"}); err != nil {
			return
		}
		resp := s.ask(r.Context(), req.Question)
		resp.Type = "answer"
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}
