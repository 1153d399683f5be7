// Package api exposes the budget over a JSON REST surface for the mobile
// client.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bbirdsall/budgetflow/internal/ingest"
	"github.com/bbirdsall/budgetflow/internal/service"
)

// Ticker triggers an immediate ingestion cycle.
type Ticker interface {
	Tick(ctx context.Context) (*ingest.TickResult, error)
}

// Config holds HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Categories   []string
}

// DefaultConfig returns the standard server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		Categories:   []string{"food", "shopping", "gas", "other"},
	}
}

// Server serves the REST API.
type Server struct {
	budget   service.BudgetReader
	rules    service.RuleStore
	ledger   service.Ledger
	tokens   service.TokenStore
	pipeline Ticker
	logger   *slog.Logger
	config   Config
}

// NewServer creates a Server.
func NewServer(
	budget service.BudgetReader,
	rules service.RuleStore,
	ledger service.Ledger,
	tokens service.TokenStore,
	pipeline Ticker,
	logger *slog.Logger,
	config Config,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if len(config.Categories) == 0 {
		config.Categories = DefaultConfig().Categories
	}
	return &Server{
		budget:   budget,
		rules:    rules,
		ledger:   ledger,
		tokens:   tokens,
		pipeline: pipeline,
		logger:   logger,
		config:   config,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /budget", s.handleBudget)
	mux.HandleFunc("GET /savings", s.handleSavings)
	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /keywords", s.handleKeywords)
	mux.HandleFunc("POST /save-keyword", s.handleSaveKeyword)
	mux.HandleFunc("DELETE /delete-keyword", s.handleDeleteKeyword)
	mux.HandleFunc("GET /uncategorized-transactions", s.handleListUncategorized)
	mux.HandleFunc("DELETE /uncategorized-transactions/{id}", s.handleDeleteUncategorized)
	mux.HandleFunc("POST /categorize-transaction", s.handleCategorizeTransaction)
	mux.HandleFunc("POST /add-transaction", s.handleAddTransaction)
	mux.HandleFunc("POST /api/token", s.handleRegisterToken)
	mux.HandleFunc("GET /check-emails", s.handleCheckEmails)

	return s.logRequests(mux)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
