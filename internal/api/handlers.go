package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/bbirdsall/budgetflow/internal/common"
	"github.com/bbirdsall/budgetflow/internal/ingest"
	"github.com/bbirdsall/budgetflow/internal/model"
	"github.com/bbirdsall/budgetflow/internal/rules"
)

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.budget.Snapshot(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSavings(w http.ResponseWriter, r *http.Request) {
	savings, err := s.budget.Savings(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, savings)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.config.Categories)
}

func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	ruleSet, err := s.rules.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if ruleSet == nil {
		ruleSet = []model.Rule{}
	}
	s.respondJSON(w, http.StatusOK, ruleSet)
}

type saveKeywordRequest struct {
	Keyword  string   `json:"keyword"`
	Category string   `json:"category"`
	Amount   *float64 `json:"amount,omitempty"`
}

// handleSaveKeyword stores a new rule, then sweeps the pending table: every
// uncategorized row the new rule matches is migrated into the ledger under
// the rule's category, not just the row the user happened to be looking at.
func (s *Server) handleSaveKeyword(w http.ResponseWriter, r *http.Request) {
	var req saveKeywordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule := model.Rule{
		Keyword:  strings.TrimSpace(req.Keyword),
		Category: strings.TrimSpace(req.Category),
		Amount:   req.Amount,
	}
	if err := s.rules.Add(r.Context(), rule); err != nil {
		s.respondError(w, err)
		return
	}

	migrated, err := s.migrateMatches(r, rule)
	if err != nil {
		// The rule is saved; surface the sweep failure without undoing it.
		s.logger.Error("pending sweep after rule save failed", "keyword", rule.Keyword, "error", err)
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"message":  "keyword saved",
		"migrated": migrated,
	})
}

// migrateMatches moves every pending entry the rule matches into the ledger.
func (s *Server) migrateMatches(r *http.Request, rule model.Rule) (int, error) {
	pending, err := s.ledger.ListUncategorized(r.Context())
	if err != nil {
		return 0, err
	}

	var matches []model.UncategorizedEntry
	for _, entry := range pending {
		txn := model.Transaction{Date: entry.Date, Details: entry.Details, Amount: entry.Amount}
		if rules.Matches(rule, txn) {
			matches = append(matches, entry)
		}
	}
	if len(matches) == 0 {
		return 0, nil
	}

	if err := s.ledger.Migrate(r.Context(), matches, rule.Category); err != nil {
		return 0, err
	}
	return len(matches), nil
}

type deleteKeywordRequest struct {
	Keyword string `json:"keyword"`
}

func (s *Server) handleDeleteKeyword(w http.ResponseWriter, r *http.Request) {
	var req deleteKeywordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Keyword) == "" {
		s.respondErrorMessage(w, http.StatusBadRequest, "keyword is required")
		return
	}

	if err := s.rules.Remove(r.Context(), req.Keyword); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "keyword deleted"})
}

func (s *Server) handleListUncategorized(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.ListUncategorized(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if entries == nil {
		entries = []model.UncategorizedEntry{}
	}
	s.respondJSON(w, http.StatusOK, entries)
}

// handleDeleteUncategorized resolves a pending entry by id and migrates it
// into the ledger under whatever category the current rule set assigns. A
// pending row with no matching rule cannot be silently discarded; that is a
// 403, and the client should save a rule or categorize explicitly instead.
func (s *Server) handleDeleteUncategorized(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	entry, err := s.findPending(r, id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	ruleSet, err := s.rules.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}

	txn := model.Transaction{Date: entry.Date, Details: entry.Details, Amount: entry.Amount}
	category, ok := rules.Classify(txn, ruleSet)
	if !ok {
		s.respondError(w, fmt.Errorf("%w: no rule matches %q", common.ErrPolicy, entry.Details))
		return
	}

	if err := s.ledger.Migrate(r.Context(), []model.UncategorizedEntry{entry}, category); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message":  "transaction migrated",
		"category": category,
	})
}

type categorizeRequest struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

func (s *Server) handleCategorizeTransaction(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		s.respondErrorMessage(w, http.StatusBadRequest, "id is required")
		return
	}
	if !slices.Contains(s.config.Categories, req.Category) {
		s.respondErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", req.Category))
		return
	}

	entry, err := s.findPending(r, req.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if err := s.ledger.Migrate(r.Context(), []model.UncategorizedEntry{entry}, req.Category); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "transaction categorized"})
}

func (s *Server) findPending(r *http.Request, id string) (model.UncategorizedEntry, error) {
	pending, err := s.ledger.ListUncategorized(r.Context())
	if err != nil {
		return model.UncategorizedEntry{}, err
	}
	for _, entry := range pending {
		if entry.ID == id {
			return entry, nil
		}
	}
	return model.UncategorizedEntry{}, fmt.Errorf("%w: no pending transaction with id %s", common.ErrNotFound, id)
}

type addTransactionRequest struct {
	Date     string  `json:"date"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Details  string  `json:"details"`
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req addTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Date == "" || req.Details == "" {
		s.respondErrorMessage(w, http.StatusBadRequest, "date and details are required")
		return
	}
	if !slices.Contains(s.config.Categories, req.Category) {
		s.respondErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", req.Category))
		return
	}

	entry := model.LedgerEntry{
		Date:     req.Date,
		Category: req.Category,
		Amount:   req.Amount,
		Details:  req.Details,
	}
	if err := s.ledger.AppendCategorized(r.Context(), entry); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "transaction added"})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		s.respondErrorMessage(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.tokens.RegisterToken(r.Context(), req.Token); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "token registered"})
}

func (s *Server) handleCheckEmails(w http.ResponseWriter, r *http.Request) {
	// A synchronous tick can outlast the server write timeout. Clear the
	// deadline for this response; the tick carries its own timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("could not extend write deadline", "error", err)
	}

	result, err := s.pipeline.Tick(r.Context())
	if err != nil {
		if errors.Is(err, ingest.ErrTickInProgress) {
			s.respondErrorMessage(w, http.StatusConflict, "email check already running")
			return
		}
		s.respondError(w, err)
		return
	}
	if result.Transactions == nil {
		result.Transactions = []model.Transaction{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"message":      "email check completed",
		"transactions": result.Transactions,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrPolicy):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.respondErrorMessage(w, status, err.Error())
}

func (s *Server) respondErrorMessage(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
