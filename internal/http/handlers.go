package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"duit/internal/core"
	"duit/internal/identity"
)

const dateLayout = "2006-01-02"

type transactionPayload struct {
	Date     string `json:"date"`
	Kind     string `json:"kind"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
	Note     string `json:"note"`
}

type patchPayload struct {
	Date     *string `json:"date"`
	Kind     *string `json:"kind"`
	Amount   *string `json:"amount"`
	Category *string `json:"category"`
	Note     *string `json:"note"`
}

type transactionResponse struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Note        string `json:"note,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type summaryResponse struct {
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	TotalIncome  int64 `json:"total_income_cents"`
	TotalExpense int64 `json:"total_expense_cents"`
	Balance      int64 `json:"balance_cents"`
}

type migratePayload struct {
	DeviceToken string `json:"device_token"`
}

type migrateResponse struct {
	Migrated int64 `json:"migrated"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func toResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		Date:        tx.OccurredAt.UTC().Format(dateLayout),
		Kind:        string(tx.Kind),
		AmountCents: tx.Amount.Cents,
		Category:    tx.Category,
		Note:        tx.Note,
		CreatedAt:   tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeDomainError maps domain errors to HTTP statuses: validation failures
// are 422, missing rows 404, a store outage 503, a failed migration 502
// flagged retryable.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrMigrationFailed):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Retryable: true})
	case errors.Is(err, core.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Retryable: true})
	case isValidationErr(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func isValidationErr(err error) bool {
	for _, v := range []error{
		core.ErrInvalidAmount,
		core.ErrInvalidDate,
		core.ErrInvalidKind,
		core.ErrEmptyCategory,
		core.ErrCategoryTooLong,
		core.ErrNoteTooLong,
		core.ErrNoOwner,
		core.ErrEmptyPatch,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// owner resolves the request's identity, answering 401 itself when the
// request carries none or an invalid bearer token. A configured session
// resolver covers identity-less requests in local single-user mode.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (core.Owner, bool) {
	owner, err := s.ids.FromRequest(r)
	if errors.Is(err, identity.ErrNoIdentity) && s.session != nil {
		owner, err = s.session.Resolve()
	}
	if err != nil {
		slog.WarnContext(r.Context(), "Identity resolution failed", "error", err)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return core.Owner{}, false
	}
	return owner, true
}

// monthParams reads year and month query parameters, defaulting to the
// current UTC month.
func monthParams(r *http.Request) (int, time.Month, error) {
	now := time.Now().UTC()
	year := now.Year()
	month := int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, core.ErrInvalidDate
		}
		year = y
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, core.ErrInvalidDate
		}
		month = m
	}
	return year, time.Month(month), nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	var payload transactionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	occurredAt, err := time.Parse(dateLayout, strings.TrimSpace(payload.Date))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: core.ErrInvalidDate.Error()})
		return
	}
	cents, err := core.ParseDecimalToCents(payload.Amount)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	tx := core.Transaction{
		OccurredAt: occurredAt,
		Kind:       core.Kind(strings.TrimSpace(payload.Kind)),
		Amount:     core.Money{Cents: cents},
		Category:   strings.TrimSpace(payload.Category),
		Note:       strings.TrimSpace(payload.Note),
	}

	created, err := s.ledger.Create(r.Context(), owner, tx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(created))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	year, month, err := monthParams(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	start, end := core.MonthWindow(year, month)
	txs, err := s.ledger.List(r.Context(), owner, start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toResponse(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	var payload patchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	var patch core.Patch
	if payload.Date != nil {
		occurredAt, err := time.Parse(dateLayout, strings.TrimSpace(*payload.Date))
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: core.ErrInvalidDate.Error()})
			return
		}
		patch.OccurredAt = &occurredAt
	}
	if payload.Kind != nil {
		kind := core.Kind(strings.TrimSpace(*payload.Kind))
		patch.Kind = &kind
	}
	if payload.Amount != nil {
		cents, err := core.ParseDecimalToCents(*payload.Amount)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		patch.Amount = &core.Money{Cents: cents}
	}
	if payload.Category != nil {
		category := strings.TrimSpace(*payload.Category)
		patch.Category = &category
	}
	if payload.Note != nil {
		note := strings.TrimSpace(*payload.Note)
		patch.Note = &note
	}

	if err := s.ledger.Update(r.Context(), owner, id, patch); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Delete(r.Context(), owner, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	year, month, err := monthParams(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	summary, err := s.ledger.MonthSummary(r.Context(), owner, year, month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Year:         year,
		Month:        int(month),
		TotalIncome:  summary.TotalIncome.Cents,
		TotalExpense: summary.TotalExpense.Cents,
		Balance:      summary.Balance.Cents,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	txs, err := s.ledger.ListAll(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toResponse(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMigrate re-owns the device token's rows to the authenticated
// account. The account comes from the bearer token only; the device token
// from the request body or, when absent there, the request header.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	if !owner.IsAccount() {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "migration requires an authenticated account"})
		return
	}

	var payload migratePayload
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	deviceToken := strings.TrimSpace(payload.DeviceToken)
	if deviceToken == "" {
		deviceToken = s.ids.DeviceToken(r)
	}
	if deviceToken == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing device token in body or " + identity.DeviceTokenHeader + " header"})
		return
	}

	migrated, err := s.ledger.Migrate(r.Context(), owner.AccountID(), deviceToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, migrateResponse{Migrated: migrated})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	if err := s.ledger.ResetAll(r.Context(), owner); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
