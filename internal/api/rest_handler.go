package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"money_transfer/internal/domain"
	"money_transfer/internal/processor"
	"money_transfer/internal/service"
	"money_transfer/pkg/crypto"
	"money_transfer/pkg/validator"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	SignatureHeader      = "X-Signature"

	defaultPageSize = 10
	maxPageSize     = 100
)

type APIHandler struct {
	transfers        *processor.TransferProcessor
	history          *processor.HistoryService
	accounts         *service.AccountService
	auth             *service.AuthService
	validator        *validator.TransactionValidator
	signer           *crypto.Signer
	requireSignature bool
	logger           *slog.Logger
	requestTimeout   time.Duration
}

func NewAPIHandler(
	transfers *processor.TransferProcessor,
	history *processor.HistoryService,
	accounts *service.AccountService,
	auth *service.AuthService,
	signer *crypto.Signer,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		transfers:      transfers,
		history:        history,
		accounts:       accounts,
		auth:           auth,
		validator:      validator.NewTransactionValidator(),
		signer:         signer,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

// RequireSignature makes the X-Signature header mandatory on transfers. When
// off, a signature is verified only if the client sends one.
func (h *APIHandler) RequireSignature(required bool) {
	h.requireSignature = required
}

type TransferRequest struct {
	FromAccountID  string          `json:"from_account_id"`
	ToAccountID    string          `json:"to_account_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type RegisterRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	HolderName string `json:"holder_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OpenAccountRequest struct {
	HolderName     string          `json:"holder_name"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *APIHandler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var body TransferRequest
	if err := decodeJSON(r, &body); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	req := domain.TransferRequest{
		FromAccountID:  strings.TrimSpace(body.FromAccountID),
		ToAccountID:    strings.TrimSpace(body.ToAccountID),
		Amount:         body.Amount,
		IdempotencyKey: strings.TrimSpace(body.IdempotencyKey),
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}

	if err := h.validator.ValidateTransfer(req); err != nil {
		h.sendErrorDetails(w, "Validation failed", http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if !canAccess(r.Context(), req.FromAccountID) {
		h.sendError(w, "Transfers are only allowed from your own account", http.StatusForbidden, "FORBIDDEN")
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if signature == "" && h.requireSignature {
		h.sendError(w, "Signature required", http.StatusUnauthorized, "MISSING_SIGNATURE")
		return
	}
	if signature != "" {
		valid, err := h.signer.VerifyTransfer(req.FromAccountID, req.ToAccountID, req.Amount, req.IdempotencyKey, signature)
		if err != nil || !valid {
			h.sendError(w, "Invalid signature", http.StatusUnauthorized, "INVALID_SIGNATURE")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.transfers.Transfer(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "Transfer failed with internal error",
			slog.String("idempotency_key", req.IdempotencyKey),
			slog.String("error", err.Error()))
		h.sendError(w, result.Message, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}

	h.sendJSON(w, result, http.StatusOK)
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if !canAccess(r.Context(), accountID) {
		h.sendError(w, "Access to this account is not allowed", http.StatusForbidden, "FORBIDDEN")
		return
	}

	records, err := h.history.TransactionHistory(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, records, http.StatusOK)
}

func (h *APIHandler) HistoryPageHandler(w http.ResponseWriter, r *http.Request) {
	h.historyPage(w, r, "")
}

func (h *APIHandler) HistoryFilterPageHandler(w http.ResponseWriter, r *http.Request) {
	h.historyPage(w, r, r.URL.Query().Get("filter"))
}

func (h *APIHandler) historyPage(w http.ResponseWriter, r *http.Request, filter string) {
	accountID := chi.URLParam(r, "accountId")
	if !canAccess(r.Context(), accountID) {
		h.sendError(w, "Access to this account is not allowed", http.StatusForbidden, "FORBIDDEN")
		return
	}

	page, size, err := pageParams(r)
	if err != nil {
		h.sendErrorDetails(w, "Invalid paging parameters", http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.history.TransactionHistoryPage(r.Context(), accountID, page, size, filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, result, http.StatusOK)
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	resp, err := h.auth.Register(r.Context(), req.Username, req.Password, req.HolderName)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, resp, http.StatusCreated)
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	resp, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, resp, http.StatusOK)
}

func (h *APIHandler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	account, err := h.accounts.Open(r.Context(), req.HolderName, req.InitialBalance)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, account, http.StatusCreated)
}

func (h *APIHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !canAccess(r.Context(), id) {
		h.sendError(w, "Access to this account is not allowed", http.StatusForbidden, "FORBIDDEN")
		return
	}

	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, account, http.StatusOK)
}

func (h *APIHandler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, accounts, http.StatusOK)
}

func (h *APIHandler) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var update service.AccountUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	account, err := h.accounts.Update(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, account, http.StatusOK)
}

func (h *APIHandler) DeactivateAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, account, http.StatusOK)
}

func (h *APIHandler) AllTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		h.sendErrorDetails(w, "Invalid paging parameters", http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.history.AllTransactionsPage(r.Context(), page, size)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sendJSON(w, result, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		h.sendErrorDetails(w, "Validation failed", http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, processor.ErrInvalidFilter):
		h.sendErrorDetails(w, "Invalid filter", http.StatusBadRequest, "INVALID_FILTER", err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		h.sendError(w, "Invalid username or password", http.StatusUnauthorized, "INVALID_CREDENTIALS")
	case errors.Is(err, service.ErrAccountNotFound):
		h.sendError(w, "Account not found", http.StatusNotFound, "NOT_FOUND")
	case errors.Is(err, service.ErrUsernameTaken):
		h.sendError(w, "Username already taken", http.StatusConflict, "CONFLICT")
	case errors.Is(err, service.ErrAccountConflict):
		h.sendError(w, "Account was modified concurrently, retry", http.StatusConflict, "CONFLICT")
	default:
		h.logger.ErrorContext(r.Context(), "Request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		h.sendError(w, "Internal server error", http.StatusInternalServerError, "SERVER_ERROR")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pageParams reads page and size, defaulting to 0 and 10.
func pageParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	page, size := 0, defaultPageSize

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, errors.New("page must be a non-negative integer")
		}
		page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return 0, 0, errors.New("size must be between 1 and 100")
		}
		size = n
	}
	return page, size, nil
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	h.sendErrorDetails(w, message, statusCode, code, "")
}

func (h *APIHandler) sendErrorDetails(w http.ResponseWriter, message string, statusCode int, code, details string) {
	errorResponse := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}
