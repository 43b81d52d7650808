package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"token-vault/lifecycle"
	"token-vault/models"
	"token-vault/repository"
	"token-vault/scheduler"
	"token-vault/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler handles HTTP API requests
type Handler struct {
	manager   *lifecycle.Manager
	scheduler *scheduler.Scheduler
	repo      repository.RepositoryInterface
}

// NewHandler creates a new Handler
func NewHandler(manager *lifecycle.Manager, sched *scheduler.Scheduler, repo repository.RepositoryInterface) *Handler {
	return &Handler{manager: manager, scheduler: sched, repo: repo}
}

type accountRequest struct {
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type generateTokenRequest struct {
	RequestToken string `json:"request_token"`
}

// HandleHealth returns the health status of the service
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "ok",
		"services": map[string]string{
			"database": "connected",
		},
	}

	if err := h.repo.Health(r.Context()); err != nil {
		status["status"] = "degraded"
		status["services"].(map[string]string)["database"] = "disconnected"
	}

	cbStatus := services.GetGlobalRegistry().Status()
	status["circuit_breakers"] = cbStatus
	for _, cb := range cbStatus {
		if cb.State == "open" {
			status["status"] = "degraded"
			break
		}
	}

	h.jsonResponse(w, status)
}

// HandleCreateAccount registers a broker account with its credentials
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid JSON request", http.StatusBadRequest)
		return
	}

	account, err := h.manager.CreateAccount(r.Context(), req.Name, req.APIKey, req.APISecret)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": account})
}

// HandleListAccounts returns all accounts with their token status
func (h *Handler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.manager.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, accounts)
}

// HandleGetAccount returns a single account with its token status
func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountIDParam(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.manager.GetAccount(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, summary)
}

// HandleUpdateAccount updates account fields; a new secret is
// re-encrypted, blank fields keep their stored values
func (h *Handler) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountIDParam(w, r, "id")
	if !ok {
		return
	}

	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid JSON request", http.StatusBadRequest)
		return
	}

	account, err := h.manager.UpdateAccount(r.Context(), id, req.Name, req.APIKey, req.APISecret)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, account)
}

// HandleDeleteAccount removes an account along with its token and audit
// history
func (h *Handler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.manager.DeleteAccount(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, map[string]string{"status": "deleted", "id": id.String()})
}

// HandleLoginURL returns the broker login URL for the account's API key
func (h *Handler) HandleLoginURL(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountIDParam(w, r, "id")
	if !ok {
		return
	}

	loginURL, err := h.manager.LoginURL(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, map[string]string{"login_url": loginURL})
}

// HandleGenerateToken exchanges a request token for an access token
func (h *Handler) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountIDParam(w, r, "accountID")
	if !ok {
		return
	}

	var req generateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid JSON request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.RequestToken) == "" {
		h.jsonError(w, "request_token is required", http.StatusBadRequest)
		return
	}

	status, err := h.manager.IssueToken(r.Context(), id, req.RequestToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, status)
}

// HandleTokenStatus returns the validity and remaining lifetime of the
// account's token without exposing the token itself
func (h *Handler) HandleTokenStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountIDParam(w, r, "accountID")
	if !ok {
		return
	}

	status, err := h.manager.GetTokenStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, status)
}

// HandleAccessToken returns the decrypted access token for API use.
// Only valid tokens are released.
func (h *Handler) HandleAccessToken(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountIDParam(w, r, "accountID")
	if !ok {
		return
	}

	accessToken, err := h.manager.GetAccessToken(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, map[string]string{"access_token": accessToken})
}

// HandleInvalidateToken marks the account's token invalid immediately
func (h *Handler) HandleInvalidateToken(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountIDParam(w, r, "accountID")
	if !ok {
		return
	}

	if err := h.manager.Invalidate(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, map[string]string{"status": "invalidated", "account_id": id.String()})
}

// HandleListTokens returns the token status of every account
func (h *Handler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.manager.ListTokenStatuses(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, statuses)
}

// HandleTokenStats returns aggregate account and token counts
func (h *Handler) HandleTokenStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.scheduler.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, stats)
}

// HandleExpireAll forces the daily cutoff transition immediately
func (h *Handler) HandleExpireAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.ForceExpireAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, result)
}

// HandleGetAuditLogs returns the audit trail for an account, newest
// first
func (h *Handler) HandleGetAuditLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountIDParam(w, r, "accountID")
	if !ok {
		return
	}

	// Account existence check so unknown IDs 404 instead of returning
	// an empty list.
	if _, err := h.repo.GetAccount(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	limit := h.parseLimitParam(r, 100)
	entries, err := h.repo.GetAuditLogs(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	h.jsonResponse(w, entries)
}

// Helper functions

func (h *Handler) accountIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.jsonError(w, "invalid account id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// parseLimitParam parses the limit query parameter
func (h *Handler) parseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

// writeError maps domain errors to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var upstream *services.UpstreamError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrDuplicateName):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lifecycle.ErrTokenExpired):
		h.jsonError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, lifecycle.ErrInvalidInput):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &upstream):
		h.jsonError(w, err.Error(), http.StatusBadGateway)
	default:
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
