package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/calderauth/caldera/internal/auth"
	"github.com/calderauth/caldera/internal/models"
	"github.com/calderauth/caldera/internal/services"
	pkghttp "github.com/calderauth/caldera/pkg/http"
	pkglogger "github.com/calderauth/caldera/pkg/logger"
	"github.com/calderauth/caldera/pkg/password"
)

// CredentialHandler handles password change and policy requests
type CredentialHandler struct {
	credentialService *services.CredentialService
	logger            *slog.Logger
	audit             *pkglogger.AuditLogger
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(credentialService *services.CredentialService, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{
		credentialService: credentialService,
		logger:            logger,
		audit:             pkglogger.NewAuditLogger(logger),
	}
}

// ChangePassword handles POST /credentials/password
func (h *CredentialHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.credentialService.ChangePassword(r.Context(), user.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.audit.LogPasswordChange(user.UserID, clientIP(r), false)
		var violation *password.Violation
		switch {
		case errors.As(err, &violation):
			pkghttp.WriteErrorWithDetails(w, http.StatusUnprocessableEntity,
				"password_rejected", "Password does not meet policy requirements", violation.Reason)
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Account not found")
		default:
			h.logger.Error("failed to change password", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Password change failed")
		}
		return
	}

	h.audit.LogPasswordChange(user.UserID, clientIP(r), true)
	writeJSON(w, http.StatusOK, ChangePasswordResponse{Message: "Password changed"})
}

// EvaluatePassword handles POST /credentials/password/evaluate. Dry-run
// only; nothing is stored.
func (h *CredentialHandler) EvaluatePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req EvaluatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, decision, err := h.credentialService.Evaluate(r.Context(), user.UserID, req.Password)
	if err != nil {
		h.logger.Error("failed to evaluate password", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, EvaluatePasswordResponse{
		Valid:    result.Valid,
		Errors:   result.Errors,
		Strength: string(result.Strength),
		Allowed:  decision.Allowed,
		Reason:   decision.Reason,
	})
}

// Suggestions handles GET /credentials/password/suggestions
func (h *CredentialHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	length := queryInt(r, "length", password.DefaultSuggestionLength)
	count := queryInt(r, "count", password.DefaultSuggestionCount)

	suggestions, err := h.credentialService.Suggestions(length, count)
	if err != nil {
		h.logger.Error("failed to generate suggestions", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Suggestion generation failed")
		return
	}

	out := make([]string, len(suggestions))
	for i, s := range suggestions {
		out[i] = s.Password
	}
	writeJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: out})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}
