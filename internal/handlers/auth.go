package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/calderauth/caldera/internal/models"
	"github.com/calderauth/caldera/internal/services"
	pkghttp "github.com/calderauth/caldera/pkg/http"
	pkglogger "github.com/calderauth/caldera/pkg/logger"
)

// AuthHandler handles login and token refresh
type AuthHandler struct {
	authService *services.AuthService
	logger      *slog.Logger
	audit       *pkglogger.AuditLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
		audit:       pkglogger.NewAuditLogger(logger),
	}
}

// Login handles POST /auth/login. Accounts with two-factor enabled receive
// a challenge token and must call /auth/2fa/verify to finish.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if err == models.ErrUnauthorized {
			h.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login",
				IPAddress:     clientIP(r),
				UserAgent:     r.Header.Get("User-Agent"),
				Success:       false,
				FailureReason: "invalid_credentials",
			})
			pkghttp.WriteUnauthorized(w, "Invalid credentials")
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Login failed")
		return
	}

	h.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login",
		UserID:    result.User.ID,
		IPAddress: clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
		Success:   true,
	})

	if result.RequiresTwoFactor {
		writeJSON(w, http.StatusOK, LoginResponse{
			RequiresTwoFactor: true,
			ChallengeToken:    result.ChallengeToken,
		})
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         userDTO(result.User),
	})
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Invalid refresh token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         userDTO(result.User),
	})
}
