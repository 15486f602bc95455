package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/calderauth/caldera/internal/auth"
	"github.com/calderauth/caldera/internal/models"
	"github.com/calderauth/caldera/internal/services"
	pkghttp "github.com/calderauth/caldera/pkg/http"
	pkglogger "github.com/calderauth/caldera/pkg/logger"
)

// TwoFactorHandler handles two-factor enrollment and verification requests
type TwoFactorHandler struct {
	twoFactorService *services.TwoFactorService
	authService      *services.AuthService
	tm               *auth.TokenManager
	setupTTL         time.Duration
	logger           *slog.Logger
	audit            *pkglogger.AuditLogger
}

// NewTwoFactorHandler creates a new two-factor handler
func NewTwoFactorHandler(
	twoFactorService *services.TwoFactorService,
	authService *services.AuthService,
	tm *auth.TokenManager,
	setupTTL time.Duration,
	logger *slog.Logger,
) *TwoFactorHandler {
	return &TwoFactorHandler{
		twoFactorService: twoFactorService,
		authService:      authService,
		tm:               tm,
		setupTTL:         setupTTL,
		logger:           logger,
		audit:            pkglogger.NewAuditLogger(logger),
	}
}

// InitiateSetup handles POST /2fa/setup to begin enrollment
func (h *TwoFactorHandler) InitiateSetup(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	material, err := h.twoFactorService.InitiateSetup(r.Context(), user.UserID)
	if err != nil {
		if err == models.ErrTwoFactorAlreadyEnabled {
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
			return
		}
		h.logger.Error("failed to initiate setup", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Setup failed")
		return
	}

	writeJSON(w, http.StatusOK, SetupResponse{
		Secret:          material.Secret,
		ProvisioningURI: material.ProvisioningURI,
		ManualEntryKey:  material.ManualEntryKey,
		QRCode:          material.QRCode,
		ExpiresAt:       time.Now().Add(h.setupTTL),
	})
}

// ConfirmSetup handles POST /2fa/setup/confirm to verify the first token
func (h *TwoFactorHandler) ConfirmSetup(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ConfirmSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.twoFactorService.ConfirmSetup(r.Context(), user.UserID, req.Token)
	if err != nil {
		switch err {
		case models.ErrInvalidCode:
			pkghttp.WriteUnauthorized(w, "Invalid token")
		case models.ErrSetupNotPending:
			pkghttp.WriteBadRequest(w, "No setup in progress")
		case models.ErrSetupExpired:
			pkghttp.WriteError(w, http.StatusGone, "setup_expired", "Setup expired, start again")
		default:
			h.logger.Error("failed to confirm setup", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Confirmation failed")
		}
		return
	}

	h.audit.LogTwoFactorEvent("setup_confirmed", user.UserID, clientIP(r), "", true)

	writeJSON(w, http.StatusOK, ConfirmSetupResponse{
		Enabled:       true,
		BackupCodes:   codes.BackupCodes,
		RecoveryCodes: codes.RecoveryCodes,
		Message:       "Two-factor authentication enabled. Store these codes somewhere safe; they are shown only once.",
	})
}

// Verify handles POST /auth/2fa/verify to complete a challenged login
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	claims, err := h.tm.ValidateToken(req.ChallengeToken)
	if err != nil || claims.Type != models.TokenTypeChallenge {
		pkghttp.WriteUnauthorized(w, "Invalid challenge token")
		return
	}

	fingerprint := hashUserAgent(r.Header.Get("User-Agent"))
	ipAddress := clientIP(r)

	method, err := h.twoFactorService.VerifyLogin(r.Context(), claims.UserID, req.Code, fingerprint, ipAddress)
	if err != nil {
		h.audit.LogTwoFactorEvent("verify", claims.UserID, ipAddress, "", false)
		switch err {
		case models.ErrInvalidCode:
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case models.ErrRateLimited:
			pkghttp.WriteTooManyRequests(w, "Too many failed attempts, try again later")
		case models.ErrTwoFactorNotEnabled:
			pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled")
		default:
			h.logger.Error("verification failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Authentication failed")
		}
		return
	}

	result, err := h.authService.CompleteChallenge(r.Context(), claims)
	if err != nil {
		h.logger.Error("failed to complete challenge", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Authentication failed")
		return
	}

	h.audit.LogTwoFactorEvent("verify", claims.UserID, ipAddress, string(method), true)

	writeJSON(w, http.StatusOK, VerifyResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Method:       string(method),
		User:         userDTO(result.User),
	})
}

// Disable handles POST /2fa/disable. A valid token or bypass code is
// required; a password alone does not suffice.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req DisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.twoFactorService.Disable(r.Context(), user.UserID, req.Code); err != nil {
		switch err {
		case models.ErrInvalidCode:
			pkghttp.WriteUnauthorized(w, "Invalid code")
		case models.ErrTwoFactorNotEnabled:
			pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled")
		default:
			h.logger.Error("failed to disable two-factor", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Failed to disable two-factor authentication")
		}
		return
	}

	h.audit.LogTwoFactorEvent("disabled", user.UserID, clientIP(r), "", true)

	writeJSON(w, http.StatusOK, DisableResponse{
		Enabled: false,
		Message: "Two-factor authentication disabled",
	})
}

// RegenerateBackupCodes handles POST /2fa/backup-codes/regenerate
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	h.regenerate(w, r, h.twoFactorService.RegenerateBackupCodes)
}

// RegenerateRecoveryCodes handles POST /2fa/recovery-codes/regenerate
func (h *TwoFactorHandler) RegenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	h.regenerate(w, r, h.twoFactorService.RegenerateRecoveryCodes)
}

func (h *TwoFactorHandler) regenerate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, token string) ([]string, error)) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req RegenerateCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := fn(r.Context(), user.UserID, req.Token)
	if err != nil {
		switch err {
		case models.ErrInvalidCode:
			pkghttp.WriteUnauthorized(w, "Invalid token")
		case models.ErrTwoFactorNotEnabled:
			pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled")
		default:
			h.logger.Error("failed to regenerate codes", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Failed to regenerate codes")
		}
		return
	}

	writeJSON(w, http.StatusOK, RegenerateCodesResponse{Codes: codes})
}

// Status handles GET /2fa/status
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	info, err := h.twoFactorService.Status(r.Context(), user.UserID)
	if err != nil {
		h.logger.Error("failed to get status", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve status")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Enabled:                info.Enabled,
		Status:                 string(info.Status),
		ConfirmedAt:            info.ConfirmedAt,
		BackupCodesRemaining:   info.BackupCodesRemaining,
		RecoveryCodesRemaining: info.RecoveryCodesRemaining,
	})
}

// Helpers shared across handlers

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func userDTO(user *models.User) *UserResponseDTO {
	return &UserResponseDTO{
		ID:               user.ID,
		Email:            user.Email,
		Name:             user.Name,
		Role:             user.Role,
		TwoFactorEnabled: user.TwoFactorEnabled,
		CreatedAt:        user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        user.UpdatedAt.Format(time.RFC3339),
	}
}

func hashUserAgent(userAgent string) string {
	hash := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(hash[:])
}

// Proxy headers are only honored when the peer is a private-range proxy,
// which is where our load balancers live.
var ipConfig = &pkghttp.IPConfig{
	TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
}

func clientIP(r *http.Request) string {
	return pkghttp.ExtractClientIP(r, ipConfig)
}
