package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/calderauth/caldera/internal/auth"
	"github.com/calderauth/caldera/internal/models"
	"github.com/calderauth/caldera/internal/repositories"
)

// VerifyMethod identifies which credential satisfied a verification.
type VerifyMethod string

const (
	MethodTOTP     VerifyMethod = "totp"
	MethodBackup   VerifyMethod = "backup_code"
	MethodRecovery VerifyMethod = "recovery_code"
)

// TwoFactorConfig holds two-factor service configuration
type TwoFactorConfig struct {
	MaxAttempts       int
	AttemptWindow     time.Duration
	BackupCodeCount   int
	RecoveryCodeCount int
	SetupTTL          time.Duration
	Window            int
}

// EnrollmentCodes is the one-time response from a confirmed setup. The
// plaintext codes are shown exactly once; only hashes are stored.
type EnrollmentCodes struct {
	BackupCodes   []string
	RecoveryCodes []string
}

// TwoFactorService handles TOTP enrollment, verification, and bypass codes
type TwoFactorService struct {
	credRepo    repositories.CredentialRepository
	attemptRepo repositories.AttemptRepository
	userRepo    repositories.UserRepository
	totpMgr     *auth.TOTPManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	config      TwoFactorConfig
}

// NewTwoFactorService creates a new two-factor service
func NewTwoFactorService(
	credRepo repositories.CredentialRepository,
	attemptRepo repositories.AttemptRepository,
	userRepo repositories.UserRepository,
	totpMgr *auth.TOTPManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	config TwoFactorConfig,
) *TwoFactorService {
	return &TwoFactorService{
		credRepo:    credRepo,
		attemptRepo: attemptRepo,
		userRepo:    userRepo,
		totpMgr:     totpMgr,
		timing:      timing,
		logger:      logger,
		config:      config,
	}
}

// InitiateSetup generates a fresh secret for an account and stores it in
// pending state. No bypass codes exist until the first token verifies.
// Re-initiating while a setup is pending replaces the previous secret.
func (s *TwoFactorService) InitiateSetup(ctx context.Context, userID string) (*auth.EnrollmentMaterial, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, models.ErrNotFound
	}

	existing, err := s.credRepo.Load(ctx, userID)
	if err != nil && err != models.ErrNotFound {
		s.logger.Error("failed to load credential state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if existing != nil && existing.Enabled() {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	material, err := s.totpMgr.GenerateSecret(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	encrypted, nonce, err := s.totpMgr.EncryptSecret(material.Secret)
	if err != nil {
		s.logger.Error("failed to encrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	state := &models.CredentialState{
		UserID:          userID,
		Status:          models.TwoFactorPendingSetup,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.credRepo.Save(ctx, state); err != nil {
		s.logger.Error("failed to save credential state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("two-factor setup initiated", slog.String("user_id", userID))
	return material, nil
}

// ConfirmSetup verifies the first token against the pending secret. On
// success the account transitions to enabled and receives its backup and
// recovery code pools.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, userID, token string) (*EnrollmentCodes, error) {
	state, err := s.credRepo.Load(ctx, userID)
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.ErrSetupNotPending
		}
		s.logger.Error("failed to load credential state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if state.Status != models.TwoFactorPendingSetup {
		return nil, models.ErrSetupNotPending
	}

	if state.SetupExpired(s.config.SetupTTL, time.Now()) {
		if err := s.credRepo.Delete(ctx, userID); err != nil {
			s.logger.Error("failed to delete expired setup", slog.Any("error", err))
		}
		return nil, models.ErrSetupExpired
	}

	secret, err := s.totpMgr.DecryptSecret(state.SecretEncrypted, state.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !s.totpMgr.VerifyToken(token, secret, s.config.Window) {
		s.logger.Warn("invalid token during setup confirmation", slog.String("user_id", userID))
		return nil, models.ErrInvalidCode
	}

	backupCodes, err := s.totpMgr.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	recoveryCodes, err := s.totpMgr.GenerateRecoveryCodes(s.config.RecoveryCodeCount)
	if err != nil {
		s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	state.Status = models.TwoFactorEnabled
	state.BackupCodes = auth.NewCodeEntries(backupCodes, now)
	state.RecoveryCodes = auth.NewCodeEntries(recoveryCodes, now)
	state.ConfirmedAt = &now
	state.UpdatedAt = now

	if err := s.credRepo.Save(ctx, state); err != nil {
		s.logger.Error("failed to save credential state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.userRepo.SetTwoFactor(ctx, userID, true, &now); err != nil {
		s.logger.Error("failed to flag user as enrolled", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("two-factor enabled", slog.String("user_id", userID))
	return &EnrollmentCodes{
		BackupCodes:   backupCodes,
		RecoveryCodes: recoveryCodes,
	}, nil
}

// VerifyLogin validates a submitted code during login. TOTP tokens are tried
// first, then backup codes, then recovery codes. Failed attempts count toward
// the per-account rate limit; response timing is damped on failure.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, userID, code, deviceFingerprint, ipAddress string) (VerifyMethod, error) {
	start := time.Now()

	method, err := s.verify(ctx, userID, code, deviceFingerprint, ipAddress)
	s.timing.WaitFrom(start, err == nil)
	return method, err
}

func (s *TwoFactorService) verify(ctx context.Context, userID, code, deviceFingerprint, ipAddress string) (VerifyMethod, error) {
	state, err := s.credRepo.Load(ctx, userID)
	if err != nil {
		if err == models.ErrNotFound {
			return "", models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to load credential state", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	if !state.Enabled() {
		return "", models.ErrTwoFactorNotEnabled
	}

	failed, err := s.attemptRepo.FailedCountSince(ctx, userID, time.Now().Add(-s.config.AttemptWindow))
	if err != nil {
		s.logger.Error("failed to check rate limit", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	if failed >= s.config.MaxAttempts {
		s.logger.Warn("two-factor rate limit exceeded",
			slog.String("user_id", userID),
			slog.Int("failed_attempts", failed))
		s.recordAttempt(ctx, userID, deviceFingerprint, ipAddress, false, "rate_limited")
		return "", models.ErrRateLimited
	}

	secret, err := s.totpMgr.DecryptSecret(state.SecretEncrypted, state.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		s.recordAttempt(ctx, userID, deviceFingerprint, ipAddress, false, "internal_error")
		return "", models.ErrInternalServer
	}

	now := time.Now()

	if s.totpMgr.VerifyToken(code, secret, s.config.Window) {
		state.LastUsedAt = &now
		state.UpdatedAt = now
		if err := s.credRepo.Save(ctx, state); err != nil {
			s.logger.Error("failed to record token use", slog.Any("error", err))
		}
		s.recordAttempt(ctx, userID, deviceFingerprint, ipAddress, true, "")
		return MethodTOTP, nil
	}

	if updated, ok := auth.ConsumeCode(code, state.BackupCodes, now); ok {
		state.BackupCodes = updated
		state.UpdatedAt = now
		if err := s.credRepo.Save(ctx, state); err != nil {
			s.logger.Error("failed to mark backup code used", slog.Any("error", err))
			s.recordAttempt(ctx, userID, deviceFingerprint, ipAddress, false, "internal_error")
			return "", models.ErrInternalServer
		}
		s.recordAttempt(ctx, userID, deviceFingerprint, ipAddress, true, "")
		s.logger.Info("backup code used",
			slog.String("user_id", userID),
			slog.Int("remaining", models.UnusedCodes(state.BackupCodes)))
		return MethodBackup, nil
	}

	if updated, ok := auth.ConsumeCode(code, state.RecoveryCodes, now); ok {
		state.RecoveryCodes = updated
		state.UpdatedAt = now
		if err := s.credRepo.Save(ctx, state); err != nil {
			s.logger.Error("failed to mark recovery code used", slog.Any("error", err))
			s.recordAttempt(ctx, userID, deviceFingerprint, ipAddress, false, "internal_error")
			return "", models.ErrInternalServer
		}
		s.recordAttempt(ctx, userID, deviceFingerprint, ipAddress, true, "")
		s.logger.Info("recovery code used",
			slog.String("user_id", userID),
			slog.Int("remaining", models.UnusedCodes(state.RecoveryCodes)))
		return MethodRecovery, nil
	}

	s.logger.Warn("invalid two-factor code",
		slog.String("user_id", userID),
		slog.Int("failed_attempts_now", failed+1))
	s.recordAttempt(ctx, userID, deviceFingerprint, ipAddress, false, "invalid_code")
	return "", models.ErrInvalidCode
}

// Disable turns off two-factor for an account. The caller must present a
// currently valid token or an unused bypass code; a password alone is not
// accepted.
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string) error {
	state, err := s.credRepo.Load(ctx, userID)
	if err != nil {
		if err == models.ErrNotFound {
			return models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to load credential state", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !state.Enabled() {
		return models.ErrTwoFactorNotEnabled
	}

	if err := s.provePossession(state, code); err != nil {
		s.logger.Warn("invalid code on disable attempt", slog.String("user_id", userID))
		return err
	}

	if err := s.credRepo.Delete(ctx, userID); err != nil {
		s.logger.Error("failed to delete credential state", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.userRepo.SetTwoFactor(ctx, userID, false, nil); err != nil {
		s.logger.Error("failed to clear user enrollment flag", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("two-factor disabled", slog.String("user_id", userID))
	return nil
}

// RegenerateBackupCodes replaces the backup code pool after the caller
// proves possession with a current token. Unused old codes are invalidated.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, token string) ([]string, error) {
	return s.regenerate(ctx, userID, token, true)
}

// RegenerateRecoveryCodes replaces the recovery code pool after the caller
// proves possession with a current token. Unused old codes are invalidated.
func (s *TwoFactorService) RegenerateRecoveryCodes(ctx context.Context, userID, token string) ([]string, error) {
	return s.regenerate(ctx, userID, token, false)
}

func (s *TwoFactorService) regenerate(ctx context.Context, userID, token string, backup bool) ([]string, error) {
	state, err := s.credRepo.Load(ctx, userID)
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to load credential state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !state.Enabled() {
		return nil, models.ErrTwoFactorNotEnabled
	}

	secret, err := s.totpMgr.DecryptSecret(state.SecretEncrypted, state.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !s.totpMgr.VerifyToken(token, secret, s.config.Window) {
		return nil, models.ErrInvalidCode
	}

	now := time.Now()
	var codes []string
	if backup {
		codes, err = s.totpMgr.GenerateBackupCodes(s.config.BackupCodeCount)
		if err == nil {
			state.BackupCodes = auth.NewCodeEntries(codes, now)
		}
	} else {
		codes, err = s.totpMgr.GenerateRecoveryCodes(s.config.RecoveryCodeCount)
		if err == nil {
			state.RecoveryCodes = auth.NewCodeEntries(codes, now)
		}
	}
	if err != nil {
		s.logger.Error("failed to generate replacement codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	state.UpdatedAt = now
	if err := s.credRepo.Save(ctx, state); err != nil {
		s.logger.Error("failed to save credential state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("bypass codes regenerated",
		slog.String("user_id", userID),
		slog.Bool("backup", backup))
	return codes, nil
}

// Status returns the enrollment state and remaining bypass code counts.
// Accounts that never enrolled report not_configured rather than an error.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatusInfo, error) {
	state, err := s.credRepo.Load(ctx, userID)
	if err != nil {
		if err == models.ErrNotFound {
			return &models.TwoFactorStatusInfo{
				Enabled: false,
				Status:  models.TwoFactorNotConfigured,
			}, nil
		}
		s.logger.Error("failed to load credential state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.TwoFactorStatusInfo{
		Enabled:                state.Enabled(),
		Status:                 state.Status,
		ConfirmedAt:            state.ConfirmedAt,
		BackupCodesRemaining:   models.UnusedCodes(state.BackupCodes),
		RecoveryCodesRemaining: models.UnusedCodes(state.RecoveryCodes),
	}, nil
}

// provePossession accepts a current TOTP token or any unused bypass code.
func (s *TwoFactorService) provePossession(state *models.CredentialState, code string) error {
	secret, err := s.totpMgr.DecryptSecret(state.SecretEncrypted, state.SecretNonce)
	if err != nil {
		return models.ErrInternalServer
	}
	if s.totpMgr.VerifyToken(code, secret, s.config.Window) {
		return nil
	}
	if _, ok := auth.ConsumeCode(code, state.BackupCodes, time.Now()); ok {
		return nil
	}
	if _, ok := auth.ConsumeCode(code, state.RecoveryCodes, time.Now()); ok {
		return nil
	}
	return models.ErrInvalidCode
}

func (s *TwoFactorService) recordAttempt(ctx context.Context, userID, deviceFingerprint, ipAddress string, success bool, failureReason string) {
	attempt := &models.VerificationAttempt{
		UserID:            userID,
		DeviceFingerprint: deviceFingerprint,
		IPAddress:         ipAddress,
		Success:           success,
		AttemptedAt:       time.Now(),
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	if err := s.attemptRepo.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record verification attempt", slog.Any("error", err))
	}
}
