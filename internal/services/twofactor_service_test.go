package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderauth/caldera/internal/auth"
	"github.com/calderauth/caldera/internal/models"
	"github.com/calderauth/caldera/internal/repositories"
)

type twoFactorFixture struct {
	svc      *TwoFactorService
	credRepo *repositories.MemoryCredentialRepository
	userRepo *repositories.MemoryUserRepository
	attempts *repositories.MemoryAttemptRepository
	user     *models.User
}

func newTwoFactorFixture(t *testing.T) *twoFactorFixture {
	t.Helper()

	totpMgr, err := auth.NewTOTPManager([]byte(strings.Repeat("k", 32)), "Caldera")
	require.NoError(t, err)

	credRepo := repositories.NewMemoryCredentialRepository()
	userRepo := repositories.NewMemoryUserRepository()
	attempts := repositories.NewMemoryAttemptRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	timing := auth.NewTimingDelay(auth.TimingConfig{})

	user, err := userRepo.Create(context.Background(), &models.User{
		Email: "user@example.com",
		Name:  "Test User",
		Role:  models.RoleUser,
	})
	require.NoError(t, err)

	svc := NewTwoFactorService(credRepo, attempts, userRepo, totpMgr, timing, logger, TwoFactorConfig{
		MaxAttempts:       5,
		AttemptWindow:     15 * time.Minute,
		BackupCodeCount:   10,
		RecoveryCodeCount: 8,
		SetupTTL:          15 * time.Minute,
		Window:            1,
	})

	return &twoFactorFixture{
		svc:      svc,
		credRepo: credRepo,
		userRepo: userRepo,
		attempts: attempts,
		user:     user,
	}
}

// enroll walks a fixture user through the full setup flow and returns the
// plaintext secret plus the issued bypass codes.
func (f *twoFactorFixture) enroll(t *testing.T) (string, *EnrollmentCodes) {
	t.Helper()
	ctx := context.Background()

	material, err := f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)

	token, err := auth.CodeAt(material.Secret, time.Now())
	require.NoError(t, err)

	codes, err := f.svc.ConfirmSetup(ctx, f.user.ID, token)
	require.NoError(t, err)

	return material.Secret, codes
}

func TestInitiateSetup(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	material, err := f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, material.Secret)
	assert.True(t, strings.HasPrefix(material.ProvisioningURI, "otpauth://totp/"))
	assert.True(t, strings.HasPrefix(material.QRCode, "data:image/png;base64,"))
	assert.Equal(t, material.Secret, material.ManualEntryKey)

	state, err := f.credRepo.Load(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorPendingSetup, state.Status)
	assert.Empty(t, state.BackupCodes)
	assert.Empty(t, state.RecoveryCodes)
	assert.NotEmpty(t, state.SecretEncrypted)
}

func TestInitiateSetupUnknownUser(t *testing.T) {
	f := newTwoFactorFixture(t)

	_, err := f.svc.InitiateSetup(context.Background(), "no-such-user")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInitiateSetupReplacesPendingSecret(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	first, err := f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)

	second, err := f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	// The first secret is dead after replacement
	token, err := auth.CodeAt(first.Secret, time.Now())
	require.NoError(t, err)
	_, err = f.svc.ConfirmSetup(ctx, f.user.ID, token)
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestInitiateSetupRestartsExpiryClock(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)

	// Age the first pending record past the TTL
	state, err := f.credRepo.Load(ctx, f.user.ID)
	require.NoError(t, err)
	staleCreatedAt := time.Now().Add(-16 * time.Minute)
	state.CreatedAt = staleCreatedAt
	require.NoError(t, f.credRepo.Save(ctx, state))

	material, err := f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)

	// The replacement starts a fresh TTL window
	state, err = f.credRepo.Load(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, state.CreatedAt.After(staleCreatedAt))

	token, err := auth.CodeAt(material.Secret, time.Now())
	require.NoError(t, err)
	codes, err := f.svc.ConfirmSetup(ctx, f.user.ID, token)
	require.NoError(t, err)
	assert.NotEmpty(t, codes.BackupCodes)
}

func TestConfirmSetup(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	_, codes := f.enroll(t)

	assert.Len(t, codes.BackupCodes, 10)
	assert.Len(t, codes.RecoveryCodes, 8)

	state, err := f.credRepo.Load(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorEnabled, state.Status)
	assert.NotNil(t, state.ConfirmedAt)
	assert.Equal(t, 10, models.UnusedCodes(state.BackupCodes))
	assert.Equal(t, 8, models.UnusedCodes(state.RecoveryCodes))

	user, err := f.userRepo.GetByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, user.TwoFactorEnabled)
	assert.NotNil(t, user.TwoFactorAt)
}

func TestConfirmSetupWrongToken(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)

	_, err = f.svc.ConfirmSetup(ctx, f.user.ID, "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	// Still pending, retries allowed
	state, err := f.credRepo.Load(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorPendingSetup, state.Status)
}

func TestConfirmSetupWithoutPending(t *testing.T) {
	f := newTwoFactorFixture(t)

	_, err := f.svc.ConfirmSetup(context.Background(), f.user.ID, "123456")
	assert.ErrorIs(t, err, models.ErrSetupNotPending)
}

func TestConfirmSetupExpired(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	material, err := f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)

	// Age the pending record past the TTL
	state, err := f.credRepo.Load(ctx, f.user.ID)
	require.NoError(t, err)
	state.CreatedAt = time.Now().Add(-16 * time.Minute)
	require.NoError(t, f.credRepo.Save(ctx, state))

	token, err := auth.CodeAt(material.Secret, time.Now())
	require.NoError(t, err)

	_, err = f.svc.ConfirmSetup(ctx, f.user.ID, token)
	assert.ErrorIs(t, err, models.ErrSetupExpired)

	// Expired setups are discarded entirely
	_, err = f.credRepo.Load(ctx, f.user.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestVerifyLoginWithTOTP(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	secret, _ := f.enroll(t)

	token, err := auth.CodeAt(secret, time.Now())
	require.NoError(t, err)

	method, err := f.svc.VerifyLogin(ctx, f.user.ID, token, "fp-1", "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, MethodTOTP, method)

	state, err := f.credRepo.Load(ctx, f.user.ID)
	require.NoError(t, err)
	assert.NotNil(t, state.LastUsedAt)
}

func TestVerifyLoginWithBackupCode(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	_, codes := f.enroll(t)
	code := codes.BackupCodes[0]

	method, err := f.svc.VerifyLogin(ctx, f.user.ID, code, "fp-1", "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, MethodBackup, method)

	// Single use: the same code never verifies again
	_, err = f.svc.VerifyLogin(ctx, f.user.ID, code, "fp-1", "192.0.2.1")
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	state, err := f.credRepo.Load(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, models.UnusedCodes(state.BackupCodes))
}

func TestVerifyLoginWithRecoveryCode(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	_, codes := f.enroll(t)
	code := codes.RecoveryCodes[0]

	method, err := f.svc.VerifyLogin(ctx, f.user.ID, code, "fp-1", "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, MethodRecovery, method)

	_, err = f.svc.VerifyLogin(ctx, f.user.ID, code, "fp-1", "192.0.2.1")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestVerifyLoginNotEnabled(t *testing.T) {
	f := newTwoFactorFixture(t)

	_, err := f.svc.VerifyLogin(context.Background(), f.user.ID, "123456", "fp-1", "192.0.2.1")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestVerifyLoginPendingSetupNotAccepted(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	material, err := f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)

	token, err := auth.CodeAt(material.Secret, time.Now())
	require.NoError(t, err)

	_, err = f.svc.VerifyLogin(ctx, f.user.ID, token, "fp-1", "192.0.2.1")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestVerifyLoginRateLimited(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	secret, _ := f.enroll(t)

	for i := 0; i < 5; i++ {
		_, err := f.svc.VerifyLogin(ctx, f.user.ID, "000000", "fp-1", "192.0.2.1")
		assert.ErrorIs(t, err, models.ErrInvalidCode)
	}

	// Sixth attempt is refused before verification, even with a valid token
	token, err := auth.CodeAt(secret, time.Now())
	require.NoError(t, err)

	_, err = f.svc.VerifyLogin(ctx, f.user.ID, token, "fp-1", "192.0.2.1")
	assert.ErrorIs(t, err, models.ErrRateLimited)
}

func TestDisableWithToken(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	secret, _ := f.enroll(t)

	token, err := auth.CodeAt(secret, time.Now())
	require.NoError(t, err)

	require.NoError(t, f.svc.Disable(ctx, f.user.ID, token))

	_, err = f.credRepo.Load(ctx, f.user.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	user, err := f.userRepo.GetByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, user.TwoFactorEnabled)
	assert.Nil(t, user.TwoFactorAt)

	// Back to square one: a fresh setup can begin
	_, err = f.svc.InitiateSetup(ctx, f.user.ID)
	assert.NoError(t, err)
}

func TestDisableWithBackupCode(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	_, codes := f.enroll(t)

	require.NoError(t, f.svc.Disable(ctx, f.user.ID, codes.BackupCodes[3]))
}

func TestDisableRejectsInvalidCode(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	f.enroll(t)

	err := f.svc.Disable(ctx, f.user.ID, "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	// Enrollment untouched
	state, err := f.credRepo.Load(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, state.Enabled())
}

func TestRegenerateBackupCodes(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	secret, codes := f.enroll(t)

	token, err := auth.CodeAt(secret, time.Now())
	require.NoError(t, err)

	fresh, err := f.svc.RegenerateBackupCodes(ctx, f.user.ID, token)
	require.NoError(t, err)
	assert.Len(t, fresh, 10)
	assert.NotEqual(t, codes.BackupCodes, fresh)

	// Old codes are invalidated wholesale
	_, err = f.svc.VerifyLogin(ctx, f.user.ID, codes.BackupCodes[0], "fp-1", "192.0.2.1")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestRegenerateRecoveryCodesRequiresToken(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	f.enroll(t)

	_, err := f.svc.RegenerateRecoveryCodes(ctx, f.user.ID, "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestStatus(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	info, err := f.svc.Status(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, info.Enabled)
	assert.Equal(t, models.TwoFactorNotConfigured, info.Status)

	_, err = f.svc.InitiateSetup(ctx, f.user.ID)
	require.NoError(t, err)

	info, err = f.svc.Status(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, info.Enabled)
	assert.Equal(t, models.TwoFactorPendingSetup, info.Status)

	f.enroll(t)

	info, err = f.svc.Status(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, info.Enabled)
	assert.Equal(t, models.TwoFactorEnabled, info.Status)
	assert.Equal(t, 10, info.BackupCodesRemaining)
	assert.Equal(t, 8, info.RecoveryCodesRemaining)
}
