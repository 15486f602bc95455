package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderauth/caldera/internal/auth"
	"github.com/calderauth/caldera/internal/models"
	"github.com/calderauth/caldera/internal/repositories"
	"github.com/calderauth/caldera/internal/services"
	"github.com/calderauth/caldera/pkg/password"
)

type handlerFixture struct {
	twoFactor *TwoFactorHandler
	authH     *AuthHandler
	tm        *auth.TokenManager
	userRepo  *repositories.MemoryUserRepository
	user      *models.User
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	totpMgr, err := auth.NewTOTPManager([]byte(strings.Repeat("k", 32)), "Caldera")
	require.NoError(t, err)

	tm := auth.NewTokenManager("a-sufficiently-long-test-secret", 15*time.Minute, 7*24*time.Hour, 5*time.Minute)
	timing := auth.NewTimingDelay(auth.TimingConfig{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	credRepo := repositories.NewMemoryCredentialRepository()
	attemptRepo := repositories.NewMemoryAttemptRepository()
	userRepo := repositories.NewMemoryUserRepository()

	hash, err := password.Hash("Curr3nt!Pass")
	require.NoError(t, err)

	user, err := userRepo.Create(context.Background(), &models.User{
		Email:        "user@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		Role:         models.RoleUser,
	})
	require.NoError(t, err)

	twoFactorSvc := services.NewTwoFactorService(credRepo, attemptRepo, userRepo, totpMgr, timing, logger, services.TwoFactorConfig{
		MaxAttempts:       5,
		AttemptWindow:     15 * time.Minute,
		BackupCodeCount:   10,
		RecoveryCodeCount: 8,
		SetupTTL:          15 * time.Minute,
		Window:            1,
	})
	authSvc := services.NewAuthService(userRepo, tm, timing, logger)

	return &handlerFixture{
		twoFactor: NewTwoFactorHandler(twoFactorSvc, authSvc, tm, 15*time.Minute, logger),
		authH:     NewAuthHandler(authSvc, logger),
		tm:        tm,
		userRepo:  userRepo,
		user:      user,
	}
}

func (f *handlerFixture) authedRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	access, err := f.tm.GenerateAccessToken(f.user.ID, f.user.Email, f.user.Role)
	require.NoError(t, err)

	req := jsonRequest(t, method, path, body)
	req.Header.Set("Authorization", "Bearer "+access)

	claims, err := f.tm.ValidateToken(access)
	require.NoError(t, err)
	return req.WithContext(auth.ContextWithUser(req.Context(), claims))
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// enrollViaHTTP drives the setup endpoints and returns the plaintext secret
// plus the issued bypass codes.
func (f *handlerFixture) enrollViaHTTP(t *testing.T) (string, ConfirmSetupResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	f.twoFactor.InitiateSetup(rec, f.authedRequest(t, http.MethodPost, "/2fa/setup", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var setup SetupResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&setup))
	require.NotEmpty(t, setup.Secret)

	token, err := auth.CodeAt(setup.Secret, time.Now())
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	f.twoFactor.ConfirmSetup(rec, f.authedRequest(t, http.MethodPost, "/2fa/setup/confirm", ConfirmSetupRequest{Token: token}))
	require.Equal(t, http.StatusOK, rec.Code)

	var confirm ConfirmSetupResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&confirm))
	return setup.Secret, confirm
}

func TestSetupFlow(t *testing.T) {
	f := newHandlerFixture(t)

	secret, confirm := f.enrollViaHTTP(t)

	assert.NotEmpty(t, secret)
	assert.True(t, confirm.Enabled)
	assert.Len(t, confirm.BackupCodes, 10)
	assert.Len(t, confirm.RecoveryCodes, 8)
}

func TestSetupResponseShape(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.twoFactor.InitiateSetup(rec, f.authedRequest(t, http.MethodPost, "/2fa/setup", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var setup SetupResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&setup))
	assert.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/"))
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	assert.Equal(t, setup.Secret, setup.ManualEntryKey)
	assert.True(t, setup.ExpiresAt.After(time.Now()))
}

func TestConfirmSetupRejectsMalformedToken(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.twoFactor.InitiateSetup(rec, f.authedRequest(t, http.MethodPost, "/2fa/setup", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	for _, token := range []string{"12345", "1234567", "abcdef", ""} {
		rec = httptest.NewRecorder()
		f.twoFactor.ConfirmSetup(rec, f.authedRequest(t, http.MethodPost, "/2fa/setup/confirm", ConfirmSetupRequest{Token: token}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "token %q", token)
	}
}

func TestLoginThenVerify(t *testing.T) {
	f := newHandlerFixture(t)

	secret, _ := f.enrollViaHTTP(t)

	// Password login yields a challenge, not a session
	rec := httptest.NewRecorder()
	f.authH.Login(rec, jsonRequest(t, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "user@example.com",
		Password: "Curr3nt!Pass",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var login LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	require.True(t, login.RequiresTwoFactor)
	require.NotEmpty(t, login.ChallengeToken)
	assert.Empty(t, login.AccessToken)

	// Token verification completes the login
	code, err := auth.CodeAt(secret, time.Now())
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	f.twoFactor.Verify(rec, jsonRequest(t, http.MethodPost, "/auth/2fa/verify", VerifyRequest{
		ChallengeToken: login.ChallengeToken,
		Code:           code,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var verify VerifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&verify))
	assert.NotEmpty(t, verify.AccessToken)
	assert.NotEmpty(t, verify.RefreshToken)
	assert.Equal(t, "totp", verify.Method)

	claims, err := f.tm.ValidateToken(verify.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeAccess, claims.Type)
}

func TestVerifyRejectsAccessTokenAsChallenge(t *testing.T) {
	f := newHandlerFixture(t)

	f.enrollViaHTTP(t)

	access, err := f.tm.GenerateAccessToken(f.user.ID, f.user.Email, f.user.Role)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.twoFactor.Verify(rec, jsonRequest(t, http.MethodPost, "/auth/2fa/verify", VerifyRequest{
		ChallengeToken: access,
		Code:           "123456",
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyWithBackupCode(t *testing.T) {
	f := newHandlerFixture(t)

	_, confirm := f.enrollViaHTTP(t)

	challenge, err := f.tm.GenerateChallengeToken(f.user.ID, f.user.Email, f.user.Role)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.twoFactor.Verify(rec, jsonRequest(t, http.MethodPost, "/auth/2fa/verify", VerifyRequest{
		ChallengeToken: challenge,
		Code:           confirm.BackupCodes[0],
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var verify VerifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&verify))
	assert.Equal(t, "backup_code", verify.Method)
}

func TestDisableEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	_, confirm := f.enrollViaHTTP(t)

	rec := httptest.NewRecorder()
	f.twoFactor.Disable(rec, f.authedRequest(t, http.MethodPost, "/2fa/disable", DisableRequest{
		Code: confirm.RecoveryCodes[0],
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	f.twoFactor.Status(rec, f.authedRequest(t, http.MethodGet, "/2fa/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.False(t, status.Enabled)
	assert.Equal(t, string(models.TwoFactorNotConfigured), status.Status)
}

func TestStatusEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	f.enrollViaHTTP(t)

	rec := httptest.NewRecorder()
	f.twoFactor.Status(rec, f.authedRequest(t, http.MethodGet, "/2fa/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.Enabled)
	assert.Equal(t, 10, status.BackupCodesRemaining)
	assert.Equal(t, 8, status.RecoveryCodesRemaining)
}

func TestRegenerateBackupCodesEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	secret, _ := f.enrollViaHTTP(t)

	token, err := auth.CodeAt(secret, time.Now())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.twoFactor.RegenerateBackupCodes(rec, f.authedRequest(t, http.MethodPost, "/2fa/backup-codes/regenerate", RegenerateCodesRequest{
		Token: token,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RegenerateCodesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Codes, 10)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.twoFactor.InitiateSetup(rec, jsonRequest(t, http.MethodPost, "/2fa/setup", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	f.twoFactor.Status(rec, jsonRequest(t, http.MethodGet, "/2fa/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
