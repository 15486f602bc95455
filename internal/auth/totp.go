package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// ErrGeneration indicates the entropy source failed during secret or code
// generation. Fatal for the enrollment in progress; the caller must abort.
var ErrGeneration = errors.New("failed to generate secret material")

// DefaultWindow accepts tokens from the current time-step and one adjacent
// step on each side, tolerating up to 30s of clock drift.
const DefaultWindow = 1

// TOTPManager generates and verifies time-based one-time passwords and
// encrypts secrets for storage
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string // Issuer name shown in authenticator apps
}

// EnrollmentMaterial is everything the account holder needs to register the
// secret with an authenticator app. Never persisted and never logged.
type EnrollmentMaterial struct {
	Secret          string // base32, no padding
	ProvisioningURI string // otpauth://totp/...
	ManualEntryKey  string // same secret, for apps without a camera
	QRCode          string // data:image/png;base64,... rendering of the URI
}

// NewTOTPManager creates a new TOTP manager.
// encryptionKey must be exactly 32 bytes for AES-256.
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
	}, nil
}

// GenerateSecret creates a fresh 20-byte secret for an account and renders
// the provisioning URI plus its QR code. The label is display-only.
func (tm *TOTPManager) GenerateSecret(accountEmail string) (*EnrollmentMaterial, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		SecretSize:  20, // 160 bits, RFC 4226 recommendation
		Period:      TokenPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	uri := key.URL()
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &EnrollmentMaterial{
		Secret:          key.Secret(),
		ProvisioningURI: uri,
		ManualEntryKey:  key.Secret(),
		QRCode:          "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// VerifyToken checks a submitted 6-digit token against the secret, accepting
// the current time-step plus `window` adjacent steps on each side. Malformed
// secrets and non-numeric tokens verify as false; no error escapes here.
func (tm *TOTPManager) VerifyToken(token, secret string, window int) bool {
	return tm.VerifyTokenAt(token, secret, time.Now(), window)
}

// VerifyTokenAt is VerifyToken anchored to an explicit instant.
func (tm *TOTPManager) VerifyTokenAt(token, secret string, at time.Time, window int) bool {
	if len(token) != TokenDigits || !isDigits(token) {
		return false
	}
	if window < 0 {
		window = DefaultWindow
	}

	key, err := DecodeSecret(secret)
	if err != nil {
		return false
	}

	counter := timeCounter(at)
	matched := false
	for offset := -window; offset <= window; offset++ {
		candidate := hotp(key, uint64(counter+int64(offset)), TokenDigits)
		// Check every offset regardless of earlier matches so verification
		// time does not depend on which step matched.
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			matched = true
		}
	}

	return matched
}

// EncryptSecret encrypts a TOTP secret with AES-256-GCM.
// Returns (ciphertext, nonce, error).
func (tm *TOTPManager) EncryptSecret(secret string) ([]byte, []byte, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(secret), nil)
	return ciphertext, nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret.
func (tm *TOTPManager) DecryptSecret(encrypted, nonce []byte) (string, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
