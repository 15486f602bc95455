package models

import (
	"time"
)

// TwoFactorStatus tracks the per-account enrollment lifecycle:
// not_configured -> pending_setup -> enabled -> not_configured.
type TwoFactorStatus string

const (
	TwoFactorNotConfigured TwoFactorStatus = "not_configured"
	TwoFactorPendingSetup  TwoFactorStatus = "pending_setup"
	TwoFactorEnabled       TwoFactorStatus = "enabled"
)

// CodeEntry is a single-use bypass code stored as a SHA-256 hash.
// A non-nil UsedAt means the code can never verify again.
type CodeEntry struct {
	CodeHash  string     `json:"code_hash"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// CredentialState is the persisted two-factor record for one account.
// The TOTP secret is stored AES-256-GCM encrypted with a per-secret nonce.
type CredentialState struct {
	UserID          string
	Status          TwoFactorStatus
	SecretEncrypted []byte
	SecretNonce     []byte // GCM nonce (12 bytes)
	BackupCodes     []CodeEntry
	RecoveryCodes   []CodeEntry
	LastUsedAt      *time.Time
	CreatedAt       time.Time
	ConfirmedAt     *time.Time // When the first token verified
	UpdatedAt       time.Time
}

// Enabled reports whether the account completed enrollment.
func (s *CredentialState) Enabled() bool {
	return s.Status == TwoFactorEnabled
}

// SetupExpired reports whether an unconfirmed enrollment outlived its TTL.
func (s *CredentialState) SetupExpired(ttl time.Duration, now time.Time) bool {
	return s.Status == TwoFactorPendingSetup && now.After(s.CreatedAt.Add(ttl))
}

// UnusedCodes counts the remaining consumable entries in a code pool.
func UnusedCodes(entries []CodeEntry) int {
	n := 0
	for _, e := range entries {
		if e.UsedAt == nil {
			n++
		}
	}
	return n
}

// VerificationAttempt records one two-factor verification attempt for rate limiting
type VerificationAttempt struct {
	ID                string
	UserID            string
	DeviceFingerprint string
	IPAddress         string
	Success           bool
	FailureReason     *string
	AttemptedAt       time.Time
}

// TwoFactorStatusInfo is the read-model returned by the status endpoint
type TwoFactorStatusInfo struct {
	Enabled                bool            `json:"enabled"`
	Status                 TwoFactorStatus `json:"status"`
	ConfirmedAt            *time.Time      `json:"confirmed_at"`
	BackupCodesRemaining   int             `json:"backup_codes_remaining"`
	RecoveryCodesRemaining int             `json:"recovery_codes_remaining"`
}
