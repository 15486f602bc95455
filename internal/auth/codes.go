package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/calderauth/caldera/internal/models"
)

// Single-use bypass codes come in two independent pools: backup codes
// (8 uppercase hex chars) and recovery codes (three dash-joined 6-hex
// groups). Both are stored hashed and consumed exactly once.

// GenerateBackupCodes generates count backup codes, each 4 random bytes
// rendered as 8 uppercase hex characters.
func (tm *TOTPManager) GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
		}
		codes[i] = fmt.Sprintf("%X", b)
	}
	return codes, nil
}

// GenerateRecoveryCodes generates count recovery codes formatted as three
// dash-joined groups of 6 uppercase hex characters.
func (tm *TOTPManager) GenerateRecoveryCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		b := make([]byte, 9)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
		}
		h := fmt.Sprintf("%X", b)
		codes[i] = h[0:6] + "-" + h[6:12] + "-" + h[12:18]
	}
	return codes, nil
}

// HashCode returns the SHA-256 hex digest of a normalized code, the form
// persisted in the account's code pools.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(NormalizeCode(code)))
	return hex.EncodeToString(sum[:])
}

// NormalizeCode uppercases and trims a submitted code before comparison.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewCodeEntries hashes a freshly generated batch into storable entries.
func NewCodeEntries(codes []string, now time.Time) []models.CodeEntry {
	entries := make([]models.CodeEntry, len(codes))
	for i, code := range codes {
		entries[i] = models.CodeEntry{
			CodeHash:  HashCode(code),
			CreatedAt: now,
		}
	}
	return entries
}

// ConsumeCode matches a submitted code against the unused entries in a pool.
// On a match it marks exactly one entry used and returns (updated, true);
// otherwise the pool is returned unchanged. Comparison is constant-time per
// entry, and every entry is inspected even after a match so timing does not
// reveal the matching position. A nil or empty pool never matches.
func ConsumeCode(submitted string, entries []models.CodeEntry, now time.Time) ([]models.CodeEntry, bool) {
	if len(entries) == 0 {
		return entries, false
	}

	submittedHash := []byte(HashCode(submitted))
	matchedAt := -1
	for i, entry := range entries {
		if entry.UsedAt != nil {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(entry.CodeHash), submittedHash) == 1 && matchedAt < 0 {
			matchedAt = i
		}
	}

	if matchedAt < 0 {
		return entries, false
	}

	updated := make([]models.CodeEntry, len(entries))
	copy(updated, entries)
	used := now
	updated[matchedAt].UsedAt = &used
	return updated, true
}
