package auth

import (
	"regexp"
	"testing"
	"time"

	"github.com/calderauth/caldera/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	backupCodeRe   = regexp.MustCompile(`^[0-9A-F]{8}$`)
	recoveryCodeRe = regexp.MustCompile(`^[0-9A-F]{6}-[0-9A-F]{6}-[0-9A-F]{6}$`)
)

func TestGenerateBackupCodes(t *testing.T) {
	tm := newTestManager(t)

	codes, err := tm.GenerateBackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	for _, code := range codes {
		assert.Regexp(t, backupCodeRe, code)
	}
}

func TestGenerateRecoveryCodes(t *testing.T) {
	tm := newTestManager(t)

	codes, err := tm.GenerateRecoveryCodes(8)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	for _, code := range codes {
		assert.Regexp(t, recoveryCodeRe, code)
	}
}

func TestConsumeCode_SingleUse(t *testing.T) {
	tm := newTestManager(t)
	now := time.Now()

	codes, err := tm.GenerateBackupCodes(3)
	require.NoError(t, err)

	entries := NewCodeEntries(codes, now)
	require.Equal(t, 3, models.UnusedCodes(entries))

	updated, ok := ConsumeCode(codes[1], entries, now)
	assert.True(t, ok)
	assert.Equal(t, 2, models.UnusedCodes(updated))

	// The original slice is untouched; consumption returns a copy
	assert.Equal(t, 3, models.UnusedCodes(entries))

	// Consuming the same code again must fail
	again, ok := ConsumeCode(codes[1], updated, now)
	assert.False(t, ok)
	assert.Equal(t, 2, models.UnusedCodes(again))

	// Other codes remain consumable
	updated, ok = ConsumeCode(codes[0], updated, now)
	assert.True(t, ok)
	assert.Equal(t, 1, models.UnusedCodes(updated))
}

func TestConsumeCode_Normalization(t *testing.T) {
	now := time.Now()
	entries := NewCodeEntries([]string{"A1B2C3D4"}, now)

	updated, ok := ConsumeCode("  a1b2c3d4 ", entries, now)
	assert.True(t, ok)
	assert.Equal(t, 0, models.UnusedCodes(updated))
}

func TestConsumeCode_NoMatch(t *testing.T) {
	now := time.Now()
	entries := NewCodeEntries([]string{"A1B2C3D4", "DEADBEEF"}, now)

	updated, ok := ConsumeCode("00000000", entries, now)
	assert.False(t, ok)
	assert.Equal(t, 2, models.UnusedCodes(updated))
}

func TestConsumeCode_EmptyPool(t *testing.T) {
	now := time.Now()

	_, ok := ConsumeCode("A1B2C3D4", nil, now)
	assert.False(t, ok)

	_, ok = ConsumeCode("A1B2C3D4", []models.CodeEntry{}, now)
	assert.False(t, ok)
}

func TestHashCode_Deterministic(t *testing.T) {
	assert.Equal(t, HashCode("A1B2C3D4"), HashCode("a1b2c3d4"))
	assert.NotEqual(t, HashCode("A1B2C3D4"), HashCode("A1B2C3D5"))
	assert.Len(t, HashCode("A1B2C3D4"), 64)
}
