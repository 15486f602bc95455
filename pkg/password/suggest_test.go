package password

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggest(t *testing.T) {
	suggestions, err := Suggest(12, 3)
	require.NoError(t, err)
	require.Len(t, suggestions, 3)

	seen := make(map[string]bool)
	for _, s := range suggestions {
		assert.Len(t, s.Password, 12)
		assert.Equal(t, StrengthStrong, s.Strength)
		assertAllClasses(t, s.Password)

		assert.False(t, seen[s.Password], "duplicate suggestion %q", s.Password)
		seen[s.Password] = true
	}
}

func TestSuggest_Defaults(t *testing.T) {
	// Below the minimum length falls back to the default
	suggestions, err := Suggest(4, 0)
	require.NoError(t, err)
	require.Len(t, suggestions, DefaultSuggestionCount)

	for _, s := range suggestions {
		assert.Len(t, s.Password, DefaultSuggestionLength)
	}
}

func TestSuggest_LongPasswords(t *testing.T) {
	suggestions, err := Suggest(32, 1)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	assert.Len(t, suggestions[0].Password, 32)
	assertAllClasses(t, suggestions[0].Password)
}

func assertAllClasses(t *testing.T, pw string) {
	t.Helper()

	hasLower := strings.IndexFunc(pw, unicode.IsLower) >= 0
	hasUpper := strings.IndexFunc(pw, unicode.IsUpper) >= 0
	hasDigit := strings.IndexFunc(pw, unicode.IsDigit) >= 0
	hasSpecial := strings.IndexFunc(pw, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}) >= 0

	assert.True(t, hasLower, "missing lowercase in %q", pw)
	assert.True(t, hasUpper, "missing uppercase in %q", pw)
	assert.True(t, hasDigit, "missing digit in %q", pw)
	assert.True(t, hasSpecial, "missing special in %q", pw)
}
