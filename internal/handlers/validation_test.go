package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest_Valid(t *testing.T) {
	assert.NoError(t, ValidateRequest(LoginRequest{
		Email:    "alice@example.com",
		Password: "Str0ng!Passw0rd",
	}))
	assert.NoError(t, ValidateRequest(ConfirmSetupRequest{Token: "123456"}))
}

func TestValidateRequest_ReportsAllFieldErrors(t *testing.T) {
	err := ValidateRequest(LoginRequest{Email: "not-an-email"})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "Email must be a valid email address")
	assert.Contains(t, msg, "Password is required")
}

func TestValidateRequest_TokenShape(t *testing.T) {
	err := ValidateRequest(ConfirmSetupRequest{Token: "12345"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be exactly 6 characters")

	err = ValidateRequest(ConfirmSetupRequest{Token: "abcdef"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must contain only digits")
}

func TestValidateRequest_CodeLengthBounds(t *testing.T) {
	err := ValidateRequest(VerifyRequest{ChallengeToken: "tok", Code: "12345"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Code must be at least 6 characters")

	err = ValidateRequest(VerifyRequest{ChallengeToken: "tok", Code: "123456789012345678901"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Code must be at most 20 characters")
}
