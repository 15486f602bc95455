package handlers

import "time"

// Auth

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	RequiresTwoFactor bool             `json:"requires_two_factor"`
	ChallengeToken    string           `json:"challenge_token,omitempty"`
	AccessToken       string           `json:"access_token,omitempty"`
	RefreshToken      string           `json:"refresh_token,omitempty"`
	User              *UserResponseDTO `json:"user,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type UserResponseDTO struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// Two-factor

type ConfirmSetupRequest struct {
	Token string `json:"token" validate:"required,len=6,numeric"`
}

type SetupResponse struct {
	Secret          string    `json:"secret"`
	ProvisioningURI string    `json:"provisioning_uri"`
	ManualEntryKey  string    `json:"manual_entry_key"`
	QRCode          string    `json:"qr_code"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type ConfirmSetupResponse struct {
	Enabled       bool     `json:"enabled"`
	BackupCodes   []string `json:"backup_codes"`
	RecoveryCodes []string `json:"recovery_codes"`
	Message       string   `json:"message"`
}

type VerifyRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,min=6,max=20"`
}

type VerifyResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	Method       string           `json:"method"`
	User         *UserResponseDTO `json:"user"`
}

type DisableRequest struct {
	Code string `json:"code" validate:"required,min=6,max=20"`
}

type DisableResponse struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

type RegenerateCodesRequest struct {
	Token string `json:"token" validate:"required,len=6,numeric"`
}

type RegenerateCodesResponse struct {
	Codes []string `json:"codes"`
}

type StatusResponse struct {
	Enabled                bool       `json:"enabled"`
	Status                 string     `json:"status"`
	ConfirmedAt            *time.Time `json:"confirmed_at,omitempty"`
	BackupCodesRemaining   int        `json:"backup_codes_remaining"`
	RecoveryCodesRemaining int        `json:"recovery_codes_remaining"`
}

// Credentials

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
}

type ChangePasswordResponse struct {
	Message string `json:"message"`
}

type EvaluatePasswordRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

type EvaluatePasswordResponse struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Strength string   `json:"strength"`
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason,omitempty"`
}

type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}
