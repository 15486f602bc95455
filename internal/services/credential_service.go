package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/calderauth/caldera/internal/models"
	"github.com/calderauth/caldera/internal/repositories"
	"github.com/calderauth/caldera/pkg/password"
)

// CredentialService handles password changes under tiered policies
type CredentialService struct {
	userRepo repositories.UserRepository
	history  password.HistoryStore
	logger   *slog.Logger
}

// NewCredentialService creates a new credential service
func NewCredentialService(
	userRepo repositories.UserRepository,
	history password.HistoryStore,
	logger *slog.Logger,
) *CredentialService {
	return &CredentialService{
		userRepo: userRepo,
		history:  history,
		logger:   logger,
	}
}

// policyTierFor maps an account role to its password policy tier.
// Unknown roles get the base tier.
func policyTierFor(role string) string {
	switch role {
	case models.RoleAdmin:
		return password.TierAdmin
	case models.RoleSuperAdmin:
		return password.TierSuperAdmin
	default:
		return password.TierUser
	}
}

// ChangePassword rotates an account's password. The current password must
// verify, and the candidate must pass the role's policy, including the
// reuse-history check. The outgoing hash joins the history.
func (s *CredentialService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return models.ErrNotFound
	}

	if err := password.Compare(user.PasswordHash, currentPassword); err != nil {
		s.logger.Warn("password change with wrong current password",
			slog.String("user_id", userID))
		return models.ErrUnauthorized
	}

	policy := password.PolicyFor(policyTierFor(user.Role))
	decision, err := password.Apply(ctx, policy, newPassword, password.Context{
		AccountID: userID,
		History:   s.history,
	})
	if err != nil {
		s.logger.Error("policy evaluation failed", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !decision.Allowed {
		s.logger.Info("password rejected by policy",
			slog.String("user_id", userID),
			slog.String("policy", policy.Name),
			slog.String("reason", decision.Reason))
		return &password.Violation{Policy: policy.Name, Reason: decision.Reason}
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := time.Now()
	if err := s.userRepo.UpdatePassword(ctx, userID, hash, now); err != nil {
		s.logger.Error("failed to update password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	// The new hash enters the history so the reuse check covers the
	// current password as well as retired ones
	if err := s.history.Record(ctx, userID, hash, policy.MaxHistory); err != nil {
		s.logger.Error("failed to record password history", slog.Any("error", err))
	}

	s.logger.Info("password changed",
		slog.String("user_id", userID),
		slog.String("policy", policy.Name))
	return nil
}

// Evaluate runs strength validation and the account's tier policy against a
// candidate without changing anything. Used by the preflight endpoint so the
// account holder sees every violation before submitting.
func (s *CredentialService) Evaluate(ctx context.Context, userID, candidate string) (*password.StrengthResult, *password.Decision, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, models.ErrNotFound
	}

	result := password.ValidateStrength(candidate)

	policy := password.PolicyFor(policyTierFor(user.Role))
	decision, err := password.Apply(ctx, policy, candidate, password.Context{
		AccountID: userID,
		History:   s.history,
	})
	if err != nil {
		s.logger.Error("policy evaluation failed", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	return &result, &decision, nil
}

// Suggestions generates candidate passwords that satisfy every tier's
// character-class requirements.
func (s *CredentialService) Suggestions(length, count int) ([]password.Suggestion, error) {
	suggestions, err := password.Suggest(length, count)
	if err != nil {
		s.logger.Error("failed to generate suggestions", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return suggestions, nil
}
