package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/calderauth/caldera/internal/auth"
	"github.com/calderauth/caldera/internal/models"
	"github.com/calderauth/caldera/internal/repositories"
	"github.com/calderauth/caldera/pkg/password"
)

// LoginResult is the outcome of a password login. When the account has
// two-factor enabled only the challenge token is set; the caller must
// complete verification before receiving session tokens.
type LoginResult struct {
	RequiresTwoFactor bool
	ChallengeToken    string
	AccessToken       string
	RefreshToken      string
	User              *models.User
}

// AuthService handles password login and token refresh
type AuthService struct {
	userRepo repositories.UserRepository
	tm       *auth.TokenManager
	timing   *auth.TimingDelay
	logger   *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repositories.UserRepository,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tm:       tm,
		timing:   timing,
		logger:   logger,
	}
}

// Login verifies email and password. Accounts with two-factor enabled get a
// short-lived challenge token instead of session tokens. Unknown emails and
// wrong passwords are indistinguishable in both response and timing.
func (s *AuthService) Login(ctx context.Context, email, candidate string) (*LoginResult, error) {
	start := time.Now()

	result, err := s.login(ctx, email, candidate)
	s.timing.WaitFrom(start, err == nil)
	return result, err
}

func (s *AuthService) login(ctx context.Context, email, candidate string) (*LoginResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		// Burn a comparison so missing accounts cost the same as wrong passwords
		_ = password.Compare("$2a$12$C6UzMDM.H6dfI/f/IKcEeO7ZBpcuBIpgJCBWhU7hC1ktx1GGg1u6.", candidate)
		return nil, models.ErrUnauthorized
	}

	if err := password.Compare(user.PasswordHash, candidate); err != nil {
		s.logger.Warn("failed login attempt", slog.String("user_id", user.ID))
		return nil, models.ErrUnauthorized
	}

	if user.TwoFactorEnabled {
		challenge, err := s.tm.GenerateChallengeToken(user.ID, user.Email, user.Role)
		if err != nil {
			s.logger.Error("failed to generate challenge token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.logger.Info("login pending two-factor", slog.String("user_id", user.ID))
		return &LoginResult{
			RequiresTwoFactor: true,
			ChallengeToken:    challenge,
			User:              user,
		}, nil
	}

	return s.issueSession(user)
}

// CompleteChallenge exchanges a verified challenge for session tokens. The
// two-factor code itself is checked by the caller before this runs.
func (s *AuthService) CompleteChallenge(ctx context.Context, claims *models.TokenClaims) (*LoginResult, error) {
	if claims.Type != models.TokenTypeChallenge {
		return nil, models.ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	return s.issueSession(user)
}

// Refresh exchanges a valid refresh token for a fresh token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tm.ValidateToken(refreshToken)
	if err != nil || claims.Type != models.TokenTypeRefresh {
		return nil, models.ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	return s.issueSession(user)
}

func (s *AuthService) issueSession(user *models.User) (*LoginResult, error) {
	access, err := s.tm.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refresh, err := s.tm.GenerateRefreshToken(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("session issued", slog.String("user_id", user.ID))
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	}, nil
}
