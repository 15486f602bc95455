package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/calderauth/caldera/internal/auth"
	"github.com/calderauth/caldera/internal/handlers"
	"github.com/calderauth/caldera/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	credentialHandler *handlers.CredentialHandler,
	tokenManager *auth.TokenManager,
) {
	authLimit := middleware.DefaultAuthRateLimit()
	sessionLimit := middleware.DefaultAuthenticatedRateLimit()

	// Public routes. Login and two-factor verification carry the tight
	// per-IP limit since they are the credential-guessing surface.
	router.With(middleware.RateLimitByIP(authLimit)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(authLimit)).Post("/auth/2fa/verify", twoFactorHandler.Verify)
	router.With(middleware.RateLimitByIP(authLimit)).Post("/auth/refresh", authHandler.Refresh)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByUserID(sessionLimit, "read"))
			r.Get("/2fa/status", twoFactorHandler.Status)
			r.Get("/credentials/password/suggestions", credentialHandler.Suggestions)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByUserID(sessionLimit, "write"))
			r.Post("/2fa/setup", twoFactorHandler.InitiateSetup)
			r.Post("/2fa/setup/confirm", twoFactorHandler.ConfirmSetup)
			r.Post("/2fa/disable", twoFactorHandler.Disable)
			r.Post("/2fa/backup-codes/regenerate", twoFactorHandler.RegenerateBackupCodes)
			r.Post("/2fa/recovery-codes/regenerate", twoFactorHandler.RegenerateRecoveryCodes)
			r.Post("/credentials/password", credentialHandler.ChangePassword)
			r.Post("/credentials/password/evaluate", credentialHandler.EvaluatePassword)
		})
	})
}
