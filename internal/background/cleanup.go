package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/calderauth/caldera/internal/repositories"
)

// CleanupManager periodically removes abandoned pending setups and old
// verification attempts
type CleanupManager struct {
	credRepo      repositories.CredentialRepository
	attemptRepo   repositories.AttemptRepository
	logger        *slog.Logger
	interval      time.Duration
	setupTTL      time.Duration
	attemptMaxAge time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	credRepo repositories.CredentialRepository,
	attemptRepo repositories.AttemptRepository,
	logger *slog.Logger,
	interval, setupTTL, attemptMaxAge time.Duration,
) *CleanupManager {
	return &CleanupManager{
		credRepo:      credRepo,
		attemptRepo:   attemptRepo,
		logger:        logger,
		interval:      interval,
		setupTTL:      setupTTL,
		attemptMaxAge: attemptMaxAge,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()

	expired, err := cm.credRepo.DeleteExpiredPending(cleanupCtx, now.Add(-cm.setupTTL))
	if err != nil {
		cm.logger.Error("failed to purge expired pending setups", slog.Any("error", err))
	} else if expired > 0 {
		cm.logger.Info("purged expired pending setups", slog.Int64("rows_deleted", expired))
	}

	attempts, err := cm.attemptRepo.DeleteOlderThan(cleanupCtx, now.Add(-cm.attemptMaxAge))
	if err != nil {
		cm.logger.Error("failed to purge old verification attempts", slog.Any("error", err))
	} else if attempts > 0 {
		cm.logger.Info("purged old verification attempts", slog.Int64("rows_deleted", attempts))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
