// Package reputation implements the Reputation Engine (C12): a periodic
// per-app scan over 24h send/bounce/complaint activity that derives a
// throttle decision consumed by the email worker's send gate (§4.2 step 3,
// §4.10). Grounded on the reference queue manager's ticker-driven
// recoveryLoop/cleanupLoop pattern, retargeted from queue maintenance to a
// reputation recompute.
package reputation

import (
	"context"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/rs/zerolog"
)

// DefaultInterval is the spec's default scan cadence (§4.10: "default once
// per minute").
const DefaultInterval = time.Minute

// Engine recomputes and persists AppReputation for every app with recent
// activity.
type Engine struct {
	repo     *repository.ReputationRepository
	interval time.Duration
	logger   zerolog.Logger
}

// New constructs an Engine. interval <= 0 falls back to DefaultInterval.
func New(repo *repository.ReputationRepository, interval time.Duration, logger zerolog.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{repo: repo, interval: interval, logger: logger}
}

// Run blocks, recomputing reputation on a ticker until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := e.RunOnce(ctx); err != nil {
				e.logger.Error().Err(err).Msg("reputation scan failed")
			} else {
				e.logger.Debug().Int("apps", n).Msg("reputation scan complete")
			}
		}
	}
}

// RunOnce scans every app with activity in the last 24h and upserts its
// recomputed reputation, returning the number of apps scanned (an app whose
// activity counts fail to load is logged, skipped, and still counted).
func (e *Engine) RunOnce(ctx context.Context) (int, error) {
	appIDs, err := e.repo.ListActiveAppIDs(ctx)
	if err != nil {
		return 0, err
	}

	for _, appID := range appIDs {
		sent, bounced, complained, err := e.repo.ActivityCounts(ctx, appID)
		if err != nil {
			e.logger.Error().Err(err).Str("appId", appID.String()).Msg("failed to load activity counts")
			continue
		}

		bounceRate, complaintRate, score, throttled, reason := models.ComputeReputation(sent, bounced, complained)

		if err := e.repo.Upsert(ctx, &models.AppReputation{
			AppID:            appID,
			BounceRate24h:    bounceRate,
			ComplaintRate24h: complaintRate,
			Score:            score,
			Throttled:        throttled,
			ThrottleReason:   reason,
			UpdatedAt:        time.Now(),
		}); err != nil {
			e.logger.Error().Err(err).Str("appId", appID.String()).Msg("failed to upsert reputation")
		}
	}

	return len(appIDs), nil
}
