package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/sketchforge/internal/store"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// CheckUserQuota returns the user's quota after applying any calendar
// rollover. The quota is created with the default limits on first use.
func (t *Tracker) CheckUserQuota(ctx context.Context, userID string) (models.QuotaCheck, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.loadQuota(ctx, userID)
	if err != nil {
		return models.QuotaCheck{}, err
	}
	return newQuotaCheck(q), nil
}

// IncrementUserUsage counts one sketch against the user's daily and monthly
// usage without checking the limits. Submissions go through
// ReserveUserQuota instead.
func (t *Tracker) IncrementUserUsage(ctx context.Context, userID string) (models.QuotaCheck, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.loadQuota(ctx, userID)
	if err != nil {
		return models.QuotaCheck{}, err
	}
	return t.adjustUsage(ctx, q, 1)
}

// ReserveUserQuota atomically checks the user's quota and counts one sketch
// against it. It fails with ErrQuotaExceeded, leaving usage untouched, when
// either period is used up.
func (t *Tracker) ReserveUserQuota(ctx context.Context, userID string) (models.QuotaCheck, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.loadQuota(ctx, userID)
	if err != nil {
		return models.QuotaCheck{}, err
	}
	if check := newQuotaCheck(q); !check.Allowed {
		return check, fmt.Errorf("%w: user %s has %d daily and %d monthly sketches left",
			ErrQuotaExceeded, userID, check.DailyRemaining, check.MonthlyRemaining)
	}
	return t.adjustUsage(ctx, q, 1)
}

// ReleaseUserQuota returns a reservation whose sketch never got queued.
// Counters do not go below zero, so a release after a rollover is a no-op.
func (t *Tracker) ReleaseUserQuota(ctx context.Context, userID string) (models.QuotaCheck, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.loadQuota(ctx, userID)
	if err != nil {
		return models.QuotaCheck{}, err
	}
	return t.adjustUsage(ctx, q, -1)
}

// adjustUsage adds delta to both counters, flooring at zero, and saves q.
// Callers hold mu.
func (t *Tracker) adjustUsage(ctx context.Context, q *models.UserQuota, delta int) (models.QuotaCheck, error) {
	q.DailyUsed = max(q.DailyUsed+delta, 0)
	q.MonthlyUsed = max(q.MonthlyUsed+delta, 0)
	if err := t.store.SaveQuota(ctx, q); err != nil {
		return models.QuotaCheck{}, fmt.Errorf("save quota %s: %w", q.UserID, err)
	}
	return newQuotaCheck(q), nil
}

// loadQuota fetches or creates the user's quota and resets counters whose
// calendar period has ended. Callers hold mu.
func (t *Tracker) loadQuota(ctx context.Context, userID string) (*models.UserQuota, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	now := t.now().UTC()

	q, err := t.store.GetQuota(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		q = &models.UserQuota{
			UserID:       userID,
			DailyLimit:   t.dailyLimit,
			MonthlyLimit: t.monthlyLimit,
			LastReset:    now,
		}
		if err := t.store.SaveQuota(ctx, q); err != nil {
			return nil, fmt.Errorf("create quota %s: %w", userID, err)
		}
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quota %s: %w", userID, err)
	}

	if rollover(q, now) {
		if err := t.store.SaveQuota(ctx, q); err != nil {
			return nil, fmt.Errorf("reset quota %s: %w", userID, err)
		}
		t.logger.Debug("quota period rolled over", "user_id", userID)
	}
	return q, nil
}

// rollover zeroes DailyUsed when now falls on a later calendar day than
// LastReset and MonthlyUsed when it falls in a later month. Days and months
// are UTC.
func rollover(q *models.UserQuota, now time.Time) bool {
	if !now.After(q.LastReset) {
		return false
	}
	ly, lm, ld := q.LastReset.UTC().Date()
	ny, nm, nd := now.UTC().Date()

	newMonth := ly != ny || lm != nm
	newDay := newMonth || ld != nd
	if !newDay {
		return false
	}
	q.DailyUsed = 0
	if newMonth {
		q.MonthlyUsed = 0
	}
	q.LastReset = now
	return true
}

func newQuotaCheck(q *models.UserQuota) models.QuotaCheck {
	daily := max(q.DailyLimit-q.DailyUsed, 0)
	monthly := max(q.MonthlyLimit-q.MonthlyUsed, 0)
	return models.QuotaCheck{
		Allowed:          daily > 0 && monthly > 0,
		DailyRemaining:   daily,
		MonthlyRemaining: monthly,
		Quota:            *q,
	}
}
