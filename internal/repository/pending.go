package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solten/donations/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) CreatePending(ctx context.Context, payment *models.PendingPayment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create pending payment: %w", err)
	}
	return nil
}

func (r *Repository) GetPendingByAddress(ctx context.Context, address string) (*models.PendingPayment, error) {
	var payment models.PendingPayment
	err := r.db.WithContext(ctx).
		Where("address = ?", address).
		First(&payment).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending payment for %s: %w", address, err)
	}

	return &payment, nil
}

// CheckExistingSession is the idempotency lookup: the live (unexpired,
// non-terminal) attempt for the same session and USD amount, or nil.
func (r *Repository) CheckExistingSession(ctx context.Context, sessionID string, amountUSD float64, now time.Time) (*models.PendingPayment, error) {
	var payment models.PendingPayment
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND expected_amount_usd = ?", sessionID, amountUSD).
		Where("status IN ?", []string{models.StatusInitialized, models.StatusPending}).
		Where("expires_at > ?", now).
		First(&payment).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check existing session: %w", err)
	}

	return &payment, nil
}

// AttachTx records the first observed transaction for the address and moves
// an initialized row to pending. Rows already terminal are left alone;
// re-attaching the same txid to a pending row is a harmless rewrite.
func (r *Repository) AttachTx(ctx context.Context, address, txID string, detectedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("address = ? AND status IN ?", address, []string{models.StatusInitialized, models.StatusPending}).
		Updates(map[string]interface{}{
			"status":      models.StatusPending,
			"tx_id":       txID,
			"detected_at": detectedAt,
		}).Error

	if err != nil {
		return fmt.Errorf("failed to attach tx %s to %s: %w", txID, address, err)
	}
	return nil
}

func (r *Repository) SetStatus(ctx context.Context, address, status string) error {
	err := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("address = ?", address).
		Update("status", status).
		Error

	if err != nil {
		return fmt.Errorf("failed to set status %s on %s: %w", status, address, err)
	}
	return nil
}

func (r *Repository) SetScheduledJob(ctx context.Context, address, jobID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("address = ?", address).
		Update("scheduled_job_id", jobID).
		Error

	if err != nil {
		return fmt.Errorf("failed to set scheduled job on %s: %w", address, err)
	}
	return nil
}

// MarkExpired expires a still-initialized row owned by the session. Returns
// whether a row transitioned; any other state is a no-op, so the call is
// idempotent.
func (r *Repository) MarkExpired(ctx context.Context, address, sessionID string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("address = ? AND session_id = ? AND status = ?", address, sessionID, models.StatusInitialized).
		Update("status", models.StatusExpired)

	if tx.Error != nil {
		return false, fmt.Errorf("failed to mark %s expired: %w", address, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// ExpireOverdue transitions every row in the given status past its expiry to
// expired and returns how many moved.
func (r *Repository) ExpireOverdue(ctx context.Context, status string, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("status = ? AND expires_at < ?", status, now).
		Update("status", models.StatusExpired)

	if tx.Error != nil {
		return 0, fmt.Errorf("failed to expire overdue %s rows: %w", status, tx.Error)
	}
	return tx.RowsAffected, nil
}

// DeleteByStatus removes terminal rows wholesale; used for confirmed rows,
// whose donation is the authoritative record.
func (r *Repository) DeleteByStatus(ctx context.Context, status string) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("status = ?", status).
		Delete(&models.PendingPayment{})

	if tx.Error != nil {
		return 0, fmt.Errorf("failed to delete %s rows: %w", status, tx.Error)
	}
	return tx.RowsAffected, nil
}

// DeleteExpiredBefore removes expired rows whose window closed before the
// cutoff.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.StatusExpired, cutoff).
		Delete(&models.PendingPayment{})

	if tx.Error != nil {
		return 0, fmt.Errorf("failed to delete expired rows: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}
