package repository

import (
	"context"
	"fmt"

	"github.com/solten/donations/internal/models"
	"gorm.io/gorm/clause"
)

// CreateDonation inserts the donation unless one already exists for the same
// payment id. The unique index on payment_id makes concurrent inserts safe:
// the first writer wins, later writers get false with no mutation.
func (r *Repository) CreateDonation(ctx context.Context, donation *models.Donation) (bool, error) {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(donation)

	if tx.Error != nil {
		return false, fmt.Errorf("failed to create donation for %s: %w", donation.PaymentID, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

func (r *Repository) ListRecentDonations(ctx context.Context, limit int) ([]models.Donation, error) {
	var donations []models.Donation
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&donations).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	return donations, nil
}
