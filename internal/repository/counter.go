package repository

import (
	"context"
	"fmt"

	"github.com/solten/donations/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetNextDerivationIndex atomically bumps the counter row and returns the
// value it held before the bump. The UPDATE takes the row lock, so concurrent
// callers serialize on the store and every caller sees a distinct index.
func (r *Repository) GetNextDerivationIndex(ctx context.Context) (uint32, error) {
	var next uint32

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.DerivationCounter{Name: models.DerivationCounterKey, Value: 0}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.DerivationCounter{}).
			Where("name = ?", models.DerivationCounterKey).
			UpdateColumn("value", gorm.Expr("value + 1")).Error; err != nil {
			return err
		}

		var counter models.DerivationCounter
		if err := tx.Where("name = ?", models.DerivationCounterKey).First(&counter).Error; err != nil {
			return err
		}

		next = uint32(counter.Value - 1)
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to bump derivation counter: %w", err)
	}
	return next, nil
}
