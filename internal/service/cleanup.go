package service

import (
	"context"

	"github.com/solten/donations/internal/models"
)

type CleanupReport struct {
	ExpiredInitialized int64 `json:"expired_initialized"`
	ExpiredPending     int64 `json:"expired_pending"`
	DeletedConfirmed   int64 `json:"deleted_confirmed"`
	DeletedExpired     int64 `json:"deleted_expired"`
}

// CleanupExpired is the hourly sweep: overdue attempts become expired,
// confirmed rows are dropped (the donation is the authoritative record) and
// expired rows are kept for a week before deletion.
func (s *Service) CleanupExpired(ctx context.Context) (*CleanupReport, error) {
	now := s.now()
	report := &CleanupReport{}

	var err error
	if report.ExpiredInitialized, err = s.repo.ExpireOverdue(ctx, models.StatusInitialized, now); err != nil {
		return nil, err
	}
	if report.ExpiredPending, err = s.repo.ExpireOverdue(ctx, models.StatusPending, now); err != nil {
		return nil, err
	}
	if report.DeletedConfirmed, err = s.repo.DeleteByStatus(ctx, models.StatusConfirmed); err != nil {
		return nil, err
	}
	if report.DeletedExpired, err = s.repo.DeleteExpiredBefore(ctx, now.Add(-expiredRetention)); err != nil {
		return nil, err
	}

	s.logger.Infof("cleanup: expired %d initialized, %d pending; deleted %d confirmed, %d expired",
		report.ExpiredInitialized, report.ExpiredPending, report.DeletedConfirmed, report.DeletedExpired)

	return report, nil
}

// RecentDonations feeds the public donation list.
func (s *Service) RecentDonations(ctx context.Context, limit int) ([]models.Donation, error) {
	return s.repo.ListRecentDonations(ctx, limit)
}
