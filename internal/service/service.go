package service

import (
	"context"
	"time"

	"github.com/solten/donations/internal/explorer"
	"github.com/solten/donations/internal/models"
	"github.com/solten/donations/internal/ratelimit"
	"github.com/solten/donations/utils"
)

const (
	monitorInterval  = 10 * time.Second
	pendingLifetime  = 24 * time.Hour
	expiredRetention = 7 * 24 * time.Hour

	// amountTolerance is the largest absolute difference between received
	// and expected BTC that still counts as paid in full.
	amountTolerance = 1e-5

	minDonationUSD = 1
	maxDonationUSD = 100000

	generateLimitInterval = 300 * time.Second
	checkLimitWindow      = 10 * time.Second
)

type Repository interface {
	GetNextDerivationIndex(ctx context.Context) (uint32, error)
	CreatePending(ctx context.Context, payment *models.PendingPayment) error
	GetPendingByAddress(ctx context.Context, address string) (*models.PendingPayment, error)
	CheckExistingSession(ctx context.Context, sessionID string, amountUSD float64, now time.Time) (*models.PendingPayment, error)
	AttachTx(ctx context.Context, address, txID string, detectedAt time.Time) error
	SetStatus(ctx context.Context, address, status string) error
	SetScheduledJob(ctx context.Context, address, jobID string) error
	MarkExpired(ctx context.Context, address, sessionID string) (bool, error)
	ExpireOverdue(ctx context.Context, status string, now time.Time) (int64, error)
	DeleteByStatus(ctx context.Context, status string) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CreateDonation(ctx context.Context, donation *models.Donation) (bool, error)
	ListRecentDonations(ctx context.Context, limit int) ([]models.Donation, error)
}

type PriceSource interface {
	Price(ctx context.Context) (float64, error)
}

type Probe interface {
	Probe(ctx context.Context, address string) explorer.Result
	RequiredConfirmations() int64
}

type Deriver interface {
	Derive(index uint32) (string, error)
}

type JobScheduler interface {
	RunAfter(d time.Duration, task func()) (string, error)
}

// Notifier receives confirmed donations. Implementations must not block the
// payment path for long; failures are the notifier's problem.
type Notifier interface {
	DonationConfirmed(donation *models.Donation, payment *models.PendingPayment)
}

type Service struct {
	repo     Repository
	oracle   PriceSource
	probe    Probe
	deriver  Deriver
	sched    JobScheduler
	notifier Notifier
	logger   *utils.Logger

	testnet bool

	genLimiter   *ratelimit.TokenBucket
	checkLimiter *ratelimit.FixedWindow

	now func() time.Time
}

func NewService(
	repo Repository,
	oracle PriceSource,
	probe Probe,
	deriver Deriver,
	sched JobScheduler,
	notifier Notifier,
	testnet bool,
	logger *utils.Logger,
) *Service {
	return &Service{
		repo:         repo,
		oracle:       oracle,
		probe:        probe,
		deriver:      deriver,
		sched:        sched,
		notifier:     notifier,
		logger:       logger,
		testnet:      testnet,
		genLimiter:   ratelimit.NewTokenBucket(generateLimitInterval, 1),
		checkLimiter: ratelimit.NewFixedWindow(checkLimitWindow, 1),
		now:          time.Now,
	}
}
