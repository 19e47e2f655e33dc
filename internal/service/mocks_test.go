package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/solten/donations/internal/explorer"
	"github.com/solten/donations/internal/models"
	"github.com/solten/donations/utils"
)

// mockRepo is an in-memory Repository with the same conditional-update
// semantics as the real store.
type mockRepo struct {
	mu           sync.Mutex
	counter      uint64
	counterCalls int
	payments     map[string]*models.PendingPayment
	donations    map[string]*models.Donation
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		payments:  make(map[string]*models.PendingPayment),
		donations: make(map[string]*models.Donation),
	}
}

func (m *mockRepo) GetNextDerivationIndex(ctx context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counterCalls++
	index := uint32(m.counter)
	m.counter++
	return index, nil
}

func (m *mockRepo) CreatePending(ctx context.Context, payment *models.PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *payment
	m.payments[payment.Address] = &copied
	return nil
}

func (m *mockRepo) GetPendingByAddress(ctx context.Context, address string) (*models.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[address]
	if !ok {
		return nil, nil
	}
	copied := *payment
	return &copied, nil
}

func (m *mockRepo) CheckExistingSession(ctx context.Context, sessionID string, amountUSD float64, now time.Time) (*models.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, payment := range m.payments {
		live := payment.Status == models.StatusInitialized || payment.Status == models.StatusPending
		if payment.SessionID == sessionID && payment.ExpectedAmountUSD == amountUSD && live && payment.ExpiresAt.After(now) {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) AttachTx(ctx context.Context, address, txID string, detectedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[address]
	if !ok {
		return nil
	}
	if payment.Status != models.StatusInitialized && payment.Status != models.StatusPending {
		return nil
	}
	payment.Status = models.StatusPending
	payment.TxID = txID
	payment.DetectedAt = &detectedAt
	return nil
}

func (m *mockRepo) SetStatus(ctx context.Context, address, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if payment, ok := m.payments[address]; ok {
		payment.Status = status
	}
	return nil
}

func (m *mockRepo) SetScheduledJob(ctx context.Context, address, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if payment, ok := m.payments[address]; ok {
		payment.ScheduledJobID = jobID
	}
	return nil
}

func (m *mockRepo) MarkExpired(ctx context.Context, address, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[address]
	if !ok || payment.SessionID != sessionID || payment.Status != models.StatusInitialized {
		return false, nil
	}
	payment.Status = models.StatusExpired
	return true, nil
}

func (m *mockRepo) ExpireOverdue(ctx context.Context, status string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, payment := range m.payments {
		if payment.Status == status && payment.ExpiresAt.Before(now) {
			payment.Status = models.StatusExpired
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) DeleteByStatus(ctx context.Context, status string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for address, payment := range m.payments {
		if payment.Status == status {
			delete(m.payments, address)
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for address, payment := range m.payments {
		if payment.Status == models.StatusExpired && payment.ExpiresAt.Before(cutoff) {
			delete(m.payments, address)
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) CreateDonation(ctx context.Context, donation *models.Donation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.donations[donation.PaymentID]; exists {
		return false, nil
	}
	copied := *donation
	m.donations[donation.PaymentID] = &copied
	return true, nil
}

func (m *mockRepo) ListRecentDonations(ctx context.Context, limit int) ([]models.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var donations []models.Donation
	for _, donation := range m.donations {
		donations = append(donations, *donation)
		if len(donations) == limit {
			break
		}
	}
	return donations, nil
}

func (m *mockRepo) payment(address string) *models.PendingPayment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[address]
}

func (m *mockRepo) donation(address string) *models.Donation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.donations[address]
}

type mockOracle struct {
	mu    sync.Mutex
	price float64
	err   error
	calls int
}

func (m *mockOracle) Price(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.price, nil
}

func (m *mockOracle) set(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = price
}

type mockProbe struct {
	mu       sync.Mutex
	result   explorer.Result
	required int64
	calls    int
}

func (m *mockProbe) Probe(ctx context.Context, address string) explorer.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result
}

func (m *mockProbe) RequiredConfirmations() int64 {
	if m.required == 0 {
		return 3
	}
	return m.required
}

type mockDeriver struct {
	mu      sync.Mutex
	errOnce map[uint32]error
}

// bech32-safe letters for synthetic addresses.
const addrAlphabet = "acdefghjkmnpqrstuvwxyz"

func testAddr(index uint32) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = addrAlphabet[index%uint32(len(addrAlphabet))]
		index /= uint32(len(addrAlphabet))
	}
	return "bc1q" + strings.Repeat("q", 32) + string(suffix)
}

func (m *mockDeriver) Derive(index uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errOnce[index]; ok {
		delete(m.errOnce, index)
		return "", err
	}
	return testAddr(index), nil
}

type mockScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (m *mockScheduler) RunAfter(d time.Duration, task func()) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	return "job-1", nil
}

func (m *mockScheduler) scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

type mockNotifier struct {
	mu    sync.Mutex
	calls int
}

func (m *mockNotifier) DonationConfirmed(donation *models.Donation, payment *models.PendingPayment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

func (m *mockNotifier) notified() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testEnv struct {
	svc      *Service
	repo     *mockRepo
	oracle   *mockOracle
	probe    *mockProbe
	deriver  *mockDeriver
	sched    *mockScheduler
	notifier *mockNotifier
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     newMockRepo(),
		oracle:   &mockOracle{price: 45000},
		probe:    &mockProbe{},
		deriver:  &mockDeriver{},
		sched:    &mockScheduler{},
		notifier: &mockNotifier{},
	}
	env.svc = NewService(env.repo, env.oracle, env.probe, env.deriver, env.sched, env.notifier, false, utils.InitLogger())
	return env
}
