package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/solten/donations/internal/explorer"
	"github.com/solten/donations/internal/models"
	"github.com/solten/donations/internal/wallet"
	"github.com/solten/donations/utils"
)

type GenerateResult struct {
	Address         string    `json:"address"`
	AmountBTC       float64   `json:"amount_btc"`
	AmountUSD       float64   `json:"amount_usd"`
	ExchangeRate    float64   `json:"exchange_rate"`
	DerivationIndex uint32    `json:"derivation_index"`
	PaymentURI      string    `json:"payment_uri"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type CheckResult struct {
	Paid                  bool    `json:"paid"`
	Confirmed             bool    `json:"confirmed"`
	TxHash                string  `json:"tx_hash,omitempty"`
	AmountBTC             float64 `json:"amount_btc,omitempty"`
	Confirmations         int64   `json:"confirmations"`
	RequiredConfirmations int64   `json:"required_confirmations,omitempty"`
	AmountUSD             float64 `json:"amount_usd,omitempty"`
}

// GenerateAddress prices the donation, hands out a fresh derived address and
// starts the monitor chain for it.
//
// The idempotency lookup runs before the rate limit on purpose: a client
// retrying the same (session, amount) gets its existing address back without
// burning a token.
func (s *Service) GenerateAddress(ctx context.Context, amountUSD float64, sessionID string, meta Metadata) (*GenerateResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if err := validateAmountUSD(amountUSD); err != nil {
		return nil, err
	}
	if err := validateMetadata(meta); err != nil {
		return nil, err
	}

	existing, err := s.repo.CheckExistingSession(ctx, sessionID, amountUSD, s.now())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.regenerateResult(ctx, amountUSD, existing), nil
	}

	if !s.genLimiter.Allow(sessionID) {
		return nil, ErrRateLimited
	}

	price, err := s.oracle.Price(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	amountBTC := utils.RoundTo(amountUSD/price, 8)

	address, index, err := s.deriveFresh(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	payment := &models.PendingPayment{
		Address:           address,
		SessionID:         sessionID,
		ExpectedAmountBTC: amountBTC,
		ExpectedAmountUSD: amountUSD,
		ExchangeRate:      price,
		DerivationIndex:   index,
		PlayerName:        meta.PlayerName,
		UsePlayerName:     meta.UsePlayerName,
		Message:           meta.Message,
		Status:            models.StatusInitialized,
		CreatedAt:         now,
		ExpiresAt:         now.Add(pendingLifetime),
	}
	if err := s.repo.CreatePending(ctx, payment); err != nil {
		return nil, err
	}

	s.scheduleMonitor(address, amountBTC, index)

	s.logger.Infof("generated address %s (index %d) for session %s: %.8f BTC at %.2f USD/BTC",
		address, index, sessionID, amountBTC, price)

	return &GenerateResult{
		Address:         address,
		AmountBTC:       amountBTC,
		AmountUSD:       amountUSD,
		ExchangeRate:    price,
		DerivationIndex: index,
		PaymentURI:      paymentURI(address, amountBTC, payment.DisplayNameOrAnonymous(), payment.Message),
		ExpiresAt:       payment.ExpiresAt,
	}, nil
}

// regenerateResult answers a repeat GenerateAddress with the existing address
// but a freshly quoted BTC amount, so the QR stays accurate if BTC moved.
func (s *Service) regenerateResult(ctx context.Context, amountUSD float64, existing *models.PendingPayment) *GenerateResult {
	price, err := s.oracle.Price(ctx)
	if err != nil {
		price = existing.ExchangeRate
	}
	amountBTC := utils.RoundTo(amountUSD/price, 8)

	return &GenerateResult{
		Address:         existing.Address,
		AmountBTC:       amountBTC,
		AmountUSD:       amountUSD,
		ExchangeRate:    price,
		DerivationIndex: existing.DerivationIndex,
		PaymentURI:      paymentURI(existing.Address, amountBTC, existing.DisplayNameOrAnonymous(), existing.Message),
		ExpiresAt:       existing.ExpiresAt,
	}
}

// deriveFresh bumps the counter and derives the address, retrying with the
// next index on the astronomically rare invalid-scalar child.
func (s *Service) deriveFresh(ctx context.Context) (string, uint32, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		index, err := s.repo.GetNextDerivationIndex(ctx)
		if err != nil {
			return "", 0, err
		}

		address, err := s.deriver.Derive(index)
		if err == nil {
			return address, index, nil
		}
		if !errors.Is(err, wallet.ErrDerivationFailure) {
			return "", 0, err
		}

		s.logger.Warnf("derivation index %d produced an invalid child, retrying", index)
		lastErr = err
	}
	return "", 0, lastErr
}

// CheckPayment is the client-poll detection path. It converges on the same
// outcome as the background monitor; the donation insert is idempotent, so
// running both concurrently is safe.
func (s *Service) CheckPayment(ctx context.Context, address, sessionID string) (*CheckResult, error) {
	if err := s.validateAddress(address); err != nil {
		return nil, err
	}

	payment, err := s.validateSessionOwns(ctx, address, sessionID)
	if err != nil {
		return nil, err
	}

	if !s.checkLimiter.Allow(sessionID) {
		return nil, ErrRateLimited
	}

	required := s.probe.RequiredConfirmations()

	if payment.Status == models.StatusConfirmed {
		return &CheckResult{
			Paid:                  true,
			Confirmed:             true,
			TxHash:                payment.TxID,
			AmountBTC:             payment.ExpectedAmountBTC,
			Confirmations:         required,
			RequiredConfirmations: required,
		}, nil
	}

	result := s.probe.Probe(ctx, address)
	switch result.State {
	case explorer.StateAPIFailed, explorer.StateNoPayment:
		// Transient or nothing yet; the client just polls again.
		return &CheckResult{Paid: false}, nil

	case explorer.StatePending:
		s.attachTxIfNeeded(ctx, payment, result.TxID)
		return &CheckResult{
			Paid:                  true,
			TxHash:                result.TxID,
			AmountBTC:             result.AmountBTC,
			Confirmations:         0,
			RequiredConfirmations: required,
		}, nil

	default: // StateConfirmed
		s.attachTxIfNeeded(ctx, payment, result.TxID)
		if result.Confirmations < required {
			return &CheckResult{
				Paid:                  true,
				TxHash:                result.TxID,
				AmountBTC:             result.AmountBTC,
				Confirmations:         result.Confirmations,
				RequiredConfirmations: required,
			}, nil
		}

		return s.settleConfirmed(ctx, payment, result, required, true)
	}
}

// settleConfirmed runs the shared endgame for a fully confirmed transaction:
// tolerance check, USD amount, bounds, idempotent donation insert, terminal
// status. freshRate selects the client-poll behavior of requoting at the
// current price instead of the rate locked at generation time.
func (s *Service) settleConfirmed(ctx context.Context, payment *models.PendingPayment, result explorer.Result, required int64, freshRate bool) (*CheckResult, error) {
	// Amounts are 8-decimal quantities; rounding the difference keeps the
	// exact-tolerance boundary deterministic.
	shortfall := utils.RoundTo(payment.ExpectedAmountBTC-result.AmountBTC, 8)
	if shortfall > amountTolerance {
		s.logger.Warnf("underpayment on %s: expected %.8f, received %.8f BTC",
			payment.Address, payment.ExpectedAmountBTC, result.AmountBTC)
		if err := s.repo.SetStatus(ctx, payment.Address, models.StatusExpired); err != nil {
			return nil, err
		}
		return nil, ErrUnderpayment
	}
	if -shortfall > amountTolerance {
		s.logger.Infof("overpayment accepted on %s: expected %.8f, received %.8f BTC",
			payment.Address, payment.ExpectedAmountBTC, result.AmountBTC)
	}

	rate := payment.ExchangeRate
	if freshRate {
		if current, err := s.oracle.Price(ctx); err == nil {
			rate = current
		}
	}
	amountUSD := utils.RoundTo(result.AmountBTC*rate, 2)

	if err := validateAmountUSD(amountUSD); err != nil {
		s.logger.Warnf("confirmed amount on %s is outside donation bounds: %.2f USD", payment.Address, amountUSD)
		if statusErr := s.repo.SetStatus(ctx, payment.Address, models.StatusExpired); statusErr != nil {
			return nil, statusErr
		}
		return nil, err
	}

	donation := &models.Donation{
		ID:            uuid.NewString(),
		AmountUSD:     amountUSD,
		DisplayName:   payment.DisplayNameOrAnonymous(),
		PaymentID:     payment.Address,
		PaymentMethod: models.PaymentMethodBitcoin,
		Message:       payment.Message,
	}

	created, err := s.repo.CreateDonation(ctx, donation)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Infof("donation for %s already recorded", payment.Address)
	}

	if err := s.repo.SetStatus(ctx, payment.Address, models.StatusConfirmed); err != nil {
		return nil, err
	}

	if created && s.notifier != nil {
		s.notifier.DonationConfirmed(donation, payment)
	}

	s.logger.Infof("payment confirmed on %s: %.8f BTC -> %.2f USD (tx %s)",
		payment.Address, result.AmountBTC, amountUSD, result.TxID)

	return &CheckResult{
		Paid:                  true,
		Confirmed:             true,
		TxHash:                result.TxID,
		AmountBTC:             result.AmountBTC,
		Confirmations:         result.Confirmations,
		RequiredConfirmations: required,
		AmountUSD:             amountUSD,
	}, nil
}

// MarkExpired is the client-signalled timeout: it expires a still-initialized
// attempt and is a no-op for every other state, which makes it idempotent.
func (s *Service) MarkExpired(ctx context.Context, address, sessionID string) error {
	payment, err := s.repo.GetPendingByAddress(ctx, address)
	if err != nil {
		return err
	}
	if payment == nil || payment.SessionID != sessionID {
		return ErrNotOwned
	}

	expired, err := s.repo.MarkExpired(ctx, address, sessionID)
	if err != nil {
		return err
	}
	if expired {
		s.logger.Infof("payment %s expired by client", address)
	}
	return nil
}

func (s *Service) validateSessionOwns(ctx context.Context, address, sessionID string) (*models.PendingPayment, error) {
	payment, err := s.repo.GetPendingByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.SessionID != sessionID {
		return nil, ErrNotOwned
	}
	if payment.Status == models.StatusExpired {
		return nil, ErrExpired
	}
	if payment.Status == models.StatusInitialized && s.now().After(payment.ExpiresAt) {
		return nil, ErrExpired
	}
	return payment, nil
}

func (s *Service) attachTxIfNeeded(ctx context.Context, payment *models.PendingPayment, txID string) {
	if txID == "" || payment.TxID == txID {
		return
	}
	if err := s.repo.AttachTx(ctx, payment.Address, txID, s.now()); err != nil {
		s.logger.Errorf("failed to attach tx %s to %s: %v", txID, payment.Address, err)
		return
	}
	payment.TxID = txID
}

// scheduleMonitor enqueues the next monitor wake and persists the job id.
// Scheduling failures are logged and absorbed; the hourly cleanup eventually
// expires rows whose chain died.
func (s *Service) scheduleMonitor(address string, expectedBTC float64, index uint32) {
	jobID, err := s.sched.RunAfter(monitorInterval, func() {
		s.MonitorPayment(address, expectedBTC, index)
	})
	if err != nil {
		s.logger.Errorf("failed to schedule monitor for %s: %v", address, err)
		return
	}

	if err := s.repo.SetScheduledJob(context.Background(), address, jobID); err != nil {
		s.logger.Warnf("failed to persist job id for %s: %v", address, err)
	}
}

// paymentURI renders the BIP21 URI encoded into the payment QR.
func paymentURI(address string, amountBTC float64, label, message string) string {
	params := url.Values{}
	params.Set("amount", strconv.FormatFloat(amountBTC, 'f', -1, 64))
	if label != "" {
		params.Set("label", label)
	}
	if message != "" {
		params.Set("message", message)
	}
	return fmt.Sprintf("bitcoin:%s?%s", address, params.Encode())
}
