package service

import (
	"context"
	"errors"

	"github.com/solten/donations/internal/explorer"
	"github.com/solten/donations/internal/models"
)

// MonitorPayment is one wake of the self-rescheduling monitor chain for a
// single address. It runs to completion and either reschedules itself in ten
// seconds or ends the chain.
//
// There is no cancel signal: when any actor deletes the row or drives it to a
// terminal status, the next wake observes that and returns.
//
// Unexpected store errors end the chain without rescheduling (no retry
// storms); the hourly cleanup expires the row eventually.
func (s *Service) MonitorPayment(address string, expectedBTC float64, derivationIndex uint32) {
	ctx := context.Background()

	payment, err := s.repo.GetPendingByAddress(ctx, address)
	if err != nil {
		s.logger.Errorf("monitor %s: failed to load payment: %v", address, err)
		return
	}
	if payment == nil || payment.Terminal() {
		return
	}

	if s.now().After(payment.ExpiresAt) {
		if err := s.repo.SetStatus(ctx, address, models.StatusExpired); err != nil {
			s.logger.Errorf("monitor %s: failed to expire: %v", address, err)
		}
		return
	}

	result := s.probe.Probe(ctx, address)
	switch result.State {
	case explorer.StateAPIFailed, explorer.StateNoPayment:
		s.scheduleMonitor(address, expectedBTC, derivationIndex)

	case explorer.StatePending:
		s.attachTxIfNeeded(ctx, payment, result.TxID)
		s.scheduleMonitor(address, expectedBTC, derivationIndex)

	case explorer.StateConfirmed:
		required := s.probe.RequiredConfirmations()
		if result.Confirmations < required {
			s.attachTxIfNeeded(ctx, payment, result.TxID)
			s.scheduleMonitor(address, expectedBTC, derivationIndex)
			return
		}

		s.attachTxIfNeeded(ctx, payment, result.TxID)

		// The monitor settles at the rate locked when the address was
		// generated; only the client-poll path requotes.
		if _, err := s.settleConfirmed(ctx, payment, result, required, false); err != nil {
			if errors.Is(err, ErrUnderpayment) || errors.Is(err, ErrValidation) {
				s.logger.Warnf("monitor %s: settlement ended the chain: %v", address, err)
			} else {
				s.logger.Errorf("monitor %s: settlement ended the chain: %v", address, err)
			}
		}
	}
}
