package service

import (
	"fmt"
	"strings"
)

const (
	maxPlayerNameLen = 50
	maxMessageLen    = 500

	addressMinLen = 42
	addressMaxLen = 90
)

// Metadata is the optional donor-supplied decoration on a payment attempt.
type Metadata struct {
	PlayerName    string
	UsePlayerName bool
	Message       string
}

func validateAmountUSD(amount float64) error {
	if amount < minDonationUSD || amount > maxDonationUSD {
		return fmt.Errorf("%w: amount must be between %d and %d USD", ErrValidation, minDonationUSD, maxDonationUSD)
	}
	return nil
}

func validateMetadata(meta Metadata) error {
	if meta.PlayerName != "" && strings.TrimSpace(meta.PlayerName) == "" {
		return fmt.Errorf("%w: player name must not be blank", ErrValidation)
	}
	if len(meta.PlayerName) > maxPlayerNameLen {
		return fmt.Errorf("%w: player name too long", ErrValidation)
	}
	if meta.Message != "" && strings.TrimSpace(meta.Message) == "" {
		return fmt.Errorf("%w: message must not be blank", ErrValidation)
	}
	if len(meta.Message) > maxMessageLen {
		return fmt.Errorf("%w: message too long", ErrValidation)
	}
	return nil
}

// validateAddress is a bech32 shape check, not a checksum verification;
// malformed-but-well-shaped addresses are rejected downstream by the
// explorers.
func (s *Service) validateAddress(address string) error {
	prefix := "bc1"
	if s.testnet {
		prefix = "tb1"
	}

	if !strings.HasPrefix(address, prefix) {
		return fmt.Errorf("%w: address does not match network", ErrValidation)
	}
	if len(address) < addressMinLen || len(address) > addressMaxLen {
		return fmt.Errorf("%w: address length out of range", ErrValidation)
	}

	for _, r := range address[len(prefix):] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z':
		default:
			return fmt.Errorf("%w: address contains invalid characters", ErrValidation)
		}
		// bech32 excludes these from its data charset.
		if r == '1' || r == 'b' || r == 'i' || r == 'o' {
			return fmt.Errorf("%w: address contains invalid bech32 characters", ErrValidation)
		}
	}

	return nil
}
