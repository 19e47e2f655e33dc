package models

import "time"

const (
	PaymentMethodStripe  = "stripe"
	PaymentMethodPayPal  = "paypal"
	PaymentMethodBitcoin = "bitcoin"
)

const (
	StatusInitialized = "initialized"
	StatusPending     = "pending"
	StatusConfirmed   = "confirmed"
	StatusExpired     = "expired"
)

// DerivationCounterKey is the name of the single counter row that hands out
// unique address derivation indices.
const DerivationCounterKey = "next_derivation_index"

// Donation is the terminal ledger record. Rows are created exactly once and
// never updated or deleted; PaymentID carries the receive address for Bitcoin
// donations and is unique across the ledger.
type Donation struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	AmountUSD     float64   `json:"amount"`
	DisplayName   string    `gorm:"size:50" json:"display_name"`
	PaymentID     string    `gorm:"uniqueIndex;size:128" json:"-"`
	PaymentMethod string    `gorm:"size:16" json:"-"`
	Message       string    `gorm:"size:500" json:"message,omitempty"`
	CreatedAt     time.Time `json:"-"`
}

// PendingPayment is an in-flight attempt to receive a Bitcoin donation at a
// derived address.
//
// Status moves initialized -> pending -> confirmed, with expired reachable
// from initialized and pending. confirmed and expired are terminal.
type PendingPayment struct {
	Address           string     `gorm:"primaryKey;size:128" json:"address"`
	SessionID         string     `gorm:"index:idx_pending_session;index:idx_session_amount;size:128" json:"session_id"`
	ExpectedAmountBTC float64    `json:"expected_amount_btc"`
	ExpectedAmountUSD float64    `gorm:"index:idx_session_amount" json:"expected_amount_usd"`
	ExchangeRate      float64    `json:"exchange_rate"`
	DerivationIndex   uint32     `json:"derivation_index"`
	PlayerName        string     `gorm:"size:50" json:"player_name,omitempty"`
	UsePlayerName     bool       `json:"use_player_name"`
	Message           string     `gorm:"size:500" json:"message,omitempty"`
	Status            string     `gorm:"index:idx_pending_status;index:idx_status_expires;size:16;default:initialized" json:"status"`
	TxID              string     `gorm:"size:64" json:"tx_id,omitempty"`
	DetectedAt        *time.Time `json:"detected_at,omitempty"`
	ScheduledJobID    string     `gorm:"size:36" json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `gorm:"index:idx_status_expires" json:"expires_at"`
}

// DisplayNameOrAnonymous resolves the name a donation should carry.
func (p *PendingPayment) DisplayNameOrAnonymous() string {
	if p.UsePlayerName && p.PlayerName != "" {
		return p.PlayerName
	}
	return "Anonymous"
}

func (p *PendingPayment) Terminal() bool {
	return p.Status == StatusConfirmed || p.Status == StatusExpired
}

// DerivationCounter is the single-row counter behind address index handout.
// Value only grows; every address handed out gets a distinct index.
type DerivationCounter struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value uint64
}
