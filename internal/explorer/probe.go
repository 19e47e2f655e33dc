package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/solten/donations/utils"
)

type State int

const (
	// StateAPIFailed means every explorer was unreachable or returned
	// garbage; the caller should retry later.
	StateAPIFailed State = iota
	// StateNoPayment means an explorer answered and nothing credits the
	// address yet.
	StateNoPayment
	// StatePending means a transaction is visible but not yet in a block.
	StatePending
	// StateConfirmed means the transaction is included in a block.
	StateConfirmed
)

// Result is the normalized payment state for one address. AmountBTC is the
// sum of the transaction outputs crediting the queried address, not the
// transaction's total value.
type Result struct {
	State         State
	TxID          string
	AmountBTC     float64
	Confirmations int64
}

const requestTimeout = 8 * time.Second

var (
	mempoolMainnetAPIURL = "https://mempool.space/api"
	mempoolTestnetAPIURL = "https://mempool.space/testnet4/api"
	blockstreamAPIURL    = "https://blockstream.info/api"
)

// Client queries public esplora-compatible explorers. mempool.space is the
// primary; blockstream.info is the mainnet-only fallback.
type Client struct {
	httpClient *http.Client
	baseURLs   []string
	testnet    bool
	logger     *utils.Logger
}

func NewClient(testnet bool, logger *utils.Logger) *Client {
	baseURLs := []string{mempoolMainnetAPIURL, blockstreamAPIURL}
	if testnet {
		baseURLs = []string{mempoolTestnetAPIURL}
	}

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURLs:   baseURLs,
		testnet:    testnet,
		logger:     logger,
	}
}

// RequiredConfirmations is 3 on mainnet and deliberately higher on testnet,
// where blocks are cheap to mine.
func (c *Client) RequiredConfirmations() int64 {
	if c.testnet {
		return 6
	}
	return 3
}

// Probe asks each explorer in order and returns the first answer that is not
// an API failure.
func (c *Client) Probe(ctx context.Context, address string) Result {
	for _, base := range c.baseURLs {
		result := c.probeOne(ctx, base, address)
		if result.State != StateAPIFailed {
			return result
		}
	}
	return Result{State: StateAPIFailed}
}

type addressTx struct {
	TxID string `json:"txid"`
	Vout []struct {
		Address string `json:"scriptpubkey_address"`
		Value   uint64 `json:"value"`
	} `json:"vout"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

func (c *Client) probeOne(ctx context.Context, base, address string) Result {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/address/%s/txs", base, address))
	if err != nil {
		c.logger.Warnf("explorer %s request failed: %v", base, err)
		return c.fundedFallback(ctx, base, address)
	}

	switch {
	case status == http.StatusNotFound:
		// Explorers answer 404 for addresses they have never seen.
		return Result{State: StateNoPayment}
	case status != http.StatusOK:
		c.logger.Warnf("explorer %s returned status %d", base, status)
		return c.fundedFallback(ctx, base, address)
	}

	var txs []addressTx
	if err := json.Unmarshal(body, &txs); err != nil {
		c.logger.Errorf("explorer %s returned invalid JSON: %v", base, err)
		return Result{State: StateAPIFailed}
	}

	type credit struct {
		txID        string
		amountBTC   float64
		confirmed   bool
		blockHeight int64
	}

	var credits []credit
	for _, tx := range txs {
		var amount float64
		for _, out := range tx.Vout {
			if out.Address == address {
				amount += utils.SatoshisToBTC(out.Value)
			}
		}
		if amount <= 0 {
			continue
		}

		credits = append(credits, credit{
			txID:        tx.TxID,
			amountBTC:   amount,
			confirmed:   tx.Status.Confirmed,
			blockHeight: tx.Status.BlockHeight,
		})
	}

	if len(credits) == 0 {
		return Result{State: StateNoPayment}
	}

	// Addresses are single-use, so more than one inbound transaction is
	// anomalous. Take the most recent (explorers list newest first) and log
	// the rest.
	for _, extra := range credits[1:] {
		c.logger.Warnf("address %s has extra inbound tx %s (%.8f BTC)", address, extra.txID, extra.amountBTC)
	}

	latest := credits[0]
	if !latest.confirmed {
		return Result{State: StatePending, TxID: latest.txID, AmountBTC: latest.amountBTC}
	}

	tip, err := c.tipHeight(ctx, base)
	if err != nil {
		// Without the tip there is no confirmation count; report the tx as
		// pending and let the next poll settle it.
		c.logger.Warnf("explorer %s tip height failed: %v", base, err)
		return Result{State: StatePending, TxID: latest.txID, AmountBTC: latest.amountBTC}
	}

	confirmations := tip - latest.blockHeight + 1
	if confirmations < 1 {
		confirmations = 1
	}

	return Result{
		State:         StateConfirmed,
		TxID:          latest.txID,
		AmountBTC:     latest.amountBTC,
		Confirmations: confirmations,
	}
}

// fundedFallback handles the partial-response case: the tx listing failed but
// the address summary may still show a funded balance, which downgrades to a
// zero-confirmation pending result.
func (c *Client) fundedFallback(ctx context.Context, base, address string) Result {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/address/%s", base, address))
	if err != nil || status != http.StatusOK {
		return Result{State: StateAPIFailed}
	}

	var summary struct {
		ChainStats struct {
			FundedTxoSum uint64 `json:"funded_txo_sum"`
		} `json:"chain_stats"`
		MempoolStats struct {
			FundedTxoSum uint64 `json:"funded_txo_sum"`
		} `json:"mempool_stats"`
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		return Result{State: StateAPIFailed}
	}

	funded := summary.ChainStats.FundedTxoSum + summary.MempoolStats.FundedTxoSum
	if funded == 0 {
		return Result{State: StateNoPayment}
	}

	return Result{State: StatePending, AmountBTC: utils.SatoshisToBTC(funded)}
}

func (c *Client) tipHeight(ctx context.Context, base string) (int64, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/blocks/tip/height", base))
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("tip height returned status %d", status)
	}

	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tip height %q", string(body))
	}
	return height, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
