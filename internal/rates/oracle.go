package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/solten/donations/utils"
)

var ErrNoPricesAvailable = errors.New("no price sources available")

const (
	requestTimeout = 5 * time.Second
	cacheTTL       = 5 * time.Minute
)

var (
	coinbaseSpotURL  = "https://api.coinbase.com/v2/prices/BTC-USD/spot"
	krakenTickerURL  = "https://api.kraken.com/0/public/Ticker?pair=XBTUSD"
	binanceTickerURL = "https://api.binance.com/api/v3/ticker/price?symbol=BTCUSDT"
)

type source struct {
	name  string
	url   string
	parse func([]byte) (float64, error)
}

// Oracle quotes USD per BTC as the median over several independent feeds,
// cached for five minutes.
type Oracle struct {
	httpClient *http.Client
	sources    []source
	logger     *utils.Logger

	mu          sync.Mutex
	cachedPrice float64
	cachedAt    time.Time
	now         func() time.Time
}

func NewOracle(logger *utils.Logger) *Oracle {
	return &Oracle{
		httpClient: &http.Client{Timeout: requestTimeout},
		sources: []source{
			{name: "coinbase", url: coinbaseSpotURL, parse: parseCoinbase},
			{name: "kraken", url: krakenTickerURL, parse: parseKraken},
			{name: "binance", url: binanceTickerURL, parse: parseBinance},
		},
		logger: logger,
		now:    time.Now,
	}
}

// Price returns the cached quote when it is fresh, otherwise fans out to all
// sources, discards failures and returns the median of the rest. Only when
// every source fails does it return ErrNoPricesAvailable.
func (o *Oracle) Price(ctx context.Context) (float64, error) {
	o.mu.Lock()
	if !o.cachedAt.IsZero() && o.now().Sub(o.cachedAt) < cacheTTL {
		price := o.cachedPrice
		o.mu.Unlock()
		return price, nil
	}
	o.mu.Unlock()

	type result struct {
		name  string
		price float64
		err   error
	}

	results := make(chan result, len(o.sources))
	for _, src := range o.sources {
		go func(src source) {
			price, err := o.fetch(ctx, src)
			results <- result{name: src.name, price: price, err: err}
		}(src)
	}

	var prices []float64
	for range o.sources {
		res := <-results
		if res.err != nil {
			o.logger.Warnf("price source %s failed: %v", res.name, res.err)
			continue
		}
		prices = append(prices, res.price)
	}

	if len(prices) == 0 {
		return 0, ErrNoPricesAvailable
	}

	price := median(prices)

	o.mu.Lock()
	o.cachedPrice = price
	o.cachedAt = o.now()
	o.mu.Unlock()

	return price, nil
}

func (o *Oracle) fetch(ctx context.Context, src source) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bad response status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	return src.parse(body)
}

func median(prices []float64) float64 {
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2
	}
	return prices[mid]
}

func parseCoinbase(body []byte) (float64, error) {
	var data struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("failed to parse Coinbase response: %w", err)
	}
	return strconv.ParseFloat(data.Data.Amount, 64)
}

func parseKraken(body []byte) (float64, error) {
	var data struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			// c = last trade closed array(<price>, <lot volume>)
			LastTrade []string `json:"c"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("failed to parse Kraken response: %w", err)
	}
	if len(data.Error) > 0 {
		return 0, fmt.Errorf("Kraken API error: %v", data.Error)
	}

	// Kraken answers the XBTUSD query under the XXBTZUSD pair name.
	ticker, ok := data.Result["XXBTZUSD"]
	if !ok || len(ticker.LastTrade) == 0 {
		return 0, fmt.Errorf("XXBTZUSD price missing in Kraken response")
	}
	return strconv.ParseFloat(ticker.LastTrade[0], 64)
}

func parseBinance(body []byte) (float64, error) {
	var data struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("failed to parse Binance response: %w", err)
	}
	return strconv.ParseFloat(data.Price, 64)
}
