// Package exchange adapts a Binance-compatible spot REST API to the
// assistant's MarketData, Account and OrderExecutor ports.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/types"
)

const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"

	defaultBaseURL = "https://api.binance.com"
	minCandles     = 50

	// streamFreshness is how old a streamed tick may be and still override
	// the REST ticker.
	streamFreshness = 5 * time.Second
)

type Config struct {
	Mode          string
	BaseURL       string
	APIKey        string
	APISecret     string
	KlineInterval string
	KlineLimit    int
	RatePerSecond float64
	QuoteAsset    string
	DryRunBalance float64
	Timeout       time.Duration
	Indicators    IndicatorParams
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	rest    *resty.Client
	limiter *rate.Limiter
	prices  *priceCache
	now     func() time.Time
}

var _ interfaces.Exchange = (*Client)(nil)

// New builds a client. Keys fall back to EXCHANGE_API_KEY and
// EXCHANGE_API_SECRET; LIVE mode without them is a configuration error.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = "1h"
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = 200
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Indicators == (IndicatorParams{}) {
		cfg.Indicators = DefaultIndicatorParams()
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("EXCHANGE_API_KEY")
	}
	if cfg.APISecret == "" {
		cfg.APISecret = os.Getenv("EXCHANGE_API_SECRET")
	}
	if cfg.Mode == ModeLive && (cfg.APIKey == "" || cfg.APISecret == "") {
		return nil, errors.Wrap(types.ErrConfiguration, "LIVE mode requires EXCHANGE_API_KEY and EXCHANGE_API_SECRET")
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	rest := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		rest.SetHeader("X-MBX-APIKEY", cfg.APIKey)
	}

	return &Client{
		cfg:     cfg,
		rest:    rest,
		limiter: rate.NewLimiter(limit, 1),
		prices:  newPriceCache(maxTicksPerSymbol),
		now:     time.Now,
	}, nil
}

// Mode reports DRY_RUN or LIVE.
func (c *Client) Mode() string { return c.cfg.Mode }

// apiError is the venue's error body.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(types.ErrCollaboratorUnavailable, "rate limit wait: %v", err)
	}
	var apiErr apiError
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	return checkResponse(path, resp, err, apiErr)
}

// signed sends a HMAC-SHA256 signed request. The query is encoded once and
// sent verbatim so the signature covers exactly what the venue receives.
func (c *Client) signed(ctx context.Context, method, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(types.ErrCollaboratorUnavailable, "rate limit wait: %v", err)
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	qs := params.Encode()
	qs += "&signature=" + sign(c.cfg.APISecret, qs)

	var apiErr apiError
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&apiErr).
		Execute(method, path+"?"+qs)
	return checkResponse(path, resp, err, apiErr)
}

func checkResponse(path string, resp *resty.Response, err error, apiErr apiError) error {
	if err != nil {
		return errors.Wrapf(types.ErrCollaboratorUnavailable, "%s: %v", path, err)
	}
	if resp.IsError() {
		if apiErr.Msg != "" {
			return errors.Wrapf(types.ErrCollaboratorUnavailable, "%s: status %d code %d: %s", path, resp.StatusCode(), apiErr.Code, apiErr.Msg)
		}
		return errors.Wrapf(types.ErrCollaboratorUnavailable, "%s: status %d", path, resp.StatusCode())
	}
	return nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Klines returns candles oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	var raw [][]json.RawMessage
	err := c.get(ctx, "/api/v3/klines", map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}, &raw)
	if err != nil {
		return nil, err
	}

	candles := make([]types.Candle, 0, len(raw))
	for i, row := range raw {
		cd, err := parseKline(row)
		if err != nil {
			return nil, errors.Wrapf(types.ErrCollaboratorUnavailable, "kline %d for %s: %v", i, symbol, err)
		}
		candles = append(candles, cd)
	}
	return candles, nil
}

func parseKline(row []json.RawMessage) (types.Candle, error) {
	if len(row) < 6 {
		return types.Candle{}, errors.Errorf("expected at least 6 fields, got %d", len(row))
	}
	var ts int64
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return types.Candle{}, errors.Wrap(err, "open time")
	}
	vals := make([]float64, 5)
	for i := range vals {
		v, err := parseNumber(row[i+1])
		if err != nil {
			return types.Candle{}, err
		}
		vals[i] = v
	}
	return types.Candle{Ts: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Vol: vals[4]}, nil
}

// parseNumber accepts the venue's quoted decimals as well as bare numbers.
func parseNumber(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, errors.Wrapf(err, "number %s", string(raw))
	}
	return f, nil
}

type Ticker24h struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"lastPrice,string"`
	HighPrice float64 `json:"highPrice,string"`
	LowPrice  float64 `json:"lowPrice,string"`
	Volume    float64 `json:"volume,string"`
}

func (c *Client) Ticker24h(ctx context.Context, symbol string) (Ticker24h, error) {
	var t Ticker24h
	if err := c.get(ctx, "/api/v3/ticker/24hr", map[string]string{"symbol": symbol}, &t); err != nil {
		return Ticker24h{}, err
	}
	return t, nil
}

// Snapshot fetches candles and the 24h ticker and derives indicators. A
// stream price observed within streamFreshness replaces the ticker's last
// price; Snapshot never feeds its own price back into the cache.
func (c *Client) Snapshot(ctx context.Context, symbol string) (types.MarketSnapshot, error) {
	candles, err := c.Klines(ctx, symbol, c.cfg.KlineInterval, c.cfg.KlineLimit)
	if err != nil {
		return types.MarketSnapshot{}, err
	}
	if len(candles) < minCandles {
		logger.Warn(ctx, "Insufficient candle data", "symbol", symbol, "received", len(candles), "required", minCandles)
	}

	t, err := c.Ticker24h(ctx, symbol)
	if err != nil {
		return types.MarketSnapshot{}, err
	}

	price := t.LastPrice
	if tick, ok := c.freshTick(symbol); ok {
		price = tick.Price
	}
	if price <= 0 {
		return types.MarketSnapshot{}, errors.Wrapf(types.ErrCollaboratorUnavailable, "no price for %s", symbol)
	}

	snap := types.MarketSnapshot{
		Symbol:     symbol,
		Price:      price,
		High24h:    t.HighPrice,
		Low24h:     t.LowPrice,
		Volume24h:  t.Volume,
		Indicators: ComputeIndicators(candles, c.cfg.Indicators),
		FetchedAt:  c.now(),
	}
	return snap, nil
}

type accountInfo struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// Balance returns the free quote-asset balance. DRY_RUN reports the
// configured simulated balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	if c.cfg.Mode != ModeLive {
		return c.cfg.DryRunBalance, nil
	}
	var acct accountInfo
	if err := c.signed(ctx, "GET", "/api/v3/account", url.Values{}, &acct); err != nil {
		return 0, err
	}
	for _, b := range acct.Balances {
		if b.Asset == c.cfg.QuoteAsset {
			v, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, errors.Wrapf(types.ErrCollaboratorUnavailable, "balance %q: %v", b.Free, err)
			}
			return v, nil
		}
	}
	return 0, nil
}

type orderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
}

// Submit places a market order. In DRY_RUN the order is simulated and filled
// at the last known price with a SIM- id. A venue that answers but does not
// fill returns Success=false rather than an error.
func (c *Client) Submit(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	if req.Size <= 0 {
		return types.OrderResult{Success: false, Error: "order size must be positive"}, nil
	}

	if c.cfg.Mode != ModeLive {
		price, err := c.fillPrice(ctx, req.Symbol)
		if err != nil {
			return types.OrderResult{}, err
		}
		return types.OrderResult{
			Success:   true,
			OrderID:   "SIM-" + uuid.NewString(),
			FillPrice: price,
		}, nil
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(req.Size, 'f', -1, 64))
	params.Set("newClientOrderId", clientOrderID(req.Tag))
	params.Set("newOrderRespType", "RESULT")

	var resp orderResponse
	if err := c.signed(ctx, "POST", "/api/v3/order", params, &resp); err != nil {
		return types.OrderResult{}, err
	}

	res := types.OrderResult{OrderID: strconv.FormatInt(resp.OrderID, 10)}
	if resp.Status != "FILLED" {
		res.Error = "order status " + resp.Status
		return res, nil
	}
	qty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)
	if qty > 0 {
		res.FillPrice = quote / qty
	}
	res.Success = true
	c.prices.record(interfaces.Tick{Symbol: req.Symbol, Price: res.FillPrice, Ts: c.now().UnixMilli()})
	return res, nil
}

func (c *Client) fillPrice(ctx context.Context, symbol string) (float64, error) {
	if tick, ok := c.freshTick(symbol); ok {
		return tick.Price, nil
	}
	t, err := c.Ticker24h(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return t.LastPrice, nil
}

// clientOrderID keeps the venue's 36 character limit.
func clientOrderID(tag string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if tag == "" {
		return id
	}
	tag = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, tag)
	s := tag + "_" + id
	if len(s) > 36 {
		s = s[:36]
	}
	return s
}

// freshTick returns the newest cached tick if it is no older than
// streamFreshness.
func (c *Client) freshTick(symbol string) (interfaces.Tick, bool) {
	tick, ok := c.prices.last(symbol)
	if !ok || tick.Ts <= 0 || tick.Price <= 0 {
		return interfaces.Tick{}, false
	}
	if c.now().UnixMilli()-tick.Ts > streamFreshness.Milliseconds() {
		return interfaces.Tick{}, false
	}
	return tick, true
}

// ObservePrice records a streamed price so snapshots and simulated fills use it.
func (c *Client) ObservePrice(t interfaces.Tick) {
	c.prices.record(t)
}

// LastPrice returns the most recent observed price for symbol.
func (c *Client) LastPrice(symbol string) (float64, bool) {
	t, ok := c.prices.last(symbol)
	return t.Price, ok
}
