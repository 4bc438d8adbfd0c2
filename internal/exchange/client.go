// Package exchange polls a Binance-style USDT-margined perpetual futures
// REST API for the handful of endpoints the monitor needs.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/metrics"
)

// Client polls the exchange's public REST endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
}

// New builds a client rooted at baseURL (e.g. "https://fapi.binance.com").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: logging.Global(),
	}
}

// SymbolInfo is one entry from exchange_info for an active perpetual.
type SymbolInfo struct {
	Symbol    string
	BaseAsset string
}

// PremiumIndex is one entry from premium_index: mark price and funding in one call.
type PremiumIndex struct {
	Symbol          string
	MarkPrice       float64
	LastFundingRate float64
	NextFundingTime int64
}

// LSRatio is the latest long/short account-ratio sample.
type LSRatio struct {
	LongShortRatio float64
	LongAccount    float64
	ShortAccount   float64
	Timestamp      int64
}

// TakerRatio is the latest taker buy/sell volume-ratio sample.
type TakerRatio struct {
	BuySellRatio float64
	BuyVol       float64
	SellVol      float64
	Timestamp    int64
}

// ErrNotFound indicates a legitimate absence of data (HTTP 404).
var ErrNotFound = fmt.Errorf("exchange: not found")

// ErrConfiguration indicates the request is permanently rejected (HTTP 403).
var ErrConfiguration = fmt.Errorf("exchange: configuration error")

// ExchangeInfo returns the active USDT-margined perpetual symbols.
func (c *Client) ExchangeInfo(ctx context.Context) ([]SymbolInfo, error) {
	var raw struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			BaseAsset    string `json:"baseAsset"`
			QuoteAsset   string `json:"quoteAsset"`
			ContractType string `json:"contractType"`
			Status       string `json:"status"`
		} `json:"symbols"`
	}
	if err := c.getJSON(ctx, "/fapi/v1/exchangeInfo", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]SymbolInfo, 0, len(raw.Symbols))
	for _, s := range raw.Symbols {
		if s.QuoteAsset != "USDT" || s.ContractType != "PERPETUAL" || s.Status != "TRADING" {
			continue
		}
		out = append(out, SymbolInfo{Symbol: s.Symbol, BaseAsset: s.BaseAsset})
	}
	return out, nil
}

// Ticker24h returns 24h quote volume keyed by symbol.
func (c *Client) Ticker24h(ctx context.Context) (map[string]float64, error) {
	var raw []struct {
		Symbol      string `json:"symbol"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := c.getJSON(ctx, "/fapi/v1/ticker/24hr", nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for _, r := range raw {
		v, err := strconv.ParseFloat(r.QuoteVolume, 64)
		if err != nil {
			continue
		}
		out[r.Symbol] = v
	}
	return out, nil
}

// PremiumIndexAll returns mark price and funding rate for every symbol in one call.
func (c *Client) PremiumIndexAll(ctx context.Context) ([]PremiumIndex, error) {
	var raw []struct {
		Symbol          string `json:"symbol"`
		MarkPrice       string `json:"markPrice"`
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
	}
	if err := c.getJSON(ctx, "/fapi/v1/premiumIndex", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]PremiumIndex, 0, len(raw))
	for _, r := range raw {
		mark, err1 := strconv.ParseFloat(r.MarkPrice, 64)
		rate, err2 := strconv.ParseFloat(r.LastFundingRate, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, PremiumIndex{
			Symbol:          r.Symbol,
			MarkPrice:       mark,
			LastFundingRate: rate,
			NextFundingTime: r.NextFundingTime,
		})
	}
	return out, nil
}

// OpenInterest returns the raw contract-denominated open interest for symbol.
func (c *Client) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	var raw struct {
		OpenInterest string `json:"openInterest"`
	}
	err := c.getJSON(ctx, "/fapi/v1/openInterest", url.Values{"symbol": {symbol}}, &raw)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw.OpenInterest, 64)
	if err != nil {
		return 0, fmt.Errorf("parse open interest for %s: %w", symbol, err)
	}
	return v, nil
}

// LongShortRatio returns the most recent top-trader long/short position ratio.
func (c *Client) LongShortRatio(ctx context.Context, symbol, period string) (*LSRatio, error) {
	var raw []struct {
		LongShortRatio string `json:"longShortRatio"`
		LongAccount    string `json:"longAccount"`
		ShortAccount   string `json:"shortAccount"`
		Timestamp      int64  `json:"timestamp"`
	}
	err := c.getJSON(ctx, "/futures/data/topLongShortPositionRatio",
		url.Values{"symbol": {symbol}, "period": {period}, "limit": {"1"}}, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	r := raw[len(raw)-1]
	ratio, e1 := strconv.ParseFloat(r.LongShortRatio, 64)
	long, e2 := strconv.ParseFloat(r.LongAccount, 64)
	short, e3 := strconv.ParseFloat(r.ShortAccount, 64)
	if e1 != nil || e2 != nil || e3 != nil {
		return nil, fmt.Errorf("parse long/short ratio for %s: %w", symbol, e1)
	}
	return &LSRatio{LongShortRatio: ratio, LongAccount: long, ShortAccount: short, Timestamp: r.Timestamp}, nil
}

// TakerBuySellRatio returns the most recent aggressive taker buy/sell ratio.
func (c *Client) TakerBuySellRatio(ctx context.Context, symbol, period string) (*TakerRatio, error) {
	var raw []struct {
		BuySellRatio string `json:"buySellRatio"`
		BuyVol       string `json:"buyVol"`
		SellVol      string `json:"sellVol"`
		Timestamp    int64  `json:"timestamp"`
	}
	err := c.getJSON(ctx, "/futures/data/takerlongshortRatio",
		url.Values{"symbol": {symbol}, "period": {period}, "limit": {"1"}}, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	r := raw[len(raw)-1]
	ratio, e1 := strconv.ParseFloat(r.BuySellRatio, 64)
	buy, e2 := strconv.ParseFloat(r.BuyVol, 64)
	sell, e3 := strconv.ParseFloat(r.SellVol, 64)
	if e1 != nil || e2 != nil || e3 != nil {
		return nil, fmt.Errorf("parse taker ratio for %s: %w", symbol, e1)
	}
	return &TakerRatio{BuySellRatio: ratio, BuyVol: buy, SellVol: sell, Timestamp: r.Timestamp}, nil
}

const (
	maxAttempts  = 5
	initialDelay = 1 * time.Second
	maxDelay     = 30 * time.Second
)

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// getJSON performs a GET against path with the shared retry policy and
// decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, full, nil)
		if err != nil {
			cancel()
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			metrics.CycleRequestsTotal.WithLabelValues("fail").Inc()
			if attempt < maxAttempts-1 {
				time.Sleep(backoffDelay(attempt))
				continue
			}
			return fmt.Errorf("request %s: %w", path, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			metrics.CycleRequestsTotal.WithLabelValues("not_found").Inc()
			return ErrNotFound

		case resp.StatusCode == http.StatusForbidden:
			c.log.Errorf("exchange request forbidden, surrendering", ErrConfiguration, logging.Fields{"path": path})
			metrics.CycleRequestsTotal.WithLabelValues("fail").Inc()
			return ErrConfiguration

		case retryableStatus[resp.StatusCode]:
			metrics.CycleRequestsTotal.WithLabelValues("retry").Inc()
			lastErr = fmt.Errorf("status %d from %s", resp.StatusCode, path)
			if attempt < maxAttempts-1 {
				time.Sleep(retryDelay(resp, attempt))
				continue
			}
			metrics.CycleRequestsTotal.WithLabelValues("fail").Inc()
			return lastErr

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				metrics.CycleRequestsTotal.WithLabelValues("fail").Inc()
				return fmt.Errorf("read response body from %s: %w", path, readErr)
			}
			if err := json.Unmarshal(body, out); err != nil {
				metrics.CycleRequestsTotal.WithLabelValues("fail").Inc()
				return fmt.Errorf("decode response from %s: %w", path, err)
			}
			metrics.CycleRequestsTotal.WithLabelValues("ok").Inc()
			return nil

		default:
			metrics.CycleRequestsTotal.WithLabelValues("fail").Inc()
			return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, path, string(body))
		}
	}
	return lastErr
}

func backoffDelay(attempt int) time.Duration {
	d := initialDelay * time.Duration(math.Pow(2, float64(attempt)))
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func retryDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			d := time.Duration(secs) * time.Second
			if d > maxDelay {
				return maxDelay
			}
			return d
		}
	}
	return backoffDelay(attempt)
}
