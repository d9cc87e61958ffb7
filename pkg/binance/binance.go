// Package binance holds the signed REST transport shared by the spot and
// USDT-M futures clients: rate limiting, clock sync, signing and retries.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signal-executor/pkg/exchanges/common"
)

// Observer receives one callback per HTTP round trip.
type Observer interface {
	ObserveRequest(method, path string, elapsed time.Duration, err error)
}

// Config describes one exchange category (spot or futures).
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow int64  // ms
	TimePath   string // server time endpoint used for clock sync

	// Sliding window applied before every request.
	RequestsPerWindow int
	Window            time.Duration
	// Server-side weight budget; requests pause once 90% is used.
	WeightLimit  int
	WeightWindow time.Duration // default one minute

	Timeout    time.Duration
	Retry      common.RetryPolicy
	HTTPClient *http.Client
	Observer   Observer
}

// Transport signs and sends requests for one exchange category.
type Transport struct {
	cfg        Config
	httpClient *http.Client
	limiter    *common.SlidingWindow
	weights    *common.WeightMonitor
	clock      *common.TimeSync
}

// NewTransport fills defaults and builds the limiter and clock.
func NewTransport(cfg Config) *Transport {
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = common.DefaultRetryPolicy()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	t := &Transport{
		cfg:        cfg,
		httpClient: hc,
		limiter:    common.NewSlidingWindow(cfg.RequestsPerWindow, cfg.Window),
		weights:    common.NewWeightMonitor(cfg.WeightLimit, cfg.WeightWindow),
	}
	t.clock = common.NewTimeSync(t.ServerTime)
	return t
}

// Clock exposes the time sync so callers can start it or hook resyncs.
func (t *Transport) Clock() *common.TimeSync { return t.clock }

// HasCredentials reports whether signed endpoints can be called.
func (t *Transport) HasCredentials() bool {
	return t.cfg.APIKey != "" && t.cfg.APISecret != ""
}

func (t *Transport) now() int64 {
	if t.clock != nil && !t.clock.LastSync().IsZero() {
		return t.clock.Now()
	}
	return time.Now().UnixMilli()
}

// ServerTime fetches server time (ms) without retries.
func (t *Transport) ServerTime(ctx context.Context) (int64, error) {
	body, err := t.send(ctx, http.MethodGet, t.cfg.TimePath, "")
	if err != nil {
		return 0, err
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("decode server time: %w", err)
	}
	return res.ServerTime, nil
}

// Public performs an unsigned GET with retries.
func (t *Transport) Public(ctx context.Context, path string, params url.Values) ([]byte, error) {
	encoded := ""
	if params != nil {
		encoded = params.Encode()
	}
	return common.Do(ctx, t.cfg.Retry, nil, func(ctx context.Context) ([]byte, error) {
		return t.send(ctx, http.MethodGet, path, encoded)
	})
}

// Signed attaches timestamp, recvWindow and an HMAC-SHA256 signature, then
// sends with clock-skew, rate-limit and network retries. Every attempt is
// re-signed with a fresh timestamp.
func (t *Transport) Signed(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if !t.HasCredentials() {
		return nil, &common.APIError{
			Kind:     common.KindAuth,
			Status:   http.StatusUnauthorized,
			Message:  "API key/secret required",
			Method:   method,
			Endpoint: path,
		}
	}
	return common.Do(ctx, t.cfg.Retry, t.clock, func(ctx context.Context) ([]byte, error) {
		q := url.Values{}
		for k, v := range params {
			q[k] = append([]string(nil), v...)
		}
		q.Set("timestamp", strconv.FormatInt(t.now(), 10))
		q.Set("recvWindow", strconv.FormatInt(t.cfg.RecvWindow, 10))
		encoded := q.Encode()
		encoded += "&signature=" + Sign(encoded, t.cfg.APISecret)
		return t.send(ctx, method, path, encoded)
	})
}

func (t *Transport) send(ctx context.Context, method, path, encoded string) ([]byte, error) {
	if pause := t.weights.Pause(); pause > 0 {
		log.Printf("⚠️ weight budget nearly spent, holding %s %s for %v", method, path, pause.Round(time.Millisecond))
		if err := common.Sleep(ctx, pause); err != nil {
			return nil, err
		}
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := t.cfg.BaseURL + path
	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodGet, http.MethodDelete:
		if encoded != "" {
			endpoint += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	if t.cfg.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", t.cfg.APIKey)
	}

	start := time.Now()
	res, err := t.httpClient.Do(req)
	if err != nil {
		t.observe(method, path, start, err)
		return nil, err
	}
	defer res.Body.Close()

	t.weights.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.observe(method, path, start, err)
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if res.StatusCode >= 300 {
		apiErr := common.ClassifyResponse(method, path, res.StatusCode, res.Header, body)
		t.observe(method, path, start, apiErr)
		return nil, apiErr
	}
	t.observe(method, path, start, nil)
	return body, nil
}

func (t *Transport) observe(method, path string, start time.Time, err error) {
	if t.cfg.Observer != nil {
		t.cfg.Observer.ObserveRequest(method, path, time.Since(start), err)
	}
}

// Sign returns the hex HMAC-SHA256 of data.
func Sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// FormatFloat renders exchange numeric params without exponent.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseFloat reads the string-encoded numbers Binance returns; bad input is 0.
func ParseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// MapStatus normalizes a Binance order status.
func MapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

// ExchangeInfo is the subset of /exchangeInfo used to derive order-size filters.
type ExchangeInfo struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType  string `json:"filterType"`
			MinQty      string `json:"minQty"`
			StepSize    string `json:"stepSize"`
			TickSize    string `json:"tickSize"`
			Notional    string `json:"notional"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// FiltersFor extracts LOT_SIZE, PRICE_FILTER and MIN_NOTIONAL/NOTIONAL limits.
// Missing values fall back to the package defaults.
func (info ExchangeInfo) FiltersFor(symbol string) (common.SymbolFilters, bool) {
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		f := common.SymbolFilters{Symbol: symbol}
		for _, flt := range s.Filters {
			switch flt.FilterType {
			case "LOT_SIZE":
				f.MinQty = ParseFloat(flt.MinQty)
				f.StepSize = ParseFloat(flt.StepSize)
			case "PRICE_FILTER":
				f.TickSize = ParseFloat(flt.TickSize)
			case "MIN_NOTIONAL":
				// futures reports "notional", older spot payloads "minNotional"
				if v := ParseFloat(flt.Notional); v > 0 {
					f.MinNotional = v
				} else if v := ParseFloat(flt.MinNotional); v > 0 {
					f.MinNotional = v
				}
			case "NOTIONAL":
				if v := ParseFloat(flt.MinNotional); v > 0 {
					f.MinNotional = v
				}
			}
		}
		if f.MinQty <= 0 {
			f.MinQty = common.DefaultMinQty
			f.Defaulted = true
		}
		if f.MinNotional <= 0 {
			f.MinNotional = common.DefaultMinNotional
			f.Defaulted = true
		}
		return f, true
	}
	return common.DefaultFilters(symbol), false
}
