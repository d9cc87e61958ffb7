package spot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signal-executor/pkg/binance"
	"signal-executor/pkg/exchanges/common"
)

const (
	mainnetURL = "https://api.binance.com"
	testnetURL = "https://testnet.binance.vision"
)

// Config holds Binance credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
	BaseURL    string
	Observer   binance.Observer
	HTTPClient *http.Client
	Retry      common.RetryPolicy
}

// Client is a Binance spot trading client.
type Client struct {
	tr *binance.Transport
}

// New creates a spot client.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = mainnetURL
		if cfg.Testnet {
			base = testnetURL
		}
	}
	return &Client{tr: binance.NewTransport(binance.Config{
		BaseURL:           base,
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		RecvWindow:        cfg.RecvWindow,
		TimePath:          "/api/v3/time",
		RequestsPerWindow: 1200,
		Window:            time.Minute,
		WeightLimit:       6000,
		Retry:             cfg.Retry,
		HTTPClient:        cfg.HTTPClient,
		Observer:          cfg.Observer,
	})}
}

// Clock exposes the server time sync.
func (c *Client) Clock() *common.TimeSync { return c.tr.Clock() }

// GetServerTime fetches spot server time.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	return c.tr.ServerTime(ctx)
}

func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := c.tr.Public(ctx, "/api/v3/ticker/price", url.Values{"symbol": {symbol}})
	if err != nil {
		return 0, err
	}
	var res struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	price := binance.ParseFloat(res.Price)
	if price <= 0 {
		return 0, fmt.Errorf("ticker %s: invalid price %q", symbol, res.Price)
	}
	return price, nil
}

func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (common.SymbolFilters, error) {
	body, err := c.tr.Public(ctx, "/api/v3/exchangeInfo", url.Values{"symbol": {symbol}})
	if err != nil {
		return common.SymbolFilters{}, err
	}
	var info binance.ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return common.SymbolFilters{}, fmt.Errorf("decode exchange info: %w", err)
	}
	f, ok := info.FiltersFor(symbol)
	if !ok {
		return f, &common.APIError{Kind: common.KindValidation, Message: "unknown symbol " + symbol, Method: http.MethodGet, Endpoint: "/api/v3/exchangeInfo"}
	}
	return f, nil
}

// SubmitOrder places a spot order. Spot has no reduce-only or mark-price triggers.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	ordType := strings.ToUpper(string(req.Type))
	if ordType == "" {
		ordType = string(common.OrderTypeLimit)
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", ordType)
	params.Set("quantity", binance.FormatFloat(req.Qty))
	if ordType == string(common.OrderTypeLimit) {
		tif := req.TimeInForce
		if tif == "" {
			tif = common.TIFGTC
		}
		params.Set("price", binance.FormatFloat(req.Price))
		params.Set("timeInForce", string(tif))
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}

	body, err := c.tr.Signed(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	return common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:          binance.MapStatus(resp.Status),
		ClientID:        resp.ClientOrderID,
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	if exchangeOrderID != "" {
		params.Set("orderId", exchangeOrderID)
	}
	_, err := c.tr.Signed(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

// CancelAllOpenOrders cancels all open orders for a symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	_, err := c.tr.Signed(ctx, http.MethodDelete, "/api/v3/openOrders", url.Values{"symbol": {symbol}})
	return err
}

// OpenOrder represents a simplified open order view.
type OpenOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	OrigQty       string `json:"origQty"`
	Status        string `json:"status"`
}

// GetOpenOrders returns current open orders; if symbol is empty, all symbols.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]common.OpenOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.tr.Signed(ctx, http.MethodGet, "/api/v3/openOrders", params)
	if err != nil {
		return nil, err
	}
	var raw []OpenOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	out := make([]common.OpenOrder, 0, len(raw))
	for _, o := range raw {
		out = append(out, common.OpenOrder{
			Symbol:    o.Symbol,
			Market:    common.MarketSpot,
			OrderID:   strconv.FormatInt(o.OrderID, 10),
			ClientID:  o.ClientOrderID,
			Side:      common.Side(o.Side),
			Type:      o.Type,
			Price:     binance.ParseFloat(o.Price),
			StopPrice: binance.ParseFloat(o.StopPrice),
			Qty:       binance.ParseFloat(o.OrigQty),
			Status:    binance.MapStatus(o.Status),
		})
	}
	return out, nil
}

// AccountInfo is the subset of /api/v3/account the executor reads.
type AccountInfo struct {
	CanTrade bool `json:"canTrade"`
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// GetAccountInfo returns account balances and basic flags.
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	body, err := c.tr.Signed(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, err
	}
	var info AccountInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}
	return &info, nil
}

// GetBalances returns every nonzero spot balance.
func (c *Client) GetBalances(ctx context.Context) ([]common.Balance, error) {
	info, err := c.GetAccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]common.Balance, 0, len(info.Balances))
	for _, b := range info.Balances {
		free := binance.ParseFloat(b.Free)
		total := free + binance.ParseFloat(b.Locked)
		if total == 0 {
			continue
		}
		out = append(out, common.Balance{
			Asset:     b.Asset,
			Market:    common.MarketSpot,
			Total:     total,
			Available: free,
		})
	}
	return out, nil
}

// GetHoldings reports non-quote balances as long positions against USDT.
// Spot has no entry price or mark price; callers fill those in.
func (c *Client) GetHoldings(ctx context.Context) ([]common.Position, error) {
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]common.Position, 0, len(balances))
	for _, b := range balances {
		if b.Asset == common.QuoteAsset {
			continue
		}
		out = append(out, common.Position{
			Symbol:    b.Asset + common.QuoteAsset,
			Market:    common.MarketSpot,
			Amount:    b.Total,
			Leverage:  1,
			UpdatedAt: now,
		})
	}
	return out, nil
}
