package futures_usdt

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
	mainnetURL = "https://fapi.binance.com"
	testnetURL = "https://testnet.binancefuture.com"
)

// Config holds Binance USDT-M futures credentials.
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

// Client handles Binance USDT-M futures.
type Client struct {
	tr *binance.Transport
}

// NewClient creates a new USDT-M futures client.
func NewClient(cfg Config) *Client {
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
		TimePath:          "/fapi/v1/time",
		RequestsPerWindow: 1200,
		Window:            time.Minute,
		WeightLimit:       2400,
		Retry:             cfg.Retry,
		HTTPClient:        cfg.HTTPClient,
		Observer:          cfg.Observer,
	})}
}

// Clock exposes the server time sync.
func (c *Client) Clock() *common.TimeSync { return c.tr.Clock() }

// GetServerTime fetches futures server time.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	return c.tr.ServerTime(ctx)
}

// GetTickerPrice returns the last traded price.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := c.tr.Public(ctx, "/fapi/v1/ticker/price", url.Values{"symbol": {symbol}})
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

// GetSymbolFilters reads LOT_SIZE and MIN_NOTIONAL for one symbol.
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (common.SymbolFilters, error) {
	body, err := c.tr.Public(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return common.SymbolFilters{}, err
	}
	var info binance.ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return common.SymbolFilters{}, fmt.Errorf("decode exchange info: %w", err)
	}
	f, ok := info.FiltersFor(symbol)
	if !ok {
		return f, &common.APIError{Kind: common.KindValidation, Message: "unknown symbol " + symbol, Method: http.MethodGet, Endpoint: "/fapi/v1/exchangeInfo"}
	}
	return f, nil
}

// SubmitOrder places an order.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", strings.ToUpper(string(req.Type)))
	params.Set("quantity", binance.FormatFloat(req.Qty))

	if req.Type == common.OrderTypeLimit {
		params.Set("price", binance.FormatFloat(req.Price))
		params.Set("timeInForce", string(toBinanceTIF(req.TimeInForce)))
	}
	if req.Type.IsTrigger() {
		params.Set("stopPrice", binance.FormatFloat(req.StopPrice))
		if req.WorkingType != "" {
			params.Set("workingType", req.WorkingType)
		}
		if req.PriceProtect {
			params.Set("priceProtect", "TRUE")
		}
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	body, err := c.tr.Signed(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	return common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:          binance.MapStatus(resp.Status),
		ClientID:        resp.ClientOrderID,
	}, nil
}

// CancelOrder cancels an order by symbol and ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	if exchangeOrderID != "" {
		params.Set("orderId", exchangeOrderID)
	}
	_, err := c.tr.Signed(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return err
}

// CancelAllOpenOrders cancels all open orders for a symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	_, err := c.tr.Signed(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", url.Values{"symbol": {symbol}})
	return err
}

// GetPositions returns every position with a nonzero amount.
func (c *Client) GetPositions(ctx context.Context) ([]common.Position, error) {
	body, err := c.tr.Signed(ctx, http.MethodGet, "/fapi/v2/positionRisk", url.Values{})
	if err != nil {
		return nil, err
	}
	var raw []PositionRisk
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	out := make([]common.Position, 0, len(raw))
	for _, p := range raw {
		amt := binance.ParseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}
		lev, _ := strconv.Atoi(p.Leverage)
		out = append(out, common.Position{
			Symbol:        p.Symbol,
			Market:        common.MarketUSDTFut,
			Amount:        amt,
			EntryPrice:    binance.ParseFloat(p.EntryPrice),
			MarkPrice:     binance.ParseFloat(p.MarkPrice),
			UnrealizedPnL: binance.ParseFloat(p.UnRealizedProfit),
			Leverage:      lev,
			UpdatedAt:     time.UnixMilli(p.UpdateTime),
		})
	}
	return out, nil
}

// GetOpenOrders returns open orders; symbol optional.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]common.OpenOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.tr.Signed(ctx, http.MethodGet, "/fapi/v1/openOrders", params)
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
			Symbol:     o.Symbol,
			Market:     common.MarketUSDTFut,
			OrderID:    strconv.FormatInt(o.OrderID, 10),
			ClientID:   o.ClientOrderID,
			Side:       common.Side(o.Side),
			Type:       o.Type,
			Price:      binance.ParseFloat(o.Price),
			StopPrice:  binance.ParseFloat(o.StopPrice),
			Qty:        binance.ParseFloat(o.OrigQty),
			Status:     binance.MapStatus(o.Status),
			ReduceOnly: o.ReduceOnly,
		})
	}
	return out, nil
}

// GetBalances returns futures wallet balances.
func (c *Client) GetBalances(ctx context.Context) ([]common.Balance, error) {
	body, err := c.tr.Signed(ctx, http.MethodGet, "/fapi/v2/balance", url.Values{})
	if err != nil {
		return nil, err
	}
	var raw []FuturesBalance
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	out := make([]common.Balance, 0, len(raw))
	for _, b := range raw {
		total := binance.ParseFloat(b.Balance)
		if total == 0 {
			continue
		}
		out = append(out, common.Balance{
			Asset:     b.Asset,
			Market:    common.MarketUSDTFut,
			Total:     total,
			Available: binance.ParseFloat(b.AvailableBalance),
		})
	}
	return out, nil
}

// SetLeverage sets leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	_, err := c.tr.Signed(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	return err
}

type orderResp struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
}

// PositionRisk is one row of /fapi/v2/positionRisk.
type PositionRisk struct {
	Symbol           string `json:"symbol"`
	PositionSide     string `json:"positionSide"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
	UpdateTime       int64  `json:"updateTime"`
}

// OpenOrder is one row of /fapi/v1/openOrders.
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
	ReduceOnly    bool   `json:"reduceOnly"`
}

// FuturesBalance is one row of /fapi/v2/balance.
type FuturesBalance struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}

func toBinanceTIF(tif common.TimeInForce) common.TimeInForce {
	if tif == "" {
		return common.TIFGTC
	}
	return tif
}
