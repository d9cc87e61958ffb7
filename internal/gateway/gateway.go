// Package gateway is the single entry point the executor and tracker use to
// reach the exchange: normalized symbols, cached filters, order shapes.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"signal-executor/pkg/cache"
	"signal-executor/pkg/exchanges/common"
)

// FiltersTTL is how long symbol filters are reused before refetching.
const FiltersTTL = 10 * time.Minute

var ErrSpotUnavailable = errors.New("spot venue not configured")

// SpotVenue is a spot client that can also report holdings.
type SpotVenue interface {
	common.Venue
	GetHoldings(ctx context.Context) ([]common.Position, error)
}

// Config wires venues into a Gateway.
type Config struct {
	Futures        common.DerivativesVenue
	Spot           SpotVenue // nil outside live mode
	ClientIDPrefix string    // prepended to every newClientOrderId
	FiltersTTL     time.Duration
}

// Gateway wraps the exchange clients with the order shapes the executor needs.
type Gateway struct {
	futures common.DerivativesVenue
	spot    SpotVenue
	prefix  string
	filters *cache.TTLCache[common.SymbolFilters]
}

// New builds a Gateway.
func New(cfg Config) *Gateway {
	ttl := cfg.FiltersTTL
	if ttl == 0 {
		ttl = FiltersTTL
	}
	prefix := cfg.ClientIDPrefix
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return &Gateway{
		futures: cfg.Futures,
		spot:    cfg.Spot,
		prefix:  prefix,
		filters: cache.NewTTL[common.SymbolFilters](ttl, 512),
	}
}

// SpotEnabled reports whether spot orders can be routed.
func (g *Gateway) SpotEnabled() bool { return g.spot != nil }

func (g *Gateway) venue(m common.MarketType) (common.Venue, error) {
	if m == common.MarketSpot {
		if g.spot == nil {
			return nil, ErrSpotUnavailable
		}
		return g.spot, nil
	}
	return g.futures, nil
}

// NewClientID returns a unique client order id (max 36 chars).
func (g *Gateway) NewClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if g.prefix == "" {
		return id
	}
	return g.prefix + "-" + id[:min(len(id), 36-len(g.prefix)-1)]
}

// NormalizeSymbol converts free-form symbols to exchange notation.
func (g *Gateway) NormalizeSymbol(raw string) string {
	s, _ := common.NormalizeSymbol(raw)
	return s
}

// TickerPrice returns the last price for symbol on market.
func (g *Gateway) TickerPrice(ctx context.Context, m common.MarketType, symbol string) (float64, error) {
	v, err := g.venue(m)
	if err != nil {
		return 0, err
	}
	price, err := v.GetTickerPrice(ctx, symbol)
	if err != nil {
		logFailure("ticker", symbol, err)
		return 0, err
	}
	return price, nil
}

// Balances returns futures balances plus spot balances when spot is enabled.
func (g *Gateway) Balances(ctx context.Context) ([]common.Balance, error) {
	out, err := g.futures.GetBalances(ctx)
	if err != nil {
		logFailure("balances", "", err)
		return nil, err
	}
	if g.spot != nil {
		spot, err := g.spot.GetBalances(ctx)
		if err != nil {
			logFailure("spot balances", "", err)
			return nil, err
		}
		out = append(out, spot...)
	}
	return out, nil
}

// Positions returns nonzero futures positions plus spot holdings.
func (g *Gateway) Positions(ctx context.Context) ([]common.Position, error) {
	out, err := g.futures.GetPositions(ctx)
	if err != nil {
		logFailure("positions", "", err)
		return nil, err
	}
	if g.spot != nil {
		holdings, err := g.spot.GetHoldings(ctx)
		if err != nil {
			logFailure("spot holdings", "", err)
			return nil, err
		}
		out = append(out, holdings...)
	}
	return out, nil
}

// OpenOrders returns resting orders on both venues; symbol optional.
func (g *Gateway) OpenOrders(ctx context.Context, symbol string) ([]common.OpenOrder, error) {
	out, err := g.futures.GetOpenOrders(ctx, symbol)
	if err != nil {
		logFailure("open orders", symbol, err)
		return nil, err
	}
	if g.spot != nil {
		spot, err := g.spot.GetOpenOrders(ctx, symbol)
		if err != nil {
			logFailure("spot open orders", symbol, err)
			return nil, err
		}
		out = append(out, spot...)
	}
	return out, nil
}

// PlaceLimitOrder places a GTC limit entry.
func (g *Gateway) PlaceLimitOrder(ctx context.Context, m common.MarketType, symbol string, side common.Side, qty, price float64) (common.OrderResult, error) {
	v, err := g.venue(m)
	if err != nil {
		return common.OrderResult{}, err
	}
	res, err := v.SubmitOrder(ctx, common.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		Type:        common.OrderTypeLimit,
		Qty:         qty,
		Price:       price,
		TimeInForce: common.TIFGTC,
		ClientID:    g.NewClientID(),
		Market:      m,
	})
	if err != nil {
		logFailure("limit order", symbol, err)
		return res, err
	}
	log.Printf("✓ limit %s %s %s @ %s (order %s)", side, common.FormatDecimal(qty), symbol, common.FormatDecimal(price), res.ExchangeOrderID)
	return res, nil
}

func (g *Gateway) exitOrder(t common.OrderType, symbol string, side common.Side, qty, trigger float64) common.OrderRequest {
	return common.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		Type:         t,
		Qty:          qty,
		StopPrice:    trigger,
		ReduceOnly:   true,
		WorkingType:  common.WorkingTypeMarkPrice,
		PriceProtect: true,
		ClientID:     g.NewClientID(),
		Market:       common.MarketUSDTFut,
	}
}

// PlaceTakeProfit places a reduce-only TAKE_PROFIT_MARKET on futures.
// A rejection because the level is already crossed counts as placed.
func (g *Gateway) PlaceTakeProfit(ctx context.Context, symbol string, side common.Side, qty, trigger float64) (common.OrderResult, error) {
	res, err := g.futures.SubmitOrder(ctx, g.exitOrder(common.OrderTypeTakeProfitMarket, symbol, side, qty, trigger))
	if err != nil {
		if common.IsWouldTrigger(err) {
			log.Printf("⚠️ TP %s @ %s would immediately trigger, level already reached", symbol, common.FormatDecimal(trigger))
			return common.OrderResult{Status: common.StatusFilled, Triggered: true}, nil
		}
		logFailure("take profit", symbol, err)
		return res, err
	}
	return res, nil
}

// PlaceStopLoss places a reduce-only STOP_MARKET on futures.
func (g *Gateway) PlaceStopLoss(ctx context.Context, symbol string, side common.Side, qty, trigger float64) (common.OrderResult, error) {
	res, err := g.futures.SubmitOrder(ctx, g.exitOrder(common.OrderTypeStopMarket, symbol, side, qty, trigger))
	if err != nil {
		logFailure("stop loss", symbol, err)
		return res, err
	}
	return res, nil
}

// CancelOrder cancels one order.
func (g *Gateway) CancelOrder(ctx context.Context, m common.MarketType, symbol, orderID string) error {
	v, err := g.venue(m)
	if err != nil {
		return err
	}
	if err := v.CancelOrder(ctx, symbol, orderID); err != nil {
		logFailure("cancel order", symbol, err)
		return err
	}
	return nil
}

// CancelAllOrders cancels every open order, optionally scoped to symbol,
// and returns how many orders were canceled.
func (g *Gateway) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	total := 0
	n, err := cancelAll(ctx, g.futures, symbol)
	total += n
	if err != nil {
		return total, err
	}
	if g.spot != nil {
		n, err := cancelAll(ctx, g.spot, symbol)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func cancelAll(ctx context.Context, v common.Venue, symbol string) (int, error) {
	orders, err := v.GetOpenOrders(ctx, symbol)
	if err != nil {
		logFailure("open orders", symbol, err)
		return 0, err
	}
	perSymbol := make(map[string]int)
	for _, o := range orders {
		perSymbol[o.Symbol]++
	}
	symbols := make([]string, 0, len(perSymbol))
	for s := range perSymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	canceled := 0
	var errs []error
	for _, s := range symbols {
		if err := v.CancelAllOpenOrders(ctx, s); err != nil {
			logFailure("cancel all", s, err)
			errs = append(errs, fmt.Errorf("%s: %w", s, err))
			continue
		}
		canceled += perSymbol[s]
	}
	return canceled, errors.Join(errs...)
}

// SetLeverage sets futures leverage for symbol.
func (g *Gateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := g.futures.SetLeverage(ctx, symbol, leverage); err != nil {
		logFailure("set leverage", symbol, err)
		return err
	}
	log.Printf("✓ leverage %s set to %dx", symbol, leverage)
	return nil
}

// SymbolFilters returns cached filters, falling back to defaults when the
// exchange cannot be reached. Defaults are never cached.
func (g *Gateway) SymbolFilters(ctx context.Context, m common.MarketType, symbol string) common.SymbolFilters {
	key := string(m) + ":" + symbol
	if f, ok := g.filters.Get(key); ok {
		return f
	}
	v, err := g.venue(m)
	if err != nil {
		return common.DefaultFilters(symbol)
	}
	f, err := v.GetSymbolFilters(ctx, symbol)
	if err != nil {
		log.Printf("⚠️ filters %s unavailable, using defaults: %v", symbol, err)
		return common.DefaultFilters(symbol)
	}
	g.filters.Set(key, f)
	return f
}

// ValidateOrderSize checks qty at price against the symbol's minimums.
func (g *Gateway) ValidateOrderSize(ctx context.Context, m common.MarketType, symbol string, qty, price float64) common.SizeCheck {
	return g.SymbolFilters(ctx, m, symbol).Check(qty, price)
}

func logFailure(op, symbol string, err error) {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		log.Printf("❌ %s %s failed: %s %s status=%d code=%d kind=%s: %s",
			op, symbol, apiErr.Method, apiErr.Endpoint, apiErr.Status, apiErr.Code, apiErr.Kind, apiErr.Message)
		return
	}
	log.Printf("❌ %s %s failed (kind=%s): %v", op, symbol, common.KindOf(err), err)
}
