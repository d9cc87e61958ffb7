package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes the order types the executor places.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"        // Futures only
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET" // Futures only
)

// IsTrigger reports whether the order type carries a stopPrice.
func (t OrderType) IsTrigger() bool {
	return t == OrderTypeStopMarket || t == OrderTypeTakeProfitMarket
}

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFFOK TimeInForce = "FOK" // Fill Or Kill
)

// WorkingTypeMarkPrice makes trigger orders fire on the mark price instead of last trade.
const WorkingTypeMarkPrice = "MARK_PRICE"

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// MarketType distinguishes spot vs futures venues.
type MarketType string

const (
	MarketSpot    MarketType = "SPOT"
	MarketUSDTFut MarketType = "USDT_FUTURES"
)

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         float64
	Price       float64 // required for LIMIT
	StopPrice   float64 // required for trigger orders
	TimeInForce TimeInForce
	ClientID    string // optional client order id
	ReduceOnly  bool
	Market      MarketType

	// Futures-specific
	WorkingType  string // MARK_PRICE or CONTRACT_PRICE
	PriceProtect bool
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	ExchangeOrderID string
	Status          OrderStatus
	ClientID        string
	Triggered       bool // trigger price was already crossed; nothing rests on the book
}

// Position is an exchange-reported open position. Amount is signed for futures
// (negative = short); spot holdings are always positive.
type Position struct {
	Symbol        string
	Market        MarketType
	Amount        float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      int
	UpdatedAt     time.Time
}

// Direction returns "long" or "short" from the signed amount.
func (p Position) Direction() string {
	if p.Amount < 0 {
		return "short"
	}
	return "long"
}

// Balance is a normalized asset balance.
type Balance struct {
	Asset     string
	Market    MarketType
	Total     float64
	Available float64
}

// OpenOrder is a normalized resting order.
type OpenOrder struct {
	Symbol     string
	Market     MarketType
	OrderID    string
	ClientID   string
	Side       Side
	Type       string
	Price      float64
	StopPrice  float64
	Qty        float64
	Status     OrderStatus
	ReduceOnly bool
}
