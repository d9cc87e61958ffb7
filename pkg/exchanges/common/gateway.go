package common

import "context"

// Venue is the surface shared by the spot and USDT-M futures clients.
type Venue interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	CancelAllOpenOrders(ctx context.Context, symbol string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
	GetBalances(ctx context.Context) ([]Balance, error)
}

// DerivativesVenue adds the position and leverage endpoints futures expose.
type DerivativesVenue interface {
	Venue
	GetPositions(ctx context.Context) ([]Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
