package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"signal-executor/internal/order"
)

// decodeSignal maps the JSON form of a submitted struct onto a TradeSignal.
// Struct numbers arrive as floats, so leverage is accepted either way.
func decodeSignal(raw []byte) (order.TradeSignal, error) {
	var wire struct {
		order.TradeSignal
		Leverage   float64 `json:"leverage"`
		ReceivedAt string  `json:"received_at"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return order.TradeSignal{}, fmt.Errorf("decode signal: %w", err)
	}
	sig := wire.TradeSignal
	sig.ID = ""
	sig.Leverage = int(wire.Leverage)
	if wire.ReceivedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, wire.ReceivedAt); err == nil {
			sig.ReceivedAt = t
		}
	}
	if sig.Source == "" {
		sig.Source = defaultSourceTag
	}
	return sig, nil
}
