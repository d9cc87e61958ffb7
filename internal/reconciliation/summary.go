package reconciliation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"signal-executor/internal/state"
	"signal-executor/pkg/exchanges/common"
)

// ActivePositionsSummary renders exchange positions followed by local tracking state.
func (t *Tracker) ActivePositionsSummary(ctx context.Context) (string, error) {
	live, err := t.deps.Exchange.Positions(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch positions: %w", err)
	}

	var b strings.Builder
	if len(live) == 0 {
		b.WriteString("No active positions")
	} else {
		fmt.Fprintf(&b, "Active Positions (%d):\n", len(live))
		for _, p := range live {
			mark := p.MarkPrice
			if mark <= 0 {
				if price, err := t.deps.Exchange.TickerPrice(ctx, p.Market, p.Symbol); err == nil {
					mark = price
				}
			}
			emoji := "🟢"
			if p.UnrealizedPnL < 0 {
				emoji = "🔴"
			}
			fmt.Fprintf(&b, "\n%s %s\nSide: %s\nSize: %g\nEntry: %s\nMark: %s\nPnL: %+.2f USDT\n",
				emoji, p.Symbol, strings.ToUpper(p.Direction()), math.Abs(p.Amount),
				priceOrDash(p.EntryPrice), priceOrDash(mark), p.UnrealizedPnL)
		}
	}

	local := t.deps.Book.List()
	if len(local) > 0 {
		b.WriteString("\nLocal tracking:\n")
		for _, pos := range local {
			b.WriteString(trackingLine(pos))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func trackingLine(pos state.Position) string {
	status := "pending entry"
	if pos.Confirmed {
		status = "confirmed"
	}
	var hits []string
	for i, h := range pos.TPHits {
		if h.Hit {
			hits = append(hits, "TP"+strconv.Itoa(i+1))
		}
	}
	if pos.SLHit.Hit {
		hits = append(hits, "SL")
	}
	levels := "none hit"
	if len(hits) > 0 {
		levels = strings.Join(hits, ", ") + " hit"
	}
	return fmt.Sprintf("• %s %s %s (%s, %dx) %s\n",
		pos.Symbol, strings.ToUpper(string(pos.Direction)), common.FormatDecimal(pos.Size), status, pos.Leverage, levels)
}

func priceOrDash(v float64) string {
	if v <= 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
