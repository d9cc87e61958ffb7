package balance

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"signal-executor/pkg/exchanges/common"
)

// ExchangeClient reports wallet balances across markets.
type ExchangeClient interface {
	Balances(ctx context.Context) ([]common.Balance, error)
}

// Snapshot is the last synced view of the account.
type Snapshot struct {
	Assets   []common.Balance `json:"assets"`
	Quote    map[string]Quote `json:"quote"` // per market, quote asset only
	LastSync time.Time        `json:"last_sync"`
	Err      string           `json:"error,omitempty"`
}

// Quote is the quote-asset balance of one market.
type Quote struct {
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
}

// Manager keeps a periodically refreshed balance snapshot.
type Manager struct {
	exchange     ExchangeClient
	syncInterval time.Duration

	mu   sync.RWMutex
	snap Snapshot
}

// NewManager creates a new balance manager
func NewManager(exchange ExchangeClient, syncInterval time.Duration) *Manager {
	if syncInterval <= 0 {
		syncInterval = time.Minute
	}
	return &Manager{
		exchange:     exchange,
		syncInterval: syncInterval,
		snap:         Snapshot{Quote: map[string]Quote{}},
	}
}

// Start begins periodic balance sync
func (m *Manager) Start(ctx context.Context) {
	if err := m.Sync(ctx); err != nil {
		log.Printf("❌ Balance sync error: %v", err)
	}

	ticker := time.NewTicker(m.syncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					log.Printf("❌ Balance sync error: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sync fetches latest balances from the exchange. On failure the previous
// balances are kept and the error is recorded on the snapshot.
func (m *Manager) Sync(ctx context.Context) error {
	if m.exchange == nil {
		return nil
	}

	balances, err := m.exchange.Balances(ctx)
	if err != nil {
		m.mu.Lock()
		m.snap.Err = err.Error()
		m.mu.Unlock()
		return err
	}

	sort.Slice(balances, func(i, j int) bool {
		if balances[i].Market != balances[j].Market {
			return balances[i].Market < balances[j].Market
		}
		return balances[i].Asset < balances[j].Asset
	})
	quote := make(map[string]Quote)
	for _, b := range balances {
		if b.Asset != common.QuoteAsset {
			continue
		}
		quote[string(b.Market)] = Quote{
			Total:     b.Total,
			Available: b.Available,
			Locked:    b.Total - b.Available,
		}
	}

	m.mu.Lock()
	m.snap = Snapshot{Assets: balances, Quote: quote, LastSync: time.Now()}
	m.mu.Unlock()

	fut := quote[string(common.MarketUSDTFut)]
	log.Printf("💰 Balance synced: futures %s Total=%.2f, Available=%.2f (%d assets)",
		common.QuoteAsset, fut.Total, fut.Available, len(balances))
	return nil
}

// GetAvailable returns the available quote balance for market.
func (m *Manager) GetAvailable(market common.MarketType) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Quote[string(market)].Available
}

// GetBalance returns current balance snapshot
func (m *Manager) GetBalance() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.snap
	out.Assets = append([]common.Balance(nil), m.snap.Assets...)
	out.Quote = make(map[string]Quote, len(m.snap.Quote))
	for k, v := range m.snap.Quote {
		out.Quote[k] = v
	}
	return out
}
