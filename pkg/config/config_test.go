package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseTradingConfigDefaultsAndAlias(t *testing.T) {
	cfg, err := ParseTradingConfig([]byte("mode: demo\nmax_daily_loss: 120\nblacklist: [LUNAUSDT]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Mode != ModePaper {
		t.Errorf("demo should map to paper, got %q", cfg.Mode)
	}
	if cfg.MaxDailyLoss != 120 || cfg.FuturesPositionSize != 150 || cfg.MaxFuturesTrade != 2 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !cfg.IsBlacklisted("LUNAUSDT") || cfg.IsBlacklisted("lunausdt") {
		t.Errorf("blacklist must match case-sensitively")
	}

	if _, err := ParseTradingConfig([]byte("mode: yolo\n")); err == nil {
		t.Errorf("expected invalid mode error")
	}
}

func TestStoreWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trading_config.yaml")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults not written: %v", err)
	}
	if s.Current().Version != 1 || !s.Config().IsTradingEnabled {
		t.Fatalf("unexpected snapshot %+v", s.Current())
	}
}

func TestStoreUpdatePublishes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trading_config.yaml")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ch, cancel := s.Subscribe()
	defer cancel()

	before := s.Current()
	snap, err := s.Update(func(c *TradingConfig) { c.IsTradingEnabled = false })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if snap.Version != before.Version+1 {
		t.Fatalf("version not bumped")
	}
	if !before.Config.IsTradingEnabled {
		t.Fatalf("old snapshot mutated")
	}
	select {
	case got := <-ch:
		if got.Config.IsTradingEnabled {
			t.Fatalf("subscriber got stale config")
		}
	case <-time.After(time.Second):
		t.Fatalf("no notification")
	}

	if _, err := s.Update(func(c *TradingConfig) { c.MaxDailyLoss = -1 }); err == nil {
		t.Fatalf("invalid update accepted")
	}
	if s.Current().Version != snap.Version {
		t.Fatalf("rejected update must not publish")
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Config().IsTradingEnabled {
		t.Fatalf("update not persisted")
	}
}

func TestStoreReloadOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trading_config.yaml")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if changed, _ := s.Reload(); changed {
		t.Fatalf("unchanged file reloaded")
	}

	if err := os.WriteFile(path, []byte("mode: live\nleverage: 5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	future := time.Now().Add(time.Minute)
	os.Chtimes(path, future, future)

	changed, err := s.Reload()
	if err != nil || !changed {
		t.Fatalf("expected reload, got %v %v", changed, err)
	}
	if cfg := s.Config(); !cfg.IsLive() || cfg.Leverage != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	// invalid content keeps the previous snapshot
	os.WriteFile(path, []byte("leverage: 999\n"), 0o644)
	later := future.Add(time.Minute)
	os.Chtimes(path, later, later)
	if _, err := s.Reload(); err == nil {
		t.Fatalf("expected validation error")
	}
	if s.Config().Leverage != 5 {
		t.Fatalf("invalid file replaced snapshot")
	}
}
