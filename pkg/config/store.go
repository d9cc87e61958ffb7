package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable, versioned view of the trading config.
type Snapshot struct {
	Version  uint64
	Config   TradingConfig
	LoadedAt time.Time
}

// Store owns the trading config file and hands out snapshots.
// Readers never see a partially applied change.
type Store struct {
	path     string
	interval time.Duration

	current atomic.Pointer[Snapshot]

	mu      sync.Mutex // serializes reloads, updates and subscriber changes
	modTime time.Time
	subs    map[int]chan *Snapshot
	nextSub int
}

// NewStore loads path, writing defaults when the file does not exist.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:     path,
		interval: time.Second,
		subs:     make(map[int]chan *Snapshot),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg := DefaultTradingConfig()
		if err := s.write(cfg); err != nil {
			return nil, err
		}
		s.swap(cfg)
		log.Printf("✓ trading config not found, defaults written to %s", path)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read trading config: %w", err)
	}

	cfg, err := ParseTradingConfig(data)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err == nil {
		s.modTime = info.ModTime()
	}
	s.swap(cfg)
	return s, nil
}

// NewStaticStore holds cfg in memory only; used where no file backs the config.
func NewStaticStore(cfg TradingConfig) *Store {
	s := &Store{subs: make(map[int]chan *Snapshot)}
	cfg.Normalize()
	s.swap(cfg)
	return s
}

// Current returns the latest snapshot.
func (s *Store) Current() *Snapshot { return s.current.Load() }

// Config returns a mutable copy of the latest config.
func (s *Store) Config() TradingConfig { return s.current.Load().Config.Clone() }

// swap publishes cfg as a new version and notifies subscribers. Caller holds mu
// except during construction.
func (s *Store) swap(cfg TradingConfig) *Snapshot {
	var version uint64 = 1
	if prev := s.current.Load(); prev != nil {
		version = prev.Version + 1
	}
	snap := &Snapshot{Version: version, Config: cfg.Clone(), LoadedAt: time.Now()}
	s.current.Store(snap)

	for _, ch := range s.subs {
		// latest wins: drop a stale pending snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
	return snap
}

// Subscribe returns a channel receiving every new snapshot (latest wins).
func (s *Store) Subscribe() (<-chan *Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan *Snapshot, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Update applies fn to a copy of the config, validates, persists and publishes it.
func (s *Store) Update(fn func(*TradingConfig)) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().Config.Clone()
	fn(&next)
	next.Normalize()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if s.path != "" {
		if err := s.write(next); err != nil {
			return nil, err
		}
	}
	return s.swap(next), nil
}

// Reload re-reads the file if its modification time changed.
// An invalid file is reported and the previous snapshot stays.
func (s *Store) Reload() (bool, error) {
	if s.path == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return false, fmt.Errorf("stat trading config: %w", err)
	}
	if info.ModTime().Equal(s.modTime) {
		return false, nil
	}
	s.modTime = info.ModTime()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("read trading config: %w", err)
	}
	cfg, err := ParseTradingConfig(data)
	if err != nil {
		return false, err
	}
	snap := s.swap(cfg)
	log.Printf("🔄 trading config reloaded (version %d)", snap.Version)
	return true, nil
}

// Watch polls the file until ctx is done.
func (s *Store) Watch(ctx context.Context) {
	if s.path == "" {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reload(); err != nil {
				log.Printf("⚠️ trading config reload skipped: %v", err)
			}
		}
	}
}

// write persists cfg atomically and records the new modification time.
func (s *Store) write(cfg TradingConfig) error {
	data, err := cfg.encode()
	if err != nil {
		return fmt.Errorf("encode trading config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write trading config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace trading config: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return nil
}
