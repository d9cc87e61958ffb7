package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps positions.json (keyed by symbol) and trades.json in dir.
// Every write goes to a temp file that is synced and renamed over the target.
type FileStore struct {
	mu            sync.Mutex
	positionsPath string
	tradesPath    string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		positionsPath: filepath.Join(dir, "positions.json"),
		tradesPath:    filepath.Join(dir, "trades.json"),
	}, nil
}

func (s *FileStore) LoadPositions(context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySymbol := map[string]Position{}
	if err := readJSON(s.positionsPath, &bySymbol); err != nil {
		return nil, err
	}
	return sortedValues(bySymbol), nil
}

func (s *FileStore) SavePositions(_ context.Context, positions []Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySymbol := make(map[string]Position, len(positions))
	for _, p := range positions {
		bySymbol[p.Symbol] = p
	}
	return writeJSONAtomic(s.positionsPath, bySymbol)
}

func (s *FileStore) LoadTrades(context.Context) ([]TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var trades []TradeRecord
	if err := readJSON(s.tradesPath, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// AppendTrade rewrites the whole history with t appended.
func (s *FileStore) AppendTrade(_ context.Context, t TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var trades []TradeRecord
	if err := readJSON(s.tradesPath, &trades); err != nil {
		return err
	}
	return writeJSONAtomic(s.tradesPath, append(trades, t))
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
