package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"signal-executor/pkg/db"
)

// DBStore persists the book and history in sqlite.
// The open-position table is replaced inside one transaction on every save.
type DBStore struct {
	db *db.Database
}

func NewDBStore(database *db.Database) *DBStore {
	return &DBStore{db: database}
}

func (s *DBStore) LoadPositions(ctx context.Context) ([]Position, error) {
	rows, err := s.db.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(rows))
	for _, r := range rows {
		var p Position
		if err := json.Unmarshal(r.Data, &p); err != nil {
			return nil, fmt.Errorf("decode position %s: %w", r.Symbol, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *DBStore) SavePositions(ctx context.Context, positions []Position) error {
	rows := make([]db.PositionRow, 0, len(positions))
	for _, p := range positions {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		rows = append(rows, db.PositionRow{
			Symbol:     p.Symbol,
			Direction:  string(p.Direction),
			TradeClass: string(p.Class),
			Confirmed:  p.Confirmed,
			Data:       data,
			CreatedAt:  p.CreatedAt,
		})
	}
	return s.db.ReplacePositions(ctx, rows)
}

func (s *DBStore) LoadTrades(ctx context.Context) ([]TradeRecord, error) {
	rows, err := s.db.ListTrades(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	out := make([]TradeRecord, 0, len(rows))
	for _, r := range rows {
		var t TradeRecord
		if err := json.Unmarshal(r.Data, &t); err != nil {
			return nil, fmt.Errorf("decode trade %d: %w", r.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *DBStore) AppendTrade(ctx context.Context, t TradeRecord) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.InsertTrade(ctx, db.TradeRow{
		Symbol:     t.Symbol,
		Direction:  string(t.Direction),
		TradeClass: string(t.Class),
		PnL:        t.PnL,
		Data:       data,
		ClosedAt:   t.ClosedAt,
	})
	return err
}
