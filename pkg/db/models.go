package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// PositionRow is one open position; Data holds the full JSON record.
type PositionRow struct {
	Symbol     string
	Direction  string
	TradeClass string
	Confirmed  bool
	Data       []byte
	CreatedAt  time.Time
}

// TradeRow is one closed trade.
type TradeRow struct {
	ID         int64
	Symbol     string
	Direction  string
	TradeClass string
	PnL        float64
	Data       []byte
	ClosedAt   time.Time
}

// SignalRow is one entry of the signal audit log.
type SignalRow struct {
	ID         string
	Symbol     string
	Direction  string
	TradeClass string
	Source     string
	Stage      string
	Reason     string
	Payload    []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReplacePositions overwrites the whole open-position table in one transaction.
func (d *Database) ReplacePositions(ctx context.Context, rows []PositionRow) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM open_positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO open_positions (symbol, direction, trade_class, confirmed, data, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.Symbol, r.Direction, r.TradeClass, boolToInt(r.Confirmed), string(r.Data), r.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert position %s: %w", r.Symbol, err)
		}
	}
	return tx.Commit()
}

// ListPositions returns all open positions ordered by creation.
func (d *Database) ListPositions(ctx context.Context) ([]PositionRow, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, direction, trade_class, confirmed, data, created_at
		FROM open_positions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []PositionRow
	for rows.Next() {
		var (
			p         PositionRow
			confirmed int
			data      string
			created   int64
		)
		if err := rows.Scan(&p.Symbol, &p.Direction, &p.TradeClass, &confirmed, &data, &created); err != nil {
			return nil, err
		}
		p.Confirmed = confirmed != 0
		p.Data = []byte(data)
		p.CreatedAt = time.UnixMilli(created)
		res = append(res, p)
	}
	return res, rows.Err()
}

// InsertTrade appends a closed trade.
func (d *Database) InsertTrade(ctx context.Context, t TradeRow) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO trade_history (symbol, direction, trade_class, pnl, data, closed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Symbol, t.Direction, t.TradeClass, t.PnL, string(t.Data), t.ClosedAt.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListTrades returns trades closed at or after since, oldest first. Zero since means all.
func (d *Database) ListTrades(ctx context.Context, since time.Time) ([]TradeRow, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixMilli()
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, direction, trade_class, pnl, data, closed_at
		FROM trade_history WHERE closed_at >= ? ORDER BY closed_at, id`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []TradeRow
	for rows.Next() {
		var (
			t      TradeRow
			data   string
			closed int64
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Direction, &t.TradeClass, &t.PnL, &data, &closed); err != nil {
			return nil, err
		}
		t.Data = []byte(data)
		t.ClosedAt = time.UnixMilli(closed)
		res = append(res, t)
	}
	return res, rows.Err()
}

// InsertSignal records a newly submitted signal.
func (d *Database) InsertSignal(ctx context.Context, s SignalRow) error {
	now := s.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signal_log (id, symbol, direction, trade_class, source, stage, reason, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Symbol, s.Direction, s.TradeClass, s.Source, s.Stage, s.Reason, string(s.Payload), now.UnixMilli(), now.UnixMilli())
	return err
}

// UpdateSignalStage moves a signal to a new stage.
func (d *Database) UpdateSignalStage(ctx context.Context, id, stage, reason string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE signal_log SET stage = ?, reason = ?, updated_at = ? WHERE id = ?`,
		stage, reason, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSignal returns one audit entry.
func (d *Database) GetSignal(ctx context.Context, id string) (*SignalRow, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, direction, trade_class, source, stage, reason, payload, created_at, updated_at
		FROM signal_log WHERE id = ?`, id)
	s, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListSignals returns the most recent audit entries, newest first.
func (d *Database) ListSignals(ctx context.Context, limit int) ([]SignalRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, direction, trade_class, source, stage, reason, payload, created_at, updated_at
		FROM signal_log ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []SignalRow
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(sc scanner) (*SignalRow, error) {
	var (
		s                SignalRow
		payload          string
		created, updated int64
	)
	if err := sc.Scan(&s.ID, &s.Symbol, &s.Direction, &s.TradeClass, &s.Source, &s.Stage, &s.Reason, &payload, &created, &updated); err != nil {
		return nil, err
	}
	s.Payload = []byte(payload)
	s.CreatedAt = time.UnixMilli(created)
	s.UpdatedAt = time.UnixMilli(updated)
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
