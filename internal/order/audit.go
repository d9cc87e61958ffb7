package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"signal-executor/pkg/db"
)

// SignalRecord is one audited signal and its latest stage.
type SignalRecord struct {
	Signal    TradeSignal `json:"signal"`
	Stage     Stage       `json:"stage"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DBAudit keeps the signal log in sqlite.
type DBAudit struct {
	db *db.Database
}

func NewDBAudit(database *db.Database) *DBAudit {
	return &DBAudit{db: database}
}

func (a *DBAudit) RecordSignal(ctx context.Context, sig TradeSignal, stage Stage, reason string) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	return a.db.InsertSignal(ctx, db.SignalRow{
		ID:         sig.ID,
		Symbol:     sig.Symbol,
		Direction:  string(sig.Direction),
		TradeClass: string(sig.Class),
		Source:     sig.Source,
		Stage:      string(stage),
		Reason:     reason,
		Payload:    payload,
		CreatedAt:  sig.ReceivedAt,
	})
}

func (a *DBAudit) UpdateStage(ctx context.Context, id string, stage Stage, reason string) error {
	return a.db.UpdateSignalStage(ctx, id, string(stage), reason)
}

// Get returns one audited signal.
func (a *DBAudit) Get(ctx context.Context, id string) (*SignalRecord, error) {
	row, err := a.db.GetSignal(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := toRecord(*row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the most recent signals, newest first.
func (a *DBAudit) List(ctx context.Context, limit int) ([]SignalRecord, error) {
	rows, err := a.db.ListSignals(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SignalRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := toRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func toRecord(r db.SignalRow) (SignalRecord, error) {
	var sig TradeSignal
	if err := json.Unmarshal(r.Payload, &sig); err != nil {
		return SignalRecord{}, fmt.Errorf("decode signal %s: %w", r.ID, err)
	}
	return SignalRecord{
		Signal:    sig,
		Stage:     Stage(r.Stage),
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}
