package events

import "time"

// Event enumerates lifecycle topics inside the executor.
type Event string

const (
	EventSignalQueued        Event = "signal.queued"
	EventSignalDropped       Event = "signal.dropped"
	EventSignalRejected      Event = "signal.rejected"
	EventExecutionStarted    Event = "execution.started"
	EventExecutionSucceeded  Event = "execution.succeeded"
	EventExecutionFailed     Event = "execution.failed"
	EventPositionUnprotected Event = "position.unprotected"
	EventPositionConfirmed   Event = "position.confirmed"
	EventPnLChanged          Event = "position.pnl_changed"
	EventTakeProfitHit       Event = "position.take_profit_hit"
	EventStopLossHit         Event = "position.stop_loss_hit"
	EventPositionClosed      Event = "position.closed"
	EventPositionDiscarded   Event = "position.discarded"
	EventUntrackedPosition   Event = "reconcile.untracked"
	EventReconcileReport     Event = "reconcile.report"
	EventDailyLossBreached   Event = "risk.daily_loss"
	EventClockResync         Event = "gateway.clock_resync"
	EventDailyReport         Event = "report.daily"
	EventConfigUpdated       Event = "config.updated"
	EventSystem              Event = "system"

	// EventAll receives every published event.
	EventAll Event = "*"
)

// Level grades how loudly a message should be delivered.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is the payload carried on the bus and delivered to notification sinks.
type Message struct {
	Event  Event          `json:"event"`
	Level  Level          `json:"level"`
	Symbol string         `json:"symbol,omitempty"`
	Text   string         `json:"text"`
	Data   map[string]any `json:"data,omitempty"`
	Time   time.Time      `json:"time"`
}

// Silent events are published on the bus and logged but not pushed to chat.
func (e Event) Silent() bool {
	switch e {
	case EventPositionDiscarded, EventConfigUpdated:
		return true
	}
	return false
}
