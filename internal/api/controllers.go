package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signal-executor/internal/order"
	"signal-executor/pkg/config"

	"github.com/gin-gonic/gin"
)

type listSignalsQuery struct {
	Limit int `form:"limit"`
}

func (q *listSignalsQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

type cancelAllRequest struct {
	Symbol string `json:"symbol" binding:"required,min=1"`
}

// configPatch carries only the fields a caller wants to change.
type configPatch struct {
	Mode                *string   `json:"mode"`
	Leverage            *int      `json:"leverage"`
	MaxFuturesTrade     *int      `json:"max_futures_trade"`
	MaxSpotTrade        *int      `json:"max_spot_trade"`
	MaxDailyLoss        *float64  `json:"max_daily_loss"`
	FuturesPositionSize *float64  `json:"futures_position_size"`
	SpotPositionSize    *float64  `json:"spot_position_size"`
	Blacklist           *[]string `json:"blacklist"`
	IsTradingEnabled    *bool     `json:"is_trading_enabled"`
	MinConfidence       *float64  `json:"min_confidence"`
	MaxRiskReward       *float64  `json:"max_risk_reward"`
}

func (p configPatch) apply(c *config.TradingConfig) {
	if p.Mode != nil {
		c.Mode = *p.Mode
	}
	if p.Leverage != nil {
		c.Leverage = *p.Leverage
	}
	if p.MaxFuturesTrade != nil {
		c.MaxFuturesTrade = *p.MaxFuturesTrade
	}
	if p.MaxSpotTrade != nil {
		c.MaxSpotTrade = *p.MaxSpotTrade
	}
	if p.MaxDailyLoss != nil {
		c.MaxDailyLoss = *p.MaxDailyLoss
	}
	if p.FuturesPositionSize != nil {
		c.FuturesPositionSize = *p.FuturesPositionSize
	}
	if p.SpotPositionSize != nil {
		c.SpotPositionSize = *p.SpotPositionSize
	}
	if p.Blacklist != nil {
		c.Blacklist = append([]string{}, (*p.Blacklist)...)
	}
	if p.IsTradingEnabled != nil {
		c.IsTradingEnabled = *p.IsTradingEnabled
	}
	if p.MinConfidence != nil {
		c.MinConfidence = *p.MinConfidence
	}
	if p.MaxRiskReward != nil {
		c.MaxRiskReward = *p.MaxRiskReward
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// sinceDays parses ?days=N into a UTC cutoff; absent or 0 means all time.
func sinceDays(c *gin.Context) (time.Time, error) {
	raw := c.Query("days")
	if raw == "" {
		return time.Time{}, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return time.Time{}, fmt.Errorf("days must be a non-negative integer, got %q", raw)
	}
	if days == 0 {
		return time.Time{}, nil
	}
	return time.Now().UTC().AddDate(0, 0, -days), nil
}

// submitSignal accepts a parsed signal into the execution queue.
func (s *Server) submitSignal(c *gin.Context) {
	var sig order.TradeSignal
	if err := c.ShouldBindJSON(&sig); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid signal payload")
		return
	}
	if sig.Source == "" {
		sig.Source = "api:" + CurrentOperator(c)
	}
	sig.ID = ""

	queued, err := s.deps.Intake.Submit(c.Request.Context(), sig)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{
			"signal_id": queued.ID,
			"stage":     order.StageQueued,
			"signal":    queued,
		})
	case errors.Is(err, order.ErrInvalidSignal):
		respondError(c, http.StatusBadRequest, "INVALID_SIGNAL", err.Error())
	case errors.Is(err, order.ErrRateLimited):
		respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())
	case errors.Is(err, order.ErrQueueClosed):
		respondError(c, http.StatusServiceUnavailable, "QUEUE_CLOSED", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func (s *Server) listSignals(c *gin.Context) {
	var q listSignalsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()
	if s.deps.Signals == nil {
		c.JSON(http.StatusOK, []order.SignalRecord{})
		return
	}
	records, err := s.deps.Signals.List(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) getSignal(c *gin.Context) {
	if s.deps.Signals == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "signal log disabled")
		return
	}
	rec, err := s.deps.Signals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	if rec == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "signal not found")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) getQueue(c *gin.Context) {
	pending := s.deps.Queue.Pending()
	if pending == nil {
		pending = []order.TradeSignal{}
	}
	c.JSON(http.StatusOK, gin.H{
		"length":       s.deps.Queue.QueueLen(),
		"pending":      pending,
		"worker_alive": s.deps.Queue.Alive(),
		"restarts":     s.deps.Queue.Restarts(),
	})
}

func (s *Server) getPositions(c *gin.Context) {
	summary, err := s.deps.Tracker.ActivePositionsSummary(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusBadGateway, "EXCHANGE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
		"tracked": s.deps.Book.List(),
	})
}

func (s *Server) getBalances(c *gin.Context) {
	if s.deps.Balance == nil {
		respondError(c, http.StatusServiceUnavailable, "UNAVAILABLE", "balance sync disabled")
		return
	}
	c.JSON(http.StatusOK, s.deps.Balance.GetBalance())
}

func (s *Server) cancelAll(c *gin.Context) {
	var req cancelAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "symbol is required")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	n, err := s.deps.Orders.CancelAllOrders(c.Request.Context(), symbol)
	if err != nil {
		respondError(c, http.StatusBadGateway, "EXCHANGE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "cancelled": n})
}

func (s *Server) getTrades(c *gin.Context) {
	since, err := sinceDays(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	trades := s.deps.History.List(since)
	c.JSON(http.StatusOK, gin.H{"count": len(trades), "trades": trades})
}

func (s *Server) getTradeStats(c *gin.Context) {
	since, err := sinceDays(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.deps.History.Stats(since))
}

func (s *Server) getConfig(c *gin.Context) {
	snap := s.deps.Config.Current()
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"loaded_at": snap.LoadedAt,
		"config":    snap.Config,
	})
}

func (s *Server) patchConfig(c *gin.Context) {
	var patch configPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid config payload")
		return
	}
	snap, err := s.deps.Config.Update(patch.apply)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}
	log.Printf("✓ trading config v%d applied via API by %s", snap.Version, CurrentOperator(c))
	c.JSON(http.StatusOK, gin.H{
		"version": snap.Version,
		"config":  snap.Config,
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.deps.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_DISABLED", "metrics not configured")
		return
	}
	c.JSON(http.StatusOK, s.deps.Metrics.GetSnapshot())
}
