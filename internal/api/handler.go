package api

import (
	"context"
	"net/http"
	"time"

	"signal-executor/internal/balance"
	"signal-executor/internal/events"
	"signal-executor/internal/monitor"
	"signal-executor/internal/order"
	"signal-executor/internal/state"
	"signal-executor/pkg/config"

	"github.com/gin-gonic/gin"
)

// SignalLog reads the audited signal history.
type SignalLog interface {
	Get(ctx context.Context, id string) (*order.SignalRecord, error)
	List(ctx context.Context, limit int) ([]order.SignalRecord, error)
}

// QueueView exposes the execution pipeline's state.
type QueueView interface {
	Pending() []order.TradeSignal
	QueueLen() int
	Alive() bool
	Restarts() int64
}

// PositionBook is the local position store.
type PositionBook interface {
	List() []state.Position
}

// TradeHistory reads closed trades.
type TradeHistory interface {
	List(since time.Time) []state.TradeRecord
	Stats(since time.Time) state.Stats
}

// PositionReporter renders exchange positions.
type PositionReporter interface {
	ActivePositionsSummary(ctx context.Context) (string, error)
}

// OrderCanceller clears resting orders for a symbol.
type OrderCanceller interface {
	CancelAllOrders(ctx context.Context, symbol string) (int, error)
}

// BalanceView reads the last synced account balances.
type BalanceView interface {
	GetBalance() balance.Snapshot
}

// Deps are the services behind the control API.
type Deps struct {
	Intake  order.Submitter
	Signals SignalLog
	Queue   QueueView
	Book    PositionBook
	History TradeHistory
	Tracker PositionReporter
	Orders  OrderCanceller
	Balance BalanceView
	Config  *config.Store
	Metrics *monitor.SystemMetrics
	Bus     *events.Bus
}

// SystemMeta describes runtime status exposed on /health.
type SystemMeta struct {
	HostID      string
	Version     string
	SpotEnabled bool
}

// Auth configures token issuance.
type Auth struct {
	JWTSecret string
	APIKey    string // empty disables token issuance
	TokenTTL  time.Duration
}

// Server wires HTTP endpoints around the executor.
type Server struct {
	Router *gin.Engine
	deps   Deps
	auth   Auth
	meta   SystemMeta
}

func NewServer(deps Deps, auth Auth, meta SystemMeta) *Server {
	if auth.TokenTTL <= 0 {
		auth.TokenTTL = 24 * time.Hour
	}
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(deps.Metrics))
	r.Use(RateLimitMiddleware(newIPLimiter(20, 50, 5*time.Minute)))
	r.Use(CORSMiddleware())

	s := &Server{Router: r, deps: deps, auth: auth, meta: meta}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/metrics", s.getMetrics)
		api.POST("/auth/token", s.issueToken)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.auth.JWTSecret))
		{
			protected.POST("/signals", s.submitSignal)
			protected.GET("/signals", s.listSignals)
			protected.GET("/signals/:id", s.getSignal)
			protected.GET("/queue", s.getQueue)

			protected.GET("/positions", s.getPositions)
			protected.POST("/orders/cancel-all", s.cancelAll)
			protected.GET("/balances", s.getBalances)

			protected.GET("/trades", s.getTrades)
			protected.GET("/trades/stats", s.getTradeStats)

			protected.GET("/config", s.getConfig)
			protected.PATCH("/config", s.patchConfig)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	snap := s.deps.Config.Current()
	body := gin.H{
		"status":         "ok",
		"host_id":        s.meta.HostID,
		"version":        s.meta.Version,
		"mode":           snap.Config.Mode,
		"trading":        snap.Config.IsTradingEnabled,
		"spot_enabled":   s.meta.SpotEnabled,
		"config_version": snap.Version,
	}
	if s.deps.Queue != nil {
		body["worker_alive"] = s.deps.Queue.Alive()
		body["queue_len"] = s.deps.Queue.QueueLen()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
