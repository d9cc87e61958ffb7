package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"signal-executor/internal/api"
	"signal-executor/internal/balance"
	"signal-executor/internal/events"
	"signal-executor/internal/gateway"
	"signal-executor/internal/monitor"
	"signal-executor/internal/notify"
	"signal-executor/internal/order"
	"signal-executor/internal/reconciliation"
	"signal-executor/internal/risk"
	"signal-executor/internal/rpc"
	"signal-executor/internal/scheduler"
	"signal-executor/internal/state"
	"signal-executor/pkg/config"
	"signal-executor/pkg/db"
	exfutusdt "signal-executor/pkg/exchanges/binance/futures_usdt"
	exspot "signal-executor/pkg/exchanges/binance/spot"
	"signal-executor/pkg/exchanges/common"
	"signal-executor/pkg/hostid"
	"signal-executor/pkg/i18n"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}
	i18n.SetLanguage(i18n.ParseLanguage(cfg.Language))
	msg := i18n.M()
	log.Println(msg.Starting)
	log.Printf(msg.ConfigLoaded, cfg.Port, cfg.GRPCAddr)

	instanceID := hostid.ID()
	log.Printf(msg.HostID, hostid.Short(instanceID))

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}

	// Root context: cancelled on SIGINT/SIGTERM. Notifications get their own so
	// shutdown messages still go out after the workers stop.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	defer stopNotify()

	// Trading config (hot reloaded)
	tradingStore, err := config.NewStore(cfg.TradingConfigPath)
	if err != nil {
		log.Fatalf(msg.ConfigLoadFailed, err)
	}
	trading := tradingStore.Current()
	log.Printf(msg.TradingConfigLoad, trading.Version, cfg.TradingConfigPath)

	// Persistence
	persister, database, closeStore := openStore(cfg)
	defer closeStore()
	book := state.NewManager(persister)
	history := state.NewHistory(persister)
	if err := book.Load(ctx); err != nil {
		log.Fatalf(msg.StateLoadFailed, err)
	}
	if err := history.Load(ctx); err != nil {
		log.Fatalf(msg.StateLoadFailed, err)
	}
	log.Printf(msg.PositionsRestored, book.Len(), len(history.List(time.Time{})))

	// Observability
	bus := events.NewBus()
	sysMetrics := monitor.NewSystemMetrics()
	(&monitor.Monitor{Bus: bus, Metrics: sysMetrics}).Start(ctx)

	var sinks []notify.Sink
	if tg := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID); tg != nil {
		sinks = append(sinks, tg)
		log.Println(msg.TelegramEnabled)
	} else {
		log.Println(msg.TelegramDisabled)
	}
	dispatcher := notify.NewDispatcher(bus, 200, sinks...)
	dispatcher.Start(notifyCtx)

	// Exchange clients: paper mode trades futures on the testnet; spot is live only.
	live := trading.Config.IsLive()
	if live {
		log.Println(msg.LiveMode)
	} else {
		log.Println(msg.PaperMode)
	}
	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		log.Println("⚠️ " + msg.CredentialsMissing)
	}
	futures := exfutusdt.NewClient(exfutusdt.Config{
		APIKey:     cfg.BinanceAPIKey,
		APISecret:  cfg.BinanceAPISecret,
		Testnet:    !live,
		RecvWindow: cfg.BinanceRecvWindow,
		Observer:   sysMetrics,
		Retry:      common.DefaultRetryPolicy(),
	})
	clocks := []*common.TimeSync{futures.Clock()}

	gwCfg := gateway.Config{Futures: futures, ClientIDPrefix: "se" + hostid.Short(instanceID)}
	if live {
		spot := exspot.New(exspot.Config{
			APIKey:     cfg.BinanceAPIKey,
			APISecret:  cfg.BinanceAPISecret,
			RecvWindow: cfg.BinanceRecvWindow,
			Observer:   sysMetrics,
			Retry:      common.DefaultRetryPolicy(),
		})
		gwCfg.Spot = spot
		clocks = append(clocks, spot.Clock())
	} else {
		log.Println(msg.SpotDisabled)
	}
	gw := gateway.New(gwCfg)

	for _, clock := range clocks {
		clock.OnSync(func(offsetMs int64) {
			log.Printf(msg.ClockSynced, time.Duration(offsetMs)*time.Millisecond)
		})
		clock.Start(ctx)
	}

	// Risk gate, execution pipeline and intake
	gate := risk.NewManager(book, history, gw)

	var audit order.Audit
	var signalLog api.SignalLog
	if database != nil {
		dbAudit := order.NewDBAudit(database)
		audit, signalLog = dbAudit, dbAudit
	}

	pipeline := order.NewPipeline(order.Options{
		QueueSize:   cfg.QueueSize,
		PollTimeout: cfg.WorkerPollTimeout,
	}, order.Deps{
		Exchange: gw,
		Gate:     gate,
		Book:     book,
		Notifier: dispatcher,
		Trading:  tradingStore,
		Audit:    audit,
		Observer: sysMetrics,
	})
	pipeline.Start(ctx)
	log.Printf(msg.PipelineStarted, cfg.QueueSize)

	intake := order.NewIntake(pipeline, tradingStore, gw, cfg.SubmitRateLimit, cfg.SubmitRateWindow)

	// Position tracker
	tracker := reconciliation.NewTracker(reconciliation.Options{
		Interval:     cfg.TrackerInterval,
		ErrorBackoff: cfg.TrackerErrorBackoff,
	}, reconciliation.Deps{
		Exchange: gw,
		Book:     book,
		History:  history,
		Notifier: dispatcher,
		Observer: sysMetrics,
	})
	tracker.Start(ctx)

	balances := balance.NewManager(gw, cfg.BalanceSyncInterval)
	if cfg.BinanceAPIKey != "" {
		balances.Start(ctx)
	}

	// Scheduled reports
	sched := scheduler.New(history, tradingStore, dispatcher)
	if err := sched.Register(scheduler.Specs{
		DailyReport:    cfg.DailyReportCron,
		DailyLossCheck: cfg.DailyLossCheckCron,
	}); err != nil {
		log.Printf(msg.SchedulerFailed, err)
	} else {
		sched.Start(ctx)
	}

	// Trading config hot reload
	go tradingStore.Watch(ctx)
	go watchTradingConfig(ctx, tradingStore, dispatcher, live)

	// Control surfaces
	apiServer := api.NewServer(api.Deps{
		Intake:  intake,
		Signals: signalLog,
		Queue:   pipeline,
		Book:    book,
		History: history,
		Tracker: tracker,
		Orders:  gw,
		Balance: balances,
		Config:  tradingStore,
		Metrics: sysMetrics,
		Bus:     bus,
	}, api.Auth{
		JWTSecret: cfg.JWTSecret,
		APIKey:    cfg.ControlAPIKey,
	}, api.SystemMeta{
		HostID:      hostid.Short(instanceID),
		Version:     buildVersion,
		SpotEnabled: gw.SpotEnabled(),
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiServer.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf(msg.ServerListening, cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf(msg.APIServerError, err)
			stop()
		}
	}()

	grpcServer := rpc.NewServer(intake, cfg.ControlAPIKey)
	go func() {
		if err := rpc.Serve(grpcServer, cfg.GRPCAddr); err != nil {
			log.Printf(msg.RPCServerError, err)
		}
	}()

	mode := config.ModePaper
	if live {
		mode = config.ModeLive
	}
	dispatcher.Notify(events.Message{
		Event: events.EventSystem,
		Text:  fmt.Sprintf(msg.StartupNotice, mode, hostid.Short(instanceID)),
	})

	<-ctx.Done()
	log.Println(msg.ShuttingDown)
	dispatcher.Notify(events.Message{Event: events.EventSystem, Text: msg.ShutdownNotice})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf(msg.APIServerError, err)
	}
	grpcServer.GracefulStop()
	pipeline.Stop()
	tracker.Stop()

	stopNotify()
	dispatcher.Wait()
	log.Println(msg.ShutdownComplete)
}

// openStore picks the sqlite or JSON persister. The database is nil for the
// JSON backend; the returned func releases it.
func openStore(cfg *config.Config) (state.Persister, *db.Database, func()) {
	msg := i18n.M()
	if cfg.StoreBackend == "json" {
		log.Printf(msg.UsingJSONStore, cfg.DataDir)
		fs, err := state.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Fatalf(msg.StateLoadFailed, err)
		}
		return fs, nil, func() {}
	}

	log.Printf(msg.UsingDBPath, cfg.DBPath)
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf(msg.DBInitFailed, err)
		}
	}
	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(msg.DBInitFailed, err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(msg.DBMigrationsFailed, err)
	}
	return state.NewDBStore(database), database, func() { _ = database.Close() }
}

// watchTradingConfig reports each applied config version.
func watchTradingConfig(ctx context.Context, store *config.Store, notifier order.Notifier, startedLive bool) {
	updates, unsub := store.Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			log.Printf(i18n.M().TradingConfigSaved, snap.Version)
			notifier.Notify(events.Message{
				Event: events.EventConfigUpdated,
				Text:  fmt.Sprintf("Trading config v%d: mode=%s enabled=%t leverage=%d", snap.Version, snap.Config.Mode, snap.Config.IsTradingEnabled, snap.Config.Leverage),
				Data:  map[string]any{"version": snap.Version},
			})
			if snap.Config.IsLive() != startedLive {
				notifier.Notify(events.Message{
					Event: events.EventSystem,
					Level: events.LevelWarning,
					Text:  fmt.Sprintf("Trading mode changed to %s; restart to switch exchange endpoints", snap.Config.Mode),
				})
			}
		}
	}
}
