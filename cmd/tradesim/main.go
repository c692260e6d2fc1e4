package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dstolz/tradesim/internal/backtest"
	"github.com/dstolz/tradesim/internal/book"
	"github.com/dstolz/tradesim/internal/config"
	"github.com/dstolz/tradesim/internal/handler"
	"github.com/dstolz/tradesim/internal/ledger"
	"github.com/dstolz/tradesim/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	scenarioPath := flag.String("scenario", "", "Backtest scenario YAML file")
	runNow := flag.Bool("run", false, "Run the scenario replay and exit instead of serving")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load the scenario, if any; its portfolio settings override the
	// environment's.
	var scenario *backtest.Scenario
	if *scenarioPath != "" {
		scenario, err = backtest.LoadScenario(*scenarioPath)
		if err != nil {
			logger.Error("failed to load scenario", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if scenario.StrategyID != "" {
			cfg.StrategyID = scenario.StrategyID
		}
		cfg.Funding = scenario.Funding
		if !scenario.FundingDate.IsZero() {
			cfg.FundingDate = scenario.FundingDate
		}
		if scenario.Slippage > 0 {
			cfg.Slippage = scenario.Slippage
		}
		if scenario.FeeRate > 0 {
			cfg.FeeRate = scenario.FeeRate
		}
	} else if *runNow {
		logger.Error("-run requires -scenario")
		os.Exit(1)
	}

	// Instantiate stores.
	var (
		bookStore     store.BookStore
		positionStore store.PositionStore
	)
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := store.Open(cfg.SQLiteDSN)
		if err != nil {
			logger.Error("failed to open database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()
		bookStore, err = store.NewSQLiteBookStore(db, cfg.StrategyID)
		if err == nil {
			positionStore, err = store.NewSQLitePositionStore(db, cfg.StrategyID)
		}
		if err != nil {
			logger.Error("failed to initialize stores", slog.String("error", err.Error()))
			os.Exit(1)
		}
	default:
		bookStore = store.NewMemoryBookStore(cfg.StrategyID)
		positionStore = store.NewMemoryPositionStore(cfg.StrategyID)
	}

	// Ledger and its actor.
	l, err := ledger.New(ledger.Config{
		Funding:              cfg.Funding,
		FundingTime:          cfg.FundingDate,
		TrackCapital:         cfg.TrackCapital,
		CashTolerance:        cfg.CashTolerance,
		RejectSameTimeTrades: cfg.RejectSameTimeTrades,
	}, positionStore, logger)
	if err != nil {
		logger.Error("failed to create ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	ledgerActor := ledger.NewActor(l)
	defer ledgerActor.Stop()
	ledgerClient := ledger.NewClient(ledgerActor, cfg.AskTimeout)

	// Book and its actor.
	var fee book.FeeFunc
	if cfg.FeeRate > 0 {
		rate := cfg.FeeRate
		fee = func(qty, price float64) float64 {
			v := qty * price
			if v < 0 {
				v = -v
			}
			return v * rate
		}
	}
	b := book.New(book.Config{
		StrategyID:             cfg.StrategyID,
		MinimumQuantity:        cfg.MinQuantity,
		Slippage:               cfg.Slippage,
		RelativeOrderMinImpact: cfg.MinOrderImpact,
		PercentAllowShort:      cfg.PercentAllowShort,
		Fee:                    fee,
	}, bookStore, ledgerClient, logger)
	bookActor := book.NewActor(b)
	defer bookActor.Stop()
	bookClient := book.NewClient(bookActor, cfg.AskTimeout)

	// Orchestrator, when a scenario was given.
	var replayer *backtest.Replayer
	if scenario != nil {
		frame, err := scenario.LoadFrame()
		if err != nil {
			logger.Error("failed to load market data", slog.String("error", err.Error()))
			os.Exit(1)
		}
		orch := backtest.New(backtest.Config{
			SignalDelay: cfg.SignalDelay,
		}, frame, ledgerClient, bookClient, logger)
		backtestActor := backtest.NewActor(orch)
		defer backtestActor.Stop()
		replayer = backtest.NewReplayer(backtestActor, scenario.SignalList())
	}

	if *runNow {
		result, err := replayer.ReplayAll(context.Background())
		if err != nil {
			logger.Error("replay failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		n := len(result.Performance.Times)
		summary := logger.With(
			slog.Int("placed_orders", len(result.Placed)),
			slog.Int("archived_orders", len(result.Orders)),
		)
		if n > 0 {
			last := result.Performance.Times[n-1]
			if v, ok := result.Performance.Get(last, "value"); ok {
				summary = summary.With(slog.Float64("final_value", v))
			}
			if p, ok := result.Performance.Get(last, "performance"); ok {
				summary = summary.With(slog.Float64("performance", p))
			}
		}
		summary.Info("replay complete")
		return
	}

	// Router.
	router := handler.NewRouter(bookClient, ledgerClient, replayer, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("strategy", cfg.StrategyID),
			slog.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop the HTTP server, then the actors via the
	// deferred Stops.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
