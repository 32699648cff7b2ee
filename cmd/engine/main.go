// Command engine runs a batch auction pool: the commit-reveal order
// engine, its HTTP API, and optional batch archiving and reference
// price feed.
//
// # Usage
//
//	go run ./cmd/engine --addr=:8080 --metrics-addr=:9090
//	go run ./cmd/engine --commit-window=8s --reveal-window=2s --db-host=localhost
//
// Participants interact through the signed HTTP API; see the server
// package for the endpoint surface. All pool parameters are uniform for
// every participant and fixed for the lifetime of the process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/api/httpserver"
	"github.com/flashbots/batchclear/engine"
	"github.com/flashbots/batchclear/metrics"
	"github.com/flashbots/batchclear/pricefeed"
	"github.com/flashbots/batchclear/protocol"
	"github.com/flashbots/batchclear/server"
	"github.com/flashbots/batchclear/store"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address (disabled if empty)")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debugging API")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
		logDebug    = flag.Bool("log-debug", false, "Log at debug level")

		commitWindow  = flag.Duration("commit-window", 8*time.Second, "Batch commit phase duration")
		revealWindow  = flag.Duration("reveal-window", 2*time.Second, "Batch reveal phase duration")
		collateralPct = flag.String("collateral-ratio", "0.05", "Collateral as a fraction of declared notional")
		minCollateral = flag.String("min-collateral", "1", "Flat collateral floor")
		slashRate     = flag.String("slash-rate", "0.5", "Fraction of collateral slashed on invalid or missing reveal")
		tradingFee    = flag.String("trading-fee-rate", "0.001", "Fee rate on matched quote volume")
		powDifficulty = flag.Uint("min-pow-difficulty", 16, "Minimum proof-of-work difficulty in leading zero bits")
		notionalCap   = flag.String("notional-cap", "1000000000000", "Aggregate notional cap per batch")
		asset         = flag.String("collateral-asset", "USDC", "Collateral asset symbol")
		holdToSettle  = flag.Bool("hold-collateral", false, "Keep reveal collateral locked until settlement")

		dbHost     = flag.String("db-host", "", "Postgres host for the batch archive (disabled if empty)")
		dbPort     = flag.Int("db-port", 5432, "Postgres port")
		dbUser     = flag.String("db-user", "batchclear", "Postgres user")
		dbPassword = flag.String("db-password", "", "Postgres password")
		dbName     = flag.String("db-name", "batchclear", "Postgres database name")

		feedURL = flag.String("price-feed-url", "", "Reference price websocket URL (disabled if empty)")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *logDebug {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	log := slog.New(handler)

	cfg := protocol.DefaultConfig()
	cfg.CommitWindow = *commitWindow
	cfg.RevealWindow = *revealWindow
	cfg.MinPoWDifficulty = uint32(*powDifficulty)
	cfg.CollateralAsset = *asset
	cfg.HoldCollateralUntilSettlement = *holdToSettle

	var err error
	if cfg.CollateralRatio, err = decimal.NewFromString(*collateralPct); err != nil {
		fatal(log, "invalid --collateral-ratio", err)
	}
	if cfg.MinCollateral, err = decimal.NewFromString(*minCollateral); err != nil {
		fatal(log, "invalid --min-collateral", err)
	}
	if cfg.SlashRate, err = decimal.NewFromString(*slashRate); err != nil {
		fatal(log, "invalid --slash-rate", err)
	}
	if cfg.TradingFeeRate, err = decimal.NewFromString(*tradingFee); err != nil {
		fatal(log, "invalid --trading-fee-rate", err)
	}
	if cfg.NotionalCap, err = decimal.NewFromString(*notionalCap); err != nil {
		fatal(log, "invalid --notional-cap", err)
	}

	var archive engine.BatchArchive
	if *dbHost != "" {
		pg, err := store.NewPostgresStore(&store.PostgresConfig{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Password: *dbPassword,
			Database: *dbName,
		})
		if err != nil {
			fatal(log, "connecting to postgres", err)
		}
		defer pg.Close()
		archive = pg
	}

	m := metrics.New()
	eng, err := engine.New(engine.Config{
		Engine:  cfg,
		Log:     log,
		Archive: archive,
		Metrics: m,
	})
	if err != nil {
		fatal(log, "creating engine", err)
	}

	srv, err := server.NewAuctionServer(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		MetricsAddr:              *metricsAddr,
		Metrics:                  m,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, eng)
	if err != nil {
		fatal(log, "creating server", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *feedURL != "" {
		feed, err := pricefeed.NewFeed(pricefeed.FeedConfig{
			URL:          *feedURL,
			Decode:       decodeTicker,
			Log:          log,
			PingInterval: 30 * time.Second,
		})
		if err != nil {
			fatal(log, "creating price feed", err)
		}
		feed.Start(ctx)
		defer feed.Stop()
	}

	log.Info("starting auction engine",
		"addr", *addr,
		"commitWindow", cfg.CommitWindow,
		"revealWindow", cfg.RevealWindow,
		"collateralAsset", cfg.CollateralAsset,
	)
	srv.RunInBackground(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	cancel()
	srv.Shutdown()
}

// decodeTicker parses the plain ticker format {"pair":"X/USDC","price":"97.5"}.
func decodeTicker(msg []byte) (string, decimal.Decimal, error) {
	var tick struct {
		Pair  string `json:"pair"`
		Price string `json:"price"`
	}
	if err := json.Unmarshal(msg, &tick); err != nil {
		return "", decimal.Zero, err
	}
	if tick.Pair == "" || tick.Price == "" {
		return "", decimal.Zero, fmt.Errorf("not a ticker message")
	}
	price, err := decimal.NewFromString(tick.Price)
	return tick.Pair, price, err
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "err", err)
	os.Exit(1)
}
