// Package main provides the tradecore daemon - a multi-venue trading core
// exposing a JSON-RPC surface over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/klingon-exchange/tradecore/internal/aggregator"
	"github.com/klingon-exchange/tradecore/internal/api"
	"github.com/klingon-exchange/tradecore/internal/cache"
	"github.com/klingon-exchange/tradecore/internal/config"
	"github.com/klingon-exchange/tradecore/internal/copytrade"
	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/notify"
	"github.com/klingon-exchange/tradecore/internal/order"
	"github.com/klingon-exchange/tradecore/internal/p2p"
	"github.com/klingon-exchange/tradecore/internal/scheduler"
	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/internal/telemetry"
	"github.com/klingon-exchange/tradecore/internal/venue"
	"github.com/klingon-exchange/tradecore/internal/walletadapter"
	"github.com/klingon-exchange/tradecore/pkg/decimalfmt"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// Exit codes, per the External Interfaces contract: 0 clean shutdown, 1
// configuration error, 2 unrecoverable startup failure.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitStartupFailure = 2
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.tradecore", "Data directory")
		configFile  = flag.String("config", "", "Config file path (YAML)")
		listenAddr  = flag.String("api", "", "JSON-RPC + metrics listen address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("tradecore %s (commit: %s)", version, commit)
		os.Exit(exitOK)
	}

	effectiveDataDir := expandPath(*dataDir)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(exitConfigError)
	}
	if *listenAddr != "" {
		cfg.API.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if cfg.Storage.DataDir == "" || cfg.Storage.DataDir == "./data" {
		cfg.Storage.DataDir = effectiveDataDir
	}
	if cfg.Secrets.EncryptionKey == "" {
		log.Error("missing required environment variable", "var", config.EnvEncryptionKey)
		os.Exit(exitConfigError)
	}
	if len(cfg.Venues) == 0 {
		log.Error("config has no venues configured, nothing to trade against")
		os.Exit(exitConfigError)
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("config loaded", "data_dir", cfg.Storage.DataDir, "venues", len(cfg.Venues))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Error("failed to initialize storage", "error", err)
		os.Exit(exitStartupFailure)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.Storage.DataDir)

	cacheStore := cache.NewMemStore()
	defer cacheStore.Close()

	registry := venue.NewRegistry()
	registerVenues(registry, cfg, log)

	metrics := telemetry.New()
	agg := aggregator.New(registry, cacheStore, store, metrics, log)

	wallet := walletadapter.NewFakeAdapter()

	logPort := notify.NewLogPort(log)
	notifyPort := notify.NewOutboxPort(store, logPort, notify.DefaultOutboxConfig(), log)

	orders := order.New(store, cacheStore, agg, notifyPort, log)
	p2pEngine := p2p.New(store, wallet, notifyPort, log)

	if _, err := copytrade.New(orders, store, cfg.CopyTrading.Ratio, cfg.CopyTrading.MinBalanceUSD, log); err != nil {
		log.Error("failed to start copy-trading dispatcher", "error", err)
		os.Exit(exitStartupFailure)
	}
	log.Info("copy-trading dispatcher attached", "ratio", cfg.CopyTrading.Ratio, "min_balance_usd", cfg.CopyTrading.MinBalanceUSD)

	sampler := telemetry.NewSampler(metrics, store, cfg.Storage.DataDir, log)
	go sampler.Run(ctx)

	go orders.RunTriggerWatcher(ctx)

	sched := scheduler.New(log)
	registerJobs(sched, cfg, store, p2pEngine, notifyPort, log)
	sched.Start(ctx)

	apiServer := api.New(orders, p2pEngine, metrics, log)
	if err := apiServer.Start(cfg.API.ListenAddr); err != nil {
		log.Error("failed to start api server", "error", err)
		os.Exit(exitStartupFailure)
	}

	log.Info("tradecore started", "version", version, "api", cfg.API.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down...")

	cancel()
	sched.Stop()
	if err := apiServer.Stop(); err != nil {
		log.Error("error stopping api server", "error", err)
	}
	log.Info("goodbye")
}

// registerVenues builds one venue client per configured "network.venue"
// entry. Only networks with a concrete client implementation are wired;
// others are logged and skipped rather than failing startup.
func registerVenues(registry *venue.Registry, cfg *config.Config, log *logging.Logger) {
	for _, network := range []string{"SOL", "TON"} {
		for _, name := range cfg.VenuesForNetwork(network) {
			baseURL, _ := cfg.VenueURL(network, name)
			client, ok := buildVenueClient(network, name, baseURL)
			if !ok {
				log.Warn("no venue client implementation for configured venue", "network", network, "venue", name)
				continue
			}
			registry.Register(network, name, client)
			log.Info("venue registered", "network", network, "venue", name, "url", baseURL)
		}
	}
}

func buildVenueClient(network, name, baseURL string) (venue.Client, bool) {
	switch {
	case network == "SOL" && name == "orca":
		return venue.NewOrcaVenue(baseURL), true
	case network == "SOL" && name == "raydium":
		return venue.NewRaydiumVenue(baseURL), true
	case network == "TON" && name == "stonfi":
		return venue.NewStonFiVenue(baseURL), true
	case network == "TON" && name == "dedust":
		return venue.NewDeDustVenue(baseURL), true
	default:
		return nil, false
	}
}

// registerJobs wires the three scheduled jobs from the External Interfaces
// contract, plus outbox draining, the periodic plumbing the notification
// port needs that has no dedicated section of its own.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, store *storage.Storage, p2pEngine *p2p.Engine, notifyPort *notify.OutboxPort, log *logging.Logger) {
	sched.Register("p2p.sweep_expired", cfg.Scheduler.SweepExpiredEvery, func(ctx context.Context) error {
		swept, err := p2pEngine.SweepExpired(ctx)
		if err != nil {
			return err
		}
		if swept > 0 {
			log.Info("swept expired p2p orders", "count", swept)
		}
		return nil
	})

	sched.RegisterAt("fees.notify_day", cfg.Scheduler.FeeNotifyEvery, scheduler.NextUTCMidnight(time.Now()), func(ctx context.Context) error {
		return notifyDailyFees(ctx, store, notifyPort, cfg.Scheduler.FeeNotifyEvery, log)
	})

	sched.Register("backup.snapshot_db", cfg.Scheduler.BackupSnapshotEvery, func(ctx context.Context) error {
		dest, err := store.Snapshot(filepath.Join(cfg.Storage.DataDir, "backups"), time.Now())
		if err != nil {
			return err
		}
		log.Info("database snapshot written", "path", dest)
		return nil
	})

	sched.Register("notify.deliver_pending", 30*time.Second, func(ctx context.Context) error {
		return notifyPort.DeliverPending(ctx, 50)
	})
}

// notifyDailyFees aggregates FEE ledger rows recorded since the job's own
// period and sends each affected user a one-line summary of what they paid.
func notifyDailyFees(ctx context.Context, store *storage.Storage, notifyPort notify.Port, period time.Duration, log *logging.Logger) error {
	since := time.Now().Add(-period)
	txs, err := store.ListTransactionsByKindSince(storage.TxKindFee, since)
	if err != nil {
		return fmt.Errorf("failed to list fee transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil
	}

	totals := make(map[string]money.Money)
	userIDs := make([]string, 0)
	for _, tx := range txs {
		amount, err := money.Parse(tx.Amount)
		if err != nil {
			log.Warn("skipping fee transaction with unparseable amount", "tx_id", tx.ID, "error", err)
			continue
		}
		if _, seen := totals[tx.UserID]; !seen {
			userIDs = append(userIDs, tx.UserID)
			totals[tx.UserID] = money.Money{}
		}
		totals[tx.UserID] = totals[tx.UserID].Add(amount)
	}
	sort.Strings(userIDs)

	for _, userID := range userIDs {
		payload := fmt.Sprintf(`{"total_fees":"%s"}`, decimalfmt.Format(totals[userID], 2))
		if err := notifyPort.Notify(ctx, userID, "daily_fee_summary", []byte(payload)); err != nil {
			log.Warn("failed to notify daily fee summary", "user_id", userID, "error", err)
		}
	}
	return nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
