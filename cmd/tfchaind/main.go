// Command tfchaind runs the billing engine as a long-running daemon: it
// loads a YAML configuration, wires the Contract Registry, Billing Engine
// and Billing Scheduler together, and drives them with a local block
// ticker, exposing the event stream over websocket and metrics over HTTP.
package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/threefoldtech/tfchain-billing/pkg/billing"
	"github.com/threefoldtech/tfchain-billing/pkg/config"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/metrics"
	"github.com/threefoldtech/tfchain-billing/pkg/notify"
	"github.com/threefoldtech/tfchain-billing/pkg/registry"
	"github.com/threefoldtech/tfchain-billing/pkg/scheduler"
	"github.com/threefoldtech/tfchain-billing/pkg/storage"
	"github.com/threefoldtech/tfchain-billing/pkg/tfgridstate"
)

func newLogger(debug bool) (*zap.Logger, error) {
	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.Encoding = "console"
	cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if debug {
		cc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cc.Build()
}

func run(c *cli.Context) error {
	cfgPath := c.String("config-path")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(c.Bool("debug"))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	grid := tfgridstate.New()
	grid.SetMinimumBalance(1)
	grid.SetPricingPolicy(iface.PricingPolicy{ID: cfg.Billing.DefaultPricingPolicyID})
	grid.SetTFTPrice(40) // 0.04 USD/TFT starting reading, adjustable at runtime

	bus := events.NewBus()
	reg := registry.New(store, grid, bus, cfg.Billing.BillingFrequency, registry.Limits{
		MaxNameLength:           cfg.Limits.MaxNameLength,
		MaxDeploymentDataLength: cfg.Limits.MaxDeploymentDataLength,
		MaxSolutionProviders:    cfg.Limits.MaxSolutionProviders,
	}, log)

	engineCfg := billing.DefaultConfig()
	engineCfg.DistributionFrequency = cfg.Billing.DistributionFrequency
	engineCfg.GracePeriodBlocks = cfg.Billing.GracePeriodBlocks
	engineCfg.DefaultPricingPolicyID = cfg.Billing.DefaultPricingPolicyID
	engineCfg.PriceCacheSize = cfg.Billing.PriceCacheSize

	engine, err := billing.New(reg, grid, grid, bus, engineCfg, log)
	if err != nil {
		return fmt.Errorf("constructing billing engine: %w", err)
	}

	var authority *scheduler.Authority
	if keyHex := c.String("signer-key"); keyHex != "" {
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			return fmt.Errorf("decoding signer-key: %w", err)
		}
		priv := secp256k1.PrivKeyFromBytes(raw)
		authority = scheduler.NewAuthority(priv)
	}
	sched := scheduler.New(reg, engine, authority, bus, log)

	registerer := prometheus.NewRegistry()
	metrics.Register(registerer)

	hub := notify.New(bus, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Application.MetricsAddress, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	notifyMux := http.NewServeMux()
	notifyMux.Handle("/events", hub)
	notifySrv := &http.Server{Addr: cfg.Application.NotifyAddress, Handler: notifyMux}
	go func() {
		if err := notifySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("notify server stopped", zap.Error(err))
		}
	}()

	log.Info("tfchaind started",
		zap.String("metrics_address", cfg.Application.MetricsAddress),
		zap.String("notify_address", cfg.Application.NotifyAddress))

	blockInterval := c.Duration("block-interval")
	if blockInterval <= 0 {
		blockInterval = 10 * time.Second
	}
	ticker := time.NewTicker(blockInterval)
	defer ticker.Stop()

	var blockNumber uint64
	for range ticker.C {
		blockNumber++
		now := uint64(time.Now().Unix())

		if authority != nil {
			if err := sched.DispatchBlock(authority.PublicKey(), blockNumber, now); err != nil {
				log.Error("billing dispatch failed", zap.Uint64("block", blockNumber), zap.Error(err))
			}
			continue
		}

		// No signer configured: this process is a solo/dev node, so it
		// dispatches its own billing slot directly instead of going through
		// the signed off-chain path.
		slot := blockNumber % reg.BillingFrequency()
		ids, err := reg.BillingSlot(slot)
		if err != nil {
			log.Error("reading billing slot failed", zap.Error(err))
			continue
		}
		metrics.SetLastSlotSize(len(ids))
		for _, id := range ids {
			if err := engine.Bill(id, blockNumber, now); err != nil {
				log.Error("billing cycle failed", zap.Uint64("contract_id", id), zap.Error(err))
			}
		}
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "tfchaind"
	app.Usage = "TFChain smart contract billing engine daemon"
	app.Action = run
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config-path",
			Usage: "path to the daemon's YAML configuration file",
			Value: "./config.yaml",
		},
		cli.DurationFlag{
			Name:  "block-interval",
			Usage: "wall-clock interval between simulated blocks",
			Value: 10 * time.Second,
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug-level logging",
		},
		cli.StringFlag{
			Name:  "signer-key",
			Usage: "hex-encoded secp256k1 private key authorizing this node to dispatch billing off-chain; omit to run as a solo/dev node",
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
