package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/untron/untron-v3-pool/backoff"
	"github.com/untron/untron-v3-pool/config"
	"github.com/untron/untron-v3-pool/nodepool"
	"github.com/untron/untron-v3-pool/oneclick"
	"github.com/untron/untron-v3-pool/rental"
	"github.com/untron/untron-v3-pool/sweeper"
	"github.com/untron/untron-v3-pool/transfer"
	"github.com/untron/untron-v3-pool/wallet"
	"github.com/untron/untron-v3-pool/watcher"
)

const version = "0.3.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	lggr, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer lggr.Sync() //nolint:errcheck

	w, err := wallet.New(cfg.Tron.PrivateKey, wallet.FeePolicy{
		CapSun:      cfg.Tron.FeeLimitCapSun,
		HeadroomPPM: cfg.Tron.FeeLimitHeadroomPPM,
	})
	if err != nil {
		return fmt.Errorf("failed to load wallet key: %w", err)
	}

	token, err := address.Base58ToAddress(cfg.Tron.UsdtContractAddress)
	if err != nil {
		return fmt.Errorf("invalid USDT contract address: %w", err)
	}

	providers := make([]rental.Provider, 0, len(cfg.Tron.EnergyRentalProviders))
	providerNames := make([]string, 0, len(cfg.Tron.EnergyRentalProviders))
	for _, pc := range cfg.Tron.EnergyRentalProviders {
		p, err := rental.NewProvider(pc)
		if err != nil {
			return fmt.Errorf("failed to build rental provider %q: %w", pc.Name, err)
		}
		providers = append(providers, p)
		providerNames = append(providerNames, p.Name())
	}

	pool := nodepool.New(lggr, cfg.Tron.GrpcURLs, cfg.Tron.APIKey)
	defer pool.Close()

	engine := transfer.NewEngine(lggr, pool, w, rental.NewPool(lggr, providers), cfg.Tron.EnergyRentalSettleDelay.Duration())
	swaps := oneclick.NewClient(cfg.OneClick.BaseURL, cfg.OneClick.BearerToken, version)
	bo := backoff.New()

	wtch := watcher.New(lggr, swaps, bo, watcher.Config{
		PollInterval: cfg.OneClick.StatusPollInterval.Duration(),
		MaxWait:      cfg.OneClick.StatusMaxWait.Duration(),
		BackoffBase:  cfg.OneClick.BackoffBase.Duration(),
		BackoffMax:   cfg.OneClick.BackoffMax.Duration(),
	})

	ctrl := sweeper.New(lggr, engine, swaps, bo, wtch.Jobs(), sweeper.Config{
		PollInterval:     cfg.Jobs.PollInterval.Duration(),
		Token:            token,
		Threshold:        big.NewInt(cfg.Jobs.UsdtBalanceThreshold),
		DeadlineSecs:     cfg.OneClick.DeadlineSecs,
		SlippageBps:      cfg.OneClick.SlippageBps,
		OriginAsset:      cfg.OneClick.OriginAsset,
		DestinationAsset: cfg.OneClick.DestinationAsset,
		Beneficiary:      cfg.OneClick.Beneficiary,
		Referral:         cfg.OneClick.Referral,
		RefundTo:         w.Base58(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lggr.Infow("starting untron-v3-pool",
		"version", version,
		"wallet", w.Base58(),
		"walletHex", w.Hex41(),
		"walletEVM", w.EVM().Hex(),
		"usdtContract", cfg.Tron.UsdtContractAddress,
		"nodes", len(cfg.Tron.GrpcURLs),
		"rentalProviders", providerNames,
		"threshold", cfg.Jobs.UsdtBalanceThreshold,
	)

	if cfg.Metrics.ListenAddr != "" {
		srv := metricsServer(cfg.Metrics.ListenAddr)
		go func() {
			lggr.Infow("metrics listener started", "addr", cfg.Metrics.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lggr.Errorw("metrics listener failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		wtch.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		ctrl.Run(ctx)
	}()
	wg.Wait()

	lggr.Infow("shut down")
	return nil
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	base, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return base.Sugar().Named("UntronPool"), nil
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
