package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/Sternrassler/darksearch-client/internal/config"
	"github.com/Sternrassler/darksearch-client/pkg/logging"
	"github.com/Sternrassler/darksearch-client/pkg/metrics"
	"github.com/Sternrassler/darksearch-client/pkg/proxypool"
	"github.com/Sternrassler/darksearch-client/pkg/ratelimit"
	"github.com/Sternrassler/darksearch-client/pkg/results"
	"github.com/Sternrassler/darksearch-client/pkg/scraper"
	"github.com/Sternrassler/darksearch-client/pkg/search"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// runSearchCmd executes a search from the command line.
func runSearchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	keyword, err := cmd.Flags().GetString("keyword")
	if err != nil {
		return err
	}
	startPage, err := cmd.Flags().GetInt("page")
	if err != nil {
		return err
	}

	logCfg := cfg.LoggingConfig()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.Setup(logCfg)

	interrupt := make(chan os.Signal, 2)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	return runSearch(context.Background(), cfg, keyword, startPage, interrupt, logger)
}

// buildConfig resolves file and environment settings, then applies the
// flags the user set explicitly.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	if flags.Changed("proxies") {
		cfg.Proxies, _ = flags.GetStringSlice("proxies")
	}
	if flags.Changed("proxy-file") {
		cfg.ProxyFile, _ = flags.GetString("proxy-file")
	}
	if flags.Changed("validate-proxies") {
		cfg.ValidateProxies, _ = flags.GetBool("validate-proxies")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("fail-limit") {
		cfg.FailLimit, _ = flags.GetInt("fail-limit")
	}
	if flags.Changed("pace") {
		cfg.PaceInterval, _ = flags.GetDuration("pace")
	}
	if flags.Changed("qpm") {
		cfg.QueriesPerMinute, _ = flags.GetInt("qpm")
	}
	if flags.Changed("reset-quota") {
		cfg.ResetQuota, _ = flags.GetBool("reset-quota")
	}
	if flags.Changed("redis") {
		cfg.RedisAddr, _ = flags.GetString("redis")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	return cfg, nil
}

// runSearch performs one search and always exports the collected results,
// also when the dispatch or the shutdown failed.
func runSearch(ctx context.Context, cfg *config.Config, query string, startPage int, interrupt <-chan os.Signal, logger zerolog.Logger) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// runCtx ends with the first interrupt, so the first fetch and any
	// quota wait before it stop right away. Signals are handed on to the
	// coordinator once the workers run.
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	var interrupted atomic.Bool
	signals := make(chan os.Signal, 2)
	go func() {
		for {
			select {
			case sig := <-interrupt:
				if !interrupted.Swap(true) {
					logger.Warn().Str("signal", sig.String()).Msg("Interrupted, stopping search")
				}
				stopRun()
				select {
				case signals <- sig:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	sink := results.NewSink()
	var runID string
	defer func() {
		if exportErr := sink.ExportFile(cfg.Output); exportErr != nil {
			logger.Error().Err(exportErr).Str("path", cfg.Output).Msg("Failed to export results")
			err = errors.Join(err, exportErr)
			return
		}
		logger.Info().
			Str("run_id", runID).
			Int("results", sink.Len()).
			Str("path", cfg.Output).
			Msg("Results exported")
	}()

	pool, err := buildPool(runCtx, cfg, logger)
	if err != nil {
		return err
	}

	tracker, closeTracker, err := buildTracker(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTracker()
	gate := ratelimit.NewGate(cfg.QueriesPerMinute, tracker, logging.NewLogger("ratelimit"))

	client, err := search.New(cfg.SearchConfig())
	if err != nil {
		return fmt.Errorf("create search client: %w", err)
	}
	defer client.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logging.NewLogger("metrics")); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	if pool.Size() < cfg.Workers {
		logger.Warn().
			Int("proxies", pool.Size()).
			Int("workers", cfg.Workers).
			Msg("Fewer proxies than workers, workers without a proxy will skip their pages")
	}

	dispatcher := scraper.NewDispatcher(client, pool, sink, gate, cfg.ScraperConfig(), logging.NewLogger("scraper"))
	runID = dispatcher.RunID()
	if err := dispatcher.Start(runCtx, query, scraper.WithStartPage(startPage)); err != nil {
		if interrupted.Load() && runCtx.Err() != nil {
			logger.Warn().Msg("Interrupted before the first page arrived")
			return nil
		}
		if errors.Is(err, search.ErrQuotaExceeded) {
			logger.Error().Msg("API quota exceeded, try again later")
		}
		return fmt.Errorf("start search: %w", err)
	}

	coordinator := scraper.NewCoordinator(dispatcher, cfg.ShutdownRounds, cfg.ShutdownWait, logging.NewLogger("shutdown"))
	runErr := coordinator.Run(runCtx, signals)

	for _, report := range dispatcher.Reports() {
		logger.Debug().
			Int("worker_id", report.ID).
			Str("range", report.Range.String()).
			Str("exit", string(report.Exit)).
			Int("pages", report.PagesFetched).
			Int("results", report.Items).
			Int("rotations", report.Rotations).
			Msg("Worker summary")
	}
	return runErr
}

// buildPool loads the configured relays, optionally drops the unhealthy
// ones, and falls back to a single direct worker when none are left.
func buildPool(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*proxypool.Pool, error) {
	proxies, err := cfg.LoadProxies()
	if err != nil {
		return nil, fmt.Errorf("load proxies: %w", err)
	}

	if cfg.ValidateProxies && len(proxies) > 0 {
		validator, err := proxypool.NewValidator(cfg.ValidationTarget, cfg.ValidationTimeout, cfg.Workers, logging.NewLogger("proxy-validator"))
		if err != nil {
			return nil, err
		}
		proxies = validator.Validate(ctx, proxies)
	}

	if len(proxies) == 0 {
		logger.Warn().Msg("No proxies available, sending requests directly with a single worker")
		proxies = []proxypool.Proxy{proxypool.Direct()}
		cfg.Workers = 1
	}

	return proxypool.New(proxies, logging.NewLogger("proxypool")), nil
}

// buildTracker connects to Redis when configured; otherwise the cooldown
// is kept in memory.
func buildTracker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*ratelimit.Tracker, func(), error) {
	var redisClient *redis.Client
	closeFn := func() {}
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		closeFn = func() { redisClient.Close() }
	}

	tracker := ratelimit.NewTracker(redisClient, cfg.QuotaCooldown, logging.NewLogger("quota-tracker"))
	logger.Info().
		Bool("shared", tracker.Shared()).
		Dur("cooldown", tracker.Cooldown()).
		Msg("Quota tracker ready")

	if cfg.ResetQuota {
		if err := tracker.Reset(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("reset quota state: %w", err)
		}
		logger.Info().Msg("Quota cooldown cleared")
	}

	return tracker, closeFn, nil
}
