// Command arbfarm is the composition root for the ArbFarm swarm: it wires
// every domain component named by spec.md §4 onto one Event Bus backed by
// Postgres, then runs until SIGINT/SIGTERM, mirroring cmd/appserver's
// flag/env/config-fallback shape and graceful-shutdown pattern.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arbfarm/swarm/internal/approvalmanager"
	"github.com/arbfarm/swarm/internal/consensus"
	"github.com/arbfarm/swarm/internal/domain/approval"
	"github.com/arbfarm/swarm/internal/domain/policy"
	"github.com/arbfarm/swarm/internal/domain/strategy"
	"github.com/arbfarm/swarm/internal/domain/venue"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/execution"
	"github.com/arbfarm/swarm/internal/executor"
	"github.com/arbfarm/swarm/internal/graduationtracker"
	"github.com/arbfarm/swarm/internal/llmclient"
	"github.com/arbfarm/swarm/internal/orchestrator"
	"github.com/arbfarm/swarm/internal/persistence"
	"github.com/arbfarm/swarm/internal/platform/config"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/platform/metrics"
	"github.com/arbfarm/swarm/internal/platform/migrations"
	"github.com/arbfarm/swarm/internal/position"
	"github.com/arbfarm/swarm/internal/reporting"
	"github.com/arbfarm/swarm/internal/scanner"
	"github.com/arbfarm/swarm/internal/storage/postgres"
	"github.com/arbfarm/swarm/internal/strategies"
	"github.com/arbfarm/swarm/internal/strategyengine"
	"github.com/arbfarm/swarm/internal/threatfilter"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP listen address for /metrics (defaults to config or :9007)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Server.ServiceName, cfg.Logging.Level, cfg.Logging.Format)

	dsnVal := resolveDSN(*dsn, cfg)
	if dsnVal == "" {
		log.Fatal("no database DSN configured (set -dsn, DATABASE_URL, or database.dsn in the config file); the Event Bus requires durable storage")
	}
	cfg.Database.DSN = dsnVal

	rootCtx := context.Background()

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer db.Close()

	if *runMigrations {
		if err := migrations.Apply(rootCtx, db); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	eventStore := postgres.NewEventStore(db)
	edgeStore := postgres.NewEdgeStore(db)
	positionStore := postgres.NewPositionStore(db)
	strategyStore := postgres.NewStrategyStore(db)
	approvalStore := postgres.NewApprovalStore(db)
	consensusStore := postgres.NewConsensusStore(db)
	dailyMetricsStore := postgres.NewDailyMetricsStore(db)

	bus := eventbus.New(eventStore, logger)

	listener := persistence.New(bus, logger, edgeStore, strategyStore, approvalStore)
	listener.Start(rootCtx)

	pol := resolvePolicy(cfg.Capital.PolicyPreset)
	filter := threatfilter.New(bus, logger, pol, nil, nil)

	capital := executor.NewCapitalManager(cfg.Capital.TotalBudgetSol, cfg.Capital.DailyQuotaSol)

	posManager := position.New(bus, logger)
	posOpener := persistence.NewPositionOpener(posManager, positionStore)
	posMonitor := position.NewMonitor(position.DefaultConfig(), posManager, nil, nil, bus, logger)

	approvalCfg := approval.DefaultGlobalExecutionConfig()
	approvalMgr := approvalmanager.New(bus, logger, approvalCfg)
	approvalMgr.Start(rootCtx)

	var hecateClient approvalmanager.HecateClient
	if strings.TrimSpace(cfg.Hecate.BaseURL) != "" {
		hecateClient = llmclient.New(llmclient.Config{
			Name:    "hecate",
			BaseURL: cfg.Hecate.BaseURL,
			APIKey:  cfg.Hecate.APIKey,
		})
	} else {
		logger.Warn("hecate.base_url not configured; Hecate advisory notifications are disabled")
	}
	hecateNotifier := approvalmanager.NewHecateNotifier(bus, hecateClient, approvalMgr, logger)
	hecateNotifier.Start(rootCtx)

	votingEngine := consensus.NewVotingEngine(cfg.Consensus.MinAgreement, cfg.Consensus.MinWeightedConfidence)
	providers := buildConsensusProviders(cfg.LLMProviders)
	if len(providers) == 0 {
		logger.Warn("no llm_providers configured; edges will reach the Approval Manager without a Consensus Oracle vote")
	}

	bridge := orchestrator.New(bus, logger, approvalMgr, votingEngine, providers, consensusStore)
	bridge.Start(rootCtx)

	engine := strategyengine.New(bus, logger)
	seedStrategies(rootCtx, engine, cfg.StrategyDefaults)

	signalBridge := orchestrator.NewSignalStrategyBridge(bus, logger, engine)
	signalBridge.Start(rootCtx)

	scan := scanner.New(bus, logger, scanner.DefaultScanInterval)
	scan.RegisterStrategy(strategies.NewVolumeHunter())
	scan.RegisterStrategy(strategies.NewGraduationSniper())
	scan.RegisterStrategy(strategies.NewRaydiumSnipe())
	scan.RegisterStrategy(strategies.NewKolCopy())
	logger.Warn("no venues registered with the scanner; no concrete Venue implementation exists yet in this deployment")
	scan.Start(rootCtx)

	tracker := graduationtracker.New(graduationtracker.DefaultConfig(), nil, bus, strategies.NewRaydiumSnipe(), logger)
	_ = tracker
	logger.Warn("graduation tracker constructed but not started: no ProgressFetcher collaborator is wired")

	exec := executor.New(
		bus, logger, executor.DefaultConfig(), filter, capital,
		execution.NewBlockhashCache(cfg.RPC.URL),
		execution.NewTransactionSimulator(cfg.RPC.URL),
		execution.NewPriorityFeeMonitor(cfg.RPC.URL),
		nil, nil,
		execution.NewRPCSubmitter(cfg.RPC.URL),
		posOpener,
	)
	_ = exec
	logger.Warn("executor constructed but the approval-to-execute leg is not wired: no TxBuilder, Signer, or Venue is available in this deployment")

	_ = posMonitor
	logger.Warn("position monitor constructed but not started: no PriceReader or SellExecutor collaborator is wired")

	aggregator := reporting.New(positionStore, dailyMetricsStore, cfg.WalletAddress, logger)
	reportScheduler := reporting.NewScheduler(aggregator, logger)
	reportScheduler.Start(rootCtx)

	metricsAddrVal := determineMetricsAddr(*metricsAddr, cfg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: metricsAddrVal, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()
	logger.WithFields(map[string]interface{}{"addr": metricsAddrVal}).Info("arbfarm swarm started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	scan.Stop()
	logger.Info("arbfarm swarm stopped")
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_URL")); envDSN != "" {
		return envDSN
	}
	if cfg != nil {
		return strings.TrimSpace(cfg.Database.DSN)
	}
	return ""
}

func determineMetricsAddr(flagAddr string, cfg *config.Config) string {
	addr := strings.TrimSpace(flagAddr)
	if addr != "" {
		return addr
	}
	if cfg != nil && cfg.Server.Port != 0 {
		return ":" + strconv.Itoa(cfg.Server.Port)
	}
	return ":9007"
}

func resolvePolicy(preset string) policy.ArbFarmPolicy {
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "dev_testing":
		return policy.DevTesting()
	case "conservative":
		return policy.Conservative()
	default:
		return policy.Default()
	}
}

func buildConsensusProviders(cfgs []config.LLMProviderConfig) []consensus.ConsensusProvider {
	providers := make([]consensus.ConsensusProvider, 0, len(cfgs))
	for _, c := range cfgs {
		if strings.TrimSpace(c.BaseURL) == "" {
			continue
		}
		providers = append(providers, llmclient.New(llmclient.Config{
			Name:    c.Name,
			Weight:  c.Weight,
			BaseURL: c.BaseURL,
			APIKey:  c.APIKey,
		}))
	}
	return providers
}

// seedStrategies registers one strategy.Strategy per built-in behavioral
// strategy (spec.md §3, §4.F), using cfg as the default RiskParams every
// preset strategy starts with until an operator tunes it via the strategy
// API.
func seedStrategies(ctx context.Context, engine *strategyengine.Engine, cfg config.StrategyDefaultsConfig) {
	risk := strategy.RiskParams{
		MaxPositionSol:    cfg.MaxPositionSol,
		DailyLossLimitSol: cfg.DailyLossLimitSol,
		MinProfitBps:      cfg.MinProfitBps,
		MaxSlippageBps:    cfg.MaxSlippageBps,
		MaxRiskScore:      50,
		RequireSimulation: true,
		AutoExecuteAtomic: true,
	}

	presets := []struct {
		strategyType string
		venueTypes   []string
	}{
		{"volume_hunter", []string{string(venue.KindDexAmm), string(venue.KindBondingCurve)}},
		{"graduation_snipe", []string{string(venue.KindBondingCurve)}},
		{"raydium_snipe", []string{string(venue.KindDexAmm)}},
		{"copy_trade", []string{string(venue.KindDexAmm), string(venue.KindBondingCurve)}},
	}

	for _, p := range presets {
		s := &strategy.Strategy{
			ID:            uuid.New(),
			Name:          p.strategyType,
			StrategyType:  p.strategyType,
			VenueTypes:    p.venueTypes,
			ExecutionMode: strategy.ExecutionAutonomous,
			Risk:          risk,
			IsActive:      true,
		}
		engine.RegisterStrategy(ctx, s)
	}
}
