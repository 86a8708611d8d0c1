// Package config loads ArbFarm's runtime configuration from environment
// variables (with an optional YAML overlay), following the teacher's
// env-tag-struct + envdecode + godotenv pattern. Config loading itself is an
// outer, mostly mechanical layer — spec.md §1 excludes it from the core —
// but it still uses the teacher's library stack rather than scattered
// os.Getenv calls.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the minimal command surface (§6).
type ServerConfig struct {
	ServiceName string `json:"service_name" env:"SERVICE_NAME"`
	Port        int    `json:"port" env:"PORT"`
}

// DatabaseConfig controls the durable event/trade/position store.
type DatabaseConfig struct {
	DSN             string `json:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifeSecs int    `json:"conn_max_lifetime_secs" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
}

// RPCConfig addresses the Solana-class JSON-RPC endpoint (§6).
type RPCConfig struct {
	URL string `json:"rpc_url" env:"RPC_URL"`
}

// TrackerConfig holds Graduation Tracker tunables (§4.C, §6).
type TrackerConfig struct {
	GraduationThreshold  float64 `json:"graduation_threshold" env:"TRACKER_GRADUATION_THRESHOLD"`
	FastPollIntervalMs   int64   `json:"fast_poll_interval_ms" env:"TRACKER_FAST_POLL_MS"`
	NormalPollIntervalMs int64   `json:"normal_poll_interval_ms" env:"TRACKER_NORMAL_POLL_MS"`
	EvictionHours        int     `json:"eviction_hours" env:"TRACKER_EVICTION_HOURS"`
}

// StrategyDefaultsConfig seeds default RiskParams for newly-registered
// strategies (§6).
type StrategyDefaultsConfig struct {
	MaxPositionSol    float64 `json:"default_max_position_sol" env:"DEFAULT_MAX_POSITION_SOL"`
	DailyLossLimitSol float64 `json:"default_daily_loss_limit_sol" env:"DEFAULT_DAILY_LOSS_LIMIT_SOL"`
	MinProfitBps      int     `json:"default_min_profit_bps" env:"DEFAULT_MIN_PROFIT_BPS"`
	MaxSlippageBps    int     `json:"default_max_slippage_bps" env:"DEFAULT_MAX_SLIPPAGE_BPS"`
}

// ConsensusConfig controls Consensus Oracle thresholds (§4.H, §6).
type ConsensusConfig struct {
	MinAgreement         float64 `json:"min_agreement" env:"CONSENSUS_MIN_AGREEMENT"`
	MinWeightedConfidence float64 `json:"min_weighted_confidence" env:"CONSENSUS_MIN_WEIGHTED_CONFIDENCE"`
	ProviderTimeoutSecs  int     `json:"provider_timeout_secs" env:"CONSENSUS_PROVIDER_TIMEOUT_SECS"`
}

// ApprovalConfig controls the Approval Manager (§4.I, §6).
type ApprovalConfig struct {
	DefaultTimeoutSecs int `json:"default_approval_timeout_secs" env:"APPROVAL_DEFAULT_TIMEOUT_SECS"`
	MaxPending         int `json:"max_pending_approvals" env:"APPROVAL_MAX_PENDING"`
}

// PriorityFeeConfig controls the priority-fee poller (§4.J).
type PriorityFeeConfig struct {
	PollIntervalSecs int `json:"poll_interval_secs" env:"PRIORITY_FEE_POLL_INTERVAL_SECS"`
}

// CapitalConfig bounds the Capital Manager (§4.K, §6).
type CapitalConfig struct {
	TotalBudgetSol float64 `json:"total_budget_sol" env:"CAPITAL_TOTAL_BUDGET_SOL"`
	DailyQuotaSol  float64 `json:"daily_quota_sol" env:"CAPITAL_DAILY_QUOTA_SOL"`
	PolicyPreset   string  `json:"policy_preset" env:"CAPITAL_POLICY_PRESET"` // "default", "dev_testing", or "conservative"
}

// LLMProviderConfig names one OpenAI-chat-completions-compatible provider
// wired as a Consensus Oracle voter and/or the Hecate advisory reviewer
// (§4.H, §4.I).
type LLMProviderConfig struct {
	Name    string  `json:"name" env:"LLM_PROVIDER_NAME"`
	Weight  float64 `json:"weight" env:"LLM_PROVIDER_WEIGHT"`
	BaseURL string  `json:"base_url" env:"LLM_PROVIDER_BASE_URL"`
	APIKey  string  `json:"api_key" env:"LLM_PROVIDER_API_KEY"`
}

// HecateConfig addresses the advisory LLM reviewer (§4.I). It reuses the
// same OpenAI-chat-completions-compatible transport as the Consensus
// Oracle's providers but is independently configured since Hecate is a
// single reviewer, not a weighted panel.
type HecateConfig struct {
	BaseURL string `json:"base_url" env:"HECATE_BASE_URL"`
	APIKey  string `json:"api_key" env:"HECATE_API_KEY"`
}

// Config is the top-level ArbFarm configuration structure.
type Config struct {
	Server           ServerConfig           `json:"server"`
	Database         DatabaseConfig         `json:"database"`
	Logging          LoggingConfig          `json:"logging"`
	RPC              RPCConfig              `json:"rpc"`
	Tracker          TrackerConfig          `json:"tracker"`
	StrategyDefaults StrategyDefaultsConfig `json:"strategy_defaults"`
	Consensus        ConsensusConfig        `json:"consensus"`
	Approval         ApprovalConfig         `json:"approval"`
	PriorityFee      PriorityFeeConfig      `json:"priority_fee"`
	Capital          CapitalConfig          `json:"capital"`
	WalletAddress    string                 `json:"wallet_address" env:"WALLET_ADDRESS"`
	LLMProviders     []LLMProviderConfig    `json:"llm_providers"`
	Hecate           HecateConfig           `json:"hecate"`
}

// New returns a Config populated with the defaults named by spec.md §6.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			ServiceName: "arbfarm",
			Port:        9007,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifeSecs: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracker: TrackerConfig{
			GraduationThreshold:  85.0,
			FastPollIntervalMs:   500,
			NormalPollIntervalMs: 5000,
			EvictionHours:        24,
		},
		StrategyDefaults: StrategyDefaultsConfig{
			MaxPositionSol:    0.01,
			DailyLossLimitSol: 2.0,
			MinProfitBps:      50,
			MaxSlippageBps:    100,
		},
		Consensus: ConsensusConfig{
			MinAgreement:          0.5,
			MinWeightedConfidence: 0.6,
			ProviderTimeoutSecs:   30,
		},
		Approval: ApprovalConfig{
			DefaultTimeoutSecs: 300,
			MaxPending:         10,
		},
		PriorityFee: PriorityFeeConfig{
			PollIntervalSecs: 10,
		},
		Capital: CapitalConfig{
			TotalBudgetSol: 10.0,
			DailyQuotaSol:  2.0,
			PolicyPreset:   "default",
		},
	}
}

// Load loads configuration from an optional CONFIG_FILE YAML overlay and
// then from the environment, mirroring the teacher's pkg/config.Load.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/arbfarm.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
