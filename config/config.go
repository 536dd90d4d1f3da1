package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. Every threshold the risk gate,
// exit rules and ledger consume lives here; it is validated once at startup
// and injected, never read from ambient state.
type Config struct {
	// Risk budget
	RiskPerTrade      float64 // fraction of capital risked per trade (e.g. 0.01)
	MaxSingleFraction float64 // cap on one position's notional vs capital (e.g. 0.20)
	SectorCapFraction float64 // cap on a sector's total notional vs capital (e.g. 0.20)

	// Correlation veto
	MaxCorrelation     float64 // pairwise threshold (e.g. 0.75)
	CorrelationLookback int    // sessions of daily closes (e.g. 60)
	MinAlignedReturns  int     // fewer aligned return pairs is a data fault (e.g. 20)

	// Beta multiplier
	BetaNormal         float64 // below this: multiplier 1.0 (e.g. 2.0)
	BetaAggressive     float64 // at or above this: needs volume confirmation (e.g. 3.0)
	VolumeConfirmRatio float64 // volume ratio confirming an extreme beta (e.g. 2.0)

	// Defensive multiplier and kill-switch thresholds
	DailyDrawdownThreshold  float64 // defensive 0.5x at or above (e.g. 0.02)
	WeeklyDrawdownThreshold float64 // defensive 0.5x at or above (e.g. 0.05)
	PanicDailyDrawdown      float64 // kill switch at or above (e.g. 0.04)
	MaxTotalDrawdown        float64 // kill switch at or above (e.g. 0.06)
	WeeklyWindowDays        int     // rolling end-of-day capital window (e.g. 5)

	// Exit rules
	PartialCloseFraction float64 // fraction closed at the first target (e.g. 0.5)
	BreakevenBuffer      float64 // stop buffer above entry, fraction of entry (e.g. 0.001)
	BreakevenMinProfit   float64 // min unrealized gain for the end-of-week move (e.g. 0.01)
	TrailingATRMultiple  float64 // trailing stop distance in ATRs (e.g. 2.0)
	FlashCrashThreshold  float64 // intra-tick drop from the open (e.g. 0.03)
	MaxHoldingSessions   int     // forced exit after this many sessions (e.g. 10)
	BackupStopFraction   float64 // catastrophic stop distance from entry (e.g. 0.10)
	EntryOffsetFraction  float64 // slippage offset on entry stop-limits (e.g. 0.001)
	WeekCutoffHour       int     // end-of-week breakeven applies past this hour (e.g. 15)

	// Runtime
	TickInterval   time.Duration
	QuoteTimeout   time.Duration
	HistoryTimeout time.Duration

	// Capital
	StartingCapital float64

	// Persistence and audit
	SnapshotPath string
	DBPath       string

	// Exchange adapter (live mode only)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Observability
	MetricsAddr string
	LogLevel    string
	LogFormat   string // "std" or "zap"
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	loadFloat := func(dst *float64, key string, def float64) {
		v, err := getEnvAsFloatRequired(key, def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			return
		}
		*dst = v
	}
	loadInt := func(dst *int, key string, def int) {
		v, err := getEnvAsIntRequired(key, def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			return
		}
		*dst = v
	}

	loadFloat(&cfg.RiskPerTrade, "RISK_PER_TRADE", 0.01)
	loadFloat(&cfg.MaxSingleFraction, "MAX_SINGLE_POSITION_FRACTION", 0.20)
	loadFloat(&cfg.SectorCapFraction, "SECTOR_CAP_FRACTION", 0.20)

	loadFloat(&cfg.MaxCorrelation, "MAX_CORRELATION", 0.75)
	loadInt(&cfg.CorrelationLookback, "CORRELATION_LOOKBACK_DAYS", 60)
	loadInt(&cfg.MinAlignedReturns, "MIN_ALIGNED_RETURNS", 20)

	loadFloat(&cfg.BetaNormal, "BETA_NORMAL", 2.0)
	loadFloat(&cfg.BetaAggressive, "BETA_AGGRESSIVE", 3.0)
	loadFloat(&cfg.VolumeConfirmRatio, "VOLUME_CONFIRM_RATIO", 2.0)

	loadFloat(&cfg.DailyDrawdownThreshold, "DAILY_DRAWDOWN_THRESHOLD", 0.02)
	loadFloat(&cfg.WeeklyDrawdownThreshold, "WEEKLY_DRAWDOWN_THRESHOLD", 0.05)
	loadFloat(&cfg.PanicDailyDrawdown, "PANIC_DAILY_DRAWDOWN", 0.04)
	loadFloat(&cfg.MaxTotalDrawdown, "MAX_TOTAL_DRAWDOWN", 0.06)
	loadInt(&cfg.WeeklyWindowDays, "WEEKLY_WINDOW_DAYS", 5)

	loadFloat(&cfg.PartialCloseFraction, "PARTIAL_CLOSE_FRACTION", 0.5)
	loadFloat(&cfg.BreakevenBuffer, "BREAKEVEN_BUFFER", 0.001)
	loadFloat(&cfg.BreakevenMinProfit, "BREAKEVEN_MIN_PROFIT", 0.01)
	loadFloat(&cfg.TrailingATRMultiple, "TRAILING_ATR_MULTIPLE", 2.0)
	loadFloat(&cfg.FlashCrashThreshold, "FLASH_CRASH_THRESHOLD", 0.03)
	loadInt(&cfg.MaxHoldingSessions, "MAX_HOLDING_SESSIONS", 10)
	loadFloat(&cfg.BackupStopFraction, "BACKUP_STOP_FRACTION", 0.10)
	loadFloat(&cfg.EntryOffsetFraction, "ENTRY_OFFSET_FRACTION", 0.001)
	loadInt(&cfg.WeekCutoffHour, "WEEK_CUTOFF_HOUR", 15)

	loadFloat(&cfg.StartingCapital, "STARTING_CAPITAL", 100000)

	tickSeconds, err := getEnvAsIntRequired("TICK_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TICK_INTERVAL_SECONDS: %v", err))
	}
	cfg.TickInterval = time.Duration(tickSeconds) * time.Second

	quoteTimeoutSeconds := getEnvAsInt("QUOTE_TIMEOUT_SECONDS", 5)
	cfg.QuoteTimeout = time.Duration(quoteTimeoutSeconds) * time.Second
	historyTimeoutSeconds := getEnvAsInt("HISTORY_TIMEOUT_SECONDS", 15)
	cfg.HistoryTimeout = time.Duration(historyTimeoutSeconds) * time.Second

	cfg.SnapshotPath = getEnv("SNAPSHOT_PATH", "./data/portfolio_state.json")
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_journal.db")

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true)

	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9101")
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")
	cfg.LogFormat = getEnv("LOG_FORMAT", "zap")

	errs = append(errs, cfg.validate()...)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) validate() []string {
	var errs []string

	fraction := func(name string, v float64) {
		if v <= 0 || v >= 1 {
			errs = append(errs, fmt.Sprintf("%s must be between 0.0 and 1.0 (exclusive)", name))
		}
	}

	fraction("RISK_PER_TRADE", c.RiskPerTrade)
	fraction("MAX_SINGLE_POSITION_FRACTION", c.MaxSingleFraction)
	fraction("SECTOR_CAP_FRACTION", c.SectorCapFraction)
	fraction("MAX_CORRELATION", c.MaxCorrelation)
	fraction("DAILY_DRAWDOWN_THRESHOLD", c.DailyDrawdownThreshold)
	fraction("WEEKLY_DRAWDOWN_THRESHOLD", c.WeeklyDrawdownThreshold)
	fraction("PANIC_DAILY_DRAWDOWN", c.PanicDailyDrawdown)
	fraction("MAX_TOTAL_DRAWDOWN", c.MaxTotalDrawdown)
	fraction("PARTIAL_CLOSE_FRACTION", c.PartialCloseFraction)
	fraction("FLASH_CRASH_THRESHOLD", c.FlashCrashThreshold)
	fraction("BACKUP_STOP_FRACTION", c.BackupStopFraction)

	if c.CorrelationLookback <= 0 {
		errs = append(errs, "CORRELATION_LOOKBACK_DAYS must be positive")
	}
	if c.MinAlignedReturns <= 1 {
		errs = append(errs, "MIN_ALIGNED_RETURNS must be greater than 1")
	}
	if c.BetaNormal <= 0 || c.BetaAggressive <= c.BetaNormal {
		errs = append(errs, "BETA_NORMAL must be positive and less than BETA_AGGRESSIVE")
	}
	if c.VolumeConfirmRatio <= 0 {
		errs = append(errs, "VOLUME_CONFIRM_RATIO must be positive")
	}
	if c.WeeklyWindowDays <= 0 {
		errs = append(errs, "WEEKLY_WINDOW_DAYS must be positive")
	}
	if c.TrailingATRMultiple <= 0 {
		errs = append(errs, "TRAILING_ATR_MULTIPLE must be positive")
	}
	if c.MaxHoldingSessions <= 0 {
		errs = append(errs, "MAX_HOLDING_SESSIONS must be positive")
	}
	if c.BreakevenBuffer < 0 || c.BreakevenMinProfit <= 0 {
		errs = append(errs, "BREAKEVEN_BUFFER cannot be negative and BREAKEVEN_MIN_PROFIT must be positive")
	}
	if c.EntryOffsetFraction < 0 {
		errs = append(errs, "ENTRY_OFFSET_FRACTION cannot be negative")
	}
	if c.WeekCutoffHour < 0 || c.WeekCutoffHour > 23 {
		errs = append(errs, "WEEK_CUTOFF_HOUR must be an hour of the day")
	}
	if c.StartingCapital <= 0 {
		errs = append(errs, "STARTING_CAPITAL must be positive")
	}
	if c.TickInterval <= 0 {
		errs = append(errs, "TICK_INTERVAL_SECONDS must be positive")
	}
	if c.SnapshotPath == "" {
		errs = append(errs, "SNAPSHOT_PATH must be set")
	}
	if c.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	return errs
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
