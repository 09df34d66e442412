// Package config loads and validates the council orchestrator's
// process-wide configuration, following the teacher's
// struct-of-tunables-plus-default-constructor pattern but sourcing
// values from the environment and an optional YAML file via Viper
// instead of being hardcoded in main.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/llmcouncil/macrotrader/internal/councilerr"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// PMModel names one portfolio-manager model in the roster, bound to
// the brokerage sub-account it trades through.
type PMModel struct {
	ModelID   string            `mapstructure:"model_id"`
	AccountId council.AccountId `mapstructure:"account_id"`
}

// Mode selects which stages of the pipeline run for a week.
type Mode string

const (
	ModeChatOnly Mode = "chat_only"
	ModeRanking  Mode = "ranking"
	ModeFull     Mode = "full"
)

// Config is the immutable, validated process configuration. It is
// built once at startup and then passed by value/pointer to every
// component — nothing reloads it at runtime.
type Config struct {
	Mode Mode `mapstructure:"mode"`

	PMRoster         []PMModel         `mapstructure:"pm_roster"`
	ChairmanModelID  string            `mapstructure:"chairman_model_id"`
	ChairmanAccount  council.AccountId `mapstructure:"chairman_account_id"`
	ReviewerModels   []string          `mapstructure:"reviewer_models"`
	ResearchSources  []string          `mapstructure:"research_sources"`
	SentimentSearchProvider string     `mapstructure:"sentiment_search_provider"`
	SentimentModelID string            `mapstructure:"sentiment_model_id"`

	TradableUniverse []council.Instrument `mapstructure:"tradable_universe"`
	BannedKeywords   []string             `mapstructure:"banned_keywords"`

	Temperature    float64       `mapstructure:"temperature"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	StageTimeout    time.Duration `mapstructure:"stage_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`

	// AccountEquity is the reference equity the Execution stage scales
	// each conviction's size_factor against to derive order quantity.
	AccountEquity float64 `mapstructure:"account_equity"`

	EventStoreDSN string `mapstructure:"event_store_dsn"`
	HTTPAddr      string `mapstructure:"http_addr"`

	JobTTL time.Duration `mapstructure:"job_ttl"`
}

// DefaultConfig returns production-ready defaults. Callers override
// via environment variables or an optional YAML file through Load.
func DefaultConfig() *Config {
	return &Config{
		Mode: ModeFull,
		PMRoster: []PMModel{
			{ModelID: "pm-alpha", AccountId: "acct-pm-alpha"},
			{ModelID: "pm-beta", AccountId: "acct-pm-beta"},
		},
		ChairmanModelID: "chairman-model",
		ChairmanAccount: "acct-chairman",
		ReviewerModels:  []string{"pm-alpha", "pm-beta"},
		ResearchSources: []string{"research-model-a"},
		SentimentSearchProvider: "sentiment-search-default",
		SentimentModelID: "sentiment-scorer-default",
		TradableUniverse: []council.Instrument{"SPY", "QQQ", "TLT", "GLD", "DXY"},
		BannedKeywords:   []string{"rsi", "macd", "ema", "sma", "bollinger", "stochastic", "moving average"},
		Temperature:      0.2,
		ProviderTimeout:  90 * time.Second,
		StageTimeout:     10 * time.Minute,
		MaxConcurrency:   4,
		AccountEquity:    1_000_000,
		EventStoreDSN:    "",
		HTTPAddr:         ":8080",
		JobTTL:           72 * time.Hour,
	}
}

// Load reads configuration from COUNCIL_-prefixed environment
// variables and, if present, an optional YAML file at configPath,
// layered over DefaultConfig, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COUNCIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("chairman_model_id", cfg.ChairmanModelID)
	v.SetDefault("chairman_account_id", string(cfg.ChairmanAccount))
	v.SetDefault("sentiment_search_provider", cfg.SentimentSearchProvider)
	v.SetDefault("sentiment_model_id", cfg.SentimentModelID)
	v.SetDefault("temperature", cfg.Temperature)
	v.SetDefault("provider_timeout", cfg.ProviderTimeout)
	v.SetDefault("stage_timeout", cfg.StageTimeout)
	v.SetDefault("max_concurrency", cfg.MaxConcurrency)
	v.SetDefault("account_equity", cfg.AccountEquity)
	v.SetDefault("event_store_dsn", cfg.EventStoreDSN)
	v.SetDefault("http_addr", cfg.HTTPAddr)
	v.SetDefault("job_ttl", cfg.JobTTL)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, &councilerr.ConfigurationError{Field: "config_file", Message: err.Error()}
		}
	}

	cfg.Mode = Mode(v.GetString("mode"))
	cfg.ChairmanModelID = v.GetString("chairman_model_id")
	cfg.ChairmanAccount = council.AccountId(v.GetString("chairman_account_id"))
	cfg.SentimentSearchProvider = v.GetString("sentiment_search_provider")
	cfg.SentimentModelID = v.GetString("sentiment_model_id")
	cfg.Temperature = v.GetFloat64("temperature")
	cfg.ProviderTimeout = v.GetDuration("provider_timeout")
	cfg.StageTimeout = v.GetDuration("stage_timeout")
	cfg.MaxConcurrency = v.GetInt("max_concurrency")
	cfg.AccountEquity = v.GetFloat64("account_equity")
	cfg.EventStoreDSN = v.GetString("event_store_dsn")
	cfg.HTTPAddr = v.GetString("http_addr")
	cfg.JobTTL = v.GetDuration("job_ttl")

	if roster := v.GetStringSlice("reviewer_models"); len(roster) > 0 {
		cfg.ReviewerModels = roster
	}
	if sources := v.GetStringSlice("research_sources"); len(sources) > 0 {
		cfg.ResearchSources = sources
	}
	if kw := v.GetStringSlice("banned_keywords"); len(kw) > 0 {
		cfg.BannedKeywords = kw
	}
	if uni := v.GetStringSlice("tradable_universe"); len(uni) > 0 {
		cfg.TradableUniverse = make([]council.Instrument, len(uni))
		for i, s := range uni {
			cfg.TradableUniverse[i] = council.Instrument(s)
		}
	}
	if roster := v.Get("pm_roster"); roster != nil {
		var decoded []PMModel
		if err := v.UnmarshalKey("pm_roster", &decoded); err == nil && len(decoded) > 0 {
			cfg.PMRoster = decoded
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants a malformed Config could otherwise
// silently violate: non-empty roster, every account referenced
// exactly once, a non-empty tradable universe, and a known mode.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeChatOnly, ModeRanking, ModeFull:
	default:
		return &councilerr.ConfigurationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", c.Mode)}
	}

	if len(c.PMRoster) < 2 {
		return &councilerr.ConfigurationError{Field: "pm_roster", Message: "roster must have at least 2 PM models"}
	}
	seenAccounts := map[council.AccountId]bool{}
	for _, pm := range c.PMRoster {
		if pm.ModelID == "" {
			return &councilerr.ConfigurationError{Field: "pm_roster", Message: "pm model_id must not be empty"}
		}
		if pm.AccountId == "" {
			return &councilerr.ConfigurationError{Field: "pm_roster", Message: fmt.Sprintf("pm %s has no account_id", pm.ModelID)}
		}
		if seenAccounts[pm.AccountId] {
			return &councilerr.ConfigurationError{Field: "pm_roster", Message: fmt.Sprintf("account_id %s assigned to more than one PM", pm.AccountId)}
		}
		seenAccounts[pm.AccountId] = true
	}
	if c.ChairmanAccount == "" {
		return &councilerr.ConfigurationError{Field: "chairman_account_id", Message: "must not be empty"}
	}
	if seenAccounts[c.ChairmanAccount] {
		return &councilerr.ConfigurationError{Field: "chairman_account_id", Message: "must not collide with a PM account"}
	}
	if len(c.TradableUniverse) == 0 {
		return &councilerr.ConfigurationError{Field: "tradable_universe", Message: "must not be empty"}
	}
	if c.MaxConcurrency < 1 {
		return &councilerr.ConfigurationError{Field: "max_concurrency", Message: "must be >= 1"}
	}
	return nil
}

// InUniverse reports whether instrument is part of the configured
// tradable universe.
func (c *Config) InUniverse(i council.Instrument) bool {
	for _, u := range c.TradableUniverse {
		if u == i {
			return true
		}
	}
	return false
}

// AccountFor returns the account_id bound to a PM model id.
func (c *Config) AccountFor(modelID string) (council.AccountId, bool) {
	for _, pm := range c.PMRoster {
		if pm.ModelID == modelID {
			return pm.AccountId, true
		}
	}
	return "", false
}
