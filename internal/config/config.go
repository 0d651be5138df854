package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/wallet-search-cli/internal/cost"
	"github.com/sells-group/wallet-search-cli/internal/ratelimit"
)

// DefaultWorksheet is processed when no worksheet is configured.
const DefaultWorksheet = "Gigabud Holders"

// Config holds the full application configuration.
type Config struct {
	Provider   string           `yaml:"provider" mapstructure:"provider"`
	XAI        ProviderConfig   `yaml:"xai" mapstructure:"xai"`
	Perplexity ProviderConfig   `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  ProviderConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Sheet      SheetConfig      `yaml:"sheet" mapstructure:"sheet"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Pricing    cost.Rates       `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ProviderConfig holds credentials and model selection for one provider.
type ProviderConfig struct {
	Key     string `yaml:"api_key" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GoogleConfig configures access to the Google spreadsheet.
type GoogleConfig struct {
	SheetID         string `yaml:"sheet_id" mapstructure:"sheet_id"`
	CredentialsJSON string `yaml:"credentials_json" mapstructure:"credentials_json"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	// RequestsPerSecond paces Sheets API calls.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// SheetConfig selects the worksheets to process.
type SheetConfig struct {
	Worksheet string `yaml:"worksheet" mapstructure:"worksheet"`
	// Worksheets is a comma-separated list that takes precedence over
	// Worksheet.
	Worksheets string `yaml:"worksheets" mapstructure:"worksheets"`
	// XLSXPath points at a local workbook used instead of Google Sheets.
	XLSXPath string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
}

// SearchConfig configures range selection, concurrency and retries.
type SearchConfig struct {
	Limit              int    `yaml:"limit" mapstructure:"limit"`
	Parallel           bool   `yaml:"parallel" mapstructure:"parallel"`
	MaxConcurrent      int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxRetries         int    `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelaySecs     int    `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	BatchPauseSecs     int    `yaml:"batch_pause_secs" mapstructure:"batch_pause_secs"`
	WorksheetPauseSecs int    `yaml:"worksheet_pause_secs" mapstructure:"worksheet_pause_secs"`
	PromptsFile        string `yaml:"prompts_file" mapstructure:"prompts_file"`
}

// RateLimitConfig configures provider pacing and backoff.
type RateLimitConfig struct {
	WindowSecs     int `yaml:"window_secs" mapstructure:"window_secs"`
	MaxRequests    int `yaml:"max_requests" mapstructure:"max_requests"`
	DelaySecs      int `yaml:"delay_secs" mapstructure:"delay_secs"`
	ErrorDelaySecs int `yaml:"error_delay_secs" mapstructure:"error_delay_secs"`
	MaxBackoffSecs int `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	MaxMultiplier  int `yaml:"max_multiplier" mapstructure:"max_multiplier"`
}

// Limiter converts the section into a ratelimit.Config.
func (r RateLimitConfig) Limiter() ratelimit.Config {
	return ratelimit.Config{
		Window:        secs(r.WindowSecs),
		MaxRequests:   r.MaxRequests,
		BaseBackoff:   secs(r.ErrorDelaySecs),
		MaxBackoff:    secs(r.MaxBackoffSecs),
		MaxMultiplier: r.MaxMultiplier,
		MinInterval:   secs(r.DelaySecs),
	}
}

// CheckpointConfig selects where resume positions are kept.
type CheckpointConfig struct {
	// Backend is "file", "redis" or "store".
	Backend string `yaml:"backend" mapstructure:"backend"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// RedisConfig configures the redis checkpoint backend.
type RedisConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// StoreConfig configures the run audit store.
type StoreConfig struct {
	// Driver is "sqlite", "postgres" or "none".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps config keys to the bare environment names accepted
// alongside the WALLET_ prefixed form.
var legacyEnv = map[string][]string{
	"xai.api_key":                 {"XAI_API_KEY", "xai_key"},
	"xai.model":                   {"GROK_MODEL"},
	"perplexity.api_key":          {"PERPLEXITY_API_KEY"},
	"anthropic.api_key":           {"ANTHROPIC_API_KEY"},
	"google.sheet_id":             {"GOOGLE_SHEET_ID"},
	"google.credentials_json":     {"GOOGLE_CREDENTIALS_JSON"},
	"google.credentials_file":     {"GOOGLE_CREDENTIALS_FILE"},
	"sheet.worksheet":             {"WORKSHEET_NAME"},
	"sheet.worksheets":            {"WORKSHEETS_TO_PROCESS"},
	"search.limit":                {"WALLET_LIMIT"},
	"search.parallel":             {"USE_PARALLEL"},
	"search.max_concurrent":       {"MAX_CONCURRENT_REQUESTS"},
	"rate_limit.delay_secs":       {"RATE_LIMIT_DELAY"},
	"rate_limit.error_delay_secs": {"RATE_LIMIT_ERROR_DELAY"},
	"rate_limit.window_secs":      {"RATE_LIMIT_WINDOW"},
	"rate_limit.max_requests":     {"MAX_REQUESTS_PER_WINDOW"},
	"checkpoint.dir":              {"RAILWAY_VOLUME_MOUNT_PATH"},
	"store.database_url":          {"DATABASE_URL"},
	"redis.url":                   {"REDIS_URL"},
}

const envPrefix = "WALLET"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The prefixed name is listed first so it wins over the legacy alias.
	for key, names := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("provider", "xai")
	v.SetDefault("xai.api_key", "")
	v.SetDefault("xai.model", "grok-4-fast")
	v.SetDefault("xai.base_url", "https://api.x.ai/v1")
	v.SetDefault("perplexity.api_key", "")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("google.sheet_id", "")
	v.SetDefault("google.credentials_json", "")
	v.SetDefault("google.credentials_file", "")
	v.SetDefault("google.base_url", "")
	v.SetDefault("google.requests_per_second", 1.0)
	v.SetDefault("sheet.worksheet", DefaultWorksheet)
	v.SetDefault("sheet.worksheets", "")
	v.SetDefault("sheet.xlsx_path", "")
	v.SetDefault("search.limit", 0)
	v.SetDefault("search.parallel", true)
	v.SetDefault("search.max_concurrent", 5)
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.retry_delay_secs", 2)
	v.SetDefault("search.batch_pause_secs", 1)
	v.SetDefault("search.worksheet_pause_secs", 5)
	v.SetDefault("search.prompts_file", "")
	v.SetDefault("rate_limit.window_secs", 60)
	v.SetDefault("rate_limit.max_requests", 50)
	v.SetDefault("rate_limit.delay_secs", 1)
	v.SetDefault("rate_limit.error_delay_secs", 60)
	v.SetDefault("rate_limit.max_backoff_secs", 300)
	v.SetDefault("rate_limit.max_multiplier", 3)
	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.dir", "/tmp")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.prefix", "wallet-search")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "wallet-search.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Pricing = withDefaultRates(cfg.Pricing)

	return &cfg, nil
}

// withDefaultRates fills pricing entries the file did not set.
func withDefaultRates(r cost.Rates) cost.Rates {
	def := cost.DefaultRates()
	if r.XAI == nil {
		r.XAI = map[string]cost.ModelRate{}
	}
	for m, rate := range def.XAI {
		if _, ok := r.XAI[m]; !ok {
			r.XAI[m] = rate
		}
	}
	if r.Anthropic == nil {
		r.Anthropic = map[string]cost.ModelRate{}
	}
	for m, rate := range def.Anthropic {
		if _, ok := r.Anthropic[m]; !ok {
			r.Anthropic[m] = rate
		}
	}
	if r.XAISearchSource == 0 {
		r.XAISearchSource = def.XAISearchSource
	}
	if r.Perplexity.PerQuery == 0 {
		r.Perplexity.PerQuery = def.Perplexity.PerQuery
	}
	if r.Perplexity.PerMTok == 0 {
		r.Perplexity.PerMTok = def.Perplexity.PerMTok
	}
	return r
}

// Worksheets returns the worksheet names to process, in order. The
// comma-separated list wins over the single name.
func (c *Config) Worksheets() []string {
	var names []string
	for _, n := range strings.Split(c.Sheet.Worksheets, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) > 0 {
		return names
	}
	if w := strings.TrimSpace(c.Sheet.Worksheet); w != "" {
		return []string{w}
	}
	return []string{DefaultWorksheet}
}

// ActiveProvider returns the selected provider's settings.
func (c *Config) ActiveProvider() ProviderConfig {
	switch strings.ToLower(c.Provider) {
	case "perplexity":
		return c.Perplexity
	case "anthropic":
		return c.Anthropic
	default:
		return c.XAI
	}
}

// Validate checks the fields a command needs before it starts. Mode is one
// of "search", "columns", "checkpoint" or "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	needSheet := func() {
		if c.Sheet.XLSXPath != "" {
			return
		}
		if c.Google.SheetID == "" {
			errs = append(errs, "google.sheet_id is required (GOOGLE_SHEET_ID)")
		}
		if c.Google.CredentialsJSON == "" && c.Google.CredentialsFile == "" {
			errs = append(errs, "google.credentials_json or google.credentials_file is required")
		}
	}

	switch mode {
	case "search":
		switch strings.ToLower(c.Provider) {
		case "xai", "perplexity", "anthropic":
		default:
			errs = append(errs, fmt.Sprintf("provider %q is not supported", c.Provider))
		}
		if c.ActiveProvider().Key == "" {
			errs = append(errs, fmt.Sprintf("%s.api_key is required", strings.ToLower(c.Provider)))
		}
		needSheet()
		if c.Search.MaxConcurrent < 1 || c.Search.MaxConcurrent > 50 {
			errs = append(errs, "search.max_concurrent must be between 1 and 50")
		}
		if c.Search.MaxRetries < 1 {
			errs = append(errs, "search.max_retries must be >= 1")
		}
		if c.Search.Limit < 0 {
			errs = append(errs, "search.limit must be >= 0")
		}
		if c.RateLimit.MaxRequests < 1 {
			errs = append(errs, "rate_limit.max_requests must be >= 1")
		}
	case "columns":
		needSheet()
	case "checkpoint":
	case "runs":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver must not be none")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(c.Worksheets()) == 0 {
		errs = append(errs, "at least one worksheet is required")
	}

	switch c.Checkpoint.Backend {
	case "file", "redis", "store":
	default:
		errs = append(errs, fmt.Sprintf("checkpoint.backend %q must be file, redis or store", c.Checkpoint.Backend))
	}
	if c.Checkpoint.Backend == "store" && c.Store.Driver == "none" {
		errs = append(errs, "checkpoint.backend store requires a store driver")
	}

	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite, postgres or none", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Durations converts the second-valued search settings.
func (s SearchConfig) Durations() (retry, batch, worksheet time.Duration) {
	return secs(s.RetryDelaySecs), secs(s.BatchPauseSecs), secs(s.WorksheetPauseSecs)
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
