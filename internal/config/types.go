package config

// Config is the root configuration.
type Config struct {
	App      AppConfig      `toml:"app"`
	Venue    VenueConfig    `toml:"venue"`
	Trading  TradingConfig  `toml:"trading"`
	ExitPlan ExitPlanConfig `toml:"exit_plan"`
	Monitor  MonitorConfig  `toml:"monitor"`
	HTTP     HTTPConfig     `toml:"http"`
	Notify   NotifyConfig   `toml:"notify"`
}

// AppConfig holds process-wide knobs.
type AppConfig struct {
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
	DataDir  string `toml:"data_dir"`
}

// VenueConfig configures the exchange connection.
type VenueConfig struct {
	APIKey           string `toml:"api_key"`
	APISecret        string `toml:"api_secret"`
	RESTBaseURL      string `toml:"rest_base_url"`
	HTTPTimeoutSec   int    `toml:"http_timeout_sec"`
	ProxyEnabled     bool   `toml:"proxy_enabled"`
	RESTProxyURL     string `toml:"rest_proxy_url"`
	BreakerThreshold int    `toml:"breaker_threshold"`
	BreakerCooldown  int    `toml:"breaker_cooldown_sec"`
	InstrumentTTLMin int    `toml:"instrument_ttl_min"`
}

// TradingConfig tunes the engine.
type TradingConfig struct {
	MarginMode        string  `toml:"margin_mode"`
	QuoteAsset        string  `toml:"quote_asset"`
	MarginSafetyLevel float64 `toml:"margin_safety_level"`
	BufferQuote       float64 `toml:"buffer_quote"`
	BufferPct         float64 `toml:"buffer_pct"`
	DefaultLeverage   int     `toml:"default_leverage"`
	DustNotional      float64 `toml:"dust_notional"`
}

// ExitPlanConfig configures plan persistence and evaluation.
type ExitPlanConfig struct {
	StorePath    string `toml:"store_path"`
	RegistryPath string `toml:"registry_path"`
	Timeframe    string `toml:"timeframe"`
}

// MonitorConfig tunes the safety cycle.
type MonitorConfig struct {
	Enabled     bool `toml:"enabled"`
	IntervalSec int  `toml:"interval_sec"`
	AutoProtect bool `toml:"auto_protect"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// NotifyConfig configures alerting.
type NotifyConfig struct {
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
}
