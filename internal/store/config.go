package store

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/go-faster/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"crypto-trading-assistant/internal/types"
)

const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"

	// EnvPrefix scopes environment overrides, e.g. ASSISTANT_MODE or ASSISTANT_RISK_MIN_CONFIDENCE.
	EnvPrefix = "ASSISTANT"
)

type Config struct {
	Mode            string   `yaml:"mode" toml:"mode"`
	Symbols         []string `yaml:"symbols" toml:"symbols"`
	IntervalSeconds int      `yaml:"interval_seconds" toml:"interval_seconds"`
	Timezone        string   `yaml:"timezone" toml:"timezone"`

	Exchange struct {
		BaseURL       string  `yaml:"base_url" toml:"base_url"`
		WSURL         string  `yaml:"ws_url" toml:"ws_url"`
		KlineInterval string  `yaml:"kline_interval" toml:"kline_interval"`
		KlineLimit    int     `yaml:"kline_limit" toml:"kline_limit"`
		RatePerSecond float64 `yaml:"rate_per_second" toml:"rate_per_second"`
		QuoteAsset    string  `yaml:"quote_asset" toml:"quote_asset"`
		DryRunBalance float64 `yaml:"dry_run_balance" toml:"dry_run_balance"`
		StreamEnabled bool    `yaml:"stream_enabled" toml:"stream_enabled"`
	} `yaml:"exchange" toml:"exchange"`

	Risk struct {
		MaxPositionSize float64 `yaml:"max_position_size" toml:"max_position_size"`
		MinTradeSize    float64 `yaml:"min_trade_size" toml:"min_trade_size"`
		StopLossPct     float64 `yaml:"stop_loss_pct" toml:"stop_loss_pct"`
		TakeProfitPct   float64 `yaml:"take_profit_pct" toml:"take_profit_pct"`
		RiskPerTradePct float64 `yaml:"risk_per_trade_pct" toml:"risk_per_trade_pct"`
		MinConfidence   float64 `yaml:"min_confidence" toml:"min_confidence"`
		MaxDailyLossPct float64 `yaml:"max_daily_loss_pct" toml:"max_daily_loss_pct"`
		MaxPositions    int     `yaml:"max_positions" toml:"max_positions"`
		MaxDailyTrades  int     `yaml:"max_daily_trades" toml:"max_daily_trades"`
	} `yaml:"risk" toml:"risk"`

	Stop struct {
		Mode     string  `yaml:"mode" toml:"mode"`
		ATRMult  float64 `yaml:"atr_mult" toml:"atr_mult"`
		Trailing bool    `yaml:"trailing" toml:"trailing"`
		MinTick  float64 `yaml:"min_tick" toml:"min_tick"`
	} `yaml:"stop" toml:"stop"`

	Signal struct {
		Weights struct {
			Technical float64 `yaml:"technical" toml:"technical"`
			Sentiment float64 `yaml:"sentiment" toml:"sentiment"`
			News      float64 `yaml:"news" toml:"news"`
		} `yaml:"weights" toml:"weights"`
		BuyThreshold   float64 `yaml:"buy_threshold" toml:"buy_threshold"`
		StrongBuy      float64 `yaml:"strong_buy_threshold" toml:"strong_buy_threshold"`
		SellThreshold  float64 `yaml:"sell_threshold" toml:"sell_threshold"`
		StrongSell     float64 `yaml:"strong_sell_threshold" toml:"strong_sell_threshold"`
		MissingPenalty float64 `yaml:"missing_penalty" toml:"missing_penalty"`
	} `yaml:"signal" toml:"signal"`

	Indicators struct {
		RSIPeriod  int     `yaml:"rsi_period" toml:"rsi_period"`
		MACDFast   int     `yaml:"macd_fast" toml:"macd_fast"`
		MACDSlow   int     `yaml:"macd_slow" toml:"macd_slow"`
		MACDSignal int     `yaml:"macd_signal" toml:"macd_signal"`
		BBWindow   int     `yaml:"bb_window" toml:"bb_window"`
		BBStdDev   float64 `yaml:"bb_stddev" toml:"bb_stddev"`
		ATRPeriod  int     `yaml:"atr_period" toml:"atr_period"`
	} `yaml:"indicators" toml:"indicators"`

	LLM struct {
		Provider    string  `yaml:"provider" toml:"provider"`
		Model       string  `yaml:"model" toml:"model"`
		BaseURL     string  `yaml:"base_url" toml:"base_url"`
		MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
		Temperature float32 `yaml:"temperature" toml:"temperature"`
		System      string  `yaml:"system" toml:"system"`
	} `yaml:"llm" toml:"llm"`

	News struct {
		Enabled         bool `yaml:"enabled" toml:"enabled"`
		MaxArticles     int  `yaml:"max_articles" toml:"max_articles"`
		CacheTTLMinutes int  `yaml:"cache_ttl_minutes" toml:"cache_ttl_minutes"`
		TimeoutSeconds  int  `yaml:"timeout_seconds" toml:"timeout_seconds"`
	} `yaml:"news" toml:"news"`

	Engine struct {
		CallTimeoutSeconds int `yaml:"call_timeout_seconds" toml:"call_timeout_seconds"`
	} `yaml:"engine" toml:"engine"`

	Storage struct {
		Backend string `yaml:"backend" toml:"backend"` // memory, bolt or sqlite
		Path    string `yaml:"path" toml:"path"`
	} `yaml:"storage" toml:"storage"`

	Tradelog struct {
		Dir           string `yaml:"dir" toml:"dir"`
		RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
	} `yaml:"tradelog" toml:"tradelog"`

	EOD struct {
		Time string `yaml:"time" toml:"time"` // HH:MM in the trading timezone
		Dir  string `yaml:"dir" toml:"dir"`
	} `yaml:"eod" toml:"eod"`

	API struct {
		Enabled bool   `yaml:"enabled" toml:"enabled"`
		Addr    string `yaml:"addr" toml:"addr"`
	} `yaml:"api" toml:"api"`

	Record struct {
		RedisAddr     string `yaml:"redis_addr" toml:"redis_addr"`
		RedisStream   string `yaml:"redis_stream" toml:"redis_stream"`
		RedisChannel  string `yaml:"redis_channel" toml:"redis_channel"`
		PostgresDSN   string `yaml:"postgres_dsn" toml:"postgres_dsn"`
		NATSURL       string `yaml:"nats_url" toml:"nats_url"`
		NATSSubject   string `yaml:"nats_subject" toml:"nats_subject"`
		JournalCycles bool   `yaml:"journal_cycles" toml:"journal_cycles"`
	} `yaml:"record" toml:"record"`

	Notify struct {
		TelegramChatID int64 `yaml:"telegram_chat_id" toml:"telegram_chat_id"`
	} `yaml:"notify" toml:"notify"`
}

// Location resolves the trading timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(types.ErrConfiguration, "timezone %q: %v", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Engine.CallTimeoutSeconds) * time.Second
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		return errors.Wrapf(types.ErrConfiguration, "invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return errors.Wrap(types.ErrConfiguration, "symbols cannot be empty")
	}
	if c.IntervalSeconds <= 0 {
		return errors.Wrapf(types.ErrConfiguration, "interval_seconds must be positive, got %d", c.IntervalSeconds)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Engine.CallTimeoutSeconds <= 0 {
		return errors.Wrapf(types.ErrConfiguration, "engine.call_timeout_seconds must be positive, got %d", c.Engine.CallTimeoutSeconds)
	}
	switch c.Storage.Backend {
	case "memory", "bolt", "sqlite":
	default:
		return errors.Wrapf(types.ErrConfiguration, "storage.backend must be 'memory', 'bolt' or 'sqlite', got '%s'", c.Storage.Backend)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "none", "openai", "deepseek":
	default:
		return errors.Wrapf(types.ErrConfiguration, "llm.provider must be 'none', 'openai' or 'deepseek', got '%s'", c.LLM.Provider)
	}
	if _, err := time.Parse("15:04", c.EOD.Time); err != nil {
		return errors.Wrapf(types.ErrConfiguration, "eod.time must be HH:MM, got '%s'", c.EOD.Time)
	}
	// risk limits and signal weights are validated by their own packages
	return nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 60
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}

	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = "https://api.binance.com"
	}
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = "wss://stream.binance.com:9443/ws"
	}
	if c.Exchange.KlineInterval == "" {
		c.Exchange.KlineInterval = "1h"
	}
	if c.Exchange.KlineLimit == 0 {
		c.Exchange.KlineLimit = 100
	}
	if c.Exchange.RatePerSecond == 0 {
		c.Exchange.RatePerSecond = 10
	}
	if c.Exchange.QuoteAsset == "" {
		c.Exchange.QuoteAsset = "USDT"
	}
	if c.Exchange.DryRunBalance == 0 {
		c.Exchange.DryRunBalance = 10000
	}

	if c.Risk.MaxPositionSize == 0 {
		c.Risk.MaxPositionSize = 0.1
	}
	if c.Risk.MinTradeSize == 0 {
		c.Risk.MinTradeSize = 0.001
	}
	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 2
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 4
	}
	if c.Risk.RiskPerTradePct == 0 {
		c.Risk.RiskPerTradePct = 1
	}
	if c.Risk.MinConfidence == 0 {
		c.Risk.MinConfidence = 0.6
	}
	if c.Risk.MaxDailyLossPct == 0 {
		c.Risk.MaxDailyLossPct = 5
	}
	if c.Risk.MaxPositions == 0 {
		c.Risk.MaxPositions = 1
	}

	if c.Stop.Mode == "" {
		c.Stop.Mode = "PCT"
	}
	c.Stop.Mode = strings.ToUpper(c.Stop.Mode)
	if c.Stop.ATRMult == 0 {
		c.Stop.ATRMult = 2
	}

	w := &c.Signal.Weights
	if w.Technical == 0 && w.Sentiment == 0 && w.News == 0 {
		w.Technical, w.Sentiment, w.News = 0.4, 0.3, 0.3
	}
	if c.Signal.BuyThreshold == 0 {
		c.Signal.BuyThreshold = 0.7
	}
	if c.Signal.StrongBuy == 0 {
		c.Signal.StrongBuy = 0.85
	}
	if c.Signal.SellThreshold == 0 {
		c.Signal.SellThreshold = 0.3
	}
	if c.Signal.StrongSell == 0 {
		c.Signal.StrongSell = 0.15
	}
	if c.Signal.MissingPenalty == 0 {
		c.Signal.MissingPenalty = 0.2
	}

	ind := &c.Indicators
	if ind.RSIPeriod == 0 {
		ind.RSIPeriod = 14
	}
	if ind.MACDFast == 0 {
		ind.MACDFast = 12
	}
	if ind.MACDSlow == 0 {
		ind.MACDSlow = 26
	}
	if ind.MACDSignal == 0 {
		ind.MACDSignal = 9
	}
	if ind.BBWindow == 0 {
		ind.BBWindow = 20
	}
	if ind.BBStdDev == 0 {
		ind.BBStdDev = 2
	}
	if ind.ATRPeriod == 0 {
		ind.ATRPeriod = 14
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "none"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 512
	}

	if c.News.MaxArticles == 0 {
		c.News.MaxArticles = 15
	}
	if c.News.CacheTTLMinutes == 0 {
		c.News.CacheTTLMinutes = 60
	}
	if c.News.TimeoutSeconds == 0 {
		c.News.TimeoutSeconds = 30
	}

	if c.Engine.CallTimeoutSeconds == 0 {
		c.Engine.CallTimeoutSeconds = 10
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.Path == "" {
		switch c.Storage.Backend {
		case "bolt":
			c.Storage.Path = "data/positions.db"
		case "sqlite":
			c.Storage.Path = "data/positions.sqlite"
		}
	}
	if c.Tradelog.Dir == "" {
		c.Tradelog.Dir = "logs/trades"
	}
	if c.EOD.Time == "" {
		c.EOD.Time = "23:55"
	}
	if c.EOD.Dir == "" {
		c.EOD.Dir = "reports"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.Record.RedisStream == "" {
		c.Record.RedisStream = "assistant:cycles"
	}
	if c.Record.RedisChannel == "" {
		c.Record.RedisChannel = "assistant.cycles"
	}
	if c.Record.NATSSubject == "" {
		c.Record.NATSSubject = "assistant.cycles"
	}
}

// LoadConfig reads path, fills defaults and validates.
func LoadConfig(path string) (*Config, error) {
	return Load(path, nil)
}

// Load decodes path by extension (.yaml, .yml or .toml), overlays ASSISTANT_*
// environment variables and any flags bound on v, then fills defaults and
// validates. A nil v skips the overlay.
func Load(path string, v *viper.Viper) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(types.ErrConfiguration, "read config %s: %v", path, err)
	}

	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(b), &c); err != nil {
			return nil, errors.Wrapf(types.ErrConfiguration, "parse toml %s: %v", path, err)
		}
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, errors.Wrapf(types.ErrConfiguration, "parse yaml %s: %v", path, err)
		}
	}

	if v != nil {
		overlay(&c, v)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &c, nil
}

// NewViper returns a viper instance reading ASSISTANT_* variables, with dots in
// keys mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func overlay(c *Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *float64) {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}
	integer := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	str("mode", &c.Mode)
	str("timezone", &c.Timezone)
	integer("interval_seconds", &c.IntervalSeconds)
	if v.IsSet("symbols") {
		if syms := stringList(v.Get("symbols")); len(syms) > 0 {
			c.Symbols = syms
		}
	}

	str("exchange.base_url", &c.Exchange.BaseURL)
	str("exchange.ws_url", &c.Exchange.WSURL)
	str("exchange.kline_interval", &c.Exchange.KlineInterval)
	integer("exchange.kline_limit", &c.Exchange.KlineLimit)
	num("exchange.rate_per_second", &c.Exchange.RatePerSecond)
	str("exchange.quote_asset", &c.Exchange.QuoteAsset)
	num("exchange.dry_run_balance", &c.Exchange.DryRunBalance)
	boolean("exchange.stream_enabled", &c.Exchange.StreamEnabled)

	num("risk.max_position_size", &c.Risk.MaxPositionSize)
	num("risk.min_trade_size", &c.Risk.MinTradeSize)
	num("risk.stop_loss_pct", &c.Risk.StopLossPct)
	num("risk.take_profit_pct", &c.Risk.TakeProfitPct)
	num("risk.risk_per_trade_pct", &c.Risk.RiskPerTradePct)
	num("risk.min_confidence", &c.Risk.MinConfidence)
	num("risk.max_daily_loss_pct", &c.Risk.MaxDailyLossPct)
	integer("risk.max_positions", &c.Risk.MaxPositions)
	integer("risk.max_daily_trades", &c.Risk.MaxDailyTrades)

	str("stop.mode", &c.Stop.Mode)
	num("stop.atr_mult", &c.Stop.ATRMult)
	boolean("stop.trailing", &c.Stop.Trailing)
	num("stop.min_tick", &c.Stop.MinTick)

	num("signal.weights.technical", &c.Signal.Weights.Technical)
	num("signal.weights.sentiment", &c.Signal.Weights.Sentiment)
	num("signal.weights.news", &c.Signal.Weights.News)
	num("signal.buy_threshold", &c.Signal.BuyThreshold)
	num("signal.strong_buy_threshold", &c.Signal.StrongBuy)
	num("signal.sell_threshold", &c.Signal.SellThreshold)
	num("signal.strong_sell_threshold", &c.Signal.StrongSell)
	num("signal.missing_penalty", &c.Signal.MissingPenalty)

	str("llm.provider", &c.LLM.Provider)
	str("llm.model", &c.LLM.Model)
	str("llm.base_url", &c.LLM.BaseURL)
	integer("llm.max_tokens", &c.LLM.MaxTokens)
	if v.IsSet("llm.temperature") {
		c.LLM.Temperature = float32(v.GetFloat64("llm.temperature"))
	}
	boolean("news.enabled", &c.News.Enabled)
	integer("news.max_articles", &c.News.MaxArticles)
	integer("news.cache_ttl_minutes", &c.News.CacheTTLMinutes)
	integer("news.timeout_seconds", &c.News.TimeoutSeconds)
	integer("engine.call_timeout_seconds", &c.Engine.CallTimeoutSeconds)

	str("storage.backend", &c.Storage.Backend)
	str("storage.path", &c.Storage.Path)
	str("tradelog.dir", &c.Tradelog.Dir)
	integer("tradelog.retention_days", &c.Tradelog.RetentionDays)
	str("eod.time", &c.EOD.Time)
	str("eod.dir", &c.EOD.Dir)
	boolean("api.enabled", &c.API.Enabled)
	str("api.addr", &c.API.Addr)

	str("record.redis_addr", &c.Record.RedisAddr)
	str("record.redis_stream", &c.Record.RedisStream)
	str("record.redis_channel", &c.Record.RedisChannel)
	str("record.postgres_dsn", &c.Record.PostgresDSN)
	str("record.nats_url", &c.Record.NATSURL)
	str("record.nats_subject", &c.Record.NATSSubject)
	boolean("record.journal_cycles", &c.Record.JournalCycles)
	if v.IsSet("notify.telegram_chat_id") {
		c.Notify.TelegramChatID = v.GetInt64("notify.telegram_chat_id")
	}
}

// stringList accepts a slice from a bound flag or a comma-separated string
// from the environment.
func stringList(raw any) []string {
	var parts []string
	switch x := raw.(type) {
	case []string:
		parts = x
	case []any:
		for _, e := range x {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
	case string:
		parts = strings.Split(strings.Trim(x, "[]"), ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
