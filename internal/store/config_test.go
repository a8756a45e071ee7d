package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-faster/errors"
	"github.com/spf13/pflag"

	"crypto-trading-assistant/internal/types"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "symbols: [BTCUSDT]\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Mode != ModeDryRun {
		t.Errorf("Expected default mode DRY_RUN, got %s", cfg.Mode)
	}
	if cfg.IntervalSeconds != 60 {
		t.Errorf("Expected default interval 60, got %d", cfg.IntervalSeconds)
	}
	if cfg.Risk.MaxDailyLossPct != 5 || cfg.Risk.MinConfidence != 0.6 {
		t.Errorf("Expected default risk limits, got %+v", cfg.Risk)
	}
	if cfg.Signal.Weights.Technical != 0.4 || cfg.Signal.Weights.News != 0.3 {
		t.Errorf("Expected default weights, got %+v", cfg.Signal.Weights)
	}
	if cfg.CallTimeout().Seconds() != 10 {
		t.Errorf("Expected 10s call timeout, got %v", cfg.CallTimeout())
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
mode = "LIVE"
symbols = ["ETHUSDT", "SOLUSDT"]
timezone = "Asia/Kolkata"

[risk]
max_daily_loss_pct = 3.5

[storage]
backend = "sqlite"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Mode != ModeLive || len(cfg.Symbols) != 2 {
		t.Errorf("Expected LIVE with 2 symbols, got %s %v", cfg.Mode, cfg.Symbols)
	}
	if cfg.Risk.MaxDailyLossPct != 3.5 {
		t.Errorf("Expected max_daily_loss_pct 3.5, got %f", cfg.Risk.MaxDailyLossPct)
	}
	if cfg.Storage.Path != "data/positions.sqlite" {
		t.Errorf("Expected sqlite default path, got %s", cfg.Storage.Path)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Kolkata" {
		t.Errorf("Expected Asia/Kolkata location, got %v %v", loc, err)
	}
}

func TestValidationErrorsAreConfigurationErrors(t *testing.T) {
	cases := map[string]string{
		"bad mode":     "mode: PAPER\nsymbols: [BTCUSDT]\n",
		"no symbols":   "mode: DRY_RUN\n",
		"bad timezone": "symbols: [BTCUSDT]\ntimezone: Mars/Olympus\n",
		"bad backend":  "symbols: [BTCUSDT]\nstorage:\n  backend: mongo\n",
		"bad eod time": "symbols: [BTCUSDT]\neod:\n  time: \"25:99\"\n",
	}
	for name, body := range cases {
		_, err := LoadConfig(writeFile(t, "config.yaml", body))
		if !errors.Is(err, types.ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestEnvAndFlagOverlay(t *testing.T) {
	path := writeFile(t, "config.yaml", "mode: DRY_RUN\nsymbols: [BTCUSDT]\n")
	t.Setenv("ASSISTANT_MODE", "LIVE")
	t.Setenv("ASSISTANT_RISK_MIN_CONFIDENCE", "0.75")

	v := NewViper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringSlice("symbols", nil, "")
	if err := v.BindPFlag("symbols", flags.Lookup("symbols")); err != nil {
		t.Fatalf("BindPFlag failed: %v", err)
	}
	if err := flags.Parse([]string{"--symbols", "ethusdt,solusdt"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := Load(path, v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != ModeLive {
		t.Errorf("Expected env override LIVE, got %s", cfg.Mode)
	}
	if cfg.Risk.MinConfidence != 0.75 {
		t.Errorf("Expected min_confidence 0.75, got %f", cfg.Risk.MinConfidence)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "ETHUSDT" {
		t.Errorf("Expected flag symbols [ETHUSDT SOLUSDT], got %v", cfg.Symbols)
	}
}

func TestEnvOverlaySignalStopAndRisk(t *testing.T) {
	path := writeFile(t, "config.yaml", "symbols: [BTCUSDT]\nsignal:\n  buy_threshold: 0.7\n")
	t.Setenv("ASSISTANT_RISK_MIN_TRADE_SIZE", "0.005")
	t.Setenv("ASSISTANT_SIGNAL_BUY_THRESHOLD", "0.65")
	t.Setenv("ASSISTANT_SIGNAL_STRONG_SELL_THRESHOLD", "0.1")
	t.Setenv("ASSISTANT_SIGNAL_WEIGHTS_NEWS", "0.5")
	t.Setenv("ASSISTANT_STOP_MODE", "atr")
	t.Setenv("ASSISTANT_STOP_ATR_MULT", "3")
	t.Setenv("ASSISTANT_STOP_TRAILING", "true")
	t.Setenv("ASSISTANT_EOD_TIME", "22:30")

	cfg, err := Load(path, NewViper())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Risk.MinTradeSize != 0.005 {
		t.Errorf("Expected min_trade_size 0.005, got %f", cfg.Risk.MinTradeSize)
	}
	if cfg.Signal.BuyThreshold != 0.65 || cfg.Signal.StrongSell != 0.1 {
		t.Errorf("Expected thresholds 0.65/0.1, got %f/%f", cfg.Signal.BuyThreshold, cfg.Signal.StrongSell)
	}
	if cfg.Signal.Weights.News != 0.5 {
		t.Errorf("Expected news weight 0.5, got %f", cfg.Signal.Weights.News)
	}
	if cfg.Stop.Mode != "ATR" || cfg.Stop.ATRMult != 3 || !cfg.Stop.Trailing {
		t.Errorf("Expected ATR stop x3 trailing, got %s x%f trailing=%v", cfg.Stop.Mode, cfg.Stop.ATRMult, cfg.Stop.Trailing)
	}
	if cfg.EOD.Time != "22:30" {
		t.Errorf("Expected eod time 22:30, got %s", cfg.EOD.Time)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config.yaml"))
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if cfg.Storage.Backend != "bolt" {
		t.Errorf("Expected bolt backend in sample, got %s", cfg.Storage.Backend)
	}
}

func TestStringList(t *testing.T) {
	got := stringList("btcusdt, ethusdt,,")
	if len(got) != 2 || got[1] != "ETHUSDT" {
		t.Errorf("Expected [BTCUSDT ETHUSDT], got %v", got)
	}
}
