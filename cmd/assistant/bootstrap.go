package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"crypto-trading-assistant/internal/api"
	"crypto-trading-assistant/internal/engine"
	"crypto-trading-assistant/internal/engine/engineobs"
	"crypto-trading-assistant/internal/eod"
	"crypto-trading-assistant/internal/eod/eodobs"
	"crypto-trading-assistant/internal/exchange"
	"crypto-trading-assistant/internal/exchange/exchangeobs"
	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/llm/deepseek"
	"crypto-trading-assistant/internal/llm/llmobs"
	"crypto-trading-assistant/internal/llm/noop"
	"crypto-trading-assistant/internal/llm/openai"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/metrics"
	"crypto-trading-assistant/internal/news"
	"crypto-trading-assistant/internal/notify"
	"crypto-trading-assistant/internal/position"
	"crypto-trading-assistant/internal/position/boltstore"
	"crypto-trading-assistant/internal/position/sqlstore"
	"crypto-trading-assistant/internal/record"
	"crypto-trading-assistant/internal/record/natsrec"
	"crypto-trading-assistant/internal/record/pgrec"
	"crypto-trading-assistant/internal/record/redisrec"
	"crypto-trading-assistant/internal/risk"
	"crypto-trading-assistant/internal/signal"
	"crypto-trading-assistant/internal/store"
	"crypto-trading-assistant/internal/tradelog"
	"crypto-trading-assistant/internal/types"
)

// app holds every long-lived collaborator of one process.
type app struct {
	cfg *store.Config
	loc *time.Location

	client     *exchange.Client
	exchange   interfaces.Exchange
	news       *news.Service
	book       *position.Book
	gate       *risk.Gate
	journal    *tradelog.Journal
	summarizer interfaces.EodSummarizer
	engine     interfaces.Engine
	sinks      *record.Multi
	metrics    *metrics.Metrics
	notifier   interfaces.Notifier

	closers []func() error
}

// initializeSystem loads .env and starts logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.Load(path, viperInstance)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// newApp builds the collaborators shared by every subcommand. Optional sinks
// that cannot connect are skipped with a warning.
func newApp(ctx context.Context, cfg *store.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, loc: loc}

	if err := a.initializeExchange(ctx); err != nil {
		return nil, a.fail(err)
	}
	if err := a.initializeBook(ctx); err != nil {
		return nil, a.fail(err)
	}
	a.journal = tradelog.New(cfg.Tradelog.Dir, loc)
	if err := a.initializeEOD(); err != nil {
		return nil, a.fail(err)
	}
	if err := a.initializeEngine(ctx); err != nil {
		return nil, a.fail(err)
	}
	a.initializeSinks(ctx)
	a.metrics = metrics.New()
	a.initializeNotifier(ctx)
	return a, nil
}

func (a *app) fail(err error) error {
	a.close()
	return err
}

func (a *app) initializeExchange(ctx context.Context) error {
	cfg := a.cfg
	client, err := exchange.New(exchange.Config{
		Mode:          cfg.Mode,
		BaseURL:       cfg.Exchange.BaseURL,
		KlineInterval: cfg.Exchange.KlineInterval,
		KlineLimit:    cfg.Exchange.KlineLimit,
		RatePerSecond: cfg.Exchange.RatePerSecond,
		QuoteAsset:    cfg.Exchange.QuoteAsset,
		DryRunBalance: cfg.Exchange.DryRunBalance,
		Timeout:       cfg.CallTimeout(),
		Indicators: exchange.IndicatorParams{
			RSIPeriod:  cfg.Indicators.RSIPeriod,
			MACDFast:   cfg.Indicators.MACDFast,
			MACDSlow:   cfg.Indicators.MACDSlow,
			MACDSignal: cfg.Indicators.MACDSignal,
			BBWindow:   cfg.Indicators.BBWindow,
			BBStdDev:   cfg.Indicators.BBStdDev,
			ATRPeriod:  cfg.Indicators.ATRPeriod,
		},
	})
	if err != nil {
		return err
	}
	if cfg.Mode == store.ModeDryRun {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	} else {
		logger.Warn(ctx, "Running in LIVE mode - orders will be sent to the exchange")
	}
	a.client = client
	a.exchange = exchangeobs.Wrap(client)
	return nil
}

func (a *app) initializeBook(ctx context.Context) error {
	var st position.Store
	switch a.cfg.Storage.Backend {
	case "bolt":
		s, err := boltstore.Open(a.cfg.Storage.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		st = s
	case "sqlite":
		s, err := sqlstore.Open(a.cfg.Storage.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		st = s
	default:
		st = position.NewMemoryStore()
	}
	a.book = position.NewBook(st)
	logger.Info(ctx, "Position store ready", "backend", a.cfg.Storage.Backend, "path", a.cfg.Storage.Path)
	return a.book.Load(ctx)
}

func (a *app) initializeEOD() error {
	s, err := eod.New(a.journal, a.cfg.EOD.Dir, a.cfg.EOD.Time)
	if err != nil {
		return err
	}
	a.summarizer = eodobs.Wrap(s)
	return nil
}

func (a *app) initializeSentiment(ctx context.Context) (interfaces.SentimentSource, error) {
	c := a.cfg.LLM
	var src interfaces.SentimentSource
	switch strings.ToLower(c.Provider) {
	case "openai":
		s, err := openai.New(ctx, openai.Config{
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
			System:      c.System,
		})
		if err != nil {
			return nil, err
		}
		src = s
	case "deepseek":
		s, err := deepseek.New(ctx, deepseek.Config{
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
			System:    c.System,
		})
		if err != nil {
			return nil, err
		}
		src = s
	default:
		logger.Warn(ctx, "No LLM provider configured - sentiment is always neutral")
		src = noop.New()
	}
	return llmobs.Wrap(src), nil
}

func (a *app) initializeEngine(ctx context.Context) error {
	cfg := a.cfg
	sentiment, err := a.initializeSentiment(ctx)
	if err != nil {
		return err
	}

	a.news = news.NewService(&news.ServiceConfig{
		MaxArticles:    cfg.News.MaxArticles,
		CacheDuration:  time.Duration(cfg.News.CacheTTLMinutes) * time.Minute,
		ScraperTimeout: time.Duration(cfg.News.TimeoutSeconds) * time.Second,
		Enabled:        cfg.News.Enabled,
	})
	a.closers = append(a.closers, func() error { a.news.Close(); return nil })

	a.gate, err = risk.NewGate(risk.Limits{
		MaxPositionSize: cfg.Risk.MaxPositionSize,
		MinTradeSize:    cfg.Risk.MinTradeSize,
		StopLossPct:     cfg.Risk.StopLossPct,
		TakeProfitPct:   cfg.Risk.TakeProfitPct,
		RiskPerTradePct: cfg.Risk.RiskPerTradePct,
		MinConfidence:   cfg.Risk.MinConfidence,
		MaxDailyLossPct: cfg.Risk.MaxDailyLossPct,
		MaxPositions:    cfg.Risk.MaxPositions,
		MaxDailyTrades:  cfg.Risk.MaxDailyTrades,
		StopMode:        cfg.Stop.Mode,
		ATRMult:         cfg.Stop.ATRMult,
		MinTick:         cfg.Stop.MinTick,
	}, a.loc)
	if err != nil {
		return err
	}

	agg, err := signal.NewAggregator(signal.Config{
		Weights: signal.Weights{
			Technical: cfg.Signal.Weights.Technical,
			Sentiment: cfg.Signal.Weights.Sentiment,
			News:      cfg.Signal.Weights.News,
		},
		BuyThreshold:   cfg.Signal.BuyThreshold,
		StrongBuy:      cfg.Signal.StrongBuy,
		SellThreshold:  cfg.Signal.SellThreshold,
		StrongSell:     cfg.Signal.StrongSell,
		MissingPenalty: cfg.Signal.MissingPenalty,
	})
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Deps{
		Market:     a.exchange,
		Sentiment:  sentiment,
		News:       a.news,
		Account:    a.exchange,
		Orders:     a.exchange,
		Book:       a.book,
		Gate:       a.gate,
		Aggregator: agg,
		Journal:    a.journal,
	}, engine.Options{
		CallTimeout:  cfg.CallTimeout(),
		TrailingStop: cfg.Stop.Trailing,
	})
	if err != nil {
		return err
	}
	a.engine = engineobs.Wrap(eng)
	return nil
}

func (a *app) initializeSinks(ctx context.Context) {
	rc := a.cfg.Record
	var sinks []record.Sink
	if rc.RedisAddr != "" {
		if s, err := redisrec.New(ctx, rc.RedisAddr, rc.RedisStream, rc.RedisChannel); err != nil {
			logger.Warn(ctx, "Redis sink disabled", "addr", rc.RedisAddr, "error", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if rc.PostgresDSN != "" {
		if s, err := pgrec.New(ctx, rc.PostgresDSN); err != nil {
			logger.Warn(ctx, "Postgres sink disabled", "error", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if rc.NATSURL != "" {
		if s, err := natsrec.New(rc.NATSURL, rc.NATSSubject); err != nil {
			logger.Warn(ctx, "NATS sink disabled", "url", rc.NATSURL, "error", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	a.sinks = record.NewMulti(sinks...)
	a.closers = append(a.closers, a.sinks.Close)
	logger.Info(ctx, "Cycle sinks ready", "count", a.sinks.Len(), "journal", rc.JournalCycles)
}

func (a *app) initializeNotifier(ctx context.Context) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := a.cfg.Notify.TelegramChatID
	if token == "" || chatID == 0 {
		return
	}
	tg, err := notify.New(token, chatID)
	if err != nil {
		logger.Warn(ctx, "Telegram notifications disabled", "error", err)
		return
	}
	a.notifier = tg
	logger.Info(ctx, "Telegram notifications enabled", "chat_id", chatID)
}

func (a *app) runner() *engine.Runner {
	recorders := []interfaces.CycleRecorder{a.sinks}
	if a.cfg.Record.JournalCycles {
		recorders = append(recorders, a.journal)
	}
	opts := []engine.RunnerOption{
		engine.WithRecorders(recorders...),
		engine.WithObserver(&gaugeObserver{metrics: a.metrics, book: a.book, gate: a.gate}),
	}
	if a.notifier != nil {
		opts = append(opts, engine.WithNotifier(a.notifier))
	}
	return engine.NewRunner(a.engine, a.cfg.Symbols, a.cfg.Interval(), opts...)
}

func (a *app) apiServer(r *engine.Runner) *api.Server {
	return api.NewServer(api.Config{
		Addr: a.cfg.API.Addr,
		Mode: a.cfg.Mode,
	}, r, a.book, a.gate, a.metrics.Handler())
}

// close releases stores and sink connections in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.ErrorWithErr(context.Background(), "Failed to close resource", err)
		}
	}
	a.closers = nil
}

// gaugeObserver refreshes the book and daily gauges after every cycle.
type gaugeObserver struct {
	metrics *metrics.Metrics
	book    *position.Book
	gate    *risk.Gate
}

func (g *gaugeObserver) ObserveCycle(res types.CycleResult) {
	g.metrics.ObserveCycle(res)
	g.metrics.SetBook(len(g.book.List()), g.book.OpenPnL().InexactFloat64())
	st := g.gate.Snapshot(time.Now())
	g.metrics.SetDaily(st.RealizedPnL, st.Trades)
}
