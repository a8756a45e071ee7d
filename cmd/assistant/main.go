package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crypto-trading-assistant/internal/exchange"
	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/position"
	"crypto-trading-assistant/internal/store"
	"crypto-trading-assistant/internal/types"
)

const eodCheckInterval = time.Minute

var viperInstance = store.NewViper()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Crypto trading assistant",
		Long:          "Combines technical indicators, LLM sentiment and news into risk-checked spot trades.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeSystem()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = logger.Shutdown(ctx)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "config.yaml", "config file (.yaml or .toml)")
	flags.String("mode", "", "DRY_RUN or LIVE, overrides the config file")
	flags.StringSlice("symbols", nil, "symbols to trade, overrides the config file")
	bindFlags(viperInstance, root)

	root.AddCommand(
		newRunCmd(&configPath),
		newOnceCmd(&configPath),
		newPositionsCmd(&configPath),
		newEODCmd(&configPath),
	)
	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	_ = v.BindPFlag("mode", cmd.PersistentFlags().Lookup("mode"))
	_ = v.BindPFlag("symbols", cmd.PersistentFlags().Lookup("symbols"))
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run cycles on the configured interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runService(ctx, *configPath)
		},
	}
}

func newOnceCmd(configPath *string) *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle per symbol and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			r := a.runner()
			symbols := r.Symbols()
			if symbol != "" {
				symbols = []string{strings.ToUpper(symbol)}
			}
			for _, s := range symbols {
				res, err := r.Trigger(ctx, s)
				if err != nil {
					return err
				}
				if err := printJSON(res); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "only this configured symbol")
	return cmd
}

func newPositionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Print the stored open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return printJSON(a.book.List())
		},
	}
}

func newEODCmd(configPath *string) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "eod",
		Short: "Write the end-of-day CSV for a date (today if omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			day := time.Now().In(a.loc)
			if date != "" {
				day, err = time.ParseInLocation("2006-01-02", date, a.loc)
				if err != nil {
					return errors.Wrapf(types.ErrConfiguration, "invalid date %q, use YYYY-MM-DD", date)
				}
			}
			p, err := a.summarizer.SummarizeDay(day)
			if err != nil {
				return err
			}
			if p == "" {
				fmt.Println("no trades on", day.Format("2006-01-02"))
				return nil
			}
			fmt.Println(p)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day in YYYY-MM-DD, in the trading timezone")
	return cmd
}

func bootstrap(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

// runService runs the scheduler, the optional price stream and API server, and
// the end-of-day check until ctx is cancelled.
func runService(ctx context.Context, configPath string) error {
	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	r := a.runner()
	compressOldLogs(ctx, a)

	if a.cfg.Exchange.StreamEnabled {
		startPriceStream(ctx, a, r.WatchPrices)
	}

	var srv interface{ Shutdown(context.Context) error }
	if a.cfg.API.Enabled {
		s := a.apiServer(r)
		srv = s
		go func() {
			if err := s.Start(); err != nil {
				logger.ErrorWithErr(ctx, "HTTP server stopped", err)
			}
		}()
	}

	go eodLoop(ctx, a)

	logger.Info(ctx, "Assistant started", "mode", a.cfg.Mode, "symbols", a.cfg.Symbols)
	runErr := r.Run(ctx)

	logger.Info(context.Background(), "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr(shutdownCtx, "HTTP server shutdown failed", err)
		}
	}
	if err := a.book.Save(shutdownCtx); err != nil {
		logger.ErrorWithErr(shutdownCtx, "Failed to save positions on shutdown", err)
	}
	if p, err := a.summarizer.SummarizeToday(); err == nil && p != "" {
		logger.Info(shutdownCtx, "EOD CSV written", "path", p)
	}
	return runErr
}

// startPriceStream feeds live ticks to the exchange price cache and to the
// runner's protective-level watcher.
func startPriceStream(ctx context.Context, a *app, watch func(context.Context, <-chan interfaces.Tick, *position.Book)) {
	ticks, err := exchange.NewStream(a.cfg.Exchange.WSURL).Subscribe(ctx, a.cfg.Symbols)
	if err != nil {
		logger.Warn(ctx, "Price stream disabled", "error", err)
		return
	}
	fwd := make(chan interfaces.Tick, 256)
	go func() {
		defer close(fwd)
		for t := range ticks {
			a.client.ObservePrice(t)
			select {
			case fwd <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	go watch(ctx, fwd, a.book)
	logger.Info(ctx, "Price stream started", "url", a.cfg.Exchange.WSURL)
}

func eodLoop(ctx context.Context, a *app) {
	tick := time.NewTicker(eodCheckInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if ok, _ := a.summarizer.ShouldRunNow(); !ok {
				continue
			}
			if p, err := a.summarizer.SummarizeToday(); err == nil && p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
			compressOldLogs(ctx, a)
		}
	}
}

// compressOldLogs gzips journal files older than the configured retention.
func compressOldLogs(ctx context.Context, a *app) {
	days := a.cfg.Tradelog.RetentionDays
	if days <= 0 {
		return
	}
	if err := a.journal.CompressOlder(days); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal output")
	}
	fmt.Println(string(b))
	return nil
}
