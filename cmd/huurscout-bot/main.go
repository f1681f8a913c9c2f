// huurscout-bot runs the Telegram side: the command front-end and the
// notification delivery worker, sharing one bot connection.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/huurscout/huurscout/pkg/bot"
	"github.com/huurscout/huurscout/pkg/config"
	"github.com/huurscout/huurscout/pkg/metrics"
	"github.com/huurscout/huurscout/pkg/notify"
	"github.com/huurscout/huurscout/pkg/store"
)

// Filled at build time with the -X linker flag.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type options struct {
	Config  string `long:"config" description:"YAML configuration file"`
	EnvFile string `long:"env-file" description:".env file to load" default:".env"`
	Debug   bool   `long:"debug" description:"Enable debug logging"`
	Version bool   `long:"version" description:"Print version and exit"`

	DB            string `long:"db" description:"Database URI"`
	Token         string `long:"token" description:"Telegram bot token"`
	Interval      int    `long:"interval" description:"Queue poll interval in seconds"`
	BatchSize     int    `long:"batch-size" description:"Notifications per batch"`
	DailyCap      int    `long:"daily-cap" description:"Max notifications per user per day"`
	MetricsListen string `long:"metrics-listen" description:"Prometheus listen address"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return 0
		}
		return 1
	}
	if opts.Version {
		fmt.Printf("huurscout-bot %s (%s) built %s\n", Tag, Commit, BuildTime)
		return 0
	}

	log := newLogger(opts.Debug)
	cfg, err := buildConfig(&opts)
	if err != nil {
		log.Error().Err(err).Msg("Configuration error")
		return 1
	}
	if cfg.Telegram.Token == "" {
		log.Error().Msg("TELEGRAM_BOT_TOKEN is not set")
		return 1
	}

	db, err := store.Open(cfg.Database, log)
	if err != nil {
		log.Error().Err(err).Msg("Database connection failed")
		return 1
	}
	defer db.Close()

	ctx, stop := signalContext(log)
	defer stop()

	if err := db.Upgrade(ctx); err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return 1
	}

	frontend, transport, err := bot.NewFrontend(db, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Telegram connection failed")
		return 1
	}

	m := metrics.New()
	go func() {
		if err := m.Serve(ctx, cfg.Metrics.Listen, log); err != nil {
			log.Error().Err(err).Msg("Metrics listener failed")
		}
	}()

	worker := notify.New(notify.Deps{
		Queue:     db.Queue,
		Users:     db.Users,
		Transport: transport,
		Metrics:   m,
		Cfg:       cfg,
		Log:       log,
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	wg.Add(2)
	go func() {
		defer wg.Done()
		frontend.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			select {
			case errCh <- err:
			default:
			}
			stop()
		}
	}()
	wg.Wait()

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("Notification worker stopped")
		return 1
	default:
	}
	log.Info().Msg("Shut down cleanly")
	return 0
}

func buildConfig(opts *options) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}
	cfg := &config.Config{}
	if opts.Config != "" {
		loaded, err := config.LoadFile(opts.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.DB != "" {
		cfg.Database.URI = opts.DB
	}
	if opts.Token != "" {
		cfg.Telegram.Token = opts.Token
	}
	if opts.Interval > 0 {
		cfg.Notify.IntervalSecs = opts.Interval
	}
	if opts.BatchSize > 0 {
		cfg.Notify.BatchSize = opts.BatchSize
	}
	if opts.DailyCap > 0 {
		cfg.Notify.DailyCap = opts.DailyCap
	}
	if opts.MetricsListen != "" {
		cfg.Metrics.Listen = opts.MetricsListen
	}
	cfg.ApplyEnv()
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down, send the signal again to force exit")
		cancel()
		<-sig
		log.Warn().Msg("Forced exit")
		os.Exit(1)
	}()
	return ctx, cancel
}

// newLogger writes console output on a terminal and JSON otherwise.
func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	var writer io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
