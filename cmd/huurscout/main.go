// huurscout scans Dutch rental portals, stores normalized listings and
// queues notifications for matching users. It doubles as the operator
// CLI for query URLs, proxies and user administration.
package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tg "github.com/go-telegram/bot"
	"github.com/jessevdk/go-flags"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/huurscout/huurscout/pkg/bot"
	"github.com/huurscout/huurscout/pkg/config"
	"github.com/huurscout/huurscout/pkg/fetch"
	"github.com/huurscout/huurscout/pkg/metrics"
	"github.com/huurscout/huurscout/pkg/proxy"
	"github.com/huurscout/huurscout/pkg/scheduler"
	"github.com/huurscout/huurscout/pkg/scrape"
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

	Sources       []string `long:"sources" description:"Sources to scan (repeatable)"`
	Cities        []string `long:"cities" description:"Cities to scan (repeatable)"`
	Interval      int      `long:"interval" description:"Scan interval in seconds"`
	DB            string   `long:"db" description:"Database URI"`
	MaxResults    int      `long:"max-results" description:"Max listings per page"`
	MaxConcurrent int      `long:"max-concurrent" description:"Max concurrent HTTP requests"`
	Once          bool     `long:"once" description:"Run a single scan cycle and exit"`
	ListSources   bool     `long:"list-sources" description:"List available sources and exit"`
	CityScan      bool     `long:"city-scan" description:"Scan configured cities only"`
	QueryScan     bool     `long:"query-scan" description:"Scan stored query URLs only"`
	CombinedScan  bool     `long:"combined-scan" description:"Scan query URLs and cities (default)"`
	SkipCities    bool     `long:"skip-cities" description:"Skip the city pass"`
	SkipQueryURLs bool     `long:"skip-query-urls" description:"Skip the stored query URL pass"`
	MetricsListen string   `long:"metrics-listen" description:"Prometheus listen address"`

	InitDB bool `long:"init-db" description:"Apply database migrations and exit"`

	AddQueryURL    string `long:"add-query-url" description:"Add a query URL as source:url"`
	QueryMethod    string `long:"query-method" description:"HTTP method for --add-query-url" default:"GET"`
	AddQueryDesc   string `long:"add-query-description" description:"Description for --add-query-url"`
	Disabled       bool   `long:"disable" description:"Add the query URL disabled"`
	ListQueryURLs  bool   `long:"list-query-urls" description:"List stored query URLs and exit"`
	ToggleQueryURL int64  `long:"toggle-query-url" description:"Toggle a query URL by id"`
	DeleteQueryURL int64  `long:"delete-query-url" description:"Delete a query URL by id"`

	UseProxies    bool     `long:"use-proxies" description:"Enable the proxy pool"`
	NoProxies     bool     `long:"no-proxies" description:"Disable the proxy pool"`
	ProxyList     []string `long:"proxy-list" description:"Proxy entries (repeatable)"`
	ProxyRotation string   `long:"proxy-rotation" description:"round_robin, random or fallback"`
	ProxyStats    bool     `long:"proxy-stats" description:"Print proxy pool health and exit"`

	ListUsers     bool   `long:"list-users" description:"List registered users and exit"`
	MakeAdmin     int64  `long:"make-admin" description:"Grant admin to a user id"`
	RevokeAdmin   int64  `long:"revoke-admin" description:"Revoke admin from a user id"`
	SendBroadcast string `long:"send-broadcast" description:"Queue a broadcast text for every active user"`
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
		fmt.Printf("huurscout %s (%s) built %s\n", Tag, Commit, BuildTime)
		return 0
	}
	if opts.ListSources {
		for _, name := range scrape.Names() {
			fmt.Println(name)
		}
		return 0
	}

	log := newLogger(opts.Debug)
	cfg, err := buildConfig(&opts)
	if err != nil {
		log.Error().Err(err).Msg("Configuration error")
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
	if opts.InitDB {
		log.Info().Msg("Database initialized")
		return 0
	}

	if done, code := runAdminOps(ctx, &opts, cfg, db, log); done {
		return code
	}

	var pool *proxy.Pool
	if cfg.ProxiesEnabled() {
		pool = proxy.NewPool(cfg.Proxy.List, proxy.Options{
			Strategy:    proxy.Strategy(cfg.Proxy.Rotation),
			MaxFailures: cfg.Proxy.MaxFailures,
			RefreshURL:  cfg.Proxy.APIEndpoint,
			Username:    cfg.Proxy.Username,
			Password:    cfg.Proxy.Password,
			Log:         log,
		})
		if opts.ProxyStats {
			for _, s := range pool.AllStats() {
				fmt.Printf("%s healthy=%v ok=%d fail=%d avg=%s\n",
					s.URL, s.Healthy, s.Successes, s.Failures, s.AvgResponse)
			}
			return 0
		}
	} else if opts.ProxyStats {
		fmt.Println("proxies disabled")
		return 0
	}

	m := metrics.New()
	go func() {
		if err := m.Serve(ctx, cfg.Metrics.Listen, log); err != nil {
			log.Error().Err(err).Msg("Metrics listener failed")
		}
	}()

	fetcher := fetch.New(fetch.Options{
		Timeout:       time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		MaxRetries:    cfg.HTTP.MaxRetries,
		MaxRedirects:  cfg.HTTP.MaxRedirects,
		MaxConcurrent: cfg.Scan.MaxConcurrent,
		Pool:          pool,
		Log:           log,
	})
	svc := scheduler.New(scheduler.Deps{
		Fetch:   fetcher,
		DB:      db,
		Pool:    pool,
		Metrics: m,
		Cfg:     cfg,
		Log:     log,
	})

	if opts.Once {
		svc.RunOnce(ctx)
		return 0
	}
	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Scheduler stopped")
		return 1
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

	// Flags beat the file; the environment only fills what is left.
	if len(opts.Sources) > 0 {
		cfg.Scan.Sources = opts.Sources
	}
	if len(opts.Cities) > 0 {
		cfg.Scan.Cities = opts.Cities
	}
	if opts.Interval > 0 {
		cfg.Scan.IntervalSecs = opts.Interval
	}
	if opts.DB != "" {
		cfg.Database.URI = opts.DB
	}
	if opts.MaxResults > 0 {
		cfg.Scan.MaxResults = opts.MaxResults
	}
	if opts.MaxConcurrent > 0 {
		cfg.Scan.MaxConcurrent = opts.MaxConcurrent
	}
	if opts.MetricsListen != "" {
		cfg.Metrics.Listen = opts.MetricsListen
	}
	switch {
	case opts.CityScan && !opts.QueryScan:
		cfg.Scan.SkipQueryURLs = true
	case opts.QueryScan && !opts.CityScan:
		cfg.Scan.SkipCities = true
	}
	if opts.SkipCities {
		cfg.Scan.SkipCities = true
	}
	if opts.SkipQueryURLs {
		cfg.Scan.SkipQueryURLs = true
	}
	enabled := true
	disabled := false
	if opts.UseProxies {
		cfg.Proxy.Enabled = &enabled
	}
	if opts.NoProxies {
		cfg.Proxy.Enabled = &disabled
	}
	if len(opts.ProxyList) > 0 {
		cfg.Proxy.List = opts.ProxyList
	}
	if opts.ProxyRotation != "" {
		cfg.Proxy.Rotation = opts.ProxyRotation
	}

	cfg.ApplyEnv()
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// runAdminOps executes one-shot CLI operations. Reports whether one ran
// and its exit code.
func runAdminOps(ctx context.Context, opts *options, cfg *config.Config, db *store.Database, log zerolog.Logger) (bool, int) {
	switch {
	case opts.AddQueryURL != "":
		source, url, ok := strings.Cut(opts.AddQueryURL, ":")
		if !ok || source == "" || url == "" {
			log.Error().Msg("--add-query-url wants source:url")
			return true, 1
		}
		if _, err := scrape.Get(source); err != nil {
			log.Error().Err(err).Msg("Unknown source")
			return true, 1
		}
		id, err := db.QueryURLs.Add(ctx, strings.ToLower(source), url, opts.QueryMethod, !opts.Disabled, opts.AddQueryDesc)
		if err != nil {
			log.Error().Err(err).Msg("Adding query URL failed")
			return true, 1
		}
		fmt.Printf("added query URL %d\n", id)
		return true, 0

	case opts.ListQueryURLs:
		urls, err := db.QueryURLs.List(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Listing query URLs failed")
			return true, 1
		}
		for _, q := range urls {
			state := "off"
			if q.Enabled {
				state = "on"
			}
			fmt.Printf("%d\t%s\t%s\t%s\t%s\n", q.ID, q.Source, state, q.Method, q.URL)
		}
		return true, 0

	case opts.ToggleQueryURL > 0:
		return true, toggleQueryURL(ctx, db, opts.ToggleQueryURL, log)

	case opts.DeleteQueryURL > 0:
		ok, err := db.QueryURLs.Delete(ctx, opts.DeleteQueryURL)
		if err != nil {
			log.Error().Err(err).Msg("Deleting query URL failed")
			return true, 1
		}
		if !ok {
			log.Error().Int64("id", opts.DeleteQueryURL).Msg("No such query URL")
			return true, 1
		}
		fmt.Println("deleted")
		return true, 0

	case opts.ListUsers:
		users, err := db.Users.List(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Listing users failed")
			return true, 1
		}
		for _, u := range users {
			fmt.Printf("%d\t@%s\tactive=%v\tadmin=%v\tnotify=%v\n",
				u.UserID, u.Username, u.IsActive, u.IsAdmin, u.NotificationsEnabled)
		}
		return true, 0

	case opts.MakeAdmin > 0 || opts.RevokeAdmin > 0:
		id, admin := opts.MakeAdmin, true
		if opts.RevokeAdmin > 0 {
			id, admin = opts.RevokeAdmin, false
		}
		ok, err := db.Users.SetAdmin(ctx, id, admin)
		if err != nil {
			log.Error().Err(err).Msg("Changing admin flag failed")
			return true, 1
		}
		if !ok {
			log.Error().Int64("user_id", id).Msg("Unknown user")
			return true, 1
		}
		fmt.Printf("user %d admin=%v\n", id, admin)
		return true, 0

	case opts.SendBroadcast != "":
		// One-shot delivery through the bot token, no notifier needed.
		if cfg.Telegram.Token == "" {
			log.Error().Msg("--send-broadcast needs TELEGRAM_BOT_TOKEN")
			return true, 1
		}
		ids, err := db.Users.ActiveChatIDs(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Loading broadcast audience failed")
			return true, 1
		}
		b, err := tg.New(cfg.Telegram.Token)
		if err != nil {
			log.Error().Err(err).Msg("Telegram connection failed")
			return true, 1
		}
		transport := bot.NewTransport(b)
		sent := 0
		for _, chatID := range ids {
			if err := transport.SendText(ctx, chatID, html.EscapeString(opts.SendBroadcast), nil); err != nil {
				log.Warn().Err(err).Int64("chat_id", chatID).Msg("Broadcast send failed")
				continue
			}
			sent++
		}
		fmt.Printf("broadcast sent to %d of %d users\n", sent, len(ids))
		return true, 0
	}
	return false, 0
}

func toggleQueryURL(ctx context.Context, db *store.Database, id int64, log zerolog.Logger) int {
	urls, err := db.QueryURLs.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Listing query URLs failed")
		return 1
	}
	for _, q := range urls {
		if q.ID != id {
			continue
		}
		if _, err := db.QueryURLs.Toggle(ctx, id, !q.Enabled); err != nil {
			log.Error().Err(err).Msg("Toggling query URL failed")
			return 1
		}
		fmt.Printf("query URL %d enabled=%v\n", id, !q.Enabled)
		return 0
	}
	log.Error().Int64("id", id).Msg("No such query URL")
	return 1
}

// signalContext cancels on the first SIGINT/SIGTERM and force-exits on
// the second.
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
