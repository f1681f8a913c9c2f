package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.mau.fi/util/ptr"
)

// LoadDotEnv loads a .env file into the process environment when one
// exists. Missing files are not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// FromEnv builds a configuration from environment variables with all
// defaults applied.
func FromEnv() *Config {
	cfg := &Config{}
	cfg.ApplyEnv()
	return cfg.WithDefaults()
}

// ApplyEnv overrides empty config fields from environment variables.
func (c *Config) ApplyEnv() {
	c.Database.URI = envOr(c.Database.URI, databaseURIFromEnv())

	if len(c.Scan.Sources) == 0 {
		c.Scan.Sources = splitCSV(os.Getenv("DEFAULT_SOURCES"))
	}
	if len(c.Scan.Cities) == 0 {
		c.Scan.Cities = splitCSV(os.Getenv("DEFAULT_CITIES"))
	}
	c.Scan.IntervalSecs = envIntOr(c.Scan.IntervalSecs, "DEFAULT_SCAN_INTERVAL")
	c.Scan.MaxResults = envIntOr(c.Scan.MaxResults, "MAX_RESULTS_PER_SCAN")
	c.Scan.MaxConcurrent = envIntOr(c.Scan.MaxConcurrent, "MAX_CONCURRENT_REQUESTS")
	c.Scan.Days = envIntOr(c.Scan.Days, "SCAN_DAYS")
	if !c.Scan.StopAfterNoResult {
		c.Scan.StopAfterNoResult = envBool("STOP_AFTER_NO_RESULT")
	}
	c.applySiteOverrides()

	c.HTTP.TimeoutSecs = envIntOr(c.HTTP.TimeoutSecs, "HTTP_TIMEOUT")
	c.HTTP.MaxRetries = envIntOr(c.HTTP.MaxRetries, "HTTP_MAX_RETRIES")

	if c.Proxy.Enabled == nil {
		if _, ok := os.LookupEnv("USE_PROXIES"); ok {
			c.Proxy.Enabled = ptr.Ptr(envBool("USE_PROXIES"))
		}
	}
	if len(c.Proxy.List) == 0 {
		c.Proxy.List = splitCSV(os.Getenv("PROXY_LIST"))
	}
	c.Proxy.Rotation = envOr(c.Proxy.Rotation, os.Getenv("PROXY_ROTATION_STRATEGY"))
	c.Proxy.MaxFailures = envIntOr(c.Proxy.MaxFailures, "MAX_PROXY_FAILURES")
	c.Proxy.Provider = envOr(c.Proxy.Provider, os.Getenv("PROXY_PROVIDER"))
	c.Proxy.Username = envOr(c.Proxy.Username, os.Getenv("PROXY_USERNAME"))
	c.Proxy.Password = envOr(c.Proxy.Password, os.Getenv("PROXY_PASSWORD"))
	c.Proxy.APIEndpoint = envOr(c.Proxy.APIEndpoint, os.Getenv("PROXY_API_ENDPOINT"))

	c.Telegram.Token = envOr(c.Telegram.Token, os.Getenv("TELEGRAM_BOT_TOKEN"))
	if len(c.Telegram.AdminIDs) == 0 {
		for _, raw := range splitCSV(os.Getenv("TELEGRAM_ADMIN_USER_IDS")) {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				c.Telegram.AdminIDs = append(c.Telegram.AdminIDs, id)
			}
		}
	}

	c.Notify.IntervalSecs = envIntOr(c.Notify.IntervalSecs, "NOTIFICATION_INTERVAL")
	c.Notify.BatchSize = envIntOr(c.Notify.BatchSize, "NOTIFICATION_BATCH_SIZE")
	c.Notify.DailyCap = envIntOr(c.Notify.DailyCap, "MAX_NOTIFICATIONS_PER_USER_PER_DAY")
	c.Notify.RetryAttempts = envIntOr(c.Notify.RetryAttempts, "NOTIFICATION_RETRY_ATTEMPTS")

	c.Metrics.Listen = envOr(c.Metrics.Listen, os.Getenv("METRICS_LISTEN"))
}

// applySiteOverrides reads SITE_<SOURCE>_MIN_INTERVAL variables, e.g.
// SITE_PARARIUS_MIN_INTERVAL=600.
func (c *Config) applySiteOverrides() {
	if c.Scan.SiteMinIntervals == nil {
		c.Scan.SiteMinIntervals = make(map[string]int)
	}
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, "SITE_") || !strings.HasSuffix(key, "_MIN_INTERVAL") {
			continue
		}
		source := strings.TrimSuffix(strings.TrimPrefix(key, "SITE_"), "_MIN_INTERVAL")
		if source == "" {
			continue
		}
		source = strings.ToLower(source)
		if _, ok := c.Scan.SiteMinIntervals[source]; ok {
			continue
		}
		if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && secs > 0 {
			c.Scan.SiteMinIntervals[source] = secs
		}
	}
}

// databaseURIFromEnv prefers DATABASE_URL and otherwise assembles a DSN
// from the DB_* parts.
func databaseURIFromEnv() string {
	if uri := strings.TrimSpace(os.Getenv("DATABASE_URL")); uri != "" {
		return uri
	}
	host := strings.TrimSpace(os.Getenv("DB_HOST"))
	if host == "" {
		return ""
	}
	port := envOr("5432", os.Getenv("DB_PORT"))
	name := envOr("realestate", os.Getenv("DB_NAME"))
	user := envOr("postgres", os.Getenv("DB_USER"))
	pass := os.Getenv("DB_PASSWORD")
	auth := url.User(user)
	if pass != "" {
		auth = url.UserPassword(user, pass)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s", auth.String(), host, port, name)
}

func envOr(existing, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return existing
	}
	return value
}

func envIntOr(existing int, key string) int {
	if existing > 0 {
		return existing
	}
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return existing
	}
	return v
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
