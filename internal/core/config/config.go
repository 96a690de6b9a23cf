// Package config loads client and gateway settings from an optional YAML file and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type CacheCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	LRUSize   int
	OpTimeout time.Duration
}

type EventsCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	Queue   int
	H3Res   int
}

// InvalidationCfg drives the consumer that drops cached documents on upstream change.
// It shares the broker list of Events.
type InvalidationCfg struct {
	Enabled bool
	Topic   string
	GroupID string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int
	ServiceURL string
	// AllowedServiceURLs lists further endpoints (URLs or host[:port]) the gateway
	// may fetch from besides ServiceURL.
	AllowedServiceURLs string
	Version            string
	MapCRS             string
	HTTPTimeout        time.Duration
	MetricsEnabled     bool
	Cache              CacheCfg
	Events             EventsCfg
	Invalidation       InvalidationCfg
}

// BrokerList splits the comma separated broker setting.
func (e EventsCfg) BrokerList() []string { return splitList(e.Brokers) }

// ServiceHosts returns the lower-cased host[:port] values of ServiceURL and
// AllowedServiceURLs.
func (c Config) ServiceHosts() []string {
	var out []string
	for _, entry := range append([]string{c.ServiceURL}, splitList(c.AllowedServiceURLs)...) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		host := entry
		if strings.Contains(entry, "://") {
			u, err := url.Parse(entry)
			if err != nil || u.Host == "" {
				continue
			}
			host = u.Host
		}
		out = append(out, strings.ToLower(host))
	}
	return out
}

// ServiceAllowed reports whether rawURL is an http(s) URL on one of the ServiceHosts.
func (c Config) ServiceAllowed(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	return slices.Contains(c.ServiceHosts(), strings.ToLower(u.Host))
}

func splitList(s string) []string {
	var out []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func Defaults() Config {
	return Config{
		Addr:           ":8090",
		LogLevel:       "info",
		Version:        "2.0.1",
		MapCRS:         "EPSG:4326",
		HTTPTimeout:    60 * time.Second,
		MetricsEnabled: true,
		Cache: CacheCfg{
			Enabled:   true,
			TTL:       10 * time.Minute,
			LRUSize:   256,
			OpTimeout: 250 * time.Millisecond,
		},
		Events: EventsCfg{
			Brokers: "localhost:9092",
			Topic:   "wcs-diagnostics",
			Queue:   1024,
			H3Res:   7,
		},
		Invalidation: InvalidationCfg{
			Topic:   "wcs-invalidation",
			GroupID: "simplewcs-cache",
		},
	}
}

// fileConfig mirrors Config for YAML; durations are strings like "30s".
type fileConfig struct {
	Addr               string   `yaml:"addr"`
	LogLevel           string   `yaml:"logLevel"`
	LogConsole         *bool    `yaml:"logConsole"`
	ServiceURL         string   `yaml:"serviceUrl"`
	AllowedServiceURLs []string `yaml:"allowedServiceUrls"`
	Version            string   `yaml:"version"`
	MapCRS             string   `yaml:"mapCrs"`
	HTTPTimeout        string   `yaml:"httpTimeout"`
	MetricsEnabled     *bool    `yaml:"metricsEnabled"`
	Cache              struct {
		Enabled   *bool  `yaml:"enabled"`
		RedisAddr string `yaml:"redisAddr"`
		TTL       string `yaml:"ttl"`
		LRUSize   int    `yaml:"lruSize"`
	} `yaml:"cache"`
	Events struct {
		Enabled *bool  `yaml:"enabled"`
		Brokers string `yaml:"brokers"`
		Topic   string `yaml:"topic"`
		Queue   int    `yaml:"queue"`
		H3Res   *int   `yaml:"h3Res"`
	} `yaml:"events"`
	Invalidation struct {
		Enabled *bool  `yaml:"enabled"`
		Topic   string `yaml:"topic"`
		GroupID string `yaml:"groupId"`
	} `yaml:"invalidation"`
}

// Load applies defaults, then the YAML file at path (if any), then the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var fc fileConfig
		if err := yaml.UnmarshalStrict(b, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := fc.apply(&cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

func (fc fileConfig) apply(cfg *Config) error {
	setStr(&cfg.Addr, fc.Addr)
	setStr(&cfg.LogLevel, fc.LogLevel)
	setBool(&cfg.LogConsole, fc.LogConsole)
	setStr(&cfg.ServiceURL, fc.ServiceURL)
	if len(fc.AllowedServiceURLs) > 0 {
		cfg.AllowedServiceURLs = strings.Join(fc.AllowedServiceURLs, ",")
	}
	setStr(&cfg.Version, fc.Version)
	setStr(&cfg.MapCRS, fc.MapCRS)
	setBool(&cfg.MetricsEnabled, fc.MetricsEnabled)
	if err := setDur(&cfg.HTTPTimeout, fc.HTTPTimeout); err != nil {
		return fmt.Errorf("httpTimeout: %w", err)
	}

	setBool(&cfg.Cache.Enabled, fc.Cache.Enabled)
	setStr(&cfg.Cache.RedisAddr, fc.Cache.RedisAddr)
	if err := setDur(&cfg.Cache.TTL, fc.Cache.TTL); err != nil {
		return fmt.Errorf("cache.ttl: %w", err)
	}
	if fc.Cache.LRUSize > 0 {
		cfg.Cache.LRUSize = fc.Cache.LRUSize
	}

	setBool(&cfg.Events.Enabled, fc.Events.Enabled)
	setStr(&cfg.Events.Brokers, fc.Events.Brokers)
	setStr(&cfg.Events.Topic, fc.Events.Topic)
	if fc.Events.Queue > 0 {
		cfg.Events.Queue = fc.Events.Queue
	}
	if fc.Events.H3Res != nil {
		cfg.Events.H3Res = *fc.Events.H3Res
	}

	setBool(&cfg.Invalidation.Enabled, fc.Invalidation.Enabled)
	setStr(&cfg.Invalidation.Topic, fc.Invalidation.Topic)
	setStr(&cfg.Invalidation.GroupID, fc.Invalidation.GroupID)
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("ADDR", cfg.Addr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogConsole = getbool("LOG_CONSOLE", cfg.LogConsole)
	cfg.LogSampleN = getint("LOG_SAMPLE_N", cfg.LogSampleN)
	cfg.ServiceURL = getenv("WCS_URL", cfg.ServiceURL)
	cfg.AllowedServiceURLs = getenv("ALLOWED_SERVICE_URLS", cfg.AllowedServiceURLs)
	cfg.Version = getenv("WCS_VERSION", cfg.Version)
	cfg.MapCRS = getenv("MAP_CRS", cfg.MapCRS)
	cfg.HTTPTimeout = getduration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.MetricsEnabled = getbool("METRICS_ENABLED", cfg.MetricsEnabled)

	cfg.Cache.Enabled = getbool("CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.RedisAddr = getenv("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.TTL = getduration("CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.LRUSize = getint("CACHE_LRU_SIZE", cfg.Cache.LRUSize)
	cfg.Cache.OpTimeout = getduration("CACHE_OP_TIMEOUT", cfg.Cache.OpTimeout)

	cfg.Events.Enabled = getbool("EVENTS_ENABLED", cfg.Events.Enabled)
	cfg.Events.Brokers = getenv("KAFKA_BROKERS", cfg.Events.Brokers)
	cfg.Events.Topic = getenv("KAFKA_TOPIC", cfg.Events.Topic)
	cfg.Events.Queue = getint("EVENTS_QUEUE", cfg.Events.Queue)
	cfg.Events.H3Res = getint("H3_RES", cfg.Events.H3Res)

	cfg.Invalidation.Enabled = getbool("INVALIDATION_ENABLED", cfg.Invalidation.Enabled)
	cfg.Invalidation.Topic = getenv("INVALIDATION_TOPIC", cfg.Invalidation.Topic)
	cfg.Invalidation.GroupID = getenv("KAFKA_GROUP_ID", cfg.Invalidation.GroupID)
}

func (c Config) Validate() error {
	if c.Events.H3Res < 0 || c.Events.H3Res > 15 {
		return fmt.Errorf("H3_RES %d out of range 0..15", c.Events.H3Res)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.Events.Enabled && len(c.Events.BrokerList()) == 0 {
		return fmt.Errorf("events enabled but KAFKA_BROKERS is empty")
	}
	if c.Invalidation.Enabled {
		if len(c.Events.BrokerList()) == 0 {
			return fmt.Errorf("invalidation enabled but KAFKA_BROKERS is empty")
		}
		if !c.Cache.Enabled {
			return fmt.Errorf("invalidation enabled but the document cache is disabled")
		}
	}
	return nil
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDur(dst *time.Duration, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
