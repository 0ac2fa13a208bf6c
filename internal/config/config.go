package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ernie/portal-repository/internal/countcache"
	"github.com/ernie/portal-repository/internal/ingest"
	"github.com/ernie/portal-repository/internal/tags"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds count cache settings
type CacheConfig struct {
	Backend  string        `yaml:"backend"`
	TTL      time.Duration `yaml:"ttl"`
	Size     int           `yaml:"size"`
	RedisURL string        `yaml:"redis_url"`
}

// IngestConfig holds NATS settings. An empty URL disables ingest.
type IngestConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// ReconcileConfig holds tag reconciliation settings
type ReconcileConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ActiveWindow time.Duration `yaml:"active_window"`
	ActiveTag    string        `yaml:"active_tag"`
	InactiveTag  string        `yaml:"inactive_tag"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cc := countcache.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1",
			HTTPPort:        8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "/var/lib/portal/portal.db"},
		Cache: CacheConfig{
			Backend:  cc.Backend,
			TTL:      cc.TTL,
			Size:     cc.Size,
			RedisURL: cc.RedisURL,
		},
		Ingest: IngestConfig{
			Subject: ingest.DefaultSubject,
			Queue:   ingest.DefaultQueue,
		},
		Reconcile: ReconcileConfig{
			Interval:     tags.DefaultInterval,
			ActiveWindow: tags.DefaultActiveWindow,
			ActiveTag:    tags.DefaultActiveTag,
			InactiveTag:  tags.DefaultInactiveTag,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file layered over the defaults,
// then applies environment overrides (a .env file in the working directory
// is loaded first when present). An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("PORTAL_DATABASE_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := os.LookupEnv("PORTAL_HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORTAL_HTTP_PORT %q: %w", v, err)
		}
		c.Server.HTTPPort = port
	}
	if v, ok := os.LookupEnv("PORTAL_CACHE_BACKEND"); ok {
		c.Cache.Backend = v
	}
	if v, ok := os.LookupEnv("PORTAL_REDIS_URL"); ok {
		c.Cache.RedisURL = v
	}
	if v, ok := os.LookupEnv("PORTAL_NATS_URL"); ok {
		c.Ingest.NATSURL = v
	}
	if v, ok := os.LookupEnv("PORTAL_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case countcache.BackendMemory, countcache.BackendRedis:
	default:
		return fmt.Errorf("cache.backend %q: must be memory or redis", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.Backend == countcache.BackendMemory && c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive, got %d", c.Cache.Size)
	}
	if c.Cache.Backend == countcache.BackendRedis && c.Cache.RedisURL == "" {
		return errors.New("cache.redis_url is required for the redis backend")
	}
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort)
	}
	if c.Reconcile.ActiveTag == "" || c.Reconcile.InactiveTag == "" {
		return errors.New("reconcile.active_tag and reconcile.inactive_tag are required")
	}
	if strings.EqualFold(c.Reconcile.ActiveTag, c.Reconcile.InactiveTag) {
		return fmt.Errorf("reconcile tags must differ, both are %q", c.Reconcile.ActiveTag)
	}
	if c.Reconcile.ActiveWindow <= 0 {
		return fmt.Errorf("reconcile.active_window must be positive, got %s", c.Reconcile.ActiveWindow)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddr, c.Server.HTTPPort)
}

// CountCache returns the count cache settings
func (c *Config) CountCache() countcache.Config {
	cc := countcache.DefaultConfig()
	cc.Backend = c.Cache.Backend
	cc.TTL = c.Cache.TTL
	cc.Size = c.Cache.Size
	cc.RedisURL = c.Cache.RedisURL
	return cc
}

// IngestSettings returns the NATS subscriber settings
func (c *Config) IngestSettings() ingest.Config {
	return ingest.Config{URL: c.Ingest.NATSURL, Subject: c.Ingest.Subject, Queue: c.Ingest.Queue}
}

// ReconcileSettings returns the cohort tag settings
func (c *Config) ReconcileSettings() tags.ReconcileConfig {
	return tags.ReconcileConfig{
		ActiveTag:    c.Reconcile.ActiveTag,
		InactiveTag:  c.Reconcile.InactiveTag,
		ActiveWindow: c.Reconcile.ActiveWindow,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger builds the process logger described by the log section
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
