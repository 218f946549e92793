// Package config loads logdash configuration from YAML, TOML or JSON files
// and LOGDASH_* environment variables.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fidde/log_dashboard/internal/engine"
	"github.com/fidde/log_dashboard/internal/normalize"
	"github.com/fidde/log_dashboard/internal/registry"
	"github.com/fidde/log_dashboard/internal/storage/backends"
	"github.com/fidde/log_dashboard/internal/storage/clickhouse"
	"github.com/fidde/log_dashboard/internal/storage/mongo"
	"github.com/fidde/log_dashboard/internal/tail"
	"gopkg.in/yaml.v3"
)

// ErrNoConfig is returned when no config file is found.
var ErrNoConfig = errors.New("no logdash config file found")

// Config is the parsed logdash configuration.
type Config struct {
	// Addr is the HTTP listen address. Default: 0.0.0.0:8000.
	Addr string `yaml:"addr" toml:"addr" json:"addr"`

	// Backend selects the store: mongo, sqlite, clickhouse or memory.
	Backend string `yaml:"backend" toml:"backend" json:"backend"`

	Mongo      MongoConfig      `yaml:"mongo" toml:"mongo" json:"mongo"`
	SQLite     SQLiteConfig     `yaml:"sqlite" toml:"sqlite" json:"sqlite"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" toml:"clickhouse" json:"clickhouse"`
	Memory     MemoryConfig     `yaml:"memory" toml:"memory" json:"memory"`

	// Categories is the ordered category table. Empty means the built-in set.
	Categories []Category `yaml:"categories" toml:"categories" json:"categories"`

	Realtime Realtime `yaml:"realtime" toml:"realtime" json:"realtime"`
	Query    Query    `yaml:"query" toml:"query" json:"query"`

	// StaticDir optionally serves dashboard assets at /.
	StaticDir string `yaml:"static_dir" toml:"static_dir" json:"static_dir"`

	Log Log `yaml:"log" toml:"log" json:"log"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" toml:"uri" json:"uri"`
	Database string `yaml:"database" toml:"database" json:"database"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path" json:"path"`
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr" toml:"addr" json:"addr"`
	Database string `yaml:"database" toml:"database" json:"database"`
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"password"`
}

type MemoryConfig struct {
	// Seed is an NDJSON file, optionally zstd-compressed (.zst).
	Seed string `yaml:"seed" toml:"seed" json:"seed"`
}

// Category maps a public category name to a store collection.
type Category struct {
	Name       string `yaml:"name" toml:"name" json:"name"`
	Collection string `yaml:"collection" toml:"collection" json:"collection"`
	Normalize  string `yaml:"normalize" toml:"normalize" json:"normalize"`
}

// Realtime configures the tail stream.
type Realtime struct {
	Enabled     bool     `yaml:"enabled" toml:"enabled" json:"enabled"`
	Interval    Duration `yaml:"interval" toml:"interval" json:"interval"`
	BatchSize   int      `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	MaxFailures int      `yaml:"max_failures" toml:"max_failures" json:"max_failures"`
}

type Query struct {
	DefaultLimit int `yaml:"default_limit" toml:"default_limit" json:"default_limit"`
	MaxLimit     int `yaml:"max_limit" toml:"max_limit" json:"max_limit"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// Duration wraps time.Duration for custom parsing.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(dur)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultCategories is the built-in category table.
func DefaultCategories() []Category {
	return []Category{
		{Name: "log-process", Collection: "process_log"},
		{Name: "file_operation", Collection: "file_log"},
		{Name: "cpu_usage", Collection: "cpu_usage_log", Normalize: normalize.DigitRepair.String()},
		{Name: "network", Collection: "network_log"},
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

var candidates = []struct {
	name   string
	parser func([]byte, *Config) error
}{
	{"logdash.yaml", parseYAML},
	{"logdash.yml", parseYAML},
	{"logdash.toml", parseTOML},
	{"logdash.json", parseJSON},
}

// Load finds and parses a logdash config file from the given directory.
// It returns the file name used.
func Load(dir string) (*Config, string, error) {
	for _, c := range candidates {
		path := filepath.Join(dir, c.name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue // File doesn't exist, try next
		}

		cfg, err := parse(data, c.name, c.parser)
		if err != nil {
			return nil, c.name, err
		}
		return cfg, c.name, nil
	}

	return nil, "", ErrNoConfig
}

// LoadFile parses the config file at path, picking the format from its
// extension.
func LoadFile(path string) (*Config, error) {
	var parser func([]byte, *Config) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = parseYAML
	case ".toml":
		parser = parseTOML
	case ".json":
		parser = parseJSON
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .yaml, .yml, .toml or .json)", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(data, path, parser)
}

// Resolve loads configuration for the process: the explicit path when set,
// otherwise the first candidate file in the working directory, otherwise
// defaults. Environment overrides are applied last and the result is
// validated.
func Resolve(path string) (*Config, string, error) {
	var (
		cfg    *Config
		source string
		err    error
	)
	if path != "" {
		cfg, err = LoadFile(path)
		source = path
	} else {
		cfg, source, err = Load(".")
		if errors.Is(err, ErrNoConfig) {
			cfg, source, err = Default(), "", nil
		}
	}
	if err != nil {
		return nil, source, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, source, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, source, fmt.Errorf("validate: %w", err)
	}
	return cfg, source, nil
}

func parse(data []byte, name string, parser func([]byte, *Config) error) (*Config, error) {
	var cfg Config
	if err := parser(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", name, err)
	}
	return &cfg, nil
}

func parseYAML(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict: error on unknown fields
	err := decoder.Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil // empty file
	}
	return err
}

func parseTOML(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return nil
}

func parseJSON(data []byte, cfg *Config) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(cfg)
}

// ApplyEnv overrides settings from LOGDASH_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("LOGDASH_ADDR", &c.Addr)
	str("LOGDASH_BACKEND", &c.Backend)
	str("LOGDASH_MONGO_URI", &c.Mongo.URI)
	str("LOGDASH_SQLITE_PATH", &c.SQLite.Path)
	str("LOGDASH_CLICKHOUSE_ADDR", &c.ClickHouse.Addr)
	str("LOGDASH_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("LOGDASH_REALTIME"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOGDASH_REALTIME: invalid boolean %q", v)
		}
		c.Realtime.Enabled = b
	}
	return nil
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}

	known := false
	for _, name := range backends.Names {
		if c.Backend == name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown backend %q (supported: %s)", c.Backend, strings.Join(backends.Names, ", "))
	}

	if len(c.Categories) == 0 {
		return errors.New("at least one category is required")
	}
	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category %d: name is required", i)
		}
		if seen[cat.Name] {
			return fmt.Errorf("category %q: duplicate name", cat.Name)
		}
		seen[cat.Name] = true
		if _, err := normalize.ParseStrategy(cat.Normalize); err != nil {
			return fmt.Errorf("category %q: %w", cat.Name, err)
		}
	}

	if c.Realtime.Interval <= 0 {
		return errors.New("realtime.interval must be positive")
	}
	if c.Realtime.BatchSize <= 0 {
		return errors.New("realtime.batch_size must be positive")
	}
	if c.Realtime.MaxFailures <= 0 {
		return errors.New("realtime.max_failures must be positive")
	}

	if c.Query.MaxLimit <= 0 || c.Query.MaxLimit > engine.MaxLimit {
		return fmt.Errorf("query.max_limit must be between 1 and %d", engine.MaxLimit)
	}
	if c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("query.default_limit must be between 1 and %d", c.Query.MaxLimit)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = "0.0.0.0:8000"
	}
	if c.Backend == "" {
		c.Backend = backends.Mongo
	}

	mongoDefaults := mongo.DefaultConfig()
	if c.Mongo.URI == "" {
		c.Mongo.URI = mongoDefaults.URI
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = mongoDefaults.Database
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "logdash.db"
	}

	chDefaults := clickhouse.DefaultConfig()
	if c.ClickHouse.Addr == "" {
		c.ClickHouse.Addr = chDefaults.Addr
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = chDefaults.Database
	}
	if c.ClickHouse.Username == "" {
		c.ClickHouse.Username = chDefaults.Username
	}

	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories()
	}
	for i := range c.Categories {
		if c.Categories[i].Collection == "" {
			c.Categories[i].Collection = c.Categories[i].Name
		}
	}

	if c.Realtime.Interval == 0 {
		c.Realtime.Interval = Duration(tail.DefaultInterval)
	}
	if c.Realtime.BatchSize == 0 {
		c.Realtime.BatchSize = tail.DefaultBatchSize
	}
	if c.Realtime.MaxFailures == 0 {
		c.Realtime.MaxFailures = tail.DefaultMaxFailures
	}

	if c.Query.MaxLimit == 0 {
		c.Query.MaxLimit = 100
	}
	if c.Query.DefaultLimit == 0 {
		c.Query.DefaultLimit = 15
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// StorageConfig converts to the backend factory configuration.
func (c *Config) StorageConfig() backends.Config {
	mongoCfg := mongo.DefaultConfig()
	mongoCfg.URI = c.Mongo.URI
	mongoCfg.Database = c.Mongo.Database

	chCfg := clickhouse.DefaultConfig()
	chCfg.Addr = c.ClickHouse.Addr
	chCfg.Database = c.ClickHouse.Database
	chCfg.Username = c.ClickHouse.Username
	chCfg.Password = c.ClickHouse.Password

	return backends.Config{
		Backend:    c.Backend,
		Mongo:      mongoCfg,
		SQLitePath: c.SQLite.Path,
		ClickHouse: chCfg,
		MemorySeed: c.Memory.Seed,
	}
}

// Definitions converts the category table for registry.New.
func (c *Config) Definitions() ([]registry.Definition, error) {
	defs := make([]registry.Definition, 0, len(c.Categories))
	for _, cat := range c.Categories {
		strategy, err := normalize.ParseStrategy(cat.Normalize)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", cat.Name, err)
		}
		defs = append(defs, registry.Definition{
			Name:       cat.Name,
			Collection: cat.Collection,
			Normalize:  strategy,
		})
	}
	return defs, nil
}

// TailConfig returns the tail session settings.
func (c *Config) TailConfig() tail.Config {
	return tail.Config{
		Interval:    c.Realtime.Interval.Duration(),
		BatchSize:   c.Realtime.BatchSize,
		MaxFailures: c.Realtime.MaxFailures,
	}
}

// NewLogger builds the process logger from the log section.
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

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}
