// Package config loads and validates application configuration from YAML files
// with .env and environment-variable overrides. It provides typed structs for
// every subsystem (Server, RPC, Postgres, Kafka, Redis, Lookup, Cache,
// Gazetteers, etc.).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Gazetteer backends.
const (
	BackendSegment  = "segment"
	BackendPostgres = "postgres"
)

// Cache backends.
const (
	CacheMemory  = "memory"
	CacheBounded = "bounded"
	CacheRedis   = "redis"
	CacheBadger  = "badger"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	RPC        RPCConfig        `yaml:"rpc"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Lookup     LookupConfig     `yaml:"lookup"`
	Cache      CacheConfig      `yaml:"cache"`
	Gazetteers GazetteersConfig `yaml:"gazetteers"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// RPCConfig holds the JSON-over-TCP RPC listener settings.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	LookupEvents  string `yaml:"lookupEvents"`
	IndexReloaded string `yaml:"indexReloaded"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// LookupConfig controls scoring and execution limits for gazetteer lookups.
type LookupConfig struct {
	ScoreCutoff    float64       `yaml:"scoreCutoff"`
	DefaultRows    int           `yaml:"defaultRows"`
	MaxRows        int           `yaml:"maxRows"`
	WorkerPoolSize int           `yaml:"workerPoolSize"`
	SearchTimeout  time.Duration `yaml:"searchTimeout"`
	MaxBatchSize   int           `yaml:"maxBatchSize"`
}

// CacheConfig selects and sizes the per-query result cache.
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	MaxEntries int64         `yaml:"maxEntries"`
	TTL        time.Duration `yaml:"ttl"`
	BadgerDir  string        `yaml:"badgerDir"`
}

// GazetteersConfig holds per-gazetteer index settings.
type GazetteersConfig struct {
	Geonames GazetteerConfig `yaml:"geonames"`
	USGS     GazetteerConfig `yaml:"usgs"`
}

// GazetteerConfig locates one gazetteer index and describes its field schema.
// Fields maps canonical entry fields (itemID, itemName, ...) to index field
// names; Positions is the legacy positional binding used when Fields is empty.
type GazetteerConfig struct {
	Backend   string            `yaml:"backend"`
	IndexPath string            `yaml:"indexPath"`
	Table     string            `yaml:"table"`
	ParentID  string            `yaml:"parentId"`
	Fields    map[string]string `yaml:"fields"`
	Positions map[string]int    `yaml:"positions"`
}

// Located reports whether the gazetteer has an index location for its backend.
func (g GazetteerConfig) Located() bool {
	switch g.Backend {
	case BackendPostgres:
		return g.Table != ""
	default:
		return g.IndexPath != ""
	}
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), loads a .env file from the
// working directory when present, and applies environment-variable overrides.
// It returns a Config populated with defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the lookup layer cannot run with. Missing index
// locations are not errors; see Warnings.
func (c *Config) Validate() error {
	if c.Lookup.ScoreCutoff < 0 || c.Lookup.ScoreCutoff > 1 {
		return fmt.Errorf("lookup.scoreCutoff must be within [0,1], got %v", c.Lookup.ScoreCutoff)
	}
	if c.Lookup.DefaultRows <= 0 {
		return fmt.Errorf("lookup.defaultRows must be positive, got %d", c.Lookup.DefaultRows)
	}
	if c.Lookup.MaxRows < c.Lookup.DefaultRows {
		return fmt.Errorf("lookup.maxRows (%d) must be >= lookup.defaultRows (%d)", c.Lookup.MaxRows, c.Lookup.DefaultRows)
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheBounded, CacheRedis, CacheBadger:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	for name, g := range map[string]GazetteerConfig{"geonames": c.Gazetteers.Geonames, "usgs": c.Gazetteers.USGS} {
		switch g.Backend {
		case BackendSegment, BackendPostgres:
		default:
			return fmt.Errorf("gazetteers.%s: unknown backend %q", name, g.Backend)
		}
		if len(g.Fields) > 0 && len(g.Positions) > 0 {
			return fmt.Errorf("gazetteers.%s: fields and positions are mutually exclusive", name)
		}
	}
	return nil
}

// Warnings lists non-fatal configuration problems to be logged at startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if !c.Gazetteers.Geonames.Located() {
		warnings = append(warnings, "geonames gazetteer location not found")
	}
	if !c.Gazetteers.USGS.Located() {
		warnings = append(warnings, "usgs gazetteer location not found")
	}
	if (c.Gazetteers.Geonames.Backend == BackendPostgres || c.Gazetteers.USGS.Backend == BackendPostgres) && !c.Postgres.Enabled {
		warnings = append(warnings, "postgres gazetteer backend selected but postgres is disabled")
	}
	return warnings
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    ":9000",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "gazetteer",
			User:            "gazetteer",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "gazetteer-lookup",
			Topics: KafkaTopics{
				LookupEvents:  "gazetteer.lookup-events",
				IndexReloaded: "gazetteer.index-reloaded",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Lookup: LookupConfig{
			ScoreCutoff:    0.75,
			DefaultRows:    10,
			MaxRows:        200,
			WorkerPoolSize: 8,
			MaxBatchSize:   500,
		},
		Cache: CacheConfig{
			Backend:    CacheMemory,
			MaxEntries: 100000,
			BadgerDir:  "data/cache",
		},
		Gazetteers: GazetteersConfig{
			Geonames: GazetteerConfig{Backend: BackendSegment},
			USGS:     GazetteerConfig{Backend: BackendSegment, ParentID: "us"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads GZ_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GZ_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GZ_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := os.Getenv("GZ_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("GZ_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("GZ_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("GZ_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("GZ_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("GZ_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("GZ_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GZ_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GZ_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GZ_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GZ_SCORE_CUTOFF"); v != "" {
		if cutoff, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Lookup.ScoreCutoff = cutoff
		}
	}
	if v := os.Getenv("GZ_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("GZ_GEONAMES_INDEX"); v != "" {
		cfg.Gazetteers.Geonames.IndexPath = v
	}
	if v := os.Getenv("GZ_USGS_INDEX"); v != "" {
		cfg.Gazetteers.USGS.IndexPath = v
	}
}
