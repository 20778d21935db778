package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bigbrotr/archiver/internal/engine"
)

// StoreConfig configures the Postgres connection pool.
type StoreConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
	CommandTimeout  time.Duration
}

// DSN builds a libpq connection string from the pool fields.
func (c StoreConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ProbeConfig configures NIP-11/NIP-66 probing, including Tor routing and
// the writable-probe signing keypair.
type ProbeConfig struct {
	Timeout     time.Duration
	PowDeadline time.Duration
	PrivateKey  string // hex; empty disables the writable probe
	PublicKey   string

	SocksHost string
	SocksPort int
}

// FabricConfig configures worker-pool geometry and per-relay pacing, named
// after the three-level process/thread/task fan-out the pool collapses
// onto goroutines.
type FabricConfig struct {
	NumCores        int // Priority Synchronizer worker count; times RequestsPerCore for the others
	RequestsPerCore int // multiplies NumCores into the Synchronizer and Monitor worker count
	StartJitter     time.Duration
	RequestsPerSec  float64
	Burst           int

	FailureWindow    int
	FailureThreshold float64
}

// EngineConfig bounds a crawl's time window and per-relay deadline.
type EngineConfig struct {
	Start   int64
	Stop    int64
	Timeout time.Duration
	Filter  engine.Filter
}

// ServiceConfig configures the four interval-driven service loops.
type ServiceConfig struct {
	MonitorInterval      time.Duration
	SynchronizerInterval time.Duration
	MetadataStaleAfter   time.Duration
	ReadableFreshSince   time.Duration
	SeedFilePath         string
	PriorityFilePath     string
}

// Config aggregates every section loaded from the environment.
type Config struct {
	Store    StoreConfig
	Probe    ProbeConfig
	Fabric   FabricConfig
	Engine   EngineConfig
	Services ServiceConfig
}

// LoadFromEnv reads configuration from environment variables, exiting the
// process with a diagnostic when DB_HOST or DB_NAME is missing or
// FILTER_JSON is malformed, mirroring the teacher's own fail-fast Load().
// A malformed numeric or duration value does not exit: it falls back to
// that setting's default.
func LoadFromEnv() *Config {
	host := getEnv("DB_HOST", "")
	if host == "" {
		fmt.Fprintln(os.Stderr, "ERROR: DB_HOST is not set!")
		os.Exit(1)
	}
	dbName := getEnv("DB_NAME", "")
	if dbName == "" {
		fmt.Fprintln(os.Stderr, "ERROR: DB_NAME is not set!")
		os.Exit(1)
	}

	filter, err := parseFilter(os.Getenv("FILTER_JSON"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid FILTER_JSON: %v\n", err)
		os.Exit(1)
	}

	return &Config{
		Store: StoreConfig{
			Host:            host,
			Port:            parseInt(os.Getenv("DB_PORT"), 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        os.Getenv("DB_PASSWORD"),
			DBName:          dbName,
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt(os.Getenv("DB_MAX_OPEN_CONNS"), 10),
			MaxIdleConns:    parseInt(os.Getenv("DB_MAX_IDLE_CONNS"), 5),
			ConnMaxLifetime: parseDuration(os.Getenv("DB_CONN_MAX_LIFETIME"), 30*time.Minute),
			AcquireTimeout:  parseDuration(os.Getenv("DB_ACQUIRE_TIMEOUT"), 5*time.Second),
			CommandTimeout:  parseDuration(os.Getenv("DB_COMMAND_TIMEOUT"), 10*time.Second),
		},
		Probe: ProbeConfig{
			Timeout:     parseDuration(os.Getenv("PROBE_TIMEOUT"), 10*time.Second),
			PowDeadline: parseDuration(os.Getenv("PROBE_POW_DEADLINE"), 20*time.Second),
			PrivateKey:  os.Getenv("PROBE_PRIVATE_KEY"),
			PublicKey:   os.Getenv("PROBE_PUBLIC_KEY"),
			SocksHost:   getEnv("SOCKS_HOST", "127.0.0.1"),
			SocksPort:   parseInt(os.Getenv("SOCKS_PORT"), 9050),
		},
		Fabric: FabricConfig{
			NumCores:         parseInt(os.Getenv("NUM_CORES"), 4),
			RequestsPerCore:  parseInt(os.Getenv("REQUESTS_PER_CORE"), 50),
			StartJitter:      parseDuration(os.Getenv("START_JITTER"), 120*time.Second),
			RequestsPerSec:   parseFloat(os.Getenv("REQUESTS_PER_SECOND"), 1.0),
			Burst:            parseInt(os.Getenv("REQUEST_BURST"), 2),
			FailureWindow:    parseInt(os.Getenv("FAILURE_WINDOW"), 100),
			FailureThreshold: parseFloat(os.Getenv("FAILURE_THRESHOLD"), 0.10),
		},
		Engine: EngineConfig{
			Start:   parseInt64(os.Getenv("CRAWL_START"), 0),
			Stop:    parseInt64(os.Getenv("CRAWL_STOP"), time.Now().Unix()),
			Timeout: parseDuration(os.Getenv("CRAWL_TIMEOUT"), 5*time.Minute),
			Filter:  filter,
		},
		Services: ServiceConfig{
			MonitorInterval:      parseDuration(os.Getenv("MONITOR_INTERVAL"), time.Hour),
			SynchronizerInterval: parseDuration(os.Getenv("SYNCHRONIZER_INTERVAL"), 15*time.Minute),
			MetadataStaleAfter:   parseDuration(os.Getenv("METADATA_STALE_AFTER"), 24*time.Hour),
			ReadableFreshSince:   parseDuration(os.Getenv("READABLE_FRESH_SINCE"), 12*time.Hour),
			SeedFilePath:         getEnv("SEED_FILE", "seed_relays.txt"),
			PriorityFilePath:     getEnv("PRIORITY_FILE", "priority_relays.txt"),
		},
	}
}

func parseFilter(s string) (engine.Filter, error) {
	if s == "" {
		return engine.Filter{}, nil
	}
	var f engine.Filter
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return engine.Filter{}, err
	}
	return f, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return i
}

func parseInt64(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func parseFloat(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
