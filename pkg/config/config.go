package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Application settings
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Engine   EngineConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Ingest   IngestConfig
	External ExternalConfig
}

// Server settings
type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
}

// EngineConfig drives the attribution engine and its initial dataset
type EngineConfig struct {
	// AppUniverse is the full set of known apps; empty means every app seen in the data
	AppUniverse []string
	SeedFile    string
	// default for app_level_cost_view when a request omits it
	AppLevelCostView bool
}

type IngestConfig struct {
	WorkerPool int
	BatchSize  int
}

type StorageConfig struct {
	Driver     string // memory or clickhouse
	ClickHouse ClickHouseConfig
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

type CacheConfig struct {
	Driver        string // none, memory or redis
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type ExternalConfig struct {
	SpendAPIURL        string
	SinkURL            string
	SinkSecret         string
	RequestTimeout     time.Duration
	RateLimitPerSecond int
}

// Logging settings
type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment, after merging a .env file when one exists
func Load() (*Config, error) {
	// a missing .env file is fine; real environment variables win over it
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			RequestTimeout: getDurationEnv("SERVER_REQUEST_TIMEOUT", "30s"),
		},
		Engine: EngineConfig{
			AppUniverse:      getListEnv("APP_UNIVERSE", nil),
			SeedFile:         getEnv("SEED_FILE", "data/spend_records.yaml"),
			AppLevelCostView: getBoolEnv("APP_LEVEL_COST_VIEW", true),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", "memory")),
			ClickHouse: ClickHouseConfig{
				Addr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
				Database: getEnv("CLICKHOUSE_DB_NAME", "default"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
		},
		Cache: CacheConfig{
			Driver:        strings.ToLower(getEnv("CACHE_DRIVER", "memory")),
			TTL:           getDurationEnv("CACHE_TTL", "5m"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getIntEnv("REDIS_DB", 0),
		},
		Ingest: IngestConfig{
			WorkerPool: getIntEnv("INGEST_WORKER_POOL", 4),
			BatchSize:  getIntEnv("INGEST_BATCH_SIZE", 500),
		},
		External: ExternalConfig{
			SpendAPIURL:        getEnv("SPEND_API_URL", ""),
			SinkURL:            getEnv("SINK_URL", ""),
			SinkSecret:         getEnv("SINK_SECRET", ""),
			RequestTimeout:     getDurationEnv("REQUEST_TIMEOUT", "30s"),
			RateLimitPerSecond: getIntEnv("RATE_LIMIT_PER_SECOND", 100),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

// comma-separated list, blanks dropped
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
