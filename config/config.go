package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"
)

type AppConfig struct {
	DatabaseURL        string
	RabbitMQURL        string
	RedisSentinelHosts string
	RedisMasterName    string
	RedisUrl           string
	OtelEndpoint       string
	LogLevel           string
	ServiceName        string
	PlanPath           string
	KnownFailuresPath  string
	RunnerConfig       RunnerConfig
	CoreCount          int
}

type RunnerConfig struct {
	ProjectDir  string        // working directory of the maven reactor
	MvnBinary   string        // maven executable
	GracePeriod time.Duration // slack on top of a fuzzing campaign before it is interrupted, 0 for none
	MQPoolSize  int           // rabbitmq connection pool size
	LogMutation bool          // run campaigns with the log-mutation profile
}

func LoadConfig() *AppConfig {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	godotenv.Load()

	config := &AppConfig{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RabbitMQURL:        os.Getenv("RABBITMQ_URL"),
		RedisSentinelHosts: os.Getenv("REDIS_SENTINEL_HOSTS"),
		RedisMasterName:    os.Getenv("REDIS_MASTER"),
		RedisUrl:           os.Getenv("OVERRIDE_REDIS_URL"), // optional, for local dev
		OtelEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		ServiceName:        os.Getenv("SERVICE_NAME"),
		PlanPath:           os.Getenv("FUZZEVAL_PLAN"),
		KnownFailuresPath:  os.Getenv("FUZZEVAL_KNOWN_FAILURES"),
		RunnerConfig: RunnerConfig{
			ProjectDir:  os.Getenv("FUZZEVAL_PROJECT_DIR"),
			MvnBinary:   os.Getenv("FUZZEVAL_MVN"),
			GracePeriod: parseDuration(os.Getenv("FUZZEVAL_GRACE_PERIOD"), 0),
			MQPoolSize:  parseInt(os.Getenv("RABBITMQ_POOL_SIZE"), 4),
			LogMutation: parseBool(os.Getenv("FUZZEVAL_LOG_MUTATION"), false),
		},
		CoreCount: parseInt(os.Getenv("CORE_COUNT"), defaultCoreCount()),
	}

	if config.LogLevel == "" {
		config.LogLevel = "info" // Set default log level
	}
	if config.ServiceName == "" {
		config.ServiceName = "fuzzeval"
	}
	if config.KnownFailuresPath == "" {
		config.KnownFailuresPath = "data/failures.json"
	}
	if config.RunnerConfig.ProjectDir == "" {
		config.RunnerConfig.ProjectDir = "zeugma"
	}
	if config.RunnerConfig.MvnBinary == "" {
		config.RunnerConfig.MvnBinary = "mvn"
	}
	if config.RedisSentinelHosts != "" && config.RedisMasterName == "" {
		logger.Fatal("REDIS_MASTER environment variable is required when REDIS_SENTINEL_HOSTS is set")
	}
	if config.CoreCount < 1 {
		logger.Warn("CORE_COUNT must be positive, falling back to 1", zap.Int("core_count", config.CoreCount))
		config.CoreCount = 1
	}

	return config
}

// DatabaseEnabled reports whether campaign results should be persisted.
func (c *AppConfig) DatabaseEnabled() bool { return c.DatabaseURL != "" }

// RedisEnabled reports whether trial status is tracked in redis.
func (c *AppConfig) RedisEnabled() bool {
	return c.RedisUrl != "" || (c.RedisSentinelHosts != "" && c.RedisMasterName != "")
}

// RabbitMQEnabled reports whether trials can be dispatched to remote workers.
func (c *AppConfig) RabbitMQEnabled() bool { return c.RabbitMQURL != "" }

func (c *AppConfig) TelemetryEnabled() bool { return c.OtelEndpoint != "" }

func defaultCoreCount() int {
	// physical cores; hyperthreads slow the JVM campaigns down
	n, err := cpu.Counts(false)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseBool(val string, defaultVal bool) bool {
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return defaultVal
	}
	return b
}
