package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Tasks      TasksConfig      `mapstructure:"tasks"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig splits the ranking store (sorted sets shared by the worker and
// the request path) from the session store (auth sessions, rate limiting).
type RedisConfig struct {
	Ranking RedisInstanceConfig `mapstructure:"ranking"`
	Session RedisInstanceConfig `mapstructure:"session"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	Topics         struct {
		ScoreJobs    string `mapstructure:"score_jobs"`
		ScoreJobsDLQ string `mapstructure:"score_jobs_dlq"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret  string            `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration     `mapstructure:"token_ttl"`
	APIKeys    map[string]string `mapstructure:"api_keys"`    // key -> tier
	AdminTiers []string          `mapstructure:"admin_tiers"` // tiers allowed on admin routes
	RateLimit  RateLimitConfig   `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Premium int           `mapstructure:"premium"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RankingConfig drives candidate generation and the dialect/kind partitions
// every component iterates over.
type RankingConfig struct {
	Dialects                   []string `mapstructure:"dialects"`
	ContentKinds               []string `mapstructure:"content_kinds"`
	RecommendationListSize     int      `mapstructure:"recommendation_list_size"`
	MaxCandidatePullIterations int      `mapstructure:"max_candidate_pull_iterations"`
	DominantGenreWindow        int      `mapstructure:"dominant_genre_window"`
	EngagementWindow           int      `mapstructure:"engagement_window"`
}

type ScoringConfig struct {
	PriorStrength    float64       `mapstructure:"prior_strength"`
	PassTimeout      time.Duration `mapstructure:"pass_timeout"`
	MaxItemsPerShard int           `mapstructure:"max_items_per_shard"`
}

type AnalyticsConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
	FailureLimit   uint32        `mapstructure:"failure_limit"`
}

type TasksConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

type DeliveryConfig struct {
	BatchSize       int    `mapstructure:"batch_size"`
	FirstBreakpoint int    `mapstructure:"first_breakpoint"`
	BreakpointMin   int    `mapstructure:"breakpoint_min"`
	BreakpointMax   int    `mapstructure:"breakpoint_max"`
	DefaultLang     string `mapstructure:"default_lang"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.ranking.url", "localhost:6379")
	viper.SetDefault("redis.ranking.max_retries", 3)
	viper.SetDefault("redis.ranking.pool_size", 20)
	viper.SetDefault("redis.ranking.timeout", "5s")
	viper.SetDefault("redis.session.url", "localhost:6379")
	viper.SetDefault("redis.session.max_retries", 3)
	viper.SetDefault("redis.session.pool_size", 10)
	viper.SetDefault("redis.session.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.consumer_group", "reel-score-workers")
	viper.SetDefault("kafka.max_retries", 3)
	viper.SetDefault("kafka.retry_base_delay", "1s")
	viper.SetDefault("kafka.topics.score_jobs", "reel-score-jobs")
	viper.SetDefault("kafka.topics.score_jobs_dlq", "reel-score-jobs-dlq")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("auth.api_keys", map[string]string{
		"demo-free-key":       "free",
		"demo-premium-key":    "premium",
		"demo-enterprise-key": "enterprise",
	})
	viper.SetDefault("auth.admin_tiers", []string{"enterprise"})
	viper.SetDefault("auth.rate_limit.default", 1000)
	viper.SetDefault("auth.rate_limit.premium", 10000)
	viper.SetDefault("auth.rate_limit.window", "1h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Ranking defaults
	viper.SetDefault("ranking.dialects", []string{"en", "hi"})
	viper.SetDefault("ranking.content_kinds", []string{"show", "movie"})
	viper.SetDefault("ranking.recommendation_list_size", 10)
	viper.SetDefault("ranking.max_candidate_pull_iterations", 4)
	viper.SetDefault("ranking.dominant_genre_window", 5)
	viper.SetDefault("ranking.engagement_window", 5)

	// Scoring defaults
	viper.SetDefault("scoring.prior_strength", 500.0)
	viper.SetDefault("scoring.pass_timeout", "5m")
	viper.SetDefault("scoring.max_items_per_shard", 2000)

	// Analytics feed defaults
	viper.SetDefault("analytics.base_url", "http://localhost:8090")
	viper.SetDefault("analytics.timeout", "30s")
	viper.SetDefault("analytics.breaker_timeout", "1m")
	viper.SetDefault("analytics.failure_limit", 3)

	// Background task defaults
	viper.SetDefault("tasks.workers", 4)
	viper.SetDefault("tasks.queue_size", 1024)
	viper.SetDefault("tasks.task_timeout", "30s")

	// Delivery defaults
	viper.SetDefault("delivery.batch_size", 7)
	viper.SetDefault("delivery.first_breakpoint", 7)
	viper.SetDefault("delivery.breakpoint_min", 8)
	viper.SetDefault("delivery.breakpoint_max", 10)
	viper.SetDefault("delivery.default_lang", "en")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
