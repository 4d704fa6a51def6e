package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	AI        AIConfig
	Inference InferenceConfig `mapstructure:"inference"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
}

// LogConfig level 为空时 debug 模式输出 DEBUG，其余 INFO
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type AIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// InferenceConfig 评测/提示调用的准入与执行参数
type InferenceConfig struct {
	MaxConcurrent     int    `mapstructure:"max_concurrent"`
	MaxRequests       int    `mapstructure:"max_requests"`
	TimeWindowSeconds int    `mapstructure:"time_window_seconds"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryBackoffMS    int    `mapstructure:"retry_backoff_ms"`
	AdmissionBackend  string `mapstructure:"admission_backend"`
	AdmissionKey      string `mapstructure:"admission_key"`
}

func (c InferenceConfig) TimeWindow() time.Duration {
	return time.Duration(c.TimeWindowSeconds) * time.Second
}

func (c InferenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c InferenceConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

type ReconcileConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
	BatchSize       int  `mapstructure:"batch_size"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	Path      string
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type            string `mapstructure:"type"`
	LocalPath       string `mapstructure:"local_path"`
	DocumentPrefix  string `mapstructure:"document_prefix"`
	MinioEndpoint   string `mapstructure:"minio_endpoint"`
	MinioAccessID   string `mapstructure:"minio_access_key"`
	MinioSecret     string `mapstructure:"minio_secret_key"`
	MinioBucket     string `mapstructure:"minio_bucket"`
	MinioUseSSL     bool   `mapstructure:"minio_use_ssl"`
	CredentialMode  string `mapstructure:"credential_mode"`
	STSEndpoint     string `mapstructure:"sts_endpoint"`
	ClientCacheSize int    `mapstructure:"client_cache_size"`
	OSSEndpoint     string `mapstructure:"oss_endpoint"`
	OSSAccessKey    string `mapstructure:"oss_access_key"`
	OSSSecretKey    string `mapstructure:"oss_secret_key"`
	OSSBucket       string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "data/practice.db")

	v.SetDefault("jwt.expire_hours", 24)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "data/documents")
	v.SetDefault("storage.document_prefix", "progress")
	v.SetDefault("storage.credential_mode", "static")
	v.SetDefault("storage.client_cache_size", 256)

	v.SetDefault("inference.max_concurrent", 3)
	v.SetDefault("inference.max_requests", 60)
	v.SetDefault("inference.time_window_seconds", 60)
	v.SetDefault("inference.timeout_seconds", 30)
	v.SetDefault("inference.max_retries", 2)
	v.SetDefault("inference.retry_backoff_ms", 500)
	v.SetDefault("inference.admission_backend", "memory")
	v.SetDefault("inference.admission_key", "inference:admission")

	v.SetDefault("reconcile.enabled", false)
	v.SetDefault("reconcile.interval_seconds", 300)
	v.SetDefault("reconcile.batch_size", 100)

	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)

	v.SetDefault("log.file", "logs/app.log")
}

func LoadConfig(path string) (*Config, error) {
	// .env 仅在本地开发时存在
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PRACTICE")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// AI
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.api_key", "AI_API_KEY")
	v.BindEnv("ai.model", "AI_MODEL")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")
	v.BindEnv("storage.sts_endpoint", "MINIO_STS_ENDPOINT")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.file", "LOG_FILE")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}

	inf := c.Inference
	if inf.MaxConcurrent <= 0 || inf.MaxRequests <= 0 || inf.TimeWindowSeconds <= 0 {
		return fmt.Errorf("inference limits must be positive (max_concurrent=%d, max_requests=%d, time_window_seconds=%d)",
			inf.MaxConcurrent, inf.MaxRequests, inf.TimeWindowSeconds)
	}
	if inf.TimeoutSeconds <= 0 {
		return fmt.Errorf("inference.timeout_seconds must be positive, got %d", inf.TimeoutSeconds)
	}
	if inf.MaxRetries < 0 {
		return fmt.Errorf("inference.max_retries must not be negative, got %d", inf.MaxRetries)
	}

	switch c.Storage.CredentialMode {
	case "static", "web_identity":
	default:
		return fmt.Errorf("unknown storage.credential_mode %q", c.Storage.CredentialMode)
	}
	return nil
}
