package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort string `env:"SERVICE_PORT" envDefault:"8000"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"safeupload-service"`
	MaxUploadMB int    `env:"MAX_UPLOAD_MB" envDefault:"64"`

	// Upload store configuration. StoreBackend is "local" or "minio".
	StoreBackend string `env:"STORE_BACKEND" envDefault:"local"`
	UploadDir    string `env:"UPLOAD_DIR" envDefault:"static/uploads"`

	// MinIO configuration
	MinIOEndpoint   string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	MinIOAccessKey  string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinIOSecretKey  string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinIOBucketName string `env:"MINIO_BUCKET_NAME" envDefault:"safeupload"`
	MinIOUseSSL     bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	// Audit log (TiDB) configuration
	AuditEnabled bool   `env:"AUDIT_ENABLED" envDefault:"false"`
	TiDBHost     string `env:"TIDB_HOST" envDefault:"localhost"`
	TiDBPort     string `env:"TIDB_PORT" envDefault:"4000"`
	TiDBUser     string `env:"TIDB_USER" envDefault:"root"`
	TiDBPassword string `env:"TIDB_PASSWORD"`
	TiDBDatabase string `env:"TIDB_DATABASE" envDefault:"safeupload"`

	// Verdict cache (Redis) configuration
	CacheEnabled  bool          `env:"CACHE_ENABLED" envDefault:"false"`
	RedisHost     string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"24h"`

	// Moderation configuration
	WordlistFile string `env:"WORDLIST_FILE"`
	// VisionCredentialsFile is optional; application default credentials are used when empty.
	VisionCredentialsFile string `env:"VISION_CREDENTIALS_FILE"`
	// VisionTimeout of zero leaves the deadline to the Vision client.
	VisionTimeout  time.Duration `env:"VISION_TIMEOUT" envDefault:"0s"`
	VisionFailOpen bool          `env:"VISION_FAIL_OPEN" envDefault:"true"`
	VideoMaxFrames int           `env:"VIDEO_MAX_FRAMES" envDefault:"5"`
	FFmpegPath     string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath    string        `env:"FFPROBE_PATH" envDefault:"ffprobe"`

	// Jaeger configuration
	TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"true"`
	JaegerEndpoint string `env:"JAEGER_ENDPOINT" envDefault:"localhost:4318"`
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "local", "minio":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want local or minio)", c.StoreBackend)
	}
	if c.VideoMaxFrames <= 0 {
		return fmt.Errorf("VIDEO_MAX_FRAMES must be positive, got %d", c.VideoMaxFrames)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	return nil
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// GetMaxUploadBytes returns the request body limit in bytes
func (c *Config) GetMaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}
