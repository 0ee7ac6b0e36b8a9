package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server    ServerConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	MinIO     MinIOConfig
	RabbitMQ  RabbitMQConfig
	Transform TransformConfig
	Routing   RoutingFileConfig
	Debug     DebugConfig
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

type CacheConfig struct {
	TTLOK             int  `envconfig:"CACHE_TTL_OK" default:"86400"`
	TTLClientError    int  `envconfig:"CACHE_TTL_CLIENT_ERROR" default:"60"`
	TTLServerError    int  `envconfig:"CACHE_TTL_SERVER_ERROR" default:"10"`
	TTLRedirects      int  `envconfig:"CACHE_TTL_REDIRECTS" default:"300"`
	EnableVersioning  bool `envconfig:"CACHE_ENABLE_VERSIONING" default:"true"`
	EnableCacheTags   bool `envconfig:"CACHE_ENABLE_TAGS" default:"true"`
	StoreIndefinitely bool `envconfig:"CACHE_STORE_INDEFINITELY" default:"false"`
	// BypassQueryParameters skip the cache entirely when present.
	BypassQueryParameters []string `envconfig:"CACHE_BYPASS_PARAMS" default:"nocache,bypass,debug"`
	StoreRetries          int      `envconfig:"CACHE_STORE_RETRIES" default:"3"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	// Separate logical databases for the variant-body and version namespaces.
	VariantDB int `envconfig:"REDIS_VARIANT_DB" default:"0"`
	VersionDB int `envconfig:"REDIS_VERSION_DB" default:"1"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"vidproxy"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"vidproxy"`
	DBName   string `envconfig:"POSTGRES_DB" default:"vidproxy"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	// Enabled gates the variant index; without it, listing and purge-by-tag
	// are unavailable but the serving path is unaffected.
	Enabled bool `envconfig:"POSTGRES_ENABLED" default:"true"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"vidproxy"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"vidproxy"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
	Enabled  bool   `envconfig:"RABBITMQ_ENABLED" default:"true"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type TransformConfig struct {
	// BasePath is the upstream transformation endpoint prefix,
	// e.g. https://transform.example.com/cdn-cgi/media
	BasePath string        `envconfig:"TRANSFORM_BASE_PATH" default:"http://localhost:9090/media"`
	Timeout  time.Duration `envconfig:"TRANSFORM_TIMEOUT" default:"30s"`
}

type RoutingFileConfig struct {
	// Path to the JSON routing file holding origins, derivatives, responsive
	// breakpoints and video defaults.
	Path string `envconfig:"ROUTING_CONFIG" default:"routing.json"`
}

type DebugConfig struct {
	// AllowDebugHeaders gates ?debug breadcrumb and debug response headers.
	AllowDebugHeaders bool `envconfig:"DEBUG_HEADERS" default:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
