package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Storage    StorageConfig
	LlamaCloud LlamaCloudConfig
	GroundX    GroundXConfig
	Zoho       ZohoConfig
	Processing ProcessingConfig
	Auth       AuthConfig
	Telemetry  TelemetryConfig
	Cache      CacheConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	SQLitePath      string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	MigrationsPath  string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// StorageConfig holds S3-compatible document archive settings
type StorageConfig struct {
	Enabled           bool
	Endpoint          string
	Region            string
	Bucket            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	UsePathStyle      bool // required for MinIO and most self-hosted S3
	PresignExpiration time.Duration
}

// LlamaCloudConfig holds the primary document parser settings
type LlamaCloudConfig struct {
	APIKey  string
	BaseURL string
}

// GroundXConfig holds the secondary document parser settings
type GroundXConfig struct {
	APIKey   string
	BaseURL  string
	BucketID int
}

// ZohoConfig holds Zoho Books settings for vendor bills
type ZohoConfig struct {
	Enabled        bool
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	OrganizationID string
	AccountsURL    string
	APIURL         string
	ExpenseAccount string // account_id used on bill line items
}

// ProcessingConfig holds invoice processing limits
type ProcessingConfig struct {
	StuckTimeout   time.Duration
	SweepInterval  time.Duration
	MaxUploadSize  int64
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	SeedFile       string
}

// AuthConfig holds API bearer token settings
type AuthConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // development only
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool // export zap logs over OTLP
	DBTraceEnabled    bool
	DBLogFullSQL      bool // dev only
	DBSlowQueryThresh time.Duration

	ProfilingEnabled       bool
	ProfilingServerAddress string // Pyroscope server, e.g. "http://pyroscope:4040"
}

// CacheConfig holds vendor mapping cache settings
type CacheConfig struct {
	Type string // memory, redis
	TTL  time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with INVOICE_ prefix (e.g., INVOICE_LLAMACLOUD_API_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			MigrationsPath:  v.GetString("database.migrations_path"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Storage: StorageConfig{
			Enabled:           v.GetBool("storage.enabled"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		LlamaCloud: LlamaCloudConfig{
			APIKey:  v.GetString("llamacloud.api_key"),
			BaseURL: v.GetString("llamacloud.base_url"),
		},
		GroundX: GroundXConfig{
			APIKey:   v.GetString("groundx.api_key"),
			BaseURL:  v.GetString("groundx.base_url"),
			BucketID: v.GetInt("groundx.bucket_id"),
		},
		Zoho: ZohoConfig{
			Enabled:        v.GetBool("zoho.enabled"),
			ClientID:       v.GetString("zoho.client_id"),
			ClientSecret:   v.GetString("zoho.client_secret"),
			RefreshToken:   v.GetString("zoho.refresh_token"),
			OrganizationID: v.GetString("zoho.organization_id"),
			AccountsURL:    v.GetString("zoho.accounts_url"),
			APIURL:         v.GetString("zoho.api_url"),
			ExpenseAccount: v.GetString("zoho.expense_account"),
		},
		Processing: ProcessingConfig{
			StuckTimeout:   v.GetDuration("processing.stuck_timeout"),
			SweepInterval:  v.GetDuration("processing.sweep_interval"),
			MaxUploadSize:  v.GetInt64("processing.max_upload_size"),
			PollInterval:   v.GetDuration("processing.poll_interval"),
			PollTimeout:    v.GetDuration("processing.poll_timeout"),
			RequestTimeout: v.GetDuration("processing.request_timeout"),
			SeedFile:       v.GetString("processing.seed_file"),
		},
		Auth: AuthConfig{
			Enabled: v.GetBool("auth.enabled"),
			Secret:  v.GetString("auth.secret"),
			Issuer:  v.GetString("auth.issuer"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),

			ProfilingEnabled:       v.GetBool("telemetry.profiling_enabled"),
			ProfilingServerAddress: v.GetString("telemetry.profiling_server_address"),
		},
		Cache: CacheConfig{
			Type: v.GetString("cache.type"),
			TTL:  v.GetDuration("cache.ttl"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "invoice-parser"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "invoice_parser.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "invoices"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	// Uploads wait on the parser chain, which can poll for close to a minute
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 90 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 16 << 20 // 16MB
	}
	// An empty origin list means no cross-origin requests are allowed until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "invoices"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}
	if cfg.LlamaCloud.BaseURL == "" {
		cfg.LlamaCloud.BaseURL = "https://api.cloud.llamaindex.ai"
	}
	if cfg.GroundX.BaseURL == "" {
		cfg.GroundX.BaseURL = "https://api.groundx.ai/api/v1"
	}
	if cfg.Zoho.AccountsURL == "" {
		cfg.Zoho.AccountsURL = "https://accounts.zoho.com"
	}
	if cfg.Zoho.APIURL == "" {
		cfg.Zoho.APIURL = "https://www.zohoapis.com/books/v3"
	}
	if cfg.Processing.StuckTimeout == 0 {
		cfg.Processing.StuckTimeout = 60 * time.Second
	}
	if cfg.Processing.SweepInterval == 0 {
		cfg.Processing.SweepInterval = 30 * time.Second
	}
	if cfg.Processing.MaxUploadSize == 0 {
		cfg.Processing.MaxUploadSize = 16 << 20 // 16MB
	}
	if cfg.Processing.PollInterval == 0 {
		cfg.Processing.PollInterval = 2 * time.Second
	}
	if cfg.Processing.PollTimeout == 0 {
		cfg.Processing.PollTimeout = 25 * time.Second
	}
	if cfg.Processing.RequestTimeout == 0 {
		cfg.Processing.RequestTimeout = 30 * time.Second
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "invoice-parser"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be 'postgres' or 'sqlite', got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'none', got %q", c.Cache.Type)
	}

	if c.Processing.PollInterval > c.Processing.PollTimeout {
		return fmt.Errorf("processing.poll_interval (%s) cannot exceed processing.poll_timeout (%s)",
			c.Processing.PollInterval, c.Processing.PollTimeout)
	}
	if attempt := c.Processing.RequestTimeout + c.Processing.PollTimeout; attempt >= c.Processing.StuckTimeout {
		return fmt.Errorf("processing.stuck_timeout (%s) must exceed one parser attempt, request_timeout + poll_timeout (%s)",
			c.Processing.StuckTimeout, attempt)
	}
	if c.HTTP.MaxBodySize < c.Processing.MaxUploadSize {
		return fmt.Errorf("http.max_body_size (%d) must be at least processing.max_upload_size (%d)",
			c.HTTP.MaxBodySize, c.Processing.MaxUploadSize)
	}

	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth is enabled")
	}
	if c.Zoho.Enabled {
		if c.Zoho.ClientID == "" || c.Zoho.ClientSecret == "" || c.Zoho.RefreshToken == "" {
			return fmt.Errorf("zoho.client_id, zoho.client_secret and zoho.refresh_token are required when zoho is enabled")
		}
		if c.Zoho.OrganizationID == "" {
			return fmt.Errorf("zoho.organization_id is required when zoho is enabled")
		}
	}
	if c.Storage.Enabled && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("storage.access_key and storage.secret_key are required when storage is enabled")
	}

	if c.App.Env == "production" {
		if c.Auth.Enabled && len(c.Auth.Secret) < 32 {
			return fmt.Errorf("auth.secret must be at least 32 characters in production")
		}
		if c.Database.Driver == "sqlite" {
			return fmt.Errorf("database.driver cannot be 'sqlite' in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServerAddress == "" {
		return fmt.Errorf("telemetry.profiling_server_address is required when profiling is enabled")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
