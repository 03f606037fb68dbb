package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the API process reads from the environment.
type Config struct {
	Port    string `mapstructure:"PORT"`
	GinMode string `mapstructure:"GIN_MODE"`

	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBHost            string        `mapstructure:"DB_HOST"`
	DBPort            string        `mapstructure:"DB_PORT"`
	DBUser            string        `mapstructure:"DB_USER"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME"`
	DBSSLMode         string        `mapstructure:"DB_SSLMODE"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`

	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	AccessTokenTTL   time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	MagicLinkTTL     time.Duration `mapstructure:"MAGIC_LINK_TTL"`
	CandidateLinkTTL time.Duration `mapstructure:"CANDIDATE_LINK_TTL"`

	FrontendURL   string `mapstructure:"FRONTEND_URL"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	CORSOrigins   string `mapstructure:"CORS_ORIGINS"`

	PhotoDir      string `mapstructure:"PHOTO_DIR"`
	MaxPhotoBytes int64  `mapstructure:"MAX_PHOTO_BYTES"`

	RendererURL     string        `mapstructure:"RENDERER_URL"`
	RendererTimeout time.Duration `mapstructure:"RENDERER_TIMEOUT"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`

	BatchConcurrency int `mapstructure:"BATCH_CONCURRENCY"`

	LogJSON  bool `mapstructure:"LOG_JSON"`
	LogDebug bool `mapstructure:"LOG_DEBUG"`
}

var defaults = map[string]interface{}{
	"PORT":                 "8080",
	"GIN_MODE":             "debug",
	"DB_HOST":              "localhost",
	"DB_PORT":              "5432",
	"DB_USER":              "postgres",
	"DB_PASSWORD":          "postgres",
	"DB_NAME":              "postgres",
	"DB_SSLMODE":           "disable",
	"DB_MAX_OPEN_CONNS":    25,
	"DB_MAX_IDLE_CONNS":    10,
	"DB_CONN_MAX_LIFETIME": 30 * time.Minute,
	"ACCESS_TOKEN_TTL":     24 * time.Hour,
	"MAGIC_LINK_TTL":       30 * time.Minute,
	"CANDIDATE_LINK_TTL":   7 * 24 * time.Hour,
	"FRONTEND_URL":         "http://localhost:3000",
	"PUBLIC_BASE_URL":      "http://localhost:8080",
	"CORS_ORIGINS":         "http://localhost:3000,http://127.0.0.1:3000",
	"PHOTO_DIR":            "./data/photos",
	"MAX_PHOTO_BYTES":      5 << 20,
	"RENDERER_TIMEOUT":     15 * time.Second,
	"SMTP_PORT":            587,
	"MAIL_FROM":            "no-reply@idportal.local",
	"BATCH_CONCURRENCY":    4,
}

// Load reads envFile (if present) into the process environment and then
// resolves every key through viper so flags bound by the CLI win over env.
func Load(v *viper.Viper, envFile string) (*Config, error) {
	if envFile != "" {
		// a missing file is fine, plain env vars still apply
		_ = godotenv.Load(envFile)
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	for key := range defaults {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "RENDERER_URL", "SMTP_HOST", "SMTP_USERNAME", "SMTP_PASSWORD", "LOG_JSON", "LOG_DEBUG"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if c.GinMode == "release" {
			return fmt.Errorf("JWT_SECRET is required in release mode")
		}
		c.JWTSecret = "default_super_secret_key" // development only
	}
	if c.BatchConcurrency < 1 {
		c.BatchConcurrency = 1
	}
	if c.MaxPhotoBytes <= 0 {
		return fmt.Errorf("MAX_PHOTO_BYTES must be positive")
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise assembles one from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
