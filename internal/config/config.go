package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"filedock/internal/pkg/validator"
)

const envPrefix = "FILEDOCK"

var envFiles = []string{".env", ".env.local"}

// Config is the complete runtime configuration.
//
// Sources, highest priority first: CLI overrides, FILEDOCK_* environment
// variables (including .env files), the YAML config file, defaults.
type Config struct {
	AppEnv   string         `mapstructure:"app_env" validate:"required"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Upload   UploadConfig   `mapstructure:"upload"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	// URL is a postgres:// URL, badger://<dir>, or an SQLite DSN.
	URL            string        `mapstructure:"url" validate:"required"`
	ConnectRetries int           `mapstructure:"connect_retries" validate:"min=0"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff" validate:"gt=0"`
}

type UploadConfig struct {
	Dir         string        `mapstructure:"dir" validate:"required"`
	MaxFileSize int64         `mapstructure:"max_file_size" validate:"gt=0"`
	MaxFiles    int           `mapstructure:"max_files" validate:"min=1"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	PublicBase  string        `mapstructure:"public_base" validate:"required,startswith=/"`
	BatchPolicy string        `mapstructure:"batch_policy" validate:"oneof=abort partial"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level    string         `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format   string         `mapstructure:"format" validate:"oneof=text json"`
	File     string         `mapstructure:"file"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size" validate:"min=0"`
	MaxBackups int  `mapstructure:"max_backups" validate:"min=0"`
	MaxAge     int  `mapstructure:"max_age" validate:"min=0"`
	Compress   bool `mapstructure:"compress"`
}

// Overrides carries values set on the command line. Zero values are ignored.
type Overrides struct {
	Port     int
	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "dev")

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.read_header_timeout", 10*time.Second)

	v.SetDefault("database.url", "file:filedock.db")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.retry_backoff", 500*time.Millisecond)

	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_file_size", 10*1024*1024)
	v.SetDefault("upload.max_files", 20)
	v.SetDefault("upload.timeout", 2*time.Minute)
	v.SetDefault("upload.public_base", "/uploads")
	v.SetDefault("upload.batch_policy", "abort")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.rotation.max_size", 100)
	v.SetDefault("log.rotation.max_backups", 3)
	v.SetDefault("log.rotation.max_age", 28)
	v.SetDefault("log.rotation.compress", false)
}

// Load reads the configuration. path may be empty, in which case config.yaml
// is looked up in the usual directories and its absence is not an error.
func Load(path string, o Overrides) (*Config, error) {
	loadEnvFiles(path)

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/filedock")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if o.Port != 0 {
		v.Set("server.port", o.Port)
	}
	if o.LogLevel != "" {
		v.Set("log.level", o.LogLevel)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.Log.Level = normalizeLevel(cfg.Log.Level)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeLevel accepts the same spellings as logger.ParseLevel.
func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return "warn"
	}
	return level
}

// loadEnvFiles loads .env files next to the config file (or in the working
// directory). Existing environment variables win; missing files are ignored.
func loadEnvFiles(path string) {
	dirs := []string{"."}
	if path != "" {
		dirs = append(dirs, filepath.Dir(path))
	}
	for _, dir := range dirs {
		for _, f := range envFiles {
			_ = godotenv.Load(filepath.Join(dir, f))
		}
	}
}

func (c *Config) validate() error {
	if err := validator.Error(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins must not be empty")
	}
	base := strings.TrimSuffix(c.Upload.PublicBase, "/")
	if base == "" || base == "/api" || strings.HasPrefix(base, "/api/") {
		return fmt.Errorf("upload.public_base must be a sub-path other than /api")
	}
	if c.IsProdLike() && c.CORSAllowsAll() {
		return fmt.Errorf("in prod/release cors.allowed_origins must list explicit origins")
	}
	return nil
}

// IsProdLike reports a production-style environment (prod, production, release).
func (c *Config) IsProdLike() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production" || c.AppEnv == "release"
}

func (c *Config) CORSAllowsAll() bool {
	for _, o := range c.CORS.AllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
