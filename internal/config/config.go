package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"quotefiles/internal/service/s3"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"Server"`
	FileAPI FileAPIConfig `mapstructure:"FileAPI"`
	Upload  UploadConfig  `mapstructure:"Upload"`
	Share   ShareConfig   `mapstructure:"Share"`
	Preview PreviewConfig `mapstructure:"Preview"`
	Catalog CatalogConfig `mapstructure:"Catalog"`
	Notice  NoticeConfig  `mapstructure:"Notice"`
	S3      s3.Config     `mapstructure:"S3"`
	Log     LogConfig     `mapstructure:"Log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"Port"`
	BaseURL         string        `mapstructure:"BaseURL"`
	AllowedOrigins  []string      `mapstructure:"AllowedOrigins"`
	RequireAuth     bool          `mapstructure:"RequireAuth"`
	ShutdownTimeout time.Duration `mapstructure:"ShutdownTimeout"`
}

// FileAPIConfig: внешний File Service
type FileAPIConfig struct {
	BaseURL string        `mapstructure:"BaseURL"`
	Timeout time.Duration `mapstructure:"Timeout"`
}

type UploadConfig struct {
	MaxSize      int64         `mapstructure:"MaxSize"`
	MaxCount     int           `mapstructure:"MaxCount"`
	DismissAfter time.Duration `mapstructure:"DismissAfter"`
}

type ShareConfig struct {
	BaseURL string `mapstructure:"BaseURL"`
}

type PreviewConfig struct {
	// Backend: memory или s3
	Backend          string        `mapstructure:"Backend"`
	ExternalGrace    time.Duration `mapstructure:"ExternalGrace"`
	ThumbnailMaxSize int           `mapstructure:"ThumbnailMaxSize"`
}

type CatalogConfig struct {
	Size int           `mapstructure:"Size"`
	TTL  time.Duration `mapstructure:"TTL"`
}

type NoticeConfig struct {
	Capacity int           `mapstructure:"Capacity"`
	TTL      time.Duration `mapstructure:"TTL"`
}

type LogConfig struct {
	Dev bool `mapstructure:"Dev"`
}

const (
	PreviewBackendMemory = "memory"
	PreviewBackendS3     = "s3"
)

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	// Устанавливаем файл конфигурации
	if path != "" {
		v.SetConfigFile(path)
	}

	setDefaults(v)

	// Привязываем переменные окружения
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Server.BaseURL", "BASE_URL")
	v.BindEnv("Server.AllowedOrigins", "ALLOWED_ORIGINS")
	v.BindEnv("Server.RequireAuth", "REQUIRE_AUTH")
	v.BindEnv("FileAPI.BaseURL", "FILE_API_URL")
	v.BindEnv("FileAPI.Timeout", "FILE_API_TIMEOUT")
	v.BindEnv("Share.BaseURL", "SHARE_BASE_URL")
	v.BindEnv("Upload.MaxSize", "UPLOAD_MAX_SIZE")
	v.BindEnv("Upload.MaxCount", "UPLOAD_MAX_COUNT")
	v.BindEnv("Upload.DismissAfter", "UPLOAD_ERROR_DISMISS")
	v.BindEnv("Preview.Backend", "PREVIEW_BACKEND")
	v.BindEnv("Preview.ExternalGrace", "PREVIEW_EXTERNAL_GRACE")
	v.BindEnv("Preview.ThumbnailMaxSize", "PREVIEW_THUMBNAIL_MAX")
	v.BindEnv("S3.Endpoint", "S3_ENDPOINT")
	v.BindEnv("S3.Region", "S3_REGION")
	v.BindEnv("S3.AccessKeyID", "S3_ACCESS_KEY_ID")
	v.BindEnv("S3.SecretAccessKey", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("S3.Bucket", "S3_BUCKET")
	v.BindEnv("S3.Prefix", "S3_PREFIX")
	v.BindEnv("S3.PresignTTL", "S3_PRESIGN_TTL")
	v.BindEnv("Log.Dev", "LOG_DEV")

	// Читаем конфигурацию из файла
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			fmt.Printf("Warning: using only environment variables: %v\n", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// ALLOWED_ORIGINS приходит строкой через запятую; viper режет её сам, но пробелы оставляет
	cfg.Server.AllowedOrigins = splitList(strings.Join(cfg.Server.AllowedOrigins, ","))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.AllowedOrigins", []string{"*"})
	v.SetDefault("Server.ShutdownTimeout", 15*time.Second)
	v.SetDefault("FileAPI.Timeout", 30*time.Second)
	v.SetDefault("Upload.MaxSize", int64(50<<20))
	v.SetDefault("Upload.MaxCount", 10)
	v.SetDefault("Upload.DismissAfter", 3000*time.Millisecond)
	v.SetDefault("Preview.Backend", PreviewBackendMemory)
	v.SetDefault("Preview.ExternalGrace", 1000*time.Millisecond)
	v.SetDefault("Preview.ThumbnailMaxSize", 1024)
	v.SetDefault("Catalog.Size", 256)
	v.SetDefault("Catalog.TTL", 30*time.Minute)
	v.SetDefault("Notice.Capacity", 100)
	v.SetDefault("Notice.TTL", 5*time.Second)
	v.SetDefault("S3.Prefix", "previews/")
	v.SetDefault("S3.PresignTTL", 15*time.Minute)
}

// Validate проверяет обязательные поля и допустимые значения
func (c *Config) Validate() error {
	if c.FileAPI.BaseURL == "" {
		return fmt.Errorf("FileAPI.BaseURL is required (FILE_API_URL)")
	}
	if c.Upload.MaxSize <= 0 || c.Upload.MaxCount <= 0 {
		return fmt.Errorf("upload limits must be positive: max size %d, max count %d", c.Upload.MaxSize, c.Upload.MaxCount)
	}

	switch c.Preview.Backend {
	case PreviewBackendMemory:
	case PreviewBackendS3:
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("preview backend s3: %w", err)
		}
	default:
		return fmt.Errorf("unknown preview backend %q", c.Preview.Backend)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
