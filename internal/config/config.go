package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "MEDIA"

type Config struct {
	HTTPAddr string
	Upload   UploadConfig
	Matcher  MatcherConfig
	Log      LogConfig
	CORS     CORSConfig
	Tracing  TracingConfig
}

// UploadConfig is read once at startup and never modified afterwards.
type UploadConfig struct {
	TempDir          string
	MaxFileSize      int64
	MaxFileCount     int
	MaxFieldNameSize int
	MaxFieldSize     int64
	MaxFields        int // 0 means unlimited
	MaxParts         int // 0 means unlimited
	MinCompareFiles  int
}

type MatcherConfig struct {
	URL     string
	Timeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type TracingConfig struct {
	OTLPEndpoint string
	ServiceName  string
	SampleRate   float64
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("upload.temp_dir", filepath.Join(os.TempDir(), "uploads"))
	v.SetDefault("upload.max_file_size", 10<<20)
	v.SetDefault("upload.max_file_count", 10)
	v.SetDefault("upload.max_field_name_size", 100)
	v.SetDefault("upload.max_field_size", 1<<20)
	v.SetDefault("upload.max_fields", 0)
	v.SetDefault("upload.max_parts", 0)
	v.SetDefault("upload.min_compare_files", 2)
	v.SetDefault("matcher.url", "http://image-matcher:8000")
	v.SetDefault("matcher.timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.service_name", "image-upload-service")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Load resolves configuration from defaults, an optional config file and
// MEDIA_* environment variables (e.g. MEDIA_UPLOAD_TEMP_DIR).
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	tempDir := strings.TrimSpace(v.GetString("upload.temp_dir"))
	if tempDir != "" {
		abs, err := filepath.Abs(tempDir)
		if err != nil {
			return nil, fmt.Errorf("invalid upload.temp_dir: %w", err)
		}
		tempDir = abs
	}

	cfg := &Config{
		HTTPAddr: v.GetString("http_addr"),
		Upload: UploadConfig{
			TempDir:          tempDir,
			MaxFileSize:      v.GetInt64("upload.max_file_size"),
			MaxFileCount:     v.GetInt("upload.max_file_count"),
			MaxFieldNameSize: v.GetInt("upload.max_field_name_size"),
			MaxFieldSize:     v.GetInt64("upload.max_field_size"),
			MaxFields:        v.GetInt("upload.max_fields"),
			MaxParts:         v.GetInt("upload.max_parts"),
			MinCompareFiles:  v.GetInt("upload.min_compare_files"),
		},
		Matcher: MatcherConfig{
			URL:     strings.TrimRight(v.GetString("matcher.url"), "/"),
			Timeout: v.GetDuration("matcher.timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: v.GetString("tracing.otlp_endpoint"),
			ServiceName:  v.GetString("tracing.service_name"),
			SampleRate:   v.GetFloat64("tracing.sample_rate"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr must not be empty"))
	}
	if c.Upload.TempDir == "" {
		errs = append(errs, errors.New("upload.temp_dir must not be empty"))
	} else if !filepath.IsAbs(c.Upload.TempDir) {
		errs = append(errs, fmt.Errorf("upload.temp_dir must be absolute, got %q", c.Upload.TempDir))
	}
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("upload.max_file_size must be positive, got %d", c.Upload.MaxFileSize))
	}
	if c.Upload.MaxFileCount <= 0 {
		errs = append(errs, fmt.Errorf("upload.max_file_count must be positive, got %d", c.Upload.MaxFileCount))
	}
	if c.Upload.MaxFieldNameSize <= 0 {
		errs = append(errs, fmt.Errorf("upload.max_field_name_size must be positive, got %d", c.Upload.MaxFieldNameSize))
	}
	if c.Upload.MaxFieldSize <= 0 {
		errs = append(errs, fmt.Errorf("upload.max_field_size must be positive, got %d", c.Upload.MaxFieldSize))
	}
	if c.Upload.MaxFields < 0 || c.Upload.MaxParts < 0 {
		errs = append(errs, errors.New("upload.max_fields and upload.max_parts must not be negative"))
	}
	if c.Upload.MinCompareFiles < 1 {
		errs = append(errs, fmt.Errorf("upload.min_compare_files must be at least 1, got %d", c.Upload.MinCompareFiles))
	}
	if c.Matcher.URL == "" {
		errs = append(errs, errors.New("matcher.url must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
