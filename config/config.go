package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type CacheConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	TTL      string `toml:"ttl"`
	Prefix   string `toml:"prefix"`
}

type Config struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`
	Libonnx  string `toml:"libonnx"`

	ModelDir         string   `toml:"model_dir"`
	ModelFileName    string   `toml:"model_file_name"`
	ModelClassesName string   `toml:"model_classes_name"`
	Classes          []string `toml:"classes"`

	ImageWidth  int    `toml:"image_width"`
	ImageHeight int    `toml:"image_height"`
	Resample    string `toml:"resample"`
	Scaling     string `toml:"scaling"`

	Workers         int    `toml:"workers"`
	IntraOpThreads  int    `toml:"intra_op_threads"`
	RequestTimeout  string `toml:"request_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	MaxUploadMB     int64  `toml:"max_upload_mb"`

	Cache CacheConfig `toml:"cache"`
}

// DefaultClasses is the catalog used when neither classes nor
// model_classes_name is configured.
var DefaultClasses = []string{
	"garbage",
	"normal road",
	"potholes",
	"street light off",
	"street light on",
}

var (
	Resamplers = []string{"nearest", "bilinear", "bicubic", "lanczos"}
	Scalings   = []string{"none", "unit", "mobilenet_v2"}
)

func Default() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            "5001",
		LogLevel:        "info",
		ModelDir:        "model",
		ModelFileName:   "civic_model.onnx",
		ImageWidth:      224,
		ImageHeight:     224,
		Resample:        "bicubic",
		Scaling:         "none",
		Workers:         2,
		RequestTimeout:  "30s",
		ShutdownTimeout: "15s",
		MaxUploadMB:     16,
		Cache: CacheConfig{
			TTL:    "10m",
			Prefix: "civicvision:predict:",
		},
	}
}

var (
	cfg      Config
	loadOnce sync.Once
)

// C returns the process-wide configuration, loading it on first use.
// A broken config file is fatal; a missing one falls back to defaults.
func C() Config {
	loadOnce.Do(func() {
		path := os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "config.toml"
		}
		c, err := Load(path)
		if err != nil {
			panic(err)
		}
		cfg = c
	})
	return cfg
}

// Load reads path over the defaults and applies HOST/PORT from the environment.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return c, fmt.Errorf("failed to stat config: %w", err)
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if len(c.Classes) > 0 && c.ModelClassesName != "" {
		return errors.New("classes and model_classes_name are mutually exclusive")
	}
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("image dimensions must be positive, got %dx%d", c.ImageWidth, c.ImageHeight)
	}
	if !oneOf(c.Resample, Resamplers) {
		return fmt.Errorf("unknown resample filter %q", c.Resample)
	}
	if !oneOf(c.Scaling, Scalings) {
		return fmt.Errorf("unknown scaling %q", c.Scaling)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be at least 1, got %d", c.MaxUploadMB)
	}
	for name, v := range map[string]string{
		"request_timeout":  c.RequestTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
		"cache.ttl":        c.Cache.TTL,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// InlineClasses returns the configured inline catalog, or DefaultClasses
// when no catalog source is set at all. It is nil when a classes file is
// configured.
func (c Config) InlineClasses() []string {
	if len(c.Classes) > 0 {
		return c.Classes
	}
	if c.ModelClassesName == "" {
		return DefaultClasses
	}
	return nil
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c Config) RequestTimeoutDuration() time.Duration {
	return mustDuration(c.RequestTimeout)
}

func (c Config) ShutdownTimeoutDuration() time.Duration {
	return mustDuration(c.ShutdownTimeout)
}

func (c Config) CacheTTL() time.Duration {
	return mustDuration(c.Cache.TTL)
}

func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// mustDuration is only safe on a validated config.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
