// Package config resolves settings from flags, CAPTRAN_* environment
// variables, an optional .env file and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valpere/captran/internal/store"
	"github.com/valpere/captran/internal/translator"
)

const EnvPrefix = "CAPTRAN"

const (
	WorkerLocal   = "local"
	WorkerProcess = "process"
)

type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	Backend    string            `mapstructure:"backend"`
	Translator translator.Config `mapstructure:"translator"`
	Worker     string            `mapstructure:"worker"`
	Catalog    string            `mapstructure:"catalog"`

	TranslateTimeout time.Duration `mapstructure:"translate_timeout"`
	LoadTimeout      time.Duration `mapstructure:"load_timeout"`
	ValidateOutput   bool          `mapstructure:"validate"`

	DB    string            `mapstructure:"db"`
	Redis store.RedisConfig `mapstructure:"redis"`

	HTTP HTTPConfig `mapstructure:"http"`
}

var defaults = map[string]any{
	"environment":            "local",
	"log_level":              "info",
	"backend":                "ollama",
	"translator.base_url":    "",
	"translator.api_key":     "",
	"translator.credentials": "",
	"translator.email":       "",
	"translator.timeout":     60 * time.Second,
	"worker":                 WorkerLocal,
	"catalog":                "",
	"translate_timeout":      15 * time.Second,
	"load_timeout":           5 * time.Minute,
	"validate":               false,
	"db":                     "",
	"redis.url":              "",
	"redis.ttl":              time.Duration(0),
	"redis.key_prefix":       "captran:",
	"http.host":              "127.0.0.1",
	"http.port":              8095,
	"http.read_timeout":      10 * time.Second,
	"http.write_timeout":     30 * time.Second,
	"http.shutdown_timeout":  10 * time.Second,
}

// SetDefaults registers every key with its default so environment variables
// are honoured for all of them.
func SetDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// LoadDotEnv loads path (".env" when empty) into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration held by v. Flags must already be bound.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !slices.Contains(translator.Names, c.Backend) {
		return fmt.Errorf("unknown backend %q (want one of %s)", c.Backend, strings.Join(translator.Names, ", "))
	}
	if c.Worker != WorkerLocal && c.Worker != WorkerProcess {
		return fmt.Errorf("worker must be %q or %q, got %q", WorkerLocal, WorkerProcess, c.Worker)
	}
	if c.TranslateTimeout <= 0 {
		return fmt.Errorf("translate_timeout must be positive")
	}
	if c.LoadTimeout <= 0 {
		return fmt.Errorf("load_timeout must be positive")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	if c.Backend == "google" && c.Translator.APIKey == "" && c.Translator.Credentials == "" {
		return fmt.Errorf("google backend needs translator.api_key or translator.credentials")
	}
	return nil
}

// WorkerEnv returns the environment a worker child process needs to build
// the same backend as the parent.
func (c *Config) WorkerEnv() []string {
	env := []string{
		EnvPrefix + "_BACKEND=" + c.Backend,
		EnvPrefix + "_LOG_LEVEL=" + c.LogLevel,
		EnvPrefix + "_ENVIRONMENT=" + c.Environment,
		EnvPrefix + "_TRANSLATOR_TIMEOUT=" + c.Translator.Timeout.String(),
	}
	add := func(key, val string) {
		if val != "" {
			env = append(env, EnvPrefix+"_TRANSLATOR_"+key+"="+val)
		}
	}
	add("BASE_URL", c.Translator.BaseURL)
	add("API_KEY", c.Translator.APIKey)
	add("CREDENTIALS", c.Translator.Credentials)
	add("EMAIL", c.Translator.Email)
	return env
}
