// Package config loads votecrypt settings from a config file, VOTECRYPT_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VOTECRYPT"

// ErrInvalid indicates settings that cannot be used
var ErrInvalid = errors.New("config: invalid settings")

// Log configures the logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Config holds every setting of the votecrypt service and CLI.
type Config struct {
	Addr          string        `mapstructure:"addr"`
	Curve         string        `mapstructure:"curve"`
	ParamsFile    string        `mapstructure:"params"`
	KeyFile       string        `mapstructure:"key"`
	KeyConfigFile string        `mapstructure:"key_config"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	ReceiptTTL    time.Duration `mapstructure:"receipt_ttl"`
	BulletinTTL   time.Duration `mapstructure:"bulletin_ttl"`
	RateLimit     int           `mapstructure:"rate_limit"`
	Workers       int           `mapstructure:"workers"`
	MaxBallots    int           `mapstructure:"max_ballots"`
	Log           Log           `mapstructure:"log"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("curve", "secp256k1")
	v.SetDefault("params", "params.json")
	v.SetDefault("key", "keys/receipt-signing.pem")
	v.SetDefault("key_config", "keys/receipt-config.json")
	v.SetDefault("issuer", "https://votecrypt.example")
	v.SetDefault("audience", "votecrypt-bulletins")
	v.SetDefault("receipt_ttl", 24*time.Hour)
	v.SetDefault("bulletin_ttl", 24*time.Hour)
	v.SetDefault("rate_limit", 120)
	v.SetDefault("workers", 0)
	v.SetDefault("max_ballots", 1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the settings. path may be empty, in which case only defaults,
// the environment and flags apply. Flags are bound by name with '-' read as
// '_', so --rate-limit sets rate_limit. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if f.Name == "log-level" {
				key = "log.level"
			} else if f.Name == "log-format" {
				key = "log.format"
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is empty", ErrInvalid)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("%w: rate_limit must be positive", ErrInvalid)
	}
	if c.ReceiptTTL <= 0 || c.BulletinTTL <= 0 {
		return fmt.Errorf("%w: ttl values must be positive", ErrInvalid)
	}
	if c.MaxBallots <= 0 {
		return fmt.Errorf("%w: max_ballots must be positive", ErrInvalid)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}
