// Package config loads breakq service settings.
//
// Values come from, in increasing precedence: built-in defaults, a YAML
// config file, and BREAKQ_* environment variables. Command-line flags are
// applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/clock"
)

// EnvPrefix prefixes every environment override, e.g. BREAKQ_BATCH_SIZE.
const EnvPrefix = "BREAKQ"

// Config holds service settings.
type Config struct {
	DBPath      string        `mapstructure:"db_path"`
	BatchSize   int           `mapstructure:"batch_size"`
	Interval    time.Duration `mapstructure:"interval"`
	SubCycles   int           `mapstructure:"sub_cycles"`
	LockWait    time.Duration `mapstructure:"lock_wait"`
	Timezone    string        `mapstructure:"timezone"`
	CatalogPath string        `mapstructure:"catalog_path"`
	LeaseTTL    time.Duration `mapstructure:"lease_ttl"`
}

// ErrInvalid marks a configuration that failed validation.
var ErrInvalid = errors.New("invalid config")

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "breakq.db")
	v.SetDefault("batch_size", 10)
	v.SetDefault("interval", "60s")
	v.SetDefault("sub_cycles", 6)
	v.SetDefault("lock_wait", "2s")
	v.SetDefault("timezone", clock.DefaultZone)
	v.SetDefault("catalog_path", "")
	v.SetDefault("lease_ttl", "2m")
}

// Default returns the built-in settings.
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads settings. An explicit path must exist; with an empty path,
// ./breakq.yaml is used when present.
func Load(path string) (Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("breakq")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !(errors.As(err, &notFound) || os.IsNotExist(err)) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is empty"))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize))
	}
	if c.SubCycles < 1 {
		errs = append(errs, fmt.Errorf("sub_cycles must be >= 1, got %d", c.SubCycles))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.LockWait < 0 {
		errs = append(errs, fmt.Errorf("lock_wait must not be negative, got %s", c.LockWait))
	}
	if _, err := clock.LoadZone(c.Timezone); err != nil {
		errs = append(errs, err)
	}
	if c.LeaseTTL < time.Second {
		errs = append(errs, fmt.Errorf("lease_ttl must be at least 1s, got %s", c.LeaseTTL))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Cadence is the effective time between batch runs.
func (c Config) Cadence() time.Duration {
	if c.SubCycles < 1 {
		return c.Interval
	}
	return c.Interval / time.Duration(c.SubCycles)
}

// Location resolves the configured time zone.
func (c Config) Location() (*time.Location, error) {
	return clock.LoadZone(c.Timezone)
}

// LoadCatalog returns the configured catalog, or the built-in one.
func (c Config) LoadCatalog() (*catalog.Catalog, error) {
	if c.CatalogPath == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(c.CatalogPath)
}
