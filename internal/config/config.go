package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Swind/go-dispatch/core"
)

// EnvPrefix prefixes every environment override, e.g. DISPATCH_DISPATCHER_MAX_WORKERS.
const EnvPrefix = "DISPATCH"

// Config is the top-level configuration of dispatchd.
type Config struct {
	LogLevel   string     `mapstructure:"log_level" default:"info"`
	LogFormat  string     `mapstructure:"log_format" default:"console"`
	Dispatcher Dispatcher `mapstructure:"dispatcher"`
	Shutdown   Shutdown   `mapstructure:"shutdown"`
	Metrics    Metrics    `mapstructure:"metrics"`
	Demo       Demo       `mapstructure:"demo"`
}

// Dispatcher configures the worker pool.
type Dispatcher struct {
	Name            string `mapstructure:"name" default:"dispatchd"`
	MaxWorkers      int    `mapstructure:"max_workers" default:"0"`
	MaxPooled       int    `mapstructure:"max_pooled" default:"32"`
	CheckCompletion bool   `mapstructure:"check_completion" default:"false"`
}

// Shutdown bounds the wait for active workers on stop.
type Shutdown struct {
	InitialInterval time.Duration `mapstructure:"initial_interval" default:"10ms"`
	MaxInterval     time.Duration `mapstructure:"max_interval" default:"2s"`
	Multiplier      float64       `mapstructure:"multiplier" default:"2"`
	MaxRetries      uint          `mapstructure:"max_retries" default:"16"`
	Timeout         time.Duration `mapstructure:"timeout" default:"30s"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled      bool          `mapstructure:"enabled" default:"true"`
	Addr         string        `mapstructure:"addr" default:":9090"`
	Path         string        `mapstructure:"path" default:"/metrics"`
	Namespace    string        `mapstructure:"namespace" default:"dispatch"`
	PollInterval time.Duration `mapstructure:"poll_interval" default:"5s"`
}

// Demo configures the sample pipeline run by dispatchd.
type Demo struct {
	Producers int           `mapstructure:"producers" default:"4"`
	Items     int           `mapstructure:"items" default:"1000"`
	TickEvery time.Duration `mapstructure:"tick_every" default:"250ms"`
}

// Default returns built-in defaults.
func Default() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// Only reachable with a malformed default tag.
		panic(fmt.Sprintf("config: invalid default tag: %v", err))
	}
	return cfg
}

// Load builds the configuration from defaults, then the file at path (if
// any), then DISPATCH_* environment variables, then changed flags in fs.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys(reflect.TypeOf(cfg), "") {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		for flagName, key := range flagKeys {
			if f := fs.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", flagName, err)
				}
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want console or json", c.LogFormat))
	}
	if c.Dispatcher.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("dispatcher.max_workers %d: must not be negative", c.Dispatcher.MaxWorkers))
	}
	if c.Dispatcher.MaxPooled < 0 {
		errs = append(errs, fmt.Errorf("dispatcher.max_pooled %d: must not be negative", c.Dispatcher.MaxPooled))
	}
	if c.Shutdown.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("shutdown.multiplier %v: must be at least 1", c.Shutdown.Multiplier))
	}
	if c.Shutdown.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown.timeout %v: must be positive", c.Shutdown.Timeout))
	}
	if c.Demo.Producers < 0 || c.Demo.Items < 0 {
		errs = append(errs, errors.New("demo: producers and items must not be negative"))
	}
	return errors.Join(errs...)
}

// DispatcherConfig converts the file-level settings into a core config.
func (c Config) DispatcherConfig(logger core.Logger, metrics core.Metrics) *core.DispatcherConfig {
	return &core.DispatcherConfig{
		Name:            c.Dispatcher.Name,
		MaxWorkers:      c.Dispatcher.MaxWorkers,
		WorkerPool:      core.NewBoundedWorkerPool(c.Dispatcher.MaxPooled),
		CheckCompletion: c.Dispatcher.CheckCompletion,
		Shutdown: core.ShutdownPolicy{
			InitialInterval: c.Shutdown.InitialInterval,
			MaxInterval:     c.Shutdown.MaxInterval,
			Multiplier:      c.Shutdown.Multiplier,
			MaxRetries:      c.Shutdown.MaxRetries,
			Timeout:         c.Shutdown.Timeout,
		},
		Logger:  logger,
		Metrics: metrics,
	}
}

// keys lists the dotted mapstructure keys of every leaf field of t.
func keys(t reflect.Type, prefix string) []string {
	var out []string
	for i := range t.NumField() {
		f := t.Field(i)
		name := f.Tag.Get("mapstructure")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			out = append(out, keys(f.Type, name)...)
			continue
		}
		out = append(out, name)
	}
	return out
}
