package config

import "github.com/spf13/pflag"

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"log-format":       "log_format",
	"name":             "dispatcher.name",
	"max-workers":      "dispatcher.max_workers",
	"max-pooled":       "dispatcher.max_pooled",
	"check-completion": "dispatcher.check_completion",
	"shutdown-timeout": "shutdown.timeout",
	"metrics":          "metrics.enabled",
	"metrics-addr":     "metrics.addr",
	"demo-items":       "demo.items",
}

// RegisterFlags adds the overridable settings to fs, with defaults matching
// Default so an unchanged flag never masks a file or environment value.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("log-level", def.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-format", def.LogFormat, "log format (console, json)")
	fs.String("name", def.Dispatcher.Name, "dispatcher name used in logs and metrics")
	fs.Int("max-workers", def.Dispatcher.MaxWorkers, "maximum concurrently active workers (0 = unlimited)")
	fs.Int("max-pooled", def.Dispatcher.MaxPooled, "maximum idle workers kept for reuse")
	fs.Bool("check-completion", def.Dispatcher.CheckCompletion, "report work items that are never completed")
	fs.Duration("shutdown-timeout", def.Shutdown.Timeout, "maximum wait for active workers on stop")
	fs.Bool("metrics", def.Metrics.Enabled, "serve Prometheus metrics")
	fs.String("metrics-addr", def.Metrics.Addr, "metrics listen address")
	fs.Int("demo-items", def.Demo.Items, "items each demo producer submits")
}
