package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"

	"github.com/Swind/go-dispatch/core"
	"github.com/Swind/go-dispatch/internal/config"
)

var _ = Describe("Config", func() {
	Describe("Default", func() {
		It("should fill every section from default tags", func() {
			cfg := config.Default()

			Expect(cfg.LogLevel).To(Equal("info"))
			Expect(cfg.LogFormat).To(Equal("console"))
			Expect(cfg.Dispatcher.Name).To(Equal("dispatchd"))
			Expect(cfg.Dispatcher.MaxPooled).To(Equal(core.DefaultMaxPooled))
			Expect(cfg.Shutdown.InitialInterval).To(Equal(10 * time.Millisecond))
			Expect(cfg.Shutdown.MaxRetries).To(Equal(uint(16)))
			Expect(cfg.Shutdown.Timeout).To(Equal(30 * time.Second))
			Expect(cfg.Metrics.Enabled).To(BeTrue())
			Expect(cfg.Metrics.Addr).To(Equal(":9090"))
			Expect(cfg.Validate()).To(Succeed())
		})
	})

	Describe("Load", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		writeFile := func(name, body string) string {
			path := filepath.Join(dir, name)
			Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
			return path
		}

		It("should return defaults without a file or flags", func() {
			cfg, err := config.Load("", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.Default()))
		})

		It("should overlay a YAML file onto defaults", func() {
			path := writeFile("dispatch.yaml", `
log_level: debug
dispatcher:
  max_workers: 8
  check_completion: true
shutdown:
  timeout: 5s
`)
			cfg, err := config.Load(path, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.LogLevel).To(Equal("debug"))
			Expect(cfg.Dispatcher.MaxWorkers).To(Equal(8))
			Expect(cfg.Dispatcher.CheckCompletion).To(BeTrue())
			Expect(cfg.Dispatcher.MaxPooled).To(Equal(32))
			Expect(cfg.Shutdown.Timeout).To(Equal(5 * time.Second))
			Expect(cfg.Shutdown.MaxInterval).To(Equal(2 * time.Second))
		})

		It("should let environment variables override the file", func() {
			path := writeFile("dispatch.json", `{"dispatcher": {"max_workers": 8}}`)
			GinkgoT().Setenv("DISPATCH_DISPATCHER_MAX_WORKERS", "3")
			GinkgoT().Setenv("DISPATCH_METRICS_ADDR", "127.0.0.1:0")

			cfg, err := config.Load(path, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Dispatcher.MaxWorkers).To(Equal(3))
			Expect(cfg.Metrics.Addr).To(Equal("127.0.0.1:0"))
		})

		It("should let changed flags win and ignore unchanged ones", func() {
			path := writeFile("dispatch.yaml", "dispatcher:\n  max_pooled: 4\n")
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			config.RegisterFlags(fs)
			Expect(fs.Parse([]string{"--max-workers=2", "--shutdown-timeout=1s"})).To(Succeed())

			cfg, err := config.Load(path, fs)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Dispatcher.MaxWorkers).To(Equal(2))
			Expect(cfg.Shutdown.Timeout).To(Equal(time.Second))
			Expect(cfg.Dispatcher.MaxPooled).To(Equal(4))
		})

		It("should fail on a missing file", func() {
			_, err := config.Load(filepath.Join(dir, "missing.yaml"), nil)
			Expect(err).To(MatchError(ContainSubstring("read config")))
		})

		It("should reject invalid values", func() {
			path := writeFile("bad.yaml", "log_format: xml\ndispatcher:\n  max_workers: -1\n")
			_, err := config.Load(path, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("log_format"))
			Expect(err.Error()).To(ContainSubstring("max_workers"))
		})
	})

	Describe("DispatcherConfig", func() {
		It("should carry every dispatcher and shutdown setting", func() {
			cfg := config.Default()
			cfg.Dispatcher.MaxWorkers = 4
			cfg.Dispatcher.MaxPooled = 2
			cfg.Dispatcher.CheckCompletion = true

			dc := cfg.DispatcherConfig(core.NewNoOpLogger(), nil)
			Expect(dc.Name).To(Equal("dispatchd"))
			Expect(dc.MaxWorkers).To(Equal(4))
			Expect(dc.CheckCompletion).To(BeTrue())
			Expect(dc.Shutdown.Timeout).To(Equal(30 * time.Second))

			pool, ok := dc.WorkerPool.(*core.BoundedWorkerPool)
			Expect(ok).To(BeTrue())
			Expect(pool.Cap()).To(Equal(2))
		})
	})

	Describe("NewLogger", func() {
		It("should build console and json loggers", func() {
			for _, format := range []string{"console", "json"} {
				cfg := config.Default()
				cfg.LogFormat = format
				logger, err := cfg.NewLogger()
				Expect(err).NotTo(HaveOccurred())
				Expect(logger).NotTo(BeNil())
			}
		})

		It("should reject an unknown level", func() {
			cfg := config.Default()
			cfg.LogLevel = "loud"
			_, err := cfg.NewLogger()
			Expect(err).To(MatchError(ContainSubstring("log_level")))
		})
	})
})
