// docdash is the admin CLI for the document platform: documents, collections,
// workflows, health, metrics, retrieval, and the offline write queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docdash/internal/cache"
	"docdash/internal/config"
	"docdash/internal/dataaccess"
	"docdash/internal/kvstore"
	"docdash/internal/logging"
	"docdash/internal/netmon"
	"docdash/internal/offline"
	"docdash/internal/transport"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	jsonOut    bool
	configPath string
	apiURL     string
	apiToken   string
	timeout    time.Duration

	logger *zap.Logger
	app    *appContext
)

// appContext wires every subsystem for one CLI invocation.
type appContext struct {
	cfg      *config.Config
	client   *transport.Client
	cache    *cache.Store
	store    *kvstore.Store
	monitor  *netmon.Monitor
	queue    *offline.Queue
	data       *dataaccess.Layer
	cfgWatch   *config.Watcher
	replayStop func()
}

var rootCmd = &cobra.Command{
	Use:   "docdash",
	Short: "docdash - document platform admin CLI",
	Long: `docdash talks to the document platform API with a cache-aware data
access layer: repeated reads are served locally within their staleness
window, writes invalidate exactly the views they change, and mutations
issued while the API is unreachable are queued and replayed when
connectivity returns.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		app, err = newApp()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func newApp() (*appContext, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if apiToken != "" {
		cfg.API.Token = apiToken
	}
	if timeout > 0 {
		cfg.API.Timeout = timeout
	}

	if err := logging.Initialize(cfg.StateDir, logging.Options{
		DebugMode:  verbose || cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		return nil, err
	}

	client := transport.New(transport.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		AuthHeader: cfg.API.AuthHeader,
		AuthPrefix: cfg.API.AuthPrefix,
		Retry: transport.RetryPolicy{
			MaxRetries:        cfg.API.MaxRetries,
			BaseDelay:         cfg.API.BaseDelay,
			Multiplier:        cfg.API.BackoffMultiplier,
			RetryableStatuses: cfg.API.RetryableStatuses,
			Jitter:            true,
		},
	})
	if cfg.API.Token != "" {
		client.SetToken(cfg.API.Token)
	}

	store, err := kvstore.Open(cfg.StorePath())
	if err != nil {
		return nil, err
	}

	monitor := netmon.New(netmon.Options{
		ProbeURL: cfg.API.BaseURL + cfg.Netmon.ProbePath,
		Interval: cfg.Netmon.ProbeInterval,
		SlowRTT:  cfg.Netmon.SlowRTT,
	})

	queue := offline.New(offline.Options{
		Store:      store,
		Sender:     client,
		MaxRetries: cfg.Offline.MaxRetries,
		Notifier: offline.NotifierFunc(func(level, msg string) {
			switch level {
			case "error":
				logger.Error(msg)
			case "warn":
				logger.Warn(msg)
			default:
				logger.Info(msg)
			}
		}),
	})

	// Probe loop plus reconnect listener: writes queued while the API was
	// unreachable replay automatically on the offline-to-online transition.
	monitor.Start(context.Background())
	replayStop := queue.AttachMonitor(context.Background(), monitor)

	cacheStore := cache.NewStore(time.Minute)

	// Token rotations written to the config file take effect mid-command,
	// which matters for the long-running watch/wait commands.
	var cfgWatch *config.Watcher
	if cw, werr := config.NewWatcher(configPath); werr == nil {
		cw.Subscribe(func(next *config.Config) {
			if next.API.Token != "" {
				client.SetToken(next.API.Token)
			}
		})
		if werr = cw.Start(context.Background()); werr == nil {
			cfgWatch = cw
		}
	}

	return &appContext{
		cfg:        cfg,
		client:     client,
		cache:      cacheStore,
		store:      store,
		monitor:    monitor,
		queue:      queue,
		data:       dataaccess.New(client, cacheStore, cfg),
		cfgWatch:   cfgWatch,
		replayStop: replayStop,
	}, nil
}

func (a *appContext) close() {
	if a.cfgWatch != nil {
		a.cfgWatch.Stop()
	}
	if a.replayStop != nil {
		a.replayStop()
	}
	a.monitor.Stop()
	a.cache.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
	}
}

// cmdContext returns a context cancelled by SIGINT/SIGTERM.
func cmdContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// enqueueIfOffline queues a failed mutation when the failure is
// connectivity-class, so the change survives until the API is reachable.
// Returns true when the item was queued.
func enqueueIfOffline(err error, op offline.Op, method, endpoint string, payload []byte) bool {
	if err == nil || !offline.ShouldQueue(err) {
		return false
	}
	item, qerr := app.queue.Enqueue(offline.Item{
		Op:       op,
		Method:   method,
		Endpoint: endpoint,
		Payload:  payload,
	})
	if qerr != nil {
		logger.Error("failed to queue offline change", zap.Error(qerr))
		return false
	}
	fmt.Printf("API unreachable; change queued for replay (id=%s)\n", item.ID)
	return true
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print raw JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (or set DOCDASH_API_URL)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "API bearer token (or set DOCDASH_API_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-attempt request timeout override")

	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(collectionsCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(ragCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
