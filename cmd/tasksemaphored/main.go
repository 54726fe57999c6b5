// Command tasksemaphored runs a tasksemaphore.Scheduler as a standalone
// daemon: it loads a FileConfig, builds the configured Storage driver and
// backend registry, runs the periodic Schedule pass, and optionally exposes
// the operator HTTP API and Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	tasksemaphore "github.com/dolead/tasksemaphore"
	"github.com/dolead/tasksemaphore/api"
	"github.com/dolead/tasksemaphore/backends/filewatch"
	"github.com/dolead/tasksemaphore/backends/httpqueue"
	"github.com/dolead/tasksemaphore/backends/messaging"
	"github.com/dolead/tasksemaphore/cli"
	"github.com/dolead/tasksemaphore/clients"
	"github.com/dolead/tasksemaphore/config"
	"github.com/dolead/tasksemaphore/filestorage"
	"github.com/dolead/tasksemaphore/l3"
	"github.com/dolead/tasksemaphore/lifecycle"
	"github.com/dolead/tasksemaphore/memstorage"
	"github.com/dolead/tasksemaphore/metrics"
	"github.com/dolead/tasksemaphore/redisstorage"
	"github.com/dolead/tasksemaphore/secrets"
)

// defaultHTTPQueueRetry bounds the retry loop reference httpqueue backends
// use when polling or notifying a configured queue.
var defaultHTTPQueueRetry = clients.RetryInfo{MaxRetries: 3, Wait: 500}

var logger = l3.Get()

func main() {
	app := cli.NewCLI()
	app.AddVersion(tasksemaphore.CoreVersion)
	runCmd := cli.NewCommand("run", "run the scheduler daemon", tasksemaphore.CoreVersion, runAction)
	runCmd.Flags = append(runCmd.Flags, &cli.Flag{Name: "config", Usage: "path to the scheduler config file", Default: ""})
	app.AddCommand(runCmd)
	if err := app.Execute(); err != nil {
		logger.ErrorF("tasksemaphored: %v", err)
		os.Exit(1)
	}
}

func runAction(ctx *cli.Context) error {
	configPath, ok := ctx.GetFlag("config")
	if !ok || configPath == "" {
		configPath = config.GetEnvAsString("TASKSEMAPHORE_CONFIG", "tasksemaphore.yaml")
	}

	cfg, err := tasksemaphore.LoadFileConfig(configPath)
	if err != nil {
		return err
	}

	storage, err := buildStorage(cfg)
	if err != nil {
		return fmt.Errorf("tasksemaphored: build storage: %w", err)
	}

	registry := tasksemaphore.NewRegistry()
	if err := registerBackends(registry, cfg.Backends); err != nil {
		return fmt.Errorf("tasksemaphored: register backends: %w", err)
	}

	opts := []tasksemaphore.SchedulerOption{}
	if cfg.Namespace != "" {
		opts = append(opts, tasksemaphore.WithNamespace(cfg.Namespace))
	}
	scheduler := tasksemaphore.NewScheduler(cfg.SchedulerName, storage, registry, opts...)

	if err := scheduler.InitFromConfig(context.Background(), cfg.SlotConfigs()); err != nil {
		return fmt.Errorf("tasksemaphored: init slots: %w", err)
	}

	manager := lifecycle.NewSimpleComponentManager()
	schedulerComponent := tasksemaphore.NewComponent("scheduler", scheduler, cfg.Interval())
	manager.Register(schedulerComponent)

	observer := metrics.NewObserver(cfg.SchedulerName)
	schedulerComponent.OnTick(func(tickCtx context.Context, s *tasksemaphore.Scheduler) {
		if err := observer.Sync(tickCtx, s); err != nil {
			logger.WarnF("tasksemaphored: metrics sync: %v", err)
		}
	})

	if cfg.API != nil {
		apiOpts := &api.Options{
			ID:         cfg.SchedulerName + "-api",
			ListenHost: cfg.API.ListenHost,
			ListenPort: cfg.API.ListenPort,
		}
		server, err := api.NewServer(apiOpts, scheduler)
		if err != nil {
			return fmt.Errorf("tasksemaphored: build api server: %w", err)
		}
		manager.Register(server)
	}

	if err := manager.StartAll(); err != nil {
		return fmt.Errorf("tasksemaphored: start components: %w", err)
	}
	logger.InfoF("tasksemaphored: scheduler %q running", cfg.SchedulerName)
	manager.Wait()
	return nil
}

func buildStorage(cfg *tasksemaphore.FileConfig) (tasksemaphore.Storage, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return memstorage.New(), nil
	case "file":
		if cfg.Storage.FilePath == "" {
			return nil, fmt.Errorf("storage.file_path is required for the file driver")
		}
		return filestorage.New(cfg.Storage.FilePath)
	case "redis":
		password, err := redisPassword(cfg.Storage.RedisSecretID)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr, Password: password})
		return redisstorage.New(client), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// redisPassword resolves the Redis credential through the local encrypted
// secrets store rather than reading it as plaintext configuration. An empty
// secretID means no authentication is configured.
func redisPassword(secretID string) (string, error) {
	if secretID == "" {
		return "", nil
	}
	storeFile := config.GetEnvAsString("TASKSEMAPHORE_SECRETS_FILE", "tasksemaphore-secrets.db")
	masterKey := config.GetEnvAsString("TASKSEMAPHORE_SECRETS_KEY", "")
	if masterKey == "" {
		return "", fmt.Errorf("TASKSEMAPHORE_SECRETS_KEY must be set to decrypt %s", storeFile)
	}
	store, err := secrets.NewLocalStore(storeFile, masterKey)
	if err != nil {
		return "", fmt.Errorf("open secrets store: %w", err)
	}
	secrets.GetManager().Register(store)

	cred, err := store.Get(secretID, context.Background())
	if err != nil {
		return "", fmt.Errorf("read secret %q: %w", secretID, err)
	}
	return cred.Str(), nil
}

// registerBackends eagerly constructs each configured backend once (so a
// malformed target is reported at startup, not buried in a later Resolve),
// then registers a factory that always returns that same instance: these
// reference backends own live state (a message listener, a claimed-file
// set) that must not be recreated per slot.
func registerBackends(registry *tasksemaphore.Registry, backendCfgs []tasksemaphore.BackendFileConfig) error {
	for _, b := range backendCfgs {
		var backend tasksemaphore.Backend
		var err error
		switch b.Kind {
		case "messaging":
			backend, err = messaging.New(b.Name, b.Target)
		case "filewatch":
			backend, err = filewatch.New(b.Name, b.Target)
		case "httpqueue":
			backend = httpqueue.New(b.Name, b.Target, httpqueue.WithRetry(defaultHTTPQueueRetry))
		default:
			return fmt.Errorf("backend %q: unknown kind %q", b.Name, b.Kind)
		}
		if err != nil {
			return fmt.Errorf("backend %q: %w", b.Name, err)
		}
		if err := registry.RegisterBackendFactory(b.Name, func() tasksemaphore.Backend { return backend }); err != nil {
			return err
		}
	}
	return nil
}
