package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"iotexplorer/internal/adapter"
	"iotexplorer/internal/codec"
	"iotexplorer/internal/config"
	"iotexplorer/internal/core/bootstrap"
	"iotexplorer/internal/domain"
	"iotexplorer/internal/handler"
	"iotexplorer/internal/hub"
	"iotexplorer/internal/infrastructure/influxdb"
	"iotexplorer/internal/infrastructure/mqtt"
	"iotexplorer/internal/logger"
	"iotexplorer/internal/repository/sqlite"
	"iotexplorer/internal/service"
	"iotexplorer/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "Config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	importPath := flag.String("import", "", "Device list (JSON or YAML) to load into the store before starting")
	flag.Parse()

	if err := run(*configPath, *addr, *importPath); err != nil {
		fmt.Fprintf(os.Stderr, "iotexplorer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr, importPath string) error {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Component("main")
	if path != "" {
		log.Info().Str("path", path).Msg("Loaded config")
	} else {
		log.Info().Msg("No config file found, using defaults")
	}
	log.Info().Msg(cfg.Summary())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := loadDescriptorTable(cfg.DeviceTypes.Path)
	if err != nil {
		return err
	}
	log.Info().Strs("types", table.Types()).Msg("Device types loaded")

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()
	log.Info().Str("path", cfg.Database.Path).Msg("Database opened")

	if importPath != "" {
		if err := importDevices(ctx, repo, importPath); err != nil {
			return err
		}
		log.Info().Str("path", importPath).Msg("Imported device list")
	}

	// Event bus feeds the SSE hub and optional sinks
	eventBus := service.NewEventBus()

	sseHub := hub.New(logger.Component("hub"))
	go sseHub.Run(ctx)
	hubEvents := subscribe(eventBus, 100)
	go hub.Forward(ctx, sseHub, hubEvents)

	caps := bootstrap.Run(ctx, bootstrap.Options{
		ARPTable:   cfg.Resolver.ARPTable,
		ARPCommand: cfg.Resolver.ARPCommand,
		NmapBinary: cfg.Resolver.Nmap.Binary,
		CheckNmap:  cfg.Resolver.Nmap.Enabled,
	}, logger.Component("bootstrap")).Capabilities

	scanner := adapter.NewBroadcastScanner(adapter.ScannerConfig{
		Port:       cfg.Discovery.Port,
		Timeout:    cfg.Discovery.Timeout.Duration(),
		Interfaces: cfg.Discovery.Interfaces,
		Targets:    cfg.Discovery.Targets,
	}, logger.Component("scanner"))
	scanner.SetEventPublisher(eventBus)

	resolver := adapter.NewDefaultResolver(resolverConfig(ctx, cfg.Resolver, caps), logger.Component("resolver"))

	fetcher := adapter.NewDescriptorFetcher(adapter.FetcherConfig{
		Port:    cfg.Control.Port,
		Timeout: cfg.Control.FetchTimeout.Duration(),
	}, logger.Component("fetcher"))

	registry := service.NewRegistry(cfg.Control.Port)
	executor := service.NewExecutor(registry, table, cfg.Control.CommandTimeout.Duration(), eventBus, logger.Component("executor"))

	coordinator := service.NewCoordinator(service.CoordinatorConfig{
		BaseInterval:    cfg.Coordinator.BaseInterval.Duration(),
		FastInterval:    cfg.Coordinator.FastInterval.Duration(),
		MissedThreshold: cfg.Coordinator.MissedThreshold,
		MaxConcurrent:   cfg.Coordinator.MaxConcurrent,
		ScanTimeout:     cfg.Discovery.Timeout.Duration(),
		PollStatus:      cfg.Coordinator.StatusPolling(),
	}, scanner, resolver, fetcher, registry, executor, repo, eventBus, logger.Component("coordinator"))

	if _, err := coordinator.Seed(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to seed registry from store")
	}

	if cfg.DeviceTypes.Path != "" && cfg.DeviceTypes.Watch {
		go func() {
			err := watcher.WatchDescriptors(ctx, cfg.DeviceTypes.Path, executor.SetDescriptorTable, logger.Component("watcher"))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Device types watcher stopped")
			}
		}()
	}

	startSinks(ctx, cfg, eventBus, log)

	coordinatorDone := make(chan struct{})
	go func() {
		defer close(coordinatorDone)
		if err := coordinator.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Coordinator stopped with error")
		}
	}()

	mux := http.NewServeMux()
	handler.NewDeviceHandler(coordinator, registry, executor, logger.Component("api")).Register(mux)
	mux.Handle("GET /events", sseHub)

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: handler.Chain(mux,
			handler.Recover(logger.Component("http")),
			handler.CORS,
			handler.Logger(logger.Component("http")),
		),
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration(),
		IdleTimeout:  cfg.HTTP.IdleTimeout.Duration(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		stop()
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	<-coordinatorDone

	// Waits for any manual tick still running, then saves the final state
	// before the deferred repo.Close.
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPersist()
	if err := coordinator.Persist(persistCtx); err != nil {
		log.Error().Err(err).Msg("Failed to save devices on shutdown")
	}

	if serveErr != nil {
		return fmt.Errorf("server: %w", serveErr)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func loadDescriptorTable(path string) (domain.DescriptorTable, error) {
	if path == "" {
		return domain.DefaultDescriptorTable(), nil
	}
	table, err := codec.LoadDescriptorFile(path)
	if err != nil {
		return nil, fmt.Errorf("load device types: %w", err)
	}
	return table, nil
}

func importDevices(ctx context.Context, repo *sqlite.Repository, path string) error {
	devices, err := codec.LoadDeviceFile(path)
	if err != nil {
		return fmt.Errorf("import devices: %w", err)
	}
	return repo.SaveDevices(ctx, devices)
}

// resolverConfig drops stages the host cannot run
func resolverConfig(ctx context.Context, cfg config.ResolverConfig, caps bootstrap.Capabilities) adapter.ResolverConfig {
	rc := adapter.ResolverConfig{
		TablePath:   cfg.ARPTable,
		ARPCommand:  cfg.ARPCommand,
		Ping:        cfg.PingEnabled() && caps.ICMP,
		PingTimeout: cfg.PingTimeout.Duration(),
	}

	if cfg.Nmap.Enabled && caps.Nmap {
		opts := []adapter.NmapOption{adapter.WithTimeout(cfg.Nmap.Timeout.Duration())}
		if cfg.Nmap.Binary != "" {
			opts = append(opts, adapter.WithBinaryPath(cfg.Nmap.Binary))
		}
		prober := adapter.NewNmapProber(logger.Component("nmap"), opts...)
		if prober.Available(ctx) {
			rc.Nmap = prober
		}
	}

	return rc
}

func subscribe(bus *service.EventBus, size int) <-chan service.Event {
	ch := make(chan service.Event, size)
	bus.Subscribe(ch)
	return ch
}

// startSinks connects the optional MQTT and InfluxDB mirrors. A sink that
// cannot connect is logged and skipped.
func startSinks(ctx context.Context, cfg *config.Config, bus *service.EventBus, log zerolog.Logger) {
	if cfg.MQTT.Enabled {
		publisher, err := mqtt.Connect(cfg.MQTT, logger.Component("mqtt"))
		if err != nil {
			log.Error().Err(err).Msg("MQTT disabled")
		} else {
			go func() {
				publisher.Run(ctx, subscribe(bus, 256))
				_ = publisher.Close()
			}()
		}
	}

	if cfg.InfluxDB.Enabled {
		recorder, err := influxdb.Connect(ctx, cfg.InfluxDB, logger.Component("influxdb"))
		if err != nil {
			log.Error().Err(err).Msg("InfluxDB disabled")
		} else {
			go func() {
				recorder.Run(ctx, subscribe(bus, 256))
				_ = recorder.Close()
			}()
		}
	}
}
