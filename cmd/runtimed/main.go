package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/api/http"
	"github.com/tembedos/runtime/internal/app"
	"github.com/tembedos/runtime/internal/bridge"
	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/hal/sim"
	"github.com/tembedos/runtime/internal/infrastructure/config"
	"github.com/tembedos/runtime/internal/infrastructure/logging"
	"github.com/tembedos/runtime/internal/infrastructure/monitoring"
	"github.com/tembedos/runtime/internal/installer"
	"github.com/tembedos/runtime/internal/permissions"
	"github.com/tembedos/runtime/internal/sandbox"
)

func main() {
	port := flag.String("port", "", "HTTP port (overrides PORT)")
	appsRoot := flag.String("apps", "", "app install root (overrides APPS_ROOT)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *appsRoot != "" {
		cfg.Apps.Root = *appsRoot
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics()

	store, err := permissions.NewStore(cfg.Apps.PermissionsPath, logger)
	if err != nil {
		logger.Fatal("Failed to open permission store", zap.Error(err))
	}

	eng := engine.New(engine.Config{
		MaxContexts:        cfg.Engine.MaxSandboxes,
		DefaultMemoryLimit: cfg.Engine.DefaultMemoryLimit,
		DefaultTimeLimit:   cfg.Engine.DefaultTimeLimit(),
	}, logger)

	devices := bridge.Devices{
		Radio:    sim.NewRadio(logger),
		GPIO:     sim.NewGPIO(),
		Display:  sim.NewDisplay(logger),
		Storage:  sim.NewStorage(),
		Network:  sim.NewNetwork(),
		Notifier: sim.NewNotifier(logger),
	}

	natives := bridge.New(store, devices, logger, metrics)
	sandboxes := sandbox.NewManager(eng, natives, store,
		cfg.Engine.MaxSandboxes, cfg.Engine.DefaultMemoryLimit, cfg.Engine.DefaultTimeLimit(),
		logger, metrics)
	inst := installer.New(cfg.Engine.DefaultMemoryLimit, logger)
	apps := app.NewManager(inst, sandboxes, store, cfg.Apps.Root, cfg.Apps.MaxApps, logger, metrics)
	eng.SetErrorCallback(apps.HandleScriptError)

	srv := http.NewServer(cfg, apps, sandboxes, metrics, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutting down gracefully")
		apps.Close()
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	case err := <-errChan:
		logger.Fatal("Server error", zap.Error(err))
	}
}
