package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/yegors/planereports/internal/config"
	"github.com/yegors/planereports/internal/processing"
	"github.com/yegors/planereports/internal/storage/sqlite"
	"github.com/yegors/planereports/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"load", "import a recorded feed archive into the reports table", runLoad},
	{"airports", "import airport and runway reference data", runAirports},
	{"dedupe", "remove duplicate reports", stageCommand("dedup")},
	{"clean", "remove outlier reports", stageCommand("outlier")},
	{"events", "detect runway events", stageCommand("events")},
	{"run", "dedupe, clean and detect events in one pass", stageCommand("all")},
	{"export", "write reports to a feed archive", runExport},
	{"serve", "serve the HTTP API and event stream", runServe},
}

// environment holds what every command needs
type environment struct {
	cfg        *config.Config
	log        *logger.Logger
	store      *sqlite.Store
	processing *processing.Service
}

func usage() {
	fmt.Fprintf(os.Stderr, "planereports %s\n\nUsage: planereports <command> [flags]\n\nCommands:\n", Version)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'planereports <command> -h' for the flags of a command.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		if name != "-h" && name != "--help" && name != "help" {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		}
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.name, err)
		os.Exit(1)
	}
}

// setup loads the configuration, then creates the logger and storage
func setup(configPath string) (*environment, error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %w", err)
	}

	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := sqlite.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	engineCfg, err := cfg.EngineConfig(0)
	if err != nil {
		store.Close()
		return nil, err
	}

	svc := processing.NewService(store, engineCfg, cfg.Airport.ICAO, cfg.Storage.PageSize, log)
	if cfg.Reporter.Latitude != 0 || cfg.Reporter.Longitude != 0 {
		svc.SetReceiver(cfg.Reporter.Latitude, cfg.Reporter.Longitude)
	}

	return &environment{
		cfg:        cfg,
		log:        log,
		store:      store,
		processing: svc,
	}, nil
}

func (env *environment) close() {
	if err := env.store.Close(); err != nil {
		env.log.Error("Failed to close database", logger.Error(err))
	}
	env.log.Sync()
}
