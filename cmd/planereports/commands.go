package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/yegors/planereports/internal/api"
	"github.com/yegors/planereports/internal/processing"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/internal/websocket"
	"github.com/yegors/planereports/pkg/logger"
)

// windowFlags are the flags shared by commands working on a time window
type windowFlags struct {
	config      *string
	start       *string
	end         *string
	reporter    *string
	minDistance *float64
	maxDistance *float64
	list        *bool
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	return fs, configPath
}

func addWindowFlags(fs *flag.FlagSet, configPath *string) *windowFlags {
	return &windowFlags{
		config:      configPath,
		start:       fs.String("start", "", "Start of the window: epoch seconds, YYYY-MM-DD or RFC 3339 (default: beginning of data)"),
		end:         fs.String("end", "", "End of the window, exclusive (default: end of data)"),
		reporter:    fs.String("reporter", "", "Only process reports from this reporter"),
		minDistance: fs.Float64("min-distance", 0, "Only process reports at least this many metres from the receiver"),
		maxDistance: fs.Float64("max-distance", 0, "Only process reports at most this many metres from the receiver (0 = no limit)"),
		list:        fs.Bool("list", false, "List the decisions without changing the database"),
	}
}

func (w *windowFlags) request() (processing.Request, error) {
	start, err := api.ParseTime(*w.start)
	if err != nil {
		return processing.Request{}, fmt.Errorf("invalid -start: %w", err)
	}
	end, err := api.ParseTime(*w.end)
	if err != nil {
		return processing.Request{}, fmt.Errorf("invalid -end: %w", err)
	}
	return processing.Request{
		Start:       start,
		End:         end,
		ReporterID:  *w.reporter,
		MinDistance: *w.minDistance,
		MaxDistance: *w.maxDistance,
		ListOnly:    *w.list,
	}, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stageCommand builds the dedupe, clean, events and run commands
func stageCommand(stage string) func(ctx context.Context, args []string) error {
	return func(ctx context.Context, args []string) error {
		fs, configPath := newFlagSet(stage)
		window := addWindowFlags(fs, configPath)
		if err := fs.Parse(args); err != nil {
			return err
		}

		stages, err := api.ParseStages([]string{stage})
		if err != nil {
			return err
		}
		req, err := window.request()
		if err != nil {
			return err
		}
		req.Stages = stages

		env, err := setup(*configPath)
		if err != nil {
			return err
		}
		defer env.close()

		run, err := env.processing.Execute(ctx, req)
		if err != nil {
			return err
		}

		if req.ListOnly {
			return writeJSON(os.Stdout, map[string]any{
				"duplicates": run.Result.Duplicates,
				"outliers":   run.Result.Outliers,
				"events":     run.Result.Events,
				"failures":   run.Result.Failures,
			})
		}

		res := run.Result
		fmt.Printf("%s: %d aircraft, %d reports, %d duplicates, %d outliers, %d deleted, %d events (%d new), %d rejected\n",
			run.ID, res.Aircraft, res.Reports, len(res.Duplicates), len(res.Outliers),
			run.Deleted, len(res.Events), run.EventsStored, len(res.Failures))
		return nil
	}
}

func runLoad(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("load")
	file := fs.String("file", "", "Feed archive to load (JSON lines, optionally zstd compressed)")
	reporter := fs.String("reporter", "", "Reporter stored with reports that carry none (default: [reporter] name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	env, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer env.close()

	opts := env.cfg.DecodeOptions()
	if *reporter != "" {
		opts.ReporterID = *reporter
	}

	stats, err := env.processing.ImportArchive(ctx, *file, opts)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d reports from %d documents, skipped %d\n", stats.Reports, stats.Documents, stats.Skipped)
	return nil
}

func runAirports(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("airports")
	file := fs.String("file", "", "Airport reference JSON (default: [airport] reference_file)")
	list := fs.Bool("list", false, "Print the converted airports without storing them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer env.close()

	path := *file
	if path == "" {
		path = env.cfg.Airport.ReferenceFile
	}
	if path == "" {
		return errors.New("no airport reference file given")
	}

	if *list {
		airports, err := runway.LoadFile(path, runway.LoadOptions{})
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, airports)
	}

	airports, err := env.processing.ImportAirports(ctx, path, runway.LoadOptions{})
	if err != nil {
		return err
	}
	for _, a := range airports {
		fmt.Printf("%s %s: %d runways\n", a.ICAO, a.Name, len(a.Runways))
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("export")
	window := addWindowFlags(fs, configPath)
	file := fs.String("file", "", "Archive to write, zstd compressed when the name ends in .zst")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}
	req, err := window.request()
	if err != nil {
		return err
	}

	env, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer env.close()

	n, err := env.processing.Export(ctx, *file, req)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d reports to %s\n", n, *file)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer env.close()
	log := env.log

	log.Info("Starting planereports server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.Strings("airports", env.cfg.Airport.ICAO))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wsServer := websocket.NewServer(env.cfg.Server.CORSAllowedOrigins, log)
	go wsServer.Run(ctx)

	handler := api.NewHandler(env.processing, wsServer, log)
	router := api.NewRouter(handler, env.cfg.Server.CORSAllowedOrigins, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", env.cfg.Server.Host, env.cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(env.cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(env.cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(env.cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	log.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}
	log.Info("Server fully stopped")
	return nil
}
