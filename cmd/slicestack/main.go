package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"slicestack/pkg/config"
	"slicestack/pkg/ingest"
	"slicestack/pkg/logger"
	"slicestack/pkg/manifest"
	"slicestack/pkg/metrics"
	"slicestack/pkg/visualization"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Get().Error(ctx, "slicestack failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("slicestack", flag.ContinueOnError)
	inputDir := fs.String("input", "", "Directory containing DICOM slice files")
	configPath := fs.String("config", "", "YAML configuration file")
	initConfig := fs.String("init-config", "", "Write a default configuration file to this path and exit")
	workers := fs.Int("workers", 0, "Concurrent decodes (default: from config)")
	manifestPath := fs.String("manifest", "", "Write the ordering manifest to this YAML file")
	previewDir := fs.String("preview", "", "Write windowed JPEG frames to this directory")
	metricsPath := fs.String("metrics", "", "Write Prometheus metrics to this textfile")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	timeout := fs.Duration("timeout", 0, "Abort the batch after this long (0: no limit)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Default configuration written to: %s\n", *initConfig)
		return nil
	}

	if *inputDir == "" {
		fs.Usage()
		return fmt.Errorf("-input is required")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	// Flags win over file and environment
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Ingest.Workers = *workers
		case "manifest":
			cfg.Output.ManifestPath = *manifestPath
		case "preview":
			cfg.Output.PreviewDir = *previewDir
		case "metrics":
			cfg.Output.MetricsPath = *metricsPath
		case "log-level":
			cfg.Output.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(cfg.Output.LogLevel); err != nil {
		return err
	}
	log := logger.Named("slicestack")

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	mgr := metrics.NewManager()
	params := &ingest.Params{
		InputDir:   *inputDir,
		Workers:    cfg.Ingest.Workers,
		Extensions: cfg.Ingest.Extensions,
		SkipHidden: cfg.Ingest.SkipHidden,
	}
	pipeline := ingest.NewPipeline(params,
		ingest.WithLogger(logger.Named("ingest")),
		ingest.WithMetrics(mgr),
	)

	batch, err := pipeline.Process(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%d files loaded, %d invalid/malformed files filtered\n",
		len(batch.Stack.Slices), batch.Stack.Rejected)
	if sp := batch.Summary.Spacing; sp != nil {
		fmt.Fprintf(stdout, "Slice spacing along %s: %.3f mm (uniform: %v)\n", sp.Key, sp.Mean, sp.Uniform)
	}
	fmt.Fprintf(stdout, "Batch %s ordered in %s\n", batch.ID, batch.Duration.Round(time.Millisecond))

	if path := cfg.Output.ManifestPath; path != "" {
		if err := manifest.Write(path, manifest.FromBatch(batch)); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Manifest saved to: %s\n", path)
	}

	if dir := cfg.Output.PreviewDir; dir != "" {
		window := visualization.Window{Center: cfg.Display.WindowCenter, Width: cfg.Display.WindowWidth}
		opts := []visualization.ViewerOption{visualization.WithScale(cfg.Display.PreviewScale)}
		if cfg.Display.Labels {
			opts = append(opts, visualization.WithLabels())
		}
		viewer := visualization.NewViewer(batch.Stack, window, opts...)
		if err := viewer.SaveFrameSequence(dir); err != nil {
			log.Warn(ctx, "failed to save previews", logger.String("dir", dir), logger.Error(err))
		} else {
			fmt.Fprintf(stdout, "Previews saved to: %s\n", filepath.Clean(dir))
		}
	}

	if path := cfg.Output.MetricsPath; path != "" {
		if err := mgr.WriteTextfile(path); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Metrics saved to: %s\n", path)
	}

	return nil
}
