package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/MimeLyc/contextual-book-translator/internal/config"
	"github.com/MimeLyc/contextual-book-translator/internal/input"
	"github.com/MimeLyc/contextual-book-translator/internal/persistence"
	"github.com/MimeLyc/contextual-book-translator/internal/service"
	"github.com/MimeLyc/contextual-book-translator/pkg/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	schedule   string
	logLevel   string
	outputDir  string
	cacheDir   string
	envFile    string
	logFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "booktrans [flags] <file.epub...|list.txt>",
		Short: "Translate EPUB chapters with an LLM, resuming from a per-book cache",
		Long: `booktrans extracts the body chapters of each EPUB, translates every
chapter that has no cached translation and writes finished books to the
output directory as JSON.

Finished chapters are cached as soon as they are translated, so an
interrupted run picks up where it stopped. Cache records for books that are
no longer listed are removed at the start of each run.

A single .txt argument is read as a manifest with one .epub path per line.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: $CONFIG_FILE or ./config.yaml)")
	flags.StringVar(&opts.schedule, "schedule", "", `re-run on a cron schedule, e.g. "0 3 * * *" (overrides CRON_EXPR)`)
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	flags.StringVar(&opts.outputDir, "output", "", "output directory (overrides output_directory)")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "translation cache directory (overrides CACHE_DIR)")
	flags.StringVar(&opts.logFile, "log-file", "", "append logs to this file instead of stdout")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	return cmd
}

func run(cmd *cobra.Command, opts *rootOptions, args []string) error {
	ctx := cmd.Context()

	// A missing .env is fine; variables may come from the real environment.
	_ = godotenv.Load(opts.envFile)

	var options []config.Option
	if opts.schedule != "" {
		options = append(options, config.WithCronExpr(opts.schedule))
	}
	if opts.logLevel != "" {
		options = append(options, config.WithLogLevel(opts.logLevel))
	}
	if opts.outputDir != "" {
		options = append(options, config.WithOutputDir(opts.outputDir))
	}
	if opts.cacheDir != "" {
		options = append(options, config.WithCacheDir(opts.cacheDir))
	}

	cfg, err := config.Load(opts.configFile, options...)
	if err != nil {
		return service.WrapError(err, service.ErrConfig, "load configuration")
	}
	level := log.ParseLevel(cfg.Log.Level)
	if opts.logFile != "" {
		fileLogger, err := log.NewFileLogger(opts.logFile, level)
		if err != nil {
			return service.WrapError(err, service.ErrConfig, "open log file")
		}
		defer fileLogger.Close()
		log.SetLogger(fileLogger.Logger)
	} else {
		log.InitLogger(level)
	}
	logger := log.GetLogger()

	// Resolve once up front so bad arguments fail before anything else.
	if _, err := input.Resolve(args); err != nil {
		return service.WrapError(err, service.ErrInput, "resolve input")
	}

	tr, err := service.NewTranslator(cfg.LLM)
	if err != nil {
		return err
	}

	store, err := persistence.Open(cfg.Storage.CacheBackend, cfg.Storage.CacheDir, logger)
	if err != nil {
		return service.WrapError(err, service.ErrCache, "open cache").WithContext("dir", cfg.Storage.CacheDir)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close cache: %v", err)
		}
	}()

	pipeline := service.NewPipeline(cfg, store, tr, service.NewJSONExporter(cfg.Storage.OutputDir), logger)
	runOnce := func(ctx context.Context) error {
		// The manifest is re-read on every run.
		sources, err := input.Resolve(args)
		if err != nil {
			return service.WrapError(err, service.ErrInput, "resolve input")
		}
		report, err := pipeline.Run(ctx, sources)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report)
		return nil
	}

	if cfg.Translate.CronExpr == "" {
		return runOnce(ctx)
	}

	scheduler := service.NewScheduler(cfg.Translate.CronExpr, runOnce, logger)
	logger.Info("running once before handing over to schedule %q", cfg.Translate.CronExpr)
	if _, err := scheduler.Trigger(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		service.NewDefaultErrorHandler(logger).Handle(err)
	}
	return scheduler.Schedule(ctx)
}
