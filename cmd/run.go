package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/artifacts"
	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/browser/launcher"
	"github.com/xkilldash9x/singlish-check/internal/config"
	"github.com/xkilldash9x/singlish-check/internal/corpus"
	"github.com/xkilldash9x/singlish-check/internal/invoker"
	"github.com/xkilldash9x/singlish-check/internal/observability"
	"github.com/xkilldash9x/singlish-check/internal/reporting"
	"github.com/xkilldash9x/singlish-check/internal/runner"
	"github.com/xkilldash9x/singlish-check/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	persistTimeout  = 30 * time.Second
)

var errNoDatabase = errors.New("database URL is not configured (SINGLISH_DATABASE_URL)")

// Function variables so tests can swap in the static driver and a mocked pool.
var (
	newBrowserManager = launcher.New
	openStore         = connectStore
)

type runOptions struct {
	corpusPath string
	only       []string
	tags       []string
	workers    int
	driver     string
	format     string
	output     string
	headed     bool
	noStore    bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the scenario corpus against the target page",
		Long: `Runs every selected scenario against the target page and reports the outcomes.

Strict scenarios must reproduce their expected Sinhala output. Exploratory
scenarios pass on any non-empty output or any true signal. The command exits
with status 1 when at least one scenario failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			applyRunOverrides(cmd, opts, cfg)
			return runScenarios(cmd.Context(), cmd.OutOrStdout(), cfg, opts, observability.GetLogger())
		},
	}

	runCmd.Flags().StringVar(&opts.corpusPath, "corpus", "", "Scenario corpus file. Defaults to the embedded corpus. (Overrides config/env)")
	runCmd.Flags().StringSliceVar(&opts.only, "only", nil, "Run only these scenario IDs.")
	runCmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "Run only scenarios carrying at least one of these tags.")
	runCmd.Flags().IntVarP(&opts.workers, "workers", "j", 0, "Number of parallel browser sessions. (Overrides config/env)")
	runCmd.Flags().StringVar(&opts.driver, "driver", "", "Browser driver: chromedp, rod or playwright. (Overrides config/env)")
	runCmd.Flags().StringVarP(&opts.format, "format", "f", "", "Report format: console, json or junit. (Overrides config/env)")
	runCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Report file. Defaults to stdout. (Overrides config/env)")
	runCmd.Flags().BoolVar(&opts.headed, "headed", false, "Show the browser window.")
	runCmd.Flags().BoolVar(&opts.noStore, "no-store", false, "Do not persist the run even when a database is configured.")
	return runCmd
}

func applyRunOverrides(cmd *cobra.Command, opts *runOptions, cfg config.Interface) {
	flags := cmd.Flags()
	if flags.Changed("corpus") {
		cfg.SetRunnerCorpusPath(opts.corpusPath)
	}
	if flags.Changed("workers") {
		cfg.SetRunnerWorkers(opts.workers)
	}
	if flags.Changed("driver") {
		cfg.SetBrowserDriver(opts.driver)
	}
	if flags.Changed("format") {
		cfg.SetReportFormat(opts.format)
	}
	if flags.Changed("output") {
		cfg.SetReportOutput(opts.output)
	}
	if flags.Changed("headed") {
		cfg.SetBrowserHeadless(!opts.headed)
	}
}

func loadCorpus(path string) (*corpus.Corpus, error) {
	if path == "" {
		return corpus.Default()
	}
	return corpus.LoadFile(path)
}

func runScenarios(ctx context.Context, out io.Writer, cfg config.Interface, opts *runOptions, logger *zap.Logger) error {
	if cfg.Runner().Workers <= 0 {
		return fmt.Errorf("workers must be a positive integer, got %d", cfg.Runner().Workers)
	}

	c, err := loadCorpus(cfg.Runner().CorpusPath)
	if err != nil {
		return err
	}
	c, err = c.Select(opts.only, opts.tags)
	if err != nil {
		return err
	}
	if c.Len() == 0 {
		return errors.New("no scenarios selected")
	}

	reporter, err := reporting.New(cfg.Report().Format, cfg.Report().Output, out)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Error("Failed to close reporter.", zap.Error(err))
		}
	}()

	resolver, err := browser.NewResolverFromConfig(logger, cfg.Resolver())
	if err != nil {
		return err
	}
	inv, err := invoker.New(logger, resolver, cfg.Target(), cfg.Invoker())
	if err != nil {
		return err
	}
	sink, err := artifacts.NewFileSink(cfg.Runner().ArtifactsDir)
	if err != nil {
		return err
	}

	manager, err := newBrowserManager(ctx, logger, cfg.Browser())
	if err != nil {
		return fmt.Errorf("failed to initialize browser manager: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		}
	}()

	strict, exploratory := c.Counts()
	logger.Info("Running scenarios.",
		zap.Int("strict", strict),
		zap.Int("exploratory", exploratory),
		zap.String("driver", cfg.Browser().Driver),
		zap.String("target", cfg.Target().URL),
	)

	r := runner.New(logger, manager, inv, runner.Options{
		Workers:         cfg.Runner().Workers,
		ScenarioTimeout: cfg.Runner().ScenarioTimeout,
		Pace:            cfg.Runner().Pace,
		Threshold:       cfg.Match().Threshold,
		Target:          resolver.Target(),
		Sink:            sink,
		TargetURL:       cfg.Target().URL,
		Driver:          cfg.Browser().Driver,
	})
	report, runErr := r.Run(ctx, c)

	if err := reporter.Write(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if !opts.noStore {
		persistReport(ctx, cfg.Database(), report, logger)
	}

	if runErr != nil {
		return runErr
	}
	if report.Failed() {
		return &ExitError{Code: 1}
	}
	return nil
}

// persistReport stores the report when a database is configured. Storage
// failures are logged and never change the run result.
func persistReport(ctx context.Context, dbCfg config.DatabaseConfig, report *runner.Report, logger *zap.Logger) {
	if dbCfg.URL == "" {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	st, cleanup, err := openStore(pctx, dbCfg, logger)
	if err != nil {
		logger.Error("Failed to open run store.", zap.Error(err))
		return
	}
	defer cleanup()

	if err := st.PersistRun(pctx, report); err != nil {
		logger.Error("Failed to persist run.", zap.String("run_id", report.RunID), zap.Error(err))
	}
}

// connectStore opens a pool, verifies it and applies the schema.
func connectStore(ctx context.Context, dbCfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, func(), error) {
	if dbCfg.URL == "" {
		return nil, nil, errNoDatabase
	}
	pool, err := pgxpool.New(ctx, dbCfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}
