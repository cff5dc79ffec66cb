package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	app "github.com/okian/elorank/internal/app"
	"github.com/okian/elorank/internal/config"
	"github.com/okian/elorank/internal/simulate"
	"github.com/okian/elorank/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := simulate.DefaultConfig()
	var (
		inProcess bool
		output    string
		runFor    time.Duration
		exp       exportOptions
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive elorank with synthetic judges",
		Long: "Registers collections of items with hidden strengths, judges the matchups the\n" +
			"service proposes the way a noisy listener would, and reports how closely the\n" +
			"resulting standings follow the hidden order.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), runFor)
			defer cancel()

			report, err := execute(ctx, cfg, inProcess, exp)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
			if output != "" {
				return renameio.WriteFile(output, append(data, '\n'), 0o644)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.IntVar(&cfg.Collections, "collections", cfg.Collections, "number of collections to simulate")
	f.IntVar(&cfg.Items, "items", cfg.Items, "items per collection")
	f.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "judgments per collection")
	f.IntVar(&cfg.Checkpoint, "checkpoint", cfg.Checkpoint, "rounds between progress samples")
	f.Float64Var(&cfg.Spread, "spread", cfg.Spread, "standard deviation of hidden strengths")
	f.Float64Var(&cfg.TieBand, "tie-band", cfg.TieBand, "probability band judged as a tie")
	f.Float64Var(&cfg.Scale, "scale", cfg.Scale, "logistic spread of the judges")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed (0 uses the clock)")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "collections simulated concurrently")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log every checkpoint")
	f.BoolVar(&inProcess, "inprocess", false, "run against an in-process service instead of --url")
	f.StringVarP(&output, "output", "o", "", "write the JSON report to a file instead of stdout")
	f.DurationVar(&runFor, "deadline", defaultRunTimeout, "abort the whole run after this long")
	f.BoolVar(&exp.enabled, "export", false, "save each collection's sorted standings after the run")
	f.StringVar(&exp.dir, "export-dir", "data/exports", "directory for --export in --inprocess mode (the server picks its own)")

	return cmd
}

// exportOptions controls saving standings once the run is over.
type exportOptions struct {
	enabled bool
	dir     string
}

// execute runs the simulation against a remote or in-process service.
func execute(ctx context.Context, cfg simulate.Config, inProcess bool, exp exportOptions) (simulate.Report, error) {
	log := logger.Named("simulate")
	if !inProcess {
		client := simulate.NewHTTPClient(cfg.BaseURL, cfg.Timeout)
		if err := client.CheckHealth(ctx); err != nil {
			return simulate.Report{}, fmt.Errorf("service at %s is not healthy: %w", cfg.BaseURL, err)
		}
		report, err := simulate.Run(ctx, cfg, client, log)
		if err != nil {
			return report, err
		}
		return report, exportReport(ctx, log, client, report, exp)
	}

	svcCfg := config.New()
	svc := app.New(append(app.OptionsFromConfig(svcCfg), app.WithLogger(log.Named("service")))...)
	if err := svc.Start(ctx); err != nil {
		return simulate.Report{}, err
	}
	defer svc.Stop()
	engine := simulate.NewInProcess(svc, simulate.WithExportDir(exp.dir))
	report, err := simulate.Run(ctx, cfg, engine, log)
	if err != nil {
		return report, err
	}
	return report, exportReport(ctx, log, engine, report, exp)
}

func exportReport(ctx context.Context, log logger.Logger, e simulate.Exporter, report simulate.Report, exp exportOptions) error {
	if !exp.enabled {
		return nil
	}
	paths, err := simulate.ExportAll(ctx, e, report)
	if err != nil {
		return err
	}
	for _, p := range paths {
		log.Info(ctx, "standings exported", logger.String("path", p))
	}
	return nil
}
