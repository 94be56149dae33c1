package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
	"github.com/xkilldash9x/hmi-harness/internal/bench"
	"github.com/xkilldash9x/hmi-harness/internal/results"
	"github.com/xkilldash9x/hmi-harness/internal/scenario"
)

// publishTimeout bounds report and database writes, which still happen
// after the run context has been cancelled.
const publishTimeout = 30 * time.Second

// runSaver persists finished runs.
type runSaver func(ctx context.Context, url string, runs []*schemas.RunResult, logger *zap.Logger) error

func newRunCmd(a *app) *cobra.Command {
	var devices []string
	runCmd := &cobra.Command{
		Use:   "run <scenario> [scenario...]",
		Short: "Run one or more scenarios against the configured devices",
		Long: `Run opens every configured device (or the ones given with --devices),
executes the named scenarios in order and prints a step summary for each.
The command fails when any scenario fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			scs := make([]scenario.Scenario, 0, len(args))
			for _, name := range args {
				sc, err := scenario.Lookup(name)
				if err != nil {
					return err
				}
				scs = append(scs, sc)
			}
			a.applyFlags(cmd.Flags())

			b, err := a.openBench(ctx, devices...)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Close(); err != nil {
					a.logger.Warn("Error during device shutdown.", zap.Error(err))
				}
			}()

			env := &scenario.Env{
				Sessions: b,
				Relays:   b.Relays,
				Runner:   b.Runner,
				Harness:  a.cfg.Harness(),
				Params:   a.cfg.Scenario(),
				Logger:   a.logger,
			}
			runs := make([]*schemas.RunResult, 0, len(scs))
			failed := 0
			for _, sc := range scs {
				if ctx.Err() != nil {
					break
				}
				run := scenario.Execute(ctx, sc, env)
				runs = append(runs, run)
				if !run.Passed {
					failed++
				}
				fmt.Fprint(cmd.OutOrStdout(), results.Summary(*run))
			}

			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
			defer cancel()
			if err := a.publish(pubCtx, runs); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(runs))
			}
			return nil
		},
	}

	runCmd.Flags().StringP("report", "o", "", "Write a JSON report to this path. (Overrides config/env)")
	runCmd.Flags().String("database-url", "", "Persist results to this PostgreSQL database. (Overrides config/env)")
	runCmd.Flags().Duration("char-delay", 0, "Delay between on-screen keyboard characters. (Overrides config/env)")
	runCmd.Flags().StringSliceVar(&devices, "devices", nil, "Open only these devices (default: all configured)")
	return runCmd
}

// applyFlags copies explicitly set flags over the loaded configuration.
func (a *app) applyFlags(flags *pflag.FlagSet) {
	if flags.Changed("report") {
		path, _ := flags.GetString("report")
		a.cfg.SetReportPath(path)
	}
	if flags.Changed("database-url") {
		url, _ := flags.GetString("database-url")
		a.cfg.SetDatabaseURL(url)
	}
	if flags.Changed("char-delay") {
		d, _ := flags.GetDuration("char-delay")
		a.cfg.SetCharDelay(d)
	}
}

// deviceName maps a device name given on the command line to its
// configuration key. Viper lower-cases map keys.
func deviceName(name string) string { return strings.ToLower(name) }

func (a *app) openBench(ctx context.Context, devices ...string) (*bench.Bench, error) {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = deviceName(d)
	}
	opts := append([]bench.Option{
		bench.WithLogger(a.logger),
		bench.WithDevices(names...),
	}, a.benchOpts...)
	b, err := bench.Open(ctx, a.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open devices: %w", err)
	}
	return b, nil
}

// publish writes the JSON report and stores the runs when configured.
func (a *app) publish(ctx context.Context, runs []*schemas.RunResult) error {
	if path := a.cfg.Report().Path; path != "" {
		values := make([]schemas.RunResult, len(runs))
		for i, r := range runs {
			values[i] = *r
		}
		report := results.NewReport(values, time.Now())
		if err := results.WriteReportFile(path, report, a.cfg.Report().Indent); err != nil {
			return err
		}
		a.logger.Info("Report written.", zap.String("path", path), zap.Int("runs", report.Total))
	}
	if url := a.cfg.Database().URL; url != "" && len(runs) > 0 {
		if err := a.saveRuns(ctx, url, runs, a.logger); err != nil {
			return fmt.Errorf("failed to store results: %w", err)
		}
	}
	return nil
}

func saveRunsPostgres(ctx context.Context, url string, runs []*schemas.RunResult, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	store, err := results.NewStore(ctx, pool, logger)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	for _, run := range runs {
		if err := store.SaveRun(ctx, run); err != nil {
			return err
		}
	}
	return nil
}
