package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-gauntlet/internal/aggregation"
	"github.com/ahrav/go-gauntlet/internal/coordinator"
	"github.com/ahrav/go-gauntlet/internal/domain"
	"github.com/ahrav/go-gauntlet/internal/llm"
	"github.com/ahrav/go-gauntlet/internal/scoring"
	"github.com/ahrav/go-gauntlet/internal/service"
	"github.com/ahrav/go-gauntlet/internal/storage"
)

var (
	flagCase    string
	flagTargets []string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate one test case against model targets",
		RunE:  runEvaluation,
	}
	cmd.Flags().StringVar(&flagCase, "case", "", "test case id to evaluate")
	cmd.Flags().StringSliceVar(&flagTargets, "target", nil, "target ids to evaluate (default: all)")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

// app bundles the assembled evaluation stack for CLI commands.
type app struct {
	svc     *service.Service
	coord   *coordinator.Coordinator
	cases   []*domain.TestCase
	targets []*domain.ModelTarget
}

// buildApp loads configuration and catalogs, assembles the stack, and
// starts the worker pool.
func buildApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	cases, err := loadCases(casesFile)
	if err != nil {
		return nil, err
	}
	targets, err := loadTargets(targetsFile)
	if err != nil {
		return nil, err
	}

	store := storage.NewMemoryStore()
	client, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	scorer := scoring.NewScorer(client)
	agg := aggregation.New(store, logger)
	if err := agg.Restore(ctx); err != nil {
		return nil, err
	}
	coord := coordinator.New(cfg.Coordinator, cfg.LLM.Retry, store, client, scorer, agg, logger)
	svc := service.New(store, coord, agg, logger)

	for _, tc := range cases {
		if err := svc.RegisterTestCase(ctx, tc); err != nil {
			return nil, err
		}
	}
	for _, target := range targets {
		if err := svc.RegisterTarget(ctx, target); err != nil {
			return nil, err
		}
	}

	coord.Start(ctx)
	return &app{svc: svc, coord: coord, cases: cases, targets: targets}, nil
}

// targetIDs resolves the --target selection, defaulting to the whole
// catalog.
func (a *app) targetIDs() []string {
	if len(flagTargets) > 0 {
		return flagTargets
	}
	ids := make([]string, 0, len(a.targets))
	for _, t := range a.targets {
		ids = append(ids, t.ID)
	}
	return ids
}

func runEvaluation(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.coord.Stop()

	runID, err := a.svc.SubmitRun(ctx, flagCase, a.targetIDs())
	if err != nil {
		return err
	}
	fmt.Printf("Run %s submitted\n", runID)

	run, err := a.svc.WaitForRun(ctx, runID)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted: request cancellation and report what finished.
			if cancelErr := a.svc.CancelRun(context.Background(), runID); cancelErr != nil {
				logger.Warn("cancellation failed", "run_id", runID, "error", cancelErr)
			}
			if status, statusErr := a.svc.GetRunStatus(context.Background(), runID); statusErr == nil {
				run = status.Run
			}
		} else {
			return err
		}
	}

	printRun(run)
	results, err := a.svc.ListResults(context.Background(), runID)
	if err != nil {
		return err
	}
	printResults(results)

	if degraded := a.svc.DegradedProviders(); len(degraded) > 0 {
		fmt.Printf("\nDegraded providers (auth failures): %v\n", degraded)
	}
	return nil
}

func printRun(run *domain.Run) {
	if run == nil {
		return
	}
	fmt.Printf("\nRun %s: %s (%d/%d tasks", run.ID, run.Status, run.CompletedTasks, run.TotalTasks)
	fmt.Printf(", passed %d, failed %d, errored %d)\n",
		run.SucceededTasks, run.FailedTasks, run.ErroredTasks)
	if run.Summary != nil {
		fmt.Printf("Mean score %.3f, mean latency %.0fms, total cost $%.4f\n",
			run.Summary.MeanScore, run.Summary.MeanLatencyMs, run.Summary.TotalCost)
	}
}

func printResults(results []*domain.EvaluationResult) {
	for _, r := range results {
		score := "-"
		if r.Score != nil {
			score = fmt.Sprintf("%.3f", *r.Score)
		}
		fmt.Printf("  %-24s %-8s score=%-6s attempts=%d latency=%dms",
			r.ModelID, r.Verdict, score, r.Attempts, r.LatencyMs)
		if r.Diagnostic != "" {
			fmt.Printf("  (%s)", r.Diagnostic)
		}
		fmt.Println()
	}
}
