package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-gauntlet/internal/aggregation"
)

var (
	flagCategory string
	flagMinEvals int64
	flagLimit    int
)

func newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Evaluate every test case and rank the targets",
		RunE:  runLeaderboard,
	}
	cmd.Flags().StringVar(&flagCategory, "category", "", "restrict to one test case category")
	cmd.Flags().Int64Var(&flagMinEvals, "min-evals", 1, "minimum scored evaluations to rank a model")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum entries to print (0 = all)")
	return cmd
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.coord.Stop()

	targetIDs := a.targetIDs()
	var runIDs []string
	for _, tc := range a.cases {
		if flagCategory != "" && tc.Category != flagCategory {
			continue
		}
		runID, err := a.svc.SubmitRun(ctx, tc.ID, targetIDs)
		if err != nil {
			return fmt.Errorf("case %s: %w", tc.ID, err)
		}
		runIDs = append(runIDs, runID)
	}
	if len(runIDs) == 0 {
		return fmt.Errorf("no test cases matched")
	}
	fmt.Printf("Submitted %d runs across %d targets\n", len(runIDs), len(targetIDs))

	for _, runID := range runIDs {
		if _, err := a.svc.WaitForRun(ctx, runID); err != nil {
			if ctx.Err() != nil {
				if cancelErr := a.svc.CancelRun(context.Background(), runID); cancelErr != nil {
					logger.Warn("cancellation failed", "run_id", runID, "error", cancelErr)
				}
				continue
			}
			return err
		}
	}

	entries := a.svc.Leaderboard(aggregation.LeaderboardQuery{
		Category:       flagCategory,
		MinEvaluations: flagMinEvals,
		Limit:          flagLimit,
	})
	printLeaderboard(entries)

	if degraded := a.svc.DegradedProviders(); len(degraded) > 0 {
		fmt.Printf("\nDegraded providers (auth failures): %v\n", degraded)
	}
	return nil
}

func printLeaderboard(entries []aggregation.LeaderboardEntry) {
	if len(entries) == 0 {
		fmt.Println("No models met the evaluation cutoff")
		return
	}
	fmt.Printf("\n%-5s %-28s %8s %10s %10s %12s %12s\n",
		"RANK", "MODEL", "EVALS", "SCORE", "PASS", "LATENCY", "P95")
	for _, e := range entries {
		fmt.Printf("%-5d %-28s %8d %10.3f %9.1f%% %10.0fms %10.0fms\n",
			e.Rank, e.ModelID, e.Evaluations, e.MeanScore,
			e.PassRate*100, e.MeanLatencyMs, e.P95LatencyMs)
	}
}
