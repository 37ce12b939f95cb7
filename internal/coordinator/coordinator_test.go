package coordinator

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-gauntlet/internal/domain"
	"github.com/ahrav/go-gauntlet/internal/llm"
	"github.com/ahrav/go-gauntlet/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
	"github.com/ahrav/go-gauntlet/internal/llm/transport"
	"github.com/ahrav/go-gauntlet/internal/scoring"
	"github.com/ahrav/go-gauntlet/internal/storage"
)

// countingSink records ingested results for assertions.
type countingSink struct {
	mu      sync.Mutex
	results []*domain.EvaluationResult
}

func (s *countingSink) Ingest(result *domain.EvaluationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func testRetryConfig() configuration.RetryConfig {
	return configuration.RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func testCoordConfig() Config {
	return Config{
		Workers:         2,
		QueueSize:       16,
		MaxAttempts:     3,
		AttemptTimeout:  time.Second,
		RequeueDelay:    time.Millisecond,
		MaxRequeueDelay: 2 * time.Millisecond,
		MaxOutputTokens: 64,
	}
}

// newEnv seeds a store with one exact_match case and the given targets,
// then builds a coordinator over the fake transport handler.
func newEnv(t *testing.T, handler transport.HandlerFunc, targetIDs ...string) (*Coordinator, *storage.MemoryStore, *countingSink) {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	require.NoError(t, store.PutTestCase(ctx, &domain.TestCase{
		ID:       "tc-1",
		Category: "arithmetic",
		Prompt:   "What is 6 times 7?",
		Strategy: domain.StrategyExactMatch,
		Expected: "42",
	}))
	for _, id := range targetIDs {
		require.NoError(t, store.PutTarget(ctx, &domain.ModelTarget{
			ID:       id,
			Provider: "openai",
			Model:    "model-" + id,
		}))
	}

	client := llm.NewWithHandler(handler)
	sink := &countingSink{}
	coord := New(testCoordConfig(), testRetryConfig(), store, client,
		scoring.NewScorer(client), sink, nil)
	coord.Start(ctx)
	t.Cleanup(coord.Stop)
	return coord, store, sink
}

// waitTerminal polls until the run reaches a terminal status.
func waitTerminal(t *testing.T, store *storage.MemoryStore, runID string) *domain.Run {
	t.Helper()
	require.Eventually(t, func() bool {
		run, err := store.GetRun(context.Background(), runID)
		return err == nil && run.Status.Terminal()
	}, 5*time.Second, 2*time.Millisecond)

	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	return run
}

func succeedWith(content string) transport.HandlerFunc {
	return func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{
			Content:   content,
			LatencyMs: 10,
			Usage:     transport.NormalizedUsage{PromptTokens: 8, CompletionTokens: 2, TotalTokens: 10},
		}, nil
	}
}

func TestCoordinator_AllTasksPass(t *testing.T) {
	coord, store, sink := newEnv(t, succeedWith("42"), "t1", "t2", "t3")

	runID, err := coord.SubmitRun(context.Background(), "tc-1", []string{"t1", "t2", "t3"})
	require.NoError(t, err)

	run := waitTerminal(t, store, runID)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 3, run.CompletedTasks)
	assert.Equal(t, 3, run.SucceededTasks)
	assert.Zero(t, run.FailedTasks)
	assert.Zero(t, run.ErroredTasks)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 1.0, run.Summary.MeanScore)

	// Every task produced exactly one result, and each reached the sink.
	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 3, sink.count())
	for _, r := range results {
		assert.Equal(t, domain.VerdictPassed, r.Verdict)
		assert.Equal(t, 1, r.Attempts)
		assert.Equal(t, "arithmetic", r.Category)
	}

	tasks, err := store.ListTasks(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.Equal(t, domain.TaskPassed, task.Status)
	}
}

func TestCoordinator_WrongAnswerIsFailedNotError(t *testing.T) {
	coord, store, _ := newEnv(t, succeedWith("43"), "t1")

	runID, err := coord.SubmitRun(context.Background(), "tc-1", []string{"t1"})
	require.NoError(t, err)

	run := waitTerminal(t, store, runID)
	// A wrong answer is a completed evaluation, not a partial failure.
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 1, run.FailedTasks)

	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.VerdictFailed, results[0].Verdict)
	assert.NotEmpty(t, results[0].Diagnostic)
}

func TestCoordinator_RetriesTransientErrorsWithinBudget(t *testing.T) {
	var calls atomic.Int32
	handler := func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if calls.Add(1) <= 2 {
			return nil, &llmerrors.ProviderError{
				Provider: "openai", StatusCode: 429,
				Message: "slow down", Type: llmerrors.ErrorTypeRateLimit,
			}
		}
		return &transport.Response{Content: "42", LatencyMs: 5}, nil
	}
	coord, store, _ := newEnv(t, handler, "t1")

	runID, err := coord.SubmitRun(context.Background(), "tc-1", []string{"t1"})
	require.NoError(t, err)

	run := waitTerminal(t, store, runID)
	assert.Equal(t, domain.RunCompleted, run.Status)

	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.VerdictPassed, results[0].Verdict)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCoordinator_ExhaustedBudgetIsError(t *testing.T) {
	var calls atomic.Int32
	handler := func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return nil, &llmerrors.ProviderError{
			Provider: "openai", StatusCode: 503,
			Message: "unavailable", Type: llmerrors.ErrorTypeProvider,
		}
	}
	coord, store, _ := newEnv(t, handler, "t1")

	runID, err := coord.SubmitRun(context.Background(), "tc-1", []string{"t1"})
	require.NoError(t, err)

	run := waitTerminal(t, store, runID)
	assert.Equal(t, domain.RunPartiallyFailed, run.Status)
	assert.Equal(t, 1, run.ErroredTasks)
	assert.Equal(t, int32(3), calls.Load())

	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.VerdictError, results[0].Verdict)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Nil(t, results[0].Score)
}

func TestCoordinator_AuthFailureIsImmediateAndDegradesProvider(t *testing.T) {
	var calls atomic.Int32
	handler := func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return nil, &llmerrors.ProviderError{
			Provider: "openai", StatusCode: 401,
			Message: "invalid api key", Type: llmerrors.ErrorTypeAuth,
		}
	}
	coord, store, _ := newEnv(t, handler, "t1")

	runID, err := coord.SubmitRun(context.Background(), "tc-1", []string{"t1"})
	require.NoError(t, err)

	run := waitTerminal(t, store, runID)
	assert.Equal(t, domain.RunPartiallyFailed, run.Status)

	// No retry: exactly one call, one attempt.
	assert.Equal(t, int32(1), calls.Load())
	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.VerdictError, results[0].Verdict)
	assert.Equal(t, 1, results[0].Attempts)

	assert.Contains(t, coord.DegradedProviders(), "openai")
}

func TestCoordinator_TimeoutsProduceTimeoutVerdict(t *testing.T) {
	handler := func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return nil, &llmerrors.ProviderError{
			Provider: "openai", StatusCode: 0,
			Message: "deadline exceeded", Type: llmerrors.ErrorTypeTimeout,
		}
	}
	coord, store, _ := newEnv(t, handler, "t1")

	runID, err := coord.SubmitRun(context.Background(), "tc-1", []string{"t1"})
	require.NoError(t, err)

	waitTerminal(t, store, runID)
	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.VerdictTimeout, results[0].Verdict)

	tasks, err := store.ListTasks(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTimeout, tasks[0].Status)
}

func TestCoordinator_LocalRateLimitRequeuesWithoutBurningAttempt(t *testing.T) {
	var calls atomic.Int32
	handler := func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if calls.Add(1) == 1 {
			return nil, &llmerrors.RateLimitError{Provider: "openai", LocalLimit: true}
		}
		return &transport.Response{Content: "42", LatencyMs: 5}, nil
	}
	coord, store, _ := newEnv(t, handler, "t1")

	runID, err := coord.SubmitRun(context.Background(), "tc-1", []string{"t1"})
	require.NoError(t, err)

	run := waitTerminal(t, store, runID)
	assert.Equal(t, domain.RunCompleted, run.Status)

	// The requeue did not consume the retry budget.
	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.VerdictPassed, results[0].Verdict)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCoordinator_CancellationStopsRemainingWork(t *testing.T) {
	targets := []string{"t1", "t2", "t3", "t4", "t5"}

	runIDCh := make(chan string, 1)
	var coordPtr atomic.Pointer[Coordinator]
	var calls atomic.Int32
	handler := func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		n := calls.Add(1)
		if n == 3 {
			// Cancel mid-run; this in-flight result must be discarded.
			assert.NoError(t, coordPtr.Load().CancelRun(context.Background(), <-runIDCh))
		}
		return &transport.Response{Content: "42", LatencyMs: 5}, nil
	}

	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.PutTestCase(ctx, &domain.TestCase{
		ID:       "tc-1",
		Category: "arithmetic",
		Prompt:   "What is 6 times 7?",
		Strategy: domain.StrategyExactMatch,
		Expected: "42",
	}))
	for _, id := range targets {
		require.NoError(t, store.PutTarget(ctx, &domain.ModelTarget{ID: id, Provider: "openai", Model: "model-" + id}))
	}

	client := llm.NewWithHandler(transport.HandlerFunc(handler))
	sink := &countingSink{}
	cfg := testCoordConfig()
	cfg.Workers = 1 // serialize so exactly two results land before the cancel
	coord := New(cfg, testRetryConfig(), store, client, scoring.NewScorer(client), sink, nil)
	coordPtr.Store(coord)
	coord.Start(ctx)
	t.Cleanup(coord.Stop)

	runID, err := coord.SubmitRun(ctx, "tc-1", targets)
	require.NoError(t, err)
	runIDCh <- runID

	run := waitTerminal(t, store, runID)
	assert.Equal(t, domain.RunCancelled, run.Status)
	assert.True(t, run.Cancelled)

	// Two results persisted before cancellation; the rest never were.
	require.Eventually(t, func() bool {
		results, err := store.ListResults(context.Background(), runID)
		return err == nil && len(results) == 2 && sink.count() == 2
	}, 5*time.Second, 2*time.Millisecond)

	// Give stragglers a chance to violate the invariant before asserting.
	time.Sleep(50 * time.Millisecond)
	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, sink.count())
}

func TestCoordinator_ResultAfterCancelIsNeverPersisted(t *testing.T) {
	started := make(chan struct{})
	released := make(chan struct{})
	handler := func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		close(started)
		<-released
		return &transport.Response{Content: "42", LatencyMs: 5}, nil
	}
	coord, store, sink := newEnv(t, handler, "t1")

	runID, err := coord.SubmitRun(context.Background(), "tc-1", []string{"t1"})
	require.NoError(t, err)

	// Cancel while the attempt is in flight, then let it complete.
	<-started
	require.NoError(t, coord.CancelRun(context.Background(), runID))
	close(released)

	run := waitTerminal(t, store, runID)
	assert.Equal(t, domain.RunCancelled, run.Status)

	// The attempt finished after the cancelled status was persisted; its
	// result must be discarded, not written behind the terminal run.
	time.Sleep(50 * time.Millisecond)
	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, sink.count())

	final, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, final.Status)
}

func TestCoordinator_StopReleasesPendingEnqueues(t *testing.T) {
	before := runtime.NumGoroutine()

	targets := []string{"t1", "t2", "t3", "t4"}
	started := make(chan struct{})
	var once sync.Once
	handler := func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}

	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.PutTestCase(ctx, &domain.TestCase{
		ID:       "tc-1",
		Category: "arithmetic",
		Prompt:   "What is 6 times 7?",
		Strategy: domain.StrategyExactMatch,
		Expected: "42",
	}))
	for _, id := range targets {
		require.NoError(t, store.PutTarget(ctx, &domain.ModelTarget{ID: id, Provider: "openai", Model: "model-" + id}))
	}

	client := llm.NewWithHandler(transport.HandlerFunc(handler))
	cfg := testCoordConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1 // force the enqueue goroutine to block on a full queue
	coord := New(cfg, testRetryConfig(), store, client, scoring.NewScorer(client), nil, nil)
	coord.Start(ctx)

	_, err := coord.SubmitRun(ctx, "tc-1", targets)
	require.NoError(t, err)
	<-started

	// Stop must unblock the enqueue goroutine stuck on the full queue.
	coord.Stop()
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCoordinator_CancelTerminalRunFails(t *testing.T) {
	coord, store, _ := newEnv(t, succeedWith("42"), "t1")

	runID, err := coord.SubmitRun(context.Background(), "tc-1", []string{"t1"})
	require.NoError(t, err)
	waitTerminal(t, store, runID)

	err = coord.CancelRun(context.Background(), runID)
	assert.Error(t, err)
}

func TestCoordinator_SubmitValidation(t *testing.T) {
	coord, _, _ := newEnv(t, succeedWith("42"), "t1")
	ctx := context.Background()

	_, err := coord.SubmitRun(ctx, "tc-1", nil)
	assert.Error(t, err)

	_, err = coord.SubmitRun(ctx, "no-such-case", []string{"t1"})
	assert.ErrorIs(t, err, domain.ErrTestCaseNotFound)

	_, err = coord.SubmitRun(ctx, "tc-1", []string{"no-such-target"})
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func TestCoordinator_RecoverMarksInterruptedRuns(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	now := time.Now()
	run := &domain.Run{
		ID: "run-1", TestCaseID: "tc-1", TargetIDs: []string{"t1", "t2"},
		Status: domain.RunRunning, TotalTasks: 2, CompletedTasks: 1,
		SucceededTasks: 1, CreatedAt: now,
	}
	require.NoError(t, store.CreateRun(ctx, run))
	require.NoError(t, store.CreateTasks(ctx, []*domain.EvaluationTask{
		{ID: "task-1", RunID: "run-1", TargetID: "t1", Status: domain.TaskPassed, CreatedAt: now},
		{ID: "task-2", RunID: "run-1", TargetID: "t2", Status: domain.TaskRunning, CreatedAt: now},
	}))

	client := llm.NewWithHandler(succeedWith("42"))
	coord := New(testCoordConfig(), testRetryConfig(), store, client, scoring.NewScorer(client), nil, nil)
	require.NoError(t, coord.Recover(ctx))

	recovered, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartiallyFailed, recovered.Status)
	assert.Equal(t, 2, recovered.CompletedTasks)
	assert.Equal(t, 1, recovered.ErroredTasks)

	tasks, err := store.ListTasks(ctx, "run-1")
	require.NoError(t, err)
	for _, task := range tasks {
		assert.True(t, task.Status.Terminal())
	}
}

func TestExponentialBackoff(t *testing.T) {
	cfg := configuration.RetryConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}

	assert.Equal(t, time.Duration(0), ExponentialBackoff(0, cfg))
	assert.Equal(t, 100*time.Millisecond, ExponentialBackoff(1, cfg))
	assert.Equal(t, 200*time.Millisecond, ExponentialBackoff(2, cfg))
	assert.Equal(t, 400*time.Millisecond, ExponentialBackoff(3, cfg))
	assert.Equal(t, time.Second, ExponentialBackoff(10, cfg))
}

func TestExponentialBackoff_JitterStaysWithinBound(t *testing.T) {
	cfg := configuration.RetryConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		UseJitter:       true,
	}

	for i := 0; i < 50; i++ {
		d := ExponentialBackoff(3, cfg)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 400*time.Millisecond)
	}
}

func TestRetryDelay_HonorsRetryAfter(t *testing.T) {
	cfg := testRetryConfig()
	cfg.MaxInterval = 10 * time.Second

	err := &llmerrors.RateLimitError{Provider: "openai", RetryAfter: 2}
	assert.Equal(t, 2*time.Second, retryDelay(1, err, cfg))

	// Unreasonable guidance falls back to exponential backoff.
	err.RetryAfter = 3600
	assert.LessOrEqual(t, retryDelay(1, err, cfg), cfg.MaxInterval)
}
