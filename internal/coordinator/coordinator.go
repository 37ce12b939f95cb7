package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-gauntlet/internal/domain"
	"github.com/ahrav/go-gauntlet/internal/llm"
	"github.com/ahrav/go-gauntlet/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
	"github.com/ahrav/go-gauntlet/internal/llm/transport"
	"github.com/ahrav/go-gauntlet/internal/scoring"
	"github.com/ahrav/go-gauntlet/internal/storage"
)

// ResultSink receives each persisted result exactly once.
// The aggregator implements this; Ingest must be safe for concurrent use.
type ResultSink interface {
	Ingest(result *domain.EvaluationResult)
}

// workItem pairs a task with its resolved run context so workers need no
// store lookups on the hot path.
type workItem struct {
	rs     *runState
	task   *domain.EvaluationTask
	target *domain.ModelTarget
}

// runState is the in-memory coordination record for one active run.
type runState struct {
	mu       sync.Mutex
	run      *domain.Run
	testCase *domain.TestCase

	// cancelled is the cooperative flag checked at dequeue, before each
	// retry, and before persisting a result.
	cancelled atomic.Bool

	// settled counts tasks that reached a terminal state or were
	// discarded by cancellation; the run leaves the active set when it
	// reaches TotalTasks.
	settled int
}

// Coordinator executes evaluation runs: it fans tasks out to a bounded
// worker pool, drives the per-task retry loop, and finalizes runs when
// the last task settles.
type Coordinator struct {
	cfg      Config
	retryCfg configuration.RetryConfig
	store    storage.Store
	client   llm.Client
	scorer   *scoring.Scorer
	sink     ResultSink
	logger   *slog.Logger

	queue chan *workItem
	wg    sync.WaitGroup

	// poolCtx is the worker pool's lifetime; enqueue goroutines select on
	// it so a full queue cannot outlive Stop.
	poolCtx context.Context
	cancel  context.CancelFunc

	mu   sync.Mutex
	runs map[string]*runState

	// degraded records providers that returned fatal auth errors, keyed
	// by provider name with the observation time.
	degraded sync.Map
}

// New creates a coordinator. The sink may be nil when aggregation is not
// wired (single-run CLI invocations).
func New(
	cfg Config,
	retryCfg configuration.RetryConfig,
	store storage.Store,
	client llm.Client,
	scorer *scoring.Scorer,
	sink ResultSink,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:      cfg,
		retryCfg: retryCfg,
		store:    store,
		client:   client,
		scorer:   scorer,
		sink:     sink,
		logger:   logger,
		queue:    make(chan *workItem, cfg.QueueSize),
		poolCtx:  context.Background(),
		runs:     make(map[string]*runState),
	}
}

// Start launches the worker pool. Workers run until Stop or ctx
// cancellation.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.poolCtx = ctx
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}
	c.logger.Info("coordinator started", "workers", c.cfg.Workers, "queue_size", c.cfg.QueueSize)
}

// Stop halts the worker pool and waits for in-flight attempts to finish.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Recover marks runs interrupted by a previous process as
// partially_failed. Persisted results stand; unfinished tasks get an
// error status so the run's accounting is complete.
func (c *Coordinator) Recover(ctx context.Context) error {
	active, err := c.store.ListActiveRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active runs: %w", err)
	}

	for _, run := range active {
		tasks, err := c.store.ListTasks(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to list tasks for run %s: %w", run.ID, err)
		}
		now := time.Now()
		for _, task := range tasks {
			if task.Status.Terminal() {
				continue
			}
			task.Status = domain.TaskError
			task.LastError = "interrupted by coordinator restart"
			task.CompletedAt = &now
			if err := c.store.UpdateTask(ctx, task); err != nil {
				return fmt.Errorf("failed to update task %s: %w", task.ID, err)
			}
			run.ErroredTasks++
			run.CompletedTasks++
		}
		run.Status = domain.RunPartiallyFailed
		run.CompletedAt = &now
		if err := c.store.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to update run %s: %w", run.ID, err)
		}
		c.logger.Warn("recovered interrupted run", "run_id", run.ID, "status", run.Status)
	}
	return nil
}

// SubmitRun validates inputs, creates the run and its tasks, and enqueues
// them. Returns the run ID immediately; execution proceeds asynchronously.
func (c *Coordinator) SubmitRun(ctx context.Context, testCaseID string, targetIDs []string) (string, error) {
	if len(targetIDs) == 0 {
		return "", fmt.Errorf("run requires at least one target")
	}

	tc, err := c.store.GetTestCase(ctx, testCaseID)
	if err != nil {
		return "", err
	}
	if err := tc.Validate(); err != nil {
		return "", err
	}

	targets := make(map[string]*domain.ModelTarget, len(targetIDs))
	for _, id := range targetIDs {
		target, err := c.store.GetTarget(ctx, id)
		if err != nil {
			return "", fmt.Errorf("target %s: %w", id, err)
		}
		targets[id] = target
	}

	now := time.Now()
	run := &domain.Run{
		ID:         uuid.New().String(),
		TestCaseID: tc.ID,
		TargetIDs:  targetIDs,
		Status:     domain.RunQueued,
		TotalTasks: len(targetIDs),
		CreatedAt:  now,
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	tasks := make([]*domain.EvaluationTask, 0, len(targetIDs))
	for _, id := range targetIDs {
		tasks = append(tasks, &domain.EvaluationTask{
			ID:        uuid.New().String(),
			RunID:     run.ID,
			TargetID:  id,
			Status:    domain.TaskQueued,
			CreatedAt: now,
		})
	}
	if err := c.store.CreateTasks(ctx, tasks); err != nil {
		return "", fmt.Errorf("failed to create tasks: %w", err)
	}

	rs := &runState{run: run, testCase: tc}
	c.mu.Lock()
	c.runs[run.ID] = rs
	c.mu.Unlock()

	items := make([]*workItem, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, &workItem{rs: rs, task: task, target: targets[task.TargetID]})
	}
	go c.enqueue(items)

	c.logger.Info("run submitted",
		"run_id", run.ID, "test_case_id", tc.ID, "targets", len(targetIDs))
	return run.ID, nil
}

// CancelRun flags a run for cooperative cancellation. In-flight attempts
// observe the flag at their next checkpoint; already-persisted results
// stand, later ones are discarded.
func (c *Coordinator) CancelRun(ctx context.Context, runID string) error {
	c.mu.Lock()
	rs, ok := c.runs[runID]
	c.mu.Unlock()

	if !ok {
		// Unknown to this process: either a foreign/finished run or a bad ID.
		run, err := c.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status.Terminal() {
			return domain.ErrRunTerminal
		}
		return fmt.Errorf("run %s is not owned by this coordinator", runID)
	}

	rs.cancelled.Store(true)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.run.Status.Terminal() {
		return domain.ErrRunTerminal
	}
	now := time.Now()
	rs.run.Cancelled = true
	rs.run.Status = domain.RunCancelled
	rs.run.CompletedAt = &now
	if err := c.store.UpdateRun(ctx, rs.run); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}
	c.logger.Info("run cancelled", "run_id", runID, "completed_tasks", rs.run.CompletedTasks)
	return nil
}

// GetRun returns the current persisted state of a run.
func (c *Coordinator) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return c.store.GetRun(ctx, runID)
}

// DegradedProviders lists providers flagged by fatal auth failures since
// startup.
func (c *Coordinator) DegradedProviders() []string {
	var names []string
	c.degraded.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// enqueue feeds work items into the queue, bailing out if the pool stops.
func (c *Coordinator) enqueue(items []*workItem) {
	for _, item := range items {
		if item.rs.cancelled.Load() {
			c.settleDiscarded(item.rs)
			continue
		}
		select {
		case c.queue <- item:
		case <-c.poolCtx.Done():
			return
		}
	}
}

// worker pulls tasks off the queue until shutdown.
func (c *Coordinator) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.queue:
			c.execute(ctx, item)
		}
	}
}

// execute runs one task through its bounded retry loop.
func (c *Coordinator) execute(ctx context.Context, item *workItem) {
	rs, task, target := item.rs, item.task, item.target

	// Cancellation checkpoint: dequeue.
	if rs.cancelled.Load() {
		c.settleDiscarded(rs)
		return
	}

	c.markRunRunning(ctx, rs)

	now := time.Now()
	task.Status = domain.TaskRunning
	if task.StartedAt == nil {
		task.StartedAt = &now
	}
	if err := c.store.UpdateTask(ctx, task); err != nil {
		c.logger.Error("failed to persist task start", "task_id", task.ID, "error", err)
	}

	var lastErr error
	for task.Attempts < c.cfg.MaxAttempts {
		// Cancellation checkpoint: before each attempt.
		if rs.cancelled.Load() {
			c.settleDiscarded(rs)
			return
		}

		task.Attempts++
		outcome, resp, err := c.attempt(ctx, rs.testCase, target)
		if err == nil {
			c.recordOutcome(ctx, item, outcome, resp)
			return
		}
		lastErr = err
		task.LastError = err.Error()

		// Local token-bucket saturation is scheduling pressure, not a
		// provider failure: requeue without consuming the retry budget.
		var rlErr *llmerrors.RateLimitError
		if errors.As(err, &rlErr) && rlErr.LocalLimit {
			task.Attempts--
			c.requeue(ctx, item, rlErr.RetryAfter)
			return
		}

		if llmerrors.IsAuthError(err) {
			c.degraded.Store(target.Provider, time.Now())
			c.logger.Error("provider degraded by auth failure",
				"provider", target.Provider, "run_id", task.RunID, "error", err)
			c.recordFailure(ctx, item, err)
			return
		}

		if !llmerrors.IsRetryableError(err) {
			c.recordFailure(ctx, item, err)
			return
		}

		if task.Attempts >= c.cfg.MaxAttempts {
			break
		}

		delay := retryDelay(task.Attempts, err, c.retryCfg)
		c.logger.Debug("retrying task",
			"task_id", task.ID, "attempt", task.Attempts, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	if lastErr == nil {
		lastErr = llmerrors.ErrMaxAttemptsExceeded
	}
	c.recordFailure(ctx, item, fmt.Errorf("%w: %w", llmerrors.ErrMaxAttemptsExceeded, lastErr))
}

// attempt performs one completion plus scoring pass.
func (c *Coordinator) attempt(ctx context.Context, tc *domain.TestCase, target *domain.ModelTarget) (*scoring.Outcome, *transport.Response, error) {
	req := &transport.Request{
		Provider:     target.Provider,
		Model:        target.Model,
		Prompt:       tc.Prompt,
		SystemPrompt: tc.SystemPrompt,
		Temperature:  0,
		MaxTokens:    c.cfg.MaxOutputTokens,
		Timeout:      c.cfg.AttemptTimeout,
	}
	if target.SupportsStructuredOutput && tc.OutputSchema != nil {
		req.JSONSchema = tc.OutputSchema
	}

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	// Judge calls go through the same pipeline; their failures classify
	// like any provider error and re-enter the retry loop.
	outcome, err := c.scorer.Score(ctx, tc, resp.Content)
	if err != nil {
		return nil, resp, err
	}
	return outcome, resp, nil
}

// recordOutcome persists a scored result and settles the task.
func (c *Coordinator) recordOutcome(ctx context.Context, item *workItem, outcome *scoring.Outcome, resp *transport.Response) {
	rs, task, target := item.rs, item.task, item.target

	// Cancellation checkpoint: results arriving after cancellation is
	// observed are discarded, not persisted.
	if rs.cancelled.Load() {
		c.settleDiscarded(rs)
		return
	}

	score := outcome.Score
	diagnostic := outcome.Diagnostic
	if outcome.Rationale != "" && diagnostic == "" {
		diagnostic = outcome.Rationale
	}

	result := &domain.EvaluationResult{
		ID:           uuid.New().String(),
		RunID:        task.RunID,
		TargetID:     task.TargetID,
		ModelID:      target.Model,
		Category:     rs.testCase.Category,
		Verdict:      outcome.Verdict,
		Score:        &score,
		RawOutput:    resp.Content,
		ParsedOutput: outcome.Parsed,
		Diagnostic:   diagnostic,
		Attempts:     task.Attempts,
		LatencyMs:    resp.LatencyMs,
		Usage: domain.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CostEstimate:      target.EstimateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		ProviderRequestID: resp.ProviderRequestID,
		CreatedAt:         time.Now(),
	}

	var taskStatus domain.TaskStatus
	if outcome.Verdict == domain.VerdictPassed {
		taskStatus = domain.TaskPassed
	} else {
		taskStatus = domain.TaskFailed
	}
	c.settleTask(ctx, item, taskStatus, result)
}

// recordFailure persists an error or timeout result for a task whose
// retry budget is spent or whose error is fatal.
func (c *Coordinator) recordFailure(ctx context.Context, item *workItem, cause error) {
	rs, task, target := item.rs, item.task, item.target

	if rs.cancelled.Load() {
		c.settleDiscarded(rs)
		return
	}

	verdict := domain.VerdictError
	taskStatus := domain.TaskError
	if llmerrors.IsTimeoutError(cause) {
		verdict = domain.VerdictTimeout
		taskStatus = domain.TaskTimeout
	}

	result := &domain.EvaluationResult{
		ID:         uuid.New().String(),
		RunID:      task.RunID,
		TargetID:   task.TargetID,
		ModelID:    target.Model,
		Category:   rs.testCase.Category,
		Verdict:    verdict,
		Diagnostic: cause.Error(),
		Attempts:   task.Attempts,
		CreatedAt:  time.Now(),
	}
	c.settleTask(ctx, item, taskStatus, result)
}

// settleTask persists the terminal task state and result, feeds the sink,
// updates run counters, and finalizes the run when the last task settles.
func (c *Coordinator) settleTask(ctx context.Context, item *workItem, status domain.TaskStatus, result *domain.EvaluationResult) {
	rs, task := item.rs, item.task

	rs.mu.Lock()
	// Cancellation recheck under the run lock: CancelRun persists the
	// terminal status while holding it, so once the cancelled status is
	// visible no result can land after it.
	if rs.cancelled.Load() {
		rs.mu.Unlock()
		c.settleDiscarded(rs)
		return
	}

	now := time.Now()
	task.Status = status
	task.CompletedAt = &now
	if err := c.store.UpdateTask(ctx, task); err != nil {
		c.logger.Error("failed to persist task completion", "task_id", task.ID, "error", err)
	}
	if err := c.store.PutResult(ctx, result); err != nil {
		c.logger.Error("failed to persist result", "run_id", task.RunID, "target_id", task.TargetID, "error", err)
	}
	if c.sink != nil {
		c.sink.Ingest(result)
	}

	rs.run.CompletedTasks++
	switch status {
	case domain.TaskPassed:
		rs.run.SucceededTasks++
	case domain.TaskFailed:
		rs.run.FailedTasks++
	default:
		rs.run.ErroredTasks++
	}
	rs.settled++
	finished := rs.settled == rs.run.TotalTasks
	if !finished && !rs.run.Status.Terminal() {
		if err := c.store.UpdateRun(ctx, rs.run); err != nil {
			c.logger.Error("failed to persist run progress", "run_id", rs.run.ID, "error", err)
		}
	}
	rs.mu.Unlock()

	if finished {
		c.finalizeRun(ctx, rs)
	}
}

// settleDiscarded accounts for a task dropped by cancellation without
// persisting anything.
func (c *Coordinator) settleDiscarded(rs *runState) {
	rs.mu.Lock()
	rs.settled++
	finished := rs.settled == rs.run.TotalTasks
	rs.mu.Unlock()
	if finished {
		c.finalizeRun(context.Background(), rs)
	}
}

// finalizeRun derives the terminal status, computes the run summary from
// persisted results, and removes the run from the active set.
func (c *Coordinator) finalizeRun(ctx context.Context, rs *runState) {
	rs.mu.Lock()
	run := rs.run
	if !run.Status.Terminal() {
		run.Status = run.DeriveStatus()
		now := time.Now()
		run.CompletedAt = &now
	}
	run.Summary = c.computeSummary(ctx, run.ID)
	if err := c.store.UpdateRun(ctx, run); err != nil {
		c.logger.Error("failed to persist run finalization", "run_id", run.ID, "error", err)
	}
	status := run.Status
	rs.mu.Unlock()

	c.mu.Lock()
	delete(c.runs, run.ID)
	c.mu.Unlock()

	c.logger.Info("run finished",
		"run_id", run.ID,
		"status", status,
		"passed", run.SucceededTasks,
		"failed", run.FailedTasks,
		"errored", run.ErroredTasks)
}

// computeSummary derives run-level statistics from persisted results.
func (c *Coordinator) computeSummary(ctx context.Context, runID string) *domain.RunSummary {
	results, err := c.store.ListResults(ctx, runID)
	if err != nil {
		c.logger.Error("failed to load results for summary", "run_id", runID, "error", err)
		return nil
	}

	summary := &domain.RunSummary{}
	var scored int
	for _, result := range results {
		summary.TotalCost += result.CostEstimate
		if result.Scored() {
			summary.MeanScore += result.ScoreValue()
			summary.MeanLatencyMs += float64(result.LatencyMs)
			scored++
		}
	}
	if scored > 0 {
		summary.MeanScore /= float64(scored)
		summary.MeanLatencyMs /= float64(scored)
	}
	return summary
}

// markRunRunning transitions the run to running on its first dispatched
// task.
func (c *Coordinator) markRunRunning(ctx context.Context, rs *runState) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.run.Status != domain.RunQueued {
		return
	}
	now := time.Now()
	rs.run.Status = domain.RunRunning
	rs.run.StartedAt = &now
	if err := c.store.UpdateRun(ctx, rs.run); err != nil {
		c.logger.Error("failed to persist run start", "run_id", rs.run.ID, "error", err)
	}
}

// requeue puts a locally rate-limited task back in the queue after a
// jittered delay. The task returns to queued status; its attempt budget
// is untouched.
func (c *Coordinator) requeue(ctx context.Context, item *workItem, retryAfterSeconds int) {
	task := item.task
	task.Status = domain.TaskQueued
	if err := c.store.UpdateTask(ctx, task); err != nil {
		c.logger.Error("failed to persist task requeue", "task_id", task.ID, "error", err)
	}

	delay := jitteredRequeueDelay(c.cfg.RequeueDelay, c.cfg.MaxRequeueDelay, retryAfterSeconds)
	c.logger.Debug("requeueing rate-limited task",
		"task_id", task.ID, "provider", item.target.Provider, "delay", delay)

	time.AfterFunc(delay, func() {
		if item.rs.cancelled.Load() {
			c.settleDiscarded(item.rs)
			return
		}
		select {
		case c.queue <- item:
		case <-ctx.Done():
		}
	})
}
