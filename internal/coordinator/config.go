// Package coordinator schedules evaluation runs across a bounded worker
// pool. It owns the retry loop: attempts are counted explicitly, backoff
// is computed per attempt, and every scheduling decision is observable in
// the task record rather than hidden inside transport middleware.
package coordinator

import "time"

// Default scheduling parameters.
const (
	DefaultWorkers         = 8
	DefaultQueueSize       = 64
	DefaultMaxAttempts     = 3
	DefaultAttemptTimeout  = 30 * time.Second
	DefaultRequeueDelay    = 500 * time.Millisecond
	DefaultMaxRequeueDelay = 2 * time.Second
	DefaultMaxOutputTokens = 1024
)

// Config controls the worker pool and retry budget.
type Config struct {
	// Workers is the size of the global worker pool.
	Workers int `json:"workers" yaml:"workers"`

	// QueueSize is the task queue buffer length.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// MaxAttempts bounds dispatches per task, including the first.
	// Local rate-limit requeues do not consume the budget.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// AttemptTimeout is the per-attempt deadline.
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout"`

	// RequeueDelay is the base delay before re-enqueueing a task that hit
	// a local rate limit; full jitter is applied on top.
	RequeueDelay time.Duration `json:"requeue_delay" yaml:"requeue_delay"`

	// MaxRequeueDelay caps the requeue delay even when the limiter
	// suggests a longer wait.
	MaxRequeueDelay time.Duration `json:"max_requeue_delay" yaml:"max_requeue_delay"`

	// MaxOutputTokens bounds completion length for evaluation requests.
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`
}

// DefaultConfig returns the standard scheduling parameters.
func DefaultConfig() Config {
	return Config{
		Workers:         DefaultWorkers,
		QueueSize:       DefaultQueueSize,
		MaxAttempts:     DefaultMaxAttempts,
		AttemptTimeout:  DefaultAttemptTimeout,
		RequeueDelay:    DefaultRequeueDelay,
		MaxRequeueDelay: DefaultMaxRequeueDelay,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// withDefaults fills zero-valued fields from the defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.RequeueDelay <= 0 {
		c.RequeueDelay = d.RequeueDelay
	}
	if c.MaxRequeueDelay <= 0 {
		c.MaxRequeueDelay = d.MaxRequeueDelay
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = d.MaxOutputTokens
	}
	return c
}
