package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/finsight/statement-pipeline/internal/jobs"
)

// Config tunes the queue's concurrency and retry behavior.
type Config struct {
	// Workers bounds system-wide concurrent job execution.
	Workers int
	// QueueDepth is the channel buffer before Submit blocks.
	QueueDepth int
	// MaxAttempts bounds executions per job, including the first.
	MaxAttempts int
	// BackoffBase is the delay before the first retry; it doubles on
	// each subsequent attempt.
	BackoffBase time.Duration
	// StartRate caps job starts per second to protect downstream
	// services from bursts. StartBurst is the limiter burst size.
	StartRate  rate.Limit
	StartBurst int
	// JobTimeout bounds a single execution's wall-clock time.
	// Exceeding it is treated as a stall.
	JobTimeout time.Duration
	// StallTimeout is the heartbeat age past which an in-flight job is
	// presumed to have lost its worker.
	StallTimeout time.Duration
	// StallCheckEvery is the janitor scan interval.
	StallCheckEvery time.Duration
}

// DefaultConfig returns the queue defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         5,
		QueueDepth:      100,
		MaxAttempts:     3,
		BackoffBase:     2 * time.Second,
		StartRate:       10,
		StartBurst:      10,
		JobTimeout:      10 * time.Minute,
		StallTimeout:    2 * time.Minute,
		StallCheckEvery: 30 * time.Second,
	}
}

// Queue is an in-memory job queue with a bounded worker pool, a two-level
// priority FIFO, rate-limited job starts, retry with exponential backoff,
// and stalled-job recovery. It is safe for concurrent use and suitable
// for single-instance deployments and testing.
type Queue struct {
	highChan  chan string
	lowChan   chan string
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.Store
	limiter   *rate.Limiter
	cfg       Config
	log       zerolog.Logger
	closed    bool
}

// NewQueue creates a new in-memory job queue backed by the given store.
func NewQueue(cfg Config, store jobs.Store, log zerolog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.StartRate <= 0 {
		cfg.StartRate = rate.Inf
	}
	if cfg.StartBurst <= 0 {
		cfg.StartBurst = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultConfig().JobTimeout
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = DefaultConfig().StallTimeout
	}
	if cfg.StallCheckEvery <= 0 {
		cfg.StallCheckEvery = DefaultConfig().StallCheckEvery
	}

	return &Queue{
		highChan:  make(chan string, cfg.QueueDepth),
		lowChan:   make(chan string, cfg.QueueDepth),
		closeChan: make(chan struct{}),
		store:     store,
		limiter:   rate.NewLimiter(cfg.StartRate, cfg.StartBurst),
		cfg:       cfg,
		log:       log,
	}
}

// Submit implements jobs.Publisher. Submitting a JobID that already
// exists is a no-op returning the existing job's ID.
func (q *Queue) Submit(ctx context.Context, job *jobs.AnalysisJob) (string, error) {
	// The lock only guards the closed flag; enqueue can block on a full
	// channel and must not hold it, or Stop deadlocks behind us. A close
	// racing past this check is caught by enqueue's closeChan select.
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return "", jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}

	if err := q.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrJobExists) {
			return job.JobID, nil
		}
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	if err := q.enqueue(ctx, job.JobID, job.Priority); err != nil {
		return "", err
	}
	return job.JobID, nil
}

// Requeue dispatches an already-persisted pending job to the worker
// pool. Used by pollers draining a shared durable store. Enqueuing a
// job twice is harmless: the loser of the claim race skips the attempt.
func (q *Queue) Requeue(ctx context.Context, jobID string) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	job, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusPending {
		return nil
	}
	return q.enqueue(ctx, jobID, job.Priority)
}

func (q *Queue) enqueue(ctx context.Context, jobID string, priority jobs.Priority) error {
	ch := q.lowChan
	if priority == jobs.PriorityUser {
		ch = q.highChan
	}

	select {
	case ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start implements jobs.Consumer. It launches the worker pool and the
// stall janitor.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	q.wg.Add(1)
	go q.stallJanitor(ctx)

	return nil
}

// worker pulls job IDs, preferring the high-priority channel.
func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		// Drain high priority first without blocking.
		select {
		case jobID := <-q.highChan:
			q.runJob(ctx, jobID, handler)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case jobID := <-q.highChan:
			q.runJob(ctx, jobID, handler)
		case jobID := <-q.lowChan:
			q.runJob(ctx, jobID, handler)
		}
	}
}

// runJob executes a single job attempt with rate limiting, heartbeat
// upkeep, panic isolation, and retry bookkeeping.
func (q *Queue) runJob(ctx context.Context, jobID string, handler jobs.Handler) {
	if err := q.limiter.Wait(ctx); err != nil {
		return
	}

	job, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		q.log.Error().Err(err).Str("job_id", jobID).Msg("Dequeued unknown job")
		return
	}
	if job.Terminal() {
		return
	}

	// Claim the job. A version conflict means a racing retry or requeue
	// already owns it; progress is retained across attempts.
	now := time.Now()
	processing := jobs.StatusProcessing
	attempts := job.Attempts + 1
	job, err = q.store.UpdateJob(ctx, jobID, job.Version, jobs.JobPatch{
		Status:      &processing,
		Attempts:    &attempts,
		StartedAt:   &now,
		HeartbeatAt: &now,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrVersionConflict) {
			q.log.Warn().Str("job_id", jobID).Msg("Lost claim race, skipping attempt")
			return
		}
		q.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to claim job")
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	defer cancel()

	stopHeartbeat := q.startHeartbeat(runCtx, jobID)
	runErr := q.invoke(runCtx, job, handler)
	stopHeartbeat()

	if runErr == nil {
		q.confirmCompleted(ctx, jobID)
		return
	}

	if errors.Is(runErr, context.DeadlineExceeded) && ctx.Err() == nil {
		q.handleStall(ctx, jobID, "execution exceeded wall-clock timeout")
		return
	}

	q.handleFailure(ctx, jobID, attempts, job.MaxAttempts, runErr)
}

// invoke calls the handler, converting a panic into a job failure rather
// than a worker crash.
func (q *Queue) invoke(ctx context.Context, job *jobs.AnalysisJob, handler jobs.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			q.log.Error().
				Interface("panic", r).
				Str("job_id", job.JobID).
				Msg("Recovered panic in job execution")
		}
	}()
	return handler(ctx, job)
}

// startHeartbeat refreshes HeartbeatAt until the returned stop function
// is called.
func (q *Queue) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := q.cfg.StallTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				if _, err := q.store.UpdateJob(ctx, jobID, -1, jobs.JobPatch{HeartbeatAt: &now}); err != nil {
					q.log.Warn().Err(err).Str("job_id", jobID).Msg("Heartbeat update failed")
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// confirmCompleted verifies the handler left the job in a terminal state.
// The orchestrator writes the completed transition itself so metadata and
// status land together; a missing transition here is a defect worth
// surfacing, not silently absorbing.
func (q *Queue) confirmCompleted(ctx context.Context, jobID string) {
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil || job.Terminal() {
		return
	}

	q.log.Warn().Str("job_id", jobID).Msg("Handler returned success without completing job")
	completed := jobs.StatusCompleted
	progress := 100
	now := time.Now()
	if _, err := q.store.UpdateJob(ctx, jobID, job.Version, jobs.JobPatch{
		Status:      &completed,
		Progress:    &progress,
		CompletedAt: &now,
	}); err != nil {
		q.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to finalize job")
	}
}

// handleFailure applies the retry policy: permanent errors and exhausted
// attempts fail the job; transient errors are requeued with exponential
// backoff.
func (q *Queue) handleFailure(ctx context.Context, jobID string, attempts, maxAttempts int, runErr error) {
	if jobs.IsPermanent(runErr) {
		q.log.Error().Err(runErr).Str("job_id", jobID).Msg("Job failed permanently")
		q.failJob(ctx, jobID, runErr)
		return
	}

	if attempts >= maxAttempts {
		q.log.Error().
			Err(runErr).
			Str("job_id", jobID).
			Int("attempts", attempts).
			Msg("Job failed after exhausting retries")
		q.failJob(ctx, jobID, runErr)
		return
	}

	// A zombie worker can report a late failure after a stall requeue
	// already finished the job elsewhere; terminal states stay put.
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil || job.Terminal() {
		return
	}

	backoff := q.cfg.BackoffBase << (attempts - 1)
	q.log.Warn().
		Err(runErr).
		Str("job_id", jobID).
		Int("attempt", attempts).
		Dur("backoff", backoff).
		Msg("Job failed, scheduling retry")

	errMsg := runErr.Error()
	pending := jobs.StatusPending
	job, err = q.store.UpdateJob(ctx, jobID, job.Version, jobs.JobPatch{
		Status: &pending,
		Error:  &errMsg,
	})
	if err != nil {
		q.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to requeue job")
		return
	}

	priority := job.Priority
	time.AfterFunc(backoff, func() {
		if err := q.enqueue(context.Background(), jobID, priority); err != nil {
			q.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to re-enqueue job after backoff")
		}
	})
}

// handleStall requeues a stalled job exactly once; a second stall is a
// normal failure. Stalls must never silently lose the job.
func (q *Queue) handleStall(ctx context.Context, jobID, reason string) {
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil || job.Terminal() {
		return
	}

	if job.StallCount >= 1 {
		q.log.Error().Str("job_id", jobID).Str("reason", reason).Msg("Job stalled twice, failing")
		q.failJob(ctx, jobID, fmt.Errorf("stalled: %s", reason))
		return
	}

	q.log.Warn().Str("job_id", jobID).Str("reason", reason).Msg("Job stalled, requeuing once")

	pending := jobs.StatusPending
	stalls := job.StallCount + 1
	errMsg := fmt.Sprintf("stalled: %s", reason)
	job, err = q.store.UpdateJob(ctx, jobID, job.Version, jobs.JobPatch{
		Status:     &pending,
		StallCount: &stalls,
		Error:      &errMsg,
	})
	if err != nil {
		q.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to requeue stalled job")
		return
	}

	if err := q.enqueue(ctx, jobID, job.Priority); err != nil {
		q.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to re-enqueue stalled job")
	}
}

// failJob records the terminal failure with the causing error verbatim.
func (q *Queue) failJob(ctx context.Context, jobID string, cause error) {
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil || job.Terminal() {
		return
	}

	failed := jobs.StatusFailed
	errMsg := cause.Error()
	now := time.Now()
	if _, err := q.store.UpdateJob(ctx, jobID, job.Version, jobs.JobPatch{
		Status:      &failed,
		Error:       &errMsg,
		CompletedAt: &now,
	}); err != nil {
		q.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to record job failure")
	}
}

// stallJanitor scans for in-flight jobs whose heartbeat went quiet, which
// covers workers that died mid-execution.
func (q *Queue) stallJanitor(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.StallCheckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case <-ticker.C:
			q.sweepStalled(ctx)
		}
	}
}

func (q *Queue) sweepStalled(ctx context.Context) {
	active, err := q.store.ListJobs(ctx, jobs.JobFilter{Status: jobs.StatusProcessing})
	if err != nil {
		q.log.Error().Err(err).Msg("Stall sweep failed to list jobs")
		return
	}

	cutoff := time.Now().Add(-q.cfg.StallTimeout)
	for _, job := range active {
		if job.HeartbeatAt != nil && job.HeartbeatAt.After(cutoff) {
			continue
		}
		q.handleStall(ctx, job.JobID, "no heartbeat within liveness timeout")
	}
}

// Stop implements jobs.Consumer. It stops the queue and waits for all
// in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
