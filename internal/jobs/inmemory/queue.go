package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/smartfinance/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultWorkers is the worker count used when QueueConfig.Workers is zero.
const DefaultWorkers = 2

// QueueConfig configures an in-memory queue.
type QueueConfig struct {
	// BufferSize is how many jobs can wait before PublishExport blocks.
	BufferSize int
	// Workers is the number of concurrent handlers.
	Workers int
	// MaxRetries applies to jobs published without their own value.
	// Zero means a failed export is not retried.
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries.
	RetryDelay time.Duration
}

// Queue is an in-memory job publisher and consumer backed by a channel.
// It is meant for a single service instance.
type Queue struct {
	cfg       QueueConfig
	jobChan   chan *jobs.ExportLedgerJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	log       zerolog.Logger
	closed    bool
}

// NewQueue creates a new in-memory job queue.
func NewQueue(cfg QueueConfig, store jobs.JobStore, log zerolog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Queue{
		cfg:       cfg,
		jobChan:   make(chan *jobs.ExportLedgerJob, cfg.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		log:       log.With().Str("component", "export_queue").Logger(),
	}
}

// PublishExport implements the Publisher interface. It fills in the job's
// id, status and creation time, then hands the workers a copy so the
// caller's job is never written to after PublishExport returns.
func (q *Queue) PublishExport(ctx context.Context, job *jobs.ExportLedgerJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.cfg.MaxRetries
	}

	return q.enqueue(ctx, copyJob(job))
}

// enqueue saves job and blocks until a worker slot is free. The queue lock
// is not held while blocking so Stop can always close closeChan.
func (q *Queue) enqueue(ctx context.Context, job *jobs.ExportLedgerJob) error {
	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	default:
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one job and records its outcome.
func (q *Queue) processJob(ctx context.Context, job *jobs.ExportLedgerJob, handler jobs.JobHandler) {
	log := q.log.With().Str("job_id", job.JobID).Str("target", string(job.Target)).Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(ctx, job)
	var retry *jobs.ExportLedgerJob

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Error = err.Error()

		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying
			log.Warn().Err(err).Int("retry", job.RetryCount).Msg("Export failed, retrying")

			retry = copyJob(job)
			retry.Status = jobs.JobStatusPending
			retry.StartedAt = nil
			retry.CompletedAt = nil
		} else {
			job.Status = jobs.JobStatusFailed
			log.Error().Err(err).Msg("Export failed")
		}
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Str("location", job.Location).Msg("Export completed")
	}

	q.save(ctx, job)

	if retry != nil {
		backoff := time.Duration(retry.RetryCount) * q.cfg.RetryDelay
		time.AfterFunc(backoff, func() {
			if q.isClosed() {
				return
			}
			if err := q.enqueue(ctx, retry); err != nil {
				log.Error().Err(err).Msg("Failed to re-enqueue export")
			}
		})
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.ExportLedgerJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
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

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
