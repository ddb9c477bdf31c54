package jobstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/relay/internal/domain"
	"github.com/timmy/relay/internal/logger"
)

// ErrNotFound is returned when a job id is unknown or already evicted.
var ErrNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when a status write would violate the
// queued -> processing -> completed|failed state machine.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Config holds store policy values. All limits are tunable; zero values fall
// back to the defaults below.
type Config struct {
	MaxAge   time.Duration // terminal jobs older than this are pruned
	MaxCount int           // hard capacity ceiling, oldest evicted first
}

const (
	defaultMaxAge   = 45 * time.Minute
	defaultMaxCount = 1000
)

// Store is the in-memory job map. It is the single source of truth for job
// status: all mutation happens through its methods under one lock, so a
// concurrent poll never observes a completed status without its result.
// Nothing is persisted; jobs are expendable on restart.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]*domain.Job
	maxAge   time.Duration
	maxCount int
	log      *logger.Logger
}

// New creates an empty store.
// Parameters:
//   - cfg: store policy; nil uses defaults.
//   - log: logger for janitor activity.
//
// Returns:
//   - *Store: initialized store.
func New(cfg *Config, log *logger.Logger) *Store {
	if cfg == nil {
		cfg = &Config{}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	maxCount := cfg.MaxCount
	if maxCount <= 0 {
		maxCount = defaultMaxCount
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &Store{
		jobs:     make(map[string]*domain.Job),
		maxAge:   maxAge,
		maxCount: maxCount,
		log:      log,
	}
}

// Enqueue creates a queued job and returns its id. The handoff is
// non-blocking: the caller starts processing separately.
// Parameters:
//   - payload: request payload captured at submission.
//   - credentials: provider name -> API key map; held in memory only.
//
// Returns:
//   - string: fresh job id.
func (s *Store) Enqueue(payload domain.JobPayload, credentials map[string]string) string {
	now := time.Now()
	creds := make(map[string]string, len(credentials))
	for k, v := range credentials {
		creds[k] = v
	}

	job := &domain.Job{
		ID:          uuid.New().String(),
		Status:      domain.JobStatusQueued,
		Payload:     payload,
		Credentials: creds,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return job.ID
}

// Get returns a snapshot of the job without credentials. Callers must not
// mutate the snapshot's pointers.
// Parameters:
//   - id: job id.
//
// Returns:
//   - domain.Job: current snapshot.
//   - bool: false when the job is unknown or evicted.
func (s *Store) Get(id string) (domain.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	snapshot := *job
	snapshot.Credentials = nil
	return snapshot, true
}

// Claim transitions a queued job to processing and hands its payload and
// credentials to the processor. Exactly one claim succeeds per job.
// Parameters:
//   - id: job id.
//
// Returns:
//   - domain.Job: snapshot including credentials, for processing.
//   - error: ErrNotFound or ErrInvalidTransition.
func (s *Store) Claim(id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	if job.Status != domain.JobStatusQueued {
		return domain.Job{}, ErrInvalidTransition
	}

	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = time.Now()
	return *job, nil
}

// Complete marks a processing job completed with its normalized result.
// Parameters:
//   - id: job id.
//   - result: provider-agnostic result to store.
//
// Returns:
//   - error: ErrNotFound or ErrInvalidTransition.
func (s *Store) Complete(id string, result *domain.JobResult) error {
	return s.finish(id, domain.JobStatusCompleted, result, nil)
}

// Fail marks a processing job failed with the captured error.
// Parameters:
//   - id: job id.
//   - jobErr: failure message and optional detail.
//
// Returns:
//   - error: ErrNotFound or ErrInvalidTransition.
func (s *Store) Fail(id string, jobErr *domain.JobError) error {
	return s.finish(id, domain.JobStatusFailed, nil, jobErr)
}

// finish applies a terminal transition. Status, result/error and updatedAt
// are written together under the lock.
func (s *Store) finish(id string, status domain.JobStatus, result *domain.JobResult, jobErr *domain.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return ErrInvalidTransition
	}

	job.Status = status
	job.Result = result
	job.Error = jobErr
	job.Credentials = nil
	job.UpdatedAt = time.Now()
	return nil
}

// Count returns the number of jobs currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Prune removes terminal jobs whose createdAt is older than maxAge.
// Parameters:
//   - maxAge: age ceiling for terminal jobs.
//
// Returns:
//   - int: number of jobs removed.
func (s *Store) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// EvictOverCapacity removes the oldest jobs, regardless of status, until the
// store holds at most maxCount. This is a lossy safety valve bounding memory,
// not a correctness guarantee.
// Parameters:
//   - maxCount: capacity ceiling.
//
// Returns:
//   - int: number of jobs evicted.
func (s *Store) EvictOverCapacity(maxCount int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := len(s.jobs) - maxCount
	if excess <= 0 {
		return 0
	}

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.jobs[ids[i]].CreatedAt.Before(s.jobs[ids[j]].CreatedAt)
	})

	for _, id := range ids[:excess] {
		delete(s.jobs, id)
	}
	return excess
}

// StartJanitor runs periodic pruning and capacity eviction until the context
// is cancelled. Intended to be started once from the composition root.
// Parameters:
//   - ctx: lifecycle context; cancellation stops the janitor.
//   - interval: sweep interval.
//
// Returns: none (runs in its own goroutine).
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruned := s.Prune(s.maxAge)
				evicted := s.EvictOverCapacity(s.maxCount)
				if pruned > 0 || evicted > 0 {
					s.log.WithFields(logger.Fields{
						"pruned":    pruned,
						"evicted":   evicted,
						"remaining": s.Count(),
					}).Info("Job store janitor sweep completed")
				}
			}
		}
	}()
}
