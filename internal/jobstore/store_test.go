package jobstore

import (
	"testing"
	"time"

	"github.com/timmy/relay/internal/domain"
)

func newTestStore() *Store {
	return New(&Config{MaxAge: time.Minute, MaxCount: 10}, nil)
}

func enqueueTest(s *Store) string {
	return s.Enqueue(domain.JobPayload{Model: "gpt-4o-mini", Text: "hello", TargetLang: "ja"}, map[string]string{"openai": "sk-test"})
}

func TestStore_Lifecycle(t *testing.T) {
	s := newTestStore()
	id := enqueueTest(s)

	job, ok := s.Get(id)
	if !ok {
		t.Fatal("expected job to exist after enqueue")
	}
	if job.Status != domain.JobStatusQueued {
		t.Errorf("expected queued, got %s", job.Status)
	}
	if job.Credentials != nil {
		t.Error("Get must never expose credentials")
	}

	claimed, err := s.Claim(id)
	if err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if claimed.Status != domain.JobStatusProcessing {
		t.Errorf("expected processing after claim, got %s", claimed.Status)
	}
	if claimed.Credentials["openai"] != "sk-test" {
		t.Error("claim must hand credentials to the processor")
	}

	result := &domain.JobResult{Provider: "openai", Model: "gpt-4o-mini"}
	if err := s.Complete(id, result); err != nil {
		t.Fatalf("unexpected complete error: %v", err)
	}

	job, _ = s.Get(id)
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	if job.Result == nil {
		t.Error("completed job must carry its result")
	}
	if job.Error != nil {
		t.Error("completed job must not carry an error")
	}
}

func TestStore_FailedJobCarriesErrorOnly(t *testing.T) {
	s := newTestStore()
	id := enqueueTest(s)

	if _, err := s.Claim(id); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if err := s.Fail(id, &domain.JobError{Message: "upstream rejected request"}); err != nil {
		t.Fatalf("unexpected fail error: %v", err)
	}

	job, _ := s.Get(id)
	if job.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	if job.Error == nil || job.Error.Message != "upstream rejected request" {
		t.Errorf("expected captured error, got %+v", job.Error)
	}
	if job.Result != nil {
		t.Error("failed job must not carry a result")
	}
}

func TestStore_InvalidTransitions(t *testing.T) {
	s := newTestStore()
	id := enqueueTest(s)

	// Terminal writes require a prior claim.
	if err := s.Complete(id, &domain.JobResult{}); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition completing a queued job, got %v", err)
	}

	if _, err := s.Claim(id); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	// Exactly one claim succeeds.
	if _, err := s.Claim(id); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition on double claim, got %v", err)
	}

	if err := s.Complete(id, &domain.JobResult{}); err != nil {
		t.Fatalf("unexpected complete error: %v", err)
	}
	// Terminal states are final.
	if err := s.Fail(id, &domain.JobError{Message: "late failure"}); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition failing a completed job, got %v", err)
	}
	job, _ := s.Get(id)
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("terminal status must not regress, got %s", job.Status)
	}

	if _, err := s.Claim("no-such-id"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_CredentialsClearedOnFinish(t *testing.T) {
	s := newTestStore()
	id := enqueueTest(s)

	if _, err := s.Claim(id); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if err := s.Complete(id, &domain.JobResult{}); err != nil {
		t.Fatalf("unexpected complete error: %v", err)
	}

	s.mu.RLock()
	creds := s.jobs[id].Credentials
	s.mu.RUnlock()
	if creds != nil {
		t.Error("credentials must be dropped once the job is terminal")
	}
}

func TestStore_PruneAgeBoundary(t *testing.T) {
	s := newTestStore()

	oldID := enqueueTest(s)
	freshID := enqueueTest(s)
	pendingID := enqueueTest(s)

	for _, id := range []string{oldID, freshID} {
		if _, err := s.Claim(id); err != nil {
			t.Fatalf("unexpected claim error: %v", err)
		}
		if err := s.Complete(id, &domain.JobResult{}); err != nil {
			t.Fatalf("unexpected complete error: %v", err)
		}
	}

	// Backdate one terminal job past the age ceiling.
	s.mu.Lock()
	s.jobs[oldID].CreatedAt = time.Now().Add(-2 * time.Minute)
	// Backdate the pending job too: age alone must not prune it.
	s.jobs[pendingID].CreatedAt = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	if removed := s.Prune(time.Minute); removed != 1 {
		t.Errorf("expected 1 pruned job, got %d", removed)
	}
	if _, ok := s.Get(oldID); ok {
		t.Error("expected old terminal job to be pruned")
	}
	if _, ok := s.Get(freshID); !ok {
		t.Error("fresh terminal job must survive pruning")
	}
	if _, ok := s.Get(pendingID); !ok {
		t.Error("non-terminal job must survive pruning regardless of age")
	}
}

func TestStore_EvictOverCapacityOldestFirst(t *testing.T) {
	s := newTestStore()

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = enqueueTest(s)
	}
	// Spread creation times so ordering is deterministic.
	s.mu.Lock()
	for i, id := range ids {
		s.jobs[id].CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
	}
	s.mu.Unlock()

	if evicted := s.EvictOverCapacity(3); evicted != 2 {
		t.Errorf("expected 2 evictions, got %d", evicted)
	}
	if s.Count() != 3 {
		t.Errorf("expected 3 jobs remaining, got %d", s.Count())
	}
	for _, id := range ids[:2] {
		if _, ok := s.Get(id); ok {
			t.Error("expected the oldest jobs to be evicted first")
		}
	}
	for _, id := range ids[2:] {
		if _, ok := s.Get(id); !ok {
			t.Error("expected the newest jobs to survive eviction")
		}
	}

	if evicted := s.EvictOverCapacity(10); evicted != 0 {
		t.Errorf("expected no evictions under capacity, got %d", evicted)
	}
}
