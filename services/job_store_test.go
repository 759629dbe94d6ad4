package services

import (
	"testing"
	"time"

	"document-insights-backend/models"
)

func TestJobStoreCreateAndGet(t *testing.T) {
	store := NewJobStore()

	job := store.Create("What was Q1 revenue?")
	if job.ID == "" {
		t.Fatal("job id must not be empty")
	}
	if job.Status != models.JobPending {
		t.Errorf("new job status = %q, want pending", job.Status)
	}

	got, ok := store.Get(job.ID)
	if !ok {
		t.Fatal("job not found after create")
	}
	if got.Query != "What was Q1 revenue?" {
		t.Errorf("query = %q", got.Query)
	}

	// Reads mutate nothing
	again, _ := store.Get(job.ID)
	if again != got {
		t.Errorf("repeated get returned different payloads: %+v vs %+v", got, again)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("expected not found for unknown id")
	}
}

func TestJobStoreClaim(t *testing.T) {
	store := NewJobStore()
	job := store.Create("q")

	if !store.Claim(job.ID) {
		t.Fatal("first claim must win")
	}
	if store.Claim(job.ID) {
		t.Error("second claim must lose")
	}

	got, _ := store.Get(job.ID)
	if got.Status != models.JobProcessing {
		t.Errorf("claimed job status = %q, want processing", got.Status)
	}

	if store.Claim("missing") {
		t.Error("claim on unknown job must fail")
	}
}

func TestJobStoreTerminalUpdates(t *testing.T) {
	store := NewJobStore()
	job := store.Create("q")

	store.SetResult(job.ID, "the answer")
	store.SetStatus(job.ID, models.JobCompleted)

	got, _ := store.Get(job.ID)
	if got.Status != models.JobCompleted || got.Result != "the answer" {
		t.Errorf("unexpected job after completion: %+v", got)
	}

	failed := store.Create("q2")
	store.SetError(failed.ID, "provider unavailable")
	got, _ = store.Get(failed.ID)
	if got.Status != models.JobError || got.Error != "provider unavailable" {
		t.Errorf("unexpected job after error: %+v", got)
	}

	// Updates on absent jobs are warnings, not panics
	store.SetStatus("missing", models.JobCompleted)
	store.SetResult("missing", "x")
	store.SetError("missing", "x")
}

func TestJobStoreDelete(t *testing.T) {
	store := NewJobStore()
	job := store.Create("q")

	if !store.Delete(job.ID) {
		t.Fatal("delete existing job must succeed")
	}
	if store.Delete(job.ID) {
		t.Error("delete of missing job must report false")
	}
	if _, ok := store.Get(job.ID); ok {
		t.Error("deleted job still readable")
	}
}

func TestJobStoreEviction(t *testing.T) {
	store := NewJobStore()
	old := store.Create("old")
	fresh := store.Create("fresh")

	// Backdate the old job past the eviction horizon
	store.mu.Lock()
	store.jobs[old.ID].CreatedAt = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	if evicted := store.EvictOlderThan(time.Hour); evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, ok := store.Get(old.ID); ok {
		t.Error("old job should have been evicted")
	}
	if _, ok := store.Get(fresh.ID); !ok {
		t.Error("fresh job must survive eviction")
	}
}

func TestJobStoreListNewestFirst(t *testing.T) {
	store := NewJobStore()
	a := store.Create("a")
	b := store.Create("b")

	store.mu.Lock()
	store.jobs[a.ID].CreatedAt = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	jobs := store.List()
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].ID != b.ID {
		t.Errorf("expected newest job first, got %s", jobs[0].ID)
	}
}
