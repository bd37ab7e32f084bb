package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mediaconv/internal/convert"
)

func startedQueue(t *testing.T, capacity, workers int, p Processor) *Queue {
	t.Helper()
	q := NewQueue(testLogger(), capacity, workers, DefaultRetryPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := q.Start(ctx, p); err != nil {
		t.Fatalf("start queue: %v", err)
	}
	return q
}

func TestService_EnqueueCreatesPendingJob(t *testing.T) {
	store := NewMemoryStore()
	// A processor that never picks up lets us observe the pending state.
	blocker := make(chan struct{})
	defer close(blocker)
	q := startedQueue(t, 8, 1, processorFunc(func(ctx context.Context, item WorkItem) error {
		<-blocker
		return nil
	}))
	svc := NewService(testLogger(), store, q)

	job, err := svc.Enqueue(convert.MediaImage, "photo.png", "webp")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("job id not assigned")
	}
	if job.Status != StatusPending || job.Progress != 0 {
		t.Fatalf("fresh job must be pending with progress 0: %+v", job)
	}

	got, err := svc.GetStatus(job.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got.Status != StatusPending && got.Status != StatusProcessing {
		t.Fatalf("observed status %q before terminal state", got.Status)
	}
}

func TestService_EnqueueRejectsUnknownType(t *testing.T) {
	svc := NewService(testLogger(), NewMemoryStore(), startedQueue(t, 1, 1, processorFunc(func(ctx context.Context, item WorkItem) error { return nil })))
	if _, err := svc.Enqueue("spreadsheet", "in.xlsx", "pdf"); err == nil {
		t.Fatalf("unknown media type accepted")
	}
}

func TestService_QueueFailureRollsBackRecord(t *testing.T) {
	store := NewMemoryStore()
	q := NewQueue(testLogger(), 1, 1, DefaultRetryPolicy()) // never started
	svc := NewService(testLogger(), store, q)

	_, err := svc.Enqueue(convert.MediaAudio, "in.wav", "mp3")
	if !errors.Is(err, ErrQueueNotStarted) {
		t.Fatalf("expected queue error, got %v", err)
	}
	all, _ := store.List()
	if len(all) != 0 {
		t.Fatalf("record leaked after queue failure: %+v", all)
	}
}

func TestService_ConcurrentEnqueueYieldsDistinctJobs(t *testing.T) {
	store := NewMemoryStore()
	q := startedQueue(t, 128, 4, processorFunc(func(ctx context.Context, item WorkItem) error {
		time.Sleep(time.Millisecond)
		return nil
	}))
	svc := NewService(testLogger(), store, q)

	const n = 40
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := svc.Enqueue(convert.MediaVideo, "clip.avi", "mp4")
			if err != nil {
				t.Errorf("Enqueue: %v", err)
				return
			}
			ids <- job.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate job id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
	}

	all, err := svc.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d records, got %d", n, len(all))
	}
}
