package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mediaconv/internal/convert"
)

// Service is the intake-facing surface of the orchestrator: it creates
// job records and hands them to the queue. All later mutations happen
// in the dispatcher.
type Service struct {
	log   *slog.Logger
	store Store
	queue *Queue
}

func NewService(log *slog.Logger, store Store, queue *Queue) *Service {
	return &Service{log: log, store: store, queue: queue}
}

// Enqueue registers a new conversion request and queues it for
// processing. When queue delivery fails the record is rolled back, so
// callers never observe a job that will not be worked.
func (s *Service) Enqueue(mediaType convert.MediaType, inputFile, targetFormat string) (*Job, error) {
	if !mediaType.Valid() {
		return nil, fmt.Errorf("unknown media type %q", mediaType)
	}
	now := time.Now().UTC()
	job := &Job{
		ID:           uuid.NewString(),
		Type:         mediaType,
		Status:       StatusPending,
		InputFile:    inputFile,
		TargetFormat: targetFormat,
		Progress:     0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	if err := s.queue.Enqueue(WorkItem{JobID: job.ID, Attempt: 1}); err != nil {
		if delErr := s.store.Delete(job.ID); delErr != nil {
			s.log.Error("rollback job after enqueue failure", "job_id", job.ID, "err", delErr)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	s.log.Info("job enqueued", "job_id", job.ID, "type", mediaType, "target_format", targetFormat)
	return job, nil
}

// GetStatus returns the current snapshot of a job, ErrNotFound when the
// id is unknown.
func (s *Service) GetStatus(id string) (*Job, error) {
	return s.store.Get(id)
}

// ListJobs returns a snapshot of all jobs. Diagnostic use only.
func (s *Service) ListJobs() ([]*Job, error) {
	return s.store.List()
}
