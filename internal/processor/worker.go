package processor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"mediaconv/internal/convert"
	"mediaconv/internal/jobs"
)

// Worker binds queue deliveries to store mutations and converter
// invocations. It is the only component that writes job state after
// intake, which keeps updates to a record totally ordered.
type Worker struct {
	Log      *slog.Logger
	Store    jobs.Store
	Registry *convert.Registry
	Policy   jobs.RetryPolicy
	WorkDir  string // storage area holding inputs and produced artifacts
}

// Ensure Worker implements jobs.Processor
var _ jobs.Processor = (*Worker)(nil)

func New(log *slog.Logger, store jobs.Store, registry *convert.Registry, policy jobs.RetryPolicy, workDir string) *Worker {
	return &Worker{
		Log:      log,
		Store:    store,
		Registry: registry,
		Policy:   policy,
		WorkDir:  workDir,
	}
}

func (w *Worker) Process(ctx context.Context, item jobs.WorkItem) error {
	job, err := w.Store.Get(item.JobID)
	if err != nil {
		// A queued item without a record should not occur; drop it.
		w.Log.Warn("dropping work item without record", "job_id", item.JobID, "err", err)
		return nil
	}

	// Claim: pending -> processing on the first attempt; retries find
	// the job already processing and keep it there.
	if _, err := w.Store.Update(job.ID, func(j *jobs.Job) error {
		if j.Status == jobs.StatusProcessing {
			return nil
		}
		return j.SetStatus(jobs.StatusProcessing)
	}); err != nil {
		w.Log.Warn("dropping unclaimable work item", "job_id", job.ID, "status", job.Status, "err", err)
		return nil
	}

	converter, err := w.Registry.Resolve(job.Type, job.TargetFormat)
	if err != nil {
		// No converter path: fail fast before any file I/O, no retry.
		w.fail(job.ID, err)
		return err
	}

	req := convert.Request{
		InputPath:    w.inputPath(job),
		TargetFormat: job.TargetFormat,
		OutputDir:    w.WorkDir,
	}
	result, err := converter.Convert(ctx, req, func(percent int) {
		w.reportProgress(job.ID, percent)
	})
	if err != nil {
		if w.Policy.ShouldRetry(item.Attempt, err) {
			// The queue redelivers; the record stays processing.
			return err
		}
		w.fail(job.ID, err)
		return err
	}

	if _, err := w.Store.Update(job.ID, func(j *jobs.Job) error {
		return j.Complete(result.OutputFile)
	}); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	w.Log.Info("job completed", "job_id", job.ID, "output", result.OutputFile)
	return nil
}

func (w *Worker) inputPath(job *jobs.Job) string {
	return filepath.Join(w.WorkDir, job.InputFile)
}

// reportProgress forwards a converter progress callback into the store.
// Clamping and the monotonicity rule live on the model, so out-of-order
// or duplicate reports never move progress backward.
func (w *Worker) reportProgress(id string, percent int) {
	if _, err := w.Store.Update(id, func(j *jobs.Job) error {
		j.SetProgress(percent)
		return nil
	}); err != nil {
		w.Log.Warn("progress update", "job_id", id, "err", err)
	}
}

func (w *Worker) fail(id string, cause error) {
	if _, err := w.Store.Update(id, func(j *jobs.Job) error {
		return j.Fail(cause.Error())
	}); err != nil {
		w.Log.Error("record failure", "job_id", id, "err", err)
	}
}
