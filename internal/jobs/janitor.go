package jobs

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Janitor periodically evicts terminal jobs older than MaxAge together
// with their files in the storage dir. Retention is an administrative
// concern layered on top of the store; the orchestrator itself never
// deletes records.
type Janitor struct {
	Log      *slog.Logger
	Store    Store
	Dir      string
	MaxAge   time.Duration
	Interval time.Duration
}

// Run sweeps on a ticker until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep removes expired terminal jobs and their artifacts.
func (j *Janitor) Sweep() {
	if j.MaxAge <= 0 {
		return
	}
	all, err := j.Store.List()
	if err != nil {
		j.Log.Warn("janitor list jobs", "err", err)
		return
	}
	cutoff := time.Now().UTC().Add(-j.MaxAge)
	for _, job := range all {
		if !job.Status.Terminal() || job.UpdatedAt.After(cutoff) {
			continue
		}
		for _, name := range []string{job.InputFile, job.OutputFile} {
			if name == "" {
				continue
			}
			if err := os.Remove(filepath.Join(j.Dir, name)); err != nil && !os.IsNotExist(err) {
				j.Log.Warn("janitor remove file", "job_id", job.ID, "file", name, "err", err)
			}
		}
		if err := j.Store.Delete(job.ID); err != nil {
			j.Log.Warn("janitor delete job", "job_id", job.ID, "err", err)
			continue
		}
		j.Log.Info("expired job removed", "job_id", job.ID)
	}
}
