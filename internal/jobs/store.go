package jobs

import (
	"errors"
)

var (
	// ErrNotFound is returned for operations against an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateID is returned when creating a job whose id already
	// exists. Ids are generated by the orchestrator, so hitting this is
	// a checked invariant rather than an expected condition.
	ErrDuplicateID = errors.New("job id already exists")
)

// Store is the single source of truth for job status and progress.
// Implementations must serialize updates per id while letting updates
// to different ids proceed concurrently.
type Store interface {
	// Create inserts a new record, failing with ErrDuplicateID if the
	// id is already present.
	Create(job *Job) error
	// Get returns a snapshot of the record or ErrNotFound.
	Get(id string) (*Job, error)
	// Update atomically applies mutate to the stored record and
	// refreshes UpdatedAt, returning the updated snapshot. An error
	// from mutate aborts the update and is returned unchanged.
	Update(id string, mutate func(*Job) error) (*Job, error)
	// List returns a snapshot of all records in unspecified order.
	List() ([]*Job, error)
	// Delete removes a record. Used for enqueue rollback and by
	// retention sweeps; ErrNotFound if absent.
	Delete(id string) error
	Close() error
}
