package job

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicateJob    = errors.New("job already registered")
	ErrUnknownJob      = errors.New("job not registered")
	ErrAlreadyTerminal = errors.New("job already in terminal state")
	ErrNotTerminal     = errors.New("status is not terminal")
)

// Registry is the process-wide table of job lifecycle states. It is never
// persisted and never evicts: entries live as long as the process.
//
// Each entry has a single writer (the runner that owns the job), so the lock
// only guards the map itself and is never held across slow work.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Snapshot
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Snapshot)}
}

// Create inserts a pending entry with no URL.
func (r *Registry) Create(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; ok {
		return fmt.Errorf("create %s: %w", id, ErrDuplicateJob)
	}
	r.jobs[id] = Snapshot{Status: StatusPending}
	return nil
}

// Get returns the current snapshot, or a StatusUnknown snapshot for ids
// that were never created. It never fails.
func (r *Registry) Get(id string) Snapshot {
	r.mu.RLock()
	s, ok := r.jobs[id]
	r.mu.RUnlock()

	if !ok {
		return Snapshot{Status: StatusUnknown}
	}
	if s.URL != nil {
		u := *s.URL
		s.URL = &u
	}
	return s
}

// SetTerminal moves a pending job to completed (with url) or error (url is
// dropped). The first terminal write wins; later writes return
// ErrAlreadyTerminal and leave the entry untouched.
func (r *Registry) SetTerminal(id string, status Status, url string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("set %s to %q: %w", id, status, ErrNotTerminal)
	}
	if status == StatusCompleted && url == "" {
		return fmt.Errorf("set %s completed: url must not be empty", id)
	}

	next := Snapshot{Status: status}
	if status == StatusCompleted {
		next.URL = &url
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("set %s: %w", id, ErrUnknownJob)
	}
	if cur.Status.IsTerminal() {
		return fmt.Errorf("set %s to %q (is %q): %w", id, status, cur.Status, ErrAlreadyTerminal)
	}
	r.jobs[id] = next
	return nil
}

// Len returns the number of jobs registered since start.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
