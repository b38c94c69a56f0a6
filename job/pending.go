package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docshift/converr"
)

// State represents where a conversion request is in its lifecycle
type State int

const (
	StatePending State = iota
	StateConverting
	StateArchiving
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConverting:
		return "converting"
	case StateArchiving:
		return "archiving"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var (
	ErrNotFound       = errors.New("request not found")
	ErrNotCancellable = errors.New("request cannot be cancelled")
	ErrInUse          = errors.New("request id already in use")
)

// Status is a snapshot of one tracked request
type Status struct {
	RequestID      string    `json:"request_id"`
	ConversionType string    `json:"conversion_type"`
	State          State     `json:"state"`
	Phase          string    `json:"phase,omitempty"`
	RemoteJobID    string    `json:"remote_job_id,omitempty"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type entry struct {
	status Status
	cancel context.CancelFunc
	// done is set once the owning Run has returned
	done bool
}

// Tracker holds the state and cancel function of every in-flight request
type Tracker struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	retention time.Duration
	now       func() time.Time
}

// NewTracker keeps finished entries visible for retention
func NewTracker(retention time.Duration) *Tracker {
	return &Tracker{
		entries:   make(map[string]*entry),
		retention: retention,
		now:       time.Now,
	}
}

// Register adds a pending request. An ID whose previous request has not
// returned from Finish yet is refused with ErrInUse.
func (t *Tracker) Register(id, conversionType string, cancel context.CancelFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok && !e.done {
		return fmt.Errorf("%w: %s is %s", ErrInUse, id, e.status.State)
	}
	now := t.now()
	t.entries[id] = &entry{
		status: Status{RequestID: id, ConversionType: conversionType, State: StatePending, StartedAt: now, UpdatedAt: now},
		cancel: cancel,
	}
	return nil
}

// SetState moves a request forward. Finished requests are left alone.
func (t *Tracker) SetState(id string, state State) {
	t.update(id, func(s *Status) { s.State = state })
}

// SetPhase records the remote job phase of a request
func (t *Tracker) SetPhase(id, remoteJobID, phase string) {
	t.update(id, func(s *Status) {
		s.Phase = phase
		if remoteJobID != "" {
			s.RemoteJobID = remoteJobID
		}
	})
}

func (t *Tracker) update(id string, fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || e.status.State.finished() {
		return
	}
	fn(&e.status)
	e.status.UpdatedAt = t.now()
}

// Get returns a snapshot of the request's status
func (t *Tracker) Get(id string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	if !ok {
		return Status{}, false
	}
	return e.status, true
}

// Cancel aborts a pending or converting request. Archiving and finished
// requests cannot be cancelled.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	switch e.status.State {
	case StatePending, StateConverting:
		e.cancel()
		e.status.State = StateCancelled
		e.status.UpdatedAt = t.now()
		return nil
	default:
		return fmt.Errorf("%w: %s is %s", ErrNotCancellable, id, e.status.State)
	}
}

// Finish marks the request completed, failed or cancelled depending on err
func (t *Tracker) Finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return
	}
	e.cancel()
	e.done = true
	if e.status.State == StateCancelled {
		return
	}

	switch {
	case err == nil:
		e.status.State = StateCompleted
	case converr.KindOf(err) == converr.KindCancelled:
		e.status.State = StateCancelled
		e.status.Error = converr.Message(err)
	default:
		e.status.State = StateFailed
		e.status.Error = converr.Message(err)
	}
	if id := converr.RemoteJobID(err); id != "" {
		e.status.RemoteJobID = id
	}
	e.status.UpdatedAt = t.now()
}

// Sweep drops finished entries older than the retention window
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.retention)
	removed := 0
	for id, e := range t.entries {
		if e.done && e.status.UpdatedAt.Before(cutoff) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

// Active counts requests whose Run has not returned
func (t *Tracker) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if !e.done {
			n++
		}
	}
	return n
}
