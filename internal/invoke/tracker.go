package invoke

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"subflow/internal/api"
	"subflow/pkg/logging"
)

// InvocationStatus is the tracking status of an invocation.
type InvocationStatus string

const (
	InvocationInProgress InvocationStatus = "inprogress"
	InvocationCompleted  InvocationStatus = "completed"
	InvocationFailed     InvocationStatus = "failed"
)

// Invocation is the history record of one call.
type Invocation struct {
	ID          string                 `json:"id"`
	Caller      string                 `json:"caller,omitempty"`
	Target      string                 `json:"target"`
	Location    string                 `json:"location,omitempty"`
	Status      InvocationStatus       `json:"status"`
	State       api.TerminalState      `json:"state,omitempty"`
	StartedAt   time.Time              `json:"startedAt"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	DurationMs  int64                  `json:"durationMs"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Error       *string                `json:"error,omitempty"`
}

// DefaultHistorySize is the number of invocations kept by NewTracker when
// no limit is given.
const DefaultHistorySize = 100

// Tracker keeps a bounded in-memory history of invocations.
type Tracker struct {
	mu      sync.RWMutex
	limit   int
	records []*Invocation
}

// NewTracker creates a tracker that keeps the last limit invocations.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &Tracker{limit: limit}
}

// Track records an invocation around fn. The result and error of fn are
// returned unchanged.
func (t *Tracker) Track(req Request, fn func(id string) (*api.InvocationResult, error)) (*api.InvocationResult, error) {
	record := &Invocation{
		ID:        uuid.New().String(),
		Caller:    req.Caller,
		Target:    req.Target,
		Status:    InvocationInProgress,
		StartedAt: time.Now(),
		Inputs:    req.Inputs,
	}
	t.add(record)

	logging.Debug("Service", "Starting invocation %s of %s", record.ID, req.Target)
	result, err := fn(record.ID)

	end := time.Now()
	t.mu.Lock()
	record.CompletedAt = &end
	record.DurationMs = end.Sub(record.StartedAt).Milliseconds()
	if result != nil {
		record.Location = result.Location
		record.State = result.State
		result.InvocationID = record.ID
	}
	if err != nil {
		record.Status = InvocationFailed
		msg := err.Error()
		record.Error = &msg
	} else {
		record.Status = InvocationCompleted
	}
	t.mu.Unlock()

	logging.Debug("Service", "Completed invocation %s of %s (%s, %dms)", record.ID, req.Target, record.Status, record.DurationMs)
	return result, err
}

func (t *Tracker) add(record *Invocation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, record)
	if len(t.records) > t.limit {
		t.records = append([]*Invocation(nil), t.records[len(t.records)-t.limit:]...)
	}
}

// Get returns a copy of the invocation with the given id.
func (t *Tracker) Get(id string) (Invocation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.records {
		if r.ID == id {
			return *r, true
		}
	}
	return Invocation{}, false
}

// List returns copies of the tracked invocations, newest first.
func (t *Tracker) List() []Invocation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	list := make([]Invocation, 0, len(t.records))
	for i := len(t.records) - 1; i >= 0; i-- {
		list = append(list, *t.records[i])
	}
	return list
}
