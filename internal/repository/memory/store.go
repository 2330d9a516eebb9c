// Package memory is an in-process implementation of repository.Store used by
// tests and by STORE_DRIVER=memory local runs. A transaction holds the store
// mutex for its whole duration and restores a snapshot when it fails, so it
// gives the same all-or-nothing and serialization guarantees the PostgreSQL
// store gets from row locks.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
)

// Store is a mutex-guarded in-memory repository.Store.
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated/acted timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{data: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTransaction runs fn with exclusive access to the store. Any error or
// panic restores the state seen before fn started.
func (s *Store) InTransaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	snapshot := s.data.clone()
	committed := false
	defer func() {
		if !committed {
			s.data = snapshot
		}
		s.mu.Unlock()
	}()

	if err := fn(view{s: s, inTx: true}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) WorkflowSteps() repository.WorkflowSteps     { return view{s: s}.WorkflowSteps() }
func (s *Store) VisitorRequests() repository.VisitorRequests { return view{s: s}.VisitorRequests() }
func (s *Store) Approvals() repository.Approvals             { return view{s: s}.Approvals() }
func (s *Store) AuditLog() repository.AuditLog               { return view{s: s}.AuditLog() }
func (s *Store) Directory() repository.Directory             { return view{s: s}.Directory() }

// view binds repositories to the store. Inside a transaction the mutex is
// already held and each operation runs without locking.
type view struct {
	s    *Store
	inTx bool
}

func (v view) WorkflowSteps() repository.WorkflowSteps     { return stepRepo{v} }
func (v view) VisitorRequests() repository.VisitorRequests { return requestRepo{v} }
func (v view) Approvals() repository.Approvals             { return approvalRepo{v} }
func (v view) AuditLog() repository.AuditLog               { return auditRepo{v} }
func (v view) Directory() repository.Directory             { return directoryRepo{v} }

func (v view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v view) state() *state { return v.s.data }

// stamp returns the current time and the next insertion sequence number.
func (v view) stamp() (time.Time, int64) {
	v.s.data.seq++
	return v.s.now().UTC(), v.s.data.seq
}

// ── state ────────────────────────────────────────────────────────────────────

type stepRecord struct {
	repository.WorkflowStep
	seq int64
}

type requestRecord struct {
	repository.VisitorRequest
	seq int64
}

type approvalRecord struct {
	repository.Approval
	seq int64
}

type state struct {
	warehouses   map[string]repository.Warehouse
	timeSlots    map[string]repository.TimeSlot
	visitorTypes map[string]repository.VisitorType
	users        map[string]repository.User

	steps     map[string]stepRecord
	requests  map[string]requestRecord
	approvals map[string]approvalRecord
	audit     []repository.ApprovalAuditEntry

	seq int64
}

func newState() *state {
	return &state{
		warehouses:   make(map[string]repository.Warehouse),
		timeSlots:    make(map[string]repository.TimeSlot),
		visitorTypes: make(map[string]repository.VisitorType),
		users:        make(map[string]repository.User),
		steps:        make(map[string]stepRecord),
		requests:     make(map[string]requestRecord),
		approvals:    make(map[string]approvalRecord),
	}
}

// clone copies every table. Records are stored by value and slice fields are
// copied, so a snapshot never aliases the live state.
func (st *state) clone() *state {
	c := newState()
	for k, v := range st.warehouses {
		c.warehouses[k] = v
	}
	for k, v := range st.timeSlots {
		c.timeSlots[k] = v
	}
	for k, v := range st.visitorTypes {
		c.visitorTypes[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.steps {
		c.steps[k] = v
	}
	for k, v := range st.requests {
		v.Accompanying = append([]repository.AccompanyingPerson(nil), v.Accompanying...)
		c.requests[k] = v
	}
	for k, v := range st.approvals {
		c.approvals[k] = v
	}
	c.audit = append(c.audit, st.audit...)
	c.seq = st.seq
	return c
}
