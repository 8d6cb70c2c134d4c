package attendance

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"geoattend/internal/face"
)

// Store is what the gate needs from persistence.
type Store interface {
	Employee(ctx context.Context, empID string) (*Employee, error)
	HasRecord(ctx context.Context, empID, workDate string, typ EventType) (bool, error)
	ApprovedLeaveOn(ctx context.Context, empID, workDate string) (bool, error)
	// Commit inserts rec and bumps the employee's counters atomically. It
	// returns ErrDuplicate when a record for (emp, date, type) already exists.
	Commit(ctx context.Context, rec Record) (Record, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]Record, error)
}

// LeaveStore persists leave applications.
type LeaveStore interface {
	InsertLeave(ctx context.Context, l LeaveApplication) (LeaveApplication, error)
	GetLeave(ctx context.Context, id string) (*LeaveApplication, error)
	// DecideLeave moves a pending application to status. Approval also
	// inserts a leave record for the leave date in the same transaction.
	DecideLeave(ctx context.Context, id string, status LeaveStatus, actor, reason string, at time.Time) (LeaveApplication, error)
	ListLeaves(ctx context.Context, f LeaveFilter) ([]LeaveApplication, error)
}

// AccountStore persists employee accounts.
type AccountStore interface {
	CreateEmployee(ctx context.Context, e Employee) error
	Employee(ctx context.Context, empID string) (*Employee, error)
	FindByLogin(ctx context.Context, login string) (*Employee, error)
	SetStatus(ctx context.Context, empID string, status AccountStatus) error
	ListEmployees(ctx context.Context, status AccountStatus) ([]Employee, error)
	SetReference(ctx context.Context, empID string, d face.Descriptor, enrollment string) error
	// NearestReference finds the enrolled employee whose descriptor is
	// closest to d, ignoring exclude.
	NearestReference(ctx context.Context, d face.Descriptor, exclude string) (empID string, distance float64, found bool, err error)
}

type recordKey struct {
	empID, date string
	typ         EventType
}

// MemoryStore is an in-process implementation of every store interface.
type MemoryStore struct {
	mu        sync.Mutex
	employees map[string]*Employee
	records   []Record
	index     map[recordKey]struct{}
	leaves    map[string]*LeaveApplication
	now       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		employees: map[string]*Employee{},
		index:     map[recordKey]struct{}{},
		leaves:    map[string]*LeaveApplication{},
		now:       time.Now,
	}
}

func (m *MemoryStore) CreateEmployee(_ context.Context, e Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.employees {
		if e.Email != "" && strings.EqualFold(other.Email, e.Email) {
			return ErrEmailTaken
		}
		if e.Phone != "" && other.Phone == e.Phone {
			return ErrPhoneTaken
		}
	}
	if e.RegisteredAt.IsZero() {
		e.RegisteredAt = m.now().UTC()
	}
	m.employees[e.EmpID] = &e
	return nil
}

func (m *MemoryStore) Employee(_ context.Context, empID string) (*Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[empID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) FindByLogin(_ context.Context, login string) (*Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.employees {
		if strings.EqualFold(e.Email, login) || e.Phone == login {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SetStatus(_ context.Context, empID string, status AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[empID]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	return nil
}

func (m *MemoryStore) ListEmployees(_ context.Context, status AccountStatus) ([]Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Employee
	for _, e := range m.employees {
		if status == "" || e.Status == status {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmpID < out[j].EmpID })
	return out, nil
}

func (m *MemoryStore) SetReference(_ context.Context, empID string, d face.Descriptor, enrollment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[empID]
	if !ok {
		return ErrNotFound
	}
	e.Reference = append(face.Descriptor(nil), d...)
	e.Enrollment = enrollment
	return nil
}

func (m *MemoryStore) NearestReference(_ context.Context, d face.Descriptor, exclude string) (string, float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		best  string
		bestD float64
		found bool
	)
	for id, e := range m.employees {
		if id == exclude || len(e.Reference) == 0 {
			continue
		}
		dist, err := face.Distance(d, e.Reference)
		if err != nil {
			continue
		}
		if !found || dist < bestD {
			best, bestD, found = id, dist, true
		}
	}
	return best, bestD, found, nil
}

func (m *MemoryStore) HasRecord(_ context.Context, empID, workDate string, typ EventType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[recordKey{empID, workDate, typ}]
	return ok, nil
}

func (m *MemoryStore) ApprovedLeaveOn(_ context.Context, empID, workDate string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leaves {
		if l.EmpID == empID && l.LeaveDate == workDate && l.Status == LeaveApproved {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Commit(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[rec.EmpID]
	if !ok {
		return Record{}, ErrNotFound
	}
	if err := m.insertLocked(&rec); err != nil {
		return Record{}, err
	}
	bump(&e.Counters, rec)
	return rec, nil
}

func (m *MemoryStore) insertLocked(rec *Record) error {
	key := recordKey{rec.EmpID, rec.WorkDate, rec.Type}
	if _, dup := m.index[key]; dup {
		return ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = m.now().UTC()
	m.index[key] = struct{}{}
	m.records = append(m.records, *rec)
	return nil
}

func bump(c *Counters, rec Record) {
	switch rec.Type {
	case CheckIn:
		c.TotalCheckIns++
		if rec.Status == Late {
			c.TotalLateCheckIns++
		}
	case CheckOut:
		c.TotalCheckOuts++
		if rec.Status == Early {
			c.TotalEarlyCheckOuts++
		}
	}
}

func (m *MemoryStore) ListRecords(_ context.Context, f RecordFilter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if f.EmpID != "" && r.EmpID != f.EmpID {
			continue
		}
		if f.Branch != "" && r.Branch != f.Branch {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if !inDateRange(r.WorkDate, f.From, f.To) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return paginate(out, f.Limit, f.Offset), nil
}

func (m *MemoryStore) InsertLeave(_ context.Context, l LeaveApplication) (LeaveApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	cp := l
	m.leaves[l.ID] = &cp
	return l, nil
}

func (m *MemoryStore) GetLeave(_ context.Context, id string) (*LeaveApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leaves[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) DecideLeave(_ context.Context, id string, status LeaveStatus, actor, reason string, at time.Time) (LeaveApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leaves[id]
	if !ok {
		return LeaveApplication{}, ErrNotFound
	}
	if l.Status != LeavePending {
		return LeaveApplication{}, ErrLeaveNotPending
	}
	if status == LeaveApproved {
		rec := Record{EmpID: l.EmpID, Type: Leave, Timestamp: at, WorkDate: l.LeaveDate, Status: ApprovedLeave, Branch: l.Branch}
		if e, ok := m.employees[l.EmpID]; ok {
			rec.Role = e.Role
		}
		if err := m.insertLocked(&rec); err != nil {
			return LeaveApplication{}, err
		}
	}
	l.Status = status
	l.DecidedAt = &at
	l.DecidedBy = actor
	l.RejectReason = reason
	return *l, nil
}

func (m *MemoryStore) ListLeaves(_ context.Context, f LeaveFilter) ([]LeaveApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LeaveApplication
	for _, l := range m.leaves {
		if f.EmpID != "" && l.EmpID != f.EmpID {
			continue
		}
		if f.Branch != "" && l.Branch != f.Branch {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if !inDateRange(l.LeaveDate, f.From, f.To) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out, nil
}

// inDateRange compares YYYY-MM-DD strings, which sort lexically.
func inDateRange(date, from, to string) bool {
	if from != "" && date < from {
		return false
	}
	if to != "" && date > to {
		return false
	}
	return true
}

func paginate(rs []Record, limit, offset int) []Record {
	if offset > 0 {
		if offset >= len(rs) {
			return nil
		}
		rs = rs[offset:]
	}
	if limit > 0 && limit < len(rs) {
		rs = rs[:limit]
	}
	return rs
}
