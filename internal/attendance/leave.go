package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// LeaveService runs the leave application workflow.
type LeaveService struct {
	leaves   LeaveStore
	accounts AccountStore
	shift    Shift
	now      func() time.Time
}

// NewLeaveService creates a leave service.
func NewLeaveService(leaves LeaveStore, accounts AccountStore, shift Shift) *LeaveService {
	return &LeaveService{leaves: leaves, accounts: accounts, shift: shift, now: time.Now}
}

// Apply files a pending application for date. An employee holds at most one
// pending or approved application per date.
func (s *LeaveService) Apply(ctx context.Context, empID, date, leaveType, reason string) (LeaveApplication, error) {
	if _, err := s.shift.ParseDate(date); err != nil {
		return LeaveApplication{}, err
	}
	leaveType = strings.TrimSpace(leaveType)
	if leaveType == "" {
		return LeaveApplication{}, ErrLeaveTypeRequired
	}
	emp, err := s.accounts.Employee(ctx, empID)
	if err != nil {
		return LeaveApplication{}, err
	}
	existing, err := s.leaves.ListLeaves(ctx, LeaveFilter{EmpID: emp.EmpID, From: date, To: date})
	if err != nil {
		return LeaveApplication{}, fmt.Errorf("list leaves: %w", err)
	}
	for _, prev := range existing {
		if prev.Status != LeaveRejected {
			return LeaveApplication{}, ErrLeaveExists
		}
	}
	l, err := s.leaves.InsertLeave(ctx, LeaveApplication{
		EmpID:     emp.EmpID,
		Branch:    emp.Branch,
		LeaveDate: date,
		LeaveType: leaveType,
		Reason:    strings.TrimSpace(reason),
		Status:    LeavePending,
		AppliedAt: s.now().UTC(),
	})
	if err != nil {
		return LeaveApplication{}, fmt.Errorf("insert leave: %w", err)
	}
	slog.Info("leave applied", "id", l.ID, "emp_id", l.EmpID, "date", l.LeaveDate)
	return l, nil
}

// Approve marks a pending application approved and records the leave day.
func (s *LeaveService) Approve(ctx context.Context, id, actor string) (LeaveApplication, error) {
	return s.decide(ctx, id, LeaveApproved, actor, "")
}

// Reject marks a pending application rejected.
func (s *LeaveService) Reject(ctx context.Context, id, actor, reason string) (LeaveApplication, error) {
	return s.decide(ctx, id, LeaveRejected, actor, strings.TrimSpace(reason))
}

func (s *LeaveService) decide(ctx context.Context, id string, status LeaveStatus, actor, reason string) (LeaveApplication, error) {
	cur, err := s.leaves.GetLeave(ctx, id)
	if err != nil {
		return LeaveApplication{}, err
	}
	if cur.EmpID == actor {
		return LeaveApplication{}, ErrOwnLeave
	}
	l, err := s.leaves.DecideLeave(ctx, id, status, actor, reason, s.now().UTC())
	if err != nil {
		return LeaveApplication{}, err
	}
	slog.Info("leave decided", "id", id, "status", status, "by", actor)
	return l, nil
}

// List returns applications matching f.
func (s *LeaveService) List(ctx context.Context, f LeaveFilter) ([]LeaveApplication, error) {
	return s.leaves.ListLeaves(ctx, f)
}

// Get returns one application.
func (s *LeaveService) Get(ctx context.Context, id string) (*LeaveApplication, error) {
	return s.leaves.GetLeave(ctx, id)
}
