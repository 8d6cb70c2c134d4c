package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"geoattend/internal/attendance"
	"geoattend/internal/observability"
)

// EnrollJob asks the worker to extract an employee's reference descriptor.
type EnrollJob struct {
	EmpID string `json:"emp_id"`
}

// AttendanceEvent announces a committed record.
type AttendanceEvent struct {
	RecordID  string               `json:"record_id"`
	EmpID     string               `json:"emp_id"`
	Name      string               `json:"name"`
	Branch    string               `json:"branch"`
	Type      attendance.EventType `json:"type"`
	Status    attendance.Status    `json:"status"`
	WorkDate  string               `json:"date"`
	Timestamp time.Time            `json:"timestamp"`
}

// EventFromOutcome builds the event for a committed gate outcome.
func EventFromOutcome(out attendance.Outcome) AttendanceEvent {
	ev := AttendanceEvent{
		RecordID:  out.Record.ID,
		EmpID:     out.Record.EmpID,
		Branch:    out.Record.Branch,
		Type:      out.Record.Type,
		Status:    out.Record.Status,
		WorkDate:  out.Record.WorkDate,
		Timestamp: out.Record.Timestamp,
	}
	if out.Employee != nil {
		ev.Name = out.Employee.Name
	}
	return ev
}

// Encode wraps body as a Message of type typ.
func Encode(typ string, body any) (Message, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return Message{Type: typ, Body: raw}, nil
}

// Publisher publishes typed jobs and events on a Queue.
type Publisher struct {
	q Queue
}

func NewPublisher(q Queue) *Publisher {
	return &Publisher{q: q}
}

// EnqueueEnrollment implements attendance.EnrollmentQueue.
func (p *Publisher) EnqueueEnrollment(ctx context.Context, empID string) error {
	msg, err := Encode(TypeEnroll, EnrollJob{EmpID: empID})
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, msg)
}

// Observe is a gate observer that publishes an AttendanceEvent. Failures
// are logged and counted; the record is already committed.
func (p *Publisher) Observe(ctx context.Context, out attendance.Outcome) {
	msg, err := Encode(TypeAttendance, EventFromOutcome(out))
	if err == nil {
		err = p.q.Publish(ctx, msg)
	}
	if err != nil {
		observability.QueuePublishFailures.WithLabelValues(TypeAttendance).Inc()
		slog.Error("attendance event not published", "record_id", out.Record.ID, "error", err)
	}
}

// Handlers routes messages by type.
type Handlers struct {
	Enroll     func(ctx context.Context, job EnrollJob) error
	Attendance func(ctx context.Context, ev AttendanceEvent) error
}

// Dispatch decodes msg and calls the matching handler. Unknown types are
// an error.
func (h Handlers) Dispatch(ctx context.Context, msg Message) error {
	switch msg.Type {
	case TypeEnroll:
		var job EnrollJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		if h.Enroll == nil {
			return nil
		}
		return h.Enroll(ctx, job)
	case TypeAttendance:
		var ev AttendanceEvent
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		if h.Attendance == nil {
			return nil
		}
		return h.Attendance(ctx, ev)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}
