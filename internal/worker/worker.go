// Package worker processes background jobs: reference-face enrollment,
// live board counters and the nightly summary.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"geoattend/internal/attendance"
	"geoattend/internal/queue"
	"geoattend/internal/report"
	"geoattend/internal/store"
)

// Enroller extracts reference descriptors.
type Enroller interface {
	Enroll(ctx context.Context, empID string) (string, error)
}

// Board receives live counter increments.
type Board interface {
	BumpBoard(ctx context.Context, date string, fields ...string) error
}

// Cache stores precomputed summaries.
type Cache interface {
	PutJSON(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// SummaryTTL is how long a nightly summary stays cached.
const SummaryTTL = 8 * 24 * time.Hour

type Worker struct {
	accounts Enroller
	board    Board
	cache    Cache
	records  report.Source
	shift    attendance.Shift
	now      func() time.Time
}

// New builds a worker. board and cache may be nil, which disables the live
// board and the summary cache.
func New(accounts Enroller, records report.Source, shift attendance.Shift, board Board, cache Cache) *Worker {
	return &Worker{accounts: accounts, board: board, cache: cache, records: records, shift: shift, now: time.Now}
}

// Handlers returns the queue handlers of this worker.
func (w *Worker) Handlers() queue.Handlers {
	return queue.Handlers{Enroll: w.enroll, Attendance: w.countEvent}
}

func (w *Worker) enroll(ctx context.Context, job queue.EnrollJob) error {
	state, err := w.accounts.Enroll(ctx, job.EmpID)
	if err != nil {
		return fmt.Errorf("enroll %s: %w", job.EmpID, err)
	}
	if state != attendance.EnrollEnrolled {
		slog.Warn("employee not enrolled", "emp_id", job.EmpID, "state", state)
	}
	return nil
}

func (w *Worker) countEvent(ctx context.Context, ev queue.AttendanceEvent) error {
	if w.board == nil {
		return nil
	}
	fields := store.BoardFields(ev.Branch, string(ev.Type), string(ev.Status))
	if err := w.board.BumpBoard(ctx, ev.WorkDate, fields...); err != nil {
		return fmt.Errorf("bump board %s: %w", ev.WorkDate, err)
	}
	return nil
}

// Run consumes q until ctx ends. A failed job is logged and dropped.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	h := w.Handlers()
	slog.Info("worker started")
	for msg := range msgs {
		if err := h.Dispatch(ctx, msg); err != nil {
			slog.Error("job failed", "type", msg.Type, "error", err)
		}
	}
	slog.Info("worker stopped")
	return nil
}

// SummarizeDay computes the all-branch summary of date and caches it.
func (w *Worker) SummarizeDay(ctx context.Context, date string) (report.Summary, error) {
	r, err := report.ParseRange(date, date, w.shift.Location)
	if err != nil {
		return report.Summary{}, err
	}
	recs, leaves, err := report.Fetch(ctx, w.records, "", r)
	if err != nil {
		return report.Summary{}, err
	}
	s := report.Summarize(recs, leaves, "", r)
	if w.cache == nil {
		return s, nil
	}
	body, err := json.Marshal(s)
	if err != nil {
		return s, err
	}
	if err := w.cache.PutJSON(ctx, report.DailyKey(date), body, SummaryTTL); err != nil {
		return s, fmt.Errorf("cache summary %s: %w", date, err)
	}
	return s, nil
}

// Schedule registers the nightly summary of the previous work date on spec,
// evaluated in the shift's zone. The caller starts and stops the returned cron.
func (w *Worker) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	loc := w.shift.Location
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		date := w.shift.WorkDate(w.now().AddDate(0, 0, -1))
		s, err := w.SummarizeDay(ctx, date)
		if err != nil {
			slog.Error("daily summary failed", "date", date, "error", err)
			return
		}
		slog.Info("daily summary cached", "date", date, "present", s.Overall.Present, "absent", s.Overall.Absent)
	})
	if err != nil {
		return nil, fmt.Errorf("summary schedule %q: %w", spec, err)
	}
	return c, nil
}
