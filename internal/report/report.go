// Package report aggregates attendance records into summary and per-day
// detail reports. Everything here is a pure function of its inputs.
package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"geoattend/internal/attendance"
)

const (
	dateLayout    = "2006-01-02"
	standardShift = 8 * time.Hour
	maxRangeDays  = 366
)

var ErrInvalidRange = errors.New("invalid date range")

// Range is an inclusive span of calendar dates in one time zone.
type Range struct {
	From time.Time
	To   time.Time
}

// ParseRange parses YYYY-MM-DD bounds in loc.
func ParseRange(from, to string, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}
	f, err := time.ParseInLocation(dateLayout, from, loc)
	if err != nil {
		return Range{}, fmt.Errorf("%w: from %q", ErrInvalidRange, from)
	}
	t, err := time.ParseInLocation(dateLayout, to, loc)
	if err != nil {
		return Range{}, fmt.Errorf("%w: to %q", ErrInvalidRange, to)
	}
	if t.Before(f) {
		return Range{}, fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to, from)
	}
	r := Range{From: f, To: t}
	if n := len(r.Days()); n > maxRangeDays {
		return Range{}, fmt.Errorf("%w: %d days exceeds %d", ErrInvalidRange, n, maxRangeDays)
	}
	return r, nil
}

// Days lists every calendar day in the range.
func (r Range) Days() []time.Time {
	var days []time.Time
	for d := r.From; !d.After(r.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// WorkingDays counts Monday to Friday days in the range.
func (r Range) WorkingDays() int {
	n := 0
	for _, d := range r.Days() {
		if !isWeekend(d) {
			n++
		}
	}
	return n
}

// Contains reports whether a YYYY-MM-DD date falls in the range.
func (r Range) Contains(date string) bool {
	return date >= r.From.Format(dateLayout) && date <= r.To.Format(dateLayout)
}

func (r Range) String() string {
	return r.From.Format(dateLayout) + ".." + r.To.Format(dateLayout)
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}

// Stats are the summary figures for a set of employees.
type Stats struct {
	Employees      int             `json:"employees"`
	WorkingDays    int             `json:"working_days"`
	Present        int             `json:"present"`
	Absent         int             `json:"absent"`
	Late           int             `json:"late"`
	Early          int             `json:"early"`
	ApprovedLeaves int             `json:"approved_leaves"`
	OvertimeHours  decimal.Decimal `json:"overtime_hours"`
	AttendancePct  decimal.Decimal `json:"attendance_pct"`
}

// Summary is the overall and per-branch statistics for a range.
type Summary struct {
	From     string           `json:"from"`
	To       string           `json:"to"`
	Branch   string           `json:"branch,omitempty"`
	Overall  Stats            `json:"overall"`
	Branches map[string]Stats `json:"branches"`
}

// Summarize computes statistics over records and leaves in r. An empty
// branch means every branch. Only approved leaves are counted.
func Summarize(records []attendance.Record, leaves []attendance.LeaveApplication, branch string, r Range) Summary {
	recs := filterRecords(records, branch, r)
	approved := filterLeaves(leaves, branch, r)

	s := Summary{
		From:     r.From.Format(dateLayout),
		To:       r.To.Format(dateLayout),
		Branch:   branch,
		Overall:  stats(recs, approved, r.WorkingDays()),
		Branches: map[string]Stats{},
	}

	byBranch := map[string][]attendance.Record{}
	for _, rec := range recs {
		byBranch[rec.Branch] = append(byBranch[rec.Branch], rec)
	}
	leavesByBranch := map[string][]attendance.LeaveApplication{}
	for _, l := range approved {
		leavesByBranch[l.Branch] = append(leavesByBranch[l.Branch], l)
	}
	for b := range leavesByBranch {
		if _, ok := byBranch[b]; !ok {
			byBranch[b] = nil
		}
	}
	for b, rs := range byBranch {
		s.Branches[b] = stats(rs, leavesByBranch[b], r.WorkingDays())
	}
	return s
}

func filterRecords(records []attendance.Record, branch string, r Range) []attendance.Record {
	var out []attendance.Record
	for _, rec := range records {
		if branch != "" && rec.Branch != branch {
			continue
		}
		if !r.Contains(rec.WorkDate) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func filterLeaves(leaves []attendance.LeaveApplication, branch string, r Range) []attendance.LeaveApplication {
	var out []attendance.LeaveApplication
	for _, l := range leaves {
		if l.Status != attendance.LeaveApproved {
			continue
		}
		if branch != "" && l.Branch != branch {
			continue
		}
		if !r.Contains(l.LeaveDate) {
			continue
		}
		out = append(out, l)
	}
	return out
}

type dayKey struct{ empID, date string }

type day struct {
	in, out *attendance.Record
}

// groupDays pairs each employee's check-in and check-out per work date.
func groupDays(recs []attendance.Record) map[dayKey]*day {
	days := map[dayKey]*day{}
	for i := range recs {
		rec := &recs[i]
		if rec.Type != attendance.CheckIn && rec.Type != attendance.CheckOut {
			continue
		}
		k := dayKey{rec.EmpID, rec.WorkDate}
		d, ok := days[k]
		if !ok {
			d = &day{}
			days[k] = d
		}
		switch rec.Type {
		case attendance.CheckIn:
			if d.in == nil || rec.Timestamp.Before(d.in.Timestamp) {
				d.in = rec
			}
		case attendance.CheckOut:
			if d.out == nil || rec.Timestamp.After(d.out.Timestamp) {
				d.out = rec
			}
		}
	}
	return days
}

// overtime is max(0, out - in - 8h), or zero when either side is missing.
func (d *day) overtime() time.Duration {
	if d.in == nil || d.out == nil {
		return 0
	}
	ot := d.out.Timestamp.Sub(d.in.Timestamp) - standardShift
	if ot < 0 {
		return 0
	}
	return ot
}

func stats(recs []attendance.Record, approved []attendance.LeaveApplication, workingDays int) Stats {
	st := Stats{WorkingDays: workingDays, ApprovedLeaves: len(approved)}

	employees := map[string]struct{}{}
	for _, rec := range recs {
		employees[rec.EmpID] = struct{}{}
		switch rec.Type {
		case attendance.CheckIn:
			st.Present++
			if rec.Status == attendance.Late {
				st.Late++
			}
		case attendance.CheckOut:
			if rec.Status == attendance.Early {
				st.Early++
			}
		}
	}
	st.Employees = len(employees)

	var overtime time.Duration
	for _, d := range groupDays(recs) {
		overtime += d.overtime()
	}
	st.OvertimeHours = hours(overtime)

	expected := st.Employees * workingDays
	st.Absent = max(0, expected-st.Present)
	st.AttendancePct = percent(st.Present, expected)
	return st
}

func hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d)).Div(decimal.NewFromInt(int64(time.Hour))).Round(2)
}

// percent is part/whole*100 rounded to two places, or zero for an empty whole.
func percent(part, whole int) decimal.Decimal {
	if whole <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(whole))).Round(2)
}

// SortedBranches returns branch names in order.
func (s Summary) SortedBranches() []string {
	names := make([]string, 0, len(s.Branches))
	for b := range s.Branches {
		names = append(names, b)
	}
	sort.Strings(names)
	return names
}

// DailyKey is the cache key of the precomputed all-branch summary of date.
func DailyKey(date string) string { return "summary:daily:" + date }
