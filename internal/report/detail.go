package report

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"geoattend/internal/attendance"
)

// Day statuses in detail rows.
const (
	DayPresent = "present"
	DayAbsent  = "absent"
	DayWeekend = "weekend"
	DayLeave   = "leave"
)

// DayRow is one employee's attendance on one calendar day.
type DayRow struct {
	Date           string            `json:"date"`
	Weekday        string            `json:"weekday"`
	Status         string            `json:"status"`
	CheckIn        *time.Time        `json:"check_in,omitempty"`
	CheckOut       *time.Time        `json:"check_out,omitempty"`
	CheckInStatus  attendance.Status `json:"check_in_status,omitempty"`
	CheckOutStatus attendance.Status `json:"check_out_status,omitempty"`
	LateMinutes    int               `json:"late_minutes"`
	EarlyMinutes   int               `json:"early_minutes"`
	OvertimeHours  decimal.Decimal   `json:"overtime_hours"`
}

// EmployeeDetail is the per-day breakdown of one employee.
type EmployeeDetail struct {
	EmpID         string          `json:"emp_id"`
	Branch        string          `json:"branch"`
	Role          attendance.Role `json:"role,omitempty"`
	Present       int             `json:"present"`
	Absent        int             `json:"absent"`
	Late          int             `json:"late"`
	Early         int             `json:"early"`
	Leaves        int             `json:"leaves"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	Days          []DayRow        `json:"days"`
}

// Detail emits one row per calendar day in r for every employee seen in
// records or approved leaves. Late and early minutes are measured against
// the shift cutoffs.
func Detail(records []attendance.Record, leaves []attendance.LeaveApplication, branch string, r Range, shift attendance.Shift) []EmployeeDetail {
	recs := filterRecords(records, branch, r)
	approved := filterLeaves(leaves, branch, r)
	days := groupDays(recs)

	onLeave := map[dayKey]bool{}
	for _, l := range approved {
		onLeave[dayKey{l.EmpID, l.LeaveDate}] = true
	}
	for _, rec := range recs {
		if rec.Type == attendance.Leave {
			onLeave[dayKey{rec.EmpID, rec.WorkDate}] = true
		}
	}

	employees := map[string]*EmployeeDetail{}
	touch := func(empID, branch string, role attendance.Role) {
		e, ok := employees[empID]
		if !ok {
			e = &EmployeeDetail{EmpID: empID, Branch: branch, Role: role}
			employees[empID] = e
		}
		if e.Role == "" {
			e.Role = role
		}
	}
	for _, rec := range recs {
		touch(rec.EmpID, rec.Branch, rec.Role)
	}
	for _, l := range approved {
		touch(l.EmpID, l.Branch, "")
	}

	loc := shift.Location
	if loc == nil {
		loc = time.UTC
	}
	out := make([]EmployeeDetail, 0, len(employees))
	for _, e := range employees {
		var overtime time.Duration
		for _, date := range r.Days() {
			key := dayKey{e.EmpID, date.Format(dateLayout)}
			row := DayRow{Date: key.date, Weekday: date.Weekday().String(), OvertimeHours: decimal.Zero}
			d := days[key]
			if d != nil && d.in != nil {
				t := d.in.Timestamp.In(loc)
				row.CheckIn = &t
				row.CheckInStatus = d.in.Status
				row.LateMinutes = minutesPast(t, shift.CheckInCutoff.On(t, loc))
				if d.in.Status == attendance.Late {
					e.Late++
				}
			}
			if d != nil && d.out != nil {
				t := d.out.Timestamp.In(loc)
				row.CheckOut = &t
				row.CheckOutStatus = d.out.Status
				row.EarlyMinutes = minutesPast(shift.CheckOutCutoff.On(t, loc), t)
				if d.out.Status == attendance.Early {
					e.Early++
				}
			}
			if d != nil {
				ot := d.overtime()
				overtime += ot
				row.OvertimeHours = hours(ot)
			}

			switch {
			case onLeave[key]:
				row.Status = DayLeave
				e.Leaves++
			case row.CheckIn != nil:
				row.Status = DayPresent
				e.Present++
			case isWeekend(date):
				row.Status = DayWeekend
			default:
				row.Status = DayAbsent
				e.Absent++
			}
			e.Days = append(e.Days, row)
		}
		e.OvertimeHours = hours(overtime)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmpID < out[j].EmpID })
	return out
}

// minutesPast returns whole minutes by which t is after ref, rounded up, or
// zero if t is not after ref.
func minutesPast(t, ref time.Time) int {
	if !t.After(ref) {
		return 0
	}
	return int(math.Ceil(t.Sub(ref).Minutes()))
}
