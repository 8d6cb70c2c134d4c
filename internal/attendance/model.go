package attendance

import (
	"time"

	"geoattend/internal/face"
	"geoattend/internal/geofence"
)

// EventType is the kind of attendance record.
type EventType string

const (
	CheckIn  EventType = "checkin"
	CheckOut EventType = "checkout"
	Leave    EventType = "leave"
)

// Status is the computed classification of a record.
type Status string

const (
	OnTime        Status = "on_time"
	Late          Status = "late"
	Early         Status = "early"
	ApprovedLeave Status = "approved_leave"
)

// Role of an employee.
type Role string

const (
	RoleManager  Role = "manager"
	RoleSalesman Role = "salesman"
	RoleAdmin    Role = "admin"
)

// AccountStatus of an employee. New registrations start inactive.
type AccountStatus string

const (
	Active   AccountStatus = "active"
	Inactive AccountStatus = "inactive"
)

// Enrollment states of the reference face.
const (
	EnrollPending  = "pending"
	EnrollEnrolled = "enrolled"
	EnrollFailed   = "failed"
	EnrollConflict = "conflict"
)

// Counters are the running per-employee totals updated on every commit.
type Counters struct {
	TotalCheckIns       int `json:"total_checkins"`
	TotalCheckOuts      int `json:"total_checkouts"`
	TotalLateCheckIns   int `json:"total_late_checkins"`
	TotalEarlyCheckOuts int `json:"total_early_checkouts"`
}

// Employee is the single account aggregate. Home and Reference are the
// immutable reference values every verification is checked against.
type Employee struct {
	EmpID        string          `json:"emp_id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	PasswordHash string          `json:"-"`
	Branch       string          `json:"branch"`
	Role         Role            `json:"role"`
	Status       AccountStatus   `json:"status"`
	Home         geofence.Point  `json:"location"`
	Reference    face.Descriptor `json:"-"`
	PhotoURL     string          `json:"photo_url,omitempty"`
	Enrollment   string          `json:"enrollment"`
	Counters     Counters        `json:"counters"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// Record is one persisted attendance event. Records are never updated.
type Record struct {
	ID           string          `json:"id"`
	EmpID        string          `json:"emp_id"`
	Type         EventType       `json:"type"`
	Timestamp    time.Time       `json:"timestamp"`
	WorkDate     string          `json:"date"`
	Status       Status          `json:"status"`
	Location     *geofence.Point `json:"location,omitempty"`
	Branch       string          `json:"branch"`
	Role         Role            `json:"role"`
	ClockSource  string          `json:"clock_source,omitempty"`
	FaceDistance *float64        `json:"face_distance,omitempty"`
	SnapshotURL  string          `json:"snapshot_url,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LeaveStatus of an application.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// LeaveApplication moves from pending to approved or rejected exactly once.
type LeaveApplication struct {
	ID           string      `json:"id"`
	EmpID        string      `json:"emp_id"`
	Branch       string      `json:"branch"`
	LeaveDate    string      `json:"leave_date"`
	LeaveType    string      `json:"leave_type"`
	Reason       string      `json:"reason"`
	Status       LeaveStatus `json:"status"`
	AppliedAt    time.Time   `json:"applied_at"`
	DecidedAt    *time.Time  `json:"decided_at,omitempty"`
	DecidedBy    string      `json:"decided_by,omitempty"`
	RejectReason string      `json:"reject_reason,omitempty"`
}

// RecordFilter narrows record listings. Dates are inclusive YYYY-MM-DD.
type RecordFilter struct {
	EmpID  string
	Branch string
	Type   EventType
	From   string
	To     string
	Limit  int
	Offset int
}

// LeaveFilter narrows leave listings.
type LeaveFilter struct {
	EmpID  string
	Branch string
	Status LeaveStatus
	From   string
	To     string
}

const dateLayout = "2006-01-02"
