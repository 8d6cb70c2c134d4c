package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"geoattend/internal/face"
	"geoattend/internal/geofence"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

const employeeColumns = `emp_id, name, email, COALESCE(phone, ''), password_hash, branch, role, status,
	home_lat, home_lng, reference, photo_url, enrollment,
	total_checkins, total_checkouts, total_late_checkins, total_early_checkouts, registered_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (*Employee, error) {
	var (
		e   Employee
		ref *pgvector.Vector
	)
	err := row.Scan(&e.EmpID, &e.Name, &e.Email, &e.Phone, &e.PasswordHash, &e.Branch, &e.Role, &e.Status,
		&e.Home.Lat, &e.Home.Lng, &ref, &e.PhotoURL, &e.Enrollment,
		&e.Counters.TotalCheckIns, &e.Counters.TotalCheckOuts, &e.Counters.TotalLateCheckIns, &e.Counters.TotalEarlyCheckOuts,
		&e.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ref != nil {
		e.Reference = face.Descriptor(ref.Slice())
	}
	return &e, nil
}

// CreateEmployee inserts a new account.
func (r *Repository) CreateEmployee(ctx context.Context, e Employee) error {
	if e.RegisteredAt.IsZero() {
		e.RegisteredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO employees (emp_id, name, email, phone, password_hash, branch, role, status,
			home_lat, home_lng, photo_url, enrollment, registered_at)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, e.EmpID, e.Name, e.Email, e.Phone, e.PasswordHash, e.Branch, e.Role, e.Status,
		e.Home.Lat, e.Home.Lng, e.PhotoURL, e.Enrollment, e.RegisteredAt)
	switch {
	case isUniqueViolation(err, "employees_email_key"):
		return ErrEmailTaken
	case isUniqueViolation(err, "employees_phone_key"):
		return ErrPhoneTaken
	}
	return err
}

// Employee returns a single employee by emp_id.
func (r *Repository) Employee(ctx context.Context, empID string) (*Employee, error) {
	return scanEmployee(r.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE emp_id = $1`, empID))
}

// FindByLogin looks an employee up by email or phone.
func (r *Repository) FindByLogin(ctx context.Context, login string) (*Employee, error) {
	return scanEmployee(r.db.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE lower(email) = lower($1) OR phone = $1 LIMIT 1`, login))
}

// SetStatus activates or deactivates an account.
func (r *Repository) SetStatus(ctx context.Context, empID string, status AccountStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE employees SET status = $2, updated_at = NOW() WHERE emp_id = $1`, empID, status)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ListEmployees returns employees with status, or all of them.
func (r *Repository) ListEmployees(ctx context.Context, status AccountStatus) ([]Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY emp_id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, *e)
	}
	return employees, rows.Err()
}

// SetReference stores the reference descriptor and enrollment state.
func (r *Repository) SetReference(ctx context.Context, empID string, d face.Descriptor, enrollment string) error {
	var vec any
	if len(d) > 0 {
		vec = pgvector.NewVector(d)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE employees SET reference = $2, enrollment = $3, updated_at = NOW()
		WHERE emp_id = $1
	`, empID, vec, enrollment)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// NearestReference returns the enrolled employee closest to d by L2 distance.
func (r *Repository) NearestReference(ctx context.Context, d face.Descriptor, exclude string) (string, float64, bool, error) {
	vec := pgvector.NewVector(d)
	var (
		empID string
		dist  float64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT emp_id, reference <-> $1 AS distance
		FROM employees
		WHERE reference IS NOT NULL AND emp_id <> $2
		ORDER BY reference <-> $1
		LIMIT 1
	`, vec, exclude).Scan(&empID, &dist)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return empID, dist, true, nil
}

// HasRecord reports whether a record exists for (emp, date, type).
func (r *Repository) HasRecord(ctx context.Context, empID, workDate string, typ EventType) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM attendance_records WHERE emp_id = $1 AND work_date = $2 AND type = $3)
	`, empID, workDate, typ).Scan(&exists)
	return exists, err
}

// ApprovedLeaveOn reports whether the employee has approved leave on date.
func (r *Repository) ApprovedLeaveOn(ctx context.Context, empID, workDate string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM leave_applications WHERE emp_id = $1 AND leave_date = $2 AND status = 'approved')
	`, empID, workDate).Scan(&exists)
	return exists, err
}

// Commit writes rec and updates the counters in one transaction.
func (r *Repository) Commit(ctx context.Context, rec Record) (Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback()

	if err := insertRecord(ctx, tx, &rec); err != nil {
		return Record{}, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE employees SET
			total_checkins = total_checkins + $2,
			total_checkouts = total_checkouts + $3,
			total_late_checkins = total_late_checkins + $4,
			total_early_checkouts = total_early_checkouts + $5,
			updated_at = NOW()
		WHERE emp_id = $1
	`, rec.EmpID, counterDelta(rec, CheckIn, ""), counterDelta(rec, CheckOut, ""),
		counterDelta(rec, CheckIn, Late), counterDelta(rec, CheckOut, Early))
	if err != nil {
		return Record{}, err
	}
	if err := expectOne(res); err != nil {
		return Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func counterDelta(rec Record, typ EventType, status Status) int {
	if rec.Type != typ || (status != "" && rec.Status != status) {
		return 0
	}
	return 1
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var lat, lng *float64
	if rec.Location != nil {
		lat, lng = &rec.Location.Lat, &rec.Location.Lng
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, emp_id, type, occurred_at, work_date, status, lat, lng,
			branch, role, clock_source, face_distance, snapshot_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at
	`, rec.ID, rec.EmpID, rec.Type, rec.Timestamp, rec.WorkDate, rec.Status, lat, lng,
		rec.Branch, rec.Role, rec.ClockSource, rec.FaceDistance, rec.SnapshotURL).Scan(&rec.CreatedAt)
	if isUniqueViolation(err, "") {
		return ErrDuplicate
	}
	return err
}

// ListRecords returns records with basic filters, newest first.
func (r *Repository) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	query := `SELECT id, emp_id, type, occurred_at, to_char(work_date, 'YYYY-MM-DD'), status, lat, lng,
		branch, role, clock_source, face_distance, snapshot_url, created_at FROM attendance_records`
	var (
		args    []any
		clauses []string
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.EmpID != "" {
		add("emp_id = $%d", f.EmpID)
	}
	if f.Branch != "" {
		add("branch = $%d", f.Branch)
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.From != "" {
		add("work_date >= $%d", f.From)
	}
	if f.To != "" {
		add("work_date <= $%d", f.To)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit, max(f.Offset, 0))
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var (
			rec      Record
			lat, lng sql.NullFloat64
			dist     sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.EmpID, &rec.Type, &rec.Timestamp, &rec.WorkDate, &rec.Status, &lat, &lng,
			&rec.Branch, &rec.Role, &rec.ClockSource, &dist, &rec.SnapshotURL, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if lat.Valid && lng.Valid {
			rec.Location = &geofence.Point{Lat: lat.Float64, Lng: lng.Float64}
		}
		if dist.Valid {
			rec.FaceDistance = &dist.Float64
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// InsertLeave writes a new application.
func (r *Repository) InsertLeave(ctx context.Context, l LeaveApplication) (LeaveApplication, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leave_applications (id, emp_id, branch, leave_date, leave_type, reason, status, applied_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, l.ID, l.EmpID, l.Branch, l.LeaveDate, l.LeaveType, l.Reason, l.Status, l.AppliedAt)
	if err != nil {
		return LeaveApplication{}, err
	}
	return l, nil
}

const leaveColumns = `id, emp_id, branch, to_char(leave_date, 'YYYY-MM-DD'), leave_type, reason, status,
	applied_at, decided_at, decided_by, reject_reason`

func scanLeave(row rowScanner) (*LeaveApplication, error) {
	var (
		l         LeaveApplication
		decidedAt sql.NullTime
	)
	err := row.Scan(&l.ID, &l.EmpID, &l.Branch, &l.LeaveDate, &l.LeaveType, &l.Reason, &l.Status,
		&l.AppliedAt, &decidedAt, &l.DecidedBy, &l.RejectReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if decidedAt.Valid {
		l.DecidedAt = &decidedAt.Time
	}
	return &l, nil
}

// GetLeave returns one application.
func (r *Repository) GetLeave(ctx context.Context, id string) (*LeaveApplication, error) {
	return scanLeave(r.db.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leave_applications WHERE id = $1`, id))
}

// DecideLeave transitions a pending application. The conditional update
// makes the transition happen at most once.
func (r *Repository) DecideLeave(ctx context.Context, id string, status LeaveStatus, actor, reason string, at time.Time) (LeaveApplication, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return LeaveApplication{}, err
	}
	defer tx.Rollback()

	l, err := scanLeave(tx.QueryRowContext(ctx, `
		UPDATE leave_applications
		SET status = $2, decided_at = $3, decided_by = $4, reject_reason = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+leaveColumns, id, status, at, actor, reason))
	if errors.Is(err, ErrNotFound) {
		var exists bool
		if qerr := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM leave_applications WHERE id = $1)`, id).Scan(&exists); qerr != nil {
			return LeaveApplication{}, qerr
		}
		if exists {
			return LeaveApplication{}, ErrLeaveNotPending
		}
		return LeaveApplication{}, ErrNotFound
	}
	if err != nil {
		return LeaveApplication{}, err
	}

	if status == LeaveApproved {
		var role Role
		if err := tx.QueryRowContext(ctx, `SELECT role FROM employees WHERE emp_id = $1`, l.EmpID).Scan(&role); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return LeaveApplication{}, err
		}
		rec := Record{EmpID: l.EmpID, Type: Leave, Timestamp: at, WorkDate: l.LeaveDate, Status: ApprovedLeave, Branch: l.Branch, Role: role}
		if err := insertRecord(ctx, tx, &rec); err != nil {
			return LeaveApplication{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return LeaveApplication{}, err
	}
	return *l, nil
}

// ListLeaves returns applications with basic filters, newest first.
func (r *Repository) ListLeaves(ctx context.Context, f LeaveFilter) ([]LeaveApplication, error) {
	query := `SELECT ` + leaveColumns + ` FROM leave_applications`
	var (
		args    []any
		clauses []string
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.EmpID != "" {
		add("emp_id = $%d", f.EmpID)
	}
	if f.Branch != "" {
		add("branch = $%d", f.Branch)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != "" {
		add("leave_date >= $%d", f.From)
	}
	if f.To != "" {
		add("leave_date <= $%d", f.To)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY applied_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LeaveApplication
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *l)
	}
	return res, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
