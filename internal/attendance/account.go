package attendance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"geoattend/internal/auth"
	"geoattend/internal/face"
	"geoattend/internal/geofence"
	"geoattend/internal/observability"
)

// RegistrationAccuracy is the accuracy ceiling for the home location fix.
const RegistrationAccuracy = 50.0

// ErrRegistrationLocation is returned when the home fix is too coarse.
var ErrRegistrationLocation = fmt.Errorf("%w for registration (max %.0fm)", geofence.ErrInaccurate, RegistrationAccuracy)

// Registration is a self-service sign-up request.
type Registration struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Branch   string
	Role     Role
	Home     geofence.Fix
	Photo    []byte
}

// Photos stores reference photos.
type Photos interface {
	SavePhoto(ctx context.Context, empID string, photo []byte) (string, error)
	LoadPhoto(ctx context.Context, url string) ([]byte, error)
	DeletePhoto(ctx context.Context, url string) error
}

// EnrollmentQueue schedules descriptor extraction for a new reference photo.
type EnrollmentQueue interface {
	EnqueueEnrollment(ctx context.Context, empID string) error
}

// AccountService manages employee accounts and face enrollment.
type AccountService struct {
	store    AccountStore
	photos   Photos
	queue    EnrollmentQueue
	verifier *face.Verifier
	now      func() time.Time
}

// NewAccountService creates an account service. photos, queue and verifier
// may be nil when the caller does not register or enroll.
func NewAccountService(store AccountStore, photos Photos, queue EnrollmentQueue, verifier *face.Verifier) *AccountService {
	return &AccountService{store: store, photos: photos, queue: queue, verifier: verifier, now: time.Now}
}

// Register creates an inactive account. The reference descriptor is
// extracted later by the enrollment worker.
func (s *AccountService) Register(ctx context.Context, r Registration) (*Employee, error) {
	if len(r.Password) < 6 {
		return nil, ErrWeakPassword
	}
	if !geofence.IsAccurateEnough(r.Home.AccuracyMeters, RegistrationAccuracy) {
		return nil, ErrRegistrationLocation
	}
	if r.Role != RoleManager && r.Role != RoleSalesman {
		return nil, fmt.Errorf("unsupported role %q", r.Role)
	}
	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	emp := Employee{
		EmpID:        NewEmployeeID(s.now()),
		Name:         strings.TrimSpace(r.Name),
		Email:        strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:        strings.TrimSpace(r.Phone),
		PasswordHash: hash,
		Branch:       strings.TrimSpace(r.Branch),
		Role:         r.Role,
		Status:       Inactive,
		Home:         geofence.Round6(r.Home.Point),
		Enrollment:   EnrollPending,
		RegisteredAt: s.now().UTC(),
	}
	if s.photos != nil && len(r.Photo) > 0 {
		url, err := s.photos.SavePhoto(ctx, emp.EmpID, r.Photo)
		if err != nil {
			return nil, fmt.Errorf("store photo: %w", err)
		}
		emp.PhotoURL = url
	}
	if err := s.store.CreateEmployee(ctx, emp); err != nil {
		if emp.PhotoURL != "" {
			if derr := s.photos.DeletePhoto(context.WithoutCancel(ctx), emp.PhotoURL); derr != nil {
				slog.Warn("orphaned reference photo", "url", emp.PhotoURL, "error", derr)
			}
		}
		return nil, err
	}
	slog.Info("employee registered", "emp_id", emp.EmpID, "branch", emp.Branch, "role", emp.Role)

	if s.queue != nil && emp.PhotoURL != "" {
		if err := s.queue.EnqueueEnrollment(ctx, emp.EmpID); err != nil {
			observability.QueuePublishFailures.WithLabelValues("enroll").Inc()
			slog.Error("enrollment not queued", "emp_id", emp.EmpID, "error", err)
		}
	}
	return &emp, nil
}

// EnsureAdmin creates an active admin account for email unless a login with
// that email already exists.
func (s *AccountService) EnsureAdmin(ctx context.Context, name, email, password string) (*Employee, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := s.store.FindByLogin(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	emp := Employee{
		EmpID:        NewEmployeeID(s.now()),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		Status:       Active,
		Enrollment:   EnrollPending,
		RegisteredAt: s.now().UTC(),
	}
	if err := s.store.CreateEmployee(ctx, emp); err != nil {
		return nil, err
	}
	slog.Info("admin account created", "emp_id", emp.EmpID, "email", email)
	return &emp, nil
}

// Login authenticates by email or phone.
func (s *AccountService) Login(ctx context.Context, login, password string) (*Employee, error) {
	emp, err := s.store.FindByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(emp.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return emp, nil
}

// Get returns an employee.
func (s *AccountService) Get(ctx context.Context, empID string) (*Employee, error) {
	return s.store.Employee(ctx, empID)
}

// Activate approves an account for attendance.
func (s *AccountService) Activate(ctx context.Context, empID string) error {
	return s.setStatus(ctx, empID, Active)
}

// Deactivate suspends an account on behalf of actor, who may not suspend
// themselves.
func (s *AccountService) Deactivate(ctx context.Context, actor, empID string) error {
	if actor == empID {
		return ErrSelfDeactivation
	}
	return s.setStatus(ctx, empID, Inactive)
}

func (s *AccountService) setStatus(ctx context.Context, empID string, status AccountStatus) error {
	if err := s.store.SetStatus(ctx, empID, status); err != nil {
		return err
	}
	slog.Info("account status changed", "emp_id", empID, "status", status)
	return nil
}

// List returns accounts with status, or all accounts when status is empty.
func (s *AccountService) List(ctx context.Context, status AccountStatus) ([]Employee, error) {
	return s.store.ListEmployees(ctx, status)
}

// ListPending returns accounts awaiting approval.
func (s *AccountService) ListPending(ctx context.Context) ([]Employee, error) {
	return s.store.ListEmployees(ctx, Inactive)
}

// SetReference stores a descriptor directly.
func (s *AccountService) SetReference(ctx context.Context, empID string, d face.Descriptor) error {
	return s.store.SetReference(ctx, empID, d, EnrollEnrolled)
}

// Enroll extracts the reference descriptor from the employee's stored photo.
// A face that already belongs to another employee is recorded as a conflict
// and not used.
func (s *AccountService) Enroll(ctx context.Context, empID string) (string, error) {
	if s.verifier == nil || s.photos == nil {
		return "", errors.New("enrollment not configured")
	}
	emp, err := s.store.Employee(ctx, empID)
	if err != nil {
		return "", err
	}
	if emp.PhotoURL == "" {
		return s.finishEnroll(ctx, empID, nil, EnrollFailed)
	}
	photo, err := s.photos.LoadPhoto(ctx, emp.PhotoURL)
	if err != nil {
		return "", fmt.Errorf("load photo: %w", err)
	}
	desc, _, err := s.verifier.DescriptorOf(ctx, photo)
	if err != nil {
		return "", fmt.Errorf("extract descriptor: %w", err)
	}
	if desc == nil {
		return s.finishEnroll(ctx, empID, nil, EnrollFailed)
	}

	other, dist, found, err := s.store.NearestReference(ctx, desc, empID)
	if err != nil {
		return "", fmt.Errorf("nearest reference: %w", err)
	}
	if found && dist < s.verifier.Thresholds().Strict {
		slog.Warn("face already enrolled for another employee", "emp_id", empID, "other", other, "distance", dist)
		return s.finishEnroll(ctx, empID, nil, EnrollConflict)
	}
	return s.finishEnroll(ctx, empID, desc, EnrollEnrolled)
}

func (s *AccountService) finishEnroll(ctx context.Context, empID string, d face.Descriptor, state string) (string, error) {
	if err := s.store.SetReference(ctx, empID, d, state); err != nil {
		return "", err
	}
	observability.EnrollmentJobs.WithLabelValues(state).Inc()
	slog.Info("enrollment finished", "emp_id", empID, "state", state)
	return state, nil
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewEmployeeID returns EMP<unix millis><4 random upper alphanumerics>.
func NewEmployeeID(now time.Time) string {
	var sb strings.Builder
	sb.WriteString("EMP")
	sb.WriteString(fmt.Sprint(now.UnixMilli()))
	base := big.NewInt(int64(len(idAlphabet)))
	for i := 0; i < 4; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			n = big.NewInt(0)
		}
		sb.WriteByte(idAlphabet[n.Int64()])
	}
	return sb.String()
}
