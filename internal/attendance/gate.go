package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"geoattend/internal/clock"
	"geoattend/internal/face"
	"geoattend/internal/geofence"
	"geoattend/internal/liveness"
	"geoattend/internal/observability"
)

// Stage is a step of a verification attempt.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageLocationPending Stage = "location_pending"
	StageLocationOk      Stage = "location_ok"
	StageLivenessPending Stage = "liveness_pending"
	StageLivenessOk      Stage = "liveness_ok"
	StageIdentityPending Stage = "identity_pending"
	StageIdentityOk      Stage = "identity_ok"
	StageDuplicateCheck  Stage = "duplicate_check"
	StageClassify        Stage = "classify"
	StageCommitted       Stage = "committed"
	StageRejected        Stage = "rejected"
)

// Attempt is one verification request. It lives only for the duration of Run.
type Attempt struct {
	EmpID    string
	Type     EventType
	Location geofence.Source
	// OpenCamera acquires the camera. The gate closes it on every path.
	OpenCamera func(ctx context.Context) (liveness.Camera, error)
	// Capture is the identity frame. When nil the next camera frame is used.
	Capture []byte
	// Progress receives liveness sampling progress in percent.
	Progress func(int)
}

// Outcome is what the gate learned about an attempt, filled as far as it got.
type Outcome struct {
	Record   Record
	Employee *Employee
	Reading  clock.Reading
	Distance float64
	Liveness liveness.Result
	Face     face.Result
	Trace    []Stage
	Message  string
	Severity Severity
}

// Clock supplies authoritative readings.
type Clock interface {
	Now(ctx context.Context) clock.Reading
}

// Locker guards against concurrent submissions of the same attempt.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Evidence stores the identity frame and returns a reference to it.
type Evidence interface {
	SaveSnapshot(ctx context.Context, empID, workDate string, typ EventType, frame []byte) (string, error)
	DeleteSnapshot(ctx context.Context, url string) error
}

// GateConfig holds the verification policy.
type GateConfig struct {
	Fence            geofence.Policy
	LocationRetry    geofence.Retry
	LivenessAttempts int
	LockTTL          time.Duration
}

// DefaultGateConfig is a 100 m fence with a 100 m accuracy ceiling.
var DefaultGateConfig = GateConfig{
	Fence:            geofence.Policy{MaxAccuracy: 100, Radius: 100},
	LocationRetry:    geofence.DefaultRetry,
	LivenessAttempts: 1,
	LockTTL:          2 * time.Minute,
}

// Gate runs the verification pipeline and commits attendance records.
type Gate struct {
	store     Store
	clock     Clock
	verifier  *face.Verifier
	liveness  *liveness.Detector
	shift     Shift
	cfg       GateConfig
	locker    Locker
	evidence  Evidence
	observers []func(context.Context, Outcome)
}

// GateOption configures optional collaborators.
type GateOption func(*Gate)

// WithLocker enables the in-flight attempt lock.
func WithLocker(l Locker) GateOption { return func(g *Gate) { g.locker = l } }

// WithEvidence stores the identity frame with each record.
func WithEvidence(e Evidence) GateOption { return func(g *Gate) { g.evidence = e } }

// WithObserver registers a hook that runs after each successful commit.
func WithObserver(fn func(context.Context, Outcome)) GateOption {
	return func(g *Gate) { g.observers = append(g.observers, fn) }
}

// NewGate wires a gate.
func NewGate(store Store, clk Clock, verifier *face.Verifier, detector *liveness.Detector, shift Shift, cfg GateConfig, opts ...GateOption) *Gate {
	if cfg.LivenessAttempts <= 0 {
		cfg.LivenessAttempts = 1
	}
	if cfg.LocationRetry.Attempts <= 0 {
		cfg.LocationRetry = geofence.DefaultRetry
	}
	g := &Gate{store: store, clock: clk, verifier: verifier, liveness: detector, shift: shift, cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Shift returns the gate's shift configuration.
func (g *Gate) Shift() Shift { return g.shift }

// Run takes an attempt through every stage. It returns a *Error for every
// rejection, or the context error if ctx ends first. A record exists only if
// Run returns nil.
func (g *Gate) Run(ctx context.Context, a Attempt) (Outcome, error) {
	start := time.Now()
	out := Outcome{Trace: []Stage{StageIdle}}
	err := g.run(ctx, a, &out)

	outcome := string(StageCommitted)
	if err != nil {
		out.Trace = append(out.Trace, StageRejected)
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		var rej *Error
		if errors.As(err, &rej) {
			out.Message, out.Severity = rej.Message, rej.Severity
		}
		slog.Info("attendance attempt rejected", "emp_id", a.EmpID, "type", a.Type, "outcome", outcome, "error", err)
	}
	observability.GateOutcomes.WithLabelValues(string(a.Type), outcome).Inc()
	observability.GateDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())

	if err == nil {
		for _, fn := range g.observers {
			fn(ctx, out)
		}
	}
	return out, err
}

func (g *Gate) run(ctx context.Context, a Attempt, out *Outcome) error {
	if a.Type != CheckIn && a.Type != CheckOut {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, a.Type)
	}

	emp, err := g.store.Employee(ctx, a.EmpID)
	if errors.Is(err, ErrNotFound) {
		return rejectf(KindAccountInactive, err, "Account not found.")
	}
	if err != nil {
		return reject(KindStoreUnavailable, err)
	}
	out.Employee = emp
	if emp.Status != Active {
		return reject(KindAccountInactive, nil)
	}

	out.Reading = g.clock.Now(ctx)
	workDate := g.shift.WorkDate(out.Reading.Time)

	onLeave, err := g.store.ApprovedLeaveOn(ctx, emp.EmpID, workDate)
	if err != nil {
		return reject(KindStoreUnavailable, err)
	}
	if onLeave {
		return reject(KindOnLeave, nil)
	}
	if err := g.checkDuplicate(ctx, emp.EmpID, workDate, a.Type); err != nil {
		return err
	}

	if g.locker != nil {
		key := fmt.Sprintf("attempt:%s:%s:%s", emp.EmpID, workDate, a.Type)
		release, ok, err := g.locker.Lock(ctx, key, g.cfg.LockTTL)
		if err != nil {
			// The unique index still guards the commit.
			slog.Warn("attempt lock unavailable", "key", key, "error", err)
		} else if !ok {
			return rejectf(KindDuplicateAttempt, nil, "Another %s is already in progress.", label(a.Type))
		} else {
			defer release()
		}
	}

	out.Trace = append(out.Trace, StageLocationPending)
	if err := g.locate(ctx, a, emp, out); err != nil {
		return err
	}
	out.Trace = append(out.Trace, StageLocationOk)

	out.Trace = append(out.Trace, StageLivenessPending)
	stageStart := time.Now()
	cam, err := a.OpenCamera(ctx)
	if err != nil {
		return reject(KindCameraUnavailable, err)
	}
	defer func() {
		if cerr := cam.Close(); cerr != nil {
			slog.Debug("camera close", "error", cerr)
		}
	}()
	if err := g.checkLiveness(ctx, a, cam, out); err != nil {
		return err
	}
	observability.GateDuration.WithLabelValues("liveness").Observe(time.Since(stageStart).Seconds())
	out.Trace = append(out.Trace, StageLivenessOk)

	out.Trace = append(out.Trace, StageIdentityPending)
	frame := a.Capture
	if frame == nil {
		if frame, err = cam.Frame(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return reject(KindCameraUnavailable, err)
		}
	}
	if err := g.identify(ctx, emp, frame, out); err != nil {
		return err
	}
	out.Trace = append(out.Trace, StageIdentityOk)

	out.Trace = append(out.Trace, StageDuplicateCheck)
	if err := g.checkDuplicate(ctx, emp.EmpID, workDate, a.Type); err != nil {
		return err
	}

	out.Trace = append(out.Trace, StageClassify)
	status := g.shift.Classify(a.Type, out.Reading.Time)
	dist := out.Face.Distance
	rec := Record{
		EmpID:        emp.EmpID,
		Type:         a.Type,
		Timestamp:    out.Reading.Time,
		WorkDate:     workDate,
		Status:       status,
		Branch:       emp.Branch,
		Role:         emp.Role,
		ClockSource:  out.Reading.Source,
		FaceDistance: &dist,
	}
	if out.Record.Location != nil {
		rec.Location = out.Record.Location
	}
	if g.evidence != nil {
		url, err := g.evidence.SaveSnapshot(ctx, emp.EmpID, workDate, a.Type, frame)
		if err != nil {
			slog.Warn("snapshot not stored", "emp_id", emp.EmpID, "error", err)
		}
		rec.SnapshotURL = url
	}

	committed, err := g.store.Commit(ctx, rec)
	if err != nil && rec.SnapshotURL != "" {
		if derr := g.evidence.DeleteSnapshot(context.WithoutCancel(ctx), rec.SnapshotURL); derr != nil {
			slog.Warn("orphaned snapshot", "url", rec.SnapshotURL, "error", derr)
		}
	}
	rec = committed
	if errors.Is(err, ErrDuplicate) {
		return rejectf(KindDuplicateAttempt, err, "You have already completed %s for today.", label(a.Type))
	}
	if err != nil {
		return reject(KindStoreUnavailable, err)
	}
	out.Record = rec
	out.Trace = append(out.Trace, StageCommitted)
	out.Message, out.Severity = successMessage(rec, g.shift)
	slog.Info("attendance committed", "emp_id", rec.EmpID, "type", rec.Type, "status", rec.Status, "date", rec.WorkDate, "clock", rec.ClockSource)
	return nil
}

func (g *Gate) checkDuplicate(ctx context.Context, empID, workDate string, typ EventType) error {
	exists, err := g.store.HasRecord(ctx, empID, workDate, typ)
	if err != nil {
		return reject(KindStoreUnavailable, err)
	}
	if exists {
		return rejectf(KindDuplicateAttempt, ErrDuplicate, "You have already completed %s for today.", label(typ))
	}
	return nil
}

func (g *Gate) locate(ctx context.Context, a Attempt, emp *Employee, out *Outcome) error {
	start := time.Now()
	defer func() { observability.GateDuration.WithLabelValues("location").Observe(time.Since(start).Seconds()) }()

	if a.Location == nil {
		return reject(KindLocationUnavailable, geofence.ErrUnavailable)
	}
	fix, err := geofence.Acquire(ctx, a.Location, g.cfg.Fence.MaxAccuracy, g.cfg.LocationRetry)
	switch {
	case errors.Is(err, geofence.ErrInaccurate):
		return reject(KindLocationInaccurate, err)
	case errors.Is(err, geofence.ErrUnavailable):
		return reject(KindLocationUnavailable, err)
	case err != nil:
		return err
	}
	p := fix.Point
	out.Record.Location = &p

	d, err := g.cfg.Fence.Check(emp.Home, fix)
	out.Distance = d
	switch {
	case errors.Is(err, geofence.ErrOutsideFence):
		return rejectf(KindGeofenceViolation, err, "You are %.0fm away from your registered location. Move within %.0fm and try again.", d, g.cfg.Fence.Radius)
	case errors.Is(err, geofence.ErrInaccurate):
		return reject(KindLocationInaccurate, err)
	case err != nil:
		return err
	}
	return nil
}

func (g *Gate) checkLiveness(ctx context.Context, a Attempt, cam liveness.Camera, out *Outcome) error {
	var lastErr error
	for i := 0; i < g.cfg.LivenessAttempts; i++ {
		res, err := g.liveness.Run(ctx, cam, a.Progress)
		out.Liveness = res
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case errors.Is(err, liveness.ErrNoBlink):
			lastErr = err
			continue
		case errors.Is(err, liveness.ErrNoFrame) && lastErr != nil:
			// Ran out of frames while retrying; the earlier failure stands.
			return reject(KindLivenessFailed, lastErr)
		default:
			return reject(KindCameraUnavailable, err)
		}
	}
	return reject(KindLivenessFailed, lastErr)
}

func (g *Gate) identify(ctx context.Context, emp *Employee, frame []byte, out *Outcome) error {
	start := time.Now()
	res, err := g.verifier.Verify(ctx, frame, emp.Reference)
	observability.GateDuration.WithLabelValues("identity").Observe(time.Since(start).Seconds())
	out.Face = res
	if res.Distance > 0 {
		observability.FaceDistance.Observe(res.Distance)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, face.ErrLowConfidence), errors.Is(err, face.ErrNoFace):
		return reject(KindNoFaceDetected, err)
	case errors.Is(err, face.ErrNoReference), errors.Is(err, face.ErrDescriptorShape):
		return reject(KindNoReferenceFace, err)
	case errors.Is(err, face.ErrMismatch), errors.Is(err, face.ErrStrictMismatch):
		return reject(KindIdentityMismatch, err)
	case errors.Is(err, face.ErrSuspicious):
		slog.Warn("suspicious face match", "emp_id", emp.EmpID, "distance", res.Distance)
		return reject(KindSuspiciousMatch, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return reject(KindServiceUnavailable, err)
	}
}

func label(t EventType) string {
	if t == CheckOut {
		return "check-out"
	}
	return "check-in"
}

func successMessage(rec Record, s Shift) (string, Severity) {
	switch rec.Status {
	case Late:
		return fmt.Sprintf("Check-in recorded. You are late; check-in time is %s.", s.CheckInCutoff), SeverityWarning
	case Early:
		return fmt.Sprintf("Check-out recorded. You left early; check-out time is %s.", s.CheckOutCutoff), SeverityWarning
	}
	if rec.Type == CheckOut {
		return "Check-out successful.", SeveritySuccess
	}
	return "Check-in successful. You are on time.", SeveritySuccess
}
