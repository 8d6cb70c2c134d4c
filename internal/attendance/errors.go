package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("record already exists for this date")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPhoneTaken         = errors.New("phone number already registered")
	ErrLeaveNotPending    = errors.New("leave application already decided")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidDate        = errors.New("invalid date, expected YYYY-MM-DD")
	ErrUnsupportedType    = errors.New("unsupported attendance type")
	ErrLeaveTypeRequired  = errors.New("leave type required")
	ErrLeaveExists        = errors.New("leave already applied for this date")
	ErrOwnLeave           = errors.New("cannot decide your own leave application")
	ErrSelfDeactivation   = errors.New("cannot deactivate your own account")
)

// Kind classifies a gate rejection. The remediation differs per kind: retry in
// place, restart from location capture, or contact an administrator.
type Kind string

const (
	KindLocationUnavailable Kind = "location_unavailable"
	KindLocationInaccurate  Kind = "location_inaccurate"
	KindGeofenceViolation   Kind = "geofence_violation"
	KindCameraUnavailable   Kind = "camera_unavailable"
	KindLivenessFailed      Kind = "liveness_failed"
	KindNoFaceDetected      Kind = "no_face_detected"
	KindNoReferenceFace     Kind = "no_reference_face"
	KindIdentityMismatch    Kind = "identity_mismatch"
	KindSuspiciousMatch     Kind = "suspicious_match"
	KindDuplicateAttempt    Kind = "duplicate_attempt"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindServiceUnavailable  Kind = "service_unavailable"
	KindAccountInactive     Kind = "account_inactive"
	KindOnLeave             Kind = "on_leave"
)

// Severity of the message shown to the user.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeveritySuccess Severity = "success"
)

type kindInfo struct {
	message   string
	severity  Severity
	retryable bool
}

var kinds = map[Kind]kindInfo{
	KindLocationUnavailable: {"Location access is unavailable. Enable location services and try again.", SeverityError, false},
	KindLocationInaccurate:  {"Unable to get an accurate location. Move to an open area and try again.", SeverityError, false},
	KindGeofenceViolation:   {"You are not at your registered location.", SeverityError, false},
	KindCameraUnavailable:   {"Unable to access camera. Please allow camera access.", SeverityError, false},
	KindLivenessFailed:      {"No blink detected. Look at the camera, blink naturally and try again.", SeverityWarning, true},
	KindNoFaceDetected:      {"No clear face detected. Face the camera in good light.", SeverityError, false},
	KindNoReferenceFace:     {"No reference face on file for your account. Contact an administrator.", SeverityError, false},
	KindIdentityMismatch:    {"Face verification failed.", SeverityError, false},
	KindSuspiciousMatch:     {"Face verification failed.", SeverityError, false},
	KindDuplicateAttempt:    {"Attendance already recorded today.", SeverityError, false},
	KindStoreUnavailable:    {"Something went wrong. Please try again.", SeverityError, true},
	KindServiceUnavailable:  {"Something went wrong. Please try again.", SeverityError, true},
	KindAccountInactive:     {"Your account is not active. Contact an administrator.", SeverityError, false},
	KindOnLeave:             {"You are on approved leave today.", SeverityWarning, false},
}

// Error is a rejection produced by the gate.
type Error struct {
	Kind      Kind
	Message   string
	Severity  Severity
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// reject builds an Error with the kind's default message.
func reject(kind Kind, err error) *Error {
	info := kinds[kind]
	return &Error{Kind: kind, Message: info.message, Severity: info.severity, Retryable: info.retryable, Err: err}
}

// rejectf builds an Error with a custom user message.
func rejectf(kind Kind, err error, format string, args ...any) *Error {
	e := reject(kind, err)
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// KindOf returns the rejection kind of err, or "" if err is not a rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
