package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"geoattend/internal/attendance"
	"geoattend/internal/imagestore"
	"geoattend/internal/report"
)

var kindStatus = map[attendance.Kind]int{
	attendance.KindLocationUnavailable: http.StatusUnprocessableEntity,
	attendance.KindLocationInaccurate:  http.StatusUnprocessableEntity,
	attendance.KindGeofenceViolation:   http.StatusUnprocessableEntity,
	attendance.KindCameraUnavailable:   http.StatusUnprocessableEntity,
	attendance.KindLivenessFailed:      http.StatusUnprocessableEntity,
	attendance.KindNoFaceDetected:      http.StatusUnprocessableEntity,
	attendance.KindNoReferenceFace:     http.StatusUnprocessableEntity,
	attendance.KindIdentityMismatch:    http.StatusUnprocessableEntity,
	attendance.KindSuspiciousMatch:     http.StatusUnprocessableEntity,
	attendance.KindDuplicateAttempt:    http.StatusConflict,
	attendance.KindOnLeave:             http.StatusConflict,
	attendance.KindAccountInactive:     http.StatusForbidden,
	attendance.KindStoreUnavailable:    http.StatusServiceUnavailable,
	attendance.KindServiceUnavailable:  http.StatusServiceUnavailable,
}

// respondError writes err as a JSON error body with a matching status.
func respondError(c *gin.Context, err error) {
	var rej *attendance.Error
	if errors.As(err, &rej) {
		status, ok := kindStatus[rej.Kind]
		if !ok {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"error":     rej.Kind,
			"message":   rej.Message,
			"severity":  rej.Severity,
			"retryable": rej.Retryable,
		})
		return
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": "Invalid input.", "fields": fields})
		return
	}

	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, attendance.ErrEmailTaken), errors.Is(err, attendance.ErrPhoneTaken):
		status, code = http.StatusConflict, "already_registered"
	case errors.Is(err, attendance.ErrLeaveNotPending):
		status, code = http.StatusConflict, "already_decided"
	case errors.Is(err, attendance.ErrLeaveExists):
		status, code = http.StatusConflict, "already_applied"
	case errors.Is(err, attendance.ErrDuplicate):
		status, code = http.StatusConflict, "duplicate"
	case errors.Is(err, attendance.ErrSelfDeactivation):
		status, code = http.StatusConflict, "self_deactivation"
	case errors.Is(err, attendance.ErrOwnLeave):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, attendance.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, attendance.ErrWeakPassword),
		errors.Is(err, attendance.ErrInvalidDate),
		errors.Is(err, attendance.ErrLeaveTypeRequired),
		errors.Is(err, attendance.ErrUnsupportedType),
		errors.Is(err, attendance.ErrRegistrationLocation),
		errors.Is(err, imagestore.ErrInvalidImage),
		errors.Is(err, report.ErrInvalidRange),
		errors.Is(err, errBadRequest):
		status, code = http.StatusBadRequest, "bad_request"
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": code, "message": "Something went wrong. Please try again."})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, badRequest("image is not valid base64")
	}
	return b, nil
}

func queryInt(c *gin.Context, key string, fallback, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return fallback
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// bindJSON decodes and validates the body. On failure it writes a 400 and
// returns false.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			respondError(c, err)
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "Malformed request body."})
		}
		return false
	}
	return true
}
