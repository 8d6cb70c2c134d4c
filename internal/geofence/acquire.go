package geofence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Source yields one position reading per call.
type Source interface {
	Position(ctx context.Context) (Fix, error)
}

// Retry bounds location acquisition.
type Retry struct {
	Attempts int
	Timeout  time.Duration // per attempt
	Delay    time.Duration // between attempts
}

// DefaultRetry matches the capture settings of the web client: three
// attempts, 15s each, 2s apart.
var DefaultRetry = Retry{Attempts: 3, Timeout: 15 * time.Second, Delay: 2 * time.Second}

// Acquire polls src until it yields a fix whose accuracy is within maxAccuracy.
// A source error ends acquisition with ErrUnavailable; running out of attempts
// with only coarse fixes ends it with ErrInaccurate.
func Acquire(ctx context.Context, src Source, maxAccuracy float64, r Retry) (Fix, error) {
	if src == nil {
		return Fix{}, ErrUnavailable
	}
	if r.Attempts <= 0 {
		r.Attempts = 1
	}

	var last Fix
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		opCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.Timeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		}
		fix, err := src.Position(opCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return Fix{}, ctx.Err()
			}
			if errors.Is(err, ErrNoMoreFixes) && attempt > 1 {
				r.Attempts = attempt - 1
				break
			}
			return Fix{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if IsAccurateEnough(fix.AccuracyMeters, maxAccuracy) {
			return fix, nil
		}
		last = fix
		slog.Debug("location fix too coarse", "attempt", attempt, "accuracy", fix.AccuracyMeters, "max", maxAccuracy)

		if attempt < r.Attempts && r.Delay > 0 {
			select {
			case <-ctx.Done():
				return Fix{}, ctx.Err()
			case <-time.After(r.Delay):
			}
		}
	}
	return Fix{}, fmt.Errorf("%w: best %.0fm after %d attempts (max %.0fm)", ErrInaccurate, last.AccuracyMeters, r.Attempts, maxAccuracy)
}

// ErrNoMoreFixes is returned by FixList once every fix has been served.
var ErrNoMoreFixes = errors.New("no more location fixes")

// FixList serves pre-captured fixes in order, e.g. the readings a client
// collected before submitting an attempt.
type FixList struct {
	mu    sync.Mutex
	fixes []Fix
}

// NewFixList creates a source over fixes.
func NewFixList(fixes ...Fix) *FixList {
	return &FixList{fixes: fixes}
}

// Position returns the next fix.
func (l *FixList) Position(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.fixes) == 0 {
		return Fix{}, ErrNoMoreFixes
	}
	f := l.fixes[0]
	l.fixes = l.fixes[1:]
	return f, nil
}
