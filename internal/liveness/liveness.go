// Package liveness decides whether the subject in front of the camera is a
// live person by looking for blinks across a short burst of frames.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"geoattend/internal/face"
)

// State of the sampling state machine.
type State int

const (
	Detected State = iota
	NotDetected
	Passed
	Failed
)

func (s State) String() string {
	switch s {
	case Detected:
		return "DETECTED"
	case NotDetected:
		return "NOT_DETECTED"
	case Passed:
		return "PASSED"
	case Failed:
		return "FAILED"
	}
	return "UNKNOWN"
}

var (
	ErrNoBlink = errors.New("no blink detected")
	ErrNoFrame = errors.New("no frame available")
)

// FrameSource yields encoded frames on demand.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// Camera is a FrameSource that holds a device and must be released.
type Camera interface {
	FrameSource
	Close() error
}

// Sample is one per-frame observation.
type Sample struct {
	Present    bool
	Confidence float64
}

// Result summarises a sampling window.
type Result struct {
	State       State
	Blinks      int
	Detected    int
	NotDetected int
	Drops       int
	Samples     int
}

// Evaluate runs the blink state machine over samples.
//
// A DETECTED→NOT_DETECTED transition between consecutive samples is a blink.
// A sample whose confidence falls below 90% of the previous sample's is a drop.
// The window passes if it saw a blink with more than three detected and at
// least one undetected sample, or more than one drop.
func Evaluate(samples []Sample) Result {
	res := Result{Samples: len(samples)}
	prev := NotDetected
	prevConf := 0.0
	for i, s := range samples {
		conf := s.Confidence
		if !s.Present {
			conf = 0
		}
		cur := NotDetected
		if s.Present {
			cur = Detected
			res.Detected++
		} else {
			res.NotDetected++
		}
		if i > 0 {
			if prev == Detected && cur == NotDetected {
				res.Blinks++
			}
			if conf < prevConf*0.9 {
				res.Drops++
			}
		}
		prev, prevConf = cur, conf
	}

	if (res.Blinks >= 1 && res.Detected > 3 && res.NotDetected > 0) || res.Drops > 1 {
		res.State = Passed
	} else {
		res.State = Failed
	}
	return res
}

// Detector samples a frame source and evaluates liveness.
type Detector struct {
	faces    face.Detector
	Samples  int
	Interval time.Duration
}

// New creates a detector sampling n frames spaced by interval.
func New(faces face.Detector, samples int, interval time.Duration) *Detector {
	if samples <= 0 {
		samples = 30
	}
	return &Detector{faces: faces, Samples: samples, Interval: interval}
}

// Run grabs Samples frames from src, running face detection on each, and
// evaluates the window. progress, if set, receives a monotonic 0..100 value.
// A detector error on a single frame counts as "no face" for that frame;
// a frame source error aborts the run.
func (d *Detector) Run(ctx context.Context, src FrameSource, progress func(int)) (Result, error) {
	samples := make([]Sample, 0, d.Samples)
	report := func(p int) {
		if progress != nil {
			progress(p)
		}
	}
	report(0)

	for i := 0; i < d.Samples; i++ {
		if i > 0 && d.Interval > 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(d.Interval):
			}
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		frame, err := src.Frame(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("%w: frame %d: %v", ErrNoFrame, i, err)
		}
		det, err := d.faces.Detect(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			det = face.Detection{}
		}
		samples = append(samples, Sample{Present: det.Present, Confidence: det.Confidence})
		report((i + 1) * 100 / d.Samples)
	}

	res := Evaluate(samples)
	if res.State != Passed {
		return res, ErrNoBlink
	}
	return res, nil
}
