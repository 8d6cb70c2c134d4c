// Package face compares face descriptors and applies the identity policy used
// by attendance verification.
package face

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Descriptor is a fixed-length face embedding.
type Descriptor []float32

// Detection is what a Detector reports for a single frame.
type Detection struct {
	Present    bool
	Confidence float64
	Descriptor Descriptor
}

// Detector finds a face in an encoded image frame and extracts its descriptor.
type Detector interface {
	Detect(ctx context.Context, frame []byte) (Detection, error)
}

var (
	ErrLowConfidence   = errors.New("face detection confidence too low")
	ErrNoFace          = errors.New("no face detected or face unclear")
	ErrNoReference     = errors.New("no reference face on file")
	ErrMismatch        = errors.New("face verification failed")
	ErrStrictMismatch  = errors.New("possible identity mismatch")
	ErrSuspicious      = errors.New("suspiciously perfect match")
	ErrDescriptorShape = errors.New("descriptor length mismatch")
)

// Class is the outcome of classifying a descriptor distance.
type Class int

const (
	Match Class = iota
	Mismatch
	StrictMismatch
	Suspicious
)

func (c Class) String() string {
	switch c {
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	case StrictMismatch:
		return "strict_mismatch"
	case Suspicious:
		return "suspicious"
	}
	return "unknown"
}

// Thresholds for the identity policy. These are calibrated for 128-d
// descriptors and are configuration, not derived constants.
type Thresholds struct {
	MinConfidence float64 `yaml:"min_confidence"`
	Loose         float64 `yaml:"loose"`
	Strict        float64 `yaml:"strict"`
	SpoofFloor    float64 `yaml:"spoof_floor"`
}

// DefaultThresholds are the production values.
var DefaultThresholds = Thresholds{MinConfidence: 0.8, Loose: 0.5, Strict: 0.4, SpoofFloor: 0.05}

// Distance returns the Euclidean distance between two descriptors.
func Distance(d1, d2 Descriptor) (float64, error) {
	if len(d1) == 0 || len(d1) != len(d2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDescriptorShape, len(d1), len(d2))
	}
	var sum float64
	for i := range d1 {
		diff := float64(d1[i]) - float64(d2[i])
		sum += diff * diff
	}
	return math.Sqrt(sum), nil
}

// Classify maps a distance onto a Class. The loose threshold is checked before
// the strict one so that a distance failing both reports the plainer failure.
func (t Thresholds) Classify(distance float64) Class {
	switch {
	case distance >= t.Loose:
		return Mismatch
	case distance >= t.Strict:
		return StrictMismatch
	case distance < t.SpoofFloor:
		return Suspicious
	}
	return Match
}

// Err returns the policy error for a class, nil for Match.
func (c Class) Err() error {
	switch c {
	case Mismatch:
		return ErrMismatch
	case StrictMismatch:
		return ErrStrictMismatch
	case Suspicious:
		return ErrSuspicious
	}
	return nil
}
