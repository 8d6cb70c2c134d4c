package face

import (
	"context"
	"fmt"
)

// Result carries the scores of a verification, filled as far as the policy got.
type Result struct {
	Confidence float64
	Distance   float64
	Class      Class
}

// Verifier applies the identity policy on top of a Detector.
type Verifier struct {
	detector   Detector
	thresholds Thresholds
}

// NewVerifier creates a verifier; zero thresholds fall back to DefaultThresholds.
func NewVerifier(d Detector, t Thresholds) *Verifier {
	if t == (Thresholds{}) {
		t = DefaultThresholds
	}
	return &Verifier{detector: d, thresholds: t}
}

// Thresholds returns the active thresholds.
func (v *Verifier) Thresholds() Thresholds { return v.thresholds }

// DescriptorOf extracts a descriptor from frame. It returns nil when there is
// no face or detection confidence is below the floor.
func (v *Verifier) DescriptorOf(ctx context.Context, frame []byte) (Descriptor, float64, error) {
	det, err := v.detector.Detect(ctx, frame)
	if err != nil {
		return nil, 0, err
	}
	if !det.Present || det.Confidence < v.thresholds.MinConfidence || len(det.Descriptor) == 0 {
		return nil, det.Confidence, nil
	}
	return det.Descriptor, det.Confidence, nil
}

// Verify checks the face in frame against reference. Checks run in order and
// the first failure is returned: detection confidence, descriptor present,
// reference on file, loose threshold, strict threshold, spoof floor.
// Detector errors are returned unwrapped so callers can tell infrastructure
// failures from policy rejections.
func (v *Verifier) Verify(ctx context.Context, frame []byte, reference Descriptor) (Result, error) {
	det, err := v.detector.Detect(ctx, frame)
	if err != nil {
		return Result{}, err
	}
	res := Result{Confidence: det.Confidence}
	if !det.Present {
		res.Confidence = 0
	}

	if res.Confidence < v.thresholds.MinConfidence {
		return res, fmt.Errorf("%w: %.2f < %.2f", ErrLowConfidence, res.Confidence, v.thresholds.MinConfidence)
	}
	if len(det.Descriptor) == 0 {
		return res, ErrNoFace
	}
	if len(reference) == 0 {
		return res, ErrNoReference
	}

	d, err := Distance(det.Descriptor, reference)
	if err != nil {
		return res, err
	}
	res.Distance = d
	res.Class = v.thresholds.Classify(d)
	if err := res.Class.Err(); err != nil {
		return res, fmt.Errorf("%w (distance %.3f)", err, d)
	}
	return res, nil
}
