package face

import (
	"context"
	"errors"
	"math"
	"testing"
)

type fakeDetector struct {
	det Detection
	err error
}

func (f fakeDetector) Detect(context.Context, []byte) (Detection, error) { return f.det, f.err }

func descriptorAt(distance float64) Descriptor {
	d := make(Descriptor, 128)
	d[0] = float32(distance)
	return d
}

func TestDistance(t *testing.T) {
	d, err := Distance(Descriptor{0, 3}, Descriptor{4, 0})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d-5) > 1e-9 {
		t.Fatalf("distance = %v, want 5", d)
	}
	if _, err := Distance(Descriptor{1}, Descriptor{1, 2}); !errors.Is(err, ErrDescriptorShape) {
		t.Fatalf("err = %v, want ErrDescriptorShape", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		distance float64
		want     Class
	}{
		{0.03, Suspicious},
		{0.05, Match},
		{0.2, Match},
		{0.39, Match},
		{0.45, StrictMismatch},
		{0.5, Mismatch},
		{0.6, Mismatch},
	}
	for _, tt := range tests {
		if got := DefaultThresholds.Classify(tt.distance); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestVerifyPolicyOrder(t *testing.T) {
	ref := descriptorAt(0)
	tests := []struct {
		name    string
		det     Detection
		ref     Descriptor
		wantErr error
	}{
		{"no face", Detection{Present: false, Confidence: 0.99}, ref, ErrLowConfidence},
		{"low confidence", Detection{Present: true, Confidence: 0.7, Descriptor: descriptorAt(0.2)}, ref, ErrLowConfidence},
		{"no descriptor", Detection{Present: true, Confidence: 0.9}, ref, ErrNoFace},
		{"no reference", Detection{Present: true, Confidence: 0.9, Descriptor: descriptorAt(0.2)}, nil, ErrNoReference},
		{"loose fail", Detection{Present: true, Confidence: 0.9, Descriptor: descriptorAt(0.6)}, ref, ErrMismatch},
		{"strict fail", Detection{Present: true, Confidence: 0.9, Descriptor: descriptorAt(0.45)}, ref, ErrStrictMismatch},
		{"suspicious", Detection{Present: true, Confidence: 0.9, Descriptor: descriptorAt(0.03)}, ref, ErrSuspicious},
		{"accepted", Detection{Present: true, Confidence: 0.9, Descriptor: descriptorAt(0.39)}, ref, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(fakeDetector{det: tt.det}, Thresholds{})
			res, err := v.Verify(context.Background(), []byte("frame"), tt.ref)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && res.Class != Match {
				t.Fatalf("class = %v, want match", res.Class)
			}
		})
	}
}

func TestVerifyDetectorError(t *testing.T) {
	boom := errors.New("face service down")
	v := NewVerifier(fakeDetector{err: boom}, DefaultThresholds)
	if _, err := v.Verify(context.Background(), nil, descriptorAt(0)); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestDescriptorOf(t *testing.T) {
	v := NewVerifier(fakeDetector{det: Detection{Present: true, Confidence: 0.5, Descriptor: descriptorAt(1)}}, DefaultThresholds)
	d, conf, err := v.DescriptorOf(context.Background(), nil)
	if err != nil || d != nil || conf != 0.5 {
		t.Fatalf("DescriptorOf = %v, %v, %v; want nil descriptor below floor", d, conf, err)
	}
}
