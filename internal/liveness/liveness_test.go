package liveness

import (
	"context"
	"errors"
	"testing"
	"time"

	"geoattend/internal/face"
)

func window(detected func(i int) bool) []Sample {
	s := make([]Sample, 30)
	for i := range s {
		if detected(i + 1) {
			s[i] = Sample{Present: true, Confidence: 0.95}
		}
	}
	return s
}

func TestEvaluate(t *testing.T) {
	t.Run("steady face fails", func(t *testing.T) {
		res := Evaluate(window(func(int) bool { return true }))
		if res.State != Failed {
			t.Fatalf("state = %v, want FAILED (%+v)", res.State, res)
		}
	})

	t.Run("blink passes", func(t *testing.T) {
		res := Evaluate(window(func(i int) bool { return i <= 10 || i >= 16 }))
		if res.State != Passed {
			t.Fatalf("state = %v, want PASSED (%+v)", res.State, res)
		}
		if res.Blinks != 1 || res.Detected != 25 || res.NotDetected != 5 {
			t.Fatalf("unexpected counts %+v", res)
		}
	})

	t.Run("blink with too few detections fails", func(t *testing.T) {
		res := Evaluate(window(func(i int) bool { return i <= 3 }))
		// a single blink and one drop, only three detected frames
		if res.State != Failed {
			t.Fatalf("state = %v, want FAILED (%+v)", res.State, res)
		}
	})

	t.Run("confidence drops alone pass", func(t *testing.T) {
		s := make([]Sample, 30)
		conf := []float64{0.99, 0.85, 0.99, 0.85}
		for i := range s {
			s[i] = Sample{Present: true, Confidence: 0.99}
			if i < len(conf) {
				s[i].Confidence = conf[i]
			}
		}
		res := Evaluate(s)
		if res.Drops != 2 || res.State != Passed {
			t.Fatalf("got %+v, want two drops and PASSED", res)
		}
	})

	t.Run("small jitter is not a drop", func(t *testing.T) {
		s := make([]Sample, 30)
		for i := range s {
			s[i] = Sample{Present: true, Confidence: 0.95 - float64(i%2)*0.05}
		}
		if res := Evaluate(s); res.Drops != 0 || res.State != Failed {
			t.Fatalf("got %+v", res)
		}
	})

	t.Run("empty window fails", func(t *testing.T) {
		if res := Evaluate(nil); res.State != Failed {
			t.Fatalf("state = %v", res.State)
		}
	})
}

// presenceDetector reports a face for frames whose first byte is 'F'.
type presenceDetector struct{}

func (presenceDetector) Detect(_ context.Context, frame []byte) (face.Detection, error) {
	if len(frame) > 0 && frame[0] == 'F' {
		return face.Detection{Present: true, Confidence: 0.95}, nil
	}
	return face.Detection{}, nil
}

func frames(pattern string) [][]byte {
	out := make([][]byte, len(pattern))
	for i := range pattern {
		out[i] = []byte{pattern[i]}
	}
	return out
}

func TestDetectorRun(t *testing.T) {
	d := New(presenceDetector{}, 30, 0)

	var progress []int
	res, err := d.Run(context.Background(), NewBurst(frames("FFFFFFFFFF_____FFFFFFFFFFFFFFF")), func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Run: %v (%+v)", err, res)
	}
	if res.State != Passed {
		t.Fatalf("state = %v", res.State)
	}
	if progress[0] != 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress endpoints %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress not monotonic: %v", progress)
		}
	}

	_, err = d.Run(context.Background(), NewBurst(frames("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFF")), nil)
	if !errors.Is(err, ErrNoBlink) {
		t.Fatalf("err = %v, want ErrNoBlink", err)
	}
}

func TestDetectorRunShortBurst(t *testing.T) {
	d := New(presenceDetector{}, 30, 0)
	if _, err := d.Run(context.Background(), NewBurst(frames("FFF")), nil); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("err = %v, want ErrNoFrame", err)
	}
}

func TestDetectorRunCancelled(t *testing.T) {
	d := New(presenceDetector{}, 30, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := d.Run(ctx, NewBurst(frames("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFF")), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBurstClose(t *testing.T) {
	b := NewBurst(frames("FF"))
	_ = b.Close()
	if _, err := b.Frame(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
