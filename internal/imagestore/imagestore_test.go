package imagestore

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"

	"geoattend/internal/attendance"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSavePhotoDownscales(t *testing.T) {
	mem := NewMemory()
	s := New(mem, 100)
	ctx := context.Background()

	ref, err := s.SavePhoto(ctx, "EMP1", pngOf(t, 400, 200))
	if err != nil {
		t.Fatal(err)
	}
	if ref != "photos/EMP1.jpg" {
		t.Fatalf("ref = %s", ref)
	}
	data, err := s.LoadPhoto(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestSmallImageKeepsSize(t *testing.T) {
	mem := NewMemory()
	s := New(mem, 640)
	ref, err := s.SaveSnapshot(context.Background(), "EMP1", "2024-03-04", attendance.CheckIn, pngOf(t, 32, 24))
	if err != nil {
		t.Fatal(err)
	}
	if ref != "snapshots/2024-03-04/EMP1/checkin.jpg" {
		t.Fatalf("ref = %s", ref)
	}
	data, _ := mem.Get(context.Background(), ref)
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Fatalf("size = %dx%d", b.Dx(), b.Dy())
	}
}

func TestRejectsGarbage(t *testing.T) {
	mem := NewMemory()
	s := New(mem, 0)
	if _, err := s.SavePhoto(context.Background(), "EMP1", []byte("not an image")); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("err = %v", err)
	}
	if mem.Len() != 0 {
		t.Fatal("garbage was stored")
	}
	if _, err := s.LoadPhoto(context.Background(), "photos/none.jpg"); !errors.Is(err, attendance.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteRemovesObject(t *testing.T) {
	mem := NewMemory()
	s := New(mem, 0)
	ctx := context.Background()
	photo, _ := s.SavePhoto(ctx, "EMP1", pngOf(t, 8, 8))
	snap, _ := s.SaveSnapshot(ctx, "EMP1", "2024-03-04", attendance.CheckOut, pngOf(t, 8, 8))
	if mem.Len() != 2 {
		t.Fatalf("len = %d", mem.Len())
	}
	if err := s.DeletePhoto(ctx, photo); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSnapshot(ctx, snap); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePhoto(ctx, photo); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("len = %d after delete", mem.Len())
	}
}
