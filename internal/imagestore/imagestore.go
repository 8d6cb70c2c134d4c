// Package imagestore keeps reference photos and capture snapshots in object
// storage after downscaling them.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"

	"github.com/disintegration/imaging"

	"geoattend/internal/attendance"
)

// ErrInvalidImage is returned for payloads that do not decode as an image.
var ErrInvalidImage = errors.New("invalid image")

// Backend is the object store the images land in. Put returns the reference
// later handed to Get.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Store implements attendance.Photos and attendance.Evidence.
type Store struct {
	backend Backend
	maxSide int
	quality int
}

// New wraps backend. Images larger than maxSide on either edge are shrunk.
func New(backend Backend, maxSide int) *Store {
	if maxSide <= 0 {
		maxSide = 640
	}
	return &Store{backend: backend, maxSide: maxSide, quality: 85}
}

func (s *Store) SavePhoto(ctx context.Context, empID string, photo []byte) (string, error) {
	data, err := s.normalize(photo)
	if err != nil {
		return "", err
	}
	return s.backend.Put(ctx, fmt.Sprintf("photos/%s.jpg", empID), data, "image/jpeg")
}

func (s *Store) LoadPhoto(ctx context.Context, ref string) ([]byte, error) {
	return s.backend.Get(ctx, ref)
}

func (s *Store) DeletePhoto(ctx context.Context, ref string) error {
	return s.backend.Delete(ctx, ref)
}

func (s *Store) SaveSnapshot(ctx context.Context, empID, workDate string, typ attendance.EventType, frame []byte) (string, error) {
	data, err := s.normalize(frame)
	if err != nil {
		return "", err
	}
	return s.backend.Put(ctx, fmt.Sprintf("snapshots/%s/%s/%s.jpg", workDate, empID, typ), data, "image/jpeg")
}

func (s *Store) DeleteSnapshot(ctx context.Context, ref string) error {
	return s.backend.Delete(ctx, ref)
}

// normalize decodes, applies EXIF orientation, fits within maxSide and
// re-encodes as JPEG.
func (s *Store) normalize(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() > s.maxSide || b.Dy() > s.maxSide {
		img = imaging.Fit(img, s.maxSide, s.maxSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Memory is a process-local Backend for development and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

func (m *Memory) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[ref]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", ref, attendance.ErrNotFound)
	}
	return data, nil
}

func (m *Memory) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, ref)
	return nil
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
