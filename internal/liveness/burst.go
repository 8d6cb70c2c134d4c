package liveness

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("camera closed")

// Burst is a Camera over frames captured ahead of time by a client. It serves
// frames in order and drops them on Close.
type Burst struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

// NewBurst wraps pre-captured frames.
func NewBurst(frames [][]byte) *Burst {
	return &Burst{frames: frames}
}

// Frame returns the next frame.
func (b *Burst) Frame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if len(b.frames) == 0 {
		return nil, ErrNoFrame
	}
	f := b.frames[0]
	b.frames = b.frames[1:]
	return f, nil
}

// Remaining reports how many frames are left.
func (b *Burst) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Close releases the frames.
func (b *Burst) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.frames = nil
	return nil
}

// Closed reports whether Close was called.
func (b *Burst) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
