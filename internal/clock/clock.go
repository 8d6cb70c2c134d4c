// Package clock provides the authoritative time used to classify attendance.
package clock

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"geoattend/internal/observability"
)

// Source names recorded with each reading.
const (
	SourceExternal = "external"
	SourceBackend  = "backend"
	SourceLocal    = "local"
)

// Reading is a timestamp plus where it came from.
type Reading struct {
	Time    time.Time
	Source  string
	Trusted bool
	Skew    time.Duration // authoritative minus local
}

// Source is one time provider.
type Source interface {
	Name() string
	Now(ctx context.Context) (time.Time, error)
}

// Chain asks each source in order and falls back to the local clock when all
// of them fail. The local fallback is marked untrusted.
type Chain struct {
	Sources []Source
	Timeout time.Duration // per source
	MaxSkew time.Duration
	Local   func() time.Time
}

// NewChain builds a chain over sources.
func NewChain(maxSkew, timeout time.Duration, sources ...Source) *Chain {
	return &Chain{Sources: sources, Timeout: timeout, MaxSkew: maxSkew, Local: time.Now}
}

// Now returns the best available reading. It never fails.
func (c *Chain) Now(ctx context.Context) Reading {
	local := c.Local
	if local == nil {
		local = time.Now
	}
	for _, src := range c.Sources {
		opCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.Timeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		}
		t, err := src.Now(opCtx)
		cancel()
		if err != nil {
			slog.Warn("time source failed, falling back", "source", src.Name(), "error", err)
			continue
		}
		r := Reading{Time: t, Source: src.Name(), Trusted: true, Skew: t.Sub(local())}
		c.checkSkew(r)
		observability.ClockReadings.WithLabelValues(r.Source).Inc()
		return r
	}
	observability.ClockReadings.WithLabelValues(SourceLocal).Inc()
	observability.ClockFallbacks.Inc()
	slog.Warn("using local clock for attendance classification")
	return Reading{Time: local(), Source: SourceLocal}
}

func (c *Chain) checkSkew(r Reading) {
	if c.MaxSkew <= 0 {
		return
	}
	skew := r.Skew
	if skew < 0 {
		skew = -skew
	}
	if skew > c.MaxSkew {
		observability.ClockSkewEvents.Inc()
		slog.Warn("clock skew", "source", r.Source, "skew", r.Skew.String(), "max", c.MaxSkew.String())
	}
}

// HTTPSource reads a worldtimeapi-style endpoint returning {"datetime": RFC3339}.
type HTTPSource struct {
	URL  string
	HTTP *http.Client
}

// NewHTTPSource creates a source for url.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{URL: url, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (s *HTTPSource) Name() string { return SourceExternal }

// Now fetches the current time.
func (s *HTTPSource) Now(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("time service request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return time.Time{}, fmt.Errorf("time service error %s: %s", resp.Status, string(body))
	}

	var out struct {
		Datetime string `json:"datetime"`
		Unixtime int64  `json:"unixtime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode time response: %w", err)
	}
	if out.Datetime != "" {
		return time.Parse(time.RFC3339Nano, out.Datetime)
	}
	if out.Unixtime > 0 {
		return time.Unix(out.Unixtime, 0), nil
	}
	return time.Time{}, errors.New("time response has no datetime")
}

// DBSource asks the database for its clock.
type DBSource struct {
	DB *sql.DB
}

func (s DBSource) Name() string { return SourceBackend }

// Now runs SELECT now().
func (s DBSource) Now(ctx context.Context) (time.Time, error) {
	if s.DB == nil {
		return time.Time{}, errors.New("no database")
	}
	var t time.Time
	if err := s.DB.QueryRowContext(ctx, `SELECT now()`).Scan(&t); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Fixed is a source that always returns T. Useful in tests and replays.
type Fixed struct {
	T     time.Time
	Label string
}

func (f Fixed) Name() string {
	if f.Label == "" {
		return SourceExternal
	}
	return f.Label
}

func (f Fixed) Now(context.Context) (time.Time, error) { return f.T, nil }
