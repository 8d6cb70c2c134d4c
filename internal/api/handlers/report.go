package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/report"
	"geoattend/internal/store"
)

// BoardReader reads the live per-day counters.
type BoardReader interface {
	ReadBoard(ctx context.Context, date string) (store.Board, error)
}

// SummaryCache holds precomputed daily summaries.
type SummaryCache interface {
	GetJSON(ctx context.Context, key string) ([]byte, error)
}

type ReportHandler struct {
	src   report.Source
	shift attendance.Shift
	board BoardReader
	cache SummaryCache
	now   func() time.Time
}

// NewReportHandler builds the handler. board and cache may be nil.
func NewReportHandler(src report.Source, shift attendance.Shift, board BoardReader, cache SummaryCache) *ReportHandler {
	return &ReportHandler{src: src, shift: shift, board: board, cache: cache, now: time.Now}
}

func (h *ReportHandler) rangeFromQuery(c *gin.Context) (report.Range, bool) {
	today := h.shift.WorkDate(h.now())
	from, to := c.DefaultQuery("from", today), c.DefaultQuery("to", today)
	r, err := report.ParseRange(from, to, h.shift.Location)
	if err != nil {
		respondError(c, err)
		return report.Range{}, false
	}
	return r, true
}

// Summary returns overall and per-branch statistics for from..to.
func (h *ReportHandler) Summary(c *gin.Context) {
	r, ok := h.rangeFromQuery(c)
	if !ok {
		return
	}
	branch := scopedBranch(c)
	recs, leaves, err := report.Fetch(c.Request.Context(), h.src, branch, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report.Summarize(recs, leaves, branch, r))
}

// Detail returns one row per employee per day.
func (h *ReportHandler) Detail(c *gin.Context) {
	r, ok := h.rangeFromQuery(c)
	if !ok {
		return
	}
	branch := scopedBranch(c)
	recs, leaves, err := report.Fetch(c.Request.Context(), h.src, branch, r)
	if err != nil {
		respondError(c, err)
		return
	}
	rows := report.Detail(recs, leaves, branch, r, h.shift)
	if rows == nil {
		rows = []report.EmployeeDetail{}
	}
	c.JSON(http.StatusOK, gin.H{"from": r.From.Format("2006-01-02"), "to": r.To.Format("2006-01-02"), "employees": rows})
}

// Daily serves the nightly precomputed summary, computing it on a miss.
func (h *ReportHandler) Daily(c *gin.Context) {
	date := c.DefaultQuery("date", h.shift.WorkDate(h.now().AddDate(0, 0, -1)))
	if h.cache != nil && scopedBranch(c) == "" {
		raw, err := h.cache.GetJSON(c.Request.Context(), report.DailyKey(date))
		if err != nil {
			slog.Warn("summary cache read failed", "date", date, "error", err)
		}
		if len(raw) > 0 {
			var s report.Summary
			if err := json.Unmarshal(raw, &s); err == nil {
				c.JSON(http.StatusOK, gin.H{"summary": s, "cached": true})
				return
			}
		}
	}
	r, err := report.ParseRange(date, date, h.shift.Location)
	if err != nil {
		respondError(c, err)
		return
	}
	branch := scopedBranch(c)
	recs, leaves, err := report.Fetch(c.Request.Context(), h.src, branch, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": report.Summarize(recs, leaves, branch, r), "cached": false})
}

// Board returns today's live counters.
func (h *ReportHandler) Board(c *gin.Context) {
	date := c.DefaultQuery("date", h.shift.WorkDate(h.now()))
	if h.board == nil {
		c.JSON(http.StatusOK, gin.H{"date": date, "counters": store.Board{}})
		return
	}
	b, err := h.board.ReadBoard(c.Request.Context(), date)
	if err != nil {
		respondError(c, err)
		return
	}
	if branch := scopedBranch(c); branch != "" {
		b = b.ForBranch(branch)
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "counters": b})
}
