package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/geofence"
	"geoattend/internal/liveness"
)

type AttendanceHandler struct {
	gate    *attendance.Gate
	records attendance.Store
}

func NewAttendanceHandler(gate *attendance.Gate, records attendance.Store) *AttendanceHandler {
	return &AttendanceHandler{gate: gate, records: records}
}

type fixRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required,latitude"`
	Longitude *float64 `json:"longitude" binding:"required,longitude"`
	Accuracy  *float64 `json:"accuracy" binding:"required,gte=0"`
}

// attemptRequest carries what the client captured: location fixes in the
// order they were taken, the liveness burst and an optional identity frame.
type attemptRequest struct {
	Fixes   []fixRequest `json:"fixes" binding:"max=10,dive"`
	Frames  []string     `json:"frames" binding:"max=120"`
	Capture string       `json:"capture"`
}

// Submit runs the gate for the caller. The event type comes from the route.
func (h *AttendanceHandler) Submit(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	typ := attendance.EventType(c.Param("type"))
	if typ != attendance.CheckIn && typ != attendance.CheckOut {
		respondError(c, attendance.ErrUnsupportedType)
		return
	}

	var req attemptRequest
	if !bindJSON(c, &req) {
		return
	}
	fixes := make([]geofence.Fix, 0, len(req.Fixes))
	for _, f := range req.Fixes {
		fixes = append(fixes, geofence.Fix{
			Point:          geofence.Point{Lat: *f.Latitude, Lng: *f.Longitude},
			AccuracyMeters: *f.Accuracy,
		})
	}
	frames := make([][]byte, 0, len(req.Frames))
	for _, s := range req.Frames {
		b, err := decodeImage(s)
		if err != nil {
			respondError(c, err)
			return
		}
		frames = append(frames, b)
	}
	var capture []byte
	if req.Capture != "" {
		b, err := decodeImage(req.Capture)
		if err != nil {
			respondError(c, err)
			return
		}
		capture = b
	}

	out, err := h.gate.Run(c.Request.Context(), attendance.Attempt{
		EmpID:    claims.Subject,
		Type:     typ,
		Location: geofence.NewFixList(fixes...),
		OpenCamera: func(context.Context) (liveness.Camera, error) {
			return liveness.NewBurst(frames), nil
		},
		Capture: capture,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"record":          out.Record,
		"message":         out.Message,
		"severity":        out.Severity,
		"distance_meters": out.Distance,
		"clock_trusted":   out.Reading.Trusted,
	})
}

// History lists the caller's records, newest first.
func (h *AttendanceHandler) History(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	recs, err := h.records.ListRecords(c.Request.Context(), attendance.RecordFilter{
		EmpID:  claims.Subject,
		Type:   attendance.EventType(c.Query("type")),
		From:   c.Query("from"),
		To:     c.Query("to"),
		Limit:  queryInt(c, "limit", 50, 500),
		Offset: queryInt(c, "offset", 0, 0),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}
