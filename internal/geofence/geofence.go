package geofence

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

var (
	ErrUnavailable  = errors.New("location unavailable")
	ErrInaccurate   = errors.New("location accuracy too poor")
	ErrOutsideFence = errors.New("outside registered location")
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Fix is one position reading with its reported accuracy radius.
type Fix struct {
	Point
	AccuracyMeters float64 `json:"accuracy"`
}

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// IsAccurateEnough reports whether the reported accuracy is within the ceiling.
func IsAccurateEnough(accuracyMeters, maxMeters float64) bool {
	return accuracyMeters >= 0 && accuracyMeters <= maxMeters
}

// IsWithinFence reports whether distance is inside the fence radius.
func IsWithinFence(distanceMeters, radiusMeters float64) bool {
	return distanceMeters <= radiusMeters
}

// Round6 rounds a coordinate to six decimal places (about 0.1 m).
func Round6(p Point) Point {
	return Point{
		Lat: math.Round(p.Lat*1e6) / 1e6,
		Lng: math.Round(p.Lng*1e6) / 1e6,
	}
}

// Policy holds the accuracy ceiling and fence radius for one kind of capture.
type Policy struct {
	MaxAccuracy float64
	Radius      float64
}

// Check validates a fix against home. Accuracy is checked first; an inaccurate
// fix is rejected regardless of its distance.
func (p Policy) Check(home Point, fix Fix) (float64, error) {
	if !IsAccurateEnough(fix.AccuracyMeters, p.MaxAccuracy) {
		return 0, fmt.Errorf("%w: %.0fm (max %.0fm)", ErrInaccurate, fix.AccuracyMeters, p.MaxAccuracy)
	}
	d := DistanceMeters(home, fix.Point)
	if !IsWithinFence(d, p.Radius) {
		return d, fmt.Errorf("%w: %.0fm away (max %.0fm)", ErrOutsideFence, d, p.Radius)
	}
	return d, nil
}
