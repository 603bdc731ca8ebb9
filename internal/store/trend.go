package store

import (
	"github.com/srg/plantmon/internal/sensor"
)

// Point is one trend chart entry.
type Point struct {
	Timestamp int64
	Value     float64
}

// Series projects one metric over the newest n samples, for trend views.
func (s *Store) Series(m sensor.Metric, n int) []Point {
	samples := s.last(n)
	points := make([]Point, len(samples))
	for i, smp := range samples {
		points[i] = Point{Timestamp: smp.Timestamp, Value: m.Value(smp)}
	}
	return points
}

// Current formats the newest value of m, or "-- <unit>" on an empty store.
func (s *Store) Current(m sensor.Metric) string {
	smp, ok := s.Latest()
	if !ok {
		return "-- " + m.Unit()
	}
	return m.Format(m.Value(smp))
}
