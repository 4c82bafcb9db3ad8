// Package sensor reduces raw gateway history to chart-sized series.
package sensor

import (
	"strconv"
	"time"

	"github.com/mycotrack/myco/internal/homeassistant"
)

// Point is one downsampled reading.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Downsample reduces a history series to at most maxPoints by time-bucketed
// mean. Non-numeric samples ("unavailable", "unknown") are dropped before
// bucketing. The result is deterministic for a given input and keeps the
// first and last sample timestamps so chart axes stay anchored.
func Downsample(history []homeassistant.EntityState, maxPoints int) []Point {
	samples := numericSamples(history)
	if maxPoints <= 0 || len(samples) <= maxPoints {
		return samples
	}
	if maxPoints == 1 {
		return samples[:1]
	}

	first := samples[0].Timestamp
	last := samples[len(samples)-1].Timestamp
	span := last.Sub(first)
	if span <= 0 {
		// All samples share one timestamp; keep the first.
		return samples[:1]
	}

	bucketWidth := span / time.Duration(maxPoints)
	if bucketWidth <= 0 {
		bucketWidth = time.Nanosecond
	}

	type bucket struct {
		sum   float64
		count int
		at    time.Time
	}
	buckets := make([]bucket, maxPoints)

	for _, s := range samples {
		idx := int(s.Timestamp.Sub(first) / bucketWidth)
		if idx >= maxPoints {
			idx = maxPoints - 1
		}
		b := &buckets[idx]
		if b.count == 0 {
			b.at = s.Timestamp
		}
		b.sum += s.Value
		b.count++
	}

	points := make([]Point, 0, maxPoints)
	for _, b := range buckets {
		if b.count == 0 {
			continue
		}
		points = append(points, Point{Timestamp: b.at, Value: b.sum / float64(b.count)})
	}

	// Anchor the series ends on the raw first/last timestamps so chart
	// axes cover the full requested window.
	if len(points) > 0 {
		points[0].Timestamp = first
		points[len(points)-1].Timestamp = last
	}

	return points
}

func numericSamples(history []homeassistant.EntityState) []Point {
	samples := make([]Point, 0, len(history))
	for _, h := range history {
		value, err := strconv.ParseFloat(h.State, 64)
		if err != nil {
			continue
		}
		at := h.LastChanged
		if at.IsZero() {
			at = h.LastUpdated
		}
		samples = append(samples, Point{Timestamp: at, Value: value})
	}
	return samples
}
