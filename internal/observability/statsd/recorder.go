package statsd

import (
	"maps"
	"sync"
	"time"
)

// Nop discards every metric.
type Nop struct{}

func (Nop) Count(string, int64, map[string]string)          {}
func (Nop) Gauge(string, float64, map[string]string)        {}
func (Nop) Timing(string, time.Duration, map[string]string) {}

// Point is one metric captured by a Recorder.
type Point struct {
	Name  string
	Kind  string
	Value float64
	Tags  map[string]string
}

// Recorder keeps metrics in memory. Tests use it to assert on emitted metrics.
type Recorder struct {
	mu     sync.Mutex
	points []Point
}

var _ Sink = (*Recorder)(nil)

// Count records a counter increment.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.add(Point{Name: name, Kind: "c", Value: float64(value), Tags: maps.Clone(tags)})
}

// Gauge records a gauge value.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.add(Point{Name: name, Kind: "g", Value: value, Tags: maps.Clone(tags)})
}

// Timing records a duration in milliseconds.
func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(Point{Name: name, Kind: "ms", Value: float64(value) / float64(time.Millisecond), Tags: maps.Clone(tags)})
}

func (r *Recorder) add(p Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, p)
}

// Points returns a copy of everything recorded so far.
func (r *Recorder) Points() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Point(nil), r.points...)
}

// Sum adds up the values of all points named name.
func (r *Recorder) Sum(name string) float64 {
	var total float64
	for _, p := range r.Points() {
		if p.Name == name {
			total += p.Value
		}
	}
	return total
}

// Last returns the most recent point named name.
func (r *Recorder) Last(name string) (Point, bool) {
	points := r.Points()
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Name == name {
			return points[i], true
		}
	}
	return Point{}, false
}
