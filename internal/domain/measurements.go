package domain

import "fmt"

// ForceValue is a load-cell reading in newtons.
type ForceValue float64

func (f ForceValue) Newtons() float64 { return float64(f) }

func (f ForceValue) String() string { return fmt.Sprintf("%.2fN", float64(f)) }

// Measurement is one force reading taken at a (temperature, position) point.
type Measurement struct {
	Temperature float64    `json:"temperature"`
	Position    float64    `json:"position"`
	Force       ForceValue `json:"force"`
}

// PointKey is the flattened-map key for a measurement point.
func PointKey(temperature, position float64) string {
	return fmt.Sprintf("temp_%.1f_pos_%.1f", temperature, position)
}

// TestMeasurements is the force matrix collected during the hardware phase,
// keyed by (temperature, position) and kept in recording order.
type TestMeasurements struct {
	points []Measurement
	index  map[string]int
}

func NewTestMeasurements() *TestMeasurements {
	return &TestMeasurements{index: make(map[string]int)}
}

// Record stores a reading, replacing any earlier reading at the same point.
func (m *TestMeasurements) Record(temperature, position float64, force ForceValue) {
	key := PointKey(temperature, position)
	if i, ok := m.index[key]; ok {
		m.points[i].Force = force
		return
	}
	m.index[key] = len(m.points)
	m.points = append(m.points, Measurement{Temperature: temperature, Position: position, Force: force})
}

// At returns the reading at a point, if present.
func (m *TestMeasurements) At(temperature, position float64) (ForceValue, bool) {
	if m == nil {
		return 0, false
	}
	i, ok := m.index[PointKey(temperature, position)]
	if !ok {
		return 0, false
	}
	return m.points[i].Force, true
}

// Count reports the number of recorded points.
func (m *TestMeasurements) Count() int {
	if m == nil {
		return 0
	}
	return len(m.points)
}

// Points returns the readings in recording order.
func (m *TestMeasurements) Points() []Measurement {
	if m == nil {
		return nil
	}
	out := make([]Measurement, len(m.points))
	copy(out, m.points)
	return out
}

// Flatten returns the key → measurement form the evaluator consumes.
func (m *TestMeasurements) Flatten() map[string]Measurement {
	if m == nil {
		return nil
	}
	flat := make(map[string]Measurement, len(m.points))
	for _, p := range m.points {
		flat[PointKey(p.Temperature, p.Position)] = p
	}
	return flat
}
