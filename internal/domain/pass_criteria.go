package domain

import (
	"fmt"
	"sort"
)

// SpecPoint is one calibration grid entry: the acceptable force band at a
// (temperature, position) point.
type SpecPoint struct {
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	Position    float64 `json:"position" mapstructure:"position"`
	UpperLimit  float64 `json:"upper_limit" mapstructure:"upper_limit"`
	LowerLimit  float64 `json:"lower_limit" mapstructure:"lower_limit"`
}

// PassCriteria defines the pass envelope for force measurements. When the
// calibration grid is present, limits at arbitrary points are produced by
// piecewise-bilinear interpolation; otherwise the global force band applies.
type PassCriteria struct {
	ForceLimitMin float64 `json:"force_limit_min" mapstructure:"force_limit_min"`
	ForceLimitMax float64 `json:"force_limit_max" mapstructure:"force_limit_max"`

	TemperatureLimitMin float64 `json:"temperature_limit_min" mapstructure:"temperature_limit_min"`
	TemperatureLimitMax float64 `json:"temperature_limit_max" mapstructure:"temperature_limit_max"`

	PositionTolerance float64 `json:"position_tolerance" mapstructure:"position_tolerance"`

	SpecPoints []SpecPoint `json:"spec_points" mapstructure:"spec_points"`
}

// Validate checks limit ordering and grid consistency.
func (pc *PassCriteria) Validate() error {
	if pc.ForceLimitMin >= pc.ForceLimitMax {
		return &Error{Kind: KindConfigurationInvalid, Op: "PassCriteria.Validate",
			Message: fmt.Sprintf("force limit min (%.2f) must be less than max (%.2f)", pc.ForceLimitMin, pc.ForceLimitMax)}
	}
	if pc.ForceLimitMin < 0 {
		return &Error{Kind: KindConfigurationInvalid, Op: "PassCriteria.Validate",
			Message: "force limit min cannot be negative"}
	}
	if pc.TemperatureLimitMin >= pc.TemperatureLimitMax {
		return &Error{Kind: KindConfigurationInvalid, Op: "PassCriteria.Validate",
			Message: fmt.Sprintf("temperature limit min (%.1f) must be less than max (%.1f)", pc.TemperatureLimitMin, pc.TemperatureLimitMax)}
	}
	for _, sp := range pc.SpecPoints {
		if sp.LowerLimit > sp.UpperLimit {
			return &Error{Kind: KindConfigurationInvalid, Op: "PassCriteria.Validate",
				Message: fmt.Sprintf("spec point (%.1f, %.1f): lower limit %.2f exceeds upper limit %.2f",
					sp.Temperature, sp.Position, sp.LowerLimit, sp.UpperLimit)}
		}
	}
	return nil
}

// ForceLimitsAt returns the (lower, upper) force bounds at the given point.
// With no grid it falls back to the global band; with a single point it
// returns that point's band; otherwise it bilinearly interpolates over the
// rectilinear grid. Points outside the grid's hull are an error.
func (pc *PassCriteria) ForceLimitsAt(temperature, position float64) (lower, upper float64, err error) {
	switch len(pc.SpecPoints) {
	case 0:
		return pc.ForceLimitMin, pc.ForceLimitMax, nil
	case 1:
		return pc.SpecPoints[0].LowerLimit, pc.SpecPoints[0].UpperLimit, nil
	}

	grid, temps, positions, err := pc.buildGrid()
	if err != nil {
		return 0, 0, err
	}

	t0, t1, ok := bracket(temps, temperature)
	if !ok {
		return 0, 0, &Error{Kind: KindMeasurementValidation, Op: "ForceLimitsAt",
			Message: fmt.Sprintf("temperature %.1f outside calibration grid [%.1f, %.1f]", temperature, temps[0], temps[len(temps)-1])}
	}
	p0, p1, ok := bracket(positions, position)
	if !ok {
		return 0, 0, &Error{Kind: KindMeasurementValidation, Op: "ForceLimitsAt",
			Message: fmt.Sprintf("position %.1f outside calibration grid [%.1f, %.1f]", position, positions[0], positions[len(positions)-1])}
	}

	corner := func(t, p float64) (SpecPoint, error) {
		sp, ok := grid[gridKey{t, p}]
		if !ok {
			return SpecPoint{}, &Error{Kind: KindMeasurementValidation, Op: "ForceLimitsAt",
				Message: fmt.Sprintf("calibration grid has no point at (%.1f, %.1f)", t, p)}
		}
		return sp, nil
	}

	c00, err := corner(t0, p0)
	if err != nil {
		return 0, 0, err
	}
	c01, err := corner(t0, p1)
	if err != nil {
		return 0, 0, err
	}
	c10, err := corner(t1, p0)
	if err != nil {
		return 0, 0, err
	}
	c11, err := corner(t1, p1)
	if err != nil {
		return 0, 0, err
	}

	ft := frac(t0, t1, temperature)
	fp := frac(p0, p1, position)

	lower = bilinear(c00.LowerLimit, c01.LowerLimit, c10.LowerLimit, c11.LowerLimit, ft, fp)
	upper = bilinear(c00.UpperLimit, c01.UpperLimit, c10.UpperLimit, c11.UpperLimit, ft, fp)
	return lower, upper, nil
}

// IsForceWithinLimits evaluates a single force reading at a point.
func (pc *PassCriteria) IsForceWithinLimits(temperature, position, force float64) (bool, error) {
	lower, upper, err := pc.ForceLimitsAt(temperature, position)
	if err != nil {
		return false, err
	}
	return lower <= force && force <= upper, nil
}

// IsTemperatureWithinLimits checks a temperature reading against the global band.
func (pc *PassCriteria) IsTemperatureWithinLimits(temperature float64) bool {
	return pc.TemperatureLimitMin <= temperature && temperature <= pc.TemperatureLimitMax
}

// IsPositionWithinTolerance checks an achieved position against the target.
func (pc *PassCriteria) IsPositionWithinTolerance(expected, actual float64) bool {
	diff := expected - actual
	if diff < 0 {
		diff = -diff
	}
	return diff <= pc.PositionTolerance
}

type gridKey struct{ t, p float64 }

func (pc *PassCriteria) buildGrid() (map[gridKey]SpecPoint, []float64, []float64, error) {
	grid := make(map[gridKey]SpecPoint, len(pc.SpecPoints))
	tset := map[float64]struct{}{}
	pset := map[float64]struct{}{}
	for _, sp := range pc.SpecPoints {
		grid[gridKey{sp.Temperature, sp.Position}] = sp
		tset[sp.Temperature] = struct{}{}
		pset[sp.Position] = struct{}{}
	}
	temps := sortedKeys(tset)
	positions := sortedKeys(pset)
	if len(temps) == 0 || len(positions) == 0 {
		return nil, nil, nil, &Error{Kind: KindConfigurationInvalid, Op: "PassCriteria",
			Message: "calibration grid is empty"}
	}
	return grid, temps, positions, nil
}

func sortedKeys(set map[float64]struct{}) []float64 {
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// bracket finds the grid values enclosing v. Exact matches and single-value
// axes bracket to themselves.
func bracket(values []float64, v float64) (lo, hi float64, ok bool) {
	if v < values[0] || v > values[len(values)-1] {
		return 0, 0, false
	}
	i := sort.SearchFloat64s(values, v)
	if i < len(values) && values[i] == v {
		return v, v, true
	}
	return values[i-1], values[i], true
}

func frac(lo, hi, v float64) float64 {
	if hi == lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}

// bilinear interpolates between the four corner values: v00 at (t0,p0),
// v01 at (t0,p1), v10 at (t1,p0), v11 at (t1,p1).
func bilinear(v00, v01, v10, v11, ft, fp float64) float64 {
	low := v00 + (v01-v00)*fp
	high := v10 + (v11-v10)*fp
	return low + (high-low)*ft
}
