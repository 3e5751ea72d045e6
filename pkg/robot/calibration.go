package robot

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// LimitEntry is the learned safe travel range of one joint, in raw bus
// position units.
type LimitEntry struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Valid reports whether min <= max.
func (e LimitEntry) Valid() bool {
	return e.Min <= e.Max
}

// Contains reports whether pos lies within the range.
func (e LimitEntry) Contains(pos int) bool {
	return pos >= e.Min && pos <= e.Max
}

// Clamp limits pos to [Min, Max].
func (e LimitEntry) Clamp(pos int) int {
	return max(e.Min, min(pos, e.Max))
}

// Normalize maps a raw position onto [-100, 100] across the joint's range,
// so -100 is Min and 100 is Max. An empty range maps to 0.
func (e LimitEntry) Normalize(raw int) float64 {
	span := e.Max - e.Min
	if span == 0 {
		return 0
	}
	return float64(raw-e.Min)*200/float64(span) - 100
}

// Denormalize is the inverse of Normalize, rounded to the nearest step.
// Values beyond ±100 land on the range ends.
func (e LimitEntry) Denormalize(norm float64) int {
	span := float64(e.Max - e.Min)
	return e.Clamp(e.Min + int(math.Round((norm+100)*span/200)))
}

// ZeroTable maps joint ID to its reference zero position.
type ZeroTable map[int]int

// LimitTable is the persisted result of a calibration session and the only
// safety input of teleoperation. It is not modified once loaded.
type LimitTable struct {
	Zero   ZeroTable          `json:"zero" yaml:"zero"`
	Limits map[int]LimitEntry `json:"limits" yaml:"limits"`
}

// NewLimitTable returns an empty table.
func NewLimitTable() *LimitTable {
	return &LimitTable{
		Zero:   make(ZeroTable),
		Limits: make(map[int]LimitEntry),
	}
}

// Limit returns the entry for a joint.
func (t *LimitTable) Limit(id int) (LimitEntry, bool) {
	e, ok := t.Limits[id]
	return e, ok
}

// ZeroOf returns the zero position of a joint.
func (t *LimitTable) ZeroOf(id int) (int, bool) {
	z, ok := t.Zero[id]
	return z, ok
}

// Clamp limits pos to the joint's range. Joints without a valid entry have
// no safe range and yield ErrNoLimit.
func (t *LimitTable) Clamp(id, pos int) (int, error) {
	e, ok := t.Limits[id]
	if !ok || !e.Valid() {
		return 0, fmt.Errorf("%w %d", ErrNoLimit, id)
	}
	return e.Clamp(pos), nil
}

// Validate checks that every joint has a zero and a valid range. Each
// problem is reported separately, all wrapping ErrCalibrationIncomplete.
func (t *LimitTable) Validate(joints Joints) error {
	var errs error
	for _, id := range joints {
		if _, ok := t.Zero[id]; !ok {
			errs = multierr.Append(errs, &JointError{ID: id, Op: "zero", Err: ErrCalibrationIncomplete})
		}
		e, ok := t.Limits[id]
		switch {
		case !ok:
			errs = multierr.Append(errs, &JointError{ID: id, Op: "range", Err: ErrCalibrationIncomplete})
		case !e.Valid():
			errs = multierr.Append(errs, &JointError{ID: id, Op: "range",
				Err: fmt.Errorf("%w: min %d > max %d", ErrCalibrationIncomplete, e.Min, e.Max)})
		}
	}
	return errs
}
