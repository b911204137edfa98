// Package progress models the bounded, monotone progress value carried by
// every operation, including the ordered sub-progress of composite
// operations (Sequence, Parallel).
package progress

import "math"

// Unit identifies how Value/Min/Max of a Progress should be interpreted.
type Unit int

const (
	Scalar Unit = iota
	Percent
	Bytes
	Seconds
)

func (u Unit) String() string {
	switch u {
	case Percent:
		return "percent"
	case Bytes:
		return "bytes"
	case Seconds:
		return "seconds"
	default:
		return "scalar"
	}
}

// part is one entry of an ordered label->Progress map.
type part struct {
	label string
	p     *Progress
}

// Progress is the mutable progress state of an operation.
//
// Counter is bumped on every mutation and must never be observed to
// decrease; two snapshots with different contents always carry different
// counters. IsDone is a pure function of Value/Max, so transitioning to
// done is idempotent by construction.
type Progress struct {
	counter uint64
	unit    Unit
	min     float64
	max     float64
	value   float64
	speed   *float64
	label   string

	parts    []part
	partIdx  map[string]int
}

// New creates a Progress bounded by [min, max], starting at min.
func New(min, max float64, unit Unit) *Progress {
	return &Progress{
		unit: unit,
		min:  min,
		max:  max,
		value: min,
	}
}

// Rebound resets p's bounds and unit, snapping value back to min. Used by
// composite Impls (Sequence, Parallel) whose child count is only known once
// Init runs, matching the source's Progress::new(0, n, Scalar) at that point.
func (p *Progress) Rebound(min, max float64, unit Unit) {
	p.unit = unit
	p.min = min
	p.max = max
	p.value = min
	p.counter++
}

// Counter returns the current monotone revision counter.
func (p *Progress) Counter() uint64 { return p.counter }

func (p *Progress) Unit() Unit    { return p.unit }
func (p *Progress) Min() float64  { return p.min }
func (p *Progress) Max() float64  { return p.max }
func (p *Progress) Value() float64 { return p.value }
func (p *Progress) Label() string  { return p.label }

// Speed returns the last reported rate, if any was set via an Update.
func (p *Progress) Speed() (float64, bool) {
	if p.speed == nil {
		return 0, false
	}
	return *p.speed, true
}

// IsDone reports whether value has reached or exceeded max.
func (p *Progress) IsDone() bool {
	return p.value >= p.max
}

// Update is the delta applied to a Progress by the operation driver loop.
//
// A non-finite Value is the sentinel for "terminal update": the driver is
// signalling completion without a concrete numeric value, and Apply will
// snap the progress straight to Max.
type Update struct {
	Value    float64
	Speed    *float64
	Label    string
	HasLabel bool
}

// Apply folds an Update into p, bumping the counter. Once p.IsDone(), further
// updates are accepted as no-ops (the transition to done is idempotent) so
// that a racing final update from a driver that already reported completion
// cannot un-finish a Progress.
func (p *Progress) Apply(u Update) {
	if p.IsDone() {
		return
	}

	if math.IsNaN(u.Value) || math.IsInf(u.Value, 0) {
		p.value = p.max
	} else {
		p.value = u.Value
		if p.value > p.max {
			p.value = p.max
		}
	}
	if u.Speed != nil {
		v := *u.Speed
		p.speed = &v
	}
	if u.HasLabel {
		p.label = u.Label
	}
	p.counter++
}

// Finish snaps the progress straight to its maximum, marking it done.
func (p *Progress) Finish() {
	p.Apply(Update{Value: math.Inf(1)})
}

// Part returns the named child Progress, creating it (as a fresh Scalar
// Progress over [0,0]) on first access so callers may mutate in place.
//
// Parts preserve insertion order for deterministic rendering; see
// SPEC_FULL.md F.3 on op-engine/src/progress.rs.
func (p *Progress) Part(label string) *Progress {
	if p.partIdx == nil {
		p.partIdx = make(map[string]int)
	}
	if i, ok := p.partIdx[label]; ok {
		return p.parts[i].p
	}
	child := New(0, 0, Scalar)
	p.partIdx[label] = len(p.parts)
	p.parts = append(p.parts, part{label: label, p: child})
	p.counter++
	return child
}

// Parts returns the child progress values in insertion order.
func (p *Progress) Parts() []struct {
	Label string
	P     *Progress
} {
	out := make([]struct {
		Label string
		P     *Progress
	}, len(p.parts))
	for i, pp := range p.parts {
		out[i].Label = pp.label
		out[i].P = pp.p
	}
	return out
}
