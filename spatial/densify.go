package spatial

import (
	"time"
)

const (
	DefaultSamplesPerSegment = 10
	DefaultBaseDelay         = 500 * time.Millisecond

	sharpTurn  = 90.0 // degrees - half speed above this
	mediumTurn = 45.0 // degrees - three-quarter speed above this
)

// MotionSample is one simulated position along a route
type MotionSample struct {
	Position Point
	Bearing  float64       // degrees [0, 360)
	Delay    time.Duration // until the next sample
}

// Densifier expands a sparse route into timed motion samples
type Densifier struct {
	SamplesPerSegment int
	BaseDelay         time.Duration
}

// NewDensifier returns a densifier, falling back to defaults for zero values
func NewDensifier(samplesPerSegment int, baseDelay time.Duration) Densifier {
	if samplesPerSegment <= 0 {
		samplesPerSegment = DefaultSamplesPerSegment
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return Densifier{
		SamplesPerSegment: samplesPerSegment,
		BaseDelay:         baseDelay,
	}
}

// Densify walks each segment A->B of the path and emits SamplesPerSegment
// evenly spaced positions (excluding A, including B). The delay of every
// sample in a segment is slowed by the sharpness of the turn at B.
func (d Densifier) Densify(path []Point) []MotionSample {
	if len(path) < 2 {
		return nil
	}
	d = NewDensifier(d.SamplesPerSegment, d.BaseDelay)

	samples := make([]MotionSample, 0, (len(path)-1)*d.SamplesPerSegment)

	for i := 0; i < len(path)-1; i++ {
		a, b := path[i], path[i+1]
		bearing := Bearing(a, b)

		nextBearing := bearing
		if i+2 < len(path) {
			nextBearing = Bearing(b, path[i+2])
		}

		delay := d.turnDelay(TurnAngle(bearing, nextBearing))

		for k := 1; k <= d.SamplesPerSegment; k++ {
			t := float64(k) / float64(d.SamplesPerSegment)
			samples = append(samples, MotionSample{
				Position: Interpolate(a, b, t),
				Bearing:  bearing,
				Delay:    delay,
			})
		}
	}

	return samples
}

// turnDelay slows down ahead of sharp turns
func (d Densifier) turnDelay(turn float64) time.Duration {
	switch {
	case turn > sharpTurn:
		return d.BaseDelay * 2
	case turn > mediumTurn:
		return d.BaseDelay * 4 / 3
	default:
		return d.BaseDelay
	}
}

// Plan is a single pass over a motion sample sequence.
// It only moves forward; replaying a route needs a fresh Densify.
type Plan struct {
	samples []MotionSample
	next    int
}

// NewPlan wraps a sample sequence
func NewPlan(samples []MotionSample) *Plan {
	return &Plan{samples: samples}
}

// Next returns the next sample, or false once the plan is exhausted
func (p *Plan) Next() (MotionSample, bool) {
	if p == nil || p.next >= len(p.samples) {
		return MotionSample{}, false
	}
	s := p.samples[p.next]
	p.next++
	return s, true
}

// Remaining is the number of samples not yet consumed
func (p *Plan) Remaining() int {
	if p == nil {
		return 0
	}
	return len(p.samples) - p.next
}

// Len is the total number of samples in the plan
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.samples)
}
