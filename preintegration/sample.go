package preintegration

import (
	"sort"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/preintegration/spatialmath"
)

// Sample is one IMU reading. AngularVelocity is in rad/s and LinearAcceleration is the specific
// force in m/s^2, both in the IMU body frame.
type Sample struct {
	Time               time.Time
	AngularVelocity    r3.Vector
	LinearAcceleration r3.Vector
}

// Finite reports whether all six measurement components are finite.
func (s Sample) Finite() bool {
	return spatialmath.VectorIsFinite(s.AngularVelocity) && spatialmath.VectorIsFinite(s.LinearAcceleration)
}

// interpolateSample returns the linear interpolation of a and b at t, which must lie between them.
func interpolateSample(a, b Sample, t time.Time) Sample {
	span := b.Time.Sub(a.Time)
	if span <= 0 {
		return Sample{Time: t, AngularVelocity: b.AngularVelocity, LinearAcceleration: b.LinearAcceleration}
	}
	by := float64(t.Sub(a.Time)) / float64(span)
	lerp := func(x, y r3.Vector) r3.Vector { return x.Add(y.Sub(x).Mul(by)) }
	return Sample{
		Time:               t,
		AngularVelocity:    lerp(a.AngularVelocity, b.AngularVelocity),
		LinearAcceleration: lerp(a.LinearAcceleration, b.LinearAcceleration),
	}
}

// sampleBuffer is a time ordered run of samples. Callers enforce ordering before append.
type sampleBuffer struct {
	samples []Sample
}

func (b *sampleBuffer) len() int { return len(b.samples) }

func (b *sampleBuffer) newest() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

func (b *sampleBuffer) oldest() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[0], true
}

func (b *sampleBuffer) append(s Sample) {
	b.samples = append(b.samples, s)
}

// firstAtOrAfter is the index of the first sample with Time >= t.
func (b *sampleBuffer) firstAtOrAfter(t time.Time) int {
	return sort.Search(len(b.samples), func(i int) bool { return !b.samples[i].Time.Before(t) })
}

// firstAfter is the index of the first sample with Time > t.
func (b *sampleBuffer) firstAfter(t time.Time) int {
	return sort.Search(len(b.samples), func(i int) bool { return b.samples[i].Time.After(t) })
}

// window returns the samples with start <= Time <= end.
func (b *sampleBuffer) window(start, end time.Time) []Sample {
	lo, hi := b.firstAtOrAfter(start), b.firstAfter(end)
	if lo >= hi {
		return nil
	}
	out := make([]Sample, hi-lo)
	copy(out, b.samples[lo:hi])
	return out
}

// span returns the samples needed to integrate [start, end]. Samples on either side of the window
// are interpolated onto its boundaries when available.
func (b *sampleBuffer) span(start, end time.Time) []Sample {
	lo, hi := b.firstAtOrAfter(start), b.firstAfter(end)
	out := make([]Sample, 0, hi-lo+2)
	if lo > 0 && lo < len(b.samples) && b.samples[lo].Time.After(start) {
		out = append(out, interpolateSample(b.samples[lo-1], b.samples[lo], start))
	}
	out = append(out, b.samples[lo:max(lo, hi)]...)
	if hi > 0 && hi < len(b.samples) && b.samples[hi-1].Time.Before(end) {
		out = append(out, interpolateSample(b.samples[hi-1], b.samples[hi], end))
	}
	return out
}

// pruneBefore drops every sample older than t except the newest of them, which is kept so the
// window starting at t can be interpolated.
func (b *sampleBuffer) pruneBefore(t time.Time) {
	idx := b.firstAtOrAfter(t) - 1
	if idx <= 0 {
		return
	}
	b.samples = append(b.samples[:0], b.samples[idx:]...)
}
