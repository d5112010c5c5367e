// Package testutils provides helpers shared by the tests of this module.
package testutils

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/preintegration/preintegration"
	"go.viam.com/preintegration/spatialmath"
)

// Trajectory is an analytic motion with closed form derivatives. The body turns at a constant
// rate and translates along a drift plus a per-axis sinusoid:
//
//	q(t) = Orientation0 * Exp(BodyRate t)
//	p(t) = Position0 + Velocity0 t + Amplitude .* sin(Frequency .* t)
type Trajectory struct {
	Start        time.Time
	Orientation0 quat.Number
	Position0    r3.Vector
	Velocity0    r3.Vector
	BodyRate     r3.Vector
	Amplitude    r3.Vector
	Frequency    r3.Vector
	Gravity      r3.Vector
	// Biases added to the generated measurements.
	GyroBias  r3.Vector
	AccelBias r3.Vector
}

// NewTrajectory returns a figure of eight like motion with a slow yaw, starting at start.
func NewTrajectory(start time.Time) *Trajectory {
	return &Trajectory{
		Start:        start,
		Orientation0: spatialmath.IdentityQuaternion(),
		Velocity0:    r3.Vector{X: 0.5, Y: 0, Z: 0.1},
		BodyRate:     r3.Vector{Z: 0.2},
		Amplitude:    r3.Vector{X: 1, Y: 2, Z: 0.3},
		Frequency:    r3.Vector{X: 0.5, Y: 0.25, Z: 1},
		Gravity:      preintegration.DefaultGravity,
	}
}

func (tr *Trajectory) seconds(t time.Time) float64 {
	return t.Sub(tr.Start).Seconds()
}

func mulElem(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}

func applyElem(v r3.Vector, f func(float64) float64) r3.Vector {
	return r3.Vector{X: f(v.X), Y: f(v.Y), Z: f(v.Z)}
}

// Orientation returns the world-from-body rotation at t.
func (tr *Trajectory) Orientation(t time.Time) quat.Number {
	return spatialmath.Compose(tr.Orientation0, spatialmath.Exp(tr.BodyRate.Mul(tr.seconds(t))))
}

// Position returns the position at t.
func (tr *Trajectory) Position(t time.Time) r3.Vector {
	s := tr.seconds(t)
	return tr.Position0.Add(tr.Velocity0.Mul(s)).Add(mulElem(tr.Amplitude, applyElem(tr.Frequency.Mul(s), math.Sin)))
}

// Velocity returns the world velocity at t.
func (tr *Trajectory) Velocity(t time.Time) r3.Vector {
	s := tr.seconds(t)
	return tr.Velocity0.Add(mulElem(mulElem(tr.Amplitude, tr.Frequency), applyElem(tr.Frequency.Mul(s), math.Cos)))
}

// Acceleration returns the world acceleration at t.
func (tr *Trajectory) Acceleration(t time.Time) r3.Vector {
	s := tr.seconds(t)
	f2 := mulElem(tr.Frequency, tr.Frequency)
	return mulElem(mulElem(tr.Amplitude, f2), applyElem(tr.Frequency.Mul(s), math.Sin)).Mul(-1)
}

// Pose returns T_WORLD_IMU at t.
func (tr *Trajectory) Pose(t time.Time) mgl64.Mat4 {
	return spatialmath.TransformFromQuaternion(tr.Orientation(t), tr.Position(t))
}

// State returns the ground truth state at t, carrying the measurement biases.
func (tr *Trajectory) State(t time.Time) *preintegration.State {
	return preintegration.NewStateFull(t, tr.Orientation(t), tr.Position(t), tr.Velocity(t), tr.GyroBias, tr.AccelBias)
}

// Sample returns the ideal IMU reading at t: body rate and specific force in the body frame,
// offset by the biases.
func (tr *Trajectory) Sample(t time.Time) preintegration.Sample {
	specific := tr.Acceleration(t).Sub(tr.Gravity)
	body := spatialmath.Rotate(quat.Conj(tr.Orientation(t)), specific)
	return preintegration.Sample{
		Time:               t,
		AngularVelocity:    tr.BodyRate.Add(tr.GyroBias),
		LinearAcceleration: body.Add(tr.AccelBias),
	}
}

// Samples returns readings every period from the trajectory start over duration, both ends
// included.
func (tr *Trajectory) Samples(period, duration time.Duration) []preintegration.Sample {
	n := int(duration / period)
	out := make([]preintegration.Sample, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, tr.Sample(tr.Start.Add(time.Duration(i)*period)))
	}
	return out
}
