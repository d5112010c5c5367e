package preintegration

import (
	"github.com/golang/geo/r3"

	"go.viam.com/preintegration/spatialmath"
)

// DefaultGravity is gravity along -z of the world frame.
var DefaultGravity = r3.Vector{Z: -defaultGravitationalAcceleration}

// Predict applies delta to start and returns the state at the end of the window. Biases carry
// over from start.
func Predict(delta *Delta, start *State, gravity r3.Vector) *State {
	dt := delta.Dt
	q := spatialmath.Compose(start.orientation, delta.Q)
	v := start.velocity.
		Add(spatialmath.Rotate(start.orientation, delta.V)).
		Add(gravity.Mul(dt))
	p := start.position.
		Add(start.velocity.Mul(dt)).
		Add(spatialmath.Rotate(start.orientation, delta.P)).
		Add(gravity.Mul(0.5 * dt * dt))
	end := NewStateFull(start.stamp.Add(delta.Duration()), q, p, v, start.gyroBias, start.accelBias)
	return end.withDevice(start.device)
}

// Repropagate predicts from start after correcting delta to new bias estimates, without replaying
// the samples. The returned state carries the new biases.
func Repropagate(delta *Delta, start *State, gravity, gyroBias, accelBias r3.Vector) *State {
	end := Predict(CorrectDelta(delta, gyroBias, accelBias), start, gravity)
	end.gyroBias = gyroBias
	end.accelBias = accelBias
	return end
}
