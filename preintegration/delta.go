package preintegration

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/preintegration/factorgraph"
	"go.viam.com/preintegration/spatialmath"
)

// Offsets of the error-state blocks in Delta.Cov.
const (
	idxTheta = 0
	idxPos   = 3
	idxVel   = 6
	idxBg    = 9
	idxBa    = 12
)

// BiasJacobians are the first-order sensitivities of a Delta to its linearization biases.
type BiasJacobians struct {
	QBg *mat.Dense
	PBg *mat.Dense
	PBa *mat.Dense
	VBg *mat.Dense
	VBa *mat.Dense
}

func zeroBiasJacobians() BiasJacobians {
	return BiasJacobians{
		QBg: mat.NewDense(3, 3, nil),
		PBg: mat.NewDense(3, 3, nil),
		PBa: mat.NewDense(3, 3, nil),
		VBg: mat.NewDense(3, 3, nil),
		VBa: mat.NewDense(3, 3, nil),
	}
}

func (j BiasJacobians) clone() BiasJacobians {
	return BiasJacobians{
		QBg: mat.DenseCopyOf(j.QBg),
		PBg: mat.DenseCopyOf(j.PBg),
		PBa: mat.DenseCopyOf(j.PBa),
		VBg: mat.DenseCopyOf(j.VBg),
		VBa: mat.DenseCopyOf(j.VBa),
	}
}

// Delta summarizes the motion between the start of a window and its end, expressed in the body
// frame at the start, with gravity left out.
type Delta struct {
	Start time.Time
	// Dt is the integrated duration in seconds.
	Dt   float64
	Q    quat.Number
	P, V r3.Vector
	// Cov is the 15x15 covariance ordered rotation, position, velocity, gyro bias, accel bias.
	Cov       *mat.SymDense
	Jacobians BiasJacobians
	// Biases the samples were corrected with.
	GyroBias, AccelBias r3.Vector
}

// NewDelta returns the identity delta starting at start.
func NewDelta(start time.Time, gyroBias, accelBias r3.Vector) *Delta {
	return &Delta{
		Start:     start,
		Q:         spatialmath.IdentityQuaternion(),
		Cov:       mat.NewSymDense(factorgraph.ImuStateTangentDim, nil),
		Jacobians: zeroBiasJacobians(),
		GyroBias:  gyroBias,
		AccelBias: accelBias,
	}
}

// Duration returns Dt as a time.Duration rounded to the nanosecond.
func (d *Delta) Duration() time.Duration {
	return time.Duration(math.Round(d.Dt * float64(time.Second)))
}

// End returns the time at the end of the window.
func (d *Delta) End() time.Time {
	return d.Start.Add(d.Duration())
}

// Clone returns a deep copy of d.
func (d *Delta) Clone() *Delta {
	out := *d
	out.Cov = mat.NewSymDense(factorgraph.ImuStateTangentDim, nil)
	out.Cov.CopySym(d.Cov)
	out.Jacobians = d.Jacobians.clone()
	return &out
}

// Mean16 returns rotation, position and velocity of the delta followed by zero bias changes, the
// layout of a relative IMU constraint.
func (d *Delta) Mean16() [factorgraph.ImuStateDim]float64 {
	return [factorgraph.ImuStateDim]float64{
		d.Q.Real, d.Q.Imag, d.Q.Jmag, d.Q.Kmag,
		d.P.X, d.P.Y, d.P.Z,
		d.V.X, d.V.Y, d.V.Z,
	}
}

func (d *Delta) finite() bool {
	if !spatialmath.IsFinite(d.Q) || !spatialmath.VectorIsFinite(d.P) || !spatialmath.VectorIsFinite(d.V) {
		return false
	}
	n := d.Cov.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := d.Cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// CorrectDelta applies the first-order bias correction to d for new bias estimates. When the
// biases match the linearization point the result is an exact copy of d.
func CorrectDelta(d *Delta, gyroBias, accelBias r3.Vector) *Delta {
	out := d.Clone()
	dbg := gyroBias.Sub(d.GyroBias)
	dba := accelBias.Sub(d.AccelBias)
	if dbg == (r3.Vector{}) && dba == (r3.Vector{}) {
		return out
	}
	j := d.Jacobians
	out.Q = spatialmath.Compose(d.Q, spatialmath.Exp(spatialmath.MulVec(j.QBg, dbg)))
	out.V = d.V.Add(spatialmath.MulVec(j.VBg, dbg)).Add(spatialmath.MulVec(j.VBa, dba))
	out.P = d.P.Add(spatialmath.MulVec(j.PBg, dbg)).Add(spatialmath.MulVec(j.PBa, dba))
	out.GyroBias = gyroBias
	out.AccelBias = accelBias
	return out
}
