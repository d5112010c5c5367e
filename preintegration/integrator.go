package preintegration

import (
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/preintegration/factorgraph"
	"go.viam.com/preintegration/spatialmath"
)

// noiseDim is the size of the stacked noise vector: gyro, accel, gyro bias walk, accel bias walk.
const noiseDim = 12

// An Integrator accumulates samples of one window into a Delta. Rates between two samples are
// their midpoint; before the first sample its rates are held from the window start.
type Integrator struct {
	noise   NoiseParams
	delta   *Delta
	t       time.Time
	last    Sample
	hasLast bool
}

// NewIntegrator returns an integrator for a window starting at start. Samples are corrected with
// the given biases.
func NewIntegrator(start time.Time, gyroBias, accelBias r3.Vector, noise NoiseParams) *Integrator {
	return &Integrator{
		noise: noise,
		delta: NewDelta(start, gyroBias, accelBias),
		t:     start,
	}
}

// Time returns the end of the integrated interval.
func (in *Integrator) Time() time.Time { return in.t }

// Integrate consumes the next sample of the window.
func (in *Integrator) Integrate(s Sample) error {
	if !s.Finite() {
		return newNumericalError("non-finite imu sample at %s", s.Time.Format(time.RFC3339Nano))
	}
	if s.Time.Before(in.t) {
		return newOrderingError("imu sample", s.Time, in.t)
	}
	gyro, accel := s.AngularVelocity, s.LinearAcceleration
	if in.hasLast {
		gyro = gyro.Add(in.last.AngularVelocity).Mul(0.5)
		accel = accel.Add(in.last.LinearAcceleration).Mul(0.5)
	}
	if err := in.step(gyro, accel, s.Time.Sub(in.t).Seconds()); err != nil {
		return err
	}
	in.last, in.hasLast, in.t = s, true, s.Time
	return nil
}

// IntegrateTo extends the window to t holding the rates of the last sample. Without any sample
// only the bias random walk contributes.
func (in *Integrator) IntegrateTo(t time.Time) error {
	if t.Before(in.t) {
		return newOrderingError("integration end", t, in.t)
	}
	dt := t.Sub(in.t).Seconds()
	if in.hasLast {
		if err := in.step(in.last.AngularVelocity, in.last.LinearAcceleration, dt); err != nil {
			return err
		}
	} else {
		in.randomWalk(dt)
	}
	in.t = t
	return nil
}

// Delta returns a snapshot of the accumulated delta.
func (in *Integrator) Delta() *Delta {
	return in.delta.Clone()
}

func (in *Integrator) randomWalk(dt float64) {
	if dt <= 0 {
		return
	}
	d := in.delta
	gw := in.noise.GyroBiasWalk * in.noise.GyroBiasWalk * dt
	aw := in.noise.AccelBiasWalk * in.noise.AccelBiasWalk * dt
	for i := 0; i < 3; i++ {
		d.Cov.SetSym(idxBg+i, idxBg+i, d.Cov.At(idxBg+i, idxBg+i)+gw)
		d.Cov.SetSym(idxBa+i, idxBa+i, d.Cov.At(idxBa+i, idxBa+i)+aw)
	}
	d.Dt += dt
}

// step advances the delta by dt with constant raw rates gyro and accel.
func (in *Integrator) step(gyro, accel r3.Vector, dt float64) error {
	if dt <= 0 {
		return nil
	}
	d := in.delta
	w := gyro.Sub(d.GyroBias)
	a := accel.Sub(d.AccelBias)

	rot := spatialmath.RotationMatrix(d.Q)
	var rotSkewA mat.Dense
	rotSkewA.Mul(rot, spatialmath.Skew(a))
	phi := w.Mul(dt)
	dq := spatialmath.Exp(phi)
	dRotT := spatialmath.RotationMatrix(quat.Conj(dq))
	jr := spatialmath.RightJacobian(phi)

	in.propagateJacobians(rot, &rotSkewA, dRotT, jr, dt)
	in.propagateCovariance(rot, &rotSkewA, dRotT, jr, dt)

	// position uses the orientation at the start of the step
	ra := spatialmath.MulVec(rot, a)
	d.P = d.P.Add(d.V.Mul(dt)).Add(ra.Mul(0.5 * dt * dt))
	d.V = d.V.Add(ra.Mul(dt))
	d.Q = spatialmath.Compose(d.Q, dq)
	d.Dt += dt

	if !d.finite() {
		return newNumericalError("integration diverged at %s", in.t.Add(time.Duration(dt*float64(time.Second))).Format(time.RFC3339Nano))
	}
	return nil
}

func (in *Integrator) propagateJacobians(rot, rotSkewA, dRotT, jr *mat.Dense, dt float64) {
	j := in.delta.Jacobians
	dt2 := dt * dt

	var rotSkewAQ mat.Dense
	rotSkewAQ.Mul(rotSkewA, j.QBg)

	addScaled(j.PBg, dt, j.VBg)
	addScaled(j.PBg, -0.5*dt2, &rotSkewAQ)
	addScaled(j.PBa, dt, j.VBa)
	addScaled(j.PBa, -0.5*dt2, rot)

	addScaled(j.VBg, -dt, &rotSkewAQ)
	addScaled(j.VBa, -dt, rot)

	var q mat.Dense
	q.Mul(dRotT, j.QBg)
	addScaled(&q, -dt, jr)
	j.QBg.Copy(&q)
}

func (in *Integrator) propagateCovariance(rot, rotSkewA, dRotT, jr *mat.Dense, dt float64) {
	const n = factorgraph.ImuStateTangentDim
	dt2 := dt * dt
	eye := mat.NewDiagDense(3, []float64{1, 1, 1})

	f := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		f.Set(i, i, 1)
	}
	setBlock(f, idxTheta, idxTheta, 1, dRotT)
	setBlock(f, idxTheta, idxBg, -dt, jr)
	setBlock(f, idxPos, idxTheta, -0.5*dt2, rotSkewA)
	setBlock(f, idxPos, idxVel, dt, eye)
	setBlock(f, idxPos, idxBa, -0.5*dt2, rot)
	setBlock(f, idxVel, idxTheta, -dt, rotSkewA)
	setBlock(f, idxVel, idxBa, -dt, rot)

	g := mat.NewDense(n, noiseDim, nil)
	setBlock(g, idxTheta, 0, dt, jr)
	setBlock(g, idxPos, 3, 0.5*dt2, rot)
	setBlock(g, idxVel, 3, dt, rot)
	setBlock(g, idxBg, 6, 1, eye)
	setBlock(g, idxBa, 9, 1, eye)

	ng := in.noise.GyroNoise * in.noise.GyroNoise / dt
	na := in.noise.AccelNoise * in.noise.AccelNoise / dt
	nbg := in.noise.GyroBiasWalk * in.noise.GyroBiasWalk * dt
	nba := in.noise.AccelBiasWalk * in.noise.AccelBiasWalk * dt
	qd := mat.NewDiagDense(noiseDim, []float64{ng, ng, ng, na, na, na, nbg, nbg, nbg, nba, nba, nba})

	var fs, next, gq, process mat.Dense
	fs.Mul(f, in.delta.Cov)
	next.Mul(&fs, f.T())
	gq.Mul(g, qd)
	process.Mul(&gq, g.T())
	next.Add(&next, &process)

	for i := 0; i < n; i++ {
		for k := i; k < n; k++ {
			in.delta.Cov.SetSym(i, k, 0.5*(next.At(i, k)+next.At(k, i)))
		}
	}
}

// addScaled sets dst to dst + alpha*m.
func addScaled(dst *mat.Dense, alpha float64, m mat.Matrix) {
	var scaled mat.Dense
	scaled.Scale(alpha, m)
	dst.Add(dst, &scaled)
}

// setBlock writes alpha*m into dst with its top left corner at (row, col).
func setBlock(dst *mat.Dense, row, col int, alpha float64, m mat.Matrix) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for k := 0; k < c; k++ {
			dst.Set(row+i, col+k, alpha*m.At(i, k))
		}
	}
}
