// Package spatialmath defines the SO(3) and rigid-transform operations used by the inertial
// preintegration engine. Orientations are unit quaternions in (w, x, y, z) order.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Below this rotation angle Exp and Log switch to their Taylor expansions.
const smallAngle = 1e-10

// IdentityQuaternion returns the quaternion that signifies no rotation.
func IdentityQuaternion() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize returns q scaled to unit norm. The zero quaternion has no direction, so false is
// returned alongside the identity in that case.
func Normalize(q quat.Number) (quat.Number, bool) {
	norm := quat.Abs(q)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return IdentityQuaternion(), false
	}
	return quat.Scale(1/norm, q), true
}

// Exp maps a rotation vector (axis times angle, radians) to a unit quaternion.
func Exp(phi r3.Vector) quat.Number {
	theta := phi.Norm()
	if theta < smallAngle {
		q, _ := Normalize(quat.Number{Real: 1, Imag: phi.X / 2, Jmag: phi.Y / 2, Kmag: phi.Z / 2})
		return q
	}
	s := math.Sin(theta/2) / theta
	return quat.Number{Real: math.Cos(theta / 2), Imag: phi.X * s, Jmag: phi.Y * s, Kmag: phi.Z * s}
}

// Log maps a unit quaternion to its rotation vector, choosing the shortest rotation.
func Log(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	n := v.Norm()
	if n < smallAngle {
		return v.Mul(2)
	}
	theta := 2 * math.Atan2(n, q.Real)
	return v.Mul(theta / n)
}

// Rotate applies the rotation q to v (q * v * q^-1).
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// Compose returns the normalized product a*b.
func Compose(a, b quat.Number) quat.Number {
	q, _ := Normalize(quat.Mul(a, b))
	return q
}

// Between returns the rotation taking a to b, expressed in a's frame (a^-1 * b).
func Between(a, b quat.Number) quat.Number {
	return Compose(quat.Conj(a), b)
}

// Slerp interpolates between two unit quaternions, with by=0 returning a and by=1 returning b.
func Slerp(a, b quat.Number, by float64) quat.Number {
	delta := Log(Between(a, b))
	return Compose(a, Exp(delta.Mul(by)))
}

// QuaternionAlmostEqual is an equality test for all the float components of a quaternion. Quaternions have double coverage,
// so q and -q describe the same orientation and are considered equal.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	same := withinTol(a.Real, b.Real, tol) && withinTol(a.Imag, b.Imag, tol) &&
		withinTol(a.Jmag, b.Jmag, tol) && withinTol(a.Kmag, b.Kmag, tol)
	if same {
		return true
	}
	return withinTol(a.Real, -b.Real, tol) && withinTol(a.Imag, -b.Imag, tol) &&
		withinTol(a.Jmag, -b.Jmag, tol) && withinTol(a.Kmag, -b.Kmag, tol)
}

// IsFinite reports whether every component of q is a finite number.
func IsFinite(q quat.Number) bool {
	return finite(q.Real) && finite(q.Imag) && finite(q.Jmag) && finite(q.Kmag)
}

// VectorIsFinite reports whether every component of v is a finite number.
func VectorIsFinite(v r3.Vector) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func withinTol(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
