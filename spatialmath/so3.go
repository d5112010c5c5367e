package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Skew returns the 3x3 cross-product matrix of v, so that Skew(v)*w == v x w.
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// RotationMatrix returns the 3x3 rotation matrix of the unit quaternion q.
func RotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// RightJacobian returns the right Jacobian of SO(3) at phi, which maps a small change of the
// rotation vector to the corresponding change of the rotation expressed in the body frame.
func RightJacobian(phi r3.Vector) *mat.Dense {
	theta := phi.Norm()
	jr := eye3()
	k := Skew(phi)
	if theta < 1e-5 {
		k.Scale(-0.5, k)
		jr.Add(jr, k)
		return jr
	}
	var k2 mat.Dense
	k2.Mul(k, k)
	a := (1 - math.Cos(theta)) / (theta * theta)
	b := (theta - math.Sin(theta)) / (theta * theta * theta)
	k.Scale(-a, k)
	k2.Scale(b, &k2)
	jr.Add(jr, k)
	jr.Add(jr, &k2)
	return jr
}

// MulVec multiplies the 3x3 matrix m by v.
func MulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
