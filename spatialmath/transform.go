package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// TransformFromQuaternion builds the homogeneous transform with rotation q and translation p.
func TransformFromQuaternion(q quat.Number, p r3.Vector) mgl64.Mat4 {
	rot := mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}.Normalize().Mat4()
	rot.SetCol(3, mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return rot
}

// TransformToQuaternion splits a homogeneous transform into its rotation and translation.
func TransformToQuaternion(t mgl64.Mat4) (quat.Number, r3.Vector) {
	q := mgl64.Mat4ToQuat(t).Normalize()
	col := t.Col(3)
	return quat.Number{Real: q.W, Imag: q.V[0], Jmag: q.V[1], Kmag: q.V[2]}, r3.Vector{X: col[0], Y: col[1], Z: col[2]}
}

// InvertTransform returns the inverse of a rigid homogeneous transform.
func InvertTransform(t mgl64.Mat4) mgl64.Mat4 {
	q, p := TransformToQuaternion(t)
	qi := quat.Conj(q)
	return TransformFromQuaternion(qi, Rotate(qi, p).Mul(-1))
}

// TransformAlmostEqual compares rotation and translation of two transforms separately.
func TransformAlmostEqual(a, b mgl64.Mat4, rotTol, transTol float64) bool {
	qa, pa := TransformToQuaternion(a)
	qb, pb := TransformToQuaternion(b)
	return QuaternionAlmostEqual(qa, qb, rotTol) &&
		withinTol(pa.X, pb.X, transTol) && withinTol(pa.Y, pb.Y, transTol) && withinTol(pa.Z, pb.Z, transTol)
}
