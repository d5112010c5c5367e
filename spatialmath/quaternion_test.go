package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// a 45 degree rotation around the x axis
var (
	th   = math.Pi / 4.
	q45x = quat.Number{Real: math.Cos(th / 2.), Imag: math.Sin(th / 2.)}
)

func TestExpLog(t *testing.T) {
	q := Exp(r3.Vector{X: th})
	test.That(t, QuaternionAlmostEqual(q, q45x, 1e-12), test.ShouldBeTrue)

	phi := r3.Vector{X: 0.3, Y: -1.2, Z: 0.7}
	back := Log(Exp(phi))
	test.That(t, back.X, test.ShouldAlmostEqual, phi.X, 1e-12)
	test.That(t, back.Y, test.ShouldAlmostEqual, phi.Y, 1e-12)
	test.That(t, back.Z, test.ShouldAlmostEqual, phi.Z, 1e-12)

	test.That(t, Exp(r3.Vector{}), test.ShouldResemble, IdentityQuaternion())
	test.That(t, Log(IdentityQuaternion()), test.ShouldResemble, r3.Vector{})

	// -q is the same rotation, Log must still pick the short way round
	neg := Log(quat.Scale(-1, q45x))
	test.That(t, neg.X, test.ShouldAlmostEqual, th, 1e-12)
}

func TestNormalize(t *testing.T) {
	q, ok := Normalize(quat.Number{Real: 2})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, q, test.ShouldResemble, IdentityQuaternion())

	_, ok = Normalize(quat.Number{})
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = Normalize(quat.Number{Real: math.NaN()})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestRotate(t *testing.T) {
	q := Exp(r3.Vector{Z: math.Pi / 2})
	v := Rotate(q, r3.Vector{X: 1})
	test.That(t, v.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, v.Z, test.ShouldAlmostEqual, 0, 1e-12)

	m := MulVec(RotationMatrix(q), r3.Vector{X: 1})
	test.That(t, m.X, test.ShouldAlmostEqual, v.X, 1e-12)
	test.That(t, m.Y, test.ShouldAlmostEqual, v.Y, 1e-12)
}

func TestSlerp(t *testing.T) {
	a := IdentityQuaternion()
	b := Exp(r3.Vector{Y: 1})
	test.That(t, QuaternionAlmostEqual(Slerp(a, b, 0), a, 1e-12), test.ShouldBeTrue)
	test.That(t, QuaternionAlmostEqual(Slerp(a, b, 1), b, 1e-12), test.ShouldBeTrue)
	test.That(t, QuaternionAlmostEqual(Slerp(a, b, 0.5), Exp(r3.Vector{Y: 0.5}), 1e-12), test.ShouldBeTrue)
}

func TestSkew(t *testing.T) {
	a := r3.Vector{X: 1, Y: 2, Z: 3}
	b := r3.Vector{X: -4, Y: 0.5, Z: 2}
	got := MulVec(Skew(a), b)
	want := a.Cross(b)
	test.That(t, got.X, test.ShouldAlmostEqual, want.X)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y)
	test.That(t, got.Z, test.ShouldAlmostEqual, want.Z)
}

func TestRightJacobian(t *testing.T) {
	test.That(t, mat.EqualApprox(RightJacobian(r3.Vector{}), eye3(), 1e-15), test.ShouldBeTrue)

	// Exp(phi + d) ~= Exp(phi) * Exp(Jr(phi) d) for small d
	phi := r3.Vector{X: 0.4, Y: -0.2, Z: 0.9}
	d := r3.Vector{X: 1e-6, Y: 2e-6, Z: -1e-6}
	lhs := Exp(phi.Add(d))
	rhs := Compose(Exp(phi), Exp(MulVec(RightJacobian(phi), d)))
	test.That(t, QuaternionAlmostEqual(lhs, rhs, 1e-11), test.ShouldBeTrue)
}

func TestTransform(t *testing.T) {
	q := Exp(r3.Vector{X: 0.1, Y: 0.2, Z: -0.3})
	p := r3.Vector{X: 1, Y: -2, Z: 3}
	tf := TransformFromQuaternion(q, p)
	q2, p2 := TransformToQuaternion(tf)
	test.That(t, QuaternionAlmostEqual(q, q2, 1e-9), test.ShouldBeTrue)
	test.That(t, p2, test.ShouldResemble, p)

	ident := tf.Mul4(InvertTransform(tf))
	test.That(t, TransformAlmostEqual(ident, TransformFromQuaternion(IdentityQuaternion(), r3.Vector{}), 1e-9, 1e-9),
		test.ShouldBeTrue)
}
