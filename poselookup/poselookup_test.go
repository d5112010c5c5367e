package poselookup

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/preintegration/spatialmath"
)

func pose(yaw float64, p r3.Vector) mgl64.Mat4 {
	return spatialmath.TransformFromQuaternion(spatialmath.Exp(r3.Vector{Z: yaw}), p)
}

func TestStaticExtrinsics(t *testing.T) {
	se := NewStaticExtrinsics()
	tBaseImu := pose(math.Pi/2, r3.Vector{X: 0.1})
	tBaseLidar := pose(0, r3.Vector{Z: 0.5})
	test.That(t, se.AddFrame("base_link", "imu", tBaseImu), test.ShouldBeNil)
	test.That(t, se.AddFrame("base_link", "lidar", tBaseLidar), test.ShouldBeNil)
	test.That(t, len(se.FrameNames()), test.ShouldEqual, 2)

	got, err := se.Lookup("base_link", "imu", time.Time{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.TransformAlmostEqual(got, tBaseImu, 1e-12, 1e-12), test.ShouldBeTrue)

	got, err = se.Lookup("imu", "base_link", time.Time{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.TransformAlmostEqual(got, spatialmath.InvertTransform(tBaseImu), 1e-12, 1e-12), test.ShouldBeTrue)

	// siblings resolve through their shared parent
	got, err = se.Lookup("imu", "lidar", time.Time{})
	test.That(t, err, test.ShouldBeNil)
	want := spatialmath.InvertTransform(tBaseImu).Mul4(tBaseLidar)
	test.That(t, spatialmath.TransformAlmostEqual(got, want, 1e-12, 1e-12), test.ShouldBeTrue)

	got, err = se.Lookup("imu", "imu", time.Time{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, mgl64.Ident4())

	_, err = se.Lookup("base_link", "camera", time.Time{})
	test.That(t, err, test.ShouldBeError, NewFrameMissingError("camera"))

	test.That(t, se.AddFrame("odom", "world", mgl64.Ident4()), test.ShouldBeNil)
	_, err = se.Lookup("imu", "world", time.Time{})
	test.That(t, err, test.ShouldBeError, NewDisconnectedFramesError("imu", "world"))

	test.That(t, se.AddFrame("imu", "base_link", mgl64.Ident4()), test.ShouldNotBeNil)
	test.That(t, se.AddFrame("lidar", "lidar", mgl64.Ident4()), test.ShouldNotBeNil)
	test.That(t, se.AddFrame("imu", "odom", mgl64.Ident4()), test.ShouldBeNil)
	test.That(t, se.AddFrame("world", "base_link", mgl64.Ident4()), test.ShouldNotBeNil)
}

func TestPoseBuffer(t *testing.T) {
	start := time.Unix(1000, 0)
	pb := NewPoseBuffer(10 * time.Second)

	_, err := pb.PoseAt(start)
	test.That(t, err, test.ShouldBeError, ErrNoPoses)

	// out of order on purpose
	pb.Add(start.Add(2*time.Second), pose(1, r3.Vector{X: 2}))
	pb.Add(start, pose(0, r3.Vector{}))
	test.That(t, pb.Len(), test.ShouldEqual, 2)

	got, err := pb.PoseAt(start.Add(time.Second))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.TransformAlmostEqual(got, pose(0.5, r3.Vector{X: 1}), 1e-9, 1e-9), test.ShouldBeTrue)

	got, err = pb.PoseAt(start)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, pose(0, r3.Vector{}))

	_, err = pb.PoseAt(start.Add(3 * time.Second))
	test.That(t, err, test.ShouldNotBeNil)

	// replacing an existing stamp keeps the length
	pb.Add(start, pose(0, r3.Vector{Y: 1}))
	test.That(t, pb.Len(), test.ShouldEqual, 2)

	pb.Add(start.Add(11*time.Second), pose(0, r3.Vector{}))
	test.That(t, pb.Len(), test.ShouldEqual, 2)
	_, err = pb.PoseAt(start)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPoseLookup(t *testing.T) {
	start := time.Unix(1000, 0)
	pb := NewPoseBuffer(0)
	pb.Add(start, pose(0, r3.Vector{X: 1}))
	pb.Add(start.Add(time.Second), pose(0, r3.Vector{X: 2}))

	se := NewStaticExtrinsics()
	test.That(t, se.AddFrame("base_link", "lidar", pose(0, r3.Vector{Z: 1})), test.ShouldBeNil)

	pl := &PoseLookup{WorldFrame: "world", TrackedFrame: "base_link", Poses: pb, Extrinsics: se}
	got, err := pl.SensorPose("lidar", start.Add(500*time.Millisecond))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.TransformAlmostEqual(got, pose(0, r3.Vector{X: 1.5, Z: 1}), 1e-12, 1e-12), test.ShouldBeTrue)

	got, err = pl.SensorPose("base_link", start)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, pose(0, r3.Vector{X: 1}))

	_, err = pl.SensorPose("camera", start)
	test.That(t, err, test.ShouldNotBeNil)

	calls := 0
	pl.Poses = PoseSourceFunc(func(time.Time) (mgl64.Mat4, error) {
		calls++
		return mgl64.Ident4(), nil
	})
	got, err = pl.SensorPose("lidar", start)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 1)
	test.That(t, spatialmath.TransformAlmostEqual(got, pose(0, r3.Vector{Z: 1}), 1e-12, 1e-12), test.ShouldBeTrue)
}
