package poselookup

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// PoseLookup combines world poses of one tracked frame with extrinsics to answer the pose of any
// sensor rigidly attached to it.
type PoseLookup struct {
	WorldFrame   string
	TrackedFrame string
	Poses        PoseSource
	Extrinsics   ExtrinsicsLookup
}

// SensorPose returns T_WORLD_SENSOR at t.
func (pl *PoseLookup) SensorPose(sensorFrame string, t time.Time) (mgl64.Mat4, error) {
	tWorldTracked, err := pl.Poses.PoseAt(t)
	if err != nil {
		return mgl64.Mat4{}, errors.Wrapf(err, "cannot look up %s in %s", pl.TrackedFrame, pl.WorldFrame)
	}
	if sensorFrame == pl.TrackedFrame {
		return tWorldTracked, nil
	}
	if pl.Extrinsics == nil {
		return mgl64.Mat4{}, errors.Errorf("no extrinsics to relate %q to %q", sensorFrame, pl.TrackedFrame)
	}
	tTrackedSensor, err := pl.Extrinsics.Lookup(pl.TrackedFrame, sensorFrame, t)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	return tWorldTracked.Mul4(tTrackedSensor), nil
}
