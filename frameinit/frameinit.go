// Package frameinit estimates where a sensor was at a given time so that new states from other
// models can be seeded before they enter the factor graph.
package frameinit

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"go.viam.com/preintegration/poselookup"
	"go.viam.com/preintegration/preintegration"
)

// DefaultWorldFrame is the world frame name used when none is given.
const DefaultWorldFrame = "world"

// A FrameInitializer estimates T_WORLD_SENSOR at time t.
type FrameInitializer interface {
	EstimatedPose(t time.Time, sensorFrame string) (mgl64.Mat4, error)
}

// ImuFrameInitializer answers sensor poses by dead reckoning an IMU session.
type ImuFrameInitializer struct {
	lookup poselookup.PoseLookup
}

// NewImuFrameInitializer returns an initializer tracking the IMU frame of session. extrinsics
// relate other sensors to the IMU and may be nil when only the IMU frame is queried.
func NewImuFrameInitializer(session *preintegration.Session, extrinsics poselookup.ExtrinsicsLookup) *ImuFrameInitializer {
	imuFrame, _ := session.Frames()
	return &ImuFrameInitializer{lookup: poselookup.PoseLookup{
		WorldFrame:   DefaultWorldFrame,
		TrackedFrame: imuFrame,
		Poses:        poselookup.PoseSourceFunc(session.GetPose),
		Extrinsics:   extrinsics,
	}}
}

// EstimatedPose returns T_WORLD_SENSOR at t.
func (fi *ImuFrameInitializer) EstimatedPose(t time.Time, sensorFrame string) (mgl64.Mat4, error) {
	return fi.lookup.SensorPose(sensorFrame, t)
}
