package frameinit

import (
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"go.viam.com/preintegration/logging"
	"go.viam.com/preintegration/poselookup"
)

// Odometry is one pose estimate of ChildFrame expressed in ParentFrame.
type Odometry struct {
	Time        time.Time
	ParentFrame string
	ChildFrame  string
	Pose        mgl64.Mat4
}

// OdometryFrameInitializer answers sensor poses from an external odometry stream. Every message
// is stored as the pose of the configured sensor frame in the world frame, whatever frame names it
// carries.
type OdometryFrameInitializer struct {
	logger      logging.Logger
	sensorFrame string
	poses       *poselookup.PoseBuffer
	lookup      poselookup.PoseLookup

	checkOnce sync.Once
}

// NewOdometryFrameInitializer returns an initializer keeping bufferDuration worth of odometry
// for sensorFrame.
func NewOdometryFrameInitializer(
	sensorFrame string,
	bufferDuration time.Duration,
	extrinsics poselookup.ExtrinsicsLookup,
	logger logging.Logger,
) (*OdometryFrameInitializer, error) {
	if sensorFrame == "" {
		return nil, errors.New("odometry frame initializer needs a sensor frame")
	}
	if logger == nil {
		logger = logging.Global()
	}
	poses := poselookup.NewPoseBuffer(bufferDuration)
	return &OdometryFrameInitializer{
		logger:      logger,
		sensorFrame: sensorFrame,
		poses:       poses,
		lookup: poselookup.PoseLookup{
			WorldFrame:   DefaultWorldFrame,
			TrackedFrame: sensorFrame,
			Poses:        poses,
			Extrinsics:   extrinsics,
		},
	}, nil
}

// AddOdometry buffers msg. Frame names are checked against the world and sensor frames on the
// first message only; a mismatch is logged and the pose is stored anyway.
func (fi *OdometryFrameInitializer) AddOdometry(msg Odometry) {
	fi.checkOnce.Do(func() { fi.checkFrameIDs(msg) })
	fi.poses.Add(msg.Time, msg.Pose)
}

func (fi *OdometryFrameInitializer) checkFrameIDs(msg Odometry) {
	if !strings.Contains(msg.ParentFrame, fi.lookup.WorldFrame) {
		fi.logger.Warnw("world frame does not match parent frame in odometry messages",
			"world", fi.lookup.WorldFrame, "parent", msg.ParentFrame)
	}
	if !strings.Contains(msg.ChildFrame, fi.sensorFrame) {
		fi.logger.Warnw("sensor frame does not match child frame in odometry messages",
			"sensor", fi.sensorFrame, "child", msg.ChildFrame)
	}
}

// EstimatedPose returns T_WORLD_SENSOR at t, interpolated between buffered odometry.
func (fi *OdometryFrameInitializer) EstimatedPose(t time.Time, sensorFrame string) (mgl64.Mat4, error) {
	return fi.lookup.SensorPose(sensorFrame, t)
}
