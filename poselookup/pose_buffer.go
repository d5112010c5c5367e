package poselookup

import (
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"go.viam.com/preintegration/spatialmath"
)

// ErrNoPoses is returned when a PoseBuffer is queried before anything was added.
var ErrNoPoses = errors.New("pose buffer is empty")

// PoseSource returns the pose of some frame in the world frame at time t.
type PoseSource interface {
	PoseAt(t time.Time) (mgl64.Mat4, error)
}

// PoseSourceFunc adapts a function to a PoseSource.
type PoseSourceFunc func(t time.Time) (mgl64.Mat4, error)

// PoseAt calls f(t).
func (f PoseSourceFunc) PoseAt(t time.Time) (mgl64.Mat4, error) {
	return f(t)
}

type stampedPose struct {
	t    time.Time
	pose mgl64.Mat4
}

// PoseBuffer keeps the poses of the last duration and interpolates between them.
type PoseBuffer struct {
	mu       sync.RWMutex
	duration time.Duration
	poses    []stampedPose
}

// NewPoseBuffer returns a buffer retaining duration worth of poses. A zero duration keeps
// everything.
func NewPoseBuffer(duration time.Duration) *PoseBuffer {
	return &PoseBuffer{duration: duration}
}

// Add inserts a pose. Poses may arrive out of order; a pose at an existing time replaces it.
func (pb *PoseBuffer) Add(t time.Time, pose mgl64.Mat4) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	idx := sort.Search(len(pb.poses), func(i int) bool { return !pb.poses[i].t.Before(t) })
	switch {
	case idx < len(pb.poses) && pb.poses[idx].t.Equal(t):
		pb.poses[idx].pose = pose
	case idx == len(pb.poses):
		pb.poses = append(pb.poses, stampedPose{t, pose})
	default:
		pb.poses = append(pb.poses, stampedPose{})
		copy(pb.poses[idx+1:], pb.poses[idx:])
		pb.poses[idx] = stampedPose{t, pose}
	}
	if pb.duration > 0 {
		cutoff := pb.poses[len(pb.poses)-1].t.Add(-pb.duration)
		drop := sort.Search(len(pb.poses), func(i int) bool { return !pb.poses[i].t.Before(cutoff) })
		pb.poses = pb.poses[drop:]
	}
}

// Len returns the number of buffered poses.
func (pb *PoseBuffer) Len() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return len(pb.poses)
}

// PoseAt interpolates the pose at t. Rotations are slerped and translations lerped between the
// two neighboring poses; times outside the buffered range are an error.
func (pb *PoseBuffer) PoseAt(t time.Time) (mgl64.Mat4, error) {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	if len(pb.poses) == 0 {
		return mgl64.Mat4{}, ErrNoPoses
	}
	first, last := pb.poses[0].t, pb.poses[len(pb.poses)-1].t
	if t.Before(first) || t.After(last) {
		return mgl64.Mat4{}, errors.Errorf(
			"requested pose at %s outside of buffered range [%s, %s]",
			t.Format(time.RFC3339Nano), first.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano),
		)
	}
	idx := sort.Search(len(pb.poses), func(i int) bool { return !pb.poses[i].t.Before(t) })
	if pb.poses[idx].t.Equal(t) {
		return pb.poses[idx].pose, nil
	}
	before, after := pb.poses[idx-1], pb.poses[idx]
	by := float64(t.Sub(before.t)) / float64(after.t.Sub(before.t))
	return InterpolateTransform(before.pose, after.pose, by), nil
}

// InterpolateTransform blends two rigid transforms, by=0 giving a and by=1 giving b.
func InterpolateTransform(a, b mgl64.Mat4, by float64) mgl64.Mat4 {
	qa, pa := spatialmath.TransformToQuaternion(a)
	qb, pb := spatialmath.TransformToQuaternion(b)
	return spatialmath.TransformFromQuaternion(spatialmath.Slerp(qa, qb, by), pa.Add(pb.Sub(pa).Mul(by)))
}
