package factorgraph

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// ConstraintKind tags every constraint type known at the optimizer boundary.
type ConstraintKind int

// The known constraint kinds.
const (
	KindRelativeImuState3D ConstraintKind = iota + 1
	KindAbsoluteImuState3D
	KindRelativePose3D
)

func (k ConstraintKind) String() string {
	switch k {
	case KindRelativeImuState3D:
		return "relative_imu_state_3d"
	case KindAbsoluteImuState3D:
		return "absolute_imu_state_3d"
	case KindRelativePose3D:
		return "relative_pose_3d"
	}
	return fmt.Sprintf("unknown_constraint_%d", int(k))
}

func constraintKindFromString(s string) (ConstraintKind, bool) {
	for k := KindRelativeImuState3D; k <= KindRelativePose3D; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// ImuStateDim is the size of the stacked IMU state mean: quaternion (4), position, velocity,
// gyroscope bias, and accelerometer bias (3 each).
const ImuStateDim = 16

// ImuStateTangentDim is the size of the IMU state error space the covariances are expressed in.
const ImuStateTangentDim = 15

// PoseDim is the size of a relative pose mean: quaternion (4) and translation (3).
const PoseDim = 7

// Constraint is one optimizer constraint. The set of implementations is closed; use a type switch
// over the concrete types to dispatch.
type Constraint interface {
	UUID() uuid.UUID
	Kind() ConstraintKind
	// Source names the model that produced the constraint.
	Source() string
	// Variables lists the ids of every variable the constraint touches, in a fixed order.
	Variables() []uuid.UUID
	isConstraint()
}

// ImuStateKeys are the variable ids of one IMU state.
type ImuStateKeys struct {
	Orientation uuid.UUID
	Position    uuid.UUID
	Velocity    uuid.UUID
	GyroBias    uuid.UUID
	AccelBias   uuid.UUID
}

// IDs returns the five ids in optimizer order.
func (k ImuStateKeys) IDs() []uuid.UUID {
	return []uuid.UUID{k.Orientation, k.Position, k.Velocity, k.GyroBias, k.AccelBias}
}

func imuStateKeysFrom(ids []uuid.UUID) ImuStateKeys {
	return ImuStateKeys{Orientation: ids[0], Position: ids[1], Velocity: ids[2], GyroBias: ids[3], AccelBias: ids[4]}
}

// RelativeImuState3D constrains the motion between two IMU states to a preintegrated delta.
type RelativeImuState3D struct {
	ID         uuid.UUID
	SourceName string
	From, To   ImuStateKeys
	// Delta is the stacked mean: relative quaternion, position, velocity, then the expected
	// change of the gyroscope and accelerometer biases.
	Delta      [ImuStateDim]float64
	Covariance *mat.SymDense
}

// NewRelativeImuState3D returns a relative IMU constraint with a fresh id.
func NewRelativeImuState3D(
	source string, from, to ImuStateKeys, delta [ImuStateDim]float64, cov *mat.SymDense,
) *RelativeImuState3D {
	return &RelativeImuState3D{ID: uuid.New(), SourceName: source, From: from, To: to, Delta: delta, Covariance: cov}
}

// UUID returns the constraint id.
func (c *RelativeImuState3D) UUID() uuid.UUID { return c.ID }

// Kind returns KindRelativeImuState3D.
func (*RelativeImuState3D) Kind() ConstraintKind { return KindRelativeImuState3D }

// Source returns the producing model name.
func (c *RelativeImuState3D) Source() string { return c.SourceName }

// Variables returns the five ids of the start state followed by the five ids of the end state.
func (c *RelativeImuState3D) Variables() []uuid.UUID {
	return append(c.From.IDs(), c.To.IDs()...)
}

func (*RelativeImuState3D) isConstraint() {}

// AbsoluteImuState3D pins one IMU state to a prior.
type AbsoluteImuState3D struct {
	ID         uuid.UUID
	SourceName string
	State      ImuStateKeys
	Mean       [ImuStateDim]float64
	Covariance *mat.SymDense
}

// NewAbsoluteImuState3D returns an absolute IMU constraint with a fresh id.
func NewAbsoluteImuState3D(
	source string, state ImuStateKeys, mean [ImuStateDim]float64, cov *mat.SymDense,
) *AbsoluteImuState3D {
	return &AbsoluteImuState3D{ID: uuid.New(), SourceName: source, State: state, Mean: mean, Covariance: cov}
}

// UUID returns the constraint id.
func (c *AbsoluteImuState3D) UUID() uuid.UUID { return c.ID }

// Kind returns KindAbsoluteImuState3D.
func (*AbsoluteImuState3D) Kind() ConstraintKind { return KindAbsoluteImuState3D }

// Source returns the producing model name.
func (c *AbsoluteImuState3D) Source() string { return c.SourceName }

// Variables returns the five ids of the constrained state.
func (c *AbsoluteImuState3D) Variables() []uuid.UUID { return c.State.IDs() }

func (*AbsoluteImuState3D) isConstraint() {}

// RelativePose3D is the constraint kind emitted by scan matchers and visual trackers: a relative
// rotation and translation between two stamped poses.
type RelativePose3D struct {
	ID                            uuid.UUID
	SourceName                    string
	FromOrientation, FromPosition uuid.UUID
	ToOrientation, ToPosition     uuid.UUID
	Delta                         [PoseDim]float64
	Covariance                    *mat.SymDense
}

// NewRelativePose3D returns a relative pose constraint with a fresh id.
func NewRelativePose3D(
	source string, fromOrientation, fromPosition, toOrientation, toPosition uuid.UUID,
	delta [PoseDim]float64, cov *mat.SymDense,
) *RelativePose3D {
	return &RelativePose3D{
		ID:              uuid.New(),
		SourceName:      source,
		FromOrientation: fromOrientation,
		FromPosition:    fromPosition,
		ToOrientation:   toOrientation,
		ToPosition:      toPosition,
		Delta:           delta,
		Covariance:      cov,
	}
}

// UUID returns the constraint id.
func (c *RelativePose3D) UUID() uuid.UUID { return c.ID }

// Kind returns KindRelativePose3D.
func (*RelativePose3D) Kind() ConstraintKind { return KindRelativePose3D }

// Source returns the producing model name.
func (c *RelativePose3D) Source() string { return c.SourceName }

// Variables returns the orientation and position ids of both poses.
func (c *RelativePose3D) Variables() []uuid.UUID {
	return []uuid.UUID{c.FromOrientation, c.FromPosition, c.ToOrientation, c.ToPosition}
}

func (*RelativePose3D) isConstraint() {}

// covarianceDim returns the expected size of a constraint's covariance.
func covarianceDim(kind ConstraintKind) int {
	if kind == KindRelativePose3D {
		return 6
	}
	return ImuStateTangentDim
}
