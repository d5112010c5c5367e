package preintegration

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/preintegration/factorgraph"
	"go.viam.com/preintegration/spatialmath"
)

// Unit quaternions within this distance of norm 1 are stored as given.
const normTolerance = 1e-12

var errZeroQuaternion = errors.New("orientation quaternion has zero norm")

// State is the full IMU state at one instant: orientation, position and velocity in the world
// frame plus the gyroscope and accelerometer bias estimates. Each component is addressed in the
// optimizer by an id derived from its kind, the stamp and the device.
type State struct {
	stamp       time.Time
	device      uuid.UUID
	keys        factorgraph.ImuStateKeys
	orientation quat.Number
	position    r3.Vector
	velocity    r3.Vector
	gyroBias    r3.Vector
	accelBias   r3.Vector
	updates     int
}

// NewState returns a state at t with identity orientation and zero motion and biases.
func NewState(t time.Time) *State {
	return NewStateFull(t, spatialmath.IdentityQuaternion(), r3.Vector{}, r3.Vector{}, r3.Vector{}, r3.Vector{})
}

// NewStateWith returns a state at t with the given pose and velocity and zero biases.
func NewStateWith(t time.Time, q quat.Number, p, v r3.Vector) *State {
	return NewStateFull(t, q, p, v, r3.Vector{}, r3.Vector{})
}

// NewStateFull returns a state with every component given. A zero quaternion becomes identity.
func NewStateFull(t time.Time, q quat.Number, p, v, gyroBias, accelBias r3.Vector) *State {
	s := &State{stamp: t, position: p, velocity: v, gyroBias: gyroBias, accelBias: accelBias}
	s.orientation = normalizeIfNeeded(q)
	s.keys = stateKeys(t, s.device)
	return s
}

// ForDevice returns a copy of s whose component ids belong to device.
func (s *State) ForDevice(device uuid.UUID) *State {
	return s.Clone().withDevice(device)
}

func (s *State) withDevice(device uuid.UUID) *State {
	s.device = device
	s.keys = stateKeys(s.stamp, device)
	return s
}

// withStamp moves s to t, rederiving its ids.
func (s *State) withStamp(t time.Time) *State {
	s.stamp = t
	s.keys = stateKeys(t, s.device)
	return s
}

func stateKeys(t time.Time, device uuid.UUID) factorgraph.ImuStateKeys {
	return factorgraph.ImuStateKeys{
		Orientation: factorgraph.NewVariableID(factorgraph.KindOrientation3D, t, device),
		Position:    factorgraph.NewVariableID(factorgraph.KindPosition3D, t, device),
		Velocity:    factorgraph.NewVariableID(factorgraph.KindVelocityLinear3D, t, device),
		GyroBias:    factorgraph.NewVariableID(factorgraph.KindImuBiasGyro3D, t, device),
		AccelBias:   factorgraph.NewVariableID(factorgraph.KindImuBiasAccel3D, t, device),
	}
}

func normalizeIfNeeded(q quat.Number) quat.Number {
	if math.Abs(quat.Abs(q)-1) <= normTolerance {
		return q
	}
	n, _ := spatialmath.Normalize(q)
	return n
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	out := *s
	return &out
}

// Stamp returns the time of the state.
func (s *State) Stamp() time.Time { return s.stamp }

// DeviceID returns the id of the device the state belongs to.
func (s *State) DeviceID() uuid.UUID { return s.device }

// Keys returns the optimizer ids of the five components.
func (s *State) Keys() factorgraph.ImuStateKeys { return s.keys }

// Orientation returns the world-from-body rotation.
func (s *State) Orientation() quat.Number { return s.orientation }

// Position returns the position in the world frame.
func (s *State) Position() r3.Vector { return s.position }

// Velocity returns the linear velocity in the world frame.
func (s *State) Velocity() r3.Vector { return s.velocity }

// GyroBias returns the gyroscope bias estimate.
func (s *State) GyroBias() r3.Vector { return s.gyroBias }

// AccelBias returns the accelerometer bias estimate.
func (s *State) AccelBias() r3.Vector { return s.accelBias }

// Updates returns how many optimizer results have been applied to the state.
func (s *State) Updates() int { return s.updates }

// OrientationData returns w, x, y, z.
func (s *State) OrientationData() [4]float64 {
	return [4]float64{s.orientation.Real, s.orientation.Imag, s.orientation.Jmag, s.orientation.Kmag}
}

// PositionData returns x, y, z.
func (s *State) PositionData() [3]float64 { return vecData(s.position) }

// VelocityData returns x, y, z.
func (s *State) VelocityData() [3]float64 { return vecData(s.velocity) }

// GyroBiasData returns x, y, z.
func (s *State) GyroBiasData() [3]float64 { return vecData(s.gyroBias) }

// AccelBiasData returns x, y, z.
func (s *State) AccelBiasData() [3]float64 { return vecData(s.accelBias) }

func vecData(v r3.Vector) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// SetOrientation sets the orientation from its w, x, y, z components.
func (s *State) SetOrientation(w, x, y, z float64) error {
	return s.SetOrientationQuat(quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z})
}

// SetOrientationQuat sets the orientation, normalizing it. A zero quaternion is rejected.
func (s *State) SetOrientationQuat(q quat.Number) error {
	if quat.Abs(q) == 0 || !spatialmath.IsFinite(q) {
		return errZeroQuaternion
	}
	s.orientation = normalizeIfNeeded(q)
	return nil
}

// SetOrientationData sets the orientation from a w, x, y, z array.
func (s *State) SetOrientationData(d [4]float64) error {
	return s.SetOrientation(d[0], d[1], d[2], d[3])
}

// SetPosition sets the position components.
func (s *State) SetPosition(x, y, z float64) { s.position = r3.Vector{X: x, Y: y, Z: z} }

// SetPositionVec sets the position.
func (s *State) SetPositionVec(p r3.Vector) { s.position = p }

// SetPositionData sets the position from an x, y, z array.
func (s *State) SetPositionData(d [3]float64) { s.position = r3.Vector{X: d[0], Y: d[1], Z: d[2]} }

// SetVelocity sets the velocity components.
func (s *State) SetVelocity(x, y, z float64) { s.velocity = r3.Vector{X: x, Y: y, Z: z} }

// SetVelocityVec sets the velocity.
func (s *State) SetVelocityVec(v r3.Vector) { s.velocity = v }

// SetVelocityData sets the velocity from an x, y, z array.
func (s *State) SetVelocityData(d [3]float64) { s.velocity = r3.Vector{X: d[0], Y: d[1], Z: d[2]} }

// SetGyroBias sets the gyroscope bias components.
func (s *State) SetGyroBias(x, y, z float64) { s.gyroBias = r3.Vector{X: x, Y: y, Z: z} }

// SetGyroBiasVec sets the gyroscope bias.
func (s *State) SetGyroBiasVec(b r3.Vector) { s.gyroBias = b }

// SetGyroBiasData sets the gyroscope bias from an x, y, z array.
func (s *State) SetGyroBiasData(d [3]float64) { s.gyroBias = r3.Vector{X: d[0], Y: d[1], Z: d[2]} }

// SetAccelBias sets the accelerometer bias components.
func (s *State) SetAccelBias(x, y, z float64) { s.accelBias = r3.Vector{X: x, Y: y, Z: z} }

// SetAccelBiasVec sets the accelerometer bias.
func (s *State) SetAccelBiasVec(b r3.Vector) { s.accelBias = b }

// SetAccelBiasData sets the accelerometer bias from an x, y, z array.
func (s *State) SetAccelBiasData(d [3]float64) { s.accelBias = r3.Vector{X: d[0], Y: d[1], Z: d[2]} }

// OrientationVariable returns the orientation as an optimizer variable.
func (s *State) OrientationVariable() *factorgraph.Orientation3DStamped {
	return factorgraph.NewOrientation3DStamped(s.stamp, s.device, s.orientation)
}

// PositionVariable returns the position as an optimizer variable.
func (s *State) PositionVariable() *factorgraph.Position3DStamped {
	return factorgraph.NewPosition3DStamped(s.stamp, s.device, s.position)
}

// VelocityVariable returns the velocity as an optimizer variable.
func (s *State) VelocityVariable() *factorgraph.VelocityLinear3DStamped {
	return factorgraph.NewVelocityLinear3DStamped(s.stamp, s.device, s.velocity)
}

// GyroBiasVariable returns the gyroscope bias as an optimizer variable.
func (s *State) GyroBiasVariable() *factorgraph.ImuBiasGyro3DStamped {
	return factorgraph.NewImuBiasGyro3DStamped(s.stamp, s.device, s.gyroBias)
}

// AccelBiasVariable returns the accelerometer bias as an optimizer variable.
func (s *State) AccelBiasVariable() *factorgraph.ImuBiasAccel3DStamped {
	return factorgraph.NewImuBiasAccel3DStamped(s.stamp, s.device, s.accelBias)
}

// Variables returns the five components in optimizer order.
func (s *State) Variables() []factorgraph.Variable {
	return []factorgraph.Variable{
		s.OrientationVariable(),
		s.PositionVariable(),
		s.VelocityVariable(),
		s.GyroBiasVariable(),
		s.AccelBiasVariable(),
	}
}

// Mean returns the 16 component vector used by absolute priors.
func (s *State) Mean() [factorgraph.ImuStateDim]float64 {
	q := s.orientation
	return [factorgraph.ImuStateDim]float64{
		q.Real, q.Imag, q.Jmag, q.Kmag,
		s.position.X, s.position.Y, s.position.Z,
		s.velocity.X, s.velocity.Y, s.velocity.Z,
		s.gyroBias.X, s.gyroBias.Y, s.gyroBias.Z,
		s.accelBias.X, s.accelBias.Y, s.accelBias.Z,
	}
}

// Update copies the optimized values of all five components into s. Nothing is changed and false
// is returned unless every component is present with the expected kind.
func (s *State) Update(values factorgraph.Values) bool {
	o, ok := values[s.keys.Orientation].(*factorgraph.Orientation3DStamped)
	if !ok {
		return false
	}
	p, ok := values[s.keys.Position].(*factorgraph.Position3DStamped)
	if !ok {
		return false
	}
	v, ok := values[s.keys.Velocity].(*factorgraph.VelocityLinear3DStamped)
	if !ok {
		return false
	}
	bg, ok := values[s.keys.GyroBias].(*factorgraph.ImuBiasGyro3DStamped)
	if !ok {
		return false
	}
	ba, ok := values[s.keys.AccelBias].(*factorgraph.ImuBiasAccel3DStamped)
	if !ok {
		return false
	}
	if quat.Abs(o.Value) == 0 || !spatialmath.IsFinite(o.Value) {
		return false
	}
	s.orientation = normalizeIfNeeded(o.Value)
	s.position = p.Value
	s.velocity = v.Value
	s.gyroBias = bg.Value
	s.accelBias = ba.Value
	s.updates++
	return true
}

// finite reports whether every component of s is a finite number.
func (s *State) finite() bool {
	return spatialmath.IsFinite(s.orientation) && spatialmath.VectorIsFinite(s.position) &&
		spatialmath.VectorIsFinite(s.velocity) && spatialmath.VectorIsFinite(s.gyroBias) &&
		spatialmath.VectorIsFinite(s.accelBias)
}

func (s *State) String() string {
	q := s.orientation
	return fmt.Sprintf(
		"state(stamp=%s updates=%d q=[%.6f %.6f %.6f %.6f] p=%v v=%v bg=%v ba=%v)",
		s.stamp.Format(time.RFC3339Nano), s.updates, q.Real, q.Imag, q.Jmag, q.Kmag,
		s.position, s.velocity, s.gyroBias, s.accelBias,
	)
}
