// Package factorgraph defines the closed set of variables and constraints exchanged with the
// external factor-graph optimizer, along with transactions, optimizer results, and their wire
// encoding.
package factorgraph

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// VariableKind tags every variable type known at the optimizer boundary.
type VariableKind int

// The known variable kinds.
const (
	KindOrientation3D VariableKind = iota + 1
	KindPosition3D
	KindVelocityLinear3D
	KindImuBiasGyro3D
	KindImuBiasAccel3D
)

func (k VariableKind) String() string {
	switch k {
	case KindOrientation3D:
		return "orientation_3d_stamped"
	case KindPosition3D:
		return "position_3d_stamped"
	case KindVelocityLinear3D:
		return "velocity_linear_3d_stamped"
	case KindImuBiasGyro3D:
		return "imu_bias_gyro_3d_stamped"
	case KindImuBiasAccel3D:
		return "imu_bias_accel_3d_stamped"
	}
	return fmt.Sprintf("unknown_variable_%d", int(k))
}

func variableKindFromString(s string) (VariableKind, bool) {
	for k := KindOrientation3D; k <= KindImuBiasAccel3D; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// NewVariableID derives the stable identifier of a variable from its kind, stamp, and the
// device that owns it. The same inputs always produce the same id.
func NewVariableID(kind VariableKind, stamp time.Time, device uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(device, []byte(kind.String()+"@"+strconv.FormatInt(stamp.UnixNano(), 10)))
}

// NewDeviceID derives a device id from a human readable source name.
func NewDeviceID(source string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(source))
}

// Variable is one optimizer variable. The set of implementations is closed; use a type switch
// over the concrete types to dispatch.
type Variable interface {
	UUID() uuid.UUID
	Stamp() time.Time
	DeviceID() uuid.UUID
	Kind() VariableKind
	// Data returns a copy of the raw values in optimizer order.
	Data() []float64
	isVariable()
}

// Header carries the identity shared by all stamped variables.
type Header struct {
	ID     uuid.UUID
	Time   time.Time
	Device uuid.UUID
}

func newHeader(kind VariableKind, stamp time.Time, device uuid.UUID) Header {
	return Header{ID: NewVariableID(kind, stamp, device), Time: stamp, Device: device}
}

// UUID returns the variable's stable id.
func (h Header) UUID() uuid.UUID { return h.ID }

// Stamp returns the time the variable is attached to.
func (h Header) Stamp() time.Time { return h.Time }

// DeviceID returns the id of the device owning the variable.
func (h Header) DeviceID() uuid.UUID { return h.Device }

// Orientation3DStamped is a unit quaternion in (w, x, y, z) order.
type Orientation3DStamped struct {
	Header
	Value quat.Number
}

// NewOrientation3DStamped returns an orientation variable with a derived id.
func NewOrientation3DStamped(stamp time.Time, device uuid.UUID, q quat.Number) *Orientation3DStamped {
	return &Orientation3DStamped{Header: newHeader(KindOrientation3D, stamp, device), Value: q}
}

// Kind returns KindOrientation3D.
func (*Orientation3DStamped) Kind() VariableKind { return KindOrientation3D }

// Data returns w, x, y, z.
func (o *Orientation3DStamped) Data() []float64 {
	return []float64{o.Value.Real, o.Value.Imag, o.Value.Jmag, o.Value.Kmag}
}

func (*Orientation3DStamped) isVariable() {}

// Vector3Stamped holds the shared layout of the 3-vector variables.
type Vector3Stamped struct {
	Header
	Value r3.Vector
}

// Data returns x, y, z.
func (v *Vector3Stamped) Data() []float64 {
	return []float64{v.Value.X, v.Value.Y, v.Value.Z}
}

// Position3DStamped is a position in the world frame.
type Position3DStamped struct{ Vector3Stamped }

// NewPosition3DStamped returns a position variable with a derived id.
func NewPosition3DStamped(stamp time.Time, device uuid.UUID, p r3.Vector) *Position3DStamped {
	return &Position3DStamped{Vector3Stamped{newHeader(KindPosition3D, stamp, device), p}}
}

// Kind returns KindPosition3D.
func (*Position3DStamped) Kind() VariableKind { return KindPosition3D }

func (*Position3DStamped) isVariable() {}

// VelocityLinear3DStamped is a linear velocity in the world frame.
type VelocityLinear3DStamped struct{ Vector3Stamped }

// NewVelocityLinear3DStamped returns a velocity variable with a derived id.
func NewVelocityLinear3DStamped(stamp time.Time, device uuid.UUID, v r3.Vector) *VelocityLinear3DStamped {
	return &VelocityLinear3DStamped{Vector3Stamped{newHeader(KindVelocityLinear3D, stamp, device), v}}
}

// Kind returns KindVelocityLinear3D.
func (*VelocityLinear3DStamped) Kind() VariableKind { return KindVelocityLinear3D }

func (*VelocityLinear3DStamped) isVariable() {}

// ImuBiasGyro3DStamped is a gyroscope bias.
type ImuBiasGyro3DStamped struct{ Vector3Stamped }

// NewImuBiasGyro3DStamped returns a gyroscope bias variable with a derived id.
func NewImuBiasGyro3DStamped(stamp time.Time, device uuid.UUID, b r3.Vector) *ImuBiasGyro3DStamped {
	return &ImuBiasGyro3DStamped{Vector3Stamped{newHeader(KindImuBiasGyro3D, stamp, device), b}}
}

// Kind returns KindImuBiasGyro3D.
func (*ImuBiasGyro3DStamped) Kind() VariableKind { return KindImuBiasGyro3D }

func (*ImuBiasGyro3DStamped) isVariable() {}

// ImuBiasAccel3DStamped is an accelerometer bias.
type ImuBiasAccel3DStamped struct{ Vector3Stamped }

// NewImuBiasAccel3DStamped returns an accelerometer bias variable with a derived id.
func NewImuBiasAccel3DStamped(stamp time.Time, device uuid.UUID, b r3.Vector) *ImuBiasAccel3DStamped {
	return &ImuBiasAccel3DStamped{Vector3Stamped{newHeader(KindImuBiasAccel3D, stamp, device), b}}
}

// Kind returns KindImuBiasAccel3D.
func (*ImuBiasAccel3DStamped) Kind() VariableKind { return KindImuBiasAccel3D }

func (*ImuBiasAccel3DStamped) isVariable() {}

// newVariable rebuilds a variable of the given kind from its header and raw data.
func newVariable(kind VariableKind, h Header, data []float64) (Variable, error) {
	want := 3
	if kind == KindOrientation3D {
		want = 4
	}
	if len(data) != want {
		return nil, errors.Errorf("%s expects %d values but got %d", kind, want, len(data))
	}
	vec := r3.Vector{X: data[0], Y: data[1], Z: data[2]}
	switch kind {
	case KindOrientation3D:
		return &Orientation3DStamped{h, quat.Number{Real: data[0], Imag: data[1], Jmag: data[2], Kmag: data[3]}}, nil
	case KindPosition3D:
		return &Position3DStamped{Vector3Stamped{h, vec}}, nil
	case KindVelocityLinear3D:
		return &VelocityLinear3DStamped{Vector3Stamped{h, vec}}, nil
	case KindImuBiasGyro3D:
		return &ImuBiasGyro3DStamped{Vector3Stamped{h, vec}}, nil
	case KindImuBiasAccel3D:
		return &ImuBiasAccel3DStamped{Vector3Stamped{h, vec}}, nil
	}
	return nil, errors.Errorf("unknown variable kind %d", int(kind))
}
