// Package preintegration turns a stream of IMU samples into relative motion constraints between
// time stamped IMU states, ready to hand to a factor graph optimizer.
package preintegration

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/preintegration/factorgraph"
	"go.viam.com/preintegration/logging"
	"go.viam.com/preintegration/poselookup"
	"go.viam.com/preintegration/spatialmath"
)

// Status is the lifecycle stage of a Session.
type Status int

// The lifecycle stages of a Session.
const (
	StatusUninitialized Status = iota
	StatusStarted
	StatusAccumulating
	StatusFactorReady
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusStarted:
		return "started"
	case StatusAccumulating:
		return "accumulating"
	case StatusFactorReady:
		return "factor_ready"
	default:
		return "unknown"
	}
}

// A TransactionSink receives every transaction a Session emits, for debugging or replay.
type TransactionSink interface {
	WriteTransaction(tx *factorgraph.Transaction) error
}

// A SessionOption configures optional collaborators of a Session.
type SessionOption func(*Session)

// WithExtrinsics sets the lookup used to express IMU poses in the base link frame.
func WithExtrinsics(lookup poselookup.ExtrinsicsLookup) SessionOption {
	return func(s *Session) { s.extrinsics = lookup }
}

// WithTransactionSink mirrors every emitted transaction to sink.
func WithTransactionSink(sink TransactionSink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// A StartOption seeds the start state given to SetStart.
type StartOption func(*State)

// WithSeedOrientation sets the starting orientation. A zero quaternion leaves identity in place.
func WithSeedOrientation(q quat.Number) StartOption {
	return func(s *State) {
		//nolint:errcheck
		s.SetOrientationQuat(q)
	}
}

// WithSeedPosition sets the starting position.
func WithSeedPosition(p r3.Vector) StartOption {
	return func(s *State) { s.SetPositionVec(p) }
}

// WithSeedVelocity sets the starting velocity.
func WithSeedVelocity(v r3.Vector) StartOption {
	return func(s *State) { s.SetVelocityVec(v) }
}

// WithSeedBiases overrides the configured initial bias estimates.
func WithSeedBiases(gyroBias, accelBias r3.Vector) StartOption {
	return func(s *State) {
		s.SetGyroBiasVec(gyroBias)
		s.SetAccelBiasVec(accelBias)
	}
}

// A Session owns the sample buffer and the anchor state of one IMU. Every exported method is safe
// for concurrent use.
type Session struct {
	mu         sync.Mutex
	cfg        *Config
	logger     logging.Logger
	device     uuid.UUID
	gravity    r3.Vector
	noise      NoiseParams
	extrinsics poselookup.ExtrinsicsLookup
	sink       TransactionSink

	status Status
	buffer sampleBuffer
	anchor *State
	// previous and lastDelta describe the last emitted factor so optimizer results for its start
	// can be carried to the anchor without replaying samples.
	previous       *State
	lastDelta      *Delta
	needsPrior     bool
	overflowWarned bool
}

// NewSession validates cfg and returns an uninitialized session. A nil cfg uses the defaults and a
// nil logger the global one.
func NewSession(cfg *Config, logger logging.Logger, opts ...SessionOption) (*Session, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate("preintegration"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global()
	}
	s := &Session{
		cfg:     cfg,
		logger:  logger,
		device:  factorgraph.NewDeviceID(cfg.source()),
		gravity: cfg.GravityVector(),
		noise:   cfg.Noise(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DeviceID returns the id stamped into every variable of this session.
func (s *Session) DeviceID() uuid.UUID { return s.device }

// Gravity returns the gravity vector used for prediction.
func (s *Session) Gravity() r3.Vector { return s.gravity }

// Frames returns the names of the IMU frame and the base link frame.
func (s *Session) Frames() (imu, baselink string) { return s.cfg.frames() }

// Status returns the lifecycle stage.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStart anchors the session at t. Unseeded components default to identity orientation, zero
// motion and the configured initial biases. The next factor also carries a prior on this state.
func (s *Session) SetStart(t time.Time, seed ...StartOption) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gyroBias, accelBias := s.cfg.InitialBiases()
	start := NewStateFull(t, spatialmath.IdentityQuaternion(), r3.Vector{}, r3.Vector{}, gyroBias, accelBias)
	for _, opt := range seed {
		opt(start)
	}
	s.anchor = start.withDevice(s.device)
	s.previous, s.lastDelta = nil, nil
	s.needsPrior = true
	s.overflowWarned = false
	s.buffer.pruneBefore(t)

	s.status = StatusStarted
	if newest, ok := s.buffer.newest(); ok && !newest.Time.Before(t) {
		s.status = StatusAccumulating
	}
	s.logger.Debugw("preintegration started", "stamp", t, "state", s.anchor)
}

// PopulateBuffer appends a sample. Samples older than the newest buffered one or than the start
// state are rejected with an OrderingError, and non-finite samples with a NumericalError; the
// buffer is left unchanged in both cases. A sample repeating the newest time is ignored.
func (s *Session) PopulateBuffer(sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !sample.Finite() {
		err := newNumericalError("non-finite imu sample at %s", sample.Time.Format(time.RFC3339Nano))
		s.logger.Warnw("rejecting imu sample", "error", err)
		return err
	}
	if s.anchor != nil && sample.Time.Before(s.anchor.stamp) {
		err := newOrderingError("imu sample", sample.Time, s.anchor.stamp)
		s.logger.Warnw("rejecting imu sample older than the start state", "error", err)
		return err
	}
	if newest, ok := s.buffer.newest(); ok {
		if sample.Time.Equal(newest.Time) {
			s.logger.Debugw("ignoring duplicate imu sample", "stamp", sample.Time)
			return nil
		}
		if sample.Time.Before(newest.Time) {
			err := newOrderingError("imu sample", sample.Time, newest.Time)
			s.logger.Warnw("rejecting out of order imu sample", "error", err)
			return err
		}
	}
	s.buffer.append(sample)
	s.enforceBufferDuration(sample.Time)
	if s.status == StatusStarted {
		s.status = StatusAccumulating
	}
	return nil
}

// enforceBufferDuration drops samples older than the buffer duration. Samples the open window
// still needs are never dropped: the cutoff stops at the start state, and a window outgrowing the
// buffer duration is reported once instead.
func (s *Session) enforceBufferDuration(newest time.Time) {
	cutoff := newest.Add(-time.Duration(s.cfg.bufferDurationSec() * float64(time.Second)))
	if s.anchor != nil && cutoff.After(s.anchor.stamp) {
		if !s.overflowWarned {
			s.logger.Warnw("open imu window exceeds the buffer duration, register a factor to release samples",
				"start", s.anchor.stamp, "newest", newest, "buffer_duration_sec", s.cfg.bufferDurationSec())
			s.overflowWarned = true
		}
		cutoff = s.anchor.stamp
	}
	if oldest, ok := s.buffer.oldest(); ok && oldest.Time.Before(cutoff) {
		s.buffer.pruneBefore(cutoff)
	}
}

// PredictState applies delta to from using this session's gravity.
func (s *Session) PredictState(delta *Delta, from *State) *State {
	return Predict(delta, from, s.gravity)
}

// RegisterNewFactor integrates the samples from the start state up to upto and returns the
// transaction adding the new end state, the relative constraint to it and, for the first factor
// after SetStart, a prior on the start state. The end state becomes the new start state.
func (s *Session) RegisterNewFactor(upto time.Time) (*factorgraph.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.anchor == nil {
		return nil, ErrNotStarted
	}
	if !upto.After(s.anchor.stamp) {
		err := newOrderingError("factor end", upto, s.anchor.stamp)
		s.logger.Warnw("cannot register factor", "error", err)
		return nil, err
	}
	if s.buffer.firstAfter(s.anchor.stamp) >= s.buffer.firstAfter(upto) {
		return nil, errors.Wrapf(ErrEmptyBuffer, "no imu samples after %s", s.anchor.stamp.Format(time.RFC3339Nano))
	}
	if newest, _ := s.buffer.newest(); upto.After(newest.Time) {
		return nil, errors.Wrapf(ErrEmptyBuffer, "newest imu sample at %s precedes %s",
			newest.Time.Format(time.RFC3339Nano), upto.Format(time.RFC3339Nano))
	}
	delta, err := s.integrate(s.anchor, upto)
	if err != nil {
		return nil, err
	}
	end := Predict(delta, s.anchor, s.gravity).withStamp(upto)
	if !end.finite() {
		return nil, newNumericalError("predicted state at %s is not finite", upto.Format(time.RFC3339Nano))
	}

	s.status = StatusFactorReady
	prior := 0.0
	if s.needsPrior {
		prior = s.cfg.priorCovariance()
	}
	tx := NewFactorTransaction(s.cfg.source(), delta, s.anchor, end, prior)
	if s.sink != nil {
		if err := s.sink.WriteTransaction(tx); err != nil {
			s.logger.Warnw("failed to write transaction to sink", "error", err)
		}
	}

	s.previous, s.anchor, s.lastDelta = s.anchor, end, delta
	s.needsPrior = false
	s.overflowWarned = false
	s.buffer.pruneBefore(upto)
	s.status = StatusAccumulating
	s.logger.Debugw("registered imu factor", "start", s.previous.stamp, "end", upto, "dt", delta.Dt)
	return tx, nil
}

// integrate builds the delta from start to end with start's bias estimates. Must hold mu.
func (s *Session) integrate(start *State, end time.Time) (*Delta, error) {
	in := NewIntegrator(start.stamp, start.gyroBias, start.accelBias, s.noise)
	for _, sample := range s.buffer.span(start.stamp, end) {
		if err := in.Integrate(sample); err != nil {
			return nil, err
		}
	}
	if err := in.IntegrateTo(end); err != nil {
		return nil, err
	}
	return in.Delta(), nil
}

// stateAt predicts the state at t from the anchor. Must hold mu.
func (s *Session) stateAt(t time.Time) (*State, error) {
	if s.anchor == nil {
		return nil, ErrNotStarted
	}
	if t.Before(s.anchor.stamp) {
		return nil, errors.Wrapf(ErrPoseUnavailable, "%s precedes the start state at %s",
			t.Format(time.RFC3339Nano), s.anchor.stamp.Format(time.RFC3339Nano))
	}
	if t.Equal(s.anchor.stamp) {
		return s.anchor.Clone(), nil
	}
	newest, ok := s.buffer.newest()
	if !ok || t.After(newest.Time) {
		return nil, errors.Wrapf(ErrPoseUnavailable, "no imu samples up to %s", t.Format(time.RFC3339Nano))
	}
	delta, err := s.integrate(s.anchor, t)
	if err != nil {
		return nil, err
	}
	return Predict(delta, s.anchor, s.gravity).withStamp(t), nil
}

// PredictAt returns the state at t predicted from the start state and the buffered samples.
func (s *Session) PredictAt(t time.Time) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateAt(t)
}

// GetPose returns T_WORLD_IMU at t, which must lie between the start state and the newest sample.
func (s *Session) GetPose(t time.Time) (mgl64.Mat4, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.stateAt(t)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	return spatialmath.TransformFromQuaternion(st.orientation, st.position), nil
}

// GetBaselinkPose returns T_WORLD_BASELINK at t using the injected extrinsics.
func (s *Session) GetBaselinkPose(t time.Time) (mgl64.Mat4, error) {
	if s.extrinsics == nil {
		return mgl64.Mat4{}, errors.New("no extrinsics configured for the preintegration session")
	}
	tWorldImu, err := s.GetPose(t)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	imuFrame, baselinkFrame := s.cfg.frames()
	tImuBaselink, err := s.extrinsics.Lookup(imuFrame, baselinkFrame, t)
	if err != nil {
		return mgl64.Mat4{}, errors.Wrap(err, "cannot look up imu extrinsics")
	}
	return tWorldImu.Mul4(tImuBaselink), nil
}

// GetState returns a copy of the start state, or nil before SetStart.
func (s *Session) GetState() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anchor == nil {
		return nil
	}
	return s.anchor.Clone()
}

// UpdateState adopts optimizer results. When values hold the start state they are copied in;
// when they hold the start of the last factor, the start state is repropagated from them with the
// stored delta. It returns false if neither state is covered.
func (s *Session) UpdateState(values factorgraph.Values) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anchor == nil {
		return false
	}
	if s.anchor.Update(values) {
		s.logger.Debugw("start state updated from optimizer", "state", s.anchor)
		return true
	}
	if s.previous == nil || s.lastDelta == nil || !s.previous.Update(values) {
		return false
	}
	moved := Repropagate(s.lastDelta, s.previous, s.gravity, s.previous.gyroBias, s.previous.accelBias)
	s.anchor.orientation = moved.orientation
	s.anchor.position = moved.position
	s.anchor.velocity = moved.velocity
	s.anchor.gyroBias = moved.gyroBias
	s.anchor.accelBias = moved.accelBias
	s.logger.Debugw("start state repropagated from optimized predecessor", "state", s.anchor)
	return true
}
