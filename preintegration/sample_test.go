package preintegration

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"go.viam.com/test"

	"go.viam.com/preintegration/logging"
)

func sampleAt(sec float64) Sample {
	return Sample{Time: at(sec), AngularVelocity: r3.Vector{X: sec}, LinearAcceleration: r3.Vector{Z: 9.81 + sec}}
}

func TestSampleBuffer(t *testing.T) {
	var b sampleBuffer
	for _, sec := range []float64{0, 0.1, 0.2, 0.3, 0.4} {
		b.append(sampleAt(sec))
	}
	test.That(t, len(b.window(at(0.1), at(0.3))), test.ShouldEqual, 3)
	test.That(t, len(b.window(at(0.15), at(0.19))), test.ShouldEqual, 0)

	span := b.span(at(0.15), at(0.35))
	test.That(t, len(span), test.ShouldEqual, 4)
	test.That(t, span[0].Time.Equal(at(0.15)), test.ShouldBeTrue)
	test.That(t, span[0].AngularVelocity.X, test.ShouldAlmostEqual, 0.15, 1e-12)
	test.That(t, span[3].Time.Equal(at(0.35)), test.ShouldBeTrue)
	test.That(t, span[3].LinearAcceleration.Z, test.ShouldAlmostEqual, 9.81+0.35, 1e-12)

	// a window between two samples gets both boundaries interpolated
	span = b.span(at(0.12), at(0.18))
	test.That(t, len(span), test.ShouldEqual, 2)
	test.That(t, span[1].AngularVelocity.X, test.ShouldAlmostEqual, 0.18, 1e-12)

	// nothing to interpolate from past the newest sample
	span = b.span(at(0.3), at(1))
	test.That(t, len(span), test.ShouldEqual, 2)

	b.pruneBefore(at(0.25))
	oldest, ok := b.oldest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, oldest.Time.Equal(at(0.2)), test.ShouldBeTrue)
	test.That(t, b.len(), test.ShouldEqual, 3)

	b.pruneBefore(at(0.2))
	test.That(t, b.len(), test.ShouldEqual, 3)
}

func TestPopulateBufferRejects(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := NewSession(NewDefaultConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Status(), test.ShouldEqual, StatusUninitialized)

	// samples may arrive before the start is known
	test.That(t, s.PopulateBuffer(sampleAt(0.9)), test.ShouldBeNil)
	s.SetStart(at(1))
	test.That(t, s.Status(), test.ShouldEqual, StatusStarted)
	for _, sec := range []float64{1, 1.1, 1.2} {
		test.That(t, s.PopulateBuffer(sampleAt(sec)), test.ShouldBeNil)
	}
	test.That(t, s.Status(), test.ShouldEqual, StatusAccumulating)
	before := s.GetState()
	bufferLen := s.buffer.len()

	var orderErr *OrderingError
	test.That(t, errors.As(s.PopulateBuffer(sampleAt(1.15)), &orderErr), test.ShouldBeTrue)
	test.That(t, orderErr.Reference.Equal(at(1.2)), test.ShouldBeTrue)
	test.That(t, errors.As(s.PopulateBuffer(sampleAt(0.5)), &orderErr), test.ShouldBeTrue)
	test.That(t, orderErr.Reference.Equal(at(1)), test.ShouldBeTrue)

	var numErr *NumericalError
	nan := sampleAt(1.3)
	nan.LinearAcceleration.Y = math.Inf(1)
	test.That(t, errors.As(s.PopulateBuffer(nan), &numErr), test.ShouldBeTrue)

	test.That(t, s.buffer.len(), test.ShouldEqual, bufferLen)
	test.That(t, s.GetState(), test.ShouldResemble, before)
	test.That(t, logs.FilterLevelExact(zapcore.WarnLevel).Len(), test.ShouldEqual, 3)

	// a repeated stamp is dropped quietly
	test.That(t, s.PopulateBuffer(sampleAt(1.2)), test.ShouldBeNil)
	test.That(t, s.buffer.len(), test.ShouldEqual, bufferLen)
	test.That(t, logs.FilterLevelExact(zapcore.WarnLevel).Len(), test.ShouldEqual, 3)
}

func TestBufferDuration(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.BufferDurationSec = 1
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := NewSession(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	for i := 0; i <= 30; i++ {
		test.That(t, s.PopulateBuffer(sampleAt(float64(i)*0.1)), test.ShouldBeNil)
	}
	oldest, _ := s.buffer.oldest()
	// one sample before the cutoff survives for interpolation
	test.That(t, oldest.Time.Equal(at(1.9)), test.ShouldBeTrue)
	test.That(t, logs.FilterLevelExact(zapcore.WarnLevel).Len(), test.ShouldEqual, 0)

	// the open window outgrows the buffer duration but keeps its samples
	s.SetStart(at(2.5))
	for i := 31; i <= 50; i++ {
		test.That(t, s.PopulateBuffer(sampleAt(float64(i)*0.1)), test.ShouldBeNil)
	}
	oldest, _ = s.buffer.oldest()
	test.That(t, oldest.Time.Equal(at(2.4)), test.ShouldBeTrue)
	test.That(t, logs.FilterMessageSnippet("exceeds the buffer duration").Len(), test.ShouldEqual, 1)

	_, err = s.RegisterNewFactor(at(5))
	test.That(t, err, test.ShouldBeNil)
	oldest, _ = s.buffer.oldest()
	test.That(t, oldest.Time.Equal(at(4.9)), test.ShouldBeTrue)

	for i := 51; i <= 70; i++ {
		test.That(t, s.PopulateBuffer(sampleAt(float64(i)*0.1)), test.ShouldBeNil)
	}
	oldest, _ = s.buffer.oldest()
	test.That(t, oldest.Time.Equal(at(4.9)), test.ShouldBeTrue)
	test.That(t, logs.FilterMessageSnippet("exceeds the buffer duration").Len(), test.ShouldEqual, 2)
}

func TestLongWindowKeepsSamples(t *testing.T) {
	s, err := NewSession(nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	s.SetStart(at(0))
	for i := 0; i <= 1200; i++ {
		test.That(t, s.PopulateBuffer(sampleAt(float64(i)*0.01)), test.ShouldBeNil)
	}
	oldest, _ := s.buffer.oldest()
	test.That(t, oldest.Time.After(at(0)), test.ShouldBeFalse)

	want, err := s.PredictAt(at(1))
	test.That(t, err, test.ShouldBeNil)
	tx, err := s.RegisterNewFactor(at(1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(tx.AddedVariables), test.ShouldEqual, 10)
	vectorsAlmostEqual(t, s.GetState().Position(), want.Position(), 1e-12)
}

func TestRegisterNewFactorNeedsNewSamples(t *testing.T) {
	s, err := NewSession(nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	s.SetStart(at(0))
	for _, sec := range []float64{0, 0.5, 1} {
		test.That(t, s.PopulateBuffer(sampleAt(sec)), test.ShouldBeNil)
	}
	_, err = s.RegisterNewFactor(at(1))
	test.That(t, err, test.ShouldBeNil)

	// only the sample closing the previous window is buffered
	_, err = s.RegisterNewFactor(at(61))
	test.That(t, errors.Is(err, ErrEmptyBuffer), test.ShouldBeTrue)
	test.That(t, s.GetState().Stamp().Equal(at(1)), test.ShouldBeTrue)

	// rates are not held past the newest sample
	test.That(t, s.PopulateBuffer(sampleAt(1.5)), test.ShouldBeNil)
	_, err = s.RegisterNewFactor(at(2))
	test.That(t, errors.Is(err, ErrEmptyBuffer), test.ShouldBeTrue)
	test.That(t, s.GetState().Stamp().Equal(at(1)), test.ShouldBeTrue)

	test.That(t, s.PopulateBuffer(sampleAt(2)), test.ShouldBeNil)
	_, err = s.RegisterNewFactor(at(2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.GetState().Stamp().Equal(at(2)), test.ShouldBeTrue)
}

func TestRegisterNewFactorDiverges(t *testing.T) {
	s, err := NewSession(nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	s.SetStart(at(0))
	test.That(t, s.PopulateBuffer(sampleAt(0.5)), test.ShouldBeNil)
	test.That(t, s.PopulateBuffer(Sample{Time: at(1), LinearAcceleration: r3.Vector{X: 1e200}}), test.ShouldBeNil)

	before := s.GetState()
	_, err = s.RegisterNewFactor(at(1))
	var numErr *NumericalError
	test.That(t, errors.As(err, &numErr), test.ShouldBeTrue)
	test.That(t, s.GetState(), test.ShouldResemble, before)
	test.That(t, s.Status(), test.ShouldEqual, StatusAccumulating)

	// once valid samples follow, re-anchoring past the bad one lets factors through again
	for i := 11; i <= 20; i++ {
		test.That(t, s.PopulateBuffer(sampleAt(float64(i)*0.1)), test.ShouldBeNil)
	}
	s.SetStart(at(1.5), WithSeedPosition(before.Position()), WithSeedVelocity(before.Velocity()))
	tx, err := s.RegisterNewFactor(at(2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(tx.AddedVariables), test.ShouldEqual, 10)
	test.That(t, s.GetState().Stamp().Equal(at(2)), test.ShouldBeTrue)
}

func TestRegisterNewFactorErrors(t *testing.T) {
	s, err := NewSession(nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = s.RegisterNewFactor(at(1))
	test.That(t, errors.Is(err, ErrNotStarted), test.ShouldBeTrue)
	_, err = s.GetPose(at(1))
	test.That(t, errors.Is(err, ErrNotStarted), test.ShouldBeTrue)
	test.That(t, s.GetState(), test.ShouldBeNil)
	test.That(t, s.UpdateState(nil), test.ShouldBeFalse)

	s.SetStart(at(1))
	_, err = s.RegisterNewFactor(at(2))
	test.That(t, errors.Is(err, ErrEmptyBuffer), test.ShouldBeTrue)

	var orderErr *OrderingError
	_, err = s.RegisterNewFactor(at(1))
	test.That(t, errors.As(err, &orderErr), test.ShouldBeTrue)

	test.That(t, s.PopulateBuffer(sampleAt(3)), test.ShouldBeNil)
	_, err = s.RegisterNewFactor(at(2))
	test.That(t, errors.Is(err, ErrEmptyBuffer), test.ShouldBeTrue)

	_, err = s.GetPose(at(0.5))
	test.That(t, errors.Is(err, ErrPoseUnavailable), test.ShouldBeTrue)
	_, err = s.GetPose(at(3.5))
	test.That(t, errors.Is(err, ErrPoseUnavailable), test.ShouldBeTrue)
	_, err = s.GetBaselinkPose(at(2))
	test.That(t, err, test.ShouldNotBeNil)

	tx, err := s.RegisterNewFactor(at(3))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(tx.AddedVariables), test.ShouldEqual, 10)
	test.That(t, s.GetState().Stamp().Equal(at(3)), test.ShouldBeTrue)
}

func TestStatusString(t *testing.T) {
	test.That(t, StatusFactorReady.String(), test.ShouldEqual, "factor_ready")
	test.That(t, Status(42).String(), test.ShouldEqual, "unknown")
}
