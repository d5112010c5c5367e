package imusource

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/preintegration/logging"
	"go.viam.com/preintegration/preintegration"
)

const standardGravity = 9.80665

// Scale converts raw sensor counts to SI units.
type Scale struct {
	// Accel is m/s² per count.
	Accel float64 `json:"accel"`
	// Gyro is rad/s per count.
	Gyro float64 `json:"gyro"`
}

// DefaultScale matches an MPU style IMU at ±2 g and ±250 °/s full scale.
var DefaultScale = Scale{
	Accel: standardGravity / 16384,
	Gyro:  math.Pi / 180 / 131,
}

// RawSample is a raw reading as published by inertial sensor bridges. Time is optional unix
// seconds; readings without it are stamped on receipt.
type RawSample struct {
	Source string   `json:"source"`
	Time   *float64 `json:"time,omitempty"`

	Ax int16 `json:"ax"`
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"`
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Mx int16 `json:"mx"`
	My int16 `json:"my"`
	Mz int16 `json:"mz"`
}

// DecodeRaw parses a RawSample JSON payload into a Sample.
func DecodeRaw(payload []byte, scale Scale, received time.Time) (preintegration.Sample, error) {
	var raw RawSample
	if err := json.Unmarshal(payload, &raw); err != nil {
		return preintegration.Sample{}, errors.Wrap(err, "cannot decode raw imu sample")
	}
	return raw.Sample(scale, received), nil
}

// Sample converts the counts to SI units. received stamps readings that carry no time.
func (raw RawSample) Sample(scale Scale, received time.Time) preintegration.Sample {
	stamp := received
	if raw.Time != nil {
		whole, frac := math.Modf(*raw.Time)
		stamp = time.Unix(int64(whole), int64(math.Round(frac*1e9)))
	}
	return preintegration.Sample{
		Time: stamp,
		AngularVelocity: r3.Vector{
			X: float64(raw.Gx) * scale.Gyro,
			Y: float64(raw.Gy) * scale.Gyro,
			Z: float64(raw.Gz) * scale.Gyro,
		},
		LinearAcceleration: r3.Vector{
			X: float64(raw.Ax) * scale.Accel,
			Y: float64(raw.Ay) * scale.Accel,
			Z: float64(raw.Az) * scale.Accel,
		},
	}
}

// A SampleHandler consumes decoded samples. Session.PopulateBuffer is one.
type SampleHandler func(preintegration.Sample) error

// MQTTConfig describes where raw samples are published.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
	// Source filters messages by their source field when set.
	Source string `json:"source,omitempty"`
	Scale  Scale  `json:"scale"`
}

// MQTTSource subscribes to raw IMU samples and hands them to a SampleHandler in arrival order.
type MQTTSource struct {
	cfg     MQTTConfig
	handler SampleHandler
	logger  logging.Logger
	clock   clock.Clock

	mu       sync.Mutex
	client   mqtt.Client
	accepted atomic.Int64
	rejected atomic.Int64
}

// NewMQTTSource returns an unconnected source. A zero scale uses DefaultScale.
func NewMQTTSource(cfg MQTTConfig, handler SampleHandler, logger logging.Logger) (*MQTTSource, error) {
	return newMQTTSourceWithClock(cfg, handler, logger, clock.New())
}

func newMQTTSourceWithClock(
	cfg MQTTConfig,
	handler SampleHandler,
	logger logging.Logger,
	clk clock.Clock,
) (*MQTTSource, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt source needs a broker address")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt source needs a topic")
	}
	if handler == nil {
		return nil, errors.New("mqtt source needs a sample handler")
	}
	if cfg.Scale == (Scale{}) {
		cfg.Scale = DefaultScale
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "preintegration-imu"
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &MQTTSource{cfg: cfg, handler: handler, logger: logger, clock: clk}, nil
}

// Start connects to the broker and subscribes. ctx bounds the connection and subscription.
func (src *MQTTSource) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(src.cfg.Broker).
		SetClientID(src.cfg.ClientID).
		SetOrderMatters(true).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return errors.Wrapf(err, "cannot connect to mqtt broker %s", src.cfg.Broker)
	}
	if err := waitToken(ctx, client.Subscribe(src.cfg.Topic, src.cfg.QoS, src.handleMessage)); err != nil {
		client.Disconnect(250)
		return errors.Wrapf(err, "cannot subscribe to %s", src.cfg.Topic)
	}
	src.mu.Lock()
	src.client = client
	src.mu.Unlock()
	src.logger.Infow("subscribed to imu samples", "broker", src.cfg.Broker, "topic", src.cfg.Topic)
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (src *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw RawSample
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		src.logger.Warnw("dropping undecodable imu message", "topic", msg.Topic(), "error", err)
		src.rejected.Inc()
		return
	}
	if src.cfg.Source != "" && raw.Source != src.cfg.Source {
		return
	}
	if err := src.handler(raw.Sample(src.cfg.Scale, src.clock.Now())); err != nil {
		src.logger.Debugw("imu sample rejected", "error", err)
		src.rejected.Inc()
		return
	}
	src.accepted.Inc()
}

// Stats returns how many samples were accepted and rejected so far.
func (src *MQTTSource) Stats() (accepted, rejected int) {
	return int(src.accepted.Load()), int(src.rejected.Load())
}

// Close unsubscribes and disconnects.
func (src *MQTTSource) Close() error {
	src.mu.Lock()
	client := src.client
	src.client = nil
	src.mu.Unlock()
	if client == nil {
		return nil
	}
	token := client.Unsubscribe(src.cfg.Topic)
	token.WaitTimeout(time.Second)
	client.Disconnect(250)
	return token.Error()
}
