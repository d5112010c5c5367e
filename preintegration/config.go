package preintegration

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

const (
	defaultGravitationalAcceleration = 9.81
	defaultPriorCovariance           = 1e-9
	defaultBufferDurationSec         = 10.0
	defaultSource                    = "imu"
	defaultImuFrame                  = "imu"
	defaultBaselinkFrame             = "base_link"
)

// Config describes the noise model, gravity and bookkeeping of a preintegration Session.
type Config struct {
	Source string `json:"source"`

	// Gravity is the full gravity vector in the world frame. When unset, gravity points along -z
	// with magnitude GravitationalAcceleration.
	Gravity                   []float64 `json:"gravity,omitempty"`
	GravitationalAcceleration float64   `json:"gravitational_acceleration,omitempty"`

	// Continuous-time noise densities.
	GyroNoiseDensity    float64 `json:"gyro_noise_density"`
	AccelNoiseDensity   float64 `json:"accel_noise_density"`
	GyroBiasRandomWalk  float64 `json:"gyro_bias_random_walk"`
	AccelBiasRandomWalk float64 `json:"accel_bias_random_walk"`

	InitialGyroBias  []float64 `json:"initial_gyro_bias,omitempty"`
	InitialAccelBias []float64 `json:"initial_accel_bias,omitempty"`

	PriorCovariance   float64 `json:"prior_covariance,omitempty"`
	BufferDurationSec float64 `json:"buffer_duration_sec,omitempty"`

	ImuFrame      string `json:"imu_frame,omitempty"`
	BaselinkFrame string `json:"baselink_frame,omitempty"`
}

// NoiseParams are the continuous-time noise densities used to propagate covariance.
type NoiseParams struct {
	GyroNoise     float64
	AccelNoise    float64
	GyroBiasWalk  float64
	AccelBiasWalk float64
}

// NewDefaultConfig returns a Config with the noise figures of a typical MEMS IMU.
func NewDefaultConfig() *Config {
	return &Config{
		Source:                    defaultSource,
		GravitationalAcceleration: defaultGravitationalAcceleration,
		GyroNoiseDensity:          1.7e-4,
		AccelNoiseDensity:         2.0e-3,
		GyroBiasRandomWalk:        1.9e-5,
		AccelBiasRandomWalk:       3.0e-3,
		PriorCovariance:           defaultPriorCovariance,
		BufferDurationSec:         defaultBufferDurationSec,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	var errs error
	if len(cfg.Gravity) == 0 && cfg.GravitationalAcceleration == 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "gravity"))
	}
	if len(cfg.Gravity) != 0 && len(cfg.Gravity) != 3 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("gravity must have 3 components, got %d", len(cfg.Gravity))))
	}
	if cfg.GravitationalAcceleration < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.New("gravitational_acceleration cannot be negative")))
	}
	for name, v := range map[string]float64{
		"gyro_noise_density":     cfg.GyroNoiseDensity,
		"accel_noise_density":    cfg.AccelNoiseDensity,
		"gyro_bias_random_walk":  cfg.GyroBiasRandomWalk,
		"accel_bias_random_walk": cfg.AccelBiasRandomWalk,
	} {
		if v == 0 {
			errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, name))
		} else if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = multierr.Append(errs, utils.NewConfigValidationError(path,
				errors.Errorf("%s must be positive and finite, got %v", name, v)))
		}
	}
	for name, b := range map[string][]float64{
		"initial_gyro_bias":  cfg.InitialGyroBias,
		"initial_accel_bias": cfg.InitialAccelBias,
	} {
		if len(b) != 0 && len(b) != 3 {
			errs = multierr.Append(errs, utils.NewConfigValidationError(path,
				errors.Errorf("%s must have 3 components, got %d", name, len(b))))
		}
	}
	if cfg.PriorCovariance < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.New("prior_covariance cannot be negative")))
	}
	if cfg.BufferDurationSec < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.New("buffer_duration_sec cannot be negative")))
	}
	if errs != nil {
		return &ConfigurationError{Err: errs}
	}
	return nil
}

// GravityVector returns gravity in the world frame.
func (cfg *Config) GravityVector() r3.Vector {
	if len(cfg.Gravity) == 3 {
		return r3.Vector{X: cfg.Gravity[0], Y: cfg.Gravity[1], Z: cfg.Gravity[2]}
	}
	g := cfg.GravitationalAcceleration
	if g == 0 {
		g = defaultGravitationalAcceleration
	}
	return r3.Vector{Z: -g}
}

// Noise returns the noise densities of the config.
func (cfg *Config) Noise() NoiseParams {
	return NoiseParams{
		GyroNoise:     cfg.GyroNoiseDensity,
		AccelNoise:    cfg.AccelNoiseDensity,
		GyroBiasWalk:  cfg.GyroBiasRandomWalk,
		AccelBiasWalk: cfg.AccelBiasRandomWalk,
	}
}

// InitialBiases returns the configured gyroscope and accelerometer bias estimates.
func (cfg *Config) InitialBiases() (gyro, accel r3.Vector) {
	return vectorFromSlice(cfg.InitialGyroBias), vectorFromSlice(cfg.InitialAccelBias)
}

func (cfg *Config) priorCovariance() float64 {
	if cfg.PriorCovariance == 0 {
		return defaultPriorCovariance
	}
	return cfg.PriorCovariance
}

func (cfg *Config) bufferDurationSec() float64 {
	if cfg.BufferDurationSec == 0 {
		return defaultBufferDurationSec
	}
	return cfg.BufferDurationSec
}

func (cfg *Config) source() string {
	if cfg.Source == "" {
		return defaultSource
	}
	return cfg.Source
}

func (cfg *Config) frames() (imu, baselink string) {
	imu, baselink = cfg.ImuFrame, cfg.BaselinkFrame
	if imu == "" {
		imu = defaultImuFrame
	}
	if baselink == "" {
		baselink = defaultBaselinkFrame
	}
	return imu, baselink
}

func vectorFromSlice(v []float64) r3.Vector {
	if len(v) != 3 {
		return r3.Vector{}
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// FromAttributes decodes a generic attribute map, as found in robot or module configs, into a
// validated Config. Unset fields keep the defaults of NewDefaultConfig.
func FromAttributes(attrs map[string]interface{}) (*Config, error) {
	conf := NewDefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: conf})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(err, "cannot decode preintegration attributes")
	}
	if err := conf.Validate("preintegration"); err != nil {
		return nil, err
	}
	return conf, nil
}

// ReadConfig reads a JSON config file and validates it. Unset fields keep the defaults of
// NewDefaultConfig.
func ReadConfig(path string) (*Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}
	conf := NewDefaultConfig()
	if err := json.Unmarshal(data, conf); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", path)
	}
	if err := conf.Validate(fmt.Sprintf("config(%s)", filepath.Base(path))); err != nil {
		return nil, err
	}
	return conf, nil
}
