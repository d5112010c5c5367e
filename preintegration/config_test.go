package preintegration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	test.That(t, cfg.Validate("path"), test.ShouldBeNil)
	test.That(t, cfg.GravityVector(), test.ShouldResemble, r3.Vector{Z: -9.81})

	cfg.Gravity = []float64{0, -9.8, 0}
	test.That(t, cfg.GravityVector(), test.ShouldResemble, r3.Vector{Y: -9.8})

	cfg = NewDefaultConfig()
	cfg.GravitationalAcceleration = 0
	err := cfg.Validate("path")
	var confErr *ConfigurationError
	test.That(t, errors.As(err, &confErr), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "gravity")

	cfg = NewDefaultConfig()
	cfg.GyroNoiseDensity = 0
	cfg.AccelBiasRandomWalk = -1
	cfg.InitialGyroBias = []float64{1, 2}
	err = cfg.Validate("path")
	test.That(t, errors.As(err, &confErr), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "gyro_noise_density")
	test.That(t, err.Error(), test.ShouldContainSubstring, "accel_bias_random_walk")
	test.That(t, err.Error(), test.ShouldContainSubstring, "initial_gyro_bias")

	_, err = NewSession(cfg, nil)
	test.That(t, errors.As(err, &confErr), test.ShouldBeTrue)
}

func TestFromAttributes(t *testing.T) {
	cfg, err := FromAttributes(map[string]interface{}{
		"source":             "left_imu",
		"gyro_noise_density": 0.01,
		"initial_gyro_bias":  []float64{0.1, 0.2, 0.3},
		"prior_covariance":   1e-6,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Source, test.ShouldEqual, "left_imu")
	test.That(t, cfg.GyroNoiseDensity, test.ShouldEqual, 0.01)
	test.That(t, cfg.AccelNoiseDensity, test.ShouldEqual, NewDefaultConfig().AccelNoiseDensity)
	gyro, accel := cfg.InitialBiases()
	test.That(t, gyro, test.ShouldResemble, r3.Vector{X: 0.1, Y: 0.2, Z: 0.3})
	test.That(t, accel, test.ShouldResemble, r3.Vector{})
	test.That(t, cfg.priorCovariance(), test.ShouldEqual, 1e-6)

	_, err = FromAttributes(map[string]interface{}{"gyro_noise_density": "loud"})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromAttributes(map[string]interface{}{"gyro_noise_density": -0.01})
	var confErr *ConfigurationError
	test.That(t, errors.As(err, &confErr), test.ShouldBeTrue)
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preint.json")
	data := `{"source": "imu_link", "gravity": [0, 0, -9.80665], "accel_noise_density": 0.02, "buffer_duration_sec": 5}`
	test.That(t, os.WriteFile(path, []byte(data), 0o600), test.ShouldBeNil)

	cfg, err := ReadConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.source(), test.ShouldEqual, "imu_link")
	test.That(t, cfg.GravityVector(), test.ShouldResemble, r3.Vector{Z: -9.80665})
	test.That(t, cfg.AccelNoiseDensity, test.ShouldEqual, 0.02)
	test.That(t, cfg.bufferDurationSec(), test.ShouldEqual, 5.0)
	imu, base := cfg.frames()
	test.That(t, imu, test.ShouldEqual, "imu")
	test.That(t, base, test.ShouldEqual, "base_link")

	_, err = ReadConfig(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	bad := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"gravity": [1, 2]}`), 0o600), test.ShouldBeNil)
	_, err = ReadConfig(bad)
	var confErr *ConfigurationError
	test.That(t, errors.As(err, &confErr), test.ShouldBeTrue)
}
