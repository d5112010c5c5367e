package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/preintegration/factorgraph"
	"go.viam.com/preintegration/imusource"
	"go.viam.com/preintegration/logging"
	"go.viam.com/preintegration/preintegration"
	"go.viam.com/preintegration/testutils"
)

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	start := time.Unix(1700000000, 0)
	samples := testutils.NewTrajectory(start).Samples(5*time.Millisecond, 3*time.Second)
	imuPath := filepath.Join(dir, "imu.csv")
	test.That(t, imusource.WriteCSVFile(imuPath, slices.Values(samples)), test.ShouldBeNil)
	outPath := filepath.Join(dir, "tx.log")
	plotPath := filepath.Join(dir, "track.png")

	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run([]string{
		"preintegrate", "replay", "--imu", imuPath, "--window", "500ms", "--out", outPath, "--plot", plotPath,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "registered 6 factors")
	test.That(t, out.String(), test.ShouldContainSubstring, "X:0.000, Y:0.000, Z:0.000")

	//nolint:gosec
	f, err := os.Open(outPath)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	count := 0
	for tx, err := range factorgraph.ReadTransactions(f) {
		test.That(t, err, test.ShouldBeNil)
		count++
		test.That(t, tx.Stamp.Equal(start.Add(time.Duration(count)*500*time.Millisecond)), test.ShouldBeTrue)
	}
	test.That(t, count, test.ShouldEqual, 6)

	info, err := os.Stat(plotPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)

	err = NewApp(&out, &errOut).Run([]string{"preintegrate", "replay", "--imu", filepath.Join(dir, "missing.csv")})
	test.That(t, err, test.ShouldNotBeNil)
	err = NewApp(&out, &errOut).Run([]string{"preintegrate", "replay", "--imu", imuPath, "--window", "0s"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReplayConfig(t *testing.T) {
	dir := t.TempDir()
	badConfig := testutils.WriteTempFile(t, "bad.json", []byte(`{"gyro_noise_density": -1}`))
	imuPath := filepath.Join(dir, "imu.csv")
	test.That(t, imusource.WriteCSVFile(imuPath, slices.Values([]preintegration.Sample{})), test.ShouldBeNil)

	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run([]string{"preintegrate", "--config", badConfig, "replay", "--imu", imuPath})
	test.That(t, err, test.ShouldNotBeNil)

	err = NewApp(&out, &errOut).Run([]string{"preintegrate", "replay", "--imu", imuPath})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "registered 0 factors")
}

func TestWindower(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	session, err := preintegration.NewSession(nil, logger)
	test.That(t, err, test.ShouldBeNil)
	w := &windower{session: session, logger: logger, window: time.Second}

	start := time.Unix(10, 0)
	samples := testutils.NewTrajectory(start).Samples(10*time.Millisecond, 2500*time.Millisecond)
	for _, s := range samples {
		test.That(t, w.add(s), test.ShouldBeNil)
	}
	test.That(t, w.factors, test.ShouldEqual, 2)
	test.That(t, len(w.track), test.ShouldEqual, 3)
	test.That(t, w.next.Equal(start.Add(3*time.Second)), test.ShouldBeTrue)

	// windows without samples inside are skipped and the next factor spans the gap
	gap := testutils.NewTrajectory(start).Sample(start.Add(5500 * time.Millisecond))
	test.That(t, w.add(gap), test.ShouldBeNil)
	test.That(t, w.factors, test.ShouldEqual, 3)
	test.That(t, logs.FilterMessageSnippet("skipping window").Len(), test.ShouldEqual, 2)
	test.That(t, w.next.Equal(start.Add(6*time.Second)), test.ShouldBeTrue)

	test.That(t, w.add(samples[0]), test.ShouldNotBeNil)
}
