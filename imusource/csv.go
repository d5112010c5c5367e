// Package imusource produces IMU samples for a preintegration Session from recorded files and
// live message brokers.
package imusource

import (
	"encoding/csv"
	"io"
	"iter"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/preintegration/preintegration"
)

// CSVColumns is the column order of a sample file: time in unix seconds, angular velocity in
// rad/s then linear acceleration in m/s², all in the IMU frame.
var CSVColumns = []string{"time", "gx", "gy", "gz", "ax", "ay", "az"}

// ReadCSV iterates over the samples in r. Lines starting with '#' are comments and a first row
// that does not parse as numbers is taken as a header. Iteration stops after the first error.
func ReadCSV(r io.Reader) iter.Seq2[preintegration.Sample, error] {
	return func(yield func(preintegration.Sample, error) bool) {
		reader := csv.NewReader(r)
		reader.Comment = '#'
		reader.FieldsPerRecord = len(CSVColumns)
		reader.TrimLeadingSpace = true
		for row := 0; ; row++ {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(preintegration.Sample{}, errors.Wrap(err, "reading imu csv"))
				return
			}
			sample, err := parseRecord(record)
			if err != nil {
				if row == 0 {
					continue
				}
				line, _ := reader.FieldPos(0)
				yield(preintegration.Sample{}, errors.Wrapf(err, "imu csv line %d", line))
				return
			}
			if !yield(sample, nil) {
				return
			}
		}
	}
}

func parseRecord(record []string) (preintegration.Sample, error) {
	stamp, err := parseUnixSeconds(strings.TrimSpace(record[0]))
	if err != nil {
		return preintegration.Sample{}, errors.Wrapf(err, "column %s", CSVColumns[0])
	}
	var vals [7]float64
	for i := 1; i < len(record); i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return preintegration.Sample{}, errors.Wrapf(err, "column %s", CSVColumns[i])
		}
		vals[i] = v
	}
	return preintegration.Sample{
		Time:               stamp,
		AngularVelocity:    r3.Vector{X: vals[1], Y: vals[2], Z: vals[3]},
		LinearAcceleration: r3.Vector{X: vals[4], Y: vals[5], Z: vals[6]},
	}, nil
}

// parseUnixSeconds reads decimal unix seconds without going through a float so nanosecond stamps
// survive. Exponent notation falls back to float parsing.
func parseUnixSeconds(field string) (time.Time, error) {
	if strings.ContainsAny(field, "eE") {
		sec, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return time.Time{}, err
		}
		whole, frac := math.Modf(sec)
		return time.Unix(int64(whole), int64(math.Round(frac*1e9))), nil
	}
	whole, frac, _ := strings.Cut(field, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	var nsec int64
	if frac != "" {
		if nsec, err = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64); err != nil {
			return time.Time{}, err
		}
	}
	if strings.HasPrefix(whole, "-") {
		nsec = -nsec
	}
	return time.Unix(sec, nsec), nil
}

// timeToSeconds formats t as signed decimal seconds with nanosecond precision.
func timeToSeconds(t time.Time) string {
	sec, nsec := t.Unix(), int64(t.Nanosecond())
	neg := sec < 0
	if neg {
		if nsec > 0 {
			sec, nsec = sec+1, 1e9-nsec
		}
		sec = -sec
	}
	out := strconv.FormatInt(sec, 10) + "." + strconv.FormatInt(nsec+1e9, 10)[1:]
	if neg {
		return "-" + out
	}
	return out
}

// CSVFile is a restartable sample stream backed by a file: every iteration reopens it.
type CSVFile string

// Samples iterates over the samples of the file.
func (f CSVFile) Samples() iter.Seq2[preintegration.Sample, error] {
	return func(yield func(preintegration.Sample, error) bool) {
		//nolint:gosec
		file, err := os.Open(string(f))
		if err != nil {
			yield(preintegration.Sample{}, errors.Wrapf(err, "opening imu csv %q", string(f)))
			return
		}
		//nolint:errcheck
		defer file.Close()
		for sample, err := range ReadCSV(file) {
			if !yield(sample, err) {
				return
			}
		}
	}
}

// WriteCSV writes samples with a header row in the format ReadCSV reads.
func WriteCSV(w io.Writer, samples iter.Seq[preintegration.Sample]) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVColumns); err != nil {
		return err
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for s := range samples {
		err := writer.Write([]string{
			timeToSeconds(s.Time),
			format(s.AngularVelocity.X), format(s.AngularVelocity.Y), format(s.AngularVelocity.Z),
			format(s.LinearAcceleration.X), format(s.LinearAcceleration.Y), format(s.LinearAcceleration.Z),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes samples to a new file at path.
func WriteCSVFile(path string, samples iter.Seq[preintegration.Sample]) (err error) {
	//nolint:gosec
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, file.Close())
	}()
	return WriteCSV(file, samples)
}
