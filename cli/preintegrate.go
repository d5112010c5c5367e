package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/preintegration/factorgraph"
	"go.viam.com/preintegration/imusource"
	"go.viam.com/preintegration/logging"
	"go.viam.com/preintegration/preintegration"
)

func loggerFromFlags(c *cli.Context) logging.Logger {
	if c.Bool(flagDebug) {
		return logging.NewDebugLogger("preintegrate")
	}
	return logging.NewLogger("preintegrate")
}

func configFromFlags(c *cli.Context) (*preintegration.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return preintegration.NewDefaultConfig(), nil
	}
	return preintegration.ReadConfig(path)
}

// windower anchors a session at the first sample and registers a factor each time the samples
// cross a window boundary.
type windower struct {
	session *preintegration.Session
	logger  logging.Logger
	window  time.Duration

	started bool
	next    time.Time
	factors int
	track   []*preintegration.State
}

func (w *windower) add(sample preintegration.Sample) error {
	if !w.started {
		w.session.SetStart(sample.Time)
		w.next = sample.Time.Add(w.window)
		w.started = true
		w.track = append(w.track, w.session.GetState())
	}
	if err := w.session.PopulateBuffer(sample); err != nil {
		return err
	}
	for !sample.Time.Before(w.next) {
		if _, err := w.session.RegisterNewFactor(w.next); err != nil {
			w.logger.Warnw("skipping window", "end", w.next, "error", err)
		} else {
			w.factors++
			w.track = append(w.track, w.session.GetState())
		}
		w.next = w.next.Add(w.window)
	}
	return nil
}

type runState struct {
	session *preintegration.Session
	windows *windower
	txLog   *factorgraph.TransactionLog
}

func newRun(c *cli.Context, logger logging.Logger) (*runState, error) {
	if c.Duration(flagWindow) <= 0 {
		return nil, errors.Errorf("--%s must be positive", flagWindow)
	}
	cfg, err := configFromFlags(c)
	if err != nil {
		return nil, err
	}
	var opts []preintegration.SessionOption
	var txLog *factorgraph.TransactionLog
	if out := c.String(flagOut); out != "" {
		txLog = factorgraph.NewTransactionLog(&lumberjack.Logger{
			Filename:   out,
			MaxSize:    1024,
			MaxBackups: 2,
		})
		opts = append(opts, preintegration.WithTransactionSink(txLog))
	}
	session, err := preintegration.NewSession(cfg, logger.Sublogger("session"), opts...)
	if err != nil {
		return nil, multierr.Combine(err, closeLog(txLog))
	}
	return &runState{
		session: session,
		txLog:   txLog,
		windows: &windower{session: session, logger: logger, window: c.Duration(flagWindow)},
	}, nil
}

func closeLog(txLog *factorgraph.TransactionLog) error {
	if txLog == nil {
		return nil
	}
	return txLog.Close()
}

func (r *runState) finish(c *cli.Context) error {
	err := closeLog(r.txLog)
	if path := c.String(flagPlot); path != "" {
		err = multierr.Combine(err, plotTrack(path, r.windows.track))
	}
	if err != nil {
		return err
	}
	if len(r.windows.track) > 0 {
		fmt.Fprintln(c.App.Writer, trackTable(r.windows.track))
	}
	fmt.Fprintf(c.App.Writer, "registered %d factors\n", r.windows.factors)
	return nil
}

// trackTable prints one row per window boundary state.
func trackTable(track []*preintegration.State) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Stamp", "Position", "Velocity", "Gyro bias", "Accel bias"})
	vec := func(x, y, z float64) string { return fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", x, y, z) }
	for i, s := range track {
		p, v, bg, ba := s.Position(), s.Velocity(), s.GyroBias(), s.AccelBias()
		t.AppendRow(table.Row{
			i,
			s.Stamp().Format(time.RFC3339Nano),
			vec(p.X, p.Y, p.Z),
			vec(v.X, v.Y, v.Z),
			vec(bg.X, bg.Y, bg.Z),
			vec(ba.X, ba.Y, ba.Z),
		})
	}
	return t.Render()
}

// ReplayAction preintegrates every sample of a CSV file.
func ReplayAction(c *cli.Context) error {
	logger := loggerFromFlags(c)
	run, err := newRun(c, logger)
	if err != nil {
		return err
	}
	for sample, err := range imusource.CSVFile(c.String(flagIMU)).Samples() {
		if err != nil {
			return multierr.Combine(err, closeLog(run.txLog))
		}
		//nolint:errcheck
		run.windows.add(sample)
	}
	return run.finish(c)
}

// ListenAction preintegrates samples from an MQTT topic until interrupted.
func ListenAction(c *cli.Context) error {
	logger := loggerFromFlags(c)
	run, err := newRun(c, logger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration(flagDuration); d > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	src, err := imusource.NewMQTTSource(imusource.MQTTConfig{
		Broker: c.String(flagBroker),
		Topic:  c.String(flagTopic),
		Source: c.String(flagSource),
	}, run.windows.add, logger.Sublogger("mqtt"))
	if err != nil {
		return multierr.Combine(err, closeLog(run.txLog))
	}
	if err := src.Start(ctx); err != nil {
		return multierr.Combine(err, closeLog(run.txLog))
	}
	<-ctx.Done()
	if err := src.Close(); err != nil {
		logger.Warnw("error closing mqtt source", "error", err)
	}
	accepted, rejected := src.Stats()
	logger.Infow("stopped listening", "accepted", accepted, "rejected", rejected)
	return run.finish(c)
}
