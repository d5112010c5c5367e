// Package cli contains the preintegrate command line tool.
package cli

import (
	"io"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig   = "config"
	flagDebug    = "debug"
	flagIMU      = "imu"
	flagWindow   = "window"
	flagOut      = "out"
	flagPlot     = "plot"
	flagBroker   = "broker"
	flagTopic    = "topic"
	flagSource   = "source"
	flagDuration = "duration"
)

func windowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  flagWindow,
			Value: time.Second,
			Usage: "register a factor every `DURATION` of samples",
		},
		&cli.StringFlag{
			Name:  flagOut,
			Usage: "append emitted transactions to `FILE`",
		},
		&cli.StringFlag{
			Name:  flagPlot,
			Usage: "plot the dead reckoned trajectory to a PNG `FILE`",
		},
	}
}

var app = &cli.App{
	Name:            "preintegrate",
	Usage:           "turn IMU samples into factor graph constraints",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load preintegration configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "replay",
			Usage:     "preintegrate a recorded CSV of IMU samples",
			UsageText: "preintegrate replay --imu <file> [--window 1s] [--out <file>] [--plot <file>]",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     flagIMU,
					Usage:    "CSV `FILE` with time, gx, gy, gz, ax, ay, az columns",
					Required: true,
				},
			}, windowFlags()...),
			Action: ReplayAction,
		},
		{
			Name:  "listen",
			Usage: "preintegrate raw IMU samples published over MQTT",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  flagBroker,
					Value: "tcp://localhost:1883",
					Usage: "MQTT broker `URL`",
				},
				&cli.StringFlag{
					Name:  flagTopic,
					Value: "inertial/imu/left",
					Usage: "`TOPIC` carrying raw samples",
				},
				&cli.StringFlag{
					Name:  flagSource,
					Usage: "only accept samples whose source field is `NAME`",
				},
				&cli.DurationFlag{
					Name:  flagDuration,
					Usage: "stop after `DURATION`; runs until interrupted when unset",
				},
			}, windowFlags()...),
			Action: ListenAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
