// Package main is the preintegrate command itself.
package main

import (
	"os"

	"go.viam.com/preintegration/cli"
	"go.viam.com/preintegration/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.NewLogger("preintegrate").AsZap().Fatal(err)
	}
}
