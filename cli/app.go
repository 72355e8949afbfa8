// Package cli contains the livevision command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagConfig = "config"
	flagDebug  = "debug"
	flagFrames = "frames"
)

func newApp() *cli.App {
	return &cli.App{
		Name:            "livevision",
		Usage:           "classify camera frames on device",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "stream",
				Usage: "run the configured camera through the pipeline and print every result",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagFrames,
						Value: 10,
						Usage: "number of frames to capture",
					},
				},
				Action: StreamAction,
			},
			{
				Name:      "classify",
				Usage:     "classify a single image file",
				ArgsUsage: "<image>",
				Action:    ClassifyAction,
			},
			{
				Name:   "backends",
				Usage:  "list the available model backends",
				Action: BackendsAction,
			},
		},
	}
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app := newApp()
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
