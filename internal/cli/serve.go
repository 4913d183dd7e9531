package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

func serveCommand(opts *options) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Aliases:     []string{"a"},
				Usage:       "Listen address",
				Destination: &opts.addr,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			app, _, err := opts.app()
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Serve(ctx)
		},
	}
}
