package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func modelsCommand(opts *options) *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List models offered by the generation backend",
		Action: func(ctx context.Context, _ *cli.Command) error {
			app, _, err := opts.app()
			if err != nil {
				return err
			}
			defer app.Close()

			backend := app.Orchestrator().Backend()
			models, err := backend.ListModels(ctx)
			if err != nil {
				return err
			}
			def := backend.Info().DefaultModel
			for _, m := range models {
				marker := " "
				if m == def {
					marker = "*"
				}
				fmt.Fprintf(opts.stdout, "%s %s\n", marker, m)
			}
			return nil
		},
	}
}
