package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hupe1980/agentcore/core"
)

func memoryCommand(opts *options) *cli.Command {
	var (
		ownerKind  string
		ownerID    string
		memoryType string
		limit      int64
		threshold  float64
	)
	scopeFlags := func(extra ...cli.Flag) []cli.Flag {
		return append([]cli.Flag{
			&cli.StringFlag{Name: "owner-kind", Usage: "agent or user", Value: string(core.OwnerAgent), Destination: &ownerKind},
			&cli.StringFlag{Name: "owner", Usage: "Owner id", Destination: &ownerID},
			&cli.StringFlag{Name: "type", Usage: "Memory type", Destination: &memoryType},
		}, extra...)
	}
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect and edit the vector memory",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Store a memory",
				ArgsUsage: "<content...>",
				Flags:     scopeFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					content := strings.Join(c.Args().Slice(), " ")
					app, _, err := opts.app()
					if err != nil {
						return err
					}
					defer app.Close()
					id, err := app.Memory().Add(ctx, core.AddMemoryRequest{
						OwnerKind:  core.OwnerKind(ownerKind),
						OwnerID:    ownerID,
						Content:    content,
						MemoryType: memoryType,
					})
					if err != nil {
						return err
					}
					fmt.Fprintln(opts.stdout, id)
					return nil
				},
			},
			{
				Name:      "search",
				Usage:     "Rank memories by similarity to a query",
				ArgsUsage: "<query...>",
				Flags: scopeFlags(
					&cli.IntFlag{Name: "limit", Usage: "Maximum results", Value: 5, Destination: &limit},
					&cli.FloatFlag{Name: "threshold", Usage: "Minimum similarity", Value: 0.3, Destination: &threshold},
				),
				Action: func(ctx context.Context, c *cli.Command) error {
					query := strings.Join(c.Args().Slice(), " ")
					if query == "" {
						return errors.New("usage: agentcore memory search <query...>")
					}
					app, _, err := opts.app()
					if err != nil {
						return err
					}
					defer app.Close()
					scope := core.SearchScope{OwnerKind: core.OwnerKind(ownerKind), OwnerID: ownerID, MemoryType: memoryType}
					results, err := app.Memory().Search(ctx, query, scope, int(limit), threshold)
					if err != nil {
						return err
					}
					for _, r := range results {
						fmt.Fprintf(opts.stdout, "%.3f  %s  %s\n", r.Score, r.Record.ID, r.Record.Content)
					}
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a memory",
				ArgsUsage: "<memory-id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("usage: agentcore memory delete <memory-id>")
					}
					app, _, err := opts.app()
					if err != nil {
						return err
					}
					defer app.Close()
					return app.Memory().Delete(ctx, id)
				},
			},
			{
				Name:  "stats",
				Usage: "Print table counts and the embedding self-test",
				Action: func(ctx context.Context, _ *cli.Command) error {
					app, _, err := opts.app()
					if err != nil {
						return err
					}
					defer app.Close()
					st, err := app.Memory().Stats(ctx)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(opts.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				},
			},
		},
	}
}
