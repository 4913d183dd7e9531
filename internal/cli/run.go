package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hupe1980/agentcore/core"
)

func runCommand(opts *options) *cli.Command {
	var (
		sessionID string
		override  string
		stream    bool
	)
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute one query against an agent",
		ArgsUsage: "<agent-id> <query...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session id", Destination: &sessionID},
			&cli.StringFlag{Name: "model-override", Usage: "Model for this request", Destination: &override},
			&cli.BoolFlag{Name: "stream", Usage: "Print the answer chunk by chunk", Destination: &stream},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			args := c.Args().Slice()
			if len(args) < 2 {
				return errors.New("usage: agentcore run <agent-id> <query...>")
			}
			app, _, err := opts.app()
			if err != nil {
				return err
			}
			defer app.Close()

			req := core.ExecutionRequest{
				AgentID:       args[0],
				SessionID:     sessionID,
				Query:         strings.Join(args[1:], " "),
				ModelOverride: override,
			}
			if stream {
				return printStream(ctx, opts, app.Orchestrator().Stream(ctx, req))
			}

			res := app.Orchestrator().ExecuteAgent(ctx, req)
			if !res.Success {
				return errors.New(res.Error)
			}
			fmt.Fprintln(opts.stdout, res.Output)
			fmt.Fprintf(opts.stderr, "model=%s tools=%s latency=%s session=%s\n",
				res.Model, strings.Join(res.ToolsUsed, ","), res.Latency, res.SessionID)
			return nil
		},
	}
}

func printStream(ctx context.Context, opts *options, events <-chan core.StreamEvent) error {
	for ev := range events {
		switch ev.Type {
		case core.StreamChunk:
			fmt.Fprint(opts.stdout, ev.Text)
		case core.StreamError:
			return errors.New(ev.Message)
		case core.StreamComplete:
			fmt.Fprintln(opts.stdout)
			return nil
		}
	}
	return ctx.Err()
}
