// Package cli implements the agentcore command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hupe1980/agentcore"
	"github.com/hupe1980/agentcore/config"
)

// options holds global flag values.
type options struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
	addr       string
	backend    string
	model      string

	stdout io.Writer
	stderr io.Writer
}

// Run executes the command line in argv.
func Run(ctx context.Context, argv []string) error {
	return newCommand(&options{stdout: os.Stdout, stderr: os.Stderr}).Run(ctx, argv)
}

func newCommand(opts *options) *cli.Command {
	return &cli.Command{
		Name:  "agentcore",
		Usage: "AI agent orchestration core",
		Flags: globalFlags(opts),
		Commands: []*cli.Command{
			serveCommand(opts),
			runCommand(opts),
			modelsCommand(opts),
			memoryCommand(opts),
		},
	}
}

func globalFlags(opts *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the YAML config file",
			Sources:     cli.EnvVars("AGENTCORE_CONFIG"),
			Destination: &opts.configPath,
		},
		&cli.StringFlag{
			Name:        "env-file",
			Usage:       "Path to a .env file",
			Value:       ".env",
			Destination: &opts.envFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Destination: &opts.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (json, text, console)",
			Destination: &opts.logFormat,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Generation backend (openai, anthropic, mock)",
			Destination: &opts.backend,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Backend default model",
			Destination: &opts.model,
		},
	}
}

// load reads the config and applies flag overrides on top of it.
func (o *options) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.backend != "" {
		cfg.Backend.Provider = o.backend
	}
	if o.model != "" {
		cfg.Backend.Model = o.model
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app loads the config and builds the App. Logs go to stderr so command
// output stays parseable.
func (o *options) app() (*agentcore.App, config.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, config.Config{}, err
	}
	logger := cfg.Logging.NewLogger(o.stderr)
	app, err := agentcore.New(cfg, func(opt *agentcore.Options) { opt.Logger = logger })
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("build app: %w", err)
	}
	return app, cfg, nil
}
