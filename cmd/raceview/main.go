// Command raceview serves and renders race record tables.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"raceview/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	exitFunc  = os.Exit
	newLogger = func(c config.LogConfig) (*zap.Logger, error) { return c.NewLogger() }
)

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

// cli runs the command line and returns the process exit code.
func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "raceview: %v\n", err)
		return 1
	}
	return 0
}

// rootOptions carries what PersistentPreRunE prepares for subcommands.
type rootOptions struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if cmd.Flags().Changed("addr") {
		if cfg.HTTP.Addr, err = cmd.Flags().GetString("addr"); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.cfg, o.logger = cfg, logger
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	serve := newServeCmd(opts)
	root := &cobra.Command{
		Use:   "raceview",
		Short: "Browse race records as a sortable, searchable table",
		Long: `raceview loads a JSON array of race records and serves it as a web page
with column sorting, text search, per-visitor theme and language, and exports.

Run without a subcommand to start the web server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		RunE: serve.RunE,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	addServeFlags(root)

	root.AddCommand(serve, newRenderCmd(opts), newPublishCmd(opts), newSourcesCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the raceview version",
		Args:  cobra.NoArgs,
		// Needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "raceview %s\n", version)
			return err
		},
	}
}
