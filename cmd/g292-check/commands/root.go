// Package commands provides the commands for the g292-check command line tool.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ec-aaron/g292-z20/internal/check"
	"github.com/ec-aaron/g292-z20/internal/cli"
	"github.com/ec-aaron/g292-z20/internal/collector"
	"github.com/ec-aaron/g292-z20/internal/constants"
	"github.com/ec-aaron/g292-z20/internal/drives"
	"github.com/ec-aaron/g292-z20/internal/expectation"
	"github.com/ec-aaron/g292-z20/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	newRunner newRunner
	newDrives newDrives
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Profile expectation.Profile `mapstructure:",squash"`

	Validate validateConfig `mapstructure:"-"`
}

// validator runs one validation pass and assembles the report.
type validator interface {
	Validate(ctx context.Context, only []string) (*report.Report, error)
}

// driveManager handles the mount lifecycle of the target data drives.
type driveManager interface {
	Status(ctx context.Context) ([]drives.Device, error)
	Mount(ctx context.Context) ([]drives.Device, error)
	Unmount(ctx context.Context) ([]drives.Device, error)
}

type (
	newRunner func(l *slog.Logger, p expectation.Profile, args ...check.Options) validator
	newDrives func(l *slog.Logger, model, base string) driveManager
)

type options struct {
	newRunner newRunner
	newDrives newDrives
}

// Options represents an optional function to override App default values.
type Options func(*options)

// New registers commands and returns a new App.
func New(args ...Options) (*App, error) {
	opts := options{
		newRunner: func(l *slog.Logger, p expectation.Profile, cArgs ...check.Options) validator {
			return check.New(l, p, cArgs...)
		},
		newDrives: func(l *slog.Logger, model, base string) driveManager {
			return drives.New(l, collector.New(l), model, base)
		},
	}
	for _, opt := range args {
		opt(&opts)
	}

	a := App{newRunner: opts.newRunner, newDrives: opts.newDrives}
	a.cmd = &cobra.Command{
		Use:   constants.CmdName,
		Short: "Validate the hardware loadout of a G292-Z20 server",
		Long: `Validate the hardware loadout of a freshly commissioned G292-Z20 server.

The tool collects the installed CPU, memory, GPU, network, disk and fan
inventory, compares it against the expectations in the configuration file
and runs a write and read back integrity test on the target data drives.
It exits with a non zero status when any check fails or errors.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			slog.Info("Running validation")
			return a.validateRun(cmd)
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installValidateCmd(&a)
	installDrivesCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	installValidateFlags(cmd, app)
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}
