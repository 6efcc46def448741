package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// validateConfig holds the command line only knobs of a validation run.
type validateConfig struct {
	Only            []string
	Report          string
	SkipWriteTest   bool
	MountForTesting bool
}

func installValidateCmd(app *App) {
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the hardware validation, same as running without a command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running validate command")
			return app.validateRun(cmd)
		},
	}
	installValidateFlags(validateCmd, app)

	app.cmd.AddCommand(validateCmd)
}

// installValidateFlags registers the validation flags. They live on both the
// root command and the validate command.
func installValidateFlags(cmd *cobra.Command, app *App) {
	cmd.Flags().StringSliceVar(&app.config.Validate.Only, "only", nil, "restrict the run to the named categories (cpu, memory, gpus, nvbandwidth, nics, disks, fans, writetest)")
	cmd.Flags().StringVarP(&app.config.Validate.Report, "report", "r", "", "write the report as JSON to this path")
	cmd.Flags().BoolVar(&app.config.Validate.SkipWriteTest, "skip-write-test", false, "skip the write test even when the configuration enables it")
	cmd.Flags().BoolVar(&app.config.Validate.MountForTesting, "mount-for-testing", false, "format blank target drives and mount them before the write test")
}

// validateRun runs the validation and prints the report. A report with a
// failed or errored check is returned as an error so the process exits non
// zero.
func (a *App) validateRun(cmd *cobra.Command) error {
	l := slog.Default()

	// Write test flags override the configuration only when set on the
	// command line.
	if cmd.Flags().Changed("skip-write-test") {
		a.config.Profile.Disk.SkipWriteTest = a.config.Validate.SkipWriteTest
	}
	if cmd.Flags().Changed("mount-for-testing") {
		a.config.Profile.Disk.AutoMountForTesting = a.config.Validate.MountForTesting
	}

	if err := a.config.Profile.Sanitize(l); err != nil {
		return err
	}

	runner := a.newRunner(l, a.config.Profile)
	rep, err := runner.Validate(cmd.Context(), a.config.Validate.Only)
	if err != nil {
		return err
	}

	fmt.Print(rep.Render())

	if a.config.Validate.Report != "" {
		if err := rep.SaveJSON(a.config.Validate.Report); err != nil {
			return err
		}
		slog.Info("Report saved", "path", a.config.Validate.Report)
	}

	if rep.Blocking() {
		return fmt.Errorf("validation finished with outcome %s", rep.Outcome())
	}
	return nil
}
