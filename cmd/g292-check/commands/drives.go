package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ec-aaron/g292-z20/internal/drives"
	"github.com/spf13/cobra"
)

type driveAction int

const (
	driveStatus driveAction = iota
	driveMount
	driveUnmount
)

func installDrivesCmd(app *App) {
	drivesCmd := &cobra.Command{
		Use:   "drives",
		Short: "Manage the mount state of the target data drives",
		Long: `Manage the mount state of the target data drives.

The target drives are the NVMe namespaces whose model matches disk.model
exactly. Mount points are assigned under disk.mount_base, ordered by drive
serial number.`,
	}

	drivesCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the mount state of the target drives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running drives status command")
			return app.drivesRun(cmd.Context(), driveStatus)
		},
	})
	drivesCmd.AddCommand(&cobra.Command{
		Use:   "mount",
		Short: "Format blank target drives and mount them all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running drives mount command")
			return app.drivesRun(cmd.Context(), driveMount)
		},
	})
	drivesCmd.AddCommand(&cobra.Command{
		Use:   "unmount",
		Short: "Unmount the target drives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running drives unmount command")
			return app.drivesRun(cmd.Context(), driveUnmount)
		},
	})

	app.cmd.AddCommand(drivesCmd)
}

// drivesRun applies the action to the target drives and prints their state.
// Drives the action could handle are printed even when others errored.
func (a App) drivesRun(ctx context.Context, action driveAction) error {
	l := slog.Default()

	if err := a.config.Profile.Sanitize(l); err != nil {
		return err
	}
	if a.config.Profile.Disk.Model == nil {
		return errors.New("no disk.model configured, there are no target drives to manage")
	}

	m := a.newDrives(l, *a.config.Profile.Disk.Model, a.config.Profile.Disk.MountBase)

	var devs []drives.Device
	var err error
	switch action {
	case driveStatus:
		devs, err = m.Status(ctx)
	case driveMount:
		devs, err = m.Mount(ctx)
	case driveUnmount:
		devs, err = m.Unmount(ctx)
	}

	for _, d := range devs {
		fmt.Println(deviceLine(d))
	}
	return err
}

// deviceLine formats one drive for the terminal.
func deviceLine(d drives.Device) string {
	fs := d.Filesystem
	if fs == "" {
		fs = "blank"
	}
	state := "not mounted"
	if d.Mounted() {
		state = "mounted at " + d.MountedAt
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s", d.Path, d.Serial, fs, state)
}
