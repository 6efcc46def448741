package commands

type (
	NewRunner = newRunner
	NewDrives = newDrives

	Validator    = validator
	DriveManager = driveManager
)

// SetArgs sets the arguments for the command.
func (a *App) SetArgs(args []string) {
	a.cmd.SetArgs(args)
}

// WithNewRunner sets the validation runner constructor for the app.
func WithNewRunner(nr NewRunner) Options {
	return func(o *options) {
		o.newRunner = nr
	}
}

// WithNewDrives sets the drive manager constructor for the app.
func WithNewDrives(nd NewDrives) Options {
	return func(o *options) {
		o.newDrives = nd
	}
}
