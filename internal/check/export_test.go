package check

// WithHardware overrides the hardware collector, for tests.
func WithHardware(hw HardwareCollector) Options {
	return func(o *options) {
		o.hw = hw
	}
}

// WithDriveManager overrides the drive manager, for tests.
func WithDriveManager(drv DriveManager) Options {
	return func(o *options) {
		o.drv = drv
	}
}

// WithDeviceTester overrides the disk tester, for tests.
func WithDeviceTester(t DeviceTester) Options {
	return func(o *options) {
		o.tester = t
	}
}
