package disktest

// WithAfterSync runs f between the synced write and the read back, for tests.
func WithAfterSync(f func(path string)) Options {
	return func(o *options) {
		o.afterSync = f
	}
}
