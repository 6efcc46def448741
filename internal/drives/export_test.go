package drives

// WithLsblk overrides the lsblk command, for tests.
func WithLsblk(cmd []string) Options {
	return func(o *options) {
		o.lsblkCmd = cmd
	}
}

// WithFindmnt overrides the findmnt command, for tests.
func WithFindmnt(cmd []string) Options {
	return func(o *options) {
		o.findmntCmd = cmd
	}
}

// WithMkfs overrides the mkfs command, for tests.
func WithMkfs(cmd []string) Options {
	return func(o *options) {
		o.mkfsCmd = cmd
	}
}

// WithMount overrides the mount command, for tests.
func WithMount(cmd []string) Options {
	return func(o *options) {
		o.mountCmd = cmd
	}
}

// WithUmount overrides the umount command, for tests.
func WithUmount(cmd []string) Options {
	return func(o *options) {
		o.umountCmd = cmd
	}
}
