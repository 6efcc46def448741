package collector

// WithRoot overrides default root directory of the system.
func WithRoot(root string) Options {
	return func(o *options) {
		o.root = root
	}
}

// WithCPUInfo overrides the default cpu info command.
func WithCPUInfo(cmd []string) Options {
	return func(o *options) {
		o.cpuInfoCmd = cmd
	}
}

// WithMemInfo overrides the default memory info command.
func WithMemInfo(cmd []string) Options {
	return func(o *options) {
		o.memInfoCmd = cmd
	}
}

// WithNvmeList overrides the default nvme list command.
func WithNvmeList(cmd []string) Options {
	return func(o *options) {
		o.nvmeListCmd = cmd
	}
}

// WithLspci overrides the default lspci command.
func WithLspci(cmd []string) Options {
	return func(o *options) {
		o.lspciCmd = cmd
	}
}

// WithIpmiSdr overrides the default ipmitool sdr command.
func WithIpmiSdr(cmd []string) Options {
	return func(o *options) {
		o.ipmiSdrCmd = cmd
	}
}

// WithNvbandwidth overrides the default nvbandwidth command.
func WithNvbandwidth(cmd []string) Options {
	return func(o *options) {
		o.nvbandwidthCmd = cmd
	}
}
