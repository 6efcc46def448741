package collector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ec-aaron/g292-z20/internal/cmdutils"
	"github.com/ec-aaron/g292-z20/internal/fileutils"
)

// CPUInfo contains information for the system's processors.
type CPUInfo struct {
	Model   string `json:"model"`
	Vendor  string `json:"vendor"`
	Arch    string `json:"architecture"`
	CPUs    uint64 `json:"cpus"`
	Sockets uint64 `json:"sockets"`
	Cores   uint64 `json:"coresPerSocket"`
	Threads uint64 `json:"threadsPerCore"`
}

// usedCPUFields is a set that defines what json fields we want.
var usedCPUFields = map[string]struct{}{
	"CPU(s):":             {},
	"Socket(s):":          {},
	"Core(s) per socket:": {},
	"Thread(s) per core:": {},
	"Architecture:":       {},
	"Vendor ID:":          {},
	"Model name:":         {},
}

type lscpuEntry struct {
	Field    string       `json:"field"`
	Data     string       `json:"data"`
	Children []lscpuEntry `json:"children,omitempty"`
}

// CollectCPU uses lscpu to collect information about the CPUs.
func (c Collector) CollectCPU(ctx context.Context) (CPUInfo, error) {
	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, defaultTimeout, c.opts.cpuInfoCmd[0], c.opts.cpuInfoCmd[1:]...)
	if err != nil {
		return CPUInfo{}, newCollectionError(c.opts.cpuInfoCmd, stderr.String(), err)
	}
	if stderr.Len() > 0 {
		c.log.Info("lscpu output to stderr", "stderr", stderr)
	}

	type lscpu struct {
		Lscpu []lscpuEntry `json:"lscpu"`
	}
	var result = &lscpu{}
	err = fileutils.ParseJSON(stdout, result)
	if err != nil {
		return CPUInfo{}, fmt.Errorf("failed to parse CPU json: %v", err)
	}

	data := c.populateCPUInfo(result.Lscpu, map[string]string{})
	if len(data) == 0 {
		return CPUInfo{}, fmt.Errorf("lscpu output contained no usable fields")
	}

	sockets, err := strconv.ParseUint(data["Socket(s):"], 10, 64)
	if err != nil {
		c.log.Warn("CPU info contained invalid sockets", "value", data["Socket(s):"])
		sockets = 0
	}
	cores, err := strconv.ParseUint(data["Core(s) per socket:"], 10, 64)
	if err != nil {
		c.log.Warn("CPU info contained invalid cores per socket", "value", data["Core(s) per socket:"])
		cores = 0
	}
	threads, err := strconv.ParseUint(data["Thread(s) per core:"], 10, 64)
	if err != nil {
		c.log.Warn("CPU info contained invalid threads per core", "value", data["Thread(s) per core:"])
		threads = 0
	}
	cpus, err := strconv.ParseUint(data["CPU(s):"], 10, 64)
	if err != nil {
		c.log.Warn("CPU info contained invalid cpus", "value", data["CPU(s):"])
		cpus = threads * cores * sockets
	}

	return CPUInfo{
		Model:   data["Model name:"],
		Vendor:  data["Vendor ID:"],
		Arch:    data["Architecture:"],
		CPUs:    cpus,
		Sockets: sockets,
		Cores:   cores,
		Threads: threads,
	}, nil
}

// populateCPUInfo recursively searches the lscpu JSON for desired fields.
func (c Collector) populateCPUInfo(entries []lscpuEntry, info map[string]string) map[string]string {
	for _, entry := range entries {
		if _, ok := usedCPUFields[entry.Field]; ok {
			info[entry.Field] = entry.Data
		}

		if len(entry.Children) > 0 {
			c.populateCPUInfo(entry.Children, info)
		}
	}

	return info
}
