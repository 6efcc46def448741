// Package collector gathers hardware ground truth from the machine under test.
//
// Each category is collected by shelling out to the matching diagnostic tool
// (lscpu, dmidecode, nvme, lspci, ipmitool, nvbandwidth) or by reading sysfs,
// and parsing the output into typed facts. Parsing is separated from running
// the tools so it can be exercised against canned output.
package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds a single diagnostic tool invocation.
	defaultTimeout = 15 * time.Second

	// benchmarkTimeout bounds the bandwidth benchmark, which exercises every GPU.
	benchmarkTimeout = 120 * time.Second
)

// Facts aggregates the hardware ground truth of one collection pass.
// Categories which were not collected, or which failed to collect, stay at
// their zero value.
type Facts struct {
	Host  HostInfo      `json:"host,omitzero"`
	CPU   CPUInfo       `json:"cpu,omitzero"`
	Mem   MemoryInfo    `json:"memory,omitzero"`
	GPUs  GPUInfo       `json:"gpus,omitzero"`
	Bench BandwidthInfo `json:"nvbandwidth,omitzero"`
	NICs  NICInfo       `json:"nics,omitzero"`
	Disks DiskInfo      `json:"disks,omitzero"`
	Fans  FanInfo       `json:"fans,omitzero"`
}

// CollectionError reports a diagnostic tool which could not produce usable output.
type CollectionError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string

	Err error
}

// Error implements the error interface.
func (e *CollectionError) Error() string {
	msg := fmt.Sprintf("%s failed", strings.Join(append([]string{e.Tool}, e.Args...), " "))
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s with exit status %d", msg, e.ExitCode)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CollectionError) Unwrap() error {
	return e.Err
}

// newCollectionError builds a CollectionError out of a failed tool run,
// lifting the exit status out of exec errors when there is one.
func newCollectionError(args []string, stderr string, err error) *CollectionError {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}

	return &CollectionError{
		Tool:     args[0],
		Args:     args[1:],
		ExitCode: code,
		Stderr:   strings.TrimSpace(stderr),
		Err:      err,
	}
}

// Collector handles dependencies for collecting hardware information.
type Collector struct {
	log *slog.Logger

	opts options
}

// Options are the variadic options available to the Collector.
type Options func(*options)

type options struct {
	root           string
	cpuInfoCmd     []string
	memInfoCmd     []string
	nvmeListCmd    []string
	lspciCmd       []string
	ipmiSdrCmd     []string
	nvbandwidthCmd []string
}

// defaultOptions returns options for when running under a normal environment.
func defaultOptions() *options {
	return &options{
		root:        "/",
		cpuInfoCmd:  []string{"lscpu", "-J"},
		memInfoCmd:  []string{"dmidecode", "--type", "17"},
		nvmeListCmd: []string{"nvme", "list", "-o", "json"},
		lspciCmd:    []string{"lspci", "-nn"},
		ipmiSdrCmd:  []string{"ipmitool", "sdr", "type", "Fan"},
	}
}

// New returns a new Collector.
func New(l *slog.Logger, args ...Options) Collector {
	opts := defaultOptions()

	for _, opt := range args {
		opt(opts)
	}

	return Collector{
		log:  l,
		opts: *opts,
	}
}
