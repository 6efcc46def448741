// Package drives manages the data drives the disk integrity test runs
// against: discovery by model, formatting of blank drives and the mount
// lifecycle.
package drives

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ec-aaron/g292-z20/internal/cmdutils"
	"github.com/ec-aaron/g292-z20/internal/collector"
	"github.com/ec-aaron/g292-z20/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// ErrNoTargetDrives is returned by Discover when no NVMe namespace matches
// the target model. It is fatal for the mount and disk test phases.
var ErrNoTargetDrives = errors.New("no target drives found")

const (
	probeTimeout = 30 * time.Second
	mountTimeout = 30 * time.Second

	// formatTimeout leaves room for mkfs on multi terabyte namespaces.
	formatTimeout = 5 * time.Minute
)

// DiskLister provides the NVMe namespace inventory.
type DiskLister interface {
	CollectDisks(ctx context.Context) (collector.DiskInfo, error)
}

type options struct {
	lsblkCmd   []string
	findmntCmd []string
	mkfsCmd    []string
	mountCmd   []string
	umountCmd  []string
}

// Options is the options for the drive manager.
type Options func(*options)

func defaultOptions() *options {
	return &options{
		lsblkCmd:   []string{"lsblk", "-J", "-o", "NAME,FSTYPE,MOUNTPOINT"},
		findmntCmd: []string{"findmnt", "-n", "-o", "TARGET"},
		mkfsCmd:    []string{"mkfs.ext4", "-F"},
		mountCmd:   []string{"mount"},
		umountCmd:  []string{"umount"},
	}
}

// Manager handles the mount lifecycle of the target data drives.
// Both mount and unmount are idempotent per device.
type Manager struct {
	log   *slog.Logger
	disks DiskLister

	model string
	base  string

	opts options
}

// New returns a Manager for the drives whose model matches model exactly,
// with mount points assigned under base.
func New(l *slog.Logger, disks DiskLister, model, base string, args ...Options) Manager {
	opts := defaultOptions()
	for _, opt := range args {
		opt(opts)
	}

	return Manager{log: l, disks: disks, model: model, base: base, opts: *opts}
}

// Device is one target drive and its mount state.
type Device struct {
	Path      string `json:"path"`
	Model     string `json:"model"`
	Serial    string `json:"serial,omitempty"`
	SizeBytes uint64 `json:"sizeBytes"`

	// Filesystem is the probed filesystem, "partitioned" when the namespace
	// carries a partition table instead, empty when blank.
	Filesystem string `json:"filesystem,omitempty"`
	// MountPoint is the assigned target under the base directory.
	MountPoint string `json:"mountPoint"`
	// MountedAt is where the device is actually mounted, empty when unmounted.
	MountedAt string `json:"mountedAt,omitempty"`
}

// Mounted reports whether the device is mounted anywhere.
func (d Device) Mounted() bool {
	return d.MountedAt != ""
}

// Discover finds the target drives and assigns each its mount point.
// Devices are ordered by serial number so the assignment is stable across
// reboots and enumeration order changes.
func (m Manager) Discover(ctx context.Context) (devs []Device, err error) {
	defer decorate.OnError(&err, "could not discover target drives")

	info, err := m.disks.CollectDisks(ctx)
	if err != nil {
		return nil, err
	}

	for _, d := range info.WithModel(m.model) {
		devs = append(devs, Device{Path: d.Path, Model: d.Model, Serial: d.Serial, SizeBytes: d.SizeBytes})
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("%w: no NVMe namespace reports model %q", ErrNoTargetDrives, m.model)
	}

	sort.Slice(devs, func(i, j int) bool {
		if devs[i].Serial != devs[j].Serial {
			return devs[i].Serial < devs[j].Serial
		}
		return devs[i].Path < devs[j].Path
	})
	for i := range devs {
		devs[i].MountPoint = filepath.Join(m.base, strconv.Itoa(i))
	}

	m.log.Debug("discovered target drives", "model", m.model, "count", len(devs))
	return devs, nil
}

// Status reports discovery, filesystem and mount state without changing
// anything. Probe failures on one device do not hide the others.
func (m Manager) Status(ctx context.Context) (devs []Device, err error) {
	defer decorate.OnError(&err, "could not read drive status")

	devs, err = m.Discover(ctx)
	if err != nil {
		return nil, err
	}

	var errs error
	for i := range devs {
		errs = errors.Join(errs, m.probe(ctx, &devs[i]))
	}
	return devs, errs
}

// Mount brings every target drive to the mounted state. A drive without a
// filesystem is formatted first, which destroys its contents and is logged.
// A drive with a filesystem is never reformatted. A mounted drive is left
// where it is.
func (m Manager) Mount(ctx context.Context) (devs []Device, err error) {
	defer decorate.OnError(&err, "could not mount target drives")

	devs, err = m.Discover(ctx)
	if err != nil {
		return nil, err
	}

	var errs error
	for i := range devs {
		if err := m.ensureMounted(ctx, &devs[i]); err != nil {
			m.log.Warn("Skipping device after mount failure", "device", devs[i].Path, "error", err)
			errs = errors.Join(errs, err)
		}
	}
	return devs, errs
}

// Unmount detaches every mounted target drive. Unmounted drives are left
// alone.
func (m Manager) Unmount(ctx context.Context) (devs []Device, err error) {
	defer decorate.OnError(&err, "could not unmount target drives")

	devs, err = m.Discover(ctx)
	if err != nil {
		return nil, err
	}

	var errs error
	for i := range devs {
		if err := m.ensureUnmounted(ctx, &devs[i]); err != nil {
			m.log.Warn("Could not unmount device", "device", devs[i].Path, "error", err)
			errs = errors.Join(errs, err)
		}
	}
	return devs, errs
}

func (m Manager) ensureMounted(ctx context.Context, d *Device) (err error) {
	defer decorate.OnError(&err, "could not mount %s", d.Path)

	target, err := m.mountTarget(ctx, d.Path)
	if err != nil {
		return err
	}
	if target != "" {
		d.MountedAt = target
		m.log.Debug("device already mounted", "device", d.Path, "target", target)
		return nil
	}

	fs, err := m.filesystem(ctx, d.Path)
	if err != nil {
		return err
	}
	d.Filesystem = fs
	if fs == "" {
		m.log.Warn("Device has no filesystem, formatting", "device", d.Path)
		if _, err := m.run(ctx, formatTimeout, m.opts.mkfsCmd, d.Path); err != nil {
			return err
		}
		d.Filesystem = "ext4"
	}

	if err := os.MkdirAll(d.MountPoint, 0750); err != nil {
		return err
	}
	if _, err := m.run(ctx, mountTimeout, m.opts.mountCmd, d.Path, d.MountPoint); err != nil {
		return err
	}
	// The integrity test writes to the mounted root unprivileged.
	if err := os.Chmod(d.MountPoint, 0777); err != nil {
		return err
	}

	d.MountedAt = d.MountPoint
	m.log.Info("Mounted device", "device", d.Path, "target", d.MountPoint)
	return nil
}

func (m Manager) ensureUnmounted(ctx context.Context, d *Device) (err error) {
	defer decorate.OnError(&err, "could not unmount %s", d.Path)

	target, err := m.mountTarget(ctx, d.Path)
	if err != nil {
		return err
	}
	d.MountedAt = target
	if target == "" {
		m.log.Debug("device already unmounted", "device", d.Path)
		return nil
	}

	if _, err := m.run(ctx, mountTimeout, m.opts.umountCmd, target); err != nil {
		return err
	}
	d.MountedAt = ""
	m.log.Info("Unmounted device", "device", d.Path, "target", target)
	return nil
}

func (m Manager) probe(ctx context.Context, d *Device) (err error) {
	defer decorate.OnError(&err, "could not probe %s", d.Path)

	fs, err := m.filesystem(ctx, d.Path)
	if err != nil {
		return err
	}
	d.Filesystem = fs

	target, err := m.mountTarget(ctx, d.Path)
	if err != nil {
		return err
	}
	d.MountedAt = target
	return nil
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	FSType     string        `json:"fstype"`
	MountPoint string        `json:"mountpoint"`
	Children   []lsblkDevice `json:"children,omitempty"`
}

type lsblkReport struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

// filesystem probes what is on the device. It returns the filesystem name,
// "partitioned" for a bare partition table, or empty for a blank device.
func (m Manager) filesystem(ctx context.Context, dev string) (string, error) {
	stdout, err := m.run(ctx, probeTimeout, m.opts.lsblkCmd, dev)
	if err != nil {
		return "", err
	}

	var report lsblkReport
	if err := fileutils.ParseJSON(stdout, &report); err != nil {
		return "", err
	}
	if len(report.BlockDevices) == 0 {
		return "", fmt.Errorf("lsblk reported no block device for %s", dev)
	}

	d := report.BlockDevices[0]
	if d.FSType != "" {
		return d.FSType, nil
	}
	if len(d.Children) > 0 {
		return "partitioned", nil
	}
	return "", nil
}

// mountTarget probes where the device is mounted. An unmounted device yields
// an empty target and no error.
func (m Manager) mountTarget(ctx context.Context, dev string) (string, error) {
	vector := withArgs(m.opts.findmntCmd, dev)
	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, probeTimeout, vector[0], vector[1:]...)
	if err != nil {
		// findmnt exits 1 when the device is simply not mounted.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && stdout.Len() == 0 {
			return "", nil
		}
		return "", fmt.Errorf("could not probe mount state of %s: %v: %w: %s", dev, vector, err, strings.TrimSpace(stderr.String()))
	}

	// A device mounted in several places prints one target per line, the
	// first one is enough for us.
	target, _, _ := strings.Cut(strings.TrimSpace(stdout.String()), "\n")
	return strings.TrimSpace(target), nil
}

func (m Manager) run(ctx context.Context, timeout time.Duration, cmd []string, args ...string) (*bytes.Buffer, error) {
	vector := withArgs(cmd, args...)
	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, timeout, vector[0], vector[1:]...)
	if err != nil {
		return nil, fmt.Errorf("%v: %w: %s", vector, err, strings.TrimSpace(stderr.String()))
	}
	if stderr.Len() > 0 {
		m.log.Info(fmt.Sprintf("%v output to stderr", vector), "stderr", stderr)
	}
	return stdout, nil
}

// withArgs copies cmd so appending per device arguments never mutates the
// configured vector.
func withArgs(cmd []string, args ...string) []string {
	out := make([]string, 0, len(cmd)+len(args))
	out = append(out, cmd...)
	return append(out, args...)
}
