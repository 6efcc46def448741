package expectation

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ec-aaron/g292-z20/internal/constants"
)

// ErrInvalidProfile is joined onto every validation failure of a Profile.
var ErrInvalidProfile = errors.New("invalid expectation profile")

// Default tolerances applied when the expectation sets a target without one.
const (
	// DefaultDIMMSizeToleranceGiB absorbs reserved capacity in firmware reporting.
	DefaultDIMMSizeToleranceGiB = 0.5

	// DefaultBootDriveToleranceGB spans the usual spread of vendor boot drive
	// capacities around a nominal size.
	DefaultBootDriveToleranceGB = 50.0
)

// Profile declares the hardware loadout this machine is expected to carry.
//
// Expectation fields are pointers: nil means not configured, and the matching
// attribute is reported skipped. Operational knobs are value typed and receive
// defaults in Sanitize. A Profile is immutable once sanitized.
type Profile struct {
	CPU         CPUExpectation       `mapstructure:"cpu" json:"cpu,omitzero"`
	Mem         MemExpectation       `mapstructure:"mem" json:"mem,omitzero"`
	GPUs        GPUExpectation       `mapstructure:"gpus" json:"gpus,omitzero"`
	Nvbandwidth BandwidthExpectation `mapstructure:"nvbandwidth" json:"nvbandwidth,omitzero"`
	NICs        NICExpectation       `mapstructure:"nics" json:"nics,omitzero"`
	Disk        DiskExpectation      `mapstructure:"disk" json:"disk,omitzero"`
	Fans        FanExpectation       `mapstructure:"fans" json:"fans,omitzero"`
}

// CPUExpectation describes the expected processor.
type CPUExpectation struct {
	// ModelContains is matched case-sensitively against the lscpu model name.
	ModelContains *string `mapstructure:"model_contains" json:"model_contains,omitempty"`
}

// MemExpectation describes the expected memory loadout.
type MemExpectation struct {
	DIMMsExpected    *int     `mapstructure:"dimms_expected" json:"dimms_expected,omitempty"`
	PerDIMMGiB       *float64 `mapstructure:"per_dimm_gib" json:"per_dimm_gib,omitempty"`
	SizeToleranceGiB *float64 `mapstructure:"size_tolerance_gib" json:"size_tolerance_gib,omitempty"`
	SpeedMHz         *int     `mapstructure:"speed_mhz" json:"speed_mhz,omitempty"`
}

// GPUExpectation describes the expected GPU population and PCIe links.
type GPUExpectation struct {
	ExpectCount     *int     `mapstructure:"expect_count" json:"expect_count,omitempty"`
	MinLinkSpeedGTs *float64 `mapstructure:"min_link_speed_gts" json:"min_link_speed_gts,omitempty"`
	MinLinkWidth    *int     `mapstructure:"min_link_width" json:"min_link_width,omitempty"`
}

// BandwidthExpectation describes the host to device bandwidth floor.
type BandwidthExpectation struct {
	// Bin overrides where the nvbandwidth binary is looked for.
	Bin        string   `mapstructure:"bin" json:"bin,omitempty"`
	MinH2DGbps *float64 `mapstructure:"min_h2d_gbps" json:"min_h2d_gbps,omitempty"`
}

// NICExpectation describes the expected network cards. When ModelContains is
// set, the counts apply to the cards matching it.
type NICExpectation struct {
	ModelContains    *string `mapstructure:"model_contains" json:"model_contains,omitempty"`
	ExpectCards      *int    `mapstructure:"expect_cards" json:"expect_cards,omitempty"`
	ExpectInfiniband *int    `mapstructure:"expect_infiniband" json:"expect_infiniband,omitempty"`
	ExpectEthernet   *int    `mapstructure:"expect_ethernet" json:"expect_ethernet,omitempty"`
}

// DiskExpectation describes the expected NVMe population and the write test
// configuration.
type DiskExpectation struct {
	// Model is the exact model string of the target data drives, as printed
	// by nvme list.
	Model       *string  `mapstructure:"model" json:"model,omitempty"`
	ExpectCount *int     `mapstructure:"expect_count" json:"expect_count,omitempty"`
	BootDriveGB *float64 `mapstructure:"boot_drive_gb" json:"boot_drive_gb,omitempty"`
	// BootDriveToleranceGB widens the accepted capacity band around BootDriveGB.
	BootDriveToleranceGB *float64 `mapstructure:"boot_drive_tolerance_gb" json:"boot_drive_tolerance_gb,omitempty"`

	SkipWriteTest       bool   `mapstructure:"skip_write_test" json:"skip_write_test,omitempty"`
	WriteTestSizeMB     int    `mapstructure:"write_test_size_mb" json:"write_test_size_mb,omitempty"`
	AutoMountForTesting bool   `mapstructure:"auto_mount_for_testing" json:"auto_mount_for_testing,omitempty"`
	MountBase           string `mapstructure:"mount_base" json:"mount_base,omitempty"`
}

// FanExpectation describes the minimum healthy fan population.
type FanExpectation struct {
	MinCount *int `mapstructure:"min_count" json:"min_count,omitempty"`
}

// Sanitize sets operational defaults and checks that the Profile is coherent.
// It must be called once before matching; a returned error wraps
// ErrInvalidProfile and is fatal before any collection happens.
func (p *Profile) Sanitize(l *slog.Logger) error {
	if p.Disk.WriteTestSizeMB == 0 {
		p.Disk.WriteTestSizeMB = constants.DefaultWriteTestSizeMB
	}
	if p.Disk.MountBase == "" {
		p.Disk.MountBase = constants.DefaultMountBase
		l.Debug("No mount base configured, using default", "mountBase", p.Disk.MountBase)
	}
	if p.Mem.PerDIMMGiB != nil && p.Mem.SizeToleranceGiB == nil {
		tol := DefaultDIMMSizeToleranceGiB
		p.Mem.SizeToleranceGiB = &tol
	}
	if p.Disk.BootDriveGB != nil && p.Disk.BootDriveToleranceGB == nil {
		tol := DefaultBootDriveToleranceGB
		p.Disk.BootDriveToleranceGB = &tol
	}

	checks := []struct {
		bad bool
		msg string
	}{
		{p.CPU.ModelContains != nil && *p.CPU.ModelContains == "", "cpu.model_contains must not be empty"},
		{p.Mem.DIMMsExpected != nil && *p.Mem.DIMMsExpected <= 0, "mem.dimms_expected must be positive"},
		{p.Mem.PerDIMMGiB != nil && *p.Mem.PerDIMMGiB <= 0, "mem.per_dimm_gib must be positive"},
		{p.Mem.SizeToleranceGiB != nil && *p.Mem.SizeToleranceGiB < 0, "mem.size_tolerance_gib must not be negative"},
		{p.Mem.SizeToleranceGiB != nil && p.Mem.PerDIMMGiB == nil, "mem.size_tolerance_gib requires mem.per_dimm_gib"},
		{p.Mem.SpeedMHz != nil && *p.Mem.SpeedMHz <= 0, "mem.speed_mhz must be positive"},
		{p.GPUs.ExpectCount != nil && *p.GPUs.ExpectCount <= 0, "gpus.expect_count must be positive"},
		{p.GPUs.MinLinkSpeedGTs != nil && *p.GPUs.MinLinkSpeedGTs <= 0, "gpus.min_link_speed_gts must be positive"},
		{p.GPUs.MinLinkWidth != nil && *p.GPUs.MinLinkWidth <= 0, "gpus.min_link_width must be positive"},
		{p.Nvbandwidth.MinH2DGbps != nil && *p.Nvbandwidth.MinH2DGbps <= 0, "nvbandwidth.min_h2d_gbps must be positive"},
		{p.NICs.ModelContains != nil && *p.NICs.ModelContains == "", "nics.model_contains must not be empty"},
		{p.NICs.ExpectCards != nil && *p.NICs.ExpectCards <= 0, "nics.expect_cards must be positive"},
		{p.NICs.ExpectInfiniband != nil && *p.NICs.ExpectInfiniband < 0, "nics.expect_infiniband must not be negative"},
		{p.NICs.ExpectEthernet != nil && *p.NICs.ExpectEthernet < 0, "nics.expect_ethernet must not be negative"},
		{p.Disk.Model != nil && *p.Disk.Model == "", "disk.model must not be empty"},
		{p.Disk.ExpectCount != nil && *p.Disk.ExpectCount <= 0, "disk.expect_count must be positive"},
		{p.Disk.ExpectCount != nil && p.Disk.Model == nil, "disk.expect_count requires disk.model"},
		{p.Disk.BootDriveGB != nil && *p.Disk.BootDriveGB <= 0, "disk.boot_drive_gb must be positive"},
		{p.Disk.BootDriveToleranceGB != nil && *p.Disk.BootDriveToleranceGB < 0, "disk.boot_drive_tolerance_gb must not be negative"},
		{p.Disk.WriteTestSizeMB < 0, "disk.write_test_size_mb must be positive"},
		{!filepath.IsAbs(p.Disk.MountBase), "disk.mount_base must be an absolute path"},
		{p.Fans.MinCount != nil && *p.Fans.MinCount <= 0, "fans.min_count must be positive"},
	}

	for _, c := range checks {
		if c.bad {
			return fmt.Errorf("%w: %s", ErrInvalidProfile, c.msg)
		}
	}

	return nil
}

// Configured reports whether any expectation is configured for the category.
// Unconfigured categories are skipped without invoking their diagnostics.
func (p Profile) Configured(c Category) bool {
	switch c {
	case CategoryCPU:
		return p.CPU.ModelContains != nil
	case CategoryMemory:
		return p.Mem.DIMMsExpected != nil || p.Mem.PerDIMMGiB != nil || p.Mem.SpeedMHz != nil
	case CategoryGPU:
		return p.GPUs.ExpectCount != nil || p.GPUs.MinLinkSpeedGTs != nil || p.GPUs.MinLinkWidth != nil
	case CategoryBandwidth:
		return p.Nvbandwidth.MinH2DGbps != nil
	case CategoryNIC:
		return p.NICs.ExpectCards != nil || p.NICs.ExpectInfiniband != nil || p.NICs.ExpectEthernet != nil
	case CategoryDisk:
		return p.Disk.ExpectCount != nil || p.Disk.BootDriveGB != nil
	case CategoryFan:
		return p.Fans.MinCount != nil
	case CategoryWriteTest:
		return p.Disk.Model != nil && !p.Disk.SkipWriteTest
	}
	return false
}
