// Package check orchestrates one validation pass: collect the configured
// hardware categories, match the facts against the expectation profile, run
// the disk integrity test and assemble the report.
package check

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ec-aaron/g292-z20/internal/collector"
	"github.com/ec-aaron/g292-z20/internal/constants"
	"github.com/ec-aaron/g292-z20/internal/disktest"
	"github.com/ec-aaron/g292-z20/internal/drives"
	"github.com/ec-aaron/g292-z20/internal/expectation"
	"github.com/ec-aaron/g292-z20/internal/report"
)

// HardwareCollector provides the hardware facts of the machine under test.
type HardwareCollector interface {
	CollectHost() collector.HostInfo
	CollectCPU(ctx context.Context) (collector.CPUInfo, error)
	CollectMemory(ctx context.Context) (collector.MemoryInfo, error)
	CollectGPUs() (collector.GPUInfo, error)
	ResolveBenchmarkBinary(configured string) (string, error)
	CollectBandwidth(ctx context.Context, bin string) (collector.BandwidthInfo, error)
	CollectNICs(ctx context.Context) (collector.NICInfo, error)
	CollectDisks(ctx context.Context) (collector.DiskInfo, error)
	CollectFans(ctx context.Context) (collector.FanInfo, error)
}

// DriveManager prepares the write test target drives.
type DriveManager interface {
	Status(ctx context.Context) ([]drives.Device, error)
	Mount(ctx context.Context) ([]drives.Device, error)
}

// DeviceTester runs the disk integrity test on one mounted drive.
type DeviceTester interface {
	TestDevice(ctx context.Context, device, mountPath string, sizeMB int) (disktest.Result, error)
}

type options struct {
	hw     HardwareCollector
	drv    DriveManager
	tester DeviceTester
}

// Options is the options for the check runner.
type Options func(*options)

// Runner runs one validation pass against a sanitized profile.
type Runner struct {
	log     *slog.Logger
	profile expectation.Profile

	opts options
}

// New returns a Runner for the given profile. The profile must have been
// sanitized.
func New(l *slog.Logger, p expectation.Profile, args ...Options) Runner {
	opts := options{}
	for _, opt := range args {
		opt(&opts)
	}

	if opts.hw == nil {
		opts.hw = collector.New(l)
	}
	if opts.tester == nil {
		opts.tester = disktest.New(l)
	}
	if opts.drv == nil && p.Disk.Model != nil {
		opts.drv = drives.New(l, opts.hw, *p.Disk.Model, p.Disk.MountBase)
	}

	return Runner{log: l, profile: p, opts: opts}
}

// Validate runs the selected categories and returns the assembled report.
// An empty selection runs everything. The report is complete even when its
// outcome is blocking; the error is reserved for the run itself going wrong.
func (r Runner) Validate(ctx context.Context, only []string) (*report.Report, error) {
	selected, err := selectCategories(only)
	if err != nil {
		return nil, err
	}

	rep := report.New(r.opts.hw.CollectHost())
	matcher := expectation.New(r.log, r.profile)

	for _, cat := range expectation.Categories() {
		if !selected[cat] {
			continue
		}
		r.log.Info("Checking category", "category", cat)
		configured := r.profile.Configured(cat)

		switch cat {
		case expectation.CategoryCPU:
			var info collector.CPUInfo
			var err error
			if configured {
				info, err = r.opts.hw.CollectCPU(ctx)
			}
			r.warnCollect(cat, err)
			rep.Facts.CPU = info
			rep.Add(matcher.CPU(info, err))

		case expectation.CategoryMemory:
			var info collector.MemoryInfo
			var err error
			if configured {
				info, err = r.opts.hw.CollectMemory(ctx)
			}
			r.warnCollect(cat, err)
			rep.Facts.Mem = info
			rep.Add(matcher.Memory(info, err))

		case expectation.CategoryGPU:
			var info collector.GPUInfo
			var err error
			if configured {
				info, err = r.opts.hw.CollectGPUs()
			}
			r.warnCollect(cat, err)
			rep.Facts.GPUs = info
			rep.Add(matcher.GPUs(info, err))

		case expectation.CategoryBandwidth:
			var info collector.BandwidthInfo
			var err error
			if configured {
				info, err = r.collectBandwidth(ctx)
			}
			r.warnCollect(cat, err)
			rep.Facts.Bench = info
			rep.Add(matcher.Bandwidth(info, err))

		case expectation.CategoryNIC:
			var info collector.NICInfo
			var err error
			if configured {
				info, err = r.opts.hw.CollectNICs(ctx)
			}
			r.warnCollect(cat, err)
			for _, card := range info.Cards {
				if card.MultiFunction() {
					r.log.Warn("NIC exposes several functions on one slot", "slot", card.Slot, "functions", len(card.Functions))
				}
			}
			rep.Facts.NICs = info
			rep.Add(matcher.NICs(info, err))

		case expectation.CategoryDisk:
			var info collector.DiskInfo
			var err error
			if configured {
				info, err = r.opts.hw.CollectDisks(ctx)
			}
			r.warnCollect(cat, err)
			rep.Facts.Disks = info
			rep.Add(matcher.Disks(info, err))

		case expectation.CategoryFan:
			var info collector.FanInfo
			var err error
			if configured {
				info, err = r.opts.hw.CollectFans(ctx)
			}
			r.warnCollect(cat, err)
			rep.Facts.Fans = info
			rep.Add(matcher.Fans(info, err))

		case expectation.CategoryWriteTest:
			rep.Add(r.writeTest(ctx, rep))
		}
	}

	rep.Finish()
	return rep, nil
}

func (r Runner) warnCollect(cat expectation.Category, err error) {
	if err == nil {
		return
	}
	r.log.Warn("Could not collect category", "category", cat, "error", err)
}

// collectBandwidth resolves the benchmark binary before running it, so a
// missing binary surfaces as a collection error on the bandwidth attribute.
func (r Runner) collectBandwidth(ctx context.Context) (collector.BandwidthInfo, error) {
	bin, err := r.opts.hw.ResolveBenchmarkBinary(r.profile.Nvbandwidth.Bin)
	if err != nil {
		return collector.BandwidthInfo{}, err
	}
	return r.opts.hw.CollectBandwidth(ctx, bin)
}

// writeTest runs the disk integrity phase on every target drive and reduces
// it to one category result, with one verdict per drive. Per device test
// details are recorded on the report as they are produced.
func (r Runner) writeTest(ctx context.Context, rep *report.Report) expectation.CategoryResult {
	res := expectation.CategoryResult{Category: expectation.CategoryWriteTest}
	verdict := func(outcome expectation.Outcome, attr, msg string) {
		res.Verdicts = append(res.Verdicts, expectation.Verdict{
			Category:  expectation.CategoryWriteTest,
			Attribute: attr,
			Outcome:   outcome,
			Message:   msg,
		})
	}

	if r.profile.Disk.SkipWriteTest {
		verdict(expectation.OutcomeSkipped, "integrity", "disabled by disk.skip_write_test")
		return res
	}
	if r.profile.Disk.Model == nil || r.opts.drv == nil {
		verdict(expectation.OutcomeSkipped, "integrity", "no disk.model configured")
		return res
	}

	discover := r.opts.drv.Status
	if r.profile.Disk.AutoMountForTesting {
		discover = r.opts.drv.Mount
	}

	devs, err := discover(ctx)
	if err != nil && len(devs) == 0 {
		// Discovery itself failed. Per device failures leave the healthy
		// devices in devs and only degrade their own verdicts.
		verdict(expectation.OutcomeError, "integrity", err.Error())
		return res
	}
	if err != nil {
		r.log.Warn("Drive preparation reported errors", "error", err)
	}

	for _, dev := range devs {
		if !dev.Mounted() {
			reason := "not mounted"
			if !r.profile.Disk.AutoMountForTesting {
				reason = fmt.Sprintf("not mounted, enable disk.auto_mount_for_testing or run %s drives mount", constants.CmdName)
			}
			rep.AddWriteTest(disktest.SkippedResult(dev.Path, dev.MountPoint, reason), nil)
			verdict(expectation.OutcomeSkipped, dev.Path, reason)
			continue
		}

		tres, err := r.opts.tester.TestDevice(ctx, dev.Path, dev.MountedAt, r.profile.Disk.WriteTestSizeMB)
		rep.AddWriteTest(tres, err)
		res.Verdicts = append(res.Verdicts, deviceVerdict(dev, tres, err))
	}

	return res
}

// deviceVerdict reduces one device test to its verdict. A checksum mismatch
// is a failure; only the test not completing is an error.
func deviceVerdict(dev drives.Device, res disktest.Result, err error) expectation.Verdict {
	v := expectation.Verdict{
		Category:  expectation.CategoryWriteTest,
		Attribute: dev.Path,
	}

	switch {
	case err != nil:
		v.Outcome = expectation.OutcomeError
		v.Message = err.Error()
	case !res.Match:
		v.Outcome = expectation.OutcomeFail
		v.Expected = "read back matches written data"
		v.Observed = fmt.Sprintf("write crc 0x%08X, read crc 0x%08X", res.WriteCRC, res.ReadCRC)
	default:
		v.Outcome = expectation.OutcomePass
		v.Expected = "read back matches written data"
		v.Observed = fmt.Sprintf("%d MiB verified in %s", res.SizeMB, res.Elapsed.Round(time.Millisecond))
	}

	if !res.CleanupOK {
		msg := fmt.Sprintf("write test artifact left on %s", res.MountPath)
		if v.Message != "" {
			msg = v.Message + "; " + msg
		}
		v.Message = msg
	}
	return v
}

// selectCategories resolves a category selection. Empty selects everything.
func selectCategories(only []string) (map[expectation.Category]bool, error) {
	all := expectation.Categories()
	selected := make(map[expectation.Category]bool, len(all))
	if len(only) == 0 {
		for _, c := range all {
			selected[c] = true
		}
		return selected, nil
	}

	valid := make(map[expectation.Category]bool, len(all))
	for _, c := range all {
		valid[c] = true
	}
	for _, name := range only {
		c := expectation.Category(strings.ToLower(strings.TrimSpace(name)))
		if !valid[c] {
			return nil, fmt.Errorf("unknown category %q, valid categories are %s", name, categoryNames())
		}
		selected[c] = true
	}
	return selected, nil
}

func categoryNames() string {
	cats := expectation.Categories()
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
