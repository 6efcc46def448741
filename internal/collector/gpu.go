package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ec-aaron/g292-z20/internal/fileutils"
)

// GPUInfo contains information for the system's GPUs.
type GPUInfo struct {
	Cards []GPU `json:"cards,omitempty"`
}

// GPU describes one GPU as seen through sysfs.
type GPU struct {
	Card   string `json:"card"`
	Vendor string `json:"vendor"`
	Device string `json:"device"`
	Driver string `json:"driver,omitempty"`

	// Negotiated PCIe link as trained at enumeration time.
	LinkSpeedGTs float64 `json:"linkSpeedGTs"`
	LinkWidth    uint64  `json:"linkWidth"`
}

// gpuSymlinkRegex matches the name of a GPU card folder.
var gpuSymlinkRegex = regexp.MustCompile("^card[0-9]+$")

// linkSpeedRegex matches the transfer rate of a PCIe link.
// For example: "16.0 GT/s PCIe" matches and has "16.0".
var linkSpeedRegex = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?) GT/s`)

// CollectGPUs uses sysfs to collect information about the GPUs, including the
// PCIe link each one trained at.
func (c Collector) CollectGPUs() (GPUInfo, error) {
	ds, err := os.ReadDir(filepath.Join(c.opts.root, "sys/class/drm"))
	if err != nil {
		return GPUInfo{}, fmt.Errorf("failed to read GPU directory in sysfs: %v", err)
	}

	info := GPUInfo{}
	for _, d := range ds {
		n := d.Name()

		if !gpuSymlinkRegex.MatchString(n) {
			continue
		}

		gpu, err := c.collectGPU(n)
		if err != nil {
			c.log.Warn("failed to get GPU info", "GPU", n, "error", err)
			continue
		}

		info.Cards = append(info.Cards, gpu)
	}

	if len(info.Cards) == 0 {
		return GPUInfo{}, fmt.Errorf("no GPU information found")
	}

	return info, nil
}

// collectGPU handles gathering information for a single GPU.
func (c Collector) collectGPU(card string) (info GPU, err error) {
	cardDir, err := filepath.EvalSymlinks(filepath.Join(c.opts.root, "sys/class/drm", card))
	if err != nil {
		return GPU{}, fmt.Errorf("failed to follow %s symlink: %v", card, err)
	}

	devDir, err := filepath.EvalSymlinks(filepath.Join(cardDir, "device"))
	if err != nil {
		return GPU{}, fmt.Errorf("failed to follow %s device symlink: %v", card, err)
	}

	info = GPU{
		Card:   card,
		Vendor: fileutils.ReadFileLogError(filepath.Join(devDir, "vendor"), c.log),
		Device: fileutils.ReadFileLogError(filepath.Join(devDir, "device"), c.log),
	}

	if driverLink, err := os.Readlink(filepath.Join(devDir, "driver")); err != nil {
		c.log.Warn("failed to get GPU driver", "GPU", card, "error", err)
	} else {
		info.Driver = filepath.Base(driverLink)
	}

	speed := fileutils.ReadFileLogError(filepath.Join(devDir, "current_link_speed"), c.log)
	if m := linkSpeedRegex.FindStringSubmatch(speed); m != nil {
		info.LinkSpeedGTs, _ = strconv.ParseFloat(m[1], 64)
	} else if speed != "" {
		c.log.Warn("GPU link speed has unexpected format", "GPU", card, "value", speed)
	}

	width := fileutils.ReadFileLogError(filepath.Join(devDir, "current_link_width"), c.log)
	if width != "" {
		info.LinkWidth, err = strconv.ParseUint(width, 10, 64)
		if err != nil {
			c.log.Warn("GPU link width was not an integer", "GPU", card, "value", width)
			err = nil
		}
	}

	if strings.ContainsRune(info.Vendor, '\n') {
		c.log.Warn("GPU vendor contains invalid value", "GPU", card)
		info.Vendor = ""
	}
	if strings.ContainsRune(info.Device, '\n') {
		c.log.Warn("GPU device contains invalid value", "GPU", card)
		info.Device = ""
	}

	return info, nil
}
