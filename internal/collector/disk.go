package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/ec-aaron/g292-z20/internal/cmdutils"
	"github.com/ec-aaron/g292-z20/internal/fileutils"
)

// DiskInfo contains the NVMe namespace inventory.
type DiskInfo struct {
	Devices []NVMeDevice `json:"devices,omitempty"`
}

// NVMeDevice describes one NVMe namespace as reported by nvme list.
type NVMeDevice struct {
	Path      string `json:"path"`
	Model     string `json:"model"`
	Serial    string `json:"serial,omitempty"`
	Firmware  string `json:"firmware,omitempty"`
	SizeBytes uint64 `json:"sizeBytes"`
}

// SizeGB returns the device capacity in decimal gigabytes, the unit drive
// vendors label drives with.
func (d NVMeDevice) SizeGB() float64 {
	return float64(d.SizeBytes) / 1e9
}

// WithModel returns the devices whose model matches exactly, as shown by nvme list.
func (i DiskInfo) WithModel(model string) []NVMeDevice {
	var devs []NVMeDevice
	for _, d := range i.Devices {
		if d.Model == model {
			devs = append(devs, d)
		}
	}
	return devs
}

// InCapacityBand returns the devices whose capacity falls inside [lowGB, highGB].
func (i DiskInfo) InCapacityBand(lowGB, highGB float64) []NVMeDevice {
	var devs []NVMeDevice
	for _, d := range i.Devices {
		if gb := d.SizeGB(); lowGB <= gb && gb <= highGB {
			devs = append(devs, d)
		}
	}
	return devs
}

type nvmeListDevice struct {
	DevicePath   string `json:"DevicePath"`
	Name         string `json:"Name"`
	ModelNumber  string `json:"ModelNumber"`
	Model        string `json:"Model"`
	SerialNumber string `json:"SerialNumber"`
	Firmware     string `json:"Firmware"`
	PhysicalSize uint64 `json:"PhysicalSize"`
	Size         uint64 `json:"Size"`
}

type nvmeList struct {
	// Some nvme-cli builds emit "devices" in lowercase, which the
	// case-insensitive field match also accepts.
	Devices []nvmeListDevice `json:"Devices"`
}

// CollectDisks uses nvme list to inventory the NVMe namespaces.
func (c Collector) CollectDisks(ctx context.Context) (DiskInfo, error) {
	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, defaultTimeout, c.opts.nvmeListCmd[0], c.opts.nvmeListCmd[1:]...)
	if err != nil {
		return DiskInfo{}, newCollectionError(c.opts.nvmeListCmd, stderr.String(), err)
	}
	if stderr.Len() > 0 {
		c.log.Info("nvme list output to stderr", "stderr", stderr)
	}

	if strings.TrimSpace(stdout.String()) == "" {
		return DiskInfo{}, fmt.Errorf("nvme list returned empty output")
	}

	var result nvmeList
	if err := fileutils.ParseJSON(stdout, &result); err != nil {
		return DiskInfo{}, fmt.Errorf("failed to parse nvme json: %v", err)
	}

	info := DiskInfo{}
	for _, d := range result.Devices {
		path := d.DevicePath
		if path == "" {
			path = d.Name
		}
		if path == "" {
			c.log.Warn("NVMe device has no path, skipping", "model", d.ModelNumber)
			continue
		}

		model := d.ModelNumber
		if model == "" {
			model = d.Model
		}

		size := d.PhysicalSize
		if size == 0 {
			size = d.Size
		}

		info.Devices = append(info.Devices, NVMeDevice{
			Path:      path,
			Model:     strings.TrimSpace(model),
			Serial:    strings.TrimSpace(d.SerialNumber),
			Firmware:  strings.TrimSpace(d.Firmware),
			SizeBytes: size,
		})
	}

	return info, nil
}
