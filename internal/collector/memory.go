package collector

import (
	"context"
	"strconv"
	"strings"

	"github.com/ec-aaron/g292-z20/internal/cmdutils"
	"github.com/ec-aaron/g292-z20/internal/fileutils"
)

// MemoryInfo contains information for the system's memory modules.
type MemoryInfo struct {
	Slots      int    `json:"slots"`
	TotalBytes uint64 `json:"totalBytes"`
	DIMMs      []DIMM `json:"dimms,omitempty"`
}

// DIMM describes one populated memory module slot.
type DIMM struct {
	Locator      string `json:"locator"`
	Type         string `json:"type,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	PartNumber   string `json:"partNumber,omitempty"`
	SizeBytes    uint64 `json:"sizeBytes"`
	SpeedMTs     uint64 `json:"speedMTs"`
	// ConfiguredSpeedMTs is the operating speed, which trains lower than the
	// rated speed on some boards.
	ConfiguredSpeedMTs uint64 `json:"configuredSpeedMTs"`
}

// OperatingSpeedMTs returns the speed the module runs at, falling back to the
// rated speed when the firmware does not report a configured one.
func (d DIMM) OperatingSpeedMTs() uint64 {
	if d.ConfiguredSpeedMTs != 0 {
		return d.ConfiguredSpeedMTs
	}
	return d.SpeedMTs
}

// usedMemFields is a set which defines which DMI type 17 fields we want.
var usedMemFields = map[string]struct{}{
	"Size":                    {},
	"Locator":                 {},
	"Type":                    {},
	"Speed":                   {},
	"Configured Memory Speed": {},
	"Manufacturer":            {},
	"Part Number":             {},
}

// CollectMemory uses dmidecode to inventory the populated memory module slots.
// Slots reporting no installed module count towards Slots but produce no DIMM.
func (c Collector) CollectMemory(ctx context.Context) (MemoryInfo, error) {
	sections, err := cmdutils.RunListFmt(ctx, c.opts.memInfoCmd, usedMemFields, c.log)
	if err != nil {
		return MemoryInfo{}, newCollectionError(c.opts.memInfoCmd, "", err)
	}

	info := MemoryInfo{}
	for _, section := range sections {
		size, ok := section["Size"]
		if !ok {
			// Not a memory device section, dmidecode also prints a banner.
			continue
		}
		info.Slots++

		if isEmptySlot(size) {
			continue
		}

		sizeBytes, err := parseDMISize(size)
		if err != nil {
			c.log.Warn("memory device has unparseable size", "locator", section["Locator"], "size", size, "error", err)
			continue
		}

		d := DIMM{
			Locator:            section["Locator"],
			Type:               section["Type"],
			Manufacturer:       section["Manufacturer"],
			PartNumber:         strings.TrimSpace(section["Part Number"]),
			SizeBytes:          sizeBytes,
			SpeedMTs:           parseDMISpeed(section["Speed"]),
			ConfiguredSpeedMTs: parseDMISpeed(section["Configured Memory Speed"]),
		}

		info.TotalBytes += d.SizeBytes
		info.DIMMs = append(info.DIMMs, d)
	}

	return info, nil
}

// isEmptySlot reports whether a DMI size value marks an unpopulated slot.
func isEmptySlot(size string) bool {
	switch strings.ToLower(size) {
	case "no module installed", "not installed", "none", "unknown":
		return true
	}
	return false
}

// parseDMISize converts a DMI size value such as "64 GB" to bytes.
func parseDMISize(size string) (uint64, error) {
	value, unit, _ := strings.Cut(strings.TrimSpace(size), " ")
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	b, err := fileutils.ConvertUnitToBytes(unit, v)
	if err != nil {
		return 0, err
	}
	return uint64(b), nil
}

// parseDMISpeed converts a DMI speed value such as "3200 MT/s" to an integer,
// returning 0 for absent or unknown readings.
func parseDMISpeed(speed string) uint64 {
	value, _, _ := strings.Cut(strings.TrimSpace(speed), " ")
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
