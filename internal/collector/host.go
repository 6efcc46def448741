package collector

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ec-aaron/g292-z20/internal/fileutils"
	"gopkg.in/ini.v1"
)

// HostInfo identifies the machine a report was produced on.
type HostInfo struct {
	Hostname string `json:"hostname,omitempty"`
	Kernel   string `json:"kernel,omitempty"`
	OS       OSInfo `json:"os,omitzero"`
	Vendor   string `json:"vendor,omitempty"`
	Product  string `json:"product,omitempty"`
	BIOS     string `json:"bios,omitempty"`
}

// OSInfo contains the os-release identification of the installed system.
type OSInfo struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// CollectHost gathers the host identity. It never fails; fields that cannot
// be read are left empty and logged.
func (c Collector) CollectHost() HostInfo {
	info := HostInfo{
		Kernel:  fileutils.ReadFileLogError(filepath.Join(c.opts.root, "proc/sys/kernel/osrelease"), c.log),
		OS:      c.collectOSRelease(),
		Vendor:  fileutils.ReadFileLogError(filepath.Join(c.opts.root, "sys/class/dmi/id/sys_vendor"), c.log),
		Product: fileutils.ReadFileLogError(filepath.Join(c.opts.root, "sys/class/dmi/id/product_name"), c.log),
		BIOS:    fileutils.ReadFileLogError(filepath.Join(c.opts.root, "sys/class/dmi/id/bios_version"), c.log),
	}

	hostname, err := os.Hostname()
	if err != nil {
		c.log.Warn("failed to read hostname", "error", err)
	}
	info.Hostname = hostname

	return info
}

// collectOSRelease parses etc/os-release. The file is shell-style key=value
// assignments, which loads as the default INI section.
func (c Collector) collectOSRelease() OSInfo {
	path := filepath.Join(c.opts.root, "etc/os-release")
	cfg, err := ini.Load(path)
	if os.IsNotExist(err) {
		c.log.Debug("os-release not found", "path", path)
		return OSInfo{}
	}
	if err != nil {
		c.log.Warn("failed to read os-release", "error", err)
		return OSInfo{}
	}

	section := cfg.Section("")
	return OSInfo{
		ID:      strings.TrimSpace(section.Key("ID").String()),
		Name:    strings.TrimSpace(section.Key("NAME").String()),
		Version: strings.TrimSpace(section.Key("VERSION_ID").String()),
	}
}
