package collector_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ec-aaron/g292-z20/internal/collector"
	"github.com/ec-aaron/g292-z20/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectHost(t *testing.T) {
	t.Parallel()

	hostname, err := os.Hostname()
	require.NoError(t, err, "setup: failed to read hostname")

	tests := map[string]struct {
		root         string
		missingFiles []string

		want collector.HostInfo
		logs map[slog.Level]uint
	}{
		"Regular host information": {
			root: "regular",
			want: collector.HostInfo{
				Hostname: hostname,
				Kernel:   "5.15.0-88-generic",
				OS:       collector.OSInfo{ID: "ubuntu", Name: "Ubuntu", Version: "22.04"},
				Vendor:   "GIGABYTE",
				Product:  "G292-Z20-00",
				BIOS:     "R21",
			},
		},

		"Missing DMI identity": {
			root: "regular",
			missingFiles: []string{
				"sys/class/dmi/id/sys_vendor",
				"sys/class/dmi/id/product_name",
				"sys/class/dmi/id/bios_version",
			},
			want: collector.HostInfo{
				Hostname: hostname,
				Kernel:   "5.15.0-88-generic",
				OS:       collector.OSInfo{ID: "ubuntu", Name: "Ubuntu", Version: "22.04"},
			},

			logs: map[slog.Level]uint{
				slog.LevelWarn: 3,
			},
		},

		"Missing os-release": {
			root:         "regular",
			missingFiles: []string{"etc/os-release"},
			want: collector.HostInfo{
				Hostname: hostname,
				Kernel:   "5.15.0-88-generic",
				Vendor:   "GIGABYTE",
				Product:  "G292-Z20-00",
				BIOS:     "R21",
			},
		},

		"Missing everything still identifies the host": {
			root: "withoutsys",
			want: collector.HostInfo{
				Hostname: hostname,
			},

			logs: map[slog.Level]uint{
				slog.LevelWarn: 4,
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tmp := t.TempDir()
			err := testutils.CopyDir(t, "testdata/linuxfs", tmp)
			require.NoError(t, err, "setup: failed to copy test data directory: ")

			root := filepath.Join(tmp, tc.root)
			for _, f := range tc.missingFiles {
				err := os.Remove(filepath.Join(root, f))
				require.NoError(t, err, "setup: failed to remove file %s: ", f)
			}

			l := testutils.NewMockHandler(slog.LevelDebug)
			c := collector.New(slog.New(&l), collector.WithRoot(root))

			got := c.CollectHost()

			assert.Equal(t, tc.want, got, "CollectHost should return expected host information")

			if !l.AssertLevels(t, tc.logs) {
				l.OutputLogs(t)
			}
		})
	}
}
