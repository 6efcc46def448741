package collector_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/ec-aaron/g292-z20/internal/collector"
	"github.com/ec-aaron/g292-z20/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectDisks(t *testing.T) {
	t.Parallel()

	lexar := func(i int) collector.NVMeDevice {
		return collector.NVMeDevice{
			Path:      fmt.Sprintf("/dev/nvme%dn1", i),
			Model:     "Lexar SSD NM790 4TB",
			Serial:    fmt.Sprintf("NLD639R00032%d", i),
			Firmware:  "12601",
			SizeBytes: 4000787030016,
		}
	}

	tests := map[string]struct {
		diskInfo string

		want    collector.DiskInfo
		logs    map[slog.Level]uint
		wantErr bool
	}{
		"Regular disk information": {
			diskInfo: "regular",
			want: collector.DiskInfo{
				Devices: []collector.NVMeDevice{
					lexar(0), lexar(1), lexar(2), lexar(3),
					{
						Path:      "/dev/nvme4n1",
						Model:     "SAMSUNG MZVL2256HCHQ-00B00",
						Serial:    "S675NX0T102938",
						Firmware:  "GXB7601Q",
						SizeBytes: 256060514304,
					},
				},
			},
		},

		"Lowercase field names": {
			diskInfo: "lowercase",
			want: collector.DiskInfo{
				Devices: []collector.NVMeDevice{
					{
						Path:      "/dev/nvme0n1",
						Model:     "Lexar SSD NM790 4TB",
						SizeBytes: 4000787030016,
					},
				},
			},
		},

		"Device without a path is skipped": {
			diskInfo: "no path",
			want: collector.DiskInfo{
				Devices: []collector.NVMeDevice{lexar(0)},
			},

			logs: map[slog.Level]uint{
				slog.LevelWarn: 1,
			},
		},

		"No devices": {
			diskInfo: "no devices",
			want:     collector.DiskInfo{},
		},

		"Error from nvme": {
			diskInfo: "error",
			wantErr:  true,
		},

		"Empty output": {
			diskInfo: "",
			wantErr:  true,
		},

		"Garbage output": {
			diskInfo: "garbage",
			wantErr:  true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			l := testutils.NewMockHandler(slog.LevelDebug)
			cmdArgs := testutils.SetupFakeCmdArgs("TestFakeNvmeList", tc.diskInfo)
			c := collector.New(slog.New(&l), collector.WithNvmeList(cmdArgs))

			got, err := c.CollectDisks(context.Background())
			if tc.wantErr {
				require.Error(t, err, "CollectDisks should return an error and didn't")
				return
			}
			require.NoError(t, err, "CollectDisks should not return an error")

			assert.Equal(t, tc.want, got, "CollectDisks should return expected disk information")

			if !l.AssertLevels(t, tc.logs) {
				l.OutputLogs(t)
			}
		})
	}
}

func TestDiskInfoFilters(t *testing.T) {
	t.Parallel()

	info := collector.DiskInfo{
		Devices: []collector.NVMeDevice{
			{Path: "/dev/nvme0n1", Model: "Lexar SSD NM790 4TB", SizeBytes: 4000787030016},
			{Path: "/dev/nvme1n1", Model: "Lexar SSD NM790 4TB", SizeBytes: 4000787030016},
			{Path: "/dev/nvme2n1", Model: "SAMSUNG MZVL2256HCHQ-00B00", SizeBytes: 256060514304},
		},
	}

	assert.Len(t, info.WithModel("Lexar SSD NM790 4TB"), 2, "WithModel should match exact model strings")
	assert.Empty(t, info.WithModel("Lexar SSD NM790"), "WithModel should not match partial model strings")

	boot := info.InCapacityBand(200.0, 300.0)
	require.Len(t, boot, 1, "capacity band should select the boot drive")
	assert.Equal(t, "/dev/nvme2n1", boot[0].Path, "capacity band should select the boot drive")
	assert.InDelta(t, 256.06, boot[0].SizeGB(), 0.01, "SizeGB should convert to decimal gigabytes")

	assert.Empty(t, info.InCapacityBand(500.0, 600.0), "empty capacity band should select nothing")
}

func TestFakeNvmeList(_ *testing.T) {
	args, err := testutils.GetFakeCmdArgs()
	if err != nil {
		return
	}
	defer os.Exit(0)

	lexar := func(i int) string {
		return fmt.Sprintf(`{
      "NameSpace" : 1,
      "DevicePath" : "/dev/nvme%dn1",
      "Firmware" : "12601",
      "Index" : %d,
      "ModelNumber" : "Lexar SSD NM790 4TB",
      "ProductName" : "Non-Volatile memory controller",
      "SerialNumber" : "NLD639R00032%d",
      "UsedBytes" : 4096798720,
      "MaximumLBA" : 7814037168,
      "PhysicalSize" : 4000787030016,
      "SectorSize" : 512
    }`, i, i, i)
	}

	switch args[0] {
	case "error":
		fmt.Fprint(os.Stderr, "Error requested in fake nvme list")
		os.Exit(1)
	case "regular":
		fmt.Printf(`{
  "Devices" : [
    %s,
    %s,
    %s,
    %s,
    {
      "NameSpace" : 1,
      "DevicePath" : "/dev/nvme4n1",
      "Firmware" : "GXB7601Q",
      "Index" : 4,
      "ModelNumber" : "SAMSUNG MZVL2256HCHQ-00B00",
      "ProductName" : "Non-Volatile memory controller",
      "SerialNumber" : "S675NX0T102938",
      "UsedBytes" : 98811080704,
      "MaximumLBA" : 500118192,
      "PhysicalSize" : 256060514304,
      "SectorSize" : 512
    }
  ]
}
`, lexar(0), lexar(1), lexar(2), lexar(3))
	case "lowercase":
		fmt.Println(`{
  "devices" : [
    {
      "Name" : "/dev/nvme0n1",
      "Model" : "Lexar SSD NM790 4TB",
      "Size" : 4000787030016
    }
  ]
}`)
	case "no path":
		fmt.Printf(`{
  "Devices" : [
    %s,
    {
      "ModelNumber" : "SAMSUNG MZVL2256HCHQ-00B00",
      "PhysicalSize" : 256060514304
    }
  ]
}
`, lexar(0))
	case "no devices":
		fmt.Println(`{
  "Devices" : []
}`)
	case "garbage":
		fmt.Println("no drives here, chief")
	case "":
		fallthrough
	case "missing":
		os.Exit(0)
	}
}
