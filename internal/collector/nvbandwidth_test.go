package collector_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ec-aaron/g292-z20/internal/collector"
	"github.com/ec-aaron/g292-z20/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectBandwidth(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		benchInfo string

		want    collector.BandwidthInfo
		logs    map[slog.Level]uint
		wantErr bool
	}{
		"Regular benchmark run": {
			benchInfo: "regular",
			want: collector.BandwidthInfo{
				CUDARuntime: "12020",
				Driver:      "535.129.03",
				GitVersion:  "v0.4",
				GPUs: []string{
					"NVIDIA A100-PCIE-40GB (0000:41:00.0)",
					"NVIDIA A100-PCIE-40GB (0000:61:00.0)",
				},
				TestName: "host_to_device_memcpy_ce",
				Status:   "passed",
				H2D:      []float64{26.35, 26.18},
			},
		},

		"Testcase found by description": {
			benchInfo: "by description",
			want: collector.BandwidthInfo{
				TestName: "h2d_total",
				H2D:      []float64{25.91},
			},
		},

		"Failed status is reported not judged": {
			benchInfo: "failed status",
			want: collector.BandwidthInfo{
				TestName: "host_to_device_memcpy_ce",
				Status:   "error",
				H2D:      []float64{11.02},
			},
		},

		"No host to device testcase": {
			benchInfo: "no h2d",
			wantErr:   true,
		},

		"Unparseable matrix": {
			benchInfo: "bad matrix",
			wantErr:   true,
		},

		"Empty matrix": {
			benchInfo: "empty matrix",
			wantErr:   true,
		},

		"Error from nvbandwidth": {
			benchInfo: "error",
			wantErr:   true,
		},

		"Garbage output": {
			benchInfo: "garbage",
			wantErr:   true,
		},

		"Empty output": {
			benchInfo: "",
			wantErr:   true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			l := testutils.NewMockHandler(slog.LevelDebug)
			cmdArgs := testutils.SetupFakeCmdArgs("TestFakeNvbandwidth", tc.benchInfo)
			c := collector.New(slog.New(&l), collector.WithNvbandwidth(cmdArgs))

			got, err := c.CollectBandwidth(context.Background(), "")
			if tc.wantErr {
				require.Error(t, err, "CollectBandwidth should return an error and didn't")
				return
			}
			require.NoError(t, err, "CollectBandwidth should not return an error")

			want := tc.want
			want.Binary = cmdArgs[0]
			assert.Equal(t, want, got, "CollectBandwidth should return expected benchmark information")

			if !l.AssertLevels(t, tc.logs) {
				l.OutputLogs(t)
			}
		})
	}
}

func TestResolveBenchmarkBinary(t *testing.T) {
	c := collector.New(slog.Default())

	makeBin := func(t *testing.T, dir string, elem ...string) string {
		t.Helper()
		path := filepath.Join(append([]string{dir}, elem...)...)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700), "setup: failed to create binary directory")
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0700), "setup: failed to create binary")
		return path
	}

	t.Run("Configured path wins", func(t *testing.T) {
		tmp := t.TempDir()
		configured := makeBin(t, tmp, "custom", "nvbandwidth")
		t.Setenv("NVBANDWIDTH_BIN", makeBin(t, tmp, "env", "nvbandwidth"))

		got, err := c.ResolveBenchmarkBinary(configured)
		require.NoError(t, err, "ResolveBenchmarkBinary should not return an error")
		assert.Equal(t, configured, got, "configured binary should be preferred")
	})

	t.Run("Environment override", func(t *testing.T) {
		tmp := t.TempDir()
		envBin := makeBin(t, tmp, "env", "nvbandwidth")
		t.Setenv("NVBANDWIDTH_BIN", envBin)

		got, err := c.ResolveBenchmarkBinary("")
		require.NoError(t, err, "ResolveBenchmarkBinary should not return an error")
		assert.Equal(t, envBin, got, "environment override should be used when nothing is configured")
	})

	t.Run("Home install fallback", func(t *testing.T) {
		tmp := t.TempDir()
		homeBin := makeBin(t, tmp, "nvbandwidth", "nvbandwidth")
		t.Setenv("HOME", tmp)
		t.Setenv("NVBANDWIDTH_BIN", "")
		t.Setenv("PATH", filepath.Join(tmp, "bin"))

		got, err := c.ResolveBenchmarkBinary("")
		require.NoError(t, err, "ResolveBenchmarkBinary should not return an error")
		assert.Equal(t, homeBin, got, "home install should be found")
	})

	t.Run("Nothing found", func(t *testing.T) {
		tmp := t.TempDir()
		t.Setenv("HOME", tmp)
		t.Setenv("NVBANDWIDTH_BIN", "")
		t.Setenv("PATH", filepath.Join(tmp, "bin"))

		_, err := c.ResolveBenchmarkBinary("")
		require.ErrorIs(t, err, collector.ErrNoBenchmarkBinary, "ResolveBenchmarkBinary should report a missing binary")
	})
}

func TestFakeNvbandwidth(_ *testing.T) {
	args, err := testutils.GetFakeCmdArgs()
	if err != nil {
		return
	}
	defer os.Exit(0)

	switch args[0] {
	case "error":
		fmt.Fprint(os.Stderr, "Error requested in fake nvbandwidth")
		os.Exit(1)
	case "regular":
		fmt.Println(`{
  "nvbandwidth": {
    "CUDA Runtime Version": 12020,
    "Driver Version": "535.129.03",
    "git_version": "v0.4",
    "GPU Device list": [
      "NVIDIA A100-PCIE-40GB (0000:41:00.0)",
      "NVIDIA A100-PCIE-40GB (0000:61:00.0)"
    ],
    "testcases": [
      {
        "name": "host_to_device_memcpy_ce",
        "bandwidth_description": "memcpy CE CPU(row) -> GPU(column) bandwidth (GB/s)",
        "bandwidth_matrix": [
          ["26.35", "26.18"]
        ],
        "status": "passed"
      },
      {
        "name": "device_to_host_memcpy_ce",
        "bandwidth_description": "memcpy CE CPU(row) <- GPU(column) bandwidth (GB/s)",
        "bandwidth_matrix": [
          ["25.10", "25.43"]
        ],
        "status": "passed"
      }
    ]
  }
}`)
	case "by description":
		fmt.Println(`{
  "nvbandwidth": {
    "testcases": [
      {
        "name": "h2d_total",
        "bandwidth_description": "total memcpy CE CPU(row) -> GPU(column) bandwidth (GB/s)",
        "bandwidth_matrix": [
          ["25.91"]
        ]
      }
    ]
  }
}`)
	case "failed status":
		fmt.Println(`{
  "nvbandwidth": {
    "testcases": [
      {
        "name": "host_to_device_memcpy_ce",
        "bandwidth_matrix": [
          ["11.02"]
        ],
        "status": "error"
      }
    ]
  }
}`)
	case "no h2d":
		fmt.Println(`{
  "nvbandwidth": {
    "testcases": [
      {
        "name": "device_to_host_memcpy_ce",
        "bandwidth_description": "memcpy CE CPU(row) <- GPU(column) bandwidth (GB/s)",
        "bandwidth_matrix": [
          ["25.10"]
        ]
      }
    ]
  }
}`)
	case "bad matrix":
		fmt.Println(`{
  "nvbandwidth": {
    "testcases": [
      {
        "name": "host_to_device_memcpy_ce",
        "bandwidth_matrix": [
          ["abc"]
        ]
      }
    ]
  }
}`)
	case "empty matrix":
		fmt.Println(`{
  "nvbandwidth": {
    "testcases": [
      {
        "name": "host_to_device_memcpy_ce",
        "bandwidth_matrix": []
      }
    ]
  }
}`)
	case "garbage":
		fmt.Println("CUDA not happy today")
	case "":
		fallthrough
	case "missing":
		os.Exit(0)
	}
}
