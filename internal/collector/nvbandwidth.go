package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ec-aaron/g292-z20/internal/cmdutils"
	"github.com/ec-aaron/g292-z20/internal/fileutils"
	"github.com/go-viper/mapstructure/v2"
)

// ErrNoBenchmarkBinary is returned when no nvbandwidth binary could be located.
var ErrNoBenchmarkBinary = errors.New("nvbandwidth binary not found")

// nvbandwidthEnv overrides the benchmark binary location when set.
const nvbandwidthEnv = "NVBANDWIDTH_BIN"

// BandwidthInfo contains the host to device memcpy results of one nvbandwidth run.
type BandwidthInfo struct {
	Binary      string   `json:"binary"`
	CUDARuntime string   `json:"cudaRuntime,omitempty"`
	Driver      string   `json:"driver,omitempty"`
	GitVersion  string   `json:"gitVersion,omitempty"`
	GPUs        []string `json:"gpus,omitempty"`
	TestName    string   `json:"testName"`
	Status      string   `json:"status,omitempty"`

	// H2D holds one host to device bandwidth reading per GPU, in GB/s.
	H2D []float64 `json:"h2dGBps"`
}

type nvbandwidthTestcase struct {
	Name        string     `mapstructure:"name"`
	Description string     `mapstructure:"bandwidth_description"`
	Matrix      [][]string `mapstructure:"bandwidth_matrix"`
	Status      string     `mapstructure:"status"`
}

type nvbandwidthReport struct {
	Nvbandwidth struct {
		CUDARuntimeVersion string                `mapstructure:"CUDA Runtime Version"`
		DriverVersion      string                `mapstructure:"Driver Version"`
		GitVersion         string                `mapstructure:"git_version"`
		GPUDeviceList      []string              `mapstructure:"GPU Device list"`
		Testcases          []nvbandwidthTestcase `mapstructure:"testcases"`
	} `mapstructure:"nvbandwidth"`
}

// ResolveBenchmarkBinary locates the nvbandwidth binary, preferring the
// configured path, then the environment override, then the conventional
// install locations, then PATH.
func (c Collector) ResolveBenchmarkBinary(configured string) (string, error) {
	candidates := []string{configured, os.Getenv(nvbandwidthEnv)}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "nvbandwidth", "nvbandwidth"))
	}
	candidates = append(candidates, filepath.Join("nvbandwidth", "nvbandwidth"))

	for _, bin := range candidates {
		if bin == "" {
			continue
		}
		if _, err := exec.LookPath(bin); err == nil {
			return bin, nil
		}
		if _, err := os.Stat(bin); err == nil {
			return bin, nil
		}
	}

	if bin, err := exec.LookPath("nvbandwidth"); err == nil {
		return bin, nil
	}

	return "", ErrNoBenchmarkBinary
}

// CollectBandwidth runs the host to device memcpy benchmark and parses its
// JSON report. bin is the benchmark binary to invoke.
func (c Collector) CollectBandwidth(ctx context.Context, bin string) (BandwidthInfo, error) {
	args := c.opts.nvbandwidthCmd
	if len(args) == 0 {
		args = []string{bin, "-t", "0", "--json"}
	}

	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, benchmarkTimeout, args[0], args[1:]...)
	if err != nil {
		return BandwidthInfo{}, newCollectionError(args, stderr.String(), err)
	}
	if stderr.Len() > 0 {
		c.log.Info("nvbandwidth output to stderr", "stderr", stderr)
	}

	var raw map[string]any
	if err := fileutils.ParseJSON(stdout, &raw); err != nil {
		return BandwidthInfo{}, fmt.Errorf("failed to parse nvbandwidth json: %v", err)
	}

	var report nvbandwidthReport
	if err := decodeBenchmarkReport(raw, &report); err != nil {
		return BandwidthInfo{}, fmt.Errorf("unexpected nvbandwidth report structure: %v", err)
	}

	bench := report.Nvbandwidth
	tc, ok := findHostToDeviceTest(bench.Testcases)
	if !ok {
		return BandwidthInfo{}, fmt.Errorf("no host to device memcpy test in nvbandwidth output")
	}

	vals, err := matrixToFloats(tc.Matrix)
	if err != nil {
		return BandwidthInfo{}, fmt.Errorf("unparseable bandwidth matrix in %s: %v", tc.Name, err)
	}
	if len(vals) == 0 {
		return BandwidthInfo{}, fmt.Errorf("no bandwidth values in %s", tc.Name)
	}

	return BandwidthInfo{
		Binary:      args[0],
		CUDARuntime: bench.CUDARuntimeVersion,
		Driver:      bench.DriverVersion,
		GitVersion:  bench.GitVersion,
		GPUs:        bench.GPUDeviceList,
		TestName:    tc.Name,
		Status:      tc.Status,
		H2D:         vals,
	}, nil
}

// decodeBenchmarkReport decodes the loosely typed benchmark JSON into target.
// Weak typing absorbs the fields nvbandwidth emits as either numbers or
// strings depending on the build, like the CUDA runtime version.
func decodeBenchmarkReport(raw map[string]any, target *nvbandwidthReport) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %v", err)
	}
	return decoder.Decode(raw)
}

// findHostToDeviceTest locates the host to device memcpy testcase by name or
// by its descriptive text.
func findHostToDeviceTest(tcs []nvbandwidthTestcase) (nvbandwidthTestcase, bool) {
	for _, tc := range tcs {
		name := strings.ToLower(tc.Name)
		desc := strings.ToLower(tc.Description)
		if strings.Contains(name, "host_to_device") || strings.Contains(desc, "cpu(row) -> gpu(column)") {
			return tc, true
		}
	}
	return nvbandwidthTestcase{}, false
}

// matrixToFloats flattens the benchmark matrix row-wise.
// nvbandwidth emits readings as strings.
func matrixToFloats(matrix [][]string) ([]float64, error) {
	var out []float64
	for _, row := range matrix {
		for _, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}
