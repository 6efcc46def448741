package commands_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ec-aaron/g292-z20/cmd/g292-check/commands"
	"github.com/ec-aaron/g292-z20/internal/check"
	"github.com/ec-aaron/g292-z20/internal/collector"
	"github.com/ec-aaron/g292-z20/internal/constants"
	"github.com/ec-aaron/g292-z20/internal/expectation"
	"github.com/ec-aaron/g292-z20/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAppForTests(t *testing.T, args []string, opts ...commands.Options) *commands.App {
	t.Helper()

	app, err := commands.New(opts...)
	require.NoError(t, err, "Setup: could not create app")

	app.SetArgs(args)
	return app
}

// runnerStub replaces the check runner with a canned report.
type runnerStub struct {
	rep *report.Report
	err error

	constructed int
	calls       int
	profile     expectation.Profile
	only        []string
}

func (r *runnerStub) construct(l *slog.Logger, p expectation.Profile, args ...check.Options) commands.Validator {
	r.constructed++
	r.profile = p
	return r
}

func (r *runnerStub) Validate(ctx context.Context, only []string) (*report.Report, error) {
	r.calls++
	r.only = only
	if r.err != nil {
		return nil, r.err
	}
	return r.rep, nil
}

func passingReport() *report.Report {
	rep := report.New(collector.HostInfo{Hostname: "gpu-17", Product: "G292-Z20-00"})
	rep.Add(expectation.CategoryResult{
		Category: expectation.CategoryCPU,
		Verdicts: []expectation.Verdict{{
			Category:  expectation.CategoryCPU,
			Attribute: "model",
			Outcome:   expectation.OutcomePass,
			Expected:  `contains "EPYC 7402P"`,
			Observed:  "AMD EPYC 7402P 24-Core Processor",
		}},
	})
	rep.Finish()
	return rep
}

func failingReport() *report.Report {
	rep := report.New(collector.HostInfo{Hostname: "gpu-17", Product: "G292-Z20-00"})
	rep.Add(expectation.CategoryResult{
		Category: expectation.CategoryGPU,
		Verdicts: []expectation.Verdict{{
			Category:  expectation.CategoryGPU,
			Attribute: "count",
			Outcome:   expectation.OutcomeFail,
			Expected:  "8",
			Observed:  "7",
		}},
	})
	rep.Finish()
	return rep
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		args    []string
		failing bool
		runErr  error

		wantErr       bool
		wantUsageErr  bool
		wantNotRun    bool
		wantOnly      []string
		wantSkip      bool
		wantAutoMount bool
	}{
		"Passing validation": {
			args: []string{"--config", filepath.Join("testdata", "good.yaml")},
		},
		"Validate subcommand runs the validation": {
			args: []string{"validate", "--config", filepath.Join("testdata", "good.yaml")},
		},
		"Blocking report is returned as an error": {
			args:    []string{"--config", filepath.Join("testdata", "good.yaml")},
			failing: true,
			wantErr: true,
		},
		"Runner error is propagated": {
			args:    []string{"--config", filepath.Join("testdata", "good.yaml")},
			runErr:  errors.New("unknown category \"temperature\""),
			wantErr: true,
		},
		"Only flag restricts the run": {
			args:     []string{"validate", "--config", filepath.Join("testdata", "good.yaml"), "--only", "cpu,fans"},
			wantOnly: []string{"cpu", "fans"},
		},
		"Skip write test flag overrides the configuration": {
			args:     []string{"--config", filepath.Join("testdata", "good.yaml"), "--skip-write-test"},
			wantSkip: true,
		},
		"Mount for testing flag enables auto mount": {
			args:          []string{"--config", filepath.Join("testdata", "good.yaml"), "--mount-for-testing"},
			wantAutoMount: true,
		},

		"Invalid profile is rejected before collecting": {
			args:       []string{"--config", filepath.Join("testdata", "invalid.yaml")},
			wantErr:    true,
			wantNotRun: true,
		},
		"Malformed config file is an error": {
			args:       []string{"--config", filepath.Join("testdata", "malformed.yaml")},
			wantErr:    true,
			wantNotRun: true,
		},
		"Config not matching the schema is an error": {
			args:       []string{"--config", filepath.Join("testdata", "badschema.yaml")},
			wantErr:    true,
			wantNotRun: true,
		},

		"Unknown flag is a usage error": {
			args:         []string{"--config", filepath.Join("testdata", "good.yaml"), "--frequency"},
			wantErr:      true,
			wantUsageErr: true,
			wantNotRun:   true,
		},
		"Unexpected argument is a usage error": {
			args:         []string{"leftover", "--config", filepath.Join("testdata", "good.yaml")},
			wantErr:      true,
			wantUsageErr: true,
			wantNotRun:   true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			stub := &runnerStub{rep: passingReport(), err: tc.runErr}
			if tc.failing {
				stub.rep = failingReport()
			}
			app := newAppForTests(t, tc.args, commands.WithNewRunner(stub.construct))

			err := app.Run()
			if tc.wantErr {
				require.Error(t, err, "Run should have failed")
			} else {
				require.NoError(t, err, "Run should not have failed")
			}
			assert.Equal(t, tc.wantUsageErr, app.UsageError(), "UsageError does not match")

			if tc.wantNotRun {
				assert.Zero(t, stub.constructed, "Runner should not have been created")
				assert.Zero(t, stub.calls, "Runner should not have been invoked")
				return
			}
			require.Equal(t, 1, stub.calls, "Runner should have been invoked once")
			assert.Equal(t, tc.wantOnly, stub.only, "Category selection does not match")
			assert.Equal(t, tc.wantSkip, stub.profile.Disk.SkipWriteTest, "SkipWriteTest does not match")
			assert.Equal(t, tc.wantAutoMount, stub.profile.Disk.AutoMountForTesting, "AutoMountForTesting does not match")

			require.NotNil(t, stub.profile.Disk.Model, "Profile should carry the configured disk model")
			assert.Equal(t, "Lexar SSD NM790 4TB", *stub.profile.Disk.Model)
			assert.Equal(t, constants.DefaultWriteTestSizeMB, stub.profile.Disk.WriteTestSizeMB, "Profile should have been sanitized")
		})
	}
}

func TestValidateSavesReport(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "report")
	stub := &runnerStub{rep: passingReport()}
	app := newAppForTests(t, []string{
		"--config", filepath.Join("testdata", "good.yaml"),
		"--report", dest,
	}, commands.WithNewRunner(stub.construct))

	require.NoError(t, app.Run())

	got, err := os.ReadFile(dest + constants.ReportExt)
	require.NoError(t, err, "Report file should have been written")
	assert.Contains(t, string(got), `"hostname": "gpu-17"`)
}

func TestValidateSavesReportOnFailure(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "report.json")
	stub := &runnerStub{rep: failingReport()}
	app := newAppForTests(t, []string{
		"--config", filepath.Join("testdata", "good.yaml"),
		"--report", dest,
	}, commands.WithNewRunner(stub.construct))

	require.Error(t, app.Run(), "A blocking report should fail the run")

	got, err := os.ReadFile(dest)
	require.NoError(t, err, "Report file should have been written")
	assert.Contains(t, string(got), `"outcome": "fail"`)
}
