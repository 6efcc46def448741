// Package report aggregates the outcome of one acceptance run and renders it
// for operators and for machines.
package report

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/ec-aaron/g292-z20/internal/collector"
	"github.com/ec-aaron/g292-z20/internal/constants"
	"github.com/ec-aaron/g292-z20/internal/disktest"
	"github.com/ec-aaron/g292-z20/internal/expectation"
	"github.com/ec-aaron/g292-z20/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// Report is the full outcome of one acceptance run.
type Report struct {
	Version  string    `json:"version"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitzero"`

	Host  collector.HostInfo `json:"host,omitzero"`
	Facts collector.Facts    `json:"facts,omitzero"`

	Results    []expectation.CategoryResult `json:"results"`
	WriteTests []WriteTest                  `json:"write_tests,omitempty"`
}

// WriteTest is one device integrity test outcome, with the io failure that
// interrupted it, if any.
type WriteTest struct {
	disktest.Result
	Error string `json:"error,omitempty"`
}

// New returns a report for this host, stamped with the tool version and the
// current time.
func New(host collector.HostInfo) *Report {
	return &Report{
		Version: constants.Version,
		Started: time.Now(),
		Host:    host,
	}
}

// Add appends the verdicts of one category.
func (r *Report) Add(res expectation.CategoryResult) {
	r.Results = append(r.Results, res)
}

// AddWriteTest appends one device integrity test outcome.
func (r *Report) AddWriteTest(res disktest.Result, err error) {
	wt := WriteTest{Result: res}
	if err != nil {
		wt.Error = err.Error()
	}
	r.WriteTests = append(r.WriteTests, wt)
}

// Finish stamps the completion time.
func (r *Report) Finish() {
	r.Finished = time.Now()
}

// Outcome reduces all categories to one run outcome, with the same precedence
// as within a category: any fail makes the run fail, otherwise any error makes
// it error, and the run is skipped only when every category was.
func (r Report) Outcome() expectation.Outcome {
	anyError := false
	anyPass := false
	for _, res := range r.Results {
		switch res.Outcome() {
		case expectation.OutcomeFail:
			return expectation.OutcomeFail
		case expectation.OutcomeError:
			anyError = true
		case expectation.OutcomePass:
			anyPass = true
		}
	}

	if anyError {
		return expectation.OutcomeError
	}
	if anyPass {
		return expectation.OutcomePass
	}
	return expectation.OutcomeSkipped
}

// Blocking reports whether the run should exit non-zero.
func (r Report) Blocking() bool {
	o := r.Outcome()
	return o == expectation.OutcomeFail || o == expectation.OutcomeError
}

// SaveJSON writes the report to path atomically. A path without an extension
// gets the default report extension appended.
func (r Report) SaveJSON(path string) (err error) {
	defer decorate.OnError(&err, "could not save report to %s", path)

	if filepath.Ext(path) == "" {
		path += constants.ReportExt
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	return fileutils.AtomicWrite(path, append(data, '\n'))
}
