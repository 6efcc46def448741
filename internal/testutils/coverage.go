package testutils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
)

var (
	goCoverDir     string
	goCoverDirOnce sync.Once
)

// CoverDirForTests parses the test arguments and return the cover profile directory,
// if coverage is enabled.
func CoverDirForTests() string {
	goCoverDirOnce.Do(func() {
		if testing.CoverMode() == "" {
			return
		}

		for _, arg := range os.Args {
			if !strings.HasPrefix(arg, "-test.gocoverdir=") {
				continue
			}
			goCoverDir = strings.TrimPrefix(arg, "-test.gocoverdir=")
		}
	})

	return goCoverDir
}

// SetupHelperCoverdir creates a subdirectory of the test cover directory and
// exports it as GOCOVERDIR, so fake command reinvocations of the test binary
// write their counters somewhere valid instead of clobbering the parent's.
// Returns the directory and whether coverage is enabled.
func SetupHelperCoverdir() (string, bool) {
	dir := CoverDirForTests()
	if dir == "" {
		return "", false
	}

	d, err := os.MkdirTemp(dir, "helper-*")
	if err != nil {
		panic(fmt.Sprintf("could not create helper cover directory: %v", err))
	}
	if err := os.Setenv("GOCOVERDIR", d); err != nil {
		panic(fmt.Sprintf("could not set GOCOVERDIR: %v", err))
	}
	return d, true
}
