package testutils

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

const fakeCmdSeparator = "--"

// SetupFakeCmdArgs returns the arguments to rerun the test binary scoped to the
// fake command test function testName, passing args to it.
// The returned vector can replace a real command invocation in tests.
func SetupFakeCmdArgs(testName string, args ...string) []string {
	cmdArgs := []string{os.Args[0], fmt.Sprintf("-test.run=^%s$", testName), fakeCmdSeparator}
	return append(cmdArgs, args...)
}

// GetFakeCmdArgs returns the arguments passed to a fake command test function.
// It returns an error when the current process is a regular test run and not a
// fake command reinvocation, so fake commands can return early.
func GetFakeCmdArgs() ([]string, error) {
	for i, arg := range os.Args {
		if arg == fakeCmdSeparator {
			return os.Args[i+1:], nil
		}
	}
	return nil, errors.New("not running as a fake command")
}

// CmdTestCase is a test case for testing cobra CMD flags.
type CmdTestCase struct {
	Name           string
	Short          string
	Required       bool
	Dirname        bool
	PersistentFlag bool
	BaseCmd        *cobra.Command
}

// FlagTestHelper is a helper function to test cobra CMD flags.
func FlagTestHelper(t *testing.T, testCase CmdTestCase) {
	t.Helper()
	var flag *pflag.Flag

	if testCase.PersistentFlag {
		flag = testCase.BaseCmd.PersistentFlags().Lookup(testCase.Name)
	} else {
		flag = testCase.BaseCmd.Flags().Lookup(testCase.Name)
	}
	assert.NotNil(t, flag)
	assert.Equal(t, testCase.Short, flag.Shorthand)

	if testCase.Required {
		assert.Equal(t, "true", flag.Annotations[cobra.BashCompOneRequiredFlag][0])
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompOneRequiredFlag])
	}

	if testCase.Dirname {
		assert.Equal(t, []string{}, flag.Annotations[cobra.BashCompSubdirsInDir])
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompSubdirsInDir])
	}
}
