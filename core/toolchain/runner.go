package toolchain

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Runner executes an external program. Callers pass absolute paths in args;
// the runner never relies on the process working directory.
type Runner interface {
	Run(name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec and returns combined output.
type ExecRunner struct{}

func (ExecRunner) Run(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = "/"
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, errors.WithStack(err)
	}
	return out, nil
}

// Command renders name and args as a shell-pasteable line for diagnostics.
func Command(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quote(name))
	for _, a := range args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n'\"\\$`()&;|<>*?[]#~") {
		return strconv.Quote(s)
	}
	return s
}
