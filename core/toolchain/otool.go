package toolchain

import (
	"bufio"
	"bytes"
	"regexp"

	"github.com/pkg/errors"
)

// DependencyLister reports the library names recorded in a binary.
type DependencyLister interface {
	ListDependencies(path string) ([]string, error)
}

var otoolLine = regexp.MustCompile(`^\t(.+) \(compatibility version [^)]*\)\s*$`)

// OtoolLister shells out to `otool -L`.
type OtoolLister struct {
	Tool   string
	Runner Runner
}

func NewOtoolLister(tool string, runner Runner) *OtoolLister {
	if tool == "" {
		tool = "otool"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &OtoolLister{Tool: tool, Runner: runner}
}

func (l *OtoolLister) ListDependencies(path string) ([]string, error) {
	out, err := l.Runner.Run(l.Tool, "-L", path)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: %s", Command(l.Tool, "-L", path), bytes.TrimSpace(out))
	}
	return ParseOtool(out), nil
}

// ParseOtool extracts the references from `otool -L` output. Fat binaries
// repeat the list once per architecture; only the first occurrence of each
// reference is kept.
func ParseOtool(out []byte) []string {
	var refs []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := otoolLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		ref := m[1]
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}
