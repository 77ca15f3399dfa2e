package toolchain

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tristendillon/bundlefix/core/models"
)

// Rewriter replaces the identity and load command strings of one binary.
type Rewriter interface {
	Rewrite(target, selfID string, renames []models.Rename) error
}

// InstallNameTool drives Apple's install_name_tool.
type InstallNameTool struct {
	Tool   string
	Runner Runner
}

func NewInstallNameTool(tool string, runner Runner) *InstallNameTool {
	if tool == "" {
		tool = "install_name_tool"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &InstallNameTool{Tool: tool, Runner: runner}
}

// Args builds the argument list: -id first, then one -change per rename,
// then the target.
func (t *InstallNameTool) Args(target, selfID string, renames []models.Rename) []string {
	args := make([]string, 0, 3*len(renames)+3)
	if selfID != "" {
		args = append(args, "-id", selfID)
	}
	for _, r := range renames {
		args = append(args, "-change", r.Old, r.New)
	}
	return append(args, target)
}

func (t *InstallNameTool) Rewrite(target, selfID string, renames []models.Rename) error {
	if err := EnsureWritable(target); err != nil {
		return err
	}

	args := t.Args(target, selfID, renames)
	out, err := t.Runner.Run(t.Tool, args...)
	if err != nil {
		return errors.Wrapf(err, "%s: %s", Command(t.Tool, args...), bytes.TrimSpace(out))
	}
	return nil
}

// EnsureWritable adds the owner write bit when the caller cannot write path.
func EnsureWritable(path string) error {
	if err := unix.Access(path, unix.W_OK); err == nil {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.Chmod(path, info.Mode().Perm()|0o200); err != nil {
		return errors.Wrapf(err, "cannot make %s writable", path)
	}
	return nil
}
