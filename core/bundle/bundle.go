package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tristendillon/bundlefix/core/logger"
	"github.com/tristendillon/bundlefix/core/paths"
)

var ErrNotFound = errors.New("bundle not found")

// Bundle is an application directory with the standard Contents layout.
// All fields are absolute paths.
type Bundle struct {
	Root       string
	Contents   string
	MacOS      string
	PlugIns    string
	Frameworks string
}

func Open(root string) (*Bundle, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve bundle path %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, root)
	}

	contents := filepath.Join(abs, "Contents")
	return &Bundle{
		Root:       abs,
		Contents:   contents,
		MacOS:      filepath.Join(contents, "MacOS"),
		PlugIns:    filepath.Join(contents, "PlugIns"),
		Frameworks: filepath.Join(contents, "Frameworks"),
	}, nil
}

// Jobs lists the root binaries: executables directly in MacOS and plugin
// libraries anywhere below PlugIns, sorted.
func (b *Bundle) Jobs(pluginExts []string) ([]string, error) {
	entries, err := os.ReadDir(b.MacOS)
	if err != nil {
		return nil, fmt.Errorf("failed to read executables directory: %w", err)
	}

	var jobs []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		if info.Mode().Perm()&0o111 == 0 {
			logger.Debug("Skipping non-executable %s", entry.Name())
			continue
		}
		jobs = append(jobs, filepath.Join(b.MacOS, entry.Name()))
	}

	plugins, err := b.plugins(pluginExts)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, plugins...)

	sort.Strings(jobs)
	return jobs, nil
}

func (b *Bundle) plugins(exts []string) ([]string, error) {
	if _, err := os.Stat(b.PlugIns); errors.Is(err, fs.ErrNotExist) {
		logger.Debug("No PlugIns directory in %s", b.Root)
		return nil, nil
	}

	var found []string
	err := filepath.WalkDir(b.PlugIns, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if hasExt(path, exts) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk plugins directory: %w", err)
	}
	return found, nil
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// SelfID is the relocatable identity of a job inside the bundle.
func (b *Bundle) SelfID(jobPath string) string {
	id, _ := paths.Rebase(jobPath, b.Contents, paths.SelfToken)
	return id
}

// EmbeddedID is how other binaries refer to an embedded dependency.
func (b *Bundle) EmbeddedID(name string) string {
	return paths.FrameworksToken + name
}

func (b *Bundle) EmbeddedPath(name string) string {
	return filepath.Join(b.Frameworks, filepath.FromSlash(name))
}
