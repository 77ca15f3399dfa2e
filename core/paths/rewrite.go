package paths

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// Rebase swaps a directory prefix for a token.
//
// prefix must be a clean absolute directory. When path is prefix itself or
// lies below it, the result is token followed by the remainder of path
// (keeping its leading separator) and true. Otherwise path is returned
// untouched with false.
func Rebase(path, prefix, token string) (string, bool) {
	if path == prefix {
		return token, true
	}
	if !strings.HasPrefix(path, prefix+"/") {
		return path, false
	}
	return token + path[len(prefix):], true
}

// ExpandLoader replaces a leading @loader_path with loaderDir.
func ExpandLoader(ref, loaderDir string) string {
	if ref == LoaderToken {
		return loaderDir
	}
	if strings.HasPrefix(ref, LoaderToken+"/") {
		return filepath.Join(loaderDir, ref[len(LoaderToken)+1:])
	}
	return ref
}

// Canonical resolves symlinks like realpath(3). For a path that does not
// exist, the longest existing prefix is resolved and the rest is appended,
// so planning can carry on and the copy phase reports the missing file.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	dir, rest := abs, ""
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
		if prefix, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(prefix, rest), nil
		}
	}
}

// MatchFramework recognises X.framework/.../X. root is the directory ending
// in X.framework and embedded is the path from X.framework down to the
// binary. Any other shape, nested frameworks included, is not a match.
func MatchFramework(abs string) (root, embedded string, ok bool) {
	segments := strings.Split(abs, "/")
	idx := -1
	for i, seg := range segments {
		if strings.HasSuffix(seg, ".framework") {
			if idx != -1 {
				return "", "", false
			}
			idx = i
		}
	}
	if idx == -1 || idx == len(segments)-1 {
		return "", "", false
	}

	name := strings.TrimSuffix(segments[idx], ".framework")
	if name == "" || segments[len(segments)-1] != name {
		return "", "", false
	}

	root = strings.Join(segments[:idx+1], "/")
	embedded = strings.Join(segments[idx:], "/")
	return root, embedded, true
}
