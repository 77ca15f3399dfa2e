package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("bin"), mode); err != nil {
		t.Fatal(err)
	}
}

func TestOpenNotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "App.app")
	writeFile(t, file, 0o644)

	if _, err := Open(file); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(file) err = %v, want ErrNotFound", err)
	}
	if _, err := Open(filepath.Join(dir, "missing.app")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) err = %v, want ErrNotFound", err)
	}
}

func TestOpenDerivesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "App.app")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	b, err := Open(root)
	if err != nil {
		t.Fatal(err)
	}
	if b.Frameworks != filepath.Join(root, "Contents", "Frameworks") {
		t.Errorf("Frameworks = %s", b.Frameworks)
	}
	if got := b.SelfID(filepath.Join(b.MacOS, "App")); got != "@executable_path/../MacOS/App" {
		t.Errorf("SelfID = %s", got)
	}
	if got := b.SelfID(filepath.Join(b.PlugIns, "platforms", "libqcocoa.dylib")); got != "@executable_path/../PlugIns/platforms/libqcocoa.dylib" {
		t.Errorf("SelfID(plugin) = %s", got)
	}
	if got := b.EmbeddedID("QtCore.framework/Versions/5/QtCore"); got != "@executable_path/../Frameworks/QtCore.framework/Versions/5/QtCore" {
		t.Errorf("EmbeddedID = %s", got)
	}
	if got := b.EmbeddedPath("QtCore.framework/Versions/5/QtCore"); got != filepath.Join(b.Frameworks, "QtCore.framework", "Versions", "5", "QtCore") {
		t.Errorf("EmbeddedPath = %s", got)
	}
}

func TestJobs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "App.app")
	macos := filepath.Join(root, "Contents", "MacOS")
	plugins := filepath.Join(root, "Contents", "PlugIns")

	writeFile(t, filepath.Join(macos, "App"), 0o755)
	writeFile(t, filepath.Join(macos, "helper"), 0o755)
	writeFile(t, filepath.Join(macos, "README.txt"), 0o644)
	writeFile(t, filepath.Join(macos, "nested", "tool"), 0o755)
	writeFile(t, filepath.Join(plugins, "platforms", "libqcocoa.dylib"), 0o644)
	writeFile(t, filepath.Join(plugins, "imageformats", "libqjpeg.DYLIB"), 0o644)
	writeFile(t, filepath.Join(plugins, "imageformats", "notes.txt"), 0o644)

	b, err := Open(root)
	if err != nil {
		t.Fatal(err)
	}
	jobs, err := b.Jobs([]string{".dylib"})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		filepath.Join(macos, "App"),
		filepath.Join(macos, "helper"),
		filepath.Join(plugins, "imageformats", "libqjpeg.DYLIB"),
		filepath.Join(plugins, "platforms", "libqcocoa.dylib"),
	}
	if !reflect.DeepEqual(jobs, want) {
		t.Errorf("Jobs = %v\nwant %v", jobs, want)
	}
}

func TestJobsWithoutPlugIns(t *testing.T) {
	root := filepath.Join(t.TempDir(), "App.app")
	writeFile(t, filepath.Join(root, "Contents", "MacOS", "App"), 0o755)

	b, err := Open(root)
	if err != nil {
		t.Fatal(err)
	}
	jobs, err := b.Jobs([]string{".dylib"})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("Jobs = %v", jobs)
	}
}

func TestJobsWithoutMacOS(t *testing.T) {
	root := filepath.Join(t.TempDir(), "App.app")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	b, err := Open(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Jobs(nil); err == nil {
		t.Error("expected an error for a bundle without Contents/MacOS")
	}
}
