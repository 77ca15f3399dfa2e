package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tristendillon/bundlefix/core/bundle"
	"github.com/tristendillon/bundlefix/core/models"
)

const ext = "/opt/bundlefix-test/lib"

type fakeLister struct {
	refs   map[string][]string
	errs   map[string]error
	called map[string]int
}

func (l *fakeLister) ListDependencies(path string) ([]string, error) {
	if l.called == nil {
		l.called = make(map[string]int)
	}
	l.called[path]++
	if err := l.errs[path]; err != nil {
		return nil, err
	}
	return l.refs[path], nil
}

func newBundle(t *testing.T, executables ...string) (*bundle.Bundle, []string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "App.app")
	if err := os.MkdirAll(filepath.Join(root, "Contents", "MacOS"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range executables {
		if err := os.WriteFile(filepath.Join(root, "Contents", "MacOS", name), []byte("bin"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	b, err := bundle.Open(root)
	if err != nil {
		t.Fatal(err)
	}
	jobs, err := b.Jobs([]string{".dylib"})
	if err != nil {
		t.Fatal(err)
	}
	return b, jobs
}

func TestScanSingleExternalLibrary(t *testing.T) {
	b, jobs := newBundle(t, "App")
	app := jobs[0]
	lister := &fakeLister{refs: map[string][]string{
		app: {"/usr/lib/libSystem.B.dylib", ext + "/libfoo.dylib"},
	}}

	plan, _ := New(b, lister, nil).Scan(jobs)

	want := []models.CopyEntry{{Source: ext + "/libfoo.dylib", Name: "libfoo.dylib", Embedded: "libfoo.dylib"}}
	if got := plan.Copies.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("copies = %+v, want %+v", got, want)
	}

	bucket, ok := plan.Renames.Get(app)
	if !ok {
		t.Fatal("no bucket for App")
	}
	if bucket.SelfID != "@executable_path/../MacOS/App" {
		t.Errorf("SelfID = %q", bucket.SelfID)
	}
	wantRenames := []models.Rename{{Old: ext + "/libfoo.dylib", New: "@executable_path/../Frameworks/libfoo.dylib"}}
	if !reflect.DeepEqual(bucket.Renames, wantRenames) {
		t.Errorf("renames = %+v", bucket.Renames)
	}

	lib, ok := plan.Renames.Get("libfoo.dylib")
	if !ok || len(lib.Renames) != 0 || lib.SelfID != "@executable_path/../Frameworks/libfoo.dylib" {
		t.Errorf("libfoo bucket = %+v", lib)
	}
}

func TestScanSkipsFixedReferences(t *testing.T) {
	b, jobs := newBundle(t, "App")
	lister := &fakeLister{refs: map[string][]string{
		jobs[0]: {"@executable_path/../Frameworks/libfoo.dylib"},
	}}

	plan, _ := New(b, lister, nil).Scan(jobs)
	if plan.Copies.Len() != 0 || plan.ExternalRenameCount() != 0 {
		t.Errorf("fixed reference produced plan %+v", plan.View())
	}
	if plan.Renames.Len() != 1 {
		t.Errorf("buckets = %d, want only the job", plan.Renames.Len())
	}
}

func TestScanRecursive(t *testing.T) {
	b, jobs := newBundle(t, "App")
	lister := &fakeLister{refs: map[string][]string{
		jobs[0]:               {ext + "/libfoo.dylib"},
		ext + "/libfoo.dylib": {ext + "/libfoo.dylib", ext + "/libbar.dylib", "/usr/lib/libc++.1.dylib"},
	}}

	plan, g := New(b, lister, nil).Scan(jobs)

	if _, ok := plan.Copies.Get(ext + "/libbar.dylib"); !ok {
		t.Error("libbar not planned for copy")
	}
	foo, ok := plan.Renames.Get("libfoo.dylib")
	if !ok {
		t.Fatal("no libfoo bucket")
	}
	want := []models.Rename{
		{Old: ext + "/libfoo.dylib", New: "@executable_path/../Frameworks/libfoo.dylib"},
		{Old: ext + "/libbar.dylib", New: "@executable_path/../Frameworks/libbar.dylib"},
	}
	if !reflect.DeepEqual(foo.Renames, want) {
		t.Errorf("libfoo renames = %+v", foo.Renames)
	}
	if got := foo.ExternalRenames(); len(got) != 1 {
		t.Errorf("external renames = %+v", got)
	}
	if got := g.GetAffected("libbar.dylib"); !reflect.DeepEqual(got, []string{"libfoo.dylib", jobs[0]}) {
		t.Errorf("affected = %v", got)
	}
}

func TestScanSharedDependencyCopiedOnce(t *testing.T) {
	b, jobs := newBundle(t, "App", "Helper")
	lister := &fakeLister{refs: map[string][]string{
		jobs[0]: {ext + "/libshared.dylib"},
		jobs[1]: {ext + "/libshared.dylib"},
	}}

	plan, _ := New(b, lister, nil).Scan(jobs)
	if plan.Copies.Len() != 1 {
		t.Errorf("copies = %d, want 1", plan.Copies.Len())
	}
	if n := lister.called[ext+"/libshared.dylib"]; n != 1 {
		t.Errorf("libshared scanned %d times", n)
	}
	for _, job := range jobs {
		bucket, _ := plan.Renames.Get(job)
		if len(bucket.Renames) != 1 {
			t.Errorf("%s renames = %+v", job, bucket.Renames)
		}
	}
}

func TestScanFramework(t *testing.T) {
	b, jobs := newBundle(t, "App")
	fw := ext + "/QtCore.framework/Versions/5/QtCore"
	lister := &fakeLister{refs: map[string][]string{
		jobs[0]: {fw},
		fw:      {fw},
	}}

	plan, _ := New(b, lister, nil).Scan(jobs)

	want := []models.CopyEntry{{
		Source:    ext + "/QtCore.framework",
		Name:      "QtCore.framework",
		Framework: true,
		Embedded:  "QtCore.framework/Versions/5/QtCore",
	}}
	if got := plan.Copies.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("copies = %+v", got)
	}
	bucket, ok := plan.Renames.Get("QtCore.framework/Versions/5/QtCore")
	if !ok {
		t.Fatal("no framework bucket")
	}
	if bucket.SelfID != "@executable_path/../Frameworks/QtCore.framework/Versions/5/QtCore" {
		t.Errorf("SelfID = %q", bucket.SelfID)
	}
	if !reflect.DeepEqual(bucket.Renames, []models.Rename{{Old: fw, New: bucket.SelfID}}) {
		t.Errorf("renames = %+v", bucket.Renames)
	}
}

func TestScanLoaderPath(t *testing.T) {
	b, jobs := newBundle(t, "App")
	lister := &fakeLister{refs: map[string][]string{
		jobs[0]:               {ext + "/libfoo.dylib"},
		ext + "/libfoo.dylib": {"@loader_path/libbar.dylib"},
	}}

	plan, _ := New(b, lister, nil).Scan(jobs)
	if _, ok := plan.Copies.Get(ext + "/libbar.dylib"); !ok {
		t.Errorf("loader-relative dependency not resolved: %+v", plan.Copies.Entries())
	}
	foo, _ := plan.Renames.Get("libfoo.dylib")
	if len(foo.Renames) != 1 || foo.Renames[0].Old != "@loader_path/libbar.dylib" {
		t.Errorf("libfoo renames = %+v", foo.Renames)
	}
}

func TestScanLeavesRpathAlone(t *testing.T) {
	b, jobs := newBundle(t, "App")
	lister := &fakeLister{refs: map[string][]string{
		jobs[0]: {"@rpath/libfoo.dylib"},
	}}

	plan, _ := New(b, lister, nil).Scan(jobs)
	if plan.Copies.Len() != 0 || plan.ExternalRenameCount() != 0 {
		t.Errorf("@rpath reference planned: %+v", plan.View())
	}
}

func TestScanNoExternalDependencies(t *testing.T) {
	b, jobs := newBundle(t, "App")
	lister := &fakeLister{refs: map[string][]string{
		jobs[0]: {"/usr/lib/libSystem.B.dylib", "/System/Library/Frameworks/Cocoa.framework/Versions/A/Cocoa"},
	}}

	plan, _ := New(b, lister, nil).Scan(jobs)
	if plan.Copies.Len() != 0 || plan.ExternalRenameCount() != 0 || plan.Renames.Len() != 1 {
		t.Errorf("plan = %+v", plan.View())
	}
}

func TestScanIsIdempotent(t *testing.T) {
	b, jobs := newBundle(t, "App")
	lister := &fakeLister{refs: map[string][]string{
		jobs[0]: {"@executable_path/../MacOS/App", "@executable_path/../Frameworks/libfoo.dylib", "/usr/lib/libSystem.B.dylib"},
	}}

	first, _ := New(b, lister, nil).Scan(jobs)
	second, _ := New(b, lister, nil).Scan(jobs)
	for _, plan := range []*models.Plan{first, second} {
		if plan.Copies.Len() != 0 || plan.ExternalRenameCount() != 0 {
			t.Errorf("fixed bundle produced plan %+v", plan.View())
		}
	}
}

func TestScanListerErrorKeepsBucket(t *testing.T) {
	b, jobs := newBundle(t, "App", "Broken")
	// Jobs are sorted: App, Broken.
	lister := &fakeLister{
		refs: map[string][]string{jobs[0]: {ext + "/libfoo.dylib"}},
		errs: map[string]error{
			jobs[1]:               errors.New("not a Mach-O file"),
			ext + "/libfoo.dylib": errors.New("permission denied"),
		},
	}

	plan, _ := New(b, lister, nil).Scan(jobs)
	if plan.Renames.Len() != 3 {
		t.Fatalf("buckets = %d, want 3", plan.Renames.Len())
	}
	if broken, ok := plan.Renames.Get(jobs[1]); !ok || len(broken.Renames) != 0 {
		t.Errorf("broken bucket = %+v", broken)
	}
	if plan.Copies.Len() != 1 {
		t.Errorf("copies = %d", plan.Copies.Len())
	}
}

func TestScanEmbeddedNameCollision(t *testing.T) {
	b, jobs := newBundle(t, "App")
	lister := &fakeLister{refs: map[string][]string{
		jobs[0]: {ext + "/libz.dylib", "/opt/bundlefix-other/lib/libz.dylib"},
	}}

	plan, _ := New(b, lister, nil).Scan(jobs)
	if plan.Copies.Len() != 1 {
		t.Errorf("copies = %+v, want only the first libz", plan.Copies.Entries())
	}
	if _, ok := plan.Copies.Get(ext + "/libz.dylib"); !ok {
		t.Error("first libz not kept")
	}
}

func TestScanReferenceIntoBundle(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	realRoot := filepath.Join(dir, "real", "App.app")
	for _, p := range []string{
		filepath.Join(realRoot, "Contents", "MacOS", "App"),
		filepath.Join(realRoot, "Contents", "PlugIns", "libA.dylib"),
		filepath.Join(realRoot, "Contents", "PlugIns", "libB.dylib"),
	} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("bin"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink("real", filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}

	// open through the symlink so job paths and resolved references differ
	b, err := bundle.Open(filepath.Join(dir, "link", "App.app"))
	if err != nil {
		t.Fatal(err)
	}
	jobs, err := b.Jobs([]string{".dylib"})
	if err != nil {
		t.Fatal(err)
	}
	libA := filepath.Join(b.PlugIns, "libA.dylib")
	resolvedB := filepath.Join(realRoot, "Contents", "PlugIns", "libB.dylib")
	linkedApp := filepath.Join(b.MacOS, "App")
	lister := &fakeLister{refs: map[string][]string{
		libA: {resolvedB, linkedApp},
	}}

	plan, _ := New(b, lister, nil).Scan(jobs)

	if plan.Copies.Len() != 0 {
		t.Errorf("in-bundle binaries planned for copy: %+v", plan.Copies.Entries())
	}
	bucket, ok := plan.Renames.Get(libA)
	if !ok {
		t.Fatal("no bucket for libA")
	}
	want := []models.Rename{
		{Old: resolvedB, New: "@executable_path/../PlugIns/libB.dylib"},
		{Old: linkedApp, New: "@executable_path/../MacOS/App"},
	}
	if !reflect.DeepEqual(bucket.Renames, want) {
		t.Errorf("libA renames = %+v, want %+v", bucket.Renames, want)
	}
	if plan.Renames.Len() != len(jobs) {
		t.Errorf("buckets = %d, want one per job", plan.Renames.Len())
	}
}
