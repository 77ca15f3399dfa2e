package fixer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"

	"github.com/tristendillon/bundlefix/core/bundle"
	"github.com/tristendillon/bundlefix/core/graph"
	"github.com/tristendillon/bundlefix/core/logger"
	"github.com/tristendillon/bundlefix/core/models"
	"github.com/tristendillon/bundlefix/core/paths"
	"github.com/tristendillon/bundlefix/core/scanner"
	"github.com/tristendillon/bundlefix/core/toolchain"
)

type Options struct {
	Lister           toolchain.DependencyLister
	Rewriter         toolchain.Rewriter
	Rules            paths.RuleSet
	PluginExtensions []string
}

// Fixer makes one bundle self-contained.
type Fixer struct {
	Bundle *bundle.Bundle
	Jobs   []string

	opts  Options
	graph *graph.DependencyGraph
}

type CopyReport struct {
	Copied  int
	Skipped int
	Failed  int
}

type RewriteReport struct {
	Rewritten int
	Failed    int
}

type Report struct {
	Plan    *models.Plan
	Copy    CopyReport
	Rewrite RewriteReport
}

// Failed reports whether any copy or rewrite went wrong.
func (r *Report) Failed() bool {
	return r.Copy.Failed > 0 || r.Rewrite.Failed > 0
}

// New opens the bundle and lists its jobs. Both failures are fatal for the
// bundle.
func New(bundlePath string, opts Options) (*Fixer, error) {
	b, err := bundle.Open(bundlePath)
	if err != nil {
		return nil, err
	}
	if opts.Lister == nil {
		opts.Lister = toolchain.NewOtoolLister("", nil)
	}
	if opts.Rewriter == nil {
		opts.Rewriter = toolchain.NewInstallNameTool("", nil)
	}
	if len(opts.PluginExtensions) == 0 {
		opts.PluginExtensions = []string{".dylib"}
	}

	jobs, err := b.Jobs(opts.PluginExtensions)
	if err != nil {
		return nil, fmt.Errorf("cannot list binaries of %s: %w", b.Root, err)
	}
	logger.Debug("Bundle %s: %d jobs", b.Root, len(jobs))

	return &Fixer{Bundle: b, Jobs: jobs, opts: opts}, nil
}

// Scan builds the plan without touching the bundle.
func (f *Fixer) Scan() *models.Plan {
	plan, g := scanner.New(f.Bundle, f.opts.Lister, f.opts.Rules).Scan(f.Jobs)
	f.graph = g

	if logger.IsVerbose() {
		logger.Debug("Dependency tree:")
		g.Print(logger.DEBUG)
	}
	for _, cycle := range g.DetectCycles() {
		logger.Debug("Load cycle: %s", strings.Join(cycle, " -> "))
	}
	return plan
}

// Graph returns the dependency graph of the last Scan, or nil.
func (f *Fixer) Graph() *graph.DependencyGraph {
	return f.graph
}

// Copy embeds every planned source under Contents/Frameworks. Existing
// destinations are left alone; failures are logged and counted.
func (f *Fixer) Copy(plan *models.Plan) CopyReport {
	var report CopyReport
	if plan.Copies.Len() == 0 {
		return report
	}

	if err := os.MkdirAll(f.Bundle.Frameworks, 0o755); err != nil {
		logger.Warn("cannot create %s: %v", f.Bundle.Frameworks, err)
		report.Failed = plan.Copies.Len()
		return report
	}

	opt := copy.Options{
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
		PreserveTimes:     true,
		PermissionControl: copy.AddPermission(0o200),
	}

	for _, entry := range plan.Copies.Entries() {
		dest := filepath.Join(f.Bundle.Frameworks, entry.Name)
		if _, err := os.Lstat(dest); err == nil {
			logger.Debug("%s already exists, not copying %s", dest, entry.Source)
			report.Skipped++
			continue
		}

		logger.Info("Copying %s -> %s", entry.Source, dest)
		if err := copy.Copy(entry.Source, dest, opt); err != nil {
			report.Failed++
			logger.Warn("failed to copy %s: %v", entry.Source, err)
			if affected := f.affected(entry.Embedded); len(affected) > 0 {
				logger.Warn("  %s will keep a dangling reference", strings.Join(affected, ", "))
			}
			continue
		}
		report.Copied++
	}
	return report
}

// Rewrite runs the rewriter for every bucket, jobs in place and dependencies
// at their embedded location.
func (f *Fixer) Rewrite(plan *models.Plan) RewriteReport {
	var report RewriteReport
	for _, bucket := range plan.Renames.Buckets() {
		target := bucket.Path
		if !bucket.Job {
			target = f.Bundle.EmbeddedPath(bucket.Key)
		}

		logger.Debug("Rewriting %s (%d changes)", target, len(bucket.Renames))
		if err := f.opts.Rewriter.Rewrite(target, bucket.SelfID, bucket.Renames); err != nil {
			report.Failed++
			logger.Error("failed to rewrite %s: %v", target, err)
			continue
		}
		report.Rewritten++
	}
	return report
}

// Run scans, copies and rewrites. Per-binary failures are in the report.
func (f *Fixer) Run() *Report {
	plan := f.Scan()
	logger.Info("%s: %d libraries to embed, %d references to rewrite",
		filepath.Base(f.Bundle.Root), plan.Copies.Len(), plan.ExternalRenameCount())

	report := &Report{Plan: plan}
	report.Copy = f.Copy(plan)
	report.Rewrite = f.Rewrite(plan)
	return report
}

func (f *Fixer) affected(embedded string) []string {
	if f.graph == nil {
		return nil
	}
	out := f.graph.GetAffected(embedded)
	for i, key := range out {
		if rel, ok := paths.Rebase(key, f.Bundle.Root, filepath.Base(f.Bundle.Root)); ok {
			out[i] = rel
		}
	}
	return out
}
