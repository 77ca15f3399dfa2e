package scanner

import (
	"path/filepath"

	"github.com/tristendillon/bundlefix/core/bundle"
	"github.com/tristendillon/bundlefix/core/graph"
	"github.com/tristendillon/bundlefix/core/logger"
	"github.com/tristendillon/bundlefix/core/models"
	"github.com/tristendillon/bundlefix/core/paths"
	"github.com/tristendillon/bundlefix/core/toolchain"
)

type item struct {
	path   string
	bucket *models.RenameBucket
}

// Scanner walks the load commands of a bundle's jobs and everything they
// pull in, building the copy and rename plans.
type Scanner struct {
	Bundle *bundle.Bundle
	Lister toolchain.DependencyLister
	Rules  paths.RuleSet

	plan     *models.Plan
	graph    *graph.DependencyGraph
	queue    []item
	sources  map[string]bool
	contents string // resolved Contents directory
}

// New returns a scanner for b. A nil rule set means the default system rules.
func New(b *bundle.Bundle, lister toolchain.DependencyLister, rules paths.RuleSet) *Scanner {
	if rules == nil {
		rules = paths.DefaultRules()
	}
	return &Scanner{
		Bundle: b,
		Lister: lister,
		Rules:  rules,
	}
}

// Scan visits every job and every external library reachable from them.
// Each source binary is visited at most once, so cyclic references terminate.
func (s *Scanner) Scan(jobs []string) (*models.Plan, *graph.DependencyGraph) {
	s.plan = models.NewPlan()
	s.graph = graph.NewDependencyGraph()
	s.queue = nil
	s.sources = make(map[string]bool)
	s.contents = s.Bundle.Contents
	if resolved, err := paths.Canonical(s.Bundle.Contents); err == nil {
		s.contents = resolved
	}

	for _, job := range jobs {
		if resolved, err := paths.Canonical(job); err == nil {
			s.sources[resolved] = true
		}
		bucket := s.plan.Renames.Bucket(job, models.RenameBucket{
			Job:    true,
			Path:   job,
			SelfID: s.Bundle.SelfID(job),
		})
		s.graph.AddNode(job, true)
		s.queue = append(s.queue, item{path: job, bucket: bucket})
	}

	for len(s.queue) > 0 {
		it := s.queue[0]
		s.queue = s.queue[1:]
		s.visit(it)
	}

	logger.Debug("Scanner: %d jobs, %d libraries to copy, %d references to rewrite",
		len(jobs), s.plan.Copies.Len(), s.plan.ExternalRenameCount())
	return s.plan, s.graph
}

func (s *Scanner) visit(it item) {
	logger.Debug("Scanning %s", it.path)
	refs, err := s.Lister.ListDependencies(it.path)
	if err != nil {
		logger.Warn("cannot list dependencies of %s: %v", it.path, err)
		return
	}

	for _, ref := range refs {
		if rule, ok := s.Rules.Match(ref); ok {
			logger.Debug("  ignoring %s (%s)", ref, rule.Kind)
			continue
		}
		if filepath.Base(ref) == filepath.Base(it.path) {
			it.bucket.Add(ref, it.bucket.SelfID)
			continue
		}
		s.reference(it, ref)
	}
}

func (s *Scanner) reference(it item, ref string) {
	expanded := paths.ExpandLoader(ref, filepath.Dir(it.path))
	if !filepath.IsAbs(expanded) {
		logger.Warn("%s: leaving %s unchanged, it does not resolve to an absolute path", it.path, ref)
		return
	}

	abs, err := paths.Canonical(expanded)
	if err != nil {
		logger.Warn("%s: cannot resolve %s: %v", it.path, ref, err)
		return
	}

	if id, ok := s.inBundle(abs); ok {
		logger.Debug("  %s: %s is inside the bundle, using %s", filepath.Base(it.path), ref, id)
		it.bucket.Add(ref, id)
		return
	}

	source, embedded := abs, filepath.Base(abs)
	framework := false
	if root, sub, ok := paths.MatchFramework(abs); ok {
		source, embedded, framework = root, sub, true
	}

	it.bucket.Add(ref, s.Bundle.EmbeddedID(embedded))
	s.graph.AddEdge(it.bucket.Key, embedded)

	if s.sources[source] {
		return
	}
	s.sources[source] = true

	if existing, ok := s.plan.Renames.Get(embedded); ok {
		logger.Warn("%s and %s both embed as %s; only the first is copied", existing.Path, abs, embedded)
		return
	}

	s.plan.Copies.Add(models.CopyEntry{
		Source:    source,
		Name:      filepath.Base(source),
		Framework: framework,
		Embedded:  embedded,
	})
	logger.Debug("  %s: will embed %s as %s", filepath.Base(it.path), source, embedded)

	bucket := s.plan.Renames.Bucket(embedded, models.RenameBucket{
		Path:   abs,
		SelfID: s.Bundle.EmbeddedID(embedded),
	})
	s.queue = append(s.queue, item{path: abs, bucket: bucket})
}

// inBundle maps a resolved path under Contents to its self-relative name.
func (s *Scanner) inBundle(abs string) (string, bool) {
	if id, ok := paths.Rebase(abs, s.contents, paths.SelfToken); ok {
		return id, true
	}
	return paths.Rebase(abs, s.Bundle.Contents, paths.SelfToken)
}
