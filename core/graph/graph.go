package graph

import (
	"sort"
	"strings"
	"sync"

	"github.com/tristendillon/bundlefix/core/logger"
)

// Node is one binary in the dependency graph, keyed like its rename bucket.
type Node struct {
	Key          string   `json:"key"`
	Job          bool     `json:"job"`
	Dependencies []string `json:"dependencies"` // binaries this one loads
	Dependents   []string `json:"dependents"`   // binaries that load this one
}

// DependencyGraph records which binaries load which embedded libraries.
type DependencyGraph struct {
	nodes map[string]*Node
	order []string
	mutex sync.RWMutex
}

func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*Node),
	}
}

// AddNode registers key. Calling it again only upgrades the job flag.
func (dg *DependencyGraph) AddNode(key string, job bool) {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()

	node := dg.ensureNode(key)
	node.Job = node.Job || job
}

// AddEdge records that from loads to.
func (dg *DependencyGraph) AddEdge(from, to string) {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()

	src := dg.ensureNode(from)
	dst := dg.ensureNode(to)
	src.Dependencies = appendUnique(src.Dependencies, to)
	dst.Dependents = appendUnique(dst.Dependents, from)
}

func (dg *DependencyGraph) Len() int {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()
	return len(dg.nodes)
}

// GetDependencies returns direct dependencies of key
func (dg *DependencyGraph) GetDependencies(key string) []string {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	node, exists := dg.nodes[key]
	if !exists {
		return []string{}
	}
	deps := make([]string, len(node.Dependencies))
	copy(deps, node.Dependencies)
	return deps
}

// GetDependents returns binaries that load key directly
func (dg *DependencyGraph) GetDependents(key string) []string {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	node, exists := dg.nodes[key]
	if !exists {
		return []string{}
	}
	dependents := make([]string, len(node.Dependents))
	copy(dependents, node.Dependents)
	return dependents
}

// GetAffected returns every binary that loads key directly or transitively.
func (dg *DependencyGraph) GetAffected(key string) []string {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	visited := make(map[string]bool)
	var affected []string
	dg.dfsVisitDependents(key, visited, &affected)
	return affected
}

// DetectCycles finds circular load chains. dyld tolerates them, so they are
// reported rather than rejected.
func (dg *DependencyGraph) DetectCycles() [][]string {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	for _, key := range dg.order {
		if !visited[key] {
			if cycle := dg.dfsFindCycles(key, visited, recursionStack, nil); cycle != nil {
				cycles = append(cycles, cycle)
			}
		}
	}

	if len(cycles) > 0 {
		logger.Debug("DependencyGraph: Detected %d cycles", len(cycles))
	}
	return cycles
}

// Print logs every job followed by its dependency tree.
func (dg *DependencyGraph) Print(level logger.LogLevel) {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	log := logger.GetLogFromLevel(level)
	var roots []string
	for _, key := range dg.order {
		if dg.nodes[key].Job {
			roots = append(roots, key)
		}
	}
	sort.Strings(roots)

	for _, root := range roots {
		log("%s", root)
		dg.printChildren(log, root, "", map[string]bool{root: true})
	}
}

func (dg *DependencyGraph) printChildren(log func(string, ...interface{}), key, indent string, onPath map[string]bool) {
	deps := dg.nodes[key].Dependencies
	for i, dep := range deps {
		branch, next := "├── ", "│   "
		if i == len(deps)-1 {
			branch, next = "└── ", "    "
		}
		if onPath[dep] {
			log("%s%s%s (cycle)", indent, branch, dep)
			continue
		}
		log("%s%s%s", indent, branch, dep)
		onPath[dep] = true
		dg.printChildren(log, dep, indent+next, onPath)
		delete(onPath, dep)
	}
}

// ensureNode is not thread-safe, caller must lock
func (dg *DependencyGraph) ensureNode(key string) *Node {
	node, exists := dg.nodes[key]
	if !exists {
		node = &Node{Key: key, Dependencies: []string{}, Dependents: []string{}}
		dg.nodes[key] = node
		dg.order = append(dg.order, key)
	}
	return node
}

func (dg *DependencyGraph) dfsVisitDependents(key string, visited map[string]bool, affected *[]string) {
	if visited[key] {
		return
	}
	visited[key] = true

	node, exists := dg.nodes[key]
	if !exists {
		return
	}
	for _, dependent := range node.Dependents {
		if !visited[dependent] {
			*affected = append(*affected, dependent)
		}
		dg.dfsVisitDependents(dependent, visited, affected)
	}
}

func (dg *DependencyGraph) dfsFindCycles(key string, visited, recursionStack map[string]bool, path []string) []string {
	visited[key] = true
	recursionStack[key] = true
	path = append(path, key)

	for _, dep := range dg.nodes[key].Dependencies {
		if !visited[dep] {
			if cycle := dg.dfsFindCycles(dep, visited, recursionStack, path); cycle != nil {
				return cycle
			}
		} else if recursionStack[dep] {
			for i, p := range path {
				if p == dep {
					cycle := make([]string, len(path)-i)
					copy(cycle, path[i:])
					return cycle
				}
			}
		}
	}

	recursionStack[key] = false
	return nil
}

func appendUnique(slice []string, item string) []string {
	for _, s := range slice {
		if s == item {
			return slice
		}
	}
	return append(slice, item)
}

// String renders the graph as "key -> dep, dep" lines in insertion order.
func (dg *DependencyGraph) String() string {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	var b strings.Builder
	for _, key := range dg.order {
		b.WriteString(key)
		b.WriteString(" -> ")
		b.WriteString(strings.Join(dg.nodes[key].Dependencies, ", "))
		b.WriteString("\n")
	}
	return b.String()
}
