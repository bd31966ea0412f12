package registry

import (
	"sort"

	"github.com/kariedo/claude-code-security-rules/internal/types"
)

// IncludeGraph answers structural questions about the inclusion edges
// between registered documents: who includes whom, and whether any
// document transitively includes itself.
type IncludeGraph struct {
	registry *DocumentRegistry
}

// NewIncludeGraph creates an include graph over the given registry.
func NewIncludeGraph(registry *DocumentRegistry) *IncludeGraph {
	return &IncludeGraph{registry: registry}
}

// Graph returns the inclusion edges: normalized document path to the
// normalized paths it references, in document order of appearance.
func (g *IncludeGraph) Graph() map[string][]string {
	g.registry.mutex.RLock()
	defer g.registry.mutex.RUnlock()

	graph := make(map[string][]string, len(g.registry.documents))
	for path, doc := range g.registry.documents {
		refs := make([]string, len(doc.References))
		for i, ref := range doc.References {
			refs[i] = ref.NormalizedPath
		}
		graph[path] = refs
	}
	return graph
}

// Dependents returns the documents that directly reference the given
// normalized path, sorted by path. The watcher uses this to find which
// expansions a single file edit invalidates.
func (g *IncludeGraph) Dependents(normalizedPath string) []*types.RuleDocument {
	g.registry.mutex.RLock()
	defer g.registry.mutex.RUnlock()

	var dependents []*types.RuleDocument
	for _, doc := range g.registry.documents {
		for _, ref := range doc.References {
			if ref.NormalizedPath == normalizedPath {
				dependents = append(dependents, doc)
				break
			}
		}
	}

	sort.Slice(dependents, func(i, j int) bool {
		return dependents[i].NormalizedPath < dependents[j].NormalizedPath
	})
	return dependents
}

// DetectCycles returns every inclusion cycle as an ordered path chain
// whose first and last entries name the same document. Roots are visited
// in sorted order so repeated runs report cycles identically.
func (g *IncludeGraph) DetectCycles() [][]string {
	graph := g.Graph()

	paths := make([]string, 0, len(graph))
	for path := range graph {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var cycles [][]string
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, path := range paths {
		if !visited[path] {
			if cycle := detectCycleDFS(path, graph, visited, recStack, nil); cycle != nil {
				cycles = append(cycles, cycle)
			}
		}
	}

	return cycles
}

// detectCycleDFS walks the graph depth-first with a recursion stack; when
// an edge points back into the stack, the chain from that document's first
// occurrence is the cycle.
func detectCycleDFS(path string, graph map[string][]string, visited, recStack map[string]bool, chain []string) []string {
	visited[path] = true
	recStack[path] = true
	chain = append(chain, path)

	for _, ref := range graph[path] {
		if !visited[ref] {
			if cycle := detectCycleDFS(ref, graph, visited, recStack, chain); cycle != nil {
				return cycle
			}
		} else if recStack[ref] {
			start := 0
			for i, p := range chain {
				if p == ref {
					start = i
					break
				}
			}
			cycle := make([]string, 0, len(chain)-start+1)
			cycle = append(cycle, chain[start:]...)
			cycle = append(cycle, ref)
			return cycle
		}
	}

	recStack[path] = false
	return nil
}
