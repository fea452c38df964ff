package dag

import (
	"sort"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// Node is one scheduling unit in the built graph: a stage, or one
// matrix variant of a stage.
type Node struct {
	index       int
	StageName   string // logical name, shared by every variant
	DisplayName string
	JobIndex    *int // variant ordinal within the stage, nil for non-matrix stages
	Stage       *domain.StageDefinition
	Variables   domain.Combination // matrix.<k> values injected for this variant, nil if none
}

// Graph is the immutable dependency graph built from a
// domain.PipelineDefinition.
type Graph struct {
	nodes        []*Node
	nodesByStage map[string][]*Node
	dependsOn    map[string][]string // logical stage name -> predecessor logical names
	predecessors map[int][]int       // node index -> predecessor node indices
	successors   map[int][]int       // node index -> successor node indices
	order        []*Node             // cached topological_order()
}

// Build constructs the graph from p, expanding every matrix stage into
// one node per surviving combination and wiring predecessor edges as
// the full Cartesian product of predecessor variants × stage variants.
func Build(p *domain.PipelineDefinition) (*Graph, error) {
	if p == nil || len(p.Stages) == 0 {
		return nil, EmptyPipeline{}
	}

	stageDefs := make(map[string]*domain.StageDefinition, len(p.Stages))
	for i := range p.Stages {
		stageDefs[p.Stages[i].Name] = &p.Stages[i]
	}
	for i := range p.Stages {
		s := &p.Stages[i]
		for _, dep := range s.DependsOn {
			if _, ok := stageDefs[dep]; !ok {
				return nil, UnknownDependency{Stage: s.Name, DependsOn: dep}
			}
		}
	}

	g := &Graph{
		nodesByStage: make(map[string][]*Node, len(p.Stages)),
		dependsOn:    make(map[string][]string, len(p.Stages)),
		predecessors: make(map[int][]int),
		successors:   make(map[int][]int),
	}

	for i := range p.Stages {
		s := &p.Stages[i]
		g.dependsOn[s.Name] = s.DependsOn

		if s.Matrix == nil {
			n := &Node{index: len(g.nodes), StageName: s.Name, DisplayName: displayName(s), Stage: s}
			g.nodes = append(g.nodes, n)
			g.nodesByStage[s.Name] = append(g.nodesByStage[s.Name], n)
			continue
		}

		combos, keyOrder := expandMatrix(s.Matrix)
		if len(combos) == 0 {
			return nil, ZeroCombinations{Stage: s.Name}
		}
		for vi, combo := range combos {
			idx := vi
			n := &Node{
				index:       len(g.nodes),
				StageName:   s.Name,
				DisplayName: s.Matrix.DisplayName(displayName(s), combo, keyOrder),
				JobIndex:    &idx,
				Stage:       s,
				Variables:   combo,
			}
			g.nodes = append(g.nodes, n)
			g.nodesByStage[s.Name] = append(g.nodesByStage[s.Name], n)
		}
	}

	for i := range p.Stages {
		s := &p.Stages[i]
		successorVariants := g.nodesByStage[s.Name]
		for _, dep := range s.DependsOn {
			for _, predNode := range g.nodesByStage[dep] {
				for _, succNode := range successorVariants {
					g.successors[predNode.index] = append(g.successors[predNode.index], succNode.index)
					g.predecessors[succNode.index] = append(g.predecessors[succNode.index], predNode.index)
				}
			}
		}
	}

	order, ok := g.tryTopologicalOrder()
	if !ok {
		return nil, CycleDetected{Stages: g.cycleStageNames()}
	}
	g.order = order
	return g, nil
}

func displayName(s *domain.StageDefinition) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// Roots returns the nodes with zero incoming edges.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for _, n := range g.nodes {
		if len(g.predecessors[n.index]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Predecessors returns every node (across all variants) that is a
// direct predecessor of any variant of the named logical stage.
func (g *Graph) Predecessors(name string) []*Node {
	return g.collect(name, g.predecessors)
}

// Successors returns every node (across all variants) that is a
// direct successor of any variant of the named logical stage.
func (g *Graph) Successors(name string) []*Node {
	return g.collect(name, g.successors)
}

func (g *Graph) collect(name string, edges map[int][]int) []*Node {
	seen := make(map[int]bool)
	var out []*Node
	for _, n := range g.nodesByStage[name] {
		for _, idx := range edges[n.index] {
			if !seen[idx] {
				seen[idx] = true
				out = append(out, g.nodes[idx])
			}
		}
	}
	return out
}

// NodesForStage returns every variant node belonging to the named
// logical stage (a single-element slice for non-matrix stages).
func (g *Graph) NodesForStage(name string) []*Node {
	return g.nodesByStage[name]
}

// TopologicalOrder returns the deterministic linear order computed at
// build time (ties broken by stage definition order).
func (g *Graph) TopologicalOrder() []*Node {
	return g.order
}

// IsReady reports whether every predecessor of the named logical stage
// is present in completed. completed holds logical stage names.
func (g *Graph) IsReady(name string, completed map[string]bool) bool {
	for _, dep := range g.dependsOn[name] {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// StageNames returns every logical stage name in definition order.
func (g *Graph) StageNames() []string {
	names := make([]string, 0, len(g.nodesByStage))
	seen := make(map[string]bool, len(g.nodesByStage))
	for _, n := range g.nodes {
		if !seen[n.StageName] {
			seen[n.StageName] = true
			names = append(names, n.StageName)
		}
	}
	return names
}

func (g *Graph) tryTopologicalOrder() ([]*Node, bool) {
	indegree := make(map[int]int, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n.index] = len(g.predecessors[n.index])
	}

	var ready []int
	for _, n := range g.nodes {
		if indegree[n.index] == 0 {
			ready = append(ready, n.index)
		}
	}

	order := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Ints(ready) // node index order == stage definition order
		idx := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[idx])
		for _, succ := range g.successors[idx] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}
	return order, len(order) == len(g.nodes)
}

func (g *Graph) cycleStageNames() []string {
	indegree := make(map[int]int, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n.index] = len(g.predecessors[n.index])
	}
	removed := make(map[int]bool, len(g.nodes))
	changed := true
	for changed {
		changed = false
		for _, n := range g.nodes {
			if removed[n.index] || indegree[n.index] != 0 {
				continue
			}
			removed[n.index] = true
			changed = true
			for _, succ := range g.successors[n.index] {
				indegree[succ]--
			}
		}
	}
	seen := make(map[string]bool)
	var names []string
	for _, n := range g.nodes {
		if !removed[n.index] && !seen[n.StageName] {
			seen[n.StageName] = true
			names = append(names, n.StageName)
		}
	}
	return names
}
