package spreadsheet

import (
	"slices"

	"golang.org/x/exp/maps"
)

// DependencyNode represents a formula cell, or a cell formulas read, in the
// dependency graph
type DependencyNode struct {
	// cell-to-cell dependencies
	CellPrecedents map[Point]struct{} // cells this cell depends on
	CellDependents map[Point]struct{} // formula cells that depend on this cell

	// range dependencies (only for formula cells that depend on ranges)
	RangePrecedents map[Rect]struct{}

	// whether the node belongs to a formula cell
	HasFormula bool
}

// DependencyGraph manages cell dependencies and dirty tracking.
//
// dirtiness is transitive: marking a cell dirty marks everything downstream
// of it at the same time, so while a cell is dirty all of its dependents
// are too. the calculation can then recurse into dirty precedents only.
type DependencyGraph struct {
	nodes          map[Point]*DependencyNode
	rangeObservers map[Rect]map[Point]struct{} // range -> cells that depend on it
	dirtySet       map[Point]struct{}
	volatileCells  map[Point]struct{}
	spillRegions   map[Point]Rect // anchor -> rectangle its array result wants
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:          make(map[Point]*DependencyNode),
		rangeObservers: make(map[Rect]map[Point]struct{}),
		dirtySet:       make(map[Point]struct{}),
		volatileCells:  make(map[Point]struct{}),
		spillRegions:   make(map[Point]Rect),
	}
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(p Point) *DependencyNode {
	if node, exists := dg.nodes[p]; exists {
		return node
	}
	node := &DependencyNode{
		CellPrecedents:  make(map[Point]struct{}),
		CellDependents:  make(map[Point]struct{}),
		RangePrecedents: make(map[Rect]struct{}),
	}
	dg.nodes[p] = node
	return node
}

// AddFormula registers the formula at p with its precedents, replacing what
// was registered for p before
func (dg *DependencyGraph) AddFormula(p Point, cells []Point, ranges []Rect, volatile bool) {
	dg.RemoveFormula(p)
	node := dg.GetOrCreateNode(p)
	node.HasFormula = true
	for _, q := range cells {
		dg.AddCellDependency(p, q)
	}
	for _, r := range ranges {
		dg.AddRangeDependency(p, r)
	}
	if volatile {
		dg.volatileCells[p] = struct{}{}
	}
}

// RemoveFormula drops the formula at p: its precedents, dirty flag, volatile
// flag and spill region. cells depending on p keep their edges.
func (dg *DependencyGraph) RemoveFormula(p Point) {
	node, exists := dg.nodes[p]
	if !exists {
		return
	}
	dg.ClearDependencies(p)
	node.HasFormula = false
	delete(dg.dirtySet, p)
	delete(dg.volatileCells, p)
	delete(dg.spillRegions, p)
	dg.cleanupNodeIfEmpty(p)
}

// cleanupNodeIfEmpty removes a node if it has no dependencies or formula
func (dg *DependencyGraph) cleanupNodeIfEmpty(p Point) {
	node, exists := dg.nodes[p]
	if !exists {
		return
	}
	if node.HasFormula ||
		len(node.CellPrecedents) > 0 ||
		len(node.CellDependents) > 0 ||
		len(node.RangePrecedents) > 0 {
		return
	}
	delete(dg.nodes, p)
	delete(dg.dirtySet, p)
}

// AddCellDependency adds a cell-to-cell dependency (from depends on to)
func (dg *DependencyGraph) AddCellDependency(from, to Point) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)
	fromNode.CellPrecedents[to] = struct{}{}
	toNode.CellDependents[from] = struct{}{}
}

// AddRangeDependency adds a cell-to-range dependency (from depends on range)
func (dg *DependencyGraph) AddRangeDependency(from Point, r Rect) {
	node := dg.GetOrCreateNode(from)
	node.RangePrecedents[r] = struct{}{}
	if dg.rangeObservers[r] == nil {
		dg.rangeObservers[r] = make(map[Point]struct{})
	}
	dg.rangeObservers[r][from] = struct{}{}
}

// ClearDependencies clears all precedents of a cell
func (dg *DependencyGraph) ClearDependencies(p Point) {
	node, exists := dg.nodes[p]
	if !exists {
		return
	}
	for q := range node.CellPrecedents {
		if precedent, ok := dg.nodes[q]; ok {
			delete(precedent.CellDependents, p)
			dg.cleanupNodeIfEmpty(q)
		}
	}
	clear(node.CellPrecedents)

	for r := range node.RangePrecedents {
		if observers, exists := dg.rangeObservers[r]; exists {
			delete(observers, p)
			if len(observers) == 0 {
				delete(dg.rangeObservers, r)
			}
		}
	}
	clear(node.RangePrecedents)
}

// GetDirectPrecedents returns cells this cell directly depends on
func (dg *DependencyGraph) GetDirectPrecedents(p Point) []Point {
	node, exists := dg.nodes[p]
	if !exists {
		return nil
	}
	return maps.Keys(node.CellPrecedents)
}

// GetRangePrecedents returns ranges this cell depends on
func (dg *DependencyGraph) GetRangePrecedents(p Point) []Rect {
	node, exists := dg.nodes[p]
	if !exists {
		return nil
	}
	return maps.Keys(node.RangePrecedents)
}

// SetSpillRegion records the rectangle an anchor's array result wants, so
// changes inside it re-evaluate the anchor
func (dg *DependencyGraph) SetSpillRegion(anchor Point, r Rect) {
	dg.spillRegions[anchor] = r
}

func (dg *DependencyGraph) ClearSpillRegion(anchor Point) {
	delete(dg.spillRegions, anchor)
}

// MarkDirty marks a formula cell and everything downstream of it
func (dg *DependencyGraph) MarkDirty(p Point) {
	if node, exists := dg.nodes[p]; !exists || !node.HasFormula {
		return
	}
	if _, dirty := dg.dirtySet[p]; dirty {
		return
	}
	dg.dirtySet[p] = struct{}{}
	dg.MarkDependentsDirty(p)
}

// MarkDependentsDirty marks everything downstream of a changed cell
func (dg *DependencyGraph) MarkDependentsDirty(p Point) {
	dg.propagate(p, nil)
}

// markSpillChange is MarkDependentsDirty for a cell written by the spill of
// anchor, which must not re-dirty that anchor through its own region
func (dg *DependencyGraph) markSpillChange(p Point, anchor Point) {
	dg.propagate(p, &anchor)
}

func (dg *DependencyGraph) propagate(start Point, skipAnchor *Point) {
	stack := []Point{start}
	visit := func(q Point) {
		if _, dirty := dg.dirtySet[q]; dirty {
			return
		}
		if node, exists := dg.nodes[q]; !exists || !node.HasFormula {
			return
		}
		dg.dirtySet[q] = struct{}{}
		stack = append(stack, q)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if node, exists := dg.nodes[p]; exists {
			for q := range node.CellDependents {
				visit(q)
			}
		}
		for r, observers := range dg.rangeObservers {
			if r.Contains(p) {
				for q := range observers {
					visit(q)
				}
			}
		}
		for anchor, region := range dg.spillRegions {
			if anchor == p || (skipAnchor != nil && anchor == *skipAnchor) {
				continue
			}
			if region.Contains(p) {
				visit(anchor)
			}
		}
	}
}

// IsDirty reports whether a cell needs recalculation
func (dg *DependencyGraph) IsDirty(p Point) bool {
	_, dirty := dg.dirtySet[p]
	return dirty
}

// ClearDirty clears the dirty flag for a cell
func (dg *DependencyGraph) ClearDirty(p Point) {
	delete(dg.dirtySet, p)
}

func (dg *DependencyGraph) DirtyCount() int {
	return len(dg.dirtySet)
}

// SortedDirty returns the dirty cells row by row
func (dg *DependencyGraph) SortedDirty() []Point {
	points := maps.Keys(dg.dirtySet)
	slices.SortFunc(points, comparePoints)
	return points
}

// dirtyIn returns the dirty cells inside r
func (dg *DependencyGraph) dirtyIn(r Rect) []Point {
	var out []Point
	for p := range dg.dirtySet {
		if r.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// dirtyAnchorsOver returns the dirty anchors whose spill region meets r
func (dg *DependencyGraph) dirtyAnchorsOver(r Rect) []Point {
	var out []Point
	for anchor, region := range dg.spillRegions {
		if _, dirty := dg.dirtySet[anchor]; dirty && region.Intersects(r) {
			out = append(out, anchor)
		}
	}
	return out
}

// MarkAllVolatileDirty marks every cell calling a volatile function
func (dg *DependencyGraph) MarkAllVolatileDirty() {
	for p := range dg.volatileCells {
		dg.MarkDirty(p)
	}
}

// MarkAllFormulasDirty marks every formula cell
func (dg *DependencyGraph) MarkAllFormulasDirty() {
	for p, node := range dg.nodes {
		if node.HasFormula {
			dg.dirtySet[p] = struct{}{}
		}
	}
}

// FormulaCount returns the number of formula cells registered
func (dg *DependencyGraph) FormulaCount() int {
	count := 0
	for _, node := range dg.nodes {
		if node.HasFormula {
			count++
		}
	}
	return count
}

// Reset forgets everything
func (dg *DependencyGraph) Reset() {
	*dg = *NewDependencyGraph()
}

func comparePoints(a, b Point) int {
	switch {
	case a.Y < b.Y:
		return -1
	case a.Y > b.Y:
		return 1
	case a.X < b.X:
		return -1
	case a.X > b.X:
		return 1
	}
	return 0
}
