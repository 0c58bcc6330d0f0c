package hierarchy

import (
	"sort"
	"strings"
)

// Node is one employee placed in the derived tree. Children are owned by the
// node; ReportsTo is a display copy of the manager record and is never used to
// walk upward.
type Node struct {
	Record    Employee
	Children  []*Node
	ReportsTo *Employee
	Depth     int
}

// Forest is the ordered sequence of root nodes.
type Forest []*Node

// Build turns a flat record set into a forest. Records whose manager is null or
// unknown become roots. Duplicate ids keep their first occurrence. Records that
// can only reach each other through a manager cycle are recovered by promoting
// the lowest id on each cycle to a root.
//
// Sibling order: when every sibling in a group has an Order, the group is sorted
// by Order; otherwise by Name. Remaining ties break on Name, then ID.
func Build(records []Employee) Forest {
	idx := newIndex(records)
	unique := make([]Employee, 0, len(idx))
	seen := make(map[int64]struct{}, len(idx))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		unique = append(unique, r)
	}

	parent := make(map[int64]int64, len(unique))
	for _, r := range unique {
		if managerID, ok := idx.managerOf(r); ok {
			parent[r.ID] = managerID
		}
	}
	breakCycles(unique, parent)

	nodes := make(map[int64]*Node, len(unique))
	for _, r := range unique {
		nodes[r.ID] = &Node{Record: r.Clone()}
	}

	roots := make([]*Node, 0, 4)
	for _, r := range unique {
		node := nodes[r.ID]
		managerID, ok := parent[r.ID]
		if !ok {
			roots = append(roots, node)
			continue
		}
		manager := idx[managerID].Clone()
		node.ReportsTo = &manager
		nodes[managerID].Children = append(nodes[managerID].Children, node)
	}

	sortSiblings(roots)
	forest := Forest(roots)
	forest.Walk(func(n *Node, depth int) bool {
		n.Depth = depth
		sortSiblings(n.Children)
		return true
	})
	return forest
}

// breakCycles removes the parent edge of the lowest id on every manager cycle
// so that each record reaches a root.
func breakCycles(unique []Employee, parent map[int64]int64) {
	children := make(map[int64][]int64, len(parent))
	for child, p := range parent {
		children[p] = append(children[p], child)
	}

	reached := make(map[int64]struct{}, len(unique))
	mark := func(root int64) {
		stack := []int64{root}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := reached[id]; ok {
				continue
			}
			reached[id] = struct{}{}
			stack = append(stack, children[id]...)
		}
	}
	for _, r := range unique {
		if _, ok := parent[r.ID]; !ok {
			mark(r.ID)
		}
	}
	if len(reached) == len(unique) {
		return
	}

	pending := make([]int64, 0, len(unique)-len(reached))
	for _, r := range unique {
		if _, ok := reached[r.ID]; !ok {
			pending = append(pending, r.ID)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	for _, start := range pending {
		if _, ok := reached[start]; ok {
			continue
		}
		// Walk upward until an id repeats; that id lies on the cycle.
		visited := map[int64]struct{}{}
		id := start
		for {
			if _, ok := visited[id]; ok {
				break
			}
			visited[id] = struct{}{}
			id = parent[id]
		}
		lowest := id
		for next := parent[id]; next != id; next = parent[next] {
			if next < lowest {
				lowest = next
			}
		}
		p := parent[lowest]
		delete(parent, lowest)
		children[p] = removeID(children[p], lowest)
		mark(lowest)
	}
}

func removeID(ids []int64, target int64) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func sortSiblings(siblings []*Node) {
	if len(siblings) < 2 {
		return
	}
	byOrder := true
	for _, n := range siblings {
		if n.Record.Order == nil {
			byOrder = false
			break
		}
	}
	sort.SliceStable(siblings, func(i, j int) bool {
		a, b := siblings[i].Record, siblings[j].Record
		if byOrder && *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
		an, bn := strings.TrimSpace(a.Name), strings.TrimSpace(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
}

// Walk visits every node depth-first, parents before children. Returning false
// from fn skips that node's children.
func (f Forest) Walk(fn func(n *Node, depth int) bool) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, child := range n.Children {
			visit(child, depth+1)
		}
	}
	for _, root := range f {
		visit(root, 0)
	}
}

// Find returns the node for id, or nil.
func (f Forest) Find(id int64) *Node {
	var found *Node
	f.Walk(func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.Record.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Len counts every node in the forest.
func (f Forest) Len() int {
	count := 0
	f.Walk(func(*Node, int) bool {
		count++
		return true
	})
	return count
}

// Shape renders the forest as nested id lists, e.g. "1(2(4) 3)". Two forests
// with the same shape have the same parent/child layout and sibling order.
func (f Forest) Shape() string {
	var b strings.Builder
	var write func(nodes []*Node)
	write = func(nodes []*Node) {
		for i, n := range nodes {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(formatID(n.Record.ID))
			if len(n.Children) > 0 {
				b.WriteByte('(')
				write(n.Children)
				b.WriteByte(')')
			}
		}
	}
	write(f)
	return b.String()
}
