package hierarchy

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidMove matches every guard rejection except unknown references.
	ErrInvalidMove = errors.New("invalid move")
	// ErrUnknownReference matches rejections caused by ids missing from the record set.
	ErrUnknownReference = errors.New("unknown employee reference")
)

// Reason classifies why a reassignment was rejected.
type Reason string

const (
	ReasonSelf             Reason = "self_drop"
	ReasonCurrentManager   Reason = "current_manager_drop"
	ReasonSubordinate      Reason = "subordinate_drop"
	ReasonUnknownReference Reason = "unknown_reference"
	ReasonCycle            Reason = "cycle"
)

// Message is the user-facing text for a rejection.
func (r Reason) Message() string {
	switch r {
	case ReasonSelf:
		return "An employee cannot report to themselves."
	case ReasonCurrentManager:
		return "This employee already reports there."
	case ReasonSubordinate:
		return "An employee cannot report to someone in their own team."
	case ReasonUnknownReference:
		return "That employee no longer exists. Refresh and try again."
	case ReasonCycle:
		return "This change would create a reporting loop."
	default:
		return "This move is not allowed."
	}
}

// RejectedMove is returned when a proposed reassignment would break the
// hierarchy. EmployeeID is the record whose manager change failed validation.
type RejectedMove struct {
	Move       Move
	EmployeeID int64
	Reason     Reason
}

func (e *RejectedMove) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("rejected move %d -> %d: %s", e.Move.SourceID, e.Move.TargetID, e.Reason)
}

// Is lets callers match the taxonomy sentinels with errors.Is.
func (e *RejectedMove) Is(target error) bool {
	if e.Reason == ReasonUnknownReference {
		return target == ErrUnknownReference
	}
	return target == ErrInvalidMove
}

// CheckMove reports whether employeeID may be placed under newManagerID. A nil
// newManagerID asks to make the employee a root. The returned error, if any,
// is a *RejectedMove.
func CheckMove(records []Employee, employeeID int64, newManagerID *int64) error {
	return newGuard(records).check(employeeID, newManagerID)
}

// Subtree returns the ids below id in the forest built from records, in
// ascending order. The id itself is not included.
func Subtree(records []Employee, id int64) []int64 {
	node := Build(records).Find(id)
	if node == nil {
		return nil
	}
	out := make([]int64, 0, 8)
	for id := range descendants(node) {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// FindCycle looks for a manager cycle among records, ignoring dangling
// references. It returns the ids on the first cycle found, lowest id first.
func FindCycle(records []Employee) ([]int64, bool) {
	idx := newIndex(records)
	const (
		white = iota
		gray
		black
	)
	color := make(map[int64]int, len(idx))
	ids := make([]int64, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sortIDs(ids)

	for _, start := range ids {
		if color[start] != white {
			continue
		}
		path := []int64{}
		id := start
		for {
			if color[id] == black {
				break
			}
			if color[id] == gray {
				cycle := cycleFrom(path, id)
				return cycle, true
			}
			color[id] = gray
			path = append(path, id)
			managerID, ok := idx.managerOf(idx[id])
			if !ok {
				break
			}
			id = managerID
		}
		for _, visited := range path {
			color[visited] = black
		}
	}
	return nil, false
}

func cycleFrom(path []int64, repeat int64) []int64 {
	for i, id := range path {
		if id == repeat {
			cycle := append([]int64(nil), path[i:]...)
			lowest := 0
			for j := range cycle {
				if cycle[j] < cycle[lowest] {
					lowest = j
				}
			}
			return append(cycle[lowest:], cycle[:lowest]...)
		}
	}
	return nil
}

// guard caches the index and forest so several edges can be checked against
// the same pre-move state.
type guard struct {
	idx    index
	forest Forest
	parent map[int64]int64
}

func newGuard(records []Employee) *guard {
	forest := Build(records)
	parent := make(map[int64]int64, len(records))
	forest.Walk(func(n *Node, _ int) bool {
		for _, child := range n.Children {
			parent[child.Record.ID] = n.Record.ID
		}
		return true
	})
	return &guard{idx: newIndex(records), forest: forest, parent: parent}
}

func (g *guard) check(employeeID int64, newManagerID *int64) error {
	reject := func(reason Reason) error {
		move := Move{SourceID: employeeID}
		if newManagerID != nil {
			move.TargetID = *newManagerID
		}
		return &RejectedMove{Move: move, EmployeeID: employeeID, Reason: reason}
	}

	if _, ok := g.idx[employeeID]; !ok {
		return reject(ReasonUnknownReference)
	}
	current, hasManager := g.parent[employeeID]
	if newManagerID == nil {
		if !hasManager {
			return reject(ReasonCurrentManager)
		}
		return nil
	}

	target := *newManagerID
	if _, ok := g.idx[target]; !ok {
		return reject(ReasonUnknownReference)
	}
	if target == employeeID {
		return reject(ReasonSelf)
	}
	if hasManager && current == target {
		return reject(ReasonCurrentManager)
	}
	if _, below := descendants(g.forest.Find(employeeID))[target]; below {
		return reject(ReasonSubordinate)
	}
	return nil
}

// currentManager returns the manager the forest places id under.
func (g *guard) currentManager(id int64) *int64 {
	if managerID, ok := g.parent[id]; ok {
		return ID(managerID)
	}
	return nil
}

// storedManager returns the manager reference held on id's record, which may
// differ from its forest position for orphans and broken cycles.
func (g *guard) storedManager(id int64) *int64 {
	return g.idx[id].Clone().ManagerID
}

func descendants(node *Node) map[int64]struct{} {
	out := map[int64]struct{}{}
	if node == nil {
		return out
	}
	stack := append([]*Node(nil), node.Children...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out[n.Record.ID] = struct{}{}
		stack = append(stack, n.Children...)
	}
	return out
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
