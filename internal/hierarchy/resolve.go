package hierarchy

import (
	"errors"
	"fmt"
	"strings"
)

// Policy decides what a drop of one card onto another means.
type Policy string

const (
	// PolicyReparent places the dragged employee under the drop target.
	PolicyReparent Policy = "reparent"
	// PolicySwap exchanges the managers of the dragged employee and the target.
	PolicySwap Policy = "swap"
)

// ParsePolicy accepts "reparent" or "swap", case-insensitively. Empty input
// yields PolicyReparent.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyReparent:
		return PolicyReparent, nil
	case PolicySwap:
		return PolicySwap, nil
	default:
		return "", fmt.Errorf("unknown move policy %q", value)
	}
}

// Move is one completed drag: the card that was dragged and the card it was
// dropped on.
type Move struct {
	SourceID int64 `json:"sourceId"`
	TargetID int64 `json:"targetId"`
}

// ManagerUpdate is a single "set manager" call needed to persist a plan.
// PreviousManagerID is kept so a caller can undo the call on partial failure.
type ManagerUpdate struct {
	ID                int64  `json:"id"`
	NewManagerID      *int64 `json:"new_manager_id"`
	PreviousManagerID *int64 `json:"-"`
}

// Plan is the validated result of resolving a move.
type Plan struct {
	Move    Move
	Policy  Policy
	Before  []Employee
	After   []Employee
	Updates []ManagerUpdate
}

// Positions returns After in canonical pre-order with dense sibling orders,
// the payload for a batch reposition call. Only Order is normalized: every
// record keeps its stored ManagerID, so orphans keep their dangling reference.
func (p Plan) Positions() []Employee {
	stored := newIndex(p.After)
	out := Normalize(p.After)
	for i := range out {
		out[i].ManagerID = stored[out[i].ID].Clone().ManagerID
	}
	return out
}

// Resolver turns moves into plans under a fixed policy.
type Resolver struct {
	Policy Policy
}

// Resolve validates move against records and prepares the record updates.
// Either every edge of the move passes the guard and a plan is returned, or a
// *RejectedMove is returned and nothing is prepared. records is not modified.
func (r Resolver) Resolve(records []Employee, move Move) (Plan, error) {
	policy := r.Policy
	if policy == "" {
		policy = PolicyReparent
	}

	g := newGuard(records)
	var updates []ManagerUpdate
	var err error
	switch policy {
	case PolicyReparent:
		updates, err = g.reparent(move)
	case PolicySwap:
		updates, err = g.swap(move)
	default:
		return Plan{}, fmt.Errorf("unknown move policy %q", policy)
	}
	if err != nil {
		var rejected *RejectedMove
		if errors.As(err, &rejected) {
			rejected.Move = move
		}
		return Plan{}, err
	}

	after := applyUpdates(records, updates)
	if _, cyclic := FindCycle(after); cyclic {
		return Plan{}, &RejectedMove{Move: move, EmployeeID: move.SourceID, Reason: ReasonCycle}
	}

	return Plan{
		Move:    move,
		Policy:  policy,
		Before:  CloneAll(records),
		After:   after,
		Updates: updates,
	}, nil
}

func (g *guard) reparent(move Move) ([]ManagerUpdate, error) {
	target := ID(move.TargetID)
	if err := g.check(move.SourceID, target); err != nil {
		return nil, err
	}
	return []ManagerUpdate{{
		ID:                move.SourceID,
		NewManagerID:      target,
		PreviousManagerID: g.storedManager(move.SourceID),
	}}, nil
}

// swap validates both resulting edges against the pre-move forest before
// preparing either update.
func (g *guard) swap(move Move) ([]ManagerUpdate, error) {
	for _, id := range []int64{move.SourceID, move.TargetID} {
		if _, ok := g.idx[id]; !ok {
			return nil, &RejectedMove{EmployeeID: id, Reason: ReasonUnknownReference}
		}
	}
	if move.SourceID == move.TargetID {
		return nil, &RejectedMove{EmployeeID: move.SourceID, Reason: ReasonSelf}
	}

	sourceManager := g.currentManager(move.SourceID)
	targetManager := g.currentManager(move.TargetID)
	if err := g.check(move.SourceID, targetManager); err != nil {
		return nil, err
	}
	if err := g.check(move.TargetID, sourceManager); err != nil {
		return nil, err
	}
	return []ManagerUpdate{
		{ID: move.SourceID, NewManagerID: targetManager, PreviousManagerID: g.storedManager(move.SourceID)},
		{ID: move.TargetID, NewManagerID: sourceManager, PreviousManagerID: g.storedManager(move.TargetID)},
	}, nil
}

// applyUpdates returns a copy of records with the updates applied. A moved
// record that carries an explicit Order is appended after its new siblings
// when they all carry one too.
func applyUpdates(records []Employee, updates []ManagerUpdate) []Employee {
	after := CloneAll(records)
	moved := make(map[int64]*int64, len(updates))
	for _, u := range updates {
		moved[u.ID] = u.NewManagerID
	}
	for i := range after {
		if managerID, ok := moved[after[i].ID]; ok {
			if managerID == nil {
				after[i].ManagerID = nil
			} else {
				after[i].ManagerID = ID(*managerID)
			}
		}
	}

	idx := newIndex(after)
	for i := range after {
		if _, ok := moved[after[i].ID]; !ok || after[i].Order == nil {
			continue
		}
		managerID, hasManager := idx.managerOf(after[i])
		next, complete := 0, true
		for j := range after {
			if j == i {
				continue
			}
			if _, alsoMoved := moved[after[j].ID]; alsoMoved {
				continue
			}
			siblingManager, siblingHasManager := idx.managerOf(after[j])
			if siblingHasManager != hasManager || siblingManager != managerID {
				continue
			}
			if after[j].Order == nil {
				complete = false
				break
			}
			if *after[j].Order >= next {
				next = *after[j].Order + 1
			}
		}
		if complete {
			after[i].Order = OrderOf(next)
		}
	}
	return after
}
