package hierarchy

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// genRecords draws an acyclic record set: every manager has a lower id than its
// report, some references dangle, and input order is shuffled.
func genRecords(t *rapid.T) []Employee {
	n := rapid.IntRange(1, 25).Draw(t, "n")
	names := []string{"Ana", "Bo", "Cy", "Di"}
	withOrder := rapid.Bool().Draw(t, "withOrder")

	records := make([]Employee, 0, n)
	for i := 1; i <= n; i++ {
		r := Employee{
			ID:   int64(i),
			Name: rapid.SampledFrom(names).Draw(t, "name"),
		}
		switch kind := rapid.IntRange(0, 9).Draw(t, "managerKind"); {
		case i == 1 || kind == 0:
		case kind == 1:
			r.ManagerID = ID(int64(1000 + i))
		default:
			r.ManagerID = ID(int64(rapid.IntRange(1, i-1).Draw(t, "manager")))
		}
		if withOrder {
			r.Order = OrderOf(rapid.IntRange(0, 5).Draw(t, "order"))
		}
		records = append(records, r)
	}
	return rapid.Permutation(records).Draw(t, "records")
}

func effectiveManager(records []Employee, r Employee) *int64 {
	if r.ManagerID == nil {
		return nil
	}
	for _, other := range records {
		if other.ID == *r.ManagerID {
			return r.ManagerID
		}
	}
	return nil
}

func TestProperty_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genRecords(t)
		forest := Build(records)
		flat := Flatten(forest)

		if len(flat) != len(records) {
			t.Fatalf("flatten returned %d records, want %d", len(flat), len(records))
		}
		byID := make(map[int64]Employee, len(flat))
		for _, r := range flat {
			byID[r.ID] = r
		}
		for _, r := range records {
			got, ok := byID[r.ID]
			if !ok {
				t.Fatalf("record %d missing after round trip", r.ID)
			}
			if !sameID(got.ManagerID, effectiveManager(records, r)) {
				t.Fatalf("record %d manager changed", r.ID)
			}
		}
		if Build(flat).Shape() != forest.Shape() {
			t.Fatalf("shape changed: %s vs %s", Build(flat).Shape(), forest.Shape())
		}

		// Order is exactly the sibling index.
		forest.Walk(func(n *Node, _ int) bool {
			for i, child := range n.Children {
				if *byID[child.Record.ID].Order != i {
					t.Fatalf("record %d order %d, want %d", child.Record.ID, *byID[child.Record.ID].Order, i)
				}
			}
			return true
		})
	})
}

func TestProperty_ResolvePreservesAcyclicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genRecords(t)
		before := CloneAll(records)
		policy := rapid.SampledFrom([]Policy{PolicyReparent, PolicySwap}).Draw(t, "policy")
		source := int64(rapid.IntRange(1, len(records)+1).Draw(t, "source"))
		target := int64(rapid.IntRange(1, len(records)+1).Draw(t, "target"))

		plan, err := Resolver{Policy: policy}.Resolve(records, Move{SourceID: source, TargetID: target})

		if !EqualSets(before, records) {
			t.Fatalf("resolve modified its input")
		}
		if err != nil {
			var rejected *RejectedMove
			if !errors.As(err, &rejected) {
				t.Fatalf("unexpected error type %T", err)
			}
			return
		}
		if cycle, cyclic := FindCycle(plan.After); cyclic {
			t.Fatalf("plan introduced cycle %v", cycle)
		}
		if Build(plan.After).Len() != len(records) {
			t.Fatalf("plan lost records")
		}
	})
}

func TestProperty_GuardMatchesSubtree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := genRecords(t)
		a := int64(rapid.IntRange(1, len(records)).Draw(t, "a"))
		b := int64(rapid.IntRange(1, len(records)).Draw(t, "b"))

		err := CheckMove(records, a, ID(b))

		var current *int64
		for _, r := range records {
			if r.ID == a {
				current = effectiveManager(records, r)
			}
		}
		inSubtree := false
		for _, id := range Subtree(records, a) {
			if id == b {
				inSubtree = true
			}
		}

		switch {
		case a == b:
			if err == nil || err.(*RejectedMove).Reason != ReasonSelf {
				t.Fatalf("self move accepted: %v", err)
			}
		case current != nil && *current == b:
			if err == nil || err.(*RejectedMove).Reason != ReasonCurrentManager {
				t.Fatalf("no-op move accepted: %v", err)
			}
		case inSubtree:
			if err == nil || err.(*RejectedMove).Reason != ReasonSubordinate {
				t.Fatalf("subordinate move accepted: %v", err)
			}
		default:
			if err != nil {
				t.Fatalf("valid move rejected: %v", err)
			}
		}
	})
}
