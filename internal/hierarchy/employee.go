// Package hierarchy converts flat employee records into an org forest and back,
// and decides which manager reassignments keep that forest acyclic.
//
// Everything in this package is pure: functions take record slices and return
// new values without touching their inputs.
package hierarchy

import (
	"errors"
	"fmt"
)

// Employee is the flat, persisted form of one person in the org chart.
type Employee struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	ManagerID *int64 `json:"manager_id"`
	Order     *int   `json:"order,omitempty"`
}

// ErrDuplicateID is reported by Validate when two records share an id.
var ErrDuplicateID = errors.New("duplicate employee id")

// ErrInvalidID is reported by Validate for ids that are not positive.
var ErrInvalidID = errors.New("employee id must be positive")

// Clone returns a deep copy of the record.
func (e Employee) Clone() Employee {
	out := e
	if e.ManagerID != nil {
		id := *e.ManagerID
		out.ManagerID = &id
	}
	if e.Order != nil {
		order := *e.Order
		out.Order = &order
	}
	return out
}

// IsRoot reports whether the record has no manager reference at all.
func (e Employee) IsRoot() bool {
	return e.ManagerID == nil
}

// Equal compares two records by value.
func (e Employee) Equal(other Employee) bool {
	return e.ID == other.ID &&
		e.Name == other.Name &&
		e.Title == other.Title &&
		sameID(e.ManagerID, other.ManagerID) &&
		sameOrder(e.Order, other.Order)
}

// CloneAll deep-copies a record slice.
func CloneAll(records []Employee) []Employee {
	if records == nil {
		return nil
	}
	out := make([]Employee, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// EqualSets compares two record slices element by element.
func EqualSets(a, b []Employee) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Validate checks id uniqueness and positivity. Dangling manager references are
// not an error here; Build promotes those records to roots.
func Validate(records []Employee) error {
	seen := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if r.ID <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidID, r.ID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// ID returns a pointer to a copy of id, handy for ManagerID literals.
func ID(id int64) *int64 {
	return &id
}

// OrderOf returns a pointer to a copy of order.
func OrderOf(order int) *int {
	return &order
}

// index maps each unique id to its first record.
type index map[int64]Employee

func newIndex(records []Employee) index {
	idx := make(index, len(records))
	for _, r := range records {
		if _, dup := idx[r.ID]; dup {
			continue
		}
		idx[r.ID] = r
	}
	return idx
}

// managerOf resolves a record's manager inside the index. Dangling references
// resolve to (0, false), the same as no manager.
func (idx index) managerOf(r Employee) (int64, bool) {
	if r.ManagerID == nil {
		return 0, false
	}
	if _, ok := idx[*r.ManagerID]; !ok {
		return 0, false
	}
	return *r.ManagerID, true
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameOrder(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
