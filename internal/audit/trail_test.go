package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"organiflow/api/internal/hierarchy"
)

func orgRecords() []hierarchy.Employee {
	return []hierarchy.Employee{
		{ID: 1, Name: "John Smith", Title: "CEO"},
		{ID: 2, Name: "Sarah Johnson", Title: "CTO", ManagerID: hierarchy.ID(1)},
		{ID: 3, Name: "David Wilson", Title: "Product Director", ManagerID: hierarchy.ID(1)},
		{ID: 4, Name: "Michael Chen", Title: "Engineering Manager", ManagerID: hierarchy.ID(2)},
	}
}

func TestTrailLifecycle(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "audit")
	trail := New(tempDir)

	history, err := trail.History(10)
	if err != nil {
		t.Fatalf("History() on empty trail error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d", len(history))
	}
	if _, err := trail.Diff(""); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("Diff() on empty trail error = %v, want ErrNoHistory", err)
	}

	first, ok, err := trail.Record(orgRecords(), "Avery", "Load organization")
	if err != nil || !ok {
		t.Fatalf("Record() ok=%v error = %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, recordsFile)); err != nil {
		t.Fatalf("records file missing: %v", err)
	}

	moved := orgRecords()
	moved[3].ManagerID = hierarchy.ID(3)
	second, ok, err := trail.Record(moved, "Avery", "Move 4 under 3")
	if err != nil || !ok {
		t.Fatalf("Record() ok=%v error = %v", ok, err)
	}
	if second.Hash == first.Hash {
		t.Fatal("expected a new commit")
	}

	history, err = trail.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Message != "Move 4 under 3" {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history[0].Author != "Avery" {
		t.Fatalf("unexpected author %q", history[0].Author)
	}

	head, err := trail.Diff("")
	if err != nil {
		t.Fatalf("Diff(head) error = %v", err)
	}
	if head.Commit.Hash != second.Hash || len(head.Employees) != 4 {
		t.Fatalf("unexpected head diff: %+v", head)
	}
	changes := head.Changes
	if len(changes) != 1 || changes[0].ID != 4 || *changes[0].Before != 2 || *changes[0].After != 3 {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestDiff_FirstCommitAndUnknownHash(t *testing.T) {
	trail := New(t.TempDir())
	first, _, err := trail.Record(orgRecords(), "Avery", "Initial")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	diff, err := trail.Diff(first.Hash[:7])
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if diff.Commit.Hash != first.Hash {
		t.Fatalf("abbreviated hash resolved to %s", diff.Commit.Hash)
	}
	// Every employee is new relative to the empty organization.
	if len(diff.Changes) != 4 || diff.Changes[0].Before != nil || diff.Changes[0].After != nil || *diff.Changes[1].After != 1 {
		t.Fatalf("unexpected first-commit changes: %+v", diff.Changes)
	}

	if _, err := trail.Diff("deadbeef"); !errors.Is(err, ErrUnknownCommit) {
		t.Fatalf("Diff(unknown) error = %v, want ErrUnknownCommit", err)
	}
}

func TestRecordSkipsUnchangedHierarchy(t *testing.T) {
	trail := New(t.TempDir())

	if _, _, err := trail.Record(orgRecords(), "Avery", "Initial"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	// Same reporting lines in a different input order.
	shuffled := orgRecords()
	shuffled[0], shuffled[3] = shuffled[3], shuffled[0]
	_, ok, err := trail.Record(shuffled, "Avery", "Nothing changed")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if ok {
		t.Fatal("expected no commit for an unchanged hierarchy")
	}

	history, _ := trail.History(0)
	if len(history) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(history))
	}
}

func TestConcurrentRecords(t *testing.T) {
	trail := New(t.TempDir())
	if _, _, err := trail.Record(orgRecords(), "Avery", "Initial"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := orgRecords()
			next = append(next, hierarchy.Employee{ID: int64(10 + idx), Name: fmt.Sprintf("Hire %02d", idx), ManagerID: hierarchy.ID(1)})
			if _, _, err := trail.Record(next, "Avery", fmt.Sprintf("Hire %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("Record() concurrent error = %v", err)
	}

	history, err := trail.History(100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits, got %d", writers+1, len(history))
	}
}

func TestChangesIncludesAddedAndRemoved(t *testing.T) {
	before := orgRecords()
	after := append(orgRecords()[:3], hierarchy.Employee{ID: 9, Name: "New", ManagerID: hierarchy.ID(2)})

	changes := Changes(before, after)

	if len(changes) != 2 || changes[0].ID != 4 || changes[0].After != nil || changes[1].ID != 9 || *changes[1].After != 2 {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Ada Lovelace"); got != "Ada.Lovelace" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
	if got := sanitizeEmail("!!!"); got != "user" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
}
