package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRecords() []Employee {
	return []Employee{
		{ID: 1, Name: "John Smith", Title: "CEO"},
		{ID: 2, Name: "Sarah Johnson", Title: "CTO", ManagerID: ID(1)},
		{ID: 3, Name: "David Wilson", Title: "Product Director", ManagerID: ID(1)},
		{ID: 4, Name: "Michael Chen", Title: "Engineering Manager", ManagerID: ID(2)},
	}
}

func TestBuild_NestsByManager(t *testing.T) {
	forest := Build(sampleRecords())

	require.Len(t, forest, 1)
	require.Equal(t, "1(3 2(4))", forest.Shape())
	require.Equal(t, 4, forest.Len())

	cto := forest.Find(2)
	require.NotNil(t, cto)
	require.Equal(t, 1, cto.Depth)
	require.NotNil(t, cto.ReportsTo)
	require.Equal(t, "John Smith", cto.ReportsTo.Name)
	require.Nil(t, forest[0].ReportsTo)
}

func TestBuild_PromotesOrphansToRoots(t *testing.T) {
	records := []Employee{
		{ID: 1, Name: "A"},
		{ID: 2, Name: "B", ManagerID: ID(99)},
	}

	forest := Build(records)

	require.Len(t, forest, 2)
	require.Equal(t, "1 2", forest.Shape())
	require.Nil(t, forest[1].ReportsTo)
}

func TestBuild_IndependentOfInputOrder(t *testing.T) {
	records := sampleRecords()
	reversed := make([]Employee, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		reversed = append(reversed, records[i])
	}

	require.Equal(t, Build(records).Shape(), Build(reversed).Shape())
}

func TestBuild_SortsByOrderWhenEverySiblingHasOne(t *testing.T) {
	records := []Employee{
		{ID: 1, Name: "Root"},
		{ID: 2, Name: "Alpha", ManagerID: ID(1), Order: OrderOf(2)},
		{ID: 3, Name: "Bravo", ManagerID: ID(1), Order: OrderOf(0)},
		{ID: 4, Name: "Charlie", ManagerID: ID(1), Order: OrderOf(1)},
	}

	require.Equal(t, "1(3 4 2)", Build(records).Shape())
}

func TestBuild_FallsBackToNameWhenAnyOrderMissing(t *testing.T) {
	records := []Employee{
		{ID: 1, Name: "Root"},
		{ID: 2, Name: "Charlie", ManagerID: ID(1), Order: OrderOf(0)},
		{ID: 3, Name: "Alpha", ManagerID: ID(1)},
		{ID: 4, Name: "Bravo", ManagerID: ID(1), Order: OrderOf(1)},
	}

	require.Equal(t, "1(3 4 2)", Build(records).Shape())
}

func TestBuild_NameTiesBreakOnID(t *testing.T) {
	records := []Employee{
		{ID: 7, Name: "Same"},
		{ID: 3, Name: "Same"},
		{ID: 5, Name: "Same"},
	}

	require.Equal(t, "3 5 7", Build(records).Shape())
}

func TestBuild_DropsDuplicateIDs(t *testing.T) {
	records := []Employee{
		{ID: 1, Name: "First"},
		{ID: 1, Name: "Second"},
		{ID: 2, Name: "Child", ManagerID: ID(1)},
	}

	forest := Build(records)

	require.Equal(t, 2, forest.Len())
	require.Equal(t, "First", forest[0].Record.Name)
	require.ErrorIs(t, Validate(records), ErrDuplicateID)
}

func TestBuild_RecoversRecordsCaughtInCycle(t *testing.T) {
	records := []Employee{
		{ID: 1, Name: "a", ManagerID: ID(2)},
		{ID: 2, Name: "b", ManagerID: ID(1)},
		{ID: 3, Name: "c"},
		{ID: 4, Name: "d", ManagerID: ID(1)},
	}

	forest := Build(records)

	require.Equal(t, 4, forest.Len())
	require.Equal(t, "1(2 4) 3", forest.Shape())
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	records := []Employee{
		{ID: 1, Name: "Root", Order: OrderOf(0)},
		{ID: 2, Name: "Child", ManagerID: ID(1), Order: OrderOf(0)},
	}

	forest := Build(records)
	*forest[0].Children[0].Record.ManagerID = 42
	*forest[0].Record.Order = 9

	require.Equal(t, int64(1), *records[1].ManagerID)
	require.Equal(t, 0, *records[0].Order)
}

func TestBuild_Empty(t *testing.T) {
	forest := Build(nil)

	require.Empty(t, forest)
	require.Empty(t, Flatten(forest))
}

func TestFlatten_RecomputesManagerAndOrder(t *testing.T) {
	flat := Flatten(Build(sampleRecords()))

	require.Len(t, flat, 4)
	got := make(map[int64]Employee, len(flat))
	for _, r := range flat {
		got[r.ID] = r
	}
	require.Nil(t, got[1].ManagerID)
	require.Equal(t, 0, *got[1].Order)
	require.Equal(t, int64(1), *got[3].ManagerID)
	require.Equal(t, 0, *got[3].Order)
	require.Equal(t, int64(1), *got[2].ManagerID)
	require.Equal(t, 1, *got[2].Order)
	require.Equal(t, int64(2), *got[4].ManagerID)
	require.Equal(t, 0, *got[4].Order)

	// Pre-order: parents precede their reports.
	require.Equal(t, []int64{1, 3, 2, 4}, []int64{flat[0].ID, flat[1].ID, flat[2].ID, flat[3].ID})
}

func TestFlatten_ClearsDanglingManager(t *testing.T) {
	flat := Flatten(Build([]Employee{{ID: 2, Name: "B", ManagerID: ID(99)}}))

	require.Len(t, flat, 1)
	require.Nil(t, flat[0].ManagerID)
}

func TestFlatten_DoesNotMutateForest(t *testing.T) {
	forest := Build(sampleRecords())
	before := forest.Shape()

	_ = Flatten(forest)

	require.Equal(t, before, forest.Shape())
	require.Nil(t, forest[0].Record.Order)
}
