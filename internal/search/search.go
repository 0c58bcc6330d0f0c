package search

import "organiflow/api/internal/hierarchy"

// Result is a single directory hit returned to the caller.
type Result struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	ManagerID   *int64 `json:"manager_id"`
	ManagerName string `json:"managerName,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text      string
	ManagerID *int64 // restrict to direct reports of this manager
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// EmployeeRecord is the document indexed for one employee.
type EmployeeRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	ManagerID   *int64 `json:"managerId"`
	ManagerName string `json:"managerName"`
	Depth       int    `json:"depth"`
}

// RecordsFromForest derives index documents from a built forest, so each
// record carries the name of the manager it is displayed under.
func RecordsFromForest(forest hierarchy.Forest) []EmployeeRecord {
	out := make([]EmployeeRecord, 0, forest.Len())
	forest.Walk(func(n *hierarchy.Node, depth int) bool {
		rec := EmployeeRecord{
			ID:    n.Record.ID,
			Name:  n.Record.Name,
			Title: n.Record.Title,
			Depth: depth,
		}
		if n.ReportsTo != nil {
			rec.ManagerID = hierarchy.ID(n.ReportsTo.ID)
			rec.ManagerName = n.ReportsTo.Name
		}
		out = append(out, rec)
		return true
	})
	return out
}

func limitOrDefault(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	default:
		return limit
	}
}
