package hierarchy

import "strconv"

// Flatten converts a forest back into flat records in depth-first pre-order.
// ManagerID comes from each node's position (roots get nil) and Order is the
// node's index among its siblings. Input nodes are not modified.
func Flatten(forest Forest) []Employee {
	out := make([]Employee, 0, forest.Len())
	var visit func(nodes []*Node, managerID *int64)
	visit = func(nodes []*Node, managerID *int64) {
		for i, n := range nodes {
			record := n.Record.Clone()
			if managerID == nil {
				record.ManagerID = nil
			} else {
				record.ManagerID = ID(*managerID)
			}
			record.Order = OrderOf(i)
			out = append(out, record)
			visit(n.Children, ID(n.Record.ID))
		}
	}
	visit(forest, nil)
	return out
}

// Normalize runs records through Build and Flatten, yielding the canonical
// pre-order listing with dense sibling orders.
func Normalize(records []Employee) []Employee {
	return Flatten(Build(records))
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
