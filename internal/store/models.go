package store

import (
	"errors"

	"organiflow/api/internal/hierarchy"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidEmployee = errors.New("invalid employee")
)

// NewEmployee is the input for InsertEmployee.
type NewEmployee struct {
	Name      string
	Title     string
	ManagerID *int64
}

// DemoEmployees is the sample organization loaded by SeedDemo.
func DemoEmployees() []hierarchy.Employee {
	type row struct {
		id      int64
		name    string
		title   string
		manager int64
	}
	rows := []row{
		{1, "John Smith", "CEO", 0},
		{2, "Sarah Johnson", "CTO", 1},
		{3, "David Wilson", "Product Director", 1},
		{4, "Lisa Brown", "HR Director", 1},
		{5, "Michael Chen", "Engineering Manager", 2},
		{6, "Peter Anderson", "Product Manager", 3},
		{7, "Rachel Torres", "HR Manager", 4},
		{8, "James Taylor", "Frontend Lead", 5},
		{9, "Maria Garcia", "Backend Lead", 5},
		{10, "Thomas Wright", "UX Designer", 6},
		{11, "Amanda White", "Senior UX Designer", 6},
		{12, "Sophie Chen", "Senior HR Specialist", 7},
		{13, "Robert Johnson", "Junior UX Designer", 11},
		{14, "Emily Davis", "Senior Developer", 12},
		{15, "Sam Smith", "Senior Developer", 9},
		{16, "Alex Thompson", "Junior Developer", 14},
		{17, "Mark Wilson", "HR Analyst", 12},
		{18, "Julia Santos", "Recruitment Specialist", 12},
		{19, "Daniel Lee", "Junior Developer", 18},
		{20, "Isabella Martinez", "Senior Developer", 15},
		{21, "Oliver Brown", "Senior Developer", 13},
		{22, "Ava Johnson", "Senior Developer", 17},
	}
	out := make([]hierarchy.Employee, 0, len(rows))
	for _, r := range rows {
		e := hierarchy.Employee{ID: r.id, Name: r.name, Title: r.title}
		if r.manager != 0 {
			e.ManagerID = hierarchy.ID(r.manager)
		}
		out = append(out, e)
	}
	return out
}
