package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"organiflow/api/internal/hierarchy"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const selectEmployees = `SELECT id, name, title, manager_id, position FROM employees`

func (s *PostgresStore) ListEmployees(ctx context.Context) ([]hierarchy.Employee, error) {
	return listEmployees(ctx, s.db)
}

func listEmployees(ctx context.Context, q queryer) ([]hierarchy.Employee, error) {
	rows, err := q.QueryContext(ctx, selectEmployees+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []hierarchy.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (hierarchy.Employee, error) {
	var (
		e         hierarchy.Employee
		managerID sql.NullInt64
		position  sql.NullInt32
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Title, &managerID, &position); err != nil {
		return hierarchy.Employee{}, err
	}
	if managerID.Valid {
		e.ManagerID = hierarchy.ID(managerID.Int64)
	}
	if position.Valid {
		e.Order = hierarchy.OrderOf(int(position.Int32))
	}
	return e, nil
}

func (s *PostgresStore) GetEmployee(ctx context.Context, id int64) (hierarchy.Employee, error) {
	e, err := scanEmployee(s.db.QueryRowContext(ctx, selectEmployees+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return hierarchy.Employee{}, fmt.Errorf("employee %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return hierarchy.Employee{}, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

// InsertEmployee adds an employee as the last report of its manager.
func (s *PostgresStore) InsertEmployee(ctx context.Context, input NewEmployee) (hierarchy.Employee, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return hierarchy.Employee{}, fmt.Errorf("%w: name is required", ErrInvalidEmployee)
	}
	if input.ManagerID != nil {
		if _, err := s.GetEmployee(ctx, *input.ManagerID); err != nil {
			return hierarchy.Employee{}, err
		}
	}

	const insert = `
		INSERT INTO employees (name, title, manager_id, position)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position) + 1, 0) FROM employees WHERE manager_id IS NOT DISTINCT FROM $3))
		RETURNING id, name, title, manager_id, position
	`
	e, err := scanEmployee(s.db.QueryRowContext(ctx, insert, name, strings.TrimSpace(input.Title), nullableID(input.ManagerID)))
	if err != nil {
		return hierarchy.Employee{}, fmt.Errorf("insert employee: %w", err)
	}
	return e, nil
}

// SetManager moves one employee under managerID, or makes it a root when
// managerID is nil. The move is validated against the locked table, so a
// concurrent writer cannot slip a cycle in between check and update. Setting
// the current manager again is a no-op.
func (s *PostgresStore) SetManager(ctx context.Context, id int64, managerID *int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set manager: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	records, err := lockAndList(ctx, tx)
	if err != nil {
		return err
	}
	if !contains(records, id) {
		return fmt.Errorf("employee %d: %w", id, ErrNotFound)
	}
	if err := hierarchy.CheckMove(records, id, managerID); err != nil {
		var rejected *hierarchy.RejectedMove
		if errors.As(err, &rejected) && rejected.Reason == hierarchy.ReasonCurrentManager {
			return nil
		}
		return err
	}

	const update = `
		UPDATE employees
		SET manager_id = $2,
		    position = (SELECT COALESCE(MAX(position) + 1, 0) FROM employees WHERE manager_id IS NOT DISTINCT FROM $2 AND id <> $1),
		    updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update, id, nullableID(managerID)); err != nil {
		return fmt.Errorf("update manager: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set manager: %w", err)
	}
	return nil
}

// Reposition writes manager and position for every given record in one
// transaction. Records not listed keep their values. The merged result must
// reference only known employees and be acyclic.
func (s *PostgresStore) Reposition(ctx context.Context, records []hierarchy.Employee) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reposition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockAndList(ctx, tx)
	if err != nil {
		return err
	}
	merged := hierarchy.CloneAll(current)
	position := make(map[int64]int, len(merged))
	for i, r := range merged {
		position[r.ID] = i
	}
	for _, r := range records {
		i, ok := position[r.ID]
		if !ok {
			return fmt.Errorf("employee %d: %w", r.ID, ErrNotFound)
		}
		if r.ManagerID != nil {
			if _, known := position[*r.ManagerID]; !known {
				return &hierarchy.RejectedMove{EmployeeID: r.ID, Reason: hierarchy.ReasonUnknownReference}
			}
			if *r.ManagerID == r.ID {
				return &hierarchy.RejectedMove{EmployeeID: r.ID, Reason: hierarchy.ReasonSelf}
			}
		}
		merged[i].ManagerID = r.Clone().ManagerID
		merged[i].Order = r.Clone().Order
	}
	if cycle, cyclic := hierarchy.FindCycle(merged); cyclic {
		return &hierarchy.RejectedMove{EmployeeID: cycle[0], Reason: hierarchy.ReasonCycle}
	}

	const update = `UPDATE employees SET manager_id = $2, position = $3, updated_at = NOW() WHERE id = $1`
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, update, r.ID, nullableID(r.ManagerID), nullableOrder(r.Order)); err != nil {
			return fmt.Errorf("reposition employee %d: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reposition: %w", err)
	}
	return nil
}

// SeedDemo loads the demo organization into an empty table. It reports
// whether rows were inserted.
func (s *PostgresStore) SeedDemo(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM employees`).Scan(&count); err != nil {
		return false, fmt.Errorf("count employees: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range hierarchy.Normalize(DemoEmployees()) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO employees (id, name, title, manager_id, position) VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.Name, e.Title, nullableID(e.ManagerID), nullableOrder(e.Order),
		); err != nil {
			return false, fmt.Errorf("seed employee %d: %w", e.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `SELECT setval(pg_get_serial_sequence('employees', 'id'), (SELECT MAX(id) FROM employees))`); err != nil {
		return false, fmt.Errorf("reset employee sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit seed: %w", err)
	}
	return true, nil
}

func lockAndList(ctx context.Context, tx *sql.Tx) ([]hierarchy.Employee, error) {
	if _, err := tx.ExecContext(ctx, `LOCK TABLE employees IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, fmt.Errorf("lock employees: %w", err)
	}
	return listEmployees(ctx, tx)
}

func contains(records []hierarchy.Employee, id int64) bool {
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}
	return false
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableOrder(order *int) any {
	if order == nil {
		return nil
	}
	return int64(*order)
}
