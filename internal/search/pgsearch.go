package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch searches the employees table directly. It backs the directory when
// Meilisearch is not configured or unhealthy.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Search matches full-text terms on name and title, with a prefix match on
// name so partially typed names still hit.
func (p *PgSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	args := []any{text, escapeLike(text) + "%"}
	where := `(e.search_vector @@ plainto_tsquery('simple', $1) OR e.name ILIKE $2)`
	if q.ManagerID != nil {
		args = append(args, *q.ManagerID)
		where += fmt.Sprintf(" AND e.manager_id = $%d", len(args))
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM employees e WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	args = append(args, limitOrDefault(q.Limit), max(q.Offset, 0))
	query := fmt.Sprintf(`
		SELECT e.id, e.name, e.title, e.manager_id, COALESCE(m.name, '') AS manager_name
		FROM employees e
		LEFT JOIN employees m ON m.id = e.manager_id
		WHERE %s
		ORDER BY ts_rank(e.search_vector, plainto_tsquery('simple', $1)) DESC, e.name, e.id
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search employees: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r         Result
			managerID sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Title, &managerID, &r.ManagerName); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		if managerID.Valid {
			id := managerID.Int64
			r.ManagerID = &id
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
