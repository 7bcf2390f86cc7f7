package state

import (
	"fmt"
	"strings"
)

// ListOptions specifies filters for listing runs.
type ListOptions struct {
	WorkDir  string   // Filter by work directory (exact match)
	Statuses []Status // Filter by status (any of these)
	Limit    int      // Maximum number of runs, 0 for all
}

func (opts ListOptions) where() (string, []any) {
	var conditions []string
	var args []any

	if opts.WorkDir != "" {
		conditions = append(conditions, "work_dir = ?")
		args = append(args, opts.WorkDir)
	}

	if len(opts.Statuses) > 0 {
		// One placeholder per status; values are passed via args.
		placeholders := make([]string, len(opts.Statuses))
		for i, s := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ListRuns returns the runs matching the given filters, newest first.
func (db *DB) ListRuns(opts ListOptions) ([]*Run, error) {
	where, args := opts.where()
	query := "SELECT " + runColumns + " FROM runs" + where + " ORDER BY started_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// CountRuns returns the number of runs matching the given filters.
func (db *DB) CountRuns(opts ListOptions) (int, error) {
	where, args := opts.where()

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM runs"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}

	return count, nil
}

// escapeLike escapes the LIKE wildcards in s for use with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
