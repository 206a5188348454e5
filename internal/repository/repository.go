package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DBTX is an interface abstracting *sqlx.DB and *sqlx.Tx for repository use.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Default and maximum page sizes used when a caller passes no limit.
const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// whereBuilder collects AND-ed conditions with Oracle positional binds.
// Each "%d" in a condition is replaced by the next bind index.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(condition string, args ...interface{}) {
	indexes := make([]interface{}, len(args))
	for i := range args {
		indexes[i] = len(w.args) + i + 1
	}
	w.clauses = append(w.clauses, fmt.Sprintf(condition, indexes...))
	w.args = append(w.args, args...)
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.clauses, " AND ")
}

// pageQueries returns the paginated results query and the matching count query.
// Oracle compatibility: ROW_NUMBER() instead of LIMIT/OFFSET.
func pageQueries(columns, from, where, orderBy string, limit, offset int) (string, string) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	inner := fmt.Sprintf("SELECT %s, ROW_NUMBER() OVER (ORDER BY %s) AS rn FROM %s %s", columns, orderBy, from, where)
	results := fmt.Sprintf("SELECT %s FROM (%s) WHERE rn > %d AND rn <= %d ORDER BY rn", unqualified(columns), inner, offset, offset+limit)
	count := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", from, where)
	return results, count
}

// unqualified strips table aliases and keeps AS aliases, so the outer query of
// pageQueries selects the same column names the inner query produced.
func unqualified(columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if idx := strings.LastIndex(strings.ToUpper(p), " AS "); idx >= 0 {
			p = strings.TrimSpace(p[idx+4:])
		} else if dot := strings.LastIndex(p, "."); dot >= 0 {
			p = p[dot+1:]
		}
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}

// qualify prefixes every column with the table alias.
func qualify(alias string, columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

// bindList returns ":start, :start+1, ..." for n values.
func bindList(start, n int) string {
	binds := make([]string, n)
	for i := range binds {
		binds[i] = fmt.Sprintf(":%d", start+i)
	}
	return strings.Join(binds, ", ")
}

func nextSequenceValue(ctx context.Context, exec DBTX, sequence string) (int64, error) {
	var id int64
	if err := exec.GetContext(ctx, &id, fmt.Sprintf("SELECT %s.NEXTVAL FROM DUAL", sequence)); err != nil {
		return 0, fmt.Errorf("failed to get next value of %s: %w", sequence, err)
	}
	return id, nil
}

func boolToNumber(b bool) int {
	if b {
		return 1
	}
	return 0
}
