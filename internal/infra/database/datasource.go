package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrQueryFailed marks any connectivity or SQL failure at the data source boundary.
var ErrQueryFailed = errors.New("query failed")

// QueryError wraps the driver error with the operation that failed.
type QueryError struct {
	Op    string
	Cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrQueryFailed, e.Op, e.Cause)
}

func (e *QueryError) Is(target error) bool { return target == ErrQueryFailed }

func (e *QueryError) Unwrap() error { return e.Cause }

// Row is one result row: column values keyed by name, with the column order kept.
type Row struct {
	Columns []string
	Values  map[string]any
}

// Get returns the value of column name, or nil if absent or NULL.
func (r Row) Get(name string) any {
	return r.Values[name]
}

// DataSource executes parameterized read queries.
type DataSource interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLDataSource runs queries on a single pinned connection.
type SQLDataSource struct {
	conn *sql.Conn
}

// Acquire pins one connection from db for the duration of a run.
// The caller must Close the data source on every exit path.
func Acquire(ctx context.Context, db *sql.DB) (*SQLDataSource, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, &QueryError{Op: "acquire connection", Cause: err}
	}
	return &SQLDataSource{conn: conn}, nil
}

// Close returns the pinned connection to the pool.
func (s *SQLDataSource) Close() error {
	return s.conn.Close()
}

func (s *SQLDataSource) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	return queryRows(ctx, s.conn, query, args...)
}

func queryRows(ctx context.Context, q queryer, query string, args ...any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Op: "query", Cause: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Op: "columns", Cause: err}
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Op: "scan", Cause: err}
		}
		row := Row{Columns: cols, Values: make(map[string]any, len(cols))}
		for i, c := range cols {
			// Drivers may reuse byte buffers between rows.
			if b, ok := values[i].([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
			row.Values[c] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "iterate", Cause: err}
	}
	return result, nil
}
