package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebind rewrites ? placeholders to $n for Postgres. Queries in this
// package never contain a literal question mark.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate appends a row lock on Postgres. SQLite write transactions are
// opened with BEGIN IMMEDIATE, which already serializes writers.
func (d dialect) forUpdate(query string) string {
	if d != dialectPostgres {
		return query
	}
	return query + " FOR UPDATE"
}

func (d dialect) schema() string {
	r := strings.NewReplacer(
		"{{DECIMAL}}", d.pick("TEXT", "NUMERIC(38,18)"),
		"{{TIMESTAMP}}", d.pick("TIMESTAMP", "TIMESTAMPTZ"),
		"{{REAL}}", d.pick("REAL", "DOUBLE PRECISION"),
	)
	return r.Replace(schemaTemplate)
}

func (d dialect) pick(sqlite, postgres string) string {
	if d == dialectPostgres {
		return postgres
	}
	return sqlite
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
