package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries provides access to named SQL statements loaded from embedded .sql
// files. dotsql owns the name-to-statement mapping; sqlx owns execution and
// placeholder rebinding so the same statements run on sqlite and postgres.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// LoadQueries loads every .sql file under queries/ and returns a Queries
// bound to the given connection.
func LoadQueries(conn *sqlx.DB) (*Queries, error) {
	var combined string

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		combined += string(content) + "\n"
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combined)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Queries{dot: dot, db: conn}, nil
}

// DB returns the underlying connection for transaction management.
func (q *Queries) DB() *sqlx.DB {
	return q.db
}

// Raw returns the named statement rebound for the active driver
// (? placeholders become $1, $2 on postgres).
func (q *Queries) Raw(name string) (string, error) {
	stmt, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return q.db.Rebind(stmt), nil
}

// Exec executes a named statement outside any transaction.
func (q *Queries) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	stmt, err := q.Raw(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, stmt, args...)
}

// Get scans a single row of a named query into dest.
func (q *Queries) Get(ctx context.Context, name string, dest any, args ...any) error {
	stmt, err := q.Raw(name)
	if err != nil {
		return err
	}
	return q.db.GetContext(ctx, dest, stmt, args...)
}

// Select scans all rows of a named query into the dest slice.
func (q *Queries) Select(ctx context.Context, name string, dest any, args ...any) error {
	stmt, err := q.Raw(name)
	if err != nil {
		return err
	}
	return q.db.SelectContext(ctx, dest, stmt, args...)
}

// ExecTx executes a named statement inside the given transaction.
func (q *Queries) ExecTx(ctx context.Context, tx *sqlx.Tx, name string, args ...any) (sql.Result, error) {
	stmt, err := q.Raw(name)
	if err != nil {
		return nil, err
	}
	return tx.ExecContext(ctx, stmt, args...)
}

// GetTx scans a single row of a named query inside the given transaction.
func (q *Queries) GetTx(ctx context.Context, tx *sqlx.Tx, name string, dest any, args ...any) error {
	stmt, err := q.Raw(name)
	if err != nil {
		return err
	}
	return tx.GetContext(ctx, dest, stmt, args...)
}
