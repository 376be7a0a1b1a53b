// Package postgres implements the repository interfaces on PostgreSQL
// for shared deployments. Schema changes are applied through the
// migration runner, not at connection time.
package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// queryBuilder accumulates WHERE conditions with positional placeholders.
type queryBuilder struct {
	conds []string
	args  []any
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{}
}

func (b *queryBuilder) where(column string, val any) {
	b.args = append(b.args, val)
	b.conds = append(b.conds, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

// whereOp appends a condition whose operator is part of expr, e.g.
// "e.end_time >=".
func (b *queryBuilder) whereOp(expr string, val any) {
	b.args = append(b.args, val)
	b.conds = append(b.conds, fmt.Sprintf("%s $%d", expr, len(b.args)))
}

func (b *queryBuilder) whereSearch(columns []string, term string) {
	b.args = append(b.args, "%"+term+"%")
	n := len(b.args)

	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", column, n)
	}

	b.conds = append(b.conds, "("+strings.Join(parts, " OR ")+")")
}

func (b *queryBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(b.conds, " AND ")
}

func (b *queryBuilder) limit(n int) string {
	b.args = append(b.args, n)

	return fmt.Sprintf(" LIMIT $%d", len(b.args))
}
