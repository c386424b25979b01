// Package postgres reads log tables kept in a PostgreSQL schema. Each log
// table carries the partition_key and row_key columns upstream writers use
// for day bucketing, plus the log payload columns.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/tablestore"
)

const defaultSchema = "public"

// Opener opens PostgreSQL databases as table store accounts.
type Opener struct {
	schema   string
	maxConns int32
	tracer   pgx.QueryTracer
}

// NewOpener returns an Opener reading tables from schema. tracer may be nil.
func NewOpener(schema string, maxConns int32, tracer pgx.QueryTracer) *Opener {
	if schema == "" {
		schema = defaultSchema
	}
	return &Opener{schema: schema, maxConns: maxConns, tracer: tracer}
}

func (o *Opener) Name() string { return "postgres" }

func (o *Opener) Accepts(connString string) bool {
	return strings.HasPrefix(connString, "postgres://") || strings.HasPrefix(connString, "postgresql://")
}

func (o *Opener) Open(ctx context.Context, connString string) (tablestore.Account, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse connection string: %w", err)
	}
	if o.maxConns > 0 {
		cfg.MaxConns = o.maxConns
	}
	if o.tracer != nil {
		cfg.ConnConfig.Tracer = o.tracer
	}
	name := cfg.ConnConfig.Database
	if name == "" {
		name = cfg.ConnConfig.Host
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect %s: %w", name, err)
	}
	return &Account{name: name, schema: o.schema, db: pool, close: pool.Close}, nil
}

// querier is the part of *pgxpool.Pool the backend queries through.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Account is one PostgreSQL database.
type Account struct {
	name   string
	schema string
	db     querier
	close  func()
}

func (a *Account) Name() string { return a.name }

func (a *Account) Close() error {
	if a.close != nil {
		a.close()
	}
	return nil
}

func (a *Account) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.db.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, a.schema)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tables in %s.%s: %w", a.name, a.schema, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres: scan table name in %s.%s: %w", a.name, a.schema, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list tables in %s.%s: %w", a.name, a.schema, err)
	}
	return names, nil
}

func (a *Account) Table(name string) tablestore.Table {
	return &Table{db: a.db, ident: pgx.Identifier{a.schema, name}}
}

// Table is one log table.
type Table struct {
	db    querier
	ident pgx.Identifier
}

const columns = `partition_key, row_key, ts, date_time,
		COALESCE(level, ''), COALESCE(env, ''), COALESCE(version, ''), COALESCE(component, ''),
		COALESCE(process, ''), COALESCE(context, ''), COALESCE(type, ''), COALESCE(stack, ''), COALESCE(msg, '')`

func firstSQL(ident pgx.Identifier) string {
	return "SELECT " + columns + " FROM " + ident.Sanitize() + " LIMIT 1"
}

func rangeSQL(ident pgx.Identifier) string {
	return "SELECT " + columns + " FROM " + ident.Sanitize() +
		" WHERE partition_key = $1 AND row_key > $2 ORDER BY row_key LIMIT $3"
}

func windowSQL(ident pgx.Identifier) string {
	return "SELECT " + columns + " FROM " + ident.Sanitize() +
		" WHERE partition_key = $1 AND ts BETWEEN $2 AND $3 ORDER BY row_key"
}

func (t *Table) query(ctx context.Context, sql string, args ...any) ([]model.LogRecord, error) {
	rows, err := t.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query %s: %w", t.ident.Sanitize(), err)
	}
	defer rows.Close()

	var list []model.LogRecord
	for rows.Next() {
		var (
			rec      model.LogRecord
			dateTime *time.Time
		)
		if err := rows.Scan(
			&rec.PartitionKey,
			&rec.RowKey,
			&rec.Timestamp,
			&dateTime,
			&rec.Level,
			&rec.Env,
			&rec.Version,
			&rec.Component,
			&rec.Process,
			&rec.Context,
			&rec.Type,
			&rec.Stack,
			&rec.Msg,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", t.ident.Sanitize(), err)
		}
		if dateTime != nil {
			rec.DateTime = *dateTime
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query %s: %w", t.ident.Sanitize(), err)
	}
	return list, nil
}

func (t *Table) First(ctx context.Context) (*model.LogRecord, error) {
	list, err := t.query(ctx, firstSQL(t.ident))
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (t *Table) QueryRange(ctx context.Context, partitionKey, afterRowKey string, limit int) ([]model.LogRecord, error) {
	return t.query(ctx, rangeSQL(t.ident), partitionKey, afterRowKey, limit)
}

func (t *Table) QueryWindow(ctx context.Context, partitionKey string, from, to time.Time) ([]model.LogRecord, error) {
	return t.query(ctx, windowSQL(t.ident), partitionKey, from, to)
}
