package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresStore keeps the ledger in PostgreSQL.
type PostgresStore struct {
	db       *sql.DB
	notifier *Notifier
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:       db,
		notifier: NewNotifier(),
	}
}

func (s *PostgresStore) StorageType() string {
	return "postgres"
}

func (s *PostgresStore) RunAtomically(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextErr(ctx, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	q := &pgQueries{db: tx, inTx: true, touched: touchSet{}}
	if err := fn(q); err != nil {
		return contextErr(ctx, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return contextErr(ctx, fmt.Errorf("commit transaction: %w", err))
	}

	s.notifier.Publish(q.touched.tables()...)
	return nil
}

func (s *PostgresStore) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(&pgQueries{db: s.db}); err != nil {
		return contextErr(ctx, err)
	}
	return nil
}

func (s *PostgresStore) Subscribe(tables ...Table) *Subscription {
	return s.notifier.Subscribe(tables...)
}

type pgQueries struct {
	db      dbtx
	inTx    bool
	touched touchSet
}

// forUpdate appends a row lock when the query runs inside a unit of work.
func (q *pgQueries) forUpdate(query string) string {
	if q.inTx {
		return query + " FOR UPDATE"
	}
	return query
}

func (q *pgQueries) touch(tables ...Table) {
	if q.touched != nil {
		q.touched.touch(tables...)
	}
}

func (q *pgQueries) exec(ctx context.Context, table Table, query string, args ...interface{}) (int64, error) {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, translateError(table, err)
	}
	q.touch(table)

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// execOne is exec for statements that must match exactly one row.
func (q *pgQueries) execOne(ctx context.Context, table Table, query string, args ...interface{}) error {
	n, err := q.exec(ctx, table, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) insertReturningID(ctx context.Context, table Table, query string, args ...interface{}) (int64, error) {
	var id int64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, translateError(table, err)
	}
	q.touch(table)
	return id, nil
}

// translateError maps driver errors onto the package sentinels.
func translateError(table Table, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return &ConstraintError{
			Table:      table,
			Constraint: pqErr.Constraint,
			Detail:     pqErr.Message,
		}
	}
	return err
}
