package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrTransactionDone is returned when a finished transaction is used.
var ErrTransactionDone = errors.New("transaction has already been committed or rolled back")

// IsolationLevel represents transaction isolation levels
type IsolationLevel int

const (
	// ReadUncommitted allows dirty reads
	ReadUncommitted IsolationLevel = iota
	// ReadCommitted prevents dirty reads (default)
	ReadCommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

// ToSQLIsolationLevel converts IsolationLevel to sql.IsolationLevel
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}

// NewTxOptions creates sql.TxOptions from isolation level
func NewTxOptions(isolation IsolationLevel, readOnly bool) *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: isolation.ToSQLIsolationLevel(),
		ReadOnly:  readOnly,
	}
}

// Transaction is the open transaction of a session. Queries run through the
// session while it is open execute inside it, temporary tables included.
type Transaction struct {
	tx      *sql.Tx
	session *Session
	depth   int
	done    bool
}

// OpenTransaction begins a transaction on the session. opts may be nil.
func (s *Session) OpenTransaction(ctx context.Context, opts *sql.TxOptions) (*Transaction, error) {
	if s.tx != nil {
		return nil, ErrTransactionOpen
	}
	tx, err := s.domain.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = &Transaction{tx: tx, session: s}
	return s.tx, nil
}

// TransactionFunc is a function that runs within a transaction
type TransactionFunc func(tx *Transaction) error

// InTransaction runs fn in a new transaction, committing when fn returns nil
// and rolling back otherwise or on panic.
func (s *Session) InTransaction(ctx context.Context, opts *sql.TxOptions, fn TransactionFunc) error {
	tx, err := s.OpenTransaction(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// ReadOnly runs fn in a read-only transaction.
func (s *Session) ReadOnly(ctx context.Context, fn TransactionFunc) error {
	return s.InTransaction(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

// Commit commits the transaction and detaches it from the session.
func (t *Transaction) Commit() error {
	if t.done {
		return ErrTransactionDone
	}
	t.finish()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction and detaches it from the session.
func (t *Transaction) Rollback() error {
	if t.done {
		return ErrTransactionDone
	}
	t.finish()
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (t *Transaction) finish() {
	t.done = true
	if t.session.tx == t {
		t.session.tx = nil
	}
}

// Savepoint runs fn inside a savepoint: an error from fn rolls back to the
// savepoint and leaves the enclosing transaction usable.
func (t *Transaction) Savepoint(ctx context.Context, fn TransactionFunc) error {
	if t.done {
		return ErrTransactionDone
	}
	t.depth++
	defer func() { t.depth-- }()
	name := fmt.Sprintf("sp_%d", t.depth)
	create, rollback, release := t.savepointSQL(name)

	if _, err := t.tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_, _ = t.tx.ExecContext(ctx, rollback)
			panic(p)
		}
	}()

	if err := fn(t); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, rollback); rbErr != nil {
			return fmt.Errorf("nested transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if release == "" {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, release); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (t *Transaction) savepointSQL(name string) (create, rollback, release string) {
	if t.session.domain.dialect.Provider() == "sqlserver" {
		// SQL Server savepoints are released by the enclosing commit
		return "SAVE TRANSACTION " + name, "ROLLBACK TRANSACTION " + name, ""
	}
	return "SAVEPOINT " + name, "ROLLBACK TO SAVEPOINT " + name, "RELEASE SAVEPOINT " + name
}
