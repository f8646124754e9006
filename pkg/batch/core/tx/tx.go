// Package tx is the transaction abstraction the chunk engine commits through. One Tx spans
// exactly one chunk; nothing crosses chunk or step boundaries.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor is the set of write operations available inside a transaction.
type TxExecutor interface {
	// ExecuteUpsert inserts model (a struct pointer or a slice) into tableName. Rows that collide
	// on conflictColumns get updateColumns overwritten; an empty updateColumns means DO NOTHING.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
}

// Tx is an open transaction.
type Tx interface {
	TxExecutor
}

// TransactionManager begins, commits and rolls back transactions.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}
