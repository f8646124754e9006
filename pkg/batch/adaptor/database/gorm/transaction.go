package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx over a gorm transaction.
type GormTxAdapter struct {
	db *gorm.DB
}

// ExecuteUpsert implements tx.TxExecutor inside the transaction.
func (t *GormTxAdapter) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return upsert(t.db.WithContext(ctx), model, tableName, conflictColumns, updateColumns)
}

// DB returns the transaction's *gorm.DB.
func (t *GormTxAdapter) DB() *gorm.DB {
	return t.db
}

// TxDB returns the *gorm.DB of a transaction begun by a GormTransactionManager.
func TxDB(t tx.Tx) (*gorm.DB, error) {
	adapter, ok := t.(*GormTxAdapter)
	if !ok {
		return nil, fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return adapter.db, nil
}

// GormTransactionManager implements tx.TransactionManager for one connection.
type GormTransactionManager struct {
	conn *GormDBAdapter
}

// NewGormTransactionManager creates the transaction manager of conn.
func NewGormTransactionManager(conn *GormDBAdapter) *GormTransactionManager {
	return &GormTransactionManager{conn: conn}
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)

func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	gormTx := m.conn.GormDB().WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction on '%s': %w", m.conn.Name(), gormTx.Error)
	}
	return &GormTxAdapter{db: gormTx}, nil
}

func (m *GormTransactionManager) Commit(t tx.Tx) error {
	db, err := TxDB(t)
	if err != nil {
		return err
	}
	return db.Commit().Error
}

func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	db, err := TxDB(t)
	if err != nil {
		return err
	}
	return db.Rollback().Error
}
