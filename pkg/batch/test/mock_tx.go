// Package test provides mocks and in-memory components for tests of the batch engine and of the
// steps built on it.
package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	tx "github.com/tigerroll/communes/pkg/batch/core/tx"
)

// MockTx is a testify mock of tx.Tx.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	args := m.Called(ctx, model, tableName, conflictColumns, updateColumns)
	return args.Get(0).(int64), args.Error(1)
}

// MockTxManager is a testify mock of tx.TransactionManager.
type MockTxManager struct {
	mock.Mock
}

// Begin returns the tx.Tx configured with Return, or the configured error when it is nil.
func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tx.Tx), args.Error(1)
}

func (m *MockTxManager) Commit(t tx.Tx) error {
	return m.Called(t).Error(0)
}

func (m *MockTxManager) Rollback(t tx.Tx) error {
	return m.Called(t).Error(0)
}

var _ tx.Tx = (*MockTx)(nil)
var _ tx.TransactionManager = (*MockTxManager)(nil)

// FakeTxManager counts transactions without a database. Every Begin returns a fresh FakeTx.
type FakeTxManager struct {
	Begun      int
	Committed  int
	RolledBack int
	// CommitErr, when set, is returned by every Commit.
	CommitErr error
	// CommitFunc, when set, decides the outcome of each Commit instead of CommitErr.
	CommitFunc func() error
}

// FakeTx is the transaction handed out by FakeTxManager.
type FakeTx struct {
	Seq int
}

func (t *FakeTx) ExecuteUpsert(context.Context, interface{}, string, []string, []string) (int64, error) {
	return 0, nil
}

func (m *FakeTxManager) Begin(ctx context.Context, _ ...*sql.TxOptions) (tx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.Begun++
	return &FakeTx{Seq: m.Begun}, nil
}

func (m *FakeTxManager) Commit(tx.Tx) error {
	if m.CommitFunc != nil {
		if err := m.CommitFunc(); err != nil {
			return err
		}
	} else if m.CommitErr != nil {
		return m.CommitErr
	}
	m.Committed++
	return nil
}

func (m *FakeTxManager) Rollback(tx.Tx) error {
	m.RolledBack++
	return nil
}

var _ tx.TransactionManager = (*FakeTxManager)(nil)
