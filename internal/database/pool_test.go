package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestPool(t *testing.T) *Pool {
	t.Helper()
	p, err := Open(filepath.Join(t.TempDir(), "history.db"), DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestOpenAndPing(t *testing.T) {
	p := openTestPool(t)

	require.NoError(t, p.Ping(context.Background()))
	assert.NotNil(t, p.DB())
}

func TestOpenInMemory(t *testing.T) {
	p, err := Open(":memory:", DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Ping(context.Background()))
}

func TestWithTransaction(t *testing.T) {
	p := openTestPool(t)

	err := p.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec("CREATE TABLE probe (id INTEGER PRIMARY KEY)").Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, p.DB().Raw(
		"SELECT count(*) FROM sqlite_master WHERE type='table' AND name='probe'").Scan(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestWithTransactionRollback(t *testing.T) {
	p := openTestPool(t)
	boom := errors.New("boom")

	err := p.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE TABLE probe (id INTEGER PRIMARY KEY)").Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestWithTransactionRetryGivesUp(t *testing.T) {
	p := openTestPool(t)
	calls := 0

	err := p.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 retries")
}

func TestWithTransactionRetryNonRetryable(t *testing.T) {
	p := openTestPool(t)
	calls := 0

	err := p.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		return errors.New("syntax error")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCloseIdempotent(t *testing.T) {
	p, err := Open(filepath.Join(t.TempDir(), "history.db"), DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.Error(t, p.Ping(context.Background()))
}
