package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirLock_LockUnlock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	lock := NewDirLock(dir)
	assert.Equal(t, filepath.Join(dir, LockFile), lock.Path())

	require.NoError(t, lock.Lock(context.Background()))
	require.NoError(t, lock.Unlock())

	// Unlock on an unlocked lock is a no-op
	require.NoError(t, lock.Unlock())
}

func TestDirLock_SharedLocksCoexist(t *testing.T) {
	dir := t.TempDir()
	a := NewDirLock(dir)
	b := NewDirLock(dir)

	require.NoError(t, a.RLock(context.Background()))
	defer func() { _ = a.Unlock() }()
	require.NoError(t, b.RLock(context.Background()))
	require.NoError(t, b.Unlock())
}

func TestDirLock_ExclusiveBlocksUntilContextDone(t *testing.T) {
	dir := t.TempDir()
	holder := NewDirLock(dir)
	require.NoError(t, holder.Lock(context.Background()))
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := NewDirLock(dir).Lock(ctx)
	assert.Error(t, err)
}
