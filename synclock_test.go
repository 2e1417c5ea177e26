package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncLockPath_NextToDatabase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/data", "vault", syncLockName), syncLockPath("/data/vault/catalog.db"))
	assert.NotEqual(t, syncLockPath("/a/catalog.db"), syncLockPath("/b/catalog.db"),
		"separate catalogs lock separately")
}

func TestAcquireSyncLock_RecordsHolderAndExcludesSecondSync(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "catalog.db")

	lock, err := acquireSyncLock(dbPath)
	require.NoError(t, err)

	pid, err := lockHolder(syncLockPath(dbPath))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	second, err := acquireSyncLock(dbPath)
	require.ErrorIs(t, err, errSyncRunning)
	assert.Nil(t, second)

	lock.Release()

	_, err = os.Stat(syncLockPath(dbPath))
	assert.ErrorIs(t, err, os.ErrNotExist)

	again, err := acquireSyncLock(dbPath)
	require.NoError(t, err, "released lock can be taken again")
	again.Release()
}

func TestAcquireSyncLock_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := acquireSyncLock("")
	assert.ErrorContains(t, err, "empty")
}

func TestLockHolder_RejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), syncLockName)
	require.NoError(t, os.WriteFile(path, []byte("catalog\n"), 0o644))

	_, err := lockHolder(path)
	assert.ErrorContains(t, err, "no valid PID")

	require.NoError(t, os.WriteFile(path, []byte("0\n"), 0o644))

	_, err = lockHolder(path)
	assert.Error(t, err, "PID 0 would signal the process group")
}

func TestRequestForcedSync_NoDaemon(t *testing.T) {
	t.Parallel()

	_, err := requestForcedSync(filepath.Join(t.TempDir(), "catalog.db"))
	assert.ErrorContains(t, err, "no running sync daemon")
}

func TestRequestForcedSync_RemovesStaleLock(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	path := syncLockPath(dbPath)
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o644))

	_, err := requestForcedSync(dbPath)
	assert.ErrorContains(t, err, "not running")

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// The handoff tests signal this process, so they do not run in parallel.
func TestLockOrHandOff_SignalsRunningDaemon(t *testing.T) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	daemon, err := acquireSyncLock(dbPath)
	require.NoError(t, err)
	defer daemon.Release()

	lock, pid, err := lockOrHandOff(dbPath)
	require.NoError(t, err)
	assert.Nil(t, lock, "the one-shot sync does not run itself")
	assert.Equal(t, os.Getpid(), pid)

	select {
	case sig := <-hup:
		assert.Equal(t, syscall.SIGHUP, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon was not asked for a forced sync")
	}
}

func TestLockOrHandOff_TakesFreeLock(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	lock, pid, err := lockOrHandOff(dbPath)
	require.NoError(t, err)
	require.NotNil(t, lock)
	defer lock.Release()

	assert.Zero(t, pid)

	data, err := os.ReadFile(syncLockPath(dbPath))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))
}
