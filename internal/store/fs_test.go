package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_LayoutIsHashPath(t *testing.T) {
	root := t.TempDir()
	s, err := OpenFS(root, nil)
	require.NoError(t, err)

	ctx := context.Background()
	net := NetworkKey(id("a"))
	sim := net.Child(id("b"))
	_, err = s.Write(ctx, net, Files{"hash.txt": []byte("a")})
	require.NoError(t, err)
	path, err := s.Write(ctx, sim, Files{"hash.txt": []byte("b")})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, string(id("a")), string(id("b"))), path)
	data, err := os.ReadFile(filepath.Join(path, "hash.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestFS_NoTempDirsLeftBehind(t *testing.T) {
	root := t.TempDir()
	s, err := OpenFS(root, nil)
	require.NoError(t, err)

	for range 2 {
		_, err = s.Write(context.Background(), NetworkKey(id("a")), Files{"x": []byte("1")})
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), e.Name())
	}
}

func TestFS_CancelledWriteCommitsNothing(t *testing.T) {
	s, err := OpenFS(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Write(ctx, NetworkKey(id("a")), Files{"x": []byte("1")})
	require.Error(t, err)

	ok, err := s.Exists(context.Background(), NetworkKey(id("a")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFS_BreaksStaleLock(t *testing.T) {
	s, err := OpenFS(t.TempDir(), nil)
	require.NoError(t, err)
	s.PollInterval = time.Millisecond
	s.StaleAfter = time.Minute

	key := NetworkKey(id("a"))
	lock := filepath.Join(s.Root(), "."+string(key.Hash())+".lock")
	require.NoError(t, os.WriteFile(lock, []byte("999999\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lock, old, old))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock, err := s.Lock(ctx, key)
	require.NoError(t, err)
	require.NoError(t, unlock())

	_, err = os.Stat(lock)
	assert.True(t, os.IsNotExist(err))
}

func TestFS_HeldLockStaysFresh(t *testing.T) {
	root := t.TempDir()
	holder, err := OpenFS(root, nil)
	require.NoError(t, err)
	holder.StaleAfter = 200 * time.Millisecond

	waiter, err := OpenFS(root, nil)
	require.NoError(t, err)
	waiter.PollInterval = 10 * time.Millisecond
	waiter.StaleAfter = 200 * time.Millisecond

	key := NetworkKey(id("a"))
	unlock, err := holder.Lock(context.Background(), key)
	require.NoError(t, err)

	// The waiter outlives several StaleAfter periods without breaking the lock.
	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()
	_, err = waiter.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	lock := filepath.Join(root, "."+string(key.Hash())+".lock")
	_, err = os.Stat(lock)
	require.NoError(t, err)

	require.NoError(t, unlock())
	require.NoError(t, unlock())
	_, err = os.Stat(lock)
	assert.True(t, os.IsNotExist(err))
}

func TestFS_ReadSkipsBookkeeping(t *testing.T) {
	s, err := OpenFS(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	net := NetworkKey(id("a"))

	_, err = s.Write(ctx, net, Files{"neurons.csv": []byte("n")})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Path(net), "."+string(id("b"))+".lock"), nil, 0o644))

	files, err := s.Read(ctx, net)
	require.NoError(t, err)
	assert.Equal(t, []string{"neurons.csv"}, files.Names())
}
