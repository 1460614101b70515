package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redp", "redpull.pid")

	p, err := Acquire(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, p.Release())
	assert.NoFileExists(t, path)
}

func TestAcquire_AlreadyRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redpull.pid")
	// the parent of the test binary is alive for the duration of the test
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o644))

	_, err := Acquire(path)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.FileExists(t, path)
}

func TestAcquire_StaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redpull.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	p, err := Acquire(path)
	require.NoError(t, err)
	defer p.Release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestRelease_LeavesForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redpull.pid")
	p, err := Acquire(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))
	require.NoError(t, p.Release())
	assert.FileExists(t, path)
}
