package mailbox

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesLayout(t *testing.T) {
	root := t.TempDir()

	mb, err := Open(root, "golang")
	require.NoError(t, err)

	for _, sub := range []string{"cur", "new", "tmp"} {
		assert.DirExists(t, filepath.Join(root, "golang", sub))
	}
	assert.Equal(t, filepath.Join(root, "golang"), mb.Path())
}

func TestDeliver(t *testing.T) {
	mb, err := Open(t.TempDir(), "golang")
	require.NoError(t, err)

	require.NoError(t, mb.Deliver("abc123", []byte("Subject: hi\r\n\r\nbody")))

	raw, err := os.ReadFile(filepath.Join(mb.Path(), "new", "abc123"))
	require.NoError(t, err)
	assert.Equal(t, "Subject: hi\r\n\r\nbody", string(raw))

	tmp, err := os.ReadDir(filepath.Join(mb.Path(), "tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmp)

	ok, err := mb.Has("abc123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeliver_InvalidKey(t *testing.T) {
	mb, err := Open(t.TempDir(), "golang")
	require.NoError(t, err)

	assert.Error(t, mb.Deliver("", nil))
	assert.Error(t, mb.Deliver("../escape", nil))
	assert.Error(t, mb.Deliver(".retrieved", nil))
}

func TestHasAndRemove_CurWithFlags(t *testing.T) {
	mb, err := Open(t.TempDir(), "golang")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(mb.Path(), "cur", "c1:2,S"), []byte("x"), 0o600))

	ok, err := mb.Has("c1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mb.Remove("c1"))

	ok, err = mb.Has("c1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, mb.Remove("c1"), ErrNotFound)
}

func TestWalk(t *testing.T) {
	mb, err := Open(t.TempDir(), "golang")
	require.NoError(t, err)
	require.NoError(t, mb.Deliver("s1", []byte("one")))
	require.NoError(t, os.WriteFile(filepath.Join(mb.Path(), "cur", "c1:2,RS"), []byte("two"), 0o600))

	got := map[string]string{}
	err = mb.Walk(func(e Entry) error {
		r, err := e.Open()
		if err != nil {
			return err
		}
		defer r.Close()
		b, err := io.ReadAll(r)
		got[e.Key] = string(b)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"s1": "one", "c1": "two"}, got)
}

func TestLock(t *testing.T) {
	mb, err := Open(t.TempDir(), "golang")
	require.NoError(t, err)

	require.NoError(t, mb.Lock())
	assert.FileExists(t, filepath.Join(mb.Path(), lockFile))
	require.NoError(t, mb.Unlock())
}
