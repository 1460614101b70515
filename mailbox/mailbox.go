// Package mailbox stores messages in a per-subreddit maildir.
package mailbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-maildir"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const lockFile = ".lock"

var ErrNotFound = errors.New("message not found")

type Mailbox struct {
	dir  maildir.Dir
	lock *flock.Flock
}

// Entry is one stored message. Key is the file name without maildir info.
type Entry struct {
	Key  string
	Path string
}

func (e Entry) Open() (io.ReadCloser, error) {
	return os.Open(e.Path)
}

// Open creates <root>/<name>/{cur,new,tmp} if needed.
func Open(root, name string) (*Mailbox, error) {
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create mailbox %s: %w", path, err)
	}

	dir := maildir.Dir(path)
	if err := dir.Init(); err != nil {
		return nil, fmt.Errorf("init maildir %s: %w", path, err)
	}

	return &Mailbox{
		dir:  dir,
		lock: flock.New(filepath.Join(path, lockFile)),
	}, nil
}

func (m *Mailbox) Path() string {
	return string(m.dir)
}

// Deliver writes msg to tmp, syncs it and renames it to new/<key>.
func (m *Mailbox) Deliver(key string, msg []byte) error {
	if key == "" || strings.ContainsAny(key, "/:") || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid message key %q", key)
	}

	tmpPath := filepath.Join(m.Path(), "tmp", uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpPath, err)
	}

	if _, err := f.Write(msg); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, filepath.Join(m.Path(), "new", key)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("deliver %s: %w", key, err)
	}

	return nil
}

// Has reports whether a message with key is stored in new or cur.
func (m *Mailbox) Has(key string) (bool, error) {
	_, err := m.find(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Walk calls fn for every message in new, then cur.
func (m *Mailbox) Walk(fn func(Entry) error) error {
	for _, sub := range []string{"new", "cur"} {
		dir := filepath.Join(m.Path(), sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read %s: %w", dir, err)
		}

		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			entry := Entry{Key: keyOf(e.Name()), Path: filepath.Join(dir, e.Name())}
			if err := fn(entry); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *Mailbox) Remove(key string) error {
	path, err := m.find(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Lock takes an exclusive lock on the mailbox, blocking until it is free.
func (m *Mailbox) Lock() error {
	if err := m.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", m.Path(), err)
	}
	return nil
}

func (m *Mailbox) Unlock() error {
	return m.lock.Unlock()
}

func (m *Mailbox) find(key string) (string, error) {
	path := filepath.Join(m.Path(), "new", key)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	dir := filepath.Join(m.Path(), "cur")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	for _, e := range entries {
		if keyOf(e.Name()) == key {
			return filepath.Join(dir, e.Name()), nil
		}
	}

	return "", fmt.Errorf("%s: %w", key, ErrNotFound)
}

// keyOf strips the ":2,FLAGS" info suffix a mail client adds in cur.
func keyOf(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}
