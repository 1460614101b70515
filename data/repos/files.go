package repos

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	retrievedFile   = ".retrieved"
	skippedFile     = ".skipped"
	numCommentsFile = ".numcomments"
)

// FileStateRepo keeps state in sidecar files next to each subreddit's maildir:
// .retrieved and .skipped hold one ID per line, .numcomments holds
// tab-separated "submission_id<TAB>count" rows.
type FileStateRepo struct {
	root string
}

func NewFileStateRepo(root string) *FileStateRepo {
	return &FileStateRepo{root: root}
}

func (r *FileStateRepo) path(subreddit, name string) string {
	return filepath.Join(r.root, subreddit, name)
}

func (r *FileStateRepo) Retrieved(subreddit string) (map[string]bool, error) {
	return r.readIDs(r.path(subreddit, retrievedFile))
}

func (r *FileStateRepo) MarkRetrieved(subreddit, id string) error {
	return r.appendLine(r.path(subreddit, retrievedFile), id)
}

// Skipped returns the comment IDs listed in .skipped. Count rows are ignored.
func (r *FileStateRepo) Skipped(subreddit string) (map[string]bool, error) {
	ids := make(map[string]bool)
	err := r.scan(r.path(subreddit, skippedFile), func(line int, fields []string) error {
		if len(fields) == 1 {
			ids[fields[0]] = true
		}
		return nil
	})
	return ids, err
}

func (r *FileStateRepo) MarkSkipped(subreddit, id string) error {
	return r.appendLine(r.path(subreddit, skippedFile), id)
}

func (r *FileStateRepo) CommentCount(subreddit, submissionID string) (int, error) {
	counts, err := r.readCounts(subreddit)
	if err != nil {
		return 0, err
	}
	count := counts[submissionID]

	skippedPath := r.path(subreddit, skippedFile)
	err = r.scan(skippedPath, func(line int, fields []string) error {
		if len(fields) == 1 {
			return nil
		}
		if len(fields) != 2 {
			return fmt.Errorf("%s:%d: expected id and count, got %d fields", skippedPath, line, len(fields))
		}
		if fields[0] != submissionID {
			return nil
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("%s:%d: invalid count %q", skippedPath, line, fields[1])
		}
		count += n
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// SetCommentCount rewrites .numcomments through a temp file so an interrupted
// write never truncates the ledger.
func (r *FileStateRepo) SetCommentCount(subreddit, submissionID string, count int) error {
	path := r.path(subreddit, numCommentsFile)

	counts, err := r.readCounts(subreddit)
	if err != nil {
		return err
	}
	counts[submissionID] = count

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), numCommentsFile+".*")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for id, n := range counts {
		fmt.Fprintf(w, "%s\t%d\n", id, n)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}

	return nil
}

func (r *FileStateRepo) readCounts(subreddit string) (map[string]int, error) {
	path := r.path(subreddit, numCommentsFile)
	counts := make(map[string]int)
	err := r.scan(path, func(line int, fields []string) error {
		if len(fields) != 2 {
			return fmt.Errorf("%s:%d: expected id and count, got %d fields", path, line, len(fields))
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("%s:%d: invalid count %q", path, line, fields[1])
		}
		counts[fields[0]] = n
		return nil
	})
	return counts, err
}

func (r *FileStateRepo) readIDs(path string) (map[string]bool, error) {
	ids := make(map[string]bool)
	err := r.scan(path, func(line int, fields []string) error {
		ids[fields[0]] = true
		return nil
	})
	return ids, err
}

// scan calls fn for every non-empty line, split on tabs. A missing file is empty.
func (r *FileStateRepo) scan(path string, fn func(line int, fields []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := fn(line, strings.Split(text, "\t")); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return nil
}

func (r *FileStateRepo) appendLine(path, value string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(value + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	return f.Close()
}
