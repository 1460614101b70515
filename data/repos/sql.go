package repos

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/peterjschroeder/redp/data"
	"github.com/peterjschroeder/redp/enums"
)

// SQLStateRepo is the indexed alternative to FileStateRepo. Ledger updates
// are single-row upserts instead of whole-file rewrites.
type SQLStateRepo struct {
	db *sqlx.DB
}

func NewSQLStateRepo(db *sqlx.DB) *SQLStateRepo {
	return &SQLStateRepo{db}
}

// OpenSQLStateRepo connects to the backend and applies migrations.
func OpenSQLStateRepo(backend enums.StateBackend, dsn string) (*SQLStateRepo, error) {
	driver, dialect := "sqlite", "sqlite3"
	if backend == enums.StateBackendPostgres {
		driver, dialect = "postgres", "postgres"
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect state db: %w", err)
	}
	if driver == "sqlite" {
		// one connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy_timeout: %w", err)
		}
	}

	if err := data.RunMigrations(db.DB, dialect); err != nil {
		db.Close()
		return nil, err
	}

	return NewSQLStateRepo(db), nil
}

func (r *SQLStateRepo) Close() error {
	return r.db.Close()
}

func (r *SQLStateRepo) Retrieved(subreddit string) (map[string]bool, error) {
	return r.selectIDs("SELECT id FROM retrieved WHERE subreddit = ?", subreddit)
}

func (r *SQLStateRepo) MarkRetrieved(subreddit, id string) error {
	query := `
		INSERT INTO retrieved (subreddit, id)
		VALUES (:subreddit, :id)
		ON CONFLICT (subreddit, id) DO NOTHING`

	_, err := r.db.NamedExec(query, data.RetrievedItem{Subreddit: subreddit, ID: id})
	if err != nil {
		return fmt.Errorf("mark retrieved: %w", err)
	}

	return nil
}

func (r *SQLStateRepo) Skipped(subreddit string) (map[string]bool, error) {
	return r.selectIDs("SELECT id FROM skipped WHERE subreddit = ?", subreddit)
}

func (r *SQLStateRepo) MarkSkipped(subreddit, id string) error {
	query := `
		INSERT INTO skipped (subreddit, id)
		VALUES (:subreddit, :id)
		ON CONFLICT (subreddit, id) DO NOTHING`

	_, err := r.db.NamedExec(query, data.SkippedItem{Subreddit: subreddit, ID: id})
	if err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}

	return nil
}

func (r *SQLStateRepo) CommentCount(subreddit, submissionID string) (int, error) {
	var count int
	query := r.db.Rebind(`
		SELECT count
		FROM comment_counts
		WHERE subreddit = ? AND submission_id = ?`)

	err := r.db.Get(&count, query, subreddit, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get comment count: %w", err)
	}

	return count, nil
}

func (r *SQLStateRepo) SetCommentCount(subreddit, submissionID string, count int) error {
	query := `
		INSERT INTO comment_counts (subreddit, submission_id, count, updated_at)
		VALUES (:subreddit, :submission_id, :count, CURRENT_TIMESTAMP)
		ON CONFLICT (subreddit, submission_id) DO UPDATE SET
			count = excluded.count,
			updated_at = excluded.updated_at`

	_, err := r.db.NamedExec(query, data.CommentCount{Subreddit: subreddit, SubmissionID: submissionID, Count: count})
	if err != nil {
		return fmt.Errorf("set comment count: %w", err)
	}

	return nil
}

func (r *SQLStateRepo) selectIDs(query, subreddit string) (map[string]bool, error) {
	var ids []string
	if err := r.db.Select(&ids, r.db.Rebind(query), subreddit); err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
