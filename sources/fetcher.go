package sources

import (
	"context"

	"github.com/peterjschroeder/redp/models"
)

// Fetcher is one way of retrieving a subreddit's submissions and comments.
// after is a unix time lower bound that implementations may use to narrow
// the query. Callers still filter by age themselves.
type Fetcher interface {
	Submissions(ctx context.Context, subreddit string, after int64) ([]models.Submission, error)
	Comments(ctx context.Context, submission models.Submission, after int64) ([]models.Comment, error)
	// Comment looks up a single comment by bare ID, for quoting ancestors.
	Comment(ctx context.Context, id string) (models.Comment, error)
}

type VisibilityChecker interface {
	IsPrivate(ctx context.Context, subreddit string) (bool, error)
}
