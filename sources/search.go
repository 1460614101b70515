package sources

import (
	"context"
	"log/slog"

	"github.com/peterjschroeder/redp/models"
)

// SearchFetcher reads from the Arctic Shift archive. Archived scores and
// comment counts go stale, so submissions are refreshed through the Reddit API.
type SearchFetcher struct {
	logger *slog.Logger
	index  *ArcticShiftClient
	reddit *RedditClient
}

func NewSearchFetcher(logger *slog.Logger, index *ArcticShiftClient, reddit *RedditClient) *SearchFetcher {
	return &SearchFetcher{logger: logger, index: index, reddit: reddit}
}

func (f *SearchFetcher) Submissions(ctx context.Context, subreddit string, after int64) ([]models.Submission, error) {
	submissions, err := f.index.SearchPosts(ctx, subreddit, after)
	if err != nil {
		return nil, err
	}
	if len(submissions) == 0 {
		return submissions, nil
	}

	ids := make([]string, len(submissions))
	for i, s := range submissions {
		ids[i] = s.ID
	}
	live, err := f.reddit.Submissions(ctx, ids)
	if err != nil {
		f.logger.Warn("refresh submissions, using archived counts", "subreddit", subreddit, "error", err)
		return submissions, nil
	}

	for i, s := range submissions {
		if l, ok := live[s.ID]; ok {
			submissions[i].Score = l.Score
			submissions[i].NumComments = l.NumComments
		}
	}
	return submissions, nil
}

func (f *SearchFetcher) Comments(ctx context.Context, submission models.Submission, after int64) ([]models.Comment, error) {
	return f.index.SearchComments(ctx, submission.ID, after)
}

func (f *SearchFetcher) Comment(ctx context.Context, id string) (models.Comment, error) {
	c, err := f.reddit.Comment(ctx, id)
	if err == nil {
		return c, nil
	}
	f.logger.Debug("reddit comment lookup failed, trying archive", "comment_id", id, "error", err)
	return f.index.Comment(ctx, id)
}
