package sources

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/peterjschroeder/redp/models"
)

type listingOrder struct {
	sort   string
	params url.Values
}

var apiOrders = []listingOrder{
	{sort: "new"},
	{sort: "controversial"},
	{sort: "rising"},
	{sort: "hot"},
	{sort: "top", params: url.Values{"t": {"all"}}},
}

// APIFetcher reads the live listings. It is the only way to see private
// subreddits but cannot page arbitrarily far back in time.
type APIFetcher struct {
	logger *slog.Logger
	reddit *RedditClient
}

func NewAPIFetcher(logger *slog.Logger, reddit *RedditClient) *APIFetcher {
	return &APIFetcher{logger: logger, reddit: reddit}
}

// Submissions merges one page of each ordering, deduplicated by ID. after is ignored.
func (f *APIFetcher) Submissions(ctx context.Context, subreddit string, after int64) ([]models.Submission, error) {
	seen := make(map[string]bool)
	var merged []models.Submission
	var lastErr error
	failed := 0

	for _, order := range apiOrders {
		page, err := f.reddit.Listing(ctx, subreddit, order.sort, order.params)
		if err != nil {
			f.logger.Warn("fetch listing", "subreddit", subreddit, "sort", order.sort, "error", err)
			lastErr = err
			failed++
			continue
		}
		for _, s := range page {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			merged = append(merged, s)
		}
	}

	if failed == len(apiOrders) {
		return nil, lastErr
	}
	return merged, nil
}

func (f *APIFetcher) Comments(ctx context.Context, submission models.Submission, after int64) ([]models.Comment, error) {
	return f.reddit.CommentTree(ctx, submission.ID)
}

func (f *APIFetcher) Comment(ctx context.Context, id string) (models.Comment, error) {
	return f.reddit.Comment(ctx, id)
}
