package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/peterjschroeder/redp/models"
)

const (
	arcticShiftBaseURL  = "https://arctic-shift.photon-reddit.com/api"
	arcticShiftPageSize = 100
)

// ArcticShiftClient queries the Arctic Shift archive of Reddit, which can
// search a subreddit's full history by creation time.
type ArcticShiftClient struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

func NewArcticShiftClient(logger *slog.Logger, httpClient *http.Client, userAgent string) *ArcticShiftClient {
	return &ArcticShiftClient{
		logger:  logger,
		client:  withUserAgent(httpClient, userAgent),
		baseURL: arcticShiftBaseURL,
	}
}

// SearchPosts returns every archived submission in subreddit created after the
// given unix time, oldest first.
func (c *ArcticShiftClient) SearchPosts(ctx context.Context, subreddit string, after int64) ([]models.Submission, error) {
	var submissions []models.Submission
	err := searchPages(ctx, c, "/posts/search", url.Values{"subreddit": {subreddit}}, after,
		func(p models.ArcticShiftPost) (string, int64) { return p.ID, int64(p.CreatedUTC) },
		func(p models.ArcticShiftPost) { submissions = append(submissions, submissionFromArcticShift(p)) },
	)
	return submissions, err
}

// SearchComments returns every archived comment on a submission created after
// the given unix time, oldest first.
func (c *ArcticShiftClient) SearchComments(ctx context.Context, submissionID string, after int64) ([]models.Comment, error) {
	var comments []models.Comment
	err := searchPages(ctx, c, "/comments/search", url.Values{"link_id": {submissionID}}, after,
		func(cm models.ArcticShiftComment) (string, int64) { return cm.ID, int64(cm.CreatedUTC) },
		func(cm models.ArcticShiftComment) { comments = append(comments, commentFromArcticShift(cm)) },
	)
	return comments, err
}

func (c *ArcticShiftClient) Comment(ctx context.Context, id string) (models.Comment, error) {
	var resp models.ArcticShiftSearchResponse[models.ArcticShiftComment]
	if err := c.fetch(ctx, "/comments/ids", url.Values{"ids": {id}}, &resp); err != nil {
		return models.Comment{}, err
	}
	for _, cm := range resp.Data {
		if cm.ID == id {
			return commentFromArcticShift(cm), nil
		}
	}
	return models.Comment{}, fmt.Errorf("comment %s: %w", id, ErrNotFound)
}

// searchPages walks an ascending search by moving the lower bound to the newest
// item seen. Pages overlap by a second so items sharing a timestamp are not lost.
// The index pages by time only: when more than a full page of items share one
// second, the rest of that second cannot be reached and the walk moves past it.
func searchPages[T any](
	ctx context.Context,
	c *ArcticShiftClient,
	path string,
	filter url.Values,
	after int64,
	key func(T) (string, int64),
	emit func(T),
) error {
	seen := make(map[string]bool)

	for {
		query := url.Values{
			"after": {fmt.Sprint(after)},
			"limit": {fmt.Sprint(arcticShiftPageSize)},
			"sort":  {"asc"},
		}
		for k, v := range filter {
			query[k] = v
		}

		var resp models.ArcticShiftSearchResponse[T]
		start := time.Now()
		if err := c.fetch(ctx, path, query, &resp); err != nil {
			return err
		}

		fresh := 0
		newest := after
		for _, item := range resp.Data {
			id, created := key(item)
			newest = max(newest, created)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			fresh++
			emit(item)
		}

		c.logger.Debug("arcticshift page", "path", path, "count", len(resp.Data), "new", fresh, "request_ms", time.Since(start).Milliseconds())

		if len(resp.Data) < arcticShiftPageSize {
			return nil
		}
		if fresh == 0 {
			c.logger.Warn("arcticshift page full of one second, skipping the rest of it", "path", path, "created_utc", newest)
			after = newest
			continue
		}
		after = newest - 1
	}
}

func (c *ArcticShiftClient) fetch(ctx context.Context, path string, query url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return truncateError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("arcticshift %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode arcticshift %s: %w", path, err)
	}
	if e, ok := dest.(interface{ APIError() string }); ok && e.APIError() != "" {
		return fmt.Errorf("arcticshift %s: %s", path, e.APIError())
	}

	return nil
}

func submissionFromArcticShift(p models.ArcticShiftPost) models.Submission {
	permalink := p.Permalink
	if permalink == "" {
		permalink = buildPostPermalink(p.Subreddit, p.ID)
	}
	return models.Submission{
		ID:          p.ID,
		Subreddit:   p.Subreddit,
		Title:       p.Title,
		Author:      models.NormalizeAuthor(p.Author),
		Selftext:    p.Selftext,
		URL:         p.URL,
		Permalink:   permalink,
		IsSelf:      p.IsSelf,
		Score:       p.Score,
		NumComments: p.NumComments,
		CreatedUTC:  int64(p.CreatedUTC),
	}
}

func commentFromArcticShift(c models.ArcticShiftComment) models.Comment {
	permalink := c.Permalink
	if permalink == "" {
		permalink = buildCommentPermalink(c.Subreddit, c.LinkID, c.ID)
	}
	return models.Comment{
		ID:           c.ID,
		ParentID:     c.ParentID,
		SubmissionID: models.StripFullname(c.LinkID),
		Author:       models.NormalizeAuthor(c.Author),
		Body:         c.Body,
		Permalink:    permalink,
		CreatedUTC:   int64(c.CreatedUTC),
	}
}

func buildPostPermalink(subreddit, postID string) string {
	if subreddit == "" || postID == "" {
		return ""
	}
	return fmt.Sprintf("/r/%s/comments/%s/", subreddit, postID)
}

func buildCommentPermalink(subreddit, linkID, commentID string) string {
	if subreddit == "" || commentID == "" {
		return ""
	}
	postID := strings.TrimPrefix(linkID, "t3_")
	if postID == "" {
		return ""
	}
	return fmt.Sprintf("/r/%s/comments/%s/_/%s/", subreddit, postID, commentID)
}
