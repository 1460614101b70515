package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/peterjschroeder/redp/config"
	"github.com/peterjschroeder/redp/models"
)

const (
	redditOAuthURL  = "https://oauth.reddit.com"
	redditPublicURL = "https://www.reddit.com"
	redditTokenURL  = "https://www.reddit.com/api/v1/access_token"

	redditPageSize     = 100
	redditInfoBatch    = 100
	redditMoreBatch    = 100
	redditMaxTreeCalls = 1000
)

var ErrNotFound = errors.New("not found")

// RedditClient talks to the Reddit API, authenticated with a password grant
// when credentials are configured and anonymously through the .json pages otherwise.
type RedditClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	anonymous  bool
}

func NewRedditClient(ctx context.Context, logger *slog.Logger, httpClient *http.Client, cfg config.RedditConfig) *RedditClient {
	client := withUserAgent(httpClient, cfg.UserAgent)

	if !cfg.HasCredentials() {
		logger.Info("no reddit credentials configured, using anonymous access")
		return &RedditClient{logger: logger, httpClient: client, baseURL: redditPublicURL, anonymous: true}
	}

	return &RedditClient{
		logger:     logger,
		httpClient: oauthClient(ctx, client, cfg, redditTokenURL),
		baseURL:    redditOAuthURL,
	}
}

func oauthClient(ctx context.Context, base *http.Client, cfg config.RedditConfig, tokenURL string) *http.Client {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	src := &passwordTokenSource{ctx: ctx, conf: conf, username: cfg.Username, password: cfg.Password}

	// NewClient caches the token until it expires
	client := oauth2.NewClient(ctx, src)
	client.Timeout = base.Timeout
	return client
}

// passwordTokenSource repeats the password grant whenever the cached token expires.
type passwordTokenSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	return s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
}

func (c *RedditClient) IsPrivate(ctx context.Context, subreddit string) (bool, error) {
	var about models.RedditSubredditAbout
	err := c.get(ctx, "/r/"+subreddit+"/about", nil, &about)
	if err != nil {
		var statusErr *statusError
		// anonymous requests for a private subreddit are refused with reason "private"
		if errors.As(err, &statusErr) && statusErr.code == http.StatusForbidden && strings.Contains(statusErr.body, "private") {
			return true, nil
		}
		return false, err
	}
	return about.Data.SubredditType == "private", nil
}

// Listing fetches one page of a subreddit ordering such as "new" or "top".
func (c *RedditClient) Listing(ctx context.Context, subreddit, sort string, params url.Values) ([]models.Submission, error) {
	query := url.Values{"limit": {fmt.Sprint(redditPageSize)}}
	for k, v := range params {
		query[k] = v
	}

	var listing models.RedditListing
	if err := c.get(ctx, "/r/"+subreddit+"/"+sort, query, &listing); err != nil {
		return nil, err
	}

	submissions := make([]models.Submission, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Kind != models.KindSubmission {
			continue
		}
		var post models.RedditPost
		if err := json.Unmarshal(child.Data, &post); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		submissions = append(submissions, submissionFromReddit(post))
	}

	return submissions, nil
}

// Submissions looks up live data for submission IDs through /api/info.
func (c *RedditClient) Submissions(ctx context.Context, ids []string) (map[string]models.Submission, error) {
	found := make(map[string]models.Submission, len(ids))
	err := c.info(ctx, prefixAll(models.KindSubmission, ids), func(thing models.RedditThing) error {
		if thing.Kind != models.KindSubmission {
			return nil
		}
		var post models.RedditPost
		if err := json.Unmarshal(thing.Data, &post); err != nil {
			return fmt.Errorf("decode post: %w", err)
		}
		found[post.ID] = submissionFromReddit(post)
		return nil
	})
	return found, err
}

func (c *RedditClient) Comment(ctx context.Context, id string) (models.Comment, error) {
	var found *models.Comment
	err := c.info(ctx, []string{models.KindComment + "_" + id}, func(thing models.RedditThing) error {
		if thing.Kind != models.KindComment {
			return nil
		}
		var rc models.RedditComment
		if err := json.Unmarshal(thing.Data, &rc); err != nil {
			return fmt.Errorf("decode comment: %w", err)
		}
		comment := commentFromReddit(rc)
		found = &comment
		return nil
	})
	if err != nil {
		return models.Comment{}, err
	}
	if found == nil {
		return models.Comment{}, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	return *found, nil
}

func (c *RedditClient) info(ctx context.Context, fullnames []string, fn func(models.RedditThing) error) error {
	for start := 0; start < len(fullnames); start += redditInfoBatch {
		end := min(start+redditInfoBatch, len(fullnames))

		var listing models.RedditListing
		query := url.Values{"id": {strings.Join(fullnames[start:end], ",")}}
		if err := c.get(ctx, "/api/info", query, &listing); err != nil {
			return err
		}
		for _, child := range listing.Data.Children {
			if err := fn(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// CommentTree returns every comment under a submission, expanding "load more"
// and "continue this thread" stubs until none are left.
func (c *RedditClient) CommentTree(ctx context.Context, submissionID string) ([]models.Comment, error) {
	t := &commentTree{seen: make(map[string]bool)}

	var page []models.RedditListing
	if err := c.get(ctx, "/comments/"+submissionID, url.Values{"limit": {"500"}}, &page); err != nil {
		return nil, err
	}
	if len(page) < 2 {
		return nil, fmt.Errorf("comments for %s: unexpected response with %d listings", submissionID, len(page))
	}
	if err := t.walk(page[1].Data.Children); err != nil {
		return nil, err
	}

	for calls := 0; len(t.more) > 0 || len(t.continued) > 0; calls++ {
		if calls >= redditMaxTreeCalls {
			c.logger.Warn("comment tree expansion limit reached", "submission_id", submissionID, "pending", len(t.more)+len(t.continued))
			break
		}

		if len(t.more) > 0 {
			n := min(redditMoreBatch, len(t.more))
			batch := t.more[:n]
			t.more = t.more[n:]
			if err := c.moreChildren(ctx, submissionID, batch, t); err != nil {
				return nil, err
			}
			continue
		}

		parent := t.continued[0]
		t.continued = t.continued[1:]
		var thread []models.RedditListing
		if err := c.get(ctx, "/comments/"+submissionID+"/_/"+parent, nil, &thread); err != nil {
			return nil, err
		}
		if len(thread) >= 2 {
			if err := t.walk(thread[1].Data.Children); err != nil {
				return nil, err
			}
		}
	}

	return t.comments, nil
}

func (c *RedditClient) moreChildren(ctx context.Context, submissionID string, children []string, t *commentTree) error {
	query := url.Values{
		"api_type":       {"json"},
		"link_id":        {models.KindSubmission + "_" + submissionID},
		"children":       {strings.Join(children, ",")},
		"limit_children": {"false"},
	}

	var resp models.RedditMoreChildrenResponse
	if err := c.get(ctx, "/api/morechildren", query, &resp); err != nil {
		return err
	}
	if len(resp.JSON.Errors) > 0 {
		return fmt.Errorf("morechildren for %s: %v", submissionID, resp.JSON.Errors)
	}

	return t.walk(resp.JSON.Data.Things)
}

type commentTree struct {
	comments  []models.Comment
	seen      map[string]bool
	more      []string // comment IDs to fetch through /api/morechildren
	continued []string // parent IDs whose replies need their own thread page
}

func (t *commentTree) walk(things []models.RedditThing) error {
	pending := make([]models.RedditThing, len(things))
	copy(pending, things)

	for len(pending) > 0 {
		thing := pending[0]
		pending = pending[1:]

		switch thing.Kind {
		case models.KindComment:
			var rc models.RedditComment
			if err := json.Unmarshal(thing.Data, &rc); err != nil {
				return fmt.Errorf("decode comment: %w", err)
			}
			if !t.seen[rc.ID] {
				t.seen[rc.ID] = true
				t.comments = append(t.comments, commentFromReddit(rc))
			}
			if rc.Replies.Listing != nil {
				pending = append(pending, rc.Replies.Listing.Data.Children...)
			}
		case models.KindMore:
			var more models.RedditMore
			if err := json.Unmarshal(thing.Data, &more); err != nil {
				return fmt.Errorf("decode more: %w", err)
			}
			if len(more.Children) == 0 {
				if parent := models.StripFullname(more.ParentID); more.ParentID != "" && !strings.HasPrefix(more.ParentID, models.KindSubmission+"_") {
					t.continued = append(t.continued, parent)
				}
				continue
			}
			for _, id := range more.Children {
				if !t.seen[id] {
					t.more = append(t.more, id)
				}
			}
		}
	}

	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("reddit returned status %d: %s", e.code, e.body)
}

func (c *RedditClient) get(ctx context.Context, path string, query url.Values, dest any) error {
	if c.anonymous {
		path += ".json"
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("raw_json", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return truncateError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return nil
}

func submissionFromReddit(p models.RedditPost) models.Submission {
	return models.Submission{
		ID:          p.ID,
		Subreddit:   p.Subreddit,
		Title:       p.Title,
		Author:      models.NormalizeAuthor(p.Author),
		Selftext:    p.Selftext,
		URL:         p.URL,
		Permalink:   p.Permalink,
		IsSelf:      p.IsSelf,
		Score:       p.Score,
		NumComments: p.NumComments,
		CreatedUTC:  int64(p.CreatedUTC),
	}
}

func commentFromReddit(c models.RedditComment) models.Comment {
	return models.Comment{
		ID:           c.ID,
		ParentID:     c.ParentID,
		SubmissionID: models.StripFullname(c.LinkID),
		Author:       models.NormalizeAuthor(c.Author),
		Body:         c.Body,
		Permalink:    c.Permalink,
		CreatedUTC:   int64(c.CreatedUTC),
	}
}

func prefixAll(kind string, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = kind + "_" + id
	}
	return out
}
