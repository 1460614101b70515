package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterjschroeder/redp/config"
	"github.com/peterjschroeder/redp/data/repos"
	"github.com/peterjschroeder/redp/mailbox"
	"github.com/peterjschroeder/redp/messages"
	"github.com/peterjschroeder/redp/metrics"
	"github.com/peterjschroeder/redp/models"
	"github.com/peterjschroeder/redp/sources"
)

var testNow = time.Unix(1_700_000_000, 0)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	submissions map[string][]models.Submission
	comments    map[string][]models.Comment
	byID        map[string]models.Comment
	errs        map[string]error

	submissionCalls int
	commentCalls    int
	lookups         []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		submissions: make(map[string][]models.Submission),
		comments:    make(map[string][]models.Comment),
		byID:        make(map[string]models.Comment),
		errs:        make(map[string]error),
	}
}

func (f *fakeFetcher) Submissions(ctx context.Context, subreddit string, after int64) ([]models.Submission, error) {
	f.submissionCalls++
	if err := f.errs[subreddit]; err != nil {
		return nil, err
	}
	return f.submissions[subreddit], nil
}

func (f *fakeFetcher) Comments(ctx context.Context, submission models.Submission, after int64) ([]models.Comment, error) {
	f.commentCalls++
	if err := f.errs[submission.ID]; err != nil {
		return nil, err
	}
	return f.comments[submission.ID], nil
}

func (f *fakeFetcher) Comment(ctx context.Context, id string) (models.Comment, error) {
	f.lookups = append(f.lookups, id)
	c, ok := f.byID[id]
	if !ok {
		return models.Comment{}, sources.ErrNotFound
	}
	return c, nil
}

type fakeVisibility struct {
	private bool
	err     error
}

func (v fakeVisibility) IsPrivate(ctx context.Context, subreddit string) (bool, error) {
	return v.private, v.err
}

type pullerFixture struct {
	puller  *Puller
	state   *repos.FileStateRepo
	metrics *metrics.Metrics
	root    string
	api     *fakeFetcher
	search  *fakeFetcher
}

func newPullerFixture(t *testing.T, opts messages.Options, vis sources.VisibilityChecker) *pullerFixture {
	t.Helper()
	root := t.TempDir()
	m := metrics.New()
	state := repos.NewFileStateRepo(root)
	api, search := newFakeFetcher(), newFakeFetcher()

	p := NewPuller(testLogger(), state, messages.NewBuilder(testLogger(), m, opts), m, api, search, vis,
		PullerOptions{MaildirRoot: root, SkipAutoModerator: true})
	p.now = func() time.Time { return testNow }

	return &pullerFixture{puller: p, state: state, metrics: m, root: root, api: api, search: search}
}

func selfPost(id string, numComments int) models.Submission {
	return models.Submission{
		ID:          id,
		Subreddit:   "golang",
		Title:       "Post " + id,
		Author:      "op",
		Selftext:    "body of " + id,
		IsSelf:      true,
		Score:       10,
		NumComments: numComments,
		CreatedUTC:  testNow.Unix() - 3600,
		Permalink:   "/r/golang/comments/" + id + "/",
	}
}

func comment(id, parent, author, body string) models.Comment {
	return models.Comment{
		ID:           id,
		ParentID:     parent,
		SubmissionID: "s1",
		Author:       author,
		Body:         body,
		CreatedUTC:   testNow.Unix() - 600,
	}
}

func mailboxKeys(t *testing.T, root, subreddit string) []string {
	t.Helper()
	mb, err := mailbox.Open(root, subreddit)
	require.NoError(t, err)

	var keys []string
	require.NoError(t, mb.Walk(func(e mailbox.Entry) error {
		keys = append(keys, e.Key)
		return nil
	}))
	sort.Strings(keys)
	return keys
}

func readMessage(t *testing.T, root, subreddit, key string) (mail.Header, string) {
	t.Helper()
	mb, err := mailbox.Open(root, subreddit)
	require.NoError(t, err)

	var raw []byte
	require.NoError(t, mb.Walk(func(e mailbox.Entry) error {
		if e.Key != key {
			return nil
		}
		f, err := e.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		raw, err = io.ReadAll(f)
		return err
	}))
	require.NotNil(t, raw, "message %s not found", key)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer mr.Close()

	part, err := mr.NextPart()
	if errors.Is(err, io.EOF) {
		return mr.Header, ""
	}
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	return mr.Header, strings.ReplaceAll(string(body), "\r\n", "\n")
}

func TestPullSubreddit_Idempotent(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	sub := config.Subscription{Subreddit: "golang"}
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 2)}
	fx.search.comments["s1"] = []models.Comment{
		comment("c1", "t3_s1", "alice", "first"),
		comment("c2", "t1_c1", "bob", "second"),
	}

	require.NoError(t, fx.puller.PullSubreddit(context.Background(), sub))
	require.NoError(t, fx.puller.PullSubreddit(context.Background(), sub))

	assert.Equal(t, []string{"c1", "c2", "s1"}, mailboxKeys(t, fx.root, "golang"))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.MessagesWritten.WithLabelValues("golang", metrics.KindSubmission)))
	assert.Equal(t, 2.0, testutil.ToFloat64(fx.metrics.MessagesWritten.WithLabelValues("golang", metrics.KindComment)))

	count, err := fx.state.CommentCount("golang", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// the ledger matches num_comments, so the second pass never fetched comments
	assert.Equal(t, 1, fx.search.commentCalls)
}

func TestPullSubreddit_Threading(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 2)}
	fx.search.comments["s1"] = []models.Comment{
		comment("c1", "t3_s1", "alice", "first"),
		comment("c2", "t1_c1", "bob", "second"),
	}

	require.NoError(t, fx.puller.PullSubreddit(context.Background(), config.Subscription{Subreddit: "golang"}))

	h, _ := readMessage(t, fx.root, "golang", "c2")
	refs, err := h.MsgIDList("References")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1@reddit.com", "c1@reddit.com"}, refs)
	subject, err := h.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Post s1", subject)
}

func TestPullSubreddit_Filters(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	sub := config.Subscription{Subreddit: "golang", MaxAge: testNow.Unix() - 7200, MinComments: 1, MinScore: 5}

	quiet := selfPost("s2", 0)
	lowScore := selfPost("s3", 4)
	lowScore.Score = 1
	old := selfPost("s4", 4)
	old.CreatedUTC = sub.MaxAge - 1
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 3), quiet, lowScore, old}

	tooOld := comment("c3", "t3_s1", "carol", "ancient")
	tooOld.CreatedUTC = sub.MaxAge - 1
	fx.search.comments["s1"] = []models.Comment{
		comment("c1", "t3_s1", "alice", "first"),
		comment("c2", "t1_c1", "automoderator", "rules"),
		tooOld,
	}

	require.NoError(t, fx.puller.PullSubreddit(context.Background(), sub))

	assert.Equal(t, []string{"c1", "s1"}, mailboxKeys(t, fx.root, "golang"))

	skipped, err := fx.state.Skipped("golang")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"c2": true, "c3": true}, skipped)

	count, err := fx.state.CommentCount("golang", "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.CommentsSkipped.WithLabelValues("golang", "automoderator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.CommentsSkipped.WithLabelValues("golang", "too_old")))
	assert.Equal(t, 1, fx.search.commentCalls)
}

func TestPullSubreddit_SkippedCommentsStaySkipped(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	sub := config.Subscription{Subreddit: "golang"}
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 2)}
	fx.search.comments["s1"] = []models.Comment{
		comment("c1", "t3_s1", "alice", "first"),
		comment("c2", "t3_s1", "AutoModerator", "rules"),
	}

	require.NoError(t, fx.puller.PullSubreddit(context.Background(), sub))

	// a later run that no longer skips AutoModerator still leaves c2 alone
	fx.puller.opts.SkipAutoModerator = false
	require.NoError(t, fx.state.SetCommentCount("golang", "s1", 0))
	require.NoError(t, fx.puller.PullSubreddit(context.Background(), sub))

	assert.Equal(t, []string{"c1", "s1"}, mailboxKeys(t, fx.root, "golang"))
	count, err := fx.state.CommentCount("golang", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPullSubreddit_LedgerNeverDecreases(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 12)}
	// the search index only returns comments newer than the lower bound
	fx.search.comments["s1"] = []models.Comment{
		comment("c11", "t3_s1", "alice", "new one"),
		comment("c12", "t3_s1", "bob", "another"),
	}
	require.NoError(t, fx.state.MarkRetrieved("golang", "s1"))
	require.NoError(t, fx.state.SetCommentCount("golang", "s1", 10))

	require.NoError(t, fx.puller.PullSubreddit(context.Background(), config.Subscription{Subreddit: "golang"}))

	count, err := fx.state.CommentCount("golang", "s1")
	require.NoError(t, err)
	assert.Equal(t, 12, count)
}

func TestPullSubreddit_RecoversInterruptedCommentPass(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 5)}
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		fx.search.comments["s1"] = append(fx.search.comments["s1"], comment(id, "t3_s1", "alice", "text "+id))
	}

	// a previous run stored three comments and died before updating the ledger
	for _, id := range []string{"s1", "c1", "c2", "c3"} {
		require.NoError(t, fx.state.MarkRetrieved("golang", id))
	}

	require.NoError(t, fx.puller.PullSubreddit(context.Background(), config.Subscription{Subreddit: "golang"}))

	assert.Equal(t, []string{"c4", "c5"}, mailboxKeys(t, fx.root, "golang"))
	count, err := fx.state.CommentCount("golang", "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestPullSubreddit_RecordsMessageWrittenBeforeCrash(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 0)}

	mb, err := mailbox.Open(fx.root, "golang")
	require.NoError(t, err)
	require.NoError(t, mb.Deliver("s1", []byte("Subject: kept\r\n\r\noriginal\r\n")))

	require.NoError(t, fx.puller.PullSubreddit(context.Background(), config.Subscription{Subreddit: "golang"}))

	retrieved, err := fx.state.Retrieved("golang")
	require.NoError(t, err)
	assert.True(t, retrieved["s1"])

	h, body := readMessage(t, fx.root, "golang", "s1")
	assert.Equal(t, "kept", h.Get("Subject"))
	assert.Equal(t, "original\n", body)
	assert.Equal(t, 0.0, testutil.ToFloat64(fx.metrics.MessagesWritten.WithLabelValues("golang", metrics.KindSubmission)))
}

func TestPullSubreddit_Autoquote(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{Autoquote: true}, fakeVisibility{})
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 4)}
	fx.search.comments["s1"] = []models.Comment{
		comment("c1", "t3_s1", "alice", "first"),
		comment("c2", "t1_c1", "bob", "second"),
		comment("c3", "t1_c9", "dave", "reply to an old one"),
		comment("c4", "t1_gone", "erin", "orphan"),
	}
	fx.search.byID["c9"] = comment("c9", "t3_s1", "carol", "older")

	require.NoError(t, fx.puller.PullSubreddit(context.Background(), config.Subscription{Subreddit: "golang"}))

	_, body := readMessage(t, fx.root, "golang", "c2")
	assert.Equal(t, "> alice wrote:\n> first\n\nsecond", body)

	_, body = readMessage(t, fx.root, "golang", "c3")
	assert.Equal(t, "> carol wrote:\n> older\n\nreply to an old one", body)

	// a missing ancestor does not stop delivery
	_, body = readMessage(t, fx.root, "golang", "c4")
	assert.Equal(t, "orphan", body)

	assert.Equal(t, []string{"c9", "gone"}, fx.search.lookups)
}

func TestPullSubreddit_CommentFetchFailureMovesOn(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 1), selfPost("s2", 1)}
	fx.search.errs["s1"] = errors.New("index unavailable")
	fx.search.comments["s2"] = []models.Comment{comment("c1", "t3_s2", "alice", "first")}

	require.NoError(t, fx.puller.PullSubreddit(context.Background(), config.Subscription{Subreddit: "golang"}))

	assert.Equal(t, []string{"c1", "s1", "s2"}, mailboxKeys(t, fx.root, "golang"))
	count, err := fx.state.CommentCount("golang", "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPullSubreddit_FetchMode(t *testing.T) {
	tests := []struct {
		name       string
		visibility fakeVisibility
		forceAPI   bool
		wantAPI    bool
	}{
		{name: "public uses search", visibility: fakeVisibility{}, wantAPI: false},
		{name: "private uses api", visibility: fakeVisibility{private: true}, wantAPI: true},
		{name: "failed check uses api", visibility: fakeVisibility{err: errors.New("timeout")}, wantAPI: true},
		{name: "forced api", visibility: fakeVisibility{}, forceAPI: true, wantAPI: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newPullerFixture(t, messages.Options{}, tt.visibility)
			fx.puller.opts.ForceAPI = tt.forceAPI

			require.NoError(t, fx.puller.PullSubreddit(context.Background(), config.Subscription{Subreddit: "golang"}))

			if tt.wantAPI {
				assert.Equal(t, 1, fx.api.submissionCalls)
				assert.Equal(t, 0, fx.search.submissionCalls)
			} else {
				assert.Equal(t, 0, fx.api.submissionCalls)
				assert.Equal(t, 1, fx.search.submissionCalls)
			}
		})
	}
}

func TestRun_ContinuesAfterFailingSubreddit(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	fx.search.errs["broken"] = errors.New("boom")
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 0)}

	fx.puller.Run(context.Background(), []config.Subscription{{Subreddit: "broken"}, {Subreddit: "golang"}})

	assert.Equal(t, []string{"s1"}, mailboxKeys(t, fx.root, "golang"))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.SubredditErrors.WithLabelValues("broken")))
	assert.Equal(t, 0.0, testutil.ToFloat64(fx.metrics.SubredditErrors.WithLabelValues("golang")))
}

func TestRun_StateFilesLiveNextToMailbox(t *testing.T) {
	fx := newPullerFixture(t, messages.Options{}, fakeVisibility{})
	fx.search.submissions["golang"] = []models.Submission{selfPost("s1", 0)}

	fx.puller.Run(context.Background(), []config.Subscription{{Subreddit: "golang"}})

	raw, err := os.ReadFile(filepath.Join(fx.root, "golang", ".retrieved"))
	require.NoError(t, err)
	assert.Equal(t, "s1\n", string(raw))
}
