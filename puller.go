package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/peterjschroeder/redp/config"
	"github.com/peterjschroeder/redp/data"
	"github.com/peterjschroeder/redp/enums"
	"github.com/peterjschroeder/redp/mailbox"
	"github.com/peterjschroeder/redp/matchers"
	"github.com/peterjschroeder/redp/messages"
	"github.com/peterjschroeder/redp/metrics"
	"github.com/peterjschroeder/redp/models"
	"github.com/peterjschroeder/redp/sources"
)

type PullerOptions struct {
	MaildirRoot       string
	ForceAPI          bool
	SkipAutoModerator bool
}

// Puller copies each subscribed subreddit into its own maildir, one message
// per submission and comment.
type Puller struct {
	logger     *slog.Logger
	state      data.StateStore
	builder    *messages.Builder
	metrics    *metrics.Metrics
	api        sources.Fetcher
	search     sources.Fetcher
	visibility sources.VisibilityChecker
	opts       PullerOptions
	now        func() time.Time
}

func NewPuller(
	logger *slog.Logger,
	state data.StateStore,
	builder *messages.Builder,
	m *metrics.Metrics,
	api, search sources.Fetcher,
	visibility sources.VisibilityChecker,
	opts PullerOptions,
) *Puller {
	return &Puller{
		logger:     logger,
		state:      state,
		builder:    builder,
		metrics:    m,
		api:        api,
		search:     search,
		visibility: visibility,
		opts:       opts,
		now:        time.Now,
	}
}

// Run pulls every subscription in order. A failing subreddit is logged and
// the next one proceeds.
func (p *Puller) Run(ctx context.Context, subs []config.Subscription) {
	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if err := p.PullSubreddit(ctx, sub); err != nil {
			p.logger.Error("pull subreddit:", "subreddit", sub.Subreddit, "error", err)
			p.metrics.SubredditErrors.WithLabelValues(sub.Subreddit).Inc()
		}
	}
}

func (p *Puller) PullSubreddit(ctx context.Context, sub config.Subscription) error {
	now := p.now()
	fetcher, mode := p.fetcherFor(ctx, sub.Subreddit)
	p.logger.Info("Pulling subreddit", "subreddit", sub.Subreddit, "mode", mode)

	mb, err := mailbox.Open(p.opts.MaildirRoot, sub.Subreddit)
	if err != nil {
		return errors.Wrap(err, "pull subreddit: open mailbox")
	}
	retrieved, err := p.state.Retrieved(sub.Subreddit)
	if err != nil {
		return errors.Wrap(err, "pull subreddit: load retrieved")
	}
	skipped, err := p.state.Skipped(sub.Subreddit)
	if err != nil {
		return errors.Wrap(err, "pull subreddit: load skipped")
	}

	submissions, err := fetcher.Submissions(ctx, sub.Subreddit, sub.Cutoff(now))
	if err != nil {
		return errors.Wrap(err, "pull subreddit: fetch submissions")
	}

	run := &pullRun{
		sub:       sub,
		fetcher:   fetcher,
		mailbox:   mb,
		retrieved: retrieved,
		skipped:   skipped,
		now:       now,
	}
	for _, s := range submissions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !matchers.MatchesSubmission(sub, s, now) {
			continue
		}
		if err := p.pullSubmission(ctx, run, s); err != nil {
			return err
		}
	}

	return nil
}

// pullRun is the per-subreddit state shared by every submission in one pass.
type pullRun struct {
	sub       config.Subscription
	fetcher   sources.Fetcher
	mailbox   *mailbox.Mailbox
	retrieved map[string]bool
	skipped   map[string]bool
	now       time.Time
}

func (p *Puller) fetcherFor(ctx context.Context, subreddit string) (sources.Fetcher, enums.FetchMode) {
	if p.opts.ForceAPI {
		return p.api, enums.FetchModeAPI
	}

	private, err := p.visibility.IsPrivate(ctx, subreddit)
	if err != nil {
		// the search index cannot see private subreddits
		p.logger.Warn("visibility check failed, using the API", "subreddit", subreddit, "error", err)
		return p.api, enums.FetchModeAPI
	}
	if private {
		return p.api, enums.FetchModeAPI
	}

	return p.search, enums.FetchModeSearch
}

func (p *Puller) pullSubmission(ctx context.Context, run *pullRun, s models.Submission) error {
	subreddit := run.sub.Subreddit

	if !run.retrieved[s.ID] {
		p.logger.Info("Retrieving submission", "subreddit", subreddit, "submission_id", s.ID)
		err := p.deliver(run, s.ID, metrics.KindSubmission, func() ([]byte, error) {
			return p.builder.Submission(ctx, s)
		})
		if err != nil {
			return err
		}
	}

	known, err := p.state.CommentCount(subreddit, s.ID)
	if err != nil {
		return errors.Wrap(err, "pull submission: get comment count")
	}
	if known >= s.NumComments {
		return nil
	}

	comments, err := run.fetcher.Comments(ctx, s, run.sub.Cutoff(run.now))
	if err != nil {
		p.logger.Warn("fetch comments:", "subreddit", subreddit, "submission_id", s.ID, "error", err)
		return nil
	}

	byID := make(map[string]models.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}
	lookup := func(ctx context.Context, id string) (models.Comment, error) {
		if c, ok := byID[id]; ok {
			return c, nil
		}
		c, err := run.fetcher.Comment(ctx, id)
		if err != nil {
			return models.Comment{}, err
		}
		byID[id] = c
		return c, nil
	}

	seen, added := 0, 0
	for _, c := range comments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if run.retrieved[c.ID] || run.skipped[c.ID] {
			seen++
			continue
		}

		if reason := matchers.SkipComment(run.sub, c, run.now, p.opts.SkipAutoModerator); reason != matchers.SkipReasonNone {
			if err := p.state.MarkSkipped(subreddit, c.ID); err != nil {
				return errors.Wrap(err, "pull submission: mark skipped")
			}
			run.skipped[c.ID] = true
			p.metrics.CommentsSkipped.WithLabelValues(subreddit, string(reason)).Inc()
			added++
			continue
		}

		var ancestors []messages.Ancestor
		if p.builder.Autoquote() {
			ancestors, err = messages.Ancestors(ctx, c, lookup)
			if err != nil {
				p.logger.Warn("quote ancestors:", "subreddit", subreddit, "comment_id", c.ID, "error", err)
			}
		}

		p.logger.Info("Retrieving comment", "subreddit", subreddit, "submission_id", s.ID, "comment_id", c.ID)
		build := func() ([]byte, error) { return p.builder.Comment(s, c, ancestors) }
		if err := p.deliver(run, c.ID, metrics.KindComment, build); err != nil {
			return err
		}
		added++
	}

	// comments recorded by an interrupted pass never reached the ledger
	total := max(known, seen) + added
	if err := p.state.SetCommentCount(subreddit, s.ID, total); err != nil {
		return errors.Wrap(err, "pull submission: set comment count")
	}

	return nil
}

// deliver writes the message unless the mailbox already holds the key, then
// records the ID as retrieved.
func (p *Puller) deliver(run *pullRun, id, kind string, build func() ([]byte, error)) error {
	subreddit := run.sub.Subreddit

	exists, err := run.mailbox.Has(id)
	if err != nil {
		return errors.Wrap(err, "deliver: check mailbox")
	}
	if exists {
		p.logger.Info("Message already in mailbox, recording it", "subreddit", subreddit, "id", id)
	} else {
		msg, err := build()
		if err != nil {
			return errors.Wrapf(err, "deliver: build %s %s", kind, id)
		}
		if err := run.mailbox.Deliver(id, msg); err != nil {
			return errors.Wrapf(err, "deliver: write %s %s", kind, id)
		}
		p.metrics.MessagesWritten.WithLabelValues(subreddit, kind).Inc()
	}

	if err := p.state.MarkRetrieved(subreddit, id); err != nil {
		return errors.Wrap(err, "deliver: mark retrieved")
	}
	run.retrieved[id] = true

	return nil
}
