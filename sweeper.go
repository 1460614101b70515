package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/pkg/errors"

	"github.com/peterjschroeder/redp/config"
	"github.com/peterjschroeder/redp/mailbox"
	"github.com/peterjschroeder/redp/metrics"
)

// Sweeper removes threads whose root message has outlived the subscription's
// retention window. Replies go with their root.
type Sweeper struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maildirRoot string
	now         func() time.Time
}

func NewSweeper(logger *slog.Logger, m *metrics.Metrics, maildirRoot string) *Sweeper {
	return &Sweeper{logger: logger, metrics: m, maildirRoot: maildirRoot, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context, subs []config.Subscription) {
	s.logger.Info("Removing expired messages")
	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if sub.RetentionDays <= 0 {
			continue
		}
		if err := s.SweepSubreddit(sub); err != nil {
			s.logger.Error("sweep subreddit:", "subreddit", sub.Subreddit, "error", err)
			s.metrics.SubredditErrors.WithLabelValues(sub.Subreddit).Inc()
		}
	}
}

func (s *Sweeper) SweepSubreddit(sub config.Subscription) error {
	if _, err := os.Stat(filepath.Join(s.maildirRoot, sub.Subreddit)); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	mb, err := mailbox.Open(s.maildirRoot, sub.Subreddit)
	if err != nil {
		return errors.Wrap(err, "sweep subreddit: open mailbox")
	}

	cutoff := s.now().Add(-sub.Retention())
	roots := make(map[string]bool)
	var expired []string

	err = mb.Walk(func(e mailbox.Entry) error {
		h, err := readHeader(e)
		if err != nil {
			return err
		}
		if h.Has("References") {
			return nil
		}
		date, err := h.Date()
		if err != nil {
			return errors.Wrapf(err, "parse date of %s", e.Key)
		}
		if !date.Before(cutoff) {
			return nil
		}

		id, err := h.MessageID()
		if err != nil {
			return errors.Wrapf(err, "parse message-id of %s", e.Key)
		}
		roots[id] = true
		expired = append(expired, e.Key)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "sweep subreddit: find expired threads")
	}
	if len(expired) == 0 {
		return nil
	}

	err = mb.Walk(func(e mailbox.Entry) error {
		h, err := readHeader(e)
		if err != nil {
			return err
		}
		refs, err := h.MsgIDList("References")
		if err != nil {
			return errors.Wrapf(err, "parse references of %s", e.Key)
		}
		if len(refs) > 0 && roots[refs[0]] {
			expired = append(expired, e.Key)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "sweep subreddit: find expired replies")
	}

	if err := mb.Lock(); err != nil {
		return errors.Wrap(err, "sweep subreddit")
	}
	defer mb.Unlock()

	for _, key := range expired {
		if err := mb.Remove(key); err != nil {
			return errors.Wrap(err, "sweep subreddit: remove")
		}
		s.logger.Debug("Removed expired message", "subreddit", sub.Subreddit, "id", key)
		s.metrics.MessagesExpired.WithLabelValues(sub.Subreddit).Inc()
	}
	s.logger.Info("Removed expired messages", "subreddit", sub.Subreddit, "count", len(expired))

	return nil
}

func readHeader(e mailbox.Entry) (mail.Header, error) {
	f, err := e.Open()
	if err != nil {
		return mail.Header{}, err
	}
	defer f.Close()

	r, err := mail.CreateReader(f)
	if err != nil {
		return mail.Header{}, errors.Wrapf(err, "read header of %s", e.Key)
	}
	defer r.Close()

	return r.Header, nil
}
