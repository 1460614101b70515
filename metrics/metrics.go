// Package metrics counts what a run did and writes it out for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "redp"

const (
	KindSubmission = "submission"
	KindComment    = "comment"
)

type Metrics struct {
	registry *prometheus.Registry

	MessagesWritten     *prometheus.CounterVec
	CommentsSkipped     *prometheus.CounterVec
	MessagesExpired     *prometheus.CounterVec
	AttachmentFallbacks prometheus.Counter
	SubredditErrors     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_written_total",
			Help:      "Messages delivered to the mailbox.",
		}, []string{"subreddit", "kind"}),
		CommentsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_skipped_total",
			Help:      "Comments recorded as skipped instead of delivered.",
		}, []string{"subreddit", "reason"}),
		MessagesExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_expired_total",
			Help:      "Messages removed by the expiry sweep.",
		}, []string{"subreddit"}),
		AttachmentFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachment_fallbacks_total",
			Help:      "Link submissions stored as a plain URL because no attachment resolved.",
		}),
		SubredditErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subreddit_errors_total",
			Help:      "Subreddits whose sync or sweep was abandoned.",
		}, []string{"subreddit"}),
	}

	m.registry.MustRegister(
		m.MessagesWritten,
		m.CommentsSkipped,
		m.MessagesExpired,
		m.AttachmentFallbacks,
		m.SubredditErrors,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically writes all counters to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
