// Package messages renders submissions and comments as threaded RFC 5322 mail.
package messages

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/peterjschroeder/redp/attachments"
	"github.com/peterjschroeder/redp/metrics"
	"github.com/peterjschroeder/redp/models"
)

const (
	domain  = "reddit.com"
	siteURL = "https://www.reddit.com"
)

type Archiver interface {
	Push(ctx context.Context, url string) error
}

type Options struct {
	Autoquote bool
	Resolver  attachments.Resolver // nil stores every link as text
	Archiver  Archiver             // nil disables archiving
	Language  LanguageDetector     // nil omits Content-Language
}

type Builder struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	opts    Options
}

func NewBuilder(logger *slog.Logger, m *metrics.Metrics, opts Options) *Builder {
	return &Builder{logger: logger, metrics: m, opts: opts}
}

func (b *Builder) Autoquote() bool {
	return b.opts.Autoquote
}

// MessageID is the bracket-less Message-ID for a submission or comment ID.
func MessageID(id string) string {
	return id + "@" + domain
}

func (b *Builder) Submission(ctx context.Context, s models.Submission) ([]byte, error) {
	h := b.header(s.AuthorName(), s.Title, s.CreatedUTC, s.ID, s.Permalink)
	b.setLanguage(&h, s.Title+"\n"+s.Selftext)

	if s.IsSelf {
		return singlePart(h, s.Selftext)
	}
	// Reddit accepts scheme-less paths such as /r/x/comments/... as link URLs
	if u, err := url.Parse(s.URL); err != nil || u.Scheme == "" {
		return singlePart(h, s.URL)
	}

	var found []attachments.Attachment
	if b.opts.Resolver != nil {
		var err error
		found, err = b.opts.Resolver.Resolve(ctx, s.URL)
		if err != nil {
			b.logger.Warn("resolve attachment", "submission_id", s.ID, "url", s.URL, "error", err)
			found = nil
		}
	}
	if len(found) > 0 {
		return multipart(h, s.URL, found)
	}

	b.metrics.AttachmentFallbacks.Inc()
	if b.opts.Archiver != nil {
		b.logger.Info("archiving link", "subreddit", s.Subreddit, "url", s.URL)
		if err := b.opts.Archiver.Push(ctx, s.URL); err != nil {
			b.logger.Warn("archive link", "url", s.URL, "error", err)
		}
	}

	return singlePart(h, s.URL)
}

// Comment threads c under its submission and direct parent. ancestors is only
// rendered when autoquote is enabled.
func (b *Builder) Comment(s models.Submission, c models.Comment, ancestors []Ancestor) ([]byte, error) {
	h := b.header(c.AuthorName(), s.Title, c.CreatedUTC, c.ID, c.Permalink)

	references := []string{MessageID(s.ID)}
	if !c.ParentIsSubmission() {
		references = append(references, MessageID(c.ParentKey()))
	}
	h.SetMsgIDList("References", references)
	h.SetMsgIDList("In-Reply-To", []string{MessageID(c.ParentKey())})
	b.setLanguage(&h, c.Body)

	body := c.Body
	if b.opts.Autoquote {
		body = Quote(ancestors) + body
	}

	return singlePart(h, body)
}

func (b *Builder) header(author, subject string, created int64, id, permalink string) mail.Header {
	var h mail.Header
	h.SetAddressList("From", []*mail.Address{{Name: author, Address: author + "@" + domain}})
	h.SetSubject(subject)
	h.SetDate(time.Unix(created, 0).UTC())
	h.SetMessageID(MessageID(id))
	if permalink != "" {
		h.Set("Content-Location", absoluteURL(permalink))
	}
	return h
}

func (b *Builder) setLanguage(h *mail.Header, text string) {
	if b.opts.Language == nil {
		return
	}
	if lang, ok := b.opts.Language.Detect(text); ok {
		h.Set("Content-Language", lang)
	}
}

func absoluteURL(permalink string) string {
	if strings.HasPrefix(permalink, "http://") || strings.HasPrefix(permalink, "https://") {
		return permalink
	}
	return siteURL + permalink
}

func singlePart(h mail.Header, body string) ([]byte, error) {
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

func multipart(h mail.Header, text string, files []attachments.Attachment) ([]byte, error) {
	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	if _, err := io.WriteString(tw, text); err != nil {
		return nil, fmt.Errorf("write text part: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close text part: %w", err)
	}

	for _, f := range files {
		var ah mail.AttachmentHeader
		ah.Set("Content-Type", f.ContentType)
		ah.SetFilename(f.Filename)
		ah.Set("Content-Transfer-Encoding", "base64")

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("create attachment %s: %w", f.Filename, err)
		}
		if _, err := aw.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write attachment %s: %w", f.Filename, err)
		}
		if err := aw.Close(); err != nil {
			return nil, fmt.Errorf("close attachment %s: %w", f.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}
