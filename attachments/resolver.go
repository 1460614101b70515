// Package attachments turns a submission URL into files that can be stored
// inline in the message.
package attachments

import (
	"context"
	"log/slog"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Resolver returns no attachments and a nil error when the URL should be
// stored as a plain link.
type Resolver interface {
	Resolve(ctx context.Context, url string) ([]Attachment, error)
}

// Chain asks each resolver in turn. The first non-empty result wins.
type Chain struct {
	logger    *slog.Logger
	resolvers []Resolver
}

func NewChain(logger *slog.Logger, resolvers ...Resolver) *Chain {
	return &Chain{logger: logger, resolvers: resolvers}
}

func (c *Chain) Resolve(ctx context.Context, url string) ([]Attachment, error) {
	for _, r := range c.resolvers {
		found, err := r.Resolve(ctx, url)
		if err != nil {
			c.logger.Warn("resolve attachment", "url", url, "error", err)
			continue
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, nil
}
