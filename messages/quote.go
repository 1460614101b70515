package messages

import (
	"context"
	"fmt"
	"strings"

	"github.com/peterjschroeder/redp/models"
)

// MaxQuoteDepth bounds the parent walk on pathological threads.
const MaxQuoteDepth = 500

// Ancestor is one comment above the one being quoted. Depth 1 is the direct parent.
type Ancestor struct {
	Depth  int
	Author string
	Body   string
}

type CommentLookup func(ctx context.Context, id string) (models.Comment, error)

// Ancestors walks from c up to its submission, nearest first. On a failed
// lookup the ancestors found so far are returned along with the error.
func Ancestors(ctx context.Context, c models.Comment, lookup CommentLookup) ([]Ancestor, error) {
	var found []Ancestor

	current := c
	for depth := 1; !current.ParentIsSubmission(); depth++ {
		if depth > MaxQuoteDepth {
			return found, fmt.Errorf("thread above %s deeper than %d", c.ID, MaxQuoteDepth)
		}

		parent, err := lookup(ctx, current.ParentKey())
		if err != nil {
			return found, fmt.Errorf("look up parent %s: %w", current.ParentKey(), err)
		}

		found = append(found, Ancestor{Depth: depth, Author: parent.AuthorName(), Body: parent.Body})
		current = parent
	}

	return found, nil
}

// Quote renders ancestors as nested quotes. The root-most ancestor comes first
// with the most markers and the direct parent comes last with a single ">".
func Quote(ancestors []Ancestor) string {
	var quote string
	for _, a := range ancestors {
		prefix := strings.Repeat(">", a.Depth) + " "
		block := prefixLines(prefix, a.Author+" wrote:\n"+a.Body)
		quote = block + "\n\n" + quote
	}
	return quote
}

func prefixLines(prefix, text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
