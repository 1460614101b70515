package models

import "strings"

const (
	// DeletedAuthor stands in for accounts that were deleted or removed.
	DeletedAuthor = "deleted"

	commentPrefix    = KindComment + "_"
	submissionPrefix = KindSubmission + "_"
)

type Submission struct {
	ID          string
	Subreddit   string
	Title       string
	Author      string // empty when the account is gone
	Selftext    string
	URL         string
	Permalink   string
	IsSelf      bool
	Score       int
	NumComments int
	CreatedUTC  int64
}

func (s Submission) AuthorName() string {
	return authorName(s.Author)
}

func (s Submission) Fullname() string {
	return submissionPrefix + s.ID
}

type Comment struct {
	ID           string
	ParentID     string // fullname: t1_ for a comment, t3_ for the submission
	SubmissionID string
	Author       string // empty when the account is gone
	Body         string
	Permalink    string
	CreatedUTC   int64
}

func (c Comment) AuthorName() string {
	return authorName(c.Author)
}

// ParentIsSubmission reports whether the comment is a top-level reply.
func (c Comment) ParentIsSubmission() bool {
	if strings.HasPrefix(c.ParentID, submissionPrefix) {
		return true
	}
	return StripFullname(c.ParentID) == c.SubmissionID
}

// ParentKey is the bare ID of the parent item.
func (c Comment) ParentKey() string {
	return StripFullname(c.ParentID)
}

// StripFullname turns "t1_abc" into "abc". Bare IDs are returned unchanged.
func StripFullname(name string) string {
	if i := strings.IndexByte(name, '_'); i == 2 && name[0] == 't' {
		return name[i+1:]
	}
	return name
}

// NormalizeAuthor maps Reddit's placeholders for missing accounts to "".
func NormalizeAuthor(author string) string {
	switch author {
	case "", "[deleted]", "[removed]":
		return ""
	}
	return author
}

func authorName(author string) string {
	if author == "" {
		return DeletedAuthor
	}
	return author
}
