package data

// StateStore records what has already been turned into mail, per subreddit.
// Implementations must treat a missing subreddit as empty state.
type StateStore interface {
	Retrieved(subreddit string) (map[string]bool, error)
	// MarkRetrieved must only be called after the message for id is durably written.
	MarkRetrieved(subreddit, id string) error
	Skipped(subreddit string) (map[string]bool, error)
	MarkSkipped(subreddit, id string) error
	// CommentCount is the ledger count plus any skipped-count row for the submission.
	CommentCount(subreddit, submissionID string) (int, error)
	// SetCommentCount replaces the ledger row for the submission.
	SetCommentCount(subreddit, submissionID string, count int) error
}
