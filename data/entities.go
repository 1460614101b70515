package data

import "time"

type RetrievedItem struct {
	Subreddit string    `db:"subreddit"`
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

type SkippedItem struct {
	Subreddit string    `db:"subreddit"`
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

type CommentCount struct {
	Subreddit    string    `db:"subreddit"`
	SubmissionID string    `db:"submission_id"`
	Count        int       `db:"count"`
	UpdatedAt    time.Time `db:"updated_at"`
}
