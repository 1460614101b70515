package models

import (
	"bytes"
	"encoding/json"
)

const (
	KindComment    = "t1"
	KindSubmission = "t3"
	KindMore       = "more"
)

type RedditListing struct {
	Data struct {
		Children []RedditThing `json:"children"`
		After    string        `json:"after"`
	} `json:"data"`
}

// RedditThing keeps data raw until the kind is known, since listings mix
// comments and "more" stubs.
type RedditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type RedditPost struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	IsSelf      bool    `json:"is_self"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

type RedditComment struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Body       string        `json:"body"`
	Author     string        `json:"author"`
	Subreddit  string        `json:"subreddit"`
	Permalink  string        `json:"permalink"`
	LinkID     string        `json:"link_id"`
	ParentID   string        `json:"parent_id"`
	CreatedUTC float64       `json:"created_utc"`
	Replies    RedditReplies `json:"replies"`
}

type RedditMore struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parent_id"`
	Count    int      `json:"count"`
	Children []string `json:"children"`
}

// RedditReplies is either an empty string or a nested listing.
type RedditReplies struct {
	Listing *RedditListing
}

func (r *RedditReplies) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, []byte(`""`)) || bytes.Equal(b, []byte("null")) {
		r.Listing = nil
		return nil
	}
	var listing RedditListing
	if err := json.Unmarshal(b, &listing); err != nil {
		return err
	}
	r.Listing = &listing
	return nil
}

type RedditSubredditAbout struct {
	Data struct {
		DisplayName   string `json:"display_name"`
		SubredditType string `json:"subreddit_type"`
	} `json:"data"`
}

type RedditMoreChildrenResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []RedditThing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}
