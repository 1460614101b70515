package models

type ArcticShiftSearchResponse[T any] struct {
	Data  []T    `json:"data"`
	Error string `json:"error"`
}

// APIError is the error message Arctic Shift sends with a 200 status, such as
// a query timeout. It is empty on success.
func (r *ArcticShiftSearchResponse[T]) APIError() string {
	return r.Error
}

type ArcticShiftPost struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	IsSelf      bool    `json:"is_self"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

type ArcticShiftComment struct {
	ID         string  `json:"id"`
	Subreddit  string  `json:"subreddit"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	LinkID     string  `json:"link_id"`
	ParentID   string  `json:"parent_id"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}
