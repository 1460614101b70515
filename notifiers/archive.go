package notifiers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const waybackSaveURL = "https://web.archive.org/save/"

// Archiver asks the Internet Archive's Wayback Machine to snapshot a URL.
type Archiver struct {
	httpClient *http.Client
	saveURL    string
	userAgent  string
}

func NewArchiver(httpClient *http.Client, userAgent string) *Archiver {
	return &Archiver{
		httpClient: httpClient,
		saveURL:    waybackSaveURL,
		userAgent:  userAgent,
	}
}

func (a *Archiver) Push(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.saveURL+url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return fmt.Errorf("wayback machine returned status %d for %s", resp.StatusCode, strings.TrimSpace(url))
	}

	return nil
}
