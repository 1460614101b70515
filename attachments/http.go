package attachments

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/peterjschroeder/redp/enums"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Pages and scripts are never worth keeping even when their main type is allowed.
var excludedTypes = map[string]bool{
	"application/x-httpd-php": true,
	"text/asp":                true,
	"text/css":                true,
	"text/html":               true,
	"text/javascript":         true,
}

// HTTPResolver downloads the URL itself and keeps it if the mime main type is allowed.
type HTTPResolver struct {
	client   *http.Client
	kinds    enums.AttachmentKinds
	maxBytes int64
}

// NewHTTPResolver returns a resolver limited to kinds. maxBytes <= 0 means no size limit.
func NewHTTPResolver(client *http.Client, kinds enums.AttachmentKinds, maxBytes int64) *HTTPResolver {
	return &HTTPResolver{client: client, kinds: kinds, maxBytes: maxBytes}
}

func (r *HTTPResolver) Resolve(ctx context.Context, rawURL string) ([]Attachment, error) {
	target := asciiOnly(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil
	}

	contentType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil
	}
	mainType, _, _ := strings.Cut(contentType, "/")
	if excludedTypes[contentType] || !r.kinds.Allows(enums.AttachmentKind(mainType)) {
		return nil, nil
	}

	body := io.Reader(resp.Body)
	if r.maxBytes > 0 {
		if resp.ContentLength > r.maxBytes {
			return nil, nil
		}
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, nil
	}

	return []Attachment{{
		Filename:    filename(resp.Header.Get("Content-Disposition"), target),
		ContentType: contentType,
		Data:        data,
	}}, nil
}

func filename(disposition, rawURL string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
		return path.Base(params["filename"])
	}
	if u, err := url.Parse(rawURL); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		return path.Base(u.Path)
	}
	return "attachment"
}

// asciiOnly drops non-ASCII runes, which Reddit allows in link URLs.
func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 127 {
			return -1
		}
		return r
	}, s)
}
