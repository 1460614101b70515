package attachments

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"
)

// CommandResolver runs an external downloader such as gallery-dl or yt-dlp
// into a scratch directory and attaches whatever files it produced.
type CommandResolver struct {
	logger   *slog.Logger
	name     string
	args     func(dir, url string) []string
	mainType string
	timeout  time.Duration
	maxBytes int64
}

func NewGalleryDL(logger *slog.Logger, command string, timeout time.Duration, maxBytes int64) *CommandResolver {
	return &CommandResolver{
		logger:   logger,
		name:     command,
		mainType: "image",
		timeout:  timeout,
		maxBytes: maxBytes,
		args: func(dir, url string) []string {
			return []string{"--quiet", "--directory", dir, url}
		},
	}
}

func NewYtDLP(logger *slog.Logger, command string, timeout time.Duration, maxBytes int64) *CommandResolver {
	return &CommandResolver{
		logger:   logger,
		name:     command,
		mainType: "video",
		timeout:  timeout,
		maxBytes: maxBytes,
		args: func(dir, url string) []string {
			return []string{
				"--quiet", "--no-warnings", "--no-playlist",
				"--match-filter", "!is_live",
				"--output", filepath.Join(dir, "%(title)s.%(ext)s"),
				url,
			}
		},
	}
}

// Available reports whether the downloader binary is on PATH.
func (r *CommandResolver) Available() bool {
	_, err := exec.LookPath(r.name)
	return err == nil
}

func (r *CommandResolver) Resolve(ctx context.Context, url string) ([]Attachment, error) {
	if !r.Available() {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "redp-download-")
	if err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, r.name, r.args(dir, url)...).CombinedOutput()
	if err != nil {
		// unsupported URLs make the downloaders exit non-zero
		r.logger.Debug("downloader failed", "command", r.name, "url", url, "error", err, "output", string(out))
		return nil, nil
	}

	return r.collect(dir)
}

func (r *CommandResolver) collect(dir string) ([]Attachment, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk download dir: %w", err)
	}
	sort.Strings(paths)

	var found []Attachment
	var total int64
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read download: %w", err)
		}
		total += int64(len(data))
		if r.maxBytes > 0 && total > r.maxBytes {
			r.logger.Info("download over size limit", "command", r.name, "bytes", total)
			return nil, nil
		}

		contentType := mime.TypeByExtension(filepath.Ext(p))
		if contentType == "" {
			contentType = r.mainType + "/" + trimDot(filepath.Ext(p))
		}
		found = append(found, Attachment{
			Filename:    filepath.Base(p),
			ContentType: contentType,
			Data:        data,
		})
	}

	return found, nil
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	if ext == "" {
		return "octet-stream"
	}
	return ext
}
