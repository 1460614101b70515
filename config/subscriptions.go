package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	subscriptionsFileName = "subscribed"
	secondsPerDay         = 86400
)

// ErrNoSubscriptions means the picker has never been run.
var ErrNoSubscriptions = errors.New(`run "redpick" first to create a subscriptions file`)

// Subscription is one row of the subscriptions file written by redpick.
type Subscription struct {
	Subreddit     string
	MaxAge        int64 // epoch seconds; older items are ignored
	MinComments   int
	MinScore      int
	RetentionDays int // 0 disables expiry
}

// ExpirationCutoff is the absolute epoch before which items are past retention.
// It is zero when retention is disabled.
func (s Subscription) ExpirationCutoff(now time.Time) int64 {
	if s.RetentionDays <= 0 {
		return 0
	}
	return now.Unix() - int64(s.RetentionDays)*secondsPerDay
}

// Cutoff is the later of the max-age and expiration cutoffs, the lower time bound for fetching.
func (s Subscription) Cutoff(now time.Time) int64 {
	return max(s.MaxAge, s.ExpirationCutoff(now))
}

func (s Subscription) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * secondsPerDay * time.Second
}

func SubscriptionsPath(dir string) string {
	return filepath.Join(dir, subscriptionsFileName)
}

// LoadSubscriptions reads the tab-delimited subscriptions file from dir.
func LoadSubscriptions(dir string) ([]Subscription, error) {
	f, err := os.Open(SubscriptionsPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSubscriptions
		}
		return nil, fmt.Errorf("open subscriptions: %w", err)
	}
	defer f.Close()

	return ParseSubscriptions(f)
}

func ParseSubscriptions(r io.Reader) ([]Subscription, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = 5
	reader.LazyQuotes = true

	var subs []Subscription
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse subscriptions line %d: %w", line, err)
		}

		sub, err := parseSubscription(record)
		if err != nil {
			return nil, fmt.Errorf("parse subscriptions line %d: %w", line, err)
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

func parseSubscription(record []string) (Subscription, error) {
	name := strings.TrimSpace(record[0])
	if name == "" {
		return Subscription{}, errors.New("empty subreddit name")
	}

	// redpick writes the max age as a float epoch
	maxAge, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return Subscription{}, fmt.Errorf("max age: %w", err)
	}
	minComments, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil {
		return Subscription{}, fmt.Errorf("min comments: %w", err)
	}
	minScore, err := strconv.Atoi(strings.TrimSpace(record[3]))
	if err != nil {
		return Subscription{}, fmt.Errorf("min score: %w", err)
	}
	retention, err := strconv.Atoi(strings.TrimSpace(record[4]))
	if err != nil {
		return Subscription{}, fmt.Errorf("retention days: %w", err)
	}

	return Subscription{
		Subreddit:     name,
		MaxAge:        int64(maxAge),
		MinComments:   minComments,
		MinScore:      minScore,
		RetentionDays: retention,
	}, nil
}
