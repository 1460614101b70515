package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterjschroeder/redp/enums"
)

func TestParseSubscriptions(t *testing.T) {
	input := "golang\t1600000000.0\t5\t10\t30\nprivatesub\t0\t0\t0\t0\n"

	subs, err := ParseSubscriptions(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, Subscription{Subreddit: "golang", MaxAge: 1600000000, MinComments: 5, MinScore: 10, RetentionDays: 30}, subs[0])
	assert.Equal(t, "privatesub", subs[1].Subreddit)
	assert.Zero(t, subs[1].RetentionDays)
}

func TestParseSubscriptions_Malformed(t *testing.T) {
	_, err := ParseSubscriptions(strings.NewReader("golang\tsoon\t5\t10\t30\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = ParseSubscriptions(strings.NewReader("golang\t0\t5\n"))
	assert.Error(t, err)
}

func TestLoadSubscriptions_Missing(t *testing.T) {
	_, err := LoadSubscriptions(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSubscriptions)
}

func TestSubscriptionCutoffs(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	sub := Subscription{MaxAge: 1_000, RetentionDays: 2}
	assert.Equal(t, int64(1_700_000_000-2*86400), sub.ExpirationCutoff(now))
	assert.Equal(t, int64(1_700_000_000-2*86400), sub.Cutoff(now))

	sub = Subscription{MaxAge: 1_699_999_999}
	assert.Zero(t, sub.ExpirationCutoff(now))
	assert.Equal(t, int64(1_699_999_999), sub.Cutoff(now))
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	require.ErrorIs(t, err, ErrConfigCreated)
	assert.FileExists(t, filepath.Join(dir, configFileName))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.SkipAutomoderator)
	assert.False(t, cfg.Autoquote)
	assert.Equal(t, enums.StateBackendFiles, cfg.State.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Downloaders.Timeout)
	assert.True(t, cfg.AttachmentKinds().Allows(enums.AttachmentKindImage))
	assert.False(t, cfg.AttachmentKinds().Allows(enums.AttachmentKindVideo))
	assert.Equal(t, int64(10000*1024), cfg.AttachmentsMaxBytes())
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("path_maildir: /srv/mail\nautoquote: true\n"), 0o644))
	t.Setenv("REDP_REDDIT_CLIENT_ID", "abc")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/srv/mail", cfg.PathMaildir)
	assert.True(t, cfg.Autoquote)
	assert.Equal(t, "abc", cfg.Reddit.ClientID)
	assert.False(t, cfg.Reddit.HasCredentials())
}
