package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.MessagesWritten.WithLabelValues("golang", KindComment).Inc()
	m.MessagesWritten.WithLabelValues("golang", KindComment).Inc()
	m.CommentsSkipped.WithLabelValues("golang", "automoderator").Inc()
	m.AttachmentFallbacks.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesWritten.WithLabelValues("golang", KindComment)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommentsSkipped.WithLabelValues("golang", "automoderator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttachmentFallbacks))

	count, err := testutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.MessagesExpired.WithLabelValues("golang").Add(4)

	path := filepath.Join(t.TempDir(), "redp.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `redp_messages_expired_total{subreddit="golang"} 4`)
}
