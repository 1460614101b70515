package matchers

import (
	"time"

	"github.com/peterjschroeder/redp/config"
	"github.com/peterjschroeder/redp/models"
)

// MatchesSubmission reports whether a submission passes the subscription's
// thresholds. A submission that fails is ignored entirely, comments included.
func MatchesSubmission(sub config.Subscription, s models.Submission, now time.Time) bool {
	if s.NumComments < sub.MinComments {
		return false
	}
	if s.Score < sub.MinScore {
		return false
	}
	return s.CreatedUTC >= sub.Cutoff(now)
}
