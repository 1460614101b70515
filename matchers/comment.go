package matchers

import (
	"strings"
	"time"

	"github.com/peterjschroeder/redp/config"
	"github.com/peterjschroeder/redp/models"
)

const AutoModerator = "AutoModerator"

type SkipReason string

const (
	SkipReasonNone          SkipReason = ""
	SkipReasonTooOld        SkipReason = "too_old"
	SkipReasonAutoModerator SkipReason = "automoderator"
)

// SkipComment decides whether a comment is recorded as skipped instead of
// being delivered.
func SkipComment(sub config.Subscription, c models.Comment, now time.Time, skipAutoModerator bool) SkipReason {
	if c.CreatedUTC < sub.Cutoff(now) {
		return SkipReasonTooOld
	}
	if skipAutoModerator && strings.EqualFold(c.Author, AutoModerator) {
		return SkipReasonAutoModerator
	}
	return SkipReasonNone
}
