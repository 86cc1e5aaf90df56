package geofs

import (
	"time"

	"github.com/dendrascience/geofs/util"
)

// TimeLayout is the layout used by FormatTime.
const TimeLayout = "2006-01-02 15:04:05"

// HashToString returns the 64-character lowercase hex form of d.
func HashToString(d util.Digest) string {
	return d.String()
}

// FormatTime renders t in local time for listings.
func FormatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}
