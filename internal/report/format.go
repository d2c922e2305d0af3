package report

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
)

// FormatLatency formats d as "X.Xms" below one second, "X.Xs" otherwise.
func FormatLatency(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatDuration formats d as "Xh Ym", "Xm Ys" or "Xs".
func FormatDuration(d time.Duration) string {
	seconds := int64(d.Round(time.Second) / time.Second)
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// FormatScore formats an editor score out of ten.
func FormatScore(score float64) string {
	return fmt.Sprintf("%.1f/10", score)
}

// FormatPercentage formats a ratio (0-1) as a percentage.
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// StatusText is the headline shown for a terminal status.
func StatusText(s newsroom.Status) string {
	switch s {
	case newsroom.StatusSuccess:
		return "APPROVED"
	case newsroom.StatusRejected:
		return "REJECTED"
	case newsroom.StatusMaxIterations:
		return "MAX ITERATIONS REACHED"
	case newsroom.StatusError:
		return "PIPELINE ERROR"
	case newsroom.StatusNoResult:
		return "NO RESULT"
	default:
		return "UNKNOWN"
	}
}

// Elapsed returns the cycle duration, or zero when either bound is missing.
func Elapsed(res *newsroom.PipelineResult) time.Duration {
	if res == nil || res.StartedAt.IsZero() || res.FinishedAt.IsZero() {
		return 0
	}
	d := res.FinishedAt.Sub(res.StartedAt.Time)
	if d < 0 {
		return 0
	}
	return d
}
