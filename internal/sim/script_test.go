package sim

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsroom/internal/completion"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/progress"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		in      string
		want    Outcome
		wantErr bool
	}{
		{"", OutcomeApprove, false},
		{"approve", OutcomeApprove, false},
		{" Reject ", OutcomeReject, false},
		{"revise_approve", OutcomeReviseApprove, false},
		{"reject_retry", OutcomeRejectRetry, false},
		{"max_iterations", OutcomeMaxIterations, false},
		{"error", OutcomeError, false},
		{"explode", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutcome(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func journalText(p plan) string {
	j := NewJournal(1000, nil)
	for _, st := range p.steps {
		j.Log(st.level, st.msg)
	}
	return j.Tail(1000)
}

func TestScript_DetectedOutcome(t *testing.T) {
	tests := []struct {
		outcome    Outcome
		maxIter    int
		status     newsroom.Status
		iterations int
	}{
		{OutcomeApprove, 3, newsroom.StatusSuccess, 1},
		{OutcomeReviseApprove, 3, newsroom.StatusSuccess, 2},
		{OutcomeReviseApprove, 1, newsroom.StatusMaxIterations, 1},
		{OutcomeReject, 3, newsroom.StatusRejected, 3},
		{OutcomeRejectRetry, 3, newsroom.StatusRejected, 3},
		{OutcomeMaxIterations, 2, newsroom.StatusMaxIterations, 2},
		{OutcomeError, 3, newsroom.StatusError, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			p := script("AI", "run-1", tt.maxIter, tt.outcome)
			assert.Equal(t, tt.status, p.status)
			assert.Equal(t, tt.iterations, p.iterations)

			d := completion.New("run-1")
			status, fired := d.Check(journalText(p))
			require.True(t, fired)
			assert.Equal(t, tt.status, status)

			byTopic := completion.New("AI")
			status, fired = byTopic.Check(journalText(p))
			require.True(t, fired)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestScript_OnlyFinalRejectionIsAnnounced(t *testing.T) {
	text := journalText(script("AI", "", 3, OutcomeReject))
	assert.Equal(t, 1, strings.Count(text, "ARTICLE REJECTED"))
	assert.Equal(t, 3, strings.Count(text, "Decyzja: REJECT"))
}

func TestScript_RejectRetryAnnouncesEveryRejection(t *testing.T) {
	p := script("AI", "run-1", 3, OutcomeRejectRetry)
	text := journalText(p)
	assert.Equal(t, 3, strings.Count(text, ">>> ARTICLE REJECTED <<<"))
	assert.Equal(t, 2, strings.Count(text, "Probuje ponownie"))

	// A client following the log completes on the first banner, while the
	// server goes on to iterations 2 and 3.
	d := completion.New("run-1")
	var firedAt string
	for _, line := range strings.Split(text, "\n") {
		if _, fired := d.Feed([]string{line}); fired {
			firedAt = line
			break
		}
	}
	assert.Contains(t, firedAt, ">>> ARTICLE REJECTED <<<")
	assert.Equal(t, newsroom.StatusRejected, d.Status())
	assert.Less(t, strings.Index(text, firedAt), strings.Index(text, "ITERATION 2/3"))
}

func TestScript_NoRunIDMarkerWithoutRunID(t *testing.T) {
	text := journalText(script("AI", "", 1, OutcomeApprove))
	assert.NotContains(t, text, "START-OF-CYCLE")
	assert.Contains(t, text, "ORCHESTRATOR START: 'AI'")
}

func TestScript_DrivesProgress(t *testing.T) {
	tr := progress.NewTracker()
	p := script("AI", "", 1, OutcomeApprove)
	var percents []int
	for _, line := range strings.Split(journalText(p), "\n") {
		if st, changed := tr.Observe(line); changed {
			percents = append(percents, st.Percent)
		}
	}
	assert.Equal(t, []int{25, 50, 65, 80}, percents)
}

func TestPlan_Result(t *testing.T) {
	res := script("AI", "run-1", 3, OutcomeApprove).result("AI", "run-1")
	assert.Equal(t, newsroom.StatusSuccess, res.Status)
	assert.Equal(t, "run-1", res.RunID)
	require.NotNil(t, res.Iterations)
	assert.Equal(t, 1, *res.Iterations)
	require.NotNil(t, res.Article)
	assert.Equal(t, "AI: what changes next", res.Article.Title)
	require.NotNil(t, res.Article.WordCount)
	assert.Positive(t, *res.Article.WordCount)
	require.NotNil(t, res.Review)
	assert.Equal(t, "approve", res.Review.Decision)
	assert.InDelta(t, 8.5, res.Review.Score, 0.001)
	assert.Empty(t, res.Review.Weaknesses)

	failed := script("AI", "", 3, OutcomeError).result("AI", "")
	assert.Equal(t, newsroom.StatusError, failed.Status)
	assert.Equal(t, "research agent timed out", failed.Error)
	assert.Nil(t, failed.Article)
	assert.Nil(t, failed.Review)
}
