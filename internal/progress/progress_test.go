package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfer(t *testing.T) {
	tests := []struct {
		msg     string
		percent int
		label   string
		ok      bool
	}{
		{"[STEP 1/4] RESEARCH AGENT", 25, "collecting facts", true},
		{"RESEARCH AGENT: gathering sources", 25, "collecting facts", true},
		{"[STEP 2/4] WRITER AGENT", 50, "drafting article", true},
		{"[STEP 3/4] ML CLICKBAIT DETECTOR", 65, "ML scoring", true},
		{"[STEP 4/4] EDITOR AGENT", 80, "editorial review", true},
		{"ITERATION 2/3", 60, "revision iteration 2", true},
		{"ITERATION 1/3", 0, "", false},
		{"Saving article to disk", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			st, ok := Infer(tt.msg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.percent, st.Percent)
			assert.Equal(t, tt.label, st.Label)
			if tt.ok {
				assert.NotEmpty(t, st.Icon)
				assert.NotEmpty(t, st.Step)
			}
		})
	}
}

func TestInfer_FirstRuleWins(t *testing.T) {
	st, ok := Infer("ITERATION 2/3 [STEP 2/4] WRITER AGENT")
	assert.True(t, ok)
	assert.Equal(t, 50, st.Percent, "writer rule precedes the iteration rule")
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, 0, tr.Current().Percent)

	st, changed := tr.Observe("[STEP 4/4] EDITOR AGENT")
	assert.True(t, changed)
	assert.Equal(t, 80, st.Percent)

	st, changed = tr.Observe("unrelated")
	assert.False(t, changed)
	assert.Equal(t, 80, st.Percent)

	st, changed = tr.Observe("ITERATION 2/3")
	assert.True(t, changed)
	assert.Equal(t, 60, st.Percent, "revision moves progress back")

	_, changed = tr.Observe("ITERATION 2/3")
	assert.False(t, changed)

	done := tr.Finish("success")
	assert.Equal(t, Stage{Icon: "✅", Label: "success", Percent: 100}, done)
	assert.InDelta(t, 1.0, tr.Current().Fraction(), 0.0001)

	tr.Reset()
	assert.Equal(t, 0, tr.Current().Percent)
}

func TestFinish_Icons(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, "❌", tr.Finish("rejected").Icon)
	assert.Equal(t, "⚠️", tr.Finish("fetch failed").Icon)
}

func TestStage_String(t *testing.T) {
	st, _ := Infer("[STEP 2/4] WRITER AGENT")
	assert.Equal(t, "✍️ drafting article: Writer agent is drafting the article", st.String())
	assert.Equal(t, "✅ success", Stage{Icon: "✅", Label: "success", Percent: 100}.String())
	assert.Equal(t, "idle", Stage{Label: "idle"}.String())
}
