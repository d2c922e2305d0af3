package logline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Record
	}{
		{
			name: "well formed",
			line: "2024-05-01 12:34:56 | INFO | Research complete",
			want: Record{Timestamp: "12:34:56", Level: "INFO", Message: "Research complete"},
		},
		{
			name: "fractional seconds",
			line: "2024-05-01 12:34:56,789 | WARNING | slow response",
			want: Record{Timestamp: "12:34:56", Level: "WARNING", Message: "slow response"},
		},
		{
			name: "message keeps pipes",
			line: "2024-05-01 08:00:01 | ERROR | a | b | c",
			want: Record{Timestamp: "08:00:01", Level: "ERROR", Message: "a | b | c"},
		},
		{
			name: "stack trace line",
			line: "Traceback (most recent call last):",
			want: Record{Level: "INFO", Message: "Traceback (most recent call last):"},
		},
		{
			name: "separator",
			line: "============================================================",
			want: Record{Level: "INFO", Message: "============================================================"},
		},
		{
			name: "empty",
			line: "",
			want: Record{Level: "INFO", Message: ""},
		},
		{
			name: "missing level",
			line: "2024-05-01 12:34:56 | Research complete",
			want: Record{Level: "INFO", Message: "2024-05-01 12:34:56 | Research complete"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.line))
		})
	}
}

func TestParse_NonMatchingKeepsLineVerbatim(t *testing.T) {
	line := `  File "/app/orchestrator.py", line 42, in run`
	rec := Parse(line)
	assert.False(t, rec.HasTimestamp())
	assert.Equal(t, DefaultLevel, rec.Level)
	assert.Equal(t, line, rec.Message)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\r\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb"))
	assert.Equal(t, []string{""}, SplitLines("\n"))
}

func TestParseAll(t *testing.T) {
	text := "2024-05-01 10:00:00 | INFO | ORCHESTRATOR START: 'AI'\n" +
		"------\n" +
		"2024-05-01 10:00:02 | INFO | [STEP 1/4] RESEARCH AGENT\n"

	recs := ParseAll(text)
	assert.Len(t, recs, 3)
	assert.Equal(t, "10:00:00", recs[0].Timestamp)
	assert.Equal(t, "------", recs[1].Message)
	assert.Equal(t, "[STEP 1/4] RESEARCH AGENT", recs[2].Message)
}
