package sim

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
)

// Outcome selects how a simulated cycle ends.
//
// OutcomeReject and OutcomeRejectRetry both reject every draft; the latter
// announces each rejection before retrying, as the newsroom orchestrator does.
type Outcome string

const (
	OutcomeApprove       Outcome = "approve"
	OutcomeReviseApprove Outcome = "revise_approve"
	OutcomeReject        Outcome = "reject"
	OutcomeRejectRetry   Outcome = "reject_retry"
	OutcomeMaxIterations Outcome = "max_iterations"
	OutcomeError         Outcome = "error"
)

// ParseOutcome validates s. The empty string selects OutcomeApprove.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OutcomeApprove, nil
	case OutcomeApprove, OutcomeReviseApprove, OutcomeReject, OutcomeRejectRetry, OutcomeMaxIterations, OutcomeError:
		return o, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

const (
	levelInfo    = "INFO"
	levelWarning = "WARNING"
	levelError   = "ERROR"
)

// step is one journal entry. Steps with pause set wait StepDelay first.
type step struct {
	level string
	msg   string
	pause bool
}

// plan is a scripted cycle and the result it publishes.
type plan struct {
	steps      []step
	status     newsroom.Status
	iterations int
	decision   string
	score      float64
	err        string
}

const rule = "============================================================"

// decision per iteration, 1-based.
func decide(o Outcome, iteration int) string {
	switch o {
	case OutcomeApprove:
		return "APPROVE"
	case OutcomeReviseApprove:
		if iteration >= 2 {
			return "APPROVE"
		}
		return "REVISE"
	case OutcomeReject, OutcomeRejectRetry:
		return "REJECT"
	}
	return "REVISE"
}

func scoreFor(decision string, iteration int) float64 {
	switch decision {
	case "APPROVE":
		return 8.5
	case "REJECT":
		return 3.0
	}
	return 5.5 + float64(iteration)*0.5
}

// script builds the log lines for one cycle. With OutcomeReject only the
// last rejection logs the rejection banner, so a retried draft never looks
// finished; OutcomeRejectRetry logs it on every rejection.
func script(topic, runID string, maxIter int, o Outcome) plan {
	p := plan{}
	add := func(level, msg string, pause bool) {
		p.steps = append(p.steps, step{level: level, msg: msg, pause: pause})
	}
	if runID != "" {
		add(levelInfo, fmt.Sprintf("START-OF-CYCLE: '%s'", runID), false)
	}
	add(levelInfo, rule, false)
	add(levelInfo, fmt.Sprintf("ORCHESTRATOR START: '%s'", topic), false)
	add(levelInfo, fmt.Sprintf("Max iterations: %d", maxIter), false)
	add(levelInfo, rule, false)

	add(levelInfo, "\n[STEP 1/4] RESEARCH AGENT", true)
	add(levelInfo, strings.Repeat("-", 40), false)
	add(levelInfo, "  Temat: "+topic, false)
	add(levelInfo, "  Zrodla: 3", false)
	add(levelInfo, "  Fakty: 5", false)

	if o == OutcomeError {
		add(levelError, "\n!!! ORCHESTRATOR ERROR: research agent timed out", true)
		p.status = newsroom.StatusError
		p.err = "research agent timed out"
		return p
	}

	title := headline(topic)
	for i := 1; i <= maxIter; i++ {
		p.iterations = i
		add(levelInfo, "\n"+rule, true)
		add(levelInfo, fmt.Sprintf("ITERATION %d/%d", i, maxIter), false)
		add(levelInfo, rule, false)

		add(levelInfo, "\n[STEP 2/4] WRITER AGENT", true)
		add(levelInfo, strings.Repeat("-", 40), false)
		if i > 1 {
			add(levelInfo, "  [!] Otrzymano feedback od Editora:", false)
		}
		add(levelInfo, "  Tytul: "+title, false)
		add(levelInfo, fmt.Sprintf("  Wersja: %d", i), false)

		add(levelInfo, "\n[STEP 3/4] ML CLICKBAIT DETECTOR", true)
		add(levelInfo, strings.Repeat("-", 40), false)
		add(levelInfo, "  Score: 0.12 [OK]", false)

		d := decide(o, i)
		p.decision, p.score = d, scoreFor(d, i)
		add(levelInfo, "\n[STEP 4/4] EDITOR AGENT", true)
		add(levelInfo, strings.Repeat("-", 40), false)
		add(levelInfo, "  Decyzja: "+d, false)
		add(levelInfo, fmt.Sprintf("  Ocena: %.1f/10", p.score), false)

		last := i == maxIter
		switch {
		case d == "APPROVE":
			add(levelInfo, "\n"+rule, false)
			add(levelInfo, ">>> ARTICLE APPROVED! <<<", false)
			add(levelInfo, rule, false)
			add(levelInfo, "  Final title: "+title, false)
			p.status = newsroom.StatusSuccess
			return p
		case d == "REJECT" && (last || o == OutcomeRejectRetry):
			add(levelWarning, "\n"+rule, false)
			add(levelWarning, ">>> ARTICLE REJECTED <<<", false)
			add(levelWarning, rule, false)
			add(levelWarning, "  Powod: slabe zrodla", false)
			if last {
				p.status = newsroom.StatusRejected
				return p
			}
			add(levelInfo, "  Probuje ponownie z uwzglednieniem uwag...", false)
		case d == "REJECT":
			add(levelInfo, "  Probuje ponownie z uwzglednieniem uwag...", false)
		default:
			add(levelInfo, "\n[REVISION REQUIRED]", false)
			if !last {
				add(levelInfo, fmt.Sprintf("  -> Przekazuje feedback do Writer (iteracja %d)", i+1), false)
			} else {
				add(levelWarning, "  -> Brak pozostalych iteracji", false)
			}
		}
	}

	add(levelWarning, "\n"+rule, true)
	add(levelWarning, fmt.Sprintf("MAX ITERATIONS (%d) REACHED", maxIter), false)
	add(levelWarning, rule, false)
	add(levelInfo, ">>> CYKL ZAKONCZONY - Artykul gotowy (limit iteracji)", false)
	p.status = newsroom.StatusMaxIterations
	return p
}

func headline(topic string) string {
	return topic + ": what changes next"
}

// result builds the payload GET /last-result serves for p.
func (p plan) result(topic, runID string) *newsroom.PipelineResult {
	iterations := p.iterations
	res := &newsroom.PipelineResult{
		Status:     p.status,
		Topic:      topic,
		RunID:      runID,
		Iterations: &iterations,
		Error:      p.err,
	}
	if p.status == newsroom.StatusError {
		return res
	}

	body := fmt.Sprintf("## Background\n\nReporting on **%s** draws on three sources.\n\n## Outlook\n\nEditors expect further developments.", topic)
	words := len(strings.Fields(body))
	res.Article = &newsroom.Article{
		Title:     headline(topic),
		Lead:      fmt.Sprintf("A short briefing on %s.", topic),
		Body:      body,
		Tags:      []string{strings.ToLower(topic), "briefing"},
		WordCount: &words,
	}
	res.Review = &newsroom.Review{
		Decision:   strings.ToLower(p.decision),
		Score:      p.score,
		Strengths:  []string{"clear structure"},
		Weaknesses: []string{},
	}
	if p.status != newsroom.StatusSuccess {
		res.Review.Weaknesses = []string{"thin sourcing"}
	}
	return res
}
