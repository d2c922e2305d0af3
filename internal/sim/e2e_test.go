package sim_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsroom/internal/config"
	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/poller"
	"github.com/fyrsmithlabs/newsroom/internal/progress"
	"github.com/fyrsmithlabs/newsroom/internal/render"
	"github.com/fyrsmithlabs/newsroom/internal/result"
	"github.com/fyrsmithlabs/newsroom/internal/sim"
)

type stages struct {
	poller.BaseObserver
	percents []int
}

func (s *stages) OnProgress(st progress.Stage) { s.percents = append(s.percents, st.Percent) }

// newPipeline wires a poller with the default tail window to a simulator.
func newPipeline(t *testing.T, cfg config.SimConfig, obs poller.Observer) (*poller.Poller, *render.HTMLSurface, *sim.Server) {
	t.Helper()
	srv, err := sim.NewServer(cfg, logging.Nop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})

	client := newsroom.New(ts.URL)
	fetcher := result.New(client, result.WithDelay(5*time.Millisecond), result.WithAttempts(5))
	surface := render.NewHTMLSurface()
	opts := []poller.Option{poller.WithInterval(5 * time.Millisecond)}
	if obs != nil {
		opts = append(opts, poller.WithObserver(obs))
	}
	return poller.New(client, fetcher, render.New(surface), opts...), surface, srv
}

func TestPipeline_AgainstSimulator(t *testing.T) {
	tests := []struct {
		scenario string
		state    poller.State
		status   newsroom.Status
	}{
		{"approve", poller.StateCompleted, newsroom.StatusSuccess},
		{"revise_approve", poller.StateCompleted, newsroom.StatusSuccess},
		{"reject", poller.StateCompleted, newsroom.StatusRejected},
		{"max_iterations", poller.StateCompleted, newsroom.StatusMaxIterations},
		{"error", poller.StateFailed, newsroom.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			p, surface, _ := newPipeline(t, config.SimConfig{StepDelay: config.Duration(time.Millisecond)}, nil)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			out, err := p.Run(ctx, poller.Request{Topic: "AI", MaxIterations: 2, Scenario: tt.scenario})
			require.NoError(t, err)

			assert.Equal(t, tt.state, out.State)
			assert.Equal(t, tt.status, out.Status)
			require.NotNil(t, out.Result)
			assert.Equal(t, tt.status, out.Result.Status)
			assert.Equal(t, out.Session.RunID, out.Result.RunID)
			assert.NotEmpty(t, surface.Rows())
		})
	}
}

func TestPipeline_RepeatedTopicIsScopedByRunID(t *testing.T) {
	obs := &stages{}
	p, _, _ := newPipeline(t, config.SimConfig{StepDelay: config.Duration(2 * time.Millisecond)}, obs)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := p.Run(ctx, poller.Request{Topic: "AI", MaxIterations: 1})
	require.NoError(t, err)
	require.Equal(t, newsroom.StatusSuccess, first.Status)

	obs.percents = nil
	second, err := p.Run(ctx, poller.Request{Topic: "AI", MaxIterations: 2, Scenario: "max_iterations"})
	require.NoError(t, err)

	assert.NotEqual(t, first.Session.RunID, second.Session.RunID)
	assert.Equal(t, newsroom.StatusMaxIterations, second.Status, "the first cycle's approval is out of scope")
	require.NotNil(t, second.Result)
	assert.Equal(t, second.Session.RunID, second.Result.RunID)
	assert.Contains(t, obs.percents, 80)
	assert.Equal(t, progress.Complete, obs.percents[len(obs.percents)-1])
}

func TestPipeline_CycleLongerThanTailWindow(t *testing.T) {
	p, surface, srv := newPipeline(t, config.SimConfig{StepDelay: config.Duration(5 * time.Millisecond)}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := p.Run(ctx, poller.Request{Topic: "AI", MaxIterations: 5, Scenario: "max_iterations"})
	require.NoError(t, err)

	assert.Greater(t, srv.Journal().Len(), poller.DefaultLines, "start marker scrolled out of the tail")
	assert.Equal(t, poller.StateCompleted, out.State)
	assert.Equal(t, newsroom.StatusMaxIterations, out.Status)
	require.NotNil(t, out.Result)
	assert.Equal(t, out.Session.RunID, out.Result.RunID)
	assert.Greater(t, len(surface.Rows()), poller.DefaultLines)
}

func TestPipeline_RejectRetryCompletesOnFirstRejection(t *testing.T) {
	p, _, _ := newPipeline(t, config.SimConfig{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := p.Run(ctx, poller.Request{Topic: "AI", MaxIterations: 3, Scenario: "reject_retry"})
	require.NoError(t, err)

	assert.Equal(t, poller.StateCompleted, out.State)
	assert.Equal(t, newsroom.StatusRejected, out.Status)
	require.NotNil(t, out.Result)
	assert.Equal(t, newsroom.StatusRejected, out.Result.Status)
}
