package notify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/poller"
	"github.com/fyrsmithlabs/newsroom/internal/progress"
	"github.com/fyrsmithlabs/newsroom/internal/render"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

type recordingPublisher struct {
	subjects []string
	events   []Event
	err      error
}

func (r *recordingPublisher) Publish(subject string, data []byte) error {
	if r.err != nil {
		return r.err
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	r.subjects = append(r.subjects, subject)
	r.events = append(r.events, ev)
	return nil
}

func testSession() poller.Session {
	return poller.Session{Topic: "AI in newsrooms", RunID: "run-1", Key: "run-1"}
}

func TestNotifier_Lifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	n := New(pub, "", nil)
	sess := testSession()

	n.OnState(poller.StateSubmitting, sess)
	n.OnState(poller.StatePolling, sess)
	n.OnProgress(progress.Stage{Icon: "🔍", Label: "collecting facts", Percent: 25, Step: "Research agent is gathering sources"})
	n.OnEntry(render.Entry{Message: "not published"})
	n.OnComplete(sess, newsroom.StatusSuccess)
	n.OnResult(sess, &newsroom.PipelineResult{Status: newsroom.StatusSuccess, Topic: sess.Topic})
	n.OnState(poller.StateCompleted, sess)

	assert.Equal(t, []string{
		"newsroom.runs.run-1.submitted",
		"newsroom.runs.run-1.polling",
		"newsroom.runs.run-1.progress",
		"newsroom.runs.run-1.completed",
		"newsroom.runs.run-1.result",
	}, pub.subjects)

	assert.Equal(t, 25, pub.events[2].Percent)
	assert.Equal(t, "collecting facts", pub.events[2].Label)
	assert.Equal(t, "🔍", pub.events[2].Icon)
	assert.Equal(t, "Research agent is gathering sources", pub.events[2].Step)
	assert.Equal(t, newsroom.StatusSuccess, pub.events[3].Status)
	require.NotNil(t, pub.events[4].Result)
	assert.Equal(t, "AI in newsrooms", pub.events[4].Topic)
	assert.Equal(t, "run-1", pub.events[4].RunID)
}

func TestNotifier_FailureAndStop(t *testing.T) {
	pub := &recordingPublisher{}
	n := New(pub, "news.", nil)
	sess := poller.Session{Topic: "Climate", Key: "Climate"}

	n.OnResultError(sess, errors.New("result fetch failed after 5 attempts"))
	n.OnState(poller.StateFailed, sess)
	n.OnState(poller.StateIdle, sess)

	assert.Equal(t, []string{
		"news.Climate.result",
		"news.Climate.failed",
		"news.Climate.stopped",
	}, pub.subjects)
	assert.Equal(t, "result fetch failed after 5 attempts", pub.events[0].Error)
	assert.Empty(t, pub.events[0].RunID)
}

func TestNotifier_ProgressBeforeSessionIsDropped(t *testing.T) {
	pub := &recordingPublisher{}
	New(pub, "", nil).OnProgress(progress.Stage{Percent: 50})
	assert.Empty(t, pub.subjects)
}

func TestNotifier_PublishErrorIsLogged(t *testing.T) {
	logger := logging.NewTestLogger()
	n := New(&recordingPublisher{err: errors.New("nats: connection closed")}, "", logger.Logger)

	n.OnState(poller.StatePolling, testSession())
	logger.AssertLogged(t, zapcore.WarnLevel, "publish event")
}

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"run-1", "run-1"},
		{"AI in newsrooms", "AI_in_newsrooms"},
		{"v1.2 > *", "v1_2____"},
		{"  ", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SubjectToken(tt.in))
		})
	}
}

func TestNotifier_NATS(t *testing.T) {
	server := startTestNATSServer(t)

	sub, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 16)
	s, err := sub.ChanSubscribe("newsroom.runs.>", msgs)
	require.NoError(t, err)
	defer func() { _ = s.Unsubscribe() }()
	require.NoError(t, sub.Flush())

	n, nc, err := Connect(server.ClientURL(), "", nil)
	require.NoError(t, err)
	defer nc.Close()

	sess := testSession()
	n.OnState(poller.StatePolling, sess)
	n.OnComplete(sess, newsroom.StatusRejected)
	require.NoError(t, nc.Flush())

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case m := <-msgs:
			got = append(got, m.Subject)
			if m.Subject == "newsroom.runs.run-1.completed" {
				var ev Event
				require.NoError(t, json.Unmarshal(m.Data, &ev))
				assert.Equal(t, newsroom.StatusRejected, ev.Status)
				assert.Equal(t, KindCompleted, ev.Kind)
			}
		case <-timeout:
			t.Fatalf("received %v before timeout", got)
		}
	}
	assert.Equal(t, []string{"newsroom.runs.run-1.polling", "newsroom.runs.run-1.completed"}, got)
}

func TestConnect_Unreachable(t *testing.T) {
	_, _, err := Connect("nats://127.0.0.1:1", "", nil)
	assert.Error(t, err)
}
