package notify

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/analysis"
	"github.com/guianderson/terrama2/internal/conf"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/logger"
)

var testLog = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

var (
	started = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	success = analysis.RunRecord{
		AnalysisID: 1, AnalysisName: "Serra do Mar zonal", ExecutionID: "e-1", Reference: started,
		StartedAt: started, FinishedAt: started.Add(2 * time.Second), Status: analysis.StatusSuccess, Rows: 1, Written: 1,
	}
	failure = analysis.RunRecord{
		AnalysisID: 2, ExecutionID: "e-2", Reference: started,
		StartedAt: started, FinishedAt: started.Add(time.Second), Status: analysis.StatusFailed,
		Category: errors.CategoryDataUnavailable, Message: "data series 2 could not be read",
	}
)

type publishedMessage struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) IsConnected() bool             { return true }
func (f *fakeClient) Disconnect()                   {}

func (f *fakeClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.NewStd("publish without deadline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, publishedMessage{topic: topic, payload: payload})
	return f.err
}

func TestPublisher_RunFinished(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	p := NewPublisher(client, "terrama2/analysis/", time.Second, testLog)

	p.RunFinished(context.Background(), success)
	p.RunFinished(context.Background(), failure)

	require.Len(t, client.messages, 2)
	assert.Equal(t, "terrama2/analysis/1", client.messages[0].topic)
	assert.Equal(t, "terrama2/analysis/2", client.messages[1].topic)

	var got map[string]any
	require.NoError(t, json.Unmarshal(client.messages[1].payload, &got))
	assert.Equal(t, "FAILED", got["status"])
	assert.Equal(t, "data-unavailable", got["category"])
	assert.Equal(t, "e-2", got["execution_id"])
}

func TestPublisher_PublishErrorIsSwallowed(t *testing.T) {
	t.Parallel()
	client := &fakeClient{err: errors.NewStd("broker gone")}
	p := NewPublisher(client, "runs", 0, testLog)

	assert.NotPanics(t, func() { p.RunFinished(context.Background(), success) })
	assert.Len(t, client.messages, 1)
}

func TestMQTTClient_PublishWithoutConnection(t *testing.T) {
	t.Parallel()
	c := NewMQTTClient(conf.MQTTSettings{Broker: "tcp://127.0.0.1:1", ClientID: "test"}, nil, testLog)

	assert.False(t, c.IsConnected())
	err := c.Publish(context.Background(), "runs/1", []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	c.Disconnect()
}

type fakeSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (f *fakeSender) Send(message string, params *stypes.Params) []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	title, _ := params.Title()
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, message)
	return nil
}

func TestNotifier_OnlyFailed(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	n := NewNotifier(sender, "station-7", true, testLog)

	n.RunFinished(context.Background(), success)
	n.RunFinished(context.Background(), failure)

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "[station-7] analysis 2 failed", sender.titles[0])
	assert.Contains(t, sender.bodies[0], "Error (data-unavailable): data series 2 could not be read")
}

func TestNotifier_AllRuns(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	n := NewNotifier(sender, "", false, testLog)

	n.RunFinished(context.Background(), success)

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "[terrama2] Serra do Mar zonal completed", sender.titles[0])
	assert.Contains(t, sender.bodies[0], "Rows 1, written 1, took 2s")
}

func TestNewShoutrrrNotifier(t *testing.T) {
	t.Parallel()

	_, err := NewShoutrrrNotifier("x", nil, true, time.Second, testLog)
	require.Error(t, err)

	_, err = NewShoutrrrNotifier("x", []string{"nosuchservice://token@host"}, true, time.Second, testLog)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "token@host")

	n, err := NewShoutrrrNotifier("x", []string{"logger://"}, false, time.Second, testLog)
	require.NoError(t, err)
	assert.NotNil(t, n)
}
