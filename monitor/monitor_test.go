package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/queue"
	"github.com/venicegeo/bf-scene-catalog/tasks"
)

type mockPositions struct {
	positions []model.TrackedPosition
	err       error
}

func (m mockPositions) Positions(context.Context) ([]model.TrackedPosition, error) {
	return m.positions, m.err
}

type mockQueue struct {
	mu       sync.Mutex
	payloads []tasks.DownloadPayload
	queued   chan struct{}
}

func newMockQueue() *mockQueue {
	return &mockQueue{queued: make(chan struct{}, 10)}
}

func (q *mockQueue) Register(string, queue.Handler, queue.RetryPolicy) error { return nil }

func (q *mockQueue) Enqueue(ctx context.Context, task string, payload interface{}) error {
	q.mu.Lock()
	q.payloads = append(q.payloads, payload.(tasks.DownloadPayload))
	q.mu.Unlock()
	q.queued <- struct{}{}
	return nil
}

func (q *mockQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.payloads)
}

var twoPositions = []model.TrackedPosition{{Path: "220", Row: "066"}, {Path: "001", Row: "002"}}

func TestCheckAll_QueuesEveryPosition(t *testing.T) {
	q := newMockQueue()
	m := New(mockPositions{positions: twoPositions}, q, []string{"4", "5", "6"}, nil)

	queued, err := m.CheckAll(context.Background())

	require.Nil(t, err)
	assert.Equal(t, 2, queued)
	assert.Equal(t, []tasks.DownloadPayload{
		{Path: "220", Row: "066", Bands: []string{"4", "5", "6"}},
		{Path: "001", Row: "002", Bands: []string{"4", "5", "6"}},
	}, q.payloads)
}

func TestCheckAll_PositionsError(t *testing.T) {
	m := New(mockPositions{err: errors.New("db down")}, newMockQueue(), nil, nil)

	_, err := m.CheckAll(context.Background())

	assert.EqualError(t, err, "db down")
}

func TestCheckAll_Cancelled(t *testing.T) {
	q := newMockQueue()
	m := New(mockPositions{positions: twoPositions}, q, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	queued, err := m.CheckAll(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, queued)
}

func TestRunWhile_BeginMessageTriggersCheck(t *testing.T) {
	q := newMockQueue()
	m := New(mockPositions{positions: twoPositions}, q, nil, nil)
	messages := make(chan string, 5)
	go m.RunWhile(messages, time.Hour)
	defer close(messages)

	messages <- BeginMessage

	for i := 0; i < 2; i++ {
		select {
		case <-q.queued:
		case <-time.After(time.Second):
			assert.FailNow(t, "check was not started within 1 second")
		}
	}
	assert.Equal(t, 2, q.count())
}

func TestRunWhile_TimerTriggersCheck(t *testing.T) {
	q := newMockQueue()
	m := New(mockPositions{positions: twoPositions[:1]}, q, nil, nil)
	messages := make(chan string)
	go m.RunWhile(messages, 20*time.Millisecond)
	defer close(messages)

	select {
	case <-q.queued:
	case <-time.After(time.Second):
		assert.Fail(t, "timer did not start a check within 1 second")
	}
}

func TestGetStatus(t *testing.T) {
	m := New(mockPositions{}, newMockQueue(), nil, nil)
	messages := make(chan string)
	go m.RunWhile(messages, time.Hour)
	defer close(messages)

	status := m.GetStatus()

	assert.True(t, strings.Contains(status, "Status: Sleeping until"))
	assert.True(t, strings.Contains(status, "Previous check:\n\tNone"))
}

func TestGetStatus_AfterCheck(t *testing.T) {
	q := newMockQueue()
	m := New(mockPositions{positions: twoPositions[:1]}, q, nil, nil)
	messages := make(chan string, 1)
	go m.RunWhile(messages, time.Hour)
	defer close(messages)

	messages <- BeginMessage
	<-q.queued

	// The status request is answered once the check has returned.
	assert.Eventually(t, func() bool {
		return strings.Contains(m.GetStatus(), "Queued: 1")
	}, time.Second, 10*time.Millisecond)
}
