package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banshee-data/costmap/internal/costmap/l1packets"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingHandler struct {
	mu    sync.Mutex
	types []l1packets.MessageType
	done  chan struct{}
	want  int
	fail  l1packets.MessageType
}

func (h *recordingHandler) Handle(msg l1packets.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.types = append(h.types, msg.Type())
	if len(h.types) == h.want {
		close(h.done)
	}
	if msg.Type() == h.fail {
		return errors.New("rejected")
	}
	return nil
}

func TestDispatcher_PreservesOrder(t *testing.T) {
	h := &recordingHandler{done: make(chan struct{}), want: 4}
	stats := NewStats()
	d := NewDispatcher(h, 8, stats)

	require.True(t, d.PointCloud(batch(2)))
	require.True(t, d.Pose(&l1packets.NavState{}))
	require.True(t, d.Save(true))
	require.True(t, d.PointCloud(batch(2)))
	assert.Equal(t, 4, d.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain queue")
	}
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	assert.Equal(t, []l1packets.MessageType{
		l1packets.TypeCustomMsg, l1packets.TypeNavState, l1packets.TypeSaveCommand, l1packets.TypeCustomMsg,
	}, h.types)
	assert.Zero(t, stats.Snapshot().Dropped)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	stats := NewStats()
	d := NewDispatcher(&recordingHandler{}, 1, stats)

	assert.True(t, d.PointCloud(batch(1)))
	assert.False(t, d.PointCloud(batch(1)))
	assert.False(t, d.Pose(&l1packets.NavState{}))
	assert.False(t, d.Save(false))

	assert.Equal(t, int64(3), stats.Snapshot().Dropped)
	assert.Equal(t, 1, d.Pending())
}

func TestDispatcher_DefersSaveWhenFull(t *testing.T) {
	h := &recordingHandler{done: make(chan struct{}), want: 3}
	stats := NewStats()
	d := NewDispatcher(h, 2, stats)

	require.True(t, d.PointCloud(batch(1)))
	require.True(t, d.Pose(&l1packets.NavState{}))
	assert.True(t, d.Save(true))
	assert.True(t, d.Save(true), "second save coalesces with the first")
	assert.False(t, d.PointCloud(batch(1)))

	s := stats.Snapshot()
	assert.Equal(t, int64(1), s.Dropped)
	assert.Equal(t, int64(2), s.DeferredSaves)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("deferred save was not handled")
	}
	require.True(t, d.PointCloud(batch(1)))
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.types) == 4
	}, 5*time.Second, time.Millisecond)
	cancel()
	<-errc

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []l1packets.MessageType{
		l1packets.TypeCustomMsg, l1packets.TypeNavState, l1packets.TypeSaveCommand, l1packets.TypeCustomMsg,
	}, h.types)
}

func TestDispatcher_DeferredSaveWithOrchestrator(t *testing.T) {
	o, eng, _, _, _ := newHarness(t)
	d := NewDispatcher(o, 1, o.Stats())

	require.True(t, d.PointCloud(batch(3)))
	require.True(t, d.Save(true))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return o.Stats().Snapshot().SaveRequests == 1 }, 5*time.Second, time.Millisecond)
	cancel()
	<-errc

	assert.Equal(t, []int{2}, eng.clouds)
	assert.Equal(t, 1, eng.generation)
	assert.Equal(t, int64(1), o.Stats().Snapshot().Recomputes)
}

func TestDispatcher_CountsRejected(t *testing.T) {
	h := &recordingHandler{done: make(chan struct{}), want: 2, fail: l1packets.TypeNavState}
	stats := NewStats()
	d := NewDispatcher(h, 0, stats)
	d.Pose(&l1packets.NavState{})
	d.Save(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	<-h.done
	cancel()
	<-errc
	assert.Equal(t, int64(1), stats.Snapshot().Rejected)
}

func TestDispatcher_WithOrchestrator(t *testing.T) {
	o, eng, _, pubs, _ := newHarness(t)
	eng.ready = true
	d := NewDispatcher(o, 4, o.Stats())

	d.PointCloud(batch(3))
	d.Save(true)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Pending() == 0 && o.Stats().Snapshot().Recomputes == 2 }, 5*time.Second, time.Millisecond)
	cancel()
	<-errc

	assert.Len(t, *pubs, 4)
}
