package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWorker struct {
	name     string
	startErr error
	stopErr  error
	started  atomic.Int32
	stopped  atomic.Int32
	ctx      context.Context
}

func (f *fakeWorker) Start(ctx context.Context) error {
	f.started.Add(1)
	f.ctx = ctx
	return f.startErr
}

func (f *fakeWorker) Stop() error {
	f.stopped.Add(1)
	return f.stopErr
}

func (f *fakeWorker) Name() string { return f.name }

func TestWorkerManager_Lifecycle(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	audit := &fakeWorker{name: "audit"}
	notify := &fakeWorker{name: "notification"}
	m.Register(audit)
	m.Register(notify)

	assert.Equal(t, 2, m.GetWorkerCount())
	assert.Equal(t, []string{"audit", "notification"}, m.WorkerNames())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()), "second start is refused")

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.NoError(t, m.StopAll(), "stopping twice is a no-op")

	for _, w := range []*fakeWorker{audit, notify} {
		assert.EqualValues(t, 1, w.started.Load())
		assert.EqualValues(t, 1, w.stopped.Load())
		assert.Error(t, w.ctx.Err(), "worker context is cancelled after stop")
	}
}

func TestWorkerManager_StartFailureKeepsOthers(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	good := &fakeWorker{name: "good"}
	bad := &fakeWorker{name: "bad", startErr: errors.New("broker unreachable")}
	m.Register(good)
	m.Register(bad)

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start bad")
	assert.True(t, m.IsRunning())
	assert.NoError(t, good.ctx.Err())

	require.NoError(t, m.StopAll())
}

func TestWorkerManager_StopError(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	m.Register(&fakeWorker{name: "stuck", stopErr: errors.New("timeout")})
	m.Register(&fakeWorker{name: "fine"})

	require.NoError(t, m.StartAll(context.Background()))
	err := m.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop stuck")
	assert.False(t, m.IsRunning())
}
