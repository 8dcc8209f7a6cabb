package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/geoimport/internal/reader/readertest"
)

func TestRunner_Submit(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	gate := &testTransform{
		name: "gate",
		apply: func(context.Context, *ItemData) error {
			entered <- struct{}{}
			<-release
			return nil
		},
	}

	m, cat := newTestManager(t, WithDefaultTransforms(gate))
	id := mustContext(t, m)
	mustTask(t, m, id, readertest.WriteFile(t, t.TempDir(), "people.csv", "name\nann\n"))

	r := NewRunner(m, &RunnerConfig{Workers: 1, QueueSize: 1}, nil)
	r.Start(context.Background())
	defer r.Stop()

	require.NoError(t, r.Submit(id))
	<-entered
	assert.True(t, r.Pending(id))
	assert.ErrorIs(t, r.Submit(id), ErrAlreadyRunning)

	close(release)
	require.Eventually(t, func() bool { return !r.Pending(id) }, 5*time.Second, 10*time.Millisecond)

	snap, err := m.GetContext(id)
	require.NoError(t, err)
	assert.Equal(t, ContextComplete, snap.State)
	assert.Equal(t, 1, cat.addCount())
}

func TestRunner_UnknownContext(t *testing.T) {
	m, _ := newTestManager(t)
	r := NewRunner(m, nil, nil)
	r.Start(context.Background())
	defer r.Stop()

	assert.ErrorIs(t, r.Submit(42), ErrNotFound)
}

func TestRunner_Stopped(t *testing.T) {
	m, _ := newTestManager(t)
	id := mustContext(t, m)
	r := NewRunner(m, nil, nil)
	r.Start(context.Background())
	r.Stop()
	r.Stop()

	assert.ErrorIs(t, r.Submit(id), ErrQueueFull)
}
