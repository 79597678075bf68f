package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/civicstore/internal/localstore"
	"github.com/mesh-intelligence/civicstore/internal/metrics"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newFileQueue(t *testing.T, opts ...Option) (*Queue, types.LocalPersistence) {
	t.Helper()
	store, err := localstore.OpenFileStore(t.TempDir())
	require.NoError(t, err)
	return New(store, opts...), store
}

func TestEnqueueAssignsIdentity(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	q, _ := newFileQueue(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	sub, err := q.Enqueue(ctx, types.QueuedSubmission{
		Op: types.OpCreate, ListName: "Permits", Fields: map[string]any{"Title": "x"}, Attempts: 3,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, fixed, sub.EnqueuedAt)
	assert.Zero(t, sub.Attempts)

	kept, err := q.Enqueue(ctx, types.QueuedSubmission{ID: "given", Op: types.OpDelete})
	require.NoError(t, err)
	assert.Equal(t, "given", kept.ID)
}

func TestQueueSurvivesRestart(t *testing.T) {
	store, err := localstore.OpenFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first := New(store)
	for i := range 3 {
		_, err := first.Enqueue(ctx, types.QueuedSubmission{Op: types.OpCreate, ListName: fmt.Sprintf("L%d", i)})
		require.NoError(t, err)
	}

	second := New(store)
	entries, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("L%d", i), e.ListName, "order preserved")
	}
}

func TestRemoveAndUpdate(t *testing.T) {
	q, _ := newFileQueue(t)
	ctx := context.Background()

	a, err := q.Enqueue(ctx, types.QueuedSubmission{Op: types.OpCreate, ListName: "A"})
	require.NoError(t, err)
	b, err := q.Enqueue(ctx, types.QueuedSubmission{Op: types.OpCreate, ListName: "B"})
	require.NoError(t, err)

	b.Attempts = 2
	b.LastError = "transient"
	require.NoError(t, q.Update(ctx, b))

	require.NoError(t, q.Remove(ctx, a.ID))
	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.Equal(t, "transient", entries[0].LastError)

	assert.ErrorIs(t, q.Remove(ctx, a.ID), types.ErrNotFound)
	assert.ErrorIs(t, q.Update(ctx, types.QueuedSubmission{ID: "nope"}), types.ErrNotFound)
}

func TestEmptyQueue(t *testing.T) {
	q, _ := newFileQueue(t)
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnknownVersionRejected(t *testing.T) {
	q, store := newFileQueue(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, Namespace, []byte(`{"version":9,"entries":[]}`)))

	_, err := q.List(ctx)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestConcurrentEnqueue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	q, _ := newFileQueue(t, WithMetrics(m))
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Enqueue(ctx, types.QueuedSubmission{Op: types.OpCreate, ItemID: fmt.Sprint(i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, n)
	assert.Equal(t, float64(n), testutil.ToFloat64(m.QueueDepth))
}

func TestBadgerBackedQueue(t *testing.T) {
	store, err := localstore.OpenBadger(localstore.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	q := New(store)
	ctx := context.Background()
	sub, err := q.Enqueue(ctx, types.QueuedSubmission{Op: types.OpUpdate, ItemID: "7"})
	require.NoError(t, err)
	require.NoError(t, q.Remove(ctx, sub.ID))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
