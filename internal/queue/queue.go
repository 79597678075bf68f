// Package queue keeps writes that could not reach the remote store in a
// durable, ordered list under one namespaced persistence key.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/civicstore/internal/logging"
	"github.com/mesh-intelligence/civicstore/internal/metrics"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Namespace is the persistence key holding the queue document. The version
// suffix changes if the document layout ever does.
const Namespace = "civicstore.queue.v1"

const documentVersion = 1

// ErrVersion is returned when the stored document has an unknown version.
var ErrVersion = errors.New("unsupported queue document version")

type document struct {
	Version int                      `json:"version"`
	Entries []types.QueuedSubmission `json:"entries"`
}

// Queue is safe for concurrent use. Every mutation is a read-modify-write of
// the whole document, so the persisted state is authoritative.
type Queue struct {
	store   types.LocalPersistence
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the time source for EnqueuedAt.
func WithClock(now func() time.Time) Option { return func(q *Queue) { q.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(q *Queue) { q.logger = logging.OrNop(l) } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(q *Queue) { q.metrics = m } }

// New returns a queue persisted in store.
func New(store types.LocalPersistence, opts ...Option) *Queue {
	q := &Queue{store: store, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) load(ctx context.Context) (document, error) {
	raw, err := q.store.Load(ctx, Namespace)
	if errors.Is(err, types.ErrNotFound) {
		return document{Version: documentVersion}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("loading queue: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("decoding queue: %w", err)
	}
	if doc.Version != documentVersion {
		return document{}, fmt.Errorf("queue version %d: %w", doc.Version, ErrVersion)
	}
	return doc, nil
}

func (q *Queue) save(ctx context.Context, doc document) error {
	if doc.Entries == nil {
		doc.Entries = []types.QueuedSubmission{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding queue: %w", err)
	}
	if err := q.store.Store(ctx, Namespace, raw); err != nil {
		return fmt.Errorf("saving queue: %w", err)
	}
	return nil
}

// Enqueue appends sub and returns it with ID, EnqueuedAt and Attempts set.
// A caller-supplied ID is kept.
func (q *Queue) Enqueue(ctx context.Context, sub types.QueuedSubmission) (types.QueuedSubmission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	doc, err := q.load(ctx)
	if err != nil {
		return types.QueuedSubmission{}, err
	}
	if sub.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return types.QueuedSubmission{}, fmt.Errorf("generating queue id: %w", err)
		}
		sub.ID = id.String()
	}
	sub.EnqueuedAt = q.now().UTC()
	sub.Attempts = 0
	doc.Entries = append(doc.Entries, sub)
	if err := q.save(ctx, doc); err != nil {
		return types.QueuedSubmission{}, err
	}

	q.logger.Info("write queued",
		zap.String("id", sub.ID),
		zap.String("op", string(sub.Op)),
		zap.String("list", sub.ListName),
		zap.Int("depth", len(doc.Entries)))
	q.metrics.Queue("enqueued", len(doc.Entries))
	return sub, nil
}

// List returns the entries in enqueue order.
func (q *Queue) List(ctx context.Context) ([]types.QueuedSubmission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	doc, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.List(ctx)
	return len(entries), err
}

// Remove deletes the entry with id. Missing ids return ErrNotFound.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.mutate(ctx, id, "removed", func(doc *document, i int) {
		doc.Entries = append(doc.Entries[:i], doc.Entries[i+1:]...)
	})
}

// Update replaces the stored entry with the same ID, keeping its position.
func (q *Queue) Update(ctx context.Context, sub types.QueuedSubmission) error {
	return q.mutate(ctx, sub.ID, "updated", func(doc *document, i int) {
		doc.Entries[i] = sub
	})
}

func (q *Queue) mutate(ctx context.Context, id, event string, fn func(*document, int)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	doc, err := q.load(ctx)
	if err != nil {
		return err
	}
	for i := range doc.Entries {
		if doc.Entries[i].ID != id {
			continue
		}
		fn(&doc, i)
		if err := q.save(ctx, doc); err != nil {
			return err
		}
		q.metrics.Queue(event, len(doc.Entries))
		return nil
	}
	return fmt.Errorf("queue entry %s: %w", id, types.ErrNotFound)
}
