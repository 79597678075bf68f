// Package client is the record-store facade the portal calls. A Client owns
// its read cache, its provisioned list descriptors and its degraded-mode
// queue; construct one per session and pass it by reference.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/mesh-intelligence/civicstore/internal/cache"
	"github.com/mesh-intelligence/civicstore/internal/logging"
	"github.com/mesh-intelligence/civicstore/internal/metrics"
	"github.com/mesh-intelligence/civicstore/internal/provision"
	"github.com/mesh-intelligence/civicstore/internal/queue"
	"github.com/mesh-intelligence/civicstore/pkg/deadline"
	"github.com/mesh-intelligence/civicstore/pkg/derive"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Client implements the record operations over a RemoteStore.
type Client struct {
	remote   types.RemoteStore
	queue    *queue.Queue
	prov     *provision.Provisioner
	records  *cache.Cache[[]types.Record]
	items    *cache.Cache[types.Record]
	validate *validator.Validate
	replay   *rate.Limiter

	lists   []types.ListDescriptor
	intake  types.IntakeConfig
	deriver derive.Deriver
	policy  deadline.Policy

	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	started atomic.Bool
	reads   singleflight.Group

	// gens counts invalidations per list. A fetch that started before an
	// invalidation must not repopulate the cache with pre-write data.
	genMu sync.Mutex
	gens  map[string]uint64
}

type options struct {
	ttl        time.Duration
	now        func() time.Time
	logger     *zap.Logger
	metrics    *metrics.Metrics
	lists      []types.ListDescriptor
	intake     types.IntakeConfig
	replayRate float64
}

// Option configures a Client.
type Option func(*options)

// WithTTL sets how long list reads are served from cache.
func WithTTL(ttl time.Duration) Option { return func(o *options) { o.ttl = ttl } }

// WithClock sets the time source for cache expiry and intake dates.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = logging.OrNop(l) } }

// WithMetrics records cache, provisioning, queue and intake metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithLists registers lists to provision at Start.
func WithLists(lists ...types.ListDescriptor) Option {
	return func(o *options) { o.lists = append(o.lists, lists...) }
}

// WithIntake sets the governed intake configuration.
func WithIntake(cfg types.IntakeConfig) Option { return func(o *options) { o.intake = cfg } }

// WithReplayRate limits queue replay to perSecond entries.
func WithReplayRate(perSecond float64) Option { return func(o *options) { o.replayRate = perSecond } }

// WithConfig applies the cache, queue and intake sections of cfg.
func WithConfig(cfg types.Config) Option {
	return func(o *options) {
		o.ttl = cfg.Cache.TTL
		o.intake = cfg.Intake
		o.replayRate = cfg.Queue.ReplayPerSec
	}
}

// New builds a client. Call Start before any record operation.
func New(remote types.RemoteStore, persistence types.LocalPersistence, opts ...Option) *Client {
	def := types.DefaultConfig()
	o := options{
		ttl:        def.Cache.TTL,
		now:        time.Now,
		logger:     zap.NewNop(),
		intake:     def.Intake,
		replayRate: def.Queue.ReplayPerSec,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cacheOpts := []cache.Option{cache.WithTTL(o.ttl), cache.WithClock(o.now), cache.WithMetrics(o.metrics)}
	q := queue.New(persistence,
		queue.WithClock(o.now), queue.WithLogger(o.logger), queue.WithMetrics(o.metrics))
	prov := provision.New(remote,
		provision.WithLogger(o.logger), provision.WithMetrics(o.metrics))
	fyStart := time.Month(o.intake.FiscalYearStartMonth)

	return &Client{
		remote:   remote,
		queue:    q,
		prov:     prov,
		records:  cache.New[[]types.Record](cacheOpts...),
		items:    cache.New[types.Record](cacheOpts...),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		replay:   rate.NewLimiter(rate.Limit(o.replayRate), 1),
		lists:    o.lists,
		intake:   o.intake,
		deriver:  derive.Deriver{FiscalYearStart: fyStart, CasePrefix: o.intake.CasePrefix},
		policy:   deadline.Policy{ResponseDays: o.intake.ResponseDays},
		now:      o.now,
		logger:   o.logger,
		metrics:  o.metrics,
		gens:     make(map[string]uint64),
	}
}

// Start provisions the intake list, every registered list and the intake
// document root. Any error aborts startup: the client cannot safely run
// against a partially provisioned store. Start may be called again after a
// failure; lists already resolved are not looked up twice.
func (c *Client) Start(ctx context.Context) error {
	lists := append([]types.ListDescriptor{IntakeList(c.intake.List)}, c.lists...)
	var folders [][]string
	if c.intake.DocumentRoot != "" {
		folders = append(folders, []string{c.intake.DocumentRoot})
	}

	resolved, err := c.prov.EnsureAll(ctx, lists, folders)
	if err != nil {
		c.logger.Error("provisioning failed", zap.Error(err))
		return fmt.Errorf("provisioning record store: %w", err)
	}
	c.started.Store(true)

	depth, err := c.queue.Len(ctx)
	if err != nil {
		c.logger.Warn("reading local queue", zap.Error(err))
	}
	c.logger.Info("record store ready",
		zap.Int("lists", len(resolved)),
		zap.Int("queued", depth))
	return nil
}

// Started reports whether Start has succeeded.
func (c *Client) Started() bool { return c.started.Load() }

// Descriptor returns the provisioned descriptor of a list.
func (c *Client) Descriptor(list string) (types.ListDescriptor, bool) {
	return c.prov.Descriptor(list)
}

// resolve returns the descriptor of list. Registered lists come from the
// session; others are looked up once, never created.
func (c *Client) resolve(ctx context.Context, list string) (types.ListDescriptor, error) {
	if !c.started.Load() {
		return types.ListDescriptor{}, types.ErrNotStarted
	}
	if d, ok := c.prov.Descriptor(list); ok {
		return d, nil
	}
	d, err := c.prov.Lookup(ctx, list)
	if errors.Is(err, types.ErrNotFound) {
		return types.ListDescriptor{}, fmt.Errorf("%w: %w", types.ErrListNotRegistered, err)
	}
	return d, err
}

// Cached reads and generations are scoped by remote list id, not by the
// name a caller typed: the store matches names ignoring case, so "permits"
// and "Permits" are one list.
func (c *Client) generation(scope string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gens[scope]
}

// invalidate drops every cached read of d. It cannot fail the write that
// triggered it.
func (c *Client) invalidate(d types.ListDescriptor) {
	c.genMu.Lock()
	c.gens[d.RemoteID]++
	c.genMu.Unlock()

	prefix := cache.ScopePrefix(d.RemoteID)
	n := c.records.Invalidate(prefix) + c.items.Invalidate(prefix)
	c.logger.Debug("cache invalidated",
		zap.String("list", d.DisplayName),
		zap.String("list_id", d.RemoteID),
		zap.Int("entries", n))
}

// declared returns the registered descriptor matching list ignoring case.
func (c *Client) declared(list string) (types.ListDescriptor, bool) {
	if strings.EqualFold(list, c.intake.List) {
		return IntakeList(c.intake.List), true
	}
	for _, d := range c.lists {
		if strings.EqualFold(list, d.DisplayName) {
			return d, true
		}
	}
	return types.ListDescriptor{}, false
}

// Pending returns the writes waiting in the local queue, oldest first.
func (c *Client) Pending(ctx context.Context) ([]types.QueuedSubmission, error) {
	return c.queue.List(ctx)
}
