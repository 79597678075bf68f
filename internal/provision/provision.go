// Package provision ensures that lists (with their columns) and folder
// hierarchies exist in the remote store.
//
// Provisioning never assumes it is the only caller. Within a process,
// concurrent EnsureList calls for one name are collapsed into a single
// remote round trip. Across processes (other tabs, other sessions), a
// create that loses the race surfaces as ErrConflict and the loser adopts
// the winner's list by looking it up again.
package provision

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mesh-intelligence/civicstore/internal/logging"
	"github.com/mesh-intelligence/civicstore/internal/metrics"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Provisioning outcomes reported to metrics.
const (
	outcomeFound   = "found"
	outcomeCreated = "created"
	outcomeAdopted = "adopted"
)

// Provisioner resolves and creates lists and folders. Resolved list
// descriptors are kept for the life of the Provisioner; item writes never
// invalidate them.
type Provisioner struct {
	remote  types.RemoteStore
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	lists   map[string]types.ListDescriptor // ensured, columns included
	lookups map[string]types.ListDescriptor // resolved by Lookup only
	flight  singleflight.Group
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provisioner) { p.logger = logging.OrNop(l) }
}

// WithMetrics records provisioning outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provisioner) { p.metrics = m }
}

// New returns a Provisioner over remote.
func New(remote types.RemoteStore, opts ...Option) *Provisioner {
	p := &Provisioner{
		remote:  remote,
		logger:  zap.NewNop(),
		lists:   make(map[string]types.ListDescriptor),
		lookups: make(map[string]types.ListDescriptor),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Descriptor returns the session descriptor for a list, if resolved.
func (p *Provisioner) Descriptor(displayName string) (types.ListDescriptor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if d, ok := p.lists[displayName]; ok {
		return d, true
	}
	d, ok := p.lookups[displayName]
	return d, ok
}

func (p *Provisioner) ensured(displayName string) (types.ListDescriptor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.lists[displayName]
	return d, ok
}

// remember stores an ensured descriptor. The first resolution wins.
func (p *Provisioner) remember(d types.ListDescriptor) types.ListDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.lists[d.DisplayName]; ok {
		return prev
	}
	p.lists[d.DisplayName] = d
	p.lookups[d.DisplayName] = d
	return d
}

func (p *Provisioner) rememberLookup(d types.ListDescriptor) types.ListDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.lookups[d.DisplayName]; ok {
		return prev
	}
	p.lookups[d.DisplayName] = d
	return d
}

// EnsureList makes sure the list described by d exists with every declared
// column and returns d bound to its remote id. It is safe to call
// concurrently and redundantly.
func (p *Provisioner) EnsureList(ctx context.Context, d types.ListDescriptor) (types.ListDescriptor, error) {
	if err := d.Validate(); err != nil {
		return types.ListDescriptor{}, err
	}
	if cached, ok := p.ensured(d.DisplayName); ok {
		return cached, nil
	}
	// The shared call outlives the caller that started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := p.flight.Do(d.DisplayName, func() (any, error) {
		if cached, ok := p.ensured(d.DisplayName); ok {
			return cached, nil
		}
		resolved, err := p.resolveOrCreate(shared, d)
		if err != nil {
			return nil, err
		}
		return p.remember(resolved), nil
	})
	if err != nil {
		return types.ListDescriptor{}, err
	}
	return v.(types.ListDescriptor), nil
}

func (p *Provisioner) resolveOrCreate(ctx context.Context, d types.ListDescriptor) (types.ListDescriptor, error) {
	log := p.logger.With(zap.String("list", d.DisplayName))

	rl, err := p.remote.FindListByName(ctx, d.DisplayName)
	outcome := outcomeFound
	switch {
	case err == nil:
	case types.IsNotFound(err):
		rl, err = p.remote.CreateList(ctx, d.DisplayName)
		outcome = outcomeCreated
		if types.IsConflict(err) {
			// Another caller created it between our lookup and create.
			log.Info("list created concurrently, adopting")
			rl, err = p.remote.FindListByName(ctx, d.DisplayName)
			outcome = outcomeAdopted
		}
		if err != nil {
			return types.ListDescriptor{}, fmt.Errorf("ensure list %q: %w", d.DisplayName, err)
		}
	default:
		return types.ListDescriptor{}, fmt.Errorf("find list %q: %w", d.DisplayName, err)
	}
	p.metrics.Provision("list", outcome)
	log.Debug("list resolved", zap.String("id", rl.ID), zap.String("outcome", outcome))

	if err := p.ensureColumns(ctx, rl, d.Columns); err != nil {
		return types.ListDescriptor{}, err
	}
	return d.WithRemoteID(rl.ID), nil
}

// ensureColumns adds each declared column the remote list lacks. A list
// left half-provisioned by an earlier caller is completed here.
func (p *Provisioner) ensureColumns(ctx context.Context, rl types.RemoteList, columns []types.ColumnSpec) error {
	for _, c := range columns {
		if rl.HasColumn(c.Name) {
			continue
		}
		err := p.remote.AddColumn(ctx, rl.ID, c)
		switch {
		case err == nil:
			p.metrics.Provision("column", outcomeCreated)
		case types.IsConflict(err):
			p.metrics.Provision("column", outcomeAdopted)
		default:
			return fmt.Errorf("add column %q to %q: %w", c.Name, rl.DisplayName, err)
		}
	}
	return nil
}

// Lookup resolves an existing list without creating it. It returns an
// error wrapping ErrNotFound when the list does not exist.
func (p *Provisioner) Lookup(ctx context.Context, displayName string) (types.ListDescriptor, error) {
	if cached, ok := p.Descriptor(displayName); ok {
		return cached, nil
	}
	shared := context.WithoutCancel(ctx)
	v, err, _ := p.flight.Do("lookup:"+displayName, func() (any, error) {
		rl, err := p.remote.FindListByName(shared, displayName)
		if err != nil {
			return nil, fmt.Errorf("find list %q: %w", displayName, err)
		}
		return p.rememberLookup(types.ListDescriptor{DisplayName: displayName, RemoteID: rl.ID}), nil
	})
	if err != nil {
		return types.ListDescriptor{}, err
	}
	return v.(types.ListDescriptor), nil
}

// EnsureFolderPath creates each missing prefix of segments in order and
// returns the full path. Existing folders are only checked, never
// recreated, and a create that finds the folder already there counts as
// success.
func (p *Provisioner) EnsureFolderPath(ctx context.Context, segments []string) (string, error) {
	if len(segments) == 0 {
		return "", types.ErrEmptyPath
	}
	for i := range segments {
		if segments[i] == "" {
			return "", fmt.Errorf("%w: segment %d is empty", types.ErrEmptyPath, i)
		}
		path := types.JoinPath(segments[:i+1])
		_, err := p.remote.GetFolder(ctx, path)
		if err == nil {
			continue
		}
		if !types.IsNotFound(err) {
			return "", fmt.Errorf("check folder %q: %w", path, err)
		}
		_, err = p.remote.CreateFolder(ctx, path)
		switch {
		case err == nil:
			p.metrics.Provision("folder", outcomeCreated)
			p.logger.Debug("folder created", zap.String("path", path))
		case types.IsConflict(err):
			p.metrics.Provision("folder", outcomeAdopted)
		default:
			return "", fmt.Errorf("create folder %q: %w", path, err)
		}
	}
	return types.JoinPath(segments), nil
}

// EnsureAll provisions lists and folders concurrently and returns the
// resolved descriptors in the order given. The first failure cancels the
// rest.
func (p *Provisioner) EnsureAll(ctx context.Context, lists []types.ListDescriptor, folders [][]string) ([]types.ListDescriptor, error) {
	out := make([]types.ListDescriptor, len(lists))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range lists {
		g.Go(func() error {
			resolved, err := p.EnsureList(gctx, d)
			if err != nil {
				return err
			}
			out[i] = resolved
			return nil
		})
	}
	for _, segs := range folders {
		g.Go(func() error {
			_, err := p.EnsureFolderPath(gctx, segs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
