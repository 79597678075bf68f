package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/civicstore/internal/client"
	"github.com/mesh-intelligence/civicstore/internal/localstore"
	"github.com/mesh-intelligence/civicstore/internal/metrics"
	"github.com/mesh-intelligence/civicstore/internal/remote"
	pkgsqlite "github.com/mesh-intelligence/civicstore/pkg/sqlite"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Local state under the data directory.
const (
	queueDir       = "queue"
	queueBadgerDir = "queue.badger"
	tokenCacheTTL  = time.Minute
)

// session is one opened record store: the offline backend behind a guard,
// the local queue and a started client.
type session struct {
	client      *client.Client
	store       pkgsqlite.Store
	persistence types.LocalPersistence
	registry    *prometheus.Registry
	logger      *zap.Logger
}

// openPersistence opens the queue backend named by the configuration.
func openPersistence(cfg types.Config, dataDir string, logger *zap.Logger) (types.LocalPersistence, error) {
	switch cfg.Queue.Backend {
	case types.QueueBadger:
		bc := localstore.DefaultBadgerConfig(filepath.Join(dataDir, queueBadgerDir))
		bc.Logger = logger
		store, err := localstore.OpenBadger(bc)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := localstore.OpenFileStore(filepath.Join(dataDir, queueDir))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// guardOptions applies the remote section of cfg to the guard.
func guardOptions(cfg types.RemoteConfig, logger *zap.Logger, m *metrics.Metrics) []remote.GuardOption {
	opts := []remote.GuardOption{
		remote.WithTimeout(cfg.Timeout),
		remote.WithRateLimit(cfg.RatePerSecond, cfg.Burst),
		remote.WithLogger(logger),
		remote.WithMetrics(m),
	}
	if cfg.Token != "" || cfg.TokenFile != "" {
		src := &remote.CachedTokenSource{
			Source: &remote.StaticTokenSource{Token: cfg.Token, TokenFile: cfg.TokenFile},
			TTL:    tokenCacheTTL,
		}
		opts = append(opts, remote.WithTokenSource(src, cfg.Audience))
	}
	return opts
}

// openSession wires the stack and starts the client. When start is false
// the client is built but not provisioned.
func (a *app) openSession(ctx context.Context, start bool) (*session, error) {
	dataDir, err := a.dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg := a.cfg
	cfg.DataDir = dataDir

	store, err := pkgsqlite.Open(cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	persistence, err := openPersistence(cfg, dataDir, a.logger)
	if err != nil {
		_ = store.Detach()
		return nil, fmt.Errorf("open local queue: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	guard := remote.NewGuard(store, guardOptions(cfg.Remote, a.logger, m)...)
	c := client.New(guard, persistence,
		client.WithConfig(cfg),
		client.WithLists(cfg.Lists...),
		client.WithLogger(a.logger),
		client.WithMetrics(m),
	)

	s := &session{client: c, store: store, persistence: persistence, registry: reg, logger: a.logger}
	if start {
		if err := c.Start(ctx); err != nil {
			_ = s.close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) close() error {
	return errors.Join(s.persistence.Close(), s.store.Detach())
}

// finish closes s and, when requested, writes the collected metrics in the
// prometheus text format.
func (a *app) finish(s *session) error {
	if a.flags.metrics {
		if err := writeMetrics(a, s.registry); err != nil {
			a.logger.Warn("writing metrics", zap.Error(err))
		}
	}
	return s.close()
}

func writeMetrics(a *app, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(a.stderr, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// withSession opens a started session, runs fn and closes the session.
func (a *app) withSession(ctx context.Context, fn func(*client.Client) error) (err error) {
	s, err := a.openSession(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.finish(s))
	}()
	return fn(s.client)
}
