// Package remote wraps a RemoteStore with the policies every call shares:
// a bearer credential obtained before the call, a per-call timeout, a rate
// limit, and classification of transport failures into the error taxonomy
// of pkg/types.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mesh-intelligence/civicstore/internal/logging"
	"github.com/mesh-intelligence/civicstore/internal/metrics"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

type tokenKey struct{}

// WithToken returns a context carrying the bearer token for a call.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token attached by the guard.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey{}).(string)
	return tok, ok && tok != ""
}

// Guard is a RemoteStore decorator. The zero value is not usable; call
// NewGuard.
type Guard struct {
	next     types.RemoteStore
	tokens   types.TokenSource
	audience string
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithTokenSource requires a credential from ts before every call.
func WithTokenSource(ts types.TokenSource, audience string) GuardOption {
	return func(g *Guard) {
		g.tokens = ts
		g.audience = audience
	}
}

// WithTimeout bounds every call. Zero disables the bound.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.timeout = d }
}

// WithRateLimit paces calls to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) GuardOption {
	return func(g *Guard) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GuardOption {
	return func(g *Guard) { g.logger = logging.OrNop(l) }
}

// WithMetrics records call counts and latency.
func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// NewGuard wraps next.
func NewGuard(next types.RemoteStore, opts ...GuardOption) *Guard {
	g := &Guard{
		next:    next,
		timeout: types.DefaultRemoteTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ types.RemoteStore = (*Guard)(nil)

// call runs fn under the guard's policies. Unauthorized errors are returned
// as-is and never retried here.
func (g *Guard) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := Classify(g.invoke(ctx, fn))
	if err == nil {
		g.metrics.RemoteCall(op, "ok", time.Since(start).Seconds())
		return nil
	}
	kind := types.Kind(err)
	g.metrics.RemoteCall(op, kind.String(), time.Since(start).Seconds())
	if kind != types.KindNotFound && kind != types.KindConflict {
		g.logger.Debug("remote call failed", zap.String("op", op), zap.Stringer("kind", kind), zap.Error(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (g *Guard) invoke(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.tokens != nil {
		tok, err := g.tokens.GetToken(ctx, g.audience)
		if err != nil {
			if errors.Is(err, types.ErrUnauthorized) {
				return err
			}
			return fmt.Errorf("%w: %v", types.ErrUnauthorized, err)
		}
		if tok == "" {
			return fmt.Errorf("%w: no credential available", types.ErrUnauthorized)
		}
		ctx = WithToken(ctx, tok)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return fn(ctx)
}

// Classify maps timeouts and network errors onto ErrTransient. Errors that
// already carry a taxonomy sentinel are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if types.Kind(err) != types.KindUnknown {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, types.ErrTransient) {
			return fmt.Errorf("%w: %w", types.ErrTransient, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", types.ErrTransient, err)
	}
	return err
}

func (g *Guard) FindListByName(ctx context.Context, displayName string) (types.RemoteList, error) {
	var out types.RemoteList
	err := g.call(ctx, "find_list", func(ctx context.Context) (err error) {
		out, err = g.next.FindListByName(ctx, displayName)
		return err
	})
	return out, err
}

func (g *Guard) CreateList(ctx context.Context, displayName string) (types.RemoteList, error) {
	var out types.RemoteList
	err := g.call(ctx, "create_list", func(ctx context.Context) (err error) {
		out, err = g.next.CreateList(ctx, displayName)
		return err
	})
	return out, err
}

func (g *Guard) AddColumn(ctx context.Context, listID string, column types.ColumnSpec) error {
	return g.call(ctx, "add_column", func(ctx context.Context) error {
		return g.next.AddColumn(ctx, listID, column)
	})
}

func (g *Guard) ListItems(ctx context.Context, listID string, query types.Query) ([]types.RemoteItem, error) {
	var out []types.RemoteItem
	err := g.call(ctx, "list_items", func(ctx context.Context) (err error) {
		out, err = g.next.ListItems(ctx, listID, query)
		return err
	})
	return out, err
}

func (g *Guard) GetItem(ctx context.Context, listID, itemID string) (types.RemoteItem, error) {
	var out types.RemoteItem
	err := g.call(ctx, "get_item", func(ctx context.Context) (err error) {
		out, err = g.next.GetItem(ctx, listID, itemID)
		return err
	})
	return out, err
}

func (g *Guard) CreateItem(ctx context.Context, listID string, fields map[string]any) (types.RemoteItem, error) {
	var out types.RemoteItem
	err := g.call(ctx, "create_item", func(ctx context.Context) (err error) {
		out, err = g.next.CreateItem(ctx, listID, fields)
		return err
	})
	return out, err
}

func (g *Guard) UpdateItemFields(ctx context.Context, listID, itemID string, fields map[string]any) (types.RemoteItem, error) {
	var out types.RemoteItem
	err := g.call(ctx, "update_item", func(ctx context.Context) (err error) {
		out, err = g.next.UpdateItemFields(ctx, listID, itemID, fields)
		return err
	})
	return out, err
}

func (g *Guard) DeleteItem(ctx context.Context, listID, itemID string) error {
	return g.call(ctx, "delete_item", func(ctx context.Context) error {
		return g.next.DeleteItem(ctx, listID, itemID)
	})
}

func (g *Guard) GetFolder(ctx context.Context, path string) (types.Folder, error) {
	var out types.Folder
	err := g.call(ctx, "get_folder", func(ctx context.Context) (err error) {
		out, err = g.next.GetFolder(ctx, path)
		return err
	})
	return out, err
}

func (g *Guard) CreateFolder(ctx context.Context, path string) (types.Folder, error) {
	var out types.Folder
	err := g.call(ctx, "create_folder", func(ctx context.Context) (err error) {
		out, err = g.next.CreateFolder(ctx, path)
		return err
	})
	return out, err
}

func (g *Guard) UploadFile(ctx context.Context, path, filename string, content []byte, overwrite bool) (types.UploadedFile, error) {
	var out types.UploadedFile
	err := g.call(ctx, "upload_file", func(ctx context.Context) (err error) {
		out, err = g.next.UploadFile(ctx, path, filename, content, overwrite)
		return err
	})
	return out, err
}
