// Package sqlite implements types.RemoteStore over a local SQLite database.
// It stands in for the hosted list and document service when the portal
// runs offline, in demos, and in integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/civicstore/internal/logging"
	"github.com/mesh-intelligence/civicstore/internal/remote"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// DatabaseFile is the file name of the database inside the data directory.
const DatabaseFile = "remote.db"

// Errors specific to the backend lifecycle.
var (
	ErrAlreadyAttached = errors.New("backend already attached")
	ErrDetached        = errors.New("backend detached")
)

// Backend is a RemoteStore persisted in SQLite. It must be attached before
// use; calls on a detached backend fail as transient, the way an
// unreachable service would.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	db       *sql.DB

	baseURL      string
	requireToken string
	now          func() time.Time
	logger       *zap.Logger
}

var _ types.RemoteStore = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithBaseURL sets the prefix of WebURL values. Defaults to civicstore://local.
func WithBaseURL(u string) Option { return func(b *Backend) { b.baseURL = u } }

// WithRequiredToken rejects calls whose context does not carry token.
func WithRequiredToken(token string) Option { return func(b *Backend) { b.requireToken = token } }

// WithClock sets the time source for created/updated stamps.
func WithClock(now func() time.Time) Option { return func(b *Backend) { b.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(b *Backend) { b.logger = logging.OrNop(l) } }

// NewBackend creates a detached backend.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{baseURL: "civicstore://local", now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach opens (or creates) the database in cfg.DataDir.
func (b *Backend) Attach(cfg types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return ErrAlreadyAttached
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	// One connection serialises writers; SQLite would otherwise report
	// SQLITE_BUSY under concurrent provisioning.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	b.db = db
	b.attached = true
	b.logger.Debug("sqlite remote attached", zap.String("path", dbPath))
	return nil
}

// Detach closes the database. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.attached = false
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// conn returns the database after the attachment and credential checks.
// The caller must hold b.mu.
func (b *Backend) conn(ctx context.Context) (*sql.DB, error) {
	if !b.attached {
		return nil, fmt.Errorf("%w: %w", types.ErrTransient, ErrDetached)
	}
	if b.requireToken != "" {
		tok, _ := remote.TokenFromContext(ctx)
		if tok != b.requireToken {
			return nil, fmt.Errorf("bearer token rejected: %w", types.ErrUnauthorized)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.db, nil
}

func (b *Backend) stamp() string {
	return b.now().UTC().Format(time.RFC3339Nano)
}

// classify maps driver errors that are not already sentinels. Context
// errors pass through; the guard decides what they mean.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func newListID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
