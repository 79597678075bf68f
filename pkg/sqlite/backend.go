// Package sqlite provides the public constructor for the offline record
// store: a RemoteStore kept in a SQLite file under the data directory.
//
// Example:
//
//	store, err := sqlite.Open(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Detach()
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/civicstore/internal/sqlite"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Store is an attached offline record store.
type Store interface {
	types.RemoteStore
	Detach() error
}

// Open creates the store in cfg.DataDir and attaches it. When cfg carries
// a static token, calls must present it.
func Open(cfg types.Config, logger *zap.Logger) (Store, error) {
	opts := []sqlite.Option{sqlite.WithLogger(logger)}
	if cfg.Remote.Token != "" {
		opts = append(opts, sqlite.WithRequiredToken(cfg.Remote.Token))
	}
	b := sqlite.NewBackend(opts...)
	if err := b.Attach(cfg); err != nil {
		return nil, err
	}
	return b, nil
}
