package types

import "context"

// RemoteStore is the raw CRUD capability against the remote list and
// document store. Implementations own transport and credentials and must
// classify every failure with one of the sentinel errors of this package:
// ErrNotFound, ErrConflict, ErrUnauthorized or ErrTransient.
type RemoteStore interface {
	// FindListByName returns ErrNotFound when no list has the display name.
	FindListByName(ctx context.Context, displayName string) (RemoteList, error)

	// CreateList returns ErrConflict when a list with the name already exists.
	CreateList(ctx context.Context, displayName string) (RemoteList, error)

	// AddColumn returns ErrConflict when the column already exists.
	AddColumn(ctx context.Context, listID string, column ColumnSpec) error

	ListItems(ctx context.Context, listID string, query Query) ([]RemoteItem, error)
	GetItem(ctx context.Context, listID, itemID string) (RemoteItem, error)
	CreateItem(ctx context.Context, listID string, fields map[string]any) (RemoteItem, error)

	// UpdateItemFields merges fields into the item; ErrNotFound when the
	// item no longer exists.
	UpdateItemFields(ctx context.Context, listID, itemID string, fields map[string]any) (RemoteItem, error)
	DeleteItem(ctx context.Context, listID, itemID string) error

	GetFolder(ctx context.Context, path string) (Folder, error)

	// CreateFolder returns ErrConflict when the folder already exists.
	CreateFolder(ctx context.Context, path string) (Folder, error)

	// UploadFile writes content under path/filename. With overwrite set an
	// existing file is replaced; without it, ErrConflict is returned.
	UploadFile(ctx context.Context, path, filename string, content []byte, overwrite bool) (UploadedFile, error)
}

// TokenSource supplies bearer credentials on demand. A missing or expired
// credential is reported as ErrUnauthorized.
type TokenSource interface {
	GetToken(ctx context.Context, audience string) (string, error)
}

// LocalPersistence is durable key-value storage for degraded-mode state.
type LocalPersistence interface {
	// Load returns ErrNotFound when the key has never been stored.
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	Close() error
}
