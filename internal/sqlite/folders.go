package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/civicstore/pkg/types"
)

func (b *Backend) driveURL(path string) string {
	return b.baseURL + "/drive/" + path
}

// GetFolder returns ErrNotFound unless path was created.
func (b *Backend) GetFolder(ctx context.Context, path string) (types.Folder, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.conn(ctx)
	if err != nil {
		return types.Folder{}, err
	}
	var one int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM folders WHERE path = ?`, path).Scan(&one)
	if err != nil {
		return types.Folder{}, classify(fmt.Sprintf("folder %q", path), err)
	}
	return types.Folder{Path: path, WebURL: b.driveURL(path)}, nil
}

// CreateFolder creates one folder level. The parent must exist.
func (b *Backend) CreateFolder(ctx context.Context, path string) (types.Folder, error) {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return types.Folder{}, fmt.Errorf("folder %q: %w", path, types.ErrValidation)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	db, err := b.conn(ctx)
	if err != nil {
		return types.Folder{}, err
	}

	if i := strings.LastIndex(path, "/"); i > 0 {
		var one int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM folders WHERE path = ?`, path[:i]).Scan(&one)
		if err != nil {
			return types.Folder{}, classify(fmt.Sprintf("parent of %q", path), err)
		}
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO folders (path, created_at) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		path, b.stamp())
	if err != nil {
		return types.Folder{}, classify("create folder", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.Folder{}, fmt.Errorf("folder %q: %w", path, types.ErrConflict)
	}
	return types.Folder{Path: path, WebURL: b.driveURL(path)}, nil
}

// UploadFile stores content as path/filename.
func (b *Backend) UploadFile(ctx context.Context, path, filename string, content []byte, overwrite bool) (types.UploadedFile, error) {
	if filename == "" || strings.Contains(filename, "/") {
		return types.UploadedFile{}, fmt.Errorf("file name %q: %w", filename, types.ErrValidation)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	db, err := b.conn(ctx)
	if err != nil {
		return types.UploadedFile{}, err
	}

	var one int
	if err := db.QueryRowContext(ctx, `SELECT 1 FROM folders WHERE path = ?`, path).Scan(&one); err != nil {
		return types.UploadedFile{}, classify(fmt.Sprintf("folder %q", path), err)
	}

	stmt := `INSERT INTO files (path, name, content, size, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path, name) DO NOTHING`
	if overwrite {
		stmt = `INSERT INTO files (path, name, content, size, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path, name) DO UPDATE SET content = excluded.content,
			size = excluded.size, updated_at = excluded.updated_at`
	}
	if content == nil {
		content = []byte{}
	}
	res, err := db.ExecContext(ctx, stmt, path, filename, content, len(content), b.stamp())
	if err != nil {
		return types.UploadedFile{}, classify("upload file", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.UploadedFile{}, fmt.Errorf("file %q: %w", path+"/"+filename, types.ErrConflict)
	}
	return types.UploadedFile{
		Path:   path,
		Name:   filename,
		WebURL: b.driveURL(path + "/" + filename),
		Size:   len(content),
	}, nil
}

// ReadFile returns the stored content of path/filename.
func (b *Backend) ReadFile(ctx context.Context, path, filename string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.conn(ctx)
	if err != nil {
		return nil, err
	}
	var content []byte
	err = db.QueryRowContext(ctx,
		`SELECT content FROM files WHERE path = ? AND name = ?`, path, filename).Scan(&content)
	if err != nil {
		return nil, classify(fmt.Sprintf("file %q", path+"/"+filename), err)
	}
	return content, nil
}
