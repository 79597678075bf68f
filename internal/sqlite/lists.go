package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/civicstore/pkg/types"
)

func (b *Backend) listWebURL(id string) string {
	return b.baseURL + "/lists/" + id
}

// FindListByName looks a list up by display name, ignoring case.
func (b *Backend) FindListByName(ctx context.Context, displayName string) (types.RemoteList, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.conn(ctx)
	if err != nil {
		return types.RemoteList{}, err
	}

	var rl types.RemoteList
	err = db.QueryRowContext(ctx,
		`SELECT list_id, display_name FROM lists WHERE display_name = ?`, displayName,
	).Scan(&rl.ID, &rl.DisplayName)
	if err != nil {
		return types.RemoteList{}, classify(fmt.Sprintf("list %q", displayName), err)
	}
	rl.WebURL = b.listWebURL(rl.ID)
	if rl.Columns, err = columnNames(ctx, db, rl.ID); err != nil {
		return types.RemoteList{}, err
	}
	return rl, nil
}

// CreateList creates an empty list. An existing list with the same name,
// in any case, yields ErrConflict.
func (b *Backend) CreateList(ctx context.Context, displayName string) (types.RemoteList, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	db, err := b.conn(ctx)
	if err != nil {
		return types.RemoteList{}, err
	}

	id := newListID()
	res, err := db.ExecContext(ctx,
		`INSERT INTO lists (list_id, display_name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		id, displayName, b.stamp())
	if err != nil {
		return types.RemoteList{}, classify("create list", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.RemoteList{}, fmt.Errorf("list %q: %w", displayName, types.ErrConflict)
	}
	return types.RemoteList{ID: id, DisplayName: displayName, WebURL: b.listWebURL(id)}, nil
}

// AddColumn appends a column definition to a list.
func (b *Backend) AddColumn(ctx context.Context, listID string, column types.ColumnSpec) error {
	if err := column.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	db, err := b.conn(ctx)
	if err != nil {
		return err
	}
	if err := listExists(ctx, db, listID); err != nil {
		return err
	}

	choices, err := json.Marshal(column.Choices)
	if err != nil {
		return fmt.Errorf("encode choices: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO columns (list_id, name, kind, required, choices, ordinal)
		 VALUES (?, ?, ?, ?, ?, (SELECT COUNT(*) FROM columns WHERE list_id = ?))
		 ON CONFLICT DO NOTHING`,
		listID, column.Name, string(column.Kind), column.Required, string(choices), listID)
	if err != nil {
		return classify("add column", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("column %q: %w", column.Name, types.ErrConflict)
	}
	return nil
}

func listExists(ctx context.Context, db *sql.DB, listID string) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM lists WHERE list_id = ?`, listID).Scan(&one)
	return classify("list "+listID, err)
}

func columnNames(ctx context.Context, db *sql.DB, listID string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM columns WHERE list_id = ? ORDER BY ordinal`, listID)
	if err != nil {
		return nil, classify("list columns", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, classify("scan column", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
