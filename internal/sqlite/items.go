package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/civicstore/pkg/types"
)

func (b *Backend) itemWebURL(listID string, id int64) string {
	return fmt.Sprintf("%s/lists/%s/items/%d", b.baseURL, listID, id)
}

type itemRow struct {
	id      int64
	fields  string
	created string
}

func (b *Backend) toRemoteItem(listID string, r itemRow) (types.RemoteItem, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(r.fields), &fields); err != nil {
		return types.RemoteItem{}, fmt.Errorf("decode item %d: %w", r.id, err)
	}
	created, _ := time.Parse(time.RFC3339Nano, r.created)
	return types.RemoteItem{
		ID:      strconv.FormatInt(r.id, 10),
		WebURL:  b.itemWebURL(listID, r.id),
		Fields:  fields,
		Created: created,
	}, nil
}

// parseItemID rejects ids this backend could never have issued.
func parseItemID(itemID string) (int64, error) {
	id, err := strconv.ParseInt(itemID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("item %q: %w", itemID, types.ErrNotFound)
	}
	return id, nil
}

// checkFields rejects field names the list has no column for.
func checkFields(ctx context.Context, db *sql.DB, listID string, fields map[string]any) error {
	names, err := columnNames(ctx, db, listID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[strings.ToLower(n)] = true
	}
	for k := range fields {
		if !known[strings.ToLower(k)] {
			return fmt.Errorf("unknown column %q: %w", k, types.ErrValidation)
		}
	}
	return nil
}

// ListItems returns the items of a list in creation order, filtered by
// field equality, sorted by query.OrderBy ("Field" or "Field desc") and
// truncated to query.Top.
func (b *Backend) ListItems(ctx context.Context, listID string, query types.Query) ([]types.RemoteItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := listExists(ctx, db, listID); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT item_id, fields, created_at FROM items WHERE list_id = ? ORDER BY item_id`, listID)
	if err != nil {
		return nil, classify("list items", err)
	}
	defer rows.Close()

	var out []types.RemoteItem
	for rows.Next() {
		var r itemRow
		if err := rows.Scan(&r.id, &r.fields, &r.created); err != nil {
			return nil, classify("scan item", err)
		}
		it, err := b.toRemoteItem(listID, r)
		if err != nil {
			return nil, err
		}
		if matchesFilter(it.Fields, query.Filter) {
			out = append(out, it)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list items", err)
	}

	orderItems(out, query.OrderBy)
	if query.Top > 0 && len(out) > query.Top {
		out = out[:query.Top]
	}
	return out, nil
}

func matchesFilter(fields map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		v, ok := fields[k]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

func orderItems(items []types.RemoteItem, orderBy string) {
	field, dir, _ := strings.Cut(strings.TrimSpace(orderBy), " ")
	if field == "" {
		return
	}
	desc := strings.EqualFold(strings.TrimSpace(dir), "desc")
	sort.SliceStable(items, func(i, j int) bool {
		a, b := fmt.Sprint(items[i].Fields[field]), fmt.Sprint(items[j].Fields[field])
		if desc {
			return a > b
		}
		return a < b
	})
}

// GetItem returns one item.
func (b *Backend) GetItem(ctx context.Context, listID, itemID string) (types.RemoteItem, error) {
	id, err := parseItemID(itemID)
	if err != nil {
		return types.RemoteItem{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.conn(ctx)
	if err != nil {
		return types.RemoteItem{}, err
	}
	return b.getItem(ctx, db, listID, id)
}

func (b *Backend) getItem(ctx context.Context, db *sql.DB, listID string, id int64) (types.RemoteItem, error) {
	r := itemRow{id: id}
	err := db.QueryRowContext(ctx,
		`SELECT fields, created_at FROM items WHERE list_id = ? AND item_id = ?`, listID, id,
	).Scan(&r.fields, &r.created)
	if err != nil {
		return types.RemoteItem{}, classify(fmt.Sprintf("item %d", id), err)
	}
	return b.toRemoteItem(listID, r)
}

// CreateItem inserts an item; the store assigns a numeric id.
func (b *Backend) CreateItem(ctx context.Context, listID string, fields map[string]any) (types.RemoteItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	db, err := b.conn(ctx)
	if err != nil {
		return types.RemoteItem{}, err
	}
	if err := listExists(ctx, db, listID); err != nil {
		return types.RemoteItem{}, err
	}
	if err := checkFields(ctx, db, listID, fields); err != nil {
		return types.RemoteItem{}, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return types.RemoteItem{}, fmt.Errorf("encode fields: %w: %w", types.ErrValidation, err)
	}

	now := b.stamp()
	res, err := db.ExecContext(ctx,
		`INSERT INTO items (list_id, fields, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		listID, string(raw), now, now)
	if err != nil {
		return types.RemoteItem{}, classify("create item", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.RemoteItem{}, classify("create item", err)
	}
	return b.toRemoteItem(listID, itemRow{id: id, fields: string(raw), created: now})
}

// UpdateItemFields merges fields into the stored item.
func (b *Backend) UpdateItemFields(ctx context.Context, listID, itemID string, fields map[string]any) (types.RemoteItem, error) {
	id, err := parseItemID(itemID)
	if err != nil {
		return types.RemoteItem{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	db, err := b.conn(ctx)
	if err != nil {
		return types.RemoteItem{}, err
	}
	if err := checkFields(ctx, db, listID, fields); err != nil {
		return types.RemoteItem{}, err
	}
	current, err := b.getItem(ctx, db, listID, id)
	if err != nil {
		return types.RemoteItem{}, err
	}

	merged := maps.Clone(current.Fields)
	maps.Copy(merged, fields)
	raw, err := json.Marshal(merged)
	if err != nil {
		return types.RemoteItem{}, fmt.Errorf("encode fields: %w: %w", types.ErrValidation, err)
	}
	if _, err := db.ExecContext(ctx,
		`UPDATE items SET fields = ?, updated_at = ? WHERE list_id = ? AND item_id = ?`,
		string(raw), b.stamp(), listID, id); err != nil {
		return types.RemoteItem{}, classify("update item", err)
	}
	current.Fields = merged
	return current, nil
}

// DeleteItem removes an item. Missing items yield ErrNotFound.
func (b *Backend) DeleteItem(ctx context.Context, listID, itemID string) error {
	id, err := parseItemID(itemID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	db, err := b.conn(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`DELETE FROM items WHERE list_id = ? AND item_id = ?`, listID, id)
	if err != nil {
		return classify("delete item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, types.ErrNotFound)
	}
	return nil
}
