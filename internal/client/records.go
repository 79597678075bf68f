package client

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/civicstore/internal/cache"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

func toRecord(it types.RemoteItem) types.Record {
	fields := maps.Clone(it.Fields)
	if fields == nil {
		fields = map[string]any{}
	}
	return types.Record{RemoteItemID: it.ID, WebURL: it.WebURL, Fields: fields}
}

// cachedRead serves key from store or runs fetch once for all concurrent
// callers of the same generation of scope. The fetch outlives a caller that
// gives up; its result still lands in the cache unless the list was written
// to meanwhile. A read issued after a write never joins a fetch that
// started before it.
func cachedRead[T any](ctx context.Context, c *Client, store *cache.Cache[T], scope, key string,
	fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := store.Get(key); ok {
		return v, nil
	}

	gen := c.generation(scope)
	ch := c.reads.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if c.generation(scope) == gen {
			store.Set(key, v, 0)
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// ListRecords returns the records of list matching query. A result is
// either a cached snapshot no older than the TTL or a complete fresh fetch.
func (c *Client) ListRecords(ctx context.Context, list string, query types.Query) ([]types.Record, error) {
	d, err := c.resolve(ctx, list)
	if err != nil {
		return nil, err
	}
	recs, err := cachedRead(ctx, c, c.records, d.RemoteID, cache.Key(d.RemoteID, query),
		func(ctx context.Context) ([]types.Record, error) {
			items, err := c.remote.ListItems(ctx, d.RemoteID, query)
			if err != nil {
				return nil, err
			}
			out := make([]types.Record, 0, len(items))
			for _, it := range items {
				out = append(out, toRecord(it))
			}
			return out, nil
		})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", list, err)
	}
	return slices.Clone(recs), nil
}

// GetRecord returns one record, cache-first.
func (c *Client) GetRecord(ctx context.Context, list, itemID string) (types.Record, error) {
	if itemID == "" {
		return types.Record{}, fmt.Errorf("%w: %w", types.ErrValidation, types.ErrInvalidID)
	}
	d, err := c.resolve(ctx, list)
	if err != nil {
		return types.Record{}, err
	}
	rec, err := cachedRead(ctx, c, c.items, d.RemoteID, cache.ItemKey(d.RemoteID, itemID),
		func(ctx context.Context) (types.Record, error) {
			it, err := c.remote.GetItem(ctx, d.RemoteID, itemID)
			if err != nil {
				return types.Record{}, err
			}
			return toRecord(it), nil
		})
	if err != nil {
		return types.Record{}, fmt.Errorf("%s item %s: %w", list, itemID, err)
	}
	rec.Fields = maps.Clone(rec.Fields)
	return rec, nil
}

// prepareFields fills column defaults and rejects missing required values.
// It runs before any remote call.
func prepareFields(d types.ListDescriptor, fields map[string]any) (map[string]any, error) {
	out := maps.Clone(fields)
	if out == nil {
		out = map[string]any{}
	}
	for _, col := range d.Columns {
		v, ok := out[col.Name]
		if (!ok || v == nil) && col.Default != nil {
			out[col.Name] = col.Default
			continue
		}
		if !col.Required {
			continue
		}
		if s, isStr := v.(string); !ok || v == nil || (isStr && strings.TrimSpace(s) == "") {
			return nil, fmt.Errorf("%w: %s is required", types.ErrValidation, col.Name)
		}
	}
	return out, nil
}

// enqueue routes a write that could not reach the remote store to the
// local queue.
func (c *Client) enqueue(ctx context.Context, sub types.QueuedSubmission, cause error) (types.QueuedSubmission, error) {
	sub.LastError = cause.Error()
	queued, err := c.queue.Enqueue(ctx, sub)
	if err != nil {
		return types.QueuedSubmission{}, fmt.Errorf("queueing %s on %q after %v: %w", sub.Op, sub.ListName, cause, err)
	}
	c.logger.Warn("remote store unavailable, write queued",
		zap.String("list", sub.ListName),
		zap.String("op", string(sub.Op)),
		zap.String("queue_id", queued.ID),
		zap.Error(cause))
	return queued, nil
}

// CreateRecord creates an item in list. When the remote store is
// unavailable the write is queued and a pending record is returned.
func (c *Client) CreateRecord(ctx context.Context, list string, fields map[string]any) (types.Record, error) {
	// Declared columns are checked before any remote call, including for a
	// write queued after a failed lookup.
	if decl, ok := c.declared(list); ok {
		var err error
		if fields, err = prepareFields(decl, fields); err != nil {
			return types.Record{}, err
		}
	}
	d, err := c.resolve(ctx, list)
	if types.IsTransient(err) {
		return c.queueWrite(ctx, types.QueuedSubmission{Op: types.OpCreate, ListName: list, Fields: fields}, err)
	}
	if err != nil {
		return types.Record{}, err
	}
	fields, err = prepareFields(d, fields)
	if err != nil {
		return types.Record{}, err
	}

	it, err := c.remote.CreateItem(ctx, d.RemoteID, fields)
	if types.IsTransient(err) {
		return c.queueWrite(ctx, types.QueuedSubmission{Op: types.OpCreate, ListName: list, Fields: fields}, err)
	}
	if err != nil {
		return types.Record{}, fmt.Errorf("create in %q: %w", list, err)
	}
	c.invalidate(d)
	return toRecord(it), nil
}

func (c *Client) queueWrite(ctx context.Context, sub types.QueuedSubmission, cause error) (types.Record, error) {
	queued, err := c.enqueue(ctx, sub, cause)
	if err != nil {
		return types.Record{}, err
	}
	return types.Record{
		RemoteItemID: sub.ItemID,
		Fields:       maps.Clone(sub.Fields),
		Pending:      true,
		QueueID:      queued.ID,
	}, nil
}

// UpdateRecord merges fields into an existing item. A vanished item yields
// ErrNotFound.
func (c *Client) UpdateRecord(ctx context.Context, list, itemID string, fields map[string]any) (types.Record, error) {
	if itemID == "" {
		return types.Record{}, fmt.Errorf("%w: %w", types.ErrValidation, types.ErrInvalidID)
	}
	sub := types.QueuedSubmission{Op: types.OpUpdate, ListName: list, ItemID: itemID, Fields: fields}
	d, err := c.resolve(ctx, list)
	if types.IsTransient(err) {
		return c.queueWrite(ctx, sub, err)
	}
	if err != nil {
		return types.Record{}, err
	}

	it, err := c.remote.UpdateItemFields(ctx, d.RemoteID, itemID, fields)
	if types.IsTransient(err) {
		return c.queueWrite(ctx, sub, err)
	}
	if err != nil {
		return types.Record{}, fmt.Errorf("update %s item %s: %w", list, itemID, err)
	}
	c.invalidate(d)
	return toRecord(it), nil
}

// DeleteRecord removes an item. A queued delete returns nil.
func (c *Client) DeleteRecord(ctx context.Context, list, itemID string) error {
	if itemID == "" {
		return fmt.Errorf("%w: %w", types.ErrValidation, types.ErrInvalidID)
	}
	sub := types.QueuedSubmission{Op: types.OpDelete, ListName: list, ItemID: itemID}
	d, err := c.resolve(ctx, list)
	if types.IsTransient(err) {
		_, err = c.enqueue(ctx, sub, err)
		return err
	}
	if err != nil {
		return err
	}

	err = c.remote.DeleteItem(ctx, d.RemoteID, itemID)
	if types.IsTransient(err) {
		_, err = c.enqueue(ctx, sub, err)
		return err
	}
	if err != nil {
		return fmt.Errorf("delete %s item %s: %w", list, itemID, err)
	}
	c.invalidate(d)
	return nil
}
