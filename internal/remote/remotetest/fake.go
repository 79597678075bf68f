// Package remotetest provides an in-memory RemoteStore for tests, with call
// counting and fault injection.
package remotetest

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Operation names, as counted by Calls.
const (
	OpFindList     = "find_list"
	OpCreateList   = "create_list"
	OpAddColumn    = "add_column"
	OpListItems    = "list_items"
	OpGetItem      = "get_item"
	OpCreateItem   = "create_item"
	OpUpdateItem   = "update_item"
	OpDeleteItem   = "delete_item"
	OpGetFolder    = "get_folder"
	OpCreateFolder = "create_folder"
	OpUploadFile   = "upload_file"
)

type list struct {
	id      string
	name    string
	columns []string
	items   map[string]types.RemoteItem
}

// Fake is a concurrency-safe in-memory RemoteStore.
type Fake struct {
	// OnCall, when set, runs before each operation without the lock held.
	// Tests use it to line up concurrent callers.
	OnCall func(op string)

	mu       sync.Mutex
	lists    map[string]*list
	byName   map[string]string
	folders  map[string]bool
	files    map[string][]byte
	nextList int
	nextItem int
	calls    map[string]int
	faults   map[string][]error
	down     error
}

// New returns an empty store.
func New() *Fake {
	return &Fake{
		lists:   make(map[string]*list),
		byName:  make(map[string]string),
		folders: make(map[string]bool),
		files:   make(map[string][]byte),
		calls:   make(map[string]int),
		faults:  make(map[string][]error),
	}
}

var _ types.RemoteStore = (*Fake)(nil)

// FailNext makes the next call of op return err. Multiple calls queue.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = append(f.faults[op], err)
}

// SetDown makes every call fail with err until SetDown(nil).
func (f *Fake) SetDown(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = err
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// ResetCalls zeroes the call counters.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

// ListCount returns how many lists exist.
func (f *Fake) ListCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists)
}

// Columns returns the column names of a list.
func (f *Fake) Columns(listID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.lists[listID]; ok {
		return append([]string(nil), l.columns...)
	}
	return nil
}

// Items returns every item of a list ordered by id.
func (f *Fake) Items(listID string) []types.RemoteItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[listID]
	if !ok {
		return nil
	}
	return sortedItems(l)
}

// HasFolder reports whether path exists.
func (f *Fake) HasFolder(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.folders[path]
}

// File returns an uploaded file's content.
func (f *Fake) File(path, name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[path+"/"+name]
	return b, ok
}

// FileCount returns how many files were stored.
func (f *Fake) FileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// SeedList creates a list directly, bypassing call counting.
func (f *Fake) SeedList(name string, columns ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.newListLocked(name)
	l.columns = append(l.columns, columns...)
	return l.id
}

// SeedFolder creates a folder directly.
func (f *Fake) SeedFolder(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[path] = true
}

func (f *Fake) newListLocked(name string) *list {
	f.nextList++
	l := &list{
		id:    fmt.Sprintf("list-%d", f.nextList),
		name:  name,
		items: make(map[string]types.RemoteItem),
	}
	f.lists[l.id] = l
	f.byName[strings.ToLower(name)] = l.id
	return l
}

// begin counts the call and returns an injected fault, if any. It is
// called with f.mu held.
func (f *Fake) begin(op string) error {
	f.calls[op]++
	if f.down != nil {
		return fmt.Errorf("%s: %w", op, f.down)
	}
	if q := f.faults[op]; len(q) > 0 {
		f.faults[op] = q[1:]
		return fmt.Errorf("%s: %w", op, q[0])
	}
	return nil
}

func (f *Fake) enter(op string) error {
	if f.OnCall != nil {
		f.OnCall(op)
	}
	f.mu.Lock()
	return f.begin(op)
}

func (f *Fake) FindListByName(_ context.Context, displayName string) (types.RemoteList, error) {
	err := f.enter(OpFindList)
	defer f.mu.Unlock()
	if err != nil {
		return types.RemoteList{}, err
	}
	id, ok := f.byName[strings.ToLower(displayName)]
	if !ok {
		return types.RemoteList{}, fmt.Errorf("list %q: %w", displayName, types.ErrNotFound)
	}
	return f.remoteList(f.lists[id]), nil
}

func (f *Fake) CreateList(_ context.Context, displayName string) (types.RemoteList, error) {
	err := f.enter(OpCreateList)
	defer f.mu.Unlock()
	if err != nil {
		return types.RemoteList{}, err
	}
	if _, ok := f.byName[strings.ToLower(displayName)]; ok {
		return types.RemoteList{}, fmt.Errorf("list %q: %w", displayName, types.ErrConflict)
	}
	return f.remoteList(f.newListLocked(displayName)), nil
}

func (f *Fake) AddColumn(_ context.Context, listID string, column types.ColumnSpec) error {
	err := f.enter(OpAddColumn)
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	l, ok := f.lists[listID]
	if !ok {
		return fmt.Errorf("list %s: %w", listID, types.ErrNotFound)
	}
	for _, c := range l.columns {
		if strings.EqualFold(c, column.Name) {
			return fmt.Errorf("column %q: %w", column.Name, types.ErrConflict)
		}
	}
	l.columns = append(l.columns, column.Name)
	return nil
}

func (f *Fake) ListItems(_ context.Context, listID string, query types.Query) ([]types.RemoteItem, error) {
	err := f.enter(OpListItems)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	l, ok := f.lists[listID]
	if !ok {
		return nil, fmt.Errorf("list %s: %w", listID, types.ErrNotFound)
	}
	var out []types.RemoteItem
	for _, it := range sortedItems(l) {
		if matches(it, query.Filter) {
			out = append(out, it)
		}
	}
	if query.Top > 0 && len(out) > query.Top {
		out = out[:query.Top]
	}
	return out, nil
}

func (f *Fake) GetItem(_ context.Context, listID, itemID string) (types.RemoteItem, error) {
	err := f.enter(OpGetItem)
	defer f.mu.Unlock()
	if err != nil {
		return types.RemoteItem{}, err
	}
	it, err := f.itemLocked(listID, itemID)
	if err != nil {
		return types.RemoteItem{}, err
	}
	return copyItem(it), nil
}

func (f *Fake) CreateItem(_ context.Context, listID string, fields map[string]any) (types.RemoteItem, error) {
	err := f.enter(OpCreateItem)
	defer f.mu.Unlock()
	if err != nil {
		return types.RemoteItem{}, err
	}
	l, ok := f.lists[listID]
	if !ok {
		return types.RemoteItem{}, fmt.Errorf("list %s: %w", listID, types.ErrNotFound)
	}
	f.nextItem++
	id := strconv.Itoa(f.nextItem)
	it := types.RemoteItem{
		ID:     id,
		WebURL: fmt.Sprintf("fake://lists/%s/items/%s", listID, id),
		Fields: maps.Clone(fields),
	}
	if it.Fields == nil {
		it.Fields = map[string]any{}
	}
	l.items[id] = it
	return copyItem(it), nil
}

func (f *Fake) UpdateItemFields(_ context.Context, listID, itemID string, fields map[string]any) (types.RemoteItem, error) {
	err := f.enter(OpUpdateItem)
	defer f.mu.Unlock()
	if err != nil {
		return types.RemoteItem{}, err
	}
	it, err := f.itemLocked(listID, itemID)
	if err != nil {
		return types.RemoteItem{}, err
	}
	maps.Copy(it.Fields, fields)
	f.lists[listID].items[itemID] = it
	return copyItem(it), nil
}

func (f *Fake) DeleteItem(_ context.Context, listID, itemID string) error {
	err := f.enter(OpDeleteItem)
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	if _, err := f.itemLocked(listID, itemID); err != nil {
		return err
	}
	delete(f.lists[listID].items, itemID)
	return nil
}

func (f *Fake) GetFolder(_ context.Context, path string) (types.Folder, error) {
	err := f.enter(OpGetFolder)
	defer f.mu.Unlock()
	if err != nil {
		return types.Folder{}, err
	}
	if !f.folders[path] {
		return types.Folder{}, fmt.Errorf("folder %q: %w", path, types.ErrNotFound)
	}
	return types.Folder{Path: path, WebURL: "fake://drive/" + path}, nil
}

func (f *Fake) CreateFolder(_ context.Context, path string) (types.Folder, error) {
	err := f.enter(OpCreateFolder)
	defer f.mu.Unlock()
	if err != nil {
		return types.Folder{}, err
	}
	if f.folders[path] {
		return types.Folder{}, fmt.Errorf("folder %q: %w", path, types.ErrConflict)
	}
	if i := strings.LastIndex(path, "/"); i > 0 && !f.folders[path[:i]] {
		return types.Folder{}, fmt.Errorf("parent of %q: %w", path, types.ErrNotFound)
	}
	f.folders[path] = true
	return types.Folder{Path: path, WebURL: "fake://drive/" + path}, nil
}

func (f *Fake) UploadFile(_ context.Context, path, filename string, content []byte, overwrite bool) (types.UploadedFile, error) {
	err := f.enter(OpUploadFile)
	defer f.mu.Unlock()
	if err != nil {
		return types.UploadedFile{}, err
	}
	if !f.folders[path] {
		return types.UploadedFile{}, fmt.Errorf("folder %q: %w", path, types.ErrNotFound)
	}
	key := path + "/" + filename
	if _, exists := f.files[key]; exists && !overwrite {
		return types.UploadedFile{}, fmt.Errorf("file %q: %w", key, types.ErrConflict)
	}
	f.files[key] = append([]byte(nil), content...)
	return types.UploadedFile{Path: path, Name: filename, WebURL: "fake://drive/" + key, Size: len(content)}, nil
}

func (f *Fake) itemLocked(listID, itemID string) (types.RemoteItem, error) {
	l, ok := f.lists[listID]
	if !ok {
		return types.RemoteItem{}, fmt.Errorf("list %s: %w", listID, types.ErrNotFound)
	}
	it, ok := l.items[itemID]
	if !ok {
		return types.RemoteItem{}, fmt.Errorf("item %s: %w", itemID, types.ErrNotFound)
	}
	return it, nil
}

func (f *Fake) remoteList(l *list) types.RemoteList {
	return types.RemoteList{
		ID:          l.id,
		DisplayName: l.name,
		WebURL:      "fake://lists/" + l.id,
		Columns:     append([]string(nil), l.columns...),
	}
}

func sortedItems(l *list) []types.RemoteItem {
	out := make([]types.RemoteItem, 0, len(l.items))
	for _, it := range l.items {
		out = append(out, copyItem(it))
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out
}

func copyItem(it types.RemoteItem) types.RemoteItem {
	it.Fields = maps.Clone(it.Fields)
	return it
}

func matches(it types.RemoteItem, filter map[string]string) bool {
	for k, want := range filter {
		v, ok := it.Fields[k]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}
