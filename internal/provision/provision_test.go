package provision

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/civicstore/internal/remote/remotetest"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func projectsList() types.ListDescriptor {
	return types.ListDescriptor{
		DisplayName: "Projects",
		Columns: []types.ColumnSpec{
			{Name: "Title", Kind: types.ColumnText, Required: true},
			{Name: "Status", Kind: types.ColumnChoice, Choices: []string{"Open", "Closed"}},
		},
	}
}

func TestEnsureListCreatesListAndColumns(t *testing.T) {
	fake := remotetest.New()
	p := New(fake)

	d, err := p.EnsureList(context.Background(), projectsList())
	require.NoError(t, err)
	assert.True(t, d.Resolved())
	assert.Equal(t, 1, fake.ListCount())
	assert.Equal(t, []string{"Title", "Status"}, fake.Columns(d.RemoteID))
}

func TestEnsureListAdoptsExisting(t *testing.T) {
	fake := remotetest.New()
	id := fake.SeedList("Projects", "Title", "Status")
	p := New(fake)

	d, err := p.EnsureList(context.Background(), projectsList())
	require.NoError(t, err)
	assert.Equal(t, id, d.RemoteID)
	assert.Equal(t, 0, fake.Calls(remotetest.OpCreateList))
	assert.Equal(t, 0, fake.Calls(remotetest.OpAddColumn))
}

func TestEnsureListCompletesPartialColumns(t *testing.T) {
	fake := remotetest.New()
	id := fake.SeedList("Projects", "Title")
	p := New(fake)

	_, err := p.EnsureList(context.Background(), projectsList())
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Status"}, fake.Columns(id))
	assert.Equal(t, 1, fake.Calls(remotetest.OpAddColumn))
}

func TestEnsureListIsCachedForSession(t *testing.T) {
	fake := remotetest.New()
	p := New(fake)
	ctx := context.Background()

	first, err := p.EnsureList(ctx, projectsList())
	require.NoError(t, err)
	fake.ResetCalls()

	second, err := p.EnsureList(ctx, projectsList())
	require.NoError(t, err)
	assert.Equal(t, first.RemoteID, second.RemoteID)
	assert.Equal(t, 0, fake.Calls(remotetest.OpFindList))
}

func TestEnsureListConflictReResolves(t *testing.T) {
	fake := remotetest.New()
	// Lookup misses, then a competing caller creates the list before us.
	fake.FailNext(remotetest.OpFindList, types.ErrNotFound)
	winner := fake.SeedList("Projects")
	p := New(fake)

	d, err := p.EnsureList(context.Background(), projectsList())
	require.NoError(t, err)
	assert.Equal(t, winner, d.RemoteID)
	assert.Equal(t, 1, fake.ListCount())
	assert.Equal(t, 1, fake.Calls(remotetest.OpCreateList))
	assert.Equal(t, 2, fake.Calls(remotetest.OpFindList))
}

func TestEnsureListPropagatesOtherErrors(t *testing.T) {
	tests := []struct {
		name string
		op   string
		err  error
	}{
		{"unauthorized on lookup", remotetest.OpFindList, types.ErrUnauthorized},
		{"transient on lookup", remotetest.OpFindList, types.ErrTransient},
		{"transient on create", remotetest.OpCreateList, types.ErrTransient},
		{"unknown on add column", remotetest.OpAddColumn, errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := remotetest.New()
			fake.FailNext(tt.op, tt.err)
			p := New(fake)

			_, err := p.EnsureList(context.Background(), projectsList())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			_, ok := p.Descriptor("Projects")
			assert.False(t, ok, "failed provisioning must not be cached")
		})
	}
}

func TestEnsureListColumnConflictCountsAsPresent(t *testing.T) {
	fake := remotetest.New()
	fake.FailNext(remotetest.OpAddColumn, types.ErrConflict)
	p := New(fake)

	_, err := p.EnsureList(context.Background(), projectsList())
	require.NoError(t, err)
}

func TestEnsureListRejectsInvalidDescriptor(t *testing.T) {
	fake := remotetest.New()
	p := New(fake)
	_, err := p.EnsureList(context.Background(), types.ListDescriptor{})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, 0, fake.Calls(remotetest.OpFindList))
}

func TestEnsureListConcurrentInOneProcess(t *testing.T) {
	fake := remotetest.New()
	p := New(fake)

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := p.EnsureList(context.Background(), projectsList())
			assert.NoError(t, err)
			ids[i] = d.RemoteID
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fake.ListCount())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, fake.Columns(ids[0]), 2)
}

// Two independent provisioners stand in for two browser tabs. Both miss on
// lookup before either creates, so exactly one create wins and the other
// must adopt.
func TestEnsureListConcurrentAcrossSessions(t *testing.T) {
	fake := remotetest.New()
	var arrived sync.WaitGroup
	arrived.Add(2)
	fake.OnCall = func(op string) {
		if op == remotetest.OpCreateList {
			arrived.Done()
			arrived.Wait()
		}
	}
	tabA, tabB := New(fake), New(fake)

	var wg sync.WaitGroup
	results := make([]types.ListDescriptor, 2)
	errs := make([]error, 2)
	for i, p := range []*Provisioner{tabA, tabB} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.EnsureList(context.Background(), projectsList())
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, fake.ListCount())
	assert.Equal(t, 2, fake.Calls(remotetest.OpCreateList))
	assert.Equal(t, results[0].RemoteID, results[1].RemoteID)
	assert.Len(t, fake.Columns(results[0].RemoteID), 2, "no duplicate columns")
}

func TestLookup(t *testing.T) {
	fake := remotetest.New()
	id := fake.SeedList("Invoices")
	p := New(fake)

	d, err := p.Lookup(context.Background(), "Invoices")
	require.NoError(t, err)
	assert.Equal(t, id, d.RemoteID)

	_, err = p.Lookup(context.Background(), "Missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 0, fake.Calls(remotetest.OpCreateList))
}

func TestEnsureFolderPathCreatesMissingPrefixes(t *testing.T) {
	fake := remotetest.New()
	fake.SeedFolder("Public Records")
	p := New(fake)

	path, err := p.EnsureFolderPath(context.Background(), []string{"Public Records", "Clerk", "FY2023-24"})
	require.NoError(t, err)
	assert.Equal(t, "Public Records/Clerk/FY2023-24", path)
	assert.True(t, fake.HasFolder("Public Records/Clerk"))
	assert.True(t, fake.HasFolder("Public Records/Clerk/FY2023-24"))
	assert.Equal(t, 2, fake.Calls(remotetest.OpCreateFolder))
}

func TestEnsureFolderPathReplayIsPureExistenceChecks(t *testing.T) {
	fake := remotetest.New()
	p := New(fake)
	segs := []string{"Public Records", "Clerk", "FY2023-24"}
	ctx := context.Background()

	_, err := p.EnsureFolderPath(ctx, segs)
	require.NoError(t, err)
	fake.ResetCalls()

	_, err = p.EnsureFolderPath(ctx, segs)
	require.NoError(t, err)
	assert.Equal(t, 0, fake.Calls(remotetest.OpCreateFolder))
	assert.Equal(t, len(segs), fake.Calls(remotetest.OpGetFolder))
}

func TestEnsureFolderPathToleratesConcurrentCreate(t *testing.T) {
	fake := remotetest.New()
	fake.FailNext(remotetest.OpCreateFolder, types.ErrConflict)
	p := New(fake)

	_, err := p.EnsureFolderPath(context.Background(), []string{"Root"})
	require.NoError(t, err)
}

func TestEnsureFolderPathErrors(t *testing.T) {
	p := New(remotetest.New())
	_, err := p.EnsureFolderPath(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrEmptyPath)
	_, err = p.EnsureFolderPath(context.Background(), []string{"a", ""})
	assert.ErrorIs(t, err, types.ErrEmptyPath)

	fake := remotetest.New()
	fake.FailNext(remotetest.OpGetFolder, types.ErrUnauthorized)
	_, err = New(fake).EnsureFolderPath(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestEnsureAll(t *testing.T) {
	fake := remotetest.New()
	p := New(fake)
	invoices := types.ListDescriptor{DisplayName: "Invoices"}

	got, err := p.EnsureAll(context.Background(),
		[]types.ListDescriptor{projectsList(), invoices},
		[][]string{{"Public Records"}, {"Public Records", "Clerk"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Projects", got[0].DisplayName)
	assert.Equal(t, "Invoices", got[1].DisplayName)
	assert.True(t, fake.HasFolder("Public Records/Clerk"))
}

// cancellable fails calls whose context is done, after blocking the first
// lookup until release is closed.
type cancellable struct {
	*remotetest.Fake
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (c *cancellable) FindListByName(ctx context.Context, name string) (types.RemoteList, error) {
	c.once.Do(func() {
		close(c.entered)
		<-c.release
	})
	if err := ctx.Err(); err != nil {
		return types.RemoteList{}, err
	}
	return c.Fake.FindListByName(ctx, name)
}

func TestEnsureListOutlivesCancelledStarter(t *testing.T) {
	remote := &cancellable{Fake: remotetest.New(), entered: make(chan struct{}), release: make(chan struct{})}
	p := New(remote)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.EnsureList(ctx, projectsList())
		done <- err
	}()
	<-remote.entered
	cancel()
	close(remote.release)
	require.NoError(t, <-done, "the shared provisioning call is not bound to its starter")

	remote.ResetCalls()
	d, err := p.EnsureList(context.Background(), projectsList())
	require.NoError(t, err)
	assert.True(t, d.Resolved())
	assert.Equal(t, 1, remote.ListCount())
	assert.Zero(t, remote.Calls(remotetest.OpFindList))
}
