package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/sipp/internal/apperror"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/model"
	"github.com/sakif/sipp/internal/repository/sqlite"
)

// fakeKV is an in-memory KV. failing makes every call error, standing in
// for a Redis that went away. beforeFill runs at the start of SetIfVersion,
// after the reader has loaded its row.
type fakeKV struct {
	mu       sync.Mutex
	data     map[string]string
	versions map[string]int64
	gets     int
	hits     int
	failing  bool

	beforeFill func()
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string), versions: make(map[string]int64)}
}

var errDown = errors.New("connection refused")

func (f *fakeKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failing {
		return "", false, errDown
	}
	v, ok := f.data[key]
	if ok {
		f.hits++
	}
	return v, ok, nil
}

func (f *fakeKV) Version(_ context.Context, versionKey string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errDown
	}
	return f.versions[versionKey], nil
}

func (f *fakeKV) SetIfVersion(_ context.Context, key, versionKey, value string, version int64, _ time.Duration) (bool, error) {
	if hook := f.beforeFill; hook != nil {
		f.beforeFill = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return false, errDown
	}
	if f.versions[versionKey] != version {
		return false, nil
	}
	f.data[key] = value
	return true, nil
}

func (f *fakeKV) Invalidate(_ context.Context, key, versionKey string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errDown
	}
	f.versions[versionKey]++
	delete(f.data, key)
	return nil
}

func newTestRepo(t *testing.T) (*Repository, *fakeKV, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv := newFakeKV()
	return NewRepository(db, kv, time.Minute, logger.NewNop()), kv, db
}

func TestGetByShortID_MissThenHit(t *testing.T) {
	repo, kv, _ := newTestRepo(t)
	ctx := context.Background()

	created := &model.Snippet{ShortID: "cache00001", Name: "a.txt", Content: "hello", Language: "text"}
	require.NoError(t, repo.Create(ctx, created))

	first, err := repo.GetByShortID(ctx, created.ShortID)
	require.NoError(t, err)
	assert.Equal(t, 0, kv.hits)
	assert.Contains(t, kv.data, Key(created.ShortID))

	second, err := repo.GetByShortID(ctx, created.ShortID)
	require.NoError(t, err)
	assert.Equal(t, 1, kv.hits)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.Language, second.Language)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestGetByShortID_NotFoundIsNotCached(t *testing.T) {
	repo, kv, _ := newTestRepo(t)

	_, err := repo.GetByShortID(context.Background(), "missing000")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.Empty(t, kv.data)
}

func TestUpdate_Invalidates(t *testing.T) {
	repo, kv, _ := newTestRepo(t)
	ctx := context.Background()

	s := &model.Snippet{ShortID: "cache00002", Name: "v", Content: "v1"}
	require.NoError(t, repo.Create(ctx, s))
	_, err := repo.GetByShortID(ctx, s.ShortID)
	require.NoError(t, err)
	require.Contains(t, kv.data, Key(s.ShortID))

	s.Content = "v2"
	require.NoError(t, repo.Update(ctx, s))
	assert.NotContains(t, kv.data, Key(s.ShortID))

	got, err := repo.GetByShortID(ctx, s.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
}

func TestDelete_Invalidates(t *testing.T) {
	repo, kv, _ := newTestRepo(t)
	ctx := context.Background()

	s := &model.Snippet{ShortID: "cache00003", Name: "gone", Content: "soon"}
	require.NoError(t, repo.Create(ctx, s))
	_, err := repo.GetByShortID(ctx, s.ShortID)
	require.NoError(t, err)

	removed, err := repo.Delete(ctx, s.ShortID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NotContains(t, kv.data, Key(s.ShortID))

	_, err = repo.GetByShortID(ctx, s.ShortID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestRedisDown_FallsThrough(t *testing.T) {
	repo, kv, _ := newTestRepo(t)
	ctx := context.Background()
	kv.failing = true

	s := &model.Snippet{ShortID: "cache00004", Name: "n", Content: "c"}
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByShortID(ctx, s.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Content)

	s.Content = "d"
	require.NoError(t, repo.Update(ctx, s))
	removed, err := repo.Delete(ctx, s.ShortID)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestUndecodableEntryIsDropped(t *testing.T) {
	repo, kv, _ := newTestRepo(t)
	ctx := context.Background()

	s := &model.Snippet{ShortID: "cache00005", Name: "n", Content: "c"}
	require.NoError(t, repo.Create(ctx, s))
	kv.data[Key(s.ShortID)] = "{not json"

	got, err := repo.GetByShortID(ctx, s.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Content)
	assert.NotEqual(t, "{not json", kv.data[Key(s.ShortID)])
}

func TestUpdateDuringFill_OldRowNotCached(t *testing.T) {
	repo, kv, _ := newTestRepo(t)
	ctx := context.Background()

	s := &model.Snippet{ShortID: "cache00006", Name: "n", Content: "old"}
	require.NoError(t, repo.Create(ctx, s))

	// The reader has loaded "old" when the update commits.
	kv.beforeFill = func() {
		changed := *s
		changed.Content = "new"
		require.NoError(t, repo.Update(ctx, &changed))
	}

	got, err := repo.GetByShortID(ctx, s.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "old", got.Content)
	assert.NotContains(t, kv.data, Key(s.ShortID))

	got, err = repo.GetByShortID(ctx, s.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)
	assert.Contains(t, kv.data, Key(s.ShortID))

	got, err = repo.GetByShortID(ctx, s.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)
	assert.Equal(t, 1, kv.hits)
}

func TestDeleteDuringFill_RowNotCached(t *testing.T) {
	repo, kv, _ := newTestRepo(t)
	ctx := context.Background()

	s := &model.Snippet{ShortID: "cache00007", Name: "n", Content: "c"}
	require.NoError(t, repo.Create(ctx, s))

	kv.beforeFill = func() {
		removed, err := repo.Delete(ctx, s.ShortID)
		require.NoError(t, err)
		require.True(t, removed)
	}

	_, err := repo.GetByShortID(ctx, s.ShortID)
	require.NoError(t, err)
	assert.NotContains(t, kv.data, Key(s.ShortID))

	_, err = repo.GetByShortID(ctx, s.ShortID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
