package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	r := NewRepo(db)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpenDB_MigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDB(path)
	require.NoError(t, err)
	v, dirty, err := SchemaVersion(db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
	assert.False(t, dirty)
	require.NoError(t, db.Close())
}

func TestSettings_Defaults(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.GetSettings(ctx, "g1")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	s, err := r.Settings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", s.GuildID)
	assert.Empty(t, s.Prefix)
	assert.Equal(t, 50, s.PlaylistLimit)
	assert.Equal(t, 30, s.SecondsWaitAfterEmpty)
	assert.True(t, s.LeaveIfNoListeners)
	assert.False(t, s.AutoAnnounceNext)
	assert.Equal(t, 100, s.DefaultVolume)
	assert.Equal(t, 10, s.DefaultQueuePageSize)
}

func TestSettings_Update(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s, err := r.UpsertSettings(ctx, "g1")
	require.NoError(t, err)

	s.Prefix = "?"
	s.PlaylistLimit = 5
	s.LeaveIfNoListeners = false
	s.AutoAnnounceNext = true
	s.DefaultVolume = 40
	require.NoError(t, r.UpdateSettings(ctx, s))

	got, err := r.Settings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, *s, *got)

	// upserting again must not reset stored values
	again, err := r.UpsertSettings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "?", again.Prefix)

	other, err := r.Settings(ctx, "g2")
	require.NoError(t, err)
	assert.Empty(t, other.Prefix)
}

func TestFavorites(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.AddFavorite(ctx, &Favorite{GuildID: "g1", Author: "u1", Name: " chill ", Query: "lofi beats"}))
	require.NoError(t, r.AddFavorite(ctx, &Favorite{GuildID: "g1", Author: "u2", Name: "anthems", Query: "queen"}))
	require.NoError(t, r.AddFavorite(ctx, &Favorite{GuildID: "g2", Author: "u1", Name: "chill", Query: "jazz"}))

	err := r.AddFavorite(ctx, &Favorite{GuildID: "g1", Author: "u3", Name: "chill", Query: "other"})
	assert.ErrorIs(t, err, ErrFavoriteExists)
	assert.Error(t, r.AddFavorite(ctx, &Favorite{GuildID: "g1", Author: "u3", Name: "empty"}))

	f, err := r.FindFavorite(ctx, "g1", "chill")
	require.NoError(t, err)
	assert.Equal(t, "u1", f.Author)
	assert.Equal(t, "lofi beats", f.Query)

	list, err := r.ListFavorites(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "anthems", list[0].Name)
	assert.Equal(t, "chill", list[1].Name)

	n, err := r.RemoveFavorite(ctx, "g1", "chill")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = r.FindFavorite(ctx, "g1", "chill")
	assert.ErrorIs(t, err, ErrFavoriteNotFound)

	// the other guild's favorite of the same name is untouched
	other, err := r.FindFavorite(ctx, "g2", "chill")
	require.NoError(t, err)
	assert.Equal(t, "jazz", other.Query)

	n, err = r.RemoveFavorite(ctx, "g1", "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}
