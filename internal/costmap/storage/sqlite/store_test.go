package sqlite

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
)

func openTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleGrid(stamp time.Time) *l3grid.OccupancyGrid {
	return &l3grid.OccupancyGrid{
		Header: l3grid.Header{Stamp: stamp, FrameID: "map"},
		Info: l3grid.MapMetaData{
			Width: 3, Height: 2, Resolution: 0.1,
			Origin: l3grid.Point2{X: -0.15, Y: -0.1},
		},
		Data: []int8{-1, 0, 100, 12, 88, 50},
	}
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Idempotent on an already migrated database.
	require.NoError(t, s.MigrateUp())
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Save(sampleGrid(time.Unix(10, 0)), "save")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	snap, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "save", snap.Reason)
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	g := sampleGrid(time.Unix(1700000000, 123000).UTC())

	id, err := s.Save(g, "manual")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, "manual", snap.Reason)
	assert.Equal(t, "map", snap.FrameID)
	assert.Equal(t, uint32(3), snap.Width)
	assert.Equal(t, uint32(2), snap.Height)
	assert.True(t, g.Header.Stamp.Equal(snap.Stamp))
	assert.InDelta(t, 0.1, snap.Resolution, 1e-6)
	assert.Equal(t, l3grid.Count(g), snap.Counts)
	if diff := cmp.Diff(g, snap.Grid); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_RejectsBadGrid(t *testing.T) {
	s := openTestStore(t)
	g := sampleGrid(time.Unix(1, 0))
	g.Data = g.Data[:2]

	_, err := s.Save(g, "save")
	assert.ErrorIs(t, err, l3grid.ErrGridSize)

	list, err := s.List(0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLatestAndList(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Latest()
	assert.ErrorIs(t, err, ErrNotFound)

	var ids []string
	for i := 0; i < 3; i++ {
		g := sampleGrid(time.Unix(int64(100+i), 0))
		g.Data[0] = int8(i)
		require.NoError(t, s.Export(g))
		list, err := s.List(1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		ids = append(ids, list[0].ID)
	}

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)
	assert.Equal(t, int8(2), latest.Grid.Data[0])
	assert.Equal(t, "save", latest.Reason)

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})
	for _, snap := range all {
		assert.Nil(t, snap.Grid)
	}

	two, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("missing"), ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	id, err := s.Save(sampleGrid(time.Unix(5, 0)), "save")
	require.NoError(t, err)

	require.NoError(t, s.Delete(id))
	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminRoutes(t *testing.T) {
	s := openTestStore(t)
	g := sampleGrid(time.Unix(42, 0))
	id, err := s.Save(g, "save")
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	get := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.RemoteAddr = "127.0.0.1:12345"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	t.Run("list", func(t *testing.T) {
		rec := get("/debug/snapshots")
		require.Equal(t, http.StatusOK, rec.Code)
		var got []Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].ID)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := get("/debug/snapshots?limit=abc")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("pgm", func(t *testing.T) {
		rec := get("/debug/snapshot.pgm?id=" + id)
		require.Equal(t, http.StatusOK, rec.Code)
		want, err := l3grid.EncodePGM(g)
		require.NoError(t, err)
		assert.Equal(t, want, rec.Body.Bytes())
		assert.Equal(t, "image/x-portable-graymap", rec.Header().Get("Content-Type"))
	})

	t.Run("pgm latest", func(t *testing.T) {
		rec := get("/debug/snapshot.pgm")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("pgm missing", func(t *testing.T) {
		rec := get("/debug/snapshot.pgm?id=nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
