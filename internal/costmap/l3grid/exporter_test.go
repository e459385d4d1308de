package l3grid

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/costmap/internal/fsutil"
)

func testGrid() *OccupancyGrid {
	return &OccupancyGrid{
		Header: Header{FrameID: "map"},
		Info:   MapMetaData{Width: 2, Height: 2, Resolution: 0.05, Origin: Point2{X: -1, Y: -2}},
		Data:   []int8{-1, 100, 10, 50},
	}
}

func TestMapExporter_Export(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	e := &MapExporter{FS: mfs, Path: "maps/map.pgm"}

	require.NoError(t, e.Export(testGrid()))

	data, err := mfs.ReadFile("maps/map.pgm")
	require.NoError(t, err)
	want, err := EncodePGM(testGrid())
	require.NoError(t, err)
	assert.Equal(t, want, data)
	assert.Zero(t, mfs.OpenWriters)
	assert.False(t, mfs.Exists("maps/map.yaml"))
}

func TestMapExporter_Overwrites(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	e := &MapExporter{FS: mfs, Path: "map.pgm"}

	big := &OccupancyGrid{Info: MapMetaData{Width: 4, Height: 4}, Data: make([]int8, 16)}
	require.NoError(t, e.Export(big))
	require.NoError(t, e.Export(testGrid()))

	data, err := mfs.ReadFile("map.pgm")
	require.NoError(t, err)
	want, _ := EncodePGM(testGrid())
	assert.Equal(t, want, data)
}

func TestMapExporter_OpenFailure(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.FailCreate("map.pgm", fs.ErrPermission)
	e := &MapExporter{FS: mfs, Path: "map.pgm", WriteYAML: true}

	err := e.Export(testGrid())

	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.False(t, mfs.Exists("map.pgm"))
	assert.False(t, mfs.Exists("map.yaml"))
	assert.Zero(t, mfs.OpenWriters)
}

func TestMapExporter_PartialWriteCloses(t *testing.T) {
	errDisk := errors.New("no space left on device")
	mfs := fsutil.NewMemoryFileSystem()
	mfs.FailWriteAfter("map.pgm", 10, errDisk)
	e := &MapExporter{FS: mfs, Path: "map.pgm", WriteYAML: true}

	err := e.Export(testGrid())

	require.Error(t, err)
	assert.ErrorIs(t, err, errDisk)
	assert.Zero(t, mfs.OpenWriters, "destination must be closed")
	data, rerr := mfs.ReadFile("map.pgm")
	require.NoError(t, rerr)
	assert.Len(t, data, 10)
	assert.False(t, mfs.Exists("map.yaml"))
}

func TestMapExporter_WriteYAML(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	e := &MapExporter{FS: mfs, Path: "out/site.pgm", WriteYAML: true}

	require.NoError(t, e.Export(testGrid()))

	raw, err := mfs.ReadFile("out/site.yaml")
	require.NoError(t, err)
	m, err := ParseMapYAML(raw)
	require.NoError(t, err)
	assert.Equal(t, MapYAML{
		Image:          "site.pgm",
		Mode:           "trinary",
		Resolution:     0.05,
		Origin:         []float32{-1, -2, 0},
		OccupiedThresh: 0.65,
		FreeThresh:     0.25,
	}, m)
}

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, "/tmp/map.yaml", SidecarPath("/tmp/map.pgm"))
	assert.Equal(t, "map.yaml", SidecarPath("map"))
}

func TestMapExporter_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maps", "site", "map.pgm")
	e := NewMapExporter(path, true)

	require.NoError(t, e.Export(testGrid()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := EncodePGM(testGrid())
	require.NoError(t, err)
	assert.Equal(t, want, data)
	assert.FileExists(t, SidecarPath(path))
}
