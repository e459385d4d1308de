package l3grid

import (
	"bytes"
	"fmt"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/banshee-data/costmap/internal/fsutil"
	"github.com/banshee-data/costmap/internal/monitoring"
)

// MapExporter persists grids as a PGM raster at Path, optionally with a
// map_server YAML sidecar next to it. Each Export overwrites both files.
type MapExporter struct {
	FS        fsutil.FileSystem
	Path      string
	WriteYAML bool
}

// NewMapExporter returns an exporter writing to path on the OS filesystem.
func NewMapExporter(path string, writeYAML bool) *MapExporter {
	return &MapExporter{FS: fsutil.OSFileSystem{}, Path: path, WriteYAML: writeYAML}
}

// Export writes g to the configured destination.
func (e *MapExporter) Export(g *OccupancyGrid) error {
	if err := e.writeRaster(g); err != nil {
		return err
	}
	monitoring.Logf("Saved map occupancy data to %s", e.Path)

	if !e.WriteYAML {
		return nil
	}
	doc, err := MarshalMapYAML(g, filepath.Base(e.Path))
	if err != nil {
		return fmt.Errorf("failed to encode map metadata: %w", err)
	}
	yamlPath := SidecarPath(e.Path)
	if err := e.FS.WriteFile(yamlPath, doc, 0644); err != nil {
		return fmt.Errorf("couldn't save map metadata %s: %w", yamlPath, err)
	}
	return nil
}

func (e *MapExporter) writeRaster(g *OccupancyGrid) (err error) {
	if dir := filepath.Dir(e.Path); dir != "." {
		if err := e.FS.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("couldn't create map directory %s: %w", dir, err)
		}
	}
	f, err := e.FS.Create(e.Path)
	if err != nil {
		return fmt.Errorf("couldn't save map file %s: %w", e.Path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", e.Path, cerr))
		}
	}()

	if werr := WritePGM(f, g); werr != nil {
		return fmt.Errorf("failed to write map data to %s: %w", e.Path, werr)
	}
	return nil
}

// EncodePGM renders g to an in-memory PGM.
func EncodePGM(g *OccupancyGrid) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 + g.CellCount())
	if err := WritePGM(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
