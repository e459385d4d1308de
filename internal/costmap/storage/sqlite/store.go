// Package sqlite keeps a history of saved global grids in a SQLite database.
package sqlite

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
	"github.com/banshee-data/costmap/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no snapshot matches a lookup.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one stored grid. Grid is nil in List results.
type Snapshot struct {
	ID         string                `json:"id"`
	Stamp      time.Time             `json:"stamp"`
	FrameID    string                `json:"frame_id"`
	Width      uint32                `json:"width"`
	Height     uint32                `json:"height"`
	Resolution float32               `json:"resolution"`
	OriginX    float32               `json:"origin_x"`
	OriginY    float32               `json:"origin_y"`
	Reason     string                `json:"reason"`
	Counts     l3grid.CellCounts     `json:"counts"`
	Grid       *l3grid.OccupancyGrid `json:"-"`
}

// SnapshotStore records grids passed to Export or Save.
type SnapshotStore struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the migrate driver and tailsql share this handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	s := &SnapshotStore{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("opened snapshot database %s", path)
	return s, nil
}

// DB exposes the underlying handle for admin tooling.
func (s *SnapshotStore) DB() *sql.DB { return s.db }

// Path returns the database path passed to Open.
func (s *SnapshotStore) Path() string { return s.path }

// Close closes the database.
func (s *SnapshotStore) Close() error { return s.db.Close() }

// MigrateUp runs all pending migrations. It is a no-op when the schema is
// current.
func (s *SnapshotStore) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close s.db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version, or 0 when none is.
func (s *SnapshotStore) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *SnapshotStore) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Export implements pipeline.Exporter.
func (s *SnapshotStore) Export(g *l3grid.OccupancyGrid) error {
	_, err := s.Save(g, "save")
	return err
}

// Save stores g and returns the new snapshot ID.
func (s *SnapshotStore) Save(g *l3grid.OccupancyGrid, reason string) (string, error) {
	if len(g.Data) != g.CellCount() {
		return "", l3grid.ErrGridSize
	}
	blob, err := compress(g.MarshalProto())
	if err != nil {
		return "", fmt.Errorf("failed to compress grid: %w", err)
	}
	counts := l3grid.Count(g)
	id := uuid.NewString()

	_, err = s.db.Exec(`
		INSERT INTO grid_snapshots (
			snapshot_id, stamp_ns, frame_id, width, height, resolution,
			origin_x, origin_y, reason, free_cells, occupied_cells, unknown_cells, grid_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, g.Header.Stamp.UnixNano(), g.Header.FrameID, g.Info.Width, g.Info.Height,
		float64(g.Info.Resolution), float64(g.Info.Origin.X), float64(g.Info.Origin.Y),
		reason, counts.Free, counts.Occupied, counts.Unknown, blob,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert grid snapshot: %w", err)
	}
	monitoring.Logf("recorded grid snapshot %s (%dx%d, %s)", id, g.Info.Width, g.Info.Height, reason)
	return id, nil
}

const snapshotColumns = `snapshot_id, stamp_ns, frame_id, width, height, resolution,
	origin_x, origin_y, reason, free_cells, occupied_cells, unknown_cells`

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner, blob *[]byte) (*Snapshot, error) {
	var (
		snap        Snapshot
		stampNs     int64
		res, ox, oy float64
	)
	dest := []any{
		&snap.ID, &stampNs, &snap.FrameID, &snap.Width, &snap.Height, &res,
		&ox, &oy, &snap.Reason, &snap.Counts.Free, &snap.Counts.Occupied, &snap.Counts.Unknown,
	}
	if blob != nil {
		dest = append(dest, blob)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	snap.Stamp = time.Unix(0, stampNs).UTC()
	snap.Resolution = float32(res)
	snap.OriginX = float32(ox)
	snap.OriginY = float32(oy)
	snap.Counts.Total = int(snap.Width) * int(snap.Height)
	snap.Counts.Mixed = snap.Counts.Total - snap.Counts.Free - snap.Counts.Occupied - snap.Counts.Unknown
	return &snap, nil
}

func (s *SnapshotStore) queryOne(query string, args ...any) (*Snapshot, error) {
	var blob []byte
	snap, err := scanSnapshot(s.db.QueryRow(query, args...), &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read grid snapshot: %w", err)
	}
	raw, err := decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	if snap.Grid, err = l3grid.UnmarshalProto(raw); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	return snap, nil
}

// Get returns the snapshot with the given ID, grid included.
func (s *SnapshotStore) Get(id string) (*Snapshot, error) {
	return s.queryOne(`SELECT `+snapshotColumns+`, grid_blob FROM grid_snapshots WHERE snapshot_id = ?`, id)
}

// Latest returns the most recently stored snapshot, grid included.
func (s *SnapshotStore) Latest() (*Snapshot, error) {
	return s.queryOne(`SELECT ` + snapshotColumns + `, grid_blob FROM grid_snapshots ORDER BY rowid DESC LIMIT 1`)
}

// List returns up to limit snapshots, newest first, without grids. A limit
// of zero or less returns all of them.
func (s *SnapshotStore) List(limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+snapshotColumns+` FROM grid_snapshots ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list grid snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grid snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// Delete removes a snapshot.
func (s *SnapshotStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM grid_snapshots WHERE snapshot_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete grid snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
