package sqlite

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
)

// AttachAdminRoutes mounts the snapshot debug pages and a tailsql UI on the
// tsweb debug mux.
func (s *SnapshotStore) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.db, &tailsql.DBOptions{
		Label: "Costmap snapshots",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("snapshots", "List stored grid snapshots (?limit=N)", http.HandlerFunc(s.handleList))
	debug.Handle("snapshot.pgm", "Download a stored snapshot as PGM (?id=, latest when empty)", http.HandlerFunc(s.handlePGM))
	return nil
}

func (s *SnapshotStore) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	snaps, err := s.List(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []Snapshot{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snaps)
}

func (s *SnapshotStore) handlePGM(w http.ResponseWriter, r *http.Request) {
	var (
		snap *Snapshot
		err  error
	)
	if id := r.URL.Query().Get("id"); id != "" {
		snap, err = s.Get(id)
	} else {
		snap, err = s.Latest()
	}
	if errors.Is(err, ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	body, err := l3grid.EncodePGM(snap.Grid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/x-portable-graymap")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pgm", snap.ID))
	w.Write(body)
}
