package handlers

import (
	"context"
	"net/http"
)

// Sweeper runs one short-term retention sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// DirImporter imports every persona document under a directory.
type DirImporter interface {
	ImportDir(ctx context.Context, dir string) (int, int, error)
}

// MaintenanceHandler handles manual maintenance triggers: retention sweeps
// and persona re-imports.
type MaintenanceHandler struct {
	sweeper     Sweeper
	importer    DirImporter
	personasDir string
}

// NewMaintenanceHandler creates a maintenance handler. Either collaborator
// may be nil; the matching endpoint then answers 503.
func NewMaintenanceHandler(sweeper Sweeper, importer DirImporter, personasDir string) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper:     sweeper,
		importer:    importer,
		personasDir: personasDir,
	}
}

// RunRetentionSweep handles POST /api/maintenance/retention-sweep.
func (h *MaintenanceHandler) RunRetentionSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		respondError(w, http.StatusServiceUnavailable, "retention manager not running", nil)
		return
	}
	expired, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "sweep failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"expired": expired})
}

// RunPersonaImport handles POST /api/maintenance/personas-import.
func (h *MaintenanceHandler) RunPersonaImport(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil || h.personasDir == "" {
		respondError(w, http.StatusServiceUnavailable, "persona importer not configured", nil)
		return
	}
	files, chunks, err := h.importer.ImportDir(r.Context(), h.personasDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persona import failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"files":  files,
		"chunks": chunks,
	})
}
