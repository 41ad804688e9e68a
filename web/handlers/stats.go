package handlers

import (
	"context"
	"net/http"

	"github.com/chorus-chat/chorus/pkg/types"
)

// QueueSizeGetter reports the consolidation queue depth.
type QueueSizeGetter interface {
	QueueLen() int
}

// EntityLister lists configured entities.
type EntityLister interface {
	List(ctx context.Context) ([]*types.AIEntity, error)
}

// PipelineInfo carries the static pipeline shape for the stats surface.
type PipelineInfo struct {
	QueueCapacity int
	Workers       int
}

// StatsHandler handles GET /api/stats.
type StatsHandler struct {
	entities EntityLister
	queue    QueueSizeGetter
	info     PipelineInfo
}

// NewStatsHandler creates a stats handler. queue may be nil when the
// pipeline is not running in this process.
func NewStatsHandler(entities EntityLister, queue QueueSizeGetter, info PipelineInfo) *StatsHandler {
	return &StatsHandler{
		entities: entities,
		queue:    queue,
		info:     info,
	}
}

// GetStats handles GET /api/stats — entity and pipeline counters.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	entities, err := h.entities.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count entities", err)
		return
	}
	active := 0
	for _, e := range entities {
		if e.IsActive {
			active++
		}
	}

	queueSize := 0
	if h.queue != nil {
		queueSize = h.queue.QueueLen()
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		Entities:       len(entities),
		ActiveEntities: active,
		QueueSize:      queueSize,
		QueueCapacity:  h.info.QueueCapacity,
		Workers:        h.info.Workers,
	})
}
