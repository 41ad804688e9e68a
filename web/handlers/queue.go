package handlers

import "net/http"

// QueueHandler handles GET /api/queue.
type QueueHandler struct {
	queue    QueueSizeGetter
	capacity int
}

// NewQueueHandler creates a queue depth handler. queue may be nil.
func NewQueueHandler(queue QueueSizeGetter, capacity int) *QueueHandler {
	return &QueueHandler{queue: queue, capacity: capacity}
}

// GetQueue handles GET /api/queue — current consolidation queue depth.
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	size := 0
	if h.queue != nil {
		size = h.queue.QueueLen()
	}
	respondJSON(w, http.StatusOK, QueueResponse{
		Size:     size,
		Capacity: h.capacity,
	})
}
