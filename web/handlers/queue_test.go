package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chorus-chat/chorus/web/handlers"
	"github.com/stretchr/testify/assert"
)

func TestGetQueue(t *testing.T) {
	h := handlers.NewQueueHandler(&fakeQueue{size: 3}, 100)

	req := httptest.NewRequest("GET", "/api/queue", nil)
	w := httptest.NewRecorder()

	h.GetQueue(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.QueueResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Size)
	assert.Equal(t, 100, resp.Capacity)
}

func TestGetQueue_WithoutPipeline(t *testing.T) {
	h := handlers.NewQueueHandler(nil, 0)

	req := httptest.NewRequest("GET", "/api/queue", nil)
	w := httptest.NewRecorder()

	h.GetQueue(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.QueueResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Size)
}
