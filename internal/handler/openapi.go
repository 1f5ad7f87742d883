package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/watchdeck/watchdeck/internal/openapi"
)

// OpenAPIHandler serves the generated OpenAPI document. The route surface is
// static, so the document is generated and marshaled once on first request.
type OpenAPIHandler struct {
	once sync.Once
	body []byte
	err  error
}

// NewOpenAPIHandler creates an OpenAPIHandler.
func NewOpenAPIHandler() *OpenAPIHandler {
	return &OpenAPIHandler{}
}

// Serve responds with the OpenAPI 3.1 document as JSON.
func (h *OpenAPIHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		doc := openapi.Generate("/")
		h.body, h.err = json.Marshal(doc)
	})
	if h.err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.body)
}
