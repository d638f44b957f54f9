package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ponohq/pono/pkg/gateway/mw"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Type:      "not_found",
		Message:   "not found",
		RequestID: reqID,
	}})
}
