package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lkarlslund/aigateway/pkg/upstream"
)

// response is the gateway's capability response union: JSON payload, raw
// binary with content headers, or an incremental token stream. Each value is
// built once and consumed exactly once by the transport.
type response interface {
	write(w http.ResponseWriter, r *http.Request)
}

type jsonResponse struct {
	payload any
}

func (j jsonResponse) write(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, j.payload)
}

type binaryResponse struct {
	data        []byte
	contentType string
	filename    string
}

func (b binaryResponse) write(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", b.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", b.filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(b.data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.data)
}

type streamResponse struct {
	stream upstream.TokenStream
}

func (s streamResponse) write(w http.ResponseWriter, r *http.Request) {
	relayTokens(r.Context(), w, s.stream)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
