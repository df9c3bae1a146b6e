package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Merge and research requests can run long, so
// only the header read is bounded here; per-request deadlines belong to
// the callers.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
