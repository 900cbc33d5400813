package handlers

import (
	"net/http"
	"os"

	"github.com/ternarybob/arbor"
)

// StaticHandler serves the browser UI for non-API GET requests. The UI is
// an external collaborator: if the configured directory is absent, every
// request here is a 404.
type StaticHandler struct {
	dir    string
	fs     http.Handler
	logger arbor.ILogger
}

// NewStaticHandler creates a handler for the given static directory.
func NewStaticHandler(dir string, logger arbor.ILogger) *StaticHandler {
	h := &StaticHandler{
		dir:    dir,
		logger: logger,
	}
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			h.fs = http.FileServer(http.Dir(dir))
		}
	}
	return h
}

// ServeHTTP handles GET / and GET /*
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	if h.fs == nil {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	h.fs.ServeHTTP(w, r)
}
