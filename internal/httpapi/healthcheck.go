package httpapi

import (
	"net/http"
)

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	hubOnline func() bool
}

func NewHealthchecker(hubOnline func() bool) healthchecker {
	return &healthcheckerImpl{hubOnline: hubOnline}
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !h.hubOnline() {
		writeError(w, http.StatusServiceUnavailable, "home assistant api is not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, hubOnline func() bool) {
	healthchecker := NewHealthchecker(hubOnline)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
