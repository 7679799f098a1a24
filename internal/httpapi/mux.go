package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux builds the ops endpoint: liveness plus prometheus metrics.
func NewMux(hubOnline func() bool) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, hubOnline)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func NewServer(addr string, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: requestLogger(mux),
	}
}
