package common

import (
	"net/http"

	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsMux returns a mux serving Prometheus metrics on /metrics and the
// statsviz runtime dashboard on /debug/statsviz.
func NewMetricsMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := statsviz.Register(mux); err != nil {
		return nil, err
	}
	return mux, nil
}
