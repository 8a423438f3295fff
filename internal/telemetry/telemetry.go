// Package telemetry exposes CRGP's run-time metrics and profiling endpoints,
// standing up a dedicated HTTP listener next to the driver's main loop,
// routed through gorilla/mux rather than a bare net/http.ServeMux.
package telemetry

import (
	"context"
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics holds every counter/gauge the driver updates over a run.
type Metrics struct {
	RetweetsProcessed prometheus.Counter
	RetweetsSkipped   prometheus.Counter
	EdgesEmitted      prometheus.Counter
	CurrentEpoch      prometheus.Gauge
}

// NewMetrics registers a fresh set of collectors against a private registry,
// so repeated test runs in the same process never collide on prometheus's
// default global registry.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		RetweetsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "crgp_retweets_processed_total",
			Help: "Number of retweet/origin-tweet records applied to the dataflow.",
		}),
		RetweetsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "crgp_retweets_skipped_total",
			Help: "Number of tweet-stream lines dropped for failing to parse.",
		}),
		EdgesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crgp_influence_edges_emitted_total",
			Help: "Number of influence edges emitted by the detection operator.",
		}),
		CurrentEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crgp_current_epoch",
			Help: "The epoch (batch index) currently being processed.",
		}),
	}, reg
}

// Server serves /metrics (Prometheus) and /debug/pprof/* on one address.
type Server struct {
	http *http.Server
}

// NewServer builds (but does not start) a telemetry server bound to addr.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	pprofRouter := router.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.HandleFunc("/", pprof.Index)
	pprofRouter.HandleFunc("/cmdline", pprof.Cmdline)
	pprofRouter.HandleFunc("/profile", pprof.Profile)
	pprofRouter.HandleFunc("/symbol", pprof.Symbol)
	pprofRouter.HandleFunc("/trace", pprof.Trace)
	pprofRouter.PathPrefix("/{profile}").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler(mux.Vars(r)["profile"]).ServeHTTP(w, r)
	})

	return &Server{http: &http.Server{Addr: addr, Handler: router}}
}

// Run starts serving until ctx is canceled, logging (not returning) a
// listen failure the way a best-effort sidecar endpoint should - a metrics
// port collision must never take down the run it is instrumenting.
func (s *Server) Run(ctx context.Context, logger *logrus.Entry) {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Warn("telemetry server stopped")
		}
	}()
	<-ctx.Done()
	_ = s.http.Close()
}
