package cli

import (
	"net/http"

	httpAdapter "github.com/branchline/branchline/pkg/adapters/http"
	"github.com/branchline/branchline/pkg/metrics"
	"github.com/branchline/branchline/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the HTTP surface of a runtime.
type Service struct {
	Handler http.Handler
	Manager *session.Manager
	Streams *httpAdapter.StreamManager
}

// NewService wires a session manager, the event streams and, when enabled, the
// Prometheus registry behind a single handler.
func NewService(rt *Runtime, version string) (*Service, error) {
	streams := httpAdapter.NewStreamManager(rt.Logger)
	opts := []session.ManagerOption{session.WithObserver(streams.Observer())}
	handlerOpts := []httpAdapter.Option{
		httpAdapter.WithLogger(rt.Logger),
		httpAdapter.WithVersion(version),
	}

	var mgr *session.Manager
	if rt.Config.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector, err := metrics.NewCollector(reg, metrics.WithActiveSessions(func() int {
			if mgr == nil {
				return 0
			}
			return mgr.Active()
		}))
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithSessionOptions(session.WithLifecycleHooks(collector.Hooks())))
		handlerOpts = append(handlerOpts, httpAdapter.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	mgr = rt.NewManager(opts...)
	return &Service{
		Handler: httpAdapter.NewHandler(mgr, streams, handlerOpts...),
		Manager: mgr,
		Streams: streams,
	}, nil
}
