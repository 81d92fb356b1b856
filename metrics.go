package otherwise

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsSubsystem = "otherwise"

type metrics struct {
	mediaRequests   *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	contactMessages *prometheus.CounterVec
	logins          *prometheus.CounterVec
}

// newMetrics registers the site's counters on reg. Each App owns its own
// registry so several apps (tests) can coexist in one process.
func newMetrics(reg *prometheus.Registry) *metrics {
	m := &metrics{
		mediaRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "media_requests_total",
			Help:      "Media proxy requests by access outcome.",
		}, []string{"access"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "image_uploads_total",
			Help:      "Image uploads by result.",
		}, []string{"result"}),
		contactMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "contact_messages_total",
			Help:      "Contact form submissions by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "logins_total",
			Help:      "Sign-in attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.mediaRequests,
		m.uploads,
		m.contactMessages,
		m.logins,
	)
	return m
}

func (a *App) metricsMiddleware() echo.MiddlewareFunc {
	return echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  metricsSubsystem,
		Registerer: a.registry,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	})
}

func (a *App) metricsHandler() echo.HandlerFunc {
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: a.registry,
	})
}
