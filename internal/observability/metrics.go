package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FixesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_fixes_received_total",
		Help: "Total de fixes GPS recibidos por el sampling loop",
	})
	FixesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_fixes_skipped_total",
		Help: "Fixes descartados por inválidos (sin señal o coords en cero)",
	})
	ReportsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_reports_sent_total",
		Help: "Reportes de telemetría confirmados por el backend",
	})
	ReportsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_reports_failed_total",
		Help: "Reportes de telemetría fallidos (transporte o status no-2xx)",
	})
	AccelSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_accel_samples_total",
		Help: "Muestras de acelerómetro recibidas",
	})
	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_nmea_parse_errors_total",
		Help: "Sentencias NMEA descartadas por checksum o formato",
	})
	IdentityFallback = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_identity_fallback_total",
		Help: "Generaciones de device id que cayeron al identificador secundario",
	})
	Satellites = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_gps_satellites",
		Help: "Satélites en uso según la última sentencia GGA",
	})
	ReportLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_report_latency_seconds",
		Help:    "Latencia del envío de cada reporte al backend",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveReportLatency(start time.Time) {
	ReportLatency.Observe(time.Since(start).Seconds())
}

// Register cuelga /metrics y /healthz en el mux del agente.
func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	})
}
