package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter publishes an Aggregator's per-stream totals as Prometheus
// gauges/counters under the controller's /metrics endpoint. One Exporter
// per Aggregator; Collect should be called once per Tick so the exposed
// values never lag more than a second behind the aggregator's state.
type Exporter struct {
	agg *Aggregator

	currIns   *prometheus.GaugeVec
	currOuts  *prometheus.GaugeVec
	currViews *prometheus.GaugeVec
	upBytes   *prometheus.GaugeVec
	downBytes *prometheus.GaugeVec
}

// NewExporter registers this Aggregator's metrics against reg and returns
// the Exporter. Pass prometheus.DefaultRegisterer for the process-global
// registry.
func NewExporter(agg *Aggregator, reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)
	return &Exporter{
		agg: agg,
		currIns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mist_stream_current_inputs",
			Help: "Number of sessions currently classified as input for this stream.",
		}, []string{"stream"}),
		currOuts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mist_stream_current_outputs",
			Help: "Number of sessions currently classified as output for this stream.",
		}, []string{"stream"}),
		currViews: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mist_stream_current_viewers",
			Help: "Number of sessions currently classified as viewer for this stream.",
		}, []string{"stream"}),
		upBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mist_stream_up_bytes_total",
			Help: "Cumulative bytes sent for this stream.",
		}, []string{"stream"}),
		downBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mist_stream_down_bytes_total",
			Help: "Cumulative bytes received for this stream.",
		}, []string{"stream"}),
	}
}

// Collect refreshes every gauge from the Aggregator's current snapshot.
// Cheap enough to call every Tick: it walks only the per-stream totals
// map, not the (potentially much larger) session index.
func (e *Exporter) Collect() {
	for _, stream := range e.agg.Streams() {
		t := e.agg.StreamTotals(stream)
		e.currIns.WithLabelValues(stream).Set(float64(t.CurrIns))
		e.currOuts.WithLabelValues(stream).Set(float64(t.CurrOuts))
		e.currViews.WithLabelValues(stream).Set(float64(t.CurrViews))
		e.upBytes.WithLabelValues(stream).Set(float64(t.UpBytes))
		e.downBytes.WithLabelValues(stream).Set(float64(t.DownBytes))
	}
}
