package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	compilesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_compiles_total",
		Help: "Total number of configuration compile cycles started",
	})
	appliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_applies_total",
		Help: "Total number of apply attempts against the engine admin API",
	}, []string{"result"})
	coalescedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_coalesced_triggers_total",
		Help: "Compile triggers coalesced into a pending cycle instead of running immediately",
	})
	wafOmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_waf_omitted_hosts_total",
		Help: "Hosts for which the WAF stage was omitted because no ruleset resolved",
	})
	bulkItemErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_bulk_item_errors_total",
		Help: "Individual host failures inside bulk operations",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(compilesTotal, appliesTotal, coalescedTotal, wafOmittedTotal, bulkItemErrorsTotal)
}

// IncCompile increments the compile cycle counter.
func IncCompile() { compilesTotal.Inc() }

// IncApply increments the apply counter with "ok" or "fail".
func IncApply(result string) { appliesTotal.WithLabelValues(result).Inc() }

// IncCoalesced increments the coalesced trigger counter.
func IncCoalesced() { coalescedTotal.Inc() }

// IncWAFOmitted increments the omitted-WAF counter.
func IncWAFOmitted() { wafOmittedTotal.Inc() }

// IncBulkItemError increments the bulk item failure counter.
func IncBulkItemError() { bulkItemErrorsTotal.Inc() }
