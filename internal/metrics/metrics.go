// Package metrics exposes Prometheus counters for the deployment toolkit.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	holograph "github.com/holographxyz/holograph-sub000"
)

var (
	decodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holograph_decodes_total",
			Help: "Total number of call inputs decoded, by shape and result",
		},
		[]string{"shape", "result"},
	)

	signaturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holograph_signatures_total",
			Help: "Total number of config hash signing attempts",
		},
		[]string{"mode", "result"},
	)

	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holograph_verifications_total",
			Help: "Total number of signature verifications",
		},
		[]string{"valid"},
	)

	auditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holograph_audits_total",
			Help: "Total number of audits, by source and result",
		},
		[]string{"source", "result"},
	)

	auditDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holograph_audit_duration_seconds",
			Help:    "Audit duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holograph_report_cache_lookups_total",
			Help: "Audit report cache lookups",
		},
		[]string{"result"},
	)

	chainCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holograph_chain_calls_total",
			Help: "Total number of RPC calls to chain nodes",
		},
		[]string{"method", "result"},
	)

	chainCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holograph_chain_call_duration_seconds",
			Help:    "Chain RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	rpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holograph_jsonrpc_requests_total",
			Help: "Total number of JSON-RPC method calls",
		},
		[]string{"method", "result"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holograph_jsonrpc_duration_seconds",
			Help:    "JSON-RPC method duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecode records one decode. shape may be empty when the selector was
// not recognized.
func ObserveDecode(shape holograph.CallShape, err error) {
	if shape == "" {
		shape = "unknown"
	}
	decodesTotal.WithLabelValues(string(shape), decodeResult(err)).Inc()
}

// ObserveSign records one signing attempt.
func ObserveSign(mode holograph.SigningMode, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, holograph.ErrSignatureRejected):
		result = "rejected"
	default:
		result = "error"
	}
	signaturesTotal.WithLabelValues(mode.String(), result).Inc()
}

// ObserveVerify records one verification outcome.
func ObserveVerify(valid bool) {
	verificationsTotal.WithLabelValues(boolLabel(valid)).Inc()
}

// ObserveAudit records an audit that started at start.
func ObserveAudit(source string, start time.Time, err error) {
	auditsTotal.WithLabelValues(source, result(err)).Inc()
	auditDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

// ObserveCacheLookup records a report cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

// ObserveChainCall records a chain RPC call that started at start.
func ObserveChainCall(method string, start time.Time, err error) {
	chainCallsTotal.WithLabelValues(method, result(err)).Inc()
	chainCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// ObserveRPC records a JSON-RPC call that started at start.
func ObserveRPC(method string, start time.Time, failed bool) {
	r := "ok"
	if failed {
		r = "error"
	}
	rpcRequestsTotal.WithLabelValues(method, r).Inc()
	rpcDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func decodeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, holograph.ErrUnknownSelector):
		return "unknown_selector"
	case errors.Is(err, holograph.ErrTruncatedInput):
		return "truncated"
	case errors.Is(err, holograph.ErrMalformedInput):
		return "malformed"
	default:
		return "error"
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
