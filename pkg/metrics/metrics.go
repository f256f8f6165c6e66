// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	CacheHit       = "hit"
	CacheMiss      = "miss"
	CacheCoalesced = "coalesced"
	CacheError     = "error"
)

var (
	// RequestsTotal counts webhook calls by outcome stage
	// (success, not_found, config, token, relay, bad_request).
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "requests_total",
			Help:      "Webhook relay calls by provider and result",
		},
		[]string{"provider", "result"},
	)

	// TokenCacheTotal counts token lookups by cache outcome.
	TokenCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "token_cache",
			Name:      "total",
			Help:      "Token cache lookups (hit, miss, coalesced, error)",
		},
		[]string{"result"},
	)

	IdentityFetchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "identity_fetch_seconds",
			Help:      "Latency of upstream identity exchanges",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// UpstreamErrcodeTotal counts relayed responses by the errcode found in the upstream body.
	UpstreamErrcodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "upstream_errcode_total",
			Help:      "Upstream message responses by reported errcode",
		},
		[]string{"errcode"},
	)
)

// knownErrcodes are the WorkWeChat message errcodes given their own label value.
var knownErrcodes = map[string]bool{
	"-1":    true, // system busy
	"0":     true,
	"40014": true, // invalid access_token
	"41001": true, // access_token missing
	"42001": true, // access_token expired
	"45009": true, // api frequency limit
	"48002": true, // api forbidden
	"60020": true, // ip not allowed
	"81013": true, // invalid receivers
	"82001": true, // no valid receiver
	"93000": true, // invalid webhook url
}

// ErrcodeLabel bounds the errcode label: known codes and the "none" and "unparsed"
// markers pass through, anything else becomes "other".
func ErrcodeLabel(raw string) string {
	if knownErrcodes[raw] || raw == "none" || raw == "unparsed" {
		return raw
	}
	return "other"
}

func init() {
	prometheus.MustRegister(RequestsTotal, TokenCacheTotal, IdentityFetchSeconds, UpstreamErrcodeTotal)
}
