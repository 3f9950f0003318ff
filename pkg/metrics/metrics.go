package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result
	// (success|failure|locked).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// TokenRefreshes counts refresh/rotation operations by outcome.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_token_refreshes_total",
			Help: "Total number of refresh token exchanges",
		},
		[]string{"result"},
	)

	// RateLimitRejections counts requests rejected by the IP rate limiter.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_rate_limit_rejections_total",
			Help: "Requests rejected by per-IP rate limiting",
		},
		[]string{"action"},
	)

	// RevokedTokens tracks denylisted refresh tokens not yet purged.
	RevokedTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeledger_revoked_tokens",
			Help: "Number of denylisted refresh tokens awaiting expiry",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeledger_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
