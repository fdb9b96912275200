package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "betterocean", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "betterocean", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	SchwabRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "betterocean", Name: "schwab_requests_total", Help: "Number of dispatched Schwab API requests by outcome."},
		[]string{"outcome"},
	)
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "betterocean", Name: "schwab_token_refreshes_total", Help: "Number of Schwab token refreshes by trigger and result."},
		[]string{"trigger", "result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SchwabRequests)
	reg.MustRegister(TokenRefreshes)
}
