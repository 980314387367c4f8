// Package metrics registers the Prometheus instruments for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	LoginAttempts      *prometheus.CounterVec
	AccountLockouts    prometheus.Counter
	SessionsCreated    prometheus.Counter
	SessionsEvicted    prometheus.Counter
	TokensIssued       *prometheus.CounterVec
	TokensRevoked      prometheus.Counter
	RateLimitRejected  *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	TwoFactorFailures  prometheus.Counter
	PasswordRejections *prometheus.CounterVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		LoginAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_login_attempts_total",
			Help: "Login attempts by outcome (success, invalid_credentials, locked, requires_2fa).",
		}, []string{"outcome"}),
		AccountLockouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_account_lockouts_total",
			Help: "Accounts locked after repeated failed logins.",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_created_total",
			Help: "Sessions created by login or registration.",
		}),
		SessionsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_evicted_total",
			Help: "Sessions evicted by the per-user concurrency cap.",
		}),
		TokensIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_oauth_tokens_issued_total",
			Help: "Access tokens issued by grant type.",
		}, []string{"grant_type"}),
		TokensRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_oauth_tokens_revoked_total",
			Help: "Access tokens revoked via the revocation endpoint.",
		}),
		RateLimitRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter, by bucket.",
		}, []string{"bucket"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authgate_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		TwoFactorFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_twofactor_failures_total",
			Help: "Failed TOTP or recovery code verifications.",
		}),
		PasswordRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_password_rejections_total",
			Help: "Password changes rejected by policy, by reason.",
		}, []string{"reason"}),
	}
}
