package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Logins counts login attempts by outcome: "success", "invalid_credentials",
	// "error".
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"result"})

	// SessionAnomalies counts request validations that observed more than one
	// active session for the same user. The single-active-session policy makes
	// any value here a signal worth investigating.
	SessionAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_session_anomalies_total",
		Help: "Validations that found multiple active sessions for one user.",
	})

	// SessionsSwept counts expired session records purged by the sweep job.
	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_swept_total",
		Help: "Expired session records removed by the background sweep.",
	})
)
