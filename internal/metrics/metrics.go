package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonflow",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonflow",
			Name:      "slot_reservations_total",
			Help:      "Slot reservation outcomes (reserved, conflict, released).",
		},
		[]string{"outcome"},
	)

	sweptReservations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lessonflow",
			Name:      "slot_reservations_swept_total",
			Help:      "Expired reservations removed by the sweeper.",
		},
	)

	commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonflow",
			Name:      "booking_commits_total",
			Help:      "Booking commit outcomes.",
		},
		[]string{"outcome"},
	)

	sessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonflow",
			Name:      "booking_sessions_started_total",
			Help:      "Booking sessions started by flow type.",
		},
		[]string{"flow_type"},
	)
)

const (
	ReservationReserved = "reserved"
	ReservationConflict = "conflict"
	ReservationReleased = "released"

	CommitSuccess  = "success"
	CommitPartial  = "partial"
	CommitSlotLost = "slot_lost"
	CommitFailed   = "failed"
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservations, sweptReservations, commits, sessionsStarted)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncReservation(outcome string) {
	reservations.WithLabelValues(outcome).Inc()
}

func AddSwept(n int64) {
	if n > 0 {
		sweptReservations.Add(float64(n))
	}
}

func IncCommit(outcome string) {
	commits.WithLabelValues(outcome).Inc()
}

func IncSessionStarted(flowType string) {
	sessionsStarted.WithLabelValues(flowType).Inc()
}
