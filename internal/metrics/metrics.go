package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rentalplatform",
			Name:      "booking_created_total",
			Help:      "Count of bookings created.",
		},
	)

	bookingTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentalplatform",
			Name:      "booking_transition_total",
			Help:      "Count of booking status transitions by target status.",
		},
		[]string{"to"},
	)

	paymentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentalplatform",
			Name:      "payment_event_total",
			Help:      "Count of processor webhook events by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	webhookRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentalplatform",
			Name:      "webhook_rejected_total",
			Help:      "Count of webhook deliveries rejected before processing.",
		},
		[]string{"provider", "reason"},
	)

	lateFeeCharged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rentalplatform",
			Name:      "late_fee_charge_total",
			Help:      "Count of off-session late fee charge attempts by result.",
		},
		[]string{"result"},
	)

	duplicateEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rentalplatform",
			Name:      "duplicate_payment_event_total",
			Help:      "Count of processor events skipped as already applied.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingTransition,
			paymentEvents,
			webhookRejected,
			lateFeeCharged,
			duplicateEvents,
		)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingTransition(to string) {
	bookingTransition.WithLabelValues(to).Inc()
}

func IncPaymentEvent(provider, outcome string) {
	paymentEvents.WithLabelValues(provider, outcome).Inc()
}

func IncWebhookRejected(provider, reason string) {
	webhookRejected.WithLabelValues(provider, reason).Inc()
}

func IncLateFeeCharge(result string) {
	lateFeeCharged.WithLabelValues(result).Inc()
}

func IncDuplicateEvent() {
	duplicateEvents.Inc()
}
