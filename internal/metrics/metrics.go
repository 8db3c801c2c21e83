// Package metrics объявляет метрики Prometheus сервиса.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magabrotheeeer/referral-network/internal/models"
)

var (
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_registrations_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	TransactionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_transactions_total",
			Help: "Recorded transactions",
		},
	)

	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_payouts_total",
			Help: "Commission payouts by tier and status",
		},
		[]string{"tier", "status"},
	)

	CommissionAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_commission_amount_total",
			Help: "Sum of credited commissions by tier",
		},
		[]string{"tier"},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_events_consumed_total",
			Help: "Consumed domain events by routing key and outcome",
		},
		[]string{"event", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RegistrationOutcome возвращает метку исхода регистрации для ошибки err.
func RegistrationOutcome(err error) string {
	switch {
	case err == nil:
		return "registered"
	case errors.Is(err, models.ErrDuplicateUsername):
		return "duplicate_username"
	case errors.Is(err, models.ErrInvalidReferralCode):
		return "invalid_code"
	case errors.Is(err, models.ErrReferralLimitReached):
		return "limit_reached"
	default:
		return "error"
	}
}

// ObserveRegistration учитывает попытку регистрации.
func ObserveRegistration(err error) {
	RegistrationsTotal.WithLabelValues(RegistrationOutcome(err)).Inc()
}

// ObserveReceipt учитывает записанную транзакцию и её начисления.
func ObserveReceipt(r *models.Receipt) {
	if r == nil {
		return
	}
	TransactionsTotal.Inc()
	for _, p := range r.Payouts {
		PayoutsTotal.WithLabelValues(p.Tier.String(), string(p.Status)).Inc()
		if p.Status == models.PayoutCredited {
			CommissionAmountTotal.WithLabelValues(p.Tier.String()).Add(p.Amount)
		}
	}
}
