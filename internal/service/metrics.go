package service

import "github.com/prometheus/client_golang/prometheus"

var (
	cartOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Cart operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	cartNotices = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_notices_total",
		Help: "Stock notices returned to shoppers, by kind.",
	}, []string{"kind"})

	checkoutPreferences = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_preferences_total",
		Help: "Payment preference attempts by outcome.",
	}, []string{"outcome"})

	mailDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsletter_mail_deliveries_total",
		Help: "Announcement mails by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(cartOperations, cartNotices, checkoutPreferences, mailDeliveries)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
