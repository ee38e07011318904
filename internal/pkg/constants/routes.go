package constants

// API route constants
const (
	APIRoute    = "/api"
	APIv1Route  = "/v1"
	HealthRoute = "/health"

	QueueRoute         = "/queue"
	SubscriptionsRoute = "/subscriptions"
	RenewalsRoute      = "/renewals"
)
