package hass

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	postsAttempted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtlhass_posts_attempted_total",
		Help: "Entity state posts handed to the hub client",
	})
	postsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtlhass_posts_failed_total",
		Help: "Entity state posts that failed after retries",
	})
	postsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtlhass_posts_suppressed_total",
		Help: "Entity updates suppressed because the coerced value was unchanged",
	})
	coercionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtlhass_coercion_failures_total",
		Help: "Entity updates abandoned because the value could not be coerced",
	})
	requestRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtlhass_request_retries_total",
		Help: "Hub requests that failed an attempt and were scheduled for retry",
	})
)
