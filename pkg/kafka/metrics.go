package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_events_published_total",
			Help: "Total number of events successfully published to Kafka",
		},
		[]string{"topic", "event_type"},
	)

	eventsPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_events_publish_failures_total",
			Help: "Total number of events that failed to publish to Kafka",
		},
		[]string{"topic", "event_type"},
	)
)
