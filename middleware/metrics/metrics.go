// Package metrics provides Prometheus metrics for the command pipeline and
// the event store.
//
// Basic usage:
//
//	m := metrics.New(metrics.WithServiceName("planning"))
//	m.MustRegister()
//
//	pipeline := eventfold.NewPipeline(wm, repo, publisher,
//		eventfold.Use(m.CommandMiddleware()),
//	)
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eventfold/eventfold"
	"github.com/eventfold/eventfold/adapters"
)

// Metric labels.
const (
	LabelService   = "service"
	LabelContext   = "context"
	LabelAggregate = "aggregate"
	LabelCommand   = "command"
	LabelOutcome   = "outcome"
	LabelOperation = "operation"
	LabelStatus    = "status"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	namespace   string
	serviceName string

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandsInFlight *prometheus.GaugeVec

	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec
	eventsSavedTotal       *prometheus.CounterVec
	eventsPublishedTotal   *prometheus.CounterVec
}

// Option configures Metrics.
type Option func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) Option {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithServiceName sets the service name label.
func WithServiceName(name string) Option {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		namespace:   "eventfold",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) initMetrics() {
	m.commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "commands_total",
			Help:      "Total number of commands processed by outcome.",
		},
		[]string{LabelService, LabelContext, LabelAggregate, LabelCommand, LabelOutcome},
	)

	m.commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of command processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelContext, LabelAggregate, LabelCommand},
	)

	m.commandsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "commands_in_flight",
			Help:      "Number of commands currently being processed.",
		},
		[]string{LabelService, LabelContext, LabelAggregate},
	)

	m.storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "eventstore_operations_total",
			Help:      "Total number of event store operations.",
		},
		[]string{LabelService, LabelOperation, LabelStatus},
	)

	m.storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      "eventstore_operation_duration_seconds",
			Help:      "Duration of event store operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelOperation},
	)

	m.eventsSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "events_saved_total",
			Help:      "Total number of events saved to the store.",
		},
		[]string{LabelService},
	)

	m.eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "events_published_total",
			Help:      "Total number of events marked as published.",
		},
		[]string{LabelService},
	)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.commandsTotal,
		m.commandDuration,
		m.commandsInFlight,
		m.storeOperationsTotal,
		m.storeOperationDuration,
		m.eventsSavedTotal,
		m.eventsPublishedTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// CommandMiddleware returns pipeline middleware that records command
// metrics by outcome.
func (m *Metrics) CommandMiddleware() eventfold.Middleware {
	return func(next eventfold.HandleFunc) eventfold.HandleFunc {
		return func(ctx context.Context, cmd *eventfold.Command) (eventfold.Result, error) {
			m.commandsInFlight.WithLabelValues(m.serviceName, cmd.Context, cmd.Aggregate.Name).Inc()
			defer m.commandsInFlight.WithLabelValues(m.serviceName, cmd.Context, cmd.Aggregate.Name).Dec()

			start := time.Now()
			result, err := next(ctx, cmd)
			duration := time.Since(start)

			m.commandDuration.WithLabelValues(m.serviceName, cmd.Context, cmd.Aggregate.Name, cmd.Name).
				Observe(duration.Seconds())

			outcome := result.Outcome.String()
			if err != nil {
				outcome = StatusError
			}
			m.commandsTotal.WithLabelValues(m.serviceName, cmd.Context, cmd.Aggregate.Name, cmd.Name, outcome).Inc()

			return result, err
		}
	}
}

// WrapEventStore wraps an event store with metrics collection.
func (m *Metrics) WrapEventStore(store adapters.EventStore) *EventStoreMiddleware {
	return &EventStoreMiddleware{store: store, metrics: m}
}

// EventStoreMiddleware wraps an EventStore with metrics.
type EventStoreMiddleware struct {
	store   adapters.EventStore
	metrics *Metrics
}

var _ adapters.EventStore = (*EventStoreMiddleware)(nil)

func (em *EventStoreMiddleware) observe(operation string, start time.Time, err error) {
	em.metrics.storeOperationDuration.WithLabelValues(em.metrics.serviceName, operation).
		Observe(time.Since(start).Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	em.metrics.storeOperationsTotal.WithLabelValues(em.metrics.serviceName, operation, status).Inc()
}

// SaveEvents appends events with metrics.
func (em *EventStoreMiddleware) SaveEvents(ctx context.Context, records []adapters.EventRecord) ([]adapters.StoredEvent, error) {
	start := time.Now()
	stored, err := em.store.SaveEvents(ctx, records)
	em.observe("save_events", start, err)
	if err == nil {
		em.metrics.eventsSavedTotal.WithLabelValues(em.metrics.serviceName).Add(float64(len(stored)))
	}
	return stored, err
}

// GetEventStream loads events with metrics.
func (em *EventStoreMiddleware) GetEventStream(ctx context.Context, aggregateID string, fromRevision int64) (adapters.EventStream, error) {
	start := time.Now()
	stream, err := em.store.GetEventStream(ctx, aggregateID, fromRevision)
	em.observe("get_event_stream", start, err)
	return stream, err
}

// GetSnapshot loads a snapshot with metrics.
func (em *EventStoreMiddleware) GetSnapshot(ctx context.Context, aggregateID string) (*adapters.SnapshotRecord, error) {
	start := time.Now()
	snapshot, err := em.store.GetSnapshot(ctx, aggregateID)
	em.observe("get_snapshot", start, err)
	return snapshot, err
}

// SaveSnapshot stores a snapshot with metrics.
func (em *EventStoreMiddleware) SaveSnapshot(ctx context.Context, record adapters.SnapshotRecord) error {
	start := time.Now()
	err := em.store.SaveSnapshot(ctx, record)
	em.observe("save_snapshot", start, err)
	return err
}

// MarkEventsAsPublished marks events with metrics.
func (em *EventStoreMiddleware) MarkEventsAsPublished(ctx context.Context, aggregateID string, fromRevision, toRevision int64) error {
	start := time.Now()
	err := em.store.MarkEventsAsPublished(ctx, aggregateID, fromRevision, toRevision)
	em.observe("mark_published", start, err)
	if err == nil {
		em.metrics.eventsPublishedTotal.WithLabelValues(em.metrics.serviceName).
			Add(float64(toRevision - fromRevision + 1))
	}
	return err
}

// GetUnpublishedEventStream loads unpublished events with metrics.
func (em *EventStoreMiddleware) GetUnpublishedEventStream(ctx context.Context) (adapters.EventStream, error) {
	start := time.Now()
	stream, err := em.store.GetUnpublishedEventStream(ctx)
	em.observe("get_unpublished", start, err)
	return stream, err
}

// Initialize initializes the underlying store.
func (em *EventStoreMiddleware) Initialize(ctx context.Context) error {
	return em.store.Initialize(ctx)
}

// Close closes the underlying store.
func (em *EventStoreMiddleware) Close() error {
	return em.store.Close()
}

// CommandsTotal returns the commands counter. For testing.
func (m *Metrics) CommandsTotal() *prometheus.CounterVec {
	return m.commandsTotal
}

// EventsSavedTotal returns the events saved counter. For testing.
func (m *Metrics) EventsSavedTotal() *prometheus.CounterVec {
	return m.eventsSavedTotal
}

// EventsPublishedTotal returns the events published counter. For testing.
func (m *Metrics) EventsPublishedTotal() *prometheus.CounterVec {
	return m.eventsPublishedTotal
}
