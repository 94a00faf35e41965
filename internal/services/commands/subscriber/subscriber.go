// Package subscriber keeps the replica current from the owner's platform
// events. A single goroutine leases deliveries from a durable subscription,
// dispatches them by event type and acks each with its outcome.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/louisbranch/platformsync/internal/platform/errors"
	"github.com/louisbranch/platformsync/internal/platform/retry"
	"github.com/louisbranch/platformsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/platformsync/internal/platform/timeouts"
	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSubscription     = "commands"
	defaultPollInterval     = time.Second
	defaultLeaseTTL         = 30 * time.Second
	defaultBatchSize        = 10
	defaultMaxAttempts      = 10
	defaultRetryBackoff     = time.Second
	defaultRetryMaxDelay    = 5 * time.Minute
	defaultReconnectInitial = 500 * time.Millisecond
	defaultReconnectMax     = 30 * time.Second

	tracerName = "github.com/louisbranch/platformsync/internal/services/commands/subscriber"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeIgnored   = "ignored"
	outcomeRetry     = "retry"
	outcomeDead      = "dead"
)

// Config controls the lease loop.
type Config struct {
	Subscription string
	PollInterval time.Duration
	LeaseTTL     time.Duration
	BatchSize    int
	// MaxAttempts parks a delivery as dead once it has failed this many times.
	MaxAttempts      int
	RetryBackoff     time.Duration
	RetryMaxDelay    time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	CallTimeout      time.Duration
}

func (c Config) normalized() Config {
	c.Subscription = strings.TrimSpace(c.Subscription)
	if c.Subscription == "" {
		c.Subscription = defaultSubscription
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = defaultReconnectInitial
	}
	if c.ReconnectMax < c.ReconnectInitial {
		c.ReconnectMax = max(defaultReconnectMax, c.ReconnectInitial)
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = timeouts.GRPCRequest
	}
	return c
}

// Subscriber processes platform events from one durable subscription.
type Subscriber struct {
	transport Transport
	handlers  map[string]EventHandler
	cfg       Config
	logf      func(string, ...any)
	tracer    trace.Tracer
	messages  *prometheus.CounterVec
}

// Option customizes a Subscriber.
type Option func(*Subscriber)

// WithLogf sets the subscriber logger.
func WithLogf(logf func(string, ...any)) Option {
	return func(s *Subscriber) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// WithTracerProvider sets the provider for per-message spans.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(s *Subscriber) {
		if provider != nil {
			s.tracer = provider.Tracer(tracerName)
		}
	}
}

// WithRegisterer records message outcomes on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Subscriber) {
		s.messages = metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "subscriber",
			Name:      "messages_total",
			Help:      "Platform events processed by the subscriber, by ack outcome.",
		}, []string{"event_type", "outcome"}))
	}
}

// New creates a subscriber. Handlers are keyed by event type; events with no
// handler are acked and dropped.
func New(transport Transport, handlers map[string]EventHandler, cfg Config, opts ...Option) *Subscriber {
	table := make(map[string]EventHandler, len(handlers))
	for eventType, handler := range handlers {
		if handler != nil {
			table[strings.TrimSpace(eventType)] = handler
		}
	}
	s := &Subscriber{
		transport: transport,
		handlers:  table,
		cfg:       cfg.normalized(),
		logf:      log.Printf,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle owns a running subscriber goroutine.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start runs the lease loop in its own goroutine until ctx ends or Stop is
// called.
func (s *Subscriber) Start(ctx context.Context) *Handle {
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		s.Run(runCtx)
	}()
	return h
}

// Stop cancels the loop and waits for the in-flight message to finish.
func (h *Handle) Stop(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.once.Do(h.cancel)
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop subscriber: %w", ctx.Err())
	}
}

// Done is closed once the loop has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Run declares the subscription and processes deliveries until ctx ends.
// Transport failures are logged and retried with capped exponential backoff.
func (s *Subscriber) Run(ctx context.Context) {
	if s.transport == nil {
		s.logf("subscriber %s has no transport", s.cfg.Subscription)
		return
	}
	reconnect := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.ReconnectInitial,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         s.cfg.ReconnectMax,
	}
	reconnect.Reset()

	declared := false
	for ctx.Err() == nil {
		if !declared {
			if err := s.Declare(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				delay := nextDelay(reconnect)
				s.logf("declare subscription %s failed, retrying in %s: %v", s.cfg.Subscription, delay, err)
				if !wait(ctx, delay) {
					return
				}
				continue
			}
			declared = true
			reconnect.Reset()
			s.logf("subscribed to %s as %s", platformsync.TopicPlatforms, s.cfg.Subscription)
		}

		processed, err := s.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// The owner may have lost the subscription; declaring again is harmless.
			declared = false
			delay := nextDelay(reconnect)
			s.logf("lease events for %s failed, retrying in %s: %v", s.cfg.Subscription, delay, err)
			if !wait(ctx, delay) {
				return
			}
			continue
		}
		reconnect.Reset()
		if processed == 0 && !wait(ctx, s.cfg.PollInterval) {
			return
		}
	}
}

// Declare registers the durable subscription with the owner. Events appended
// after it returns are retained for this subscriber. Declaring again is a no-op.
func (s *Subscriber) Declare(ctx context.Context) error {
	if s.transport == nil {
		return fmt.Errorf("subscriber %s has no transport", s.cfg.Subscription)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.transport.SubscribeEvents(callCtx, s.cfg.Subscription)
}

// PollOnce leases one batch and processes it. It returns the number of
// deliveries handled. Once ctx ends no further delivery of the batch is
// started; unstarted deliveries return to the topic when their lease expires.
func (s *Subscriber) PollOnce(ctx context.Context) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	deliveries, err := s.transport.LeaseEvents(callCtx, platformsync.LeaseRequest{
		Subscription: s.cfg.Subscription,
		Limit:        s.cfg.BatchSize,
		LeaseTTL:     s.cfg.LeaseTTL,
	})
	cancel()
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, delivery := range deliveries {
		if ctx.Err() != nil {
			break
		}
		s.process(context.WithoutCancel(ctx), delivery)
		processed++
	}
	return processed, nil
}

// process handles one delivery and acks it. The caller passes a context that
// is not cancelled by shutdown so the merge and its ack complete together.
func (s *Subscriber) process(ctx context.Context, delivery platformsync.Delivery) {
	ctx, span := s.tracer.Start(ctx, "process "+platformsync.TopicPlatforms,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", platformsync.TopicPlatforms),
			attribute.String("messaging.consumer.group.name", s.cfg.Subscription),
			attribute.String("messaging.message.id", delivery.EventID),
			attribute.Int("messaging.delivery.attempt", delivery.AttemptCount+1),
		),
	)
	defer span.End()

	ack := platformsync.AckRequest{Subscription: s.cfg.Subscription, EventID: delivery.EventID}
	eventType := "unknown"
	outcome := outcomeSucceeded

	event, err := platformsync.Decode(delivery.Body)
	switch {
	case err != nil:
		s.logf("event %s is malformed, parking it: %v", delivery.EventID, err)
		outcome = outcomeDead
		ack.Outcome = platformsync.AckDead
		ack.Error = err.Error()
	default:
		eventType = event.EventType
		span.SetAttributes(attribute.String("platformsync.event_type", eventType))
		handler, ok := s.handlers[event.EventType]
		if !ok {
			s.logf("dropping event %s with unknown type %q", delivery.EventID, event.EventType)
			outcome = outcomeIgnored
			ack.Outcome = platformsync.AckSucceeded
			break
		}
		outcome, ack = s.handle(ctx, handler, event, delivery, ack)
		err = errorFromAck(ack)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("platformsync.ack_outcome", string(ack.Outcome)))
	if s.messages != nil {
		s.messages.WithLabelValues(eventType, outcome).Inc()
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	if ackErr := s.transport.AckEvent(callCtx, ack); ackErr != nil {
		// The lease expires and the event is redelivered.
		s.logf("ack event %s as %s: %v", delivery.EventID, ack.Outcome, ackErr)
	}
}

func (s *Subscriber) handle(ctx context.Context, handler EventHandler, event platformsync.SyncEvent, delivery platformsync.Delivery, ack platformsync.AckRequest) (string, platformsync.AckRequest) {
	err := handler.Handle(ctx, event)
	if err == nil {
		ack.Outcome = platformsync.AckSucceeded
		return outcomeSucceeded, ack
	}
	ack.Error = err.Error()
	if permanent(err) {
		s.logf("event %s (%s) cannot be applied, parking it: %v", delivery.EventID, event.EventType, err)
		ack.Outcome = platformsync.AckDead
		return outcomeDead, ack
	}
	attempt := delivery.AttemptCount + 1
	if attempt >= s.cfg.MaxAttempts {
		s.logf("event %s (%s) failed %d times, parking it: %v", delivery.EventID, event.EventType, attempt, err)
		ack.Outcome = platformsync.AckDead
		return outcomeDead, ack
	}
	ack.Outcome = platformsync.AckRetry
	ack.RetryAfter = s.retryPolicy().Delay(attempt)
	s.logf("event %s (%s) failed on attempt %d, redelivering in %s: %v", delivery.EventID, event.EventType, attempt, ack.RetryAfter, err)
	return outcomeRetry, ack
}

func (s *Subscriber) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  s.cfg.MaxAttempts,
		InitialDelay: s.cfg.RetryBackoff,
		Multiplier:   2,
		MaxDelay:     s.cfg.RetryMaxDelay,
	}
}

func permanent(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeMalformedMessage, apperrors.CodeInvalidArgument:
		return true
	default:
		return false
	}
}

func errorFromAck(ack platformsync.AckRequest) error {
	if ack.Error == "" {
		return nil
	}
	return errors.New(ack.Error)
}

func nextDelay(b *backoff.ExponentialBackOff) time.Duration {
	delay := b.NextBackOff()
	if delay < 0 {
		return b.MaxInterval
	}
	return delay
}

func wait(ctx context.Context, d time.Duration) bool {
	return retry.SleepContext(ctx, d) == nil
}
