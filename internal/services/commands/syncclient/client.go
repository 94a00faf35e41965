// Package syncclient pulls the full platform set from the owner with bounded
// exponential-backoff retries. It blocks its caller between attempts, so it
// belongs on the one-time bootstrap path only.
package syncclient

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/platformsync/internal/platform/errors"
	platformgrpc "github.com/louisbranch/platformsync/internal/platform/grpc"
	"github.com/louisbranch/platformsync/internal/platform/retry"
	"github.com/louisbranch/platformsync/internal/platform/telemetry/metrics"
	"github.com/louisbranch/platformsync/internal/platform/timeouts"
	"github.com/louisbranch/platformsync/internal/services/shared/platformsync"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrSyncUnavailable matches a bulk pull that failed every attempt.
var ErrSyncUnavailable = apperrors.New(apperrors.CodeSyncUnavailable, "platform sync unavailable")

// PlatformLister issues the owner's list-all call.
type PlatformLister interface {
	GetAllPlatforms(ctx context.Context) ([]platformsync.Platform, error)
}

// Connector opens a fresh owner connection for one attempt. The returned
// close function releases it.
type Connector func(ctx context.Context, addr string) (PlatformLister, func() error, error)

// Config selects the owner endpoint and retry behavior.
type Config struct {
	Addr        string
	Policy      retry.Policy
	DialTimeout time.Duration
	CallTimeout time.Duration
}

// Client fetches all platforms from the owner.
type Client struct {
	addr        string
	policy      retry.Policy
	callTimeout time.Duration
	connect     Connector
	declare     func(ctx context.Context) error
	sleep       retry.Sleeper
	logf        func(string, ...any)
	attempts    *prometheus.CounterVec
}

// Option customizes a Client.
type Option func(*Client)

// WithConnector replaces the gRPC connector.
func WithConnector(connect Connector) Option {
	return func(c *Client) {
		if connect != nil {
			c.connect = connect
		}
	}
}

// WithSubscriptionDeclarer runs declare at the start of every attempt. An
// attempt succeeds only when both the declaration and the pull do, so a
// successful pull never leaves a window the subscription missed.
func WithSubscriptionDeclarer(declare func(ctx context.Context) error) Option {
	return func(c *Client) {
		c.declare = declare
	}
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogf sets the retry logger.
func WithLogf(logf func(string, ...any)) Option {
	return func(c *Client) {
		if logf != nil {
			c.logf = logf
		}
	}
}

// WithRegisterer records attempt outcomes on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.attempts = metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "bulk_pull",
			Name:      "attempts_total",
			Help:      "Bulk platform pull attempts against the owner, by outcome.",
		}, []string{"outcome"}))
	}
}

// New creates a client for cfg.
func New(cfg Config, opts ...Option) *Client {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = timeouts.GRPCDial
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = timeouts.GRPCRequest
	}
	c := &Client{
		addr:        strings.TrimSpace(cfg.Addr),
		policy:      cfg.Policy.Normalized(),
		callTimeout: callTimeout,
		connect:     grpcConnector(dialTimeout),
		sleep:       retry.SleepContext,
		logf:        log.Printf,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAllPlatforms opens a connection to the owner and lists every platform,
// retrying any failure per the policy. When every attempt fails, or ctx ends
// first, the error matches ErrSyncUnavailable.
func (c *Client) FetchAllPlatforms(ctx context.Context) ([]platformsync.Platform, error) {
	if c == nil || c.connect == nil {
		return nil, apperrors.New(apperrors.CodeSyncUnavailable, "platform sync client is not configured")
	}
	if c.addr == "" {
		return nil, apperrors.New(apperrors.CodeSyncUnavailable, "owner address is not configured")
	}

	var platforms []platformsync.Platform
	onRetry := func(attempt int, delay time.Duration, err error) {
		c.logf("bulk pull attempt %d/%d against %s failed, retrying in %s: %v", attempt, c.policy.MaxAttempts, c.addr, delay, err)
	}
	attempts, err := retry.Do(ctx, c.policy, c.sleep, onRetry, func(ctx context.Context, _ int) error {
		result, err := c.fetchOnce(ctx)
		c.observe(err)
		if err != nil {
			return err
		}
		platforms = result
		return nil
	})
	if err != nil {
		return nil, apperrors.WrapWithMetadata(
			apperrors.CodeSyncUnavailable,
			"fetch platforms",
			map[string]string{"addr": c.addr, "attempts": strconv.Itoa(attempts)},
			err,
		)
	}
	return platforms, nil
}

func (c *Client) fetchOnce(ctx context.Context) ([]platformsync.Platform, error) {
	if c.declare != nil {
		declareCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		err := c.declare(declareCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("declare subscription: %w", err)
		}
	}
	lister, closeFn, err := c.connect(ctx, c.addr)
	if err != nil {
		return nil, err
	}
	if closeFn != nil {
		defer func() {
			if closeErr := closeFn(); closeErr != nil {
				c.logf("close owner connection: %v", closeErr)
			}
		}()
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	platforms, err := lister.GetAllPlatforms(callCtx)
	if err != nil {
		return nil, fmt.Errorf("get all platforms: %w", err)
	}
	return platforms, nil
}

func (c *Client) observe(err error) {
	if c.attempts == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.attempts.WithLabelValues(outcome).Inc()
}

func grpcConnector(dialTimeout time.Duration) Connector {
	return func(ctx context.Context, addr string) (PlatformLister, func() error, error) {
		conn, err := platformgrpc.DialWithHealth(ctx, nil, addr, dialTimeout, nil, platformgrpc.DefaultClientDialOptions()...)
		if err != nil {
			return nil, nil, err
		}
		return listerFunc(func(ctx context.Context) ([]platformsync.Platform, error) {
			return platformsync.NewClient(conn).GetAllPlatforms(ctx)
		}), conn.Close, nil
	}
}

type listerFunc func(ctx context.Context) ([]platformsync.Platform, error)

func (fn listerFunc) GetAllPlatforms(ctx context.Context) ([]platformsync.Platform, error) {
	return fn(ctx)
}
