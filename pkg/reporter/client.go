// Package reporter is the host-facing fault reporting client.
//
// A Client normalizes an error, snapshots the request it happened in, and
// posts the resulting report to a collector. While the network is down,
// reports are parked in a small on-disk spool and replayed later.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/V4T54L/faultline/internal/adapter/envinfo"
	"github.com/V4T54L/faultline/internal/adapter/metrics"
	"github.com/V4T54L/faultline/internal/adapter/netcheck"
	"github.com/V4T54L/faultline/internal/adapter/pii"
	"github.com/V4T54L/faultline/internal/adapter/repository/spool"
	"github.com/V4T54L/faultline/internal/adapter/serializer"
	"github.com/V4T54L/faultline/internal/adapter/transport"
	"github.com/V4T54L/faultline/internal/domain"
	"github.com/V4T54L/faultline/internal/fault"
	"github.com/V4T54L/faultline/internal/pkg/config"
	"github.com/V4T54L/faultline/internal/pkg/logger"
	"github.com/V4T54L/faultline/internal/usecase"
)

const (
	ClientName    = "faultline"
	ClientVersion = "0.1.0"
	ClientURL     = "https://github.com/V4T54L/faultline"
)

var errSpoolUnavailable = errors.New("spool unavailable")

// Client reports faults. It is safe for concurrent use.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	registry   *fault.WrapperRegistry
	sanitizer  *pii.Sanitizer
	builder    *usecase.BuildReportUseCase
	serializer domain.Serializer
	delivery   *usecase.DeliverReportUseCase

	user     atomic.Pointer[domain.UserIdentity]
	attached atomic.Bool

	// mu orders wg.Add against Close.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// ctx bounds in-flight sends, loopCtx the replay goroutines.
	ctx        context.Context
	cancel     context.CancelFunc
	loopCtx    context.Context
	loopCancel context.CancelFunc
}

// New creates a Client sending with apiKey. An empty key is accepted; every
// send is then skipped with a log line.
func New(apiKey string, opts ...Option) *Client {
	cfg := config.Default()
	cfg.APIKey = apiKey
	return newClient(cfg, opts)
}

// NewFromConfig creates a Client from cfg, typically obtained from
// LoadConfig. Options are applied on top of cfg. Without WithLogger the
// client logs JSON to stdout at cfg.LogLevel.
func NewFromConfig(cfg *Config, opts ...Option) *Client {
	c := *cfg
	opts = append([]Option{WithLogger(logger.New(c.LogLevel))}, opts...)
	return newClient(&c, opts)
}

func newClient(cfg *config.Config, opts []Option) *Client {
	o := &options{cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("component", "reporter")

	ctx, cancel := context.WithCancel(context.Background())
	loopCtx, loopCancel := context.WithCancel(ctx)
	c := &Client{
		cfg:        cfg,
		logger:     logger,
		registry:   fault.NewDefaultWrapperRegistry(),
		serializer: serializer.NewJSON(),
		ctx:        ctx,
		cancel:     cancel,
		loopCtx:    loopCtx,
		loopCancel: loopCancel,
	}
	c.registry.Add(o.wrappers...)

	c.sanitizer = pii.NewSanitizer(pii.IgnorePredicates{
		Header:         pii.IgnoreNames(cfg.IgnoreHeaders...),
		Form:           pii.IgnoreNames(cfg.IgnoreFormFields...),
		Cookie:         pii.IgnoreNames(cfg.IgnoreCookies...),
		ServerVariable: pii.IgnoreNames(cfg.IgnoreServerVariables...),
	}, o.logger)

	env := o.env
	if env == nil {
		env = envinfo.New(ctx, o.logger)
	}
	c.builder = usecase.NewBuildReportUseCase(c.registry, env, domain.ClientInfo{
		Name:      ClientName,
		Version:   ClientVersion,
		ClientURL: ClientURL,
	}, nil)

	tr := o.transport
	if tr == nil {
		tr = transport.New(transport.Config{
			Endpoint:        cfg.Endpoint,
			APIKey:          cfg.APIKey,
			Timeout:         cfg.SendTimeout,
			RateLimit:       cfg.RateLimit,
			RateBurst:       cfg.RateBurst,
			BreakerFailures: cfg.BreakerFailures,
			BreakerTimeout:  cfg.BreakerTimeout,
		}, o.httpClient, o.logger)
	}

	queue := o.queue
	if queue == nil {
		q, err := spool.NewSpoolRepository(cfg.SpoolDir, cfg.SpoolCapacity, o.logger)
		if err != nil {
			logger.Error("Failed to open spool, unsent reports will be dropped", "dir", cfg.SpoolDir, "error", err)
			queue = unavailableSpool{err: err}
		} else {
			queue = q
		}
	}

	oracle := o.oracle
	if oracle == nil {
		oracle = netcheck.New(o.logger)
	}

	var m *metrics.DeliveryMetrics
	if o.registerer != nil {
		m = metrics.NewDeliveryMetrics(o.registerer)
	}
	c.delivery = usecase.NewDeliverReportUseCase(tr, queue, oracle, m, o.logger)

	if cfg.APIKey == "" {
		logger.Warn("API key not set, reports will not be sent")
		return c
	}

	c.goSafe("startup replay", func() {
		if _, err := c.delivery.Replay(loopCtx); err != nil {
			logger.Error("Startup replay failed", "error", err)
		}
	})
	if cfg.ReplayInterval > 0 {
		c.goSafe("replay loop", func() {
			c.delivery.StartReplayLoop(loopCtx, cfg.ReplayInterval)
		})
	}
	return c
}

// AddWrapperTypes registers error types that only carry another error and
// should be stripped before reporting. Pass pointer types for pointer
// receivers, e.g. reflect.TypeOf((*MyWrapper)(nil)).
func (c *Client) AddWrapperTypes(types ...reflect.Type) {
	c.registry.Add(types...)
}

// RemoveWrapperTypes unregisters wrapper types.
func (c *Client) RemoveWrapperTypes(types ...reflect.Type) {
	c.registry.Remove(types...)
}

// SetUser sets the user attached to reports that carry none of their own.
func (c *Client) SetUser(identifier string) {
	c.SetUserInfo(&UserIdentity{Identifier: identifier})
}

// SetUserInfo sets the user attached to reports that carry none of their
// own. nil clears it.
func (c *Client) SetUserInfo(u *UserIdentity) {
	if u == nil {
		c.user.Store(nil)
		return
	}
	cp := *u
	c.user.Store(&cp)
}

// Attach makes Recover report panics. Middleware reports regardless.
func (c *Client) Attach() { c.attached.Store(true) }

// Detach stops Recover from reporting panics.
func (c *Client) Detach() { c.attached.Store(false) }

// Send reports err asynchronously. The request snapshot, when any, is taken
// before Send returns. A nil err is ignored.
func (c *Client) Send(err error, opts ...SendOption) *Delivery {
	return c.send(err, fault.Callers(1), opts)
}

// SendAndWait reports err and waits for the outcome at most the configured
// wait timeout. It reports whether the delivery completed in time.
func (c *Client) SendAndWait(err error, opts ...SendOption) bool {
	return c.send(err, fault.Callers(1), opts).Wait(c.cfg.WaitTimeout)
}

// SendReport delivers an already assembled report asynchronously.
func (c *Client) SendReport(report Report) *Delivery {
	if !c.hasKey() {
		return completedDelivery(OutcomeDropped)
	}
	return c.dispatch(func() (Outcome, error) {
		return c.deliver(report)
	})
}

func (c *Client) send(err error, callers []uintptr, opts []SendOption) *Delivery {
	if err == nil {
		return completedDelivery(OutcomeDropped)
	}
	if !c.hasKey() {
		return completedDelivery(OutcomeDropped)
	}

	var so sendOptions
	for _, opt := range opts {
		opt(&so)
	}
	// Caller-owned values are copied before Send returns.
	in := usecase.BuildInput{
		Fault:              err,
		Callers:            callers,
		Tags:               slices.Clone(so.tags),
		CustomData:         maps.Clone(so.customData),
		User:               c.user.Load(),
		ApplicationVersion: c.cfg.ApplicationVersion,
	}
	if so.user != nil {
		u := *so.user
		in.User = &u
	}
	// The request may be gone once the caller returns.
	if so.request != nil {
		in.Request = c.capture(so.request)
	}

	return c.dispatch(func() (Outcome, error) {
		return c.deliver(c.builder.Build(in))
	})
}

func (c *Client) deliver(report domain.Report) (Outcome, error) {
	payload, err := c.serializer.Serialize(report)
	if err != nil {
		return OutcomeDropped, fmt.Errorf("failed to serialize report %s: %w", report.ID, err)
	}
	return c.delivery.Deliver(c.ctx, payload), nil
}

func (c *Client) hasKey() bool {
	if c.cfg.APIKey == "" {
		c.logger.Warn("API key not set, report not sent")
		return false
	}
	return true
}

// track registers a goroutine with the client. It fails once Close started.
func (c *Client) track() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

func (c *Client) capture(req RequestContext) (snap *domain.RequestSnapshot) {
	defer func() {
		if v := recover(); v != nil {
			c.logger.Error("Panic while capturing request", "panic", v)
			snap = nil
		}
	}()
	return c.sanitizer.Capture(req)
}

// dispatch runs fn in its own goroutine and completes the returned Delivery
// with its outcome.
func (c *Client) dispatch(fn func() (Outcome, error)) *Delivery {
	if !c.track() {
		c.logger.Debug("Client closed, report dropped")
		return completedDelivery(OutcomeDropped)
	}
	d := newDelivery()
	go func() {
		defer c.wg.Done()
		outcome := OutcomeDropped
		defer func() {
			if v := recover(); v != nil {
				c.logger.Error("Panic while reporting fault", "panic", v)
			}
			d.finish(outcome)
		}()
		o, err := fn()
		if err != nil {
			c.logger.Error("Failed to report fault", "error", err)
		}
		outcome = o
	}()
	return d
}

func (c *Client) goSafe(name string, fn func()) {
	if !c.track() {
		return
	}
	go func() {
		defer c.wg.Done()
		defer func() {
			if v := recover(); v != nil {
				c.logger.Error("Background task panicked", "task", name, "panic", v)
			}
		}()
		fn()
	}()
}

// Recover reports a panic in progress when the client is attached, then
// re-panics with the same value. Use it as the first deferred call of a
// goroutine:
//
//	defer client.Recover()
func (c *Client) Recover() {
	v := recover()
	if v == nil {
		return
	}
	if c.attached.Load() {
		c.SendAndWait(fault.NewPanicError(v, 1), WithTags("UnhandledException"))
	}
	panic(v)
}

// Middleware reports panics raised by next together with a snapshot of the
// request, then answers 500. http.ErrAbortHandler is passed through.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = pii.RecordBody(r)
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			c.SendAndWait(fault.NewPanicError(v, 1), WithRequest(r), WithTags("UnhandledException"))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// Replay retries the spooled reports now and returns how many were handled.
func (c *Client) Replay(ctx context.Context) (int, error) {
	return c.delivery.Replay(ctx)
}

// Close stops the replay loop and waits for in-flight sends until ctx is
// done. Sends after Close are dropped.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.loopCancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("reporter close: %w", ctx.Err())
	}
	c.cancel()
	return err
}

// unavailableSpool stands in when the spool folder cannot be opened.
type unavailableSpool struct{ err error }

func (u unavailableSpool) Write(context.Context, []byte) (int, error) {
	return 0, fmt.Errorf("%w: %v", errSpoolUnavailable, u.err)
}

func (u unavailableSpool) Replay(context.Context, func(domain.SpillItem) error) (int, error) {
	return 0, nil
}

func (u unavailableSpool) Len() (int, error) { return 0, nil }
