package reporter

import (
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/faultline/internal/domain"
	"github.com/V4T54L/faultline/internal/pkg/config"
)

type options struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client
	transport  domain.Transport
	oracle     domain.ConnectivityOracle
	env        domain.EnvironmentProvider
	queue      domain.SpillQueue
	registerer prometheus.Registerer
	wrappers   []reflect.Type
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEndpoint sets the collector URL.
func WithEndpoint(url string) Option {
	return func(o *options) { o.cfg.Endpoint = url }
}

// WithApplicationVersion overrides the version reported with every fault.
func WithApplicationVersion(v string) Option {
	return func(o *options) { o.cfg.ApplicationVersion = v }
}

// WithSpoolDir sets the folder unsent reports are kept in.
func WithSpoolDir(dir string) Option {
	return func(o *options) { o.cfg.SpoolDir = dir }
}

// WithSpoolCapacity bounds the number of unsent reports kept on disk.
func WithSpoolCapacity(n int) Option {
	return func(o *options) { o.cfg.SpoolCapacity = n }
}

// WithReplayInterval sets how often the spool is retried. Zero disables the
// periodic retry; the startup replay still happens.
func WithReplayInterval(d time.Duration) Option {
	return func(o *options) { o.cfg.ReplayInterval = d }
}

// WithWaitTimeout bounds SendAndWait.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.WaitTimeout = d }
}

// WithSendTimeout bounds a single transmission.
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.SendTimeout = d }
}

// WithRateLimit caps sends per second. Zero disables limiting.
func WithRateLimit(limit float64, burst int) Option {
	return func(o *options) {
		o.cfg.RateLimit = limit
		o.cfg.RateBurst = burst
	}
}

// WithCircuitBreaker opens the breaker after failures consecutive failed
// sends and keeps it open for timeout.
func WithCircuitBreaker(failures uint32, timeout time.Duration) Option {
	return func(o *options) {
		o.cfg.BreakerFailures = failures
		o.cfg.BreakerTimeout = timeout
	}
}

// WithHTTPClient sets the client used by the default transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithConnectivityOracle replaces the interface-based reachability check.
func WithConnectivityOracle(c ConnectivityOracle) Option {
	return func(o *options) { o.oracle = c }
}

// WithEnvironmentProvider replaces the host description probe.
func WithEnvironmentProvider(p EnvironmentProvider) Option {
	return func(o *options) { o.env = p }
}

// WithSpillQueue replaces the file-backed spool.
func WithSpillQueue(q SpillQueue) Option {
	return func(o *options) { o.queue = q }
}

// WithMetrics registers the delivery metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithWrapperTypes registers extra carrier error types at construction.
func WithWrapperTypes(types ...reflect.Type) Option {
	return func(o *options) { o.wrappers = append(o.wrappers, types...) }
}

// WithIgnoredHeaders replaces the header names left out of snapshots.
func WithIgnoredHeaders(names ...string) Option {
	return func(o *options) { o.cfg.IgnoreHeaders = names }
}

// WithIgnoredFormFields replaces the query and form names left out of snapshots.
func WithIgnoredFormFields(names ...string) Option {
	return func(o *options) { o.cfg.IgnoreFormFields = names }
}

// WithIgnoredCookies replaces the cookie names left out of snapshots.
func WithIgnoredCookies(names ...string) Option {
	return func(o *options) { o.cfg.IgnoreCookies = names }
}

// WithIgnoredServerVariables replaces the server variable names left out of snapshots.
func WithIgnoredServerVariables(names ...string) Option {
	return func(o *options) { o.cfg.IgnoreServerVariables = names }
}

type sendOptions struct {
	tags       []string
	customData map[string]any
	request    RequestContext
	user       *UserIdentity
}

// SendOption adds context to a single report.
type SendOption func(*sendOptions)

// WithTags attaches tags. Duplicates are kept.
func WithTags(tags ...string) SendOption {
	return func(o *sendOptions) { o.tags = append(o.tags, tags...) }
}

// WithCustomData attaches arbitrary data. The map is copied.
func WithCustomData(data map[string]any) SendOption {
	return func(o *sendOptions) { o.customData = data }
}

// WithRequest attaches a snapshot of r. Wrap the request with
// Client.Middleware to keep the body readable after the handler consumed it.
func WithRequest(r *http.Request) SendOption {
	return func(o *sendOptions) {
		if r != nil {
			o.request = NewHTTPRequest(r)
		}
	}
}

// WithRequestContext attaches a snapshot of a non net/http request.
func WithRequestContext(rc RequestContext) SendOption {
	return func(o *sendOptions) { o.request = rc }
}

// WithUser overrides the client-wide user for this report.
func WithUser(u *UserIdentity) SendOption {
	return func(o *sendOptions) { o.user = u }
}
