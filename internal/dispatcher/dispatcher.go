// Package dispatcher decides where an inbound request is duplicated and
// sends the copies, either inline or from a worker pool.
package dispatcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"traffic-duplicator/internal/circuitbreaker"
	"traffic-duplicator/internal/common/errors"
	httpclient "traffic-duplicator/internal/common/http"
	"traffic-duplicator/internal/common/logging"
	"traffic-duplicator/internal/common/ratelimit"
	"traffic-duplicator/internal/models"
	"traffic-duplicator/internal/routing"
	"traffic-duplicator/internal/wire"
	"traffic-duplicator/internal/workerpool"
)

// MaxDupCount is the duplication count at which a request is no longer
// duplicated. It stops amplification through proxy loops.
const MaxDupCount = 4

// Names of the counters merged into the pool stats line
const (
	StatDuplicated    = "duplicated"
	StatTimeouts      = "timeouts"
	StatErrors        = "errors"
	StatLoopRejected  = "loop_rejected"
	StatThrottled     = "throttled"
	StatMissingAnswer = "missing_answer"
	StatBreakerOpen   = "breaker_open"
)

var errMissingAnswer = stderrors.New("request has no captured answer")

// Client sends outbound copies. Each worker owns one.
type Client interface {
	httpclient.Performer
	Close()
}

// ClientFactory builds the client of one worker
type ClientFactory func() Client

// Config selects the dispatch mode and per-call behaviour
type Config struct {
	Name        string
	Synchronous bool
	Timeout     time.Duration
	Amplify     bool
}

// Option customises a Dispatcher
type Option func(*Dispatcher)

// WithLimiter caps copies per destination
func WithLimiter(limiter ratelimit.KeyedLimiter) Option {
	return func(d *Dispatcher) {
		d.limiter = limiter
	}
}

// WithSampler replaces the default sampler
func WithSampler(sampler *Sampler) Option {
	return func(d *Dispatcher) {
		d.sampler = sampler
	}
}

// Stats is a read of the dispatcher counters
type Stats struct {
	Duplicated    int64
	Timeouts      int64
	Errors        int64
	LoopRejected  int64
	Throttled     int64
	MissingAnswer int64
	BreakerOpen   int64
}

// Dispatcher matches requests against the rules and sends the copies
type Dispatcher struct {
	rules       *routing.Rules
	clients     ClientFactory
	client      Client
	pool        *workerpool.Pool[*models.Request]
	sampler     *Sampler
	limiter     ratelimit.KeyedLimiter
	synchronous bool
	timeout     time.Duration
	logger      logging.Logger

	duplicated    atomic.Int64
	timeouts      atomic.Int64
	errors        atomic.Int64
	loopRejected  atomic.Int64
	throttled     atomic.Int64
	missingAnswer atomic.Int64
	breakerOpen   atomic.Int64
}

// New creates a dispatcher. It always owns a pool: in asynchronous mode the
// pool workers send the copies, in synchronous mode the pool only emits the
// periodic stats and should be bounded to zero idle workers.
func New(rules *routing.Rules, clients ClientFactory, cfg Config, opts ...Option) *Dispatcher {
	name := cfg.Name
	if name == "" {
		name = "dispatch"
	}

	d := &Dispatcher{
		rules:       rules,
		clients:     clients,
		sampler:     NewSampler(cfg.Amplify),
		synchronous: cfg.Synchronous,
		timeout:     cfg.Timeout,
		logger: logging.GetGlobalLogger().WithFields(
			logging.Field{Key: "component", Value: "dispatcher"},
		),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.synchronous {
		d.client = clients()
	}

	d.pool = workerpool.New[*models.Request](name, d.newConsumer)
	d.pool.AddStatProvider(StatDuplicated, func() int64 { return d.duplicated.Swap(0) })
	d.pool.AddStatProvider(StatTimeouts, func() int64 { return d.timeouts.Swap(0) })
	d.pool.AddStatProvider(StatErrors, func() int64 { return d.errors.Swap(0) })
	d.pool.AddStatProvider(StatLoopRejected, func() int64 { return d.loopRejected.Swap(0) })
	d.pool.AddStatProvider(StatThrottled, func() int64 { return d.throttled.Swap(0) })
	d.pool.AddStatProvider(StatMissingAnswer, func() int64 { return d.missingAnswer.Swap(0) })
	d.pool.AddStatProvider(StatBreakerOpen, func() int64 { return d.breakerOpen.Swap(0) })
	d.pool.AddReporter(failureReporter{logger: d.logger})

	return d
}

// Pool returns the pool owned by the dispatcher
func (d *Dispatcher) Pool() *workerpool.Pool[*models.Request] {
	return d.pool
}

// Threads returns the number of live workers
func (d *Dispatcher) Threads() int {
	return d.pool.Threads()
}

// QueueSize returns the number of queued requests
func (d *Dispatcher) QueueSize() int {
	return d.pool.QueueSize()
}

// Synchronous reports the dispatch mode
func (d *Dispatcher) Synchronous() bool {
	return d.synchronous
}

// Mode names the dispatch mode
func (d *Dispatcher) Mode() string {
	if d.synchronous {
		return "synchronous"
	}
	return "asynchronous"
}

// Start starts the pool
func (d *Dispatcher) Start() error {
	return d.pool.Start()
}

// Close stops the pool and releases the inline client
func (d *Dispatcher) Close() {
	d.pool.Stop()
	if d.client != nil {
		d.client.Close()
	}
}

// NeedsAnswer reports whether requests on path must carry the original
// answer before Dispatch is called
func (d *Dispatcher) NeedsAnswer(path string) bool {
	loc := d.rules.Lookup(path)
	return loc != nil && loc.NeedsAnswer()
}

// ProcessRequest returns the destinations req may be duplicated to
func (d *Dispatcher) ProcessRequest(req *models.Request) []routing.MatchedFilter {
	matches, _ := d.match(req)
	return matches
}

// Dispatch duplicates req. In synchronous mode it returns whether at least
// one copy was sent. In asynchronous mode req is handed over to the pool
// and must not be used by the caller afterwards; the result tells whether
// the queue accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.Request) bool {
	if req.DupCount() >= MaxDupCount {
		d.loopRejected.Add(1)
		return false
	}
	if d.synchronous {
		return d.process(ctx, d.client, req) > 0
	}
	return d.pool.Push(req)
}

// GetAndResetStats reads and zeroes the counters
func (d *Dispatcher) GetAndResetStats() Stats {
	return Stats{
		Duplicated:    d.duplicated.Swap(0),
		Timeouts:      d.timeouts.Swap(0),
		Errors:        d.errors.Swap(0),
		LoopRejected:  d.loopRejected.Swap(0),
		Throttled:     d.throttled.Swap(0),
		MissingAnswer: d.missingAnswer.Swap(0),
		BreakerOpen:   d.breakerOpen.Swap(0),
	}
}

func (d *Dispatcher) match(req *models.Request) ([]routing.MatchedFilter, *routing.ParsedRequest) {
	loc := d.rules.Lookup(req.Path)
	if loc == nil {
		return nil, nil
	}
	p := routing.NewParsedRequest(req)
	return loc.Evaluate(p), p
}

type outbound struct {
	destination string
	copies      int
	request     *httpclient.Request
}

// process sends every copy of req and returns how many were sent. All
// outbound requests are built before the first one goes out.
func (d *Dispatcher) process(ctx context.Context, client Client, req *models.Request) int {
	matches, p := d.match(req)
	if len(matches) == 0 {
		return 0
	}

	logger := d.logger.WithContext(ctx)
	dupCount := req.DupCount()

	planned := make([]outbound, 0, len(matches))
	for _, m := range matches {
		copies := d.sampler.Copies(m.Commands.Percentage)
		if copies == 0 {
			continue
		}
		out, err := d.buildOutbound(m.Commands, p, dupCount)
		if err != nil {
			d.missingAnswer.Add(1)
			logger.Debug("Skipping destination",
				logging.Field{Key: "destination", Value: m.Destination()},
				logging.Err(err),
			)
			continue
		}
		planned = append(planned, outbound{destination: m.Destination(), copies: copies, request: out})
	}

	sent := 0
	for _, out := range planned {
		for i := 0; i < out.copies; i++ {
			if d.limiter != nil && !d.limiter.TryAcquireForKey(out.destination) {
				d.throttled.Add(1)
				continue
			}
			if d.send(ctx, logger, client, out) {
				sent++
			}
		}
	}
	return sent
}

func (d *Dispatcher) send(ctx context.Context, logger logging.Logger, client Client, out outbound) bool {
	resp, err := client.Perform(ctx, out.request)
	if err != nil {
		if errors.IsTimeout(err) {
			d.timeouts.Add(1)
			return false
		}
		d.errors.Add(1)
		if stderrors.Is(err, circuitbreaker.ErrOpen) {
			d.breakerOpen.Add(1)
			return false
		}
		logger.Warn("Duplication failed",
			logging.Field{Key: "destination", Value: out.destination},
			logging.Field{Key: "error_type", Value: string(errors.GetType(err))},
			logging.Err(err),
		)
		return false
	}

	d.duplicated.Add(1)
	logger.Debug("Request duplicated",
		logging.Field{Key: "destination", Value: out.destination},
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Duration("duration", resp.Duration),
	)
	return true
}

func (d *Dispatcher) buildOutbound(c *routing.Commands, p *routing.ParsedRequest, dupCount int) (*httpclient.Request, error) {
	req := p.Request
	t := c.Substitute(p)

	carrier := models.Request{Headers: append([]models.Header(nil), t.Headers...)}
	carrier.SetHeader(models.DupCountHeader, strconv.Itoa(dupCount+1))

	out := &httpclient.Request{
		Method:  req.Method,
		URL:     BuildURL(c.Destination, req.Path, t.Args),
		Headers: carrier.Headers,
		Timeout: d.timeout,
	}

	switch c.Type {
	case routing.HeaderOnly:
	case routing.CompleteRequest:
		out.Body = t.Body
	case routing.RequestWithAnswer:
		if req.Answer == nil {
			return nil, errMissingAnswer
		}
		payload, err := wire.Serialize(string(t.Body), req.Answer.HeaderBlock(), string(req.Answer.Body))
		if err != nil {
			return nil, err
		}
		out.Method = "POST"
		out.Body = []byte(payload)
	default:
		return nil, fmt.Errorf("unsupported duplication type %s", c.Type)
	}
	return out, nil
}

// BuildURL joins a destination (host[:port], optionally with a scheme), a
// path and a raw query string
func BuildURL(destination, path, args string) string {
	base := destination
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if args == "" {
		return base + path
	}
	return base + path + "?" + args
}

type consumer struct {
	d      *Dispatcher
	client Client
}

func (c *consumer) Consume(req *models.Request) {
	ctx := logging.ContextWithRequestID(context.Background(), req.ID)
	c.d.process(ctx, c.client, req)
}

func (c *consumer) Close() {
	c.client.Close()
}

func (d *Dispatcher) newConsumer(int) (workerpool.Consumer[*models.Request], error) {
	return &consumer{d: d, client: d.clients()}, nil
}

// failureReporter warns once per stats period about copies that timed out
// or were rejected by an open breaker
type failureReporter struct {
	logger logging.Logger
}

func (r failureReporter) Report(_ context.Context, snapshot workerpool.Snapshot) error {
	if n := snapshot.Providers[StatTimeouts]; n > 0 {
		r.logger.Warn("Duplicated calls timed out", logging.Int64("timeouts", n))
	}
	if n := snapshot.Providers[StatBreakerOpen]; n > 0 {
		r.logger.Warn("Duplicated calls rejected by open breakers", logging.Int64("rejected", n))
	}
	return nil
}
