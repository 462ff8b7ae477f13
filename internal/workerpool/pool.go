// Package workerpool runs a self-sizing set of goroutines draining a bounded
// queue.
//
// A manager goroutine ticks at a fixed interval. On every tick it reaps
// workers that have exited, then takes at most one sizing action: spawn a
// worker when the backlog per worker exceeds the upper queue bound, or ask
// one worker to exit (by queueing a termination envelope at the front) when
// the backlog falls below the lower bound. Every stats interval it drains
// the queue counters and the registered stat providers into one log line
// and hands the same snapshot to the registered reporters.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "traffic-duplicator/internal/common/errors"
	"traffic-duplicator/internal/common/logging"
	"traffic-duplicator/internal/queue"
)

const (
	DefaultTickInterval  = 100 * time.Millisecond
	DefaultStatsInterval = time.Second

	reportTimeout = 500 * time.Millisecond
)

var (
	// ErrPoolRunning is returned by Start on a pool that is already running
	ErrPoolRunning = errors.New("worker pool is already running")
	// ErrNoConsumerFactory is returned by Start when no factory was given
	ErrNoConsumerFactory = errors.New("worker pool has no consumer factory")
)

// Consumer processes the items popped by one worker. It is created when the
// worker starts and closed when the worker exits, so it can own per-worker
// resources.
type Consumer[T any] interface {
	Consume(item T)
	Close()
}

// ConsumerFactory builds the consumer of a new worker
type ConsumerFactory[T any] func(workerID int) (Consumer[T], error)

// StatProvider returns a counter value; providers are expected to reset the
// counter on read.
type StatProvider func() int64

// Snapshot is one periodic statistics emission
type Snapshot struct {
	Pool      string           `json:"pool"`
	Time      time.Time        `json:"time"`
	Threads   int              `json:"threads"`
	Queued    int              `json:"queued"`
	In        int64            `json:"in"`
	Out       int64            `json:"out"`
	Drop      int64            `json:"drop"`
	Crashes   int64            `json:"crashes"`
	Providers map[string]int64 `json:"providers,omitempty"`
}

// Reporter receives every statistics snapshot
type Reporter interface {
	Report(ctx context.Context, snapshot Snapshot) error
}

type envelope[T any] struct {
	value  T
	poison bool
}

type worker struct {
	id       int
	done     chan struct{}
	poisoned bool
	crashed  bool
}

type namedProvider struct {
	name string
	fn   StatProvider
}

// Pool keeps between min and max workers consuming a shared queue
type Pool[T any] struct {
	name    string
	factory ConsumerFactory[T]
	queue   *queue.Queue[envelope[T]]
	logger  logging.Logger

	mu            sync.Mutex
	minThreads    int
	maxThreads    int
	minQueued     int
	maxQueued     int
	tick          time.Duration
	statsInterval time.Duration
	providers     []namedProvider
	reporters     []Reporter

	workers     map[int]*worker
	beingKilled int
	nextID      int
	running     bool
	stop        chan struct{}
	managerDone chan struct{}

	crashes atomic.Int64
}

// New creates a stopped pool with one worker, queue bounds of 10..100 items
// per worker and an unbounded queue.
func New[T any](name string, factory ConsumerFactory[T]) *Pool[T] {
	return &Pool[T]{
		name:    name,
		factory: factory,
		queue:   queue.New[envelope[T]](0),
		logger: logging.GetGlobalLogger().WithFields(
			logging.Field{Key: "component", Value: "workerpool"},
			logging.Field{Key: "pool", Value: name},
		),
		minThreads:    1,
		maxThreads:    1,
		minQueued:     10,
		maxQueued:     100,
		tick:          DefaultTickInterval,
		statsInterval: DefaultStatsInterval,
		workers:       make(map[int]*worker),
	}
}

// SetThreadBounds sets the minimum and maximum number of workers
func (p *Pool[T]) SetThreadBounds(min, max int) error {
	if min < 0 || max < 1 || min > max {
		return apperrors.ConfigError(fmt.Sprintf("invalid thread bounds: min=%d max=%d", min, max))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minThreads, p.maxThreads = min, max
	return nil
}

// SetQueueBounds sets the per-worker backlog below which the pool shrinks and
// above which it grows
func (p *Pool[T]) SetQueueBounds(minPerThread, maxPerThread int) error {
	if minPerThread < 0 || maxPerThread < 0 || minPerThread > maxPerThread {
		return apperrors.ConfigError(fmt.Sprintf("invalid queue bounds: min=%d max=%d", minPerThread, maxPerThread))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minQueued, p.maxQueued = minPerThread, maxPerThread
	return nil
}

// SetStatsInterval sets how often statistics are emitted. It is rounded down
// to a whole number of ticks, with a minimum of one tick.
func (p *Pool[T]) SetStatsInterval(d time.Duration) error {
	if d <= 0 {
		return apperrors.ConfigError(fmt.Sprintf("invalid stats interval: %s", d))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statsInterval = d
	return nil
}

// SetTickInterval sets the manager period. It takes effect on the next Start.
func (p *Pool[T]) SetTickInterval(d time.Duration) error {
	if d <= 0 {
		return apperrors.ConfigError(fmt.Sprintf("invalid tick interval: %s", d))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick = d
	return nil
}

// SetDropThreshold bounds the queue; 0 disables dropping
func (p *Pool[T]) SetDropThreshold(n int) {
	p.queue.SetDropThreshold(n)
}

// AddStatProvider registers a named counter merged into each stats emission
func (p *Pool[T]) AddStatProvider(name string, fn StatProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.providers = append(p.providers, namedProvider{name: name, fn: fn})
}

// AddReporter registers a sink for stats snapshots
func (p *Pool[T]) AddReporter(r Reporter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reporters = append(p.reporters, r)
}

// Push queues item for a worker. It returns false when the queue was full
// and the item was dropped.
func (p *Pool[T]) Push(item T) bool {
	return p.queue.Push(envelope[T]{value: item})
}

// Threads returns the number of workers currently in the roster
func (p *Pool[T]) Threads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// QueueSize returns the number of queued items
func (p *Pool[T]) QueueSize() int {
	return p.queue.Size()
}

// Running reports whether the pool has been started and not stopped
func (p *Pool[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start spawns the minimum number of workers and the manager goroutine
func (p *Pool[T]) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPoolRunning
	}
	if p.factory == nil {
		return ErrNoConsumerFactory
	}

	p.workers = make(map[int]*worker)
	p.beingKilled = 0
	for i := 0; i < p.minThreads; i++ {
		p.spawnLocked()
	}

	p.stop = make(chan struct{})
	p.managerDone = make(chan struct{})
	p.running = true
	go p.manage(p.stop, p.managerDone, p.tick)

	p.logger.Info("Worker pool started",
		logging.Field{Key: "min_threads", Value: p.minThreads},
		logging.Field{Key: "max_threads", Value: p.maxThreads},
	)
	return nil
}

// Stop terminates every worker and the manager. It returns once all of them
// have exited. Items still queued are kept for the next Start.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop, done := p.stop, p.managerDone
	p.mu.Unlock()

	close(stop)
	<-done
	p.logger.Info("Worker pool stopped")
}

func (p *Pool[T]) manage(stop <-chan struct{}, done chan<- struct{}, tick time.Duration) {
	defer close(done)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-stop:
			p.shutdown()
			return
		case <-ticker.C:
			p.adjust()
			ticks++
			if ticks >= p.ticksPerStats(tick) {
				ticks = 0
				p.emitStats()
			}
		}
	}
}

func (p *Pool[T]) ticksPerStats(tick time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return max(1, int(p.statsInterval/tick))
}

// adjust takes at most one sizing action
func (p *Pool[T]) adjust() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reapLocked()

	count := len(p.workers)
	queued := p.queue.Size()
	perThread := queued
	if count > 0 {
		perThread = queued / count
	}

	switch {
	case count < p.minThreads:
		p.spawnLocked()
	case count == 0 && queued > 0 && p.maxThreads > 0:
		// an empty roster never sees a per-thread backlog
		p.spawnLocked()
		p.logger.Debug("Worker added for idle backlog", logging.Field{Key: "queued", Value: queued})
	case perThread > p.maxQueued && count < p.maxThreads:
		p.spawnLocked()
		p.logger.Debug("Worker added", logging.Field{Key: "threads", Value: count + 1}, logging.Field{Key: "queued", Value: queued})
	case perThread < p.minQueued && count-p.beingKilled > p.minThreads:
		p.queue.PushFront(envelope[T]{poison: true})
		p.beingKilled++
		p.logger.Debug("Worker removal requested", logging.Field{Key: "threads", Value: count}, logging.Field{Key: "queued", Value: queued})
	}
}

func (p *Pool[T]) reapLocked() {
	for id, w := range p.workers {
		select {
		case <-w.done:
			delete(p.workers, id)
			if w.poisoned && p.beingKilled > 0 {
				p.beingKilled--
			}
		default:
		}
	}
}

func (p *Pool[T]) spawnLocked() {
	p.nextID++
	w := &worker{id: p.nextID, done: make(chan struct{})}
	p.workers[w.id] = w
	go p.runWorker(w)
}

func (p *Pool[T]) runWorker(w *worker) {
	defer close(w.done)

	consumer, err := p.factory(w.id)
	if err != nil {
		p.logger.Error("Failed to create worker consumer", err, logging.Field{Key: "worker_id", Value: w.id})
		w.crashed = true
		p.crashes.Add(1)
		return
	}
	defer consumer.Close()

	for {
		env := p.queue.Pop()
		if env.poison {
			w.poisoned = true
			return
		}
		if !p.consume(w, consumer, env.value) {
			w.crashed = true
			p.crashes.Add(1)
			return
		}
	}
}

func (p *Pool[T]) consume(w *worker, consumer Consumer[T], item T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker exited abnormally", fmt.Errorf("panic: %v", r), logging.Field{Key: "worker_id", Value: w.id})
			ok = false
		}
	}()
	consumer.Consume(item)
	return true
}

// shutdown sends one termination envelope per worker that is not already
// on its way out, waits for all of them, then purges leftover envelopes.
func (p *Pool[T]) shutdown() {
	p.mu.Lock()
	p.reapLocked()
	pending := max(0, len(p.workers)-p.beingKilled)
	for i := 0; i < pending; i++ {
		p.queue.PushFront(envelope[T]{poison: true})
	}
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	for _, w := range workers {
		<-w.done
	}

	p.mu.Lock()
	p.workers = make(map[int]*worker)
	p.beingKilled = 0
	p.mu.Unlock()

	if stale := p.queue.RemoveFunc(func(e envelope[T]) bool { return e.poison }); stale > 0 {
		p.logger.Debug("Purged stale termination envelopes", logging.Field{Key: "count", Value: stale})
	}

	p.emitStats()
}

func (p *Pool[T]) emitStats() {
	counters := p.queue.GetAndResetCounters()

	p.mu.Lock()
	providers := append([]namedProvider(nil), p.providers...)
	reporters := append([]Reporter(nil), p.reporters...)
	threads := len(p.workers)
	p.mu.Unlock()

	snapshot := Snapshot{
		Pool:      p.name,
		Time:      time.Now(),
		Threads:   threads,
		Queued:    p.queue.Size(),
		In:        counters.In,
		Out:       counters.Out,
		Drop:      counters.Drop,
		Crashes:   p.crashes.Swap(0),
		Providers: make(map[string]int64, len(providers)),
	}

	fields := []logging.Field{
		{Key: "threads", Value: snapshot.Threads},
		{Key: "queued", Value: snapshot.Queued},
		{Key: "in", Value: snapshot.In},
		{Key: "out", Value: snapshot.Out},
		{Key: "drop", Value: snapshot.Drop},
		{Key: "crashes", Value: snapshot.Crashes},
	}
	for _, provider := range providers {
		value := provider.fn()
		snapshot.Providers[provider.name] = value
		fields = append(fields, logging.Field{Key: provider.name, Value: value})
	}

	p.logger.Info("Pool stats", fields...)
	if snapshot.Drop > 0 {
		p.logger.Warn("Queue full, requests dropped", logging.Field{Key: "drop", Value: snapshot.Drop})
	}

	for _, reporter := range reporters {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		if err := reporter.Report(ctx, snapshot); err != nil {
			p.logger.Warn("Stats reporter failed", logging.Err(err))
		}
		cancel()
	}
}
