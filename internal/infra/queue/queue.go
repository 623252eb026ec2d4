package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcpq/internal/domain"
)

// Config holds the queue tunables. Values are fixed for the instance's
// lifetime; zero fields fall back to the domain defaults.
type Config struct {
	// MaxSize bounds pending plus active requests.
	MaxSize int
	// MaxConcurrent bounds requests in flight at once.
	MaxConcurrent int
	// ProcessInterval is the scheduler tick period.
	ProcessInterval time.Duration
	// EnablePriority orders pending requests by priority. When false the
	// queue is pure FIFO.
	EnablePriority bool
	// EnableRateLimit caps dispatches per window.
	EnableRateLimit bool
	RateLimit       int
	RateLimitWindow time.Duration
	// RequestTimeout is the default per-request deadline.
	RequestTimeout time.Duration
	// MaxRetries is the default total attempt budget per request.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// EnableDebugging emits per-decision debug logs.
	EnableDebugging bool
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = domain.DefaultMaxQueueSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = domain.DefaultMaxConcurrent
	}
	if c.ProcessInterval <= 0 {
		c.ProcessInterval = domain.DefaultProcessInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = domain.DefaultRequestTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = domain.DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = domain.DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = domain.DefaultRetryMaxDelay
	}
	return c
}

// Options configures queue collaborators.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	Events  domain.QueueEventEmitter
}

// RequestQueue orders, dispatches, and retries MCP requests against a
// transport. The pending list, active set, and statistics share one mutex;
// they are always touched together.
type RequestQueue struct {
	cfg       Config
	transport domain.Transport
	logger    *zap.Logger
	metrics   domain.Metrics
	events    domain.QueueEventEmitter

	mu      sync.Mutex
	pending []*request
	active  map[string]*request
	limiter *windowLimiter
	seq     uint64
	closed  bool

	totalRequests     uint64
	completedRequests uint64
	failedRequests    uint64
	avgProcessTime    time.Duration

	stop     chan struct{}
	loopDone chan struct{}
	now      func() time.Time
}

type request struct {
	id         string
	method     domain.RequestMethod
	params     domain.RequestParams
	priority   domain.Priority
	tags       []string
	maxRetries int
	timeout    time.Duration

	status     domain.RequestStatus
	attempts   int
	seq        uint64
	eligibleAt time.Time
	enqueuedAt time.Time
	startedAt  time.Time

	ticket *Ticket
}

// New constructs a running queue bound to the given transport. The scheduler
// loop starts immediately and runs until Close.
func New(transport domain.Transport, cfg Config, opts Options) *RequestQueue {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	q := &RequestQueue{
		cfg:       cfg,
		transport: transport,
		logger:    logger.Named("queue"),
		metrics:   opts.Metrics,
		events:    opts.Events,
		active:    make(map[string]*request),
		stop:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		now:       time.Now,
	}
	if cfg.EnableRateLimit {
		q.limiter = newWindowLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}
	go q.run()
	return q
}

// Enqueue accepts a request for dispatch and returns its completion handle.
// Structural failures (unknown method, capacity, closed queue) surface
// immediately and consume no queue slot.
func (q *RequestQueue) Enqueue(method domain.RequestMethod, params domain.RequestParams, opts domain.RequestOptions) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.observeRejected(domain.RejectQueueClosed)
		return nil, domain.ErrQueueClosed
	}
	if !domain.MethodSupported(method) {
		q.observeRejected(domain.RejectUnsupportedMethod)
		return nil, domain.ErrUnsupportedMethod
	}
	if len(q.pending)+len(q.active) >= q.cfg.MaxSize {
		q.observeRejected(domain.RejectQueueFull)
		return nil, domain.ErrQueueFull
	}

	priority := domain.PriorityNormal
	if opts.Priority != nil {
		priority = *opts.Priority
	}
	maxRetries := q.cfg.MaxRetries
	if opts.MaxRetries != nil && *opts.MaxRetries > 0 {
		maxRetries = *opts.MaxRetries
	}
	timeout := q.cfg.RequestTimeout
	if opts.Timeout != nil && *opts.Timeout > 0 {
		timeout = *opts.Timeout
	}

	q.seq++
	req := &request{
		id:         uuid.NewString(),
		method:     method,
		params:     params,
		priority:   priority,
		tags:       append([]string(nil), opts.Tags...),
		maxRetries: maxRetries,
		timeout:    timeout,
		status:     domain.StatusPending,
		seq:        q.seq,
		enqueuedAt: q.now(),
		ticket:     nil,
	}
	req.ticket = newTicket(req.id)

	q.insertPendingLocked(req)
	q.totalRequests++
	q.updateGaugesLocked()

	if q.cfg.EnableDebugging {
		q.logger.Debug("request enqueued",
			zap.String("requestId", req.id),
			zap.String("method", string(method)),
			zap.String("priority", priority.String()),
			zap.Strings("tags", req.tags),
		)
	}
	q.emit(domain.QueueEvent{
		Kind:      domain.QueueEventEnqueued,
		RequestID: req.id,
		Method:    method,
		Priority:  priority,
	})
	return req.ticket, nil
}

// insertPendingLocked keeps the pending list sorted by (priority desc,
// seq asc), or pure arrival order when priority is disabled. Retries get a
// fresh seq so they compete fairly with newer work at the same priority.
func (q *RequestQueue) insertPendingLocked(req *request) {
	idx := sort.Search(len(q.pending), func(i int) bool {
		other := q.pending[i]
		if q.cfg.EnablePriority && other.priority != req.priority {
			return other.priority < req.priority
		}
		return other.seq > req.seq
	})
	q.pending = append(q.pending, nil)
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = req
}

// Clear cancels every pending request and discards the eventual results of
// requests already in flight. Their handles settle with ErrRequestCancelled.
func (q *RequestQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
}

func (q *RequestQueue) clearLocked() {
	for _, req := range q.pending {
		req.status = domain.StatusCancelled
		req.ticket.settle(nil, domain.ErrRequestCancelled)
		q.emit(domain.QueueEvent{
			Kind:      domain.QueueEventFailed,
			RequestID: req.id,
			Method:    req.method,
			Priority:  req.priority,
			Err:       domain.ErrRequestCancelled,
		})
	}
	q.pending = nil

	// In-flight transport calls cannot be preempted; mark them cancelled so
	// their late completions become no-ops.
	for id, req := range q.active {
		req.status = domain.StatusCancelled
		req.ticket.settle(nil, domain.ErrRequestCancelled)
		q.emit(domain.QueueEvent{
			Kind:      domain.QueueEventFailed,
			RequestID: req.id,
			Method:    req.method,
			Priority:  req.priority,
			Err:       domain.ErrRequestCancelled,
		})
		delete(q.active, id)
	}
	q.updateGaugesLocked()
}

// Close stops the scheduler loop, cancels all outstanding requests, and
// marks the queue dead. Enqueue afterwards fails with ErrQueueClosed.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.clearLocked()
	q.mu.Unlock()

	close(q.stop)
	<-q.loopDone
	q.logger.Info("queue closed")
}

// Status reports a point-in-time view of the queue.
func (q *RequestQueue) Status() domain.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	status := domain.QueueStatus{
		QueueSize:      len(q.pending),
		ActiveRequests: len(q.active),
		IsProcessing:   !q.closed,
	}
	if q.limiter != nil {
		usage := q.limiter.usage(q.now())
		status.RateLimit = &usage
	}
	return status
}

// Statistics reports dispatch aggregates since construction.
func (q *RequestQueue) Statistics() domain.QueueStatistics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return domain.QueueStatistics{
		TotalRequests:      q.totalRequests,
		CompletedRequests:  q.completedRequests,
		FailedRequests:     q.failedRequests,
		AverageProcessTime: q.avgProcessTime,
	}
}

func (q *RequestQueue) emit(event domain.QueueEvent) {
	if q.events == nil {
		return
	}
	q.events.EmitQueueEvent(event)
}

func (q *RequestQueue) observeRejected(reason domain.RejectReason) {
	if q.metrics == nil {
		return
	}
	q.metrics.ObserveEnqueueRejected(reason)
}

func (q *RequestQueue) updateGaugesLocked() {
	if q.metrics == nil {
		return
	}
	q.metrics.SetQueueDepth(len(q.pending))
	q.metrics.SetActiveRequests(len(q.active))
}
