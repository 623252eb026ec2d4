package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mcpq/internal/domain"
)

// run is the scheduler loop. Ticks never overlap: each tick finishes its
// bookkeeping before the next fires, while dispatched calls proceed
// independently up to the concurrency ceiling.
func (q *RequestQueue) run() {
	defer close(q.loopDone)
	ticker := time.NewTicker(q.cfg.ProcessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.tick()
		}
	}
}

// tick promotes eligible pending requests into the active set, respecting
// the concurrency ceiling and the rate-limit budget, and fires their
// dispatches without waiting on them.
func (q *RequestQueue) tick() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	now := q.now()
	for len(q.active) < q.cfg.MaxConcurrent {
		idx := q.nextEligibleLocked(now)
		if idx < 0 {
			break
		}
		if q.limiter != nil && !q.limiter.allow(now) {
			if q.cfg.EnableDebugging {
				q.logger.Debug("rate limit window exhausted",
					zap.Int("pending", len(q.pending)))
			}
			break
		}

		req := q.pending[idx]
		q.pending = append(q.pending[:idx], q.pending[idx+1:]...)

		req.status = domain.StatusActive
		req.startedAt = now
		req.attempts++
		q.active[req.id] = req

		if q.cfg.EnableDebugging {
			q.logger.Debug("request dispatched",
				zap.String("requestId", req.id),
				zap.String("method", string(req.method)),
				zap.Int("attempt", req.attempts),
			)
		}
		go q.dispatch(req)
	}
	q.updateGaugesLocked()
}

// nextEligibleLocked returns the index of the first pending request whose
// retry backoff has elapsed. The list is already in dispatch order, so the
// first eligible entry is the correct pick even when the head is delayed.
func (q *RequestQueue) nextEligibleLocked(now time.Time) int {
	for i, req := range q.pending {
		if req.eligibleAt.IsZero() || !req.eligibleAt.After(now) {
			return i
		}
	}
	return -1
}

func (q *RequestQueue) dispatch(req *request) {
	ctx, cancel := context.WithTimeout(context.Background(), req.timeout)
	defer cancel()

	start := time.Now()
	result, err := q.call(ctx, req)
	q.complete(req, result, err, time.Since(start))
}

// call resolves the transport operation for the request's method. Unknown
// methods are rejected at enqueue time; this guard is defensive.
func (q *RequestQueue) call(ctx context.Context, req *request) (json.RawMessage, error) {
	switch req.method {
	case domain.MethodCallTool:
		return q.transport.CallTool(ctx, req.params.ToolName, req.params.Arguments)
	case domain.MethodReadResource:
		return q.transport.ReadResource(ctx, req.params.URI)
	case domain.MethodGetPrompt:
		return q.transport.GetPrompt(ctx, req.params.PromptName, req.params.PromptArgs)
	default:
		return nil, domain.ErrUnsupportedMethod
	}
}

// complete records the outcome of one dispatch attempt. Requests that were
// cancelled while in flight are no longer active; their results are dropped.
func (q *RequestQueue) complete(req *request, result json.RawMessage, err error, elapsed time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if req.status != domain.StatusActive {
		return
	}
	delete(q.active, req.id)

	if q.metrics != nil {
		q.metrics.ObserveDispatch(req.method, elapsed, err)
	}

	if err == nil {
		req.status = domain.StatusCompleted
		q.completedRequests++
		q.observeProcessTimeLocked(elapsed)
		req.ticket.settle(result, nil)
		q.emit(domain.QueueEvent{
			Kind:      domain.QueueEventCompleted,
			RequestID: req.id,
			Method:    req.method,
			Priority:  req.priority,
		})
		q.updateGaugesLocked()
		return
	}

	if req.attempts < req.maxRetries && !q.closed {
		delay := retryDelay(q.cfg.RetryBaseDelay, q.cfg.RetryMaxDelay, req.attempts)
		req.status = domain.StatusPending
		q.seq++
		req.seq = q.seq
		req.eligibleAt = q.now().Add(delay)
		q.insertPendingLocked(req)
		if q.metrics != nil {
			q.metrics.ObserveRetry(req.method)
		}
		q.logger.Warn("dispatch failed, retrying",
			zap.String("requestId", req.id),
			zap.String("method", string(req.method)),
			zap.Int("attempt", req.attempts),
			zap.Int("maxRetries", req.maxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		q.updateGaugesLocked()
		return
	}

	req.status = domain.StatusFailed
	q.failedRequests++
	q.observeProcessTimeLocked(elapsed)
	finalErr := finalError(err, req)
	req.ticket.settle(nil, finalErr)
	q.logger.Warn("request failed",
		zap.String("requestId", req.id),
		zap.String("method", string(req.method)),
		zap.Int("attempts", req.attempts),
		zap.Error(finalErr),
	)
	q.emit(domain.QueueEvent{
		Kind:      domain.QueueEventFailed,
		RequestID: req.id,
		Method:    req.method,
		Priority:  req.priority,
		Err:       finalErr,
	})
	q.updateGaugesLocked()
}

// observeProcessTimeLocked maintains the incremental mean over all settled
// dispatches.
func (q *RequestQueue) observeProcessTimeLocked(elapsed time.Duration) {
	settled := q.completedRequests + q.failedRequests
	if settled == 0 {
		return
	}
	prev := q.avgProcessTime
	q.avgProcessTime = prev + (elapsed-prev)/time.Duration(settled)
}

// retryDelay is baseDelay * 2^(attempts-1), capped at maxDelay.
func retryDelay(base, max time.Duration, attempts int) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// finalError wraps a timeout so callers can match ErrRequestTimeout; other
// transport errors surface with the original message preserved.
func finalError(err error, req *request) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %d attempts (%s)", domain.ErrRequestTimeout, req.attempts, req.timeout)
	}
	return err
}
