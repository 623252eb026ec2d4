package queue

import (
	"context"

	"mcpq/internal/domain"
)

// ExecuteBatch enqueues every request and waits for all of them to settle.
// Per-entry failures are reported inline and never raised; the only error
// returned is the caller's own context expiring.
func (q *RequestQueue) ExecuteBatch(ctx context.Context, requests []domain.BatchRequest) ([]domain.BatchResult, error) {
	results := make([]domain.BatchResult, len(requests))
	tickets := make([]*Ticket, len(requests))

	for i, entry := range requests {
		ticket, err := q.Enqueue(entry.Method, entry.Params, entry.Options)
		if err != nil {
			results[i] = domain.BatchResult{Err: err}
			continue
		}
		tickets[i] = ticket
	}

	for i, ticket := range tickets {
		if ticket == nil {
			continue
		}
		result, err := ticket.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			results[i] = domain.BatchResult{Err: err}
			continue
		}
		results[i] = domain.BatchResult{Success: true, Result: result}
	}
	return results, nil
}
