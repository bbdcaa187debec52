package pipeline

import (
	"context"

	"github.com/filetrail/filetrail/pkg/activity"
	"github.com/filetrail/filetrail/pkg/config"
	"github.com/filetrail/filetrail/pkg/metrics"
)

// Queue is the bounded event queue between volume workers and the
// consumer. The overflow policy is explicit: producers either block until
// space frees, shed the oldest queued event, or shed the incoming one.
type Queue struct {
	ch     chan activity.Record
	policy string
}

// NewQueue creates a queue with the given capacity and overflow policy.
func NewQueue(size int, policy string) *Queue {
	if size <= 0 {
		size = 10000
	}
	switch policy {
	case config.OverflowBlock, config.OverflowDropOldest, config.OverflowDropNewest:
	default:
		policy = config.OverflowBlock
	}
	return &Queue{
		ch:     make(chan activity.Record, size),
		policy: policy,
	}
}

// Enqueue offers a record to the queue, honoring the overflow policy.
// Returns false when the record was shed or the context was cancelled.
func (q *Queue) Enqueue(ctx context.Context, rec activity.Record) bool {
	switch q.policy {
	case config.OverflowDropNewest:
		select {
		case q.ch <- rec:
			metrics.QueueDepth.Set(float64(len(q.ch)))
			return true
		default:
			metrics.QueueOverflow.WithLabelValues(q.policy).Inc()
			return false
		}

	case config.OverflowDropOldest:
		for {
			select {
			case q.ch <- rec:
				metrics.QueueDepth.Set(float64(len(q.ch)))
				return true
			case <-ctx.Done():
				return false
			default:
			}
			// Full: shed one queued record and retry. A concurrent
			// consumer may win the race, which is fine either way.
			select {
			case <-q.ch:
				metrics.QueueOverflow.WithLabelValues(q.policy).Inc()
			default:
			}
		}

	default: // block
		select {
		case q.ch <- rec:
			metrics.QueueDepth.Set(float64(len(q.ch)))
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// C exposes the receive side for the consumer.
func (q *Queue) C() <-chan activity.Record { return q.ch }

// Depth returns the number of queued records.
func (q *Queue) Depth() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
