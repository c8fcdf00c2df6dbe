package queue

import (
	"context"
	"time"
)

// Client is what producers use to add jobs with the deployment's retry budget.
type Client struct {
	q           Queue
	maxAttempts int
	now         func() time.Time
}

func NewClient(q Queue, maxAttempts int) *Client {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Client{q: q, maxAttempts: maxAttempts, now: time.Now}
}

// Add enqueues p under its default id. The bool is false when an identical job is already pending.
func (c *Client) Add(ctx context.Context, p Payload) (Job, bool, error) {
	return c.AddWith(ctx, p, Options{})
}

func (c *Client) AddWith(ctx context.Context, p Payload, opts Options) (Job, bool, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = c.maxAttempts
	}
	j, err := NewJob(p, opts, c.now())
	if err != nil {
		return Job{}, false, err
	}
	added, err := c.q.Enqueue(ctx, j)
	if err != nil {
		return Job{}, false, err
	}
	return j, added, nil
}

func (c *Client) Queue() Queue { return c.q }
