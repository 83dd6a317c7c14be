package task

import (
	"context"
	"fmt"
	"time"

	"github.com/ben-moore/lokad-cloud/pkg/queue"
)

// Base provides the message-enqueue helpers to services that embed it.
// The helpers are pure pass-throughs to the queue collaborator; they
// impose no contract beyond forwarding parameters. A zero delay means
// immediate visibility.
type Base struct {
	q queue.Queue
}

// BindQueue attaches the queue collaborator. Called by NewRunner.
func (b *Base) BindQueue(q queue.Queue) { b.q = q }

// Put places one message on the queue named after its logical type
func (b *Base) Put(ctx context.Context, msg interface{}, delay time.Duration) error {
	return b.PutTo(ctx, queue.NameFor(msg), msg, delay)
}

// PutTo places one message on an explicitly named queue
func (b *Base) PutTo(ctx context.Context, queueName string, msg interface{}, delay time.Duration) error {
	if b.q == nil {
		return fmt.Errorf("no queue bound")
	}
	return b.q.Put(ctx, queueName, msg, delay)
}

// PutRange places many messages on the queue named after the logical
// type of the first message
func (b *Base) PutRange(ctx context.Context, msgs []interface{}, delay time.Duration) error {
	if len(msgs) == 0 {
		return nil
	}
	return b.PutRangeTo(ctx, queue.NameFor(msgs[0]), msgs, delay)
}

// PutRangeTo places many messages on an explicitly named queue
func (b *Base) PutRangeTo(ctx context.Context, queueName string, msgs []interface{}, delay time.Duration) error {
	if b.q == nil {
		return fmt.Errorf("no queue bound")
	}
	return b.q.PutRange(ctx, queueName, msgs, delay)
}
