package queue

import (
	"context"
	"reflect"
	"strings"
	"time"
)

// Queue is the message-enqueue collaborator. Scheduled tasks push work
// for downstream consumers through it; nothing in this core ever
// dequeues. A zero delay means immediate visibility.
type Queue interface {
	Put(ctx context.Context, queueName string, msg interface{}, delay time.Duration) error
	PutRange(ctx context.Context, queueName string, msgs []interface{}, delay time.Duration) error
	Close() error
}

// NameFor derives the implicit queue name from a message's logical
// type: lower-cased type name without package path or pointer marks.
func NameFor(msg interface{}) string {
	t := reflect.TypeOf(msg)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return strings.ToLower(name)
}
