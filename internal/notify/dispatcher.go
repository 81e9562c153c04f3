// Package notify publishes best-effort notifications on terminal transitions.
// Delivery to the customer (email/SMS) is owned by a downstream consumer.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitleak/lmstfy/client"
	"go.uber.org/zap"
)

// notification kind
const (
	KindPaymentCaptured = "payment_captured"
	KindPaymentFailed   = "payment_failed"
	KindDeliveryUpdate  = "delivery_update"
)

const (
	jobTTLSeconds = 24 * 60 * 60
	jobTries      = 3
)

// Notifier is fire-and-forget notification channel. Failures must never
// roll back the state transition that triggered the notification.
type Notifier interface {
	Notify(ctx context.Context, kind, recipient string, payload map[string]string) error
}

// Message is the job body consumed by the notification workers
type Message struct {
	Kind      string            `json:"kind"`
	Recipient string            `json:"recipient"`
	Payload   map[string]string `json:"payload"`
	SentAt    int64             `json:"sent_at"`
}

// LmstfyDispatcher publishes notification jobs to a lmstfy queue
type LmstfyDispatcher struct {
	cli   *client.LmstfyClient
	queue string
}

// NewLmstfyDispatcher creates new LmstfyDispatcher instance
func NewLmstfyDispatcher(host string, port int, namespace, token, queue string) *LmstfyDispatcher {
	return &LmstfyDispatcher{
		cli:   client.NewLmstfyClient(host, port, namespace, token),
		queue: queue,
	}
}

// Notify publishes one notification job
func (d *LmstfyDispatcher) Notify(_ context.Context, kind, recipient string, payload map[string]string) error {
	msg := Message{
		Kind:      kind,
		Recipient: recipient,
		Payload:   payload,
		SentAt:    time.Now().Unix(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if _, err := d.cli.Publish(d.queue, data, jobTTLSeconds, jobTries, 0); err != nil {
		return fmt.Errorf("lmstfy publish failed: %w", err)
	}

	return nil
}

// dispatch timeout for one detached notification attempt
const dispatchTimeout = 10 * time.Second

// Async decorates a Notifier so that callers never block on the channel and
// never observe its failures. At-most-once delivery attempt.
type Async struct {
	next   Notifier
	logger *zap.Logger
}

// NewAsync creates new Async instance
func NewAsync(next Notifier, logger *zap.Logger) *Async {
	return &Async{next: next, logger: logger}
}

// Notify schedules the notification and returns immediately
func (a *Async) Notify(ctx context.Context, kind, recipient string, payload map[string]string) error {
	go func() {
		// detached from the caller: a disconnected client must not cancel dispatch
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()

		if err := a.next.Notify(ctx, kind, recipient, payload); err != nil {
			a.logger.Error("notification dispatch failed",
				zap.String("kind", kind),
				zap.String("recipient", recipient),
				zap.Error(err))
		}
	}()

	return nil
}

// Nop discards notifications, used when no queue is configured
type Nop struct{}

func NewNop() *Nop { return &Nop{} }

func (*Nop) Notify(context.Context, string, string, map[string]string) error { return nil }
