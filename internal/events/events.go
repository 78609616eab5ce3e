// Package events carries domain events from the payment core to audit and notification sinks
// without letting sink latency or failure reach the caller.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/telemetry"
)

type Type string

const (
	PaymentCompleted Type = "payment.completed"
	ReceiverCreated  Type = "receiver.created"
)

type Event struct {
	Type               Type      `json:"type"`
	PaymentID          string    `json:"payment_id"`
	ExecutionCondition string    `json:"execution_condition"`
	Transfer           string    `json:"transfer,omitempty"`
	SourceAccount      string    `json:"source_account,omitempty"`
	SourceAmount       string    `json:"source_amount,omitempty"`
	DestinationAccount string    `json:"destination_account"`
	DestinationAmount  string    `json:"destination_amount"`
	Message            string    `json:"message,omitempty"`
	Display            string    `json:"display,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`

	// Recipients are local usernames to notify.
	Recipients []string `json:"-"`
}

type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Bus is a bounded in-process queue drained by a single goroutine. Publish never blocks;
// a full queue drops the event.
type Bus struct {
	ch      chan Event
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewBus(size int, logger *zap.Logger, sinks ...Sink) *Bus {
	return &Bus{
		ch:      make(chan Event, size),
		sinks:   sinks,
		timeout: 5 * time.Second,
		logger:  logger.Named("events"),
		done:    make(chan struct{}),
	}
}

func (b *Bus) Publish(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case b.ch <- ev:
	default:
		telemetry.EventsDroppedTotal.Inc()
		b.logger.Warn("Event bus full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("payment_id", ev.PaymentID),
			zap.String("execution_condition", ev.ExecutionCondition),
		)
	}
}

// Run delivers events until ctx is cancelled, then flushes what is already queued.
func (b *Bus) Run(ctx context.Context) {
	defer b.closeOnce.Do(func() { close(b.done) })

	for {
		select {
		case ev := <-b.ch:
			b.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-b.ch:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

func (b *Bus) deliver(ev Event) {
	for _, sink := range b.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		if err := sink.Deliver(ctx, ev); err != nil {
			b.logger.Error("Failed to deliver event",
				zap.String("sink", sink.Name()),
				zap.String("type", string(ev.Type)),
				zap.String("payment_id", ev.PaymentID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
