package notify

import (
	"context"
	"time"

	"github.com/psds-microservice/cityfix-service/internal/metrics"
	"go.uber.org/zap"
)

const sendTimeout = 5 * time.Second

// Dispatcher hands messages to a Sender on a single background worker.
// Enqueue never blocks: when the queue is full the message is dropped.
type Dispatcher struct {
	sender  Sender
	queue   chan Message
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewDispatcher(sender Sender, size int, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = zap.L()
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan Message, size),
		metrics: m,
		log:     log.Named("notify"),
	}
}

// Enqueue reports whether msg was queued.
func (d *Dispatcher) Enqueue(msg Message) bool {
	select {
	case d.queue <- msg:
		return true
	default:
		d.metrics.ObserveNotification(metrics.NotifyDropped)
		d.log.Warn("notification queue full, dropping message", zap.String("recipient", msg.Recipient))
		return false
	}
}

// Run delivers queued messages until ctx is done. Messages still queued at that
// point are discarded.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.log.Warn("notification dispatcher stopped with pending messages", zap.Int("pending", n))
			}
			return
		case msg := <-d.queue:
			d.deliver(msg)
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := d.sender.Send(ctx, msg); err != nil {
		d.metrics.ObserveNotification(metrics.NotifyFailed)
		d.log.Warn("notification delivery failed", zap.String("recipient", msg.Recipient), zap.Error(err))
		return
	}
	d.metrics.ObserveNotification(metrics.NotifySent)
	d.log.Debug("notification sent", zap.String("recipient", msg.Recipient))
}
