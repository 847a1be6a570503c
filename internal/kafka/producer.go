package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/psds-microservice/cityfix-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventTicketCreated  = "ticket.created"
	EventTicketAssigned = "ticket.assigned"
)

// TicketEventProducer publishes ticket events; tests substitute a recorder.
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{})
}

// Producer writes ticket events to a topic keyed by tenant, best-effort.
type Producer struct {
	writer *kafka.Writer
	topic  string
	log    *zap.Logger
}

// NewProducer returns a producer. With no brokers or no topic every call is a no-op.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.L()
	}
	log = log.Named("kafka")
	if len(brokers) == 0 || topic == "" {
		return &Producer{log: log}
	}
	return &Producer{
		topic: topic,
		log:   log,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Producer) Enabled() bool {
	return p.writer != nil
}

// ProduceTicketEvent writes {"event": event, ...payload}. Messages of one tenant share a key.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	body, err := EncodeEvent(event, payload)
	if err != nil {
		p.log.Warn("marshal ticket event", zap.String("event", event), zap.Error(err))
		return
	}
	msg := kafka.Message{Value: body}
	if tenant, ok := payload["tenant_id"].(string); ok && tenant != "" {
		msg.Key = []byte(tenant)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("write ticket event", zap.String("event", event), zap.String("topic", p.topic), zap.Error(err))
	}
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func EncodeEvent(event string, payload map[string]interface{}) ([]byte, error) {
	msg := map[string]interface{}{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	return json.Marshal(msg)
}

// TicketPayload is the event body shared by every ticket event.
func TicketPayload(t *model.Ticket) map[string]interface{} {
	return map[string]interface{}{
		"ticket_id":   t.ID,
		"tenant_id":   t.TenantID,
		"author_id":   t.AuthorID,
		"operator_id": t.OperatorID,
		"title":       t.Title,
		"category":    string(t.Category),
		"status":      string(t.Status),
		"lng":         t.Location.Lng,
		"lat":         t.Location.Lat,
		"updated_at":  t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
