package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/psds-microservice/cityfix-service/internal/model"
)

func TestNewProducer_DisabledIsNoop(t *testing.T) {
	for _, p := range []*Producer{
		NewProducer(nil, "cityfix.tickets", zap.NewNop()),
		NewProducer([]string{"localhost:9092"}, "", zap.NewNop()),
	} {
		assert.False(t, p.Enabled())
		assert.NotPanics(t, func() {
			p.ProduceTicketEvent(context.Background(), EventTicketCreated, map[string]interface{}{"ticket_id": "x"})
		})
		assert.NoError(t, p.Close())
	}
}

func TestEncodeEvent(t *testing.T) {
	updated := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tk := &model.Ticket{
		ID:         "01HZX",
		Title:      "Pothole",
		Category:   model.CategoryRoads,
		Status:     model.TicketStatusInProgress,
		Location:   model.Location{Lng: 5, Lat: 5},
		AuthorID:   "citizen-1",
		TenantID:   "springfield",
		OperatorID: "op1",
		UpdatedAt:  updated,
	}

	body, err := EncodeEvent(EventTicketAssigned, TicketPayload(tk))
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "ticket.assigned", got["event"])
	assert.Equal(t, "01HZX", got["ticket_id"])
	assert.Equal(t, "springfield", got["tenant_id"])
	assert.Equal(t, "op1", got["operator_id"])
	assert.Equal(t, "in_progress", got["status"])
	assert.Equal(t, "roads", got["category"])
	assert.Equal(t, 5.0, got["lng"])
	assert.Equal(t, "2026-03-01T09:00:00Z", got["updated_at"])
}
