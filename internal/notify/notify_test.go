package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_Send(t *testing.T) {
	var got Message
	var path, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"sent"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.True(t, c.Enabled())
	err := c.Send(context.Background(), Message{Recipient: "op1", Message: "ticket assigned"})
	require.NoError(t, err)
	assert.Equal(t, "/send", path)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, Message{Recipient: "op1", Message: "ticket assigned"}, got)
}

func TestClient_SendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Send(context.Background(), Message{Recipient: "op1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_DisabledIsNoop(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Send(context.Background(), Message{Recipient: "op1"}))
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
	done chan struct{}
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	if s.done != nil {
		s.done <- struct{}{}
	}
	return s.err
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	sender := &recordingSender{done: make(chan struct{}, 4)}
	d := NewDispatcher(sender, 4, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.True(t, d.Enqueue(Message{Recipient: "op1", Message: "a"}))
	require.True(t, d.Enqueue(Message{Recipient: "op2", Message: "b"}))
	for i := 0; i < 2; i++ {
		select {
		case <-sender.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, []Message{{Recipient: "op1", Message: "a"}, {Recipient: "op2", Message: "b"}}, sender.sent)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, 1, nil, zap.NewNop())

	assert.True(t, d.Enqueue(Message{Recipient: "op1"}))
	assert.False(t, d.Enqueue(Message{Recipient: "op2"}))
}

func TestDispatcher_SenderErrorDoesNotStopWorker(t *testing.T) {
	sender := &recordingSender{err: errors.New("boom"), done: make(chan struct{}, 2)}
	d := NewDispatcher(sender, 2, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(Message{Recipient: "op1"})
	d.Enqueue(Message{Recipient: "op2"})
	for i := 0; i < 2; i++ {
		select {
		case <-sender.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
}
