package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/psds-microservice/cityfix-service/internal/database"
	"github.com/psds-microservice/cityfix-service/internal/identity"
	"github.com/psds-microservice/cityfix-service/internal/model"
	"github.com/psds-microservice/cityfix-service/internal/notify"
	"github.com/psds-microservice/cityfix-service/internal/repository/gormstore"
)

const (
	springfieldBoundary = `{"type":"Polygon","coordinates":[[[0,0],[0,10],[10,10],[10,0],[0,0]]]}`
	shelbyvilleBoundary = `{"type":"Polygon","coordinates":[[[20,0],[20,10],[30,10],[30,0],[20,0]]]}`
)

var admin = identity.Caller{UserID: "admin-1", Role: identity.RoleConsortiumAdmin}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "cityfix.db")), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// steppingClock starts at start and advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func ptr(v float64) *float64 { return &v }

type memoryCache struct {
	mu          sync.Mutex
	gen         int64
	entries     map[string]Resolution
	gets        int
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]Resolution{}}
}

func (c *memoryCache) key(gen int64, p orb.Point) string {
	raw, _ := json.Marshal([]any{gen, p.Lon(), p.Lat()})
	return string(raw)
}

func (c *memoryCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *memoryCache) Get(_ context.Context, gen int64, p orb.Point) (Resolution, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	r, ok := c.entries[c.key(gen, p)]
	return r, ok, nil
}

func (c *memoryCache) Set(_ context.Context, gen int64, p orb.Point, r Resolution) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(gen, p)] = r
	return nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidated++
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Enqueue(msg notify.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return true
}

func (n *recordingNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}

type publishedEvent struct {
	name    string
	payload map[string]interface{}
}

type recordingProducer struct {
	events chan publishedEvent
}

func newRecordingProducer() *recordingProducer {
	return &recordingProducer{events: make(chan publishedEvent, 16)}
}

func (p *recordingProducer) ProduceTicketEvent(_ context.Context, event string, payload map[string]interface{}) {
	p.events <- publishedEvent{name: event, payload: payload}
}

func (p *recordingProducer) next(t *testing.T) publishedEvent {
	t.Helper()
	select {
	case e := <-p.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ticket event")
		return publishedEvent{}
	}
}

type fixture struct {
	db             *gorm.DB
	municipalities *MunicipalityService
	resolver       *Resolver
	tickets        *TicketService
	cache          *memoryCache
	notifier       *recordingNotifier
	events         *recordingProducer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	cache := newMemoryCache()
	munStore := gormstore.NewMunicipalityStore(db)
	municipalities := NewMunicipalityService(munStore, cache)
	municipalities.now = steppingClock(start)
	resolver := NewResolver(munStore, cache, nil)

	notifier := &recordingNotifier{}
	events := newRecordingProducer()
	tickets := NewTicketService(TicketDeps{
		Store:    gormstore.NewTicketStore(db).WithClock(steppingClock(start.Add(time.Hour))),
		Resolver: resolver,
		Notifier: notifier,
		Events:   events,
	})
	return &fixture{
		db:             db,
		municipalities: municipalities,
		resolver:       resolver,
		tickets:        tickets,
		cache:          cache,
		notifier:       notifier,
		events:         events,
	}
}

func (f *fixture) register(t *testing.T, name, boundary string) *model.Municipality {
	t.Helper()
	m, err := f.municipalities.Register(context.Background(), RegisterMunicipalityInput{
		Name:     name,
		Boundary: json.RawMessage(boundary),
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) report(t *testing.T, title string, lng, lat float64) *model.Ticket {
	t.Helper()
	tk, err := f.tickets.Create(context.Background(), admin, CreateTicketInput{
		Title:    title,
		Location: LocationInput{Lng: ptr(lng), Lat: ptr(lat)},
		AuthorID: "citizen-1",
	})
	require.NoError(t, err)
	return tk
}
