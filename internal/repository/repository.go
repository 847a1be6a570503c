// Package repository defines the storage contracts shared by the ticket and
// municipality services. gormstore and mongostore implement them.
package repository

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/paulmach/orb"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/model"
)

// TicketFilter is a conjunction of exact matches; zero-valued fields are unconstrained.
type TicketFilter struct {
	Status     model.TicketStatus
	TenantID   string
	OperatorID string
	AuthorID   string
	Category   model.Category

	Limit  int
	Offset int
}

// TicketMatch selects the single ticket a mutation applies to. TenantID, AuthorID
// and Statuses are optional guards evaluated in the same atomic update.
type TicketMatch struct {
	ID       string
	TenantID string
	AuthorID string
	Statuses []model.TicketStatus
}

// TicketPatch lists the fields a status update may change; nil fields are left alone.
// updated_at is always refreshed.
type TicketPatch struct {
	Status     *model.TicketStatus
	OperatorID *string
}

type TicketStore interface {
	// Create assigns id, status and timestamps and returns the new id.
	Create(ctx context.Context, t *model.Ticket) (string, error)
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	// List yields tickets newest first. Each range over the sequence re-runs the query.
	List(ctx context.Context, f TicketFilter) iter.Seq2[model.Ticket, error]
	Count(ctx context.Context, f TicketFilter) (int64, error)
	UpdateStatus(ctx context.Context, m TicketMatch, p TicketPatch) (bool, error)
	AppendPhoto(ctx context.Context, m TicketMatch, url string) (bool, error)
	AppendComment(ctx context.Context, m TicketMatch, c model.Comment) (bool, error)
}

type MunicipalityStore interface {
	Create(ctx context.Context, m *model.Municipality) error
	GetByID(ctx context.Context, id string) (*model.Municipality, error)
	List(ctx context.Context) ([]model.Municipality, error)
	// FindContaining returns the oldest registered municipality whose boundary
	// contains p, or nil when the point is not covered.
	FindContaining(ctx context.Context, p orb.Point) (*model.Municipality, error)
}

// Unavailable marks err as a persistence failure.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
}

// Collect drains a ticket sequence into a slice.
func Collect(seq iter.Seq2[model.Ticket, error]) ([]model.Ticket, error) {
	items := make([]model.Ticket, 0)
	for t, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, nil
}

// NewTicketID returns a ULID for now. IDs created by one process sort in creation order.
func NewTicketID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// UTCNow is the default store clock.
func UTCNow() time.Time {
	return time.Now().UTC()
}
