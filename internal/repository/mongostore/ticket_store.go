package mongostore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/model"
	"github.com/psds-microservice/cityfix-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ repository.TicketStore = (*TicketStore)(nil)

type TicketStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewTicketStore(db *mongo.Database) *TicketStore {
	return &TicketStore{coll: db.Collection(ticketsCollection), now: repository.UTCNow}
}

// BSON dates carry milliseconds only.
func (s *TicketStore) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *TicketStore) Create(ctx context.Context, t *model.Ticket) (string, error) {
	if strings.TrimSpace(t.Title) == "" {
		return "", fmt.Errorf("%w: title is required", errs.ErrBadInput)
	}
	if t.TenantID == "" {
		return "", fmt.Errorf("%w: tenant_id is required", errs.ErrBadInput)
	}
	now := s.clock()
	t.ID = repository.NewTicketID(now)
	if t.Status == "" {
		t.Status = model.TicketStatusReceived
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Normalize()
	if _, err := s.coll.InsertOne(ctx, t); err != nil {
		return "", repository.Unavailable(err)
	}
	return t.ID, nil
}

func (s *TicketStore) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, repository.Unavailable(err)
	}
	t.Normalize()
	return &t, nil
}

func ticketFilter(f repository.TicketFilter) bson.M {
	q := bson.M{}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.TenantID != "" {
		q["tenant_id"] = f.TenantID
	}
	if f.OperatorID != "" {
		q["operator_id"] = f.OperatorID
	}
	if f.AuthorID != "" {
		q["author_id"] = f.AuthorID
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	return q
}

func (s *TicketStore) List(ctx context.Context, f repository.TicketFilter) iter.Seq2[model.Ticket, error] {
	return func(yield func(model.Ticket, error) bool) {
		opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
		if f.Limit > 0 {
			opts.SetLimit(int64(f.Limit))
		}
		if f.Offset > 0 {
			opts.SetSkip(int64(f.Offset))
		}
		cur, err := s.coll.Find(ctx, ticketFilter(f), opts)
		if err != nil {
			yield(model.Ticket{}, repository.Unavailable(err))
			return
		}
		defer cur.Close(context.WithoutCancel(ctx))
		for cur.Next(ctx) {
			var t model.Ticket
			if err := cur.Decode(&t); err != nil {
				yield(model.Ticket{}, repository.Unavailable(err))
				return
			}
			t.Normalize()
			if !yield(t, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(model.Ticket{}, repository.Unavailable(err))
		}
	}
}

func (s *TicketStore) Count(ctx context.Context, f repository.TicketFilter) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, ticketFilter(f))
	if err != nil {
		return 0, repository.Unavailable(err)
	}
	return n, nil
}

func matchFilter(m repository.TicketMatch) bson.M {
	q := bson.M{"_id": m.ID}
	if m.TenantID != "" {
		q["tenant_id"] = m.TenantID
	}
	if m.AuthorID != "" {
		q["author_id"] = m.AuthorID
	}
	if len(m.Statuses) > 0 {
		q["status"] = bson.M{"$in": m.Statuses}
	}
	return q
}

func (s *TicketStore) UpdateStatus(ctx context.Context, m repository.TicketMatch, p repository.TicketPatch) (bool, error) {
	set := bson.M{"updated_at": s.clock()}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.OperatorID != nil {
		set["operator_id"] = *p.OperatorID
	}
	return s.update(ctx, m, bson.M{"$set": set})
}

func (s *TicketStore) AppendPhoto(ctx context.Context, m repository.TicketMatch, url string) (bool, error) {
	return s.update(ctx, m, bson.M{
		"$push": bson.M{"photos": url},
		"$set":  bson.M{"updated_at": s.clock()},
	})
}

func (s *TicketStore) AppendComment(ctx context.Context, m repository.TicketMatch, c model.Comment) (bool, error) {
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Millisecond)
	return s.update(ctx, m, bson.M{
		"$push": bson.M{"comments": c},
		"$set":  bson.M{"updated_at": s.clock()},
	})
}

func (s *TicketStore) update(ctx context.Context, m repository.TicketMatch, update bson.M) (bool, error) {
	res, err := s.coll.UpdateOne(ctx, matchFilter(m), update)
	if err != nil {
		return false, repository.Unavailable(err)
	}
	return res.MatchedCount > 0, nil
}
