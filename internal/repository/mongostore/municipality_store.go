package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/model"
	"github.com/psds-microservice/cityfix-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/datatypes"
)

var _ repository.MunicipalityStore = (*MunicipalityStore)(nil)

type municipalityDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Slug         string    `bson:"slug"`
	Boundary     bson.D    `bson:"boundary"`
	MinLng       float64   `bson:"min_lng"`
	MinLat       float64   `bson:"min_lat"`
	MaxLng       float64   `bson:"max_lng"`
	MaxLat       float64   `bson:"max_lat"`
	ManagerID    string    `bson:"manager_id,omitempty"`
	PrimaryColor string    `bson:"primary_color,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
}

func toDoc(m *model.Municipality) (*municipalityDoc, error) {
	var boundary bson.D
	if err := bson.UnmarshalExtJSON(m.Boundary, false, &boundary); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidBoundary, err)
	}
	return &municipalityDoc{
		ID:           m.ID,
		Name:         m.Name,
		Slug:         m.Slug,
		Boundary:     boundary,
		MinLng:       m.MinLng,
		MinLat:       m.MinLat,
		MaxLng:       m.MaxLng,
		MaxLat:       m.MaxLat,
		ManagerID:    m.ManagerID,
		PrimaryColor: m.PrimaryColor,
		CreatedAt:    m.CreatedAt.UTC().Truncate(time.Millisecond),
	}, nil
}

func (d *municipalityDoc) model() (*model.Municipality, error) {
	raw, err := bson.MarshalExtJSON(d.Boundary, false, false)
	if err != nil {
		return nil, fmt.Errorf("municipality %s boundary: %w", d.ID, err)
	}
	return &model.Municipality{
		ID:           d.ID,
		Name:         d.Name,
		Slug:         d.Slug,
		Boundary:     datatypes.JSON(raw),
		MinLng:       d.MinLng,
		MinLat:       d.MinLat,
		MaxLng:       d.MaxLng,
		MaxLat:       d.MaxLat,
		ManagerID:    d.ManagerID,
		PrimaryColor: d.PrimaryColor,
		CreatedAt:    d.CreatedAt.UTC(),
	}, nil
}

type MunicipalityStore struct {
	coll *mongo.Collection
}

func NewMunicipalityStore(db *mongo.Database) *MunicipalityStore {
	return &MunicipalityStore{coll: db.Collection(municipalitiesCollection)}
}

// registration order; also the tie-break between overlapping boundaries
var registrationOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

func (s *MunicipalityStore) Create(ctx context.Context, m *model.Municipality) error {
	doc, err := toDoc(m)
	if err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("municipality %q: %w", m.Slug, errs.ErrDuplicate)
		}
		return repository.Unavailable(err)
	}
	return nil
}

func (s *MunicipalityStore) findOne(ctx context.Context, filter bson.M) (*model.Municipality, error) {
	var doc municipalityDoc
	err := s.coll.FindOne(ctx, filter, options.FindOne().SetSort(registrationOrder)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, repository.Unavailable(err)
	}
	return doc.model()
}

func (s *MunicipalityStore) GetByID(ctx context.Context, id string) (*model.Municipality, error) {
	m, err := s.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errs.ErrMunicipalityNotFound
	}
	return m, nil
}

func (s *MunicipalityStore) List(ctx context.Context) ([]model.Municipality, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(registrationOrder))
	if err != nil {
		return nil, repository.Unavailable(err)
	}
	var docs []municipalityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, repository.Unavailable(err)
	}
	items := make([]model.Municipality, 0, len(docs))
	for i := range docs {
		m, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	return items, nil
}

func (s *MunicipalityStore) FindContaining(ctx context.Context, p orb.Point) (*model.Municipality, error) {
	return s.findOne(ctx, bson.M{
		"boundary": bson.M{
			"$geoIntersects": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": bson.A{p.Lon(), p.Lat()},
				},
			},
		},
	})
}
