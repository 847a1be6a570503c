package model

import (
	"time"

	"gorm.io/datatypes"
)

type TicketStatus string

const (
	TicketStatusReceived   TicketStatus = "received"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusRejected   TicketStatus = "rejected"
)

// resolved and rejected are terminal.
var ticketStatusTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusReceived:   {TicketStatusInProgress, TicketStatusRejected},
	TicketStatusInProgress: {TicketStatusInProgress, TicketStatusResolved, TicketStatusRejected},
	TicketStatusResolved:   {},
	TicketStatusRejected:   {},
}

var statuses = []TicketStatus{TicketStatusReceived, TicketStatusInProgress, TicketStatusResolved, TicketStatusRejected}

// Statuses lists every status in lifecycle order.
func Statuses() []TicketStatus {
	return append([]TicketStatus(nil), statuses...)
}

func (s TicketStatus) String() string {
	return string(s)
}

func (s TicketStatus) IsValid() bool {
	_, ok := ticketStatusTransitions[s]
	return ok
}

func (s TicketStatus) IsTerminal() bool {
	return s.IsValid() && len(ticketStatusTransitions[s]) == 0
}

func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range ticketStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StatusesLeadingTo returns every status from which next is reachable in one step,
// in a stable order. Stores use it to guard a transition inside a single update.
func StatusesLeadingTo(next TicketStatus) []TicketStatus {
	var out []TicketStatus
	for _, from := range statuses {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

type Category string

const (
	CategoryRoads     Category = "roads"
	CategoryGreen     Category = "green"
	CategoryBuildings Category = "buildings"
	CategoryWaste     Category = "waste"
	CategoryLighting  Category = "lighting"
	CategoryOther     Category = "other"
)

var categories = []Category{CategoryRoads, CategoryGreen, CategoryBuildings, CategoryWaste, CategoryLighting, CategoryOther}

func Categories() []Category {
	return append([]Category(nil), categories...)
}

func (c Category) IsValid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Location is a WGS84 coordinate in longitude, latitude order.
type Location struct {
	Lng     float64 `gorm:"column:lng;not null" json:"lng" bson:"lng"`
	Lat     float64 `gorm:"column:lat;not null" json:"lat" bson:"lat"`
	Address string  `gorm:"column:address;type:varchar(255)" json:"address,omitempty" bson:"address,omitempty"`
}

type Comment struct {
	AuthorID  string    `json:"author_id" bson:"author_id"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type Ticket struct {
	ID          string                       `gorm:"primaryKey;type:varchar(26)" json:"id" bson:"_id"`
	Title       string                       `gorm:"type:varchar(200);not null" json:"title" bson:"title"`
	Description string                       `gorm:"type:text" json:"description,omitempty" bson:"description,omitempty"`
	Category    Category                     `gorm:"type:varchar(32);index" json:"category,omitempty" bson:"category,omitempty"`
	Status      TicketStatus                 `gorm:"type:varchar(32);index;not null" json:"status" bson:"status"`
	Location    Location                     `gorm:"embedded" json:"location" bson:"location"`
	AuthorID    string                       `gorm:"index;not null" json:"author_id" bson:"author_id"`
	TenantID    string                       `gorm:"index;not null" json:"tenant_id" bson:"tenant_id"`
	OperatorID  string                       `gorm:"index" json:"operator_id,omitempty" bson:"operator_id,omitempty"`
	Photos      datatypes.JSONSlice[string]  `json:"photos" bson:"photos"`
	Comments    datatypes.JSONSlice[Comment] `json:"comments" bson:"comments"`

	CreatedAt time.Time `gorm:"index" json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Normalize puts timestamps in UTC and replaces nil collections with empty ones,
// so every serialized ticket has the same shape regardless of the backing store.
func (t *Ticket) Normalize() {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.Photos == nil {
		t.Photos = datatypes.JSONSlice[string]{}
	}
	if t.Comments == nil {
		t.Comments = datatypes.JSONSlice[Comment]{}
	}
	for i := range t.Comments {
		t.Comments[i].CreatedAt = t.Comments[i].CreatedAt.UTC()
	}
}

// Municipality is a tenant: the owner of every ticket reported inside its boundary.
type Municipality struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	Slug         string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	Boundary     datatypes.JSON `gorm:"not null" json:"boundary"`
	MinLng       float64        `gorm:"index:idx_municipalities_bbox" json:"-"`
	MinLat       float64        `gorm:"index:idx_municipalities_bbox" json:"-"`
	MaxLng       float64        `gorm:"index:idx_municipalities_bbox" json:"-"`
	MaxLat       float64        `gorm:"index:idx_municipalities_bbox" json:"-"`
	ManagerID    string         `gorm:"type:varchar(64)" json:"manager_id,omitempty"`
	PrimaryColor string         `gorm:"type:varchar(32)" json:"primary_color,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Normalize puts timestamps in UTC whatever zone the driver returned them in.
func (m *Municipality) Normalize() {
	m.CreatedAt = m.CreatedAt.UTC()
}
