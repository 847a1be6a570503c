package service

import (
	"context"
	"fmt"
	"time"

	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/identity"
	"github.com/psds-microservice/cityfix-service/internal/kafka"
	"github.com/psds-microservice/cityfix-service/internal/logger"
	"github.com/psds-microservice/cityfix-service/internal/metrics"
	"github.com/psds-microservice/cityfix-service/internal/model"
	"github.com/psds-microservice/cityfix-service/internal/notify"
	"github.com/psds-microservice/cityfix-service/internal/repository"
	"go.uber.org/zap"
)

const eventTimeout = 5 * time.Second

// Text limits in characters, matching the column sizes.
const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
	maxAddressLen     = 255
	maxCommentLen     = 2000
)

// Notifier queues a message for asynchronous delivery and reports whether it was accepted.
type Notifier interface {
	Enqueue(msg notify.Message) bool
}

type LocationInput struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}

type CreateTicketInput struct {
	Title          string        `json:"title" validate:"required,max=200"`
	Description    string        `json:"description" validate:"max=5000"`
	Category       string        `json:"category" validate:"omitempty,ticket_category"`
	Location       LocationInput `json:"location" validate:"required"`
	Address        string        `json:"address" validate:"max=255"`
	AuthorID       string        `json:"authorId" validate:"required,max=64"`
	MunicipalityID string        `json:"municipalityId" validate:"omitempty,max=64"`
}

type ListTicketsInput struct {
	Status         string `json:"status" validate:"omitempty,ticket_status"`
	MunicipalityID string `json:"municipalityId" validate:"max=64"`
	OperatorID     string `json:"assignedOperatorId" validate:"max=64"`
	AuthorID       string `json:"authorId" validate:"max=64"`
	Category       string `json:"category" validate:"omitempty,ticket_category"`
	Limit          int    `json:"limit" validate:"min=0,max=1000"`
	Offset         int    `json:"offset" validate:"min=0"`
}

type AssignTicketInput struct {
	OperatorID string `json:"operatorId" validate:"required,max=64"`
}

type AttachPhotoInput struct {
	URL string `json:"url" validate:"required,http_url,max=2048"`
}

type AddCommentInput struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// TicketDeps are the collaborators of TicketService. Notifier, Events and Metrics are optional.
type TicketDeps struct {
	Store    repository.TicketStore
	Resolver TenantResolver
	Notifier Notifier
	Events   kafka.TicketEventProducer
	Metrics  *metrics.Metrics
}

// TicketService runs the ticket lifecycle: intake, scoped listing and assignment.
type TicketService struct {
	TicketDeps
	now func() time.Time
}

func NewTicketService(d TicketDeps) *TicketService {
	return &TicketService{TicketDeps: d, now: repository.UTCNow}
}

// scope is the data partition a caller may see.
type scope struct {
	tenantID string
	authorID string
}

func scopeOf(c identity.Caller) (scope, error) {
	switch {
	case c.Role == identity.RoleConsortiumAdmin:
		return scope{}, nil
	case c.Role.TenantBound():
		if c.TenantID == "" {
			return scope{}, fmt.Errorf("%w: %s without tenant", errs.ErrForbidden, c.Role)
		}
		return scope{tenantID: c.TenantID}, nil
	case c.Role == identity.RoleCitizen:
		return scope{authorID: c.UserID}, nil
	default:
		return scope{}, fmt.Errorf("%w: unknown role %q", errs.ErrForbidden, c.Role)
	}
}

func (s scope) match(id string) repository.TicketMatch {
	return repository.TicketMatch{ID: id, TenantID: s.tenantID, AuthorID: s.authorID}
}

func (s scope) allows(t *model.Ticket) bool {
	if s.tenantID != "" && t.TenantID != s.tenantID {
		return false
	}
	if s.authorID != "" && t.AuthorID != s.authorID {
		return false
	}
	return true
}

// Create validates and sanitizes the report, resolves its tenant from the
// location and persists it as received. Nothing is stored when the location is
// outside every municipality.
func (s *TicketService) Create(ctx context.Context, caller identity.Caller, in CreateTicketInput) (*model.Ticket, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if caller.Role == identity.RoleCitizen && in.AuthorID != caller.UserID {
		return nil, fmt.Errorf("%w: citizens report tickets as themselves", errs.ErrForbidden)
	}
	title, err := sanitizeField("title", in.Title, maxTitleLen)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", errs.ErrBadInput)
	}
	description, err := sanitizeField("description", in.Description, maxDescriptionLen)
	if err != nil {
		return nil, err
	}
	address, err := sanitizeField("address", in.Address, maxAddressLen)
	if err != nil {
		return nil, err
	}

	res, err := s.Resolver.Resolve(ctx, in.Location.Lng, in.Location.Lat)
	if err != nil {
		return nil, err
	}
	if in.MunicipalityID != "" && in.MunicipalityID != res.TenantID {
		return nil, fmt.Errorf("%w: location belongs to %s, not %s", errs.ErrBadInput, res.TenantID, in.MunicipalityID)
	}

	t := &model.Ticket{
		Title:       title,
		Description: description,
		Category:    model.Category(in.Category),
		Status:      model.TicketStatusReceived,
		Location: model.Location{
			Lng:     *in.Location.Lng,
			Lat:     *in.Location.Lat,
			Address: address,
		},
		AuthorID: in.AuthorID,
		TenantID: res.TenantID,
	}
	if _, err := s.Store.Create(ctx, t); err != nil {
		return nil, err
	}

	s.Metrics.TicketCreated(t.TenantID)
	s.publish(kafka.EventTicketCreated, t)
	logger.FromContext(ctx).Info("ticket created",
		zap.String("ticket_id", t.ID),
		zap.String("tenant_id", t.TenantID),
		zap.String("author_id", t.AuthorID),
	)
	return t, nil
}

// List returns matching tickets newest first together with the total match count.
// Filters that fall outside the caller's scope yield an empty result.
func (s *TicketService) List(ctx context.Context, caller identity.Caller, in ListTicketsInput) ([]model.Ticket, int64, error) {
	if err := validateInput(in); err != nil {
		return nil, 0, err
	}
	sc, err := scopeOf(caller)
	if err != nil {
		return nil, 0, err
	}
	f := repository.TicketFilter{
		Status:     model.TicketStatus(in.Status),
		TenantID:   in.MunicipalityID,
		OperatorID: in.OperatorID,
		AuthorID:   in.AuthorID,
		Category:   model.Category(in.Category),
		Limit:      in.Limit,
		Offset:     in.Offset,
	}
	if sc.tenantID != "" {
		if f.TenantID != "" && f.TenantID != sc.tenantID {
			return []model.Ticket{}, 0, nil
		}
		f.TenantID = sc.tenantID
	}
	if sc.authorID != "" {
		if f.AuthorID != "" && f.AuthorID != sc.authorID {
			return []model.Ticket{}, 0, nil
		}
		f.AuthorID = sc.authorID
	}

	items, err := repository.Collect(s.Store.List(ctx, f))
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(items))
	if f.Limit > 0 || f.Offset > 0 {
		if total, err = s.Store.Count(ctx, f); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

// Get returns a ticket visible to caller; tickets outside the caller's scope are reported as not found.
func (s *TicketService) Get(ctx context.Context, caller identity.Caller, id string) (*model.Ticket, error) {
	sc, err := scopeOf(caller)
	if err != nil {
		return nil, err
	}
	t, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sc.allows(t) {
		return nil, errs.ErrTicketNotFound
	}
	return t, nil
}

// Assign moves a ticket to in_progress under operatorID. Re-assigning an
// in-progress ticket replaces its operator; resolved and rejected tickets
// cannot be assigned.
func (s *TicketService) Assign(ctx context.Context, caller identity.Caller, id string, in AssignTicketInput) (*model.Ticket, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	sc, err := scopeOf(caller)
	if err != nil {
		return nil, err
	}
	if caller.Role == identity.RoleCitizen {
		return nil, fmt.Errorf("%w: citizens cannot assign tickets", errs.ErrForbidden)
	}

	next := model.TicketStatusInProgress
	m := sc.match(id)
	m.Statuses = model.StatusesLeadingTo(next)
	ok, err := s.Store.UpdateStatus(ctx, m, repository.TicketPatch{Status: &next, OperatorID: &in.OperatorID})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.explainMiss(ctx, sc, id, next)
	}

	t, err := s.Store.GetByID(ctx, id)
	if err != nil {
		// The assignment is committed; answer from the patch instead of failing the request.
		logger.FromContext(ctx).Warn("re-read after assignment failed",
			zap.String("ticket_id", id), zap.Error(err))
		t = &model.Ticket{ID: id, Status: next, OperatorID: in.OperatorID, TenantID: sc.tenantID}
		t.Normalize()
	}
	s.Metrics.TicketAssigned()
	s.notifyAssigned(ctx, t)
	s.publish(kafka.EventTicketAssigned, t)
	logger.FromContext(ctx).Info("ticket assigned",
		zap.String("ticket_id", t.ID),
		zap.String("tenant_id", t.TenantID),
		zap.String("operator_id", t.OperatorID),
		zap.String("assigned_by", caller.UserID),
	)
	return t, nil
}

// explainMiss tells apart an unknown or out-of-scope ticket from one whose status forbids next.
func (s *TicketService) explainMiss(ctx context.Context, sc scope, id string, next model.TicketStatus) error {
	t, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !sc.allows(t) {
		return errs.ErrTicketNotFound
	}
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: ticket is already %s", errs.ErrInvalidTransition, t.Status)
	}
	return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, t.Status, next)
}

func (s *TicketService) AttachPhoto(ctx context.Context, caller identity.Caller, id string, in AttachPhotoInput) (*model.Ticket, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	sc, err := scopeOf(caller)
	if err != nil {
		return nil, err
	}
	ok, err := s.Store.AppendPhoto(ctx, sc.match(id), in.URL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	return s.Store.GetByID(ctx, id)
}

func (s *TicketService) AddComment(ctx context.Context, caller identity.Caller, id string, in AddCommentInput) (*model.Ticket, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	sc, err := scopeOf(caller)
	if err != nil {
		return nil, err
	}
	text, err := sanitizeField("text", in.Text, maxCommentLen)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", errs.ErrBadInput)
	}
	c := model.Comment{AuthorID: caller.UserID, Text: text, CreatedAt: s.now()}
	ok, err := s.Store.AppendComment(ctx, sc.match(id), c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	return s.Store.GetByID(ctx, id)
}

func (s *TicketService) notifyAssigned(ctx context.Context, t *model.Ticket) {
	if s.Notifier == nil {
		return
	}
	text := fmt.Sprintf("Ticket %s has been assigned to you.", t.ID)
	if t.Title != "" {
		text = fmt.Sprintf("Ticket %s (%q) has been assigned to you.", t.ID, t.Title)
	}
	msg := notify.Message{Recipient: t.OperatorID, Message: text}
	if !s.Notifier.Enqueue(msg) {
		logger.FromContext(ctx).Warn("assignment notification dropped", zap.String("ticket_id", t.ID))
	}
}

// publish sends the event from its own goroutine so a slow broker never delays the request.
func (s *TicketService) publish(event string, t *model.Ticket) {
	if s.Events == nil {
		return
	}
	payload := kafka.TicketPayload(t)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		s.Events.ProduceTicketEvent(ctx, event, payload)
	}()
}
