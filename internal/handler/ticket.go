package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/service"
)

type TicketHandler struct {
	svc *service.TicketService
}

func NewTicketHandler(svc *service.TicketService) *TicketHandler {
	return &TicketHandler{svc: svc}
}

// Create handles POST /api/v1/tickets.
func (h *TicketHandler) Create(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		writeError(c, errs.ErrUnauthenticated)
		return
	}
	var req service.CreateTicketInput
	if err := bindStrictJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	t, err := h.svc.Create(c.Request.Context(), caller, req)
	if err != nil {
		if errors.Is(err, errs.ErrUnresolved) {
			_ = c.Error(err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "message": errs.ErrUnresolved.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

var listQueryKeys = []string{"status", "municipalityId", "assignedOperatorId", "authorId", "category", "limit", "offset"}

// List handles GET /api/v1/tickets. The body is the page of tickets, newest
// first; X-Total-Count carries the number of matches.
func (h *TicketHandler) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		writeError(c, errs.ErrUnauthenticated)
		return
	}
	if err := checkQueryKeys(c.Request.URL.Query(), listQueryKeys...); err != nil {
		writeError(c, err)
		return
	}
	in := service.ListTicketsInput{
		Status:         c.Query("status"),
		MunicipalityID: c.Query("municipalityId"),
		OperatorID:     c.Query("assignedOperatorId"),
		AuthorID:       c.Query("authorId"),
		Category:       c.Query("category"),
	}
	var err error
	if in.Limit, err = queryInt(c, "limit"); err != nil {
		writeError(c, err)
		return
	}
	if in.Offset, err = queryInt(c, "offset"); err != nil {
		writeError(c, err)
		return
	}

	items, total, err := h.svc.List(c.Request.Context(), caller, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, items)
}

// Get handles GET /api/v1/tickets/:id.
func (h *TicketHandler) Get(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		writeError(c, errs.ErrUnauthenticated)
		return
	}
	t, err := h.svc.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Assign handles POST /api/v1/tickets/:id/assign.
func (h *TicketHandler) Assign(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		writeError(c, errs.ErrUnauthenticated)
		return
	}
	var req service.AssignTicketInput
	if err := bindStrictJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	t, err := h.svc.Assign(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "ticket assigned", "ticket": t})
}

// AttachPhoto handles POST /api/v1/tickets/:id/photos.
func (h *TicketHandler) AttachPhoto(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		writeError(c, errs.ErrUnauthenticated)
		return
	}
	var req service.AttachPhotoInput
	if err := bindStrictJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	t, err := h.svc.AttachPhoto(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// AddComment handles POST /api/v1/tickets/:id/comments.
func (h *TicketHandler) AddComment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		writeError(c, errs.ErrUnauthenticated)
		return
	}
	var req service.AddCommentInput
	if err := bindStrictJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	t, err := h.svc.AddComment(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", errs.ErrBadInput, key, v)
	}
	return n, nil
}
