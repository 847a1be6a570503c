package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/service"
)

type GeoHandler struct {
	resolver service.TenantResolver
}

func NewGeoHandler(resolver service.TenantResolver) *GeoHandler {
	return &GeoHandler{resolver: resolver}
}

type validateLocationRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Validate handles POST /api/v1/geo/validate: which municipality, if any, covers the point.
func (h *GeoHandler) Validate(c *gin.Context) {
	var req validateLocationRequest
	if err := bindStrictJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	res, err := h.resolver.Resolve(c.Request.Context(), req.Lng, req.Lat)
	if err != nil {
		if errors.Is(err, errs.ErrUnresolved) {
			c.JSON(http.StatusNotFound, gin.H{"valid": false, "message": errs.ErrUnresolved.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "tenant_id": res.TenantID, "name": res.Name})
}
