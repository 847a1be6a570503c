package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/cityfix-service/internal/service"
)

type MunicipalityHandler struct {
	svc *service.MunicipalityService
}

func NewMunicipalityHandler(svc *service.MunicipalityService) *MunicipalityHandler {
	return &MunicipalityHandler{svc: svc}
}

func (h *MunicipalityHandler) Register(c *gin.Context) {
	var req service.RegisterMunicipalityInput
	if err := bindStrictJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	m, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *MunicipalityHandler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *MunicipalityHandler) Get(c *gin.Context) {
	m, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
