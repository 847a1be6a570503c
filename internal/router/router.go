package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/cityfix-service/api"
	"github.com/psds-microservice/cityfix-service/internal/handler"
	"github.com/psds-microservice/cityfix-service/internal/identity"
	"github.com/psds-microservice/cityfix-service/internal/logger"
	"github.com/psds-microservice/cityfix-service/internal/metrics"
	"github.com/psds-microservice/helpy/paths"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const pathMetrics = "/metrics"

type Deps struct {
	Tickets        *handler.TicketHandler
	Geo            *handler.GeoHandler
	Municipalities *handler.MunicipalityHandler
	Health         *handler.HealthHandler
	Authz          *identity.Authorizer
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	RequestTimeout time.Duration
}

func New(d Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(d.Log))
	r.Use(d.Metrics.GinMiddleware())

	r.GET(paths.PathHealth, d.Health.Health)
	r.GET(paths.PathReady, d.Health.Ready)
	r.GET(pathMetrics, gin.WrapH(d.Metrics.Handler()))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	v1.Use(handler.Timeout(d.RequestTimeout))
	{
		v1.POST("/geo/validate", d.Geo.Validate)
		v1.GET("/municipalities", d.Municipalities.List)
		v1.GET("/municipalities/:id", d.Municipalities.Get)
	}

	allow := func(obj, act string) gin.HandlerFunc { return handler.Authorize(d.Authz, obj, act) }

	authed := v1.Group("", handler.RequireCaller())
	{
		authed.POST("/municipalities", allow(identity.ObjectMunicipality, identity.ActionRegister), d.Municipalities.Register)

		authed.POST("/tickets", allow(identity.ObjectTicket, identity.ActionCreate), d.Tickets.Create)
		authed.GET("/tickets", allow(identity.ObjectTicket, identity.ActionList), d.Tickets.List)
		authed.GET("/tickets/:id", allow(identity.ObjectTicket, identity.ActionView), d.Tickets.Get)
		authed.POST("/tickets/:id/assign", allow(identity.ObjectTicket, identity.ActionAssign), d.Tickets.Assign)
		authed.POST("/tickets/:id/photos", allow(identity.ObjectTicket, identity.ActionAttachPhoto), d.Tickets.AttachPhoto)
		authed.POST("/tickets/:id/comments", allow(identity.ObjectTicket, identity.ActionComment), d.Tickets.AddComment)
	}

	return r
}
