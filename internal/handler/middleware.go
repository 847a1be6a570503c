package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/identity"
)

// RequireCaller reads the gateway identity headers; requests without them are rejected with 401.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := identity.FromHeaders(c.Request.Header)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Request = c.Request.WithContext(identity.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

// Authorize lets the request through only if the caller's role may perform act on obj.
func Authorize(authz *identity.Authorizer, obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerFrom(c)
		if !ok {
			writeError(c, errs.ErrUnauthenticated)
			return
		}
		if err := authz.Authorize(caller, obj, act); err != nil {
			writeError(c, err)
			return
		}
		c.Next()
	}
}

// Timeout bounds the request context, and with it every store call made for the request.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func callerFrom(c *gin.Context) (identity.Caller, bool) {
	return identity.FromContext(c.Request.Context())
}
