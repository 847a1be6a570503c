package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/cityfix-service/internal/errs"
)

const maxBodyBytes = 1 << 20

// bindStrictJSON decodes exactly one JSON object into dst, rejecting unknown fields.
func bindStrictJSON(c *gin.Context, dst any) error {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errs.ErrBadInput, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: body larger than %d bytes", errs.ErrBadInput, maxBodyBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", errs.ErrBadInput)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid body: %v", errs.ErrBadInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errs.ErrBadInput)
	}
	return nil
}

// checkQueryKeys rejects query parameters outside allowed.
func checkQueryKeys(q url.Values, allowed ...string) error {
	for key := range q {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: unknown query parameter %q", errs.ErrBadInput, key)
		}
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrBadInput), errors.Is(err, errs.ErrInvalidBoundary):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrTicketNotFound), errors.Is(err, errs.ErrMunicipalityNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidTransition), errors.Is(err, errs.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUnresolved):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError records err for the request log and writes {"error": ...}.
// Server-side failures are reported without their details.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = errs.ErrStoreUnavailable.Error()
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusUnauthorized:
		msg = errs.ErrUnauthenticated.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": strings.TrimSpace(msg)})
}
