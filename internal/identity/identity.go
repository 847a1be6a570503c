// Package identity carries the caller established by the gateway and decides
// which role may perform which action.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/psds-microservice/cityfix-service/internal/errs"
)

// Headers set by the gateway after it has verified the session token.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
	HeaderTenantID = "X-Tenant-Id"
)

type Role string

const (
	RoleCitizen            Role = "citizen"
	RoleOperator           Role = "operator"
	RoleMaintenanceManager Role = "maintenance_manager"
	RoleConsortiumAdmin    Role = "consortium_admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleCitizen, RoleOperator, RoleMaintenanceManager, RoleConsortiumAdmin:
		return true
	}
	return false
}

// TenantBound reports whether the role only sees its own municipality.
func (r Role) TenantBound() bool {
	return r == RoleOperator || r == RoleMaintenanceManager
}

type Caller struct {
	UserID   string
	Role     Role
	TenantID string
}

// FromHeaders reads the caller from gateway headers. Operators and managers must
// carry a tenant.
func FromHeaders(h http.Header) (Caller, error) {
	c := Caller{
		UserID:   strings.TrimSpace(h.Get(HeaderUserID)),
		Role:     Role(strings.ToLower(strings.TrimSpace(h.Get(HeaderUserRole)))),
		TenantID: strings.TrimSpace(h.Get(HeaderTenantID)),
	}
	if c.UserID == "" || c.Role == "" {
		return Caller{}, errs.ErrUnauthenticated
	}
	if !c.Role.IsValid() {
		return Caller{}, fmt.Errorf("%w: unknown role %q", errs.ErrForbidden, c.Role)
	}
	if c.Role.TenantBound() && c.TenantID == "" {
		return Caller{}, fmt.Errorf("%w: role %s requires %s", errs.ErrForbidden, c.Role, HeaderTenantID)
	}
	return c, nil
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
