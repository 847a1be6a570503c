package identity

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psds-microservice/cityfix-service/internal/errs"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		h       http.Header
		want    Caller
		wantErr error
	}{
		{
			name: "citizen without tenant",
			h:    headers(HeaderUserID, "u1", HeaderUserRole, "citizen"),
			want: Caller{UserID: "u1", Role: RoleCitizen},
		},
		{
			name: "operator with tenant, role is case-insensitive",
			h:    headers(HeaderUserID, "op1", HeaderUserRole, "Operator", HeaderTenantID, "springfield"),
			want: Caller{UserID: "op1", Role: RoleOperator, TenantID: "springfield"},
		},
		{
			name:    "missing user",
			h:       headers(HeaderUserRole, "citizen"),
			wantErr: errs.ErrUnauthenticated,
		},
		{
			name:    "missing role",
			h:       headers(HeaderUserID, "u1"),
			wantErr: errs.ErrUnauthenticated,
		},
		{
			name:    "unknown role",
			h:       headers(HeaderUserID, "u1", HeaderUserRole, "mayor"),
			wantErr: errs.ErrForbidden,
		},
		{
			name:    "operator without tenant",
			h:       headers(HeaderUserID, "op1", HeaderUserRole, "operator"),
			wantErr: errs.ErrForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromHeaders(tt.h)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCallerContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	c := Caller{UserID: "u1", Role: RoleCitizen}
	got, ok := FromContext(WithCaller(context.Background(), c))
	require.True(t, ok)
	assert.Equal(t, c, got)
}

func TestAuthorizer(t *testing.T) {
	a, err := NewAuthorizer()
	require.NoError(t, err)

	allowed := []struct {
		role     Role
		obj, act string
	}{
		{RoleCitizen, ObjectTicket, ActionCreate},
		{RoleCitizen, ObjectTicket, ActionComment},
		{RoleOperator, ObjectTicket, ActionAssign},
		{RoleMaintenanceManager, ObjectTicket, ActionAssign},
		{RoleConsortiumAdmin, ObjectMunicipality, ActionRegister},
	}
	for _, tc := range allowed {
		assert.NoError(t, a.Authorize(Caller{UserID: "x", Role: tc.role}, tc.obj, tc.act), "%s %s %s", tc.role, tc.act, tc.obj)
	}

	denied := []struct {
		role     Role
		obj, act string
	}{
		{RoleCitizen, ObjectTicket, ActionAssign},
		{RoleOperator, ObjectMunicipality, ActionRegister},
		{RoleMaintenanceManager, ObjectMunicipality, ActionRegister},
	}
	for _, tc := range denied {
		assert.ErrorIs(t, a.Authorize(Caller{UserID: "x", Role: tc.role}, tc.obj, tc.act), errs.ErrForbidden, "%s %s %s", tc.role, tc.act, tc.obj)
	}
}
