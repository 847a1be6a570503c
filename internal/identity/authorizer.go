package identity

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/psds-microservice/cityfix-service/internal/errs"
)

const (
	ObjectTicket       = "ticket"
	ObjectMunicipality = "municipality"
)

const (
	ActionCreate      = "create"
	ActionList        = "list"
	ActionView        = "view"
	ActionAssign      = "assign"
	ActionAttachPhoto = "attach_photo"
	ActionComment     = "comment"
	ActionRegister    = "register"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

func defaultPolicies() [][]string {
	var rules [][]string
	grant := func(role Role, obj string, acts ...string) {
		for _, act := range acts {
			rules = append(rules, []string{string(role), obj, act})
		}
	}
	grant(RoleCitizen, ObjectTicket, ActionCreate, ActionList, ActionView, ActionAttachPhoto, ActionComment)
	grant(RoleOperator, ObjectTicket, ActionCreate, ActionList, ActionView, ActionAssign, ActionAttachPhoto, ActionComment)
	grant(RoleMaintenanceManager, ObjectTicket, ActionCreate, ActionList, ActionView, ActionAssign, ActionAttachPhoto, ActionComment)
	grant(RoleConsortiumAdmin, ObjectTicket, ActionCreate, ActionList, ActionView, ActionAssign, ActionAttachPhoto, ActionComment)
	grant(RoleConsortiumAdmin, ObjectMunicipality, ActionRegister)
	return rules
}

// Authorizer answers role, object, action questions from a static casbin policy.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}
	if _, err := enforcer.AddPolicies(defaultPolicies()); err != nil {
		return nil, fmt.Errorf("casbin policies: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// Authorize returns errs.ErrForbidden unless c's role may perform act on obj.
func (a *Authorizer) Authorize(c Caller, obj, act string) error {
	allowed, err := a.enforcer.Enforce(string(c.Role), obj, act)
	if err != nil {
		return fmt.Errorf("permission check failed: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s may not %s %s", errs.ErrForbidden, c.Role, act, obj)
	}
	return nil
}
