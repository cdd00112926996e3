package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/util"

	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/model"
)

const policyModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj)
`

// Rule restricts every path matching Pattern (casbin keyMatch syntax) to Roles.
type Rule struct {
	Pattern string
	Roles   []model.Role
}

// DefaultRules is the route table of the service.
var DefaultRules = []Rule{
	{Pattern: "/api/admin/*", Roles: []model.Role{model.RoleAdministrator}},
	{Pattern: "/api/empl/*", Roles: []model.Role{model.RoleUser, model.RoleAccountant}},
	{Pattern: "/api/acct/*", Roles: []model.Role{model.RoleAccountant}},
	{Pattern: "/api/security/*", Roles: []model.Role{model.RoleAuditor}},
}

// Policy decides whether a principal may reach a path. Paths not covered by
// any rule only require an authenticated principal.
type Policy struct {
	enforcer *casbin.Enforcer
	patterns []string
}

// NewPolicy builds a casbin enforcer from rules.
func NewPolicy(rules []Rule) (*Policy, error) {
	m, err := casbinmodel.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	p := &Policy{enforcer: e}
	for _, rule := range rules {
		p.patterns = append(p.patterns, rule.Pattern)
		for _, r := range rule.Roles {
			if _, err := e.AddPolicy(string(r), rule.Pattern); err != nil {
				return nil, fmt.Errorf("rbac rule %s %s: %w", r, rule.Pattern, err)
			}
		}
	}
	return p, nil
}

// Restricted reports whether path falls under any rule.
func (p *Policy) Restricted(path string) bool {
	for _, pat := range p.patterns {
		if matches(path, pat) {
			return true
		}
	}
	return false
}

// Authorize returns errs.ErrAccessDenied when the principal holds none of the
// roles the path requires.
func (p *Policy) Authorize(pr model.Principal, path string) error {
	if !p.Restricted(path) {
		return nil
	}
	obj := path
	if !p.restrictedExact(path) {
		obj = path + "/"
	}
	for _, r := range pr.Roles {
		ok, err := p.enforcer.Enforce(string(r), obj)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return errs.ErrAccessDenied
}

func (p *Policy) restrictedExact(path string) bool {
	for _, pat := range p.patterns {
		if util.KeyMatch(path, pat) {
			return true
		}
	}
	return false
}

// matches treats "/api/admin" as inside "/api/admin/*".
func matches(path, pattern string) bool {
	return util.KeyMatch(path, pattern) || util.KeyMatch(path+"/", pattern)
}
