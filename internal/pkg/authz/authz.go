// Package authz decides which principal kinds may perform which actions.
//
// Policies are casbin "p" rules loaded from configuration, so the decision is
// made from the kind the directory reports on every request and a role change
// takes effect without reissuing tokens.
package authz

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
)

// ErrInvalidPolicy is returned for a policy that is not kind:object:action.
var ErrInvalidPolicy = errors.New("authz: policy must be kind:object:action")

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// Policy allows Kind to perform Action on Object. "*" matches anything.
type Policy struct {
	Kind   string
	Object string
	Action string
}

// ParsePolicy reads the kind:object:action form used in configuration.
func ParsePolicy(s string) (Policy, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Policy{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return Policy{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
		}
	}
	return Policy{Kind: parts[0], Object: parts[1], Action: parts[2]}, nil
}

// Enforcer answers policy questions. It is safe for concurrent use.
type Enforcer struct {
	mu sync.RWMutex
	e  *casbin.Enforcer
}

// New builds an Enforcer holding the given policies.
func New(policies []Policy) (*Enforcer, error) {
	e, err := build(policies)
	if err != nil {
		return nil, err
	}
	return &Enforcer{e: e}, nil
}

func build(policies []Policy) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("authz: load model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: new enforcer: %w", err)
	}

	if len(policies) == 0 {
		return e, nil
	}

	rules := make([][]string, 0, len(policies))
	for _, p := range policies {
		rules = append(rules, []string{p.Kind, p.Object, p.Action})
	}
	if _, err := e.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("authz: add policies: %w", err)
	}
	return e, nil
}

// ParsePolicies reads a list of kind:object:action rules, skipping blanks.
func ParsePolicies(rules []string) ([]Policy, error) {
	policies := make([]Policy, 0, len(rules))
	for _, rule := range rules {
		if strings.TrimSpace(rule) == "" {
			continue
		}
		p, err := ParsePolicy(rule)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// NewFromStrings parses kind:object:action rules and builds an Enforcer.
func NewFromStrings(rules []string) (*Enforcer, error) {
	policies, err := ParsePolicies(rules)
	if err != nil {
		return nil, err
	}
	return New(policies)
}

// Replace swaps the full policy set.
func (enf *Enforcer) Replace(policies []Policy) error {
	e, err := build(policies)
	if err != nil {
		return err
	}

	enf.mu.Lock()
	enf.e = e
	enf.mu.Unlock()
	return nil
}

// Allowed reports whether kind may perform action on object.
func (enf *Enforcer) Allowed(kind, object, action string) (bool, error) {
	enf.mu.RLock()
	defer enf.mu.RUnlock()

	ok, err := enf.e.Enforce(kind, object, action)
	if err != nil {
		return false, fmt.Errorf("authz: enforce: %w", err)
	}
	return ok, nil
}
