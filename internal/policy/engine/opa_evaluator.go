package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	membershipdomain "nova-workspace/backend/internal/membership/domain"
)

const policyPackage = "nova.bootstrap"

// DefaultRegoPolicy admits everyone when the domain allowlist is empty, otherwise only listed
// email domains. Owners get the admin role.
const DefaultRegoPolicy = `package nova.bootstrap

default allow := false

default owner_role := "admin"

allow if count(input.config.allowed_domains) == 0

allow if {
	some d in input.config.allowed_domains
	input.user.email_domain == d
}

reason := "email domain not allowed" if not allow
`

// OPAEvaluator evaluates bootstrap admission with OPA Rego.
type OPAEvaluator struct {
	module         string
	allowedDomains []string
	logger         *zap.Logger

	once     sync.Once
	compiled *ast.Compiler
	compErr  error
}

// NewOPAEvaluator returns an evaluator for the given allowlist. An empty module uses DefaultRegoPolicy;
// a custom module must declare package nova.bootstrap.
func NewOPAEvaluator(module string, allowedDomains []string, logger *zap.Logger) *OPAEvaluator {
	if strings.TrimSpace(module) == "" {
		module = DefaultRegoPolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	domains := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	return &OPAEvaluator{module: module, allowedDomains: domains, logger: logger}
}

func (e *OPAEvaluator) compiler() (*ast.Compiler, error) {
	e.once.Do(func() {
		e.compiled, e.compErr = ast.CompileModules(map[string]string{"bootstrap.rego": e.module})
		if e.compErr != nil {
			e.compErr = fmt.Errorf("compile bootstrap policy: %w", e.compErr)
		}
	})
	return e.compiled, e.compErr
}

// HealthCheck verifies that the configured policy compiles and evaluates. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := e.compiler()
	if err != nil {
		return err
	}
	rs, err := rego.New(
		rego.Query("data."+policyPackage+".allow"),
		rego.Compiler(compiler),
		rego.Input(e.buildInput(BootstrapInput{Email: "health@check.local"})),
	).Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval bootstrap policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateBootstrap evaluates the policy. On evaluation failure it returns the fallback decision
// (allow as admin only when no allowlist is configured) together with the error.
func (e *OPAEvaluator) EvaluateBootstrap(ctx context.Context, in BootstrapInput) (BootstrapDecision, error) {
	compiler, err := e.compiler()
	if err != nil {
		e.logger.Error("policy: compile failed, using fallback", zap.Error(err))
		return e.fallback(), err
	}
	rs, err := rego.New(
		rego.Query("data."+policyPackage),
		rego.Compiler(compiler),
		rego.Input(e.buildInput(in)),
	).Eval(ctx)
	if err != nil {
		e.logger.Error("policy: evaluation failed, using fallback", zap.String("user_id", in.UserID), zap.Error(err))
		return e.fallback(), fmt.Errorf("eval bootstrap policy: %w", err)
	}
	out := BootstrapDecision{OwnerRole: string(membershipdomain.RoleAdmin)}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return out, nil
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return out, nil
	}
	if v, ok := doc["allow"].(bool); ok {
		out.Allowed = v
	}
	if v, ok := doc["owner_role"].(string); ok && membershipdomain.Role(v).Valid() {
		out.OwnerRole = v
	}
	if !out.Allowed {
		if v, ok := doc["reason"].(string); ok {
			out.Reason = v
		}
	}
	return out, nil
}

func (e *OPAEvaluator) buildInput(in BootstrapInput) map[string]interface{} {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	domain := ""
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain = email[at+1:]
	}
	domains := make([]interface{}, len(e.allowedDomains))
	for i, d := range e.allowedDomains {
		domains[i] = d
	}
	return map[string]interface{}{
		"user": map[string]interface{}{
			"id":           in.UserID,
			"email":        email,
			"email_domain": domain,
			"full_name":    in.FullName,
		},
		"config": map[string]interface{}{
			"allowed_domains": domains,
		},
	}
}

func (e *OPAEvaluator) fallback() BootstrapDecision {
	if len(e.allowedDomains) == 0 {
		return BootstrapDecision{Allowed: true, OwnerRole: string(membershipdomain.RoleAdmin)}
	}
	return BootstrapDecision{OwnerRole: string(membershipdomain.RoleAdmin), Reason: "policy unavailable"}
}
