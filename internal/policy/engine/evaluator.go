package engine

import "context"

// BootstrapInput describes the caller asking to be provisioned.
type BootstrapInput struct {
	UserID   string
	Email    string
	FullName string
}

// BootstrapDecision holds the result of bootstrap admission policy evaluation.
type BootstrapDecision struct {
	Allowed bool
	// OwnerRole is the membership role granted on the auto-provisioned tenant.
	OwnerRole string
	// Reason explains a denial; empty when allowed.
	Reason string
}

// Evaluator evaluates bootstrap admission using OPA or other engines.
type Evaluator interface {
	// EvaluateBootstrap decides whether the caller may be provisioned a workspace and with which owner role.
	EvaluateBootstrap(ctx context.Context, in BootstrapInput) (BootstrapDecision, error)
}
