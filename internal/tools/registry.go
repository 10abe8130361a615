package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/medbook-agent/internal/appointments"
)

var (
	// ErrInvalidArgs is returned when a required argument is missing or blank.
	ErrInvalidArgs = errors.New("tools: invalid arguments")
	// ErrToolNotAllowed is returned for unknown tools and tools outside the caller's role.
	ErrToolNotAllowed = errors.New("tools: tool not allowed")
	// ErrNoCaller is returned when a tool runs without an authenticated caller.
	ErrNoCaller = errors.New("tools: no authenticated caller")
)

// Tool is one model-callable function.
type Tool interface {
	Name() string
	Description() string
	Parameters() Schema
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Registry maps each role to the tools it may call, in a fixed order.
type Registry struct {
	byRole map[appointments.Role][]Tool
}

func NewRegistry() *Registry {
	return &Registry{byRole: make(map[appointments.Role][]Tool)}
}

// Register appends tools to role's table. Names must be unique per role.
func (r *Registry) Register(role appointments.Role, tools ...Tool) error {
	if !role.Valid() {
		return fmt.Errorf("tools: unknown role %q", role)
	}
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name()) == "" {
			return fmt.Errorf("tools: tool name cannot be empty")
		}
		if _, exists := r.find(role, t.Name()); exists {
			return fmt.Errorf("tools: %q already registered for %s", t.Name(), role)
		}
		r.byRole[role] = append(r.byRole[role], t)
	}
	return nil
}

// MustRegister is Register for static tables built at startup.
func (r *Registry) MustRegister(role appointments.Role, tools ...Tool) {
	if err := r.Register(role, tools...); err != nil {
		panic(err)
	}
}

// ForRole returns the role's tools in registration order.
func (r *Registry) ForRole(role appointments.Role) []Tool {
	return append([]Tool(nil), r.byRole[role]...)
}

// Lookup finds name within role's table only.
func (r *Registry) Lookup(role appointments.Role, name string) (Tool, error) {
	t, ok := r.find(role, name)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not available to %s", ErrToolNotAllowed, name, role)
	}
	return t, nil
}

func (r *Registry) find(role appointments.Role, name string) (Tool, bool) {
	for _, t := range r.byRole[role] {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Caller is the authenticated user on whose behalf tools run.
type Caller struct {
	UserID string
	Role   appointments.Role
	Name   string
}

type callerKey struct{}

// WithCaller attaches the caller to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && strings.TrimSpace(c.UserID) != ""
}

func requireCaller(ctx context.Context, role appointments.Role) (Caller, error) {
	c, ok := CallerFrom(ctx)
	if !ok {
		return Caller{}, ErrNoCaller
	}
	if c.Role != role {
		return Caller{}, fmt.Errorf("%w: requires a %s caller", ErrToolNotAllowed, role)
	}
	return c, nil
}

// stringArg reads a required string argument.
func stringArg(args map[string]any, name string) (string, error) {
	v, ok := optionalStringArg(args, name)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidArgs, name)
	}
	return v, nil
}

func optionalStringArg(args map[string]any, name string) (string, bool) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), true
	case fmt.Stringer:
		return strings.TrimSpace(v.String()), true
	case float64, int, int64, bool:
		return fmt.Sprint(v), true
	default:
		return "", false
	}
}
