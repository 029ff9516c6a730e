package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyperconf/hyperconf/pkg/config"
	"github.com/hyperconf/hyperconf/pkg/telemetry"
)

var tracer = otel.Tracer("github.com/hyperconf/hyperconf/pkg/policy")

// Engine evaluates Rego policies against loaded configurations.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy

	validate *validator.Validate
	builtins bool
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	events   *telemetry.EventPublisher
}

// compiledPolicy is a policy with its deny query prepared once.
type compiledPolicy struct {
	policy   Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.With().Str("component", "policy-engine").Logger()
	}
}

// WithMetrics records violations in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithEvents publishes violations to ep.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(e *Engine) {
		e.events = ep
	}
}

// WithoutBuiltins starts the engine with no policies.
func WithoutBuiltins() Option {
	return func(e *Engine) {
		e.builtins = false
	}
}

// NewEngine creates a policy engine loaded with the built-in policies.
func NewEngine(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		validate: validator.New(),
		builtins: true,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.builtins {
		for _, p := range BuiltinPolicies() {
			if err := e.AddPolicy(ctx, p); err != nil {
				return nil, fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
			}
		}
		e.logger.Debug().Int("count", len(e.policies)).Msg("built-in policies loaded")
	}
	return e, nil
}

// compile parses p and prepares its deny query.
func (e *Engine) compile(ctx context.Context, p Policy) (*compiledPolicy, error) {
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	if err := e.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid policy %q: %w", p.Name, err)
	}

	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", p.Name, err)
	}

	query, err := rego.New(
		rego.ParsedModule(module),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy %s: %w", p.Name, err)
	}

	return &compiledPolicy{
		policy:   p,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// AddPolicy compiles p and adds it, replacing a policy of the same name.
func (e *Engine) AddPolicy(ctx context.Context, p Policy) error {
	cp, err := e.compile(ctx, p)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.policies[p.Name] = cp
	e.mu.Unlock()

	e.logger.Debug().Str("policy", p.Name).Str("package", cp.module.Package.Path.String()).Msg("policy compiled")
	return nil
}

// LoadDir loads every policy file under dir.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	_, err := e.LoadPaths(ctx, dir)
	return err
}

// LoadPaths loads policy files and directories. Either every policy
// compiles and is added, or none is. It returns the number of policies added.
func (e *Engine) LoadPaths(ctx context.Context, paths ...string) (int, error) {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return 0, err
	}

	compiled := make([]*compiledPolicy, 0, len(policies))
	for _, p := range policies {
		cp, err := e.compile(ctx, p)
		if err != nil {
			return 0, err
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}
	e.mu.Unlock()

	e.logger.Info().Int("count", len(compiled)).Strs("paths", paths).Msg("policies loaded")
	return len(compiled), nil
}

// Reload replaces all policies read from files with the current content of
// paths. Built-in policies are kept.
func (e *Engine) Reload(ctx context.Context, paths ...string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}
	next := make(map[string]*compiledPolicy)
	for _, p := range policies {
		cp, err := e.compile(ctx, p)
		if err != nil {
			return err
		}
		next[p.Name] = cp
	}

	e.mu.Lock()
	for name, cp := range e.policies {
		if cp.policy.Source == "" {
			if _, shadowed := next[name]; !shadowed {
				next[name] = cp
			}
		}
	}
	e.policies = next
	e.mu.Unlock()

	e.logger.Info().Int("count", len(policies)).Msg("policies reloaded")
	return nil
}

// Evaluate runs every enabled policy against root. Policies that fail to
// evaluate are reported in Result.Errors and do not stop the others.
func (e *Engine) Evaluate(ctx context.Context, root *config.Node) (*Result, error) {
	if root == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	start := time.Now()

	e.mu.RLock()
	active := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		if cp.policy.Enabled {
			active = append(active, cp)
		}
	}
	e.mu.RUnlock()
	sort.Slice(active, func(i, j int) bool { return active[i].policy.Name < active[j].policy.Name })

	ctx, span := tracer.Start(ctx, "policy.evaluate", trace.WithAttributes(
		telemetry.AttrFile.String(root.File()),
	))
	defer span.End()

	input, err := toRegoInput(NewInput(root))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &Result{Allowed: true, EvaluatedPolicies: []string{}}
	for _, cp := range active {
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", cp.policy.Name).Msg("policy evaluation failed")
			result.Errors = append(result.Errors, fmt.Sprintf("policy %s: %v", cp.policy.Name, err))
			continue
		}

		for _, v := range violations {
			e.metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
			_ = e.events.PublishPolicyViolation(root.File(), v.Policy, v.Path, v.Message)
			if v.Severity.Blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.EvaluatedAt = time.Now()
	result.Duration = result.EvaluatedAt.Sub(start)
	if result.Allowed {
		telemetry.RecordSuccess(span)
	}

	e.logger.Debug().
		Str("file", root.File()).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("policy evaluation completed")
	return result, nil
}

// toRegoInput converts in to plain JSON data so that numbers and field names
// reach Rego as they would from a JSON document.
func toRegoInput(in *Input) (interface{}, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding policy input: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding policy input: %w", err)
	}
	return out, nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input interface{}) ([]Violation, error) {
	rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, r := range rs {
		for _, expr := range r.Expressions {
			denied, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denied {
				violations = append(violations, newViolation(cp.policy, d))
			}
		}
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Path < violations[j].Path
	})
	return violations, nil
}

// newViolation builds a violation from a deny value: a message string or an
// object with message, path, line and severity fields.
func newViolation(p Policy, value interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}

	switch d := value.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if path, ok := d["path"].(string); ok {
			v.Path = path
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if line, ok := d["line"].(json.Number); ok {
			if n, err := line.Int64(); err == nil {
				v.Line = int(n)
			}
		}
	default:
		v.Message = fmt.Sprintf("%v", value)
	}
	return v
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return Policy{}, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, cp.policy)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("policy state changed")
	return nil
}
