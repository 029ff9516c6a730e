package expr

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// DefaultMaxSteps bounds the work a single evaluation may perform.
const DefaultMaxSteps = 100000

// Parameter names bound in every expression.
const (
	ValueParam   = "value"
	TypedefParam = "typedef"
)

// TypeInfo describes the governing definition exposed as typedef.
type TypeInfo struct {
	Name     string
	BaseType string
	Required bool
	Options  []string
}

// Evaluator compiles expressions against a fixed, frozen environment.
type Evaluator struct {
	maxSteps uint64
	env      starlark.StringDict
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxSteps sets the execution step budget per evaluation.
func WithMaxSteps(n uint64) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEvaluator creates an evaluator with the helper whitelist.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		maxSteps: DefaultMaxSteps,
		env:      builtins(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.env.Freeze()
	return e
}

// Program is a compiled expression.
type Program struct {
	name     string
	source   string
	fn       starlark.Callable
	maxSteps uint64
}

// Compile parses source as a single expression and compiles it into a
// function of value and typedef. name is used in error messages.
func (e *Evaluator) Compile(name, source string) (*Program, error) {
	src := strings.TrimSpace(source)
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}

	// Rejects statements and multiple expressions before wrapping.
	if _, err := syntax.ParseExpr(name, src, 0); err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}

	wrapped := fmt.Sprintf("lambda %s, %s: (%s\n)", ValueParam, TypedefParam, src)
	outer, err := starlark.ExprFunc(name, wrapped, e.env)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}

	thread := newThread(name, e.maxSteps)
	v, err := starlark.Call(thread, outer, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("expression did not compile to a function")
	}

	return &Program{
		name:     name,
		source:   src,
		fn:       fn,
		maxSteps: e.maxSteps,
	}, nil
}

// Source returns the expression text.
func (p *Program) Source() string {
	return p.source
}

// Eval runs the program and returns the raw Starlark result.
func (p *Program) Eval(value interface{}, info TypeInfo) (starlark.Value, error) {
	sv, err := toStarlarkValue(value)
	if err != nil {
		return nil, fmt.Errorf("failed to convert value: %w", err)
	}
	sv.Freeze()

	thread := newThread(p.name, p.maxSteps)
	result, err := starlark.Call(thread, p.fn, starlark.Tuple{sv, typedefValue(info)}, nil)
	if err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return nil, fmt.Errorf("%s", evalErr.Msg)
		}
		return nil, err
	}
	return result, nil
}

// Check evaluates a validator. The result is either a truth value or a
// (truth value, message) pair.
func (p *Program) Check(value interface{}, info TypeInfo) (bool, string, error) {
	result, err := p.Eval(value, info)
	if err != nil {
		return false, "", err
	}

	if tuple, ok := result.(starlark.Tuple); ok && len(tuple) == 2 {
		return bool(tuple[0].Truth()), messageOf(tuple[1]), nil
	}
	return bool(result.Truth()), "", nil
}

// Transform evaluates a converter and returns the result as a Go value.
func (p *Program) Transform(value interface{}, info TypeInfo) (interface{}, error) {
	result, err := p.Eval(value, info)
	if err != nil {
		return nil, err
	}
	return fromStarlarkValue(result)
}

func messageOf(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	if v == starlark.None {
		return ""
	}
	return v.String()
}

func newThread(name string, maxSteps uint64) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			// Suppress print for security
		},
	}
	thread.SetMaxExecutionSteps(maxSteps)
	return thread
}

func typedefValue(info TypeInfo) starlark.Value {
	opts := make(starlark.Tuple, len(info.Options))
	for i, o := range info.Options {
		opts[i] = starlark.String(o)
	}
	return starlarkstruct.FromStringDict(starlark.String("typedef"), starlark.StringDict{
		"name":     starlark.String(info.Name),
		"type":     starlark.String(info.BaseType),
		"required": starlark.Bool(info.Required),
		"options":  opts,
	})
}
