package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hyperconf/hyperconf/pkg/config"
	"github.com/hyperconf/hyperconf/pkg/telemetry"
	"github.com/hyperconf/hyperconf/pkg/templates"
)

const privilegedPorts = `# Services must not bind privileged ports.
package hyperconf.ports

import rego.v1

deny contains violation if {
	some decl in input.declarations
	decl.type == "port"
	decl.value < 1024
	violation := {
		"message": sprintf("'%s' uses privileged port %d", [decl.path, decl.value]),
		"path": decl.path,
		"line": decl.line,
		"severity": "error",
	}
}
`

func loadConfig(t *testing.T, text string) *config.Node {
	t.Helper()
	reg, err := templates.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	l, err := config.NewLoader(reg)
	if err != nil {
		t.Fatal(err)
	}
	root, err := l.LoadString(context.Background(), text)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	return root
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	eng, err := NewEngine(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return eng
}

func TestNewEngine_Builtins(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
	}
	want := "empty-configuration,plaintext-secrets,untyped-declarations"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("ListPolicies() = %s, want %s", got, want)
	}

	if got := newTestEngine(t, WithoutBuiltins()).ListPolicies(); len(got) != 0 {
		t.Errorf("WithoutBuiltins() left %d policies", len(got))
	}
}

func TestEvaluate_Builtins(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		text         string
		wantWarnings []string
	}{
		{
			name: "clean",
			text: "use: common\nweb=port: 8080\npassword: ${DB_PASSWORD}\n",
		},
		{
			name:         "plaintext secret",
			text:         "db:\n  host: x\n  password: hunter2\n",
			wantWarnings: []string{"plaintext-secrets:db.password", "untyped-declarations:db"},
		},
		{
			name:         "empty",
			text:         "",
			wantWarnings: []string{"empty-configuration:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Evaluate(ctx, loadConfig(t, tt.text))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !result.Allowed || len(result.Errors) != 0 {
				t.Errorf("unexpected result: %+v", result)
			}
			var got []string
			for _, w := range result.Warnings {
				got = append(got, w.Policy+":"+w.Path)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantWarnings, ",") {
				t.Errorf("warnings = %v, want %v", got, tt.wantWarnings)
			}
			if len(result.EvaluatedPolicies) != 3 {
				t.Errorf("EvaluatedPolicies = %v", result.EvaluatedPolicies)
			}
		})
	}
}

func TestEvaluate_CustomPolicy(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ports.rego"), []byte(privilegedPorts), 0o644); err != nil {
		t.Fatal(err)
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatal(err)
	}
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	var published []telemetry.Event
	events.Subscribe(func(e telemetry.Event) { published = append(published, e) },
		telemetry.FilterByType(telemetry.EventTypePolicyViolation))

	eng := newTestEngine(t, WithoutBuiltins(), WithMetrics(metrics), WithEvents(events))
	ctx := context.Background()
	if err := eng.LoadDir(ctx, dir); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	p, err := eng.GetPolicy("ports")
	if err != nil {
		t.Fatal(err)
	}
	if p.Description != "Services must not bind privileged ports." || p.Source == "" {
		t.Errorf("policy metadata = %+v", p)
	}

	root := loadConfig(t, "use: common\nweb=port: 80\napi=port: 8080\n")
	result, err := eng.Evaluate(ctx, root)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Allowed || len(result.Violations) != 1 {
		t.Fatalf("expected one blocking violation, got %+v", result)
	}
	v := result.Violations[0]
	if v.Path != "web" || v.Line != 2 || v.Severity != SeverityError || !strings.Contains(v.Message, "port 80") {
		t.Errorf("violation = %+v", v)
	}
	if len(published) != 1 || published[0].Data["policy"] != "ports" {
		t.Errorf("published = %+v", published)
	}

	if err := eng.DisablePolicy("ports"); err != nil {
		t.Fatal(err)
	}
	result, err = eng.Evaluate(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed || len(result.EvaluatedPolicies) != 0 {
		t.Errorf("disabled policy still evaluated: %+v", result)
	}
	if err := eng.EnablePolicy("missing"); err == nil {
		t.Error("EnablePolicy on an unknown policy should fail")
	}
}

func TestAddPolicy_Invalid(t *testing.T) {
	eng := newTestEngine(t, WithoutBuiltins())
	ctx := context.Background()

	tests := []Policy{
		{Name: "", Rego: "package x\n"},
		{Name: "syntax", Rego: "package x\n\ndeny contains if {"},
		{Name: "severity", Rego: "package x\n", Severity: "fatal"},
	}
	for _, p := range tests {
		if err := eng.AddPolicy(ctx, p); err == nil {
			t.Errorf("AddPolicy(%q) should fail", p.Name)
		}
	}
	if len(eng.ListPolicies()) != 0 {
		t.Error("invalid policies must not be added")
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ports.rego")
	if err := os.WriteFile(path, []byte(privilegedPorts), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := newTestEngine(t)
	ctx := context.Background()
	if err := eng.LoadDir(ctx, dir); err != nil {
		t.Fatal(err)
	}
	if len(eng.ListPolicies()) != 4 {
		t.Fatalf("policies = %v", eng.ListPolicies())
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := eng.Reload(ctx, dir); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if _, err := eng.GetPolicy("ports"); err == nil {
		t.Error("removed policy file should drop the policy")
	}
	if _, err := eng.GetPolicy("plaintext-secrets"); err != nil {
		t.Error("built-in policies must survive a reload")
	}
}
