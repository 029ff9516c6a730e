package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestLoadFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	path := writePolicy(t, t.TempDir(), "no-debug.rego", `# Debug flags must be off.
# Applies to every environment.

package hyperconf.debug

import rego.v1

deny contains "debug is enabled" if {
	input.config.debug == true
}
`)

	p, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if p.Name != "no-debug" {
		t.Errorf("Name = %q, want no-debug", p.Name)
	}
	if p.Description != "Debug flags must be off. Applies to every environment." {
		t.Errorf("Description = %q", p.Description)
	}
	if !p.Enabled || p.Severity != SeverityWarning || p.Source != path {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestLoadFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	dir := t.TempDir()

	tests := []struct {
		name        string
		policy      map[string]interface{}
		wantName    string
		wantEnabled bool
		wantSev     Severity
	}{
		{
			name:        "enabled by default",
			policy:      map[string]interface{}{"name": "ports", "rego": "package x\n", "severity": "error"},
			wantName:    "ports",
			wantEnabled: true,
			wantSev:     SeverityError,
		},
		{
			name:        "explicitly disabled",
			policy:      map[string]interface{}{"name": "ports", "rego": "package x\n", "enabled": false},
			wantName:    "ports",
			wantEnabled: false,
			wantSev:     SeverityWarning,
		},
		{
			name:        "name from file",
			policy:      map[string]interface{}{"rego": "package x\n"},
			wantName:    "file-named",
			wantEnabled: true,
			wantSev:     SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.policy)
			if err != nil {
				t.Fatal(err)
			}
			path := writePolicy(t, dir, "file-named.json", string(data))

			p, err := loader.LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			if p.Name != tt.wantName || p.Enabled != tt.wantEnabled || p.Severity != tt.wantSev {
				t.Errorf("got %+v", p)
			}
		})
	}
}

func TestLoadFile_Errors(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"unsupported extension", writePolicy(t, dir, "policy.txt", "package x")},
		{"invalid json", writePolicy(t, dir, "broken.json", "{not json")},
		{"missing", filepath.Join(dir, "missing.rego")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loader.LoadFile(tt.path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	ctx := context.Background()

	dir := t.TempDir()
	writePolicy(t, dir, "b.rego", "package b\n")
	writePolicy(t, dir, "nested/a.rego", "package a\n")
	writePolicy(t, dir, "README.md", "ignored")
	single := writePolicy(t, t.TempDir(), "c.json", `{"rego": "package c\n"}`)

	policies, err := loader.LoadFromPaths(ctx, []string{dir, single})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	var names []string
	for _, p := range policies {
		names = append(names, p.Name)
	}
	if got := strings.Join(names, ","); got != "b,a,c" {
		t.Errorf("names = %s, want b,a,c", got)
	}

	other := t.TempDir()
	writePolicy(t, other, "b.rego", "package other\n")
	if _, err := loader.LoadFromPaths(ctx, []string{dir, other}); err == nil ||
		!strings.Contains(err.Error(), "policy b defined in") {
		t.Errorf("expected duplicate name error, got %v", err)
	}

	if _, err := loader.LoadFromPaths(ctx, []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected an error for a missing path")
	}
}

func TestNewViolation(t *testing.T) {
	p := Policy{Name: "ports", Severity: SeverityWarning}

	tests := []struct {
		name  string
		value interface{}
		want  Violation
	}{
		{
			name:  "message",
			value: "bad port",
			want:  Violation{Policy: "ports", Message: "bad port", Severity: SeverityWarning},
		},
		{
			name: "object",
			value: map[string]interface{}{
				"message":  "bad port",
				"path":     "web.port",
				"line":     json.Number("12"),
				"severity": "critical",
			},
			want: Violation{Policy: "ports", Message: "bad port", Path: "web.port", Line: 12, Severity: SeverityCritical},
		},
		{
			name:  "other",
			value: json.Number("3"),
			want:  Violation{Policy: "ports", Message: "3", Severity: SeverityWarning},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newViolation(p, tt.value); got != tt.want {
				t.Errorf("newViolation() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"# One line\npackage x", "One line"},
		{"\n# First\n#\n# Second\n\npackage x\n# ignored", "First Second"},
		{"package x\n# ignored", ""},
	}
	for _, tt := range tests {
		if got := extractDescription(tt.content); got != tt.want {
			t.Errorf("extractDescription(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}
