package export

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/hyperconf/hyperconf/pkg/config"
	"github.com/hyperconf/hyperconf/pkg/templates"
)

const sample = `use: common
zeta=port: 8080
alpha: x
ratio: 0.5
tags: [a, b]
heads:
  - first:
      size: 3
`

func load(t *testing.T, text string) *config.Node {
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

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "YAML", " cue "} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) error = %v", s, err)
		}
	}
	if _, err := ParseFormat("toml"); err == nil {
		t.Error("ParseFormat(toml) should fail")
	}
}

func TestRender_JSON(t *testing.T) {
	out, err := Render(load(t, sample), JSON)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	want := map[string]interface{}{
		"zeta":  float64(8080),
		"alpha": "x",
		"ratio": 0.5,
		"tags":  []interface{}{"a", "b"},
		"heads": []interface{}{
			map[string]interface{}{"first": map[string]interface{}{"size": float64(3)}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("JSON = %v, want %v", got, want)
	}
}

func TestRender_YAML(t *testing.T) {
	out, err := Render(load(t, sample), YAML)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	text := string(out)

	if strings.Index(text, "zeta:") > strings.Index(text, "alpha:") {
		t.Errorf("YAML should keep declaration order:\n%s", text)
	}

	var got map[string]interface{}
	if err := yaml.Unmarshal(out, &got); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, text)
	}
	if got["zeta"] != 8080 || got["alpha"] != "x" {
		t.Errorf("YAML = %v", got)
	}
	heads, ok := got["heads"].([]interface{})
	if !ok || len(heads) != 1 {
		t.Fatalf("heads = %#v", got["heads"])
	}
	first := heads[0].(map[string]interface{})["first"].(map[string]interface{})
	if first["size"] != 3 {
		t.Errorf("heads[0].first = %v", first)
	}
}

func TestRender_CUE(t *testing.T) {
	out, err := Render(load(t, "use: common\nweb=port: 8080\nname: api\n"), CUE)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	text := string(out)
	for _, want := range []string{"web:", "8080", `name:`, `"api"`} {
		if !strings.Contains(text, want) {
			t.Errorf("CUE output missing %q:\n%s", want, text)
		}
	}
}

func TestRender_Unsupported(t *testing.T) {
	if _, err := Render(load(t, "a: 1\n"), Format("xml")); err == nil {
		t.Error("expected an error for an unknown format")
	}
}
