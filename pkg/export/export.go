// Package export renders loaded configuration trees as JSON, YAML or CUE.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/format"
	"gopkg.in/yaml.v3"

	"github.com/hyperconf/hyperconf/pkg/config"
)

// Format is an output format.
type Format string

// Supported formats.
const (
	JSON Format = "json"
	YAML Format = "yaml"
	CUE  Format = "cue"
)

// Formats lists the supported formats.
var Formats = []Format{JSON, YAML, CUE}

// ParseFormat returns the format named s, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q (want json, yaml or cue)", s)
}

// Render encodes n in the given format.
func Render(n *config.Node, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, n, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes n to w in the given format.
func Write(w io.Writer, n *config.Node, f Format) error {
	switch f {
	case JSON:
		return writeJSON(w, n)
	case YAML:
		return writeYAML(w, n)
	case CUE:
		return writeCUE(w, n)
	}
	return fmt.Errorf("unsupported format %q", f)
}

func writeJSON(w io.Writer, n *config.Node) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(n.ToMap()); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, n *config.Node) error {
	doc, err := yamlNode(n)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}

// yamlNode builds a mapping node that keeps declaration order.
func yamlNode(n *config.Node) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range n.Keys() {
		v, err := yamlValue(n.Get(key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, v)
	}
	return m, nil
}

func yamlValue(v config.Value) (*yaml.Node, error) {
	if child, ok := v.Node(); ok {
		return yamlNode(child)
	}
	if list, ok := v.List(); ok {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range list.Items() {
			inner, err := yamlNode(item)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, &yaml.Node{
				Kind:    yaml.MappingNode,
				Content: []*yaml.Node{{Kind: yaml.ScalarNode, Value: item.Identifier()}, inner},
			})
		}
		return seq, nil
	}
	out := &yaml.Node{}
	if err := out.Encode(v.Interface()); err != nil {
		return nil, err
	}
	return out, nil
}

func writeCUE(w io.Writer, n *config.Node) error {
	v := cuecontext.New().Encode(n.ToMap())
	if err := v.Err(); err != nil {
		return fmt.Errorf("encoding cue: %w", err)
	}
	src, err := format.Node(v.Syntax())
	if err != nil {
		return fmt.Errorf("formatting cue: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}
