package templates

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// metaSchema checks the shape of template headers and reserved definition
// attributes with CUE.
type metaSchema struct {
	ctx  *cue.Context
	root cue.Value
}

func newMetaSchema() (*metaSchema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(templateSchema)
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile template schema: %w", err)
	}
	return &metaSchema{ctx: ctx, root: root}, nil
}

// check validates data against the named schema definition.
func (s *metaSchema) check(definition string, data map[string]interface{}) error {
	schema := s.root.LookupPath(cue.ParsePath(definition))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("schema %s not found: %w", definition, err)
	}

	val := s.ctx.Encode(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}

const templateSchema = `
#TypeName: =~"^([_A-Za-z][_0-9A-Za-z]*|list\\[[_A-Za-z][_0-9A-Za-z]*\\])$"

// Top-level template metadata.
#Header: {
	name?:        string & !=""
	description?: string
}

// Reserved attributes of a definition or option body.
#Attributes: {
	type?:       string & #TypeName
	required?:   bool
	validator?:  string & !=""
	converter?:  string & !=""
	allow_many?: bool
}
`
