package policy

// BuiltinPolicies returns the policies every engine starts with unless
// disabled.
func BuiltinPolicies() []Policy {
	return []Policy{
		plaintextSecretsPolicy(),
		untypedDeclarationsPolicy(),
		emptyConfigurationPolicy(),
	}
}

// plaintextSecretsPolicy flags secrets written into the configuration
// instead of referenced from the environment.
func plaintextSecretsPolicy() Policy {
	return Policy{
		Name:        "plaintext-secrets",
		Description: "Secret-looking declarations must reference the environment (${VAR}) instead of holding the value",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"security"},
		Rego: `package hyperconf.secrets

import rego.v1

secret_names := {"password", "passwd", "secret", "token", "api_key", "apikey", "private_key"}

deny contains violation if {
	some decl in input.declarations
	decl.kind == "scalar"
	secret_names[lower(decl.identifier)]
	is_string(decl.value)
	decl.value != ""
	not startswith(decl.value, "${")
	violation := {
		"message": sprintf("'%s' holds a plaintext secret", [decl.path]),
		"path": decl.path,
		"line": decl.line,
	}
}
`,
	}
}

// untypedDeclarationsPolicy reports mappings and lists kept untyped by a
// lenient load.
func untypedDeclarationsPolicy() Policy {
	return Policy{
		Name:        "untyped-declarations",
		Description: "Reports objects and lists that no template describes",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"typing"},
		Rego: `package hyperconf.untyped

import rego.v1

deny contains violation if {
	some decl in input.declarations
	decl.kind != "scalar"
	decl.type == ""
	violation := {
		"message": sprintf("'%s' has no type definition", [decl.path]),
		"path": decl.path,
		"line": decl.line,
	}
}
`,
	}
}

// emptyConfigurationPolicy warns about documents without declarations.
func emptyConfigurationPolicy() Policy {
	return Policy{
		Name:        "empty-configuration",
		Description: "A configuration should declare at least one value",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"sanity"},
		Rego: `package hyperconf.empty

import rego.v1

deny contains "configuration declares nothing" if {
	count(input.declarations) == 0
}
`,
	}
}
