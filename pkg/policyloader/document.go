package policyloader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/google/cel-go/cel"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/agentos-dev/agentkernel/pkg/policy"
)

// SupportedVersions is the schema_version range this loader accepts.
const SupportedVersions = ">=1.0.0, <2.0.0"

const schemaURL = "https://agentkernel.schemas.local/policy/profile.schema.json"

const profileSchema = `{
  "type": "object",
  "required": ["schema_version"],
  "additionalProperties": false,
  "properties": {
    "schema_version": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "budget": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_time_ms": {"type": "integer", "minimum": 0},
        "max_tokens": {"type": "integer", "minimum": 0},
        "max_tool_calls": {"type": ["integer", "null"], "minimum": 0},
        "max_artifacts_mb": {"type": ["number", "null"], "minimum": 0}
      }
    },
    "denied": {"$ref": "#/$defs/rules"},
    "require_approval": {"$ref": "#/$defs/rules"},
    "allowed": {"$ref": "#/$defs/rules"}
  },
  "$defs": {
    "rules": {"type": "array", "items": {"$ref": "#/$defs/rule"}},
    "rule": {
      "type": "object",
      "required": ["action", "scope"],
      "additionalProperties": false,
      "properties": {
        "action": {"type": "string", "minLength": 1},
        "scope": {"type": "string", "minLength": 1},
        "reason": {"type": "string"},
        "condition": {"type": "string"}
      }
    }
  }
}`

// Format identifies the encoding of a profile document.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
)

// FormatFromPath picks a format by file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".jsonc":
		return FormatJSONC, true
	}
	return "", false
}

// Document is the on-disk shape of a policy profile.
type Document struct {
	SchemaVersion string `json:"schema_version"`
	policy.ProfileSpec
}

// LoadError reports every problem found in one document.
type LoadError struct {
	Path     string
	Problems []string
}

func (e *LoadError) Error() string {
	where := e.Path
	if where == "" {
		where = "policy document"
	}
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%s: %s", where, e.Problems[0])
	}
	return fmt.Sprintf("%s: %d problems:\n  - %s", where, len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	conditionEnv   *cel.Env
	versionRange   *semver.Constraints
	compileErr     error
)

func compiled() error {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(profileSchema)); err != nil {
			compileErr = fmt.Errorf("policyloader: schema load failed: %w", err)
			return
		}
		if compiledSchema, compileErr = c.Compile(schemaURL); compileErr != nil {
			compileErr = fmt.Errorf("policyloader: schema compile failed: %w", compileErr)
			return
		}
		conditionEnv, compileErr = cel.NewEnv(
			cel.Variable("action", cel.StringType),
			cel.Variable("scope", cel.StringType),
			cel.Variable("run", cel.DynType),
		)
		if compileErr != nil {
			compileErr = fmt.Errorf("policyloader: cel env: %w", compileErr)
			return
		}
		versionRange, compileErr = semver.NewConstraint(SupportedVersions)
	})
	return compileErr
}

// Parse decodes and validates a single document.
func Parse(data []byte, format Format) (contracts.PolicyProfile, error) {
	doc, err := parseDocument(data, format, "")
	if err != nil {
		return contracts.PolicyProfile{}, err
	}
	return policy.BuildProfile(doc.ProfileSpec), nil
}

func parseDocument(data []byte, format Format, path string) (Document, error) {
	if err := compiled(); err != nil {
		return Document{}, err
	}
	fail := func(problems ...string) (Document, error) {
		return Document{}, &LoadError{Path: path, Problems: problems}
	}

	raw, err := toJSON(data, format)
	if err != nil {
		return fail(err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return fail(fmt.Sprintf("decode: %v", err))
	}

	var problems []string
	if err := compiledSchema.Validate(generic); err != nil {
		problems = append(problems, schemaProblems(err)...)
		// A structurally broken document cannot be decoded reliably.
		return fail(problems...)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fail(fmt.Sprintf("decode: %v", err))
	}

	if v, err := semver.NewVersion(doc.SchemaVersion); err != nil {
		problems = append(problems, fmt.Sprintf("schema_version %q is not a semantic version", doc.SchemaVersion))
	} else if !versionRange.Check(v) {
		problems = append(problems, fmt.Sprintf("schema_version %s is outside supported range %s", v, SupportedVersions))
	}

	problems = append(problems, conditionProblems("denied", doc.Denied)...)
	problems = append(problems, conditionProblems("require_approval", doc.RequireApproval)...)
	problems = append(problems, conditionProblems("allowed", doc.Allowed)...)

	if len(problems) > 0 {
		return fail(problems...)
	}
	return doc, nil
}

func toJSON(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return data, nil
	case FormatJSONC:
		return jsonc.ToJSON(data), nil
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if v == nil {
			return nil, errors.New("empty document")
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func schemaProblems(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

func conditionProblems(group string, rules []policy.RuleSpec) []string {
	var out []string
	for i, r := range rules {
		if r.Condition == "" {
			continue
		}
		ast, issues := conditionEnv.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			out = append(out, fmt.Sprintf("%s[%d].condition: %v", group, i, issues.Err()))
			continue
		}
		switch t := ast.OutputType().String(); t {
		case "bool", "dyn":
		default:
			out = append(out, fmt.Sprintf("%s[%d].condition: must evaluate to bool, got %s", group, i, t))
		}
	}
	return out
}
