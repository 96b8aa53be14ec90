package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"artificer/internal/logging"
	"artificer/internal/types"
)

// =============================================================================
// CUSTOM RULE FILES
// =============================================================================

// customRulesSchema gates rule files before any pattern is compiled.
const customRulesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["rules"],
  "additionalProperties": false,
  "properties": {
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "severity", "pattern", "message"],
        "additionalProperties": false,
        "properties": {
          "id":         {"type": "string", "minLength": 1},
          "applies_to": {"type": "array", "items": {"type": "string"}},
          "severity":   {"enum": ["error", "warning", "suggestion"]},
          "penalty":    {"type": "integer", "minimum": 0, "maximum": 100},
          "pattern":    {"type": "string", "minLength": 1},
          "match":      {"enum": ["contains", "regex", "absent"]},
          "message":    {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var compiledRulesSchema = mustCompileRulesSchema()

func mustCompileRulesSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("rules.schema.json", strings.NewReader(customRulesSchema)); err != nil {
		panic(fmt.Sprintf("rules schema resource: %v", err))
	}
	schema, err := c.Compile("rules.schema.json")
	if err != nil {
		panic(fmt.Sprintf("rules schema compile: %v", err))
	}
	return schema
}

type customRuleFile struct {
	Rules []customRule `yaml:"rules"`
}

type customRule struct {
	ID        string   `yaml:"id"`
	AppliesTo []string `yaml:"applies_to"`
	Severity  string   `yaml:"severity"`
	Penalty   int      `yaml:"penalty"`
	Pattern   string   `yaml:"pattern"`
	Match     string   `yaml:"match"`
	Message   string   `yaml:"message"`
}

// LoadCustomRules parses, schema-checks, and compiles a YAML rule file,
// replacing any previously loaded custom rules on success. The previous
// rule set stays active when loading fails.
func (v *Validator) LoadCustomRules(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}

	if err := checkRulesSchema(data); err != nil {
		return fmt.Errorf("rules file %s: %w", path, err)
	}

	var file customRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse rules file: %w", err)
	}

	compiled := make([]Rule, 0, len(file.Rules))
	for _, cr := range file.Rules {
		rule, err := compileCustomRule(cr)
		if err != nil {
			return fmt.Errorf("rule %q: %w", cr.ID, err)
		}
		compiled = append(compiled, rule)
	}

	v.setCustomRules(compiled)
	logging.Validation("loaded %d custom rules from %s", len(compiled), path)
	return nil
}

// CustomRuleCount reports how many custom rules are active.
func (v *Validator) CustomRuleCount() int {
	return len(v.customRules())
}

// checkRulesSchema validates the YAML document against the rule schema.
// The document round-trips through JSON so the schema library sees the
// value shapes it expects.
func checkRulesSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize yaml: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("normalize yaml: %w", err)
	}
	if err := compiledRulesSchema.Validate(instance); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func compileCustomRule(cr customRule) (Rule, error) {
	var appliesTo []types.ArtifactType
	for _, raw := range cr.AppliesTo {
		appliesTo = append(appliesTo, types.ArtifactType(raw).Normalize())
	}

	mode := cr.Match
	if mode == "" {
		mode = "contains"
	}

	var check func(d *document) (bool, string)
	switch mode {
	case "contains":
		needle := strings.ToLower(cr.Pattern)
		check = func(d *document) (bool, string) {
			return strings.Contains(d.lower, needle), ""
		}
	case "absent":
		needle := strings.ToLower(cr.Pattern)
		check = func(d *document) (bool, string) {
			return !strings.Contains(d.lower, needle), ""
		}
	case "regex":
		re, err := regexp.Compile(cr.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("bad pattern: %w", err)
		}
		check = func(d *document) (bool, string) {
			m := re.FindString(d.content)
			return m != "", truncateDetail(m)
		}
	default:
		return Rule{}, fmt.Errorf("unknown match mode %q", mode)
	}

	return Rule{
		ID:       cr.ID,
		Types:    appliesTo,
		Severity: Severity(cr.Severity),
		Penalty:  cr.Penalty,
		Message:  cr.Message,
		Check:    check,
	}, nil
}

func truncateDetail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
