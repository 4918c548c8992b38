// Package template implements the personalization layer of the dispatch
// engine: placeholder extraction, type inference, validation and rendering.
// Everything here is pure and safe for concurrent use by workers.
package template

import (
	"regexp"
	"strings"
)

type VariableType string

const (
	TypeText   VariableType = "text"
	TypeEmail  VariableType = "email"
	TypeURL    VariableType = "url"
	TypeNumber VariableType = "number"
	TypeDate   VariableType = "date"
)

// Variable describes one {{placeholder}} found in campaign content.
type Variable struct {
	Name         string       `json:"name"`
	Type         VariableType `json:"type"`
	Required     bool         `json:"required"`
	DefaultValue string       `json:"default_value,omitempty"`
	Description  string       `json:"description"`
}

// tokenRe matches {{identifier}} and dot-qualified {{a.b.c}} placeholders.
var tokenRe = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\}\}`)

// identityFields are canonical contact fields that default to required.
var identityFields = map[string]bool{
	"first_name":   true,
	"last_name":    true,
	"email":        true,
	"name":         true,
	"company":      true,
	"company_name": true,
	"title":        true,
}

// Extract scans content for placeholders and returns one Variable per
// distinct dotted name, in first-seen order.
func Extract(content string) []Variable {
	matches := tokenRe.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	vars := make([]Variable, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		typ := inferType(name)
		vars = append(vars, Variable{
			Name:         name,
			Type:         typ,
			Required:     identityFields[name],
			DefaultValue: sampleValue(name, typ),
			Description:  describe(name),
		})
	}
	return vars
}

// sampleValue is the preview stand-in for a variable with no real value.
// Live dispatch never uses these; preview rendering does.
func sampleValue(name string, t VariableType) string {
	switch t {
	case TypeEmail:
		return "user@example.com"
	case TypeURL:
		return "https://example.com"
	case TypeDate:
		return "January 2, 2026"
	case TypeNumber:
		return "42"
	default:
		return describe(name)
	}
}

// SampleValues builds a preview value set from the variables' defaults.
func SampleValues(vars []Variable) map[string]string {
	values := make(map[string]string, len(vars))
	for _, v := range vars {
		values[v.Name] = v.DefaultValue
	}
	return values
}

// inferType guesses a semantic type from the variable name.
func inferType(name string) VariableType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "email"):
		return TypeEmail
	case strings.Contains(n, "url"), strings.Contains(n, "link"), strings.Contains(n, "website"):
		return TypeURL
	case strings.Contains(n, "date"), strings.Contains(n, "time"):
		return TypeDate
	case strings.Contains(n, "count"), strings.Contains(n, "number"), strings.Contains(n, "amount"):
		return TypeNumber
	default:
		return TypeText
	}
}

// describe turns a variable name into a human-readable label,
// e.g. "company_name" -> "Company Name".
func describe(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == ' ' || r == '.'
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Render substitutes placeholders with their values. Placeholders whose
// value is absent or empty are left in place so broken personalization is
// visible instead of silently blanked. Rendering fully-rendered content
// again is a no-op.
func Render(content string, values map[string]string) string {
	return tokenRe.ReplaceAllStringFunc(content, func(tok string) string {
		name := tok[2 : len(tok)-2]
		if v, ok := values[name]; ok && v != "" {
			return v
		}
		return tok
	})
}

// Validate checks that every required variable has a non-blank value and
// returns the names of the ones that do not. It never errors; the caller
// decides what a validation failure means.
func Validate(vars []Variable, values map[string]string) (bool, []string) {
	var missing []string
	for _, v := range vars {
		if !v.Required {
			continue
		}
		if strings.TrimSpace(values[v.Name]) == "" {
			missing = append(missing, v.Name)
		}
	}
	return len(missing) == 0, missing
}
