// Package util holds small helpers shared by the prompt layer.
package util

import (
	"fmt"
	"strings"
	"text/template"
)

// placeholderFuncs are available inside persona and instruction templates.
var placeholderFuncs = template.FuncMap{
	"default": func(fallback, v any) any {
		if v == nil || v == "" {
			return fallback
		}
		return v
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"list": func(items []string) string {
		return strings.Join(items, ", ")
	},
}

// RenderTemplate fills {{.key}} placeholders in prompt text from vars.
// Unknown keys render empty and nothing is HTML escaped. Text without
// placeholders is returned unchanged.
func RenderTemplate(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("placeholders").
		Option("missingkey=zero").
		Funcs(placeholderFuncs).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse placeholders: %w", err)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render placeholders: %w", err)
	}
	// missingkey=zero on a map[string]any still prints "<no value>"
	return strings.ReplaceAll(b.String(), "<no value>", ""), nil
}
