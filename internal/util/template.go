// Package util holds small internal helpers shared by the strategies.
package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"money": func(amount any, currency string) string {
		switch v := amount.(type) {
		case float64:
			return fmt.Sprintf("%.2f %s", v, currency)
		case int:
			return fmt.Sprintf("%d.00 %s", v, currency)
		default:
			return fmt.Sprintf("%v %s", v, currency)
		}
	},
}

// RenderTemplate expands {{ }} markers in text against data. Text without
// markers is returned unchanged. Missing keys render as empty strings.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=zero").Funcs(funcs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
