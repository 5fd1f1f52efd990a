// Package template renders {{.variable}} placeholders in message content.
package template

import (
	"fmt"
	"maps"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"default": func(fallback, value string) string {
		if value == "" {
			return fallback
		}

		return value
	},
}

func parse(templateStr string) (*template.Template, error) {
	return template.
		New("content").
		Funcs(funcs).
		Option("missingkey=zero").
		Parse(templateStr)
}

// Validate reports whether templateStr parses.
func Validate(templateStr string) error {
	if !strings.Contains(templateStr, "{{") {
		return nil
	}

	if _, err := parse(templateStr); err != nil {
		return fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return nil
}

// Render executes templateStr over variables. Unknown variables render empty.
func Render(templateStr string, variables map[string]string) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	data := make(map[string]string, len(variables))
	maps.Copy(data, variables)

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// RenderForExecution renders templateStr with the variables of an execution.
func RenderForExecution(templateStr string, execution *models.FlowExecution) (string, error) {
	return Render(templateStr, execution.Variables)
}
