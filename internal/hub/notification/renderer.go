// Package notification implements template rendering, channel dispatch and
// per-recipient delivery tracking.
package notification

import (
	"regexp"
	"strings"

	domain "github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Placeholders extracts the distinct placeholder names of a template string.
func Placeholders(template string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// ValidateTemplate checks that the declared required params are a subset of
// the placeholders appearing in the subject or body.
func ValidateTemplate(t domain.Template) error {
	if strings.TrimSpace(t.BodyTemplate) == "" {
		return errors.InvalidInput("body_template", "cannot be empty")
	}
	declared := make(map[string]struct{})
	for _, name := range Placeholders(t.SubjectTemplate) {
		declared[name] = struct{}{}
	}
	for _, name := range Placeholders(t.BodyTemplate) {
		declared[name] = struct{}{}
	}
	for _, required := range t.RequiredParams {
		if _, ok := declared[required]; !ok {
			return errors.InvalidInput("required_params", "not a template placeholder: "+required)
		}
	}
	return nil
}

// Render substitutes params into the template. A missing required param is a
// TemplateRender error; undeclared placeholders render as empty.
func Render(t domain.Template, params map[string]string) (subject, body string, err error) {
	for _, required := range t.RequiredParams {
		if strings.TrimSpace(params[required]) == "" {
			return "", "", errors.TemplateRender("missing required parameter: " + required)
		}
	}

	expand := func(template string) string {
		return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
			name := placeholderRe.FindStringSubmatch(match)[1]
			return params[name]
		})
	}
	return expand(t.SubjectTemplate), expand(t.BodyTemplate), nil
}
