package notification

import (
	"testing"

	domain "github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

func TestPlaceholders(t *testing.T) {
	names := Placeholders("Hello {{name}}, your {{thing}} and {{ name }} again")
	if len(names) != 2 || names[0] != "name" || names[1] != "thing" {
		t.Fatalf("placeholders = %v", names)
	}
}

func TestRenderSubstitutes(t *testing.T) {
	tmpl := domain.Template{
		SubjectTemplate: "Report {{report}} ready",
		BodyTemplate:    "Hello {{name}}, {{report}} finished.",
		RequiredParams:  []string{"name", "report"},
	}
	subject, body, err := Render(tmpl, map[string]string{"name": "Ada", "report": "weekly"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Report weekly ready" {
		t.Fatalf("subject = %q", subject)
	}
	if body != "Hello Ada, weekly finished." {
		t.Fatalf("body = %q", body)
	}
}

func TestRenderMissingRequiredParam(t *testing.T) {
	tmpl := domain.Template{
		BodyTemplate:   "Hello {{name}}",
		RequiredParams: []string{"name"},
	}
	_, _, err := Render(tmpl, map[string]string{})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.ErrCodeTemplateRender {
		t.Fatalf("expected TemplateRender error, got %v", err)
	}
}

func TestRenderUndeclaredPlaceholderIsEmpty(t *testing.T) {
	tmpl := domain.Template{BodyTemplate: "Hi {{name}}, also {{extra}}"}
	_, body, err := Render(tmpl, map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if body != "Hi Ada, also " {
		t.Fatalf("body = %q", body)
	}
}

func TestValidateTemplateRequiresPlaceholderSubset(t *testing.T) {
	bad := domain.Template{
		BodyTemplate:   "Hello {{name}}",
		RequiredParams: []string{"name", "ghost"},
	}
	if err := ValidateTemplate(bad); err == nil {
		t.Fatal("required param not in placeholders must fail validation")
	}

	good := domain.Template{
		SubjectTemplate: "{{title}}",
		BodyTemplate:    "Hello {{name}}",
		RequiredParams:  []string{"name", "title"},
	}
	if err := ValidateTemplate(good); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
}
