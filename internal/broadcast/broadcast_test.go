package broadcast

import (
	"testing"

	"github.com/wappzakelijk/console/internal/domain"
)

func strptr(s string) *string { return &s }

func TestRenderTemplate(t *testing.T) {
	contact := domain.Contact{Name: strptr("Anna"), Phone: "+31612345678"}

	got := RenderTemplate("Hoi {{naam}}, je bestelling is klaar!", contact)
	want := "Hoi Anna, je bestelling is klaar!"
	if got != want {
		t.Fatalf("rendered %q, want %q", got, want)
	}
}

func TestRenderTemplateFallsBackToPhone(t *testing.T) {
	contact := domain.Contact{Phone: "+31612345678"}

	got := RenderTemplate("Hoi {{naam}}!", contact)
	if got != "Hoi +31612345678!" {
		t.Fatalf("rendered %q", got)
	}
}

func TestRenderTemplateRepeatedPlaceholder(t *testing.T) {
	contact := domain.Contact{Name: strptr("Anna"), Phone: "+31612345678"}

	got := RenderTemplate("{{naam}} {{naam}}", contact)
	if got != "Anna Anna" {
		t.Fatalf("rendered %q", got)
	}
}

func TestRenderTemplateLeavesUnknownPlaceholders(t *testing.T) {
	contact := domain.Contact{Name: strptr("Anna"), Phone: "+31612345678"}

	got := RenderTemplate("Hoi {{naam}}, korting: {{korting}}", contact)
	if got != "Hoi Anna, korting: {{korting}}" {
		t.Fatalf("rendered %q", got)
	}
}

func TestCreateDraftValidation(t *testing.T) {
	svc := NewService("company-1", nil, nil, 4)

	if _, err := svc.CreateDraft(nil, "", "Hoi {{naam}}"); err == nil {
		t.Fatal("empty name must be rejected")
	}
	if _, err := svc.CreateDraft(nil, "Zomeractie", "   "); err == nil {
		t.Fatal("empty template must be rejected")
	}
}
