package template

import (
	"strings"
	"testing"
)

func TestExtractDeduplicatesAndOrders(t *testing.T) {
	content := "Hi {{first_name}}, {{first_name}} visit {{website}} or {{signup_url}}"
	vars := Extract(content)

	if len(vars) != 3 {
		t.Fatalf("expected 3 variables, got %d", len(vars))
	}
	names := []string{vars[0].Name, vars[1].Name, vars[2].Name}
	want := []string{"first_name", "website", "signup_url"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("variable %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestExtractTypeInference(t *testing.T) {
	cases := []struct {
		name string
		want VariableType
	}{
		{"email", TypeEmail},
		{"reply_email", TypeEmail},
		{"website", TypeURL},
		{"signup_url", TypeURL},
		{"profile_link", TypeURL},
		{"expiry_date", TypeDate},
		{"start_time", TypeDate},
		{"item_count", TypeNumber},
		{"order_number", TypeNumber},
		{"total_amount", TypeNumber},
		{"first_name", TypeText},
		{"contact.city", TypeText},
	}
	for _, c := range cases {
		vars := Extract("{{" + c.name + "}}")
		if len(vars) != 1 {
			t.Fatalf("%s: expected 1 variable, got %d", c.name, len(vars))
		}
		if vars[0].Type != c.want {
			t.Errorf("%s: expected type %s, got %s", c.name, c.want, vars[0].Type)
		}
	}
}

func TestExtractRequiredAndDescription(t *testing.T) {
	vars := Extract("{{first_name}} from {{company_name}} about {{promo_code}}")
	byName := map[string]Variable{}
	for _, v := range vars {
		byName[v.Name] = v
	}

	if !byName["first_name"].Required {
		t.Error("first_name should be required")
	}
	if !byName["company_name"].Required {
		t.Error("company_name should be required")
	}
	if byName["promo_code"].Required {
		t.Error("promo_code should not be required")
	}
	if byName["company_name"].Description != "Company Name" {
		t.Errorf("expected description 'Company Name', got %q", byName["company_name"].Description)
	}
}

func TestExtractDottedNames(t *testing.T) {
	vars := Extract("Hello {{contact.first_name}} at {{contact.company}}")
	if len(vars) != 2 {
		t.Fatalf("expected 2 variables, got %d", len(vars))
	}
	if vars[0].Name != "contact.first_name" {
		t.Errorf("expected dotted name kept whole, got %q", vars[0].Name)
	}
	// Dotted names are not the canonical identity fields.
	if vars[0].Required {
		t.Error("contact.first_name should not be marked required")
	}
}

func TestExtractSampleDefaults(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"reply_email", "user@example.com"},
		{"signup_url", "https://example.com"},
		{"expiry_date", "January 2, 2026"},
		{"item_count", "42"},
		{"first_name", "First Name"},
	}
	for _, c := range cases {
		vars := Extract("{{" + c.name + "}}")
		if vars[0].DefaultValue != c.want {
			t.Errorf("%s: expected default %q, got %q", c.name, c.want, vars[0].DefaultValue)
		}
	}
}

func TestSampleValuesRenderFullCoverage(t *testing.T) {
	content := "Hi {{first_name}}, visit {{signup_url}} before {{expiry_date}}"
	vars := Extract(content)
	got := Render(content, SampleValues(vars))
	if strings.Contains(got, "{{") {
		t.Errorf("sample values must cover every variable, got %q", got)
	}
	if !strings.Contains(got, "https://example.com") {
		t.Errorf("expected url sample in preview, got %q", got)
	}
}

func TestRenderScenario(t *testing.T) {
	content := "Hi {{first_name}}, visit {{website}}"
	vars := Extract(content)

	if len(vars) != 2 {
		t.Fatalf("expected 2 variables, got %d", len(vars))
	}
	if vars[0].Name != "first_name" || !vars[0].Required || vars[0].Type != TypeText {
		t.Errorf("unexpected first variable: %+v", vars[0])
	}
	if vars[1].Name != "website" || vars[1].Required || vars[1].Type != TypeURL {
		t.Errorf("unexpected second variable: %+v", vars[1])
	}

	got := Render(content, map[string]string{"first_name": "Ana"})
	if got != "Hi Ana, visit {{website}}" {
		t.Errorf("unexpected render: %q", got)
	}
}

func TestRenderLeavesEmptyValues(t *testing.T) {
	got := Render("Hello {{first_name}}", map[string]string{"first_name": ""})
	if got != "Hello {{first_name}}" {
		t.Errorf("empty value should leave placeholder, got %q", got)
	}
}

func TestRenderFullCoverageLeavesNoTokens(t *testing.T) {
	content := "{{a}} {{b_url}} {{c.d}} text {{a}}"
	values := map[string]string{"a": "1", "b_url": "https://x.test", "c.d": "2"}
	got := Render(content, values)
	if strings.Contains(got, "{{") {
		t.Errorf("rendered output still contains tokens: %q", got)
	}
}

func TestRenderIdempotent(t *testing.T) {
	content := "Hi {{first_name}}, visit {{website}}"
	values := map[string]string{"first_name": "Ana", "website": "https://example.test"}
	once := Render(content, values)
	twice := Render(once, values)
	if once != twice {
		t.Errorf("render not idempotent: %q vs %q", once, twice)
	}
}

func TestValidate(t *testing.T) {
	vars := Extract("{{first_name}} {{company}} {{promo_code}}")

	ok, missing := Validate(vars, map[string]string{
		"first_name": "Ana",
		"company":    "Acme",
	})
	if !ok || len(missing) != 0 {
		t.Errorf("expected valid, got missing=%v", missing)
	}

	ok, missing = Validate(vars, map[string]string{
		"first_name": "   ",
		"company":    "Acme",
	})
	if ok {
		t.Error("whitespace-only required value should be missing")
	}
	if len(missing) != 1 || missing[0] != "first_name" {
		t.Errorf("expected [first_name], got %v", missing)
	}
}
