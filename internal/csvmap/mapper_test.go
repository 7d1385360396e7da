package csvmap

import (
	"reflect"
	"testing"

	"github.com/replaydeck/replaydeck/internal/recording"
)

func contactTable() *Table {
	return &Table{
		Headers: []string{"name", "email", "phone"},
		Rows: [][]string{
			{"Jane", "jane@x.io", "555"},
			{"Ana", "ana@y.dev"},
		},
	}
}

func TestSubstituteNamedAndPositional(t *testing.T) {
	t.Parallel()

	m := New(contactTable(), Options{Trim: true})
	result, err := m.Substitute("Hi {{name}} ({{$2}})", 0)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if result.Output != "Hi Jane (jane@x.io)" {
		t.Fatalf("output = %q", result.Output)
	}
	if !reflect.DeepEqual(result.Substituted, []string{"name", "$2"}) {
		t.Fatalf("substituted = %v", result.Substituted)
	}
	if len(result.Missing) != 0 || !result.Complete {
		t.Fatalf("expected complete substitution, got %+v", result)
	}
}

func TestSubstituteCaseInsensitiveNormalizedHeaders(t *testing.T) {
	t.Parallel()

	m := New(&Table{
		Headers: []string{" Full Name ", "E-Mail!"},
		Rows:    [][]string{{"Jane Doe", "jane@x.io"}},
	}, Options{})

	result, err := m.Substitute("{{FULL NAME}} <{{email}}>", 0)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if result.Output != "Jane Doe <jane@x.io>" {
		t.Fatalf("output = %q", result.Output)
	}
}

func TestSubstituteMissingVariableNonStrict(t *testing.T) {
	t.Parallel()

	m := New(contactTable(), Options{Default: ""})
	result, err := m.Substitute("Hi {{nickname}}!", 0)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if result.Output != "Hi !" {
		t.Fatalf("output = %q", result.Output)
	}
	if !reflect.DeepEqual(result.Missing, []string{"nickname"}) || result.Complete {
		t.Fatalf("missing variable should be reported, got %+v", result)
	}
}

func TestSubstituteMissingVariableStrict(t *testing.T) {
	t.Parallel()

	m := New(contactTable(), Options{Strict: true})
	if _, err := m.Substitute("Hi {{nickname}}!", 0); err == nil {
		t.Fatal("strict mode must error on missing variables")
	}
}

func TestSubstituteShortRowReadsEmpty(t *testing.T) {
	t.Parallel()

	m := New(contactTable(), Options{})
	result, err := m.Substitute("phone: {{phone}}", 1)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	// Row 1 has no phone cell; the column exists, so it reads as empty.
	if result.Output != "phone: " || !result.Complete {
		t.Fatalf("short-row cell should read empty, got %+v", result)
	}
}

func TestSubstituteNoTokensReturnsInputUnchanged(t *testing.T) {
	t.Parallel()

	m := New(contactTable(), Options{})
	input := "no variables here {not one}"
	result, err := m.Substitute(input, 0)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if result.Output != input {
		t.Fatalf("output = %q, want input unchanged", result.Output)
	}
}

func TestExtractVariablesMatchesSubstitution(t *testing.T) {
	t.Parallel()

	template := "{{name}} {{$1}} {{name}} {{missing_one}}"
	vars := ExtractVariables(template)
	if !reflect.DeepEqual(vars, []string{"name", "$1", "missing_one"}) {
		t.Fatalf("ExtractVariables = %v", vars)
	}

	m := New(contactTable(), Options{})
	result, err := m.Substitute(template, 0)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	replaced := map[string]bool{}
	for _, name := range result.Substituted {
		replaced[name] = true
	}
	for _, name := range result.Missing {
		replaced[name] = true
	}
	for _, name := range vars {
		if !replaced[name] {
			t.Fatalf("extracted variable %q was not touched by substitute", name)
		}
	}
}

func TestHasVariables(t *testing.T) {
	t.Parallel()

	if !HasVariables("{{name}}") {
		t.Fatal("token should be detected")
	}
	if HasVariables("plain text") || HasVariables("{single}") || HasVariables("{{}}") {
		t.Fatal("non-tokens must not be detected")
	}
	if HasVariables("no closing {{brace") {
		t.Fatal("unterminated token must not be detected")
	}
}

func TestSubstituteStepReturnsNewStep(t *testing.T) {
	t.Parallel()

	m := New(contactTable(), Options{Trim: true})
	original := recording.Step{
		ID:           "s1",
		Event:        recording.EventInput,
		Selector:     "#email",
		Value:        "{{email}}",
		InputText:    "{{name}}",
		VisionTarget: "Welcome {{name}}",
	}

	substituted, result, err := m.SubstituteStep(original, 0)
	if err != nil {
		t.Fatalf("SubstituteStep: %v", err)
	}
	if substituted.Value != "jane@x.io" || substituted.InputText != "Jane" || substituted.VisionTarget != "Welcome Jane" {
		t.Fatalf("substituted step: %+v", substituted)
	}
	if original.Value != "{{email}}" {
		t.Fatal("original step must not be mutated")
	}
	if !result.Complete || len(result.Substituted) != 3 {
		t.Fatalf("aggregate result: %+v", result)
	}
}

func TestParseRFC4180Quoting(t *testing.T) {
	t.Parallel()

	data := "name,notes\n" +
		"\"Doe, Jane\",\"said \"\"hi\"\"\"\n" +
		"Bob,plain"

	table, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(table.Headers, []string{"name", "notes"}) {
		t.Fatalf("headers = %v", table.Headers)
	}
	if table.Rows[0][0] != "Doe, Jane" || table.Rows[0][1] != `said "hi"` {
		t.Fatalf("quoted row = %v", table.Rows[0])
	}
	if table.Rows[1][0] != "Bob" {
		t.Fatalf("plain row = %v", table.Rows[1])
	}
}

func TestParseRejectsOverlongRows(t *testing.T) {
	t.Parallel()

	if _, err := Parse("a,b\n1,2,3\n"); err == nil {
		t.Fatal("row wider than the header must be rejected")
	}
}

func TestNormalizeHeader(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"Name", "name"},
		{" Full Name ", "full_name"},
		{"E-Mail!", "email"},
		{"phone_2", "phone_2"},
	}
	for _, tt := range tests {
		if got := NormalizeHeader(tt.in); got != tt.want {
			t.Fatalf("NormalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
