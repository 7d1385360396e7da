// mapper.go — Variable substitution for data-driven replay.
// Replaces {{name}} and {{$n}} tokens in step fields with cells from the
// active CSV row. Substitution returns new values; inputs are never mutated.
package csvmap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/replaydeck/replaydeck/internal/recording"
)

var tokenPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Options tunes substitution behavior.
type Options struct {
	Strict  bool   // missing variable is an error instead of a default
	Default string // value used for missing variables in non-strict mode
	Trim    bool   // trim substituted values
}

// Result reports one template substitution.
type Result struct {
	Output      string   `json:"output"`
	Substituted []string `json:"substituted,omitempty"`
	Missing     []string `json:"missing,omitempty"`
	Complete    bool     `json:"complete"`
}

// Mapper resolves variables against a loaded CSV table.
type Mapper struct {
	headers    []string
	normalized map[string]int
	rows       [][]string
	opts       Options
}

// New creates a mapper over the table.
func New(table *Table, opts Options) *Mapper {
	m := &Mapper{
		headers:    table.Headers,
		normalized: make(map[string]int, len(table.Headers)),
		rows:       table.Rows,
		opts:       opts,
	}
	for i, header := range table.Headers {
		key := NormalizeHeader(header)
		if _, taken := m.normalized[key]; !taken {
			m.normalized[key] = i
		}
	}
	return m
}

// RowCount returns the number of data rows.
func (m *Mapper) RowCount() int { return len(m.rows) }

// NormalizeHeader trims, lowercases, maps spaces to underscores, and strips
// everything else that is neither alphanumeric nor an underscore.
func NormalizeHeader(header string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(strings.ToLower(header)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}

// HasVariables reports whether the template contains any token.
func HasVariables(template string) bool {
	return strings.Contains(template, "{{") && tokenPattern.MatchString(template)
}

// ExtractVariables lists the variable names a template references, in
// order of first appearance.
func ExtractVariables(template string) []string {
	var names []string
	seen := map[string]bool{}
	for _, match := range tokenPattern.FindAllStringSubmatch(template, -1) {
		name := strings.TrimSpace(match[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Substitute replaces every token in the template using the given row.
// Templates without "{{" are returned unchanged.
func (m *Mapper) Substitute(template string, rowIndex int) (Result, error) {
	result := Result{Output: template, Complete: true}
	if !strings.Contains(template, "{{") {
		return result, nil
	}
	if rowIndex < 0 || rowIndex >= len(m.rows) {
		return result, fmt.Errorf("row index %d outside 0-%d", rowIndex, len(m.rows)-1)
	}
	row := m.rows[rowIndex]

	var missingErr error
	result.Output = tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.TrimSpace(token[2 : len(token)-2])
		value, ok := m.lookup(name, row)
		if !ok {
			result.Missing = append(result.Missing, name)
			result.Complete = false
			if m.opts.Strict && missingErr == nil {
				missingErr = fmt.Errorf("variable %q not found in csv row %d", name, rowIndex)
			}
			return m.opts.Default
		}
		result.Substituted = append(result.Substituted, name)
		if m.opts.Trim {
			value = strings.TrimSpace(value)
		}
		return value
	})

	if missingErr != nil {
		return Result{}, missingErr
	}
	return result, nil
}

// lookup resolves one variable: $n is 1-based positional, anything else a
// case-insensitive normalized header name. Cells missing from a short row
// read as empty.
func (m *Mapper) lookup(name string, row []string) (string, bool) {
	if strings.HasPrefix(name, "$") {
		n, err := strconv.Atoi(name[1:])
		if err != nil || n < 1 || n > len(m.headers) {
			return "", false
		}
		return cellAt(row, n-1), true
	}

	index, ok := m.normalized[NormalizeHeader(name)]
	if !ok {
		return "", false
	}
	return cellAt(row, index), true
}

func cellAt(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return row[index]
}

// StepResult aggregates per-field substitution for one step.
type StepResult struct {
	Substituted []string `json:"substituted,omitempty"`
	Missing     []string `json:"missing,omitempty"`
	Complete    bool     `json:"complete"`
}

// SubstituteStep returns a copy of the step with tokens replaced in its
// value, url, input-text, vision-target, and option-text fields. The
// original step is never mutated.
func (m *Mapper) SubstituteStep(step recording.Step, rowIndex int) (recording.Step, StepResult, error) {
	out := step
	aggregate := StepResult{Complete: true}

	fields := []struct {
		name   string
		target *string
	}{
		{"value", &out.Value},
		{"url", &out.URL},
		{"input_text", &out.InputText},
		{"vision_target", &out.VisionTarget},
		{"option_text", &out.OptionText},
	}
	for _, field := range fields {
		if *field.target == "" {
			continue
		}
		result, err := m.Substitute(*field.target, rowIndex)
		if err != nil {
			return step, StepResult{}, fmt.Errorf("substitute %s: %w", field.name, err)
		}
		*field.target = result.Output
		aggregate.Substituted = append(aggregate.Substituted, result.Substituted...)
		aggregate.Missing = append(aggregate.Missing, result.Missing...)
		if !result.Complete {
			aggregate.Complete = false
		}
	}
	return out, aggregate, nil
}
