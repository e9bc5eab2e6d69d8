// Package prompt fills {slot} placeholders in prompt templates.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"genie/internal/domain"
)

// slotRegex matches {variable} placeholders in templates.
var slotRegex = regexp.MustCompile(`\{(\w+)\}`)

// Template is a parsed prompt template.
type Template struct {
	text  string
	slots []string
}

// NewTemplate parses text and records its slot names in order of first use.
func NewTemplate(text string) *Template {
	matches := slotRegex.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	slots := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			slots = append(slots, m[1])
		}
	}
	return &Template{text: text, slots: slots}
}

// Text returns the raw template.
func (t *Template) Text() string { return t.text }

// Slots returns the slot names the template uses.
func (t *Template) Slots() []string { return append([]string(nil), t.slots...) }

// Format substitutes every slot in one pass, so braces inside the supplied
// values are left alone. A slot without a value is an error.
func (t *Template) Format(vars map[string]string) (string, error) {
	var missing []string
	for _, s := range t.slots {
		if _, ok := vars[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing prompt values for %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return slotRegex.ReplaceAllStringFunc(t.text, func(m string) string {
		return vars[m[1:len(m)-1]]
	}), nil
}
