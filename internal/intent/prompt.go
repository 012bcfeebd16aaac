package intent

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Prompts holds one parsed template per intent.
type Prompts struct {
	byIntent map[Intent]*template.Template
}

type promptData struct {
	Input string
}

var builtin = mustBuiltin()

func mustBuiltin() *Prompts {
	p, err := loadBuiltin()
	if err != nil {
		panic(err)
	}
	return p
}

func loadBuiltin() (*Prompts, error) {
	p := &Prompts{byIntent: make(map[Intent]*template.Template, len(All))}
	for _, in := range All {
		raw, err := templateFS.ReadFile("templates/" + in.Key() + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", in.Key(), err)
		}
		if err := p.set(in, string(raw)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// DefaultPrompts returns a copy of the built-in template set.
func DefaultPrompts() *Prompts {
	cp := &Prompts{byIntent: make(map[Intent]*template.Template, len(builtin.byIntent))}
	for k, v := range builtin.byIntent {
		cp.byIntent[k] = v
	}
	return cp
}

// LoadPrompts returns the built-in templates with any overrides from the YAML
// file at path applied. An empty path yields the built-ins. Keys are intent names
// in lower snake case, e.g. "create_project".
func LoadPrompts(path string) (*Prompts, error) {
	p := DefaultPrompts()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}
	for key, text := range overrides {
		in := Intent(strings.ToUpper(strings.TrimSpace(key)))
		if !in.valid() {
			return nil, fmt.Errorf("prompts file: unknown intent %q", key)
		}
		if err := p.set(in, text); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prompts) set(in Intent, text string) error {
	t, err := template.New(in.Key()).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", in.Key(), err)
	}
	p.byIntent[in] = t
	return nil
}

// Build renders the prompt for in with the user's text. Building for Unknown fails.
func (p *Prompts) Build(in Intent, text string) (string, error) {
	t, ok := p.byIntent[in]
	if !ok {
		return "", fmt.Errorf("no prompt for intent %s", in)
	}
	var b strings.Builder
	if err := t.Execute(&b, promptData{Input: strings.TrimSpace(text)}); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", in.Key(), err)
	}
	return strings.TrimSpace(b.String()), nil
}

// BuildPrompt renders a built-in prompt.
func BuildPrompt(in Intent, text string) (string, error) {
	return builtin.Build(in, text)
}

func (i Intent) valid() bool {
	for _, v := range All {
		if v == i {
			return true
		}
	}
	return false
}
