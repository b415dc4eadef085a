package compose

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template describes how one treatment variant frames its message.
type Template struct {
	Family      string `yaml:"family"`       // top_tier | standard | exhibitor_sales
	Framing     string `yaml:"framing"`      // meet_privately | booth_expo
	Tone        string `yaml:"tone"`
	SubjectHint string `yaml:"subject_hint"`
}

// Registry holds the per-treatment template definitions.
type Registry struct {
	templates map[model.Treatment]Template
}

type registryFile struct {
	Treatments map[string]Template `yaml:"treatments"`
}

// LoadTemplates parses the embedded treatment template registry.
func LoadTemplates() (*Registry, error) {
	return ParseTemplates(templatesYAML)
}

// ParseTemplates parses a template registry from YAML bytes.
func ParseTemplates(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "templates: unmarshal")
	}
	if len(f.Treatments) == 0 {
		return nil, eris.New("templates: no treatments defined")
	}

	r := &Registry{templates: make(map[model.Treatment]Template, len(f.Treatments))}
	for name, tmpl := range f.Treatments {
		r.templates[model.Treatment(name)] = tmpl
	}
	return r, nil
}

// Lookup returns the template for a treatment.
func (r *Registry) Lookup(t model.Treatment) (Template, error) {
	tmpl, ok := r.templates[t]
	if !ok {
		return Template{}, eris.Errorf("templates: no template for treatment %s", t)
	}
	return tmpl, nil
}
