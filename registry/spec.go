package registry

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

// Spec describes one estimator to build, as written in a YAML file:
//
//	# estimators.yaml
//	- name: compact
//	  variant: pca
//	  latent_dim: 3
//	  params:
//	    whiten: true
type Spec struct {
	Name      string         `yaml:"name"`
	Variant   string         `yaml:"variant"`
	LatentDim int            `yaml:"latent_dim"`
	Params    map[string]any `yaml:"params"`
}

// ConfigMap returns the mapping Build expects: params plus latent_dim.
func (s Spec) ConfigMap() map[string]any {
	m := make(map[string]any, len(s.Params)+1)
	for k, v := range s.Params {
		m[k] = v
	}
	m[model.LatentDimKey] = s.LatentDim
	return m
}

// Built is an estimator produced from a Spec.
type Built struct {
	Name      string
	Variant   string
	Estimator model.Estimator
}

// LoadSpecs parses a YAML list of specs. Names default to the variant id and
// must be unique.
func LoadSpecs(r io.Reader) ([]Spec, error) {
	var specs []Spec
	if err := yaml.NewDecoder(r).Decode(&specs); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(err, "parsing estimator specs")
	}

	seen := make(map[string]bool, len(specs))
	for i := range specs {
		s := &specs[i]
		if s.Variant == "" {
			return nil, errors.NewValidationError("variant", "every spec needs a variant", i)
		}
		if s.Name == "" {
			s.Name = s.Variant
		}
		if seen[s.Name] {
			return nil, errors.NewValidationError("name", "duplicate spec name", s.Name)
		}
		seen[s.Name] = true
	}
	return specs, nil
}

// LoadSpecsFile reads specs from a YAML file.
func LoadSpecsFile(path string) ([]Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening spec file %s", path)
	}
	defer f.Close()
	return LoadSpecs(f)
}

// BuildAll builds every spec in order and stops at the first failure.
func (r *Registry) BuildAll(specs []Spec) ([]Built, error) {
	out := make([]Built, 0, len(specs))
	for _, s := range specs {
		est, err := r.Build(s.Variant, s.ConfigMap())
		if err != nil {
			return nil, errors.Wrapf(err, "building spec %q", s.Name)
		}
		out = append(out, Built{Name: s.Name, Variant: s.Variant, Estimator: est})
	}
	return out, nil
}
