// Package config loads default parameters of checks from a yaml file.
//
// Top-level keys are check names, values are mappings of parameters passed to the check,
// unless a request overrides them:
//
//	blacklist:
//	  words: [free, viagra, casino, crypto]
//	  max_hits: 2
//	message_length:
//	  min_length: 5
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/spamd/spamd/lib/spamcheck"
)

// Defaults is a set of default parameters per check name
type Defaults map[string]spamcheck.Params

// LoadDefaults reads defaults from the yaml file
func LoadDefaults(path string) (Defaults, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is set by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read check defaults %s: %w", path, err)
	}
	res, err := ParseDefaults(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse check defaults %s: %w", path, err)
	}
	return res, nil
}

// ParseDefaults parses yaml defaults. A check with an empty value gets empty params.
func ParseDefaults(data []byte) (Defaults, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	res := make(Defaults, len(raw))
	for name, v := range raw {
		switch val := v.(type) {
		case nil:
			res[name] = spamcheck.Params{}
		case map[string]any:
			res[name] = spamcheck.Params(val)
		default:
			return nil, fmt.Errorf("params of %q must be a mapping, got %T", name, v)
		}
	}
	return res, nil
}

// Names returns sorted names of checks with defaults
func (d Defaults) Names() []string {
	res := make([]string, 0, len(d))
	for name := range d {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}
