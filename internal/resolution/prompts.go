package resolution

import (
	"embed"
	"fmt"
	"path"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/chatform/chatform/internal/models"
)

//go:embed prompts/*.yaml
var promptFS embed.FS

// rulePrompt is the rule-specific part of a system prompt
type rulePrompt struct {
	Rule         string `yaml:"rule"`
	DefaultField string `yaml:"default_field"`
	Guidance     string `yaml:"guidance"`
}

type preScreeningPrompt struct {
	OpeningQuestion string `yaml:"opening_question"`
	System          string `yaml:"system"`
}

type promptLibrary struct {
	system       *template.Template
	rules        map[models.RuleID]rulePrompt
	generic      rulePrompt
	preScreening preScreeningPrompt
}

var (
	libraryOnce sync.Once
	library     *promptLibrary
	libraryErr  error
)

// prompts returns the embedded prompt library, parsed once
func prompts() (*promptLibrary, error) {
	libraryOnce.Do(func() {
		library, libraryErr = loadPrompts()
	})
	return library, libraryErr
}

func loadPrompts() (*promptLibrary, error) {
	var base struct {
		Template string `yaml:"template"`
	}
	if err := readYAML("system.yaml", &base); err != nil {
		return nil, err
	}
	tmpl, err := template.New("system").
		Funcs(template.FuncMap{"join": strings.Join}).
		Option("missingkey=error").
		Parse(base.Template)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}

	lib := &promptLibrary{system: tmpl, rules: make(map[models.RuleID]rulePrompt)}
	if err := readYAML("generic.yaml", &lib.generic); err != nil {
		return nil, err
	}
	if err := readYAML("prescreening.yaml", &lib.preScreening); err != nil {
		return nil, err
	}

	entries, err := promptFS.ReadDir("prompts")
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	for _, e := range entries {
		switch e.Name() {
		case "system.yaml", "generic.yaml", "prescreening.yaml":
			continue
		}
		var rp rulePrompt
		if err := readYAML(e.Name(), &rp); err != nil {
			return nil, err
		}
		if rp.Rule == "" {
			return nil, fmt.Errorf("prompt %s has no rule", e.Name())
		}
		lib.rules[models.RuleID(rp.Rule)] = rp
	}
	return lib, nil
}

func readYAML(name string, out any) error {
	data, err := promptFS.ReadFile(path.Join("prompts", name))
	if err != nil {
		return fmt.Errorf("read prompt %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return nil
}

// forRule returns the rule's prompt, or the generic one for unknown rules
func (l *promptLibrary) forRule(rule models.RuleID) rulePrompt {
	if rp, ok := l.rules[rule]; ok {
		return rp
	}
	return l.generic
}
