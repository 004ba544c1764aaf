// Package prompt loads versioned YAML prompt templates from disk.
// Templates live under <dir>/<version>/<group>/<name>.yaml and are
// addressed as "group/name".
package prompt

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/goccy/go-yaml"

	"github.com/qgenie/ai-server/internal/llm"
)

// file is the on-disk YAML shape of one template.
type file struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	System      string `yaml:"system"`
	User        string `yaml:"user"`
}

// Template is one parsed prompt with its system and user parts.
type Template struct {
	Name        string
	Description string

	system *template.Template
	user   *template.Template
}

// Render fills the template with data and returns the message pair to
// send to the model. The system message is omitted when the template has
// no system part.
func (t *Template) Render(data any) ([]llm.Message, error) {
	var messages []llm.Message

	if t.system != nil {
		var sb strings.Builder
		if err := t.system.Execute(&sb, data); err != nil {
			return nil, fmt.Errorf("render %s system: %w", t.Name, err)
		}
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: strings.TrimSpace(sb.String())})
	}

	var ub strings.Builder
	if err := t.user.Execute(&ub, data); err != nil {
		return nil, fmt.Errorf("render %s user: %w", t.Name, err)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: strings.TrimSpace(ub.String())})

	return messages, nil
}

// Library holds all templates of one prompt version.
type Library struct {
	version   string
	templates map[string]*Template
}

// Load reads every YAML template under dir/version.
func Load(dir, version string) (*Library, error) {
	root := filepath.Join(dir, version)
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("prompt version %s not found under %s: %w", version, dir, err)
	}

	lib := &Library{
		version:   version,
		templates: make(map[string]*Template),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var f file
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if f.User == "" {
			return fmt.Errorf("template %s has no user part", path)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ".yaml")

		tmpl, err := parse(key, f)
		if err != nil {
			return err
		}
		lib.templates[key] = tmpl
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(lib.templates) == 0 {
		return nil, fmt.Errorf("no prompt templates under %s", root)
	}
	return lib, nil
}

func parse(key string, f file) (*Template, error) {
	t := &Template{
		Name:        key,
		Description: f.Description,
	}

	user, err := template.New(key + "/user").Option("missingkey=error").Parse(f.User)
	if err != nil {
		return nil, fmt.Errorf("parse %s user template: %w", key, err)
	}
	t.user = user

	if f.System != "" {
		system, err := template.New(key + "/system").Option("missingkey=error").Parse(f.System)
		if err != nil {
			return nil, fmt.Errorf("parse %s system template: %w", key, err)
		}
		t.system = system
	}

	return t, nil
}

// Version returns the loaded prompt version.
func (l *Library) Version() string {
	return l.version
}

// Get returns the template addressed as "group/name".
func (l *Library) Get(name string) (*Template, error) {
	t, ok := l.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt template %q (version %s)", name, l.version)
	}
	return t, nil
}

// Names lists all loaded template keys.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.templates))
	for k := range l.templates {
		names = append(names, k)
	}
	return names
}
