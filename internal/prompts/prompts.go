// Package prompts renders the role prompts sent to the generation capability.
// Templates are embedded Markdown files with {{Name}} placeholders.
package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"docforge/internal/domain/pipeline"
	"docforge/internal/token"
)

//go:embed *.md
var promptFS embed.FS

// Detail selects how thorough unit documentation is.
type Detail string

const (
	DetailBasic    Detail = "basic"
	DetailDetailed Detail = "detailed"
)

// Valid reports whether d is a known detail level.
func (d Detail) Valid() bool {
	return d == DetailBasic || d == DetailDetailed
}

// Prompt is a rendered system and user message pair.
type Prompt struct {
	System string
	User   string
}

// Library holds the loaded templates.
type Library struct {
	language  string
	templates map[string]string
}

// New loads the embedded templates. language names the source language used
// in the prompts, e.g. "Java".
func New(language string) (*Library, error) {
	if language == "" {
		language = "Java"
	}
	entries, err := promptFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts directory: %w", err)
	}

	templates := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := promptFS.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file %s: %w", entry.Name(), err)
		}
		templates[strings.TrimSuffix(entry.Name(), ".md")] = strings.TrimSpace(string(content))
	}
	return &Library{language: language, templates: templates}, nil
}

// Names lists the loaded template names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render substitutes variables into the named template in a single pass, so
// placeholders inside substituted values are left untouched.
func (l *Library) Render(name string, variables map[string]string) (string, error) {
	content, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt template '%s' not found", name)
	}
	pairs := []string{"{{Language}}", l.language}
	for key, value := range variables {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(content), nil
}

// Documentation renders the per-unit documentation prompt.
func (l *Library) Documentation(detail Detail, unit pipeline.SourceUnit) (Prompt, error) {
	name := "documentation_basic"
	if detail == DetailDetailed {
		name = "documentation_detailed"
	}
	return l.pair("system_documentation", name, map[string]string{
		"File": unit.Name,
		"Code": unit.Content,
	})
}

// Boilerplate renders the boilerplate prompt for a successful record.
func (l *Library) Boilerplate(record pipeline.DocumentationRecord) (Prompt, error) {
	return l.pair("system_codegen", "boilerplate", map[string]string{
		"File":          record.UnitName,
		"Documentation": record.Body,
	})
}

// Test renders the test prompt. The unit's generated boilerplate is passed as
// context.
func (l *Library) Test(record pipeline.DocumentationRecord, boilerplate string) (Prompt, error) {
	return l.pair("system_codegen", "test", map[string]string{
		"File":          record.UnitName,
		"Documentation": record.Body,
		"Boilerplate":   boilerplate,
	})
}

// Architecture renders the whole-codebase overview prompt. Units are included
// in order until maxTokens is reached; the rest are listed by name only.
func (l *Library) Architecture(units []pipeline.SourceUnit, maxTokens int) (Prompt, error) {
	var b strings.Builder
	used := 0
	var omitted []string
	for _, unit := range units {
		if unit.Rejected != nil {
			omitted = append(omitted, unit.Name)
			continue
		}
		section := fmt.Sprintf("// File: %s\n%s\n\n", unit.Name, unit.Content)
		cost := token.Count(section)
		if maxTokens > 0 && used+cost > maxTokens {
			omitted = append(omitted, unit.Name)
			continue
		}
		used += cost
		b.WriteString(section)
	}
	if len(omitted) > 0 {
		b.WriteString("// Files omitted: ")
		b.WriteString(strings.Join(omitted, ", "))
		b.WriteString("\n")
	}
	return l.pair("system_documentation", "architecture", map[string]string{
		"Codebase": strings.TrimSpace(b.String()),
	})
}

func (l *Library) pair(systemName, userName string, variables map[string]string) (Prompt, error) {
	system, err := l.Render(systemName, variables)
	if err != nil {
		return Prompt{}, err
	}
	user, err := l.Render(userName, variables)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}
