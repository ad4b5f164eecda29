package llm

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"venuefinds/internal/schema"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts are the extraction prompt templates. System prompts are keyed by
// provider with "default" as the fallback. The user template understands
// {entity_name}, {entity_type}, {fields}, {schema} and {raw_text}.
type Prompts struct {
	System map[string]string `yaml:"system"`
	User   string            `yaml:"user"`
}

// LoadPrompts returns the embedded prompts, with any keys from path layered
// on top. An empty path means the embedded prompts only.
func LoadPrompts(path string) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &p); err != nil {
		return nil, fmt.Errorf("parse embedded prompts: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return &p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse prompts yaml: %w", err)
	}
	for k, v := range override.System {
		p.System[k] = v
	}
	if strings.TrimSpace(override.User) != "" {
		p.User = override.User
	}
	return &p, nil
}

func (p *Prompts) systemFor(provider string) string {
	if s, ok := p.System[provider]; ok && strings.TrimSpace(s) != "" {
		return s
	}
	return p.System["default"]
}

// Render fills the templates for one request.
func (p *Prompts) Render(provider string, reg *schema.Registry, req Request) (string, string, error) {
	systemPrompt := p.systemFor(provider)
	if strings.TrimSpace(systemPrompt) == "" {
		return "", "", fmt.Errorf("no system prompt for provider %q", provider)
	}
	schemaJSON, err := json.MarshalIndent(reg.JSONSchema(), "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal extraction schema: %w", err)
	}

	var fields strings.Builder
	for _, f := range reg.ExtractableFields() {
		fmt.Fprintf(&fields, "- %s (%s): %s\n", f.Name, f.Kind, f.Description)
	}

	// Single pass, so placeholders inside the raw text are left alone.
	userPrompt := strings.NewReplacer(
		"{entity_name}", req.EntityName,
		"{entity_type}", reg.EntityType(),
		"{fields}", strings.TrimRight(fields.String(), "\n"),
		"{schema}", string(schemaJSON),
		"{raw_text}", req.RawText,
	).Replace(p.User)
	return systemPrompt, userPrompt, nil
}
