package story

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/branchline/branchline/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Parse decodes a raw story definition. JSON is detected by a leading '{';
// anything else is read as YAML.
func Parse(data []byte) (domain.Story, error) {
	var def domain.Story

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return def, fmt.Errorf("empty story definition")
	}

	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &def); err != nil {
			return def, fmt.Errorf("failed to parse story json: %w", err)
		}
		return def, nil
	}

	if err := yaml.Unmarshal(trimmed, &def); err != nil {
		return def, fmt.Errorf("failed to parse story yaml: %w", err)
	}
	return def, nil
}

// Decode converts a generic map (e.g. decoded frontmatter or a JSON document
// read as map[string]any) into a story definition.
func Decode(raw map[string]any) (domain.Story, error) {
	var def domain.Story

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &def,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return def, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return def, fmt.Errorf("failed to decode story: %w", err)
	}
	return def, nil
}

// LoadBytes parses and loads a story in one step.
func LoadBytes(data []byte, opts ...LoadOption) (*Graph, error) {
	def, err := Parse(data)
	if err != nil {
		return nil, &MalformedStoryError{Reason: "unreadable definition", Err: err}
	}
	return Load(def, opts...)
}
