package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/softwarefactory-project/sfconfig/pkg/log"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
	"gopkg.in/yaml.v3"
)

// Document is a raw YAML mapping as read from disk
type Document map[string]interface{}

// Load reads a YAML mapping. A missing or empty file is an empty document.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Nested mappings must decode as map[string]interface{}, which a named
	// map target would not give
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if raw == nil {
		return Document{}, nil
	}
	return Document(raw), nil
}

// Save writes doc to path. An existing file is kept as <path>.orig.
func Save(path string, doc Document) error {
	data, err := yaml.Marshal(map[string]interface{}(doc))
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	backup := path + ".orig"
	if err := os.Rename(path, backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to back up %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	logger := log.WithComponent("config")

	logger.Info().
		Str("path", path).
		Str("backup", backup).
		Msg("Updated configuration file")
	return nil
}

// Decode returns the typed view of an sfconfig.yaml document
func Decode(doc Document) (*types.SiteConfig, error) {
	data, err := yaml.Marshal(map[string]interface{}(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}

	var cfg types.SiteConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if cfg.FQDN == "" {
		return nil, &types.ValidationError{Source: "sfconfig", Reason: "fqdn is not set"}
	}
	return &cfg, nil
}

// section returns the mapping under key, creating it when missing. The
// second value reports whether it was created.
func section(doc map[string]interface{}, key string) (map[string]interface{}, bool) {
	if m, ok := doc[key].(map[string]interface{}); ok {
		return m, false
	}
	m := map[string]interface{}{}
	doc[key] = m
	return m, true
}
