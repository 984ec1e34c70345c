package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ChangeMe marks a role default that must be replaced by a generated secret
const ChangeMe = "CHANGE_ME"

// builtinDefaults are used when the share directory does not ship a role
var builtinDefaults = map[string]Document{
	"managesf": {"managesf_port": 20001},
	"gerrit":   {"gerrit_port": 8000},
	"zuul":     {"zuul_port": 8001},
	"jenkins":  {"jenkins_http_port": 8082, "jenkins_api_port": 8080},
	"grafana":  {"grafana_http_port": 3000},
}

// RoleDefaultsPath returns the defaults file of the sf-<role> ansible role
func RoleDefaultsPath(share, role string) string {
	return filepath.Join(share, "ansible", "roles", "sf-"+role, "defaults", "main.yml")
}

// LoadRoleDefaults returns the role defaults shipped under share merged over
// the built-in ones
func LoadRoleDefaults(share, role string) (Document, error) {
	defaults := Document{}
	for k, v := range builtinDefaults[role] {
		defaults[k] = v
	}

	if share == "" {
		return defaults, nil
	}
	doc, err := Load(RoleDefaultsPath(share, role))
	if err != nil {
		return nil, fmt.Errorf("role %s defaults: %w", role, err)
	}
	for k, v := range doc {
		defaults[k] = v
	}
	return defaults, nil
}

// IsChangeMe reports whether a default value is the CHANGE_ME placeholder,
// ignoring quotes and surrounding spaces
func IsChangeMe(value interface{}) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	return strings.ReplaceAll(strings.TrimSpace(s), `"`, "") == ChangeMe
}
