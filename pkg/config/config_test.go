package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/softwarefactory-project/sfconfig/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacySFConfig = `
fqdn: sftests.com
services:
  - gerrit
  - zuul
authentication:
  github:
    disabled: false
    github_app_id: app-id
    github_app_secret: app-secret
    github_allowed_organizations: org
    redirect_uri: https://sftests.com/auth/login/github/callback
  launchpad:
    disabled: true
network:
  enforce_ssl: true
mumble:
  disabled: true
theme:
  topmenu_hide_redmine: true
nodepool:
  disabled: true
  providers:
    - name: cloud
      auth-url: https://cloud/v2
      project_id: demo
      max-servers: 5
      pool: public
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.yaml", "")
	doc, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Empty(t, doc)
}

func TestLoadInvalidFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "fqdn: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestUpgradeLegacyDocument(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sfconfig.yaml", legacySFConfig)
	doc, err := Load(path)
	require.NoError(t, err)

	dirty, err := Upgrade(doc, "")
	require.NoError(t, err)
	assert.True(t, dirty)

	assert.NotContains(t, doc, "services")
	assert.Equal(t, false, doc["debug"])
	assert.Equal(t, []interface{}{}, doc["gerrit_connections"])

	auth := doc["authentication"].(map[string]interface{})
	assert.NotContains(t, auth, "github")
	assert.NotContains(t, auth, "launchpad")
	github := auth["oauth2"].(map[string]interface{})["github"].(map[string]interface{})
	assert.Equal(t, "app-id", github["client_id"])
	assert.Equal(t, "app-secret", github["client_secret"])
	assert.Equal(t, "https://sftests.com/auth/login/oauth2/callback", github["redirect_uri"])
	assert.Equal(t, true, auth["openid"].(map[string]interface{})["disabled"])
	oidc := auth["openid_connect"].(map[string]interface{})
	assert.Contains(t, oidc, "mapping")

	network := doc["network"].(map[string]interface{})
	assert.NotContains(t, network, "enforce_ssl")
	assert.Equal(t, false, network["use_letsencrypt"])

	assert.NotContains(t, doc["mumble"], "disabled")
	assert.NotContains(t, doc["theme"], "topmenu_hide_redmine")

	nodepool := doc["nodepool"].(map[string]interface{})
	assert.NotContains(t, nodepool, "disabled")
	provider := nodepool["providers"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "", provider["auth_url"])
	assert.Equal(t, "demo", provider["project_name"])
	assert.NotContains(t, provider, "auth-url")
	assert.NotContains(t, provider, "project_id")
	assert.NotContains(t, provider, "max_servers")
	assert.NotContains(t, provider, "max-servers")
	assert.NotContains(t, provider, "pool")
}

func TestUpgradeIdempotent(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sfconfig.yaml", legacySFConfig)
	doc, err := Load(path)
	require.NoError(t, err)

	dirty, err := Upgrade(doc, "")
	require.NoError(t, err)
	require.True(t, dirty)

	dirty, err = Upgrade(doc, "")
	require.NoError(t, err)
	assert.False(t, dirty, "second upgrade should report a clean document")

	// Same after a save and reload
	require.NoError(t, Save(path, doc))
	reloaded, err := Load(path)
	require.NoError(t, err)
	dirty, err = Upgrade(reloaded, "")
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestUpgradeKeepsOperatorSettings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sfconfig.yaml", `fqdn: sftests.com
mumble:
  password: secret
network:
  use_letsencrypt: true
  static_hostnames:
    - 1.2.3.4 ext.example.com
nodepool:
  providers:
    - name: cloud
      auth_url: https://cloud/v3
`)
	doc, err := Load(path)
	require.NoError(t, err)
	_, err = Upgrade(doc, "")
	require.NoError(t, err)
	require.NoError(t, Save(path, doc))

	reloaded, err := Load(path)
	require.NoError(t, err)
	cfg, err := Decode(reloaded)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Mumble.Password)
	assert.True(t, cfg.Network.UseLetsEncrypt)
	assert.Equal(t, []string{"1.2.3.4 ext.example.com"}, cfg.Network.StaticHostnames)
	require.Len(t, cfg.Nodepool.Providers, 1)
	assert.Equal(t, "https://cloud/v3", cfg.Nodepool.Providers[0].AuthURL())
}

func TestLoadNestedMappings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sfconfig.yaml", "network:\n  use_letsencrypt: true\n")
	doc, err := Load(path)
	require.NoError(t, err)
	_, ok := doc["network"].(map[string]interface{})
	assert.True(t, ok, "nested section has type %T", doc["network"])
}

func TestUpgradeExtractsThemeAssets(t *testing.T) {
	dir := t.TempDir()
	doc := Document{
		"fqdn": "sftests.com",
		"theme": map[string]interface{}{
			// "PNG" base64 encoded, split over lines
			"topmenu_logo_data": "UE5\nH",
		},
	}

	dirty, err := Upgrade(doc, dir)
	require.NoError(t, err)
	assert.True(t, dirty)
	assert.NotContains(t, doc["theme"], "topmenu_logo_data")

	data, err := os.ReadFile(filepath.Join(dir, "logo-topmenu.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(data))
}

func TestSaveKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sfconfig.yaml", "fqdn: old.com\n")

	require.NoError(t, Save(path, Document{"fqdn": "new.com"}))

	orig, err := os.ReadFile(path + ".orig")
	require.NoError(t, err)
	assert.Equal(t, "fqdn: old.com\n", string(orig))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new.com", doc["fqdn"])
}

func TestDecode(t *testing.T) {
	doc := Document{
		"fqdn":  "sftests.com",
		"debug": true,
		"nodepool": map[string]interface{}{
			"providers": []interface{}{
				map[string]interface{}{"name": "cloud", "auth_url": "https://cloud/v3"},
			},
		},
		"mumble":  map[string]interface{}{"password": "secret"},
		"network": map[string]interface{}{"static_hostnames": []interface{}{"1.2.3.4 ext"}},
	}

	cfg, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, "sftests.com", cfg.FQDN)
	assert.True(t, cfg.Debug)
	require.Len(t, cfg.Nodepool.Providers, 1)
	assert.Equal(t, "https://cloud/v3", cfg.Nodepool.Providers[0].AuthURL())
	assert.Equal(t, "secret", cfg.Mumble.Password)
	assert.Equal(t, []string{"1.2.3.4 ext"}, cfg.Network.StaticHostnames)
}

func TestDecodeRequiresFQDN(t *testing.T) {
	_, err := Decode(Document{"debug": false})
	var verr *types.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestLoadRoleDefaults(t *testing.T) {
	share := t.TempDir()
	rolePath := RoleDefaultsPath(share, "gerrit")
	require.NoError(t, os.MkdirAll(filepath.Dir(rolePath), 0755))
	require.NoError(t, os.WriteFile(rolePath, []byte("gerrit_port: 8080\ngerrit_admin_password: \"CHANGE_ME\"\n"), 0600))

	defaults, err := LoadRoleDefaults(share, "gerrit")
	require.NoError(t, err)
	assert.Equal(t, 8080, defaults["gerrit_port"])
	assert.True(t, IsChangeMe(defaults["gerrit_admin_password"]))

	// No file: built-in ports only
	defaults, err = LoadRoleDefaults(share, "zuul")
	require.NoError(t, err)
	assert.Equal(t, Document{"zuul_port": 8001}, defaults)
}

func TestIsChangeMe(t *testing.T) {
	tests := []struct {
		value interface{}
		want  bool
	}{
		{"CHANGE_ME", true},
		{` "CHANGE_ME" `, true},
		{"CHANGE_ME_TOO", false},
		{"", false},
		{42, false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsChangeMe(tt.value), "value %v", tt.value)
	}
}
