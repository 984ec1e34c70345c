package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/softwarefactory-project/sfconfig/pkg/log"
)

// ThemeAsset is an image once embedded in sfconfig.yaml and now kept next to it
type ThemeAsset struct {
	Key  string // theme key holding the base64 data
	File string
	Var  string // group variable receiving the encoded image
}

// ThemeAssets lists the gateway images
var ThemeAssets = []ThemeAsset{
	{Key: "topmenu_logo_data", File: "logo-topmenu.png", Var: "gateway_topmenu_logo_data"},
	{Key: "favicon_data", File: "logo-favicon.ico", Var: "gateway_favicon_data"},
	{Key: "splash_image_data", File: "logo-splash.png", Var: "gateway_splash_image_data"},
}

var (
	renamedProviderKeys  = []string{"auth-url", "project-id", "max-servers", "boot-timeout"}
	obsoleteProviderKeys = []string{"boot_timeout", "max_servers", "network", "pool", "rate"}
	hideableTopmenu      = []string{"redmine", "etherpad", "paste"}
)

// Upgrade migrates an sfconfig.yaml document in place to the current schema
// and reports whether it changed. Theme images still embedded in the
// document are extracted to assetDir; an empty assetDir leaves them alone.
// Upgrading an up to date document is a no-op.
func Upgrade(doc Document, assetDir string) (bool, error) {
	u := &upgrader{doc: doc}

	if err := u.extractThemeAssets(assetDir); err != nil {
		return u.dirty, err
	}

	// Service list is computed from arch.yaml
	u.drop(doc, "services")

	mirrors := u.section(doc, "mirrors")
	u.setDefault(mirrors, "swift_mirror_url", "http://swift:8080/v1/AUTH_uuid/repomirror/")
	u.setDefault(mirrors, "swift_mirror_tempurl_key", "CHANGEME")
	u.setDefault(mirrors, "periodic_update", false)
	u.setDefault(mirrors, "swift_mirror_ttl", 15811200)

	u.upgradeAuthentication()

	u.setDefault(doc, "gerrit_connections", []interface{}{})

	network := u.section(doc, "network")
	u.setDefault(network, "use_letsencrypt", false)
	u.setDefault(network, "static_hostnames", []interface{}{})
	// Always on
	u.drop(network, "enforce_ssl")

	// Murmur is enabled by the arch role
	mumble := u.section(doc, "mumble")
	u.drop(mumble, "disabled")

	theme := u.section(doc, "theme")
	for _, name := range hideableTopmenu {
		u.drop(theme, "topmenu_hide_"+name)
	}

	u.setDefault(doc, "debug", false)

	u.upgradeNodepool()

	return u.dirty, nil
}

type upgrader struct {
	doc   Document
	dirty bool
}

func (u *upgrader) section(parent map[string]interface{}, key string) map[string]interface{} {
	m, created := section(parent, key)
	if created {
		u.dirty = true
	}
	return m
}

func (u *upgrader) setDefault(m map[string]interface{}, key string, value interface{}) {
	if _, ok := m[key]; ok {
		return
	}
	m[key] = value
	u.dirty = true
}

func (u *upgrader) drop(m map[string]interface{}, key string) {
	if _, ok := m[key]; !ok {
		return
	}
	delete(m, key)
	u.dirty = true
}

func (u *upgrader) upgradeAuthentication() {
	auth := u.section(u.doc, "authentication")

	if _, ok := auth["oauth2"]; !ok {
		auth["oauth2"] = map[string]interface{}{
			"github": map[string]interface{}{
				"disabled":                     false,
				"client_id":                    "",
				"client_secret":                "",
				"github_allowed_organizations": "",
			},
			"google": map[string]interface{}{
				"disabled":      false,
				"client_id":     "",
				"client_secret": "",
			},
			"bitbucket": map[string]interface{}{
				"disabled":      true,
				"client_id":     "",
				"client_secret": "",
			},
		}
		u.dirty = true
	}

	u.setDefault(auth, "openid", map[string]interface{}{
		"disabled":          false,
		"server":            "https://login.launchpad.net/+openid",
		"login_button_text": "Log in with the Launchpad service",
	})

	if github, ok := auth["github"].(map[string]interface{}); ok && len(github) > 0 {
		oauth2 := u.section(auth, "oauth2")
		target := u.section(oauth2, "github")
		target["disabled"] = github["disabled"]
		target["client_id"] = github["github_app_id"]
		target["client_secret"] = github["github_app_secret"]
		target["github_allowed_organizations"] = github["github_allowed_organizations"]
		if uri, ok := github["redirect_uri"].(string); ok && uri != "" {
			target["redirect_uri"] = strings.ReplaceAll(uri, "login/github/callback", "login/oauth2/callback")
		}
		delete(auth, "github")
		u.dirty = true
	}

	if launchpad, ok := auth["launchpad"].(map[string]interface{}); ok && len(launchpad) > 0 {
		openid := u.section(auth, "openid")
		openid["disabled"] = launchpad["disabled"]
		if uri, ok := launchpad["redirect_uri"].(string); ok && uri != "" {
			openid["redirect_uri"] = uri
		}
		delete(auth, "launchpad")
		u.dirty = true
	}

	u.setDefault(auth, "openid_connect", map[string]interface{}{
		"disabled":          true,
		"issuer_url":        nil,
		"client_secret":     nil,
		"client_id":         nil,
		"login_button_text": "Log in with OpenID Connect",
	})
	oidc := u.section(auth, "openid_connect")
	u.setDefault(oidc, "mapping", map[string]interface{}{
		"login":    "email",
		"email":    "email",
		"name":     "name",
		"uid":      "sub",
		"ssh_keys": nil,
	})
}

func (u *upgrader) upgradeNodepool() {
	nodepool := u.section(u.doc, "nodepool")
	providers, _ := nodepool["providers"].([]interface{})

	for _, p := range providers {
		if provider, ok := p.(map[string]interface{}); ok {
			for _, name := range renamedProviderKeys {
				if v, ok := provider[name]; ok {
					provider[strings.ReplaceAll(name, "-", "_")] = v
					delete(provider, name)
					u.dirty = true
				}
			}
		}
	}

	if disabled, ok := nodepool["disabled"]; ok {
		// A disabled nodepool keeps its first provider without endpoint
		if b, _ := disabled.(bool); b && len(providers) > 0 {
			if first, ok := providers[0].(map[string]interface{}); ok {
				first["auth_url"] = ""
			}
		}
		delete(nodepool, "disabled")
		u.dirty = true
	}

	for _, p := range providers {
		provider, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		for _, name := range obsoleteProviderKeys {
			u.drop(provider, name)
		}
		if v, ok := provider["project_id"]; ok {
			provider["project_name"] = v
			delete(provider, "project_id")
			u.dirty = true
		}
	}
}

func (u *upgrader) extractThemeAssets(dir string) error {
	if dir == "" {
		return nil
	}
	theme, ok := u.doc["theme"].(map[string]interface{})
	if !ok {
		return nil
	}

	for _, asset := range ThemeAssets {
		data, ok := theme[asset.Key].(string)
		if !ok {
			continue
		}
		path := filepath.Join(dir, asset.File)
		if !fileExists(path) {
			image, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(data), ""))
			if err != nil {
				return fmt.Errorf("theme %s: %w", asset.Key, err)
			}
			if err := os.WriteFile(path, image, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			logger := log.WithComponent("config")
			logger.Info().Str("path", path).Msg("Extracted theme image")
		}
		delete(theme, asset.Key)
		u.dirty = true
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
