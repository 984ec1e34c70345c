package deriver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/softwarefactory-project/sfconfig/pkg/arch"
	"github.com/softwarefactory-project/sfconfig/pkg/config"
	"github.com/softwarefactory-project/sfconfig/pkg/secrets"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvisioner returns deterministic key material and counts requests
type fakeProvisioner struct {
	requests []string
	err      error
}

func (f *fakeProvisioner) SSHKeyPair(ctx context.Context, name string) (types.KeyPair, error) {
	f.requests = append(f.requests, "ssh:"+name)
	if f.err != nil {
		return types.KeyPair{}, f.err
	}
	return types.KeyPair{Private: "private-" + name, Public: "ssh-rsa " + name}, nil
}

func (f *fakeProvisioner) RSAKeyPair(ctx context.Context, name string) (types.KeyPair, error) {
	f.requests = append(f.requests, "rsa:"+name)
	if f.err != nil {
		return types.KeyPair{}, f.err
	}
	return types.KeyPair{Private: "rsa-private-" + name, Public: "rsa-public-" + name}, nil
}

func (f *fakeProvisioner) GatewayCertificates(ctx context.Context, fqdn string) (types.GatewayCertificates, error) {
	f.requests = append(f.requests, "gateway:"+fqdn)
	if f.err != nil {
		return types.GatewayCertificates{}, f.err
	}
	return types.GatewayCertificates{CAPEM: "ca", CertPEM: "cert-" + fqdn, KeyPEM: "key"}, nil
}

func builtinDefaults(role string) (config.Document, error) {
	return config.LoadRoleDefaults("", role)
}

func newStore(t *testing.T, values map[string]string) (*secrets.Store, *secrets.MemoryBackend) {
	t.Helper()
	backend := &secrets.MemoryBackend{Values: values}
	store, err := secrets.Open(backend)
	require.NoError(t, err)
	return store, backend
}

func newDeriver(store SecretStore, keys *fakeProvisioner) *Deriver {
	return New(store, keys, Options{
		Share:       "/usr/share/sf-config",
		AnsibleRoot: "/var/lib/software-factory/ansible",
		Version:     "2.3.0",
		Defaults:    builtinDefaults,
	})
}

// buildArch bypasses the resolver so that incomplete architectures can be
// derived
func buildArch(domain string, hosts ...types.RawHost) *types.Architecture {
	a := types.NewArchitecture(domain)
	for _, raw := range hosts {
		a.AddHost(&types.Host{
			Name:     raw.Name,
			IP:       raw.IP,
			Roles:    raw.Roles,
			Hostname: arch.Hostname(raw.Name, domain),
			Aliases:  arch.Aliases(raw.Name, raw.Roles, domain),
		})
	}
	return a
}

func fullArch(t *testing.T) *types.Architecture {
	t.Helper()
	a, err := arch.Resolve([]types.RawHost{
		{Name: "managesf", IP: "192.168.0.1", Roles: []string{
			"install-server", "gateway", "cauth", "managesf", "mysql", "gerrit",
			"jenkins", "zuul", "nodepool", "firehose", "grafana", "influxdb",
			"lodgeit", "etherpad", "storyboard", "murmur",
		}},
	}, "sftests.com", arch.Options{})
	require.NoError(t, err)
	return a
}

func site() *types.SiteConfig {
	return &types.SiteConfig{FQDN: "sftests.com"}
}

func TestDeriveFullArchitecture(t *testing.T) {
	store, _ := newStore(t, nil)
	keys := &fakeProvisioner{}

	site := site()
	site.Mumble.Password = "mumble"
	site.Nodepool.Providers = []types.NodepoolProvider{{"name": "cloud", "auth_url": "https://cloud/v3"}}

	vars, err := newDeriver(store, keys).Derive(context.Background(), fullArch(t), site)
	require.NoError(t, err)

	host := "managesf.sftests.com"
	expected := map[string]interface{}{
		"gateway_url":           "https://sftests.com",
		"sf_version":            "2.3.0",
		"sf_tasks_dir":          "/usr/share/sf-config/ansible/tasks",
		"sf_templates_dir":      "/usr/share/sf-config/templates",
		"sf_playbooks_dir":      "/var/lib/software-factory/ansible",
		"mysql_host":            host,
		"cauth_privkey":         "rsa-private-cauth",
		"cauth_pubkey":          "rsa-public-cauth",
		"cauth_mysql_host":      host,
		"managesf_internal_url": "http://" + host + ":20001",
		"managesf_mysql_host":   host,
		"gerrit_host":           host,
		"gerrit_pub_url":        "https://sftests.com/r/",
		"gerrit_internal_url":   "http://" + host + ":8000/r/",
		"gerrit_email":          "gerrit@sftests.com",
		"gerrit_mysql_host":     host,
		"gerrit_service_rsa":    "private-gerrit_service_rsa",
		"gerrit_admin_rsa_pub":  "ssh-rsa gerrit_admin_rsa",
		"zuul_pub_url":          "https://sftests.com/zuul/",
		"zuul_internal_url":     "http://" + host + ":8001/",
		"nodepool_mysql_host":   host,
		"jenkins_host":          host,
		"jenkins_internal_url":  "http://" + host + ":8082/jenkins/",
		"jenkins_api_url":       "http://" + host + ":8080/jenkins/",
		"jenkins_pub_url":       "https://sftests.com/jenkins/",
		"jenkins_rsa":           "private-jenkins_rsa",
		"firehose_host":         host,
		"grafana_internal_url":  "http://" + host + ":3000/",
		"grafana_mysql_host":    host,
		"influxdb_host":         host,
		"lodgeit_mysql_host":    host,
		"etherpad_mysql_host":   host,
		"storyboard_mysql_host": host,
		"murmur_password":       "mumble",
		"localCA_pem":           "ca",
		"gateway_crt":           "cert-sftests.com",
		"gateway_chain":         "cert-sftests.com",
		"gateway_key":           "key",
		"service_rsa_pub":       "ssh-rsa service_rsa",
	}
	for key, value := range expected {
		assert.Equal(t, value, vars[key], "variable %s", key)
	}

	// A usable provider keeps the zuul default
	assert.False(t, vars.Has("zuul_offline_node_when_complete"))
	assert.Equal(t, site.Nodepool.Providers, vars["nodepool_providers"])

	dbs := vars.Databases()
	for _, service := range []string{"cauth", "managesf", "gerrit", "nodepool", "grafana", "lodgeit", "etherpad", "storyboard"} {
		require.Contains(t, dbs, service)
		assert.Equal(t, service, dbs[service].User)
		password, ok := store.Get(service + "_mysql_password")
		require.True(t, ok, "secret for %s", service)
		assert.Equal(t, password, dbs[service].Password)
	}
	// Single host: gerrit database hosts are de-duplicated
	assert.Equal(t, []string{"localhost", host}, dbs["gerrit"].Hosts)
}

func TestDeriveIdempotentPasswords(t *testing.T) {
	store, backend := newStore(t, nil)
	a := fullArch(t)

	first, err := newDeriver(store, &fakeProvisioner{}).Derive(context.Background(), a, site())
	require.NoError(t, err)
	require.NoError(t, store.Save())

	// Reopen the store as the next run would
	reopened, err := secrets.Open(backend)
	require.NoError(t, err)
	second, err := newDeriver(reopened, &fakeProvisioner{}).Derive(context.Background(), a, site())
	require.NoError(t, err)

	assert.Equal(t, first.Databases()["gerrit"].Password, second.Databases()["gerrit"].Password)
	assert.Equal(t, first.Databases(), second.Databases())
	assert.Empty(t, reopened.Generated())
}

func TestDeriveKeepsExistingSecrets(t *testing.T) {
	store, _ := newStore(t, map[string]string{"gerrit_mysql_password": "operator-choice"})

	vars, err := newDeriver(store, &fakeProvisioner{}).Derive(context.Background(), fullArch(t), site())
	require.NoError(t, err)
	assert.Equal(t, "operator-choice", vars.Databases()["gerrit"].Password)
}

func TestDeriveGerritWithoutMySQL(t *testing.T) {
	store, _ := newStore(t, nil)
	a := buildArch("sftests.com",
		types.RawHost{Name: "gw", IP: "10.0.0.1", Roles: []string{"install-server", "gateway"}},
		types.RawHost{Name: "review", IP: "10.0.0.2", Roles: []string{"gerrit"}},
	)

	_, err := newDeriver(store, &fakeProvisioner{}).Derive(context.Background(), a, site())
	require.Error(t, err)

	var missing *types.MissingRoleError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, "mysql", missing.Role)
	assert.Equal(t, "gerrit", missing.NeededBy)
}

func TestDeriveMultipleHosts(t *testing.T) {
	store, _ := newStore(t, nil)
	a := buildArch("sftests.com",
		types.RawHost{Name: "gw", IP: "10.0.0.1", Roles: []string{"install-server", "gateway", "mysql"}},
		types.RawHost{Name: "j1", IP: "10.0.0.2", Roles: []string{"jenkins"}},
		types.RawHost{Name: "j2", IP: "10.0.0.3", Roles: []string{"jenkins"}},
	)

	_, err := newDeriver(store, &fakeProvisioner{}).Derive(context.Background(), a, site())
	var multiple *types.MultipleHostsError
	require.True(t, errors.As(err, &multiple), "got %v", err)
	assert.Equal(t, "jenkins", multiple.Role)
	assert.Equal(t, []string{"j1", "j2"}, multiple.Hosts)
}

func TestDeriveGerritDatabaseHosts(t *testing.T) {
	store, _ := newStore(t, nil)
	a := buildArch("sftests.com",
		types.RawHost{Name: "gw", IP: "10.0.0.1", Roles: []string{"install-server", "gateway", "mysql", "managesf"}},
		types.RawHost{Name: "review", IP: "10.0.0.2", Roles: []string{"gerrit"}},
	)

	vars, err := newDeriver(store, &fakeProvisioner{}).Derive(context.Background(), a, site())
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"localhost", "review.sftests.com", "gw.sftests.com"},
		vars.Databases()["gerrit"].Hosts)
	assert.Equal(t, []string{"localhost", "gw.sftests.com"}, vars.Databases()["managesf"].Hosts)
}

func TestDeriveDebug(t *testing.T) {
	store, _ := newStore(t, nil)
	site := site()
	site.Debug = true

	vars, err := newDeriver(store, &fakeProvisioner{}).Derive(context.Background(), fullArch(t), site)
	require.NoError(t, err)

	var debugKeys []string
	for key, value := range vars {
		if strings.HasSuffix(key, "loglevel") {
			debugKeys = append(debugKeys, key)
			if strings.HasSuffix(key, "_root_loglevel") {
				assert.Equal(t, "INFO", value)
			} else {
				assert.Equal(t, "DEBUG", value)
			}
		}
	}
	assert.ElementsMatch(t, []string{
		"managesf_loglevel", "managesf_root_loglevel",
		"zuul_loglevel", "zuul_root_loglevel",
		"nodepool_loglevel", "nodepool_root_loglevel",
	}, debugKeys)

	// Without debug no level is raised
	vars, err = newDeriver(store, &fakeProvisioner{}).Derive(context.Background(), fullArch(t), &types.SiteConfig{FQDN: "sftests.com"})
	require.NoError(t, err)
	for key := range vars {
		assert.False(t, strings.HasSuffix(key, "loglevel"), "unexpected %s", key)
	}
}

func TestDeriveSparseOutput(t *testing.T) {
	store, _ := newStore(t, nil)
	keys := &fakeProvisioner{}
	a, err := arch.Resolve([]types.RawHost{
		{Name: "gw", IP: "10.0.0.1", Roles: []string{"install-server", "gateway", "mysql", "gerrit"}},
	}, "sftests.com", arch.Options{})
	require.NoError(t, err)

	vars, err := newDeriver(store, keys).Derive(context.Background(), a, site())
	require.NoError(t, err)

	for _, absent := range []string{"zuul", "jenkins", "nodepool", "cauth", "managesf", "grafana", "murmur", "firehose"} {
		for key := range vars {
			assert.False(t, strings.HasPrefix(key, absent+"_"), "%s should not be derived, got %s", absent, key)
		}
		assert.NotContains(t, vars.Databases(), absent)
	}
	assert.Equal(t, []string{"gerrit"}, keysOf(vars.Databases()))
	assert.ElementsMatch(t, []string{
		"gateway:sftests.com", "ssh:service_rsa", "ssh:gerrit_service_rsa", "ssh:gerrit_admin_rsa",
	}, keys.requests)
}

func keysOf(m map[string]types.DatabaseCredential) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestDeriveZuulOfflineNodes(t *testing.T) {
	tests := []struct {
		name      string
		nodepool  bool
		providers []types.NodepoolProvider
		offline   bool
	}{
		{name: "no nodepool role", nodepool: false, offline: true},
		{name: "no provider", nodepool: true, offline: true},
		{name: "single provider without endpoint", nodepool: true,
			providers: []types.NodepoolProvider{{"name": "default", "auth_url": ""}}, offline: true},
		{name: "single usable provider", nodepool: true,
			providers: []types.NodepoolProvider{{"name": "cloud", "auth_url": "https://cloud"}}, offline: false},
		{name: "two providers", nodepool: true,
			providers: []types.NodepoolProvider{{"name": "a", "auth_url": ""}, {"name": "b", "auth_url": ""}}, offline: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles := []string{"install-server", "gateway", "mysql", "gerrit", "zuul"}
			if tt.nodepool {
				roles = append(roles, "nodepool")
			}
			a := buildArch("sftests.com", types.RawHost{Name: "node", IP: "10.0.0.1", Roles: roles})
			site := site()
			site.Nodepool.Providers = tt.providers

			store, _ := newStore(t, nil)
			vars, err := newDeriver(store, &fakeProvisioner{}).Derive(context.Background(), a, site)
			require.NoError(t, err)

			if tt.offline {
				assert.Equal(t, false, vars["zuul_offline_node_when_complete"])
			} else {
				assert.False(t, vars.Has("zuul_offline_node_when_complete"))
			}
		})
	}
}

func TestDeriveChangeMeDefaults(t *testing.T) {
	store, _ := newStore(t, map[string]string{"mumble_ice_secret": "old"})
	defaults := func(role string) (config.Document, error) {
		doc, err := config.LoadRoleDefaults("", role)
		if err != nil {
			return nil, err
		}
		if role == "gerrit" {
			doc["gerrit_admin_password"] = `"CHANGE_ME"`
			doc["gerrit_theme"] = "default"
		}
		return doc, nil
	}
	d := New(store, &fakeProvisioner{}, Options{Defaults: defaults})

	vars, err := d.Derive(context.Background(), fullArch(t), site())
	require.NoError(t, err)

	password, ok := store.Get("gerrit_admin_password")
	require.True(t, ok)
	assert.Len(t, password, 36)
	_, ok = store.Get("gerrit_theme")
	assert.False(t, ok)
	assert.False(t, vars.Has("gerrit_admin_password"))

	_, ok = store.Get("mumble_ice_secret")
	assert.False(t, ok, "obsolete secret should be removed")
}

func TestDeriveRoleDefaultsFromShare(t *testing.T) {
	share := t.TempDir()
	path := config.RoleDefaultsPath(share, "gerrit")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("gerrit_port: 8080\n"), 0600))

	store, _ := newStore(t, nil)
	d := New(store, &fakeProvisioner{}, Options{Share: share})

	vars, err := d.Derive(context.Background(), fullArch(t), site())
	require.NoError(t, err)
	assert.Equal(t, "http://managesf.sftests.com:8080/r/", vars["gerrit_internal_url"])
	assert.Equal(t, "http://managesf.sftests.com:8001/", vars["zuul_internal_url"])
}

func TestDeriveThemeImages(t *testing.T) {
	assets := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(assets, "logo-topmenu.png"), []byte("PNG"), 0600))

	store, _ := newStore(t, nil)
	d := New(store, &fakeProvisioner{}, Options{AssetDir: assets, Defaults: builtinDefaults})

	vars, err := d.Derive(context.Background(), fullArch(t), site())
	require.NoError(t, err)
	assert.Equal(t, "UE5H", vars["gateway_topmenu_logo_data"])
	assert.False(t, vars.Has("gateway_favicon_data"))
}

func TestDeriveProvisioningFailure(t *testing.T) {
	store, _ := newStore(t, nil)
	failure := &types.ProvisioningError{Command: []string{"openssl"}, ExitCode: 1}

	_, err := newDeriver(store, &fakeProvisioner{err: failure}).Derive(context.Background(), fullArch(t), site())
	var perr *types.ProvisioningError
	assert.True(t, errors.As(err, &perr))
}

func TestDeriveRequiresFQDN(t *testing.T) {
	store, _ := newStore(t, nil)
	_, err := newDeriver(store, &fakeProvisioner{}).Derive(context.Background(), fullArch(t), &types.SiteConfig{})
	var verr *types.ValidationError
	assert.True(t, errors.As(err, &verr))
}
