package arch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/softwarefactory-project/sfconfig/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalInventory() []types.RawHost {
	return []types.RawHost{
		{Name: "gw", IP: "1.2.3.4", Roles: []string{"gateway"}},
		{Name: "db", IP: "1.2.3.5", Roles: []string{"mysql"}},
		{Name: "inst", Roles: []string{"install-server"}},
		{Name: "g", IP: "1.2.3.6", Roles: []string{"gerrit"}},
	}
}

func TestResolveMinimal(t *testing.T) {
	a, err := Resolve(minimalInventory(), "example.com", Options{InstallServerIP: "9.9.9.9"})
	require.NoError(t, err)

	inst := a.InstallServer()
	require.NotNil(t, inst)
	assert.Equal(t, "9.9.9.9", inst.IP)

	gw := a.Gateway()
	require.NotNil(t, gw)
	assert.Equal(t, "gw.example.com", gw.Hostname)
	assert.Contains(t, gw.Aliases, "example.com")
	assert.Contains(t, gw.Aliases, "gw")
	assert.Contains(t, gw.Aliases, "gateway.example.com")
	assert.Contains(t, gw.Aliases, "gateway")

	assert.Equal(t, "gw.example.com", a.GatewayHostname)
	assert.Equal(t, "1.2.3.4", a.GatewayIP)
	assert.Equal(t, "inst.example.com", a.InstallHostname)
	assert.Equal(t, "9.9.9.9", a.InstallIP)
}

func TestResolveHostnamesAndIndex(t *testing.T) {
	hosts := []types.RawHost{
		{Name: "node1", IP: "10.0.0.1", Roles: []string{"install-server", "gateway", "zuul"}},
		{Name: "node2", IP: "10.0.0.2", Roles: []string{"mysql", "zuul"}},
		{Name: "node3", IP: "10.0.0.3", Roles: []string{"gerrit", "zuul", "nodepool"}},
	}

	a, err := Resolve(hosts, "sftests.com", Options{})
	require.NoError(t, err)

	require.Len(t, a.Inventory, 3)
	for i, h := range a.Inventory {
		assert.Equal(t, hosts[i].Name+".sftests.com", h.Hostname)
	}

	zuul := a.HostsFor("zuul")
	require.Len(t, zuul, 3)
	assert.Equal(t, "node1", zuul[0].Name)
	assert.Equal(t, "node2", zuul[1].Name)
	assert.Equal(t, "node3", zuul[2].Name)

	assert.Len(t, a.HostsFor("nodepool"), 1)
	assert.Empty(t, a.HostsFor("jenkins"))
	assert.Equal(t, []string{"install-server", "gateway", "zuul", "mysql", "gerrit", "nodepool"}, a.RoleNames())
}

func TestResolveInstallServerKeepsIPWithoutOverride(t *testing.T) {
	hosts := minimalInventory()
	hosts[2].IP = "1.2.3.7"

	a, err := Resolve(hosts, "example.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.7", a.InstallServer().IP)
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name     string
		hosts    func() []types.RawHost
		domain   string
		opts     Options
		validate bool
		multiple bool
		message  string
	}{
		{
			name:     "host without ip",
			hosts:    minimalInventory,
			domain:   "example.com",
			validate: true,
			message:  "host 'inst' needs an ip",
		},
		{
			name: "missing gerrit",
			hosts: func() []types.RawHost {
				return minimalInventory()[:3]
			},
			domain:   "example.com",
			opts:     Options{InstallServerIP: "9.9.9.9"},
			validate: true,
			message:  "gerrit role is missing",
		},
		{
			name: "missing gateway",
			hosts: func() []types.RawHost {
				return minimalInventory()[1:]
			},
			domain:   "example.com",
			opts:     Options{InstallServerIP: "9.9.9.9"},
			validate: true,
			message:  "gateway role is missing",
		},
		{
			name: "two gerrit hosts",
			hosts: func() []types.RawHost {
				return append(minimalInventory(), types.RawHost{Name: "g2", IP: "1.2.3.8", Roles: []string{"gerrit"}})
			},
			domain:   "example.com",
			opts:     Options{InstallServerIP: "9.9.9.9"},
			multiple: true,
			message:  "role gerrit is defined on multiple hosts (g, g2)",
		},
		{
			name: "host without roles",
			hosts: func() []types.RawHost {
				return append(minimalInventory(), types.RawHost{Name: "empty", IP: "1.2.3.9"})
			},
			domain:   "example.com",
			opts:     Options{InstallServerIP: "9.9.9.9"},
			validate: true,
			message:  "needs at least one role",
		},
		{
			name: "duplicate host name",
			hosts: func() []types.RawHost {
				return append(minimalInventory(), types.RawHost{Name: "db", IP: "1.2.3.9", Roles: []string{"zuul"}})
			},
			domain:   "example.com",
			opts:     Options{InstallServerIP: "9.9.9.9"},
			validate: true,
			message:  "is defined twice",
		},
		{
			name:     "empty domain",
			hosts:    minimalInventory,
			domain:   " ",
			opts:     Options{InstallServerIP: "9.9.9.9"},
			validate: true,
			message:  "domain is not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.hosts(), tt.domain, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)

			var verr *types.ValidationError
			assert.Equal(t, tt.validate, errors.As(err, &verr))

			var merr *types.MultipleHostsError
			assert.Equal(t, tt.multiple, errors.As(err, &merr))
		})
	}
}

func TestAliases(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  []string
	}{
		{
			name:  "plain role",
			roles: []string{"zuul"},
			want:  []string{"node", "zuul.example.com", "zuul"},
		},
		{
			name:  "gateway adds bare domain",
			roles: []string{"gateway"},
			want:  []string{"node", "example.com", "gateway.example.com", "gateway"},
		},
		{
			name:  "cauth adds auth name",
			roles: []string{"cauth", "managesf"},
			want:  []string{"node", "auth.example.com", "cauth.example.com", "cauth", "managesf.example.com", "managesf"},
		},
		{
			name:  "database role",
			roles: []string{"gerrit"},
			want:  []string{"node", "gerrit.example.com", "gerrit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aliases("node", tt.roles, "example.com"))
		})
	}

	assert.Equal(t, []string{"gerrit", "gerrit.example.com"}, Aliases("gerrit", []string{"gerrit"}, "example.com"))
}

func TestHostsFile(t *testing.T) {
	a, err := Resolve(minimalInventory(), "example.com", Options{InstallServerIP: "1.2.3.4"})
	require.NoError(t, err)

	lines := HostsFile(a)
	require.Len(t, lines, 3)
	assert.Equal(t, "1.2.3.4 gw.example.com gw example.com gateway.example.com gateway inst.example.com inst install-server.example.com install-server", lines[0])
	assert.Equal(t, "1.2.3.5 db.example.com db mysql.example.com mysql", lines[1])
}

func TestLoadInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arch.yaml")
	content := `inventory:
  - name: managesf
    ip: 192.168.135.101
    roles:
      - install-server
      - gateway
      - mysql
      - gerrit
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	inv, err := LoadInventory(path)
	require.NoError(t, err)
	require.Len(t, inv.Inventory, 1)
	assert.Equal(t, "192.168.135.101", inv.Inventory[0].IP)
	assert.Len(t, inv.Inventory[0].Roles, 4)

	_, err = LoadInventory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDecodeInventory(t *testing.T) {
	doc := map[string]interface{}{
		"inventory": []interface{}{
			map[string]interface{}{"name": "gw", "ip": "1.2.3.4", "roles": []interface{}{"gateway", "mysql"}},
		},
	}
	inv, err := DecodeInventory(doc)
	require.NoError(t, err)
	require.Len(t, inv.Inventory, 1)
	assert.Equal(t, "gw", inv.Inventory[0].Name)
	assert.Equal(t, []string{"gateway", "mysql"}, inv.Inventory[0].Roles)
}
