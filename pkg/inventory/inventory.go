// Package inventory computes the ansible roles and service lists of each
// host, the data the inventory and playbook templates iterate over.
package inventory

import (
	"github.com/softwarefactory-project/sfconfig/pkg/types"
)

// Host is a resolved host with its playbook roles
type Host struct {
	types.Host       `yaml:",inline"`
	RolesName        []string `yaml:"rolesname"`
	NodepoolServices []string `yaml:"nodepool_services,omitempty"`
	ZuulServices     []string `yaml:"zuul_services,omitempty"`
}

// Inventory is the template data for the generated playbooks
type Inventory struct {
	Domain    string              `yaml:"domain"`
	Hosts     []*Host             `yaml:"inventory"`
	Roles     map[string][]string `yaml:"roles"`
	HostsFile map[string][]string `yaml:"hosts_file"`
	Gateway   string              `yaml:"gateway"`
	GatewayIP string              `yaml:"gateway_ip"`
	Install   string              `yaml:"install"`
	InstallIP string              `yaml:"install_ip"`
}

// metaRoles are installed by the playbook of their base role
var metaRoles = map[string]string{
	types.RoleNodepoolBuilder: types.RoleNodepool,
	types.RoleZuulMerger:      types.RoleZuul,
}

// RoleName returns the ansible role implementing role
func RoleName(role string) string {
	return "sf-" + role
}

// Build computes the playbook roles of every host of a
func Build(a *types.Architecture) *Inventory {
	inv := &Inventory{
		Domain:    a.Domain,
		Roles:     a.Roles(),
		HostsFile: a.HostsFile,
		Gateway:   a.GatewayHostname,
		GatewayIP: a.GatewayIP,
		Install:   a.InstallHostname,
		InstallIP: a.InstallIP,
	}
	firehose := a.HasRole(types.RoleFirehose)

	for _, h := range a.Inventory {
		host := &Host{Host: *h}

		for _, role := range h.Roles {
			switch role {
			case types.RoleNodepool, types.RoleNodepoolBuilder:
				host.NodepoolServices = append(host.NodepoolServices, role)
			case types.RoleZuul, types.RoleZuulMerger:
				host.ZuulServices = append(host.ZuulServices, role)
			}
		}

		var names []string
		for _, role := range h.Roles {
			if _, meta := metaRoles[role]; meta {
				continue
			}
			names = appendUnique(names, RoleName(role))
		}
		// Meta roles need their base role on the same host
		for _, role := range h.Roles {
			if base, meta := metaRoles[role]; meta {
				names = appendUnique(names, RoleName(base))
			}
		}

		// ochlero publishes zuul and nodepool events on the firehose
		if firehose && (h.HasRole(types.RoleZuul) || h.HasRole(types.RoleNodepool)) {
			names = appendUnique(names, RoleName("ochlero"))
		}

		host.RolesName = names
		inv.Hosts = append(inv.Hosts, host)
	}
	return inv
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
