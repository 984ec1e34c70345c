package arch

import (
	"fmt"
	"os"
	"strings"

	"github.com/softwarefactory-project/sfconfig/pkg/log"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
	"gopkg.in/yaml.v3"
)

// Options tune resolution
type Options struct {
	// Source names the inventory file in error messages
	Source string
	// InstallServerIP, when set, replaces the IP of the install-server host
	InstallServerIP string
}

// LoadInventory reads arch.yaml
func LoadInventory(path string) (*types.Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read architecture: %w", err)
	}

	var inv types.Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse architecture %s: %w", path, err)
	}
	return &inv, nil
}

// DecodeInventory converts an already loaded arch.yaml document
func DecodeInventory(doc map[string]interface{}) (*types.Inventory, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode architecture: %w", err)
	}
	var inv types.Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse architecture: %w", err)
	}
	return &inv, nil
}

// Resolve validates the raw inventory and computes hostnames, aliases and the
// role index. Hosts are processed in inventory order and that order is kept
// everywhere in the result.
func Resolve(hosts []types.RawHost, domain string, opts Options) (*types.Architecture, error) {
	logger := log.WithComponent("resolver")

	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, &types.ValidationError{Source: opts.Source, Reason: "domain is not set"}
	}
	if len(hosts) == 0 {
		return nil, &types.ValidationError{Source: opts.Source, Reason: "inventory is empty"}
	}

	a := types.NewArchitecture(domain)
	seen := make(map[string]bool, len(hosts))

	for _, raw := range hosts {
		if raw.Name == "" {
			return nil, &types.ValidationError{Source: opts.Source, Reason: "host needs a name"}
		}
		if seen[raw.Name] {
			return nil, &types.ValidationError{Source: opts.Source, Host: raw.Name, Reason: "is defined twice"}
		}
		seen[raw.Name] = true

		if len(raw.Roles) == 0 {
			return nil, &types.ValidationError{Source: opts.Source, Host: raw.Name, Reason: "needs at least one role"}
		}

		roles := make([]string, len(raw.Roles))
		copy(roles, raw.Roles)
		h := &types.Host{Name: raw.Name, IP: raw.IP, Roles: roles}

		if opts.InstallServerIP != "" && h.HasRole(types.RoleInstallServer) {
			h.IP = opts.InstallServerIP
		} else if h.IP == "" {
			return nil, &types.ValidationError{Source: opts.Source, Host: h.Name, Reason: "needs an ip"}
		}

		h.Hostname = Hostname(h.Name, domain)
		h.Aliases = Aliases(h.Name, h.Roles, domain)
		a.AddHost(h)

		hostLogger := log.WithHost(h.Hostname)
		hostLogger.Debug().
			Str("ip", h.IP).
			Strs("roles", h.Roles).
			Msg("Resolved host")
	}

	for _, role := range types.RequiredRoles {
		carriers := a.HostsFor(role)
		if len(carriers) == 0 {
			return nil, &types.ValidationError{Source: opts.Source, Reason: fmt.Sprintf("%s role is missing", role)}
		}
		if len(carriers) > 1 {
			return nil, &types.MultipleHostsError{Role: role, Hosts: hostNames(carriers)}
		}
	}

	gateway := a.Gateway()
	install := a.InstallServer()
	a.GatewayHostname = gateway.Hostname
	a.GatewayIP = gateway.IP
	a.InstallHostname = install.Hostname
	a.InstallIP = install.IP

	logger.Info().
		Str("domain", domain).
		Int("hosts", len(a.Inventory)).
		Int("roles", len(a.RoleNames())).
		Msg("Architecture resolved")

	return a, nil
}

// Hostname returns the fully qualified name of a host
func Hostname(name, domain string) string {
	return name + "." + domain
}

// Aliases returns the DNS aliases of a host: its short name, then for every
// role the role specific names followed by "<role>.<domain>" and "<role>".
// Duplicates are dropped, first occurrence wins.
func Aliases(name string, roles []string, domain string) []string {
	aliases := newOrderedSet(name)
	for _, role := range roles {
		switch role {
		case types.RoleGateway:
			aliases.add(domain)
		case types.RoleCAuth:
			aliases.add("auth." + domain)
		}
		aliases.add(role + "." + domain)
		aliases.add(role)
	}
	return aliases.items
}

func hostNames(hosts []*types.Host) []string {
	names := make([]string, 0, len(hosts))
	for _, h := range hosts {
		names = append(names, h.Name)
	}
	return names
}

type orderedSet struct {
	items []string
	seen  map[string]bool
}

func newOrderedSet(items ...string) *orderedSet {
	s := &orderedSet{seen: make(map[string]bool)}
	for _, item := range items {
		s.add(item)
	}
	return s
}

func (s *orderedSet) add(item string) {
	if s.seen[item] {
		return
	}
	s.seen[item] = true
	s.items = append(s.items, item)
}
