package types

import "strings"

// Role names known to the deployment. Hosts may carry other roles; those are
// indexed like any other but no variables are derived for them.
const (
	RoleInstallServer   = "install-server"
	RoleGateway         = "gateway"
	RoleMySQL           = "mysql"
	RoleGerrit          = "gerrit"
	RoleCAuth           = "cauth"
	RoleManageSF        = "managesf"
	RoleZuul            = "zuul"
	RoleZuulMerger      = "zuul-merger"
	RoleNodepool        = "nodepool"
	RoleNodepoolBuilder = "nodepool-builder"
	RoleJenkins         = "jenkins"
	RoleFirehose        = "firehose"
	RoleGrafana         = "grafana"
	RoleInfluxDB        = "influxdb"
	RoleLodgeIt         = "lodgeit"
	RoleEtherpad        = "etherpad"
	RoleStoryboard      = "storyboard"
	RoleMurmur          = "murmur"
)

// RequiredRoles must each be carried by exactly one host.
var RequiredRoles = []string{
	RoleInstallServer,
	RoleGateway,
	RoleMySQL,
	RoleGerrit,
}

// RawHost is a host entry as written in arch.yaml
type RawHost struct {
	Name  string   `yaml:"name"`
	IP    string   `yaml:"ip,omitempty"`
	Roles []string `yaml:"roles"`
}

// Inventory is the declarative content of arch.yaml
type Inventory struct {
	Inventory []RawHost `yaml:"inventory"`
}

// Host is a resolved inventory entry
type Host struct {
	Name     string   `yaml:"name"`
	IP       string   `yaml:"ip"`
	Roles    []string `yaml:"roles"`
	Hostname string   `yaml:"hostname"`
	Aliases  []string `yaml:"aliases"`
}

// HasRole reports whether the host carries role
func (h *Host) HasRole(role string) bool {
	for _, r := range h.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Architecture is the resolved model of one deployment. It is built once by
// the resolver and treated as read-only afterwards.
type Architecture struct {
	Domain    string              `yaml:"domain"`
	Inventory []*Host             `yaml:"inventory"`
	HostsFile map[string][]string `yaml:"hosts_file"`

	GatewayHostname string `yaml:"gateway"`
	GatewayIP       string `yaml:"gateway_ip"`
	InstallHostname string `yaml:"install"`
	InstallIP       string `yaml:"install_ip"`

	roles     map[string][]*Host
	roleOrder []string
}

// NewArchitecture returns an empty architecture for domain
func NewArchitecture(domain string) *Architecture {
	return &Architecture{
		Domain:    domain,
		HostsFile: make(map[string][]string),
		roles:     make(map[string][]*Host),
	}
}

// AddHost appends h to the inventory and indexes it under each of its roles.
// Index order follows insertion order.
func (a *Architecture) AddHost(h *Host) {
	if a.roles == nil {
		a.roles = make(map[string][]*Host)
	}
	if a.HostsFile == nil {
		a.HostsFile = make(map[string][]string)
	}
	a.Inventory = append(a.Inventory, h)
	for _, role := range h.Roles {
		if _, ok := a.roles[role]; !ok {
			a.roleOrder = append(a.roleOrder, role)
		}
		a.roles[role] = append(a.roles[role], h)
	}
	if h.IP != "" {
		// Hosts sharing an address share one hosts-file line
		a.HostsFile[h.IP] = append(a.HostsFile[h.IP], append([]string{h.Hostname}, h.Aliases...)...)
	}
}

// HasRole reports whether any host carries role
func (a *Architecture) HasRole(role string) bool {
	return len(a.roles[role]) > 0
}

// HostsFor returns the hosts carrying role, in inventory order
func (a *Architecture) HostsFor(role string) []*Host {
	return a.roles[role]
}

// RoleNames returns every role present, in order of first appearance
func (a *Architecture) RoleNames() []string {
	names := make([]string, len(a.roleOrder))
	copy(names, a.roleOrder)
	return names
}

// Roles returns the role index as role name to hostnames, for templates and dumps
func (a *Architecture) Roles() map[string][]string {
	out := make(map[string][]string, len(a.roles))
	for role, hosts := range a.roles {
		for _, h := range hosts {
			out[role] = append(out[role], h.Hostname)
		}
	}
	return out
}

// Gateway returns the gateway host, or nil before validation
func (a *Architecture) Gateway() *Host {
	return a.single(RoleGateway)
}

// InstallServer returns the install-server host, or nil before validation
func (a *Architecture) InstallServer() *Host {
	return a.single(RoleInstallServer)
}

func (a *Architecture) single(role string) *Host {
	if hosts := a.roles[role]; len(hosts) == 1 {
		return hosts[0]
	}
	return nil
}

// SiteConfig is the typed view of sfconfig.yaml used by the deriver. The raw
// document is kept next to it for the legacy group vars dump.
type SiteConfig struct {
	FQDN     string         `yaml:"fqdn"`
	Debug    bool           `yaml:"debug"`
	Nodepool NodepoolConfig `yaml:"nodepool"`
	Mumble   MumbleConfig   `yaml:"mumble"`
	Network  NetworkConfig  `yaml:"network"`
}

// NodepoolConfig holds nodepool settings
type NodepoolConfig struct {
	Providers []NodepoolProvider `yaml:"providers"`
}

// NodepoolProvider is passed through to the templates as-is
type NodepoolProvider map[string]interface{}

// AuthURL returns the provider's cloud endpoint, empty when unset
func (p NodepoolProvider) AuthURL() string {
	v, ok := p["auth_url"].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// MumbleConfig holds murmur settings
type MumbleConfig struct {
	Password string `yaml:"password,omitempty"`
}

// NetworkConfig holds network settings
type NetworkConfig struct {
	UseLetsEncrypt  bool     `yaml:"use_letsencrypt"`
	StaticHostnames []string `yaml:"static_hostnames"`
}

// DatabaseCredential describes a MySQL account created for a service
type DatabaseCredential struct {
	Hosts    []string `yaml:"hosts"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
}

// KeyPair holds private and public key material as text
type KeyPair struct {
	Private string
	Public  string
}

// GatewayCertificates is the TLS material served by the gateway
type GatewayCertificates struct {
	CAPEM   string
	CertPEM string
	KeyPEM  string
}

// DatabasesKey is the VariableSet key holding every DatabaseCredential
const DatabasesKey = "mysql_databases"

// VariableSet is the flat variable mapping handed to the renderer
type VariableSet map[string]interface{}

// NewVariableSet returns a set holding an empty database map
func NewVariableSet() VariableSet {
	return VariableSet{DatabasesKey: map[string]DatabaseCredential{}}
}

// Set assigns key
func (v VariableSet) Set(key string, value interface{}) {
	v[key] = value
}

// String returns key as a string, empty when unset or not a string
func (v VariableSet) String(key string) string {
	s, _ := v[key].(string)
	return s
}

// Has reports whether key is set
func (v VariableSet) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// AddDatabase records the credential for a service database
func (v VariableSet) AddDatabase(name string, cred DatabaseCredential) {
	dbs, ok := v[DatabasesKey].(map[string]DatabaseCredential)
	if !ok {
		dbs = map[string]DatabaseCredential{}
		v[DatabasesKey] = dbs
	}
	dbs[name] = cred
}

// Databases returns the recorded database credentials
func (v VariableSet) Databases() map[string]DatabaseCredential {
	dbs, _ := v[DatabasesKey].(map[string]DatabaseCredential)
	return dbs
}
