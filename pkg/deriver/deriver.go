package deriver

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/softwarefactory-project/sfconfig/pkg/config"
	"github.com/softwarefactory-project/sfconfig/pkg/log"
	"github.com/softwarefactory-project/sfconfig/pkg/metrics"
	"github.com/softwarefactory-project/sfconfig/pkg/security"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
)

// SecretStore is the part of secrets.Store the deriver uses
type SecretStore interface {
	GetOrCreate(name string) (string, error)
	Delete(name string) bool
}

// DefaultsLoader returns the defaults of a role
type DefaultsLoader func(role string) (config.Document, error)

// Options locate the deployment files
type Options struct {
	// Share holds the ansible roles, tasks and templates
	Share string
	// AnsibleRoot is where playbooks are generated
	AnsibleRoot string
	// Version is published as sf_version
	Version string
	// AssetDir holds the gateway theme images, skipped when empty
	AssetDir string
	// Defaults replaces the role defaults lookup under Share
	Defaults DefaultsLoader
}

var (
	// ObsoleteSecrets are removed from the store on every run
	ObsoleteSecrets = []string{"mumble_ice_secret"}

	// DebugServices get their log level raised when debug is set
	DebugServices = []string{types.RoleManageSF, types.RoleZuul, types.RoleNodepool}
)

// Deriver computes the group variables of a resolved architecture
type Deriver struct {
	secrets SecretStore
	keys    security.Provisioner
	opts    Options
}

// New returns a deriver generating secrets in store and key material with keys
func New(store SecretStore, keys security.Provisioner, opts Options) *Deriver {
	if opts.Defaults == nil {
		share := opts.Share
		opts.Defaults = func(role string) (config.Document, error) {
			return config.LoadRoleDefaults(share, role)
		}
	}
	return &Deriver{secrets: store, keys: keys, opts: opts}
}

// derivation is the state of one Derive call
type derivation struct {
	*Deriver
	ctx      context.Context
	arch     *types.Architecture
	site     *types.SiteConfig
	defaults config.Document
	vars     types.VariableSet
}

// Derive returns the variables of every role present in arch. Secrets and
// keys are created on the way; calling Derive again with the same inputs
// returns the same values.
func (d *Deriver) Derive(ctx context.Context, arch *types.Architecture, site *types.SiteConfig) (types.VariableSet, error) {
	if arch == nil || site == nil {
		return nil, fmt.Errorf("derive needs an architecture and a site configuration")
	}
	if site.FQDN == "" {
		return nil, &types.ValidationError{Source: "sfconfig", Reason: "fqdn is not set"}
	}

	x := &derivation{
		Deriver:  d,
		ctx:      ctx,
		arch:     arch,
		site:     site,
		defaults: config.Document{},
		vars:     types.NewVariableSet(),
	}

	if err := x.loadDefaults(); err != nil {
		return nil, err
	}

	for _, name := range ObsoleteSecrets {
		if d.secrets.Delete(name) {
			logger := log.WithComponent("deriver")
			logger.Info().Str("secret", name).Msg("Removed obsolete secret")
		}
	}

	x.baseVariables()

	for _, entry := range roleTable {
		if !arch.HasRole(entry.role) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := entry.derive(x); err != nil {
			return nil, fmt.Errorf("role %s: %w", entry.role, err)
		}
		metrics.RolesDerived.WithLabelValues(entry.role).Inc()
		logger := log.WithRole(entry.role)
		logger.Debug().Msg("Derived role variables")
	}

	metrics.VariablesTotal.Set(float64(len(x.vars)))
	return x.vars, nil
}

// loadDefaults merges the defaults of every role present and generates the
// secrets they leave as CHANGE_ME
func (x *derivation) loadDefaults() error {
	for _, role := range x.arch.RoleNames() {
		defaults, err := x.opts.Defaults(role)
		if err != nil {
			return err
		}
		for key, value := range defaults {
			x.defaults[key] = value
			if !config.IsChangeMe(value) {
				continue
			}
			if _, err := x.secrets.GetOrCreate(key); err != nil {
				return fmt.Errorf("role %s: secret %s: %w", role, key, err)
			}
		}
	}
	return nil
}

func (x *derivation) baseVariables() {
	x.vars.Set("gateway_url", x.gatewayURL())
	x.vars.Set("sf_version", x.opts.Version)
	x.vars.Set("sf_tasks_dir", filepath.Join(x.opts.Share, "ansible", "tasks"))
	x.vars.Set("sf_templates_dir", filepath.Join(x.opts.Share, "templates"))
	x.vars.Set("sf_playbooks_dir", x.opts.AnsibleRoot)

	if x.site.Debug {
		for _, svc := range DebugServices {
			x.vars.Set(svc+"_loglevel", "DEBUG")
			x.vars.Set(svc+"_root_loglevel", "INFO")
		}
	}
}

func (x *derivation) gatewayURL() string {
	return "https://" + x.site.FQDN
}

// hostOf returns the hostname of a single-host role
func (x *derivation) hostOf(role, neededBy string) (string, error) {
	hosts := x.arch.HostsFor(role)
	switch len(hosts) {
	case 0:
		return "", &types.MissingRoleError{Role: role, NeededBy: neededBy}
	case 1:
		return hosts[0].Hostname, nil
	default:
		names := make([]string, len(hosts))
		for i, h := range hosts {
			names[i] = h.Name
		}
		return "", &types.MultipleHostsError{Role: role, Hosts: names}
	}
}

// defaultValue returns a role default as text
func (x *derivation) defaultValue(key string) (string, error) {
	v, ok := x.defaults[key]
	if !ok || v == nil {
		return "", fmt.Errorf("default %s is not defined", key)
	}
	return fmt.Sprint(v), nil
}

// database records the MySQL account of service, reachable from hosts
func (x *derivation) database(service string, hosts ...string) error {
	password, err := x.secrets.GetOrCreate(service + "_mysql_password")
	if err != nil {
		return err
	}
	x.vars.AddDatabase(service, types.DatabaseCredential{
		Hosts:    dedupe(append([]string{"localhost"}, hosts...)),
		User:     service,
		Password: password,
	})
	return nil
}

// mysqlHost sets <service>_mysql_host
func (x *derivation) mysqlHost(service string) error {
	host, err := x.hostOf(types.RoleMySQL, service)
	if err != nil {
		return err
	}
	x.vars.Set(service+"_mysql_host", host)
	return nil
}

// sshKey sets <name> and <name>_pub
func (x *derivation) sshKey(name string) error {
	kp, err := x.keys.SSHKeyPair(x.ctx, name)
	if err != nil {
		return err
	}
	metrics.KeysProvisioned.WithLabelValues("ssh").Inc()
	x.vars.Set(name, kp.Private)
	x.vars.Set(name+"_pub", kp.Public)
	return nil
}

// themeImages encodes the gateway images found in the asset directory
func (x *derivation) themeImages() error {
	if x.opts.AssetDir == "" {
		return nil
	}
	for _, asset := range config.ThemeAssets {
		data, err := os.ReadFile(filepath.Join(x.opts.AssetDir, asset.File))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read theme image: %w", err)
		}
		x.vars.Set(asset.Var, base64.StdEncoding.EncodeToString(data))
	}
	return nil
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
