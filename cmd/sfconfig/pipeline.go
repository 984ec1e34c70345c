package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/softwarefactory-project/sfconfig/pkg/arch"
	"github.com/softwarefactory-project/sfconfig/pkg/config"
	"github.com/softwarefactory-project/sfconfig/pkg/deriver"
	"github.com/softwarefactory-project/sfconfig/pkg/log"
	"github.com/softwarefactory-project/sfconfig/pkg/metrics"
	"github.com/softwarefactory-project/sfconfig/pkg/render"
	"github.com/softwarefactory-project/sfconfig/pkg/runner"
	"github.com/softwarefactory-project/sfconfig/pkg/secrets"
	"github.com/softwarefactory-project/sfconfig/pkg/security"
	"github.com/softwarefactory-project/sfconfig/pkg/storage"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
)

const passphraseEnv = "SFCONFIG_SECRETS_PASSPHRASE"

// site is the loaded and upgraded configuration
type site struct {
	Config *types.SiteConfig
	Arch   *types.Architecture
}

// loadSite upgrades the configuration files, saving them when persist is
// set, and resolves the architecture
func loadSite(o *options, persist bool) (*site, error) {
	doc, err := config.Load(o.SFConfig)
	if err != nil {
		return nil, err
	}
	dirty, err := config.Upgrade(doc, assetDir(o, persist))
	if err != nil {
		return nil, err
	}
	if dirty && persist {
		if err := config.Save(o.SFConfig, doc); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Decode(doc)
	if err != nil {
		return nil, err
	}

	archDoc, err := config.Load(o.Arch)
	if err != nil {
		return nil, err
	}
	if arch.Clean(archDoc) && persist {
		if err := config.Save(o.Arch, archDoc); err != nil {
			return nil, err
		}
	}
	inv, err := arch.DecodeInventory(archDoc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Arch, err)
	}

	installIP := o.InstallServerIP
	if installIP == "" {
		installIP, err = runner.DetectLocalIP()
		if err != nil {
			logger := log.WithComponent("sfconfig")
			logger.Warn().Err(err).Msg("Keeping the install-server address of the inventory")
		}
	}

	a, err := arch.Resolve(inv.Inventory, cfg.FQDN, arch.Options{
		Source:          o.Arch,
		InstallServerIP: installIP,
	})
	if err != nil {
		return nil, err
	}
	return &site{Config: cfg, Arch: a}, nil
}

// assetDir is where theme images are kept, next to sfconfig.yaml. Read-only
// commands do not extract them.
func assetDir(o *options, persist bool) string {
	if !persist {
		return ""
	}
	return filepath.Dir(o.SFConfig)
}

// secretsBackend opens the configured backend. The returned function
// releases it.
func secretsBackend(o *options) (secrets.Backend, func(), error) {
	switch o.SecretsBackend {
	case "", "yaml":
		return secrets.NewFileBackend(filepath.Join(o.Lib, "secrets.yaml")), func() {}, nil
	case "bolt":
		passphrase := o.SecretsPassphrase
		if passphrase == "" {
			passphrase = os.Getenv(passphraseEnv)
		}
		if passphrase == "" {
			return nil, nil, fmt.Errorf("bolt secrets backend needs --secrets-passphrase or $%s", passphraseEnv)
		}
		backend, err := storage.NewBoltBackendFromPassphrase(filepath.Join(o.Lib, "secrets.db"), passphrase)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() {
			if err := backend.Close(); err != nil {
				log.Errorf("Failed to close secrets database", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown secrets backend %q (yaml, bolt)", o.SecretsBackend)
	}
}

func provisioner(o *options) (security.Provisioner, error) {
	switch o.Provisioner {
	case "", "native":
		return security.NewFileProvisioner(o.Lib), nil
	case "exec":
		return security.NewExecProvisioner(o.Lib, runner.NewCommand()), nil
	default:
		return nil, fmt.Errorf("unknown provisioner %q (native, exec)", o.Provisioner)
	}
}

// sfVersion reads the release file, falling back to the build version
func sfVersion(o *options) string {
	data, err := os.ReadFile(o.ReleaseFile)
	if err != nil {
		return Version
	}
	return strings.TrimSpace(string(data))
}

func ensureDirs(o *options) error {
	for _, dir := range []string{
		o.AnsibleRoot,
		filepath.Join(o.AnsibleRoot, "group_vars"),
		filepath.Join(o.AnsibleRoot, "facts"),
		o.Lib,
		filepath.Join(o.Lib, "ssh_keys"),
		filepath.Join(o.Lib, "certs"),
	} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// derived is the outcome of the derivation phase
type derived struct {
	*site
	Vars    types.VariableSet
	Secrets map[string]string
}

// derive loads the site, derives the variables and saves the secrets
func derive(ctx context.Context, o *options) (*derived, error) {
	if err := ensureDirs(o); err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	s, err := loadSite(o, true)
	if err != nil {
		return nil, err
	}
	timer.ObservePhase("resolve")

	backend, release, err := secretsBackend(o)
	if err != nil {
		return nil, err
	}
	defer release()

	store, err := secrets.Open(backend)
	if err != nil {
		return nil, err
	}
	keys, err := provisioner(o)
	if err != nil {
		return nil, err
	}

	timer = metrics.NewTimer()
	d := deriver.New(store, keys, deriver.Options{
		Share:       o.Share,
		AnsibleRoot: o.AnsibleRoot,
		Version:     sfVersion(o),
		AssetDir:    filepath.Dir(o.SFConfig),
	})
	vars, err := d.Derive(ctx, s.Arch, s.Config)
	if err != nil {
		return nil, err
	}
	timer.ObservePhase("derive")

	if store.Dirty() {
		if err := store.Save(); err != nil {
			return nil, err
		}
	}
	generated := store.Generated()
	metrics.SecretsGenerated.Add(float64(len(generated)))
	metrics.SecretsTotal.Set(float64(len(store.Names())))
	if len(generated) > 0 {
		logger := log.WithComponent("secrets")
		logger.Info().Strs("names", generated).Msg("Generated secrets")
	}

	return &derived{site: s, Vars: vars, Secrets: store.Snapshot()}, nil
}

// runDeploy is the full sfconfig run
func runDeploy(ctx context.Context, out io.Writer, o *options) (err error) {
	start := time.Now()
	defer func() {
		writeMetrics(o, start, err == nil)
	}()

	exec := runner.NewCommand("ANSIBLE_CONFIG=" + filepath.Join(o.Share, "ansible", "ansible.cfg"))
	if !o.SkipSetup {
		syslog(ctx, exec, "sfconfig: started")
		fmt.Fprintf(out, "[%s] Running sfconfig\n", start.Format(time.ANSIC))
	}

	d, err := derive(ctx, o)
	if err != nil {
		return err
	}

	timer := metrics.NewTimer()
	data := render.NewData(d.Arch, d.Config)
	deployment := render.Deployment{
		AnsibleRoot:    o.AnsibleRoot,
		HostsFile:      o.HostsFile,
		ServerspecFile: o.Serverspec,
	}
	if err := deployment.Render(render.NewTemplateRenderer(filepath.Join(o.Share, "templates")), data); err != nil {
		return err
	}

	legacy, err := os.ReadFile(o.SFConfig)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", o.SFConfig, err)
	}
	extra, err := os.ReadFile(o.Extra)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", o.Extra, err)
	}
	allYAML := filepath.Join(o.AnsibleRoot, "group_vars", "all.yaml")
	if err := render.WriteGroupVars(allYAML, render.GroupVars{
		Secrets: d.Secrets,
		Vars:    d.Vars,
		Legacy:  legacy,
		Extra:   extra,
		Arch:    data.Inventory,
	}); err != nil {
		return err
	}
	timer.ObservePhase("render")
	fmt.Fprintf(out, "[+] %s written!\n", allYAML)

	timer = metrics.NewTimer()
	playbooks := &runner.Playbooks{
		Root:        o.AnsibleRoot,
		SkipInstall: o.SkipInstall,
		SkipSetup:   o.SkipSetup,
		Executor:    exec,
	}
	if err := playbooks.Run(ctx); err != nil {
		return err
	}
	timer.ObservePhase("playbooks")

	if !o.SkipSetup {
		syslog(ctx, exec, "sfconfig: ended")
		fqdn := d.Config.FQDN
		fmt.Fprintf(out, `%s: SUCCESS

Access dashboard: https://%s
Login with admin user, get the admin password by running:
  awk '/admin_password/ {print $2}' %s

`, fqdn, fqdn, o.SFConfig)
	}
	return nil
}

// syslog records the run in the system log, failures are not fatal
func syslog(ctx context.Context, exec runner.Executor, msg string) {
	if err := exec.Run(ctx, "logger", msg); err != nil {
		logger := log.WithComponent("sfconfig")
		logger.Debug().Err(err).Msg("Failed to write to syslog")
	}
}

func writeMetrics(o *options, start time.Time, success bool) {
	if o.MetricsTextfile == "" {
		return
	}
	if success {
		metrics.LastRunSuccess.Set(1)
	} else {
		metrics.LastRunSuccess.Set(0)
	}
	metrics.LastRunTimestamp.Set(float64(start.Unix()))
	if err := metrics.WriteTextfile(o.MetricsTextfile); err != nil {
		logger := log.WithComponent("metrics")
		logger.Warn().Err(err).Msg("Failed to export metrics")
	}
}
