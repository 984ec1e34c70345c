package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/softwarefactory-project/sfconfig/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the flag values shared by every subcommand
type options struct {
	Arch        string
	SFConfig    string
	Extra       string
	Share       string
	AnsibleRoot string
	Lib         string
	ReleaseFile string
	HostsFile   string
	Serverspec  string

	SkipInstall     bool
	SkipSetup       bool
	InstallServerIP string

	Provisioner       string
	SecretsBackend    string
	SecretsPassphrase string
	MetricsTextfile   string

	LogLevel string
	LogJSON  bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "sfconfig",
	Short: "sfconfig - Software Factory deployment configurator",
	Long: `sfconfig turns the architecture (arch.yaml) and the site configuration
(sfconfig.yaml) into the ansible inventory, playbooks and group variables of
a Software Factory deployment, generating secrets, SSH keys and the local
certificate authority on the way. It then runs the install and setup
playbooks.

Re-running sfconfig is safe: existing secrets and keys are reused.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{
			Level:      log.ParseLevel(opts.LogLevel),
			JSONOutput: opts.LogJSON,
		})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeploy(cmd.Context(), cmd.OutOrStdout(), &opts)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"sfconfig version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()

	// Inputs
	flags.StringVar(&opts.Arch, "arch", "/etc/software-factory/arch.yaml", "The architecture file")
	flags.StringVar(&opts.SFConfig, "sfconfig", "/etc/software-factory/sfconfig.yaml", "The configuration file")
	flags.StringVar(&opts.Extra, "extra", "/etc/software-factory/custom-vars.yaml", "Extra ansible variable file")
	flags.StringVar(&opts.Share, "share", "/usr/share/sf-config", "Templates and ansible roles")
	flags.StringVar(&opts.ReleaseFile, "release-file", "/etc/sf-release", "File holding the deployed version")

	// Outputs
	flags.StringVar(&opts.AnsibleRoot, "ansible-root", "/var/lib/software-factory/ansible", "Generated playbook output directory")
	flags.StringVar(&opts.Lib, "lib", "/var/lib/software-factory/bootstrap-data", "Deployment secrets output directory")
	flags.StringVar(&opts.HostsFile, "hosts-file", "/etc/hosts", "Generated hosts file, empty to skip")
	flags.StringVar(&opts.Serverspec, "serverspec-file", "/etc/serverspec/hosts.yaml", "Generated serverspec hosts, empty to skip")

	// Tuning
	flags.BoolVar(&opts.SkipInstall, "skip-install", false, "Do not call install tasks")
	flags.BoolVar(&opts.SkipSetup, "skip-setup", false, "Do not call setup tasks")
	flags.StringVar(&opts.InstallServerIP, "install-server-ip", "", "Install server address (default: source address of the default route)")
	flags.StringVar(&opts.Provisioner, "provisioner", "native", "Key material generator: native or exec (openssl, ssh-keygen)")
	flags.StringVar(&opts.SecretsBackend, "secrets-backend", "yaml", "Secrets storage: yaml or bolt")
	flags.StringVar(&opts.SecretsPassphrase, "secrets-passphrase", "", "Passphrase encrypting the bolt secrets backend (default: $SFCONFIG_SECRETS_PASSPHRASE)")
	flags.StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "Write run metrics to this node exporter textfile")

	// Logging
	flags.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.LogJSON, "log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(varsCmd)
	rootCmd.AddCommand(versionCmd)
}
