package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/softwarefactory-project/sfconfig/pkg/arch"
	"github.com/softwarefactory-project/sfconfig/pkg/inventory"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the resolved architecture",
	Long: `Resolve the architecture and print the per-host roles and services
used by the playbooks. Nothing is written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSite(&opts, false)
		if err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), inventory.Build(s.Arch))
	},
}

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Print the /etc/hosts lines of the deployment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSite(&opts, false)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(arch.HostsFile(s.Arch), "\n"))
		return err
	},
}

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Derive and print the deployment variables",
	Long: `Derive the deployment variables, generating and saving missing secrets
and keys, and print them. Templates are not rendered and no playbook runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := derive(cmd.Context(), &opts)
		if err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), d.Vars)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sfconfig version %s\n", Version)
		fmt.Fprintf(out, "Commit: %s\n", Commit)
		fmt.Fprintf(out, "Built: %s\n", BuildTime)
	},
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
