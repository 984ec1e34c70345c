/*
Package types defines the data model shared by every sfconfig package.

# Core Types

Inventory:
  - RawHost / Inventory: arch.yaml as written by the operator
  - Host: a resolved host with hostname and DNS aliases
  - Architecture: domain, hosts, role index and hosts-file mapping

Site configuration:
  - SiteConfig: typed view of sfconfig.yaml (fqdn, debug, nodepool, mumble)
  - NodepoolProvider: provider entry passed through to templates

Derivation output:
  - VariableSet: flat variable mapping consumed by the renderer
  - DatabaseCredential: per-service MySQL account, stored under mysql_databases
  - KeyPair / GatewayCertificates: key material returned by provisioners

# Errors

Every failure of a run is fatal. The error types let callers tell them apart
with errors.As:

	var missing *types.MissingRoleError
	if errors.As(err, &missing) {
		fmt.Printf("add a %s host to arch.yaml\n", missing.Role)
	}

  - ValidationError: malformed inventory or missing required role
  - MissingRoleError: a derivation needs a role the architecture lacks
  - MultipleHostsError: a single-host role is carried by several hosts
  - ProvisioningError: an external command exited non-zero

# Architecture Index

The role index is filled by AddHost in inventory order; nothing is sorted.
RoleNames returns roles in order of first appearance, HostsFor returns the
hosts of one role. Gateway and InstallServer return nil until the resolver
has checked that exactly one host carries each.
*/
package types
