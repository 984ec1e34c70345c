/*
Package arch resolves the deployment inventory (arch.yaml) into a validated
Architecture.

# Resolution

	inv, err := arch.LoadInventory("/etc/software-factory/arch.yaml")
	a, err := arch.Resolve(inv.Inventory, "sftests.com", arch.Options{
		Source:          "/etc/software-factory/arch.yaml",
		InstallServerIP: localIP,
	})

For every host, in inventory order:

 1. The install-server host takes InstallServerIP when it is set; any other
    host without an ip is rejected.
 2. hostname = name + "." + domain
 3. aliases = name, then per role: the bare domain for gateway,
    auth.<domain> for cauth, then <role>.<domain> and <role>.
 4. The host is appended to the role index.

Once every host is processed, install-server, gateway, mysql and gerrit must
each be carried by exactly one host. A missing role is a ValidationError, a
duplicated one a MultipleHostsError.

# Upgrades

Clean rewrites arch.yaml documents produced by older releases: the auth role
is renamed cauth and computed keys are dropped so they cannot shadow the
values computed by Resolve.
*/
package arch
