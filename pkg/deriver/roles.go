package deriver

import (
	"fmt"

	"github.com/softwarefactory-project/sfconfig/pkg/metrics"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
)

type deriveFunc func(x *derivation) error

// roleTable lists the roles with derived variables, in derivation order.
// Other roles only contribute the secrets of their defaults.
var roleTable = []struct {
	role   string
	derive deriveFunc
}{
	{types.RoleGateway, deriveGateway},
	{types.RoleInstallServer, deriveInstallServer},
	{types.RoleMySQL, deriveMySQL},
	{types.RoleCAuth, deriveCAuth},
	{types.RoleManageSF, deriveManageSF},
	{types.RoleGerrit, deriveGerrit},
	{types.RoleZuul, deriveZuul},
	{types.RoleNodepool, deriveNodepool},
	{types.RoleJenkins, deriveJenkins},
	{types.RoleFirehose, deriveFirehose},
	{types.RoleGrafana, deriveGrafana},
	{types.RoleInfluxDB, deriveInfluxDB},
	{types.RoleLodgeIt, deriveLodgeIt},
	{types.RoleEtherpad, deriveEtherpad},
	{types.RoleStoryboard, deriveStoryboard},
	{types.RoleMurmur, deriveMurmur},
}

func deriveGateway(x *derivation) error {
	certs, err := x.keys.GatewayCertificates(x.ctx, x.site.FQDN)
	if err != nil {
		return err
	}
	metrics.KeysProvisioned.WithLabelValues("gateway").Inc()
	x.vars.Set("localCA_pem", certs.CAPEM)
	x.vars.Set("gateway_crt", certs.CertPEM)
	x.vars.Set("gateway_key", certs.KeyPEM)
	x.vars.Set("gateway_chain", certs.CertPEM)
	return x.themeImages()
}

func deriveInstallServer(x *derivation) error {
	return x.sshKey("service_rsa")
}

func deriveMySQL(x *derivation) error {
	host, err := x.hostOf(types.RoleMySQL, types.RoleMySQL)
	if err != nil {
		return err
	}
	x.vars.Set("mysql_host", host)
	return nil
}

func deriveCAuth(x *derivation) error {
	kp, err := x.keys.RSAKeyPair(x.ctx, "cauth")
	if err != nil {
		return err
	}
	metrics.KeysProvisioned.WithLabelValues("rsa").Inc()
	x.vars.Set("cauth_privkey", kp.Private)
	x.vars.Set("cauth_pubkey", kp.Public)
	return x.simpleDatabase(types.RoleCAuth)
}

func deriveManageSF(x *derivation) error {
	host, err := x.hostOf(types.RoleManageSF, types.RoleManageSF)
	if err != nil {
		return err
	}
	port, err := x.defaultValue("managesf_port")
	if err != nil {
		return err
	}
	x.vars.Set("managesf_internal_url", fmt.Sprintf("http://%s:%s", host, port))
	return x.simpleDatabase(types.RoleManageSF)
}

func deriveGerrit(x *derivation) error {
	host, err := x.hostOf(types.RoleGerrit, types.RoleGerrit)
	if err != nil {
		return err
	}
	port, err := x.defaultValue("gerrit_port")
	if err != nil {
		return err
	}
	x.vars.Set("gerrit_host", host)
	x.vars.Set("gerrit_pub_url", x.gatewayURL()+"/r/")
	x.vars.Set("gerrit_internal_url", fmt.Sprintf("http://%s:%s/r/", host, port))
	x.vars.Set("gerrit_email", "gerrit@"+x.site.FQDN)
	if err := x.mysqlHost(types.RoleGerrit); err != nil {
		return err
	}

	// managesf manages gerrit accounts through the database
	dbHosts := []string{host}
	if x.arch.HasRole(types.RoleManageSF) {
		managesf, err := x.hostOf(types.RoleManageSF, types.RoleGerrit)
		if err != nil {
			return err
		}
		dbHosts = append(dbHosts, managesf)
	}
	if err := x.database(types.RoleGerrit, dbHosts...); err != nil {
		return err
	}

	if err := x.sshKey("gerrit_service_rsa"); err != nil {
		return err
	}
	return x.sshKey("gerrit_admin_rsa")
}

func deriveZuul(x *derivation) error {
	host, err := x.hostOf(types.RoleZuul, types.RoleZuul)
	if err != nil {
		return err
	}
	port, err := x.defaultValue("zuul_port")
	if err != nil {
		return err
	}
	x.vars.Set("zuul_pub_url", x.gatewayURL()+"/zuul/")
	x.vars.Set("zuul_internal_url", fmt.Sprintf("http://%s:%s/", host, port))

	// Without a cloud to spawn nodes from, static nodes must stay online
	providers := x.site.Nodepool.Providers
	if !x.arch.HasRole(types.RoleNodepool) ||
		len(providers) == 0 ||
		(len(providers) == 1 && providers[0].AuthURL() == "") {
		x.vars.Set("zuul_offline_node_when_complete", false)
	}
	return nil
}

func deriveNodepool(x *derivation) error {
	providers := x.site.Nodepool.Providers
	if providers == nil {
		providers = []types.NodepoolProvider{}
	}
	x.vars.Set("nodepool_providers", providers)
	return x.simpleDatabase(types.RoleNodepool)
}

func deriveJenkins(x *derivation) error {
	host, err := x.hostOf(types.RoleJenkins, types.RoleJenkins)
	if err != nil {
		return err
	}
	httpPort, err := x.defaultValue("jenkins_http_port")
	if err != nil {
		return err
	}
	apiPort, err := x.defaultValue("jenkins_api_port")
	if err != nil {
		return err
	}
	x.vars.Set("jenkins_host", host)
	x.vars.Set("jenkins_internal_url", fmt.Sprintf("http://%s:%s/jenkins/", host, httpPort))
	x.vars.Set("jenkins_api_url", fmt.Sprintf("http://%s:%s/jenkins/", host, apiPort))
	x.vars.Set("jenkins_pub_url", x.gatewayURL()+"/jenkins/")
	return x.sshKey("jenkins_rsa")
}

func deriveFirehose(x *derivation) error {
	host, err := x.hostOf(types.RoleFirehose, types.RoleFirehose)
	if err != nil {
		return err
	}
	x.vars.Set("firehose_host", host)
	return nil
}

func deriveGrafana(x *derivation) error {
	host, err := x.hostOf(types.RoleGrafana, types.RoleGrafana)
	if err != nil {
		return err
	}
	port, err := x.defaultValue("grafana_http_port")
	if err != nil {
		return err
	}
	x.vars.Set("grafana_internal_url", fmt.Sprintf("http://%s:%s/", host, port))
	x.vars.Set("grafana_pub_url", x.gatewayURL()+"/grafana/")
	return x.simpleDatabase(types.RoleGrafana)
}

func deriveInfluxDB(x *derivation) error {
	host, err := x.hostOf(types.RoleInfluxDB, types.RoleInfluxDB)
	if err != nil {
		return err
	}
	x.vars.Set("influxdb_host", host)
	return nil
}

func deriveLodgeIt(x *derivation) error {
	x.vars.Set("lodgeit_pub_url", x.gatewayURL()+"/paste/")
	return x.simpleDatabase(types.RoleLodgeIt)
}

func deriveEtherpad(x *derivation) error {
	x.vars.Set("etherpad_pub_url", x.gatewayURL()+"/etherpad/")
	return x.simpleDatabase(types.RoleEtherpad)
}

func deriveStoryboard(x *derivation) error {
	x.vars.Set("storyboard_pub_url", x.gatewayURL()+"/storyboard/")
	return x.simpleDatabase(types.RoleStoryboard)
}

func deriveMurmur(x *derivation) error {
	if x.site.Mumble.Password != "" {
		x.vars.Set("murmur_password", x.site.Mumble.Password)
	}
	return nil
}

// simpleDatabase sets <service>_mysql_host and a database reachable from the
// service host
func (x *derivation) simpleDatabase(service string) error {
	host, err := x.hostOf(service, service)
	if err != nil {
		return err
	}
	if err := x.mysqlHost(service); err != nil {
		return err
	}
	return x.database(service, host)
}
