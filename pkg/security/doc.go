/*
Package security provisions the key material of a deployment.

A Provisioner returns SSH keypairs, PEM RSA keypairs and the gateway
certificate, creating each of them on first use under the bootstrap data
directory:

	<lib>/ssh_keys/<name>, <name>.pub
	<lib>/certs/<name>_privkey.pem, <name>_pubkey.pem
	<lib>/certs/localCA.pem, localCAkey.pem, localCA.srl
	<lib>/certs/gateway.{cnf,key,req,crt,pem}

FileProvisioner uses Go crypto. ExecProvisioner runs ssh-keygen and openssl
through a runner.Executor. Both share the layout, so a directory started with
one can be continued with the other.

The local CA is a self-signed RSA certificate valid for ten years with a
random organizational unit. The gateway certificate is reissued when the
FQDN changes or when the CA is regenerated.

# Secrets at rest

SecretsManager encrypts values with AES-256-GCM. The nonce is prepended to
the ciphertext. The encrypted bolt secrets backend uses it with a key
derived from a passphrase:

	sm, err := security.NewSecretsManagerFromPassphrase(passphrase)
	ciphertext, err := sm.EncryptSecret([]byte(value))
*/
package security
