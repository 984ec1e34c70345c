package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout locates key material in the bootstrap data directory. Existence of
// these files is what makes provisioning idempotent.
type Layout struct {
	Dir string
}

// SSHKey returns the private and public key paths of an SSH keypair
func (l Layout) SSHKey(name string) (string, string) {
	priv := filepath.Join(l.Dir, "ssh_keys", name)
	return priv, priv + ".pub"
}

// RSAKey returns the private and public key paths of a PEM keypair
func (l Layout) RSAKey(name string) (string, string) {
	return filepath.Join(l.Dir, "certs", name+"_privkey.pem"),
		filepath.Join(l.Dir, "certs", name+"_pubkey.pem")
}

// GatewayFiles are the local CA and gateway certificate paths
type GatewayFiles struct {
	CA       string
	CAKey    string
	CASerial string
	Config   string
	Key      string
	Request  string
	Cert     string
	Bundle   string
}

// Gateway returns the local CA and gateway certificate paths
func (l Layout) Gateway() GatewayFiles {
	certs := filepath.Join(l.Dir, "certs")
	return GatewayFiles{
		CA:       filepath.Join(certs, "localCA.pem"),
		CAKey:    filepath.Join(certs, "localCAkey.pem"),
		CASerial: filepath.Join(certs, "localCA.srl"),
		Config:   filepath.Join(certs, "gateway.cnf"),
		Key:      filepath.Join(certs, "gateway.key"),
		Request:  filepath.Join(certs, "gateway.req"),
		Cert:     filepath.Join(certs, "gateway.crt"),
		Bundle:   filepath.Join(certs, "gateway.pem"),
	}
}

// Ensure creates the ssh_keys and certs directories
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Dir, filepath.Join(l.Dir, "ssh_keys"), filepath.Join(l.Dir, "certs")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func readPair(priv, pub string) (string, string, error) {
	privData, err := os.ReadFile(priv)
	if err != nil {
		return "", "", fmt.Errorf("failed to read private key: %w", err)
	}
	pubData, err := os.ReadFile(pub)
	if err != nil {
		return "", "", fmt.Errorf("failed to read public key: %w", err)
	}
	return string(privData), string(pubData), nil
}
