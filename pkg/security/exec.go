package security

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/softwarefactory-project/sfconfig/pkg/log"
	"github.com/softwarefactory-project/sfconfig/pkg/runner"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
)

// ExecProvisioner generates key material with ssh-keygen and openssl. It uses
// the same file layout as FileProvisioner, so either can take over the
// bootstrap data directory of the other.
type ExecProvisioner struct {
	Layout   Layout
	Executor runner.OutputExecutor
}

// NewExecProvisioner returns a provisioner writing under dir
func NewExecProvisioner(dir string, executor runner.OutputExecutor) *ExecProvisioner {
	return &ExecProvisioner{
		Layout:   Layout{Dir: dir},
		Executor: executor,
	}
}

// SSHKeyPair runs ssh-keygen when the private key is missing. A lost public
// key is rebuilt from the private one.
func (p *ExecProvisioner) SSHKeyPair(ctx context.Context, name string) (types.KeyPair, error) {
	priv, pub := p.Layout.SSHKey(name)

	if !fileExists(priv) {
		if err := p.Layout.Ensure(); err != nil {
			return types.KeyPair{}, err
		}
		if err := removeFiles(pub); err != nil {
			return types.KeyPair{}, err
		}
		if err := p.Executor.Run(ctx, "ssh-keygen", "-t", "rsa", "-N", "", "-f", priv, "-q"); err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to generate ssh key %s: %w", name, err)
		}
		logger := log.WithComponent("provisioner")
		logger.Info().Str("key", name).Msg("Generated ssh key")
	}

	if !fileExists(pub) {
		out, err := p.Executor.Output(ctx, "ssh-keygen", "-y", "-f", priv)
		if err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to extract public key %s: %w", name, err)
		}
		if err := os.WriteFile(pub, out, 0644); err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to write %s: %w", pub, err)
		}
	}

	privData, pubData, err := readPair(priv, pub)
	if err != nil {
		return types.KeyPair{}, fmt.Errorf("ssh key %s: %w", name, err)
	}
	return types.KeyPair{Private: privData, Public: pubData}, nil
}

// RSAKeyPair runs openssl genrsa and openssl rsa -pubout for missing files
func (p *ExecProvisioner) RSAKeyPair(ctx context.Context, name string) (types.KeyPair, error) {
	priv, pub := p.Layout.RSAKey(name)

	if !fileExists(priv) {
		if err := p.Layout.Ensure(); err != nil {
			return types.KeyPair{}, err
		}
		if err := removeFiles(pub); err != nil {
			return types.KeyPair{}, err
		}
		if err := p.Executor.Run(ctx, "openssl", "genrsa", "-out", priv, "2048"); err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to generate key %s: %w", name, err)
		}
	}
	if !fileExists(pub) {
		if err := p.Executor.Run(ctx, "openssl", "rsa", "-in", priv, "-out", pub, "-pubout"); err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to extract public key %s: %w", name, err)
		}
	}

	privData, pubData, err := readPair(priv, pub)
	if err != nil {
		return types.KeyPair{}, fmt.Errorf("key %s: %w", name, err)
	}
	return types.KeyPair{Private: privData, Public: pubData}, nil
}

// GatewayCertificates drives openssl through the CA, request and signing
// steps. Each step only runs when its output file is missing, and removing
// an input removes everything derived from it.
func (p *ExecProvisioner) GatewayCertificates(ctx context.Context, fqdn string) (types.GatewayCertificates, error) {
	files := p.Layout.Gateway()
	logger := log.WithComponent("provisioner").With().Str("fqdn", fqdn).Logger()

	if err := p.Layout.Ensure(); err != nil {
		return types.GatewayCertificates{}, err
	}

	if !fileExists(files.CA) {
		if err := removeFiles(files.Config, files.Request, files.Cert, files.Bundle); err != nil {
			return types.GatewayCertificates{}, err
		}
		ou, err := randomOU()
		if err != nil {
			return types.GatewayCertificates{}, err
		}
		subject := fmt.Sprintf("/C=%s/O=%s/OU=%s", certCountry, certOrganization, ou)
		if err := p.Executor.Run(ctx, "openssl", "req", "-nodes", "-days", "3650", "-new", "-x509",
			"-subj", subject, "-keyout", files.CAKey, "-out", files.CA); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to generate local CA: %w", err)
		}
		logger.Info().Msg("Generated local CA")
	}

	if !fileExists(files.CASerial) {
		if err := os.WriteFile(files.CASerial, []byte("00\n"), 0600); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to write CA serial: %w", err)
		}
	}

	// The request config records the fqdn it was written for
	if fileExists(files.Config) {
		data, err := os.ReadFile(files.Config)
		if err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to read gateway request config: %w", err)
		}
		if !strings.Contains(string(data), fmt.Sprintf("DNS.1 = %s\n", fqdn)) {
			logger.Info().Msg("FQDN changed, reissuing gateway certificate")
			if err := removeFiles(files.Config, files.Request, files.Cert, files.Bundle); err != nil {
				return types.GatewayCertificates{}, err
			}
		}
	}

	if !fileExists(files.Config) {
		if err := os.WriteFile(files.Config, []byte(requestConfig(fqdn)), 0600); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to write gateway request config: %w", err)
		}
	}

	if !fileExists(files.Key) {
		if err := removeFiles(files.Request); err != nil {
			return types.GatewayCertificates{}, err
		}
		if err := p.Executor.Run(ctx, "openssl", "genrsa", "-out", files.Key, "2048"); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to generate gateway key: %w", err)
		}
	}

	if !fileExists(files.Request) {
		if err := removeFiles(files.Cert); err != nil {
			return types.GatewayCertificates{}, err
		}
		subject := fmt.Sprintf("/C=%s/O=%s/CN=%s", certCountry, certOrganization, fqdn)
		if err := p.Executor.Run(ctx, "openssl", "req", "-new", "-subj", subject,
			"-extensions", "v3_req", "-config", files.Config,
			"-key", files.Key, "-out", files.Request); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to create gateway request: %w", err)
		}
	}

	if !fileExists(files.Cert) {
		if err := removeFiles(files.Bundle); err != nil {
			return types.GatewayCertificates{}, err
		}
		if err := p.Executor.Run(ctx, "openssl", "x509", "-req", "-days", "3650",
			"-extensions", "v3_req", "-extfile", files.Config,
			"-CA", files.CA, "-CAkey", files.CAKey, "-CAserial", files.CASerial,
			"-in", files.Request, "-out", files.Cert); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to sign gateway certificate: %w", err)
		}
		logger.Info().Msg("Issued gateway certificate")
	}

	return readGatewayFiles(files)
}

func requestConfig(fqdn string) string {
	return fmt.Sprintf(`[req]
req_extensions = v3_req
distinguished_name = req_distinguished_name

[ req_distinguished_name ]
commonName_default = %s

[ v3_req ]
subjectAltName=@alt_names

[alt_names]
DNS.1 = %s
`, fqdn, fqdn)
}
