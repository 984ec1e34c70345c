package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/softwarefactory-project/sfconfig/pkg/log"
	"github.com/softwarefactory-project/sfconfig/pkg/types"
	"golang.org/x/crypto/ssh"
)

// Provisioner returns key material, creating it on first use. Every method
// reuses what already exists on disk: calling it twice yields the same result.
type Provisioner interface {
	SSHKeyPair(ctx context.Context, name string) (types.KeyPair, error)
	RSAKeyPair(ctx context.Context, name string) (types.KeyPair, error)
	GatewayCertificates(ctx context.Context, fqdn string) (types.GatewayCertificates, error)
}

const (
	defaultCAKeyBits = 4096
	defaultKeyBits   = 2048
)

// FileProvisioner generates key material with Go crypto and stores it in the
// bootstrap data directory
type FileProvisioner struct {
	Layout Layout

	// CAKeyBits and KeyBits default to 4096 and 2048
	CAKeyBits int
	KeyBits   int
}

// NewFileProvisioner returns a provisioner writing under dir
func NewFileProvisioner(dir string) *FileProvisioner {
	return &FileProvisioner{
		Layout:    Layout{Dir: dir},
		CAKeyBits: defaultCAKeyBits,
		KeyBits:   defaultKeyBits,
	}
}

// SSHKeyPair returns an RSA private key and its OpenSSH authorized key line
func (p *FileProvisioner) SSHKeyPair(ctx context.Context, name string) (types.KeyPair, error) {
	priv, pub := p.Layout.SSHKey(name)
	logger := log.WithComponent("provisioner")

	if !fileExists(priv) {
		if err := p.Layout.Ensure(); err != nil {
			return types.KeyPair{}, err
		}
		key, err := rsa.GenerateKey(rand.Reader, p.keyBits())
		if err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to generate ssh key %s: %w", name, err)
		}
		if err := os.WriteFile(priv, EncodeKeyPEM(key), 0600); err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to write ssh key %s: %w", name, err)
		}
		if err := removeFiles(pub); err != nil {
			return types.KeyPair{}, err
		}
		logger.Info().Str("key", name).Msg("Generated ssh key")
	}

	if !fileExists(pub) {
		if err := writeAuthorizedKey(priv, pub); err != nil {
			return types.KeyPair{}, fmt.Errorf("ssh key %s: %w", name, err)
		}
	}

	privData, pubData, err := readPair(priv, pub)
	if err != nil {
		return types.KeyPair{}, fmt.Errorf("ssh key %s: %w", name, err)
	}
	return types.KeyPair{Private: privData, Public: pubData}, nil
}

// RSAKeyPair returns an RSA private key and its PKIX public key, both PEM
func (p *FileProvisioner) RSAKeyPair(ctx context.Context, name string) (types.KeyPair, error) {
	priv, pub := p.Layout.RSAKey(name)
	logger := log.WithComponent("provisioner")

	if !fileExists(priv) {
		if err := p.Layout.Ensure(); err != nil {
			return types.KeyPair{}, err
		}
		key, err := rsa.GenerateKey(rand.Reader, p.keyBits())
		if err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to generate key %s: %w", name, err)
		}
		if err := os.WriteFile(priv, EncodeKeyPEM(key), 0600); err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to write key %s: %w", name, err)
		}
		if err := removeFiles(pub); err != nil {
			return types.KeyPair{}, err
		}
		logger.Info().Str("key", name).Msg("Generated rsa key")
	}

	if !fileExists(pub) {
		key, err := loadKey(priv)
		if err != nil {
			return types.KeyPair{}, fmt.Errorf("key %s: %w", name, err)
		}
		pubPEM, err := EncodePublicKeyPEM(&key.PublicKey)
		if err != nil {
			return types.KeyPair{}, err
		}
		if err := os.WriteFile(pub, pubPEM, 0644); err != nil {
			return types.KeyPair{}, fmt.Errorf("failed to write public key %s: %w", name, err)
		}
	}

	privData, pubData, err := readPair(priv, pub)
	if err != nil {
		return types.KeyPair{}, fmt.Errorf("key %s: %w", name, err)
	}
	return types.KeyPair{Private: privData, Public: pubData}, nil
}

// GatewayCertificates returns the local CA and a gateway certificate for
// fqdn. A new CA invalidates the gateway certificate; a certificate issued
// for another fqdn, by another CA or for another key is reissued.
func (p *FileProvisioner) GatewayCertificates(ctx context.Context, fqdn string) (types.GatewayCertificates, error) {
	files := p.Layout.Gateway()
	logger := log.WithComponent("provisioner").With().Str("fqdn", fqdn).Logger()

	if err := p.Layout.Ensure(); err != nil {
		return types.GatewayCertificates{}, err
	}

	var ca *CertAuthority
	if !fileExists(files.CA) || !fileExists(files.CAKey) {
		if err := removeFiles(files.Cert, files.Bundle); err != nil {
			return types.GatewayCertificates{}, err
		}
		var err error
		ca, err = InitializeCA(p.caKeyBits())
		if err != nil {
			return types.GatewayCertificates{}, err
		}
		if err := os.WriteFile(files.CAKey, EncodeKeyPEM(ca.Key()), 0600); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to write CA key: %w", err)
		}
		if err := os.WriteFile(files.CA, EncodeCertPEM(ca.Certificate()), 0644); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to write CA certificate: %w", err)
		}
		logger.Info().Msg("Generated local CA")
	} else {
		var err error
		ca, err = loadCA(files.CA, files.CAKey)
		if err != nil {
			return types.GatewayCertificates{}, err
		}
	}

	var key *rsa.PrivateKey
	if !fileExists(files.Key) {
		var err error
		key, err = rsa.GenerateKey(rand.Reader, p.keyBits())
		if err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to generate gateway key: %w", err)
		}
		if err := os.WriteFile(files.Key, EncodeKeyPEM(key), 0600); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to write gateway key: %w", err)
		}
		if err := removeFiles(files.Cert, files.Bundle); err != nil {
			return types.GatewayCertificates{}, err
		}
	} else {
		var err error
		key, err = loadKey(files.Key)
		if err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("gateway key: %w", err)
		}
	}

	if fileExists(files.Cert) {
		data, err := os.ReadFile(files.Cert)
		if err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to read gateway certificate: %w", err)
		}
		cert, err := ParseCertPEM(data)
		if err != nil || !CertMatches(cert, fqdn) || ca.VerifyCertificate(cert) != nil || !sameKey(cert.PublicKey, key) {
			logger.Info().Msg("Gateway certificate is stale, reissuing")
			if err := removeFiles(files.Cert, files.Bundle); err != nil {
				return types.GatewayCertificates{}, err
			}
		}
	}

	if !fileExists(files.Cert) {
		cert, err := ca.IssueServerCertificate(fqdn, key)
		if err != nil {
			return types.GatewayCertificates{}, err
		}
		if err := os.WriteFile(files.Cert, EncodeCertPEM(cert), 0644); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to write gateway certificate: %w", err)
		}
		if err := removeFiles(files.Bundle); err != nil {
			return types.GatewayCertificates{}, err
		}
		logger.Info().Msg("Issued gateway certificate")
	}

	return readGatewayFiles(files)
}

func (p *FileProvisioner) keyBits() int {
	if p.KeyBits > 0 {
		return p.KeyBits
	}
	return defaultKeyBits
}

func (p *FileProvisioner) caKeyBits() int {
	if p.CAKeyBits > 0 {
		return p.CAKeyBits
	}
	return defaultCAKeyBits
}

// readGatewayFiles returns the gateway material, writing the key+cert bundle
// when it is missing
func readGatewayFiles(files GatewayFiles) (types.GatewayCertificates, error) {
	caData, err := os.ReadFile(files.CA)
	if err != nil {
		return types.GatewayCertificates{}, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	certData, err := os.ReadFile(files.Cert)
	if err != nil {
		return types.GatewayCertificates{}, fmt.Errorf("failed to read gateway certificate: %w", err)
	}
	keyData, err := os.ReadFile(files.Key)
	if err != nil {
		return types.GatewayCertificates{}, fmt.Errorf("failed to read gateway key: %w", err)
	}

	if !fileExists(files.Bundle) {
		bundle := fmt.Sprintf("%s\n%s\n", keyData, certData)
		if err := os.WriteFile(files.Bundle, []byte(bundle), 0600); err != nil {
			return types.GatewayCertificates{}, fmt.Errorf("failed to write gateway bundle: %w", err)
		}
	}

	return types.GatewayCertificates{
		CAPEM:   string(caData),
		CertPEM: string(certData),
		KeyPEM:  string(keyData),
	}, nil
}

func loadKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return ParseKeyPEM(data)
}

func loadCA(certPath, keyPath string) (*CertAuthority, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	cert, err := ParseCertPEM(data)
	if err != nil {
		return nil, fmt.Errorf("CA certificate: %w", err)
	}
	key, err := loadKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("CA key: %w", err)
	}
	return NewCertAuthority(cert, key), nil
}

func writeAuthorizedKey(priv, pub string) error {
	key, err := loadKey(priv)
	if err != nil {
		return err
	}
	sshPub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to convert public key: %w", err)
	}
	if err := os.WriteFile(pub, ssh.MarshalAuthorizedKey(sshPub), 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

func sameKey(pub interface{}, key *rsa.PrivateKey) bool {
	rsaPub, ok := pub.(*rsa.PublicKey)
	return ok && rsaPub.Equal(&key.PublicKey)
}
