package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// CertAuthority is the deployment's local certificate authority. It signs the
// gateway certificate when no public certificate is configured.
type CertAuthority struct {
	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey
}

const (
	// Local CA and gateway certificate validity: 10 years
	certValidity = 3650 * 24 * time.Hour

	certCountry      = "FR"
	certOrganization = "SoftwareFactory"
)

// NewCertAuthority wraps an existing CA certificate and key
func NewCertAuthority(cert *x509.Certificate, key *rsa.PrivateKey) *CertAuthority {
	return &CertAuthority{rootCert: cert, rootKey: key}
}

// InitializeCA generates a new self-signed CA. The organizational unit is
// random so that CAs of several deployments can be trusted side by side.
func InitializeCA(keyBits int) (*CertAuthority, error) {
	rootKey, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serialNumber, err := newSerialNumber()
	if err != nil {
		return nil, err
	}

	ou, err := randomOU()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Country:            []string{certCountry},
			Organization:       []string{certOrganization},
			OrganizationalUnit: []string{ou},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &CertAuthority{rootCert: rootCert, rootKey: rootKey}, nil
}

// IssueServerCertificate signs a server certificate for fqdn with the given key
func (ca *CertAuthority) IssueServerCertificate(fqdn string, key *rsa.PrivateKey) (*x509.Certificate, error) {
	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	serialNumber, err := newSerialNumber()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Country:      []string{certCountry},
			Organization: []string{certOrganization},
			CommonName:   fqdn,
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(certValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{fqdn},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &key.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create server certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server certificate: %w", err)
	}
	return cert, nil
}

// VerifyCertificate verifies a server certificate against the CA
func (ca *CertAuthority) VerifyCertificate(cert *x509.Certificate) error {
	if ca.rootCert == nil {
		return fmt.Errorf("CA not initialized")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.rootCert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// Certificate returns the CA certificate
func (ca *CertAuthority) Certificate() *x509.Certificate {
	return ca.rootCert
}

// Key returns the CA private key
func (ca *CertAuthority) Key() *rsa.PrivateKey {
	return ca.rootKey
}

func newSerialNumber() (*big.Int, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serialNumber, nil
}

func randomOU() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate CA unit: %w", err)
	}
	return hex.EncodeToString(b), nil
}
