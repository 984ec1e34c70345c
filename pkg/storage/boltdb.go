package storage

import (
	"fmt"
	"time"

	"github.com/softwarefactory-project/sfconfig/pkg/security"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketSecrets = []byte("secrets")
)

// BoltBackend stores secrets in a bbolt database, each value encrypted with
// AES-256-GCM. It implements secrets.Backend.
type BoltBackend struct {
	db      *bolt.DB
	secrets *security.SecretsManager
}

// NewBoltBackend opens or creates the database at path
func NewBoltBackend(path string, sm *security.SecretsManager) (*BoltBackend, error) {
	if sm == nil {
		return nil, fmt.Errorf("bolt secrets backend requires an encryption key")
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSecrets); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketSecrets, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltBackend{db: db, secrets: sm}, nil
}

// NewBoltBackendFromPassphrase derives the encryption key from passphrase
func NewBoltBackendFromPassphrase(path, passphrase string) (*BoltBackend, error) {
	sm, err := security.NewSecretsManagerFromPassphrase(passphrase)
	if err != nil {
		return nil, err
	}
	return NewBoltBackend(path, sm)
}

// Close closes the database
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Load decrypts every stored secret
func (b *BoltBackend) Load() (map[string]string, error) {
	values := make(map[string]string)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSecrets)
		return bucket.ForEach(func(k, v []byte) error {
			if len(v) == 0 {
				values[string(k)] = ""
				return nil
			}
			plaintext, err := b.secrets.DecryptSecret(v)
			if err != nil {
				return fmt.Errorf("secret %s: %w", k, err)
			}
			values[string(k)] = string(plaintext)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Save replaces the bucket content with values in a single transaction
func (b *BoltBackend) Save(values map[string]string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSecrets) != nil {
			if err := tx.DeleteBucket(bucketSecrets); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(bucketSecrets)
		if err != nil {
			return err
		}

		for name, value := range values {
			// Empty values cannot be sealed, keep the name only
			if value == "" {
				if err := bucket.Put([]byte(name), []byte{}); err != nil {
					return err
				}
				continue
			}
			ciphertext, err := b.secrets.EncryptSecret([]byte(value))
			if err != nil {
				return fmt.Errorf("secret %s: %w", name, err)
			}
			if err := bucket.Put([]byte(name), ciphertext); err != nil {
				return err
			}
		}
		return nil
	})
}
