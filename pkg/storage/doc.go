/*
Package storage provides the encrypted bbolt backend of the secrets store.

BoltBackend keeps one key per secret in the "secrets" bucket. Values are
sealed with security.SecretsManager before they are written and opened when
the database is loaded. Save replaces the whole bucket in one transaction so
a deleted secret never survives a run.

	backend, err := storage.NewBoltBackendFromPassphrase(path, passphrase)
	if err != nil {
		return err
	}
	defer backend.Close()

	store, err := secrets.Open(backend)
*/
package storage
