// Package credential stores the mailbox password in the OS keyring so
// it can be kept out of the config file and the environment.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

// PasswordKey is where the IMAP password lives in the keyring.
const PasswordKey = "imap.password"

// openConfig is the keyring configuration for this service. The file
// backend is last so a real OS secret store wins when one is present.
var openConfig = keyring.Config{
	ServiceName: "mailsheet",
	AllowedBackends: []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	},
	FileDir:                  "~/.config/mailsheet/credentials",
	FilePasswordFunc:         keyring.FixedStringPrompt("mailsheet-file-key"),
	KeychainTrustApplication: true,
}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(openConfig)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
