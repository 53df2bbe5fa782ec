package config

import (
	"strings"

	"github.com/zalando/go-keyring"
)

// keyringStore reads and writes secrets through the OS keyring (Keychain,
// Secret Service or Windows Credential Manager).
type keyringStore struct{}

func (keyringStore) Get(service, account string) (string, error) {
	v, err := keyring.Get(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func (keyringStore) Set(service, account, value string) error {
	return keyring.Set(service, account, value)
}

// SetAuthKey stores the shared auth key in the OS keyring.
func SetAuthKey(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrMissingAuthKey
	}
	return keyringStore{}.Set(KeyringService, KeyringAccount, value)
}
