// Package keychain stores the bot token in the OS keychain.
package keychain

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	serviceName  = "tgbotkit"
	tokenAccount = "bot_token"
)

// Get retrieves a secret from the system keychain.
func Get(account string) (string, error) {
	return keyring.Get(serviceName, account)
}

// Set stores a secret in the system keychain.
func Set(account, value string) error {
	return keyring.Set(serviceName, account, value)
}

// Token returns the stored bot token, or an empty string when none is stored.
func Token() (string, error) {
	token, err := Get(tokenAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read bot token from keychain: %w", err)
	}

	return token, nil
}

// SetToken stores the bot token.
func SetToken(token string) error {
	if err := Set(tokenAccount, token); err != nil {
		return fmt.Errorf("store bot token in keychain: %w", err)
	}

	return nil
}
